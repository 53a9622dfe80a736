// Package ws is the host transport ingress: it accepts WebSocket connections
// carrying timestamped PCM frames, runs each connection through its own
// segmentation pipeline, and echoes every frame back downstream unmodified.
// A normal client close is the end-of-stream signal: the pending utterance is
// flushed and the dispatcher drained before the server closes its side.
package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/Elleo/gst-deepspeech/internal/audio"
	"github.com/Elleo/gst-deepspeech/internal/models"
	"github.com/Elleo/gst-deepspeech/internal/observability/logging"
	"github.com/Elleo/gst-deepspeech/internal/observability/metrics"
	"github.com/Elleo/gst-deepspeech/internal/service/asr"
	"github.com/Elleo/gst-deepspeech/internal/service/dispatch"
	"github.com/Elleo/gst-deepspeech/internal/service/gate"
	"github.com/Elleo/gst-deepspeech/internal/service/segment"
	"github.com/Elleo/gst-deepspeech/internal/service/stream"
)

// drainTimeout bounds how long a closing stream waits for queued inference
// before discarding it.
const drainTimeout = 30 * time.Second

// Server accepts audio streams. Each connection gets its own gate,
// accumulator, and dispatcher; the engine handle and event sink are shared.
type Server struct {
	engine  *asr.Handle
	sink    dispatch.EventSink
	gateCfg gate.Config
	dispCfg dispatch.Config
	ids     *segment.Generator
	m       *metrics.Metrics
	log     zerolog.Logger
	server  *http.Server

	// streams tracks hijacked WebSocket connections, which http.Server's
	// Shutdown does not wait for. closing tells their read loops to stop
	// and drain.
	streams   sync.WaitGroup
	closing   chan struct{}
	closeOnce sync.Once
}

// NewServer creates the ingress server listening on addr.
func NewServer(addr string, engine *asr.Handle, sink dispatch.EventSink, gateCfg gate.Config, dispCfg dispatch.Config) *Server {
	s := &Server{
		engine:  engine,
		sink:    sink,
		gateCfg: gateCfg,
		dispCfg: dispCfg,
		ids:     segment.NewGenerator(),
		m:       metrics.DefaultMetrics,
		log:     logging.WithComponent("ingress"),
		closing: make(chan struct{}),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Get("/v1/stream", s.handleStream)

	s.server = &http.Server{
		Addr:        addr,
		Handler:     r,
		IdleTimeout: 60 * time.Second,
	}
	return s
}

// Start starts the HTTP listener in a goroutine.
func (s *Server) Start() {
	go func() {
		s.log.Info().Str("addr", s.server.Addr).Msg("Starting audio ingress server")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("Audio ingress server error")
		}
	}()
}

// Shutdown stops accepting connections, tells every active stream to stop
// reading and drain its queued inference, and blocks until the drains finish
// or ctx expires. http.Server's own Shutdown does not cover hijacked
// WebSocket connections, so the per-stream wait happens here.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down audio ingress server")
	s.closeOnce.Do(func() { close(s.closing) })

	err := s.server.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		s.streams.Wait()
		close(done)
	}()
	select {
	case <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	select {
	case <-s.closing:
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("WebSocket accept failed")
		return
	}

	s.streams.Add(1)
	defer s.streams.Done()

	// Shutdown cancels the read loop; the drain in serveStream still runs.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		select {
		case <-s.closing:
			cancel()
		case <-ctx.Done():
		}
	}()

	streamID := middleware.GetReqID(r.Context())
	logger := logging.WithStream(streamID)
	s.m.RecordStreamStart()
	start := time.Now()
	defer func() { s.m.RecordStreamEnd(time.Since(start).Seconds()) }()

	if err := s.serveStream(ctx, conn, logger); err != nil {
		logger.Error().Err(err).Msg("Stream ended with error")
		conn.Close(websocket.StatusInternalError, "stream error")
		return
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

// serveStream runs one connection's read loop. It is the single producer
// context the pipeline requires: buffers are processed strictly in arrival
// order.
func (s *Server) serveStream(ctx context.Context, conn *websocket.Conn, logger zerolog.Logger) error {
	g, err := gate.New(s.gateCfg)
	if err != nil {
		return fmt.Errorf("configure gate: %w", err)
	}

	disp := dispatch.New(s.engine, s.sink, models.TimeMapping{}, s.dispCfg)
	forward := func(fctx context.Context, buf audio.Buffer) error {
		return conn.Write(fctx, websocket.MessageBinary, EncodeFrame(buf))
	}
	ctrl := stream.NewController(g, disp, s.ids, forward)

	logger.Info().Msg("Audio stream opened")

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				return s.endStream(ctrl, logger)
			}
			// Drain what was already submitted before reporting the failure.
			if endErr := s.endStream(ctrl, logger); endErr != nil {
				logger.Warn().Err(endErr).Msg("Drain after read failure incomplete")
			}
			select {
			case <-s.closing:
				// Server-initiated teardown; the drain above is the
				// contract, not an error.
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return nil
			default:
			}
			return fmt.Errorf("read frame: %w", err)
		}
		if typ != websocket.MessageBinary {
			logger.Warn().Msg("Ignoring non-binary message")
			continue
		}

		buf, err := DecodeFrame(data)
		if err != nil {
			// Malformed frame: contained failure, the stream continues.
			logger.Warn().Err(err).Msg("Dropping malformed frame")
			continue
		}
		if err := ctrl.Process(ctx, buf); err != nil {
			return err
		}
	}
}

func (s *Server) endStream(ctrl *stream.Controller, logger zerolog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	logger.Info().Msg("End of stream, draining inference")
	if err := ctrl.EndOfStream(ctx); err != nil {
		return fmt.Errorf("drain: %w", err)
	}
	return nil
}
