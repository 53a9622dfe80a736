// Package stream orchestrates per-buffer flow: loudness analysis, silence
// classification, segment accumulation, flush dispatch, and unconditional
// downstream forwarding.
package stream

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Elleo/gst-deepspeech/internal/audio"
	"github.com/Elleo/gst-deepspeech/internal/observability/logging"
	"github.com/Elleo/gst-deepspeech/internal/observability/metrics"
	"github.com/Elleo/gst-deepspeech/internal/service/dispatch"
	"github.com/Elleo/gst-deepspeech/internal/service/energy"
	"github.com/Elleo/gst-deepspeech/internal/service/gate"
	"github.com/Elleo/gst-deepspeech/internal/service/segment"
)

// ForwardFunc delivers a buffer to the downstream consumer. It is called for
// every incoming buffer, in arrival order, with the original buffer and the
// caller's context, regardless of segmentation decisions.
type ForwardFunc func(ctx context.Context, buf audio.Buffer) error

// Controller drives the segmentation pipeline for one audio stream. All
// methods must be called from a single goroutine; the accumulator and gate it
// owns are not locked.
type Controller struct {
	gate    *gate.Gate
	acc     *segment.Accumulator
	disp    *dispatch.Dispatcher
	forward ForwardFunc
	m       *metrics.Metrics
	log     zerolog.Logger
	ended   bool
}

// NewController wires a controller around an existing gate and dispatcher.
// ids supplies submission-ordered segment IDs; forward receives the
// pass-through buffers.
func NewController(g *gate.Gate, disp *dispatch.Dispatcher, ids *segment.Generator, forward ForwardFunc) *Controller {
	return &Controller{
		gate:    g,
		acc:     segment.NewAccumulator(ids),
		disp:    disp,
		forward: forward,
		m:       metrics.DefaultMetrics,
		log:     logging.WithComponent("stream"),
	}
}

// ErrStreamEnded is returned by Process after EndOfStream completed.
var ErrStreamEnded = errors.New("stream has ended")

// Process handles one incoming buffer:
//
//  1. compute loudness metrics
//  2. classify against the silence gate
//  3. append to the current segment when the gate says so
//  4. on flush, hand the segment to the dispatcher (fire-and-forget)
//  5. forward the original buffer downstream unconditionally
//
// A buffer that is too short to hold one complete sample is treated as zero
// energy by the analyzer and still forwarded; malformed input never aborts
// the stream.
func (c *Controller) Process(ctx context.Context, buf audio.Buffer) error {
	if c.ended {
		return ErrStreamEnded
	}

	em := energy.Analyze(buf)
	c.m.RecordBuffer(len(buf.Data), em.SumSquares, em.PeakSquare)

	d := c.gate.Classify(em, c.acc.Accumulating())
	if d.Append {
		c.acc.Append(buf)
	}
	if d.Flush {
		c.flush()
	}

	if err := c.forward(ctx, buf); err != nil {
		return fmt.Errorf("forward buffer: %w", err)
	}
	return nil
}

// EndOfStream flushes a pending utterance, then drains the dispatcher so
// every submitted segment either completes or is explicitly discarded. After
// it returns the controller accepts no more buffers.
func (c *Controller) EndOfStream(ctx context.Context) error {
	if c.ended {
		return nil
	}
	c.ended = true

	if c.acc.Accumulating() {
		c.flush()
	}
	return c.disp.DrainAndStop(ctx)
}

// Accumulating reports whether an utterance is currently being captured.
func (c *Controller) Accumulating() bool {
	return c.acc.Accumulating()
}

func (c *Controller) flush() {
	seg := c.acc.TakeAndReset()
	c.m.RecordFlush(seg.TotalDuration.Seconds())
	if err := c.disp.Submit(seg); err != nil {
		// Drop already counted by the dispatcher; the stream continues.
		c.log.Warn().Err(err).Uint64("segmentId", seg.ID).Msg("Segment submission rejected")
		return
	}
	c.log.Debug().
		Uint64("segmentId", seg.ID).
		Dur("audio", seg.TotalDuration).
		Msg("Segment flushed to inference")
}
