// Package dispatch runs completed speech segments through the recognition
// engine on a bounded worker pool and emits recognition events.
//
// Concurrency protocol: workers may overlap on feature extraction, event
// construction, and event publishing, but Infer goes through the shared
// engine handle's lock, so at most one inference computation executes at any
// instant across every stream's dispatcher, matching the engine's
// single-caller contract.
//
// Backpressure policy: Submit never blocks. The queue is a bounded channel;
// when it is full the segment is dropped, the drop is counted and logged, and
// Submit reports ErrQueueFull. This keeps the producer's hot path free of
// model latency at the cost of losing utterances under sustained overload.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Elleo/gst-deepspeech/internal/models"
	"github.com/Elleo/gst-deepspeech/internal/observability/logging"
	"github.com/Elleo/gst-deepspeech/internal/observability/metrics"
	"github.com/Elleo/gst-deepspeech/internal/service/asr"
	"github.com/Elleo/gst-deepspeech/internal/service/segment"
)

// Submission errors.
var (
	ErrStopped   = errors.New("dispatcher is stopped")
	ErrQueueFull = errors.New("dispatch queue is full, segment dropped")
)

// Default pool sizing.
const (
	DefaultWorkers    = 2
	DefaultQueueDepth = 8
)

// EventSink receives recognition events. events.Publisher satisfies this.
type EventSink interface {
	Publish(ctx context.Context, ev models.RecognitionEvent) error
}

// Config holds dispatcher tunables.
type Config struct {
	Workers    int
	QueueDepth int
}

// DefaultConfig returns the default pool sizing.
func DefaultConfig() Config {
	return Config{Workers: DefaultWorkers, QueueDepth: DefaultQueueDepth}
}

// Dispatcher owns the worker pool. Create with New, feed with Submit, and
// finish with DrainAndStop.
type Dispatcher struct {
	engine *asr.Handle
	sink   EventSink
	timing models.TimeMapping
	m      *metrics.Metrics
	log    zerolog.Logger

	queue chan *segment.Segment
	group *errgroup.Group

	// stateMu guards stopped against the queue close in DrainAndStop.
	stateMu sync.RWMutex
	stopped bool

	// discarding makes workers drop remaining queued segments without
	// inference; set only when a drain is cancelled.
	discardMu  sync.Mutex
	discarding bool
	discarded  int
}

// New creates a dispatcher and starts its workers. The engine handle is
// shared; the sink receives one event per non-empty recognition result.
func New(engine *asr.Handle, sink EventSink, timing models.TimeMapping, cfg Config) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = DefaultQueueDepth
	}

	d := &Dispatcher{
		engine: engine,
		sink:   sink,
		timing: timing,
		m:      metrics.DefaultMetrics,
		log:    logging.WithComponent("dispatch"),
		queue:  make(chan *segment.Segment, cfg.QueueDepth),
		group:  &errgroup.Group{},
	}

	for i := 0; i < cfg.Workers; i++ {
		d.group.Go(d.worker)
	}
	return d
}

// Submit enqueues a completed segment for inference. It returns immediately:
// ErrStopped after shutdown began, ErrQueueFull when the bounded queue is
// saturated (the segment is dropped and counted). Ownership of the segment
// passes to the dispatcher on success.
func (d *Dispatcher) Submit(seg *segment.Segment) error {
	d.stateMu.RLock()
	defer d.stateMu.RUnlock()

	if d.stopped {
		d.m.RecordSegmentDropped("stopped")
		return ErrStopped
	}

	select {
	case d.queue <- seg:
		d.m.RecordSubmit()
		d.m.QueueDepth.Inc()
		return nil
	default:
		d.m.RecordSegmentDropped("queue_full")
		d.log.Warn().
			Uint64("segmentId", seg.ID).
			Dur("audio", seg.TotalDuration).
			Msg("Dispatch queue saturated, dropping segment")
		return ErrQueueFull
	}
}

// DrainAndStop rejects new submissions, processes everything already queued,
// and waits for the workers to finish. Cancelling ctx switches the remaining
// queue to explicit discard: workers drop queued segments without inference,
// the discard count is reported, and ctx's error is returned.
func (d *Dispatcher) DrainAndStop(ctx context.Context) error {
	d.stateMu.Lock()
	if d.stopped {
		d.stateMu.Unlock()
		return nil
	}
	d.stopped = true
	close(d.queue)
	d.stateMu.Unlock()

	done := make(chan struct{})
	go func() {
		// Workers never return errors; the group is used for its Wait.
		_ = d.group.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		d.discardMu.Lock()
		d.discarding = true
		d.discardMu.Unlock()
		<-done

		d.discardMu.Lock()
		n := d.discarded
		d.discardMu.Unlock()
		if n > 0 {
			d.m.RecordDrainDiscard(n)
			d.log.Warn().Int("discarded", n).Msg("Drain cancelled, queued segments discarded")
		}
		return ctx.Err()
	}
}

// Discarded returns how many queued segments a cancelled drain threw away.
func (d *Dispatcher) Discarded() int {
	d.discardMu.Lock()
	defer d.discardMu.Unlock()
	return d.discarded
}

func (d *Dispatcher) worker() error {
	for seg := range d.queue {
		d.m.QueueDepth.Dec()

		d.discardMu.Lock()
		discard := d.discarding
		if discard {
			d.discarded++
		}
		d.discardMu.Unlock()
		if discard {
			continue
		}

		d.process(seg)
	}
	return nil
}

// process runs one segment through the engine. Failures drop the segment and
// never propagate; the stream is unaffected.
func (d *Dispatcher) process(seg *segment.Segment) {
	engine := d.engine.Engine()

	feats, err := engine.ExtractFeatures(seg.PCM)
	if err != nil {
		d.m.RecordInferenceError("features")
		d.m.RecordSegmentDropped("feature_error")
		d.log.Error().Err(err).Uint64("segmentId", seg.ID).Msg("Feature extraction failed, segment dropped")
		return
	}

	start := time.Now()
	text, err := d.engine.Infer(engine, feats)
	latency := time.Since(start)

	if err != nil {
		d.m.RecordInferenceError("infer")
		d.m.RecordSegmentDropped("inference_error")
		d.log.Error().Err(err).Uint64("segmentId", seg.ID).Msg("Inference failed, segment dropped")
		return
	}
	d.m.RecordInference(latency.Seconds())

	// Empty results are valid and must never produce events.
	if text == "" {
		d.m.RecordEmptyResult()
		return
	}

	ev := d.timing.EventFor(seg.ID, seg.Timestamp, seg.Duration, text)
	if err := d.sink.Publish(context.Background(), ev); err != nil {
		d.log.Error().Err(err).Uint64("segmentId", seg.ID).Msg("Failed to publish recognition event")
		return
	}
	d.m.RecordEventEmitted()

	d.log.Debug().
		Uint64("segmentId", seg.ID).
		Dur("inferenceLatency", latency).
		Str("text", text).
		Msg("Segment recognized")
}
