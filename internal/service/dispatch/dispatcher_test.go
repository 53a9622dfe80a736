package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Elleo/gst-deepspeech/internal/models"
	"github.com/Elleo/gst-deepspeech/internal/observability/metrics"
	"github.com/Elleo/gst-deepspeech/internal/service/asr"
	"github.com/Elleo/gst-deepspeech/internal/service/asr/mock"
	"github.com/Elleo/gst-deepspeech/internal/service/segment"
)

// captureSink collects published events.
type captureSink struct {
	mu     sync.Mutex
	events []models.RecognitionEvent
}

func (s *captureSink) Publish(_ context.Context, ev models.RecognitionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *captureSink) Events() []models.RecognitionEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.RecognitionEvent(nil), s.events...)
}

func newTestDispatcher(t *testing.T, eng *mock.Engine, cfg Config) (*Dispatcher, *captureSink) {
	t.Helper()
	handle, err := asr.NewHandle(eng.Factory(), asr.DefaultConfig())
	if err != nil {
		t.Fatalf("NewHandle: %v", err)
	}
	sink := &captureSink{}
	return New(handle, sink, models.TimeMapping{}, cfg), sink
}

func seg(id uint64) *segment.Segment {
	return &segment.Segment{
		ID:        id,
		PCM:       []byte{1, 0, 2, 0},
		Timestamp: time.Duration(id) * 20 * time.Millisecond,
		Duration:  20 * time.Millisecond,
	}
}

func TestDispatcher_InferenceIsSerialized(t *testing.T) {
	eng := mock.New("a")
	eng.Delay = 10 * time.Millisecond

	d, _ := newTestDispatcher(t, eng, Config{Workers: 4, QueueDepth: 16})

	for i := 1; i <= 8; i++ {
		if err := d.Submit(seg(uint64(i))); err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
	}

	if err := d.DrainAndStop(context.Background()); err != nil {
		t.Fatalf("DrainAndStop: %v", err)
	}

	if max := eng.MaxConcurrentInfer(); max > 1 {
		t.Errorf("observed %d concurrent inference calls, want at most 1", max)
	}
	if calls := eng.InferCalls(); calls != 8 {
		t.Errorf("expected 8 inference calls, got %d", calls)
	}
}

func TestDispatcher_SharedHandleSerializesAcrossDispatchers(t *testing.T) {
	eng := mock.New("a")
	eng.Delay = 10 * time.Millisecond

	handle, err := asr.NewHandle(eng.Factory(), asr.DefaultConfig())
	if err != nil {
		t.Fatalf("NewHandle: %v", err)
	}

	// Two dispatchers sharing one engine handle, as two concurrent streams
	// would.
	d1 := New(handle, &captureSink{}, models.TimeMapping{}, Config{Workers: 2, QueueDepth: 8})
	d2 := New(handle, &captureSink{}, models.TimeMapping{}, Config{Workers: 2, QueueDepth: 8})

	for i := 1; i <= 4; i++ {
		if err := d1.Submit(seg(uint64(i))); err != nil {
			t.Fatalf("d1 Submit %d: %v", i, err)
		}
		if err := d2.Submit(seg(uint64(i + 100))); err != nil {
			t.Fatalf("d2 Submit %d: %v", i, err)
		}
	}

	if err := d1.DrainAndStop(context.Background()); err != nil {
		t.Fatalf("d1 DrainAndStop: %v", err)
	}
	if err := d2.DrainAndStop(context.Background()); err != nil {
		t.Fatalf("d2 DrainAndStop: %v", err)
	}

	if max := eng.MaxConcurrentInfer(); max > 1 {
		t.Errorf("observed %d concurrent inference calls across dispatchers, want at most 1", max)
	}
}

func TestDispatcher_QueueDepthSumsAcrossDispatchers(t *testing.T) {
	baseline := testutil.ToFloat64(metrics.DefaultMetrics.QueueDepth)

	slow := func() *mock.Engine {
		e := mock.New("a")
		e.Delay = 150 * time.Millisecond
		return e
	}
	d1, _ := newTestDispatcher(t, slow(), Config{Workers: 1, QueueDepth: 4})
	d2, _ := newTestDispatcher(t, slow(), Config{Workers: 1, QueueDepth: 4})

	for i := 1; i <= 3; i++ {
		if err := d1.Submit(seg(uint64(i))); err != nil {
			t.Fatalf("d1 Submit %d: %v", i, err)
		}
		if err := d2.Submit(seg(uint64(i + 10))); err != nil {
			t.Fatalf("d2 Submit %d: %v", i, err)
		}
	}

	// Each worker can have dequeued at most one segment so far, so the gauge
	// must still reflect both dispatchers' backlogs together.
	if depth := testutil.ToFloat64(metrics.DefaultMetrics.QueueDepth) - baseline; depth < 4 {
		t.Errorf("queue depth gauge = %v, want both dispatchers' backlogs summed (>= 4)", depth)
	}

	if err := d1.DrainAndStop(context.Background()); err != nil {
		t.Fatalf("d1 DrainAndStop: %v", err)
	}
	if err := d2.DrainAndStop(context.Background()); err != nil {
		t.Fatalf("d2 DrainAndStop: %v", err)
	}

	if depth := testutil.ToFloat64(metrics.DefaultMetrics.QueueDepth) - baseline; depth != 0 {
		t.Errorf("queue depth gauge = %v after drain, want baseline", depth)
	}
}

func TestDispatcher_EmptyTextSuppressed(t *testing.T) {
	eng := mock.New("")
	d, sink := newTestDispatcher(t, eng, DefaultConfig())

	if err := d.Submit(seg(1)); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := d.DrainAndStop(context.Background()); err != nil {
		t.Fatalf("DrainAndStop: %v", err)
	}

	if got := sink.Events(); len(got) != 0 {
		t.Errorf("empty recognition text must not emit events, got %d", len(got))
	}
}

func TestDispatcher_SingleCharTextEmitsOneEvent(t *testing.T) {
	eng := mock.New("x")
	d, sink := newTestDispatcher(t, eng, DefaultConfig())

	if err := d.Submit(seg(1)); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := d.DrainAndStop(context.Background()); err != nil {
		t.Fatalf("DrainAndStop: %v", err)
	}

	got := sink.Events()
	if len(got) != 1 {
		t.Fatalf("expected exactly one event, got %d", len(got))
	}
	if got[0].Text != "x" {
		t.Errorf("event text = %q, want %q", got[0].Text, "x")
	}
}

func TestDispatcher_EventCarriesSegmentTiming(t *testing.T) {
	eng := mock.New("hello")
	d, sink := newTestDispatcher(t, eng, DefaultConfig())

	s := &segment.Segment{
		ID:            7,
		PCM:           []byte{1, 0},
		Timestamp:     100 * time.Millisecond,
		Duration:      20 * time.Millisecond,
		TotalDuration: 500 * time.Millisecond,
	}
	if err := d.Submit(s); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := d.DrainAndStop(context.Background()); err != nil {
		t.Fatalf("DrainAndStop: %v", err)
	}

	got := sink.Events()
	if len(got) != 1 {
		t.Fatalf("expected one event, got %d", len(got))
	}
	ev := got[0]
	if ev.SegmentID != 7 {
		t.Errorf("SegmentID = %d, want 7", ev.SegmentID)
	}
	if ev.Timestamp != int64(100*time.Millisecond) {
		t.Errorf("Timestamp = %d, want first buffer's 100ms", ev.Timestamp)
	}
	// The event duration is the first buffer's, not the summed segment
	// duration.
	if ev.Duration != int64(20*time.Millisecond) {
		t.Errorf("Duration = %d, want first buffer's 20ms", ev.Duration)
	}
}

func TestDispatcher_SubmitNeverBlocksWhenSaturated(t *testing.T) {
	eng := mock.New("a")
	eng.Delay = 100 * time.Millisecond

	d, _ := newTestDispatcher(t, eng, Config{Workers: 1, QueueDepth: 1})

	var full int
	start := time.Now()
	for i := 1; i <= 10; i++ {
		err := d.Submit(seg(uint64(i)))
		if errors.Is(err, ErrQueueFull) {
			full++
		} else if err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
	}
	elapsed := time.Since(start)

	if elapsed > 50*time.Millisecond {
		t.Errorf("Submit blocked for %v; the policy is non-blocking", elapsed)
	}
	if full == 0 {
		t.Error("expected at least one ErrQueueFull with a saturated queue")
	}

	if err := d.DrainAndStop(context.Background()); err != nil {
		t.Fatalf("DrainAndStop: %v", err)
	}
}

func TestDispatcher_SubmitAfterStopRejected(t *testing.T) {
	eng := mock.New("a")
	d, _ := newTestDispatcher(t, eng, DefaultConfig())

	if err := d.DrainAndStop(context.Background()); err != nil {
		t.Fatalf("DrainAndStop: %v", err)
	}

	if err := d.Submit(seg(1)); !errors.Is(err, ErrStopped) {
		t.Errorf("expected ErrStopped, got %v", err)
	}
}

func TestDispatcher_DrainCompletesQueuedWork(t *testing.T) {
	eng := mock.New("done")
	eng.Delay = 5 * time.Millisecond

	d, sink := newTestDispatcher(t, eng, Config{Workers: 2, QueueDepth: 16})

	for i := 1; i <= 6; i++ {
		if err := d.Submit(seg(uint64(i))); err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
	}
	if err := d.DrainAndStop(context.Background()); err != nil {
		t.Fatalf("DrainAndStop: %v", err)
	}

	if got := sink.Events(); len(got) != 6 {
		t.Errorf("drain must complete all queued segments, got %d of 6 events", len(got))
	}
}

func TestDispatcher_CancelledDrainDiscardsExplicitly(t *testing.T) {
	eng := mock.New("slow")
	eng.Delay = 200 * time.Millisecond

	d, _ := newTestDispatcher(t, eng, Config{Workers: 1, QueueDepth: 16})

	for i := 1; i <= 5; i++ {
		if err := d.Submit(seg(uint64(i))); err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := d.DrainAndStop(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
	if d.Discarded() == 0 {
		t.Error("cancelled drain should report discarded segments")
	}
}

func TestDispatcher_EngineFailureDropsSegmentOnly(t *testing.T) {
	eng := mock.New("ok")
	eng.InferErr = errors.New("decode blew up")

	d, sink := newTestDispatcher(t, eng, DefaultConfig())
	if err := d.Submit(seg(1)); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := d.DrainAndStop(context.Background()); err != nil {
		t.Fatalf("DrainAndStop: %v", err)
	}
	if got := sink.Events(); len(got) != 0 {
		t.Fatalf("failed segment must not emit events, got %d", len(got))
	}

	// The same engine keeps serving once the fault clears.
	eng.InferErr = nil
	d2, sink2 := newTestDispatcher(t, eng, DefaultConfig())
	if err := d2.Submit(seg(2)); err != nil {
		t.Fatalf("Submit after failure: %v", err)
	}
	if err := d2.DrainAndStop(context.Background()); err != nil {
		t.Fatalf("DrainAndStop: %v", err)
	}
	if got := sink2.Events(); len(got) != 1 {
		t.Errorf("expected 1 event after recovery, got %d", len(got))
	}
}

func TestDispatcher_FeatureFailureDropsSegment(t *testing.T) {
	eng := mock.New("ok")
	eng.FeatureErr = errors.New("bad pcm")

	d, sink := newTestDispatcher(t, eng, DefaultConfig())

	if err := d.Submit(seg(1)); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := d.DrainAndStop(context.Background()); err != nil {
		t.Fatalf("DrainAndStop: %v", err)
	}

	if got := sink.Events(); len(got) != 0 {
		t.Errorf("feature extraction failure must not emit events, got %d", len(got))
	}
}
