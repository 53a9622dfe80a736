// Package mock provides a scripted recognition engine for testing and local
// development without model files. It simulates realistic engine behavior:
// configurable inference latency, failure injection, and instrumentation that
// observes how many Infer calls run concurrently.
package mock

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/Elleo/gst-deepspeech/internal/service/asr"
)

// DefaultTexts are the results cycled through when no script is supplied.
var DefaultTexts = []string{
	"hello world",
	"testing one two three",
	"the quick brown fox",
	"goodbye",
}

// features is the mock's input representation: just the byte count.
type features struct {
	pcmBytes int
}

// Engine implements asr.Engine with scripted results.
type Engine struct {
	// Delay is how long each Infer call sleeps, simulating decode latency.
	Delay time.Duration

	// FeatureErr, when set, makes every ExtractFeatures call fail.
	FeatureErr error

	// InferErr, when set, makes every Infer call fail.
	InferErr error

	mu     sync.Mutex
	texts  []string
	next   int
	closed bool

	// Serialization instrumentation.
	active     int32
	maxActive  int32
	inferCalls int64
}

// New creates a mock engine that cycles through the given texts, or
// DefaultTexts when none are given.
func New(texts ...string) *Engine {
	if len(texts) == 0 {
		texts = DefaultTexts
	}
	return &Engine{texts: texts}
}

// ExtractFeatures records the segment size. Safe for concurrent use.
func (e *Engine) ExtractFeatures(pcm []byte) (asr.Features, error) {
	if e.FeatureErr != nil {
		return nil, e.FeatureErr
	}
	return features{pcmBytes: len(pcm)}, nil
}

// Infer returns the next scripted text. It tracks the number of overlapping
// callers so tests can assert that inference is serialized.
func (e *Engine) Infer(f asr.Features) (string, error) {
	cur := atomic.AddInt32(&e.active, 1)
	defer atomic.AddInt32(&e.active, -1)
	atomic.AddInt64(&e.inferCalls, 1)

	// Record the high-water mark of concurrent callers.
	for {
		max := atomic.LoadInt32(&e.maxActive)
		if cur <= max || atomic.CompareAndSwapInt32(&e.maxActive, max, cur) {
			break
		}
	}

	if e.Delay > 0 {
		time.Sleep(e.Delay)
	}
	if e.InferErr != nil {
		return "", e.InferErr
	}

	e.mu.Lock()
	text := e.texts[e.next%len(e.texts)]
	e.next++
	e.mu.Unlock()
	return text, nil
}

// Close marks the engine closed.
func (e *Engine) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// MaxConcurrentInfer returns the highest number of Infer calls observed
// running at the same instant.
func (e *Engine) MaxConcurrentInfer() int32 {
	return atomic.LoadInt32(&e.maxActive)
}

// InferCalls returns the total number of Infer invocations.
func (e *Engine) InferCalls() int64 {
	return atomic.LoadInt64(&e.inferCalls)
}

// Factory returns an asr.Factory that yields this engine regardless of the
// configuration, for wiring the mock provider into the service.
func (e *Engine) Factory() asr.Factory {
	return func(asr.Config) (asr.Engine, error) {
		return e, nil
	}
}

// NewFactory is an asr.Factory producing a fresh default mock engine per
// configuration.
func NewFactory(cfg asr.Config) (asr.Engine, error) {
	return New(), nil
}

var _ asr.Engine = (*Engine)(nil)
