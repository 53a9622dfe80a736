// Package segment provides the utterance segment type, its accumulator, and
// segment ID generation.
package segment

import (
	"sync/atomic"
	"time"
)

// Segment is one contiguous accumulation of audio buffers representing a
// candidate utterance, from the first above-threshold buffer to the flush
// point. Ownership moves to the inference dispatcher on flush; the producer
// never touches a segment after handoff.
type Segment struct {
	// ID is monotonically increasing in submission order. Completion order
	// across workers is not guaranteed; consumers that need in-order
	// delivery can reorder on this ID.
	ID uint64

	// PCM is the concatenated S16LE audio of every appended buffer.
	PCM []byte

	// Timestamp and Duration are the presentation timestamp and duration of
	// the segment's first constituent buffer. Recognition events carry these
	// values, matching the original element's behavior.
	Timestamp time.Duration
	Duration  time.Duration

	// TotalDuration is the cumulative duration of all appended buffers.
	TotalDuration time.Duration
}

// Empty reports whether the segment holds no audio.
func (s *Segment) Empty() bool {
	return len(s.PCM) == 0
}

// Generator issues monotonically increasing segment IDs. Safe for concurrent
// use.
type Generator struct {
	counter uint64
}

// NewGenerator returns a Generator starting at 1.
func NewGenerator() *Generator {
	return &Generator{}
}

// Next returns the next segment ID.
func (g *Generator) Next() uint64 {
	return atomic.AddUint64(&g.counter, 1)
}
