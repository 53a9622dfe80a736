package segment

import (
	"github.com/Elleo/gst-deepspeech/internal/audio"
)

// Accumulator owns the in-progress utterance. Append and TakeAndReset are
// only ever invoked from the single stream-controller goroutine, so the
// accumulator needs no locking; thread safety is pushed to the boundary where
// segment ownership transfers to the dispatcher.
type Accumulator struct {
	ids *Generator
	cur *Segment
}

// NewAccumulator creates an empty accumulator drawing IDs from ids.
func NewAccumulator(ids *Generator) *Accumulator {
	return &Accumulator{
		ids: ids,
		cur: &Segment{},
	}
}

// Append adds the buffer's samples to the current segment. The first buffer
// appended to a fresh segment donates its timestamp and duration as the
// segment's event timing metadata.
func (a *Accumulator) Append(buf audio.Buffer) {
	if a.cur.Empty() {
		a.cur.Timestamp = buf.Timestamp
		a.cur.Duration = buf.Duration
	}
	a.cur.PCM = append(a.cur.PCM, buf.Data...)
	a.cur.TotalDuration += buf.Duration
}

// Len returns the number of accumulated PCM bytes.
func (a *Accumulator) Len() int {
	return len(a.cur.PCM)
}

// Accumulating reports whether an utterance is currently being captured.
func (a *Accumulator) Accumulating() bool {
	return !a.cur.Empty()
}

// TakeAndReset removes and returns the current segment, stamping it with the
// next submission ID, and replaces it with a fresh empty one. Appends after
// the call build a distinct segment; the returned segment is never mutated
// again by the accumulator. Callable even when empty (the returned segment is
// then empty too; callers guard the end-of-stream drain).
func (a *Accumulator) TakeAndReset() *Segment {
	seg := a.cur
	seg.ID = a.ids.Next()
	a.cur = &Segment{}
	return seg
}
