// Package gate implements the silence-detection state machine that decides
// when an utterance starts, which buffers belong to it, and when it should be
// flushed to inference.
package gate

import (
	"errors"
	"fmt"

	"github.com/Elleo/gst-deepspeech/internal/service/energy"
)

// Defaults match the original element's silence-threshold and silence-length
// properties.
const (
	DefaultSilenceThreshold = 0.1
	DefaultSilenceRunLimit  = 5
)

// Errors returned by Config.Validate.
var (
	ErrThresholdOutOfRange = errors.New("silence threshold must be in (0,1]")
)

// Config holds the tunables for the gate.
type Config struct {
	// SilenceThreshold is the normalized sum-of-squares level at or below
	// which a buffer is classified silent. Must be in (0,1].
	SilenceThreshold float64

	// SilenceRunLimit is the number of consecutive silent buffers tolerated
	// inside an utterance before the segment is flushed.
	SilenceRunLimit uint32
}

// DefaultConfig returns the original element's default gate settings.
func DefaultConfig() Config {
	return Config{
		SilenceThreshold: DefaultSilenceThreshold,
		SilenceRunLimit:  DefaultSilenceRunLimit,
	}
}

// Validate checks the configuration ranges.
func (c Config) Validate() error {
	if c.SilenceThreshold <= 0 || c.SilenceThreshold > 1 {
		return fmt.Errorf("%w: got %v", ErrThresholdOutOfRange, c.SilenceThreshold)
	}
	return nil
}

// State describes where the gate currently is in the utterance lifecycle.
type State int

const (
	// StateIdle - no utterance in progress, waiting for speech.
	StateIdle State = iota
	// StateAccumulating - an utterance is being captured.
	StateAccumulating
	// StateFlushPending - the silence run limit was crossed; the caller must
	// flush the accumulated segment. The gate re-arms to idle immediately.
	StateFlushPending
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateAccumulating:
		return "ACCUMULATING"
	case StateFlushPending:
		return "FLUSH_PENDING"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// Decision is the gate's verdict for one buffer.
type Decision struct {
	// Active reports whether the buffer itself is above the silence threshold.
	Active bool

	// Append reports whether the buffer belongs to the current utterance.
	// Once speech starts, trailing below-threshold buffers keep being
	// captured until the silence run limit is reached, so trailing phonemes
	// are not clipped.
	Append bool

	// Flush reports that the current segment must be finalized and handed to
	// inference before the next buffer is processed.
	Flush bool

	// State is the gate state after classifying this buffer.
	State State
}

// Gate is the hysteresis state machine. It is owned by the single controller
// goroutine and requires no locking.
//
// Transitions:
//
//	IDLE ──(active buffer)──→ ACCUMULATING
//	ACCUMULATING ──(quiet run > limit)──→ FLUSH_PENDING
//	FLUSH_PENDING ──(flush, synchronous)──→ IDLE
//
// There is no terminal state; the machine runs for the lifetime of the stream
// and re-arms after every flush.
type Gate struct {
	cfg      Config
	quietRun uint32
}

// New creates a gate, validating the configuration.
func New(cfg Config) (*Gate, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Gate{cfg: cfg}, nil
}

// QuietRun returns the current count of consecutive silent buffers observed
// while accumulating.
func (g *Gate) QuietRun() uint32 {
	return g.quietRun
}

// Classify processes one buffer's metrics. accumulating reports whether the
// segment accumulator currently holds audio; the append rule and quiet-run
// counter both depend on it.
func (g *Gate) Classify(m energy.Metrics, accumulating bool) Decision {
	d := Decision{}
	d.Active = m.SumSquares > g.cfg.SilenceThreshold
	d.Append = d.Active || accumulating

	if !d.Active && accumulating {
		g.quietRun++
	} else {
		g.quietRun = 0
	}

	if g.quietRun > g.cfg.SilenceRunLimit && accumulating {
		d.Flush = true
		d.State = StateFlushPending
		// Re-arm for the next utterance.
		g.quietRun = 0
		return d
	}

	if d.Append {
		d.State = StateAccumulating
	} else {
		d.State = StateIdle
	}
	return d
}
