// Package energy computes per-buffer loudness metrics used by the silence
// gate to discriminate speech from background noise.
package energy

import (
	"github.com/Elleo/gst-deepspeech/internal/audio"
)

// Normalizer scales squared 16-bit sample magnitudes into the (0,1] range
// that silence thresholds are expressed in, independent of bit depth.
const Normalizer = float64(int64(1) << 30)

// Metrics holds the normalized loudness values for one buffer.
type Metrics struct {
	// SumSquares is the sum of squared sample values divided by Normalizer.
	// This is the value compared against the silence threshold.
	SumSquares float64

	// PeakSquare is the maximum squared sample value divided by Normalizer.
	// Not used by gating decisions; exported for observability.
	PeakSquare float64
}

// Analyze computes the loudness metrics for a buffer. It is a pure function:
// O(n) in sample count, no error conditions. An empty buffer yields zero for
// both metrics, as does a buffer too short to hold one complete sample.
func Analyze(buf audio.Buffer) Metrics {
	var sum, peak float64
	n := buf.SampleCount()
	for i := 0; i < n; i++ {
		s := float64(buf.Sample(i))
		sq := s * s
		if sq > peak {
			peak = sq
		}
		sum += sq
	}
	return Metrics{
		SumSquares: sum / Normalizer,
		PeakSquare: peak / Normalizer,
	}
}
