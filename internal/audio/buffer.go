// Package audio defines the fixed-format PCM buffer type that flows through
// the segmentation pipeline.
package audio

import (
	"encoding/binary"
	"time"
)

// Stream format is fixed: 16 kHz mono signed 16-bit little-endian PCM.
const (
	SampleRate     = 16000
	Channels       = 1
	BytesPerSample = 2
)

// Buffer is a single timestamped chunk of raw audio as delivered by the host
// transport. Buffers are never mutated after creation, so they may be shared
// between the forward path and the accumulator without copying.
type Buffer struct {
	Data      []byte        // S16LE mono samples
	Timestamp time.Duration // presentation timestamp
	Duration  time.Duration
}

// SampleCount returns the number of complete 16-bit samples in the buffer.
// A trailing odd byte is not counted.
func (b Buffer) SampleCount() int {
	return len(b.Data) / BytesPerSample
}

// Sample returns the i-th signed 16-bit sample.
func (b Buffer) Sample(i int) int16 {
	return int16(binary.LittleEndian.Uint16(b.Data[i*BytesPerSample:]))
}

// Empty reports whether the buffer carries no complete samples.
func (b Buffer) Empty() bool {
	return b.SampleCount() == 0
}

// DurationOf returns the play duration of n bytes of stream-format PCM.
func DurationOf(n int) time.Duration {
	samples := n / BytesPerSample
	return time.Duration(samples) * time.Second / SampleRate
}
