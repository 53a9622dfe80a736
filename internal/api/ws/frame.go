package ws

import (
	"encoding/binary"
	"errors"
	"time"

	"github.com/Elleo/gst-deepspeech/internal/audio"
)

// Wire framing for audio over WebSocket binary messages: a fixed 16-byte
// little-endian header (presentation timestamp in nanoseconds, duration in
// nanoseconds) followed by the S16LE PCM payload.
const headerSize = 16

// ErrShortFrame is returned when a binary message cannot hold the header.
var ErrShortFrame = errors.New("frame shorter than header")

// EncodeFrame serializes a buffer into a wire frame.
func EncodeFrame(buf audio.Buffer) []byte {
	out := make([]byte, headerSize+len(buf.Data))
	binary.LittleEndian.PutUint64(out[0:8], uint64(buf.Timestamp))
	binary.LittleEndian.PutUint64(out[8:16], uint64(buf.Duration))
	copy(out[headerSize:], buf.Data)
	return out
}

// DecodeFrame parses a wire frame into a buffer. The payload is referenced,
// not copied; callers must not reuse the input slice.
func DecodeFrame(frame []byte) (audio.Buffer, error) {
	if len(frame) < headerSize {
		return audio.Buffer{}, ErrShortFrame
	}
	return audio.Buffer{
		Timestamp: time.Duration(binary.LittleEndian.Uint64(frame[0:8])),
		Duration:  time.Duration(binary.LittleEndian.Uint64(frame[8:16])),
		Data:      frame[headerSize:],
	}, nil
}
