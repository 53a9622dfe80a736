package models

import "time"

// TimeMapping is the host clock capability that converts a buffer's
// presentation timestamp into stream time and running time, mirroring the
// segment-to-stream-time mapping a media pipeline maintains. The zero value
// is the identity mapping.
type TimeMapping struct {
	// SegmentStart is the presentation timestamp at which the current stream
	// segment begins.
	SegmentStart time.Duration

	// RunningBase is the running-time accumulated before the current stream
	// segment started.
	RunningBase time.Duration
}

// StreamTime converts a presentation timestamp to stream time.
func (m TimeMapping) StreamTime(ts time.Duration) time.Duration {
	return ts - m.SegmentStart
}

// RunningTime converts a presentation timestamp to running time.
func (m TimeMapping) RunningTime(ts time.Duration) time.Duration {
	return m.RunningBase + (ts - m.SegmentStart)
}

// EventFor builds the recognition event for a segment's timing metadata and
// recognized text.
func (m TimeMapping) EventFor(segmentID uint64, ts, dur time.Duration, text string) RecognitionEvent {
	return RecognitionEvent{
		EventType:   EventTypeRecognition,
		SegmentID:   segmentID,
		Timestamp:   int64(ts),
		StreamTime:  int64(m.StreamTime(ts)),
		RunningTime: int64(m.RunningTime(ts)),
		Duration:    int64(dur),
		Text:        text,
	}
}
