// Package models defines the data structures for recognition events.
package models

// EventTypeRecognition identifies a completed-utterance recognition event.
const EventTypeRecognition = "speech.segment.recognized"

// RecognitionEvent is the output unit posted to the host event bus once a
// dispatched segment produced non-empty text. All time fields are nanoseconds
// and derive from the segment's first constituent buffer.
type RecognitionEvent struct {
	EventType   string `json:"eventType"`
	SegmentID   uint64 `json:"segmentId"`
	Timestamp   int64  `json:"timestampNs"`
	StreamTime  int64  `json:"streamTimeNs"`
	RunningTime int64  `json:"runningTimeNs"`
	Duration    int64  `json:"durationNs"`
	Text        string `json:"text"`
}
