package metrics

import "time"

// Canonical event names emitted by the transcription engine and its
// surrounding components. Observers key off these.
const (
	EventSessionStart      = "session_start"
	EventSessionEnd        = "session_end"
	EventDecodePass        = "decode_pass"
	EventDecodeSkip        = "decode_skip"
	EventCommit            = "commit"
	EventTranscriptPublish = "transcript_publish"
	EventStreamResult      = "stream_result"
)

type MetricsEvent struct {
	Name   string
	Time   time.Time
	Value  float64
	Tags   map[string]string
	Fields map[string]any
}

type Observer interface {
	RecordEvent(ev MetricsEvent)
}

type Flusher interface {
	Flush() error
}

type NoopObserver struct{}

func (NoopObserver) RecordEvent(MetricsEvent) {}
