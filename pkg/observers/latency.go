package observers

import (
	"log/slog"
	"sync"
	"time"

	"github.com/scribekit/scribe/pkg/metrics"
)

// LatencyObserver derives per-session dictation latencies from the engine
// event stream: how long until the first partial appeared, how long until
// the first commit, and total session length.
type LatencyObserver struct {
	mu     sync.Mutex
	traces map[string]*trace
	log    *slog.Logger
}

type trace struct {
	started      time.Time
	firstPartial time.Time
	firstCommit  time.Time
	ended        time.Time
	traceID      string
}

func NewLatencyObserver(log *slog.Logger) *LatencyObserver {
	if log == nil {
		log = slog.Default()
	}
	return &LatencyObserver{
		traces: make(map[string]*trace),
		log:    log,
	}
}

func (o *LatencyObserver) RecordEvent(ev metrics.MetricsEvent) {
	sessionID := ""
	if ev.Tags != nil {
		sessionID = ev.Tags["session_id"]
	}
	if sessionID == "" {
		return
	}
	o.mu.Lock()
	t := o.traces[sessionID]
	if t == nil {
		t = &trace{}
		o.traces[sessionID] = t
	}
	switch ev.Name {
	case metrics.EventSessionStart:
		if t.started.IsZero() {
			t.started = ev.Time
		}
		if t.traceID == "" && ev.Tags != nil {
			t.traceID = ev.Tags["trace_id"]
		}
	case metrics.EventTranscriptPublish:
		if t.firstPartial.IsZero() {
			t.firstPartial = ev.Time
		}
	case metrics.EventCommit:
		if t.firstCommit.IsZero() {
			t.firstCommit = ev.Time
		}
	case metrics.EventSessionEnd:
		t.ended = ev.Time
	}
	if !t.ended.IsZero() {
		o.logLatencyLocked(sessionID, t)
		delete(o.traces, sessionID)
	}
	o.mu.Unlock()
}

func (o *LatencyObserver) logLatencyLocked(sessionID string, t *trace) {
	firstPartial := durationMs(t.started, t.firstPartial)
	firstCommit := durationMs(t.started, t.firstCommit)
	total := durationMs(t.started, t.ended)
	o.log.Info("latency",
		"session_id", sessionID,
		"trace_id", t.traceID,
		"first_partial_ms", firstPartial,
		"first_commit_ms", firstCommit,
		"session_ms", total,
	)
}

func durationMs(a, b time.Time) int64 {
	if a.IsZero() || b.IsZero() {
		return -1
	}
	return b.Sub(a).Milliseconds()
}
