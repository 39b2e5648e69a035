package observers

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/scribekit/scribe/pkg/metrics"
)

// SessionUsage summarizes what one dictation session cost: audio recorded,
// decode passes spent re-decoding it, and how much text was finalized.
type SessionUsage struct {
	TraceID       string  `json:"trace_id,omitempty"`
	SessionID     string  `json:"session_id,omitempty"`
	AudioSeconds  float64 `json:"audio_seconds"`
	DecodePasses  int     `json:"decode_passes"`
	DecodeMS      float64 `json:"decode_ms"`
	Commits       int     `json:"commits"`
	RecordedAtUTC string  `json:"recorded_at_utc"`
}

// UsageObserver accumulates per-session usage and writes one JSON summary
// per session on Close.
type UsageObserver struct {
	dir   string
	mu    sync.Mutex
	stats map[string]*SessionUsage
}

func NewUsageObserver(dir string) *UsageObserver {
	return &UsageObserver{dir: dir, stats: make(map[string]*SessionUsage)}
}

func (o *UsageObserver) RecordEvent(ev metrics.MetricsEvent) {
	if strings.TrimSpace(o.dir) == "" {
		return
	}
	id := ""
	sessionID := ""
	traceID := ""
	if ev.Tags != nil {
		sessionID = ev.Tags["session_id"]
		traceID = ev.Tags["trace_id"]
		if traceID != "" {
			id = traceID
		} else {
			id = sessionID
		}
	}
	if id == "" {
		return
	}

	switch ev.Name {
	case metrics.EventDecodePass:
		o.mu.Lock()
		stat := o.statLocked(id, sessionID, traceID)
		stat.DecodePasses++
		stat.DecodeMS += ev.Value
		o.mu.Unlock()
	case metrics.EventCommit:
		o.mu.Lock()
		o.statLocked(id, sessionID, traceID).Commits++
		o.mu.Unlock()
	case metrics.EventSessionEnd:
		if ev.Fields == nil {
			return
		}
		if sec, ok := ev.Fields["recording_seconds"].(float64); ok && sec > 0 {
			o.mu.Lock()
			o.statLocked(id, sessionID, traceID).AudioSeconds = sec
			o.mu.Unlock()
		}
	}
}

func (o *UsageObserver) statLocked(id, sessionID, traceID string) *SessionUsage {
	stat := o.stats[id]
	if stat == nil {
		stat = &SessionUsage{TraceID: traceID, SessionID: sessionID}
		o.stats[id] = stat
	}
	return stat
}

func (o *UsageObserver) Close() error {
	if strings.TrimSpace(o.dir) == "" {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := os.MkdirAll(o.dir, 0o755); err != nil {
		return err
	}
	var errOut error
	for id, stat := range o.stats {
		stat.RecordedAtUTC = time.Now().UTC().Format(time.RFC3339)
		b, err := json.MarshalIndent(stat, "", "  ")
		if err != nil {
			errOut = errors.Join(errOut, err)
			continue
		}
		path := filepath.Join(o.dir, sanitizeID(id)+".usage.json")
		if err := os.WriteFile(path, b, 0o644); err != nil {
			errOut = errors.Join(errOut, err)
		}
	}
	return errOut
}

var _ metrics.Observer = (*UsageObserver)(nil)
