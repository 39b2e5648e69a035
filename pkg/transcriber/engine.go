package transcriber

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/scribekit/scribe/pkg/asr"
	"github.com/scribekit/scribe/pkg/errorsx"
	"github.com/scribekit/scribe/pkg/logging"
	"github.com/scribekit/scribe/pkg/metrics"
	"github.com/scribekit/scribe/pkg/transcript"
)

// Buffer growth strategies. Rebuffer clears everything at each commit and
// lets the recognizer start fresh; window keeps an overlap tail and feeds
// trailing confirmed words back as decode context.
const (
	StrategyRebuffer = "rebuffer"
	StrategyWindow   = "window"
)

const (
	stateIdle int32 = iota
	stateRunning
	stateStopping
)

// Options configures an Engine. Zero values fall back to defaults chosen
// for 16 kHz dictation.
type Options struct {
	// Decoder runs the actual recognition. Nil degrades the engine to a
	// buffering no-op.
	Decoder asr.Decoder
	// SampleRate of ingested audio in Hz. Default 16000.
	SampleRate int
	// FirstInterval is the wait before the first decode pass. Default 300ms.
	FirstInterval time.Duration
	// Interval is the steady-state wait between passes. Default 400ms.
	Interval time.Duration
	// CommitAfter is the buffered-audio duration beyond which the current
	// partial is committed and the buffer cleared. Default 25s.
	CommitAfter time.Duration
	// MinDecode is the minimum buffered duration worth decoding. Default 250ms.
	MinDecode time.Duration
	// Strategy is StrategyRebuffer (default) or StrategyWindow.
	Strategy string
	// Window bounds buffer growth under StrategyWindow. Default 12s.
	Window time.Duration
	// Overlap is the audio tail retained across window commits. Default 1s.
	Overlap time.Duration
	// MaxContextWords bounds the confirmed-text tail carried as decode
	// context under StrategyWindow. Default 32.
	MaxContextWords int
	// Language hint passed to the decoder.
	Language string

	Logger    *slog.Logger
	Observer  metrics.Observer
	SessionID string
}

func (o *Options) withDefaults() {
	if o.SampleRate <= 0 {
		o.SampleRate = 16000
	}
	if o.FirstInterval <= 0 {
		o.FirstInterval = 300 * time.Millisecond
	}
	if o.Interval <= 0 {
		o.Interval = 400 * time.Millisecond
	}
	if o.CommitAfter <= 0 {
		o.CommitAfter = 25 * time.Second
	}
	if o.MinDecode <= 0 {
		o.MinDecode = 250 * time.Millisecond
	}
	if o.Strategy == "" {
		o.Strategy = StrategyRebuffer
	}
	if o.Window <= 0 {
		o.Window = 12 * time.Second
	}
	if o.Overlap <= 0 {
		o.Overlap = time.Second
	}
	if o.MaxContextWords <= 0 {
		o.MaxContextWords = 32
	}
	if o.Logger == nil {
		o.Logger = logging.Component("engine")
	}
	if o.Observer == nil {
		o.Observer = metrics.NoopObserver{}
	}
	if o.SessionID == "" {
		o.SessionID = uuid.New().String()
	}
}

// Engine re-decodes a growing audio buffer on a timer and publishes the
// merged transcript through a callback. One background goroutine per
// running engine; Process is safe from any other goroutine.
type Engine struct {
	opts Options
	log  *slog.Logger
	obs  metrics.Observer

	buf  *Buffer
	text *transcript.State

	state        atomic.Int32
	totalSamples atomic.Int64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	cb     func(text string)
}

// NewEngine builds an engine. The decoder may be nil; the engine then
// accepts control calls but never buffers or decodes.
func NewEngine(opts Options) *Engine {
	opts.withDefaults()
	return &Engine{
		opts: opts,
		log:  opts.Logger.With(slog.String("session_id", opts.SessionID)),
		obs:  opts.Observer,
		buf:  NewBuffer(opts.SampleRate),
		text: transcript.NewState(),
	}
}

// SessionID returns the identifier attached to this engine's events.
func (e *Engine) SessionID() string { return e.opts.SessionID }

// SetCallback installs the transcript listener. Call before Start; the
// callback runs synchronously on the engine goroutine, one invocation at
// a time, with a value the consumer may retain freely.
func (e *Engine) SetCallback(fn func(text string)) {
	e.mu.Lock()
	e.cb = fn
	e.mu.Unlock()
}

// Start clears transcript state and launches the decode loop. No-op when
// already running. With no decoder configured the loop still runs but
// nothing ever reaches it, which keeps lifecycle behavior uniform.
func (e *Engine) Start() error {
	if !e.state.CompareAndSwap(stateIdle, stateRunning) {
		return nil
	}
	e.text.Reset()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	e.mu.Lock()
	e.cancel = cancel
	e.done = done
	e.mu.Unlock()

	if e.opts.Decoder == nil {
		e.log.Warn("engine started without a decoder",
			slog.String("reason_code", string(errorsx.ReasonDecoderInit)))
	}
	e.observe(metrics.MetricsEvent{
		Name: metrics.EventSessionStart,
		Fields: map[string]any{
			"strategy":    e.opts.Strategy,
			"sample_rate": e.opts.SampleRate,
		},
	})
	e.log.Info("engine started", slog.String("strategy", e.opts.Strategy))
	go e.loop(ctx, done)
	return nil
}

// Stop cancels the loop and blocks until it has exited, so callers may
// release the decoder immediately after. No-op unless running.
func (e *Engine) Stop() {
	if !e.state.CompareAndSwap(stateRunning, stateStopping) {
		return
	}
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.mu.Unlock()
	cancel()
	<-done
	e.state.Store(stateIdle)
	e.observe(metrics.MetricsEvent{
		Name: metrics.EventSessionEnd,
		Fields: map[string]any{
			"recording_seconds": e.RecordingSeconds(),
		},
	})
	e.log.Info("engine stopped",
		slog.Float64("recording_seconds", e.RecordingSeconds()))
}

// Reset clears the buffer, transcript, and sample counter. Refused while
// the engine is running; stop first.
func (e *Engine) Reset() error {
	if e.state.Load() != stateIdle {
		return errorsx.New(errorsx.ReasonResetWhileActive)
	}
	e.buf.Reset()
	e.text.Reset()
	e.totalSamples.Store(0)
	return nil
}

// Process appends samples to the buffer and bumps the elapsed counter.
// Callable at any time, including before Start; idle samples wait in the
// buffer for the first pass. Silent no-op when no decoder is configured.
func (e *Engine) Process(samples []float32) {
	if e.opts.Decoder == nil || len(samples) == 0 {
		return
	}
	e.buf.Append(samples)
	e.totalSamples.Add(int64(len(samples)))
}

// RecordingSeconds returns total ingested audio duration. Non-blocking.
func (e *Engine) RecordingSeconds() float64 {
	return float64(e.totalSamples.Load()) / float64(e.opts.SampleRate)
}

// DisplayedText returns confirmed plus partial text. Non-blocking with
// respect to decoding.
func (e *Engine) DisplayedText() string {
	return e.text.Displayed()
}

func (e *Engine) samplesFor(d time.Duration) int {
	return int(d.Seconds() * float64(e.opts.SampleRate))
}

func (e *Engine) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	commitSamples := e.samplesFor(e.opts.CommitAfter)
	minSamples := e.samplesFor(e.opts.MinDecode)
	windowSamples := e.samplesFor(e.opts.Window)
	overlapSamples := e.samplesFor(e.opts.Overlap)

	var prompt string

	timer := time.NewTimer(e.opts.FirstInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if !e.pass(ctx, commitSamples, minSamples, windowSamples, overlapSamples, &prompt) {
			return
		}
		// Rearm only after the pass so a decode slower than the interval
		// still leaves a full inter-pass wait.
		timer.Reset(e.opts.Interval)
	}
}

// pass runs one loop iteration: the commit check, then a decode when
// enough audio is buffered. Returns false once ctx is cancelled.
func (e *Engine) pass(ctx context.Context, commitSamples, minSamples, windowSamples, overlapSamples int, prompt *string) bool {
	if e.commitPass(windowSamples, commitSamples, overlapSamples, prompt) {
		return true
	}

	snapshot := e.buf.Snapshot()
	if len(snapshot) < minSamples {
		if len(snapshot) > 0 {
			e.observe(metrics.MetricsEvent{
				Name:   metrics.EventDecodeSkip,
				Fields: map[string]any{"samples": len(snapshot)},
			})
		}
		return true
	}
	if e.opts.Decoder == nil {
		return true
	}

	start := time.Now()
	raw, err := e.opts.Decoder.Decode(ctx, snapshot, asr.DecodeOptions{
		Language: e.opts.Language,
		Prompt:   *prompt,
	})
	if ctx.Err() != nil {
		return false
	}
	if err != nil {
		e.log.Warn("decode pass failed",
			slog.String("reason_code", string(errorsx.ReasonDecoderDecode)),
			slog.String("error", err.Error()))
		return true
	}
	e.observe(metrics.MetricsEvent{
		Name:  metrics.EventDecodePass,
		Value: float64(time.Since(start).Milliseconds()),
		Fields: map[string]any{
			"samples":       len(snapshot),
			"audio_seconds": float64(len(snapshot)) / float64(e.opts.SampleRate),
		},
	})
	if raw == "" {
		return true
	}
	e.publish(transcript.Clean(raw))
	return true
}

// commitPass promotes the partial when the buffer has outgrown its bound.
// Returns true when this iteration committed, which skips decoding.
func (e *Engine) commitPass(windowSamples, commitSamples, overlapSamples int, prompt *string) bool {
	if e.text.Partial() == "" {
		return false
	}
	switch e.opts.Strategy {
	case StrategyWindow:
		if e.buf.Len() <= windowSamples {
			return false
		}
		e.text.Commit()
		e.buf.TrimHead(overlapSamples)
		*prompt = e.text.TailWords(e.opts.MaxContextWords)
	default:
		if !e.buf.CommitAndClear(commitSamples) {
			return false
		}
		e.text.Commit()
	}
	e.observe(metrics.MetricsEvent{
		Name:   metrics.EventCommit,
		Tags:   map[string]string{"strategy": e.opts.Strategy},
		Fields: map[string]any{"commits": e.text.Commits()},
	})
	e.log.Debug("partial committed", slog.Int("commits", e.text.Commits()))
	return true
}

func (e *Engine) publish(partial string) {
	e.text.SetPartial(partial)
	displayed := e.text.Displayed()
	e.observe(metrics.MetricsEvent{
		Name:   metrics.EventTranscriptPublish,
		Fields: map[string]any{"chars": len(displayed)},
	})
	e.mu.Lock()
	cb := e.cb
	e.mu.Unlock()
	if cb != nil {
		cb(displayed)
	}
}

func (e *Engine) observe(ev metrics.MetricsEvent) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	if ev.Tags == nil {
		ev.Tags = make(map[string]string, 2)
	}
	ev.Tags["session_id"] = e.opts.SessionID
	if e.opts.Decoder != nil {
		ev.Tags["provider"] = e.opts.Decoder.Name()
	}
	e.obs.RecordEvent(ev)
}
