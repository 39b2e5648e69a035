package transcriber

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/scribekit/scribe/pkg/asr"
	"github.com/scribekit/scribe/pkg/errorsx"
	"github.com/scribekit/scribe/pkg/logging"
	"github.com/scribekit/scribe/pkg/metrics"
	"github.com/scribekit/scribe/pkg/resilience"
	"github.com/scribekit/scribe/pkg/transcript"
)

// StreamOptions configures a StreamSession.
type StreamOptions struct {
	Streamer asr.Streamer
	// SampleRate of the PCM16 audio pushed through SendAudio. Default 16000.
	SampleRate int
	// Retry bounds reconnect attempts on Start.
	Retry resilience.RetryPolicy
	// Breaker trips after repeated connect failures. Optional.
	Breaker *resilience.CircuitBreaker

	Logger    *slog.Logger
	Observer  metrics.Observer
	SessionID string
}

// StreamSession adapts a connection-oriented recognizer to the same
// transcript contract as the Engine: interim results land in the partial
// slot, finals fold into confirmed text, and every update reaches the
// callback as merged displayed text.
type StreamSession struct {
	opts StreamOptions
	log  *slog.Logger
	obs  metrics.Observer
	text *transcript.State

	started      atomic.Bool
	totalSamples atomic.Int64

	mu     sync.Mutex
	cb     func(text string)
	cancel context.CancelFunc
	done   chan struct{}
}

// NewStreamSession builds a session around a connected streamer.
func NewStreamSession(opts StreamOptions) *StreamSession {
	if opts.SampleRate <= 0 {
		opts.SampleRate = 16000
	}
	if opts.Retry.MaxRetries <= 0 {
		opts.Retry = resilience.NewRetryPolicy(2, 200*time.Millisecond)
	}
	if opts.Logger == nil {
		opts.Logger = logging.Component("stream_session")
	}
	if opts.Observer == nil {
		opts.Observer = metrics.NoopObserver{}
	}
	if opts.SessionID == "" {
		opts.SessionID = uuid.New().String()
	}
	return &StreamSession{
		opts: opts,
		log:  opts.Logger.With(slog.String("session_id", opts.SessionID)),
		obs:  opts.Observer,
		text: transcript.NewState(),
	}
}

// SessionID returns the identifier attached to this session's events.
func (s *StreamSession) SessionID() string { return s.opts.SessionID }

// SetCallback installs the transcript listener. Runs on the session's
// result goroutine, one invocation at a time.
func (s *StreamSession) SetCallback(fn func(text string)) {
	s.mu.Lock()
	s.cb = fn
	s.mu.Unlock()
}

// Start connects the streamer, retrying transient failures, and launches
// the result consumer. Errors carry stream_connect or stream_circuit_open
// reason codes.
func (s *StreamSession) Start(ctx context.Context) error {
	if s.opts.Streamer == nil {
		return errorsx.New(errorsx.ReasonStreamConnect)
	}
	if !s.started.CompareAndSwap(false, true) {
		return nil
	}
	if s.opts.Breaker != nil && !s.opts.Breaker.Allow() {
		s.started.Store(false)
		return errorsx.New(errorsx.ReasonStreamCircuitOpen)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.mu.Lock()
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	err := s.opts.Retry.DoWithContext(ctx, func() error {
		return s.opts.Streamer.Start(ctx)
	})
	if err != nil {
		if s.opts.Breaker != nil {
			s.opts.Breaker.OnFailure()
		}
		cancel()
		close(done)
		s.started.Store(false)
		return errorsx.Wrap(err, errorsx.ReasonStreamConnect)
	}
	if s.opts.Breaker != nil {
		s.opts.Breaker.OnSuccess()
	}

	s.observe(metrics.MetricsEvent{
		Name:   metrics.EventSessionStart,
		Fields: map[string]any{"provider": s.opts.Streamer.Name()},
	})
	s.log.Info("stream session started", slog.String("provider", s.opts.Streamer.Name()))
	go s.consume(runCtx, done)
	return nil
}

// SendAudio forwards one PCM16 chunk to the recognizer.
func (s *StreamSession) SendAudio(pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}
	if err := s.opts.Streamer.SendAudio(pcm); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonStreamSend)
	}
	s.totalSamples.Add(int64(len(pcm) / 2))
	return nil
}

// RecordingSeconds returns total audio duration pushed so far.
func (s *StreamSession) RecordingSeconds() float64 {
	return float64(s.totalSamples.Load()) / float64(s.opts.SampleRate)
}

// DisplayedText returns confirmed plus partial text.
func (s *StreamSession) DisplayedText() string {
	return s.text.Displayed()
}

// Done is closed when the result consumer has exited, either through
// Close or because the remote stream ended.
func (s *StreamSession) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Close shuts the stream down and waits for the consumer to exit.
func (s *StreamSession) Close() error {
	if !s.started.CompareAndSwap(true, false) {
		return nil
	}
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	cancel()
	err := s.opts.Streamer.Close()
	<-done
	s.observe(metrics.MetricsEvent{
		Name:   metrics.EventSessionEnd,
		Fields: map[string]any{"recording_seconds": s.RecordingSeconds()},
	})
	s.log.Info("stream session closed",
		slog.Float64("recording_seconds", s.RecordingSeconds()))
	return errorsx.Wrap(err, errorsx.ReasonStreamClosed)
}

func (s *StreamSession) consume(ctx context.Context, done chan struct{}) {
	defer close(done)
	results := s.opts.Streamer.Results()
	for {
		select {
		case <-ctx.Done():
			return
		case res, ok := <-results:
			if !ok {
				s.log.Debug("result channel closed")
				return
			}
			if res.Err != nil {
				s.log.Warn("stream failed",
					slog.String("reason_code", string(errorsx.ReasonStreamClosed)),
					slog.String("error", res.Err.Error()))
				return
			}
			s.handle(res)
		}
	}
}

func (s *StreamSession) handle(res asr.Result) {
	raw := strings.TrimSpace(res.Text)
	if raw == "" {
		return
	}
	cleaned := transcript.Clean(raw)
	if res.Final {
		s.text.SetPartial("")
		s.text.CommitText(cleaned)
	} else {
		s.text.SetPartial(cleaned)
	}
	s.observe(metrics.MetricsEvent{
		Name:   metrics.EventStreamResult,
		Fields: map[string]any{"final": res.Final, "chars": len(cleaned)},
	})

	displayed := s.text.Displayed()
	s.mu.Lock()
	cb := s.cb
	s.mu.Unlock()
	if cb != nil {
		cb(displayed)
	}
}

func (s *StreamSession) observe(ev metrics.MetricsEvent) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	if ev.Tags == nil {
		ev.Tags = make(map[string]string, 1)
	}
	ev.Tags["session_id"] = s.opts.SessionID
	s.obs.RecordEvent(ev)
}
