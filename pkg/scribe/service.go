package scribe

import (
	"context"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/scribekit/scribe/pkg/asr"
	"github.com/scribekit/scribe/pkg/audio"
	"github.com/scribekit/scribe/pkg/errorsx"
	"github.com/scribekit/scribe/pkg/frames"
	"github.com/scribekit/scribe/pkg/logging"
	"github.com/scribekit/scribe/pkg/metrics"
	"github.com/scribekit/scribe/pkg/observers"
	"github.com/scribekit/scribe/pkg/redact"
	"github.com/scribekit/scribe/pkg/runner"
	"github.com/scribekit/scribe/pkg/transcriber"
	"github.com/scribekit/scribe/pkg/transports"
)

// ServiceOptions wires a Service together. Transport is required for Run;
// Providers defaults to the built-in registry.
type ServiceOptions struct {
	Config    Config
	Transport transports.Transport
	Providers *ProviderRegistry
	// ExtraObservers join the built-in latency/logger observers.
	ExtraObservers []metrics.Observer
}

// Service runs dictation sessions over a transport: each transport stream
// gets its own transcription session (local engine or remote stream), audio
// frames feed it, and every transcript update goes back out as a text frame.
type Service struct {
	cfg       Config
	transport transports.Transport
	providers *ProviderRegistry
	runner    *runner.LifecycleRunner
	asyncObs  *metrics.AsyncObserver
	timeline  *observers.TimelineObserver
	usage     *observers.UsageObserver
	log       *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session

	decoderOnce sync.Once
	decoder     asr.Decoder
	decoderErr  error

	cancel context.CancelFunc
}

// session is one live dictation stream, backed by either a local engine or
// a remote stream session. All three funcs are safe from the routing
// goroutine.
type session struct {
	id        string
	feed      func(samples []float32)
	stop      func()
	reset     func() error
	displayed func() string
}

func NewService(opts ServiceOptions) *Service {
	cfg := opts.Config
	logging.SetDefaultLogger(cfg.LogLevel, cfg.LogFormat)
	redact.SetEnabled(cfg.Privacy.RedactPII)

	log := logging.Component("scribe")
	log.Info("service init",
		slog.String("environment", cfg.Environment),
		slog.String("provider", cfg.Provider.Name),
		slog.String("transport", cfg.Transport.Provider),
		slog.String("strategy", cfg.Engine.Strategy),
	)

	latencyObs := observers.NewLatencyObserver(slog.Default())
	logObs := observers.NewLoggerObserver(slog.Default())
	obsList := []metrics.Observer{latencyObs, logObs}
	var timelineObs *observers.TimelineObserver
	var usageObs *observers.UsageObserver
	if dir := strings.TrimSpace(cfg.Observability.ArtifactsDir); dir != "" {
		if cfg.Observability.RetentionDays > 0 {
			_, _ = observers.PurgeArtifacts(dir, time.Duration(cfg.Observability.RetentionDays)*24*time.Hour)
		}
		timelineObs = observers.NewTimelineObserver(dir)
		usageObs = observers.NewUsageObserver(dir)
		obsList = append(obsList, timelineObs, usageObs)
	}
	obsList = append(obsList, opts.ExtraObservers...)
	asyncObs := metrics.NewAsyncObserver(observers.NewMultiObserver(obsList...), 2048)

	providers := opts.Providers
	if providers == nil {
		providers = NewProviderRegistry()
	}

	s := &Service{
		cfg:       cfg,
		transport: opts.Transport,
		providers: providers,
		asyncObs:  asyncObs,
		timeline:  timelineObs,
		usage:     usageObs,
		log:       log,
		sessions:  make(map[string]*session),
	}

	hooks := runner.Hooks{
		OnStart: func() {
			fields := []any{"message", "scribe ready"}
			if rr, ok := opts.Transport.(transports.ReadyReporter); ok {
				for k, v := range rr.ReadyFields() {
					fields = append(fields, k, v)
				}
			}
			log.Info("service ready", fields...)
		},
		OnStop: func() {
			asyncObs.Close()
			if timelineObs != nil {
				_ = timelineObs.Close()
			}
			if usageObs != nil {
				_ = usageObs.Close()
			}
			log.Info("shutdown",
				slog.Int("goroutines", runtime.NumGoroutine()),
				slog.Int("active_sessions", s.sessionCount()))
		},
	}

	drainer := runner.DrainerFunc(func() error {
		if opts.Transport != nil {
			_ = opts.Transport.Stop()
		}
		s.closeAllSessions()
		s.mu.Lock()
		dec := s.decoder
		s.decoder = nil
		s.mu.Unlock()
		if dec != nil {
			_ = dec.Close()
		}
		return nil
	})
	s.runner = runner.NewLifecycleRunner(drainer, hooks, 30*time.Second)
	return s
}

// Run starts the transport and routing loop, then blocks until ctx is done
// or Stop is called.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	if s.transport != nil {
		if err := s.transport.Start(runCtx); err != nil {
			cancel()
			return errorsx.Wrap(err, errorsx.ReasonTransportStart)
		}
		go s.routeTransport(runCtx)
	}
	return s.runner.Run(runCtx)
}

func (s *Service) Stop() error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return s.runner.Stop()
}

// DisplayedText returns the merged transcript of one live session, empty
// when the session is unknown.
func (s *Service) DisplayedText(sessionID string) string {
	s.mu.Lock()
	sess := s.sessions[sessionID]
	s.mu.Unlock()
	if sess == nil {
		return ""
	}
	return sess.displayed()
}

func (s *Service) sessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Service) routeTransport(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-s.transport.Recv():
			if !ok {
				return
			}
			s.routeFrame(ctx, f)
		}
	}
}

func (s *Service) routeFrame(ctx context.Context, f frames.Frame) {
	sessionID := f.Meta()[frames.MetaSessionID]
	if sessionID == "" {
		return
	}
	switch f.Kind() {
	case frames.KindAudio:
		af, ok := f.(frames.AudioFrame)
		if !ok {
			return
		}
		samples := s.convertAudio(af)
		frames.ReleaseAudioFrame(f)
		if len(samples) == 0 {
			return
		}
		sess := s.getOrCreate(ctx, sessionID)
		if sess == nil {
			return
		}
		sess.feed(samples)
	case frames.KindControl:
		cf, ok := f.(frames.ControlFrame)
		if !ok {
			return
		}
		switch cf.Code() {
		case frames.ControlReset:
			s.resetSession(sessionID)
		case frames.ControlDTMF:
			s.log.Debug("dtmf received",
				slog.String("session_id", sessionID),
				slog.String("digit", cf.Meta()[frames.MetaDTMFDigit]))
		}
	case frames.KindSystem:
		sf, ok := f.(frames.SystemFrame)
		if !ok {
			return
		}
		switch sf.Name() {
		case "session_start":
			_ = s.getOrCreate(ctx, sessionID)
		case "session_reconnect":
			if old := sf.Meta()[frames.MetaOldSessionID]; old != "" {
				s.endSession(old)
			}
		case "session_end":
			s.endSession(sessionID)
		}
	}
}

// convertAudio normalizes a transport audio frame to mono float32 at the
// engine sample rate. Phone frames arrive as 8 kHz mu-law.
func (s *Service) convertAudio(af frames.AudioFrame) []float32 {
	targetRate := s.cfg.Engine.SampleRate
	if targetRate <= 0 {
		targetRate = 16000
	}
	var samples []float32
	switch af.Meta()[frames.MetaEncoding] {
	case "mulaw":
		samples = audio.MuLawToFloat32(af.RawPayload())
	default:
		var err error
		samples, err = audio.PCM16ToFloat32(af.RawPayload())
		if err != nil {
			s.log.Warn("bad audio payload",
				slog.String("session_id", af.Meta()[frames.MetaSessionID]),
				slog.String("error", err.Error()))
			return nil
		}
	}
	if af.Rate() > 0 && af.Rate() != targetRate {
		samples = audio.Resample(samples, af.Rate(), targetRate)
	}
	return samples
}

func (s *Service) getOrCreate(ctx context.Context, sessionID string) *session {
	s.mu.Lock()
	if sess := s.sessions[sessionID]; sess != nil {
		s.mu.Unlock()
		return sess
	}
	s.mu.Unlock()

	sess, err := s.newSession(ctx, sessionID)
	if err != nil {
		s.log.Warn("session create failed",
			slog.String("session_id", sessionID),
			slog.String("reason_code", string(errorsx.Reason(err))),
			slog.String("error", err.Error()))
		return nil
	}

	s.mu.Lock()
	if existing := s.sessions[sessionID]; existing != nil {
		s.mu.Unlock()
		sess.stop()
		return existing
	}
	s.sessions[sessionID] = sess
	s.mu.Unlock()
	s.log.Info("session created", slog.String("session_id", sessionID))
	return sess
}

func (s *Service) newSession(ctx context.Context, sessionID string) (*session, error) {
	publish := func(text string) {
		tf := frames.NewTextFrame(sessionID, time.Now().UnixNano(), text, nil)
		if err := s.transport.Send(tf); err != nil {
			s.log.Warn("transcript send failed",
				slog.String("session_id", sessionID),
				slog.String("error", err.Error()))
		}
	}

	if s.providers.IsStreaming(s.cfg.Provider.Name) {
		streamer, err := s.providers.BuildStreamer(s.cfg.Provider.Name, s.cfg, sessionID)
		if err != nil {
			return nil, err
		}
		ss := transcriber.NewStreamSession(transcriber.StreamOptions{
			Streamer:   streamer,
			SampleRate: s.cfg.Engine.SampleRate,
			Observer:   s.asyncObs,
			SessionID:  sessionID,
		})
		ss.SetCallback(publish)
		if err := ss.Start(ctx); err != nil {
			return nil, err
		}
		return &session{
			id: sessionID,
			feed: func(samples []float32) {
				if err := ss.SendAudio(audio.Float32ToPCM16(samples)); err != nil {
					s.log.Warn("audio send failed",
						slog.String("session_id", sessionID),
						slog.String("error", err.Error()))
				}
			},
			stop:      func() { _ = ss.Close() },
			reset:     func() error { return errorsx.New(errorsx.ReasonResetWhileActive) },
			displayed: ss.DisplayedText,
		}, nil
	}

	decoder, err := s.sharedDecoder()
	if err != nil {
		return nil, err
	}
	engOpts := s.cfg.Engine.EngineOptions()
	engOpts.Decoder = decoder
	engOpts.Observer = s.asyncObs
	engOpts.SessionID = sessionID
	eng := transcriber.NewEngine(engOpts)
	eng.SetCallback(publish)
	if err := eng.Start(); err != nil {
		return nil, err
	}
	return &session{
		id:   sessionID,
		feed: eng.Process,
		stop: eng.Stop,
		reset: func() error {
			eng.Stop()
			if err := eng.Reset(); err != nil {
				return err
			}
			return eng.Start()
		},
		displayed: eng.DisplayedText,
	}, nil
}

// sharedDecoder builds the batch decoder once; all local sessions share it.
// Decoder implementations serialize their own passes.
func (s *Service) sharedDecoder() (asr.Decoder, error) {
	s.decoderOnce.Do(func() {
		s.decoder, s.decoderErr = s.providers.BuildDecoder(s.cfg.Provider.Name, s.cfg)
	})
	return s.decoder, s.decoderErr
}

// resetSession restarts a local engine session from a clean transcript.
func (s *Service) resetSession(sessionID string) {
	s.mu.Lock()
	sess := s.sessions[sessionID]
	s.mu.Unlock()
	if sess == nil {
		return
	}
	if err := sess.reset(); err != nil {
		s.log.Warn("session reset failed",
			slog.String("session_id", sessionID),
			slog.String("reason_code", string(errorsx.Reason(err))),
			slog.String("error", err.Error()))
		return
	}
	s.log.Info("session reset", slog.String("session_id", sessionID))
}

// endSession publishes the final transcript and tears the session down.
func (s *Service) endSession(sessionID string) {
	s.mu.Lock()
	sess := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	if sess == nil {
		return
	}
	if text := sess.displayed(); text != "" {
		tf := frames.NewTextFrame(sessionID, time.Now().UnixNano(), text, map[string]string{
			frames.MetaFinal: "true",
		})
		_ = s.transport.Send(tf)
	}
	sess.stop()
	s.log.Info("session ended", slog.String("session_id", sessionID))
}

func (s *Service) closeAllSessions() {
	s.mu.Lock()
	sessions := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.sessions = make(map[string]*session)
	s.mu.Unlock()
	for _, sess := range sessions {
		sess.stop()
	}
}
