package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/scribekit/scribe/pkg/asr"
)

// StreamerConfig scripts a streaming recognizer. On the first SendAudio
// the streamer emits Interims in order followed by Final, mimicking a
// remote service refining an utterance and then locking it in.
type StreamerConfig struct {
	Interims []string
	Final    string
	// StartErr makes Start fail, for exercising reconnect paths.
	StartErr error
	// FailAfterStart emits a terminal error result instead of transcripts.
	FailAfterStart error
}

// Streamer is a scripted asr.Streamer.
type Streamer struct {
	cfg StreamerConfig
	out chan asr.Result

	mu      sync.Mutex
	started bool
	emitted bool
	sent    int
}

func NewStreamer(cfg StreamerConfig) *Streamer {
	if cfg.Final == "" && len(cfg.Interims) == 0 {
		cfg.Final = "mock transcript"
	}
	return &Streamer{cfg: cfg, out: make(chan asr.Result, 16)}
}

func (s *Streamer) Name() string { return "mock" }

func (s *Streamer) Start(ctx context.Context) error {
	if s.cfg.StartErr != nil {
		return s.cfg.StartErr
	}
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	return nil
}

func (s *Streamer) SendAudio(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return errors.New("not started")
	}
	s.sent += len(pcm)
	if s.emitted {
		return nil
	}
	s.emitted = true
	if s.cfg.FailAfterStart != nil {
		s.out <- asr.Result{Err: s.cfg.FailAfterStart}
		return nil
	}
	for _, text := range s.cfg.Interims {
		s.out <- asr.Result{Text: text}
	}
	if s.cfg.Final != "" {
		s.out <- asr.Result{Text: s.cfg.Final, Final: true}
	}
	return nil
}

func (s *Streamer) Results() <-chan asr.Result { return s.out }

func (s *Streamer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}
	s.started = false
	close(s.out)
	return nil
}

// SentBytes reports the total PCM bytes pushed through SendAudio.
func (s *Streamer) SentBytes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent
}

var (
	_ asr.Decoder  = (*Decoder)(nil)
	_ asr.Streamer = (*Streamer)(nil)
)
