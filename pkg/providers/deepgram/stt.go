// Package deepgram adapts the Deepgram live transcription WebSocket API
// to the asr.Streamer contract.
package deepgram

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"

	"github.com/scribekit/scribe/pkg/asr"
	"github.com/scribekit/scribe/pkg/errorsx"
	"github.com/scribekit/scribe/pkg/logging"
)

type Config struct {
	APIKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`
	Language   string `mapstructure:"language"`
	SampleRate int    `mapstructure:"sample_rate"`
	Encoding   string `mapstructure:"encoding"`
	Interim    *bool  `mapstructure:"interim"`
	SessionID  string `mapstructure:"session_id"`
}

// Streamer feeds PCM16 audio to Deepgram over a callback WebSocket client
// and surfaces interim and final hypotheses as asr.Results.
type Streamer struct {
	cfg     Config
	interim bool
	log     *slog.Logger
	out     chan asr.Result

	dgClient   *client.WSCallback
	cancel     context.CancelFunc
	pipeReader *io.PipeReader
	pipeWriter *io.PipeWriter
	metaLogged bool
}

func New(cfg Config) *Streamer {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Encoding == "" {
		cfg.Encoding = "linear16"
	}
	interim := true
	if cfg.Interim != nil {
		interim = *cfg.Interim
	}
	return &Streamer{
		cfg:     cfg,
		interim: interim,
		log:     logging.Component("deepgram").With(slog.String("session_id", cfg.SessionID)),
		out:     make(chan asr.Result, 256),
	}
}

func (s *Streamer) Name() string { return "deepgram" }

func (s *Streamer) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.pipeReader, s.pipeWriter = io.Pipe()

	clientOptions := &interfaces.ClientOptions{
		EnableKeepAlive: true,
	}
	transcriptOptions := &interfaces.LiveTranscriptionOptions{
		Model:          s.cfg.Model,
		Language:       s.cfg.Language,
		Encoding:       s.cfg.Encoding,
		SampleRate:     s.cfg.SampleRate,
		InterimResults: s.interim,
		SmartFormat:    true,
	}

	s.log.Info("connecting",
		slog.String("model", s.cfg.Model),
		slog.Int("sample_rate", s.cfg.SampleRate),
		slog.Bool("interim", s.interim))

	dgClient, err := client.NewWSUsingCallback(runCtx, s.cfg.APIKey, clientOptions, transcriptOptions, &callback{parent: s})
	if err != nil {
		cancel()
		return errorsx.Wrap(err, errorsx.ReasonStreamConnect)
	}
	s.dgClient = dgClient

	if connected := s.dgClient.Connect(); !connected {
		cancel()
		return errorsx.Wrap(fmt.Errorf("deepgram connection failed"), errorsx.ReasonStreamConnect)
	}

	go func() {
		if err := s.dgClient.Stream(s.pipeReader); err != nil && runCtx.Err() == nil {
			s.log.Warn("stream ended",
				slog.String("reason_code", string(errorsx.ReasonStreamClosed)),
				slog.String("error", err.Error()))
		}
	}()
	return nil
}

func (s *Streamer) SendAudio(pcm []byte) error {
	if s.pipeWriter == nil {
		return errorsx.New(errorsx.ReasonStreamSend)
	}
	_, err := s.pipeWriter.Write(pcm)
	return errorsx.Wrap(err, errorsx.ReasonStreamSend)
}

func (s *Streamer) Results() <-chan asr.Result { return s.out }

func (s *Streamer) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.pipeWriter != nil {
		_ = s.pipeWriter.Close()
	}
	if s.dgClient != nil {
		s.dgClient.Stop()
	}
	return nil
}

func (s *Streamer) emit(res asr.Result) {
	select {
	case s.out <- res:
	default:
		s.log.Warn("result channel full, dropping hypothesis")
	}
}

type callback struct {
	parent *Streamer
}

func (c *callback) Open(or *msginterfaces.OpenResponse) error {
	c.parent.log.Info("connection opened")
	return nil
}

func (c *callback) Message(mr *msginterfaces.MessageResponse) error {
	if len(mr.Channel.Alternatives) == 0 {
		return nil
	}
	text := mr.Channel.Alternatives[0].Transcript
	if text == "" {
		return nil
	}
	final := mr.IsFinal || mr.SpeechFinal
	c.parent.log.Debug("hypothesis",
		slog.String("text", logging.Clip(text)),
		slog.Bool("final", final))
	c.parent.emit(asr.Result{Text: text, Final: final})
	return nil
}

func (c *callback) Metadata(md *msginterfaces.MetadataResponse) error {
	if !c.parent.metaLogged {
		c.parent.metaLogged = true
		c.parent.log.Info("metadata received", slog.String("request_id", md.RequestID))
	}
	return nil
}

func (c *callback) SpeechStarted(*msginterfaces.SpeechStartedResponse) error { return nil }

func (c *callback) UtteranceEnd(*msginterfaces.UtteranceEndResponse) error { return nil }

func (c *callback) Close(*msginterfaces.CloseResponse) error {
	c.parent.log.Info("connection closed")
	return nil
}

func (c *callback) Error(er *msginterfaces.ErrorResponse) error {
	c.parent.log.Warn("remote error",
		slog.String("error_code", er.ErrCode),
		slog.String("error_message", er.ErrMsg))
	c.parent.emit(asr.Result{Err: fmt.Errorf("deepgram: %s: %s", er.ErrCode, er.ErrMsg)})
	return nil
}

func (c *callback) UnhandledEvent(data []byte) error {
	c.parent.log.Debug("unhandled event", slog.Int("bytes", len(data)))
	return nil
}

var _ asr.Streamer = (*Streamer)(nil)
