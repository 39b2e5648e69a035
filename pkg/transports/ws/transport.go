// Package ws serves dictation over a WebSocket: binary messages carry
// PCM16 audio in, JSON messages carry transcript updates out. One
// session per connection.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/scribekit/scribe/pkg/errorsx"
	"github.com/scribekit/scribe/pkg/frames"
	"github.com/scribekit/scribe/pkg/logging"
)

type Config struct {
	ServerAddr     string   `mapstructure:"server_addr"`
	Path           string   `mapstructure:"path"`
	SampleRate     int      `mapstructure:"sample_rate"`
	AllowAnyOrigin bool     `mapstructure:"allow_any_origin"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

func (c Config) withDefaults() Config {
	if c.ServerAddr == "" {
		c.ServerAddr = ":8080"
	}
	if c.Path == "" {
		c.Path = "/dictate"
	}
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if !c.AllowAnyOrigin && len(c.AllowedOrigins) == 0 {
		c.AllowAnyOrigin = true
	}
	return c
}

// clientMessage is the JSON a connected client may send alongside binary
// audio. Only control verbs travel this way.
type clientMessage struct {
	Type string `json:"type"`
}

// transcriptMessage is the JSON pushed to the client on every publish.
type transcriptMessage struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Final bool   `json:"final,omitempty"`
}

type Transport struct {
	cfg      Config
	log      *slog.Logger
	server   *http.Server
	upgrader websocket.Upgrader
	recvCh   chan frames.Frame

	mu       sync.Mutex
	sessions map[string]*session

	draining atomic.Bool
}

func New(cfg Config) *Transport {
	cfg = cfg.withDefaults()
	t := &Transport{
		cfg: cfg,
		log: logging.Component("ws_transport"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		recvCh:   make(chan frames.Frame, 512),
		sessions: make(map[string]*session),
	}
	t.upgrader.CheckOrigin = t.checkOrigin
	return t
}

func (t *Transport) Name() string { return "ws" }

func (t *Transport) Recv() <-chan frames.Frame { return t.recvCh }

func (t *Transport) ReadyFields() map[string]any {
	return map[string]any{
		"addr": t.cfg.ServerAddr,
		"path": t.cfg.Path,
	}
}

func (t *Transport) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	mux := http.NewServeMux()
	mux.Handle(t.cfg.Path, t)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	t.server = &http.Server{
		Addr:              t.cfg.ServerAddr,
		ReadHeaderTimeout: 5 * time.Second,
		Handler:           mux,
	}
	go func() {
		<-ctx.Done()
		_ = t.server.Close()
	}()
	go func() {
		if err := t.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.log.Error("server error",
				slog.String("reason_code", string(errorsx.ReasonTransportStart)),
				slog.String("error", err.Error()))
		}
	}()
	return nil
}

func (t *Transport) Stop() error {
	t.draining.Store(true)
	if t.server != nil {
		_ = t.server.Close()
	}
	t.mu.Lock()
	for _, sess := range t.sessions {
		_ = sess.close()
	}
	t.sessions = make(map[string]*session)
	t.mu.Unlock()
	close(t.recvCh)
	return nil
}

// ServeHTTP upgrades a connection and pumps its messages until it closes.
func (t *Transport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if t.draining.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sessionID := uuid.NewString()
	traceID := uuid.NewString()
	sess := &session{conn: conn, sendCh: make(chan []byte, 256)}
	t.mu.Lock()
	t.sessions[sessionID] = sess
	t.mu.Unlock()
	go sess.loop()

	meta := map[string]string{
		frames.MetaTraceID: traceID,
		frames.MetaSource:  "transport",
	}
	nonBlockingSend(t.recvCh, frames.NewSystemFrame(sessionID, time.Now().UnixNano(), "session_start", meta))
	t.log.Info("client connected", slog.String("session_id", sessionID))

	for {
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			break
		}
		switch msgType {
		case websocket.BinaryMessage:
			af := frames.NewAudioFrameFromPool(sessionID, time.Now().UnixNano(), payload, t.cfg.SampleRate, 1, map[string]string{
				frames.MetaTraceID:  traceID,
				frames.MetaEncoding: "pcm16",
			})
			nonBlockingSend(t.recvCh, af)
		case websocket.TextMessage:
			var msg clientMessage
			if err := json.Unmarshal(payload, &msg); err != nil {
				continue
			}
			if msg.Type == "reset" {
				cf := frames.NewControlFrame(sessionID, time.Now().UnixNano(), frames.ControlReset, map[string]string{
					frames.MetaTraceID: traceID,
				})
				nonBlockingSend(t.recvCh, cf)
			}
		}
	}

	nonBlockingSend(t.recvCh, frames.NewSystemFrame(sessionID, time.Now().UnixNano(), "session_end", map[string]string{
		frames.MetaTraceID: traceID,
	}))
	t.detach(sessionID)
	t.log.Info("client disconnected", slog.String("session_id", sessionID))
}

// Send pushes a transcript text frame to the session it belongs to.
// Frames of other kinds are ignored.
func (t *Transport) Send(f frames.Frame) error {
	tf, ok := f.(frames.TextFrame)
	if !ok {
		return nil
	}
	sessionID := tf.Meta()[frames.MetaSessionID]
	sess := t.session(sessionID)
	if sess == nil {
		return nil
	}
	msg := transcriptMessage{
		Type:  "transcript",
		Text:  tf.Text(),
		Final: tf.Meta()[frames.MetaFinal] == "true",
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return errorsx.Wrap(err, errorsx.ReasonTransportSend)
	}
	sess.enqueue(b)
	return nil
}

func (t *Transport) session(sessionID string) *session {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessions[sessionID]
}

func (t *Transport) detach(sessionID string) {
	t.mu.Lock()
	sess := t.sessions[sessionID]
	delete(t.sessions, sessionID)
	t.mu.Unlock()
	if sess != nil {
		_ = sess.close()
	}
}

func (t *Transport) checkOrigin(r *http.Request) bool {
	if t.cfg.AllowAnyOrigin {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	origin = strings.TrimRight(origin, "/")
	originHost := strings.TrimPrefix(origin, "https://")
	originHost = strings.TrimPrefix(originHost, "http://")
	for _, allowed := range t.cfg.AllowedOrigins {
		a := strings.TrimRight(strings.TrimSpace(allowed), "/")
		if a == "" {
			continue
		}
		if strings.HasPrefix(a, "http://") || strings.HasPrefix(a, "https://") {
			if strings.EqualFold(a, origin) {
				return true
			}
			continue
		}
		if strings.EqualFold(a, originHost) {
			return true
		}
	}
	return false
}

// session owns the write side of one connection. A dedicated goroutine
// serializes writes; enqueue drops when the client cannot keep up, since
// a newer transcript update supersedes a lost one anyway.
type session struct {
	conn   *websocket.Conn
	sendCh chan []byte

	mu     sync.Mutex
	closed bool
}

// enqueue and close share a mutex so a send can never race the channel
// close. The drop branch keeps the lock hold bounded.
func (s *session) enqueue(msg []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.sendCh <- msg:
	default:
	}
}

func (s *session) loop() {
	for msg := range s.sendCh {
		_ = s.conn.WriteMessage(websocket.TextMessage, msg)
	}
}

func (s *session) close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.sendCh)
	}
	s.mu.Unlock()
	return s.conn.Close()
}

func nonBlockingSend(ch chan frames.Frame, f frames.Frame) {
	select {
	case ch <- f:
	default:
	}
}
