// Package phone carries dictation calls over Twilio media streams: the
// voice webhook answers with a <Connect><Stream> TwiML, the stream
// WebSocket delivers base64 mu-law audio, and a REST dialer places
// outbound dictation calls. The phone is an input-only surface; there
// is no audio or text path back to the caller.
package phone

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	twilioclient "github.com/twilio/twilio-go/client"

	"github.com/scribekit/scribe/pkg/errorsx"
	"github.com/scribekit/scribe/pkg/frames"
	"github.com/scribekit/scribe/pkg/logging"
)

type Config struct {
	ServerAddr         string `mapstructure:"server_addr"`
	PublicURL          string `mapstructure:"public_url"`
	AuthToken          string `mapstructure:"auth_token"`
	AccountSID         string `mapstructure:"account_sid"`
	VoicePath          string `mapstructure:"voice_path"`
	WebsocketPath      string `mapstructure:"ws_path"`
	StatusCallbackPath string `mapstructure:"status_callback_path"`
	VoiceGreeting      string `mapstructure:"voice_greeting"`
}

func (c Config) withDefaults() Config {
	if c.ServerAddr == "" {
		c.ServerAddr = ":8080"
	}
	if c.VoicePath == "" {
		c.VoicePath = "/voice"
	}
	if c.WebsocketPath == "" {
		c.WebsocketPath = "/ws"
	}
	if c.StatusCallbackPath == "" {
		c.StatusCallbackPath = "/status"
	}
	return c
}

type Transport struct {
	cfg      Config
	log      *slog.Logger
	server   *http.Server
	upgrader websocket.Upgrader
	recvCh   chan frames.Frame

	mu          sync.Mutex
	conns       map[string]*websocket.Conn
	callSIDs    map[string]string
	callStreams map[string]string
	traceIDs    map[string]string
	fromNumbers map[string]string

	draining atomic.Bool
}

func New(cfg Config) *Transport {
	cfg = cfg.withDefaults()
	return &Transport{
		cfg: cfg,
		log: logging.Component("phone_transport"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		recvCh:      make(chan frames.Frame, 512),
		conns:       make(map[string]*websocket.Conn),
		callSIDs:    make(map[string]string),
		callStreams: make(map[string]string),
		traceIDs:    make(map[string]string),
		fromNumbers: make(map[string]string),
	}
}

func (t *Transport) Name() string { return "phone" }

func (t *Transport) Recv() <-chan frames.Frame { return t.recvCh }

func (t *Transport) ReadyFields() map[string]any {
	return map[string]any{
		"webhook_url":         t.voiceWebhookURL(),
		"status_callback_url": t.statusCallbackURL(),
	}
}

func (t *Transport) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	mux := http.NewServeMux()
	mux.HandleFunc(t.cfg.VoicePath, t.handleVoice)
	mux.Handle(t.cfg.WebsocketPath, t)
	mux.HandleFunc(t.cfg.StatusCallbackPath, t.handleStatusCallback)
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
	for _, conn := range t.conns {
		_ = conn.Close()
	}
	t.conns = make(map[string]*websocket.Conn)
	t.mu.Unlock()
	close(t.recvCh)
	return nil
}

// ServeHTTP handles the Twilio media-stream WebSocket. The stream SID
// becomes the session ID for every frame of the call.
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

	var sessionID string
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var evt StreamEvent
		if err := json.Unmarshal(msg, &evt); err != nil {
			continue
		}
		switch evt.Event {
		case "start":
			if evt.Start == nil {
				continue
			}
			sessionID = evt.Start.StreamSID
			traceID := uuid.NewString()
			oldSession, oldConn := t.attach(sessionID, evt.Start.CallSID, traceID, evt.Start.From, conn)
			if oldConn != nil {
				_ = oldConn.Close()
			}
			meta := t.metaFor(sessionID)
			meta[frames.MetaSource] = "transport"
			nonBlockingSend(t.recvCh, frames.NewSystemFrame(sessionID, time.Now().UnixNano(), "session_start", meta))
			if oldSession != "" {
				reMeta := t.metaFor(sessionID)
				reMeta[frames.MetaOldSessionID] = oldSession
				nonBlockingSend(t.recvCh, frames.NewSystemFrame(sessionID, time.Now().UnixNano(), "session_reconnect", reMeta))
			}
		case "media":
			if evt.Media == nil || sessionID == "" {
				continue
			}
			payload, err := base64.StdEncoding.DecodeString(evt.Media.Payload)
			if err != nil {
				continue
			}
			meta := t.metaFor(sessionID)
			meta[frames.MetaEncoding] = "mulaw"
			meta[frames.MetaFormat] = "ulaw_8000_1ch_8bit"
			nonBlockingSend(t.recvCh, frames.NewAudioFrame(sessionID, time.Now().UnixNano(), payload, 8000, 1, meta))
		case "dtmf":
			if evt.DTMF == nil || sessionID == "" {
				continue
			}
			meta := t.metaFor(sessionID)
			meta[frames.MetaDTMFDigit] = evt.DTMF.Digit
			nonBlockingSend(t.recvCh, frames.NewControlFrame(sessionID, time.Now().UnixNano(), frames.ControlDTMF, meta))
		case "stop":
			t.emitSessionEnd(sessionID, "completed")
			t.detach(sessionID)
			return
		}
	}
	if sessionID != "" {
		t.emitSessionEnd(sessionID, "failed")
		t.detach(sessionID)
	}
}

// Send is a no-op: the caller hears nothing back, transcripts surface
// elsewhere (status callbacks, the consuming application).
func (t *Transport) Send(frames.Frame) error { return nil }

// Dial places an outbound dictation call.
func (t *Transport) Dial(ctx context.Context, to, from, url string) (string, error) {
	return NewDialer(t.cfg).Dial(ctx, to, from, url)
}

func (t *Transport) handleVoice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if t.cfg.AuthToken != "" && !t.validateRequest(r) {
		t.log.Warn("invalid webhook signature",
			slog.String("reason_code", string(errorsx.ReasonTransportInvalidSignature)))
		w.WriteHeader(http.StatusForbidden)
		return
	}
	wsURL := t.websocketURL(r)
	var twiml string
	if greeting := strings.TrimSpace(t.cfg.VoiceGreeting); greeting != "" {
		twiml = `<Response><Say>` + xmlEscape(greeting) + `</Say><Connect><Stream url="` + wsURL + `"/></Connect></Response>`
	} else {
		twiml = `<Response><Connect><Stream url="` + wsURL + `"/></Connect></Response>`
	}
	w.Header().Set("Content-Type", "text/xml")
	_, _ = w.Write([]byte(twiml))
}

func (t *Transport) handleStatusCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if t.cfg.AuthToken != "" && !t.validateRequest(r) {
		t.log.Warn("invalid status signature",
			slog.String("reason_code", string(errorsx.ReasonTransportInvalidSignature)))
		w.WriteHeader(http.StatusForbidden)
		return
	}
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	callSID := r.FormValue("CallSid")
	reason := normalizeCallEndReason(r.FormValue("CallStatus"))
	if reason == "" || callSID == "" {
		w.WriteHeader(http.StatusOK)
		return
	}
	sessionID := t.sessionForCall(callSID)
	if sessionID == "" {
		w.WriteHeader(http.StatusOK)
		return
	}
	t.emitSessionEnd(sessionID, reason)
	t.detach(sessionID)
	w.WriteHeader(http.StatusOK)
}

func (t *Transport) emitSessionEnd(sessionID, reason string) {
	if sessionID == "" {
		return
	}
	meta := t.metaFor(sessionID)
	meta[frames.MetaCallEndReason] = reason
	nonBlockingSend(t.recvCh, frames.NewSystemFrame(sessionID, time.Now().UnixNano(), "session_end", meta))
}

func (t *Transport) websocketURL(r *http.Request) string {
	if t.cfg.PublicURL != "" {
		return "wss://" + normalizePublicURL(t.cfg.PublicURL) + t.cfg.WebsocketPath
	}
	host := r.Host
	if host == "" {
		host = strings.TrimPrefix(t.cfg.ServerAddr, ":")
	}
	return "wss://" + host + t.cfg.WebsocketPath
}

func (t *Transport) voiceWebhookURL() string {
	return t.publicOrLocalURL(t.cfg.VoicePath)
}

func (t *Transport) statusCallbackURL() string {
	return t.publicOrLocalURL(t.cfg.StatusCallbackPath)
}

func (t *Transport) publicOrLocalURL(path string) string {
	if t.cfg.PublicURL != "" {
		return "https://" + normalizePublicURL(t.cfg.PublicURL) + path
	}
	addr := t.cfg.ServerAddr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr + path
}

func (t *Transport) attach(sessionID, callSID, traceID, from string, conn *websocket.Conn) (string, *websocket.Conn) {
	var oldSession string
	var oldConn *websocket.Conn
	t.mu.Lock()
	if callSID != "" {
		if existing := t.callStreams[callSID]; existing != "" && existing != sessionID {
			oldSession = existing
			oldConn = t.conns[existing]
			delete(t.conns, existing)
			delete(t.callSIDs, existing)
			delete(t.traceIDs, existing)
			delete(t.fromNumbers, existing)
		}
		t.callStreams[callSID] = sessionID
	}
	t.conns[sessionID] = conn
	t.callSIDs[sessionID] = callSID
	t.traceIDs[sessionID] = traceID
	if from != "" {
		t.fromNumbers[sessionID] = from
	}
	t.mu.Unlock()
	return oldSession, oldConn
}

func (t *Transport) detach(sessionID string) {
	t.mu.Lock()
	conn := t.conns[sessionID]
	callSID := t.callSIDs[sessionID]
	delete(t.conns, sessionID)
	delete(t.callSIDs, sessionID)
	delete(t.traceIDs, sessionID)
	delete(t.fromNumbers, sessionID)
	if callSID != "" && t.callStreams[callSID] == sessionID {
		delete(t.callStreams, callSID)
	}
	t.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

func (t *Transport) sessionForCall(callSID string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.callStreams[callSID]
}

func (t *Transport) metaFor(sessionID string) map[string]string {
	t.mu.Lock()
	defer t.mu.Unlock()
	meta := map[string]string{}
	if v := t.callSIDs[sessionID]; v != "" {
		meta[frames.MetaCallSID] = v
	}
	if v := t.traceIDs[sessionID]; v != "" {
		meta[frames.MetaTraceID] = v
	}
	if v := t.fromNumbers[sessionID]; v != "" {
		meta[frames.MetaFromNumber] = v
	}
	return meta
}

func (t *Transport) validateRequest(r *http.Request) bool {
	signature := r.Header.Get("X-Twilio-Signature")
	if signature == "" || t.cfg.AuthToken == "" {
		return false
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return false
	}
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))

	validator := twilioclient.NewRequestValidator(t.cfg.AuthToken)
	return validator.ValidateBody(t.requestURL(r), body, signature)
}

func (t *Transport) requestURL(r *http.Request) string {
	if t.cfg.PublicURL != "" {
		return strings.TrimRight(t.cfg.PublicURL, "/") + r.URL.RequestURI()
	}
	scheme := r.URL.Scheme
	if scheme == "" {
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		} else {
			scheme = "https"
		}
	}
	host := r.Host
	if host == "" {
		host = strings.TrimPrefix(t.cfg.ServerAddr, ":")
	}
	return scheme + "://" + host + r.URL.RequestURI()
}

func xmlEscape(in string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		"\"", "&quot;",
		"'", "&apos;",
	)
	return replacer.Replace(in)
}

func normalizeCallEndReason(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "queued", "ringing", "in-progress", "inprogress":
		return ""
	case "completed", "call_ended", "call-ended", "hangup":
		return "completed"
	case "busy":
		return "busy"
	case "no_answer", "noanswer", "no-answer":
		return "no_answer"
	case "failed", "error", "canceled", "cancelled":
		return "failed"
	default:
		return "unknown"
	}
}

func normalizePublicURL(v string) string {
	v = strings.TrimPrefix(v, "https://")
	v = strings.TrimPrefix(v, "http://")
	return strings.TrimRight(v, "/")
}

// StreamEvent is one message on the Twilio media-stream WebSocket.
type StreamEvent struct {
	Event string       `json:"event"`
	Start *StartEvent  `json:"start,omitempty"`
	Media *MediaEvent  `json:"media,omitempty"`
	DTMF  *DTMFEvent   `json:"dtmf,omitempty"`
	Stop  *StopPayload `json:"stop,omitempty"`
}

type StartEvent struct {
	CallSID   string `json:"callSid"`
	StreamSID string `json:"streamSid"`
	From      string `json:"from"`
}

type MediaEvent struct {
	Payload string `json:"payload"`
}

type DTMFEvent struct {
	Digit string `json:"digit"`
}

type StopPayload struct {
	Reason string `json:"reason"`
}

func nonBlockingSend(ch chan frames.Frame, f frames.Frame) {
	select {
	case ch <- f:
	default:
	}
}
