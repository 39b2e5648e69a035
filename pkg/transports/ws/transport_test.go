package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/scribekit/scribe/pkg/frames"
)

func dialTest(t *testing.T, server *httptest.Server, header http.Header) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func recvFrame(t *testing.T, tr *Transport) frames.Frame {
	t.Helper()
	select {
	case f := <-tr.Recv():
		return f
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for frame")
		return nil
	}
}

func TestAudioRoundTrip(t *testing.T) {
	tr := New(Config{})
	server := httptest.NewServer(tr)
	defer server.Close()

	conn := dialTest(t, server, nil)
	defer conn.Close()

	start := recvFrame(t, tr)
	sf, ok := start.(frames.SystemFrame)
	if !ok || sf.Name() != "session_start" {
		t.Fatalf("expected session_start, got %#v", start)
	}
	sessionID := sf.Meta()[frames.MetaSessionID]
	if sessionID == "" {
		t.Fatalf("expected session id on start frame")
	}

	payload := []byte{0x01, 0x02, 0x03, 0x04}
	if err := conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
		t.Fatalf("write: %v", err)
	}
	f := recvFrame(t, tr)
	af, ok := f.(frames.AudioFrame)
	if !ok {
		t.Fatalf("expected audio frame, got %#v", f)
	}
	if af.Meta()[frames.MetaSessionID] != sessionID {
		t.Fatalf("audio frame session mismatch")
	}
	if got := af.Data(); len(got) != len(payload) || got[0] != 0x01 || got[3] != 0x04 {
		t.Fatalf("unexpected audio payload %v", got)
	}
	if af.Rate() != 16000 {
		t.Fatalf("expected default rate 16000, got %d", af.Rate())
	}

	tf := frames.NewTextFrame(sessionID, time.Now().UnixNano(), "hello world", nil)
	if err := tr.Send(tf); err != nil {
		t.Fatalf("send: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var out transcriptMessage
	if err := json.Unmarshal(msg, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Type != "transcript" || out.Text != "hello world" {
		t.Fatalf("unexpected transcript message %+v", out)
	}
}

func TestResetControlMessage(t *testing.T) {
	tr := New(Config{})
	server := httptest.NewServer(tr)
	defer server.Close()

	conn := dialTest(t, server, nil)
	defer conn.Close()

	start := recvFrame(t, tr)
	sessionID := start.Meta()[frames.MetaSessionID]

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"reset"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	f := recvFrame(t, tr)
	cf, ok := f.(frames.ControlFrame)
	if !ok || cf.Code() != frames.ControlReset {
		t.Fatalf("expected reset control frame, got %#v", f)
	}
	if cf.Meta()[frames.MetaSessionID] != sessionID {
		t.Fatalf("control frame session mismatch")
	}
}

func TestSessionEndOnDisconnect(t *testing.T) {
	tr := New(Config{})
	server := httptest.NewServer(tr)
	defer server.Close()

	conn := dialTest(t, server, nil)
	_ = recvFrame(t, tr)
	conn.Close()

	f := recvFrame(t, tr)
	sf, ok := f.(frames.SystemFrame)
	if !ok || sf.Name() != "session_end" {
		t.Fatalf("expected session_end, got %#v", f)
	}
}

func TestSessionSendDuringClose(t *testing.T) {
	tr := New(Config{})
	server := httptest.NewServer(tr)
	defer server.Close()

	conn := dialTest(t, server, nil)
	defer conn.Close()
	start := recvFrame(t, tr)
	sessionID := start.Meta()[frames.MetaSessionID]

	sess := tr.session(sessionID)
	if sess == nil {
		t.Fatalf("session not registered")
	}

	// Hammer the write queue while the session closes underneath it. A
	// send racing the channel close would panic here.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			sess.enqueue([]byte(`{"type":"transcript","text":"x"}`))
		}
	}()
	time.Sleep(time.Millisecond)
	_ = sess.close()
	<-done

	// Enqueue after close and a second close both stay no-ops.
	sess.enqueue([]byte(`{"type":"transcript","text":"late"}`))
	_ = sess.close()
}

func TestOriginRejected(t *testing.T) {
	tr := New(Config{AllowedOrigins: []string{"https://allowed.example.com"}})
	server := httptest.NewServer(tr)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	_, _, err := websocket.DefaultDialer.Dial(url, header)
	if err == nil {
		t.Fatalf("expected handshake rejection for disallowed origin")
	}

	conn := dialTest(t, server, http.Header{"Origin": []string{"https://allowed.example.com"}})
	conn.Close()
}
