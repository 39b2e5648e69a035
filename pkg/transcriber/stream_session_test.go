package transcriber

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/scribekit/scribe/pkg/errorsx"
	"github.com/scribekit/scribe/pkg/providers/mock"
	"github.com/scribekit/scribe/pkg/resilience"
)

func TestStreamSessionFoldsInterimAndFinal(t *testing.T) {
	st := mock.NewStreamer(mock.StreamerConfig{
		Interims: []string{"buy", "buy milk"},
		Final:    "buy milk tomorrow",
	})
	sess := NewStreamSession(StreamOptions{Streamer: st})
	cap := newPublishCapture()
	sess.SetCallback(cap.callback)

	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer sess.Close()

	if err := sess.SendAudio(make([]byte, 3200)); err != nil {
		t.Fatalf("send: %v", err)
	}

	if got := cap.wait(t); got != "buy" {
		t.Fatalf("expected first interim, got %q", got)
	}
	if got := cap.wait(t); got != "buy milk" {
		t.Fatalf("interim must replace, not append, got %q", got)
	}
	if got := cap.wait(t); got != "buy milk tomorrow" {
		t.Fatalf("expected final, got %q", got)
	}
	// The final is confirmed text now; partial is clear.
	if sess.DisplayedText() != "buy milk tomorrow" {
		t.Fatalf("unexpected displayed %q", sess.DisplayedText())
	}
	if sec := sess.RecordingSeconds(); sec < 0.09 || sec > 0.11 {
		t.Fatalf("unexpected recording seconds %v", sec)
	}
}

func TestStreamSessionRetriesConnect(t *testing.T) {
	st := mock.NewStreamer(mock.StreamerConfig{StartErr: errors.New("refused")})
	sess := NewStreamSession(StreamOptions{
		Streamer: st,
		Retry:    resilience.NewRetryPolicy(2, time.Millisecond),
	})
	err := sess.Start(context.Background())
	if err == nil {
		t.Fatalf("expected connect failure")
	}
	if !errorsx.HasReason(err, errorsx.ReasonStreamConnect) {
		t.Fatalf("expected stream_connect reason, got %v", err)
	}
	// A failed start leaves the session reusable.
	if err := sess.Close(); err != nil {
		t.Fatalf("close after failed start: %v", err)
	}
}

func TestStreamSessionCircuitOpenRejectsStart(t *testing.T) {
	breaker := resilience.NewCircuitBreaker(1, time.Minute)
	breaker.OnFailure()
	sess := NewStreamSession(StreamOptions{
		Streamer: mock.NewStreamer(mock.StreamerConfig{}),
		Breaker:  breaker,
	})
	err := sess.Start(context.Background())
	if !errorsx.HasReason(err, errorsx.ReasonStreamCircuitOpen) {
		t.Fatalf("expected stream_circuit_open, got %v", err)
	}
}

func TestStreamSessionTerminalErrorStopsConsumer(t *testing.T) {
	st := mock.NewStreamer(mock.StreamerConfig{FailAfterStart: errors.New("upstream died")})
	sess := NewStreamSession(StreamOptions{Streamer: st})
	cap := newPublishCapture()
	sess.SetCallback(cap.callback)

	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := sess.SendAudio(make([]byte, 320)); err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case <-sess.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("consumer did not exit on terminal stream error")
	}
	if cap.count() != 0 {
		t.Fatalf("error result must not publish text, got %v", cap.texts)
	}
}

func TestStreamSessionCloseIsIdempotent(t *testing.T) {
	sess := NewStreamSession(StreamOptions{Streamer: mock.NewStreamer(mock.StreamerConfig{})})
	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
