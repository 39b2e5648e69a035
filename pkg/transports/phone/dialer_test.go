package phone

import (
	"context"
	"errors"
	"testing"
	"time"

	api "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/scribekit/scribe/pkg/resilience"
	"github.com/scribekit/scribe/pkg/transports"
)

type stubCreator struct {
	last     *api.CreateCallParams
	sid      string
	err      error
	failures int
	calls    int
}

func (s *stubCreator) CreateCall(params *api.CreateCallParams) (*api.ApiV2010Call, error) {
	s.calls++
	s.last = params
	if s.failures > 0 {
		s.failures--
		return nil, errors.New("temporarily unavailable")
	}
	if s.err != nil {
		return nil, s.err
	}
	return &api.ApiV2010Call{Sid: &s.sid}, nil
}

func TestDialerDialUsesDefaults(t *testing.T) {
	stub := &stubCreator{sid: "CA123"}
	cfg := Config{
		AccountSID: "AC1",
		AuthToken:  "token",
		PublicURL:  "https://example.com",
	}
	d := NewDialer(cfg)
	d.client = stub

	sid, err := d.Dial(context.Background(), "+100", "+200", "")
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	if sid != "CA123" {
		t.Fatalf("expected sid CA123, got %s", sid)
	}
	if stub.last == nil || stub.last.To == nil || *stub.last.To != "+100" {
		t.Fatalf("expected To param")
	}
	if stub.last.From == nil || *stub.last.From != "+200" {
		t.Fatalf("expected From param")
	}
	if stub.last.Url == nil || *stub.last.Url != "https://example.com/voice" {
		t.Fatalf("expected default webhook url, got %v", stub.last.Url)
	}
	if stub.last.StatusCallback == nil || *stub.last.StatusCallback != "https://example.com/status" {
		t.Fatalf("expected status callback url, got %v", stub.last.StatusCallback)
	}
}

func TestDialerDialUsesOverrideURL(t *testing.T) {
	stub := &stubCreator{sid: "CA999"}
	cfg := Config{AccountSID: "AC1", AuthToken: "token"}
	d := NewDialer(cfg)
	d.client = stub

	override := "https://override.example.com/voice"
	_, err := d.Dial(context.Background(), "+100", "+200", override)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	if stub.last == nil || stub.last.Url == nil || *stub.last.Url != override {
		t.Fatalf("expected override url")
	}
}

func TestDialerDialWithOptionsSendDigits(t *testing.T) {
	stub := &stubCreator{sid: "CA777"}
	cfg := Config{AccountSID: "AC1", AuthToken: "token"}
	d := NewDialer(cfg)
	d.client = stub

	_, err := d.DialWithOptions(context.Background(), "+100", "+200", "https://example.com/voice", transports.DialOptions{SendDigits: "W123#"})
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	if stub.last == nil || stub.last.SendDigits == nil || *stub.last.SendDigits != "W123#" {
		t.Fatalf("expected SendDigits param")
	}
}

func TestDialerRetriesTransientFailures(t *testing.T) {
	stub := &stubCreator{sid: "CA321", failures: 2}
	d := NewDialer(Config{AccountSID: "AC1", AuthToken: "token", PublicURL: "https://example.com"})
	d.client = stub
	d.retry = resilience.NewRetryPolicy(2, time.Millisecond)

	sid, err := d.Dial(context.Background(), "+100", "+200", "")
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	if sid != "CA321" {
		t.Fatalf("expected sid CA321, got %s", sid)
	}
	if stub.calls != 3 {
		t.Fatalf("expected 2 retries then success, got %d attempts", stub.calls)
	}
}

func TestDialerStopsRetryOnContextCancel(t *testing.T) {
	stub := &stubCreator{sid: "CA000", failures: 5}
	d := NewDialer(Config{AccountSID: "AC1", AuthToken: "token"})
	d.client = stub
	d.retry = resilience.NewRetryPolicy(5, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := d.Dial(ctx, "+100", "+200", "https://example.com/voice"); err == nil {
		t.Fatalf("expected error on cancelled context")
	}
	if stub.calls != 0 {
		t.Fatalf("cancelled dial must not hit the API, got %d attempts", stub.calls)
	}
}

func TestDialerRequiresCredentials(t *testing.T) {
	d := NewDialer(Config{})
	if _, err := d.Dial(context.Background(), "+100", "+200", ""); err == nil {
		t.Fatalf("expected error without credentials")
	}
	d = NewDialer(Config{AccountSID: "AC1", AuthToken: "token"})
	if _, err := d.Dial(context.Background(), "", "+200", ""); err == nil {
		t.Fatalf("expected error without to number")
	}
}
