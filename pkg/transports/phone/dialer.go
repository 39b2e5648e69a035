package phone

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/scribekit/scribe/pkg/resilience"
	"github.com/scribekit/scribe/pkg/transports"
)

type callCreator interface {
	CreateCall(params *api.CreateCallParams) (*api.ApiV2010Call, error)
}

// Dialer places outbound dictation calls via the Twilio REST API. The
// answered call hits the voice webhook, which bridges it into a media
// stream.
type Dialer struct {
	cfg    Config
	client callCreator
	retry  resilience.RetryPolicy
}

func NewDialer(cfg Config) *Dialer {
	return &Dialer{
		cfg:   cfg.withDefaults(),
		retry: resilience.NewRetryPolicy(2, 500*time.Millisecond),
	}
}

func (d *Dialer) Dial(ctx context.Context, to, from, url string) (string, error) {
	return d.DialWithOptions(ctx, to, from, url, transports.DialOptions{})
}

func (d *Dialer) DialWithOptions(ctx context.Context, to, from, url string, opts transports.DialOptions) (string, error) {
	if to == "" || from == "" {
		return "", errors.New("to/from required")
	}
	if d.cfg.AccountSID == "" || d.cfg.AuthToken == "" {
		return "", errors.New("missing twilio credentials")
	}
	if url == "" {
		url = d.voiceWebhookURL()
	}
	client := d.client
	if client == nil {
		rest := twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: d.cfg.AccountSID,
			Password: d.cfg.AuthToken,
		})
		client = rest.Api
	}
	params := &api.CreateCallParams{}
	params.SetTo(to)
	params.SetFrom(from)
	params.SetUrl(url)
	params.SetStatusCallback(d.statusCallbackURL())
	params.SetStatusCallbackEvent([]string{"completed"})
	if strings.TrimSpace(opts.SendDigits) != "" {
		params.SetSendDigits(opts.SendDigits)
	}
	// REST dials retry transient failures; ctx cancellation cuts the backoff.
	var resp *api.ApiV2010Call
	err := d.retry.DoWithContext(ctx, func() error {
		var callErr error
		resp, callErr = client.CreateCall(params)
		return callErr
	})
	if err != nil {
		return "", err
	}
	if resp == nil || resp.Sid == nil {
		return "", fmt.Errorf("missing call sid")
	}
	return *resp.Sid, nil
}

func (d *Dialer) voiceWebhookURL() string {
	return d.publicOrLocalURL(d.cfg.VoicePath)
}

func (d *Dialer) statusCallbackURL() string {
	return d.publicOrLocalURL(d.cfg.StatusCallbackPath)
}

func (d *Dialer) publicOrLocalURL(path string) string {
	if d.cfg.PublicURL != "" {
		return "https://" + normalizePublicURL(d.cfg.PublicURL) + path
	}
	addr := d.cfg.ServerAddr
	if addr == "" {
		addr = ":8080"
	}
	if addr[0] == ':' {
		addr = "localhost" + addr
	}
	return "http://" + addr + path
}
