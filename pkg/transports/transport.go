// Package transports defines the I/O boundary that carries dictation
// audio in and transcript updates out, one frame stream per connected
// client.
package transports

import (
	"context"

	"github.com/scribekit/scribe/pkg/frames"
)

// Transport is a vendor-agnostic frame pipe. Implementations own their
// network lifecycle; Recv yields inbound audio/control/system frames and
// Send carries transcript text frames back out.
type Transport interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
	Recv() <-chan frames.Frame
	Send(frames.Frame) error
}

// OutboundDialer lets a transport place an outbound dictation call.
type OutboundDialer interface {
	Dial(ctx context.Context, to, from, url string) (callSID string, err error)
}

// DialOptions carries optional outbound dial settings.
type DialOptions struct {
	SendDigits string
}

// OutboundDialerWithOptions extends dialing with optional parameters.
type OutboundDialerWithOptions interface {
	DialWithOptions(ctx context.Context, to, from, url string, opts DialOptions) (callSID string, err error)
}

// ReadyReporter exposes readiness metadata such as webhook URLs, used
// for informational logging at startup.
type ReadyReporter interface {
	ReadyFields() map[string]any
}
