// Package asr defines the vendor-agnostic speech recognition contracts.
// Batch decoders (whisper.cpp) implement Decoder; connection-oriented
// services (Deepgram) implement Streamer. The transcriber package drives
// either one without knowing the vendor behind it.
package asr

import (
	"context"

	"github.com/scribekit/scribe/pkg/errorsx"
)

// ErrNotBuilt is returned by providers whose native backend was not
// compiled into this binary.
var ErrNotBuilt = errorsx.New(errorsx.ReasonDecoderInit)

// DecodeOptions carries per-call hints for a batch decode pass.
type DecodeOptions struct {
	// Language is a BCP-47 hint ("en", "id"). Empty lets the model decide.
	Language string
	// Prompt seeds the decoder with trailing context from earlier passes.
	Prompt string
}

// Decoder transcribes a complete audio snapshot in one call.
type Decoder interface {
	// Name returns the provider name for logging/metrics.
	Name() string
	// Decode transcribes mono float32 samples. A canceled ctx aborts the
	// pass; callers discard any partial output in that case.
	Decode(ctx context.Context, samples []float32, opts DecodeOptions) (string, error)
	// Close releases model resources.
	Close() error
}

// Result is one transcription update from a Streamer.
type Result struct {
	// Text is the hypothesis for the current utterance.
	Text string
	// Final marks text that the service will not revise again.
	Final bool
	// Err reports a terminal stream failure. Text is empty when set.
	Err error
}

// Streamer feeds audio to a remote service and yields incremental results.
type Streamer interface {
	// Name returns the provider name for logging/metrics.
	Name() string
	// Start opens the connection.
	Start(ctx context.Context) error
	// SendAudio writes one chunk of PCM16 little-endian audio.
	SendAudio(pcm []byte) error
	// Results returns the result channel. Closed when the stream ends.
	Results() <-chan Result
	// Close shuts the connection down.
	Close() error
}

// Config contains vendor-agnostic session configuration.
type Config struct {
	SessionID  string
	TraceID    string
	SampleRate int
	Language   string
}
