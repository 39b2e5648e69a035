// Package mock provides scripted recognizers for tests and local runs
// without a model or an API key.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/scribekit/scribe/pkg/asr"
)

// DecoderConfig scripts a batch decoder.
type DecoderConfig struct {
	// Result is returned for every decode when Results is empty.
	Result string
	// Results are returned one per decode call, in order; the last entry
	// repeats once the script runs out.
	Results []string
	// Delay simulates inference time. The decoder honors ctx during the
	// delay and returns ctx.Err, matching a cooperatively cancelled model.
	Delay time.Duration
	// Err is returned from every decode when set.
	Err error
}

// Decoder is a scripted asr.Decoder that records what it was asked to
// decode.
type Decoder struct {
	cfg DecoderConfig

	mu      sync.Mutex
	calls   int
	samples []int
	prompts []string
	closed  bool
}

func NewDecoder(cfg DecoderConfig) *Decoder {
	if cfg.Result == "" && len(cfg.Results) == 0 {
		cfg.Result = "mock transcript"
	}
	return &Decoder{cfg: cfg}
}

func (d *Decoder) Name() string { return "mock" }

func (d *Decoder) Decode(ctx context.Context, samples []float32, opts asr.DecodeOptions) (string, error) {
	if d.cfg.Delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(d.cfg.Delay):
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	d.mu.Lock()
	idx := d.calls
	d.calls++
	d.samples = append(d.samples, len(samples))
	d.prompts = append(d.prompts, opts.Prompt)
	d.mu.Unlock()

	if d.cfg.Err != nil {
		return "", d.cfg.Err
	}
	if len(d.cfg.Results) > 0 {
		if idx >= len(d.cfg.Results) {
			idx = len(d.cfg.Results) - 1
		}
		return d.cfg.Results[idx], nil
	}
	return d.cfg.Result, nil
}

func (d *Decoder) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

// Calls returns how many decode passes completed.
func (d *Decoder) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// SampleCounts returns the snapshot length of each decode pass.
func (d *Decoder) SampleCounts() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]int(nil), d.samples...)
}

// Prompts returns the context hint of each decode pass.
func (d *Decoder) Prompts() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.prompts...)
}

// Closed reports whether Close was called.
func (d *Decoder) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}
