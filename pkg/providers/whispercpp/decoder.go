//go:build whisper_cpp

package whispercpp

import (
	"context"
	"io"
	"runtime"
	"strings"
	"sync"

	whisper "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/scribekit/scribe/pkg/asr"
	"github.com/scribekit/scribe/pkg/errorsx"
)

// Decoder wraps a loaded whisper.cpp model. The model is not safe for
// concurrent inference, so decode passes are serialized; the engine only
// issues one at a time anyway.
type Decoder struct {
	mu       sync.Mutex
	model    whisper.Model
	threads  uint
	language string
}

// New loads the model resolved from cfg.
func New(cfg Config) (asr.Decoder, error) {
	path, err := ResolveModelPath(cfg, nil)
	if err != nil {
		return nil, err
	}
	model, err := whisper.New(path)
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonDecoderInit)
	}
	return &Decoder{
		model:    model,
		threads:  uint(clampThreads(cfg.Threads, runtime.NumCPU())),
		language: cfg.Language,
	}, nil
}

func (d *Decoder) Name() string { return "whispercpp" }

// Decode transcribes the full snapshot. Cancellation rides the encoder
// begin hook: whisper polls it before each encoder run and stops when it
// reports false, which is how a stop request interrupts a long pass.
func (d *Decoder) Decode(ctx context.Context, samples []float32, opts asr.DecodeOptions) (string, error) {
	if len(samples) == 0 {
		return "", nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	wctx, err := d.model.NewContext()
	if err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonDecoderDecode)
	}
	wctx.SetThreads(d.threads)
	lang := opts.Language
	if lang == "" {
		lang = d.language
	}
	if lang != "" {
		_ = wctx.SetLanguage(lang)
	}
	if opts.Prompt != "" {
		wctx.SetInitialPrompt(opts.Prompt)
	}

	keepGoing := func() bool { return ctx.Err() == nil }
	if err := wctx.Process(samples, keepGoing, nil, nil); err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return "", cerr
		}
		return "", errorsx.Wrap(err, errorsx.ReasonDecoderDecode)
	}
	if cerr := ctx.Err(); cerr != nil {
		return "", cerr
	}

	var parts []string
	for {
		seg, err := wctx.NextSegment()
		if err != nil {
			if err != io.EOF {
				return "", errorsx.Wrap(err, errorsx.ReasonDecoderDecode)
			}
			break
		}
		if text := strings.TrimSpace(seg.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}

func (d *Decoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.model != nil {
		d.model.Close()
		d.model = nil
	}
	return nil
}
