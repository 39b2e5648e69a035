package capture

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Sink receives drained samples. The engine's Process method satisfies it.
type Sink func(samples []float32)

type PumpOptions struct {
	SampleRate   int
	ReadInterval time.Duration
	RingSeconds  int
	Realtime     bool
	Logger       *slog.Logger
}

// Pump runs two goroutines: a feeder that moves samples from a Source into
// the ring at capture pace, and a drainer that empties the ring into the
// sink on a fixed cadence. Mirrors a microphone callback feeding a UI loop.
type Pump struct {
	src     Source
	sink    Sink
	ring    *Ring
	opts    PumpOptions
	log     *slog.Logger
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	done    chan struct{}
	started atomic.Bool
	eof     atomic.Bool
}

func NewPump(src Source, sink Sink, opts PumpOptions) *Pump {
	if opts.SampleRate <= 0 {
		opts.SampleRate = 16000
	}
	if opts.ReadInterval <= 0 {
		opts.ReadInterval = 100 * time.Millisecond
	}
	if opts.RingSeconds <= 0 {
		opts.RingSeconds = 60
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Pump{
		src:  src,
		sink: sink,
		ring: NewRing(opts.SampleRate * opts.RingSeconds),
		opts: opts,
		log:  log,
		done: make(chan struct{}),
	}
}

func (p *Pump) Start(ctx context.Context) error {
	if p.src == nil || p.sink == nil {
		return errors.New("pump needs a source and a sink")
	}
	if !p.started.CompareAndSwap(false, true) {
		return errors.New("pump already started")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Add(2)
	go p.feed(ctx)
	go p.drain(ctx)
	return nil
}

// Stop cancels both goroutines and waits for them.
func (p *Pump) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

// Done is closed once the source is exhausted and the ring fully drained.
func (p *Pump) Done() <-chan struct{} {
	return p.done
}

// Dropped reports samples lost to ring overflow.
func (p *Pump) Dropped() uint64 {
	return p.ring.Dropped()
}

func (p *Pump) feed(ctx context.Context) {
	defer p.wg.Done()
	chunk := p.opts.SampleRate / 10
	if chunk <= 0 {
		chunk = 1600
	}
	buf := make([]float32, chunk)
	for {
		if ctx.Err() != nil {
			return
		}
		n, err := p.src.Read(buf)
		if n > 0 {
			p.ring.Write(buf[:n])
			if p.opts.Realtime {
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Duration(n) * time.Second / time.Duration(p.opts.SampleRate)):
				}
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				p.log.Warn("capture_source_error", "error", err)
			}
			p.eof.Store(true)
			return
		}
	}
}

func (p *Pump) drain(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.opts.ReadInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s := p.ring.Drain(); len(s) > 0 {
				p.sink(s)
			}
			if p.eof.Load() && p.ring.Len() == 0 {
				close(p.done)
				return
			}
		}
	}
}
