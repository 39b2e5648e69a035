// Package capture decouples audio producers from the transcription engine:
// a drop-oldest ring absorbs bursts, and a pump moves samples from a source
// into the engine on a fixed cadence.
package capture

import "sync"

// Ring is a thread-safe circular buffer of float32 PCM samples. When full,
// the oldest samples are overwritten. A live producer must never block on a
// slow consumer.
type Ring struct {
	mu      sync.Mutex
	buf     []float32
	cap     int
	head    int
	len     int
	dropped uint64
}

// NewRing creates a ring holding capacity samples.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring{
		buf: make([]float32, capacity),
		cap: capacity,
	}
}

// Write appends samples, dropping the oldest on overflow.
func (r *Ring) Write(samples []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range samples {
		r.buf[r.head] = s
		r.head = (r.head + 1) % r.cap
		if r.len < r.cap {
			r.len++
		} else {
			r.dropped++
		}
	}
}

// Drain returns all buffered samples as a contiguous copy and empties the
// ring.
func (r *Ring) Drain() []float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.len == 0 {
		return nil
	}
	out := make([]float32, r.len)
	start := (r.head - r.len + r.cap) % r.cap
	for i := 0; i < r.len; i++ {
		out[i] = r.buf[(start+i)%r.cap]
	}
	r.head = 0
	r.len = 0
	return out
}

// Len returns the number of buffered samples.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.len
}

// Cap returns the ring capacity in samples.
func (r *Ring) Cap() int {
	return r.cap
}

// Dropped returns how many samples were overwritten before being drained.
func (r *Ring) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}
