// Package transcriber implements the streaming transcription engine: a
// growing sample buffer, a background decode loop with a commit policy,
// and stream sessions for connection-oriented recognizers.
package transcriber

import "sync"

// Buffer accumulates mono float32 samples between decode passes. Appends
// come from the ingest goroutine while the engine snapshots and clears
// from its own; a single mutex serializes them. The lock is held only for
// copies, never across a decode.
type Buffer struct {
	mu      sync.Mutex
	samples []float32
}

// NewBuffer returns a buffer preallocated for capacityHint samples.
func NewBuffer(capacityHint int) *Buffer {
	if capacityHint < 0 {
		capacityHint = 0
	}
	return &Buffer{samples: make([]float32, 0, capacityHint)}
}

// Append adds samples to the tail. Never fails.
func (b *Buffer) Append(samples []float32) {
	if len(samples) == 0 {
		return
	}
	b.mu.Lock()
	b.samples = append(b.samples, samples...)
	b.mu.Unlock()
}

// Snapshot returns a copy of the current contents without clearing.
func (b *Buffer) Snapshot() []float32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]float32, len(b.samples))
	copy(out, b.samples)
	return out
}

// CommitAndClear empties the buffer and reports true when its length
// exceeds threshold, otherwise leaves it untouched and reports false.
// Check and clear happen under one lock hold so concurrent appends either
// land before the clear (and go with the commit) or after it.
func (b *Buffer) CommitAndClear(threshold int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.samples) <= threshold {
		return false
	}
	b.samples = b.samples[:0]
	return true
}

// TrimHead drops all but the last keep samples. Used by the windowed
// strategy to retain an overlap tail across commits.
func (b *Buffer) TrimHead(keep int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if keep <= 0 {
		b.samples = b.samples[:0]
		return
	}
	if len(b.samples) <= keep {
		return
	}
	n := copy(b.samples, b.samples[len(b.samples)-keep:])
	b.samples = b.samples[:n]
}

// Len returns the current sample count.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.samples)
}

// Reset empties the buffer.
func (b *Buffer) Reset() {
	b.mu.Lock()
	b.samples = b.samples[:0]
	b.mu.Unlock()
}
