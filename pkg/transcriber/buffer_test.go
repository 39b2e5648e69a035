package transcriber

import (
	"sync"
	"testing"
)

func TestBufferAppendSnapshot(t *testing.T) {
	b := NewBuffer(16)
	b.Append([]float32{1, 2})
	b.Append([]float32{3})
	snap := b.Snapshot()
	if len(snap) != 3 || snap[0] != 1 || snap[2] != 3 {
		t.Fatalf("unexpected snapshot %v", snap)
	}
	// Snapshot is a copy: mutating it must not touch the buffer.
	snap[0] = 99
	if got := b.Snapshot()[0]; got != 1 {
		t.Fatalf("snapshot aliased buffer storage, got %v", got)
	}
	if b.Len() != 3 {
		t.Fatalf("snapshot must not clear, len = %d", b.Len())
	}
}

func TestBufferCommitAndClear(t *testing.T) {
	b := NewBuffer(0)
	b.Append(make([]float32, 10))
	if b.CommitAndClear(10) {
		t.Fatalf("commit below threshold")
	}
	if b.Len() != 10 {
		t.Fatalf("failed commit must leave buffer untouched, len = %d", b.Len())
	}
	b.Append(make([]float32, 1))
	if !b.CommitAndClear(10) {
		t.Fatalf("expected commit above threshold")
	}
	if b.Len() != 0 {
		t.Fatalf("commit must clear, len = %d", b.Len())
	}
}

func TestBufferTrimHead(t *testing.T) {
	b := NewBuffer(0)
	b.Append([]float32{1, 2, 3, 4, 5})
	b.TrimHead(2)
	snap := b.Snapshot()
	if len(snap) != 2 || snap[0] != 4 || snap[1] != 5 {
		t.Fatalf("expected tail [4 5], got %v", snap)
	}
	b.TrimHead(10)
	if b.Len() != 2 {
		t.Fatalf("trim with keep >= len must be a no-op, len = %d", b.Len())
	}
	b.TrimHead(0)
	if b.Len() != 0 {
		t.Fatalf("trim to zero must clear, len = %d", b.Len())
	}
}

func TestBufferConcurrentAppendSnapshot(t *testing.T) {
	b := NewBuffer(0)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			b.Append(make([]float32, 8))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			snap := b.Snapshot()
			if len(snap)%8 != 0 {
				t.Errorf("torn snapshot of length %d", len(snap))
				return
			}
		}
	}()
	wg.Wait()
	if b.Len() != 1600 {
		t.Fatalf("expected 1600 samples, got %d", b.Len())
	}
}
