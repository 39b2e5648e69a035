package transcript

import (
	"sync"
	"testing"
)

func TestStateCommitPromotesPartial(t *testing.T) {
	s := NewState()
	s.SetPartial("first chunk")
	if !s.Commit() {
		t.Fatalf("expected commit with non-empty partial")
	}
	if got := s.Confirmed(); got != "first chunk" {
		t.Fatalf("confirmed = %q, want %q", got, "first chunk")
	}
	if got := s.Partial(); got != "" {
		t.Fatalf("partial should be cleared, got %q", got)
	}

	s.SetPartial("second chunk")
	if !s.Commit() {
		t.Fatalf("expected second commit")
	}
	if got := s.Confirmed(); got != "first chunk second chunk" {
		t.Fatalf("confirmed = %q, want space-joined chunks", got)
	}
	if s.Commits() != 2 {
		t.Fatalf("commits = %d, want 2", s.Commits())
	}
}

func TestStateCommitWithEmptyPartialIsNoop(t *testing.T) {
	s := NewState()
	if s.Commit() {
		t.Fatalf("commit with empty partial should report false")
	}
	if got := s.Confirmed(); got != "" {
		t.Fatalf("confirmed should stay empty, got %q", got)
	}
}

func TestStateDisplayedJoinsTiers(t *testing.T) {
	s := NewState()
	if got := s.Displayed(); got != "" {
		t.Fatalf("empty state displayed = %q", got)
	}
	s.SetPartial("hello")
	if got := s.Displayed(); got != "hello" {
		t.Fatalf("displayed = %q, want %q", got, "hello")
	}
	s.Commit()
	s.SetPartial("world")
	if got := s.Displayed(); got != "hello world" {
		t.Fatalf("displayed = %q, want %q", got, "hello world")
	}
}

func TestStateCommitTextBypassesPartial(t *testing.T) {
	s := NewState()
	s.SetPartial("interim")
	s.CommitText("final segment")
	if got := s.Confirmed(); got != "final segment" {
		t.Fatalf("confirmed = %q, want %q", got, "final segment")
	}
	if got := s.Partial(); got != "interim" {
		t.Fatalf("partial should be untouched, got %q", got)
	}
	s.CommitText("")
	if s.Commits() != 1 {
		t.Fatalf("empty CommitText must not count, commits = %d", s.Commits())
	}
}

func TestStateTailWords(t *testing.T) {
	s := NewState()
	s.CommitText("one two three four five")
	if got := s.TailWords(3); got != "three four five" {
		t.Fatalf("tail = %q, want %q", got, "three four five")
	}
	if got := s.TailWords(10); got != "one two three four five" {
		t.Fatalf("tail = %q, want full text", got)
	}
	if got := s.TailWords(0); got != "" {
		t.Fatalf("tail with max 0 = %q, want empty", got)
	}
}

func TestStateResetClearsEverything(t *testing.T) {
	s := NewState()
	s.SetPartial("a")
	s.Commit()
	s.SetPartial("b")
	s.Reset()
	if s.Displayed() != "" || s.Commits() != 0 {
		t.Fatalf("reset left state behind: %q commits=%d", s.Displayed(), s.Commits())
	}
}

func TestStateConcurrentAccess(t *testing.T) {
	s := NewState()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.SetPartial("x")
				s.Commit()
				_ = s.Displayed()
			}
		}()
	}
	wg.Wait()
	if s.Commits() == 0 {
		t.Fatalf("expected commits to land")
	}
}
