package transcript

import (
	"strings"
	"sync"
)

// State holds the two-tier transcript: confirmed text that only grows,
// and a partial hypothesis that each decode pass replaces. All methods
// are safe for concurrent use.
type State struct {
	mu        sync.Mutex
	confirmed string
	partial   string
	commits   int
}

// NewState returns an empty transcript state.
func NewState() *State {
	return &State{}
}

// SetPartial replaces the current partial hypothesis.
func (s *State) SetPartial(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.partial = text
}

// Commit promotes the current partial into confirmed text and clears the
// partial. Returns false when there is no partial to promote.
func (s *State) Commit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.partial == "" {
		return false
	}
	s.confirmed = Join(s.confirmed, s.partial)
	s.partial = ""
	s.commits++
	return true
}

// CommitText appends finalized text directly to confirmed, bypassing the
// partial slot. Used by streaming providers that mark results final.
func (s *State) CommitText(text string) {
	if text == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.confirmed = Join(s.confirmed, text)
	s.commits++
}

// Displayed returns confirmed and partial joined for presentation.
func (s *State) Displayed() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Join(s.confirmed, s.partial)
}

// Confirmed returns the committed portion of the transcript.
func (s *State) Confirmed() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.confirmed
}

// Partial returns the current hypothesis.
func (s *State) Partial() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.partial
}

// Commits returns how many promotions have happened since the last Reset.
func (s *State) Commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}

// TailWords returns up to max trailing words of confirmed text, used to
// seed decoder context across window boundaries.
func (s *State) TailWords(max int) string {
	if max <= 0 {
		return ""
	}
	s.mu.Lock()
	confirmed := s.confirmed
	s.mu.Unlock()
	words := strings.Fields(confirmed)
	if len(words) > max {
		words = words[len(words)-max:]
	}
	return strings.Join(words, " ")
}

// Reset clears all transcript state.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.confirmed = ""
	s.partial = ""
	s.commits = 0
}
