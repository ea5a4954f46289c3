package session

import (
	"fmt"
	"sync"
)

// Table maps session identifiers to live sessions. Insert and delete are
// single critical sections.
type Table struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func newTable() *Table {
	return &Table{sessions: make(map[string]*Session)}
}

func (t *Table) register(s *Session) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.sessions[s.id]; exists {
		return fmt.Errorf("session: duplicate id %q", s.id)
	}
	t.sessions[s.id] = s
	return nil
}

func (t *Table) lookup(id string) (*Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.sessions[id]
	return s, ok
}

func (t *Table) unregister(id string) (*Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[id]
	if ok {
		delete(t.sessions, id)
	}
	return s, ok
}

func (t *Table) ids() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.sessions))
	for id := range t.sessions {
		out = append(out, id)
	}
	return out
}

func (t *Table) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}
