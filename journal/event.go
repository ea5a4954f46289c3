// Package journal keeps an optional append-only record of session lifecycle
// and tool invocation outcomes. Upstream response content is never stored.
package journal

import (
	"context"
	"time"
)

// Kind identifies the type of a journal event.
type Kind string

const (
	KindSessionOpened Kind = "session.opened"
	KindSessionClosed Kind = "session.closed"
	KindToolInvoked   Kind = "tool.invoked"
)

// Event is one journal record.
type Event struct {
	// ID is assigned by the store on append.
	ID        int64
	Kind      Kind
	SessionID string
	Transport string
	Tool      string
	Model     string
	Format    string
	Success   bool
	ErrorCode string
	// Detail carries a short error message for failed closes.
	Detail  string
	Elapsed time.Duration
	Time    time.Time
}

// Filter narrows List results.
type Filter struct {
	// SessionID restricts results to one session when non-empty.
	SessionID string
	// Kind restricts results to one event kind when non-empty.
	Kind Kind
	// Limit returns only the most recent Limit events (0 means no limit).
	Limit int
}

// Store persists journal events.
type Store interface {
	// Append stores an event.
	Append(ctx context.Context, event Event) error

	// List returns matching events in append order. With a limit, the most
	// recent events are kept.
	List(ctx context.Context, filter Filter) ([]Event, error)

	// Prune deletes events recorded before cutoff and reports how many
	// were removed.
	Prune(ctx context.Context, cutoff time.Time) (int64, error)

	// Close releases the store.
	Close() error
}

func (f Filter) matches(e Event) bool {
	if f.SessionID != "" && e.SessionID != f.SessionID {
		return false
	}
	if f.Kind != "" && e.Kind != f.Kind {
		return false
	}
	return true
}
