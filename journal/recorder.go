package journal

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/petal-labs/perplexity-mcp/session"
	"github.com/petal-labs/perplexity-mcp/tool"
)

const defaultRecorderBuffer = 256

// RecorderConfig configures a Recorder.
type RecorderConfig struct {
	Store  Store
	Logger *slog.Logger
	Now    func() time.Time
	// Buffer is the number of events queued ahead of the store (default 256).
	Buffer int
}

// Recorder turns tool and session observations into journal events. Writes
// happen on a background goroutine so observers never block a request; when
// the queue is full the event is dropped and counted.
type Recorder struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time

	mu      sync.RWMutex
	closed  bool
	events  chan Event
	done    chan struct{}
	dropped atomic.Int64
}

// NewRecorder starts a Recorder writing to cfg.Store.
func NewRecorder(cfg RecorderConfig) (*Recorder, error) {
	if cfg.Store == nil {
		return nil, errors.New("journal: store is nil")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	buffer := cfg.Buffer
	if buffer <= 0 {
		buffer = defaultRecorderBuffer
	}
	r := &Recorder{
		store:  cfg.Store,
		logger: logger.With("component", "journal"),
		now:    now,
		events: make(chan Event, buffer),
		done:   make(chan struct{}),
	}
	go r.run()
	return r, nil
}

// ObserveInvoke records a tool invocation outcome.
func (r *Recorder) ObserveInvoke(o tool.InvokeObservation) {
	r.record(Event{
		Kind:      KindToolInvoked,
		SessionID: o.SessionID,
		Tool:      o.ToolName,
		Model:     o.Model,
		Format:    o.Format,
		Success:   o.Success,
		ErrorCode: o.ErrorCode,
		Elapsed:   time.Duration(o.DurationMS) * time.Millisecond,
	})
}

// ObserveSession records a session lifecycle transition.
func (r *Recorder) ObserveSession(o session.Observation) {
	e := Event{
		SessionID: o.SessionID,
		Transport: o.Transport,
		Success:   o.Err == nil,
		Elapsed:   o.Duration,
	}
	switch o.Event {
	case session.EventOpened:
		e.Kind = KindSessionOpened
	case session.EventClosed:
		e.Kind = KindSessionClosed
	default:
		return
	}
	if o.Err != nil {
		e.Detail = o.Err.Error()
	}
	r.record(e)
}

// Dropped reports how many events were discarded because the queue was full.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Close flushes queued events and stops the writer. It does not close the
// store.
func (r *Recorder) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.events)
	}
	r.mu.Unlock()
	<-r.done
}

func (r *Recorder) record(e Event) {
	if e.Time.IsZero() {
		e.Time = r.now()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.events <- e:
	default:
		r.dropped.Add(1)
		r.logger.Debug("journal queue full, dropping event", "kind", e.Kind, "session_id", e.SessionID)
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for e := range r.events {
		if err := r.store.Append(context.Background(), e); err != nil {
			r.logger.Error("failed to persist journal event",
				"kind", e.Kind,
				"session_id", e.SessionID,
				"error", err,
			)
		}
	}
}

var (
	_ tool.Observer    = (*Recorder)(nil)
	_ session.Observer = (*Recorder)(nil)
)
