package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/server"
)

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	Server   *server.MCPServer
	Logger   *slog.Logger
	Observer Observer

	// NewID generates session identifiers. Defaults to UUIDv4.
	NewID func() string
	Now   func() time.Time
}

// Manager is the single owner of the session table.
type Manager struct {
	server   *server.MCPServer
	logger   *slog.Logger
	observer Observer
	newID    func() string
	now      func() time.Time

	table *Table

	mu       sync.Mutex
	opened   map[string]time.Time
	shutdown bool
	inflight sync.WaitGroup
}

// NewManager creates a Manager.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Server == nil {
		return nil, errors.New("session: mcp server is nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Observer == nil {
		cfg.Observer = noopObserver{}
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{
		server:   cfg.Server,
		logger:   cfg.Logger.With("component", "session"),
		observer: cfg.Observer,
		newID:    cfg.NewID,
		now:      cfg.Now,
		table:    newTable(),
		opened:   make(map[string]time.Time),
	}, nil
}

// Open creates a session bound to transport, inserts it into the table and
// registers it with the MCP server. The shutdown check and the table insert
// share one critical section with Shutdown's snapshot, so a session is either
// refused or closed by Shutdown.
func (m *Manager) Open(ctx context.Context, transport Transport) (*Session, error) {
	if transport == nil {
		return nil, errors.New("session: transport is nil")
	}

	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return nil, ErrShutdown
	}
	s := newSession(m.newID(), transport, m.logger)
	if err := m.table.register(s); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.mu.Unlock()

	if err := m.server.RegisterSession(ctx, s); err != nil {
		m.table.unregister(s.id)
		return nil, fmt.Errorf("session: register with mcp server: %w", err)
	}

	m.mu.Lock()
	if !s.activate() {
		// Shutdown closed it while the server registration ran.
		m.mu.Unlock()
		m.server.UnregisterSession(context.Background(), s.id)
		return nil, ErrShutdown
	}
	m.opened[s.id] = m.now()
	s.logger.Info("session opened")
	m.observer.ObserveSession(Observation{Event: EventOpened, SessionID: s.id, Transport: transport.Kind()})
	m.mu.Unlock()

	go m.forwardNotifications(s)
	return s, nil
}

// Lookup returns the live session for id.
func (m *Manager) Lookup(id string) (*Session, error) {
	s, ok := m.table.lookup(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Len reports the number of live sessions.
func (m *Manager) Len() int { return m.table.len() }

// Close removes the session from the table, unregisters it from the MCP
// server and closes its transport. Closing an unknown or already closed id
// is a no-op.
func (m *Manager) Close(id string) error {
	s, ok := m.table.unregister(id)
	if !ok {
		return nil
	}
	m.server.UnregisterSession(context.Background(), id)
	err := s.close()

	m.mu.Lock()
	openedAt, announced := m.opened[id]
	delete(m.opened, id)
	m.mu.Unlock()

	if err != nil {
		s.logger.Warn("session transport close failed", "error", err)
	} else {
		s.logger.Info("session closed")
	}
	if announced {
		m.observer.ObserveSession(Observation{
			Event:     EventClosed,
			SessionID: id,
			Transport: s.TransportKind(),
			Err:       err,
			Duration:  m.now().Sub(openedAt),
		})
	}
	return err
}

// Shutdown closes every open session, tolerating individual failures, then
// waits for in-flight handlers. It returns once ctx ends even if a transport
// is still closing.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.shutdown = true
	ids := m.table.ids()
	m.mu.Unlock()

	closed := make(chan error, 1)
	go func() {
		var errs []error
		for _, id := range ids {
			if err := m.Close(id); err != nil {
				errs = append(errs, fmt.Errorf("close session %s: %w", id, err))
			}
		}
		closed <- errors.Join(errs...)
	}()

	var errs []error
	select {
	case err := <-closed:
		if err != nil {
			errs = append(errs, err)
		}
	case <-ctx.Done():
		return fmt.Errorf("closing sessions: %w", ctx.Err())
	}

	if err := m.Drain(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Drain waits for dispatched messages to finish until ctx ends.
func (m *Manager) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for in-flight handlers: %w", ctx.Err())
	}
}

// Dispatch handles one inbound JSON-RPC message for s asynchronously. The
// reply is delivered on the same session, or discarded if the session closed
// in the meantime. A panic while handling is logged and contained.
func (m *Manager) Dispatch(s *Session, message []byte) {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		s.logger.Debug("dropping message after shutdown")
		return
	}
	m.inflight.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.inflight.Done()
		m.handle(s, message)
	}()
}

// Handle is the synchronous form of Dispatch.
func (m *Manager) Handle(s *Session, message []byte) {
	m.handle(s, message)
}

func (m *Manager) handle(s *Session, message []byte) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("message handler panic", "panic", r, "stack", string(debug.Stack()))
		}
	}()

	ctx := m.server.WithContext(s.Context(), s)
	reply := m.server.HandleMessage(ctx, json.RawMessage(message))
	if reply == nil {
		return
	}
	payload, err := json.Marshal(reply)
	if err != nil {
		s.logger.Error("encoding reply failed", "error", err)
		return
	}
	m.deliver(s, payload)
}

func (m *Manager) deliver(s *Session, payload []byte) {
	if err := s.deliver(payload); err != nil {
		if errors.Is(err, ErrSessionClosed) {
			s.logger.Debug("discarding reply for closed session")
			return
		}
		s.logger.Warn("transport write failed", "error", err)
	}
}

func (m *Manager) forwardNotifications(s *Session) {
	for {
		select {
		case <-s.Done():
			return
		case notification := <-s.notifications:
			payload, err := json.Marshal(notification)
			if err != nil {
				s.logger.Error("encoding notification failed", "error", err)
				continue
			}
			m.deliver(s, payload)
		}
	}
}
