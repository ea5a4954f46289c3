// Package session owns MCP client sessions: their identifiers, their
// exclusive transports and the table that maps one to the other.
//
// Lifecycle:
//
//	connecting -> active -> closing -> closed
//
// Only the Manager mutates the session table. A session leaves the table
// before its transport is closed, in the same Close call, so a lookup never
// returns a session whose transport is gone. Close cancels the session
// context first, which unblocks a pending write, then flips the state under
// the delivery lock; results produced after that are discarded with
// ErrSessionClosed. Transports must honor the context passed to Send.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

var (
	// ErrSessionNotFound is returned for an unknown session identifier.
	ErrSessionNotFound = errors.New("session: not found")
	// ErrSessionClosed is returned when delivering to a session that is
	// closing or closed.
	ErrSessionClosed = errors.New("session: closed")
	// ErrShutdown is returned by Open once the manager is shutting down.
	ErrShutdown = errors.New("session: manager is shut down")
)

// State is a session lifecycle state.
type State int32

const (
	StateConnecting State = iota
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Transport is the write side of one client connection. A session owns its
// transport exclusively.
type Transport interface {
	// Send writes one encoded JSON-RPC message.
	Send(ctx context.Context, message []byte) error
	// Close releases the connection. It may be called once.
	Close() error
	// Kind names the transport for logs and telemetry.
	Kind() string
}

const notificationBuffer = 32

// Session binds one client connection to the MCP server.
type Session struct {
	id        string
	transport Transport
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	sendMu sync.Mutex
	state  atomic.Int32

	initialized   atomic.Bool
	notifications chan mcp.JSONRPCNotification

	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

func newSession(id string, transport Transport, logger *slog.Logger) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:            id,
		transport:     transport,
		logger:        logger.With("session_id", id, "transport", transport.Kind()),
		ctx:           ctx,
		cancel:        cancel,
		notifications: make(chan mcp.JSONRPCNotification, notificationBuffer),
		done:          make(chan struct{}),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// SessionID implements server.ClientSession.
func (s *Session) SessionID() string { return s.id }

// Initialize implements server.ClientSession.
func (s *Session) Initialize() { s.initialized.Store(true) }

// Initialized implements server.ClientSession.
func (s *Session) Initialized() bool { return s.initialized.Load() }

// NotificationChannel implements server.ClientSession.
func (s *Session) NotificationChannel() chan<- mcp.JSONRPCNotification {
	return s.notifications
}

// TransportKind names the bound transport.
func (s *Session) TransportKind() string { return s.transport.Kind() }

// Context is cancelled when the session closes. In-flight invocations run
// under it so that closing a session aborts their upstream calls.
func (s *Session) Context() context.Context { return s.ctx }

// Done is closed once the session has fully closed.
func (s *Session) Done() <-chan struct{} { return s.done }

// State reports the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// activate moves a connecting session to active. It fails once close has
// begun.
func (s *Session) activate() bool {
	return s.state.CompareAndSwap(int32(StateConnecting), int32(StateActive))
}

// deliver writes one message if the session is still active. Writes are
// serialized.
func (s *Session) deliver(message []byte) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.State() != StateActive {
		return ErrSessionClosed
	}
	return s.transport.Send(s.ctx, message)
}

// close is idempotent. Cancelling first releases a delivery blocked in Send,
// so close only waits on transports that ignore their context.
func (s *Session) close() error {
	s.closeOnce.Do(func() {
		s.cancel()

		s.sendMu.Lock()
		s.state.Store(int32(StateClosing))
		s.sendMu.Unlock()

		s.closeErr = s.transport.Close()
		s.state.Store(int32(StateClosed))
		close(s.done)
	})
	return s.closeErr
}

var _ server.ClientSession = (*Session)(nil)
