package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/petal-labs/perplexity-mcp/session"
)

// HeartbeatInterval is the interval between SSE heartbeat comments.
const HeartbeatInterval = 15 * time.Second

const (
	defaultMessagePath = "/messages"
	defaultMaxBody     = 4 << 20
	sseQueueSize       = 64
)

// SSEConfig configures streaming mode.
type SSEConfig struct {
	Manager *session.Manager
	Logger  *slog.Logger

	// AuthToken, when set, is required as a bearer credential on /sse and
	// /messages.
	AuthToken  string
	CORSOrigin string

	HeartbeatInterval time.Duration
	MaxBody           int64
}

// SSEHandler serves MCP over Server-Sent Events.
//
//	GET  /sse                       open a session; first event is "endpoint"
//	POST /messages?sessionId={id}   submit one JSON-RPC message (202)
//	GET  /health                    liveness and session count
//
// Replies and notifications are written to the session's stream as
// "event: message". A heartbeat comment ": ping\n\n" is sent periodically.
type SSEHandler struct {
	manager   *session.Manager
	logger    *slog.Logger
	heartbeat time.Duration
	maxBody   int64
	router    chi.Router
}

// NewSSEHandler creates an SSEHandler.
func NewSSEHandler(cfg SSEConfig) (*SSEHandler, error) {
	if cfg.Manager == nil {
		return nil, errors.New("transport: sse manager is nil")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = HeartbeatInterval
	}
	if cfg.MaxBody <= 0 {
		cfg.MaxBody = defaultMaxBody
	}

	h := &SSEHandler{
		manager:   cfg.Manager,
		logger:    logger.With("component", "sse"),
		heartbeat: cfg.HeartbeatInterval,
		maxBody:   cfg.MaxBody,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(corsHandler(cfg.CORSOrigin))
	r.Get("/health", h.health)
	r.Group(func(r chi.Router) {
		r.Use(bearerAuth(cfg.AuthToken))
		r.Get("/sse", h.stream)
		r.Post(defaultMessagePath, h.message)
	})
	h.router = r
	return h, nil
}

// corsHandler answers preflights before authentication so browsers can
// discover that /sse and /messages take a bearer token.
func corsHandler(allowedOrigin string) func(http.Handler) http.Handler {
	origin := strings.TrimSpace(allowedOrigin)
	if origin == "" {
		origin = "*"
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: []string{origin},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
}

// ServeHTTP implements http.Handler.
func (h *SSEHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *SSEHandler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": h.manager.Len(),
	})
}

func (h *SSEHandler) stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	t := newSSETransport()
	sess, err := h.manager.Open(r.Context(), t)
	if err != nil {
		h.logger.Error("opening sse session failed", "error", err)
		http.Error(w, "Failed to establish SSE connection", http.StatusServiceUnavailable)
		return
	}
	defer func() {
		t.release()
		_ = h.manager.Close(sess.ID())
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if _, err := fmt.Fprintf(w, "event: endpoint\ndata: %s?sessionId=%s\n\n", defaultMessagePath, sess.ID()); err != nil {
		return
	}
	flusher.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-sess.Done():
			return
		case msg := <-t.queue:
			if err := writeSSEMessage(w, msg); err != nil {
				h.logger.Debug("sse write failed", "session_id", sess.ID(), "error", err)
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (h *SSEHandler) message(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("sessionId")
	if id == "" {
		http.Error(w, "Missing sessionId parameter", http.StatusBadRequest)
		return
	}
	sess, err := h.manager.Lookup(id)
	if err != nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}
	if !json.Valid(body) {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	h.manager.Dispatch(sess, body)
	w.WriteHeader(http.StatusAccepted)
	_, _ = io.WriteString(w, "Accepted")
}

func writeSSEMessage(w io.Writer, data []byte) error {
	_, err := fmt.Fprintf(w, "event: message\ndata: %s\n\n", data)
	return err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// sseTransport hands encoded messages to the stream writer loop.
type sseTransport struct {
	queue chan []byte

	closeOnce   sync.Once
	closed      chan struct{}
	releaseOnce sync.Once
	gone        chan struct{}
}

func newSSETransport() *sseTransport {
	return &sseTransport{
		queue:  make(chan []byte, sseQueueSize),
		closed: make(chan struct{}),
		gone:   make(chan struct{}),
	}
}

func (t *sseTransport) Send(ctx context.Context, message []byte) error {
	select {
	case <-t.closed:
		return errors.New("transport: sse stream is closed")
	case <-t.gone:
		return errors.New("transport: sse client disconnected")
	default:
	}
	select {
	case t.queue <- message:
		return nil
	case <-t.closed:
		return errors.New("transport: sse stream is closed")
	case <-t.gone:
		return errors.New("transport: sse client disconnected")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *sseTransport) Close() error {
	t.closeOnce.Do(func() { close(t.closed) })
	return nil
}

func (t *sseTransport) Kind() string { return "sse" }

// release marks the writer loop as finished so pending sends fail fast.
func (t *sseTransport) release() {
	t.releaseOnce.Do(func() { close(t.gone) })
}
