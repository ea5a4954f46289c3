package transport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/petal-labs/perplexity-mcp/session"
)

const (
	defaultStdioHeartbeat  = 30 * time.Second
	defaultShutdownTimeout = 5 * time.Second
)

// StdioConfig configures pipe mode.
type StdioConfig struct {
	Manager *session.Manager
	In      io.Reader
	Out     io.Writer
	Logger  *slog.Logger

	// HeartbeatInterval defaults to 30s. Negative disables it.
	HeartbeatInterval time.Duration
	// ShutdownTimeout bounds graceful shutdown. Defaults to 5s.
	ShutdownTimeout time.Duration
}

const stdioQueueSize = 64

var errStdioClosed = errors.New("transport: stdio is closed")

// stdioTransport queues newline-delimited JSON-RPC messages for a single
// writer goroutine. Send honors its context and Close never waits on Out, so
// a host that stops reading cannot wedge shutdown.
type stdioTransport struct {
	out    io.Writer
	logger *slog.Logger
	queue  chan []byte

	closeOnce sync.Once
	closed    chan struct{}
	done      chan struct{}

	mu  sync.Mutex
	err error
}

func newStdioTransport(out io.Writer, logger *slog.Logger) *stdioTransport {
	t := &stdioTransport{
		out:    out,
		logger: logger,
		queue:  make(chan []byte, stdioQueueSize),
		closed: make(chan struct{}),
		done:   make(chan struct{}),
	}
	go t.run()
	return t
}

func (t *stdioTransport) Send(ctx context.Context, message []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-t.closed:
		return errStdioClosed
	case <-t.done:
		return t.writeErr()
	default:
	}
	line := make([]byte, 0, len(message)+1)
	line = append(line, message...)
	line = append(line, '\n')
	select {
	case t.queue <- line:
		return nil
	case <-t.closed:
		return errStdioClosed
	case <-t.done:
		return t.writeErr()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *stdioTransport) Close() error {
	t.closeOnce.Do(func() { close(t.closed) })
	return nil
}

func (t *stdioTransport) Kind() string { return "stdio" }

// wait blocks until queued messages are flushed or ctx ends.
func (t *stdioTransport) wait(ctx context.Context) error {
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("transport: flushing stdout: %w", ctx.Err())
	}
}

func (t *stdioTransport) run() {
	defer close(t.done)
	for {
		select {
		case line := <-t.queue:
			if !t.write(line) {
				return
			}
		case <-t.closed:
			// Flush what was accepted before close.
			for {
				select {
				case line := <-t.queue:
					if !t.write(line) {
						return
					}
				default:
					return
				}
			}
		}
	}
}

func (t *stdioTransport) write(line []byte) bool {
	if _, err := t.out.Write(line); err != nil {
		t.mu.Lock()
		t.err = fmt.Errorf("transport: stdio write: %w", err)
		t.mu.Unlock()
		t.logger.Warn("stdout write failed", "error", err)
		return false
	}
	return true
}

func (t *stdioTransport) writeErr() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err == nil {
		return errStdioClosed
	}
	return t.err
}

// RunStdio serves exactly one session over In/Out until ctx is cancelled or
// In reaches EOF. A non-EOF read error is logged and the process keeps
// running until ctx ends, leaving the decision to the supervising host.
func RunStdio(ctx context.Context, cfg StdioConfig) error {
	if cfg.Manager == nil {
		return errors.New("transport: stdio manager is nil")
	}
	if cfg.In == nil || cfg.Out == nil {
		return errors.New("transport: stdio requires In and Out")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "stdio")
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = defaultStdioHeartbeat
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}

	out := newStdioTransport(cfg.Out, logger)
	sess, err := cfg.Manager.Open(ctx, out)
	if err != nil {
		_ = out.Close()
		return fmt.Errorf("opening stdio session: %w", err)
	}
	logger.Info("serving on stdio", "session_id", sess.ID())

	heartbeat, err := StartHeartbeat(cfg.HeartbeatInterval, func() {
		logger.Debug("heartbeat", "sessions", cfg.Manager.Len())
	})
	if err != nil {
		_ = cfg.Manager.Shutdown(context.Background())
		return err
	}

	readDone := make(chan error, 1)
	go func() {
		readDone <- readLines(cfg.In, func(line []byte) {
			cfg.Manager.Dispatch(sess, line)
		})
	}()

	drain := false
	select {
	case <-ctx.Done():
		logger.Info("shutting down", "reason", "signal")
	case err := <-readDone:
		if err == nil {
			logger.Info("shutting down", "reason", "stdin closed")
			drain = true
			break
		}
		logger.Error("stdin read failed; waiting for termination signal", "error", err)
		<-ctx.Done()
		logger.Info("shutting down", "reason", "signal")
	}

	heartbeat.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if drain {
		if err := cfg.Manager.Drain(shutdownCtx); err != nil {
			logger.Warn("in-flight requests did not finish", "error", err)
		}
	}
	if err := cfg.Manager.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	if err := out.wait(shutdownCtx); err != nil {
		logger.Warn("stdout not flushed before shutdown deadline", "error", err)
	}
	return nil
}

// readLines calls fn for every non-blank line. It returns nil on EOF.
func readLines(in io.Reader, fn func([]byte)) error {
	reader := bufio.NewReader(in)
	for {
		line, err := reader.ReadBytes('\n')
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			fn(trimmed)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}
