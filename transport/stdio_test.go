package transport_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/petal-labs/perplexity-mcp/session"
	"github.com/petal-labs/perplexity-mcp/transport"
)

func newStdioManager(t *testing.T) *session.Manager {
	t.Helper()
	mcpServer := server.NewMCPServer("test", "0.0.0", server.WithToolCapabilities(false))
	mcpServer.AddTool(mcp.NewTool("echo"), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText("echoed"), nil
	})
	manager, err := session.NewManager(session.ManagerConfig{Server: mcpServer})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	return manager
}

func readJSONLine(t *testing.T, reader *bufio.Reader) map[string]any {
	t.Helper()
	ch := make(chan string, 1)
	go func() {
		line, _ := reader.ReadString('\n')
		ch <- line
	}()
	select {
	case line := <-ch:
		var msg map[string]any
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			t.Fatalf("Unmarshal(%q) error = %v", line, err)
		}
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for stdout line")
		return nil
	}
}

func TestRunStdioServesUntilEOF(t *testing.T) {
	manager := newStdioManager(t)
	stdinR, stdinW := io.Pipe()
	stdoutR, stdoutW := io.Pipe()
	reader := bufio.NewReader(stdoutR)

	done := make(chan error, 1)
	go func() {
		done <- transport.RunStdio(context.Background(), transport.StdioConfig{
			Manager:           manager,
			In:                stdinR,
			Out:               stdoutW,
			HeartbeatInterval: -1,
		})
	}()

	_, _ = io.WriteString(stdinW, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","capabilities":{},"clientInfo":{"name":"t","version":"1"}}}`+"\n")
	reply := readJSONLine(t, reader)
	if reply["id"] != float64(1) || reply["result"] == nil {
		t.Fatalf("initialize reply = %v", reply)
	}

	_, _ = io.WriteString(stdinW, `{"jsonrpc":"2.0","method":"notifications/initialized"}`+"\n\n")
	_, _ = io.WriteString(stdinW, `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"echo","arguments":{}}}`+"\n")
	reply = readJSONLine(t, reader)
	if reply["id"] != float64(2) {
		t.Fatalf("tools/call reply = %v", reply)
	}
	if !strings.Contains(mustMarshal(t, reply), "echoed") {
		t.Fatalf("tools/call reply = %v, want echoed", reply)
	}

	_ = stdinW.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("RunStdio() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("RunStdio did not return after EOF")
	}
	if manager.Len() != 0 {
		t.Fatalf("sessions = %d, want 0", manager.Len())
	}
}

func TestRunStdioMalformedLineGetsParseError(t *testing.T) {
	manager := newStdioManager(t)
	stdinR, stdinW := io.Pipe()
	stdoutR, stdoutW := io.Pipe()
	reader := bufio.NewReader(stdoutR)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- transport.RunStdio(ctx, transport.StdioConfig{Manager: manager, In: stdinR, Out: stdoutW, HeartbeatInterval: -1})
	}()

	_, _ = io.WriteString(stdinW, "{not json}\n")
	reply := readJSONLine(t, reader)
	if reply["error"] == nil {
		t.Fatalf("reply = %v, want JSON-RPC error", reply)
	}

	// The session survives and keeps serving.
	_, _ = io.WriteString(stdinW, `{"jsonrpc":"2.0","id":9,"method":"ping"}`+"\n")
	reply = readJSONLine(t, reader)
	if reply["id"] != float64(9) {
		t.Fatalf("ping reply = %v", reply)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("RunStdio() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("RunStdio did not return after cancellation")
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("read: input/output error") }

func TestRunStdioReadErrorWaitsForSignal(t *testing.T) {
	manager := newStdioManager(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- transport.RunStdio(ctx, transport.StdioConfig{
			Manager:           manager,
			In:                failingReader{},
			Out:               io.Discard,
			HeartbeatInterval: time.Hour,
		})
	}()

	select {
	case err := <-done:
		t.Fatalf("RunStdio returned before signal: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("RunStdio() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("RunStdio did not return after signal")
	}
}

func mustMarshal(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	return string(data)
}

func TestRunStdioShutdownIsBoundedWhenStdoutStalls(t *testing.T) {
	manager := newStdioManager(t)
	stdinR, stdinW := io.Pipe()
	// Nobody reads stdout, so the first reply blocks the writer.
	_, stdoutW := io.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- transport.RunStdio(ctx, transport.StdioConfig{
			Manager:           manager,
			In:                stdinR,
			Out:               stdoutW,
			HeartbeatInterval: -1,
			ShutdownTimeout:   200 * time.Millisecond,
		})
	}()

	for i := 1; i <= 3; i++ {
		line := fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"method":"ping"}`+"\n", i)
		if _, err := io.WriteString(stdinW, line); err != nil {
			t.Fatalf("write stdin: %v", err)
		}
	}
	time.Sleep(100 * time.Millisecond)

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("RunStdio() error = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("RunStdio still running after signal with a stalled stdout")
	}
	if manager.Len() != 0 {
		t.Fatalf("sessions = %d, want 0", manager.Len())
	}
}
