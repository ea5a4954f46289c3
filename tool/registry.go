package tool

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/petal-labs/perplexity-mcp/perplexity"
)

// ChatToolName is the name the tool is registered under.
const ChatToolName = "perplexity-chat"

const chatToolDescription = "Generate a chat completion using the Perplexity AI API"

// Chatter performs one upstream chat completion and renders it.
type Chatter interface {
	Chat(ctx context.Context, req perplexity.ChatRequest, format perplexity.OutputFormat) perplexity.Result
}

// RegistryConfig configures tool registration.
type RegistryConfig struct {
	Chatter  Chatter
	Observer Observer
	Logger   *slog.Logger
	Now      func() time.Time
}

// NewChatTool declares perplexity-chat with its generated input schema.
func NewChatTool() (mcp.Tool, error) {
	schema, err := InputSchema()
	if err != nil {
		return mcp.Tool{}, err
	}
	return mcp.NewToolWithRawSchema(ChatToolName, chatToolDescription, schema), nil
}

// Register adds perplexity-chat to srv.
func Register(srv *server.MCPServer, cfg RegistryConfig) error {
	if srv == nil {
		return errors.New("tool: mcp server is nil")
	}
	handler, err := NewChatHandler(cfg)
	if err != nil {
		return err
	}
	declared, err := NewChatTool()
	if err != nil {
		return err
	}
	srv.AddTool(declared, handler.Handle)
	return nil
}

// ChatHandler serves perplexity-chat invocations.
type ChatHandler struct {
	chatter  Chatter
	observer Observer
	logger   *slog.Logger
	now      func() time.Time
}

// NewChatHandler creates a ChatHandler.
func NewChatHandler(cfg RegistryConfig) (*ChatHandler, error) {
	if cfg.Chatter == nil {
		return nil, errors.New("tool: chatter is nil")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &ChatHandler{
		chatter:  cfg.Chatter,
		observer: observerOrNoop(cfg.Observer),
		logger:   logger.With("component", "tool", "tool", ChatToolName),
		now:      now,
	}, nil
}

// Handle validates arguments, calls upstream and converts the rendered
// result. Invalid arguments are returned as a *ToolError and never reach
// the upstream API.
func (h *ChatHandler) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	started := h.now()
	sessionID := sessionIDFromContext(ctx)

	input, err := DecodeInput(req.GetArguments())
	if err != nil {
		h.logger.Warn("rejected invocation", "session_id", sessionID, "error", err)
		h.observer.ObserveInvoke(InvokeObservation{
			ToolName:   ChatToolName,
			SessionID:  sessionID,
			DurationMS: h.now().Sub(started).Milliseconds(),
			ErrorCode:  ToolErrorCode(err),
		})
		return nil, err
	}

	result := h.chatter.Chat(ctx, input.ChatRequest(), perplexity.OutputFormat(input.OutputFormat))

	h.observer.ObserveInvoke(InvokeObservation{
		ToolName:   ChatToolName,
		SessionID:  sessionID,
		Model:      input.Model,
		Format:     input.OutputFormat,
		DurationMS: h.now().Sub(started).Milliseconds(),
		Success:    !result.IsError,
		ErrorCode:  failureCode(result.Failure),
	})

	if result.IsError {
		return mcp.NewToolResultError(result.Text), nil
	}
	return mcp.NewToolResultText(result.Text), nil
}

func failureCode(kind perplexity.FailureKind) string {
	switch kind {
	case perplexity.FailureNone:
		return ""
	case perplexity.FailureConfiguration:
		return ToolErrorCodeConfiguration
	case perplexity.FailureUpstreamStatus:
		return ToolErrorCodeUpstreamFailure
	case perplexity.FailureTransport:
		return ToolErrorCodeTransportFailure
	case perplexity.FailureDecode:
		return ToolErrorCodeDecodeFailure
	default:
		return ToolErrorCodeInvocationFailed
	}
}

func sessionIDFromContext(ctx context.Context) string {
	if session := server.ClientSessionFromContext(ctx); session != nil {
		return session.SessionID()
	}
	return ""
}
