package tool

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// RecoverMiddleware converts a panicking tool handler into an error-flagged
// result so the session and process survive it.
func RecoverMiddleware(logger *slog.Logger, observer Observer) server.ToolHandlerMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	observer = observerOrNoop(observer)
	return func(next server.ToolHandlerFunc) server.ToolHandlerFunc {
		return func(ctx context.Context, req mcp.CallToolRequest) (result *mcp.CallToolResult, err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("tool handler panic",
						"tool", req.Params.Name,
						"session_id", sessionIDFromContext(ctx),
						"panic", r,
						"stack", string(debug.Stack()),
					)
					observer.ObserveInvoke(InvokeObservation{
						ToolName:  req.Params.Name,
						SessionID: sessionIDFromContext(ctx),
						ErrorCode: ToolErrorCodeInternal,
					})
					result = mcp.NewToolResultError(fmt.Sprintf("%s: internal error while handling %s", ToolErrorCodeInternal, req.Params.Name))
					err = nil
				}
			}()
			return next(ctx, req)
		}
	}
}
