// Package tool declares the perplexity-chat MCP tool and its invocation
// boundary.
//
// The package is split by concern:
//   - schema: the ChatInput argument shape and its generated JSON Schema
//   - validate: argument validation diagnostics
//   - registry: tool declaration, defaults and the MCP handler
//   - middleware: the fault-isolation boundary around handlers
//   - observability: invocation observations for telemetry and the journal
//
// Validation failures are returned as *ToolError so the protocol layer
// reports them as JSON-RPC errors. Upstream, configuration and rendering
// failures are error-flagged tool results instead.
package tool
