// Package perplexity adapts validated tool invocations into calls against the
// Perplexity chat-completions API and renders the upstream body for MCP
// clients.
//
// A Client performs exactly one POST per invocation. There are no retries, no
// backoff and no client-side timeout; cancellation comes only from the caller's
// context. Every failure is converted into an error-flagged Result rather than
// returned as a Go error, so the protocol layer can report a failed tool call
// without tearing down the session.
//
// Rendering has two modes:
//
//	OutputJSON      the upstream body byte-for-byte
//	OutputMarkdown  choice texts joined by a blank line, then a numbered
//	                reference list
//
// Markdown rendering decodes through DecodeResponse, which distinguishes
// syntax failures from shape failures with a *DecodeError.
package perplexity
