// Package transport binds MCP sessions to concrete connections: a single
// stdin/stdout pipe (RunStdio) or many Server-Sent Events streams
// (SSEHandler).
package transport
