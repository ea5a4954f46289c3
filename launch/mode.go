// Package launch decides, once at startup, which transport the server runs.
package launch

import (
	"fmt"
	"strings"
)

// Mode is the selected transport.
type Mode string

const (
	ModeStdio Mode = "stdio"
	ModeSSE   Mode = "sse"
)

// ParseMode validates an explicit mode name.
func ParseMode(value string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(value))) {
	case ModeStdio:
		return ModeStdio, nil
	case ModeSSE, "http":
		return ModeSSE, nil
	default:
		return "", fmt.Errorf("unknown transport %q (want stdio or sse)", value)
	}
}

// Context is everything Classify looks at. It is built from parsed flags,
// positional arguments and an environment snapshot so that classification
// stays a pure function.
type Context struct {
	// Transport is the explicit --transport value, if any.
	Transport string

	StdioFlag     bool
	InspectorFlag bool
	SSEFlag       bool
	PortSet       bool

	// Args are positional arguments and flags unknown to this program. Flags
	// of this program and their values must not be included.
	Args []string

	// Env is a read-only environment lookup.
	Env func(key string) string
}

// Reason explains a classification for startup logs.
type Reason string

// Classify picks the transport. Rules, first match wins:
//
//  1. an explicit --transport value
//  2. pipe indicators: --stdio, --inspector, MCP_INSPECTOR, or an argument
//     containing "inspector" or "--args="
//  3. MCP_TRANSPORT
//  4. network indicators: --sse or an explicit --port
//  5. stdio
func Classify(c Context) (Mode, Reason, error) {
	env := c.Env
	if env == nil {
		env = func(string) string { return "" }
	}

	if strings.TrimSpace(c.Transport) != "" {
		mode, err := ParseMode(c.Transport)
		if err != nil {
			return "", "", err
		}
		return mode, "--transport flag", nil
	}

	switch {
	case c.StdioFlag:
		return ModeStdio, "--stdio flag", nil
	case c.InspectorFlag:
		return ModeStdio, "--inspector flag", nil
	case strings.TrimSpace(env("MCP_INSPECTOR")) != "":
		return ModeStdio, "MCP_INSPECTOR set", nil
	}
	for _, arg := range c.Args {
		if strings.Contains(arg, "--args=") || strings.Contains(strings.ToLower(arg), "inspector") {
			return ModeStdio, Reason(fmt.Sprintf("argument %q", arg)), nil
		}
	}

	if value := strings.TrimSpace(env("MCP_TRANSPORT")); value != "" {
		mode, err := ParseMode(value)
		if err != nil {
			return "", "", fmt.Errorf("MCP_TRANSPORT: %w", err)
		}
		return mode, "MCP_TRANSPORT set", nil
	}

	if c.SSEFlag {
		return ModeSSE, "--sse flag", nil
	}
	if c.PortSet {
		return ModeSSE, "--port flag", nil
	}
	return ModeStdio, "no network indicators", nil
}
