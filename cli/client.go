package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	mcptransport "github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cobra"
)

var errToolMissing = errors.New("tool not advertised by server")

// addClientFlags registers the flags shared by commands that talk to a
// server: either one spawned in pipe mode or one already listening.
func addClientFlags(cmd *cobra.Command) {
	cmd.Flags().String("url", "", "Stream endpoint of a running server, e.g. http://127.0.0.1:3000/sse (default: spawn a server)")
	cmd.Flags().String("auth-token", "", "Bearer token for --url")
	cmd.Flags().String("server", "", "Server binary to spawn (default: this executable)")
	cmd.Flags().StringArray("server-arg", []string{"--stdio"}, "Argument passed to the spawned server (repeatable)")
}

// connectClient starts an MCP client per the shared client flags. The
// returned target names the server for messages.
func connectClient(ctx context.Context, cmd *cobra.Command) (*client.Client, string, error) {
	url, _ := cmd.Flags().GetString("url")
	token, _ := cmd.Flags().GetString("auth-token")
	serverPath, _ := cmd.Flags().GetString("server")
	serverArgs, _ := cmd.Flags().GetStringArray("server-arg")
	verbose, _ := cmd.Flags().GetBool("verbose")

	if strings.TrimSpace(url) != "" {
		var options []mcptransport.ClientOption
		if token != "" {
			options = append(options, mcptransport.WithHeaders(map[string]string{
				"Authorization": "Bearer " + token,
			}))
		}
		c, err := client.NewSSEMCPClient(url, options...)
		if err != nil {
			return nil, "", err
		}
		if err := c.Start(ctx); err != nil {
			return nil, "", fmt.Errorf("connecting to %s: %w", url, err)
		}
		return c, url, nil
	}

	if serverPath == "" {
		self, err := os.Executable()
		if err != nil {
			return nil, "", fmt.Errorf("locating server binary: %w", err)
		}
		serverPath = self
	}
	stdio := mcptransport.NewStdio(serverPath, nil, serverArgs...)
	c := client.NewClient(stdio)
	if err := c.Start(ctx); err != nil {
		return nil, "", err
	}

	// The child blocks once its stderr pipe fills, so always drain it.
	var stderr io.Writer = io.Discard
	if verbose {
		stderr = cmd.ErrOrStderr()
	}
	go func() { _, _ = io.Copy(stderr, stdio.Stderr()) }()

	return c, serverPath, nil
}

// requireTool runs the handshake and fails unless name is advertised.
func requireTool(ctx context.Context, c *client.Client, name string) (*mcp.InitializeResult, []mcp.Tool, error) {
	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: "perplexity-mcp-cli", Version: "1"}
	info, err := c.Initialize(ctx, req)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize: %w", err)
	}

	list, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, nil, fmt.Errorf("tools/list: %w", err)
	}
	for _, t := range list.Tools {
		if t.Name == name {
			return info, list.Tools, nil
		}
	}
	return nil, nil, fmt.Errorf("%w: %s", errToolMissing, name)
}

// resultText joins the text blocks of a tool result.
func resultText(result *mcp.CallToolResult) string {
	var parts []string
	for _, content := range result.Content {
		if text, ok := mcp.AsTextContent(content); ok {
			parts = append(parts, text.Text)
		}
	}
	return strings.Join(parts, "\n")
}
