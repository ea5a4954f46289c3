package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/petal-labs/perplexity-mcp/tool"
)

// NewValidateCmd creates the "validate" subcommand.
func NewValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Start a server, run the MCP handshake and check that perplexity-chat is listed",
		Args:  cobra.NoArgs,
		RunE:  runValidate,
	}

	cmd.Flags().Duration("timeout", 5*time.Second, "Handshake timeout")
	addClientFlags(cmd)

	return cmd
}

func runValidate(cmd *cobra.Command, _ []string) error {
	timeout, _ := cmd.Flags().GetDuration("timeout")
	out := cmd.OutOrStdout()

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	fmt.Fprintln(out, "Starting MCP server...")
	client, target, err := connectClient(ctx, cmd)
	if err != nil {
		return exitError(exitRuntime, "server validation failed: %v", err)
	}
	defer func() { _ = client.Close() }()

	info, tools, err := requireTool(ctx, client, tool.ChatToolName)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return exitError(exitTimeout, "server validation failed: timeout waiting for %s after %s", target, timeout)
		}
		return exitError(exitValidation, "server validation failed: %v", err)
	}

	names := make([]string, 0, len(tools))
	for _, t := range tools {
		names = append(names, t.Name)
	}

	fmt.Fprintf(out, "Server validation successful: %s %s (protocol %s)\n",
		info.ServerInfo.Name, info.ServerInfo.Version, info.ProtocolVersion)
	fmt.Fprintf(out, "Found %d tool(s): %v\n", len(names), names)
	return nil
}
