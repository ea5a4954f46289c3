package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cobra"

	"github.com/petal-labs/perplexity-mcp/perplexity"
	"github.com/petal-labs/perplexity-mcp/tool"
)

// NewAskCmd creates the "ask" subcommand, a small client that sends one
// question through perplexity-chat.
func NewAskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask",
		Short: "Send one question through the perplexity-chat tool",
		Example: `  perplexity-mcp ask -q "Tell me about quantum computing"
  perplexity-mcp ask -m sonar-pro -q "Explain neural networks" -t 0.9
  perplexity-mcp ask --url http://127.0.0.1:3000/sse -q "What is MCP?"`,
		Args: cobra.NoArgs,
		RunE: runAsk,
	}

	cmd.Flags().StringP("query", "q", "", "The question to send (required)")
	cmd.Flags().StringP("model", "m", perplexity.DefaultModel, "Model to use")
	cmd.Flags().Float64P("temperature", "t", 0.7, "Sampling temperature (0-2)")
	cmd.Flags().Int("max-tokens", 1000, "Maximum tokens to generate")
	cmd.Flags().String("format", string(perplexity.OutputMarkdown), "Output format: markdown | json")
	cmd.Flags().Duration("timeout", 2*time.Minute, "Overall request timeout")
	addClientFlags(cmd)
	_ = cmd.MarkFlagRequired("query")

	return cmd
}

func runAsk(cmd *cobra.Command, _ []string) error {
	query, _ := cmd.Flags().GetString("query")
	model, _ := cmd.Flags().GetString("model")
	temperature, _ := cmd.Flags().GetFloat64("temperature")
	maxTokens, _ := cmd.Flags().GetInt("max-tokens")
	format, _ := cmd.Flags().GetString("format")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	if strings.TrimSpace(query) == "" {
		return exitError(exitValidation, "--query must not be empty")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	client, _, err := connectClient(ctx, cmd)
	if err != nil {
		return exitError(exitRuntime, "connecting to server: %v", err)
	}
	defer func() { _ = client.Close() }()

	if _, _, err := requireTool(ctx, client, tool.ChatToolName); err != nil {
		return askError(ctx, err)
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = tool.ChatToolName
	req.Params.Arguments = map[string]any{
		"model":         model,
		"messages":      []map[string]any{{"role": "user", "content": query}},
		"temperature":   temperature,
		"max_tokens":    maxTokens,
		"output_format": format,
	}
	result, err := client.CallTool(ctx, req)
	if err != nil {
		return askError(ctx, err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), resultText(result))
	if result.IsError {
		return exitError(exitProvider, "perplexity-chat returned an error")
	}
	return nil
}

// askError maps client failures to exit codes. JSON-RPC errors, such as
// rejected arguments, arrive as plain errors from the client.
func askError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
		return exitError(exitTimeout, "request timed out: %v", err)
	}
	return exitError(exitValidation, "%v", err)
}
