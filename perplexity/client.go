package perplexity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// DefaultBaseURL is the public Perplexity API endpoint.
const DefaultBaseURL = "https://api.perplexity.ai"

const completionsPath = "/chat/completions"

// MissingKeyMessage is returned when no API key is configured.
const MissingKeyMessage = "Missing PERPLEXITY_API_KEY environment variable. " +
	"If you're using Claude Desktop, add this to your claude_desktop_config.json file under the 'env' section. Example:\n\n" +
	"{\n" +
	"  \"mcpServers\": {\n" +
	"    \"perplexity\": {\n" +
	"      \"command\": \"/absolute/path/to/perplexity-mcp\",\n" +
	"      \"args\": [\"--stdio\"],\n" +
	"      \"env\": {\n" +
	"        \"PERPLEXITY_API_KEY\": \"your-api-key-here\"\n" +
	"      }\n" +
	"    }\n" +
	"  }\n" +
	"}"

// ClientConfig configures a Client.
type ClientConfig struct {
	// APIKey is the bearer credential. An empty key is not an error at
	// construction time; every Chat call then returns guidance text.
	APIKey string

	// BaseURL defaults to DefaultBaseURL.
	BaseURL string

	// HTTPClient defaults to a shared pooled client with no timeout.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// Client issues chat-completion calls.
type Client struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Client.
func NewClient(cfg ClientConfig) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = defaultHTTPClient()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		endpoint:   base + completionsPath,
		httpClient: httpClient,
		logger:     logger.With("component", "perplexity"),
	}
}

// Chat performs one upstream call and renders the outcome. It never returns a
// Go error: every failure is an error-flagged Result.
func (c *Client) Chat(ctx context.Context, req ChatRequest, format OutputFormat) Result {
	if c.apiKey == "" {
		c.logger.Error("missing PERPLEXITY_API_KEY")
		return errorResult(FailureConfiguration, MissingKeyMessage)
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return errorResult(FailureRequest, fmt.Sprintf("Error calling Perplexity API: %v", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return errorResult(FailureRequest, fmt.Sprintf("Error calling Perplexity API: %v", err))
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	c.logger.Debug("calling upstream", "model", req.Model, "messages", len(req.Messages))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error("upstream call failed", "error", err)
		return errorResult(FailureTransport, fmt.Sprintf("Error calling Perplexity API: %v", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Error("reading upstream body failed", "error", err)
		return errorResult(FailureTransport, fmt.Sprintf("Error calling Perplexity API: %v", err))
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		c.logger.Error("upstream returned non-success status", "status", resp.StatusCode)
		return errorResult(FailureUpstreamStatus, fmt.Sprintf("Perplexity API error (%d): %s", resp.StatusCode, body))
	}

	c.logger.Debug("upstream response received", "bytes", len(body))
	result := Format(format, body)
	if result.IsError {
		c.logger.Warn("rendering upstream body failed", "format", string(format), "preview", preview(body))
	}
	return result
}
