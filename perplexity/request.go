package perplexity

// Message is one role-tagged turn of the conversation sent upstream.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the upstream request body. Optional fields are pointers so
// that unset values are omitted from the wire payload instead of being sent as
// zero values.
type ChatRequest struct {
	Model                  string    `json:"model"`
	Messages               []Message `json:"messages"`
	Temperature            *float64  `json:"temperature,omitempty"`
	MaxTokens              *int      `json:"max_tokens,omitempty"`
	TopP                   *float64  `json:"top_p,omitempty"`
	SearchDomainFilter     []string  `json:"search_domain_filter,omitempty"`
	ReturnImages           *bool     `json:"return_images,omitempty"`
	ReturnRelatedQuestions *bool     `json:"return_related_questions,omitempty"`
	SearchRecencyFilter    *string   `json:"search_recency_filter,omitempty"`
	TopK                   *int      `json:"top_k,omitempty"`
	Stream                 *bool     `json:"stream,omitempty"`
	PresencePenalty        *float64  `json:"presence_penalty,omitempty"`
	FrequencyPenalty       *float64  `json:"frequency_penalty,omitempty"`
}

// OutputFormat selects how a successful upstream body is rendered.
type OutputFormat string

const (
	// OutputMarkdown renders a text digest with numbered references.
	OutputMarkdown OutputFormat = "markdown"
	// OutputJSON returns the upstream body untouched.
	OutputJSON OutputFormat = "json"
)

// DefaultModel is used when an invocation does not name a model.
const DefaultModel = "sonar"
