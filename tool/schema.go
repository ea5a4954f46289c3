package tool

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/petal-labs/perplexity-mcp/perplexity"
)

// ChatMessage is one conversation turn in a tool invocation.
type ChatMessage struct {
	Role    string  `json:"role" validate:"required,oneof=system user assistant" jsonschema:"enum=system,enum=user,enum=assistant"`
	Content *string `json:"content" validate:"required"`
}

// ChatInput is the argument shape of the perplexity-chat tool. Validation
// tags and schema tags describe the same constraints.
type ChatInput struct {
	Model                  string        `json:"model,omitempty" jsonschema:"default=sonar" jsonschema_description:"The name of the model to use (e.g. 'sonar', 'sonar-pro', 'sonar-reasoning', 'sonar-deep-research')"`
	Messages               []ChatMessage `json:"messages" validate:"required,min=1,dive" jsonschema:"minItems=1" jsonschema_description:"The messages to send to the model"`
	Temperature            *float64      `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2" jsonschema:"minimum=0,maximum=2" jsonschema_description:"Controls randomness (0-2)"`
	MaxTokens              *int          `json:"max_tokens,omitempty" validate:"omitempty,gte=0" jsonschema:"minimum=0" jsonschema_description:"Maximum number of tokens to generate"`
	TopP                   *float64      `json:"top_p,omitempty" validate:"omitempty,gte=0,lte=1" jsonschema:"minimum=0,maximum=1" jsonschema_description:"Controls diversity via nucleus sampling (0-1)"`
	SearchDomainFilter     []string      `json:"search_domain_filter,omitempty" jsonschema_description:"Limit citations to specific domains"`
	ReturnImages           *bool         `json:"return_images,omitempty" jsonschema_description:"Whether to return images in the response"`
	ReturnRelatedQuestions *bool         `json:"return_related_questions,omitempty" jsonschema_description:"Whether to return related questions"`
	SearchRecencyFilter    *string       `json:"search_recency_filter,omitempty" validate:"omitempty,oneof=month week day hour" jsonschema:"enum=month,enum=week,enum=day,enum=hour" jsonschema_description:"Filter search results by recency"`
	TopK                   *int          `json:"top_k,omitempty" jsonschema_description:"Maximum number of search results to consider"`
	Stream                 *bool         `json:"stream,omitempty" jsonschema_description:"Whether to stream the response"`
	PresencePenalty        *float64      `json:"presence_penalty,omitempty" jsonschema_description:"Penalizes new tokens based on presence in the text so far"`
	FrequencyPenalty       *float64      `json:"frequency_penalty,omitempty" jsonschema_description:"Penalizes new tokens based on frequency in the text so far"`
	OutputFormat           string        `json:"output_format,omitempty" validate:"omitempty,oneof=json markdown" jsonschema:"enum=json,enum=markdown,default=markdown" jsonschema_description:"Format to return the response in"`
}

// InputSchema returns the JSON Schema for ChatInput with nested types
// inlined, as MCP clients expect a self-contained object schema.
func InputSchema() (json.RawMessage, error) {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	schema := r.Reflect(&ChatInput{})
	schema.Version = ""
	schema.ID = ""

	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("tool: marshal input schema: %w", err)
	}
	return raw, nil
}

// withDefaults fills the two defaulted fields. Every other optional field
// stays unset.
func (in ChatInput) withDefaults() ChatInput {
	if in.Model == "" {
		in.Model = perplexity.DefaultModel
	}
	if in.OutputFormat == "" {
		in.OutputFormat = string(perplexity.OutputMarkdown)
	}
	return in
}

// ChatRequest converts validated input into the upstream payload.
// OutputFormat is a rendering choice and is not sent upstream.
func (in ChatInput) ChatRequest() perplexity.ChatRequest {
	messages := make([]perplexity.Message, 0, len(in.Messages))
	for _, m := range in.Messages {
		msg := perplexity.Message{Role: m.Role}
		if m.Content != nil {
			msg.Content = *m.Content
		}
		messages = append(messages, msg)
	}
	return perplexity.ChatRequest{
		Model:                  in.Model,
		Messages:               messages,
		Temperature:            in.Temperature,
		MaxTokens:              in.MaxTokens,
		TopP:                   in.TopP,
		SearchDomainFilter:     in.SearchDomainFilter,
		ReturnImages:           in.ReturnImages,
		ReturnRelatedQuestions: in.ReturnRelatedQuestions,
		SearchRecencyFilter:    in.SearchRecencyFilter,
		TopK:                   in.TopK,
		Stream:                 in.Stream,
		PresencePenalty:        in.PresencePenalty,
		FrequencyPenalty:       in.FrequencyPenalty,
	}
}
