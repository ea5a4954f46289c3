package perplexity

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ChatResponse is the decoded upstream completion body. Required members are
// pointers so the shape check can tell a missing field from a zero value.
type ChatResponse struct {
	ID        *string  `json:"id" validate:"required"`
	Model     *string  `json:"model" validate:"required"`
	Created   *int64   `json:"created" validate:"required"`
	Object    *string  `json:"object" validate:"required"`
	Usage     *Usage   `json:"usage" validate:"required"`
	Citations []string `json:"citations" validate:"required"`
	Choices   []Choice `json:"choices" validate:"required,dive"`
}

// Usage carries the upstream token counters.
type Usage struct {
	PromptTokens     *int64 `json:"prompt_tokens" validate:"required"`
	CompletionTokens *int64 `json:"completion_tokens" validate:"required"`
	TotalTokens      *int64 `json:"total_tokens" validate:"required"`
}

// Choice is one completion alternative.
type Choice struct {
	Index        *int64         `json:"index" validate:"required"`
	FinishReason *string        `json:"finish_reason" validate:"required"`
	Message      *ChoiceMessage `json:"message" validate:"required"`
	Delta        *ChoiceMessage `json:"delta,omitempty"`
}

// ChoiceMessage is the role-tagged text of a choice.
type ChoiceMessage struct {
	Role    *string `json:"role" validate:"required"`
	Content *string `json:"content" validate:"required"`
}

// DecodeKind tags why an upstream body could not be decoded.
type DecodeKind string

const (
	// DecodeSyntax means the body is not valid JSON.
	DecodeSyntax DecodeKind = "syntax"
	// DecodeShape means the body is JSON but does not match ChatResponse.
	DecodeShape DecodeKind = "shape"
)

// DecodeError reports a failed DecodeResponse.
type DecodeError struct {
	Kind DecodeKind
	Err  error
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("perplexity: decode response (%s): %v", e.Kind, e.Err)
}

// Unwrap exposes the underlying parse or validation error.
func (e *DecodeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

var shapeValidator = newShapeValidator()

func newShapeValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonFieldName)
	return v
}

// DecodeResponse parses and shape-checks an upstream body. Failures are
// always returned as *DecodeError.
func DecodeResponse(body []byte) (ChatResponse, error) {
	if !json.Valid(body) {
		var generic any
		err := json.Unmarshal(body, &generic)
		if err == nil {
			err = errors.New("invalid JSON")
		}
		return ChatResponse{}, &DecodeError{Kind: DecodeSyntax, Err: err}
	}

	var resp ChatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return ChatResponse{}, &DecodeError{Kind: DecodeShape, Err: err}
	}
	if err := shapeValidator.Struct(resp); err != nil {
		return ChatResponse{}, &DecodeError{Kind: DecodeShape, Err: err}
	}
	return resp, nil
}
