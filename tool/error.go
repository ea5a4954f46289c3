package tool

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// ToolErrorCodeInvalidArguments is returned when invocation arguments fail validation.
	ToolErrorCodeInvalidArguments = "INVALID_ARGUMENTS"
	// ToolErrorCodeInternal is used when a handler panics.
	ToolErrorCodeInternal = "INTERNAL"
	// ToolErrorCodeConfiguration mirrors a missing-credential result.
	ToolErrorCodeConfiguration = "CONFIGURATION"
	// ToolErrorCodeUpstreamFailure is used for non-success upstream responses.
	ToolErrorCodeUpstreamFailure = "UPSTREAM_FAILURE"
	// ToolErrorCodeTransportFailure is used when the upstream call fails in transit.
	ToolErrorCodeTransportFailure = "TRANSPORT_FAILURE"
	// ToolErrorCodeDecodeFailure is used when the upstream body cannot be rendered.
	ToolErrorCodeDecodeFailure = "DECODE_FAILURE"
	// ToolErrorCodeInvocationFailed is a generic fallback.
	ToolErrorCodeInvocationFailed = "INVOCATION_FAILED"
)

// ToolError is a structured invocation error with a machine-readable code.
type ToolError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Cause   error          `json:"-"`
}

func (e *ToolError) Error() string {
	if e == nil {
		return ""
	}
	code := strings.TrimSpace(e.Code)
	msg := strings.TrimSpace(e.Message)
	switch {
	case code == "" && msg == "":
		return ToolErrorCodeInvocationFailed
	case code == "":
		return msg
	case msg == "":
		return code
	default:
		return fmt.Sprintf("%s: %s", code, msg)
	}
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *ToolError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func newToolError(code, message string, cause error) *ToolError {
	cleanCode := strings.TrimSpace(code)
	if cleanCode == "" {
		cleanCode = ToolErrorCodeInvocationFailed
	}
	cleanMsg := strings.TrimSpace(message)
	if cleanMsg == "" && cause != nil {
		cleanMsg = cause.Error()
	}
	return &ToolError{
		Code:    cleanCode,
		Message: cleanMsg,
		Cause:   cause,
	}
}

func withToolErrorDetails(err *ToolError, details map[string]any) *ToolError {
	if err == nil {
		return nil
	}
	if len(details) == 0 {
		return err
	}
	if err.Details == nil {
		err.Details = make(map[string]any, len(details))
	}
	for key, value := range details {
		err.Details[key] = value
	}
	return err
}

// ToolErrorCode returns the code of a *ToolError in err's chain, or "".
func ToolErrorCode(err error) string {
	var toolErr *ToolError
	if errors.As(err, &toolErr) && toolErr != nil {
		return toolErr.Code
	}
	return ""
}
