package tool

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Diagnostic is a structured validation finding.
type Diagnostic struct {
	Field   string `json:"field,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

var argValidator = newArgValidator()

func newArgValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// DecodeInput binds raw invocation arguments into a ChatInput and validates
// it. Any failure, including a JSON type mismatch, is returned as a
// *ToolError with code INVALID_ARGUMENTS.
func DecodeInput(arguments any) (ChatInput, error) {
	raw, err := json.Marshal(arguments)
	if err != nil {
		return ChatInput{}, invalidArguments([]Diagnostic{{Code: "encode", Message: err.Error()}}, err)
	}
	if string(raw) == "null" {
		raw = []byte("{}")
	}

	var in ChatInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return ChatInput{}, invalidArguments([]Diagnostic{decodeDiagnostic(err)}, err)
	}
	if err := ValidateInput(in); err != nil {
		return ChatInput{}, err
	}
	return in.withDefaults(), nil
}

// ValidateInput checks required fields, ranges and enumerations.
func ValidateInput(in ChatInput) error {
	err := argValidator.Struct(in)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return invalidArguments([]Diagnostic{{Code: "invalid", Message: err.Error()}}, err)
	}
	diags := make([]Diagnostic, 0, len(verrs))
	for _, fe := range verrs {
		diags = append(diags, fieldDiagnostic(fe))
	}
	return invalidArguments(diags, err)
}

func fieldDiagnostic(fe validator.FieldError) Diagnostic {
	field := strings.TrimPrefix(fe.Namespace(), "ChatInput.")
	var msg string
	switch fe.Tag() {
	case "required":
		msg = fmt.Sprintf("%s is required", field)
	case "min":
		msg = fmt.Sprintf("%s must contain at least %s item(s)", field, fe.Param())
	case "gte":
		msg = fmt.Sprintf("%s must be >= %s", field, fe.Param())
	case "lte":
		msg = fmt.Sprintf("%s must be <= %s", field, fe.Param())
	case "oneof":
		msg = fmt.Sprintf("%s must be one of [%s]", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	default:
		msg = fmt.Sprintf("%s failed %q validation", field, fe.Tag())
	}
	return Diagnostic{Field: field, Code: fe.Tag(), Message: msg}
}

func decodeDiagnostic(err error) Diagnostic {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return Diagnostic{
			Field:   typeErr.Field,
			Code:    "type",
			Message: fmt.Sprintf("%s must be %s, got %s", typeErr.Field, typeErr.Type.String(), typeErr.Value),
		}
	}
	return Diagnostic{Code: "decode", Message: err.Error()}
}

func invalidArguments(diags []Diagnostic, cause error) *ToolError {
	messages := make([]string, 0, len(diags))
	for _, d := range diags {
		messages = append(messages, d.Message)
	}
	toolErr := newToolError(ToolErrorCodeInvalidArguments, "invalid arguments: "+strings.Join(messages, "; "), cause)
	return withToolErrorDetails(toolErr, map[string]any{"diagnostics": diags})
}
