package tool

import (
	"encoding/json"
	"errors"
	"slices"
	"testing"
)

func TestInputSchemaShape(t *testing.T) {
	raw, err := InputSchema()
	if err != nil {
		t.Fatalf("InputSchema() error = %v", err)
	}
	var schema map[string]any
	if err := json.Unmarshal(raw, &schema); err != nil {
		t.Fatalf("Unmarshal(schema) error = %v", err)
	}

	if schema["type"] != "object" {
		t.Fatalf("type = %v, want object", schema["type"])
	}
	if _, ok := schema["$ref"]; ok {
		t.Fatal("schema uses $ref, want inlined definitions")
	}

	required, _ := schema["required"].([]any)
	if !slices.Contains(required, any("messages")) {
		t.Fatalf("required = %v, want messages", required)
	}
	if slices.Contains(required, any("model")) {
		t.Fatalf("required = %v, model must be optional", required)
	}

	props := schema["properties"].(map[string]any)
	temperature := props["temperature"].(map[string]any)
	if temperature["minimum"] != float64(0) || temperature["maximum"] != float64(2) {
		t.Fatalf("temperature = %v, want 0..2", temperature)
	}
	model := props["model"].(map[string]any)
	if model["default"] != "sonar" {
		t.Fatalf("model default = %v, want sonar", model["default"])
	}
	format := props["output_format"].(map[string]any)
	if enum, _ := format["enum"].([]any); len(enum) != 2 {
		t.Fatalf("output_format enum = %v", format["enum"])
	}
	recency := props["search_recency_filter"].(map[string]any)
	if enum, _ := recency["enum"].([]any); len(enum) != 4 {
		t.Fatalf("search_recency_filter enum = %v", recency["enum"])
	}
}

func TestDecodeInputNullArguments(t *testing.T) {
	_, err := DecodeInput(nil)
	var toolErr *ToolError
	if !errors.As(err, &toolErr) || toolErr.Code != ToolErrorCodeInvalidArguments {
		t.Fatalf("DecodeInput(nil) error = %v, want INVALID_ARGUMENTS", err)
	}
	diags, _ := toolErr.Details["diagnostics"].([]Diagnostic)
	if len(diags) != 1 || diags[0].Field != "messages" {
		t.Fatalf("diagnostics = %+v, want messages", diags)
	}
}

func TestDecodeInputNestedDiagnostic(t *testing.T) {
	_, err := DecodeInput(map[string]any{
		"messages": []any{
			map[string]any{"role": "user", "content": "a"},
			map[string]any{"role": "robot", "content": "b"},
		},
	})
	var toolErr *ToolError
	if !errors.As(err, &toolErr) {
		t.Fatalf("error = %v, want *ToolError", err)
	}
	diags := toolErr.Details["diagnostics"].([]Diagnostic)
	if diags[0].Field != "messages[1].role" || diags[0].Code != "oneof" {
		t.Fatalf("diagnostic = %+v", diags[0])
	}
}

func TestChatRequestDropsOutputFormat(t *testing.T) {
	content := "hi"
	in := ChatInput{
		Messages:     []ChatMessage{{Role: "user", Content: &content}},
		OutputFormat: "json",
	}.withDefaults()
	payload, err := json.Marshal(in.ChatRequest())
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var fields map[string]any
	_ = json.Unmarshal(payload, &fields)
	if _, ok := fields["output_format"]; ok {
		t.Fatalf("payload = %s, want no output_format", payload)
	}
	if fields["model"] != "sonar" {
		t.Fatalf("payload = %s, want default model", payload)
	}
}
