package anthropic

import (
	"encoding/json"
	"testing"

	"github.com/CalvinSturm/LocalAgent/internal/ltypes"
)

func TestConvertMessagesFoldsSystemAndDeveloper(t *testing.T) {
	system, out, err := convertMessages([]ltypes.Message{
		{Role: ltypes.RoleSystem, Content: "be terse"},
		{Role: ltypes.RoleDeveloper, Content: "tool-only phase"},
		{Role: ltypes.RoleUser, Content: "hello"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if system != "be terse\n\ntool-only phase" {
		t.Fatalf("unexpected folded system text: %q", system)
	}
	if len(out) != 1 {
		t.Fatalf("expected one non-system message, got %d", len(out))
	}
}

func TestConvertMessagesToolResult(t *testing.T) {
	_, out, err := convertMessages([]ltypes.Message{
		{Role: ltypes.RoleTool, ToolCallID: "tc_1", ToolName: "read_file", Content: "package main"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected one message, got %d", len(out))
	}
}

func TestConvertMessagesAssistantWithToolCall(t *testing.T) {
	_, out, err := convertMessages([]ltypes.Message{
		{
			Role:    ltypes.RoleAssistant,
			Content: "reading the file",
			ToolCalls: []ltypes.ToolCall{
				{ID: "tc_1", Name: "read_file", Arguments: json.RawMessage(`{"path":"a.go"}`)},
			},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected one assistant message, got %d", len(out))
	}
}

func TestConvertMessagesRejectsBadToolArguments(t *testing.T) {
	_, _, err := convertMessages([]ltypes.Message{
		{
			Role: ltypes.RoleAssistant,
			ToolCalls: []ltypes.ToolCall{
				{ID: "tc_1", Name: "read_file", Arguments: json.RawMessage(`not json`)},
			},
		},
	})
	if err == nil {
		t.Fatalf("expected an error for malformed tool call arguments")
	}
}

func TestConvertToolsCarriesRequired(t *testing.T) {
	tools := []ltypes.ToolDef{
		{
			Name:        "read_file",
			Description: "Read a file",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`),
		},
	}
	out := convertTools(tools)
	if len(out) != 1 {
		t.Fatalf("expected one tool, got %d", len(out))
	}
	param := out[0].OfTool
	if param == nil {
		t.Fatalf("expected OfTool to be set")
	}
	if param.Name != "read_file" {
		t.Fatalf("unexpected tool name %q", param.Name)
	}
	if len(param.InputSchema.Required) != 1 || param.InputSchema.Required[0] != "path" {
		t.Fatalf("unexpected required fields: %+v", param.InputSchema.Required)
	}
}

func TestConvertToolsSkipsUnparsableSchema(t *testing.T) {
	tools := []ltypes.ToolDef{
		{Name: "broken", Parameters: json.RawMessage(`not json`)},
	}
	out := convertTools(tools)
	if len(out) != 0 {
		t.Fatalf("expected unparsable schema to be skipped, got %+v", out)
	}
}

func TestIsRetryableStatusCodes(t *testing.T) {
	if isRetryable(plainError{}) != true {
		t.Fatalf("expected non-API errors to default to retryable")
	}
}

type plainError struct{}

func (plainError) Error() string { return "network blip" }
