package openai

import (
	"encoding/json"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/CalvinSturm/LocalAgent/internal/ltypes"
)

func TestConvertMessages(t *testing.T) {
	tests := []struct {
		name     string
		messages []ltypes.Message
		wantLen  int
	}{
		{
			name: "system and user",
			messages: []ltypes.Message{
				{Role: ltypes.RoleSystem, Content: "be terse"},
				{Role: ltypes.RoleUser, Content: "hello"},
			},
			wantLen: 2,
		},
		{
			name: "assistant with tool call",
			messages: []ltypes.Message{
				{
					Role: ltypes.RoleAssistant,
					ToolCalls: []ltypes.ToolCall{
						{ID: "tc_1", Name: "read_file", Arguments: json.RawMessage(`{"path":"a.go"}`)},
					},
				},
			},
			wantLen: 1,
		},
		{
			name: "tool result",
			messages: []ltypes.Message{
				{Role: ltypes.RoleTool, ToolCallID: "tc_1", ToolName: "read_file", Content: "package main"},
			},
			wantLen: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := convertMessages(tt.messages)
			if len(got) != tt.wantLen {
				t.Fatalf("convertMessages() got %d messages, want %d", len(got), tt.wantLen)
			}
		})
	}
}

func TestConvertMessagesPreservesToolCallShape(t *testing.T) {
	got := convertMessages([]ltypes.Message{
		{
			Role: ltypes.RoleAssistant,
			ToolCalls: []ltypes.ToolCall{
				{ID: "tc_1", Name: "read_file", Arguments: json.RawMessage(`{"path":"a.go"}`)},
			},
		},
	})
	if len(got) != 1 || len(got[0].ToolCalls) != 1 {
		t.Fatalf("expected one message with one tool call, got %+v", got)
	}
	if got[0].ToolCalls[0].Function.Name != "read_file" {
		t.Fatalf("unexpected function name %q", got[0].ToolCalls[0].Function.Name)
	}
	if got[0].ToolCalls[0].Function.Arguments != `{"path":"a.go"}` {
		t.Fatalf("unexpected arguments %q", got[0].ToolCalls[0].Function.Arguments)
	}
}

func TestConvertTools(t *testing.T) {
	tools := []ltypes.ToolDef{
		{
			Name:        "read_file",
			Description: "Read a file",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`),
		},
	}
	got := convertTools(tools)
	if len(got) != 1 {
		t.Fatalf("expected one tool, got %d", len(got))
	}
	if got[0].Function.Name != "read_file" {
		t.Fatalf("unexpected tool name %q", got[0].Function.Name)
	}
	if got[0].Type != openai.ToolTypeFunction {
		t.Fatalf("unexpected tool type %q", got[0].Type)
	}
}

func TestConvertResponseExtractsToolCalls(t *testing.T) {
	msg := openai.ChatCompletionMessage{
		Content: "thinking...",
		ToolCalls: []openai.ToolCall{
			{ID: "tc_1", Type: openai.ToolTypeFunction, Function: openai.FunctionCall{Name: "list_dir", Arguments: `{"path":"."}`}},
		},
	}
	resp := convertResponse(msg)
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Name != "list_dir" {
		t.Fatalf("unexpected converted response: %+v", resp)
	}
	if resp.Assistant.Content != "thinking..." {
		t.Fatalf("unexpected assistant content: %q", resp.Assistant.Content)
	}
}

func TestIsRetryableTransientMessage(t *testing.T) {
	err := errTimeout{}
	if !isRetryable(err) {
		t.Fatalf("expected timeout-ish error to be retryable")
	}
}

type errTimeout struct{}

func (errTimeout) Error() string { return "request timeout talking to upstream" }
