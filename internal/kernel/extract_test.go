package kernel

import (
	"encoding/json"
	"testing"

	"github.com/CalvinSturm/LocalAgent/internal/ltypes"
)

func TestExtractToolCallsStructuredWins(t *testing.T) {
	resp := GenerateResponse{
		Assistant: ltypes.Message{Content: "ignored"},
		ToolCalls: []ltypes.ToolCall{{ID: "tc_1", Name: "read_file"}},
	}
	calls := ExtractToolCalls(resp, 0, map[string]bool{"read_file": true})
	if len(calls) != 1 || calls[0].ID != "tc_1" {
		t.Fatalf("expected structured tool call to win, got %+v", calls)
	}
}

func TestExtractToolCallsWrapped(t *testing.T) {
	content := `THOUGHT: reading the file
[TOOL_CALL]{"name":"read_file","arguments":{"path":"a.go"}}[END_TOOL_CALL]`
	resp := GenerateResponse{Assistant: ltypes.Message{Content: content}}
	calls := ExtractToolCalls(resp, 2, map[string]bool{"read_file": true})
	if len(calls) != 1 {
		t.Fatalf("expected one wrapped call, got %d", len(calls))
	}
	if calls[0].Name != "read_file" {
		t.Fatalf("unexpected tool name %q", calls[0].Name)
	}
	var args struct{ Path string `json:"path"` }
	if err := json.Unmarshal(calls[0].Arguments, &args); err != nil {
		t.Fatalf("bad arguments: %v", err)
	}
	if args.Path != "a.go" {
		t.Fatalf("unexpected path %q", args.Path)
	}
}

func TestExtractToolCallsWrappedMultiple(t *testing.T) {
	content := `[TOOL_CALL]{"name":"read_file","arguments":{"path":"a.go"}}[END_TOOL_CALL]
[TOOL_CALL]{"name":"list_dir","arguments":{"path":"."}}[END_TOOL_CALL]`
	resp := GenerateResponse{Assistant: ltypes.Message{Content: content}}
	calls := ExtractToolCalls(resp, 0, map[string]bool{"read_file": true, "list_dir": true})
	if len(calls) != 2 {
		t.Fatalf("expected two wrapped calls, got %d", len(calls))
	}
	if calls[0].ID == calls[1].ID {
		t.Fatalf("expected distinct synthesized IDs, got %q twice", calls[0].ID)
	}
}

func TestExtractToolCallsWrappedDropsDisallowed(t *testing.T) {
	content := `[TOOL_CALL]{"name":"shell","arguments":{"cmd":"rm"}}[END_TOOL_CALL]`
	resp := GenerateResponse{Assistant: ltypes.Message{Content: content}}
	calls := ExtractToolCalls(resp, 0, map[string]bool{"read_file": true})
	if len(calls) != 0 {
		t.Fatalf("expected disallowed tool to be dropped, got %+v", calls)
	}
}

func TestExtractToolCallsInlineFenced(t *testing.T) {
	content := "```json\n{\"name\":\"list_dir\",\"arguments\":{\"path\":\".\"}}\n```"
	resp := GenerateResponse{Assistant: ltypes.Message{Content: content}}
	calls := ExtractToolCalls(resp, 1, map[string]bool{"list_dir": true})
	if len(calls) != 1 || calls[0].Name != "list_dir" {
		t.Fatalf("expected one inline call, got %+v", calls)
	}
}

func TestExtractToolCallsNoneInProse(t *testing.T) {
	resp := GenerateResponse{Assistant: ltypes.Message{Content: "I looked at the file and it's fine."}}
	calls := ExtractToolCalls(resp, 0, map[string]bool{"read_file": true})
	if len(calls) != 0 {
		t.Fatalf("expected no tool calls extracted from prose, got %+v", calls)
	}
}

func TestSanitizeOutputStripsThinkAndPreamble(t *testing.T) {
	raw := "<think>internal reasoning that should vanish</think>THOUGHT: plan the steps\nRESPONSE: All done."
	got := SanitizeOutput(raw)
	if got != "All done." {
		t.Fatalf("unexpected sanitized output: %q", got)
	}
}

func TestSanitizeOutputNoMarkersReturnsTrimmed(t *testing.T) {
	raw := "  plain reply with no markers  "
	got := SanitizeOutput(raw)
	if got != "plain reply with no markers" {
		t.Fatalf("unexpected sanitized output: %q", got)
	}
}

func TestSanitizeOutputMultipleThinkBlocks(t *testing.T) {
	raw := "<think>one</think>visible<think>two</think> text"
	got := SanitizeOutput(raw)
	if got != "visible text" {
		t.Fatalf("unexpected sanitized output: %q", got)
	}
}
