package mcptools

import (
	"testing"

	"github.com/CalvinSturm/LocalAgent/internal/mcp"
)

func TestSplitName(t *testing.T) {
	server, tool, err := SplitName("mcp.github.search_issues")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if server != "github" || tool != "search_issues" {
		t.Fatalf("unexpected split: server=%q tool=%q", server, tool)
	}
}

func TestSplitNameRejectsNonMCPName(t *testing.T) {
	if _, _, err := SplitName("read_file"); err == nil {
		t.Fatalf("expected an error for a non-namespaced tool name")
	}
}

func TestSplitNameRejectsMalformed(t *testing.T) {
	if _, _, err := SplitName("mcp.github"); err == nil {
		t.Fatalf("expected an error for a name missing the tool segment")
	}
}

func TestFormatResultJoinsTextContent(t *testing.T) {
	result := &mcp.ToolCallResult{
		Content: []mcp.ToolResultContent{
			{Type: "text", Text: "first line"},
			{Type: "text", Text: "second line"},
		},
	}
	content, isError := formatResult(result)
	if isError {
		t.Fatalf("expected isError to be false")
	}
	if content != "first line\nsecond line" {
		t.Fatalf("unexpected joined content: %q", content)
	}
}

func TestFormatResultPropagatesIsError(t *testing.T) {
	result := &mcp.ToolCallResult{
		Content: []mcp.ToolResultContent{{Type: "text", Text: "boom"}},
		IsError: true,
	}
	content, isError := formatResult(result)
	if !isError {
		t.Fatalf("expected isError to be true")
	}
	if content != "boom" {
		t.Fatalf("unexpected content: %q", content)
	}
}

func TestFormatResultNil(t *testing.T) {
	content, isError := formatResult(nil)
	if content != "" || isError {
		t.Fatalf("expected empty, non-error result for nil input")
	}
}

func TestToolDescriptionFallsBackWithoutDescription(t *testing.T) {
	got := toolDescription("github", &mcp.MCPTool{Name: "search_issues"})
	if got != "MCP tool github.search_issues" {
		t.Fatalf("unexpected description: %q", got)
	}
}

func TestToolSchemaDefaultsToEmptyObject(t *testing.T) {
	got := toolSchema(&mcp.MCPTool{})
	if string(got) != `{"type":"object"}` {
		t.Fatalf("unexpected default schema: %s", got)
	}
}
