package kernel

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/CalvinSturm/LocalAgent/internal/ltypes"
)

var wrappedCallRe = regexp.MustCompile(`(?is)\[TOOL_CALL\](.*?)\[END_TOOL_CALL\]`)

type rawCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ExtractToolCalls implements the tool-call extraction protocol: the
// structured path wins if the provider already returned ToolCalls;
// otherwise the kernel scans assistant content for wrapped
// [TOOL_CALL]...[END_TOOL_CALL] spans, then falls back to treating the
// entire trimmed content (optionally fenced) as a single inline call.
// Calls naming a tool outside allowedTools are dropped silently.
func ExtractToolCalls(resp GenerateResponse, step int, allowedTools map[string]bool) []ltypes.ToolCall {
	if len(resp.ToolCalls) > 0 {
		return resp.ToolCalls
	}

	content := resp.Assistant.Content

	if calls := extractWrapped(content, step, allowedTools); len(calls) > 0 {
		return calls
	}
	if call, ok := extractInline(content, step, allowedTools); ok {
		return []ltypes.ToolCall{call}
	}
	return nil
}

func extractWrapped(content string, step int, allowedTools map[string]bool) []ltypes.ToolCall {
	matches := wrappedCallRe.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return nil
	}
	var calls []ltypes.ToolCall
	idx := 0
	for _, m := range matches {
		var rc rawCall
		if err := json.Unmarshal([]byte(strings.TrimSpace(m[1])), &rc); err != nil {
			continue
		}
		if rc.Name == "" || !allowedTools[rc.Name] {
			continue
		}
		calls = append(calls, ltypes.ToolCall{
			ID:        fmt.Sprintf("wrapped_tc_%d_%d", step, idx),
			Name:      rc.Name,
			Arguments: rc.Arguments,
		})
		idx++
	}
	return calls
}

func extractInline(content string, step int, allowedTools map[string]bool) (ltypes.ToolCall, bool) {
	trimmed := strings.TrimSpace(stripFence(content))
	if trimmed == "" {
		return ltypes.ToolCall{}, false
	}
	var rc rawCall
	if err := json.Unmarshal([]byte(trimmed), &rc); err != nil {
		return ltypes.ToolCall{}, false
	}
	if rc.Name == "" || !allowedTools[rc.Name] {
		return ltypes.ToolCall{}, false
	}
	return ltypes.ToolCall{
		ID:        fmt.Sprintf("inline_tc_%d_0", step),
		Name:      rc.Name,
		Arguments: rc.Arguments,
	}, true
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// SanitizeOutput strips <think>...</think> blocks and a leading
// THOUGHT:...RESPONSE: preamble from raw assistant content, producing
// the user-visible final_output.
func SanitizeOutput(raw string) string {
	withoutThink := stripTagBlock(raw, "think")
	trimmed := strings.TrimSpace(withoutThink)
	upper := strings.ToUpper(trimmed)
	if thoughtIdx := strings.Index(upper, "THOUGHT:"); thoughtIdx >= 0 {
		if responseRel := strings.Index(upper[thoughtIdx:], "RESPONSE:"); responseRel >= 0 {
			start := thoughtIdx + responseRel + len("RESPONSE:")
			return strings.TrimSpace(trimmed[start:])
		}
	}
	return trimmed
}

func stripTagBlock(input, tag string) string {
	open := "<" + tag + ">"
	close := "</" + tag + ">"
	var out strings.Builder
	out.Grow(len(input))
	i := 0
	for i < len(input) {
		rest := input[i:]
		if strings.HasPrefix(rest, open) {
			if endRel := strings.Index(rest, close); endRel >= 0 {
				i += endRel + len(close)
				continue
			}
			break
		}
		r := rest[0]
		out.WriteByte(r)
		i++
	}
	return out.String()
}
