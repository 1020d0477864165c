package evalharness

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"

	"github.com/CalvinSturm/LocalAgent/internal/ltypes"
)

// AssertionKind names the shape an Assertion checks.
type AssertionKind string

const (
	AssertFileExists       AssertionKind = "file_exists"
	AssertFileContains     AssertionKind = "file_contains"
	AssertToolUsed         AssertionKind = "tool_used"
	AssertToolUsedGlob     AssertionKind = "tool_used_glob"
	AssertToolUsedPrefix   AssertionKind = "tool_used_prefix"
	AssertToolArgContains  AssertionKind = "tool_arg_contains"
	AssertToolNotUsedGlob  AssertionKind = "tool_not_used_glob"
	AssertOutputContains   AssertionKind = "output_contains"
	AssertMCPResultContain AssertionKind = "mcp_result_contains"
)

// Assertion is one pass/fail check run against a finished turn loop's
// outcome and the workdir it left behind.
type Assertion struct {
	Kind      AssertionKind `json:"kind"`
	Path      string        `json:"path,omitempty"`
	Substring string        `json:"substring,omitempty"`
	Name      string        `json:"name,omitempty"`
	Pattern   string        `json:"pattern,omitempty"`
	Prefix    string        `json:"prefix,omitempty"`
	Tool      string        `json:"tool,omitempty"`
}

// EvaluateAssertions runs every assertion against outcome and workdir,
// returning one human-readable failure message per failed assertion —
// an empty slice means every assertion held.
func EvaluateAssertions(assertions []Assertion, workdir string, outcome ltypes.RunOutcome) []string {
	var failures []string
	for _, a := range assertions {
		if msg, ok := evaluateOne(a, workdir, outcome); !ok {
			failures = append(failures, msg)
		}
	}
	return failures
}

func evaluateOne(a Assertion, workdir string, outcome ltypes.RunOutcome) (string, bool) {
	switch a.Kind {
	case AssertFileExists:
		full := filepath.Join(workdir, a.Path)
		if _, err := os.Stat(full); err != nil {
			return "assertion failed: file_exists(" + a.Path + ")", false
		}
		return "", true

	case AssertFileContains:
		full := filepath.Join(workdir, a.Path)
		content, err := os.ReadFile(full)
		if err != nil || !strings.Contains(string(content), a.Substring) {
			return "assertion failed: file_contains(" + a.Path + ", " + a.Substring + ")", false
		}
		return "", true

	case AssertToolUsed:
		for _, tc := range outcome.ToolCalls {
			if tc.Name == a.Name {
				return "", true
			}
		}
		return "assertion failed: tool_used(" + a.Name + ")", false

	case AssertToolUsedGlob:
		if anyToolMatches(outcome, a.Pattern) {
			return "", true
		}
		return "assertion failed: tool_used_glob(" + a.Pattern + ")", false

	case AssertToolUsedPrefix:
		for _, tc := range outcome.ToolCalls {
			if strings.HasPrefix(tc.Name, a.Prefix) {
				return "", true
			}
		}
		return "assertion failed: tool_used_prefix(" + a.Prefix + ")", false

	case AssertToolArgContains:
		for _, tc := range outcome.ToolCalls {
			if tc.Name == a.Tool && strings.Contains(string(tc.Arguments), a.Substring) {
				return "", true
			}
		}
		return "assertion failed: tool_arg_contains(" + a.Tool + ", " + a.Substring + ")", false

	case AssertToolNotUsedGlob:
		if anyToolMatches(outcome, a.Pattern) {
			return "assertion failed: tool_not_used(" + a.Pattern + ")", false
		}
		return "", true

	case AssertOutputContains:
		if strings.Contains(outcome.FinalOutput, a.Substring) {
			return "", true
		}
		return "assertion failed: output_contains(" + a.Substring + ")", false

	case AssertMCPResultContain:
		for _, m := range outcome.Messages {
			if m.Role == ltypes.RoleTool && strings.HasPrefix(m.ToolName, "mcp.") && strings.Contains(m.Content, a.Substring) {
				return "", true
			}
		}
		return "assertion failed: mcp_result_contains(" + a.Substring + ")", false

	default:
		return "assertion failed: unknown kind " + string(a.Kind), false
	}
}

func anyToolMatches(outcome ltypes.RunOutcome, pattern string) bool {
	for _, tc := range outcome.ToolCalls {
		if matchesPattern(tc.Name, pattern) {
			return true
		}
	}
	return false
}

// matchesPattern treats pattern as a glob only when it contains a
// wildcard character; otherwise it's an exact-match shortcut so plain
// tool names don't pay for glob compilation.
func matchesPattern(name, pattern string) bool {
	if !strings.ContainsAny(pattern, "*?[") {
		return name == pattern
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return false
	}
	return g.Match(name)
}
