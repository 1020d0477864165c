package gate

import (
	"regexp"
	"strings"
)

// MatchesTool reports whether pattern matches toolName. Supports exact
// match, a bare "*" wildcard, "mcp.*"-style namespace wildcards,
// "prefix*" and "*suffix" globs — the same shapes
// internal/tools/policy.NormalizeTool's callers use,
// adapted from the ":"-separated "mcp:*" form to the dotted
// "mcp.<server>.<tool>" namespace names.
func MatchesTool(pattern, toolName string) bool {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	toolName = strings.ToLower(strings.TrimSpace(toolName))
	if pattern == "" {
		return false
	}
	if pattern == "*" {
		return true
	}
	if pattern == toolName {
		return true
	}
	if pattern == "mcp.*" && strings.HasPrefix(toolName, "mcp.") {
		return true
	}
	if len(pattern) > 1 && strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(toolName, pattern[:len(pattern)-1])
	}
	if len(pattern) > 1 && strings.HasPrefix(pattern, "*") {
		return strings.HasSuffix(toolName, pattern[1:])
	}
	return false
}

// EvalWhen evaluates a single predicate against a string-valued
// argument field.
func EvalWhen(w When, fieldValue string, fieldPresent bool) bool {
	if !fieldPresent {
		return false
	}
	switch w.Op {
	case OpEquals:
		return fieldValue == w.Value
	case OpContains:
		return strings.Contains(fieldValue, w.Value)
	case OpStartswith:
		return strings.HasPrefix(fieldValue, w.Value)
	case OpGlob:
		return MatchesTool(w.Value, fieldValue) || globMatch(w.Value, fieldValue)
	case OpRegex:
		re, err := regexp.Compile(w.Value)
		if err != nil {
			return false
		}
		return re.MatchString(fieldValue)
	default:
		return false
	}
}

// globMatch is a small '*'-only glob matcher for non-tool-name fields
// (e.g. argument path values), independent of MatchesTool's
// mcp-namespace special case.
func globMatch(pattern, value string) bool {
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return pattern == value
	}
	if !strings.HasPrefix(value, parts[0]) {
		return false
	}
	value = value[len(parts[0]):]
	for i := 1; i < len(parts)-1; i++ {
		idx := strings.Index(value, parts[i])
		if idx < 0 {
			return false
		}
		value = value[idx+len(parts[i]):]
	}
	last := parts[len(parts)-1]
	return strings.HasSuffix(value, last)
}
