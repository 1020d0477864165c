package gate

import (
	"encoding/json"

	"github.com/CalvinSturm/LocalAgent/internal/ltypes"
)

// argValue extracts a JSON argument field as a string for When
// predicate evaluation. Non-string values are rendered via their JSON
// text so equals/contains still work against numbers and bools.
func argValue(args json.RawMessage, field string) (string, bool) {
	if len(args) == 0 {
		return "", false
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(args, &m); err != nil {
		return "", false
	}
	raw, ok := m[field]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	return string(raw), true
}

func ruleMatches(r Rule, tc ltypes.ToolCall) bool {
	if !MatchesTool(r.Tool, tc.Name) {
		return false
	}
	for _, w := range r.When {
		v, ok := argValue(tc.Arguments, w.Field)
		if !EvalWhen(w, v, ok) {
			return false
		}
	}
	return true
}

// Decide is the pure trust-gate decision function:
// decide(ctx, tool_call) -> GateDecision. Rules are evaluated in order;
// the first match wins. No match falls through to policy.Default.
func Decide(policy *Policy, ctx ltypes.GateContext, tc ltypes.ToolCall) ltypes.GateDecision {
	for _, r := range policy.Rules {
		if !ruleMatches(r, tc) {
			continue
		}
		switch r.Decision {
		case RuleAllow:
			return ltypes.GateDecision{Kind: ltypes.GateAllow}
		case RuleDeny:
			return ltypes.GateDecision{Kind: ltypes.GateDeny, Reason: r.Reason}
		case RuleRequireApproval:
			return ltypes.GateDecision{Kind: ltypes.GateRequireApproval, Reason: r.Reason}
		}
	}
	if policy.Default == DefaultDeny {
		return ltypes.GateDecision{Kind: ltypes.GateDeny, Reason: "denied by default policy"}
	}
	return ltypes.GateDecision{Kind: ltypes.GateAllow}
}

// TaintFileMatch reports the first configured taint glob that matches
// path, if any — used by the taint engine to decide whether a
// read_file call is a taint source.
func (p *Policy) TaintFileMatch(path string) (string, bool) {
	for _, g := range p.Taint.FilePathGlobs {
		if globMatch(g, path) {
			return g, true
		}
	}
	return "", false
}
