// Package classify implements the failure classifier: maps raw failure
// text plus tool metadata to one of the failure classes a retry
// decision is keyed on. Grounded on internal/agent/errors.go's
// ToolErrorType (not_found/timeout/network/permission/rate_limit/
// execution/panic), generalized into ordered text-matching rules with
// schema and policy failures taking priority.
package classify

import (
	"strings"

	"github.com/CalvinSturm/LocalAgent/internal/ltypes"
)

// Classify maps (schemaFailed, the raw envelope content, the tool's
// side effects) to a FailureClass. Schema failures take priority over
// policy denials, which take priority over the transient text matches;
// mutating tools default to E_NON_IDEMPOTENT rather than E_OTHER.
func Classify(schemaValidationFailed bool, rawContent string, sideEffects ltypes.SideEffects) ltypes.FailureClass {
	if schemaValidationFailed {
		return ltypes.ESchema
	}

	lower := strings.ToLower(rawContent)

	switch {
	case containsAny(lower, "denied", "forbidden", "not allowed", "policy"):
		return ltypes.EPolicy
	case containsAny(lower, "timed out", "timeout", "deadline exceeded"):
		return ltypes.ETimeoutTransient
	case containsAny(lower, "ambiguous selector", "multiple matches", "selector matched"):
		return ltypes.ESelectorAmbiguous
	case containsAny(lower, "connection refused", "network", "dns", "dial tcp", "no such host"):
		return ltypes.ENetworkTransient
	}

	if sideEffects.IsMutating() {
		return ltypes.ENonIdempotent
	}
	return ltypes.EOther
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
