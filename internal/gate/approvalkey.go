package gate

import (
	"encoding/json"

	"github.com/CalvinSturm/LocalAgent/internal/canonjson"
	"github.com/CalvinSturm/LocalAgent/internal/ltypes"
)

// ApprovalKeyVersion is bumped whenever the set of fields contributing
// to the approval key changes shape.
const ApprovalKeyVersion = 1

// approvalKeyInput is the canonicalized tuple the key hashes over.
// Rotating any one of these fields invalidates every approval computed
// against the old value.
type approvalKeyInput struct {
	ApprovalKeyVersion int             `json:"approval_key_version"`
	PolicyHash         string          `json:"policy_hash"`
	ToolName           string          `json:"tool_name"`
	CanonicalArguments json.RawMessage `json:"canonical_arguments"`
	Workdir            string          `json:"workdir"`
	ExecTarget         string          `json:"exec_target"`
	Provider           string          `json:"provider"`
	Model              string          `json:"model"`
	HooksConfigHash    string          `json:"hooks_config_hash,omitempty"`
	PlannerHash        string          `json:"planner_hash,omitempty"`
	ToolSchemaHash     string          `json:"tool_schema_hash"`
}

// ApprovalKey computes the stable hash identifying a (policy, context,
// tool_call) tuple for approval persistence.
// Canonicalization sorts object keys and normalizes numbers
// (canonjson.Marshal handles both); callers must reject NaN arguments
// before calling this (the schema validator already does, since NaN is
// not valid JSON).
func ApprovalKey(ctx ltypes.GateContext, tc ltypes.ToolCall, hooksConfigHash string) (string, error) {
	canonicalArgs, err := canonjson.Marshal(rawToAny(tc.Arguments))
	if err != nil {
		return "", err
	}
	input := approvalKeyInput{
		ApprovalKeyVersion: ApprovalKeyVersion,
		PolicyHash:         ctx.PolicyHash,
		ToolName:           tc.Name,
		CanonicalArguments: canonicalArgs,
		Workdir:            ctx.Workdir,
		ExecTarget:         ctx.ExecTarget,
		Provider:           ctx.ProviderIdentity,
		Model:              ctx.Model,
		HooksConfigHash:    hooksConfigHash,
		PlannerHash:        ctx.PlannerHash,
		ToolSchemaHash:     ctx.ToolSchemaHashes[tc.Name],
	}
	return canonjson.SHA256Hex(input)
}

func rawToAny(raw json.RawMessage) any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return map[string]any{}
	}
	return v
}

// ApprovalID derives a print-safe opaque id from an approval key.
func ApprovalID(approvalKey string) string {
	if len(approvalKey) > 16 {
		return "appr_" + approvalKey[:16]
	}
	return "appr_" + approvalKey
}
