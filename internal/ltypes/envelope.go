package ltypes

// ToolResultEnvelopeSchemaVersion is the bit-exact schema tag every
// envelope carries. The sha256 of the canonical serialization of an
// envelope is what the run record checks on replay, so this value and
// the envelope's field set must never change shape without a version
// bump.
const ToolResultEnvelopeSchemaVersion = "openagent.tool_result.v1"

// EnvelopeMeta is the nested metadata block of a ToolResultEnvelope.
type EnvelopeMeta struct {
	SideEffects      SideEffects `json:"side_effects"`
	Source           string      `json:"source"`
	ExecutionTarget  string      `json:"execution_target"`
	Bytes            *int        `json:"bytes,omitempty"`
	ExitCode         *int        `json:"exit_code,omitempty"`
	StdoutTruncated  *bool       `json:"stdout_truncated,omitempty"`
	StderrTruncated  *bool       `json:"stderr_truncated,omitempty"`
	Sandbox          string      `json:"sandbox,omitempty"`
}

// ToolResultEnvelope is the canonical wrapper for any tool's outcome.
// The transcript stores the Tool message whose Content is this
// envelope's canonical JSON serialization (sorted object keys), because
// its sha256 is what replay verification checks.
type ToolResultEnvelope struct {
	SchemaVersion string       `json:"schema_version"`
	ToolName      string       `json:"tool_name"`
	ToolCallID    string       `json:"tool_call_id"`
	OK            bool         `json:"ok"`
	Content       string       `json:"content"`
	Truncated     bool         `json:"truncated"`
	Meta          EnvelopeMeta `json:"meta"`
}

// NewToolResultEnvelope fills in the schema version and constructs an
// envelope for a completed tool call.
func NewToolResultEnvelope(toolName, toolCallID string, ok bool, content string, truncated bool, meta EnvelopeMeta) ToolResultEnvelope {
	return ToolResultEnvelope{
		SchemaVersion: ToolResultEnvelopeSchemaVersion,
		ToolName:      toolName,
		ToolCallID:    toolCallID,
		OK:            ok,
		Content:       content,
		Truncated:     truncated,
		Meta:          meta,
	}
}
