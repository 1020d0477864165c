// Package learning implements the learning-capture subsystem: small,
// evidence-backed notes an operator (or a future self-review step)
// records about a run, stored as one JSON file per entry under
// state_dir/learn/entries, each content-addressed so its identity
// survives a status change (captured -> promoted/archived).
package learning

// EntrySchemaVersion tags the entry shape this package writes and reads.
const EntrySchemaVersion = "localagent.learning_entry.v1"

const (
	MaxRunIDChars          = 128
	MaxTaskSummaryChars    = 256
	MaxProfileChars        = 128
	MaxSummaryChars        = 512
	MaxGuidanceTextChars   = 2048
	MaxCheckTextChars      = 4096
	MaxEvidenceItems       = 32
	MaxEvidenceValueChars  = 512
	MaxEvidenceNoteChars   = 256
	MaxTagCount            = 16
	MaxTagChars            = 32
	ListSummaryPreviewChars = 96
)

// Category classifies the kind of note a learning entry captures.
type Category string

const (
	CategoryWorkflowHint   Category = "workflow_hint"
	CategoryPromptGuidance Category = "prompt_guidance"
	CategoryCheckCandidate Category = "check_candidate"
)

// Status tracks a learning entry's lifecycle: captured entries may be
// promoted into durable guidance or archived as no longer useful.
type Status string

const (
	StatusCaptured Status = "captured"
	StatusPromoted Status = "promoted"
	StatusArchived Status = "archived"
)

// EvidenceKind names what an EvidenceRef's Value identifies.
type EvidenceKind string

const (
	EvidenceRunID        EvidenceKind = "run_id"
	EvidenceEventID      EvidenceKind = "event_id"
	EvidenceArtifactPath EvidenceKind = "artifact_path"
	EvidenceToolCallID   EvidenceKind = "tool_call_id"
	EvidenceReasonCode   EvidenceKind = "reason_code"
	EvidenceExitReason   EvidenceKind = "exit_reason"
)

// Source records where a learning entry came from.
type Source struct {
	RunID       string `json:"run_id,omitempty"`
	TaskSummary string `json:"task_summary,omitempty"`
	Profile     string `json:"profile,omitempty"`
}

// EvidenceRef points at something supporting the entry: a run, an
// event, a file, a tool call, or a reason/exit code.
type EvidenceRef struct {
	Kind    EvidenceKind `json:"kind"`
	Value   string       `json:"value"`
	HashHex string       `json:"hash_hex,omitempty"`
	Note    string       `json:"note,omitempty"`
}

// ProposedMemory is the durable guidance or check text a learning
// entry proposes, plus classification tags.
type ProposedMemory struct {
	GuidanceText string   `json:"guidance_text,omitempty"`
	CheckText    string   `json:"check_text,omitempty"`
	Tags         []string `json:"tags,omitempty"`
}

// SensitivityFlags are heuristic content warnings inferred at capture
// time, surfaced so a reviewer knows to handle an entry carefully
// before promoting or sharing it.
type SensitivityFlags struct {
	ContainsPaths             bool `json:"contains_paths"`
	ContainsSecretsSuspected  bool `json:"contains_secrets_suspected"`
	ContainsUserData          bool `json:"contains_user_data"`
}

// FieldTruncation records that a field was clipped to its max length
// at capture time, so a reader knows the entry's text isn't verbatim.
type FieldTruncation struct {
	Field        string `json:"field"`
	OriginalLen  int    `json:"original_len"`
	TruncatedTo  int    `json:"truncated_to"`
}

// Entry is one captured learning note, content-addressed by
// EntryHashHex so its identity is stable across a status transition.
type Entry struct {
	SchemaVersion    string             `json:"schema_version"`
	ID               string             `json:"id"`
	CreatedAt        string             `json:"created_at"`
	Source           Source             `json:"source"`
	Category         Category           `json:"category"`
	Summary          string             `json:"summary"`
	Evidence         []EvidenceRef      `json:"evidence,omitempty"`
	ProposedMemory   ProposedMemory     `json:"proposed_memory"`
	SensitivityFlags SensitivityFlags   `json:"sensitivity_flags"`
	Status           Status             `json:"status"`
	Truncations      []FieldTruncation  `json:"truncations,omitempty"`
	EntryHashHex     string             `json:"entry_hash_hex"`
}

// hashInput is the subset of an Entry's fields that define its
// identity: excludes id, created_at, status, and truncations so a
// status transition or a cosmetic truncation never changes the hash.
type hashInput struct {
	SchemaVersion    string           `json:"schema_version"`
	SourceRunID      string           `json:"source_run_id,omitempty"`
	SourceProfile    string           `json:"source_profile,omitempty"`
	Category         Category         `json:"category"`
	Summary          string           `json:"summary"`
	Evidence         []EvidenceRef    `json:"evidence"`
	ProposedMemory   ProposedMemory   `json:"proposed_memory"`
	SensitivityFlags SensitivityFlags `json:"sensitivity_flags"`
}
