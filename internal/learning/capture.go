package learning

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CaptureInput is the raw, unvalidated material a caller (typically
// the CLI) assembles for a new learning entry.
type CaptureInput struct {
	RunID          string
	Category       Category
	Summary        string
	TaskSummary    string
	Profile        string
	GuidanceText   string
	CheckText      string
	Tags           []string
	EvidenceSpecs  []string // "kind:value", e.g. "run_id:01ARZ3..."
	EvidenceNotes  []string
}

// Capture validates and normalizes input into a content-addressed
// Entry, truncating any field that exceeds its max length rather than
// rejecting it outright — a learning note should always get captured,
// even an oversized one, with the clipping recorded in Truncations.
func Capture(input CaptureInput) (Entry, error) {
	var truncations []FieldTruncation

	category := input.Category
	if category == "" {
		category = CategoryWorkflowHint
	}

	source := Source{
		RunID:       truncateString(input.RunID, "source.run_id", MaxRunIDChars, &truncations),
		TaskSummary: truncateString(input.TaskSummary, "source.task_summary", MaxTaskSummaryChars, &truncations),
		Profile:     truncateString(input.Profile, "source.profile", MaxProfileChars, &truncations),
	}

	summary := truncateString(input.Summary, "summary", MaxSummaryChars, &truncations)

	evidence, err := parseEvidenceSpecs(input.EvidenceSpecs, &truncations)
	if err != nil {
		return Entry{}, err
	}
	if err := attachEvidenceNotes(evidence, input.EvidenceNotes, &truncations); err != nil {
		return Entry{}, err
	}

	proposed := buildProposedMemory(input.GuidanceText, input.CheckText, input.Tags, &truncations)
	sensitivity := inferSensitivityFlags(summary, source, evidence, proposed)

	entry := Entry{
		SchemaVersion:    EntrySchemaVersion,
		ID:               uuid.NewString(),
		CreatedAt:        time.Now().UTC().Format(time.RFC3339),
		Source:           source,
		Category:         category,
		Summary:          summary,
		Evidence:         evidence,
		ProposedMemory:   proposed,
		SensitivityFlags: sensitivity,
		Status:           StatusCaptured,
		Truncations:      truncations,
	}

	hash, err := computeEntryHashHex(entry)
	if err != nil {
		return Entry{}, err
	}
	entry.EntryHashHex = hash
	return entry, nil
}

func computeEntryHashHex(entry Entry) (string, error) {
	input := hashInput{
		SchemaVersion:    entry.SchemaVersion,
		SourceRunID:      entry.Source.RunID,
		SourceProfile:    entry.Source.Profile,
		Category:         entry.Category,
		Summary:          entry.Summary,
		Evidence:         entry.Evidence,
		ProposedMemory:   entry.ProposedMemory,
		SensitivityFlags: entry.SensitivityFlags,
	}
	b, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("learning: marshal hash input: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

func parseEvidenceSpecs(specs []string, truncations *[]FieldTruncation) ([]EvidenceRef, error) {
	var out []EvidenceRef
	for i, spec := range specs {
		if len(out) >= MaxEvidenceItems {
			*truncations = append(*truncations, FieldTruncation{
				Field:       "evidence",
				OriginalLen: len(specs),
				TruncatedTo: MaxEvidenceItems,
			})
			break
		}
		kindRaw, valueRaw, ok := strings.Cut(spec, ":")
		if !ok {
			return nil, fmt.Errorf("invalid --evidence format (expected kind:value): %s", spec)
		}
		if valueRaw == "" {
			return nil, fmt.Errorf("invalid --evidence format (missing value after kind:): %s", spec)
		}
		kind, err := parseEvidenceKind(kindRaw)
		if err != nil {
			return nil, err
		}
		out = append(out, EvidenceRef{
			Kind:  kind,
			Value: truncateString(valueRaw, fmt.Sprintf("evidence[%d].value", i), MaxEvidenceValueChars, truncations),
		})
	}
	return out, nil
}

func parseEvidenceKind(raw string) (EvidenceKind, error) {
	switch EvidenceKind(raw) {
	case EvidenceRunID, EvidenceEventID, EvidenceArtifactPath, EvidenceToolCallID, EvidenceReasonCode, EvidenceExitReason:
		return EvidenceKind(raw), nil
	default:
		return "", fmt.Errorf("unknown --evidence kind %q", raw)
	}
}

func attachEvidenceNotes(evidence []EvidenceRef, notes []string, truncations *[]FieldTruncation) error {
	if len(notes) == 0 {
		return nil
	}
	if len(evidence) == 0 {
		return fmt.Errorf("--evidence-note requires a prior --evidence")
	}
	if len(notes) > len(evidence) {
		return fmt.Errorf("--evidence-note count (%d) exceeds --evidence count (%d)", len(notes), len(evidence))
	}
	for idx, note := range notes {
		evidence[idx].Note = truncateString(note, fmt.Sprintf("evidence[%d].note", idx), MaxEvidenceNoteChars, truncations)
	}
	return nil
}

func buildProposedMemory(guidanceText, checkText string, tags []string, truncations *[]FieldTruncation) ProposedMemory {
	seen := map[string]bool{}
	var outTags []string
	for _, tag := range tags {
		if len(outTags) >= MaxTagCount {
			*truncations = append(*truncations, FieldTruncation{
				Field:       "proposed_memory.tags",
				OriginalLen: len(outTags) + 1,
				TruncatedTo: MaxTagCount,
			})
			break
		}
		normalized := truncateString(tag, fmt.Sprintf("proposed_memory.tags[%d]", len(outTags)), MaxTagChars, truncations)
		if !seen[normalized] {
			seen[normalized] = true
			outTags = append(outTags, normalized)
		}
	}
	return ProposedMemory{
		GuidanceText: truncateString(guidanceText, "proposed_memory.guidance_text", MaxGuidanceTextChars, truncations),
		CheckText:    truncateString(checkText, "proposed_memory.check_text", MaxCheckTextChars, truncations),
		Tags:         outTags,
	}
}

func inferSensitivityFlags(summary string, source Source, evidence []EvidenceRef, proposed ProposedMemory) SensitivityFlags {
	var b strings.Builder
	b.WriteString(summary)
	b.WriteByte('\n')
	if source.TaskSummary != "" {
		b.WriteString(source.TaskSummary)
		b.WriteByte('\n')
	}
	if proposed.GuidanceText != "" {
		b.WriteString(proposed.GuidanceText)
		b.WriteByte('\n')
	}
	if proposed.CheckText != "" {
		b.WriteString(proposed.CheckText)
		b.WriteByte('\n')
	}
	for _, ev := range evidence {
		b.WriteString(ev.Value)
		b.WriteByte('\n')
		if ev.Note != "" {
			b.WriteString(ev.Note)
			b.WriteByte('\n')
		}
	}
	text := b.String()
	lower := strings.ToLower(text)
	return SensitivityFlags{
		ContainsPaths: strings.Contains(text, "\\") || strings.Contains(text, "/"),
		ContainsSecretsSuspected: strings.Contains(lower, "begin private key") ||
			strings.Contains(lower, "ghp_") ||
			strings.Contains(lower, "github_pat_") ||
			(strings.Contains(lower, "aws") && strings.Contains(lower, "secret")),
		ContainsUserData: strings.Contains(lower, "email") || strings.Contains(lower, "phone"),
	}
}

// truncateString clips s to maxChars runes, recording a FieldTruncation
// when it had to. An empty s is left alone and never recorded.
func truncateString(s, field string, maxChars int, truncations *[]FieldTruncation) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	*truncations = append(*truncations, FieldTruncation{
		Field:       field,
		OriginalLen: len(runes),
		TruncatedTo: maxChars,
	})
	return string(runes[:maxChars])
}
