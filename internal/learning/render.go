package learning

import (
	"encoding/json"
	"fmt"
	"strings"
)

// learnShowMaxBytes bounds how much text a show/list render emits to a
// terminal, after redaction, so a captured secret or a runaway field
// can't flood a shell.
const learnShowMaxBytes = 8 * 1024

// maxRedactionsInDisplay caps how many secret-shaped substrings a
// single render pass will mask, so a pathological input can't blow up
// render time.
const maxRedactionsInDisplay = 3

// RenderCaptureConfirmation is the one-line message shown after a
// successful capture.
func RenderCaptureConfirmation(entry Entry) string {
	return fmt.Sprintf("Captured learning %s (category=%s, hash=%s)", entry.ID, entry.Category, entry.EntryHashHex)
}

// RenderListJSONPreview renders entries as indented JSON, redacted and
// bounded the same way the text renderers are, for a caller that wants
// a preview rather than a full machine-readable dump.
func RenderListJSONPreview(entries []Entry) (string, error) {
	b, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return "", fmt.Errorf("learning: marshal list preview: %w", err)
	}
	return redactAndBoundTerminalOutput(string(b), learnShowMaxBytes), nil
}

// redactAndBoundTerminalOutput masks secret-shaped substrings then
// truncates to max bytes at a rune boundary, appending a marker when
// it had to cut.
func redactAndBoundTerminalOutput(input string, maxBytes int) string {
	return truncateUTF8Bytes(redactSecretsForDisplay(input), maxBytes)
}

// redactSecretsForDisplay masks PEM private key headers and GitHub
// token prefixes (classic ghp_ and fine-grained github_pat_), up to
// maxRedactionsInDisplay occurrences.
func redactSecretsForDisplay(input string) string {
	var out strings.Builder
	out.Grow(len(input))
	redactions := 0
	i := 0
	for i < len(input) {
		if redactions < maxRedactionsInDisplay {
			rest := input[i:]
			if strings.HasPrefix(rest, "BEGIN PRIVATE KEY") {
				out.WriteString("[REDACTED_SECRET]")
				i += len("BEGIN PRIVATE KEY")
				redactions++
				continue
			}
			if strings.HasPrefix(rest, "github_pat_") || strings.HasPrefix(rest, "ghp_") {
				out.WriteString("[REDACTED_SECRET]")
				i += tokenRunLength(rest)
				redactions++
				continue
			}
		}
		r := []rune(input[i:])[0]
		out.WriteRune(r)
		i += len(string(r))
	}
	return out.String()
}

// tokenRunLength returns how many bytes of rest (which starts with a
// known token prefix) belong to the token itself: everything up to
// the first whitespace or a closing/quoting character.
func tokenRunLength(rest string) int {
	for i, r := range rest {
		if i == 0 {
			continue
		}
		switch {
		case r == ' ', r == '\t', r == '\n', r == '\r':
			return i
		case strings.ContainsRune(`"',;)]}`, r):
			return i
		}
	}
	return len(rest)
}

// truncateUTF8Bytes cuts input to at most maxBytes bytes at a rune
// boundary, appending a truncation marker when it had to cut.
func truncateUTF8Bytes(input string, maxBytes int) string {
	if len(input) <= maxBytes {
		return input
	}
	marker := "\n...[truncated]"
	budget := maxBytes
	if budget > len(marker) {
		budget -= len(marker)
	} else {
		budget = 0
	}
	cut := budget
	for cut > 0 && !isRuneBoundary(input, cut) {
		cut--
	}
	return input[:cut] + marker
}

func isRuneBoundary(s string, i int) bool {
	if i <= 0 || i >= len(s) {
		return true
	}
	return s[i]&0xC0 != 0x80
}

// RenderListTable renders a fixed-width-ish table of entries: ID,
// status, category, source run, a sensitivity marker, and a bounded
// summary preview.
func RenderListTable(entries []Entry) string {
	var b strings.Builder
	b.WriteString("ID  STATUS  CATEGORY  RUN_ID  S  SUMMARY\n")
	for _, e := range entries {
		runID := e.Source.RunID
		if runID == "" {
			runID = "-"
		}
		sensitive := "-"
		if hasAnySensitivity(e.SensitivityFlags) {
			sensitive = "!"
		}
		summary := previewText(redactSecretsForDisplay(e.Summary), ListSummaryPreviewChars)
		fmt.Fprintf(&b, "%s  %s  %s  %s  %s  %s\n", e.ID, e.Status, e.Category, runID, sensitive, summary)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// RenderShowText renders a single entry's full detail, optionally
// including its evidence and proposed-memory sections.
func RenderShowText(e Entry, showEvidence, showProposed bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "id: %s\n", e.ID)
	fmt.Fprintf(&b, "status: %s\n", e.Status)
	fmt.Fprintf(&b, "category: %s\n", e.Category)
	fmt.Fprintf(&b, "hash: %s\n", e.EntryHashHex)
	fmt.Fprintf(&b, "created_at: %s\n", e.CreatedAt)
	b.WriteString("source:\n")
	fmt.Fprintf(&b, "  run_id: %s\n", orDash(e.Source.RunID))
	fmt.Fprintf(&b, "  task_summary: %s\n", orDash(e.Source.TaskSummary))
	fmt.Fprintf(&b, "  profile: %s\n", orDash(e.Source.Profile))
	b.WriteString("summary:\n")
	b.WriteString(redactSecretsForDisplay(e.Summary))
	b.WriteByte('\n')
	b.WriteString("sensitivity:\n")
	fmt.Fprintf(&b, "  contains_paths: %v\n  contains_secrets_suspected: %v\n  contains_user_data: %v\n",
		e.SensitivityFlags.ContainsPaths, e.SensitivityFlags.ContainsSecretsSuspected, e.SensitivityFlags.ContainsUserData)

	if showEvidence {
		b.WriteString("evidence:\n")
		if len(e.Evidence) == 0 {
			b.WriteString("  - none\n")
		} else {
			for _, ev := range e.Evidence {
				fmt.Fprintf(&b, "  - %s: %s\n", ev.Kind, ev.Value)
				if ev.HashHex != "" {
					fmt.Fprintf(&b, "    hash_hex: %s\n", ev.HashHex)
				}
				if ev.Note != "" {
					fmt.Fprintf(&b, "    note: %s\n", ev.Note)
				}
			}
		}
	}

	if showProposed {
		b.WriteString("proposed_memory:\n")
		fmt.Fprintf(&b, "  guidance_text: %s\n", orDash(e.ProposedMemory.GuidanceText))
		fmt.Fprintf(&b, "  check_text: %s\n", orDash(e.ProposedMemory.CheckText))
		fmt.Fprintf(&b, "  tags: %s\n", strings.Join(e.ProposedMemory.Tags, ", "))
	}

	return redactAndBoundTerminalOutput(b.String(), learnShowMaxBytes)
}

func hasAnySensitivity(flags SensitivityFlags) bool {
	return flags.ContainsPaths || flags.ContainsSecretsSuspected || flags.ContainsUserData
}

func previewText(text string, maxChars int) string {
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	return string(runes[:maxChars]) + "..."
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
