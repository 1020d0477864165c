package runrecord

import (
	"fmt"

	"github.com/CalvinSturm/LocalAgent/internal/ltypes"
)

// Mismatch describes one divergence found during replay verification.
type Mismatch struct {
	ToolCallID string
	Field      string
	Want       string
	Got        string
}

func (m Mismatch) Error() string {
	return fmt.Sprintf("replay mismatch for tool call %s: %s want=%s got=%s", m.ToolCallID, m.Field, m.Want, m.Got)
}

// Verify re-derives each recorded envelope's digest from the supplied
// re-executed envelopes and compares it against the persisted record.
// It implements testable property 9: deterministic replay produces
// byte-identical ToolResultEnvelope.Content sha256 for every step.
func Verify(rec Record, replayedEnvelopes map[string]ltypes.ToolResultEnvelope) ([]Mismatch, error) {
	var mismatches []Mismatch
	for id, wantDigest := range rec.EnvelopeDigests {
		env, ok := replayedEnvelopes[id]
		if !ok {
			mismatches = append(mismatches, Mismatch{ToolCallID: id, Field: "presence", Want: wantDigest, Got: "<missing>"})
			continue
		}
		gotDigest, err := EnvelopeDigest(env)
		if err != nil {
			return nil, err
		}
		if gotDigest != wantDigest {
			mismatches = append(mismatches, Mismatch{ToolCallID: id, Field: "envelope_digest", Want: wantDigest, Got: gotDigest})
		}
	}
	return mismatches, nil
}

// VerifyDecisions compares two ordered ToolDecisionRecord slices
// field-by-field, the other half of property 9 (decisions must also
// replay identically).
func VerifyDecisions(want, got []ltypes.ToolDecisionRecord) []Mismatch {
	var mismatches []Mismatch
	n := len(want)
	if len(got) < n {
		n = len(got)
	}
	for i := 0; i < n; i++ {
		w, g := want[i], got[i]
		if w.Decision != g.Decision || w.Source != g.Source || w.Reason != g.Reason {
			mismatches = append(mismatches, Mismatch{
				ToolCallID: w.ToolCallID,
				Field:      "decision",
				Want:       string(w.Decision) + "/" + string(w.Source),
				Got:        string(g.Decision) + "/" + string(g.Source),
			})
		}
	}
	if len(want) != len(got) {
		mismatches = append(mismatches, Mismatch{Field: "decision_count", Want: fmt.Sprint(len(want)), Got: fmt.Sprint(len(got))})
	}
	return mismatches
}
