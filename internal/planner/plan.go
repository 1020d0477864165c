// Package planner implements plan normalization and plan-step
// enforcement: the planner phase produces a Plan the worker phase is
// then constrained by. Ported from the Rust original's planner.rs
// normalization rules (referenced, not kept, by src/planner_runtime.rs)
// and src/planner_runtime.rs's degenerate-plan wrapping.
package planner

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/CalvinSturm/LocalAgent/internal/canonjson"
	"github.com/CalvinSturm/LocalAgent/internal/ltypes"
)

// Normalized is the result of parsing a planner's raw text output.
type Normalized struct {
	Plan      ltypes.Plan
	HashHex   string
	RawOutput string
	Error     string
	// UsedWrapper is true when the raw text did not parse as a plan and
	// was wrapped into a degenerate one-step plan instead.
	UsedWrapper bool
}

// Normalize parses raw planner output as an openagent.plan.v1 document.
// If it fails to parse and strict is false, the raw text is wrapped
// into a degenerate one-step plan so the worker phase always has a
// plan to enforce against; if strict is true, the parse error is
// returned instead.
func Normalize(raw string, goal string, strict bool) (Normalized, error) {
	trimmed := strings.TrimSpace(stripFence(raw))
	var plan ltypes.Plan
	if err := json.Unmarshal([]byte(trimmed), &plan); err == nil && plan.SchemaVersion == ltypes.PlanSchemaVersion && len(plan.Steps) > 0 {
		hash, herr := canonjson.SHA256Hex(plan)
		if herr != nil {
			return Normalized{}, herr
		}
		return Normalized{Plan: plan, HashHex: hash, RawOutput: raw}, nil
	}

	if strict {
		return Normalized{}, fmt.Errorf("planner: output does not match %s", ltypes.PlanSchemaVersion)
	}

	wrapped := WrapTextPlan(goal, raw)
	hash, err := canonjson.SHA256Hex(wrapped)
	if err != nil {
		return Normalized{}, err
	}
	return Normalized{
		Plan:        wrapped,
		HashHex:     hash,
		RawOutput:   raw,
		Error:       "planner output did not match the plan schema; wrapped as a single step",
		UsedWrapper: true,
	}, nil
}

// WrapTextPlan builds a degenerate one-step plan around free text so a
// malformed planner response never blocks the worker phase.
func WrapTextPlan(goal, raw string) ltypes.Plan {
	return ltypes.Plan{
		SchemaVersion: ltypes.PlanSchemaVersion,
		Goal:          goal,
		Steps: []ltypes.PlanStep{
			{
				StepID:       "step_1",
				Summary:      strings.TrimSpace(raw),
				DoneCriteria: []string{"model reports done"},
			},
		},
	}
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}
