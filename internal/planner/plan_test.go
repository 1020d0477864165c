package planner

import (
	"testing"

	"github.com/CalvinSturm/LocalAgent/internal/ltypes"
)

func TestNormalizeValidPlan(t *testing.T) {
	raw := `{"schema_version":"openagent.plan.v1","goal":"g","steps":[{"step_id":"step_1","summary":"s","intended_tools":["shell"],"done_criteria":["done"],"verifier_checks":[]}]}`
	n, err := Normalize(raw, "g", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.UsedWrapper {
		t.Fatal("expected a real plan, not the text wrapper")
	}
	if n.HashHex == "" {
		t.Fatal("expected a non-empty hash")
	}
}

func TestNormalizeMalformedWrapsByDefault(t *testing.T) {
	n, err := Normalize("just free text", "g", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !n.UsedWrapper {
		t.Fatal("expected malformed output to be wrapped")
	}
	if len(n.Plan.Steps) != 1 {
		t.Fatalf("expected a single degenerate step, got %d", len(n.Plan.Steps))
	}
}

func TestNormalizeMalformedStrictFails(t *testing.T) {
	if _, err := Normalize("just free text", "g", true); err == nil {
		t.Fatal("expected an error in strict mode")
	}
}

func TestEnforcerCheckToolRestrictsToIntendedTools(t *testing.T) {
	plan := &ltypes.Plan{
		SchemaVersion: ltypes.PlanSchemaVersion,
		Steps: []ltypes.PlanStep{
			{StepID: "step_1", IntendedTools: []string{"read_file"}},
		},
	}
	e := NewEnforcer(plan)
	if ok, _ := e.CheckTool("read_file"); !ok {
		t.Fatal("expected read_file to be permitted")
	}
	if ok, reason := e.CheckTool("shell"); ok || reason == "" {
		t.Fatalf("expected shell to be denied with a reason, got ok=%v reason=%q", ok, reason)
	}
}

func TestEnforcerDisabledPermitsEverything(t *testing.T) {
	e := NewEnforcer(nil)
	if ok, _ := e.CheckTool("shell"); !ok {
		t.Fatal("expected no plan to permit every tool")
	}
	if e.MustNotHalt() {
		t.Fatal("expected no plan to never block halting")
	}
}

func TestApplyStatusTransitionsActiveStep(t *testing.T) {
	plan := &ltypes.Plan{
		SchemaVersion: ltypes.PlanSchemaVersion,
		Steps: []ltypes.PlanStep{
			{StepID: "step_1"},
			{StepID: "step_2"},
		},
	}
	e := NewEnforcer(plan)
	if err := e.ApplyStatus(ltypes.WorkerStepStatus{StepID: "step_1", Status: ltypes.StepDone, NextStepID: "step_2"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	active, ok := e.ActiveStep()
	if !ok || active.StepID != "step_2" {
		t.Fatalf("expected active step step_2, got %+v ok=%v", active, ok)
	}
	if e.PendingCount() != 1 {
		t.Fatalf("expected 1 pending step, got %d", e.PendingCount())
	}
}

func TestApplyStatusInvalidNextStepErrors(t *testing.T) {
	plan := &ltypes.Plan{SchemaVersion: ltypes.PlanSchemaVersion, Steps: []ltypes.PlanStep{{StepID: "step_1"}}}
	e := NewEnforcer(plan)
	err := e.ApplyStatus(ltypes.WorkerStepStatus{StepID: "step_1", Status: ltypes.StepDone, NextStepID: "does_not_exist"})
	if _, ok := err.(ErrInvalidTransition); !ok {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestMustNotHaltWhilePending(t *testing.T) {
	plan := &ltypes.Plan{SchemaVersion: ltypes.PlanSchemaVersion, Steps: []ltypes.PlanStep{{StepID: "step_1"}}}
	e := NewEnforcer(plan)
	if !e.MustNotHalt() {
		t.Fatal("expected halting to be blocked while step_1 is pending")
	}
	if err := e.ApplyStatus(ltypes.WorkerStepStatus{StepID: "step_1", Status: ltypes.StepDone}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.MustNotHalt() {
		t.Fatal("expected halting to be permitted once no steps are pending")
	}
}
