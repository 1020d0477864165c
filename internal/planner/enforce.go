package planner

import (
	"fmt"

	"github.com/CalvinSturm/LocalAgent/internal/ltypes"
)

// Enforcer tracks the plan's pending step ids and constrains worker
// tool calls to the active step's intended tools. A zero Enforcer (no
// Plan set) never constrains anything, matching "planner enforcement
// off".
type Enforcer struct {
	plan    *ltypes.Plan
	pending map[string]bool
	active  string
}

// NewEnforcer starts with every step of plan pending, current step set
// to the first one.
func NewEnforcer(plan *ltypes.Plan) *Enforcer {
	e := &Enforcer{plan: plan, pending: make(map[string]bool)}
	if plan == nil {
		return e
	}
	for _, s := range plan.Steps {
		e.pending[s.StepID] = true
	}
	if len(plan.Steps) > 0 {
		e.active = plan.Steps[0].StepID
	}
	return e
}

// Enabled reports whether a plan is being enforced at all.
func (e *Enforcer) Enabled() bool { return e.plan != nil }

// PendingCount returns how many steps have not yet been marked done.
func (e *Enforcer) PendingCount() int { return len(e.pending) }

// ActiveStep returns the currently active step, if any.
func (e *Enforcer) ActiveStep() (ltypes.PlanStep, bool) {
	if e.plan == nil || e.active == "" {
		return ltypes.PlanStep{}, false
	}
	for _, s := range e.plan.Steps {
		if s.StepID == e.active {
			return s, true
		}
	}
	return ltypes.PlanStep{}, false
}

// CheckTool reports whether toolName is permitted for the active step.
// When no plan is enforced, or the active step has no intended_tools
// restriction, every tool is permitted.
func (e *Enforcer) CheckTool(toolName string) (bool, string) {
	step, ok := e.ActiveStep()
	if !ok || len(step.IntendedTools) == 0 {
		return true, ""
	}
	for _, t := range step.IntendedTools {
		if t == toolName {
			return true, ""
		}
	}
	return false, fmt.Sprintf("%q is not allowed for plan step %s", toolName, step.StepID)
}

// ErrInvalidTransition is returned by ApplyStatus when a status names a
// next_step_id that does not exist in the plan.
type ErrInvalidTransition struct {
	NextStepID string
}

func (e ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid step completion transition: unknown next_step_id %q", e.NextStepID)
}

// ApplyStatus applies a WorkerStepStatus to the enforcer's pending-step
// tracking. A status of Done clears the current step from pending and
// moves active to NextStepID (validated to exist in the plan).
func (e *Enforcer) ApplyStatus(status ltypes.WorkerStepStatus) error {
	if e.plan == nil {
		return nil
	}
	if status.Status != ltypes.StepDone {
		return nil
	}
	delete(e.pending, status.StepID)
	if status.NextStepID == "" {
		e.active = ""
		return nil
	}
	for _, s := range e.plan.Steps {
		if s.StepID == status.NextStepID {
			e.active = status.NextStepID
			return nil
		}
	}
	return ErrInvalidTransition{NextStepID: status.NextStepID}
}

// MustNotHalt reports whether the worker phase may terminate with no
// tool calls: it must not while any step remains pending.
func (e *Enforcer) MustNotHalt() bool {
	return e.plan != nil && len(e.pending) > 0
}
