package ltypes

// PlanSchemaVersion is the schema tag for a Planner output.
const PlanSchemaVersion = "openagent.plan.v1"

// StepResultSchemaVersion is the schema tag for a worker's step status.
const StepResultSchemaVersion = "openagent.step_result.v1"

// PlanStep is one step of a Plan.
type PlanStep struct {
	StepID         string   `json:"step_id"`
	Summary        string   `json:"summary"`
	IntendedTools  []string `json:"intended_tools"`
	DoneCriteria   []string `json:"done_criteria"`
	VerifierChecks []string `json:"verifier_checks"`
}

// Plan is the planner's output: a canonical JSON document the worker
// phase is constrained by.
type Plan struct {
	SchemaVersion   string     `json:"schema_version"`
	Goal            string     `json:"goal"`
	Assumptions     []string   `json:"assumptions,omitempty"`
	Steps           []PlanStep `json:"steps"`
	Risks           []string   `json:"risks,omitempty"`
	SuccessCriteria []string   `json:"success_criteria,omitempty"`
}

// StepStatus enumerates the worker's report on a plan step.
type StepStatus string

const (
	StepDone    StepStatus = "done"
	StepRetry   StepStatus = "retry"
	StepReplan  StepStatus = "replan"
	StepFail    StepStatus = "fail"
)

// WorkerStepStatus is the structured status a worker turn may emit
// alongside or instead of tool calls.
type WorkerStepStatus struct {
	SchemaVersion string     `json:"schema_version"`
	StepID        string     `json:"step_id"`
	Status        StepStatus `json:"status"`
	NextStepID    string     `json:"next_step_id,omitempty"`
	UserOutput    string     `json:"user_output,omitempty"`
}
