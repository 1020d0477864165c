package evalharness

// ResultsSchemaVersion tags the results document shape compare reads.
const ResultsSchemaVersion = "localagent.eval.v1"

// AggregateMetrics summarizes one slice of a results set (the run as a
// whole, one model, or one task).
type AggregateMetrics struct {
	PassRate         float64 `json:"pass_rate"`
	AvgSteps         float64 `json:"avg_steps"`
	AvgToolCalls     float64 `json:"avg_tool_calls"`
	AvgToolRetries   float64 `json:"avg_tool_retries"`
	AvgWallTimeMs    float64 `json:"avg_wall_time_ms"`
}

// Metrics breaks an eval run's aggregate pass/fail metrics down by
// model and by task, alongside the overall summary.
type Metrics struct {
	Summary  AggregateMetrics            `json:"summary"`
	PerModel map[string]AggregateMetrics `json:"per_model"`
	PerTask  map[string]AggregateMetrics `json:"per_task"`
}

// Results is the persisted record one eval run produces: enough to
// feed BuildCompareReport against a second run's Results.
type Results struct {
	SchemaVersion string   `json:"schema_version"`
	CreatedAt     string   `json:"created_at"`
	Metrics       *Metrics `json:"metrics,omitempty"`
}
