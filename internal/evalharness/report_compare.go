package evalharness

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// CompareReportSchemaVersion tags the compare-report document shape.
const CompareReportSchemaVersion = "localagent.eval_compare.v1"

// MetricDelta is b's metrics minus a's, field by field.
type MetricDelta struct {
	PassRateDelta       float64 `json:"pass_rate_delta"`
	AvgStepsDelta       float64 `json:"avg_steps_delta"`
	AvgToolCallsDelta   float64 `json:"avg_tool_calls_delta"`
	AvgToolRetriesDelta float64 `json:"avg_tool_retries_delta"`
	AvgWallTimeMsDelta  float64 `json:"avg_wall_time_ms_delta"`
}

// TaskRegression highlights one task whose pass rate moved between two
// eval runs.
type TaskRegression struct {
	TaskID         string  `json:"task_id"`
	PassRateDelta  float64 `json:"pass_rate_delta"`
	AvgStepsDelta  float64 `json:"avg_steps_delta"`
}

// CompareReport is the diff between two eval Results: an overall
// delta, a per-model breakdown, and the ten biggest task regressions.
type CompareReport struct {
	SchemaVersion       string                    `json:"schema_version"`
	SummaryDelta        MetricDelta               `json:"summary_delta"`
	PerModel            map[string]MetricDelta    `json:"per_model"`
	TopTaskRegressions  []TaskRegression          `json:"top_task_regressions"`
}

// CompareResultsFiles loads two results files, builds their compare
// report, and writes it as markdown (and, if outJSON is non-empty, as
// pretty JSON too).
func CompareResultsFiles(aPath, bPath, outMarkdown, outJSON string) error {
	a, err := loadResults(aPath)
	if err != nil {
		return err
	}
	b, err := loadResults(bPath)
	if err != nil {
		return err
	}
	if a.SchemaVersion != ResultsSchemaVersion || b.SchemaVersion != ResultsSchemaVersion {
		return fmt.Errorf("evalharness: schema mismatch: expected %s in both inputs", ResultsSchemaVersion)
	}

	report := BuildCompareReport(a, b)

	if err := os.MkdirAll(filepath.Dir(outMarkdown), 0o755); err != nil {
		return fmt.Errorf("evalharness: create markdown dir: %w", err)
	}
	if err := os.WriteFile(outMarkdown, []byte(renderMarkdown(report)), 0o644); err != nil {
		return fmt.Errorf("evalharness: write markdown: %w", err)
	}

	if outJSON != "" {
		if err := os.MkdirAll(filepath.Dir(outJSON), 0o755); err != nil {
			return fmt.Errorf("evalharness: create json dir: %w", err)
		}
		b, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("evalharness: marshal compare report: %w", err)
		}
		if err := os.WriteFile(outJSON, b, 0o644); err != nil {
			return fmt.Errorf("evalharness: write json: %w", err)
		}
	}
	return nil
}

func loadResults(path string) (Results, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Results{}, fmt.Errorf("evalharness: read results %s: %w", path, err)
	}
	var r Results
	if err := json.Unmarshal(b, &r); err != nil {
		return Results{}, fmt.Errorf("evalharness: parse results %s: %w", path, err)
	}
	return r, nil
}

// BuildCompareReport computes the deltas between two eval Results.
func BuildCompareReport(a, b Results) CompareReport {
	aMetrics := metricsOrEmpty(a.Metrics)
	bMetrics := metricsOrEmpty(b.Metrics)

	perModel := map[string]MetricDelta{}
	for _, model := range unionSortedKeys(aMetrics.PerModel, bMetrics.PerModel) {
		perModel[model] = delta(aMetrics.PerModel[model], bMetrics.PerModel[model])
	}

	var taskRegs []TaskRegression
	for _, task := range unionSortedKeys(aMetrics.PerTask, bMetrics.PerTask) {
		at := aMetrics.PerTask[task]
		bt := bMetrics.PerTask[task]
		taskRegs = append(taskRegs, TaskRegression{
			TaskID:        task,
			PassRateDelta: bt.PassRate - at.PassRate,
			AvgStepsDelta: bt.AvgSteps - at.AvgSteps,
		})
	}
	sort.Slice(taskRegs, func(i, j int) bool {
		if taskRegs[i].PassRateDelta != taskRegs[j].PassRateDelta {
			return taskRegs[i].PassRateDelta < taskRegs[j].PassRateDelta
		}
		return taskRegs[i].AvgStepsDelta > taskRegs[j].AvgStepsDelta
	})
	if len(taskRegs) > 10 {
		taskRegs = taskRegs[:10]
	}

	return CompareReport{
		SchemaVersion:      CompareReportSchemaVersion,
		SummaryDelta:       delta(aMetrics.Summary, bMetrics.Summary),
		PerModel:           perModel,
		TopTaskRegressions: taskRegs,
	}
}

func metricsOrEmpty(m *Metrics) Metrics {
	if m == nil {
		return Metrics{PerModel: map[string]AggregateMetrics{}, PerTask: map[string]AggregateMetrics{}}
	}
	return *m
}

func unionSortedKeys(a, b map[string]AggregateMetrics) []string {
	seen := map[string]bool{}
	var keys []string
	for k := range a {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	for k := range b {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func delta(a, b AggregateMetrics) MetricDelta {
	return MetricDelta{
		PassRateDelta:       b.PassRate - a.PassRate,
		AvgStepsDelta:       b.AvgSteps - a.AvgSteps,
		AvgToolCallsDelta:   b.AvgToolCalls - a.AvgToolCalls,
		AvgToolRetriesDelta: b.AvgToolRetries - a.AvgToolRetries,
		AvgWallTimeMsDelta:  b.AvgWallTimeMs - a.AvgWallTimeMs,
	}
}

func renderMarkdown(rep CompareReport) string {
	var b strings.Builder
	b.WriteString("# Eval Compare Report\n\n")
	b.WriteString("## Summary delta (B - A)\n\n")
	fmt.Fprintf(&b, "- pass_rate: %+.4f\n- avg_steps: %+.4f\n- avg_tool_calls: %+.4f\n- avg_tool_retries: %+.4f\n- avg_wall_time_ms: %+.4f\n\n",
		rep.SummaryDelta.PassRateDelta, rep.SummaryDelta.AvgStepsDelta, rep.SummaryDelta.AvgToolCallsDelta,
		rep.SummaryDelta.AvgToolRetriesDelta, rep.SummaryDelta.AvgWallTimeMsDelta)

	b.WriteString("## Per model\n\n")
	for _, model := range sortedMapKeys(rep.PerModel) {
		d := rep.PerModel[model]
		fmt.Fprintf(&b, "- %s: pass_rate %+.4f, avg_steps %+.4f, avg_tool_calls %+.4f, avg_tool_retries %+.4f, avg_wall_time_ms %+.4f\n",
			model, d.PassRateDelta, d.AvgStepsDelta, d.AvgToolCallsDelta, d.AvgToolRetriesDelta, d.AvgWallTimeMsDelta)
	}

	b.WriteString("\n## Top task regressions\n\n")
	for _, r := range rep.TopTaskRegressions {
		fmt.Fprintf(&b, "- %s: pass_rate %+.4f, avg_steps %+.4f\n", r.TaskID, r.PassRateDelta, r.AvgStepsDelta)
	}
	return b.String()
}

func sortedMapKeys(m map[string]MetricDelta) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
