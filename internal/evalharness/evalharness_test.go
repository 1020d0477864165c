package evalharness

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/CalvinSturm/LocalAgent/internal/ltypes"
)

func TestEvaluateAssertionsFileChecks(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello world"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	outcome := ltypes.RunOutcome{}
	failures := EvaluateAssertions([]Assertion{
		{Kind: AssertFileExists, Path: "a.txt"},
		{Kind: AssertFileContains, Path: "a.txt", Substring: "hello"},
	}, dir, outcome)
	if len(failures) != 0 {
		t.Fatalf("expected no failures, got %v", failures)
	}
}

func TestEvaluateAssertionsToolNotUsedGlob(t *testing.T) {
	outcome := ltypes.RunOutcome{
		ToolCalls: []ltypes.ToolCall{{ID: "1", Name: "shell"}},
	}
	ok := EvaluateAssertions([]Assertion{{Kind: AssertToolNotUsedGlob, Pattern: "write_file"}}, ".", outcome)
	if len(ok) != 0 {
		t.Fatalf("expected pass, got %v", ok)
	}
	bad := EvaluateAssertions([]Assertion{{Kind: AssertToolNotUsedGlob, Pattern: "shell"}}, ".", outcome)
	if len(bad) != 1 {
		t.Fatalf("expected 1 failure, got %v", bad)
	}
}

func TestEvaluateAssertionsToolUsedGlobAndPrefix(t *testing.T) {
	outcome := ltypes.RunOutcome{
		ToolCalls: []ltypes.ToolCall{{ID: "1", Name: "mcp.playwright.navigate"}},
	}
	failures := EvaluateAssertions([]Assertion{
		{Kind: AssertToolUsedGlob, Pattern: "mcp.playwright.*"},
		{Kind: AssertToolUsedPrefix, Prefix: "mcp."},
	}, ".", outcome)
	if len(failures) != 0 {
		t.Fatalf("expected no failures, got %v", failures)
	}
}

func TestEvaluateAssertionsOutputAndMCPResult(t *testing.T) {
	outcome := ltypes.RunOutcome{
		FinalOutput: "the title is Example Domain",
		Messages: []ltypes.Message{
			{Role: ltypes.RoleTool, ToolName: "mcp.playwright.navigate", Content: "page title: Example Domain"},
		},
	}
	failures := EvaluateAssertions([]Assertion{
		{Kind: AssertOutputContains, Substring: "Example Domain"},
		{Kind: AssertMCPResultContain, Substring: "Example Domain"},
	}, ".", outcome)
	if len(failures) != 0 {
		t.Fatalf("expected no failures, got %v", failures)
	}
}

func TestEstimateCostUSD(t *testing.T) {
	model := CostModel{
		SchemaVersion: CostModelSchemaVersion,
		Rules: []CostRule{
			{ModelGlob: "qwen3:*", PromptPer1k: 0.1, CompletionPer1k: 0.2},
		},
	}
	usage := &ltypes.TokenUsage{PromptTokens: 1000, CompletionTokens: 500}
	cost, ok := EstimateCostUSD("qwen3:8b", usage, model)
	if !ok {
		t.Fatal("expected a match")
	}
	if diff := cost - 0.2; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected cost ~0.2, got %v", cost)
	}

	if _, ok := EstimateCostUSD("unknown-model", usage, model); ok {
		t.Fatal("expected no match for an unrelated model name")
	}
}

func TestTasksForPackFiltersByPrefix(t *testing.T) {
	coding := TasksForPack(PackCoding)
	ids := map[string]bool{}
	for _, task := range coding {
		ids[task.ID] = true
	}
	for _, want := range []string{"C1", "C2", "C3", "C4", "C5"} {
		if !ids[want] {
			t.Fatalf("expected coding pack to contain %s, got %v", want, ids)
		}
	}
	for id := range ids {
		if id[0] != 'C' {
			t.Fatalf("coding pack leaked a non-C task: %s", id)
		}
	}
}

func TestC4RequiredFlags(t *testing.T) {
	var c4 Task
	found := false
	for _, task := range TasksForPack(PackCoding) {
		if task.ID == "C4" {
			c4 = task
			found = true
		}
	}
	if !found {
		t.Fatal("expected C4 to exist")
	}
	flags := c4.RequiredFlags()
	want := map[string]bool{"--enable-write-tools": false, "--allow-write": false, "--allow-shell": false}
	for _, f := range flags {
		want[f] = true
	}
	for flag, seen := range want {
		if !seen {
			t.Fatalf("expected required flag %s, got %v", flag, flags)
		}
	}
}

func TestWorkspaceRefactorFixturesDeterministicAndLargeEnough(t *testing.T) {
	a := workspaceRefactorFixtures()
	b := workspaceRefactorFixtures()
	if len(a) != len(b) {
		t.Fatalf("expected deterministic fixture count, got %d vs %d", len(a), len(b))
	}
	if len(a) < 5 {
		t.Fatalf("expected at least 5 fixtures, got %d", len(a))
	}
	found := false
	for _, f := range a {
		if f.Kind == FixtureWriteFile && f.Path == "go.mod" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a go.mod fixture")
	}
}

func TestCliBugfixFixturesContainRegressionTests(t *testing.T) {
	fixtures := cliBugfixFixtures()
	found := false
	for _, f := range fixtures {
		if f.Path == "regression_test.go" && contains(f.Content, "TestParsesSpacedCount") {
			found = true
		}
	}
	if !found {
		t.Fatal("expected regression_test.go to contain TestParsesSpacedCount")
	}
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && (func() bool {
		for i := 0; i+len(substr) <= len(s); i++ {
			if s[i:i+len(substr)] == substr {
				return true
			}
		}
		return false
	})()
}

func TestBuildCompareReportComputesDeltas(t *testing.T) {
	a := Results{
		SchemaVersion: ResultsSchemaVersion,
		Metrics: &Metrics{
			Summary:  AggregateMetrics{PassRate: 0.8, AvgSteps: 10, AvgToolCalls: 2, AvgWallTimeMs: 1000},
			PerModel: map[string]AggregateMetrics{},
			PerTask:  map[string]AggregateMetrics{},
		},
	}
	b := a
	b.Metrics = &Metrics{
		Summary:  AggregateMetrics{PassRate: 0.7, AvgSteps: 12, AvgToolCalls: 3, AvgWallTimeMs: 1100},
		PerModel: map[string]AggregateMetrics{},
		PerTask:  map[string]AggregateMetrics{},
	}
	rep := BuildCompareReport(a, b)
	if rep.SummaryDelta.PassRateDelta >= 0 {
		t.Fatalf("expected a negative pass-rate delta, got %v", rep.SummaryDelta.PassRateDelta)
	}
	if rep.SummaryDelta.AvgStepsDelta <= 0 {
		t.Fatalf("expected a positive avg-steps delta, got %v", rep.SummaryDelta.AvgStepsDelta)
	}
}

func TestFixtureServerServesMarkerRoutes(t *testing.T) {
	fs, err := StartFixtureServer()
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer fs.Stop(context.Background())

	resp, err := http.Get(fs.BaseURL() + "/nav")
	if err != nil {
		t.Fatalf("get /nav: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !contains(string(body), "NAV_FIXTURE_OK") {
		t.Fatalf("expected nav marker, got %s", body)
	}
}
