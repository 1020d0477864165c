package kernel

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/CalvinSturm/LocalAgent/internal/approvals"
	"github.com/CalvinSturm/LocalAgent/internal/events"
	"github.com/CalvinSturm/LocalAgent/internal/gate"
	"github.com/CalvinSturm/LocalAgent/internal/ltypes"
	"github.com/CalvinSturm/LocalAgent/internal/opqueue"
	"github.com/CalvinSturm/LocalAgent/internal/runrecord"
	"github.com/CalvinSturm/LocalAgent/internal/schema"
	"github.com/CalvinSturm/LocalAgent/internal/taint"
	"github.com/CalvinSturm/LocalAgent/internal/target"
	"github.com/CalvinSturm/LocalAgent/internal/tools"
	"github.com/CalvinSturm/LocalAgent/internal/transcript"
)

// fakeTarget is an in-memory ExecTarget used so kernel tests never
// touch the real filesystem.
type fakeTarget struct {
	files map[string]string
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{files: make(map[string]string)}
}

func (f *fakeTarget) Kind() target.Kind          { return target.KindHost }
func (f *fakeTarget) Describe() target.Describe  { return target.Describe{ExecTarget: "host"} }

func (f *fakeTarget) ExecShell(_ context.Context, req target.ShellRequest) target.Result {
	return target.Result{OK: true, Content: "ran " + req.Cmd, ExecutionTarget: target.KindHost}
}

func (f *fakeTarget) ReadFile(_ context.Context, req target.ReadRequest) target.Result {
	content, ok := f.files[req.Path]
	if !ok {
		return target.Failed(target.KindHost, "no such file: "+req.Path, nil)
	}
	return target.Result{OK: true, Content: content, ExecutionTarget: target.KindHost}
}

func (f *fakeTarget) ListDir(_ context.Context, req target.ListRequest) target.Result {
	return target.Result{OK: true, Content: "a.go\nb.go", ExecutionTarget: target.KindHost}
}

func (f *fakeTarget) WriteFile(_ context.Context, req target.WriteRequest) target.Result {
	f.files[req.Path] = req.Content
	return target.Result{OK: true, Content: "wrote " + req.Path, ExecutionTarget: target.KindHost}
}

func (f *fakeTarget) ApplyPatch(_ context.Context, req target.PatchRequest) target.Result {
	return target.Result{OK: true, Content: "applied", ExecutionTarget: target.KindHost}
}

func baseConfig(t *testing.T, provider Provider) Config {
	t.Helper()
	reg := tools.NewRegistry()
	val := schema.NewValidator()
	for name := range reg.AllNames() {
		def, _ := reg.Get(name)
		if err := val.Compile(name, def.Parameters); err != nil {
			t.Fatalf("compile schema for %s: %v", name, err)
		}
	}
	dir := t.TempDir()
	approvalsStore, err := approvals.Open(filepath.Join(dir, "approvals.json"))
	if err != nil {
		t.Fatalf("open approvals: %v", err)
	}
	return Config{
		RunID:              "run_1",
		Model:              "test-model",
		Workdir:            dir,
		MaxSteps:           10,
		MaxTotalToolCalls:  10,
		MaxProviderRetries: 0,
		ApprovalMode:       ApprovalAuto,
		TaintMode:          taint.ModePropagateAndEnforce,
		Capabilities:       map[string]bool{"allow-shell": true, "allow-write": true},
		Provider:           provider,
		Registry:           reg,
		Validator:          val,
		Policy:             gate.DefaultPolicy(),
		Approvals:          approvalsStore,
		Target:             newFakeTarget(),
		Sink:               events.NewMemorySink(),
		OpQueue:            opqueue.New(),
		RunRecord:          runrecord.NewStore(dir),
	}
}

func msg(content string) ltypes.Message {
	return ltypes.Message{Role: ltypes.RoleAssistant, Content: content}
}

func TestRunOkOnPlainReply(t *testing.T) {
	provider := NewMockProvider(GenerateResponse{Assistant: msg("THOUGHT: done\nRESPONSE: all set.")})
	cfg := baseConfig(t, provider)

	outcome, err := Run(context.Background(), cfg, "do the thing", nil, nil)
	if err != nil {
		t.Fatalf("unexpected setup error: %v", err)
	}
	if outcome.ExitReason != ltypes.ExitOk {
		t.Fatalf("expected Ok, got %s (%s)", outcome.ExitReason, outcome.Error)
	}
	if outcome.FinalOutput != "all set." {
		t.Fatalf("unexpected final output: %q", outcome.FinalOutput)
	}
}

func TestRunExecutesWrappedToolCallThenReplies(t *testing.T) {
	toolTurn := msg(`[TOOL_CALL]{"name":"read_file","arguments":{"path":"notes.txt"}}[END_TOOL_CALL]`)
	finalTurn := msg("RESPONSE: read the file.")
	provider := NewMockProvider(toolTurn, finalTurn)
	cfg := baseConfig(t, provider)
	cfg.Target.(*fakeTarget).files["notes.txt"] = "hello"

	outcome, err := Run(context.Background(), cfg, "read notes.txt", nil, nil)
	if err != nil {
		t.Fatalf("unexpected setup error: %v", err)
	}
	if outcome.ExitReason != ltypes.ExitOk {
		t.Fatalf("expected Ok, got %s (%s)", outcome.ExitReason, outcome.Error)
	}
	if outcome.FinalOutput != "read the file." {
		t.Fatalf("unexpected final output: %q", outcome.FinalOutput)
	}
	var sawToolMessage bool
	for _, m := range outcome.Messages {
		if m.Role == ltypes.RoleTool && m.ToolName == "read_file" {
			sawToolMessage = true
		}
	}
	if !sawToolMessage {
		t.Fatalf("expected a tool result message in transcript, got %+v", outcome.Messages)
	}
}

func TestRunDeniesToolByPolicy(t *testing.T) {
	toolTurn := msg(`[TOOL_CALL]{"name":"shell","arguments":{"cmd":"rm -rf /"}}[END_TOOL_CALL]`)
	provider := NewMockProvider(toolTurn)
	cfg := baseConfig(t, provider)
	cfg.Policy = &gate.Policy{
		Default: gate.DefaultAllow,
		Rules: []gate.Rule{
			{Tool: "shell", Decision: gate.RuleDeny, Reason: "shell denied in test"},
		},
	}

	outcome, err := Run(context.Background(), cfg, "clean up", nil, nil)
	if err != nil {
		t.Fatalf("unexpected setup error: %v", err)
	}
	if outcome.ExitReason != ltypes.ExitDenied {
		t.Fatalf("expected Denied, got %s", outcome.ExitReason)
	}
	if len(outcome.ToolDecisions) != 1 || outcome.ToolDecisions[0].Decision != ltypes.GateDeny {
		t.Fatalf("expected one deny decision recorded, got %+v", outcome.ToolDecisions)
	}
}

func TestRunMaxStepsExhausted(t *testing.T) {
	toolTurn := msg(`[TOOL_CALL]{"name":"list_dir","arguments":{"path":"."}}[END_TOOL_CALL]`)
	provider := NewMockProvider(toolTurn)
	cfg := baseConfig(t, provider)
	cfg.MaxSteps = 2

	outcome, err := Run(context.Background(), cfg, "loop forever", nil, nil)
	if err != nil {
		t.Fatalf("unexpected setup error: %v", err)
	}
	if outcome.ExitReason != ltypes.ExitMaxSteps {
		t.Fatalf("expected MaxSteps, got %s", outcome.ExitReason)
	}
}

func TestRunProviderErrorAfterRetries(t *testing.T) {
	provider := NewMockProvider(GenerateResponse{}).WithErrors(
		context_canceled_like_error{}, context_canceled_like_error{}, context_canceled_like_error{},
	)
	cfg := baseConfig(t, provider)
	cfg.MaxProviderRetries = 2

	outcome, err := Run(context.Background(), cfg, "do the thing", nil, nil)
	if err != nil {
		t.Fatalf("unexpected setup error: %v", err)
	}
	if outcome.ExitReason != ltypes.ExitProviderError {
		t.Fatalf("expected ProviderError, got %s", outcome.ExitReason)
	}
}

type context_canceled_like_error struct{}

func (context_canceled_like_error) Error() string { return "provider unavailable" }

func TestRunSchemaProtocolViolationFailsFast(t *testing.T) {
	badTurn := msg(`[TOOL_CALL]{"name":"read_file","arguments":{"bogus":1}}[END_TOOL_CALL]`)
	provider := NewMockProvider(badTurn, badTurn, badTurn)
	cfg := baseConfig(t, provider)

	outcome, err := Run(context.Background(), cfg, "read something", nil, nil)
	if err != nil {
		t.Fatalf("unexpected setup error: %v", err)
	}
	if outcome.ExitReason != ltypes.ExitPlannerError {
		t.Fatalf("expected PlannerError, got %s", outcome.ExitReason)
	}
	if outcome.Error != "MODEL_TOOL_PROTOCOL_VIOLATION" {
		t.Fatalf("unexpected error detail: %q", outcome.Error)
	}
}

func TestRunBudgetExceeded(t *testing.T) {
	toolTurn := msg(`[TOOL_CALL]{"name":"list_dir","arguments":{"path":"."}}[END_TOOL_CALL]`)
	provider := NewMockProvider(toolTurn)
	cfg := baseConfig(t, provider)
	cfg.MaxTotalToolCalls = 1
	cfg.MaxSteps = 5

	outcome, err := Run(context.Background(), cfg, "list forever", nil, nil)
	if err != nil {
		t.Fatalf("unexpected setup error: %v", err)
	}
	if outcome.ExitReason != ltypes.ExitBudgetExceeded {
		t.Fatalf("expected BudgetExceeded, got %s", outcome.ExitReason)
	}
}

func TestRunCompactsTranscriptWhenSessionHistoryIsOversized(t *testing.T) {
	provider := NewMockProvider(GenerateResponse{Assistant: msg("THOUGHT: done\nRESPONSE: all set.")})
	cfg := baseConfig(t, provider)
	cfg.MaxContextTokens = 500
	sink := events.NewMemorySink()
	cfg.Sink = sink

	var session []ltypes.Message
	for i := 0; i < 20; i++ {
		session = append(session, ltypes.Message{Role: ltypes.RoleUser, Content: strings.Repeat("x", 400)})
	}

	outcome, err := Run(context.Background(), cfg, "do the thing", session, nil)
	if err != nil {
		t.Fatalf("unexpected setup error: %v", err)
	}
	if outcome.ExitReason != ltypes.ExitOk {
		t.Fatalf("expected Ok, got %s (%s)", outcome.ExitReason, outcome.Error)
	}
	if len(outcome.Messages) >= len(session) {
		t.Fatalf("expected the oversized session history to be compacted, kept %d of %d seed messages plus turn messages", len(outcome.Messages), len(session))
	}

	var sawCompaction bool
	for _, e := range sink.Events() {
		if e.Kind == events.KindTranscriptCompacted {
			sawCompaction = true
		}
	}
	if !sawCompaction {
		t.Fatal("expected a TranscriptCompacted event to be emitted")
	}
}

func TestRunDoesNotCompactWhenStrategyIsNone(t *testing.T) {
	provider := NewMockProvider(GenerateResponse{Assistant: msg("THOUGHT: done\nRESPONSE: all set.")})
	cfg := baseConfig(t, provider)
	cfg.MaxContextTokens = 500
	cfg.CompactionStrategy = transcript.StrategyNone
	sink := events.NewMemorySink()
	cfg.Sink = sink

	var session []ltypes.Message
	for i := 0; i < 20; i++ {
		session = append(session, ltypes.Message{Role: ltypes.RoleUser, Content: strings.Repeat("x", 400)})
	}

	outcome, err := Run(context.Background(), cfg, "do the thing", session, nil)
	if err != nil {
		t.Fatalf("unexpected setup error: %v", err)
	}
	if len(outcome.Messages) < len(session) {
		t.Fatalf("expected no compaction under StrategyNone, kept %d of %d seed messages plus turn messages", len(outcome.Messages), len(session))
	}
	for _, e := range sink.Events() {
		if e.Kind == events.KindTranscriptCompacted {
			t.Fatal("did not expect a TranscriptCompacted event under StrategyNone")
		}
	}
}
