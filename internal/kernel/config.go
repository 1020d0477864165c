package kernel

import (
	"context"
	"time"

	"github.com/CalvinSturm/LocalAgent/internal/approvals"
	"github.com/CalvinSturm/LocalAgent/internal/events"
	"github.com/CalvinSturm/LocalAgent/internal/gate"
	"github.com/CalvinSturm/LocalAgent/internal/ltypes"
	"github.com/CalvinSturm/LocalAgent/internal/observability"
	"github.com/CalvinSturm/LocalAgent/internal/opqueue"
	"github.com/CalvinSturm/LocalAgent/internal/planner"
	"github.com/CalvinSturm/LocalAgent/internal/runrecord"
	"github.com/CalvinSturm/LocalAgent/internal/schema"
	"github.com/CalvinSturm/LocalAgent/internal/target"
	"github.com/CalvinSturm/LocalAgent/internal/taint"
	"github.com/CalvinSturm/LocalAgent/internal/tools"
	"github.com/CalvinSturm/LocalAgent/internal/transcript"
)

// ApprovalMode controls how the kernel resolves a GateRequireApproval
// decision.
type ApprovalMode string

const (
	ApprovalAuto      ApprovalMode = "auto"
	ApprovalInterrupt ApprovalMode = "interrupt"
	ApprovalFail      ApprovalMode = "fail"
)

// Config bundles a run's tunables and collaborators. A Kernel is built
// once per run (its mutable fields live on Run, not Config).
type Config struct {
	RunID              string
	Model              string
	ProviderIdentity   string
	Workdir            string
	MaxSteps           int
	MaxWallTime        time.Duration
	MaxTotalToolCalls  int
	MaxProviderRetries int
	ApprovalMode       ApprovalMode
	TaintMode          taint.Mode
	Capabilities       map[string]bool
	HooksConfigHash    string
	ToolOnlyPhase      bool
	MaxReadBytes       int
	MaxToolOutputBytes int
	TaintDigestBytes   int

	// MaxContextTokens overrides the model's known context window for
	// transcript compaction. Zero means derive it from Model via
	// transcript.WindowForModel.
	MaxContextTokens int
	// CompactionStrategy selects how the transcript is reduced once it
	// runs low on room; empty means transcript.StrategyOldest.
	CompactionStrategy transcript.Strategy

	Provider      Provider
	Registry      *tools.Registry
	Validator     *schema.Validator
	Policy        *gate.Policy
	Approvals     *approvals.Store
	Target        target.ExecTarget
	Sink          events.Sink
	OpQueue       *opqueue.Queue
	RunRecord     *runrecord.Store
	Plan          *ltypes.Plan
	PlanStrict    bool
	Logger        *observability.Logger
	Metrics       *observability.Metrics
	MCP           MCPExecutor
}

// MCPExecutor dispatches a namespaced mcp.<server>.<tool> call to a
// connected MCP server. internal/mcptools.Executor implements this over
// an internal/mcp.Manager; kernel stays free of a direct MCP transport
// dependency so it can be tested with a fake.
type MCPExecutor interface {
	Execute(ctx context.Context, call ltypes.ToolCall) target.Result
}

// logger returns a non-nil logger, building a silent default if none was
// configured, so kernel code never has to nil-check before logging.
func (c Config) logger() *observability.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return observability.NewLogger(observability.LogConfig{Level: "error"})
}

func (c Config) toolSchemaHashes() map[string]string {
	out := make(map[string]string)
	for name := range c.Registry.AllNames() {
		def, ok := c.Registry.Get(name)
		if !ok {
			continue
		}
		h, err := gate.ToolSchemaHash(def.Parameters)
		if err != nil {
			continue
		}
		out[name] = h
	}
	return out
}

func newEnforcer(plan *ltypes.Plan) *planner.Enforcer {
	return planner.NewEnforcer(plan)
}
