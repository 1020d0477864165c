package kernel

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/CalvinSturm/LocalAgent/internal/approvals"
	"github.com/CalvinSturm/LocalAgent/internal/classify"
	"github.com/CalvinSturm/LocalAgent/internal/events"
	"github.com/CalvinSturm/LocalAgent/internal/gate"
	"github.com/CalvinSturm/LocalAgent/internal/ltypes"
	"github.com/CalvinSturm/LocalAgent/internal/opqueue"
	"github.com/CalvinSturm/LocalAgent/internal/retry"
	"github.com/CalvinSturm/LocalAgent/internal/taint"
	"github.com/CalvinSturm/LocalAgent/internal/target"
	"github.com/CalvinSturm/LocalAgent/internal/tools"
)

// runToolCalls processes one assistant turn's extracted tool calls in
// order, per step 6 of the turn loop. cancelled reports whether a
// PostTool Steer truncated the remaining calls; terminal is non-nil
// when the run must end now (Denied, ApprovalRequired, BudgetExceeded,
// or PlannerError from a schema-protocol violation).
func (k *Kernel) runToolCalls(ctx context.Context, step int, calls []ltypes.ToolCall) (cancelled bool, terminal *terminalSignal) {
	for _, call := range calls {
		k.totalToolCalls++
		if k.cfg.MaxTotalToolCalls > 0 && k.totalToolCalls > k.cfg.MaxTotalToolCalls {
			k.recordDecision(call, ltypes.DecisionSourceRuntimeBudget, ltypes.GateDeny, "max_total_tool_calls exceeded")
			return false, &terminalSignal{reason: ltypes.ExitBudgetExceeded}
		}

		if k.enforcer.Enabled() {
			if ok, reason := k.enforcer.CheckTool(call.Name); !ok {
				k.recordDecision(call, ltypes.DecisionSourcePlanStepConstraint, ltypes.GateDeny, reason)
				k.appendDeniedEnvelope(call, reason, ltypes.SideEffectNone)
				continue
			}
		}

		def, known := k.cfg.Registry.Get(call.Name)
		if !known {
			k.appendDeniedEnvelope(call, "unknown tool", ltypes.SideEffectNone)
			continue
		}

		if err := k.cfg.Validator.Validate(call.Name, call.Arguments); err != nil {
			shapeKey := call.Name + "|" + argShape(call.Arguments)
			k.schemaFailureStreak[shapeKey]++
			k.recordDecision(call, ltypes.DecisionSourceSchemaRepair, ltypes.GateDeny, err.Error())
			k.appendFailedEnvelope(call, def, err.Error())
			k.messages = append(k.messages, ltypes.Message{
				Role:    ltypes.RoleDeveloper,
				Content: fmt.Sprintf("Tool call %q failed schema validation: %s. Re-emit exactly one corrected tool call.", call.Name, err.Error()),
			})
			if k.schemaFailureStreak[shapeKey] >= 2 {
				return false, &terminalSignal{reason: ltypes.ExitPlannerError, errMsg: "MODEL_TOOL_PROTOCOL_VIOLATION"}
			}
			continue
		}
		delete(k.schemaFailureStreak, call.Name+"|"+argShape(call.Arguments))

		gctx := k.gateContext()
		decision := gate.Decide(k.cfg.Policy, gctx, call)
		source := ltypes.DecisionSourceGate
		if decision.Kind == ltypes.GateAllow && taint.ShouldEnforce(k.cfg.TaintMode, k.taintState.Overall, def.SideEffects) {
			decision = ltypes.GateDecision{Kind: ltypes.GateDeny, Reason: "tainted-context"}
			source = ltypes.DecisionSourceTaintEnforce
		}

		switch decision.Kind {
		case ltypes.GateDeny:
			k.recordDecision(call, source, ltypes.GateDeny, decision.Reason)
			k.appendDeniedEnvelope(call, decision.Reason, def.SideEffects)
			return false, &terminalSignal{reason: ltypes.ExitDenied, errMsg: decision.Reason}

		case ltypes.GateRequireApproval:
			resolved, term := k.resolveApproval(gctx, call, decision)
			if term != nil {
				return false, term
			}
			if !resolved {
				continue
			}

		case ltypes.GateAllow:
			k.recordDecision(call, source, ltypes.GateAllow, "")
		}

		result := k.executeWithRetry(ctx, step, call, def)
		k.appendResultEnvelope(call, def, result)

		if d, ok := k.cfg.OpQueue.DeliverAt(opqueue.BoundaryPostTool); ok {
			k.messages = append(k.messages, ltypes.Message{Role: ltypes.RoleUser, Content: d.Message.Content})
			k.emit(ctx, step, events.KindQueueInterrupt, map[string]any{
				"cancelled_remaining_work": d.CancelledRemainingWork,
				"cancelled_reason":         d.CancelledReason,
			})
			return true, nil
		}
	}
	return false, nil
}

// resolveApproval applies the configured ApprovalMode to a
// GateRequireApproval decision, consulting the Approvals Store first.
// resolved is true when execution should proceed as Allow; term is
// non-nil when the run must terminate now.
func (k *Kernel) resolveApproval(gctx ltypes.GateContext, call ltypes.ToolCall, decision ltypes.GateDecision) (resolved bool, term *terminalSignal) {
	key, err := gate.ApprovalKey(gctx, call, k.cfg.HooksConfigHash)
	if err != nil {
		k.recordDecision(call, ltypes.DecisionSourceGate, ltypes.GateDeny, err.Error())
		k.appendDeniedEnvelope(call, err.Error(), ltypes.SideEffectNone)
		return false, &terminalSignal{reason: ltypes.ExitDenied, errMsg: err.Error()}
	}

	if entry, ok := k.cfg.Approvals.Lookup(key); ok {
		if entry.Decision == approvals.DecisionAllow {
			k.recordDecision(call, ltypes.DecisionSourceGate, ltypes.GateAllow, "")
			return true, nil
		}
		k.recordDecision(call, ltypes.DecisionSourceGate, ltypes.GateDeny, "previously denied")
		k.appendDeniedEnvelope(call, "previously denied", ltypes.SideEffectNone)
		return false, &terminalSignal{reason: ltypes.ExitDenied, errMsg: "previously denied"}
	}

	switch k.cfg.ApprovalMode {
	case ApprovalAuto:
		_ = k.cfg.Approvals.Record(key, approvals.DecisionAllow, approvals.ScopeRun, "")
		k.recordDecision(call, ltypes.DecisionSourceGate, ltypes.GateAllow, "auto-approved")
		return true, nil
	case ApprovalFail:
		k.recordDecision(call, ltypes.DecisionSourceGate, ltypes.GateDeny, decision.Reason)
		k.appendDeniedEnvelope(call, decision.Reason, ltypes.SideEffectNone)
		return false, &terminalSignal{reason: ltypes.ExitDenied, errMsg: decision.Reason}
	default: // ApprovalInterrupt
		k.recordDecision(call, ltypes.DecisionSourceGate, ltypes.GateRequireApproval, decision.Reason)
		// errMsg carries the full approval key, not gate.ApprovalID's
		// truncated display form: a caller that wants to resolve this
		// interrupt (record a decision and resume) needs the exact key
		// approvals.Store.Record/Lookup index on, not a 16-char prefix.
		return false, &terminalSignal{reason: ltypes.ExitApprovalRequired, errMsg: key}
	}
}

func (k *Kernel) executeWithRetry(ctx context.Context, step int, call ltypes.ToolCall, def ltypes.ToolDef) target.Result {
	started := time.Now()
	k.emit(ctx, step, events.KindToolExecTarget, map[string]any{"describe": k.cfg.Target.Describe()})
	k.emit(ctx, step, events.KindToolExecStart, map[string]any{"tool_call_id": call.ID, "tool_name": call.Name})
	result := k.execute(ctx, call)
	k.emit(ctx, step, events.KindToolExecEnd, map[string]any{"tool_call_id": call.ID, "ok": result.OK})

	attempt := 0
	for !result.OK {
		class := classify.Classify(false, result.Content, def.SideEffects)
		limit := retry.LimitFor(class, def.SideEffects)
		if attempt >= int(limit) {
			break
		}
		k.emit(ctx, step, events.KindToolRetry, map[string]any{"tool_call_id": call.ID, "attempt": attempt + 1, "class": string(class)})
		select {
		case <-ctx.Done():
			k.recordToolMetrics(call.Name, result.OK, started)
			return result
		case <-time.After(retry.Backoff(attempt)):
		}
		attempt++
		k.emit(ctx, step, events.KindToolExecStart, map[string]any{"tool_call_id": call.ID, "tool_name": call.Name, "retry": attempt})
		result = k.execute(ctx, call)
		k.emit(ctx, step, events.KindToolExecEnd, map[string]any{"tool_call_id": call.ID, "ok": result.OK, "retry": attempt})
	}
	k.recordToolMetrics(call.Name, result.OK, started)
	return result
}

// recordToolMetrics is a no-op when Config.Metrics is unset, so kernel
// tests that don't wire a Metrics collector are unaffected.
func (k *Kernel) recordToolMetrics(toolName string, ok bool, started time.Time) {
	if k.cfg.Metrics == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "error"
	}
	k.cfg.Metrics.RecordToolExecution(toolName, status, time.Since(started).Seconds())
	if !ok {
		k.cfg.Metrics.RecordError("tool_exec", toolName)
	}
}

func (k *Kernel) execute(ctx context.Context, call ltypes.ToolCall) target.Result {
	t := k.cfg.Target
	switch call.Name {
	case "list_dir":
		var args struct {
			Path string `json:"path"`
		}
		_ = json.Unmarshal(call.Arguments, &args)
		return t.ListDir(ctx, target.ListRequest{Workdir: k.cfg.Workdir, Path: args.Path})
	case "read_file":
		var args struct {
			Path string `json:"path"`
		}
		_ = json.Unmarshal(call.Arguments, &args)
		return t.ReadFile(ctx, target.ReadRequest{Workdir: k.cfg.Workdir, Path: args.Path, MaxReadBytes: k.cfg.MaxReadBytes})
	case "shell":
		var args struct {
			Cmd  string   `json:"cmd"`
			Args []string `json:"args"`
		}
		_ = json.Unmarshal(call.Arguments, &args)
		return t.ExecShell(ctx, target.ShellRequest{Workdir: k.cfg.Workdir, Cmd: args.Cmd, Args: args.Args, MaxToolOutputBytes: k.cfg.MaxToolOutputBytes})
	case "write_file":
		var args struct {
			Path    string `json:"path"`
			Content string `json:"content"`
		}
		_ = json.Unmarshal(call.Arguments, &args)
		return t.WriteFile(ctx, target.WriteRequest{Workdir: k.cfg.Workdir, Path: args.Path, Content: args.Content})
	case "apply_patch":
		var args struct {
			Diff string `json:"diff"`
		}
		_ = json.Unmarshal(call.Arguments, &args)
		return t.ApplyPatch(ctx, target.PatchRequest{Workdir: k.cfg.Workdir, Diff: args.Diff})
	default:
		if tools.IsMCPTool(call.Name) && k.cfg.MCP != nil {
			return k.cfg.MCP.Execute(ctx, call)
		}
		return target.Failed(t.Kind(), "unknown tool: "+call.Name, nil)
	}
}

func (k *Kernel) recordDecision(call ltypes.ToolCall, source ltypes.ToolDecisionSource, decision ltypes.GateDecisionKind, reason string) {
	k.toolDecisions = append(k.toolDecisions, ltypes.ToolDecisionRecord{
		ToolCallID: call.ID,
		ToolName:   call.Name,
		Source:     source,
		Decision:   decision,
		Reason:     reason,
	})
}

func (k *Kernel) appendResultEnvelope(call ltypes.ToolCall, def ltypes.ToolDef, result target.Result) {
	env := ltypes.NewToolResultEnvelope(call.Name, call.ID, result.OK, result.Content, result.Truncated, ltypes.EnvelopeMeta{
		SideEffects:     def.SideEffects,
		Source:          "tool_exec",
		ExecutionTarget: string(result.ExecutionTarget),
		Bytes:           result.Bytes,
		ExitCode:        result.ExitCode,
		StdoutTruncated: result.StdoutTruncated,
		StderrTruncated: result.StderrTruncated,
	})
	if result.Sandbox != nil {
		env.Meta.Sandbox = result.Sandbox.Image
	}
	k.envelopes[call.ID] = env
	k.messages = append(k.messages, ltypes.Message{Role: ltypes.RoleTool, Content: env.Content, ToolCallID: call.ID, ToolName: call.Name})

	spans := taint.ComputeSpans(call, def.SideEffects, env.Content, k.cfg.Policy, k.cfg.TaintDigestBytes)
	taint.AddToolSpans(k.taintState, call.ID, ltypes.MessageID(len(k.messages)-1), spans)
}

func (k *Kernel) appendFailedEnvelope(call ltypes.ToolCall, def ltypes.ToolDef, reason string) {
	env := ltypes.NewToolResultEnvelope(call.Name, call.ID, false, reason, false, ltypes.EnvelopeMeta{
		SideEffects:     def.SideEffects,
		Source:          "schema_validation",
		ExecutionTarget: string(k.cfg.Target.Kind()),
	})
	k.envelopes[call.ID] = env
	k.messages = append(k.messages, ltypes.Message{Role: ltypes.RoleTool, Content: env.Content, ToolCallID: call.ID, ToolName: call.Name})
}

func (k *Kernel) appendDeniedEnvelope(call ltypes.ToolCall, reason string, sideEffects ltypes.SideEffects) {
	env := ltypes.NewToolResultEnvelope(call.Name, call.ID, false, reason, false, ltypes.EnvelopeMeta{
		SideEffects:     sideEffects,
		Source:          "gate",
		ExecutionTarget: string(k.cfg.Target.Kind()),
	})
	k.envelopes[call.ID] = env
	k.messages = append(k.messages, ltypes.Message{Role: ltypes.RoleTool, Content: env.Content, ToolCallID: call.ID, ToolName: call.Name})
}

// completedToolCalls rebuilds the run's ToolCall list from the
// envelope map for RunOutcome.ToolCalls, sorted by id for
// reproducibility. Arguments are not reconstructed here: the envelope
// records the result, not the request, and RunOutcome.ToolCalls only
// needs to name which calls the run made for replay's digest-coverage
// check.
func (k *Kernel) completedToolCalls() []ltypes.ToolCall {
	calls := make([]ltypes.ToolCall, 0, len(k.envelopes))
	for id, env := range k.envelopes {
		calls = append(calls, ltypes.ToolCall{ID: id, Name: env.ToolName})
	}
	sort.Slice(calls, func(i, j int) bool { return calls[i].ID < calls[j].ID })
	return calls
}

// argShape reduces a tool call's arguments to its top-level field-name
// shape, ignoring values, so two calls with different nonsense values
// but the same malformed structure count toward the same consecutive-
// failure streak.
func argShape(args json.RawMessage) string {
	if len(args) == 0 {
		return ""
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(args, &m); err != nil {
		return "<non-object>"
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return fmt.Sprintf("%v", keys)
}
