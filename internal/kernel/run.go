package kernel

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/CalvinSturm/LocalAgent/internal/canonjson"
	"github.com/CalvinSturm/LocalAgent/internal/events"
	"github.com/CalvinSturm/LocalAgent/internal/ltypes"
	"github.com/CalvinSturm/LocalAgent/internal/observability"
	"github.com/CalvinSturm/LocalAgent/internal/opqueue"
	"github.com/CalvinSturm/LocalAgent/internal/planner"
	"github.com/CalvinSturm/LocalAgent/internal/retry"
	"github.com/CalvinSturm/LocalAgent/internal/runrecord"
	"github.com/CalvinSturm/LocalAgent/internal/taint"
	"github.com/CalvinSturm/LocalAgent/internal/transcript"
)

// Kernel drives a single run: it is the sole mutator of the run's
// transcript, taint state, and tool-decision log. Built fresh per run
// by Run.
type Kernel struct {
	cfg         Config
	log         *observability.Logger
	enforcer    *planner.Enforcer
	policyHash  string
	schemaHashes map[string]string

	messages      []ltypes.Message
	taintState    *ltypes.TaintState
	toolDecisions []ltypes.ToolDecisionRecord
	envelopes     map[string]ltypes.ToolResultEnvelope

	totalToolCalls         int
	consecutiveEmptyExtr   int
	schemaFailureStreak    map[string]int
	pendingHaltAttempted   bool
}

// Run executes the turn loop to completion and returns the finalized
// RunOutcome. It never returns an error for a well-formed terminal
// outcome — errors are reserved for setup failures (policy hashing).
func Run(ctx context.Context, cfg Config, userPrompt string, sessionMessages, instructionMessages []ltypes.Message) (ltypes.RunOutcome, error) {
	ctx = observability.AddSessionID(ctx, cfg.RunID)
	log := cfg.logger().WithContext(ctx)

	policyHash, err := cfg.Policy.Hash()
	if err != nil {
		return ltypes.RunOutcome{}, fmt.Errorf("kernel: hash policy: %w", err)
	}

	k := &Kernel{
		cfg:                 cfg,
		log:                 log,
		enforcer:             newEnforcer(cfg.Plan),
		policyHash:           policyHash,
		schemaHashes:         cfg.toolSchemaHashes(),
		taintState:           ltypes.NewTaintState(),
		envelopes:            make(map[string]ltypes.ToolResultEnvelope),
		schemaFailureStreak:  make(map[string]int),
	}

	k.messages = append(k.messages, instructionMessages...)
	k.messages = append(k.messages, sessionMessages...)
	k.messages = append(k.messages, ltypes.Message{Role: ltypes.RoleUser, Content: userPrompt})

	startedAt := time.Now()
	var deadline time.Time
	if cfg.MaxWallTime > 0 {
		deadline = startedAt.Add(cfg.MaxWallTime)
	}

	log.Info(ctx, "run start", "model", cfg.Model, "workdir", cfg.Workdir, "max_steps", cfg.MaxSteps)
	k.emit(ctx, 0, events.KindRunStart, nil)

	outcome := ltypes.RunOutcome{RunID: cfg.RunID, StartedAt: startedAt}

	maxSteps := cfg.MaxSteps
	if maxSteps <= 0 {
		maxSteps = 1
	}

	for step := 0; step < maxSteps; step++ {
		if !deadline.IsZero() && time.Now().After(deadline) {
			return k.finalize(ctx, &outcome, step, ltypes.ExitDeadline, "", ""), nil
		}

		k.emit(ctx, step, events.KindStepStarted, nil)
		k.drainOperatorQueue(ctx, step)

		if d, ok := k.cfg.OpQueue.DeliverAt(opqueue.BoundaryTurnIdle); ok {
			k.messages = append(k.messages, ltypes.Message{Role: ltypes.RoleUser, Content: d.Message.Content})
			k.emit(ctx, step, events.KindQueueDelivered, map[string]any{"queue_id": d.Message.QueueID, "boundary": string(d.Boundary)})
		}

		if k.pendingHaltAttempted && k.enforcer.Enabled() && k.enforcer.MustNotHalt() {
			k.emit(ctx, step, events.KindStepBlocked, map[string]any{"reason": "halt while plan steps pending"})
			return k.finalize(ctx, &outcome, step, ltypes.ExitPlannerError, "", "halt while plan steps pending"), nil
		}

		resp, perr := k.requestModel(ctx, step)
		if perr != nil {
			return k.finalize(ctx, &outcome, step, ltypes.ExitProviderError, "", perr.Error()), nil
		}
		k.messages = append(k.messages, resp.Assistant)
		if k.taintState.Overall == ltypes.TaintTainted {
			taint.MarkAssistantContextTainted(k.taintState, ltypes.MessageID(len(k.messages)-1))
		}

		allowed := k.cfg.Registry.AllNames()
		calls := ExtractToolCalls(resp, step, allowed)

		if len(calls) == 0 {
			if k.cfg.ToolOnlyPhase {
				k.consecutiveEmptyExtr++
				if k.consecutiveEmptyExtr >= 2 {
					return k.finalize(ctx, &outcome, step, ltypes.ExitPlannerError, "", "tool-only phase"), nil
				}
				k.emit(ctx, step, events.KindSchemaRepairReq, map[string]any{"reason": "tool-only phase expected a tool call"})
				k.messages = append(k.messages, ltypes.Message{
					Role:    ltypes.RoleDeveloper,
					Content: "This phase requires a tool call. Re-emit exactly one tool call.",
				})
				continue
			}
			k.consecutiveEmptyExtr = 0

			if status, ok := extractStepStatus(resp.Assistant.Content); ok {
				if err := k.enforcer.ApplyStatus(status); err != nil {
					return k.finalize(ctx, &outcome, step, ltypes.ExitPlannerError, "", err.Error()), nil
				}
				if status.UserOutput != "" {
					if !k.enforcer.MustNotHalt() {
						return k.finalize(ctx, &outcome, step, ltypes.ExitOk, status.UserOutput, ""), nil
					}
				}
			}

			if !k.enforcer.Enabled() || !k.enforcer.MustNotHalt() {
				return k.finalize(ctx, &outcome, step, ltypes.ExitOk, SanitizeOutput(resp.Assistant.Content), ""), nil
			}
			k.pendingHaltAttempted = true
			continue
		}

		k.consecutiveEmptyExtr = 0
		k.pendingHaltAttempted = false

		cancelled, terminal := k.runToolCalls(ctx, step, calls)
		if terminal != nil {
			return k.finalize(ctx, &outcome, step, terminal.reason, terminal.output, terminal.errMsg), nil
		}
		_ = cancelled
	}

	return k.finalize(ctx, &outcome, maxSteps, ltypes.ExitMaxSteps, "", ""), nil
}

// terminalSignal short-circuits the step loop from inside the per-call
// tool execution helper.
type terminalSignal struct {
	reason ltypes.ExitReason
	output string
	errMsg string
}

func (k *Kernel) drainOperatorQueue(ctx context.Context, step int) {
	// Submissions arrive out-of-band via Config.OpQueue.Submit, called
	// concurrently by whatever surface accepts operator input (CLI
	// stdin, an RPC handler). The queue's own mutex makes that safe;
	// there is nothing further to pull here, so this only marks the
	// boundary for observability.
	k.emit(ctx, step, events.KindQueueSubmitted, nil)
}

func (k *Kernel) requestModel(ctx context.Context, step int) (GenerateResponse, error) {
	k.compactTranscriptIfNeeded(ctx, step)

	k.emit(ctx, step, events.KindModelRequestStart, nil)
	req := GenerateRequest{
		Model:    k.cfg.Model,
		Messages: k.messages,
		Tools:    k.cfg.Registry.Presented(k.cfg.Capabilities),
	}

	maxRetries := k.cfg.MaxProviderRetries
	if maxRetries <= 0 {
		maxRetries = 2
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		resp, err := k.cfg.Provider.Generate(ctx, req)
		if err == nil {
			k.emit(ctx, step, events.KindModelResponseEnd, nil)
			return resp, nil
		}
		lastErr = err
		if attempt == maxRetries {
			break
		}
		k.emit(ctx, step, events.KindProviderRetry, map[string]any{"attempt": attempt + 1, "error": err.Error()})
		select {
		case <-ctx.Done():
			return GenerateResponse{}, ctx.Err()
		case <-time.After(retry.Backoff(attempt)):
		}
	}
	k.emit(ctx, step, events.KindProviderError, map[string]any{"error": lastErr.Error()})
	k.log.Warn(ctx, "provider exhausted retries", "step", step, "attempts", maxRetries+1, "error", lastErr.Error())
	return GenerateResponse{}, lastErr
}

// compactTranscriptIfNeeded trims k.messages in place once the estimated
// token load leaves less room than MinContextWindow, so the next model
// request doesn't get rejected for exceeding the model's context window.
func (k *Kernel) compactTranscriptIfNeeded(ctx context.Context, step int) {
	maxTokens := k.cfg.MaxContextTokens
	if maxTokens <= 0 {
		maxTokens = transcript.WindowForModel(k.cfg.Model)
	}

	usage := transcript.MeasureUsage(k.cfg.Model, k.messages)
	if maxTokens > 0 && maxTokens != usage.TotalTokens {
		usage.TotalTokens = maxTokens
		usage.RemainingTokens = maxTokens - usage.UsedTokens
		if usage.RemainingTokens < 0 {
			usage.RemainingTokens = 0
		}
		if maxTokens > 0 {
			usage.UsedPercent = float64(usage.UsedTokens) / float64(maxTokens) * 100
		}
	}
	if usage.Status() == transcript.StatusOK {
		return
	}

	strategy := k.cfg.CompactionStrategy
	if strategy == "" {
		strategy = transcript.StrategyOldest
	}
	if strategy == transcript.StrategyNone {
		return
	}

	compactor := transcript.NewCompactor(strategy, maxTokens)
	compacted, result := compactor.Compact(k.messages)
	if result.RemovedCount == 0 {
		return
	}

	k.messages = compacted
	k.emit(ctx, step, events.KindTranscriptCompacted, map[string]any{
		"strategy":       string(result.Strategy),
		"removed_count":  result.RemovedCount,
		"tokens_freed":   result.TokensFreed,
		"original_count": result.OriginalCount,
		"new_count":      result.NewCount,
	})
	k.log.Info(ctx, "transcript compacted", "step", step, "removed", result.RemovedCount, "tokens_freed", result.TokensFreed)
}

func (k *Kernel) gateContext() ltypes.GateContext {
	return ltypes.GateContext{
		Workdir:          k.cfg.Workdir,
		CapabilityFlags:  k.cfg.Capabilities,
		ApprovalMode:     string(k.cfg.ApprovalMode),
		ProviderIdentity: k.cfg.ProviderIdentity,
		Model:            k.cfg.Model,
		ExecTarget:       string(k.cfg.Target.Kind()),
		PolicyHash:       k.policyHash,
		ToolSchemaHashes: k.schemaHashes,
		PlannerHash:      k.planHash(),
		TaintOverall:     k.taintState.Overall,
		TaintSources:     k.taintState.LastSources,
	}
}

func (k *Kernel) planHash() string {
	if k.cfg.Plan == nil {
		return ""
	}
	h, err := canonjson.SHA256Hex(k.cfg.Plan)
	if err != nil {
		return ""
	}
	return h
}

func (k *Kernel) emit(ctx context.Context, step int, kind events.Kind, data map[string]any) {
	if k.cfg.Sink == nil {
		return
	}
	k.cfg.Sink.Emit(ctx, events.Event{
		RunID: k.cfg.RunID,
		Step:  step,
		Kind:  kind,
		Data:  data,
		TS:    time.Now(),
	})
}

func (k *Kernel) finalize(ctx context.Context, outcome *ltypes.RunOutcome, step int, reason ltypes.ExitReason, finalOutput, errMsg string) ltypes.RunOutcome {
	outcome.FinishedAt = time.Now()
	outcome.ExitReason = reason
	outcome.FinalOutput = finalOutput
	outcome.Error = errMsg
	outcome.Messages = k.messages
	outcome.ToolCalls = k.completedToolCalls()
	outcome.ToolDecisions = k.toolDecisions
	outcome.Taint = k.taintState

	k.emit(ctx, step, events.KindRunEnd, map[string]any{"exit_reason": string(reason)})
	k.log.Info(ctx, "run end", "exit_reason", string(reason), "steps", step, "error", errMsg)

	if k.cfg.RunRecord != nil {
		digests, _ := runrecord.BuildEnvelopeDigests(k.envelopes)
		_ = k.cfg.RunRecord.Save(k.cfg.RunID, runrecord.Record{
			Outcome:         *outcome,
			EnvelopeDigests: digests,
		})
	}
	return *outcome
}

// extractStepStatus tries to parse a WorkerStepStatus out of assistant
// content, the same best-effort way ExtractToolCalls parses an inline
// tool call: the whole trimmed (optionally fenced) content must be the
// status object.
func extractStepStatus(content string) (ltypes.WorkerStepStatus, bool) {
	trimmed := stripFence(content)
	var status ltypes.WorkerStepStatus
	dec := json.NewDecoder(strings.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&status); err != nil {
		return ltypes.WorkerStepStatus{}, false
	}
	if status.SchemaVersion != ltypes.StepResultSchemaVersion {
		return ltypes.WorkerStepStatus{}, false
	}
	return status, true
}
