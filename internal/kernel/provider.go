// Package kernel implements the turn loop: the single mutator of
// per-run state that drives request -> extract -> gate -> execute ->
// retry -> record, iterating until a terminal outcome. Ported from the
// Rust original's src/agent.rs (Agent::run's per-step structure) and
// src/agent_queue_runtime.rs (operator-queue boundary delivery),
// generalized from nexus's internal/agent/loop.go AgenticLoop
// (Init->Stream->ExecuteTools->Continue state machine) with the
// session/job/branch/Discord-channel coupling stripped and the gate,
// taint, planner, and retry-policy collaborators substituted in.
package kernel

import (
	"context"

	"github.com/CalvinSturm/LocalAgent/internal/ltypes"
)

// GenerateRequest is what the kernel asks a Provider to complete.
type GenerateRequest struct {
	Model    string
	Messages []ltypes.Message
	Tools    []ltypes.ToolDef
}

// GenerateResponse is a Provider's reply: one assistant message, plus
// any tool calls the provider extracted itself (the structured path;
// the kernel additionally tries text extraction over Assistant.Content
// when this is empty).
type GenerateResponse struct {
	Assistant ltypes.Message
	ToolCalls []ltypes.ToolCall
}

// Provider is the model backend the kernel drives each step.
// Implementations wrap a specific API (OpenAI, Anthropic, a recorded
// fixture for replay) behind this single method.
type Provider interface {
	Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, error)
}
