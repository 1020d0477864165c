// Package transcript manages the turn loop's growing message history
// against a model's context window: cheap token estimation, a window
// tracker, and a truncation strategy that keeps the transcript inside
// budget without ever dropping a pinned or system message. Grounded on
// internal/context/window.go and internal/context/truncation.go,
// adapted from a standalone Message type onto internal/ltypes.Message
// and wired into internal/kernel's per-step model request.
package transcript

import (
	"strings"
	"unicode/utf8"

	"github.com/CalvinSturm/LocalAgent/internal/ltypes"
)

const (
	// DefaultContextWindow is used when a model's window size isn't
	// known from ModelContextWindows.
	DefaultContextWindow = 128000

	// MinContextWindow is the floor below which a run should stop
	// rather than keep requesting completions it can't receive.
	MinContextWindow = 16000

	// WarnBelowTokens flags a window as running low, before it is
	// critically low.
	WarnBelowTokens = 32000

	// tokensPerChar is a conservative characters-per-token estimate
	// used when no provider-reported token count is available.
	tokensPerChar = 0.25
)

// ModelContextWindows maps a model ID (or prefix) to its context
// window size in tokens.
var ModelContextWindows = map[string]int{
	"claude-3-opus":     200000,
	"claude-3-sonnet":    200000,
	"claude-3-haiku":     200000,
	"claude-3-5-sonnet":  200000,
	"claude-3-5-haiku":   200000,
	"claude-opus-4":      200000,
	"claude-sonnet-4":    200000,

	"gpt-4":             8192,
	"gpt-4-32k":         32768,
	"gpt-4-turbo":       128000,
	"gpt-4o":            128000,
	"gpt-4o-mini":       128000,
	"gpt-3.5-turbo":     16385,
	"gpt-3.5-turbo-16k": 16385,
	"o1":                200000,
	"o1-mini":           128000,
	"o3-mini":           200000,

	"qwen3":   32768,
	"llama3":  8192,
	"llama-3": 8192,
}

// EstimateTokens returns a conservative, provider-agnostic token
// estimate for text, used when kernel.GenerateResponse carries no
// token usage for a step.
func EstimateTokens(text string) int {
	chars := utf8.RuneCountInString(text)
	tokens := int(float64(chars) * tokensPerChar)
	if tokens == 0 && chars > 0 {
		return 1
	}
	return tokens
}

// WindowForModel returns the known or best-prefix-matched context
// window size for modelID, falling back to DefaultContextWindow.
func WindowForModel(modelID string) int {
	if tokens, ok := ModelContextWindows[modelID]; ok {
		return tokens
	}
	bestPrefix, bestTokens := "", 0
	for prefix, tokens := range ModelContextWindows {
		if strings.HasPrefix(modelID, prefix) && len(prefix) > len(bestPrefix) {
			bestPrefix, bestTokens = prefix, tokens
		}
	}
	if bestPrefix != "" {
		return bestTokens
	}
	return DefaultContextWindow
}

// UsageStatus classifies how close a transcript is to its window.
type UsageStatus string

const (
	StatusOK       UsageStatus = "ok"
	StatusWarning  UsageStatus = "warning"
	StatusCritical UsageStatus = "critical"
)

// Usage reports a transcript's estimated token load against a model's
// window.
type Usage struct {
	TotalTokens     int
	UsedTokens      int
	RemainingTokens int
	UsedPercent     float64
}

// Status classifies Usage for logging and operator-facing reporting.
func (u Usage) Status() UsageStatus {
	if u.RemainingTokens < MinContextWindow {
		return StatusCritical
	}
	if u.RemainingTokens < WarnBelowTokens {
		return StatusWarning
	}
	return StatusOK
}

// MeasureUsage estimates the token load of messages against modelID's
// context window.
func MeasureUsage(modelID string, messages []ltypes.Message) Usage {
	total := WindowForModel(modelID)
	used := 0
	for _, m := range messages {
		used += EstimateTokens(m.Content) + 4 // per-message role/formatting overhead
	}
	remaining := total - used
	if remaining < 0 {
		remaining = 0
	}
	var pct float64
	if total > 0 {
		pct = float64(used) / float64(total) * 100
	}
	return Usage{TotalTokens: total, UsedTokens: used, RemainingTokens: remaining, UsedPercent: pct}
}
