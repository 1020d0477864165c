package transcript

import "github.com/CalvinSturm/LocalAgent/internal/ltypes"

// Strategy selects how Compact reduces a transcript that no longer
// fits its budget.
type Strategy string

const (
	// StrategyOldest drops the oldest non-pinned messages first.
	StrategyOldest Strategy = "oldest"
	// StrategyMiddle keeps a fixed head and tail, trimming the middle.
	StrategyMiddle Strategy = "middle"
	// StrategyNone never truncates; Compact is a no-op.
	StrategyNone Strategy = "none"
)

// Result reports what Compact did.
type Result struct {
	OriginalCount int
	NewCount      int
	RemovedCount  int
	TokensFreed   int
	Strategy      Strategy
}

// Compactor reduces a transcript to fit a token budget without ever
// dropping a pinned message (system/developer-role messages, and the
// configured head/tail window of recent turns).
type Compactor struct {
	Strategy  Strategy
	MaxTokens int
	KeepFirst int // always-kept leading messages (the system prompt)
	KeepLast  int // always-kept trailing messages (recent turns)
}

// NewCompactor returns a Compactor with the original's defaults: keep
// the leading system message and the last two turns untouched.
func NewCompactor(strategy Strategy, maxTokens int) *Compactor {
	return &Compactor{Strategy: strategy, MaxTokens: maxTokens, KeepFirst: 1, KeepLast: 2}
}

func pinned(m ltypes.Message) bool {
	return m.Role == ltypes.RoleSystem || m.Role == ltypes.RoleDeveloper
}

func tokensOf(m ltypes.Message) int {
	return EstimateTokens(m.Content) + 4
}

func sumTokens(messages []ltypes.Message) int {
	total := 0
	for _, m := range messages {
		total += tokensOf(m)
	}
	return total
}

// Compact returns messages truncated to fit c.MaxTokens, plus a
// Result describing what was removed. A transcript already under
// budget is returned unchanged.
func (c *Compactor) Compact(messages []ltypes.Message) ([]ltypes.Message, Result) {
	result := Result{OriginalCount: len(messages), Strategy: c.Strategy}

	if sumTokens(messages) <= c.MaxTokens || c.Strategy == StrategyNone {
		result.NewCount = len(messages)
		return messages, result
	}

	switch c.Strategy {
	case StrategyMiddle:
		return c.compactMiddle(messages, result)
	default:
		return c.compactOldest(messages, result)
	}
}

func (c *Compactor) compactOldest(messages []ltypes.Message, result Result) ([]ltypes.Message, Result) {
	if len(messages) == 0 {
		result.NewCount = 0
		return messages, result
	}

	keep := make([]bool, len(messages))
	dropped := make([]bool, len(messages))
	total := 0
	for i, m := range messages {
		if i < c.KeepFirst || i >= len(messages)-c.KeepLast || pinned(m) {
			keep[i] = true
		}
		total += tokensOf(m)
	}

	// Drop the oldest droppable message first until the transcript fits
	// or nothing further can be dropped.
	for i, m := range messages {
		if total <= c.MaxTokens {
			break
		}
		if keep[i] {
			continue
		}
		dropped[i] = true
		cost := tokensOf(m)
		total -= cost
		result.TokensFreed += cost
		result.RemovedCount++
	}

	final := make([]ltypes.Message, 0, len(messages)-result.RemovedCount)
	for i, m := range messages {
		if dropped[i] {
			continue
		}
		final = append(final, m)
	}

	result.NewCount = len(final)
	return final, result
}

func (c *Compactor) compactMiddle(messages []ltypes.Message, result Result) ([]ltypes.Message, Result) {
	if len(messages) <= c.KeepFirst+c.KeepLast {
		result.NewCount = len(messages)
		return messages, result
	}

	first := messages[:c.KeepFirst]
	last := messages[len(messages)-c.KeepLast:]
	middle := messages[c.KeepFirst : len(messages)-c.KeepLast]

	targetMiddle := c.MaxTokens - sumTokens(first) - sumTokens(last)

	var keptMiddle []ltypes.Message
	middleTokens := 0
	for _, m := range middle {
		cost := tokensOf(m)
		if pinned(m) || middleTokens+cost <= targetMiddle {
			keptMiddle = append(keptMiddle, m)
			middleTokens += cost
			continue
		}
		result.RemovedCount++
		result.TokensFreed += cost
	}

	final := make([]ltypes.Message, 0, len(first)+len(keptMiddle)+len(last))
	final = append(final, first...)
	final = append(final, keptMiddle...)
	final = append(final, last...)

	result.NewCount = len(final)
	return final, result
}
