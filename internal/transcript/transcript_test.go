package transcript

import (
	"strings"
	"testing"

	"github.com/CalvinSturm/LocalAgent/internal/ltypes"
)

func TestEstimateTokensIsConservativeAndNeverZeroForNonEmpty(t *testing.T) {
	if got := EstimateTokens(""); got != 0 {
		t.Fatalf("expected 0 tokens for empty text, got %d", got)
	}
	if got := EstimateTokens("a"); got != 1 {
		t.Fatalf("expected at least 1 token for non-empty text, got %d", got)
	}
	long := strings.Repeat("x", 400)
	if got := EstimateTokens(long); got != 100 {
		t.Fatalf("expected ~100 tokens for 400 chars, got %d", got)
	}
}

func TestWindowForModelMatchesExactAndLongestPrefix(t *testing.T) {
	if got := WindowForModel("gpt-4o"); got != 128000 {
		t.Fatalf("expected exact match, got %d", got)
	}
	if got := WindowForModel("gpt-4o-mini-2024"); got != 128000 {
		t.Fatalf("expected prefix match against gpt-4o-mini, got %d", got)
	}
	if got := WindowForModel("some-unknown-model"); got != DefaultContextWindow {
		t.Fatalf("expected default window for an unknown model, got %d", got)
	}
}

func TestMeasureUsageStatusThresholds(t *testing.T) {
	messages := []ltypes.Message{{Role: ltypes.RoleUser, Content: strings.Repeat("x", 4000)}}
	usage := MeasureUsage("claude-3-5-sonnet", messages)
	if usage.Status() != StatusOK {
		t.Fatalf("expected ok status for a light transcript, got %s", usage.Status())
	}

	heavy := []ltypes.Message{{Role: ltypes.RoleUser, Content: strings.Repeat("x", 80000)}}
	usage = MeasureUsage("gpt-3.5-turbo", heavy)
	if usage.Status() == StatusOK {
		t.Fatalf("expected a degraded status once most of a 16385-token window is consumed, got %s", usage.Status())
	}
}

func TestCompactOldestNeverDropsSystemOrRecentMessages(t *testing.T) {
	messages := []ltypes.Message{
		{Role: ltypes.RoleSystem, Content: "you are an agent"},
	}
	for i := 0; i < 20; i++ {
		messages = append(messages, ltypes.Message{Role: ltypes.RoleUser, Content: strings.Repeat("x", 400)})
	}
	messages = append(messages,
		ltypes.Message{Role: ltypes.RoleAssistant, Content: "second to last"},
		ltypes.Message{Role: ltypes.RoleUser, Content: "most recent"},
	)

	c := NewCompactor(StrategyOldest, 500)
	out, result := c.Compact(messages)

	if out[0].Role != ltypes.RoleSystem {
		t.Fatalf("expected the system message to survive, got %v", out[0])
	}
	if out[len(out)-1].Content != "most recent" {
		t.Fatalf("expected the most recent message to survive, got %v", out[len(out)-1])
	}
	if result.RemovedCount == 0 {
		t.Fatal("expected at least one message to be dropped from an oversized transcript")
	}
	if result.NewCount != len(out) {
		t.Fatalf("result.NewCount %d does not match returned length %d", result.NewCount, len(out))
	}
}

func TestCompactUnderBudgetIsANoOp(t *testing.T) {
	messages := []ltypes.Message{{Role: ltypes.RoleUser, Content: "hi"}}
	c := NewCompactor(StrategyOldest, 1_000_000)
	out, result := c.Compact(messages)
	if len(out) != 1 || result.RemovedCount != 0 {
		t.Fatalf("expected a no-op under budget, got %+v", result)
	}
}

func TestCompactMiddleKeepsHeadAndTail(t *testing.T) {
	messages := []ltypes.Message{{Role: ltypes.RoleSystem, Content: "sys"}}
	for i := 0; i < 10; i++ {
		messages = append(messages, ltypes.Message{Role: ltypes.RoleUser, Content: strings.Repeat("y", 400)})
	}
	messages = append(messages,
		ltypes.Message{Role: ltypes.RoleUser, Content: "second to last"},
		ltypes.Message{Role: ltypes.RoleUser, Content: "last"},
	)

	c := NewCompactor(StrategyMiddle, 300)
	out, result := c.Compact(messages)
	if out[0].Content != "sys" {
		t.Fatalf("expected head to survive, got %v", out[0])
	}
	if out[len(out)-1].Content != "last" {
		t.Fatalf("expected tail to survive, got %v", out[len(out)-1])
	}
	if result.RemovedCount == 0 {
		t.Fatal("expected the middle to be trimmed")
	}
}

func TestCompactStrategyNoneNeverTruncates(t *testing.T) {
	messages := []ltypes.Message{{Role: ltypes.RoleUser, Content: strings.Repeat("x", 40000)}}
	c := NewCompactor(StrategyNone, 10)
	out, result := c.Compact(messages)
	if len(out) != 1 || result.RemovedCount != 0 {
		t.Fatalf("expected strategy none to leave the transcript untouched, got %+v", result)
	}
}
