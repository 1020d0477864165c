package evalharness

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/gobwas/glob"
	"gopkg.in/yaml.v3"

	"github.com/CalvinSturm/LocalAgent/internal/ltypes"
)

// CostModelSchemaVersion tags the cost-model document shape.
const CostModelSchemaVersion = "localagent.cost_model.v1"

// CostModel is a small, hand-maintained table of per-1k-token prices
// keyed by a model-name glob, used to turn a run's token usage into a
// rough dollar estimate.
type CostModel struct {
	SchemaVersion string     `json:"schema_version" yaml:"schema_version"`
	Rules         []CostRule `json:"rules" yaml:"rules"`
}

// CostRule prices one model (or a glob matching a family of models).
type CostRule struct {
	ModelGlob      string  `json:"model_glob" yaml:"model_glob"`
	PromptPer1k    float64 `json:"prompt_per_1k" yaml:"prompt_per_1k"`
	CompletionPer1k float64 `json:"completion_per_1k" yaml:"completion_per_1k"`
}

// LoadCostModel reads a cost model from path, trying JSON first and
// falling back to YAML — the same document can be authored in either
// form.
func LoadCostModel(path string) (CostModel, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return CostModel{}, fmt.Errorf("evalharness: read cost model: %w", err)
	}
	var model CostModel
	if err := json.Unmarshal(b, &model); err == nil {
		return model, nil
	}
	if err := yaml.Unmarshal(b, &model); err != nil {
		return CostModel{}, fmt.Errorf("evalharness: parse cost model: %w", err)
	}
	return model, nil
}

// EstimateCostUSD estimates a run's dollar cost from its token usage
// against the first matching rule in model, or returns ok=false when
// usage is incomplete or no rule matches.
func EstimateCostUSD(modelName string, usage *ltypes.TokenUsage, model CostModel) (float64, bool) {
	if usage == nil {
		return 0, false
	}
	prompt := float64(usage.PromptTokens)
	completion := float64(usage.CompletionTokens)
	for _, rule := range model.Rules {
		g, err := glob.Compile(rule.ModelGlob)
		if err != nil {
			continue
		}
		if g.Match(modelName) {
			cost := (prompt/1000.0)*rule.PromptPer1k + (completion/1000.0)*rule.CompletionPer1k
			return cost, true
		}
	}
	return 0, false
}
