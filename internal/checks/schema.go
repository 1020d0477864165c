// Package checks implements the post-run verification pass: a small
// declarative list of checks, each a markdown file with a YAML
// frontmatter block describing pass criteria, loaded from
// state_dir/checks/ and evaluated against a run's final output.
package checks

import (
	"fmt"
	"strings"
)

// FrontmatterSchemaVersion is the only schema_version load_checks accepts.
const FrontmatterSchemaVersion = 1

// Frontmatter is a check file's YAML header.
type Frontmatter struct {
	SchemaVersion int          `yaml:"schema_version"`
	Name          string       `yaml:"name"`
	Description   string       `yaml:"description,omitempty"`
	Required      bool         `yaml:"required"`
	AllowedTools  []string     `yaml:"allowed_tools,omitempty"`
	RequiredFlags []string     `yaml:"required_flags,omitempty"`
	PassCriteria  PassCriteria `yaml:"pass_criteria"`
	Budget        *Budget      `yaml:"budget,omitempty"`
}

// PassCriteriaKind selects how PassCriteria.Value is matched against a
// run's final output.
type PassCriteriaKind string

const (
	PassCriteriaContains    PassCriteriaKind = "output_contains"
	PassCriteriaNotContains PassCriteriaKind = "output_not_contains"
	PassCriteriaEquals      PassCriteriaKind = "output_equals"
)

// PassCriteria says how a check's outcome is decided.
type PassCriteria struct {
	Kind  PassCriteriaKind `yaml:"type"`
	Value string           `yaml:"value"`
}

// Budget caps how much of the turn loop a check is allowed to spend,
// advisory metadata for a future eval-harness integration — the runner
// itself only evaluates final output, it doesn't drive a turn loop.
type Budget struct {
	MaxSteps     *int `yaml:"max_steps,omitempty"`
	MaxToolCalls *int `yaml:"max_tool_calls,omitempty"`
	MaxTimeMs    *int `yaml:"max_time_ms,omitempty"`
}

// ValidateFrontmatter checks the fields validate_frontmatter in the
// original checked: schema version, non-empty name, no blank tool
// names, and budget fields that are either unset or strictly positive.
func ValidateFrontmatter(fm Frontmatter) error {
	if fm.SchemaVersion != FrontmatterSchemaVersion {
		return fmt.Errorf("unsupported schema_version %d (expected %d)", fm.SchemaVersion, FrontmatterSchemaVersion)
	}
	if strings.TrimSpace(fm.Name) == "" {
		return fmt.Errorf("name must not be empty")
	}
	for _, t := range fm.AllowedTools {
		if strings.TrimSpace(t) == "" {
			return fmt.Errorf("allowed_tools contains empty entry")
		}
	}
	switch fm.PassCriteria.Kind {
	case PassCriteriaContains, PassCriteriaNotContains, PassCriteriaEquals:
	default:
		return fmt.Errorf("pass_criteria.type %q is not one of output_contains, output_not_contains, output_equals", fm.PassCriteria.Kind)
	}
	if fm.Budget != nil {
		if fm.Budget.MaxSteps != nil && *fm.Budget.MaxSteps == 0 {
			return fmt.Errorf("budget.max_steps must be > 0 when set")
		}
		if fm.Budget.MaxToolCalls != nil && *fm.Budget.MaxToolCalls == 0 {
			return fmt.Errorf("budget.max_tool_calls must be > 0 when set")
		}
		if fm.Budget.MaxTimeMs != nil && *fm.Budget.MaxTimeMs == 0 {
			return fmt.Errorf("budget.max_time_ms must be > 0 when set")
		}
	}
	return nil
}
