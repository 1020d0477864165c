// Package gate implements the trust gate: a pure decision function
// over (policy, context, tool call) -> GateDecision, plus the stable
// approval-key hash the Approvals Store keys on. Grounded on
// internal/agent/approval.go's ApprovalChecker.Check and
// internal/tools/policy's glob matching, generalized to the declarative
// allow/deny/require_approval rule list names.
package gate

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/CalvinSturm/LocalAgent/internal/canonjson"
)

// Default is what the gate applies when no rule matches.
type Default string

const (
	DefaultAllow Default = "allow"
	DefaultDeny  Default = "deny"
)

// RuleDecision is the decision a matched rule produces.
type RuleDecision string

const (
	RuleAllow           RuleDecision = "allow"
	RuleDeny            RuleDecision = "deny"
	RuleRequireApproval RuleDecision = "require_approval"
)

// WhenOp is a predicate operator evaluated against a tool call argument.
type WhenOp string

const (
	OpEquals     WhenOp = "equals"
	OpContains   WhenOp = "contains"
	OpRegex      WhenOp = "regex"
	OpStartswith WhenOp = "startswith"
	OpGlob       WhenOp = "glob"
)

// When is a predicate on one argument field of a tool call.
type When struct {
	Field string `yaml:"field" json:"field"`
	Op    WhenOp `yaml:"op" json:"op"`
	Value string `yaml:"value" json:"value"`
}

// Rule is one entry of the policy's ordered rule list. The first rule
// whose Tool glob matches the call's name, and whose When predicates
// (if any) all pass, wins.
type Rule struct {
	Tool     string       `yaml:"tool" json:"tool"`
	When     []When       `yaml:"when,omitempty" json:"when,omitempty"`
	Decision RuleDecision `yaml:"decision" json:"decision"`
	Reason   string       `yaml:"reason,omitempty" json:"reason,omitempty"`
}

// TaintConfig lists file-path globs that mark a read_file argument as a
// taint source.
type TaintConfig struct {
	FilePathGlobs []string `yaml:"file_path_globs,omitempty" json:"file_path_globs,omitempty"`
}

// Policy is the declarative trust-gate document loaded from YAML.
type Policy struct {
	Version  int         `yaml:"version" json:"version"`
	Default  Default     `yaml:"default" json:"default"`
	Rules    []Rule      `yaml:"rules,omitempty" json:"rules,omitempty"`
	Taint    TaintConfig `yaml:"taint,omitempty" json:"taint,omitempty"`
	Includes []string    `yaml:"includes,omitempty" json:"includes,omitempty"`
}

// DefaultPolicy is the built-in policy used when state_dir/policy.yaml
// is absent.
func DefaultPolicy() *Policy {
	return &Policy{
		Version: 2,
		Default: DefaultAllow,
		Rules: []Rule{
			{Tool: "shell", When: []When{{Field: "cmd", Op: OpEquals, Value: "rm"}}, Decision: RuleDeny, Reason: "destructive rm is denied by default policy"},
		},
	}
}

// LoadPolicy reads and parses a YAML policy document from path. If path
// does not exist, DefaultPolicy is returned.
func LoadPolicy(path string) (*Policy, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultPolicy(), nil
		}
		return nil, fmt.Errorf("gate: read policy: %w", err)
	}
	var p Policy
	if err := yaml.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("gate: parse policy: %w", err)
	}
	if p.Version != 1 && p.Version != 2 {
		return nil, fmt.Errorf("gate: unsupported policy version %d", p.Version)
	}
	if p.Default == "" {
		p.Default = DefaultAllow
	}
	return &p, nil
}

// Hash returns the sha256 of the policy's canonical serialization. It
// is one of the contributing fields to every approval key, so editing
// policy.yaml invalidates prior approvals for affected tool calls.
func (p *Policy) Hash() (string, error) {
	return canonjson.SHA256Hex(p)
}

// ToolSchemaHash hashes a tool's JSON-Schema parameters, keyed into
// GateContext.ToolSchemaHashes so schema changes also invalidate
// approvals.
func ToolSchemaHash(parameters []byte) (string, error) {
	var v any
	if len(parameters) > 0 {
		if err := yamlOrJSONUnmarshal(parameters, &v); err != nil {
			return "", err
		}
	}
	return canonjson.SHA256Hex(v)
}

func yamlOrJSONUnmarshal(b []byte, v any) error {
	// Tool parameters are always JSON Schema; yaml.Unmarshal accepts
	// JSON as a subset so this stays a single code path.
	return yaml.Unmarshal(b, v)
}
