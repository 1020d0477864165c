package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/CalvinSturm/LocalAgent/internal/kernel"
	"github.com/CalvinSturm/LocalAgent/internal/taint"
	"github.com/CalvinSturm/LocalAgent/internal/transcript"
)

// EnvStateDir overrides the default state directory, mirroring the
// teacher's NEXUS_STATE_DIR convention.
const EnvStateDir = "LOCALAGENT_STATE_DIR"

// DefaultConfigName is the config file name searched for in the
// current directory and in StateDir.
const DefaultConfigName = "localagent.yaml"

// Config is the on-disk shape of a run's collaborators: provider
// credentials, workdir, policy path, and loop tunables. Loaded with
// gopkg.in/yaml.v3, the same library the teacher's own config loader
// and gate.LoadPolicy use.
type Config struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`

	Workdir  string `yaml:"workdir"`
	StateDir string `yaml:"state_dir"`

	PolicyPath string `yaml:"policy_path"`

	MaxSteps           int    `yaml:"max_steps"`
	MaxWallTimeSeconds int    `yaml:"max_wall_time_seconds"`
	MaxTotalToolCalls  int    `yaml:"max_total_tool_calls"`
	MaxProviderRetries int    `yaml:"max_provider_retries"`
	ApprovalMode       string `yaml:"approval_mode"`
	TaintMode          string `yaml:"taint_mode"`
	MaxReadBytes       int    `yaml:"max_read_bytes"`
	MaxToolOutputBytes int    `yaml:"max_tool_output_bytes"`

	MaxContextTokens    int    `yaml:"max_context_tokens"`
	CompactionStrategy  string `yaml:"compaction_strategy"`

	Capabilities map[string]bool `yaml:"capabilities"`

	Sandbox *SandboxConfig `yaml:"sandbox,omitempty"`
	MCP     *MCPConfig     `yaml:"mcp,omitempty"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// SandboxConfig selects the Firecracker-backed exec target instead of
// the host target.
type SandboxConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Image      string `yaml:"image"`
	Network    string `yaml:"network"`
	KernelPath string `yaml:"kernel_path"`
	RootfsPath string `yaml:"rootfs_path"`
	SocketPath string `yaml:"socket_path"`
}

// MCPConfig enables MCP tool discovery, reusing internal/mcp's own
// yaml-tagged Config/ServerConfig shape.
type MCPConfig struct {
	Enabled bool             `yaml:"enabled"`
	Servers []MCPServerEntry `yaml:"servers"`
}

// MCPServerEntry mirrors internal/mcp.ServerConfig's fields, kept as a
// distinct type so this file doesn't couple the on-disk schema to
// internal/mcp's Go type directly.
type MCPServerEntry struct {
	ID        string            `yaml:"id"`
	Name      string            `yaml:"name"`
	Transport string            `yaml:"transport"`
	Command   string            `yaml:"command"`
	Args      []string          `yaml:"args"`
	Env       map[string]string `yaml:"env"`
	WorkDir   string            `yaml:"workdir"`
	URL       string            `yaml:"url"`
	Headers   map[string]string `yaml:"headers"`
	Timeout   time.Duration     `yaml:"timeout"`
	AutoStart bool              `yaml:"auto_start"`
}

// DefaultStateDir returns LOCALAGENT_STATE_DIR if set, else
// ~/.localagent.
func DefaultStateDir() string {
	if v := strings.TrimSpace(os.Getenv(EnvStateDir)); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		home = "."
	}
	return filepath.Join(home, ".localagent")
}

// DefaultConfigPath returns state_dir/localagent.yaml.
func DefaultConfigPath() string {
	return filepath.Join(DefaultStateDir(), DefaultConfigName)
}

// LoadConfig reads path, applying the same defaults a fresh run needs
// when the file omits them. A missing file is not an error: doctor and
// run should both work against bare defaults plus flags.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Provider == "" {
		c.Provider = "anthropic"
	}
	if c.Workdir == "" {
		c.Workdir, _ = os.Getwd()
	}
	if c.StateDir == "" {
		c.StateDir = DefaultStateDir()
	}
	if c.PolicyPath == "" {
		c.PolicyPath = filepath.Join(c.StateDir, "policy.yaml")
	}
	if c.MaxSteps <= 0 {
		c.MaxSteps = 40
	}
	if c.MaxWallTimeSeconds <= 0 {
		c.MaxWallTimeSeconds = 900
	}
	if c.MaxTotalToolCalls <= 0 {
		c.MaxTotalToolCalls = 200
	}
	if c.MaxProviderRetries <= 0 {
		c.MaxProviderRetries = 3
	}
	if c.ApprovalMode == "" {
		c.ApprovalMode = string(kernel.ApprovalInterrupt)
	}
	if c.TaintMode == "" {
		c.TaintMode = string(taint.ModePropagateAndEnforce)
	}
	if c.MaxReadBytes <= 0 {
		c.MaxReadBytes = 1 << 20
	}
	if c.MaxToolOutputBytes <= 0 {
		c.MaxToolOutputBytes = 1 << 18
	}
	if c.CompactionStrategy == "" {
		c.CompactionStrategy = string(transcript.StrategyOldest)
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "json"
	}
}

// WallTime returns the configured wall-clock budget as a Duration.
func (c *Config) WallTime() time.Duration {
	return time.Duration(c.MaxWallTimeSeconds) * time.Second
}
