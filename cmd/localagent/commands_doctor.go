package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/CalvinSturm/LocalAgent/internal/approvals"
	"github.com/CalvinSturm/LocalAgent/internal/gate"
	"github.com/CalvinSturm/LocalAgent/internal/mcp"
	"github.com/CalvinSturm/LocalAgent/internal/tools"
)

// buildDoctorCmd creates the "doctor" command: validate the config,
// policy, and (if configured) MCP server reachability without running
// a turn loop.
func buildDoctorCmd() *cobra.Command {
	var (
		configPath string
		probeMCP   bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Validate configuration, policy, and tool wiring",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd, configPath, probeMCP)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", DefaultConfigPath(), "Path to YAML configuration file")
	cmd.Flags().BoolVar(&probeMCP, "probe", false, "Connect to configured MCP servers and report status")

	return cmd
}

func runDoctor(cmd *cobra.Command, configPath string, probeMCP bool) error {
	out := cmd.OutOrStdout()
	healthy := true

	cfg, err := LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(out, "[FAIL] config: %v\n", err)
		return err
	}
	fmt.Fprintf(out, "[OK]   config loaded from %s\n", configPath)
	fmt.Fprintf(out, "       provider=%s model=%s workdir=%s\n", cfg.Provider, cfg.Model, cfg.Workdir)

	if cfg.APIKey == "" {
		fmt.Fprintln(out, "[WARN] no api_key set; run will fail to build a provider")
	}

	if _, err := os.Stat(cfg.Workdir); err != nil {
		fmt.Fprintf(out, "[FAIL] workdir %s: %v\n", cfg.Workdir, err)
		healthy = false
	} else {
		fmt.Fprintf(out, "[OK]   workdir %s exists\n", cfg.Workdir)
	}

	policy, err := gate.LoadPolicy(cfg.PolicyPath)
	if err != nil {
		fmt.Fprintf(out, "[FAIL] policy %s: %v\n", cfg.PolicyPath, err)
		healthy = false
	} else {
		hash, herr := policy.Hash()
		if herr != nil {
			fmt.Fprintf(out, "[FAIL] policy hash: %v\n", herr)
			healthy = false
		} else {
			fmt.Fprintf(out, "[OK]   policy %s loaded (version %d, %d rule(s), hash %s)\n", cfg.PolicyPath, policy.Version, len(policy.Rules), hash)
		}
	}

	if _, err := approvals.Open(cfg.StateDir + "/approvals.json"); err != nil {
		fmt.Fprintf(out, "[FAIL] approvals store: %v\n", err)
		healthy = false
	} else {
		fmt.Fprintln(out, "[OK]   approvals store readable")
	}

	registry := tools.NewRegistry()
	names := registry.AllNames()
	fmt.Fprintf(out, "[OK]   tool registry has %d built-in tool(s)\n", len(names))

	if cfg.MCP != nil && cfg.MCP.Enabled {
		fmt.Fprintf(out, "[OK]   mcp enabled with %d configured server(s)\n", len(cfg.MCP.Servers))
		if probeMCP {
			mgr := mcp.NewManager(toMCPManagerConfig(cfg.MCP), nil)
			if err := mgr.Start(cmd.Context()); err != nil {
				fmt.Fprintf(out, "[WARN] mcp start: %v\n", err)
			}
			for _, status := range mgr.Status() {
				fmt.Fprintf(out, "       mcp server %s: connected=%v tools=%d\n", status.ID, status.Connected, status.Tools)
			}
		}
	} else {
		fmt.Fprintln(out, "[OK]   mcp disabled")
	}

	if !healthy {
		return fmt.Errorf("doctor: one or more checks failed")
	}
	fmt.Fprintln(out, "all checks passed")
	return nil
}
