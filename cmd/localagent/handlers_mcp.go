package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/CalvinSturm/LocalAgent/internal/mcp"
)

// loadMCPManager loads the YAML config at configPath and builds the MCP
// manager it describes, without starting it.
func loadMCPManager(configPath string) (*Config, *mcp.Manager, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	if cfg.MCP == nil || !cfg.MCP.Enabled {
		return cfg, nil, fmt.Errorf("mcp is not enabled in %s", configPath)
	}
	mgr := mcp.NewManager(toMCPManagerConfig(cfg.MCP), nil)
	return cfg, mgr, nil
}

// stopMCPManager stops a manager, swallowing the error since callers are
// already on their way out via defer.
func stopMCPManager(mgr *mcp.Manager) {
	_ = mgr.Stop()
}

func runMcpServers(cmd *cobra.Command, configPath string) error {
	_, mgr, err := loadMCPManager(configPath)
	if err != nil {
		return err
	}
	if err := mgr.Start(cmd.Context()); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: mcp start: %v\n", err)
	}
	defer stopMCPManager(mgr)

	out := cmd.OutOrStdout()
	statuses := mgr.Status()
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].ID < statuses[j].ID })
	for _, s := range statuses {
		state := "disconnected"
		if s.Connected {
			state = "connected"
		}
		fmt.Fprintf(out, "%s (%s) - %s\n", s.ID, s.Name, state)
		fmt.Fprintf(out, "  tools=%d resources=%d prompts=%d\n", s.Tools, s.Resources, s.Prompts)
	}
	return nil
}

func runMcpConnect(cmd *cobra.Command, configPath, serverID string) error {
	_, mgr, err := loadMCPManager(configPath)
	if err != nil {
		return err
	}
	if err := mgr.Connect(cmd.Context(), serverID); err != nil {
		return fmt.Errorf("connect %s: %w", serverID, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "connected to %s\n", serverID)
	return mgr.Stop()
}

func runMcpTools(cmd *cobra.Command, configPath, serverID string) error {
	_, mgr, err := loadMCPManager(configPath)
	if err != nil {
		return err
	}
	if serverID != "" {
		if err := mgr.Connect(cmd.Context(), serverID); err != nil {
			return fmt.Errorf("connect %s: %w", serverID, err)
		}
	} else if err := mgr.Start(cmd.Context()); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: mcp start: %v\n", err)
	}
	defer stopMCPManager(mgr)

	out := cmd.OutOrStdout()
	allTools := mgr.AllTools()
	servers := make([]string, 0, len(allTools))
	for id := range allTools {
		servers = append(servers, id)
	}
	sort.Strings(servers)
	for _, id := range servers {
		for _, t := range allTools[id] {
			fmt.Fprintf(out, "- %s.%s: %s\n", id, t.Name, t.Description)
		}
	}
	return nil
}

func runMcpCall(cmd *cobra.Command, configPath, qualifiedName string, rawArgs []string) error {
	serverID, toolName, err := parseMCPQualifiedName(qualifiedName)
	if err != nil {
		return err
	}
	_, mgr, err := loadMCPManager(configPath)
	if err != nil {
		return err
	}
	if err := mgr.Connect(cmd.Context(), serverID); err != nil {
		return fmt.Errorf("connect %s: %w", serverID, err)
	}
	defer stopMCPManager(mgr)

	args, err := parseAnyArgs(rawArgs)
	if err != nil {
		return err
	}

	result, err := mgr.CallTool(cmd.Context(), serverID, toolName, args)
	if err != nil {
		return fmt.Errorf("call %s.%s: %w", serverID, toolName, err)
	}

	out := cmd.OutOrStdout()
	for _, c := range result.Content {
		if c.Text != "" {
			fmt.Fprintln(out, c.Text)
		}
	}
	if result.IsError {
		return fmt.Errorf("tool %s.%s returned an error result", serverID, toolName)
	}
	return nil
}

// parseMCPQualifiedName splits "server.tool" on its first dot.
func parseMCPQualifiedName(value string) (string, string, error) {
	idx := strings.Index(value, ".")
	if idx <= 0 || idx == len(value)-1 {
		return "", "", fmt.Errorf("expected <server>.<tool>, got %q", value)
	}
	return value[:idx], value[idx+1:], nil
}

// parseKeyValue splits "key=value" on its first '='.
func parseKeyValue(item string) (string, string, error) {
	idx := strings.Index(item, "=")
	if idx <= 0 {
		return "", "", fmt.Errorf("expected key=value, got %q", item)
	}
	return strings.TrimSpace(item[:idx]), strings.TrimSpace(item[idx+1:]), nil
}

// parseAnyArgs decodes each "key=value" pair's value as JSON, falling
// back to the raw string when it doesn't parse as JSON.
func parseAnyArgs(items []string) (map[string]any, error) {
	out := make(map[string]any, len(items))
	for _, item := range items {
		k, v, err := parseKeyValue(item)
		if err != nil {
			return nil, err
		}
		var decoded any
		if err := json.Unmarshal([]byte(v), &decoded); err != nil {
			decoded = v
		}
		out[k] = decoded
	}
	return out, nil
}
