// Package mcptools bridges MCP-discovered tools into the tool registry
// and into kernel tool execution. Grounded on internal/mcp/bridge.go's
// ToolBridge (schema/description conversion, formatToolCallResult text
// joining) and Manager.AllTools/CallTool, adapted from the teacher's
// agent.ToolResult shape to target.Result since kernel.execute expects
// the latter.
package mcptools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/CalvinSturm/LocalAgent/internal/ltypes"
	"github.com/CalvinSturm/LocalAgent/internal/mcp"
	"github.com/CalvinSturm/LocalAgent/internal/target"
	"github.com/CalvinSturm/LocalAgent/internal/tools"
)

// Executor dispatches mcp.<server>.<tool> calls to a connected MCP
// server through a Manager. It implements kernel.MCPExecutor.
type Executor struct {
	mgr *mcp.Manager
}

// NewExecutor wraps mgr for use as a kernel.MCPExecutor.
func NewExecutor(mgr *mcp.Manager) *Executor {
	return &Executor{mgr: mgr}
}

// DiscoverAndRegister registers every tool known to connected MCP
// servers into reg, namespaced mcp.<server>.<tool> by
// Registry.RegisterMCPTool. Unknown side effects are treated
// conservatively as network side effects, since an MCP tool is an
// external process whose effects the kernel cannot otherwise observe.
func DiscoverAndRegister(reg *tools.Registry, mgr *mcp.Manager) {
	for serverID, serverTools := range mgr.AllTools() {
		for _, t := range serverTools {
			reg.RegisterMCPTool(serverID, ltypes.ToolDef{
				Name:        t.Name,
				Description: toolDescription(serverID, t),
				Parameters:  toolSchema(t),
				SideEffects: ltypes.SideEffectNetwork,
			})
		}
	}
}

func toolDescription(serverID string, t *mcp.MCPTool) string {
	desc := strings.TrimSpace(t.Description)
	if desc == "" {
		return fmt.Sprintf("MCP tool %s.%s", serverID, t.Name)
	}
	return fmt.Sprintf("MCP tool %s.%s: %s", serverID, t.Name, desc)
}

func toolSchema(t *mcp.MCPTool) json.RawMessage {
	if len(t.InputSchema) == 0 {
		return json.RawMessage(`{"type":"object"}`)
	}
	return t.InputSchema
}

// Execute parses the mcp.<server>.<tool> namespaced call name, invokes
// the tool through the Manager, and converts the result into a
// target.Result. The ExecutionTarget is always target.KindHost: an MCP
// server runs as a local subprocess or local HTTP endpoint, never
// inside the sandboxed exec target.
func (e *Executor) Execute(ctx context.Context, call ltypes.ToolCall) target.Result {
	serverID, toolName, err := SplitName(call.Name)
	if err != nil {
		return target.Failed(target.KindHost, err.Error(), nil)
	}

	var arguments map[string]any
	if len(call.Arguments) > 0 {
		if err := json.Unmarshal(call.Arguments, &arguments); err != nil {
			return target.Failed(target.KindHost, fmt.Sprintf("decode arguments: %s", err), nil)
		}
	}

	result, err := e.mgr.CallTool(ctx, serverID, toolName, arguments)
	if err != nil {
		return target.Failed(target.KindHost, err.Error(), nil)
	}

	content, isError := formatResult(result)
	if isError {
		return target.Failed(target.KindHost, content, nil)
	}
	return target.Result{OK: true, Content: content, ExecutionTarget: target.KindHost}
}

// SplitName splits a mcp.<server>.<tool> namespaced call name back into
// its server ID and tool name.
func SplitName(name string) (serverID, toolName string, err error) {
	if !tools.IsMCPTool(name) {
		return "", "", fmt.Errorf("not an mcp tool name: %q", name)
	}
	rest := strings.TrimPrefix(name, "mcp.")
	parts := strings.SplitN(rest, ".", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed mcp tool name: %q", name)
	}
	return parts[0], parts[1], nil
}

func formatResult(result *mcp.ToolCallResult) (string, bool) {
	if result == nil {
		return "", false
	}
	if len(result.Content) == 0 {
		return "", result.IsError
	}

	var combined strings.Builder
	for _, item := range result.Content {
		if item.Text == "" {
			continue
		}
		if combined.Len() > 0 {
			combined.WriteString("\n")
		}
		combined.WriteString(item.Text)
	}
	return combined.String(), result.IsError
}
