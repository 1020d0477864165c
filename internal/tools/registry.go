// Package tools implements the tool registry: a catalog of built-in
// and namespaced MCP tools with JSON-Schema parameters. Grounded on
// internal/agent/tool_registry.go's thread-safe name->definition map,
// generalized from an ad-hoc Tool.Execute interface to a
// declarative ToolDef plus capability gating that is independent of
// policy gating: policy sees every call regardless of capability.
package tools

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/CalvinSturm/LocalAgent/internal/ltypes"
)

// Capability names gate which built-in tools are exposed to the model.
// Policy gating (the trust gate) is independent and always sees every
// call regardless of these flags.
const (
	CapShellExec      = "allow-shell"
	CapFilesystemWrite = "allow-write"
)

// builtinCapability maps a built-in tool name to the capability flag
// that must be set for it to be exposed to the model. Tools absent from
// this map are always exposed (list_dir, read_file).
var builtinCapability = map[string]string{
	"shell":        CapShellExec,
	"write_file":   CapFilesystemWrite,
	"apply_patch":  CapFilesystemWrite,
}

// Registry catalogs every tool available to a run: the five built-ins
// plus any MCP-discovered tools, namespaced mcp.<server>.<tool>.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]ltypes.ToolDef
}

// NewRegistry returns an empty registry pre-seeded with the five
// built-in tool definitions.
func NewRegistry() *Registry {
	r := &Registry{tools: make(map[string]ltypes.ToolDef)}
	for _, t := range builtinDefs() {
		r.tools[t.Name] = t
	}
	return r
}

// RegisterMCPTool adds a tool discovered from an MCP server, namespaced
// as mcp.<server>.<tool>.
func (r *Registry) RegisterMCPTool(server string, def ltypes.ToolDef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	def.Name = fmt.Sprintf("mcp.%s.%s", server, def.Name)
	r.tools[def.Name] = def
}

// Unregister removes a tool by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get returns a tool definition by name.
func (r *Registry) Get(name string) (ltypes.ToolDef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// IsMCPTool reports whether name is in the mcp.<server>.<tool>
// namespace.
func IsMCPTool(name string) bool {
	return strings.HasPrefix(name, "mcp.")
}

// Presented returns the tool set to show the model: built-ins gated by
// the supplied capability flags, plus every MCP tool, sorted by name
// for reproducibility.
func (r *Registry) Presented(capabilities map[string]bool) []ltypes.ToolDef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ltypes.ToolDef, 0, len(r.tools))
	for name, def := range r.tools {
		if capFlag, gated := builtinCapability[name]; gated && !capabilities[capFlag] {
			continue
		}
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// AllNames returns the full set of registered tool names regardless of
// capability gating — this is the allow-set tool-call extraction
// uses to decide whether an extracted call names a known tool.
func (r *Registry) AllNames() map[string]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]bool, len(r.tools))
	for name := range r.tools {
		out[name] = true
	}
	return out
}

func builtinDefs() []ltypes.ToolDef {
	return []ltypes.ToolDef{
		{
			Name:        "list_dir",
			Description: "List entries in a directory relative to the workdir.",
			Parameters:  []byte(`{"type":"object","properties":{"path":{"type":"string"}},"required":["path"],"additionalProperties":false}`),
			SideEffects: ltypes.SideEffectFilesystemRead,
		},
		{
			Name:        "read_file",
			Description: "Read a file's contents relative to the workdir.",
			Parameters:  []byte(`{"type":"object","properties":{"path":{"type":"string"}},"required":["path"],"additionalProperties":false}`),
			SideEffects: ltypes.SideEffectFilesystemRead,
		},
		{
			Name:        "shell",
			Description: "Run a shell command in the workdir.",
			Parameters:  []byte(`{"type":"object","properties":{"cmd":{"type":"string"},"args":{"type":"array","items":{"type":"string"}}},"required":["cmd"],"additionalProperties":false}`),
			SideEffects: ltypes.SideEffectShellExec,
		},
		{
			Name:        "write_file",
			Description: "Write content to a file relative to the workdir.",
			Parameters:  []byte(`{"type":"object","properties":{"path":{"type":"string"},"content":{"type":"string"}},"required":["path","content"],"additionalProperties":false}`),
			SideEffects: ltypes.SideEffectFilesystemWrite,
		},
		{
			Name:        "apply_patch",
			Description: "Apply a unified diff to the workdir.",
			Parameters:  []byte(`{"type":"object","properties":{"diff":{"type":"string"}},"required":["diff"],"additionalProperties":false}`),
			SideEffects: ltypes.SideEffectFilesystemWrite,
		},
	}
}
