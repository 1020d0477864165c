// Package startup implements the readiness pipeline that runs before
// the turn loop kernel takes over: orchestrator qualification, local
// provider auto-detection, and state directory auto-initialization.
// Grounded on the original's qualification.rs, startup_detect.rs, and
// startup_init.rs, adapted onto internal/kernel.Provider and
// internal/ltypes.
package startup

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/CalvinSturm/LocalAgent/internal/kernel"
	"github.com/CalvinSturm/LocalAgent/internal/ltypes"
)

// QualificationCacheFile is the name of the on-disk qualification
// verdict cache under a run's state directory.
const QualificationCacheFile = "qualification_cache.json"

// probePath is the scripted argument the qualification probe expects
// the model to echo back exactly.
const probePath = "."

// listDirTool is the single tool definition offered during
// qualification, mirroring internal/tools.Registry's own "list_dir"
// definition without depending on that package.
var listDirTool = ltypes.ToolDef{
	Name:        "list_dir",
	Description: "List entries in a directory relative to the workdir.",
	Parameters:  []byte(`{"type":"object","properties":{"path":{"type":"string"}},"required":["path"],"additionalProperties":false}`),
	SideEffects: ltypes.SideEffectFilesystemRead,
}

const probeAttempts = 3

// QualificationCache holds pass/fail verdicts keyed by
// provider|base_url|model, both in memory and mirrored to a JSON file
// so a distinct endpoint is only probed once across process restarts.
type QualificationCache struct {
	mu   sync.Mutex
	path string
	data map[string]bool
}

// LoadQualificationCache reads stateDir/qualification_cache.json if it
// exists; a missing or unreadable file starts empty rather than
// erroring, since the cache is a performance optimization, not a
// correctness requirement.
func LoadQualificationCache(stateDir string) *QualificationCache {
	c := &QualificationCache{
		path: filepath.Join(stateDir, QualificationCacheFile),
		data: make(map[string]bool),
	}
	b, err := os.ReadFile(c.path)
	if err != nil {
		return c
	}
	_ = json.Unmarshal(b, &c.data)
	return c
}

func cacheKey(providerName, baseURL, model string) string {
	return providerName + "|" + baseURL + "|" + model
}

// Get returns a cached verdict and whether one was recorded.
func (c *QualificationCache) Get(providerName, baseURL, model string) (bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[cacheKey(providerName, baseURL, model)]
	return v, ok
}

// Set records a verdict and persists the cache to disk. A persist
// failure is swallowed: the in-memory verdict still stands for the
// rest of this process's lifetime.
func (c *QualificationCache) Set(providerName, baseURL, model string, qualified bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[cacheKey(providerName, baseURL, model)] = qualified
	_ = c.persistLocked()
}

func (c *QualificationCache) persistLocked() error {
	b, err := json.MarshalIndent(c.data, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(c.path, b, 0o644)
}

// probeResponseIsToolCall reports whether resp contains exactly one
// well-formed list_dir tool call with the scripted path argument.
func probeResponseIsToolCall(resp kernel.GenerateResponse) bool {
	calls := resp.ToolCalls
	if len(calls) == 0 {
		calls = resp.Assistant.ToolCalls
	}
	if len(calls) != 1 {
		return false
	}
	call := calls[0]
	if call.Name != "list_dir" {
		return false
	}
	var args struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(call.Arguments, &args); err != nil {
		return false
	}
	return args.Path == probePath
}

// probe sends the scripted list_dir request up to probeAttempts times,
// succeeding as soon as one attempt comes back as a well-formed native
// tool call.
func probe(ctx context.Context, provider kernel.Provider, model string) bool {
	req := kernel.GenerateRequest{
		Model: model,
		Messages: []ltypes.Message{
			{
				Role:    ltypes.RoleUser,
				Content: `Call the list_dir tool with {"path":"."} and nothing else.`,
			},
		},
		Tools: []ltypes.ToolDef{listDirTool},
	}
	for attempt := 0; attempt < probeAttempts; attempt++ {
		resp, err := provider.Generate(ctx, req)
		if err != nil {
			continue
		}
		if probeResponseIsToolCall(resp) {
			return true
		}
	}
	return false
}

// EnsureQualified returns whether provider+baseURL+model is qualified
// to drive write-capable tools, probing at most once per distinct key
// across this cache's lifetime (in-memory and on-disk).
func EnsureQualified(ctx context.Context, cache *QualificationCache, provider kernel.Provider, providerName, baseURL, model string) bool {
	if v, ok := cache.Get(providerName, baseURL, model); ok {
		return v
	}
	qualified := probe(ctx, provider, model)
	cache.Set(providerName, baseURL, model, qualified)
	return qualified
}

// QualifyOrEnableReadonlyFallback gates write-capable tools behind a
// qualification probe: if writeRequested is false the probe never
// runs (read-only runs don't need it). If the probe fails, every tool
// with a filesystem_write side effect is stripped from toolDefs and a
// warning is returned instead of an error, so the run degrades to
// read-only rather than aborting.
func QualifyOrEnableReadonlyFallback(ctx context.Context, cache *QualificationCache, provider kernel.Provider, providerName, baseURL, model string, writeRequested bool, toolDefs []ltypes.ToolDef) ([]ltypes.ToolDef, string) {
	if !writeRequested {
		return toolDefs, ""
	}
	if EnsureQualified(ctx, cache, provider, providerName, baseURL, model) {
		return toolDefs, ""
	}
	filtered := make([]ltypes.ToolDef, 0, len(toolDefs))
	for _, def := range toolDefs {
		if def.SideEffects == ltypes.SideEffectFilesystemWrite {
			continue
		}
		filtered = append(filtered, def)
	}
	warning := fmt.Sprintf("model %q did not pass the orchestrator qualification probe; disabling write-capable tools for this run", model)
	return filtered, warning
}
