package startup

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/CalvinSturm/LocalAgent/internal/kernel"
	"github.com/CalvinSturm/LocalAgent/internal/ltypes"
)

type scriptedProvider struct {
	calls     int
	responses []kernel.GenerateResponse
}

func (p *scriptedProvider) Generate(ctx context.Context, req kernel.GenerateRequest) (kernel.GenerateResponse, error) {
	resp := p.responses[p.calls]
	p.calls++
	return resp, nil
}

func toolCallResponse(name, argsJSON string) kernel.GenerateResponse {
	return kernel.GenerateResponse{
		ToolCalls: []ltypes.ToolCall{{ID: "1", Name: name, Arguments: json.RawMessage(argsJSON)}},
	}
}

func TestProbeResponseIsToolCallValidatesExactShape(t *testing.T) {
	good := toolCallResponse("list_dir", `{"path":"."}`)
	if !probeResponseIsToolCall(good) {
		t.Fatal("expected a well-formed list_dir call to qualify")
	}

	wrongName := toolCallResponse("read_file", `{"path":"."}`)
	if probeResponseIsToolCall(wrongName) {
		t.Fatal("expected a non-list_dir call to fail")
	}

	wrongPath := toolCallResponse("list_dir", `{"path":"/etc"}`)
	if probeResponseIsToolCall(wrongPath) {
		t.Fatal("expected a mismatched path to fail")
	}

	noCalls := kernel.GenerateResponse{Assistant: ltypes.Message{Content: "sure, one sec"}}
	if probeResponseIsToolCall(noCalls) {
		t.Fatal("expected a plain-text response to fail")
	}
}

func TestEnsureQualifiedCachesAcrossCalls(t *testing.T) {
	dir := t.TempDir()
	cache := LoadQualificationCache(dir)

	provider := &scriptedProvider{responses: []kernel.GenerateResponse{
		toolCallResponse("list_dir", `{"path":"."}`),
	}}

	if !EnsureQualified(context.Background(), cache, provider, "openai", "http://localhost:1234/v1", "qwen3") {
		t.Fatal("expected qualification to pass")
	}
	if provider.calls != 1 {
		t.Fatalf("expected exactly one probe call, got %d", provider.calls)
	}

	// A second call for the same key must hit the cache, not the provider.
	if !EnsureQualified(context.Background(), cache, provider, "openai", "http://localhost:1234/v1", "qwen3") {
		t.Fatal("expected cached qualification to still read true")
	}
	if provider.calls != 1 {
		t.Fatalf("expected the cache to avoid a second probe call, got %d calls", provider.calls)
	}

	reloaded := LoadQualificationCache(dir)
	if v, ok := reloaded.Get("openai", "http://localhost:1234/v1", "qwen3"); !ok || !v {
		t.Fatal("expected the verdict to persist to disk and reload")
	}
}

func TestEnsureQualifiedRetriesThenFails(t *testing.T) {
	cache := LoadQualificationCache(t.TempDir())
	provider := &scriptedProvider{responses: []kernel.GenerateResponse{
		{Assistant: ltypes.Message{Content: "I'll just describe the directory instead"}},
		{Assistant: ltypes.Message{Content: "still no tool call"}},
		{Assistant: ltypes.Message{Content: "nope"}},
	}}

	if EnsureQualified(context.Background(), cache, provider, "openai", "http://localhost:1234/v1", "tinyllama") {
		t.Fatal("expected qualification to fail after exhausting probe attempts")
	}
	if provider.calls != probeAttempts {
		t.Fatalf("expected %d probe attempts, got %d", probeAttempts, provider.calls)
	}
}

func TestQualifyOrEnableReadonlyFallbackSkipsWhenWriteNotRequested(t *testing.T) {
	cache := LoadQualificationCache(t.TempDir())
	provider := &scriptedProvider{responses: []kernel.GenerateResponse{{}}}
	defs := []ltypes.ToolDef{{Name: "write_file", SideEffects: ltypes.SideEffectFilesystemWrite}}

	out, warning := QualifyOrEnableReadonlyFallback(context.Background(), cache, provider, "openai", "", "m", false, defs)
	if warning != "" {
		t.Fatalf("expected no warning for a read-only run, got %q", warning)
	}
	if len(out) != 1 {
		t.Fatalf("expected tools untouched, got %v", out)
	}
	if provider.calls != 0 {
		t.Fatalf("expected no probe call for a read-only run, got %d", provider.calls)
	}
}

func TestQualifyOrEnableReadonlyFallbackStripsWriteToolsOnFailure(t *testing.T) {
	cache := LoadQualificationCache(t.TempDir())
	provider := &scriptedProvider{responses: []kernel.GenerateResponse{
		{Assistant: ltypes.Message{Content: "no"}},
		{Assistant: ltypes.Message{Content: "no"}},
		{Assistant: ltypes.Message{Content: "no"}},
	}}
	defs := []ltypes.ToolDef{
		{Name: "write_file", SideEffects: ltypes.SideEffectFilesystemWrite},
		{Name: "read_file", SideEffects: ltypes.SideEffectFilesystemRead},
	}

	out, warning := QualifyOrEnableReadonlyFallback(context.Background(), cache, provider, "openai", "", "m", true, defs)
	if warning == "" {
		t.Fatal("expected a fallback warning")
	}
	if len(out) != 1 || out[0].Name != "read_file" {
		t.Fatalf("expected only the read-only tool to survive, got %v", out)
	}
}

func TestDetectLocalProviderParsesOpenAICompatAndOllamaShapes(t *testing.T) {
	oaiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]string{{"id": "qwen3-8b-instruct"}},
		})
	}))
	defer oaiSrv.Close()

	model, err := discoverOpenAICompatModel(context.Background(), DefaultHTTPConfig().client(), oaiSrv.URL+"/v1")
	if err != nil {
		t.Fatalf("discoverOpenAICompatModel: %v", err)
	}
	if model != "qwen3-8b-instruct" {
		t.Fatalf("expected qwen3-8b-instruct, got %q", model)
	}

	ollamaSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"models": []map[string]string{{"name": "llama3:8b"}},
		})
	}))
	defer ollamaSrv.Close()

	model, err = discoverOllamaModel(context.Background(), DefaultHTTPConfig().client(), ollamaSrv.URL)
	if err != nil {
		t.Fatalf("discoverOllamaModel: %v", err)
	}
	if model != "llama3:8b" {
		t.Fatalf("expected llama3:8b, got %q", model)
	}
}

func TestDetectLocalProviderReportsNoneWhenNothingAnswers(t *testing.T) {
	cfg := HTTPConfig{ConnectTimeout: 50 * time.Millisecond, RequestTimeout: 50 * time.Millisecond}
	detection := DetectLocalProvider(context.Background(), cfg)
	if detection.Model != "" {
		t.Fatalf("expected no model detected against unreachable endpoints, got %q", detection.Model)
	}
}

func TestShouldAutoInitStateSkipsVersionAndHelp(t *testing.T) {
	if ShouldAutoInitState("version") {
		t.Fatal("expected version to skip auto-init")
	}
	if !ShouldAutoInitState("run") {
		t.Fatal("expected run to trigger auto-init")
	}
}

func TestMaybeAutoInitStateScaffoldsOnce(t *testing.T) {
	base := t.TempDir()
	stateDir := filepath.Join(base, "state")

	if err := MaybeAutoInitState("run", stateDir); err != nil {
		t.Fatalf("first auto-init: %v", err)
	}
	if _, err := os.Stat(filepath.Join(stateDir, "policy.yaml")); err != nil {
		t.Fatalf("expected policy.yaml to be scaffolded: %v", err)
	}
	if _, err := os.Stat(filepath.Join(stateDir, "runs")); err != nil {
		t.Fatalf("expected runs/ to be scaffolded: %v", err)
	}

	// A second call against an already-initialized dir must be a no-op,
	// not an error.
	if err := MaybeAutoInitState("run", stateDir); err != nil {
		t.Fatalf("second auto-init: %v", err)
	}
}

func TestMaybeAutoInitStateSkipsVersionCommand(t *testing.T) {
	base := t.TempDir()
	stateDir := filepath.Join(base, "state")
	if err := MaybeAutoInitState("version", stateDir); err != nil {
		t.Fatalf("auto-init for version: %v", err)
	}
	if _, err := os.Stat(stateDir); err == nil {
		t.Fatal("expected version to leave the state dir untouched")
	}
}
