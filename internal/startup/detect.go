package startup

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"
)

// HTTPConfig bounds the connect and request timeouts used while
// probing local provider endpoints, so a missing runtime fails fast
// instead of hanging startup.
type HTTPConfig struct {
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
}

// DefaultHTTPConfig mirrors the original's short local-probe timeouts:
// local runtimes either answer almost instantly or aren't running.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		ConnectTimeout: 300 * time.Millisecond,
		RequestTimeout: 1500 * time.Millisecond,
	}
}

func (c HTTPConfig) client() *http.Client {
	dialer := &net.Dialer{Timeout: c.ConnectTimeout}
	return &http.Client{
		Timeout: c.RequestTimeout,
		Transport: &http.Transport{
			DialContext: dialer.DialContext,
		},
	}
}

// localCandidate is one well-known local runtime this detector checks,
// in priority order.
type localCandidate struct {
	provider string
	baseURL  string
	ollama   bool
}

var localCandidates = []localCandidate{
	{provider: "openai", baseURL: "http://localhost:1234/v1", ollama: false}, // LM Studio
	{provider: "ollama", baseURL: "http://localhost:11434", ollama: true},    // Ollama
	{provider: "openai", baseURL: "http://localhost:8080/v1", ollama: false}, // llama.cpp server
}

// Detection is what the startup pipeline learned about a local model
// runtime: the provider kind and base URL to talk to it through, the
// first model it reports, and a human-readable status line suitable
// for a doctor report or a run's startup log line.
type Detection struct {
	Provider   string
	Model      string
	BaseURL    string
	StatusLine string
}

// DetectLocalProvider probes LM Studio, Ollama, and llama.cpp's
// default local endpoints in turn and returns the first one that
// answers with at least one model loaded. Used to fill in
// provider/model/base-url when a run is started without any of the
// three explicitly configured.
func DetectLocalProvider(ctx context.Context, cfg HTTPConfig) Detection {
	client := cfg.client()
	for _, cand := range localCandidates {
		var model string
		var err error
		if cand.ollama {
			model, err = discoverOllamaModel(ctx, client, cand.baseURL)
		} else {
			model, err = discoverOpenAICompatModel(ctx, client, cand.baseURL)
		}
		if err != nil || model == "" {
			continue
		}
		return Detection{
			Provider:   cand.provider,
			Model:      model,
			BaseURL:    cand.baseURL,
			StatusLine: fmt.Sprintf("detected local provider %s at %s serving %s", cand.provider, cand.baseURL, model),
		}
	}
	return Detection{StatusLine: "no local provider detected; configure provider/model/base_url explicitly"}
}

// discoverOpenAICompatModel GETs baseURL/models and returns the first
// model ID reported, the same shape LM Studio and llama.cpp's server
// both expose.
func discoverOpenAICompatModel(ctx context.Context, client *http.Client, baseURL string) (string, error) {
	var body struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := getJSON(ctx, client, baseURL+"/models", &body); err != nil {
		return "", err
	}
	if len(body.Data) == 0 {
		return "", fmt.Errorf("startup: %s/models reported no models", baseURL)
	}
	return body.Data[0].ID, nil
}

// discoverOllamaModel GETs baseURL/api/tags and returns the first
// model name reported.
func discoverOllamaModel(ctx context.Context, client *http.Client, baseURL string) (string, error) {
	var body struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := getJSON(ctx, client, baseURL+"/api/tags", &body); err != nil {
		return "", err
	}
	if len(body.Models) == 0 {
		return "", fmt.Errorf("startup: %s/api/tags reported no models", baseURL)
	}
	return body.Models[0].Name, nil
}

func getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("startup: %s returned %s", url, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
