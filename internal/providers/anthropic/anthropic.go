// Package anthropic implements kernel.Provider against Anthropic's
// Messages API. Grounded on internal/agent/providers/anthropic.go's
// AnthropicProvider (message/tool conversion, retry-on-transient-error
// idiom), adapted from that file's streaming Complete to a single
// non-streaming Messages.New call since kernel.Provider.Generate wants
// one full assistant turn per call, not incremental chunks.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/CalvinSturm/LocalAgent/internal/kernel"
	"github.com/CalvinSturm/LocalAgent/internal/ltypes"
)

// Config configures a Provider.
type Config struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	MaxRetries   int
	RetryDelay   time.Duration
	MaxTokens    int
}

// Provider implements kernel.Provider over the Anthropic Messages API.
type Provider struct {
	client       anthropic.Client
	defaultModel string
	maxRetries   int
	retryDelay   time.Duration
	maxTokens    int
}

var _ kernel.Provider = (*Provider)(nil)

// New builds a Provider from cfg, applying the same defaults the
// teacher's AnthropicProvider applies.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "claude-sonnet-4-20250514"
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Provider{
		client:       anthropic.NewClient(opts...),
		defaultModel: cfg.DefaultModel,
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
		maxTokens:    cfg.MaxTokens,
	}, nil
}

// Generate sends req as a single non-streaming Messages.New call and
// converts the result back into a kernel.GenerateResponse.
func (p *Provider) Generate(ctx context.Context, req kernel.GenerateRequest) (kernel.GenerateResponse, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	system, messages, err := convertMessages(req.Messages)
	if err != nil {
		return kernel.GenerateResponse{}, fmt.Errorf("anthropic: convert messages: %w", err)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(p.maxTokens),
		Messages:  messages,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if len(req.Tools) > 0 {
		params.Tools = convertTools(req.Tools)
	}

	var msg *anthropic.Message
	var lastErr error
	for attempt := 0; attempt < p.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return kernel.GenerateResponse{}, ctx.Err()
			case <-time.After(p.retryDelay * time.Duration(attempt)):
			}
		}
		msg, lastErr = p.client.Messages.New(ctx, params)
		if lastErr == nil {
			break
		}
		if !isRetryable(lastErr) {
			return kernel.GenerateResponse{}, fmt.Errorf("anthropic: %w", lastErr)
		}
	}
	if lastErr != nil {
		return kernel.GenerateResponse{}, fmt.Errorf("anthropic: max retries exceeded: %w", lastErr)
	}

	return convertResponse(msg), nil
}

func convertMessages(messages []ltypes.Message) (string, []anthropic.MessageParam, error) {
	var system string
	var out []anthropic.MessageParam

	for _, m := range messages {
		switch m.Role {
		case ltypes.RoleSystem, ltypes.RoleDeveloper:
			if system != "" {
				system += "\n\n"
			}
			system += m.Content

		case ltypes.RoleUser:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))

		case ltypes.RoleTool:
			out = append(out, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false),
			))

		case ltypes.RoleAssistant:
			var content []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				content = append(content, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				var input any
				if len(tc.Arguments) > 0 {
					if err := json.Unmarshal(tc.Arguments, &input); err != nil {
						return "", nil, fmt.Errorf("tool call %s: %w", tc.ID, err)
					}
				}
				content = append(content, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			if len(content) > 0 {
				out = append(out, anthropic.NewAssistantMessage(content...))
			}
		}
	}
	return system, out, nil
}

func convertTools(tools []ltypes.ToolDef) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var schema map[string]any
		if err := json.Unmarshal(t.Parameters, &schema); err != nil {
			continue
		}
		properties, _ := schema["properties"]
		required, _ := schema["required"].([]any)
		reqStrings := make([]string, 0, len(required))
		for _, r := range required {
			if s, ok := r.(string); ok {
				reqStrings = append(reqStrings, s)
			}
		}
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: properties,
					Required:   reqStrings,
				},
			},
		})
	}
	return out
}

func convertResponse(msg *anthropic.Message) kernel.GenerateResponse {
	var textOut string
	var toolCalls []ltypes.ToolCall

	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			textOut += block.AsText().Text
		case "tool_use":
			tu := block.AsToolUse()
			input, _ := json.Marshal(tu.Input)
			toolCalls = append(toolCalls, ltypes.ToolCall{
				ID:        tu.ID,
				Name:      tu.Name,
				Arguments: input,
			})
		}
	}

	return kernel.GenerateResponse{
		Assistant: ltypes.Message{
			Role:      ltypes.RoleAssistant,
			Content:   textOut,
			ToolCalls: toolCalls,
		},
		ToolCalls: toolCalls,
	}
}

func isRetryable(err error) bool {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429, 500, 502, 503, 529:
			return true
		}
		return false
	}
	return true
}
