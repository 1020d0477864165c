// Package openai implements kernel.Provider against the OpenAI chat
// completions API. Grounded on internal/providers/venice/venice.go's
// Client (same sashabaranov/go-openai dependency, same
// convertMessages/convertTools shape), adapted from that file's
// streaming Complete to a single non-streaming CreateChatCompletion
// call since kernel.Provider.Generate wants one full assistant turn.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

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
}

// Provider implements kernel.Provider over the OpenAI chat completions
// API.
type Provider struct {
	client       *openai.Client
	defaultModel string
	maxRetries   int
	retryDelay   time.Duration
}

var _ kernel.Provider = (*Provider)(nil)

// New builds a Provider from cfg.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gpt-4o"
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Provider{
		client:       openai.NewClientWithConfig(clientCfg),
		defaultModel: cfg.DefaultModel,
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
	}, nil
}

// Generate sends req as a single non-streaming CreateChatCompletion
// call and converts the result back into a kernel.GenerateResponse.
func (p *Provider) Generate(ctx context.Context, req kernel.GenerateRequest) (kernel.GenerateResponse, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	messages := convertMessages(req.Messages)
	chatReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertTools(req.Tools)
	}

	var resp openai.ChatCompletionResponse
	var lastErr error
	for attempt := 0; attempt < p.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return kernel.GenerateResponse{}, ctx.Err()
			case <-time.After(p.retryDelay * time.Duration(attempt)):
			}
		}
		resp, lastErr = p.client.CreateChatCompletion(ctx, chatReq)
		if lastErr == nil {
			break
		}
		if !isRetryable(lastErr) {
			return kernel.GenerateResponse{}, fmt.Errorf("openai: %w", lastErr)
		}
	}
	if lastErr != nil {
		return kernel.GenerateResponse{}, fmt.Errorf("openai: max retries exceeded: %w", lastErr)
	}
	if len(resp.Choices) == 0 {
		return kernel.GenerateResponse{}, fmt.Errorf("openai: empty choices in response")
	}

	return convertResponse(resp.Choices[0].Message), nil
}

func convertMessages(messages []ltypes.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case ltypes.RoleSystem:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: m.Content})
		case ltypes.RoleDeveloper:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleDeveloper, Content: m.Content})
		case ltypes.RoleUser:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: m.Content})
		case ltypes.RoleTool:
			out = append(out, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    m.Content,
				ToolCallID: m.ToolCallID,
			})
		case ltypes.RoleAssistant:
			oaiMsg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.Content}
			if len(m.ToolCalls) > 0 {
				oaiMsg.ToolCalls = make([]openai.ToolCall, len(m.ToolCalls))
				for i, tc := range m.ToolCalls {
					oaiMsg.ToolCalls[i] = openai.ToolCall{
						ID:   tc.ID,
						Type: openai.ToolTypeFunction,
						Function: openai.FunctionCall{
							Name:      tc.Name,
							Arguments: string(tc.Arguments),
						},
					}
				}
			}
			out = append(out, oaiMsg)
		}
	}
	return out
}

func convertTools(tools []ltypes.ToolDef) []openai.Tool {
	out := make([]openai.Tool, len(tools))
	for i, t := range tools {
		var schema map[string]any
		_ = json.Unmarshal(t.Parameters, &schema)
		out[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  schema,
			},
		}
	}
	return out
}

func convertResponse(m openai.ChatCompletionMessage) kernel.GenerateResponse {
	var toolCalls []ltypes.ToolCall
	for _, tc := range m.ToolCalls {
		toolCalls = append(toolCalls, ltypes.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	return kernel.GenerateResponse{
		Assistant: ltypes.Message{
			Role:      ltypes.RoleAssistant,
			Content:   m.Content,
			ToolCalls: toolCalls,
		},
		ToolCalls: toolCalls,
	}
}

// isRetryable mirrors venice.Client.isRetryableError: retry on rate
// limits and transient server/network errors, not on 4xx client
// errors.
func isRetryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 429, 500, 502, 503, 504:
			return true
		}
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "connection reset") || strings.Contains(msg, "eof")
}
