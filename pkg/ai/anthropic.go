package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/troikatech/cab-voice-agent/pkg/client"
)

const anthropicVersion = "2023-06-01"

// AnthropicProvider implements the Provider interface for Anthropic Claude
type AnthropicProvider struct {
	apiKey    string
	model     string
	maxTokens int
	logger    *zap.Logger
	baseURL   string
	http      *client.HTTPClient
}

func NewAnthropicProvider(apiKey, model string, maxTokens int, timeout time.Duration, logger *zap.Logger) *AnthropicProvider {
	if apiKey == "" {
		return &AnthropicProvider{logger: logger}
	}

	return &AnthropicProvider{
		apiKey:    apiKey,
		model:     model,
		maxTokens: maxTokens,
		logger:    logger,
		baseURL:   "https://api.anthropic.com/v1",
		http: client.NewHTTPClient("anthropic", timeout).
			WithHeader("x-api-key", apiKey).
			WithHeader("anthropic-version", anthropicVersion).
			WithRetry(singleAttempt),
	}
}

// WithBaseURL points the provider at another endpoint
func (p *AnthropicProvider) WithBaseURL(url string) *AnthropicProvider {
	p.baseURL = url
	return p
}

func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

func (p *AnthropicProvider) IsAvailable() bool {
	return p.apiKey != ""
}

type anthropicMessagesResponse struct {
	Content []struct {
		Text string `json:"text"`
		Type string `json:"type"`
	} `json:"content"`
}

// CompleteJSON asks Claude for a JSON object. The reply is prefilled with
// "{" so the model cannot open with prose.
func (p *AnthropicProvider) CompleteJSON(ctx context.Context, req *JSONRequest) (string, error) {
	if !p.IsAvailable() {
		return "", errors.New("Anthropic provider not available")
	}

	maxTokens := p.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}

	body := map[string]interface{}{
		"model":      p.model,
		"max_tokens": maxTokens,
		"system":     req.System,
		"messages": []map[string]string{
			{"role": "user", "content": req.User},
			{"role": "assistant", "content": "{"},
		},
	}

	var resp anthropicMessagesResponse
	if err := p.http.PostJSON(ctx, p.baseURL+"/messages", body, &resp); err != nil {
		return "", fmt.Errorf("Anthropic API error: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", errors.New("no content in response")
	}
	return "{" + text.String(), nil
}
