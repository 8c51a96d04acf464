package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/troikatech/cab-voice-agent/pkg/client"
	"github.com/troikatech/cab-voice-agent/pkg/retry"
)

// singleAttempt disables per-provider retries; the manager falls back to
// the next provider instead.
var singleAttempt = retry.Config{MaxAttempts: 1}

// OpenAIProvider implements the Provider interface for OpenAI chat
// completions in JSON mode
type OpenAIProvider struct {
	apiKey    string
	model     string
	maxTokens int
	logger    *zap.Logger
	baseURL   string
	http      *client.HTTPClient
}

func NewOpenAIProvider(apiKey, model string, maxTokens int, timeout time.Duration, logger *zap.Logger) *OpenAIProvider {
	if apiKey == "" {
		return &OpenAIProvider{logger: logger}
	}

	return &OpenAIProvider{
		apiKey:    apiKey,
		model:     model,
		maxTokens: maxTokens,
		logger:    logger,
		baseURL:   "https://api.openai.com/v1",
		http: client.NewHTTPClient("openai", timeout).
			WithHeader("Authorization", "Bearer "+apiKey).
			WithRetry(singleAttempt),
	}
}

// WithBaseURL points the provider at another endpoint
func (p *OpenAIProvider) WithBaseURL(url string) *OpenAIProvider {
	p.baseURL = url
	return p
}

func (p *OpenAIProvider) Name() string {
	return "openai"
}

func (p *OpenAIProvider) IsAvailable() bool {
	return p.apiKey != ""
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// CompleteJSON asks for a single JSON object reply
func (p *OpenAIProvider) CompleteJSON(ctx context.Context, req *JSONRequest) (string, error) {
	if !p.IsAvailable() {
		return "", errors.New("OpenAI provider not available")
	}

	maxTokens := p.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}

	body := map[string]interface{}{
		"model": p.model,
		"messages": []map[string]string{
			{"role": "system", "content": req.System},
			{"role": "user", "content": req.User},
		},
		"max_tokens":      maxTokens,
		"temperature":     0,
		"response_format": map[string]string{"type": "json_object"},
	}

	var resp openAIChatResponse
	if err := p.http.PostJSON(ctx, p.baseURL+"/chat/completions", body, &resp); err != nil {
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}
