package ai

import (
	"context"
)

// Provider is the base interface for all AI providers
type Provider interface {
	// CompleteJSON returns the model's reply to req, which must be a single
	// JSON object.
	CompleteJSON(ctx context.Context, req *JSONRequest) (string, error)

	// IsAvailable checks if the provider is available/configured
	IsAvailable() bool

	// Name returns the provider name
	Name() string
}

// JSONRequest is a structured completion request
type JSONRequest struct {
	System string
	User   string
	// MaxTokens overrides the provider default when positive.
	MaxTokens int
}

// JSONResponse carries the raw JSON reply and who produced it
type JSONResponse struct {
	Content  string
	Provider string
}
