package ai

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ErrNoProvider is returned when no configured provider is available.
var ErrNoProvider = errors.New("no AI providers available")

// Manager tries providers in order until one answers.
type Manager struct {
	providers []Provider
	logger    *zap.Logger
}

func NewManager(providers []Provider, logger *zap.Logger) *Manager {
	return &Manager{
		providers: providers,
		logger:    logger,
	}
}

// GetAvailableProvider returns the provider that will be tried first
func (m *Manager) GetAvailableProvider() Provider {
	for _, provider := range m.providers {
		if provider.IsAvailable() {
			return provider
		}
	}
	return nil
}

// CompleteJSON runs a structured completion, falling back to the next
// provider on failure. A cancelled ctx stops the fallback chain.
func (m *Manager) CompleteJSON(ctx context.Context, req *JSONRequest) (*JSONResponse, error) {
	var lastErr error
	for _, provider := range m.providers {
		if !provider.IsAvailable() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		content, err := provider.CompleteJSON(ctx, req)
		if err == nil {
			return &JSONResponse{Content: content, Provider: provider.Name()}, nil
		}

		lastErr = err
		m.logger.Warn("AI provider failed, trying next",
			zap.String("provider", provider.Name()),
			zap.Error(err),
		)
	}

	if lastErr == nil {
		return nil, ErrNoProvider
	}
	return nil, fmt.Errorf("all AI providers failed. Last error: %w", lastErr)
}
