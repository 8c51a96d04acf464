package ai

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

// MockProvider is a mock implementation of Provider for testing
type MockProvider struct {
	name      string
	available bool
	shouldErr bool
	calls     int
}

func (m *MockProvider) CompleteJSON(ctx context.Context, req *JSONRequest) (string, error) {
	m.calls++
	if m.shouldErr {
		return "", errors.New("mock error")
	}
	return `{"provider":"` + m.name + `"}`, nil
}

func (m *MockProvider) IsAvailable() bool {
	return m.available
}

func (m *MockProvider) Name() string {
	return m.name
}

func TestManager_GetAvailableProvider(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name      string
		providers []Provider
		want      string
		wantNil   bool
	}{
		{
			name: "returns first available provider",
			providers: []Provider{
				&MockProvider{name: "provider1", available: true},
				&MockProvider{name: "provider2", available: true},
			},
			want:    "provider1",
			wantNil: false,
		},
		{
			name: "returns nil when no providers available",
			providers: []Provider{
				&MockProvider{name: "provider1", available: false},
				&MockProvider{name: "provider2", available: false},
			},
			want:    "",
			wantNil: true,
		},
		{
			name: "skips unavailable providers",
			providers: []Provider{
				&MockProvider{name: "provider1", available: false},
				&MockProvider{name: "provider2", available: true},
			},
			want:    "provider2",
			wantNil: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(tt.providers, logger)
			got := m.GetAvailableProvider()

			if tt.wantNil {
				if got != nil {
					t.Errorf("Manager.GetAvailableProvider() = %v, want nil", got)
				}
			} else {
				if got == nil {
					t.Errorf("Manager.GetAvailableProvider() = nil, want %v", tt.want)
				} else if got.Name() != tt.want {
					t.Errorf("Manager.GetAvailableProvider() = %v, want %v", got.Name(), tt.want)
				}
			}
		})
	}
}

func TestManager_CompleteJSON_WithFallback(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name         string
		providers    []Provider
		wantProvider string
		wantErr      bool
	}{
		{
			name: "uses first provider",
			providers: []Provider{
				&MockProvider{name: "openai", available: true},
				&MockProvider{name: "anthropic", available: true},
			},
			wantProvider: "openai",
		},
		{
			name: "falls back when first provider fails",
			providers: []Provider{
				&MockProvider{name: "openai", available: true, shouldErr: true},
				&MockProvider{name: "anthropic", available: true},
			},
			wantProvider: "anthropic",
		},
		{
			name: "fails when all providers fail",
			providers: []Provider{
				&MockProvider{name: "openai", available: true, shouldErr: true},
				&MockProvider{name: "anthropic", available: true, shouldErr: true},
			},
			wantErr: true,
		},
		{
			name:      "fails with no providers",
			providers: []Provider{},
			wantErr:   true,
		},
		{
			name: "fails when none are configured",
			providers: []Provider{
				&MockProvider{name: "openai", available: false},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(tt.providers, logger)
			got, err := m.CompleteJSON(context.Background(), &JSONRequest{System: "s", User: "u"})
			if len(tt.providers) == 0 && !errors.Is(err, ErrNoProvider) {
				t.Errorf("error = %v, want ErrNoProvider", err)
			}

			if (err != nil) != tt.wantErr {
				t.Fatalf("Manager.CompleteJSON() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got.Provider != tt.wantProvider {
				t.Errorf("Manager.CompleteJSON() provider = %v, want %v", got.Provider, tt.wantProvider)
			}
		})
	}
}

func TestManager_StopsOnCancelledContext(t *testing.T) {
	first := &MockProvider{name: "openai", available: true, shouldErr: true}
	second := &MockProvider{name: "anthropic", available: true}
	m := NewManager([]Provider{first, second}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := m.CompleteJSON(ctx, &JSONRequest{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if first.calls != 0 || second.calls != 0 {
		t.Errorf("providers called after cancel: %d, %d", first.calls, second.calls)
	}
}
