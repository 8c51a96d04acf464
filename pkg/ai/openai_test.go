package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestOpenAIProvider_IsAvailable(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name   string
		apiKey string
		want   bool
	}{
		{
			name:   "available with api key",
			apiKey: "test-api-key",
			want:   true,
		},
		{
			name:   "not available without api key",
			apiKey: "",
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewOpenAIProvider(tt.apiKey, "gpt-4o-mini", 400, 30*time.Second, logger)
			if got := p.IsAvailable(); got != tt.want {
				t.Errorf("OpenAIProvider.IsAvailable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOpenAIProvider_CompleteJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		format, _ := body["response_format"].(map[string]interface{})
		if format["type"] != "json_object" {
			t.Errorf("response_format = %v", body["response_format"])
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"passengers\":2}"}}]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("test-key", "gpt-4o-mini", 400, 5*time.Second, zap.NewNop()).WithBaseURL(srv.URL)
	got, err := p.CompleteJSON(context.Background(), &JSONRequest{System: "extract", User: "two of us"})
	if err != nil {
		t.Fatalf("CompleteJSON() error = %v", err)
	}
	if got != `{"passengers":2}` {
		t.Errorf("CompleteJSON() = %s", got)
	}
}

func TestOpenAIProvider_CompleteJSON_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewOpenAIProvider("test-key", "gpt-4o-mini", 400, 5*time.Second, zap.NewNop()).WithBaseURL(srv.URL)
	if _, err := p.CompleteJSON(context.Background(), &JSONRequest{}); err == nil {
		t.Fatal("expected error for 429")
	}
}

func TestAnthropicProvider_CompleteJSON_Prefill(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("anthropic-version") == "" {
			t.Error("missing anthropic-version header")
		}
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"\"passengers\":3}"}]}`))
	}))
	defer srv.Close()

	p := NewAnthropicProvider("test-key", "claude-3-5-haiku-20241022", 400, 5*time.Second, zap.NewNop()).WithBaseURL(srv.URL)
	got, err := p.CompleteJSON(context.Background(), &JSONRequest{User: "three"})
	if err != nil {
		t.Fatalf("CompleteJSON() error = %v", err)
	}
	if got != `{"passengers":3}` {
		t.Errorf("CompleteJSON() = %s", got)
	}
}
