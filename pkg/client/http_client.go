package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/troikatech/cab-voice-agent/pkg/circuitbreaker"
	"github.com/troikatech/cab-voice-agent/pkg/metrics"
	"github.com/troikatech/cab-voice-agent/pkg/retry"
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Status, e.Body)
}

// HTTPClient wraps http.Client with retry, circuit breaker, metrics and a
// client span per call.
type HTTPClient struct {
	client         *http.Client
	circuitBreaker *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
	serviceName    string
	headers        map[string]string
}

func NewHTTPClient(serviceName string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client:         &http.Client{Timeout: timeout},
		circuitBreaker: circuitbreaker.New(circuitbreaker.DefaultConfig()),
		retryConfig:    retry.DefaultConfig(),
		serviceName:    serviceName,
		headers:        map[string]string{},
	}
}

// WithHeader sets a header sent on every request.
func (c *HTTPClient) WithHeader(key, value string) *HTTPClient {
	c.headers[key] = value
	return c
}

// WithRetry overrides the retry policy.
func (c *HTTPClient) WithRetry(cfg retry.Config) *HTTPClient {
	c.retryConfig = cfg
	return c
}

// PostJSON sends body as JSON and decodes a 2xx JSON response into out.
// 5xx responses and transport errors are retried; 4xx are not.
func (c *HTTPClient) PostJSON(ctx context.Context, url string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return c.do(ctx, http.MethodPost, url, payload, out)
}

// GetJSON performs a GET and decodes a 2xx JSON response into out.
func (c *HTTPClient) GetJSON(ctx context.Context, url string, out interface{}) error {
	return c.do(ctx, http.MethodGet, url, nil, out)
}

func (c *HTTPClient) do(ctx context.Context, method, url string, payload []byte, out interface{}) error {
	start := time.Now()
	ctx, span := otel.Tracer("collaborators").Start(ctx, c.serviceName+" "+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("peer.service", c.serviceName),
			attribute.String("http.method", method),
		),
	)
	defer span.End()

	err := c.circuitBreaker.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			var reader io.Reader
			if payload != nil {
				reader = bytes.NewReader(payload)
			}
			req, err := http.NewRequestWithContext(ctx, method, url, reader)
			if err != nil {
				return retry.Permanent(err)
			}
			if payload != nil {
				req.Header.Set("Content-Type", "application/json")
			}
			req.Header.Set("Accept", "application/json")
			for k, v := range c.headers {
				req.Header.Set(k, v)
			}

			resp, err := c.client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode >= 300 {
				snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
				statusErr := &StatusError{Status: resp.StatusCode, Body: string(snippet)}
				if resp.StatusCode >= 500 {
					return statusErr
				}
				return retry.Permanent(statusErr)
			}
			if out == nil {
				return nil
			}
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return retry.Permanent(fmt.Errorf("decode response: %w", err))
			}
			return nil
		})
	})

	metrics.RecordServiceCall(c.serviceName, err == nil, time.Since(start))
	metrics.UpdateCircuitBreaker(c.serviceName, c.circuitBreaker.GetState().String(), int64(c.circuitBreaker.Failures()))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
