package openaicompat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/flemzord/parserdesk/internal/provider"
)

// Client is a provider.Provider for a single OpenAI-compatible endpoint.
type Client struct {
	ep     Endpoint
	auth   *provider.AuthProfile
	http   *http.Client
	logger *slog.Logger
}

// NewClient creates a client for ep. auth supplies the bearer token and may
// be rotated by the chain; when nil, ep's first key is used.
func NewClient(ep Endpoint, auth *provider.AuthProfile, logger *slog.Logger) *Client {
	if logger == nil {
		logger = nopLogger()
	}
	return &Client{
		ep:   ep,
		auth: auth,
		// A global client timeout would kill long SSE streams; bound the
		// header wait instead and let the request context do the rest.
		http: &http.Client{
			Transport: &http.Transport{ResponseHeaderTimeout: ep.Timeout},
		},
		logger: logger.With("endpoint", ep.Name),
	}
}

// Complete implements provider.Provider.
func (c *Client) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	resp, err := c.post(ctx, buildRequest(c.ep, req, false))
	if err != nil {
		return provider.CompletionResponse{}, err
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close

	if resp.StatusCode != http.StatusOK {
		return provider.CompletionResponse{}, errorFromResponse(resp)
	}

	var body oaiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return provider.CompletionResponse{}, fmt.Errorf("decode response: %w", err)
	}
	return parseResponse(body), nil
}

// Stream implements provider.Provider.
func (c *Client) Stream(ctx context.Context, req provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
	resp, err := c.post(ctx, buildRequest(c.ep, req, true))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close() //nolint:errcheck // best-effort close
		return nil, errorFromResponse(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	out := make(chan provider.StreamChunk, 16)
	go func() {
		defer close(out)
		defer resp.Body.Close() //nolint:errcheck // best-effort close
		readSSE(ctx, scanner, func(chunk provider.StreamChunk) bool {
			select {
			case out <- chunk:
				return true
			case <-ctx.Done():
				return false
			}
		})
	}()
	return out, nil
}

// ContextWindowSize implements provider.Provider. Zero means "unknown";
// the token budgeter then falls back to its model table.
func (c *Client) ContextWindowSize() int { return c.ep.ContextWindow }

// ModelName implements provider.Provider.
func (c *Client) ModelName() string { return c.ep.Model }

// HealthCheck implements provider.HealthChecker by listing models.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ep.BaseURL+"/models", nil)
	if err != nil {
		return err
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: health check: %w", provider.ErrProviderDown, err)
	}
	defer resp.Body.Close()               //nolint:errcheck // best-effort close
	_, _ = io.Copy(io.Discard, resp.Body) // drain body

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: health check returned HTTP %d", provider.ErrProviderDown, resp.StatusCode)
	}
	return nil
}

func (c *Client) key() string {
	if c.auth != nil {
		return c.auth.CurrentKey()
	}
	if keys := c.ep.keys(); len(keys) > 0 {
		return keys[0]
	}
	return ""
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.key())
	for k, v := range c.ep.Headers {
		req.Header.Set(k, v)
	}
}

func (c *Client) post(ctx context.Context, body oaiRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.ep.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setHeaders(req)

	c.logger.Debug("chat completion request", "model", body.Model, "messages", len(body.Messages), "stream", body.Stream)

	resp, err := c.http.Do(req)
	if err != nil {
		// Caller cancellation is not a backend failure.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", provider.ErrProviderDown, err)
	}
	return resp, nil
}

const maxErrorBodySize = 4096

// errorFromResponse maps an HTTP error status to a provider sentinel.
func errorFromResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", provider.ErrRateLimit, body)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d: %s", provider.ErrAuthentication, resp.StatusCode, body)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: HTTP %d: %s", provider.ErrProviderDown, resp.StatusCode, body)
	case resp.StatusCode == http.StatusBadRequest && isContextLengthError(body):
		return fmt.Errorf("%w: %s", provider.ErrContextLength, body)
	default:
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
	}
}

func isContextLengthError(body []byte) bool {
	lower := strings.ToLower(string(body))
	for _, marker := range []string{"context_length_exceeded", "context length", "maximum context", "token limit"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// Compile-time interface assertions.
var (
	_ provider.Provider      = (*Client)(nil)
	_ provider.HealthChecker = (*Client)(nil)
)
