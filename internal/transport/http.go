package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/llmwebagent/agent/internal/logging"
)

// HTTPTransport talks to an OpenAI-chat-completion-compatible endpoint
// (spec.md §6). Stateless and always available; the fallback leg of
// the hybrid pool, grounded on ai/providers/openai/client.go's
// request/retry shape.
type HTTPTransport struct {
	client  *http.Client
	baseURL string
	apiKey  string
	logger  logging.Logger

	maxRetries int
	retryDelay time.Duration
}

// NewHTTPTransport builds an HTTPTransport with a per-request timeout.
func NewHTTPTransport(baseURL, apiKey string, timeout time.Duration, logger logging.Logger) *HTTPTransport {
	if logger == nil {
		logger = logging.NoOp{}
	}
	return &HTTPTransport{
		client:     &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
		logger:     logger,
		maxRetries: 3,
		retryDelay: time.Second,
	}
}

func (t *HTTPTransport) Name() string { return "http" }

type chatCompletionRequest struct {
	Model       string          `json:"model"`
	Messages    []chatMessage   `json:"messages"`
	Temperature float32         `json:"temperature,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (t *HTTPTransport) buildRequest(ctx context.Context, req Request) (*http.Request, error) {
	var messages []chatMessage
	if req.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	body := chatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("transport: marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("transport: building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if t.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+t.apiKey)
	}
	return httpReq, nil
}

// Complete performs a single call with exponential-backoff retry on
// 429/5xx responses and network errors, grounded on
// providers.BaseClient.ExecuteWithRetry.
func (t *HTTPTransport) Complete(ctx context.Context, req Request) (Response, error) {
	httpReq, err := t.buildRequest(ctx, req)
	if err != nil {
		return Response{}, err
	}

	resp, err := t.executeWithRetry(ctx, httpReq)
	if err != nil {
		return Response{}, classifyError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("transport: reading response: %w", ErrParse)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return Response{}, ErrRateLimit
	}
	if resp.StatusCode >= 400 {
		return Response{}, fmt.Errorf("transport: http status %d: %w", resp.StatusCode, ErrDisconnected)
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Response{}, fmt.Errorf("transport: %w: %v", ErrParse, err)
	}
	if len(parsed.Choices) == 0 {
		return Response{}, fmt.Errorf("transport: %w: empty choices", ErrParse)
	}

	return Response{Content: parsed.Choices[0].Message.Content, Provider: t.Name()}, nil
}

// Stream performs one request and delivers the full content as a
// single terminal chunk; true incremental SSE parsing is not wired to
// plan delivery in this engine (spec.md §11 Open Questions).
func (t *HTTPTransport) Stream(ctx context.Context, req Request) (<-chan Chunk, error) {
	ch := make(chan Chunk, 1)
	resp, err := t.Complete(ctx, req)
	if err != nil {
		close(ch)
		return ch, err
	}
	ch <- Chunk{Delta: resp.Content, Done: true}
	close(ch)
	return ch, nil
}

func (t *HTTPTransport) executeWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= t.maxRetries; attempt++ {
		clone := req.Clone(ctx)
		resp, err := t.client.Do(clone)
		if err == nil && resp.StatusCode < 400 {
			return resp, nil
		}
		if err == nil && resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}

		if err != nil {
			lastErr = err
		} else if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = ErrRateLimit
			resp.Body.Close()
		} else {
			lastErr = fmt.Errorf("transport: server error: status %d", resp.StatusCode)
			resp.Body.Close()
		}

		if attempt < t.maxRetries {
			shift := attempt
			if shift > 30 {
				shift = 30
			}
			delay := t.retryDelay * time.Duration(int64(1)<<uint(shift))
			t.logger.Debug("retrying http transport request", map[string]interface{}{
				"attempt": attempt + 1,
				"delay":   delay.String(),
				"error":   lastErr.Error(),
			})
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, fmt.Errorf("transport: request failed after %d retries: %w", t.maxRetries, lastErr)
}
