// Package copilot – llm.go implements the chat-completion client.
// Uses the OpenAI-compatible API format, which works with OpenRouter, OpenAI
// and any compatible endpoint.
package copilot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Completer is a chat-completion backend. A non-nil error means no usable
// text was produced; callers substitute their own fallback reply.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userContent string) (string, error)
}

// ErrEmptyCompletion is returned when the model replied without content.
var ErrEmptyCompletion = errors.New("completion returned no content")

// LLMClient handles communication with an OpenAI-compatible provider API.
type LLMClient struct {
	baseURL     string
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	topP        float64
	maxRetries  int
	referer     string
	title       string

	initialBackoff time.Duration
	maxBackoff     time.Duration

	httpClient *http.Client
	logger     *slog.Logger
}

// NewLLMClient creates a new LLM client from config.
func NewLLMClient(cfg CompletionConfig, logger *slog.Logger) *LLMClient {
	if logger == nil {
		logger = slog.Default()
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	return &LLMClient{
		baseURL:        strings.TrimRight(baseURL, "/"),
		apiKey:         cfg.APIKey,
		model:          cfg.Model,
		maxTokens:      cfg.MaxTokens,
		temperature:    cfg.Temperature,
		topP:           cfg.TopP,
		maxRetries:     maxRetries,
		referer:        cfg.Referer,
		title:          cfg.Title,
		initialBackoff: time.Second,
		maxBackoff:     10 * time.Second,
		httpClient:     &http.Client{Timeout: timeout},
		logger:         logger.With("component", "llm"),
	}
}

// chatMessage represents a message in the OpenAI chat format.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest is the OpenAI-compatible chat completions request.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
	TopP        float64       `json:"top_p"`
}

// chatResponse is the OpenAI-compatible chat completions response. Older
// completion endpoints put the text in choices[].text or a top-level output.
type chatResponse struct {
	Choices []struct {
		Message *struct {
			Content string `json:"content"`
		} `json:"message"`
		Text         string `json:"text"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Output json.RawMessage `json:"output"`
	Usage  struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// content extracts the reply text: message content, then choice text, then
// the top-level output.
func (r *chatResponse) content() string {
	if len(r.Choices) > 0 {
		c := r.Choices[0]
		if c.Message != nil && strings.TrimSpace(c.Message.Content) != "" {
			return strings.TrimSpace(c.Message.Content)
		}
		if strings.TrimSpace(c.Text) != "" {
			return strings.TrimSpace(c.Text)
		}
	}
	if len(r.Output) > 0 {
		var s string
		if err := json.Unmarshal(r.Output, &s); err == nil {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// LLMErrorKind classifies API errors for retry decisions.
type LLMErrorKind int

const (
	LLMErrorRetryable  LLMErrorKind = iota // generic retryable (transient 5xx, network)
	LLMErrorRateLimit                      // 429, should respect Retry-After
	LLMErrorOverloaded                     // 529 or "overloaded" in body
	LLMErrorTimeout                        // request timeout
	LLMErrorAuth                           // 401, 403
	LLMErrorBilling                        // 402 or billing-related in body
	LLMErrorContext                        // context_length_exceeded
	LLMErrorBadRequest                     // 400
	LLMErrorFatal                          // everything else
)

var llmErrorKindNames = [...]string{
	LLMErrorRetryable:  "retryable",
	LLMErrorRateLimit:  "rate_limit",
	LLMErrorOverloaded: "overloaded",
	LLMErrorTimeout:    "timeout",
	LLMErrorAuth:       "auth",
	LLMErrorBilling:    "billing",
	LLMErrorContext:    "context",
	LLMErrorBadRequest: "bad_request",
	LLMErrorFatal:      "fatal",
}

func (k LLMErrorKind) String() string {
	if k < 0 || int(k) >= len(llmErrorKindNames) {
		return "unknown"
	}
	return llmErrorKindNames[k]
}

// Retryable reports whether another attempt may succeed.
func (k LLMErrorKind) Retryable() bool {
	switch k {
	case LLMErrorRetryable, LLMErrorRateLimit, LLMErrorOverloaded, LLMErrorTimeout:
		return true
	}
	return false
}

// apiError captures HTTP status, body, and optional Retry-After for 429.
type apiError struct {
	statusCode    int
	body          string
	retryAfterSec int
}

func (e *apiError) Error() string {
	return fmt.Sprintf("API returned %d: %s", e.statusCode, clip(e.body, 200))
}

// classifyAPIError determines the error kind from status code and response body.
func classifyAPIError(statusCode int, body string) LLMErrorKind {
	bodyLower := strings.ToLower(body)

	if strings.Contains(bodyLower, "context_length_exceeded") ||
		strings.Contains(bodyLower, "maximum context length") {
		return LLMErrorContext
	}

	if statusCode == 402 ||
		strings.Contains(bodyLower, "billing") ||
		strings.Contains(bodyLower, "insufficient_quota") ||
		strings.Contains(bodyLower, "payment required") ||
		strings.Contains(bodyLower, "insufficient credits") {
		return LLMErrorBilling
	}

	if statusCode == 429 ||
		strings.Contains(bodyLower, "rate_limit") ||
		strings.Contains(bodyLower, "rate limit") ||
		strings.Contains(bodyLower, "too many requests") {
		return LLMErrorRateLimit
	}

	if statusCode == 529 ||
		strings.Contains(bodyLower, "overloaded") ||
		strings.Contains(bodyLower, "capacity") {
		return LLMErrorOverloaded
	}

	if statusCode == 408 ||
		strings.Contains(bodyLower, "timeout") ||
		strings.Contains(bodyLower, "timed out") {
		return LLMErrorTimeout
	}

	switch statusCode {
	case 400:
		return LLMErrorBadRequest
	case 401, 403:
		return LLMErrorAuth
	default:
		if statusCode >= 500 {
			return LLMErrorRetryable
		}
		return LLMErrorFatal
	}
}

// classifyError classifies any error returned by a single attempt.
func classifyError(err error) LLMErrorKind {
	var apierr *apiError
	if errors.As(err, &apierr) {
		return classifyAPIError(apierr.statusCode, apierr.body)
	}
	if errors.Is(err, ErrEmptyCompletion) {
		return LLMErrorFatal
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return LLMErrorTimeout
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return LLMErrorFatal
	}
	// Connection resets, DNS hiccups and the like.
	return LLMErrorRetryable
}

// Complete sends a system + user chat completion and returns the trimmed
// text. Retryable failures are retried up to maxRetries times with
// exponential backoff and jitter.
func (c *LLMClient) Complete(ctx context.Context, systemPrompt, userContent string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("API key not configured. Run 'bloodeclipse setup' or set OPENROUTER_API_KEY")
	}

	messages := make([]chatMessage, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: userContent})

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		text, err := c.completeOnce(ctx, messages)
		if err == nil {
			return text, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return "", fmt.Errorf("completion cancelled: %w", ctx.Err())
		}

		kind := classifyError(err)
		if !kind.Retryable() {
			c.logger.Warn("completion failed", "model", c.model,
				"attempt", attempt+1, "kind", kind.String(), "error", err)
			return "", err
		}
		if attempt >= c.maxRetries {
			break
		}

		wait := c.backoff(attempt, err)
		c.logger.Info("completion failed, retrying", "model", c.model,
			"attempt", attempt+1, "kind", kind.String(),
			"backoff_ms", wait.Milliseconds(), "error", err)

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("context cancelled during backoff: %w", ctx.Err())
		case <-time.After(wait):
		}
	}

	return "", fmt.Errorf("retries exhausted: %w", lastErr)
}

// backoff returns min(initial * 2^attempt, max) plus up to 20% jitter, or the
// server's Retry-After when that is longer.
func (c *LLMClient) backoff(attempt int, err error) time.Duration {
	base := c.initialBackoff
	for i := 0; i < attempt; i++ {
		base *= 2
		if base > c.maxBackoff {
			base = c.maxBackoff
			break
		}
	}
	wait := base + time.Duration(rand.Float64()*0.2*float64(base))

	var apierr *apiError
	if errors.As(err, &apierr) && apierr.retryAfterSec > 0 {
		serverDelay := time.Duration(apierr.retryAfterSec) * time.Second
		if serverDelay > c.maxBackoff {
			serverDelay = c.maxBackoff
		}
		if serverDelay > wait {
			wait = serverDelay
		}
	}
	return wait
}

// completeOnce performs a single chat completion request.
func (c *LLMClient) completeOnce(ctx context.Context, messages []chatMessage) (string, error) {
	bodyBytes, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		TopP:        c.topP,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	endpoint := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if c.referer != "" {
		req.Header.Set("HTTP-Referer", c.referer)
	}
	if c.title != "" {
		req.Header.Set("X-Title", c.title)
	}

	c.logger.Debug("chat completion request", "model", c.model, "endpoint", endpoint)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}
	bodyStr := string(respBody)

	if resp.StatusCode/100 != 2 {
		apierr := &apiError{statusCode: resp.StatusCode, body: bodyStr}
		if resp.StatusCode == http.StatusTooManyRequests {
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if sec, err := strconv.Atoi(ra); err == nil && sec > 0 {
					apierr.retryAfterSec = sec
				}
			}
		}
		c.logger.Debug("completion API error", "status", resp.StatusCode, "body", clip(bodyStr, 500))
		return "", apierr
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", fmt.Errorf("parsing response: %w", err)
	}

	// Some gateways report upstream failures inside a 200 body.
	if chatResp.Error != nil {
		status := http.StatusBadGateway
		if code, ok := chatResp.Error.Code.(float64); ok && code >= 400 {
			status = int(code)
		}
		return "", &apiError{statusCode: status, body: chatResp.Error.Message}
	}

	content := chatResp.content()
	if content == "" {
		return "", ErrEmptyCompletion
	}

	finish := ""
	if len(chatResp.Choices) > 0 {
		finish = chatResp.Choices[0].FinishReason
	}
	c.logger.Info("chat completion done", "model", c.model,
		"duration_ms", time.Since(start).Milliseconds(),
		"tokens_in", chatResp.Usage.PromptTokens,
		"tokens_out", chatResp.Usage.CompletionTokens,
		"finish_reason", finish)

	return content, nil
}

// clip shortens s to at most n bytes for logs and error messages.
func clip(s string, n int) string {
	if len(s) > n {
		s = s[:n] + "..."
	}
	return s
}
