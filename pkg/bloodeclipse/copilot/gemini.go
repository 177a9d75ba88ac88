// Package copilot – gemini.go implements Completer on the Gemini API via the
// genai SDK.
package copilot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"
)

const (
	defaultGeminiModel = "gemini-2.5-flash"

	// minProThinkingBudget is the smallest budget 2.5 Pro accepts; it cannot
	// turn thinking off.
	minProThinkingBudget = 128
)

// GeminiClient generates completions with a Gemini model.
type GeminiClient struct {
	client      *genai.Client
	model       string
	maxTokens   int32
	temperature float32
	topP        float32
	thinking    *genai.ThinkingConfig
	timeout     time.Duration
	logger      *slog.Logger
}

// NewGeminiClient creates a Gemini completer. A model name that belongs to
// another vendor (the default "gpt-4o-mini") is replaced by the Gemini default.
func NewGeminiClient(ctx context.Context, cfg CompletionConfig, logger *slog.Logger) (*GeminiClient, error) {
	cc := &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.GeminiBaseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.GeminiBaseURL
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: creating client: %w", err)
	}
	return NewGeminiClientFromClient(client, cfg, logger), nil
}

// NewGeminiClientFromClient wraps an existing genai client.
func NewGeminiClientFromClient(client *genai.Client, cfg CompletionConfig, logger *slog.Logger) *GeminiClient {
	if logger == nil {
		logger = slog.Default()
	}
	model := cfg.Model
	if model == "" || !strings.HasPrefix(model, "gemini") {
		model = defaultGeminiModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &GeminiClient{
		client:      client,
		model:       model,
		maxTokens:   int32(cfg.MaxTokens),
		temperature: float32(cfg.Temperature),
		topP:        float32(cfg.TopP),
		thinking:    thinkingConfig(model, cfg.GeminiThinkingBudget),
		timeout:     timeout,
		logger:      logger.With("component", "gemini"),
	}
}

// Complete generates a reply to userContent under systemPrompt.
func (g *GeminiClient) Complete(ctx context.Context, systemPrompt, userContent string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	temperature, topP := g.temperature, g.topP
	config := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		TopP:            &topP,
		MaxOutputTokens: g.maxTokens,
		ThinkingConfig:  g.thinking,
	}
	if systemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(userContent), config)
	if err != nil {
		return "", fmt.Errorf("gemini: generate: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		var finish genai.FinishReason
		if len(resp.Candidates) > 0 && resp.Candidates[0] != nil {
			finish = resp.Candidates[0].FinishReason
		}
		g.logger.Warn("gemini returned no text", "model", g.model, "finish_reason", finish)
		return "", ErrEmptyCompletion
	}

	g.logger.Info("gemini completion done",
		"model", g.model,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return text, nil
}

// thinkingConfig bounds thinking on 2.5 models so it cannot use up the
// output budget. Other models get no thinking config.
func thinkingConfig(model string, budget int) *genai.ThinkingConfig {
	if !strings.Contains(model, "2.5") {
		return nil
	}
	if budget < 0 {
		budget = 0
	}
	if strings.Contains(model, "pro") && budget < minProThinkingBudget {
		budget = minProThinkingBudget
	}
	return &genai.ThinkingConfig{ThinkingBudget: genai.Ptr(int32(budget))}
}
