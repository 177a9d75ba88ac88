package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

const modelsLabEndpoint = "https://modelslab.com/api/v6/realtime/text2img"

// ModelsLab implements image generation via the ModelsLab realtime text2img API.
type ModelsLab struct {
	apiKey         string
	endpoint       string
	width          int
	height         int
	negativePrompt string
	client         *http.Client
}

// NewModelsLab creates a ModelsLab provider.
func NewModelsLab(cfg Config) *ModelsLab {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = modelsLabEndpoint
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	width, height := cfg.Width, cfg.Height
	if width <= 0 {
		width = 512
	}
	if height <= 0 {
		height = 512
	}
	return &ModelsLab{
		apiKey:         cfg.ModelsLabAPIKey,
		endpoint:       endpoint,
		width:          width,
		height:         height,
		negativePrompt: cfg.NegativePrompt,
		client:         &http.Client{Timeout: timeout},
	}
}

// Name returns "modelslab".
func (p *ModelsLab) Name() string { return "modelslab" }

type modelsLabRequest struct {
	Key            string `json:"key"`
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
	Width          string `json:"width"`
	Height         string `json:"height"`
	Samples        string `json:"samples"`
	SafetyChecker  bool   `json:"safety_checker"`
	Base64         bool   `json:"base64"`
}

type modelsLabResponse struct {
	Status      string   `json:"status"`
	Output      []string `json:"output"`
	FutureLinks []string `json:"future_links"`
	Message     string   `json:"message"`

	// Some error responses spell the key this way.
	Messege string `json:"messege"`
}

// Generate renders one image and returns its hosted URL.
func (p *ModelsLab) Generate(ctx context.Context, prompt string) (*Image, error) {
	payload := modelsLabRequest{
		Key:            p.apiKey,
		Prompt:         prompt,
		NegativePrompt: p.negativePrompt,
		Width:          strconv.Itoa(p.width),
		Height:         strconv.Itoa(p.height),
		Samples:        "1",
		SafetyChecker:  true,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("modelslab: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("modelslab: creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("modelslab: API request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 256*1024))
	if err != nil {
		return nil, fmt.Errorf("modelslab: reading response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("modelslab: API returned %d: %s", resp.StatusCode, truncate(string(respBody), 300))
	}

	var result modelsLabResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("modelslab: parsing response: %w", err)
	}

	switch result.Status {
	case "error", "failed":
		msg := result.Message
		if msg == "" {
			msg = result.Messege
		}
		return nil, fmt.Errorf("modelslab: generation failed: %s", msg)
	}

	// Queued jobs are served from their future link once rendered.
	urls := result.Output
	if len(urls) == 0 {
		urls = result.FutureLinks
	}
	for _, u := range urls {
		if u != "" {
			return &Image{URL: u}, nil
		}
	}
	return nil, fmt.Errorf("modelslab: %w", ErrNoImage)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
