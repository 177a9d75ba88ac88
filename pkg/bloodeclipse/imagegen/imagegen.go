// Package imagegen provides text-to-image generation for BloodEclipse.
// Supports two providers: ModelsLab (HTTP text2img API returning a hosted
// asset URL) and Google Imagen through the genai SDK (returning raw bytes).
package imagegen

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Image is a generated image: either a hosted URL or raw bytes.
type Image struct {
	URL      string
	Data     []byte
	MimeType string
}

// Provider is the interface for image generation backends.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// Generate renders a single image for the prompt.
	Generate(ctx context.Context, prompt string) (*Image, error)
}

// Config configures image generation.
type Config struct {
	// Provider selects the backend: "modelslab" or "gemini".
	Provider string `yaml:"provider"`

	// Model overrides the provider's default model.
	Model string `yaml:"model"`

	// Width and Height of the generated image (ModelsLab only).
	Width  int `yaml:"width"`
	Height int `yaml:"height"`

	// NegativePrompt steers ModelsLab away from unwanted content.
	NegativePrompt string `yaml:"negative_prompt"`

	// Timeout bounds a single generation call.
	Timeout time.Duration `yaml:"timeout"`

	// Endpoint overrides the provider's default URL.
	Endpoint string `yaml:"endpoint"`

	// ModelsLabAPIKey authenticates the ModelsLab API.
	ModelsLabAPIKey string `yaml:"modelslab_api_key"`

	// GeminiAPIKey authenticates the Gemini API (Imagen).
	GeminiAPIKey string `yaml:"gemini_api_key"`
}

// DefaultConfig returns the default image configuration.
func DefaultConfig() Config {
	return Config{
		Provider:       "modelslab",
		Width:          512,
		Height:         512,
		NegativePrompt: "blurry, low quality, watermark, text",
		Timeout:        90 * time.Second,
	}
}

// Errors.
var (
	ErrUnknownProvider = errors.New("unknown image provider")
	ErrMissingKey      = errors.New("image provider credentials are missing")
	ErrNoImage         = errors.New("provider returned no image")
)

// New builds the provider selected by cfg.Provider.
func New(ctx context.Context, cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "", "modelslab":
		if cfg.ModelsLabAPIKey == "" {
			return nil, fmt.Errorf("modelslab: %w", ErrMissingKey)
		}
		return NewModelsLab(cfg), nil
	case "gemini", "imagen":
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("imagen: %w", ErrMissingKey)
		}
		return NewImagen(ctx, cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}
