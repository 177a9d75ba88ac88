package imagegen

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

const defaultImagenModel = "imagen-3.0-generate-002"

// Imagen generates images with Google's Imagen models through the genai SDK.
type Imagen struct {
	client *genai.Client
	model  string
}

// NewImagen creates an Imagen provider backed by the Gemini API.
func NewImagen(ctx context.Context, cfg Config) (*Imagen, error) {
	cc := &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.Endpoint != "" {
		cc.HTTPOptions.BaseURL = cfg.Endpoint
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("imagen: creating client: %w", err)
	}
	return NewImagenFromClient(client, cfg.Model), nil
}

// NewImagenFromClient wraps an existing genai client.
func NewImagenFromClient(client *genai.Client, model string) *Imagen {
	if model == "" {
		model = defaultImagenModel
	}
	return &Imagen{client: client, model: model}
}

// Name returns "imagen".
func (p *Imagen) Name() string { return "imagen" }

// Generate renders one image and returns its bytes.
func (p *Imagen) Generate(ctx context.Context, prompt string) (*Image, error) {
	resp, err := p.client.Models.GenerateImages(ctx, p.model, prompt, &genai.GenerateImagesConfig{
		NumberOfImages: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("imagen: generate: %w", err)
	}

	for _, gen := range resp.GeneratedImages {
		if gen == nil || gen.Image == nil || len(gen.Image.ImageBytes) == 0 {
			continue
		}
		mime := gen.Image.MIMEType
		if mime == "" {
			mime = "image/png"
		}
		return &Image{Data: gen.Image.ImageBytes, MimeType: mime}, nil
	}
	return nil, fmt.Errorf("imagen: %w", ErrNoImage)
}
