package generators

import (
	"context"
	"log"

	"github.com/sashabaranov/go-openai"

	"zork-argento/server/internal/config"
	"zork-argento/server/internal/interfaces"
)

// promptSuffix steers every illustration toward the game's house style.
const promptSuffix = ". Fantasy illustration, cinematic, high detail, atmospheric, dramatic lighting, digital art style."

// ImageClient renders step illustrations through the OpenAI images API.
// Failures yield nil results, never errors: image generation is an
// optional leg of the turn and must not disturb the narrative flow.
type ImageClient struct {
	client  *openai.Client
	model   string
	size    string
	quality string
}

// NewImageClient creates an image generation client
func NewImageClient(cfg config.OpenAIConfig) *ImageClient {
	return &ImageClient{
		client:  openai.NewClient(cfg.APIKey),
		model:   cfg.Image.Model,
		size:    cfg.Image.Size,
		quality: cfg.Image.Quality,
	}
}

// Generate renders a single image for the prompt and returns its inline
// encoded bytes, or nil when the service fails or returns no data.
func (c *ImageClient) Generate(ctx context.Context, prompt string) *interfaces.ImageResult {
	resp, err := c.client.CreateImage(ctx, openai.ImageRequest{
		Model:          c.model,
		Prompt:         prompt + promptSuffix,
		N:              1,
		Size:           c.size,
		Quality:        c.quality,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		log.Printf("[image] generation failed: %v", err)
		return nil
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		log.Printf("[image] no image data in response")
		return nil
	}
	return &interfaces.ImageResult{Base64: resp.Data[0].B64JSON}
}
