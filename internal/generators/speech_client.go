package generators

import (
	"context"
	"io"
	"log"

	"github.com/sashabaranov/go-openai"

	"zork-argento/server/internal/config"
)

// SpeechClient narrates step text through the OpenAI speech API. A nil
// return means synthesis failed; the listen affordance simply stays in
// its not-yet-generated state.
type SpeechClient struct {
	client *openai.Client
	model  string
	voice  string
	speed  float64
}

// NewSpeechClient creates a text-to-speech client
func NewSpeechClient(cfg config.OpenAIConfig) *SpeechClient {
	return &SpeechClient{
		client: openai.NewClient(cfg.APIKey),
		model:  cfg.Speech.Model,
		voice:  cfg.Speech.Voice,
		speed:  cfg.Speech.Speed,
	}
}

// Synthesize renders mp3 narration audio for the text.
func (c *SpeechClient) Synthesize(ctx context.Context, text string) []byte {
	if text == "" {
		return nil
	}

	resp, err := c.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(c.model),
		Input:          text,
		Voice:          openai.SpeechVoice(c.voice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
		Speed:          c.speed,
	})
	if err != nil {
		log.Printf("[speech] synthesis failed: %v", err)
		return nil
	}
	defer resp.Close()

	audio, err := io.ReadAll(resp)
	if err != nil {
		log.Printf("[speech] failed to read audio stream: %v", err)
		return nil
	}
	return audio
}
