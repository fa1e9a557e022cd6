// Package openai implements speech.Synthesizer on the OpenAI audio API.
package openai

import (
	"context"
	"fmt"
	"io"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/txn2/sam/pkg/speech"
)

// Default settings.
const (
	DefaultModel = "tts-1"
	DefaultVoice = "alloy"
)

// Config configures the synthesizer.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Voice   string
}

// Synthesizer produces MP3 audio with an OpenAI TTS model.
type Synthesizer struct {
	client *openai.Client
	model  string
	voice  string
}

// New creates a Synthesizer with its own client.
func New(cfg Config, opts ...option.RequestOption) *Synthesizer {
	// Failed calls surface to the caller; the SDK default retries twice.
	clientOpts := []option.RequestOption{option.WithMaxRetries(0)}
	if cfg.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.BaseURL))
	}
	clientOpts = append(clientOpts, opts...)
	client := openai.NewClient(clientOpts...)
	return NewFromClient(&client, cfg)
}

// NewFromClient creates a Synthesizer from an existing client.
func NewFromClient(client *openai.Client, cfg Config) *Synthesizer {
	s := &Synthesizer{client: client, model: cfg.Model, voice: cfg.Voice}
	if s.model == "" {
		s.model = DefaultModel
	}
	if s.voice == "" {
		s.voice = DefaultVoice
	}
	return s
}

// Synthesize implements speech.Synthesizer.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	resp, err := s.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Input:          text,
		Model:          openai.SpeechModel(s.model),
		Voice:          openai.AudioSpeechNewParamsVoice(s.voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
	})
	if err != nil {
		return nil, fmt.Errorf("openai speech error: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading speech audio: %w", err)
	}
	return audio, nil
}

var _ speech.Synthesizer = (*Synthesizer)(nil)
