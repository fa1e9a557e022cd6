// Package openai implements intent.Oracle on the OpenAI Chat Completions API.
package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/txn2/sam/pkg/intent"
)

// Default settings.
const (
	DefaultModel       = openai.ChatModelGPT4oMini
	DefaultTemperature = 0.2
	DefaultMaxTokens   = 512
)

// Config configures the OpenAI oracle.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int64
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Temperature == 0 {
		c.Temperature = DefaultTemperature
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	return c
}

// Oracle resolves intents with an OpenAI chat model.
type Oracle struct {
	client *openai.Client
	cfg    Config
}

// New creates an Oracle with its own client.
func New(cfg Config, opts ...option.RequestOption) *Oracle {
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

// NewFromClient creates an Oracle from an existing client.
func NewFromClient(client *openai.Client, cfg Config) *Oracle {
	return &Oracle{client: client, cfg: cfg.withDefaults()}
}

// Resolve implements intent.Oracle.
func (o *Oracle) Resolve(ctx context.Context, prompt string, actionNames []string) (*intent.Resolution, error) {
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(intent.SystemPrompt(actionNames)),
			openai.UserMessage(prompt),
		},
		Model:               o.cfg.Model,
		Temperature:         openai.Float(o.cfg.Temperature),
		MaxCompletionTokens: openai.Int(o.cfg.MaxTokens),
	})
	if err != nil {
		return nil, fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai: no choices returned")
	}
	return intent.ParseResolution(resp.Choices[0].Message.Content)
}

var _ intent.Oracle = (*Oracle)(nil)
