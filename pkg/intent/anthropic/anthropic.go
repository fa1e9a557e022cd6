// Package anthropic implements intent.Oracle on the Anthropic Messages API.
package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/txn2/sam/pkg/intent"
)

// Default settings.
const (
	DefaultModel       = anthropic.ModelClaude3_5Sonnet20241022
	DefaultTemperature = 0.2
	DefaultMaxTokens   = 512
)

// Config configures the Anthropic oracle.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int64
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = string(DefaultModel)
	}
	if c.Temperature == 0 {
		c.Temperature = DefaultTemperature
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	return c
}

// Oracle resolves intents with a Claude model.
type Oracle struct {
	client *anthropic.Client
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
	client := anthropic.NewClient(clientOpts...)
	return NewFromClient(&client, cfg)
}

// NewFromClient creates an Oracle from an existing client.
func NewFromClient(client *anthropic.Client, cfg Config) *Oracle {
	return &Oracle{client: client, cfg: cfg.withDefaults()}
}

// Resolve implements intent.Oracle.
func (o *Oracle) Resolve(ctx context.Context, prompt string, actionNames []string) (*intent.Resolution, error) {
	resp, err := o.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(o.cfg.Model),
		MaxTokens:   o.cfg.MaxTokens,
		Temperature: anthropic.Float(o.cfg.Temperature),
		System:      []anthropic.TextBlockParam{{Text: intent.SystemPrompt(actionNames)}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic api error: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.AsText().Text)
		}
	}
	return intent.ParseResolution(text.String())
}

var _ intent.Oracle = (*Oracle)(nil)
