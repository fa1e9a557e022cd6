// Package platform assembles the engine from configuration: stores, credential
// handling, the action registry, intent and speech backends, and the turn
// manager.
package platform

import (
	"fmt"
	"maps"
	"os"
	"regexp"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/txn2/sam/pkg/action"
	"github.com/txn2/sam/pkg/credential"
	"github.com/txn2/sam/pkg/turnctx"
)

// Provider names accepted in configuration.
const (
	ProviderMemory    = "memory"
	ProviderRedis     = "redis"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config holds the complete engine configuration.
type Config struct {
	AppName      string                    `yaml:"app_name"`
	Logging      LoggingConfig             `yaml:"logging"`
	Dialog       DialogConfig              `yaml:"dialog"`
	TurnContext  TurnContextConfig         `yaml:"turn_context"`
	Database     DatabaseConfig            `yaml:"database"`
	Credentials  CredentialsConfig         `yaml:"credentials"`
	Platforms    map[string]PlatformConfig `yaml:"platforms"`
	NLU          NLUConfig                 `yaml:"nlu"`
	Speech       SpeechConfig              `yaml:"speech"`
	Interactions InteractionsConfig        `yaml:"interactions"`
}

// LoggingConfig configures the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// DialogConfig configures turn processing.
type DialogConfig struct {
	HistoryCapacity  int           `yaml:"history_capacity"`
	SessionTTL       time.Duration `yaml:"session_ttl"`
	NLUTimeout       time.Duration `yaml:"nlu_timeout"`
	ActionTimeout    time.Duration `yaml:"action_timeout"`
	SynthesisTimeout time.Duration `yaml:"synthesis_timeout"`
}

// TurnContextConfig selects the turn context store.
type TurnContextConfig struct {
	Provider        string        `yaml:"provider"` // memory, redis
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	Redis           RedisConfig   `yaml:"redis"`
}

// RedisConfig configures the Redis client.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`

	// LockTTL expires a session lock whose holder died mid-turn.
	LockTTL time.Duration `yaml:"lock_ttl"`
}

// DatabaseConfig configures the database connection.
type DatabaseConfig struct {
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// CredentialsConfig configures token handling.
type CredentialsConfig struct {
	RefreshBuffer  time.Duration `yaml:"refresh_buffer"`
	RefreshTimeout time.Duration `yaml:"refresh_timeout"`
	EncryptionKey  string        `yaml:"encryption_key"` // base64, 32 bytes
}

// PlatformConfig configures one streaming platform.
type PlatformConfig struct {
	// Widget marks a platform played through an embedded client player
	// that needs no linked account.
	Widget bool `yaml:"widget"`

	TokenURL     string `yaml:"token_url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`

	// Capabilities overrides the built-in capability set per capability.
	Capabilities map[string]bool `yaml:"capabilities"`
}

// NLUConfig configures the intent oracle.
type NLUConfig struct {
	Provider    string  `yaml:"provider"` // openai, anthropic
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int64   `yaml:"max_tokens"`
}

// SpeechConfig configures reply synthesis.
type SpeechConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Provider string `yaml:"provider"` // openai
	Model    string `yaml:"model"`
	Voice    string `yaml:"voice"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
}

// InteractionsConfig configures the interaction log.
type InteractionsConfig struct {
	Enabled       bool `yaml:"enabled"`
	BufferSize    int  `yaml:"buffer_size"`
	RetentionDays int  `yaml:"retention_days"`
}

// LoadConfig loads configuration from a file.
// The path is expected to come from command line arguments, controlled by the operator.
func LoadConfig(path string) (*Config, error) {
	// #nosec G304 -- path is from CLI args, controlled by operator
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML configuration, expanding ${VAR} references and
// applying defaults.
func ParseConfig(data []byte) (*Config, error) {
	data = []byte(expandEnvVars(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} patterns in the string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

// applyDefaults applies default values to the config.
func applyDefaults(cfg *Config) {
	if cfg.AppName == "" {
		cfg.AppName = "sam"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	applyDialogDefaults(&cfg.Dialog)
	if cfg.TurnContext.Provider == "" {
		cfg.TurnContext.Provider = ProviderMemory
	}
	if cfg.TurnContext.CleanupInterval == 0 {
		cfg.TurnContext.CleanupInterval = 5 * time.Minute
	}
	if cfg.TurnContext.Redis.Addr == "" {
		cfg.TurnContext.Redis.Addr = "localhost:6379"
	}
	if cfg.TurnContext.Redis.KeyPrefix == "" {
		cfg.TurnContext.Redis.KeyPrefix = cfg.AppName
	}
	if cfg.TurnContext.Redis.LockTTL == 0 {
		cfg.TurnContext.Redis.LockTTL = 2 * time.Minute
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Credentials.RefreshBuffer == 0 {
		cfg.Credentials.RefreshBuffer = credential.DefaultRefreshBuffer
	}
	if cfg.Credentials.RefreshTimeout == 0 {
		cfg.Credentials.RefreshTimeout = credential.DefaultRefreshTimeout
	}
	if cfg.NLU.Provider == "" {
		cfg.NLU.Provider = ProviderOpenAI
	}
	if cfg.Speech.Provider == "" {
		cfg.Speech.Provider = ProviderOpenAI
	}
	if cfg.Interactions.BufferSize == 0 {
		cfg.Interactions.BufferSize = 256
	}
	if cfg.Interactions.RetentionDays == 0 {
		cfg.Interactions.RetentionDays = 90
	}
}

func applyDialogDefaults(d *DialogConfig) {
	if d.HistoryCapacity == 0 {
		d.HistoryCapacity = turnctx.DefaultHistoryCapacity
	}
	if d.SessionTTL == 0 {
		d.SessionTTL = turnctx.DefaultTTL
	}
	if d.NLUTimeout == 0 {
		d.NLUTimeout = 15 * time.Second
	}
	if d.ActionTimeout == 0 {
		d.ActionTimeout = 10 * time.Second
	}
	if d.SynthesisTimeout == 0 {
		d.SynthesisTimeout = 20 * time.Second
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	if !slices.Contains([]string{"debug", "info", "warn", "error"}, c.Logging.Level) {
		errs = append(errs, fmt.Sprintf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level))
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		errs = append(errs, fmt.Sprintf("logging.format %q is not one of text, json", c.Logging.Format))
	}

	errs = append(errs, c.validateDialog()...)

	switch c.TurnContext.Provider {
	case ProviderMemory:
	case ProviderRedis:
		if c.TurnContext.Redis.Addr == "" {
			errs = append(errs, "turn_context.redis.addr is required for the redis provider")
		}
	default:
		errs = append(errs, fmt.Sprintf("turn_context.provider %q is not one of memory, redis", c.TurnContext.Provider))
	}

	if c.Credentials.EncryptionKey != "" {
		if _, err := credential.ParseKey(c.Credentials.EncryptionKey); err != nil {
			errs = append(errs, fmt.Sprintf("credentials.encryption_key: %v", err))
		}
	}

	errs = append(errs, c.validatePlatforms()...)

	if c.NLU.Provider != ProviderOpenAI && c.NLU.Provider != ProviderAnthropic {
		errs = append(errs, fmt.Sprintf("nlu.provider %q is not one of openai, anthropic", c.NLU.Provider))
	}
	if c.Speech.Enabled && c.Speech.Provider != ProviderOpenAI {
		errs = append(errs, fmt.Sprintf("speech.provider %q is not supported", c.Speech.Provider))
	}
	if c.Interactions.BufferSize < 0 {
		errs = append(errs, "interactions.buffer_size must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (c *Config) validateDialog() []string {
	var errs []string
	if c.Dialog.HistoryCapacity < 1 {
		errs = append(errs, "dialog.history_capacity must be at least 1")
	}
	durations := map[string]time.Duration{
		"dialog.session_ttl":       c.Dialog.SessionTTL,
		"dialog.nlu_timeout":       c.Dialog.NLUTimeout,
		"dialog.action_timeout":    c.Dialog.ActionTimeout,
		"dialog.synthesis_timeout": c.Dialog.SynthesisTimeout,
	}
	for _, name := range slices.Sorted(maps.Keys(durations)) {
		if durations[name] < 0 {
			errs = append(errs, name+" must not be negative")
		}
	}
	return errs
}

func (c *Config) validatePlatforms() []string {
	known := make(map[string]bool, len(action.AllCapabilities))
	for _, capability := range action.AllCapabilities {
		known[string(capability)] = true
	}

	var errs []string
	for _, name := range slices.Sorted(maps.Keys(c.Platforms)) {
		p := c.Platforms[name]
		if !p.Widget {
			if p.TokenURL == "" {
				errs = append(errs, fmt.Sprintf("platforms.%s.token_url is required", name))
			}
			if p.ClientID == "" {
				errs = append(errs, fmt.Sprintf("platforms.%s.client_id is required", name))
			}
		}
		for _, capability := range slices.Sorted(maps.Keys(p.Capabilities)) {
			if !known[capability] {
				errs = append(errs, fmt.Sprintf("platforms.%s.capabilities: unknown capability %q", name, capability))
			}
		}
	}
	return errs
}

// CapabilityOverrides converts the configured per-platform capability flags.
func (c *Config) CapabilityOverrides() action.StaticCapabilities {
	out := make(action.StaticCapabilities)
	for name, p := range c.Platforms {
		if len(p.Capabilities) == 0 {
			continue
		}
		caps := make(map[action.Capability]bool, len(p.Capabilities))
		for capability, on := range p.Capabilities {
			caps[action.Capability(capability)] = on
		}
		out[name] = caps
	}
	return out
}
