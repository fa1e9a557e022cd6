package platform

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/sam/pkg/action"
)

const cfgTestFilePerms = 0o600

// writeTestConfig writes a YAML config to a temp dir and returns the path.
func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(content), cfgTestFilePerms))
	return configPath
}

// loadTestConfig writes YAML and loads it, failing on error.
func loadTestConfig(t *testing.T, content string) *Config {
	t.Helper()
	cfg, err := LoadConfig(writeTestConfig(t, content))
	require.NoError(t, err)
	return cfg
}

func TestLoadConfig_ValidFile(t *testing.T) {
	cfg := loadTestConfig(t, `
app_name: jukebox
logging:
  level: debug
  format: json
dialog:
  history_capacity: 4
  session_ttl: 30m
  nlu_timeout: 5s
turn_context:
  provider: redis
  redis:
    addr: redis:6379
    db: 2
platforms:
  spotify:
    token_url: https://accounts.spotify.com/api/token
    client_id: abc
    client_secret: def
  soundcloud:
    widget: true
    capabilities:
      playback_control: true
nlu:
  provider: anthropic
  model: claude-3-5-haiku-latest
speech:
  enabled: true
  voice: nova
interactions:
  enabled: true
`)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "jukebox", cfg.AppName)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 4, cfg.Dialog.HistoryCapacity)
	assert.Equal(t, 30*time.Minute, cfg.Dialog.SessionTTL)
	assert.Equal(t, 5*time.Second, cfg.Dialog.NLUTimeout)
	assert.Equal(t, ProviderRedis, cfg.TurnContext.Provider)
	assert.Equal(t, "redis:6379", cfg.TurnContext.Redis.Addr)
	assert.Equal(t, 2, cfg.TurnContext.Redis.DB)
	assert.Equal(t, "jukebox", cfg.TurnContext.Redis.KeyPrefix)
	assert.Equal(t, "abc", cfg.Platforms["spotify"].ClientID)
	assert.True(t, cfg.Platforms["soundcloud"].Widget)
	assert.Equal(t, ProviderAnthropic, cfg.NLU.Provider)
	assert.True(t, cfg.Speech.Enabled)
	assert.Equal(t, "nova", cfg.Speech.Voice)
	assert.True(t, cfg.Interactions.Enabled)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	_, err := LoadConfig(writeTestConfig(t, "dialog: [unterminated"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config")
}

func TestLoadConfig_EnvVarExpansion(t *testing.T) {
	t.Setenv("SAM_TEST_CLIENT_SECRET", "s3cret")
	t.Setenv("SAM_TEST_DSN", "postgres://localhost/sam")

	cfg := loadTestConfig(t, `
database:
  dsn: ${SAM_TEST_DSN}
platforms:
  spotify:
    token_url: https://example.com/token
    client_id: id
    client_secret: ${SAM_TEST_CLIENT_SECRET}
`)
	assert.Equal(t, "postgres://localhost/sam", cfg.Database.DSN)
	assert.Equal(t, "s3cret", cfg.Platforms["spotify"].ClientSecret)
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("SAM_TEST_VAR", "value")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"single", "${SAM_TEST_VAR}", "value"},
		{"embedded", "prefix-${SAM_TEST_VAR}-suffix", "prefix-value-suffix"},
		{"unset", "${SAM_TEST_UNSET_VAR}", ""},
		{"no vars", "plain", "plain"},
		{"bare dollar", "$SAM_TEST_VAR", "$SAM_TEST_VAR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, expandEnvVars(tt.input))
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)

	assert.Equal(t, "sam", cfg.AppName)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, 10, cfg.Dialog.HistoryCapacity)
	assert.Equal(t, time.Hour, cfg.Dialog.SessionTTL)
	assert.Equal(t, 15*time.Second, cfg.Dialog.NLUTimeout)
	assert.Equal(t, 10*time.Second, cfg.Dialog.ActionTimeout)
	assert.Equal(t, 20*time.Second, cfg.Dialog.SynthesisTimeout)
	assert.Equal(t, ProviderMemory, cfg.TurnContext.Provider)
	assert.Equal(t, 5*time.Minute, cfg.TurnContext.CleanupInterval)
	assert.Equal(t, "localhost:6379", cfg.TurnContext.Redis.Addr)
	assert.Equal(t, "sam", cfg.TurnContext.Redis.KeyPrefix)
	assert.Equal(t, 2*time.Minute, cfg.TurnContext.Redis.LockTTL)
	assert.Equal(t, 10, cfg.Database.MaxOpenConns)
	assert.Equal(t, 5*time.Minute, cfg.Credentials.RefreshBuffer)
	assert.Equal(t, 10*time.Second, cfg.Credentials.RefreshTimeout)
	assert.Equal(t, ProviderOpenAI, cfg.NLU.Provider)
	assert.Equal(t, ProviderOpenAI, cfg.Speech.Provider)
	assert.Equal(t, 256, cfg.Interactions.BufferSize)
	assert.Equal(t, 90, cfg.Interactions.RetentionDays)

	require.NoError(t, cfg.Validate())
}

func TestApplyDefaults_PreservesExisting(t *testing.T) {
	cfg := &Config{
		Dialog:   DialogConfig{HistoryCapacity: 3, ActionTimeout: time.Second},
		Database: DatabaseConfig{MaxOpenConns: 50},
		NLU:      NLUConfig{Provider: ProviderAnthropic},
	}
	applyDefaults(cfg)

	assert.Equal(t, 3, cfg.Dialog.HistoryCapacity)
	assert.Equal(t, time.Second, cfg.Dialog.ActionTimeout)
	assert.Equal(t, 50, cfg.Database.MaxOpenConns)
	assert.Equal(t, ProviderAnthropic, cfg.NLU.Provider)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr []string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "bad logging",
			mutate:  func(c *Config) { c.Logging.Level = "verbose"; c.Logging.Format = "xml" },
			wantErr: []string{"logging.level", "logging.format"},
		},
		{
			name:    "bad history capacity",
			mutate:  func(c *Config) { c.Dialog.HistoryCapacity = -1 },
			wantErr: []string{"dialog.history_capacity"},
		},
		{
			name:    "negative timeout",
			mutate:  func(c *Config) { c.Dialog.NLUTimeout = -time.Second },
			wantErr: []string{"dialog.nlu_timeout must not be negative"},
		},
		{
			name:    "unknown turn context provider",
			mutate:  func(c *Config) { c.TurnContext.Provider = "etcd" },
			wantErr: []string{"turn_context.provider"},
		},
		{
			name:    "redis without addr",
			mutate:  func(c *Config) { c.TurnContext.Provider = ProviderRedis; c.TurnContext.Redis.Addr = "" },
			wantErr: []string{"turn_context.redis.addr"},
		},
		{
			name:    "bad encryption key",
			mutate:  func(c *Config) { c.Credentials.EncryptionKey = "c2hvcnQ=" },
			wantErr: []string{"credentials.encryption_key"},
		},
		{
			name: "linked platform without oauth settings",
			mutate: func(c *Config) {
				c.Platforms = map[string]PlatformConfig{"spotify": {}}
			},
			wantErr: []string{"platforms.spotify.token_url", "platforms.spotify.client_id"},
		},
		{
			name: "widget platform needs no oauth settings",
			mutate: func(c *Config) {
				c.Platforms = map[string]PlatformConfig{"soundcloud": {Widget: true}}
			},
		},
		{
			name: "unknown capability",
			mutate: func(c *Config) {
				c.Platforms = map[string]PlatformConfig{"soundcloud": {
					Widget:       true,
					Capabilities: map[string]bool{"teleport": true},
				}}
			},
			wantErr: []string{`unknown capability "teleport"`},
		},
		{
			name:    "unknown nlu provider",
			mutate:  func(c *Config) { c.NLU.Provider = "gemini" },
			wantErr: []string{"nlu.provider"},
		},
		{
			name:    "unsupported speech provider when enabled",
			mutate:  func(c *Config) { c.Speech.Enabled = true; c.Speech.Provider = "polly" },
			wantErr: []string{"speech.provider"},
		},
		{
			name:   "speech provider ignored when disabled",
			mutate: func(c *Config) { c.Speech.Provider = "polly" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			applyDefaults(cfg)
			tt.mutate(cfg)

			err := cfg.Validate()
			if len(tt.wantErr) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, want := range tt.wantErr {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}

func TestConfigValidate_JoinsErrors(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	cfg.Logging.Level = "loud"
	cfg.NLU.Provider = "none"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config validation errors: ")
	assert.Contains(t, err.Error(), "; ")
}

func TestCapabilityOverrides(t *testing.T) {
	cfg := &Config{Platforms: map[string]PlatformConfig{
		"soundcloud": {Widget: true, Capabilities: map[string]bool{"playback_control": true, "search": false}},
		"spotify":    {TokenURL: "x", ClientID: "y"},
	}}

	overrides := cfg.CapabilityOverrides()
	require.Len(t, overrides, 1)
	assert.True(t, overrides["soundcloud"][action.CapPlaybackControl])
	assert.False(t, overrides["soundcloud"][action.CapSearch])

	merged := action.DefaultCapabilities().Merge(overrides)
	assert.True(t, merged.Supports("soundcloud", action.CapPlaybackControl))
	assert.False(t, merged.Supports("soundcloud", action.CapSearch))
	assert.True(t, merged.Supports("soundcloud", action.CapPlaylistManagement))
	assert.True(t, merged.Supports("spotify", action.CapSearch))
}
