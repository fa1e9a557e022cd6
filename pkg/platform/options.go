package platform

import (
	"database/sql"
	"log/slog"
	"net/http"

	goredis "github.com/redis/go-redis/v9"

	"github.com/txn2/sam/pkg/credential"
	"github.com/txn2/sam/pkg/intent"
	"github.com/txn2/sam/pkg/interaction"
	"github.com/txn2/sam/pkg/speech"
	"github.com/txn2/sam/pkg/turnctx"
)

// Options configures the platform. Every component left nil is built from
// Config.
type Options struct {
	// Config is the platform configuration.
	Config *Config

	Logger *slog.Logger

	// DB is used instead of opening database.dsn. The caller keeps
	// ownership and closes it.
	DB *sql.DB

	// RedisClient is used for the redis turn context provider. The caller
	// keeps ownership and closes it.
	RedisClient goredis.UniversalClient

	TurnStore        turnctx.Store
	Accounts         credential.Repository
	Oracle           intent.Oracle
	Synthesizer      speech.Synthesizer
	InteractionStore interaction.Store

	// HTTPClient is used for OAuth token refresh requests.
	HTTPClient *http.Client
}

// Option is a functional option for configuring the platform.
type Option func(*Options)

// WithConfig sets the configuration.
func WithConfig(cfg *Config) Option {
	return func(o *Options) {
		o.Config = cfg
	}
}

// WithLogger sets the logger handed to every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithDB sets the database connection.
func WithDB(db *sql.DB) Option {
	return func(o *Options) {
		o.DB = db
	}
}

// WithRedisClient sets the Redis client.
func WithRedisClient(client goredis.UniversalClient) Option {
	return func(o *Options) {
		o.RedisClient = client
	}
}

// WithTurnStore sets the turn context store.
func WithTurnStore(store turnctx.Store) Option {
	return func(o *Options) {
		o.TurnStore = store
	}
}

// WithAccounts sets the credential repository.
func WithAccounts(repo credential.Repository) Option {
	return func(o *Options) {
		o.Accounts = repo
	}
}

// WithOracle sets the intent oracle.
func WithOracle(oracle intent.Oracle) Option {
	return func(o *Options) {
		o.Oracle = oracle
	}
}

// WithSynthesizer sets the speech synthesizer. It takes effect even when
// speech is disabled in Config.
func WithSynthesizer(synth speech.Synthesizer) Option {
	return func(o *Options) {
		o.Synthesizer = synth
	}
}

// WithInteractionStore sets the interaction store. It takes effect only when
// interactions are enabled in Config.
func WithInteractionStore(store interaction.Store) Option {
	return func(o *Options) {
		o.InteractionStore = store
	}
}

// WithHTTPClient sets the HTTP client for token refresh.
func WithHTTPClient(client *http.Client) Option {
	return func(o *Options) {
		o.HTTPClient = client
	}
}
