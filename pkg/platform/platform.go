package platform

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	_ "github.com/lib/pq" // PostgreSQL driver
	goredis "github.com/redis/go-redis/v9"

	"github.com/txn2/sam/pkg/action"
	"github.com/txn2/sam/pkg/adapter/widget"
	"github.com/txn2/sam/pkg/credential"
	credpostgres "github.com/txn2/sam/pkg/credential/postgres"
	"github.com/txn2/sam/pkg/dialog"
	"github.com/txn2/sam/pkg/intent"
	intentanthropic "github.com/txn2/sam/pkg/intent/anthropic"
	intentopenai "github.com/txn2/sam/pkg/intent/openai"
	"github.com/txn2/sam/pkg/interaction"
	interactionpostgres "github.com/txn2/sam/pkg/interaction/postgres"
	"github.com/txn2/sam/pkg/speech"
	speechopenai "github.com/txn2/sam/pkg/speech/openai"
	"github.com/txn2/sam/pkg/turnctx"
	turnctxredis "github.com/txn2/sam/pkg/turnctx/redis"
)

// Platform is the assembled engine.
type Platform struct {
	config    *Config
	logger    *slog.Logger
	lifecycle *Lifecycle

	db *sql.DB

	store        turnctx.Store
	locker       dialog.SessionLocker
	accounts     credential.Repository
	tokens       *credential.Resolver
	registry     *action.Registry
	capabilities action.StaticCapabilities
	dispatcher   *action.Dispatcher
	resolver     *intent.Resolver
	synth        speech.Synthesizer
	interactions interaction.Store
	manager      *dialog.Manager
}

// New creates a new platform instance. Call Start before processing turns
// and Stop when done.
func New(opts ...Option) (*Platform, error) {
	options := &Options{}
	for _, opt := range opts {
		opt(options)
	}

	if options.Config == nil {
		return nil, errors.New("config is required")
	}
	if err := options.Config.Validate(); err != nil {
		return nil, err
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}

	p := &Platform{
		config:    options.Config,
		logger:    options.Logger,
		lifecycle: NewLifecycle(options.Logger),
	}

	if err := p.initializeComponents(options); err != nil {
		_ = p.lifecycle.Stop(context.Background())
		return nil, fmt.Errorf("initializing components: %w", err)
	}

	return p, nil
}

// initializeComponents initializes all platform components.
func (p *Platform) initializeComponents(opts *Options) error {
	if err := p.initDatabase(opts); err != nil {
		return err
	}
	if err := p.initTurnContext(opts); err != nil {
		return err
	}
	if err := p.initCredentials(opts); err != nil {
		return err
	}
	if err := p.initActions(); err != nil {
		return err
	}
	if err := p.initIntent(opts); err != nil {
		return err
	}
	p.initSpeech(opts)
	p.initInteractions(opts)
	return p.initDialog()
}

// initDatabase opens database.dsn unless a connection was supplied.
func (p *Platform) initDatabase(opts *Options) error {
	if opts.DB != nil {
		p.db = opts.DB
		p.lifecycle.Append("database", p.db.PingContext, nil)
		return nil
	}
	if p.config.Database.DSN == "" {
		return nil
	}

	db, err := OpenDB(p.config.Database)
	if err != nil {
		return err
	}
	p.db = db
	p.lifecycle.Append("database", db.PingContext, func(context.Context) error {
		return db.Close()
	})
	return nil
}

// OpenDB opens a PostgreSQL connection pool.
func OpenDB(cfg DatabaseConfig) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database.dsn is required")
	}
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	return db, nil
}

// NewSealer builds the token sealer for the configured encryption key. It
// returns nil when no key is set.
func NewSealer(cfg CredentialsConfig) (credential.Sealer, error) {
	if cfg.EncryptionKey == "" {
		return nil, nil
	}
	key, err := credential.ParseKey(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("credentials: %w", err)
	}
	aead, err := credential.NewAEADSealer(key)
	if err != nil {
		return nil, fmt.Errorf("credentials: %w", err)
	}
	return aead, nil
}

// initTurnContext creates the turn context store.
func (p *Platform) initTurnContext(opts *Options) error {
	base := turnctx.Config{
		HistoryCapacity: p.config.Dialog.HistoryCapacity,
		TTL:             p.config.Dialog.SessionTTL,
	}

	switch {
	case opts.TurnStore != nil:
		p.store = opts.TurnStore

	case p.config.TurnContext.Provider == ProviderRedis:
		client := opts.RedisClient
		if client == nil {
			owned := goredis.NewClient(&goredis.Options{
				Addr:     p.config.TurnContext.Redis.Addr,
				Password: p.config.TurnContext.Redis.Password,
				DB:       p.config.TurnContext.Redis.DB,
			})
			client = owned
			p.lifecycle.RegisterCloser("redis client", owned)
		}
		p.store = turnctxredis.New(client, turnctxredis.Config{
			Config:    base,
			KeyPrefix: p.config.TurnContext.Redis.KeyPrefix,
		})
		p.locker = turnctxredis.NewLocker(client, turnctxredis.LockConfig{
			KeyPrefix: p.config.TurnContext.Redis.KeyPrefix,
			TTL:       p.config.TurnContext.Redis.LockTTL,
		})
		p.lifecycle.Append("turn context store", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}, p.closeStore)
		return nil

	default:
		mem := turnctx.NewMemoryStore(base)
		p.store = mem
		p.lifecycle.Append("turn context store", func(context.Context) error {
			mem.StartCleanupRoutine(p.config.TurnContext.CleanupInterval)
			return nil
		}, p.closeStore)
		return nil
	}

	p.lifecycle.OnStop("turn context store", p.closeStore)
	return nil
}

func (p *Platform) closeStore(context.Context) error {
	return p.store.Close()
}

// initCredentials creates the account repository and the token resolver
// with one OAuth refresher per linked platform.
func (p *Platform) initCredentials(opts *Options) error {
	switch {
	case opts.Accounts != nil:
		p.accounts = opts.Accounts
	case p.db != nil:
		sealer, err := NewSealer(p.config.Credentials)
		if err != nil {
			return err
		}
		if sealer == nil {
			p.logger.Warn("credentials.encryption_key is not set; tokens are stored unencrypted")
		}
		p.accounts = credpostgres.New(p.db, sealer)
	default:
		p.logger.Info("no database configured; linked accounts are kept in memory")
		p.accounts = credential.NewMemoryRepository()
	}

	p.tokens = credential.NewResolver(p.accounts, credential.ResolverConfig{
		Buffer:         p.config.Credentials.RefreshBuffer,
		RefreshTimeout: p.config.Credentials.RefreshTimeout,
		Logger:         p.logger,
	})
	for _, name := range slices.Sorted(maps.Keys(p.config.Platforms)) {
		pc := p.config.Platforms[name]
		if pc.Widget {
			continue
		}
		p.tokens.SetRefresher(name, credential.NewOAuth2Refresher(credential.OAuth2Config{
			ClientID:     pc.ClientID,
			ClientSecret: pc.ClientSecret,
			TokenURL:     pc.TokenURL,
			HTTPClient:   opts.HTTPClient,
		}))
	}
	return nil
}

// initActions builds the registry, capability table and dispatcher.
func (p *Platform) initActions() error {
	p.registry = action.NewRegistry(action.DefaultCatalog())
	for _, name := range slices.Sorted(maps.Keys(p.config.Platforms)) {
		var regOpts []action.RegisterOption
		if p.config.Platforms[name].Widget {
			regOpts = append(regOpts, action.WithoutCredential())
		}
		if err := widget.Register(p.registry, name, regOpts...); err != nil {
			return fmt.Errorf("registering %s actions: %w", name, err)
		}
	}

	p.capabilities = action.DefaultCapabilities().Merge(p.config.CapabilityOverrides())
	p.dispatcher = action.NewDispatcher(p.registry, p.capabilities, p.tokens, action.DispatcherConfig{
		Timeout: p.config.Dialog.ActionTimeout,
		Logger:  p.logger,
	})
	return nil
}

// initIntent creates the intent oracle and resolver.
func (p *Platform) initIntent(opts *Options) error {
	oracle := opts.Oracle
	if oracle == nil {
		nlu := p.config.NLU
		switch nlu.Provider {
		case ProviderAnthropic:
			oracle = intentanthropic.New(intentanthropic.Config{
				APIKey:      nlu.APIKey,
				BaseURL:     nlu.BaseURL,
				Model:       nlu.Model,
				Temperature: nlu.Temperature,
				MaxTokens:   nlu.MaxTokens,
			})
		default:
			oracle = intentopenai.New(intentopenai.Config{
				APIKey:      nlu.APIKey,
				BaseURL:     nlu.BaseURL,
				Model:       nlu.Model,
				Temperature: nlu.Temperature,
				MaxTokens:   nlu.MaxTokens,
			})
		}
	}

	catalog := p.registry.Catalog()
	normalizer, err := action.NewNormalizer(catalog, action.DefaultAliases())
	if err != nil {
		return fmt.Errorf("creating normalizer: %w", err)
	}
	p.resolver = intent.NewResolver(oracle, normalizer, catalog.Names(), intent.Config{
		Timeout: p.config.Dialog.NLUTimeout,
		Logger:  p.logger,
	})
	return nil
}

// initSpeech creates the synthesizer when speech is enabled.
func (p *Platform) initSpeech(opts *Options) {
	if opts.Synthesizer != nil {
		p.synth = opts.Synthesizer
		return
	}
	if !p.config.Speech.Enabled {
		return
	}
	p.synth = speechopenai.New(speechopenai.Config{
		APIKey:  p.config.Speech.APIKey,
		BaseURL: p.config.Speech.BaseURL,
		Model:   p.config.Speech.Model,
		Voice:   p.config.Speech.Voice,
	})
}

// initInteractions creates the interaction store when enabled.
func (p *Platform) initInteractions(opts *Options) {
	if !p.config.Interactions.Enabled {
		return
	}
	switch {
	case opts.InteractionStore != nil:
		p.interactions = opts.InteractionStore
	case p.db != nil:
		pg := interactionpostgres.New(p.db, interactionpostgres.Config{
			RetentionDays: p.config.Interactions.RetentionDays,
		})
		p.lifecycle.Append("interaction cleanup", func(context.Context) error {
			pg.StartCleanupRoutine(p.config.TurnContext.CleanupInterval)
			return nil
		}, nil)
		p.interactions = pg
	default:
		p.interactions = interaction.NewMemoryStore()
	}
}

// initDialog creates the turn manager. Interaction records go through an
// async writer closed, and drained, before the stores it depends on.
func (p *Platform) initDialog() error {
	cfg := dialog.Config{
		Store:            p.store,
		Resolver:         p.resolver,
		Dispatcher:       p.dispatcher,
		Synthesizer:      p.synth,
		Locker:           p.locker,
		HistoryLimit:     p.config.Dialog.HistoryCapacity,
		SynthesisTimeout: p.config.Dialog.SynthesisTimeout,
		Logger:           p.logger,
	}
	if p.interactions != nil {
		async := interaction.NewAsyncLogger(p.interactions, interaction.AsyncConfig{
			BufferSize: p.config.Interactions.BufferSize,
			Logger:     p.logger,
		})
		p.lifecycle.RegisterCloser("interaction log", async)
		cfg.Interactions = async
	}

	manager, err := dialog.NewManager(cfg)
	if err != nil {
		return fmt.Errorf("creating dialog manager: %w", err)
	}
	p.manager = manager
	return nil
}

// Start starts the platform.
func (p *Platform) Start(ctx context.Context) error {
	return p.lifecycle.Start(ctx)
}

// Stop stops the platform and releases every resource it owns.
func (p *Platform) Stop(ctx context.Context) error {
	return p.lifecycle.Stop(ctx)
}

// ProcessTurn runs one conversational turn.
func (p *Platform) ProcessTurn(ctx context.Context, req dialog.TurnRequest) (*dialog.TurnResponse, error) {
	return p.manager.ProcessTurn(ctx, req)
}

// Config returns the platform configuration.
func (p *Platform) Config() *Config {
	return p.config
}

// DB returns the database connection, or nil when none is configured.
func (p *Platform) DB() *sql.DB {
	return p.db
}

// Manager returns the turn manager.
func (p *Platform) Manager() *dialog.Manager {
	return p.manager
}

// TurnStore returns the turn context store.
func (p *Platform) TurnStore() turnctx.Store {
	return p.store
}

// Accounts returns the linked account repository.
func (p *Platform) Accounts() credential.Repository {
	return p.accounts
}

// Tokens returns the token resolver.
func (p *Platform) Tokens() *credential.Resolver {
	return p.tokens
}

// Registry returns the action registry.
func (p *Platform) Registry() *action.Registry {
	return p.registry
}

// Capabilities returns the effective capability table.
func (p *Platform) Capabilities() action.StaticCapabilities {
	return p.capabilities
}

// Interactions returns the interaction store, or nil when disabled.
func (p *Platform) Interactions() interaction.Store {
	return p.interactions
}
