package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"whatsapp-agent/backend/ai"
	"whatsapp-agent/backend/internal/api"
	"whatsapp-agent/backend/internal/docstore"
	"whatsapp-agent/backend/internal/repository"
	"whatsapp-agent/backend/internal/service"
	"whatsapp-agent/backend/internal/whatsapp"
	"whatsapp-agent/backend/internal/ws"
	"whatsapp-agent/backend/pkg/cache"
	"whatsapp-agent/backend/pkg/config"
	"whatsapp-agent/backend/pkg/health"
	"whatsapp-agent/backend/pkg/jwt"
	"whatsapp-agent/backend/pkg/logger"
	"whatsapp-agent/backend/pkg/secrets"
	"whatsapp-agent/backend/shared/redis"

	"github.com/cockroachdb/pebble"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// Container holds all the dependencies for the application
type Container struct {
	Config *config.Config
	Logger *logger.Logger

	// DB is nil unless DATABASE_URL names a postgres database
	DB    *gorm.DB
	Store *repository.Store

	Docs    *docstore.Store
	Indexer *docstore.Indexer

	Secrets  *secrets.VaultManager
	LLM      *ai.Client
	WhatsApp *whatsapp.Client

	// Redis is nil when REDIS_URL is unset or unreachable; Cache then backs webhook dedupe
	Redis *redis.RedisClient
	Cache *cache.Cache[struct{}]

	JWTService *jwt.Service
	Hub        *ws.Hub
	Health     *health.Checker

	Tracking   *service.TrackingService
	Approvals  *service.ApprovalService
	Pipeline   *service.Pipeline
	Sweeper    *service.ExpirySweeper
	Dispatcher *api.Dispatcher

	reindex *cron.Cron
}

// Options overrides collaborators, mainly for tests
type Options struct {
	// DB is used instead of opening DATABASE_URL when set
	DB *gorm.DB
	// DocsOptions are passed to pebble when opening the document store
	DocsOptions *pebble.Options
}

// New creates a new dependency injection container
func New(ctx context.Context, cfg *config.Config, log *logger.Logger, opts Options) (*Container, error) {
	c := &Container{Config: cfg, Logger: log}

	if err := c.openStore(ctx, opts.DB); err != nil {
		return nil, err
	}

	docs, err := docstore.Open(cfg.Docs.StorePath, opts.DocsOptions, log)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("open document store: %w", err)
	}
	c.Docs = docs
	if cfg.Docs.Dir != "" {
		c.Indexer = docstore.NewIndexer(docs, cfg.Docs.Dir, log)
	}

	if err := c.resolveSecrets(ctx); err != nil {
		c.Close()
		return nil, err
	}

	c.LLM = ai.NewClient(ai.Config{
		APIKey:       cfg.LLM.AnthropicKey,
		BaseURL:      cfg.LLM.BaseURL,
		Model:        cfg.LLM.Model,
		MaxTokens:    cfg.LLM.MaxTokens,
		Timeout:      cfg.LLM.Timeout,
		MaxToolTurns: cfg.LLM.MaxToolTurns,
	}, log)
	c.WhatsApp = whatsapp.NewClient(whatsapp.Config{
		PhoneNumberID: cfg.WhatsApp.PhoneNumberID,
		AccessToken:   cfg.WhatsApp.AccessToken,
		BaseURL:       cfg.WhatsApp.APIBaseURL,
		Timeout:       cfg.WhatsApp.Timeout,
	}, log)

	c.Cache = cache.New[struct{}](cache.Options{
		TTL:         cfg.Cache.TTL,
		MaxSize:     cfg.Cache.MaxSize,
		PurgeWindow: cfg.Cache.PurgeWindow,
	})
	c.connectRedis(ctx)

	c.JWTService = jwt.NewService(cfg.JWT.Secret, cfg.JWT.Expiry)
	c.Hub = ws.NewHub(log, cfg.Security.AllowedOrigins...)

	if err := c.buildServices(); err != nil {
		c.Close()
		return nil, err
	}
	c.registerHealthChecks()

	for _, name := range cfg.Missing() {
		log.Warn("Setting missing, running degraded", "setting", name)
	}
	return c, nil
}

func (c *Container) openStore(ctx context.Context, db *gorm.DB) error {
	if db != nil {
		c.DB = db
		c.Store = repository.NewGormStore(db)
		return nil
	}

	switch c.Config.DatabaseMode() {
	case config.DatabasePostgres:
		db, err := config.NewDB(ctx, c.Config, c.Logger)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		if err := repository.AutoMigrate(db); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
		c.DB = db
		c.Store = repository.NewGormStore(db)
	case config.DatabaseMemory:
		c.Logger.Warn("Using in-memory persistence; records are lost on restart")
		c.Store = repository.NewMemoryStore()
	default:
		c.Logger.Warn("No database configured, messages and approvals are not persisted")
		c.Store = repository.NewUnavailableStore()
	}
	return nil
}

// resolveSecrets fills credentials that are not set in the environment from Vault
func (c *Container) resolveSecrets(ctx context.Context) error {
	manager, err := secrets.NewVaultManager(ctx, secrets.VaultConfig{
		Address:    c.Config.Vault.Address,
		Token:      c.Config.Vault.Token,
		Mount:      c.Config.Vault.Mount,
		SecretPath: c.Config.Vault.SecretPath,
	}, c.Logger)
	if err != nil {
		if errors.Is(err, secrets.ErrNoVaultToken) {
			c.Logger.Warn("VAULT_ADDR set without VAULT_TOKEN, reading secrets from the environment only")
			manager, err = secrets.NewVaultManager(ctx, secrets.VaultConfig{}, c.Logger)
		}
		if err != nil {
			return fmt.Errorf("init secrets: %w", err)
		}
	}
	c.Secrets = manager

	cfg := c.Config
	cfg.WhatsApp.AccessToken = secrets.Resolve(ctx, manager, secrets.KeyWhatsAppAccessToken, cfg.WhatsApp.AccessToken)
	cfg.WhatsApp.AppSecret = secrets.Resolve(ctx, manager, secrets.KeyWhatsAppAppSecret, cfg.WhatsApp.AppSecret)
	cfg.LLM.AnthropicKey = secrets.Resolve(ctx, manager, secrets.KeyAnthropicAPIKey, cfg.LLM.AnthropicKey)
	return nil
}

func (c *Container) connectRedis(ctx context.Context) {
	if c.Config.Redis.URL == "" {
		return
	}
	client, err := redis.NewRedisClient(c.Config.Redis.URL)
	if err != nil {
		c.Logger.LogError(err, "Invalid REDIS_URL, deduplicating in memory")
		return
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx); err != nil {
		c.Logger.LogError(err, "Redis unreachable, deduplicating in memory")
		client.Close()
		return
	}
	c.Redis = client
}

func (c *Container) buildServices() error {
	cfg := c.Config
	prompts, err := service.LoadPrompts(cfg.Pipeline.PromptsFile)
	if err != nil {
		return fmt.Errorf("load prompts: %w", err)
	}

	c.Tracking = service.NewTrackingService(c.Store, c.Logger)
	c.Approvals = service.NewApprovalService(c.Store, cfg.Approval.TTL, c.Logger)

	sweeper, err := service.NewExpirySweeper(c.Approvals, cfg.Approval.SweepCron, c.Logger)
	if err != nil {
		return err
	}
	c.Sweeper = sweeper

	c.Pipeline = service.NewPipeline(service.PipelineDeps{
		Classifier: service.NewClassifier(c.LLM, prompts, cfg.Pipeline.ClassifyTimeout, c.Logger),
		Retriever:  service.NewRetriever(c.Docs, cfg.Pipeline.RetrievalK),
		Generator:  service.NewGenerator(c.LLM, prompts, cfg.Pipeline.GenerateTimeout, c.Logger),
		Approvals:  c.Approvals,
		Tracking:   c.Tracking,
		Sender:     c.WhatsApp,
		Events:     c.Hub,
	}, service.PipelineConfig{
		ReviewerPhone:      cfg.Phones.Reviewer,
		PersonalPhone:      cfg.Phones.Personal,
		GenerateForUnknown: cfg.Pipeline.GenerateForUnknown,
		ApprovalTTL:        cfg.Approval.TTL,
		SendTimeout:        cfg.Pipeline.SendTimeout,

		ReviewTemplate:         cfg.WhatsApp.ReviewTemplate,
		ReviewTemplateLanguage: cfg.WhatsApp.ReviewTemplateLanguage,
	}, c.Logger)

	var marker api.ReadMarker
	if c.WhatsApp.Configured() {
		marker = c.WhatsApp
	}
	var claimer api.Claimer = api.NewCacheClaimer(c.Cache)
	if c.Redis != nil {
		claimer = c.Redis
	}
	c.Dispatcher = api.NewDispatcher(c.Pipeline, marker, claimer, api.DispatcherConfig{
		MaxConcurrency: cfg.Pipeline.MaxConcurrency,
		MessageTimeout: cfg.Pipeline.MessageTimeout,
		DedupeTTL:      cfg.Pipeline.DedupeTTL,
	}, c.Logger)
	return nil
}

func (c *Container) registerHealthChecks() {
	c.Health = health.NewChecker(c.Logger, 30*time.Second)

	c.Health.RegisterDatabaseCheck(c.Store.Available(), func(ctx context.Context) error {
		if c.DB == nil {
			return nil
		}
		return config.Ping(ctx, c.DB, c.Config.Database.Timeout)
	})

	c.Health.RegisterCheck("docstore", true, func(ctx context.Context) (health.Status, string, error) {
		n, err := c.Docs.Count(ctx)
		if err != nil {
			return health.StatusDown, "Document store unreadable", err
		}
		if n == 0 {
			return health.StatusDegraded, "Document store is empty, replies are drafted without context", nil
		}
		return health.StatusUp, fmt.Sprintf("%d chunks indexed", n), nil
	})

	c.Health.RegisterCheck("redis", false, func(ctx context.Context) (health.Status, string, error) {
		if c.Redis == nil {
			return health.StatusDegraded, "Deduplicating webhook deliveries in memory", nil
		}
		if err := c.Redis.Ping(ctx); err != nil {
			return health.StatusDown, "Redis ping failed", err
		}
		return health.StatusUp, "Redis connection is established", nil
	})

	c.Health.RegisterCheck("whatsapp", false, func(context.Context) (health.Status, string, error) {
		if !c.WhatsApp.Configured() {
			return health.StatusDegraded, "WhatsApp credentials missing, outbound messages fail", nil
		}
		return health.StatusUp, "WhatsApp credentials configured", nil
	})
}

// Start launches the background workers. They stop when ctx is cancelled.
func (c *Container) Start(ctx context.Context) {
	go c.Hub.Run(ctx)
	go c.Sweeper.Run(ctx)
	c.Health.Start(ctx)

	if c.Indexer == nil {
		return
	}
	if _, err := c.Indexer.Reindex(ctx); err != nil {
		c.Logger.LogError(err, "Initial document index failed", "dir", c.Config.Docs.Dir)
	}
	if spec := c.Config.Docs.ReindexCron; spec != "" {
		scheduler, err := c.Indexer.Schedule(ctx, spec)
		if err != nil {
			c.Logger.LogError(err, "Document reindex not scheduled")
		} else {
			c.reindex = scheduler
		}
	}
	if c.Config.Docs.Watch {
		watcher, err := docstore.NewWatcher(c.Indexer, c.Logger)
		if err != nil {
			c.Logger.LogError(err, "Document watcher not started")
			return
		}
		go func() {
			if err := watcher.Start(ctx); err != nil {
				c.Logger.LogError(err, "Document watcher stopped")
			}
		}()
	}
}

// Close releases stores and connections
func (c *Container) Close() error {
	var errs []error
	if c.reindex != nil {
		<-c.reindex.Stop().Done()
	}
	if c.Cache != nil {
		c.Cache.Close()
	}
	if c.Redis != nil {
		errs = append(errs, c.Redis.Close())
	}
	if c.Docs != nil {
		errs = append(errs, c.Docs.Close())
	}
	if c.DB != nil {
		if sqlDB, err := c.DB.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	return errors.Join(errs...)
}
