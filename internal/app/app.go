// Package app builds the campaign component graph from a loaded config. The
// orchestrator binary and campaignctl share it so both run the same stack.
package app

import (
	"context"
	"errors"
	"fmt"

	redisv8 "github.com/go-redis/redis/v8"
	redisv9 "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/activities"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/agents"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/calendar"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/circuitbreaker"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/config"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/db"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/embeddings"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/generation"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/health"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/pipeline"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/policy"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/publish"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/retrieval"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/streaming"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/templates"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/textproc"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/vectordb"
)

// App holds every long-lived component.
type App struct {
	Config *config.Config

	Store     *db.Client
	Events    *streaming.Manager
	Stream    *redisv9.Client
	Cache     *circuitbreaker.RedisWrapper
	Vectors   *vectordb.Client
	Retrieval *retrieval.Gateway
	Templates *templates.Registry
	Generator *generation.Gateway
	Analyzer  *pipeline.Coordinator
	Calendars *calendar.Coordinator
	Policy    *policy.OPAEngine

	// Publisher is nil when telegram.enabled is false.
	Publisher *publish.Publisher

	logger  *zap.Logger
	closers []func() error
}

// New builds the stack. The caller owns the result and must call Close.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if a.Store, err = db.NewClient(&cfg.Database, logger); err != nil {
		return nil, fmt.Errorf("failed to open campaign store: %w", err)
	}
	a.closers = append(a.closers, a.Store.Close)
	if err = a.Store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to migrate campaign store: %w", err)
	}

	if cfg.Redis.Addr != "" {
		a.Stream = redisv9.NewClient(&redisv9.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.closers = append(a.closers, a.Stream.Close)
	}
	a.Events = streaming.NewManager(cfg.Streaming, a.Stream, logger)
	a.Events.AddSink(a.Store.EventSink())

	embedder, err := embeddings.NewEmbedder(ctx, cfg.Embeddings, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	var cache embeddings.Cache
	if cfg.Embeddings.RedisAddr != "" {
		rc := redisv8.NewClient(&redisv8.Options{
			Addr:     cfg.Embeddings.RedisAddr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.Cache = circuitbreaker.NewRedisWrapper(rc, "embeddings", logger)
		a.closers = append(a.closers, a.Cache.Close)
		cache = embeddings.NewRedisCache(a.Cache)
	}
	svc := embeddings.NewService(embedder, cache, cfg.Embeddings, logger)

	a.Vectors = vectordb.New(cfg.Vector, logger)
	a.Retrieval = retrieval.NewGateway(a.Vectors, svc, textproc.NewProcessor(cfg.Chunking), logger)

	if a.Templates, err = templates.Builtin(); err != nil {
		return nil, fmt.Errorf("failed to load builtin templates: %w", err)
	}
	if cfg.Templates.Dir != "" {
		if err = a.Templates.LoadDirectory(cfg.Templates.Dir); err != nil {
			return nil, fmt.Errorf("failed to load templates from %s: %w", cfg.Templates.Dir, err)
		}
	}

	provider, err := generation.NewProvider(ctx, cfg.LLM.ProviderConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s provider: %w", cfg.LLM.Provider, err)
	}
	a.Generator = generation.NewGateway(provider, cfg.GatewayOptions(), logger)

	subs, err := agents.NewSubAgents(a.Templates, a.Generator, cfg.Pipeline.StageTimeout, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create sub-agents: %w", err)
	}
	a.Analyzer, err = pipeline.NewCoordinator(pipeline.FromSubAgents(subs), a.Retrieval, a.Retrieval, a.Events,
		pipeline.Options{RetrievalTopK: cfg.Pipeline.RetrievalTopK}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create analysis pipeline: %w", err)
	}
	a.Calendars, err = calendar.NewCoordinator(a.Templates, a.Generator, a.Retrieval, a.Events, cfg.Calendar, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar coordinator: %w", err)
	}

	if a.Policy, err = policy.NewOPAEngine(&cfg.Policy, logger); err != nil {
		return nil, fmt.Errorf("failed to create policy engine: %w", err)
	}
	if cfg.Telegram.Enabled {
		tg, err := publish.NewTelegramClient(cfg.Telegram, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create telegram client: %w", err)
		}
		a.Publisher = publish.NewPublisher(tg, a.Policy, logger)
	}

	logger.Info("Campaign stack ready",
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("llm_model", cfg.LLM.Model),
		zap.String("database", cfg.Database.Driver),
		zap.Bool("event_stream", a.Stream != nil),
		zap.Bool("embedding_cache", a.Cache != nil),
		zap.Bool("publishing", a.Publisher != nil),
	)
	return a, nil
}

// Activities wires the Temporal activities to this stack.
func (a *App) Activities() *activities.Activities {
	deps := activities.Dependencies{
		Analyzer:  a.Analyzer,
		Calendars: a.Calendars,
		Store:     a.Store,
		Events:    a.Events,
	}
	// A nil *Publisher must not become a non-nil interface.
	if a.Publisher != nil {
		deps.Publisher = a.Publisher
	}
	return activities.NewActivities(deps, a.logger)
}

// RegisterHealthChecks adds a checker per configured dependency.
func (a *App) RegisterHealthChecks(m *health.Manager) error {
	checkers := []health.Checker{
		health.NewDatabaseChecker(a.Store),
		health.NewVectorStoreChecker(a.Vectors),
	}
	if a.Stream != nil {
		checkers = append(checkers, health.NewStreamChecker(a.Stream))
	}
	if a.Cache != nil {
		checkers = append(checkers, health.NewEmbeddingCacheChecker(a.Cache))
	}
	for _, c := range checkers {
		if err := m.RegisterChecker(c); err != nil {
			return err
		}
	}
	return nil
}

// ReloadTemplates re-reads the template directory over the loaded set.
func (a *App) ReloadTemplates() error {
	if a.Config.Templates.Dir == "" {
		return nil
	}
	return a.Templates.LoadDirectory(a.Config.Templates.Dir)
}

// Close releases connections in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
