package main

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vitrine/vitrine/config"
	"github.com/vitrine/vitrine/pkg/catalog"
	"github.com/vitrine/vitrine/pkg/conversation"
	"github.com/vitrine/vitrine/pkg/grounding"
	"github.com/vitrine/vitrine/pkg/lane"
	"github.com/vitrine/vitrine/pkg/llm"
	"github.com/vitrine/vitrine/pkg/logger"
	"github.com/vitrine/vitrine/pkg/memory"
	"github.com/vitrine/vitrine/pkg/metrics"
	"github.com/vitrine/vitrine/pkg/ranking"
	"github.com/vitrine/vitrine/pkg/resolver"
	"github.com/vitrine/vitrine/pkg/retrieval"
	"github.com/vitrine/vitrine/pkg/storage"
	"github.com/vitrine/vitrine/pkg/storage/badger"
	memstore "github.com/vitrine/vitrine/pkg/storage/memory"
	"github.com/vitrine/vitrine/pkg/storage/postgres"
	"github.com/vitrine/vitrine/pkg/storage/redis"
)

// laneCapacity bounds queued turns per session.
const laneCapacity = 16

// app holds the wired components shared by serve and chat.
type app struct {
	cfg       *config.Config
	log       logger.Logger
	metrics   *metrics.Manager
	store     *memory.SessionStore
	corrector *retrieval.Corrector
	engine    *conversation.Engine

	closers []func() error
}

// buildOption adjusts the wiring before the engine is built.
type buildOption func(*buildState)

type buildState struct {
	generator grounding.Generator
	catalog   catalog.Catalog
	observers []conversation.Observer
}

func withGenerator(g grounding.Generator) buildOption {
	return func(s *buildState) { s.generator = g }
}

func withCatalog(c catalog.Catalog) buildOption {
	return func(s *buildState) { s.catalog = c }
}

func withObserver(o conversation.Observer) buildOption {
	return func(s *buildState) { s.observers = append(s.observers, o) }
}

// buildApp wires storage, catalog, retrieval, ranking, grounding and the
// conversation engine from cfg.
func buildApp(ctx context.Context, cfg *config.Config, log logger.Logger, mm *metrics.Manager, opts ...buildOption) (*app, error) {
	var st buildState
	for _, opt := range opts {
		opt(&st)
	}
	if mm == nil {
		mm = metrics.NoOpManager()
	}

	a := &app{cfg: cfg, log: log, metrics: mm}

	backend, err := newStorage(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	log.Info("Initialized storage", "type", cfg.Storage.Type)

	a.store = memory.NewSessionStore(backend,
		memory.WithLimits(memory.Limits{
			ContextStackSize: cfg.Conversation.ContextStackSize,
			HistoryLimit:     cfg.Conversation.HistoryLimit,
			SignalLimit:      cfg.Conversation.SignalLimit,
		}),
		memory.WithCacheSize(cfg.Conversation.CacheSize),
		memory.WithLogger(log.With("component", "memory")),
	)
	a.closers = append(a.closers, a.store.Close)

	cat := st.catalog
	if cat == nil {
		cat, err = a.newCatalog(cfg)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	a.corrector = retrieval.NewCorrector(cfg.Retrieval.Vocabulary, cfg.Retrieval.CorrectionThreshold)
	retriever := retrieval.New(
		retrieval.DefaultTiers(cat, a.corrector, cfg.Retrieval.MaxSuggestions),
		retrieval.WithTierTimeout(cfg.Catalog.Timeout),
		retrieval.WithObserver(mm),
		retrieval.WithLogger(log.With("component", "retrieval")),
	)

	gen := st.generator
	if gen == nil {
		gen, err = llm.New(cfg.Generation)
		if err != nil {
			a.Close()
			return nil, err
		}
	}
	gate := grounding.NewGate(gen,
		grounding.WithMaxEntries(cfg.Ranking.TopN),
		grounding.WithTimeout(cfg.Generation.Timeout),
		grounding.WithLogger(log.With("component", "grounding")),
	)

	sessions, err := lane.NewKeyed(&lane.Config{Name: "sessions", Capacity: laneCapacity})
	if err != nil {
		a.Close()
		return nil, err
	}
	sessions.SetMetrics(mm)

	engineOpts := []conversation.Option{
		conversation.WithResolver(resolver.New(resolver.WithCarryOver(cfg.Conversation.CarryOverLimit))),
		conversation.WithRanker(ranking.New(
			ranking.WithTopN(cfg.Ranking.TopN),
			ranking.WithTopK(cfg.Ranking.TopK),
			ranking.WithPerStoreCap(cfg.Ranking.PerStoreCap),
		)),
		conversation.WithLane(sessions),
		conversation.WithMetrics(mm),
		conversation.WithLogger(log.With("component", "conversation")),
	}
	for _, o := range st.observers {
		engineOpts = append(engineOpts, conversation.WithObserver(o))
	}

	a.engine, err = conversation.New(a.store, retriever, gate, engineOpts...)
	if err != nil {
		a.Close()
		return nil, err
	}

	log.Info("Conversation engine ready",
		"catalog", cfg.Catalog.Mode,
		"generator", gen.Name(),
		"tiers", retriever.Tiers(),
	)
	return a, nil
}

// newStorage opens the session backend selected by cfg.Type.
func newStorage(ctx context.Context, cfg config.StorageConfig) (storage.Storage, error) {
	switch cfg.Type {
	case "badger":
		s, err := badger.NewBadgerStorage(&badger.Config{
			Path:              cfg.Badger.Path,
			SyncWrites:        cfg.Badger.SyncWrites,
			ValueLogFileSize:  cfg.Badger.ValueLogFileSize,
			NumVersionsToKeep: cfg.Badger.NumVersionsToKeep,
		})
		if err != nil {
			return nil, fmt.Errorf("create badger storage: %w", err)
		}
		return s, nil
	case "redis":
		return redis.New(redis.Config{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
			TTL:       cfg.Redis.SessionTTL,
		}), nil
	case "postgres":
		s, err := postgres.New(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("create postgres storage: %w", err)
		}
		return s, nil
	case "memory", "":
		return memstore.NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// newCatalog builds the catalog selected by cfg.Catalog.Mode, behind a redis
// search cache when a cache TTL is configured.
func (a *app) newCatalog(cfg *config.Config) (catalog.Catalog, error) {
	var cat catalog.Catalog
	switch cfg.Catalog.Mode {
	case "http":
		cat = catalog.NewHTTPClient(cfg.Catalog.BaseURL,
			catalog.WithRateLimit(cfg.Catalog.RateLimit, cfg.Catalog.Burst),
			catalog.WithTimeout(cfg.Catalog.Timeout),
		)
	case "static", "":
		s, err := catalog.LoadStatic(cfg.Catalog.FixturePath)
		if err != nil {
			return nil, err
		}
		a.log.Info("Loaded static catalog", "path", cfg.Catalog.FixturePath, "products", s.Len())
		cat = s
	default:
		return nil, fmt.Errorf("unknown catalog mode %q", cfg.Catalog.Mode)
	}

	if cfg.Catalog.CacheTTL <= 0 {
		return cat, nil
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Storage.Redis.Address,
		Password: cfg.Storage.Redis.Password,
		DB:       cfg.Storage.Redis.DB,
	})
	a.closers = append(a.closers, client.Close)
	a.log.Info("Catalog search cache enabled", "ttl", cfg.Catalog.CacheTTL)
	return catalog.NewCachedSearcher(cat, client, cfg.Storage.Redis.KeyPrefix, cfg.Catalog.CacheTTL), nil
}

// reload applies the hot-reloadable subset of cfg.
func (a *app) reload(cfg *config.Config) {
	if !a.cfg.App.Debug {
		a.log.SetLevel(logger.ParseLevel(cfg.Log.Level))
	}
	a.corrector.Update(cfg.Retrieval.Vocabulary, cfg.Retrieval.CorrectionThreshold)
	a.log.Info("Configuration reloaded",
		"log_level", cfg.Log.Level,
		"vocabulary", len(cfg.Retrieval.Vocabulary),
		"correction_threshold", cfg.Retrieval.CorrectionThreshold,
	)
}

// shutdown drains the engine, then closes the backends.
func (a *app) shutdown(ctx context.Context) error {
	var errs []error
	if a.engine != nil {
		if err := a.engine.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close engine: %w", err))
		}
	}
	if err := a.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Close releases backends in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
