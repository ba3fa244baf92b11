package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/internal/similarity"
	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/internal/vault"
	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/pkg/resilience"
)

// app holds the components every subcommand shares.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	vault   vault.Vault
	fs      *vault.FS
	pg      *postgres.Client
	redis   *pkgredis.Client
	cache   *cache.PersistentCache
	breaker *resilience.CircuitBreaker
	index   *similarity.Index

	closers []func() error
}

// loadConfig reads path (empty means defaults) and applies the command-line
// vault root override.
func loadConfig(path, root string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if root != "" {
		cfg.Vault.Root = root
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	return logger.New(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
}

// newApp wires the vault, cache and index selected by cfg. onComplete may be
// nil.
func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger, onComplete func(similarity.RunSummary)) (*app, error) {
	reg := prometheus.NewRegistry()
	a := &app{
		cfg:      cfg,
		logger:   log,
		registry: reg,
		metrics:  metrics.New(reg),
	}
	if err := a.openVault(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openCache(ctx); err != nil {
		a.Close()
		return nil, err
	}

	opts := similarity.OptionsFromConfig(cfg)
	opts.Vault = a.vault
	opts.Cache = a.cache
	opts.Logger = log
	opts.Metrics = a.metrics
	opts.OnComplete = onComplete
	ix, err := similarity.New(opts)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating index: %w", err)
	}
	a.index = ix
	return a, nil
}

func (a *app) openVault(ctx context.Context) error {
	switch a.cfg.Vault.Backend {
	case "postgres":
		client, err := postgres.New(ctx, a.cfg.Postgres)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		a.pg = client
		a.closers = append(a.closers, client.Close)
		pv, err := vault.NewPostgres(client, a.logger)
		if err != nil {
			return err
		}
		if err := pv.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("preparing documents table: %w", err)
		}
		a.vault = pv
		a.logger.Info("postgres vault ready", "host", a.cfg.Postgres.Host, "table", client.Table())
	default:
		fsv, err := vault.NewFS(a.cfg.Vault, a.logger)
		if err != nil {
			return err
		}
		a.fs = fsv
		a.vault = fsv
		a.logger.Info("filesystem vault ready", "root", fsv.BaseDir())
	}
	return nil
}

// openCache picks the cache adapter. A cache that cannot be set up is
// logged and skipped; the index then rebuilds from scratch on every start.
func (a *app) openCache(ctx context.Context) error {
	if !a.cfg.Cache.Enabled {
		a.logger.Info("persistent cache disabled")
		return nil
	}
	var adapter vault.Adapter
	switch a.cfg.Cache.Backend {
	case "redis":
		client, err := pkgredis.NewClient(a.cfg.Redis)
		if err != nil {
			a.logger.Warn("redis unavailable, persistent cache disabled", "addr", a.cfg.Redis.Addr, "error", err)
			return nil
		}
		a.redis = client
		a.closers = append(a.closers, client.Close)
		a.breaker = resilience.NewCircuitBreaker("redis-cache", resilience.CircuitBreakerConfig{
			OnStateChange: a.metrics.BreakerStateHook(),
			Logger:        a.logger,
		})
		adapter = vault.NewRedisAdapter(client, a.cfg.Redis.KeyPrefix, a.breaker, a.logger)
	default:
		if a.fs != nil {
			adapter = a.fs.Adapter()
		} else {
			adapter = vault.NewFileAdapter(a.cfg.Vault.Root)
		}
	}
	c, err := cache.New(adapter, a.cfg.Cache, a.logger, a.metrics)
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidPath) {
			a.logger.Warn("invalid cache location, persistent cache disabled", "error", err)
			return nil
		}
		return err
	}
	a.cache = c
	a.logger.Info("persistent cache enabled", "backend", a.cfg.Cache.Backend, "path", c.Path())
	return nil
}

// Close releases the clients in reverse order of creation.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}

// progressPrinter logs indexing progress at most every step documents.
func progressPrinter(log *slog.Logger, step int) similarity.ProgressFunc {
	last := -step
	return func(processed, total int) {
		if processed-last >= step || processed == total {
			last = processed
			log.Info("indexing progress", "processed", processed, "total", total)
		}
	}
}
