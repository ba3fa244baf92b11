package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/internal/api"
	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/internal/events"
	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/internal/similarity"
	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/internal/watcher"
	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/pkg/resilience"
)

func newServeCmd(g *globalFlags) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve related-document queries over HTTP",
		Long: `Serve indexes the vault in the background and exposes the HTTP API,
health checks and Prometheus metrics. With watcher.enabled the vault
directory is watched for changes; with kafka.enabled document change events
are consumed and index completions are published.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := g.load()
			if err != nil {
				return err
			}
			if port > 0 {
				cfg.Server.Port = port
			}
			return serve(cmd.Context(), cfg, log)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "HTTP port (overrides config)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	var notifier *events.Notifier
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete, log)
		defer producer.Close()
		notifier = events.NewNotifier(producer, log)
	}
	onComplete := func(s similarity.RunSummary) {
		pubCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = notifier.IndexComplete(pubCtx, events.IndexComplete{
			RunID:      s.RunID,
			Documents:  s.Documents,
			DurationMS: s.Duration.Milliseconds(),
			FromCache:  s.FromCache,
		})
	}

	a, err := newApp(ctx, cfg, log, onComplete)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, a.registry, log)
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownMetrics(sctx)
		}()
	}

	checker := health.NewChecker(log)
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		if !a.index.IsInitialized() {
			return health.ComponentHealth{Status: health.StatusDown, Message: "initial indexing in progress"}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d documents", a.index.DocumentCount())}
	})
	checker.Register("cache", func(ctx context.Context) health.ComponentHealth {
		if a.cache == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		return health.FromError(a.cache.Writable(ctx), true)
	})
	if a.pg != nil {
		checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
			return health.FromError(resilience.WithTimeout(ctx, 2*time.Second, "postgres ping", a.pg.Ping), false)
		})
	}
	if a.redis != nil {
		checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
			return health.FromError(resilience.WithTimeout(ctx, 2*time.Second, "redis ping", a.redis.Ping), true)
		})
	}

	var fsw *watcher.Watcher
	if cfg.Watcher.Enabled {
		if a.fs == nil {
			log.Warn("watcher needs the fs vault backend, not starting it", "backend", cfg.Vault.Backend)
		} else if fsw, err = watcher.New(a.fs, a.index, cfg.Watcher, a.metrics, log); err != nil {
			return fmt.Errorf("starting watcher: %w", err)
		}
	}

	h := api.New(ctx, a.index, cfg.Server, log)
	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout, log)(chain)
	if len(cfg.Server.CORSOrigins) > 0 {
		chain = middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.CORSOrigins))(chain)
	}
	var limiter *middleware.Limiter
	if cfg.Server.RateLimit > 0 {
		limiter = middleware.NewLimiter(cfg.Server.RateLimit, time.Minute)
		chain = middleware.RateLimit(limiter)(chain)
	}
	chain = middleware.Metrics(a.metrics)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	grp, gctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		log.Info("similarity service listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	grp.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received")
		a.index.Stop()
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(sctx); err != nil {
			log.Error("server shutdown error", "error", err)
		}
		if err := a.index.Save(sctx); err != nil {
			log.Warn("final cache save failed", "error", err)
		}
		return nil
	})
	grp.Go(func() error {
		if err := a.index.Initialize(gctx, progressPrinter(log, 1000)); err != nil && gctx.Err() == nil {
			return fmt.Errorf("initial indexing: %w", err)
		}
		return nil
	})
	if fsw != nil {
		grp.Go(func() error { return fsw.Run(gctx) })
	}
	if limiter != nil {
		grp.Go(func() error {
			limiter.Run(gctx)
			return nil
		})
	}
	if cfg.Kafka.Enabled {
		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.DocumentChanges,
			events.HandleDocumentChange(a.index, a.vault, a.metrics, log), log)
		defer consumer.Close()
		grp.Go(func() error {
			if err := consumer.Start(gctx); err != nil && gctx.Err() == nil {
				return fmt.Errorf("document change consumer: %w", err)
			}
			return nil
		})
	}

	err = grp.Wait()
	log.Info("similarity service stopped")
	return err
}
