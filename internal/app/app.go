// Package app initializes and holds long-lived application services, acting
// as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/pubsub"
	gstorage "cloud.google.com/go/storage"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dataforge/collector/internal/clock/system"
	"github.com/dataforge/collector/internal/collector"
	"github.com/dataforge/collector/internal/config"
	"github.com/dataforge/collector/internal/executor"
	"github.com/dataforge/collector/internal/id/uuid"
	"github.com/dataforge/collector/internal/logging"
	"github.com/dataforge/collector/internal/metrics"
	"github.com/dataforge/collector/internal/pool/cookie"
	"github.com/dataforge/collector/internal/pool/proxy"
	publishermemory "github.com/dataforge/collector/internal/publisher/memory"
	publisherpubsub "github.com/dataforge/collector/internal/publisher/pubsub"
	"github.com/dataforge/collector/internal/ratelimit"
	"github.com/dataforge/collector/internal/source"
	storememory "github.com/dataforge/collector/internal/store/memory"
	storepostgres "github.com/dataforge/collector/internal/store/postgres"
	storagegcs "github.com/dataforge/collector/internal/storage/gcs"
	storagelocal "github.com/dataforge/collector/internal/storage/local"
	storagememory "github.com/dataforge/collector/internal/storage/memory"
	"github.com/dataforge/collector/internal/task"
)

// App holds all the shared, long-lived services for the application. It is
// initialized once at startup and passed to the components that need it.
type App struct {
	logger     *zap.Logger
	cfg        config.Config
	redis      *redis.Client
	proxies    *proxy.Pool
	cookies    *cookie.Pool
	checker    *proxy.HealthChecker
	renderer   *source.ChromedpRenderer
	dispatcher *source.Dispatcher
	store      collector.DatasetStore
	storage    collector.DatasetStorage
	publisher  collector.Publisher
	runner     *task.Runner
	ids        collector.IDGenerator
	clock      collector.Clock

	checkerCancel context.CancelFunc
	opsServer     *http.Server
	closers       []func()
}

// Logger returns the shared zap logger instance.
func (a *App) Logger() *zap.Logger { return a.logger }

// Runner returns the collection task runner.
func (a *App) Runner() *task.Runner { return a.runner }

// Store returns the dataset handle store.
func (a *App) Store() collector.DatasetStore { return a.store }

// Storage returns the dataset payload storage.
func (a *App) Storage() collector.DatasetStorage { return a.storage }

// Dispatcher returns the source dispatcher.
func (a *App) Dispatcher() *source.Dispatcher { return a.dispatcher }

// Proxies returns the shared proxy pool.
func (a *App) Proxies() *proxy.Pool { return a.proxies }

// Cookies returns the shared cookie pool.
func (a *App) Cookies() *cookie.Pool { return a.cookies }

// Checker returns the proxy health checker.
func (a *App) Checker() *proxy.HealthChecker { return a.checker }

// IDs returns the dataset ID generator.
func (a *App) IDs() collector.IDGenerator { return a.ids }

// Clock returns the shared clock.
func (a *App) Clock() collector.Clock { return a.clock }

// New creates and initializes an App from the configuration. It is the
// central point for service initialization and fails fast if any critical
// service cannot be reached.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}
	metrics.Init()

	a := &App{
		logger: logger,
		cfg:    cfg,
		ids:    uuid.NewUUIDGenerator(),
		clock:  system.New(),
	}

	a.redis = redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := a.redis.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis at %s: %w", cfg.Redis.Addr, err)
	}

	limiter := ratelimit.New(a.redis, ratelimit.Config{
		Window:       cfg.RateLimit.Window(),
		DefaultQuota: cfg.RateLimit.DefaultQuota,
		DomainQuotas: cfg.RateLimit.DomainQuotas,
		MaxWait:      cfg.RateLimit.MaxWait(),
	}, logger)

	var replenisher proxy.Replenisher
	if cfg.ProxyPool.ReplenishURL != "" {
		replenisher = proxy.NewListingScraper(cfg.ProxyPool.ReplenishURL, logger)
	}
	a.proxies = proxy.NewPool(a.redis, replenisher, logger)
	a.cookies = cookie.NewPool(a.redis, cfg.CookiePool.MaxUses, nil, logger)

	a.checker = proxy.NewHealthChecker(a.proxies, proxy.CheckerConfig{
		Interval:     time.Duration(cfg.ProxyPool.CheckIntervalSeconds) * time.Second,
		Concurrency:  int64(cfg.ProxyPool.CheckConcurrency),
		ProbeURL:     cfg.ProxyPool.ProbeURL,
		ProbeTimeout: time.Duration(cfg.ProxyPool.ProbeTimeoutSeconds) * time.Second,
	}, logger)
	checkerCtx, cancel := context.WithCancel(context.Background())
	a.checkerCancel = cancel
	go a.checker.Run(checkerCtx)

	exec := executor.New(limiter, a.proxies, a.cookies, executor.Config{
		Timeout:     time.Duration(cfg.Executor.TimeoutSeconds) * time.Second,
		MaxAttempts: cfg.Executor.MaxAttempts,
	}, logger)

	a.renderer, err = source.NewChromedpRenderer(source.RendererConfig{
		MaxConcurrency: cfg.Renderer.MaxConcurrency,
		NavTimeout:     time.Duration(cfg.Renderer.NavTimeoutSeconds) * time.Second,
	}, logger)
	if err != nil {
		logger.Warn("headless renderer unavailable, web sources fall back to raw HTML", zap.Error(err))
		a.renderer = nil
	}
	var renderer source.Renderer
	if a.renderer != nil {
		renderer = a.renderer
	}

	a.dispatcher = source.NewDispatcher(
		source.NewAPISource(exec),
		source.NewDatabaseSource(),
		source.NewWebSource(exec, renderer, source.NewHeuristicDetector(0, nil), logger),
		source.NewStreamSource(logger),
		source.Config{
			GlobalRatePerMinute: cfg.Dispatch.GlobalRatePerMinute,
			BlockingWorkers:     int64(cfg.Dispatch.BlockingWorkers),
		},
		logger,
	)

	if err := a.initStore(ctx, cfg); err != nil {
		return nil, err
	}
	if err := a.initStorage(ctx, cfg); err != nil {
		return nil, err
	}
	if err := a.initPublisher(ctx, cfg); err != nil {
		return nil, err
	}

	a.runner = task.NewRunner(a.store, a.storage, a.publisher, a.dispatcher, a.clock, logger)

	a.startOpsServer(cfg.Ops.Port)
	logger.Info("application services initialized")
	return a, nil
}

func (a *App) initStore(ctx context.Context, cfg config.Config) error {
	switch cfg.Store.Provider {
	case "memory":
		a.store = storememory.NewDatasetStore()
	case "postgres":
		a.logger.Info("connecting to postgres")
		st, err := storepostgres.NewDatasetStore(ctx, storepostgres.Config{DSN: cfg.Store.DSN})
		if err != nil {
			return fmt.Errorf("initialize dataset store: %w", err)
		}
		a.store = st
		a.closers = append(a.closers, st.Close)
	default:
		return fmt.Errorf("unknown store provider: %s", cfg.Store.Provider)
	}
	return nil
}

func (a *App) initStorage(ctx context.Context, cfg config.Config) error {
	switch cfg.Storage.Provider {
	case "memory":
		a.storage = storagememory.NewStorage()
	case "local":
		st, err := storagelocal.New(storagelocal.Config{BaseDir: cfg.Storage.BaseDir})
		if err != nil {
			return fmt.Errorf("initialize payload storage: %w", err)
		}
		a.storage = st
	case "gcs":
		a.logger.Info("using GCS payload storage", zap.String("bucket", cfg.Storage.GCSBucket))
		client, err := gstorage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("create gcs client: %w", err)
		}
		st, err := storagegcs.New(client, storagegcs.Config{Bucket: cfg.Storage.GCSBucket})
		if err != nil {
			return fmt.Errorf("initialize payload storage: %w", err)
		}
		a.storage = st
		a.closers = append(a.closers, func() {
			if err := client.Close(); err != nil {
				a.logger.Warn("close gcs client", zap.Error(err))
			}
		})
	default:
		return fmt.Errorf("unknown storage provider: %s", cfg.Storage.Provider)
	}
	return nil
}

func (a *App) initPublisher(ctx context.Context, cfg config.Config) error {
	switch cfg.Publisher.Provider {
	case "memory":
		a.publisher = publishermemory.NewPublisher()
	case "pubsub":
		a.logger.Info("connecting to pub/sub",
			zap.String("project", cfg.Publisher.ProjectID),
			zap.String("topic", cfg.Publisher.TopicName))
		client, err := pubsub.NewClient(ctx, cfg.Publisher.ProjectID)
		if err != nil {
			return fmt.Errorf("create pubsub client: %w", err)
		}
		pub, err := publisherpubsub.New(client)
		if err != nil {
			return fmt.Errorf("initialize publisher: %w", err)
		}
		a.publisher = pub
		a.closers = append(a.closers, func() {
			if err := pub.Close(); err != nil {
				a.logger.Warn("close pubsub client", zap.Error(err))
			}
		})
	case "none":
		a.publisher = nil
	default:
		return fmt.Errorf("unknown publisher provider: %s", cfg.Publisher.Provider)
	}
	return nil
}

// startOpsServer serves metrics and health on a dedicated listener.
func (a *App) startOpsServer(port int) {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if err := a.redis.Ping(req.Context()).Err(); err != nil {
			http.Error(w, "redis unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	a.opsServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.logger.Info("starting ops server", zap.String("addr", a.opsServer.Addr))
		if err := a.opsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("ops server failed", zap.Error(err))
		}
	}()
}

// Close gracefully shuts down all services in the App container.
func (a *App) Close() {
	a.logger.Info("shutting down application services")
	if a.checkerCancel != nil {
		a.checkerCancel()
	}
	if a.opsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.opsServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("shutdown ops server", zap.Error(err))
		}
	}
	if a.renderer != nil {
		a.renderer.Close()
	}
	for _, closeFn := range a.closers {
		closeFn()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("close redis client", zap.Error(err))
		}
	}
	if err := a.logger.Sync(); err != nil {
		// Best effort; stderr sync commonly fails on some platforms.
		_ = err
	}
}
