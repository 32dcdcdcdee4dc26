package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/utafrali/storefront/internal/badge"
	"github.com/utafrali/storefront/internal/client"
	"github.com/utafrali/storefront/internal/config"
	"github.com/utafrali/storefront/internal/event"
	handler "github.com/utafrali/storefront/internal/handler/http"
	"github.com/utafrali/storefront/internal/order"
	"github.com/utafrali/storefront/internal/pricing"
	"github.com/utafrali/storefront/internal/repository"
	"github.com/utafrali/storefront/internal/service"
	"github.com/utafrali/storefront/internal/store"
	"github.com/utafrali/storefront/internal/store/memory"
	pgstore "github.com/utafrali/storefront/internal/store/postgres"
	"github.com/utafrali/storefront/internal/store/postgres/migrations"
	redisstore "github.com/utafrali/storefront/internal/store/redis"
	"github.com/utafrali/storefront/pkg/database"
	"github.com/utafrali/storefront/pkg/health"
	"github.com/utafrali/storefront/pkg/httpclient"
	pkgkafka "github.com/utafrali/storefront/pkg/kafka"
	"github.com/utafrali/storefront/pkg/middleware"
	"github.com/utafrali/storefront/pkg/tracing"
)

const serviceName = "storefront"

var initTracer = tracing.InitTracer

// App wires together all dependencies and runs the storefront.
type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	rdb        *goredis.Client
	pool       *pgxpool.Pool
	producer   *pkgkafka.Producer
	notifier   *event.Notifier
	httpServer *http.Server

	shutdownTracer func(context.Context) error
	stopBadge      context.CancelFunc
	badgeDone      sync.WaitGroup
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}

	tracingCfg := tracing.DefaultConfig(serviceName)
	tracingCfg.Environment = cfg.Environment
	tracingCfg.Enabled = cfg.TracingEnabled
	tracingCfg.OTLPEndpoint = cfg.OTLPEndpoint
	tracingCfg.SampleRate = cfg.TracingSampleRate
	shutdownTracer, err := initTracer(ctx, tracingCfg)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	a.shutdownTracer = shutdownTracer

	healthHandler := health.NewHandler()

	kv, err := a.openStore(ctx, healthHandler)
	if err != nil {
		a.closeResources()
		if shutdownErr := a.shutdownTracer(ctx); shutdownErr != nil {
			logger.Error("tracer shutdown error", slog.String("error", shutdownErr.Error()))
		}
		return nil, err
	}

	// Events: in-process notifier for the badge, Kafka when enabled.
	a.notifier = event.NewNotifier(logger)
	publishers := event.Fanout{a.notifier}
	if cfg.KafkaEnabled {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		publishers = append(publishers, event.NewProducer(a.producer, logger))
		healthHandler.Register("kafka", a.producer.Ping)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	// Outbound clients, each behind its own breaker.
	httpClient := httpclient.New(cfg.HTTPClientConfig())
	catalogDoer := httpclient.NewCircuitBreakerClient(httpClient, httpclient.DefaultCircuitBreakerConfig("catalog"), logger)
	checkoutDoer := httpclient.NewCircuitBreakerClient(httpClient, httpclient.DefaultCircuitBreakerConfig("checkout"), logger)
	catalog := client.NewCatalogClient(catalogDoer, cfg.ServerURL)
	checkout := client.NewCheckoutClient(checkoutDoer, cfg.ServerURL)

	// Build the dependency graph.
	engine := pricing.NewEngine(cfg.Rates())
	repo := repository.NewKVCartRepository(kv, logger)
	cartService := service.NewCartService(repo, engine, catalog, publishers, logger)
	checkoutService := service.NewCheckoutService(repo, engine, order.NewAssembler(), checkout, publishers, logger)

	cartBadge := badge.New(logger)
	badgeCtx, stopBadge := context.WithCancel(context.Background())
	updates, unsubscribe := a.notifier.Subscribe(event.DefaultSubscriptionBuffer)
	a.stopBadge = stopBadge
	a.badgeDone.Add(1)
	go func() {
		defer a.badgeDone.Done()
		defer unsubscribe()
		cartBadge.Run(badgeCtx, updates)
	}()

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.CORSAllowedOrigins

	router := handler.NewRouter(handler.RouterDeps{
		CartService:     cartService,
		CheckoutService: checkoutService,
		Engine:          engine,
		Catalog:         catalog,
		Badge:           cartBadge,
		Health:          healthHandler,
		CORS:            corsCfg,
		DefaultCartKey:  cfg.DefaultCartKey,
	}, logger)

	a.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return a, nil
}

// openStore connects the configured cart store backend and registers its
// readiness check.
func (a *App) openStore(ctx context.Context, healthHandler *health.Handler) (store.Store, error) {
	cfg := a.cfg
	switch cfg.StoreBackend {
	case config.BackendRedis:
		rdb, err := database.NewRedisClient(ctx, cfg.RedisConfig(), a.logger)
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.rdb = rdb
		healthHandler.Register("redis", func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
		a.logger.Info("connected to Redis",
			slog.String("addr", cfg.RedisAddr),
			slog.Int("db", cfg.RedisDB),
		)
		return redisstore.New(rdb, cfg.CartKeyPrefix, cfg.CartTTLDuration()), nil

	case config.BackendPostgres:
		pool, err := database.NewPostgresPool(ctx, cfg.PostgresConfig(), a.logger)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		a.pool = pool
		if err := database.RunMigrations(ctx, pool, migrations.FS, a.logger); err != nil {
			return nil, err
		}
		if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, serviceName); err != nil {
			return nil, fmt.Errorf("register pool metrics: %w", err)
		}
		database.SetSlowQueryLogging(time.Duration(cfg.SlowQueryThresholdMs)*time.Millisecond, a.logger)
		healthHandler.Register("postgres", pool.Ping)
		a.logger.Info("connected to PostgreSQL",
			slog.String("host", cfg.PostgresHost),
			slog.String("database", cfg.PostgresDB),
		)
		return pgstore.New(pool), nil

	case config.BackendMemory:
		a.logger.Warn("using in-memory cart store, carts are lost on restart")
		return memory.New(), nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// Handler returns the HTTP handler of the application.
func (a *App) Handler() http.Handler {
	return a.httpServer.Handler
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
	}

	a.stopBadge()
	a.badgeDone.Wait()
	a.notifier.Close()

	a.closeResources()

	if err := a.shutdownTracer(shutdownCtx); err != nil {
		a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
	}

	a.logger.Info("application shutdown complete")
	return nil
}

func (a *App) closeResources() {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		}
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
