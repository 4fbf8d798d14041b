package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/utafrali/storefront/internal/config"
	"github.com/utafrali/storefront/internal/event"
	handler "github.com/utafrali/storefront/internal/handler/http"
	"github.com/utafrali/storefront/internal/repository"
	httprepo "github.com/utafrali/storefront/internal/repository/http"
	"github.com/utafrali/storefront/internal/repository/memory"
	"github.com/utafrali/storefront/internal/repository/postgres"
	redisrepo "github.com/utafrali/storefront/internal/repository/redis"
	"github.com/utafrali/storefront/internal/service"
	"github.com/utafrali/storefront/internal/session"
	"github.com/utafrali/storefront/migrations"
	"github.com/utafrali/storefront/pkg/database"
	"github.com/utafrali/storefront/pkg/health"
	"github.com/utafrali/storefront/pkg/httpclient"
	pkgkafka "github.com/utafrali/storefront/pkg/kafka"
	"github.com/utafrali/storefront/pkg/middleware"
	"github.com/utafrali/storefront/pkg/tracing"
)

// App wires together all dependencies and runs the cart session server.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	rdb            *goredis.Client
	producer       *pkgkafka.Producer
	sessions       *service.SessionManager
	httpServer     *http.Server
	tracerShutdown func(context.Context) error

	// background stops the session evictor and the rate limiter's cleanup.
	background context.Context
	cancel     context.CancelFunc
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}
	healthHandler := health.NewHandler()

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    "cart",
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.tracerShutdown = tracerShutdown

	users, catalog, err := a.initUserStore(ctx, healthHandler)
	if err != nil {
		a.closeResources()
		return nil, err
	}

	guests, err := a.initGuestStore(ctx, healthHandler)
	if err != nil {
		a.closeResources()
		return nil, err
	}

	events := a.initEvents(healthHandler)

	// Build the dependency graph.
	catalogService := service.NewCatalogService(catalog, cfg.CatalogTTL(), logger)
	a.sessions = service.NewSessionManager(service.SessionDeps{
		Users:    users,
		Guests:   guests,
		Products: catalogService,
		Events:   events,
		Logger:   logger,
	}, service.SessionManagerConfig{
		IdleTTL:   cfg.SessionIdleTTL(),
		OpTimeout: cfg.SyncTimeout(),
	})
	checkoutService := service.NewCheckoutService(users, events, logger)
	tokens := session.NewTokenManager(cfg.JWTSecret, cfg.JWTExpiry())

	a.background, a.cancel = context.WithCancel(context.Background())

	// HTTP router.
	router := handler.NewRouter(a.background, handler.RouterConfig{
		Sessions:       a.sessions,
		Checkout:       checkoutService,
		Catalog:        catalogService,
		Health:         healthHandler,
		TokenValidator: tokens.Validator(),
		CORS:           middleware.CORSConfig{AllowedOrigins: cfg.CORSAllowedOrigins},
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		Logger:         logger,
	})

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      35 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// initUserStore connects the user-record backend selected by USER_STORE and
// the product catalog living next to it.
func (a *App) initUserStore(ctx context.Context, hh *health.Handler) (repository.UserStore, repository.Catalog, error) {
	cfg, logger := a.cfg, a.logger

	if cfg.UserStore == config.StorePostgres {
		pgCfg := database.DefaultPostgresConfig()
		pgCfg.Host = cfg.PostgresHost
		pgCfg.Port = cfg.PostgresPort
		pgCfg.User = cfg.PostgresUser
		pgCfg.Password = cfg.PostgresPass
		pgCfg.DBName = cfg.PostgresDB
		pgCfg.SSLMode = cfg.PostgresSSL
		if cfg.DBMaxConns > 0 {
			pgCfg.MaxConns = cfg.DBMaxConns
		}
		if cfg.DBMinConns > 0 {
			pgCfg.MinConns = cfg.DBMinConns
		}
		if cfg.DBMaxConnLifetimeMins > 0 {
			pgCfg.MaxConnLifetime = time.Duration(cfg.DBMaxConnLifetimeMins) * time.Minute
		}
		if cfg.DBMaxConnIdleTimeMins > 0 {
			pgCfg.MaxConnIdleTime = time.Duration(cfg.DBMaxConnIdleTimeMins) * time.Minute
		}
		pool, err := database.NewPostgresPool(ctx, &pgCfg, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		a.pool = pool
		logger.Info("connected to PostgreSQL",
			slog.String("host", cfg.PostgresHost),
			slog.Int("port", cfg.PostgresPort),
			slog.String("database", cfg.PostgresDB),
		)
		if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, "cart"); err != nil {
			logger.Warn("failed to register pool metrics", slog.String("error", err.Error()))
		}

		// Run database migrations.
		if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
			return nil, nil, fmt.Errorf("run migrations: %w", err)
		}
		logger.Info("database migrations completed")

		if cfg.SlowQueryThresholdMs > 0 {
			database.SetSlowQueryLogging(time.Duration(cfg.SlowQueryThresholdMs)*time.Millisecond, logger)
		}

		hh.Register("postgres", func(ctx context.Context) error {
			return pool.Ping(ctx)
		})
		return postgres.NewUserStore(pool), postgres.NewCatalog(pool), nil
	}

	// Create HTTP client with circuit breaker for the REST backend.
	baseClient := httpclient.New(httpclient.DefaultConfig())
	cbCfg := httpclient.DefaultCircuitBreakerConfig("user-backend")
	if cfg.CBMaxRequests > 0 {
		cbCfg.MaxRequests = cfg.CBMaxRequests
	}
	if cfg.CBInterval > 0 {
		cbCfg.Interval = time.Duration(cfg.CBInterval) * time.Second
	}
	if cfg.CBTimeout > 0 {
		cbCfg.Timeout = time.Duration(cfg.CBTimeout) * time.Second
	}
	if cfg.CBFailureRatio > 0 {
		cbCfg.FailureRatio = cfg.CBFailureRatio
	}
	if cfg.CBMinRequests > 0 {
		cbCfg.MinRequests = cfg.CBMinRequests
	}
	cbClient := httpclient.NewCircuitBreakerClient(baseClient, cbCfg, logger).
		WithFallback(httprepo.CircuitOpenFallback)
	logger.Info("circuit breaker initialized",
		slog.String("name", cbCfg.Name),
		slog.String("backend_url", cfg.BackendURL),
		slog.Int("timeout_seconds", cfg.CBTimeout),
	)

	return httprepo.NewUserStore(cbClient, cfg.BackendURL, logger), httprepo.NewCatalog(cbClient, cfg.BackendURL), nil
}

// initGuestStore connects the guest cart store selected by GUEST_STORE.
func (a *App) initGuestStore(ctx context.Context, hh *health.Handler) (repository.GuestStore, error) {
	cfg := a.cfg
	if cfg.GuestStore == config.StoreMemory {
		a.logger.Warn("guest carts are kept in memory and do not survive restarts")
		return memory.NewGuestStore(), nil
	}

	rdb, err := database.NewRedisClient(ctx, database.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	a.rdb = rdb
	a.logger.Info("connected to Redis",
		slog.String("addr", cfg.RedisAddr),
		slog.Int("db", cfg.RedisDB),
	)

	store := redisrepo.NewGuestStore(rdb, cfg.GuestCartTTL())
	hh.Register("redis", store.Ping)
	return store, nil
}

func (a *App) initEvents(hh *health.Handler) event.Publisher {
	if !a.cfg.KafkaEnabled {
		a.logger.Info("kafka disabled, cart events are not published")
		return event.NoopPublisher{}
	}

	kafkaCfg := pkgkafka.DefaultProducerConfig(a.cfg.KafkaBrokers)
	a.producer = pkgkafka.NewProducer(kafkaCfg, a.logger)
	a.logger.Info("kafka producer initialized", slog.Any("brokers", a.cfg.KafkaBrokers))

	hh.RegisterOptional("kafka", a.producer.Ping)
	return event.NewProducer(a.producer, a.logger)
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go a.sessions.Run(a.background)

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

// Shutdown gracefully stops all components in order: HTTP server, cart
// sessions (flushing pending saves), tracer, Kafka producer, then the stores.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
	}

	a.cancel()
	if err := a.sessions.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("cart session shutdown error", slog.String("error", err.Error()))
	}

	a.closeResources()
	a.logger.Info("application shutdown complete")
	return nil
}

func (a *App) closeResources() {
	if a.tracerShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
		}
	}
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
