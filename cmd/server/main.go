package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	govapp "github.com/costgov/backend/internal/application/governance"
	"github.com/costgov/backend/internal/domain/governance"
	"github.com/costgov/backend/internal/domain/shared"
	"github.com/costgov/backend/internal/infrastructure/auth"
	"github.com/costgov/backend/internal/infrastructure/cache"
	"github.com/costgov/backend/internal/infrastructure/config"
	"github.com/costgov/backend/internal/infrastructure/logger"
	"github.com/costgov/backend/internal/infrastructure/persistence"
	"github.com/costgov/backend/internal/infrastructure/storage"
	"github.com/costgov/backend/internal/infrastructure/telemetry"
	"github.com/costgov/backend/internal/interfaces/http/handler"
	"github.com/costgov/backend/internal/interfaces/http/middleware"
	"github.com/costgov/backend/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	appVersion      = "1.0.0"
	shutdownTimeout = 30 * time.Second
)

// closer is released in reverse order during shutdown
type closer struct {
	name string
	fn   func(ctx context.Context) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := logger.New(logger.FromAppConfig(cfg.Log))

	var closers []closer
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].fn(shutdownCtx); err != nil {
				log.Error("Error releasing resource", zap.String("resource", closers[i].name), zap.Error(err))
			}
		}
		_ = log.Sync()
	}()

	// OTEL logs bridge: rebuild the logger with a tee into the collector
	logsProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize OTEL logs", zap.Error(err))
	}
	closers = append(closers, closer{"otel-logs", logsProvider.Shutdown})
	if logsProvider.IsEnabled() {
		level, err := zapcore.ParseLevel(cfg.Log.Level)
		if err != nil {
			level = zapcore.InfoLevel
		}
		log = logger.New(logger.FromAppConfig(cfg.Log), telemetry.NewZapOTELCore(logsProvider, level))
	}

	log.Info("Starting cost governance backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	closers = append(closers, closer{"otel-traces", tracerProvider.Shutdown})

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:         cfg.Telemetry.ProfilingEnabled,
		ServerAddress:   cfg.Telemetry.ProfilingServerAddress,
		ApplicationName: cfg.Telemetry.ServiceName,
		ProfileTypes:    cfg.Telemetry.ProfileTypes,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	closers = append(closers, closer{"profiler", profiler.Stop})
	tracerProvider.EnableSpanProfiles(profiler)

	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.MetricsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize metrics", zap.Error(err))
	}
	closers = append(closers, closer{"otel-metrics", meterProvider.Shutdown})
	meter := meterProvider.Meter(cfg.Telemetry.ServiceName)

	metrics, err := telemetry.NewGovernanceMetrics(meter)
	if err != nil {
		log.Fatal("Failed to create governance metrics", zap.Error(err))
	}

	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))
	db, err := persistence.NewDatabase(&cfg.Database, persistence.WithGormLogger(gormLog))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	closers = append(closers, closer{"database", func(context.Context) error { return db.Close() }})
	log.Info("Database connected successfully")

	dbTracing := telemetry.DefaultDBTracingConfig()
	dbTracing.Enabled = cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled
	dbTracing.LogFullSQL = cfg.Telemetry.DBLogFullSQL
	if err := telemetry.RegisterDBTracing(db.DB, dbTracing, log); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedisClient(cache.RedisConfig{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		closers = append(closers, closer{"redis", func(context.Context) error { return redisClient.Close() }})
		log.Info("Redis connected successfully")
	}

	gate, err := auth.NewGate(cfg.Authorization.Gate, cfg.Authorization.RolePermissions)
	if err != nil {
		log.Fatal("Failed to initialize authorization gate", zap.Error(err))
	}

	// Idempotency
	storeOpts := []cache.IdempotencyStoreFactoryOption{
		cache.WithLogger(log),
		cache.WithDatabase(db.DB),
		cache.WithInMemoryFallback(cfg.App.Env != "production"),
	}
	if redisClient != nil {
		storeOpts = append(storeOpts, cache.WithRedisClient(redisClient))
	}
	idemStore, err := cache.NewIdempotencyStoreFactory(cfg.Idempotency, cfg.Redis, storeOpts...).CreateStore()
	if err != nil {
		log.Fatal("Failed to create idempotency store", zap.Error(err))
	}
	closers = append(closers, closer{"idempotency-store", func(context.Context) error { return idemStore.Close() }})

	guard := govapp.NewIdempotencyGuard(idemStore, shared.IdempotencyConfig{
		Retention:       cfg.Idempotency.Retention,
		InFlightTTL:     cfg.Idempotency.InFlightTTL,
		WaitTimeout:     cfg.Idempotency.WaitTimeout,
		PollInterval:    cfg.Idempotency.PollInterval,
		MaxPollInterval: cfg.Idempotency.MaxPollInterval,
	}, govapp.WithGuardLogger(log), govapp.WithGuardMetrics(metrics))

	// Repositories
	scope := persistence.NewGormTransactionScope(db.DB)
	auditRepo := persistence.NewGormAuditEventRepository(db.DB)
	policyRepo := persistence.NewGormCostPolicyRepository(db.DB)
	statsRepo := persistence.NewGormApprovableStatsRepository(db.DB)

	var finance governance.ProjectFinanceReader = persistence.NewGormProjectFinanceReader(db.DB)
	if cfg.Database.ReplicaDSN != "" {
		pool, err := persistence.NewReplicaPool(ctx, cfg.Database.ReplicaDSN, cfg.Database.ReplicaMaxConns)
		if err != nil {
			log.Fatal("Failed to connect to read replica", zap.Error(err))
		}
		closers = append(closers, closer{"replica", func(context.Context) error { pool.Close(); return nil }})
		finance = persistence.NewReplicaFinanceReader(pool)
		log.Info("Dashboard budget reads use the read replica")
	}

	// Services
	policyOpts := []govapp.PolicyServiceOption{
		govapp.WithPolicyLogger(log),
		govapp.WithPolicyMetrics(metrics),
	}
	if cfg.Governance.PolicyCacheEnabled {
		policyCache := newPolicyCache(ctx, cfg, redisClient, log)
		closers = append(closers, closer{"policy-cache", func(context.Context) error { return policyCache.Close() }})
		policyOpts = append(policyOpts, govapp.WithPolicyCache(policyCache))
	}
	policyService := govapp.NewPolicyService(policyRepo, scope, gate, policyOpts...)

	approvalService := govapp.NewApprovalService(scope, policyService, finance, gate,
		govapp.WithApprovalLogger(log),
		govapp.WithApprovalMetrics(metrics),
	)

	auditOpts := []govapp.AuditServiceOption{
		govapp.WithAuditLogger(log),
		govapp.WithAuditMetrics(metrics),
	}
	if cfg.Storage.Enabled {
		archives, err := storage.NewS3ObjectStorage(&cfg.Storage,
			storage.WithLogger(log),
			storage.WithPresignExpiry(cfg.Storage.PresignExpiry),
		)
		if err != nil {
			log.Fatal("Failed to initialize archive storage", zap.Error(err))
		}
		if err := archives.EnsureBucket(ctx); err != nil {
			log.Warn("Archive bucket is not ready", zap.String("bucket", archives.Bucket()), zap.Error(err))
		}
		auditOpts = append(auditOpts, govapp.WithArchiveStorage(archives, cfg.Storage.PresignExpiry))
	}
	auditService := govapp.NewAuditService(auditRepo, gate, auditOpts...)

	overviewService := govapp.NewOverviewService(statsRepo, auditRepo, finance, gate, govapp.OverviewConfig{
		RiskWindow:        cfg.Governance.RiskWindow,
		TopProjectsLimit:  cfg.Governance.TopProjectsLimit,
		RecentEventsLimit: cfg.Governance.RecentEventsLimit,
	})

	// HTTP
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		log.Fatal("Invalid trusted proxies", zap.Error(err))
	}

	httpMetrics, err := middleware.HTTPMetrics(meter)
	if err != nil {
		log.Fatal("Failed to create HTTP metrics", zap.Error(err))
	}

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	if len(cfg.HTTP.CORSAllowMethods) > 0 {
		corsCfg.AllowMethods = cfg.HTTP.CORSAllowMethods
	}
	if len(cfg.HTTP.CORSAllowHeaders) > 0 {
		corsCfg.AllowHeaders = cfg.HTTP.CORSAllowHeaders
	}

	engine.Use(
		middleware.RequestID(),
		logger.Recovery(log),
		logger.GinMiddleware(log),
		middleware.Tracing(cfg.Telemetry.ServiceName),
		httpMetrics,
		middleware.Secure(),
		middleware.CORSWithConfig(corsCfg),
		middleware.BodyLimit(cfg.HTTP.MaxBodySize),
	)

	checks := map[string]handler.HealthCheck{
		"database": func(context.Context) error { return db.Ping() },
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	systemHandler := handler.NewSystemHandler(cfg.App.Name, appVersion, checks)
	engine.GET("/health", systemHandler.Health)

	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	r.Use(
		middleware.JWTAuth(middleware.JWTMiddlewareConfig{
			JWTService: auth.NewJWTService(cfg.JWT),
			SkipPaths:  []string{"/health"},
			Logger:     log,
		}),
		middleware.SpanAttributes(),
	)
	if cfg.HTTP.RateLimitEnabled {
		limiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		closers = append(closers, closer{"rate-limiter", func(context.Context) error { limiter.Stop(); return nil }})
		r.Use(middleware.RateLimit(limiter))
	}

	r.Register(router.NewGovernanceRoutes(router.GovernanceHandlers{
		Approval:   handler.NewApprovalHandler(approvalService),
		Audit:      handler.NewAuditHandler(auditService),
		CostPolicy: handler.NewCostPolicyHandler(policyService),
		Overview:   handler.NewOverviewHandler(overviewService),
	}, middleware.Idempotency(guard))).
		Register(router.NewSystemRoutes(systemHandler))
	r.Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down server...")
	case err := <-serveErr:
		log.Error("Server failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	log.Info("Server exited gracefully")
}

// newPolicyCache builds the tenant policy cache. With Redis it becomes a
// two-level cache whose L1 entries are dropped on other instances' updates.
func newPolicyCache(ctx context.Context, cfg *config.Config, client *redis.Client, log *zap.Logger) *cache.PolicyCache {
	opts := []cache.PolicyCacheOption{
		cache.WithPolicyCacheTTL(cfg.Governance.PolicyCacheTTL),
		cache.WithPolicyCacheLogger(log),
	}
	if client != nil {
		opts = append(opts,
			cache.WithPolicyRedis(client),
			cache.WithPolicyInvalidator(cache.NewRedisPolicyInvalidator(client, cache.WithInvalidatorLogger(log))),
		)
	}
	policyCache := cache.NewPolicyCache(opts...)
	if client != nil {
		if err := policyCache.StartInvalidationSubscription(ctx); err != nil {
			log.Warn("Policy invalidation subscription failed; relying on TTL", zap.Error(err))
		}
	}
	return policyCache
}
