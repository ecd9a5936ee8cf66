package main

import (
	"context"
	"database/sql"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/Ghost521/docusynth-ai-sub003/pkg/audit"
	"github.com/Ghost521/docusynth-ai-sub003/pkg/config"
	"github.com/Ghost521/docusynth-ai-sub003/pkg/middleware"
	"github.com/Ghost521/docusynth-ai-sub003/pkg/observability"
	"github.com/Ghost521/docusynth-ai-sub003/pkg/sso"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).
		WithField("service", cfg.Observability.ServiceName)

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxConns)

	pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		cancel()
		log.Fatalf("Failed to connect to database: %v", err)
	}
	cancel()
	logger.Info("Connected to PostgreSQL")

	var redisClient *redis.Client
	if cfg.SSO.StateBackend == "redis" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatalf("Failed to parse Redis URL: %v", err)
		}
		opts.PoolSize = cfg.Redis.PoolSize
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			cancel()
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		cancel()
		logger.Info("Connected to Redis")
	}

	configStore, err := sso.NewSQLConfigStore(db)
	if err != nil {
		log.Fatalf("Failed to initialize configuration store: %v", err)
	}
	routingStore, err := sso.NewSQLRoutingStore(db)
	if err != nil {
		log.Fatalf("Failed to initialize domain routing store: %v", err)
	}

	var stateStore sso.StateStore
	switch cfg.SSO.StateBackend {
	case "redis":
		stateStore = sso.NewRedisStateStore(redisClient)
	case "postgres":
		stateStore, err = sso.NewSQLStateStore(db)
		if err != nil {
			log.Fatalf("Failed to initialize auth state store: %v", err)
		}
	case "memory":
		logger.Warn("Using in-memory auth state store; states will not survive restarts")
		stateStore = sso.NewMemoryStateStore()
	}

	auditLog, err := buildAuditLogger(db, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize audit logger: %v", err)
	}
	defer auditLog.Close()

	service, err := sso.NewService(sso.ServiceOptions{
		Configs:          configStore,
		States:           stateStore,
		Routings:         routingStore,
		Resolver:         net.DefaultResolver,
		Audit:            auditLog,
		Logger:           logger,
		BaseURL:          cfg.SSO.BaseURL,
		OrganizationName: cfg.SSO.OrganizationName,
		OrganizationURL:  cfg.SSO.OrganizationURL,
	})
	if err != nil {
		log.Fatalf("Failed to initialize SSO service: %v", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	otelProviders, err := observability.InitOTel(context.Background(), observability.OTelConfig{
		Enabled:     cfg.Observability.OTelEnabled,
		Endpoint:    cfg.Observability.OTelEndpoint,
		ServiceName: cfg.Observability.ServiceName,
		Insecure:    true,
	}, logger)
	if err != nil {
		logger.WithError(err).Warn("OpenTelemetry initialization failed; continuing without tracing")
	}

	if cfg.SSO.PresetsFile != "" {
		presetWatcher, err := sso.NewPresetWatcher(cfg.SSO.PresetsFile, logger)
		if err != nil {
			log.Fatalf("Failed to load presets file: %v", err)
		}
		defer presetWatcher.Close()
	}

	handlers := sso.NewHandlers(service, metrics)
	handlers.AllowManualVerify = cfg.SSO.AllowManualDomainVerify

	router := mux.NewRouter()
	handlers.RegisterRoutes(router)

	var rateLimit *middleware.RateLimitMiddleware
	if redisClient != nil {
		rateLimit = middleware.NewDistributedRateLimitMiddleware(redisClient)
	} else {
		rateLimit = middleware.NewRateLimitMiddleware()
	}

	var handler http.Handler = rateLimit.Handler(router)
	handler = middleware.RequestContext(handler)
	if metrics != nil {
		handler = observability.HTTPMetricsMiddleware(metrics)(handler)
	}
	if cfg.Observability.OTelEnabled {
		handler = otelhttp.NewHandler(handler, "docusynth-sso")
	}

	janitor, err := sso.NewJanitor(service, logger, metrics, cfg.SSO.JanitorSchedule)
	if err != nil {
		log.Fatalf("Failed to initialize state janitor: %v", err)
	}
	janitor.Start()

	// Health and metrics live on a separate port so they stay off the
	// public surface.
	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(db, redisClient))
	observability.RegisterMetricsEndpoint(healthMux, registry)
	healthServer := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler: healthMux,
	}

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Health server failed")
		}
	}()
	go func() {
		logger.WithField("addr", server.Addr).Info("Starting SSO server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	shutdown := observability.NewShutdownManager(logger, server, 30*time.Second)
	shutdown.RegisterShutdownFunc("health server", healthServer.Shutdown)
	shutdown.RegisterShutdownFunc("state janitor", func(ctx context.Context) error {
		janitor.Stop()
		return nil
	})
	if otelProviders != nil {
		shutdown.RegisterShutdownFunc("otel exporters", func(ctx context.Context) error {
			return observability.ShutdownOTel(ctx, otelProviders, logger)
		})
	}
	if err := shutdown.WaitForShutdown(); err != nil {
		logger.WithError(err).Error("Graceful shutdown failed")
	}
}

func buildAuditLogger(db *sql.DB, cfg *config.Config) (audit.Logger, error) {
	dbLogger, err := audit.NewDBLogger(db)
	if err != nil {
		return nil, err
	}
	if cfg.SSO.AuditDir == "" {
		return dbLogger, nil
	}
	fileLogger, err := audit.NewFileLogger(audit.FileLoggerConfig{BasePath: cfg.SSO.AuditDir})
	if err != nil {
		return nil, err
	}
	return audit.NewMultiLogger(dbLogger, fileLogger), nil
}
