// Package observability bundles the service's logging, metrics, health,
// tracing, and shutdown plumbing.
//
// # Logging
//
// Logger wraps slog with a JSON handler. Derive per-component loggers and
// let WithContext pick up request, actor, and trace IDs:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger = logger.WithField("component", "sso")
//	logger.WithContext(ctx).WithError(err).Warn("sso login failed")
//
// # Metrics
//
// NewMetrics registers the docusynth_* Prometheus collectors on a registry;
// HTTPMetricsMiddleware feeds the HTTP vecs:
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.LoginsInitiatedTotal.WithLabelValues("saml").Inc()
//
// # Health
//
// HealthChecker probes PostgreSQL (required) and Redis (optional; its loss
// only degrades). RegisterHealthRoutes mounts /health, /health/live and
// /health/ready.
//
// # Tracing
//
// InitOTel wires OTLP/gRPC exporters when enabled and returns the
// providers for ShutdownOTel; disabled tracing yields a nil provider set.
//
// # Shutdown
//
// ShutdownManager drains the HTTP server, then runs registered cleanup
// funcs concurrently under one deadline.
package observability
