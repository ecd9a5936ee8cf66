package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestSize     *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Login flow metrics
	LoginsInitiatedTotal *prometheus.CounterVec
	LoginsCompletedTotal *prometheus.CounterVec
	LoginDuration        *prometheus.HistogramVec

	// Upstream IdP metrics
	IdPRequestsTotal   *prometheus.CounterVec
	IdPRequestDuration *prometheus.HistogramVec

	// Auth state metrics
	StatesCreatedTotal  prometheus.Counter
	StatesConsumedTotal *prometheus.CounterVec
	StatesSweptTotal    prometheus.Counter

	// Domain verification metrics
	DomainVerificationsTotal *prometheus.CounterVec

	// Database metrics
	DBConnectionsActive       prometheus.Gauge
	DBConnectionsIdle         prometheus.Gauge
	DBConnectionsWaitCount    prometheus.Gauge
	DBConnectionsWaitDuration prometheus.Gauge

	// Redis metrics
	RedisConnectionsActive prometheus.Gauge
	RedisCommandsTotal     *prometheus.CounterVec
	RedisCommandDuration   *prometheus.HistogramVec

	// Business metrics
	ConfigurationsTotal  *prometheus.GaugeVec
	VerifiedDomainsTotal prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docusynth_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docusynth_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPRequestSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docusynth_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docusynth_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path"},
		),

		// Login flow metrics
		LoginsInitiatedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docusynth_sso_logins_initiated_total",
				Help: "Total number of SSO logins initiated",
			},
			[]string{"protocol"},
		),
		LoginsCompletedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docusynth_sso_logins_completed_total",
				Help: "Total number of SSO login callbacks processed",
			},
			[]string{"protocol", "status", "error_code"},
		),
		LoginDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docusynth_sso_login_callback_duration_seconds",
				Help:    "SSO callback processing duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"protocol"},
		),

		// Upstream IdP metrics
		IdPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docusynth_sso_idp_requests_total",
				Help: "Total number of requests to identity providers",
			},
			[]string{"endpoint", "status"},
		),
		IdPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docusynth_sso_idp_request_duration_seconds",
				Help:    "Identity provider request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),

		// Auth state metrics
		StatesCreatedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "docusynth_sso_states_created_total",
				Help: "Total number of auth states created",
			},
		),
		StatesConsumedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docusynth_sso_states_consumed_total",
				Help: "Total number of auth state consume attempts",
			},
			[]string{"outcome"},
		),
		StatesSweptTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "docusynth_sso_states_swept_total",
				Help: "Total number of expired auth states deleted",
			},
		),

		// Domain verification metrics
		DomainVerificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docusynth_sso_domain_verifications_total",
				Help: "Total number of domain verification attempts",
			},
			[]string{"method", "status"},
		),

		// Database metrics
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "docusynth_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "docusynth_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
		DBConnectionsWaitCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "docusynth_db_connections_wait_count",
				Help: "Total number of connections waited for",
			},
		),
		DBConnectionsWaitDuration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "docusynth_db_connections_wait_duration_seconds",
				Help: "Total time spent waiting for connections",
			},
		),

		// Redis metrics
		RedisConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "docusynth_redis_connections_active",
				Help: "Number of active Redis connections",
			},
		),
		RedisCommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docusynth_redis_commands_total",
				Help: "Total number of Redis commands",
			},
			[]string{"command", "status"},
		),
		RedisCommandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docusynth_redis_command_duration_seconds",
				Help:    "Redis command duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"command"},
		),

		// Business metrics
		ConfigurationsTotal: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "docusynth_sso_configurations_total",
				Help: "Number of SSO configurations by provider and state",
			},
			[]string{"provider", "state"},
		),
		VerifiedDomainsTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "docusynth_sso_verified_domains_total",
				Help: "Number of verified SSO domains",
			},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSize,
		m.HTTPResponseSize,
		m.LoginsInitiatedTotal,
		m.LoginsCompletedTotal,
		m.LoginDuration,
		m.IdPRequestsTotal,
		m.IdPRequestDuration,
		m.StatesCreatedTotal,
		m.StatesConsumedTotal,
		m.StatesSweptTotal,
		m.DomainVerificationsTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
		m.DBConnectionsWaitCount,
		m.DBConnectionsWaitDuration,
		m.RedisConnectionsActive,
		m.RedisCommandsTotal,
		m.RedisCommandDuration,
		m.ConfigurationsTotal,
		m.VerifiedDomainsTotal,
	)

	return m
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Wrap response writer to capture status and size
			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			// Record request size
			if r.ContentLength > 0 {
				metrics.HTTPRequestSize.WithLabelValues(r.Method, r.URL.Path).Observe(float64(r.ContentLength))
			}

			// Serve the request
			next.ServeHTTP(rw, r)

			// Record metrics
			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)
			metrics.HTTPResponseSize.WithLabelValues(r.Method, r.URL.Path).Observe(float64(rw.bytesWritten))
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
