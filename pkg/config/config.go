package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Ghost521/docusynth-ai-sub003/pkg/observability"
)

// Config holds all application configuration.
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	SSO           SSOConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string
	Port         string
	HealthPort   string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL settings.
type DatabaseConfig struct {
	URL      string
	MaxConns int
}

// RedisConfig holds Redis settings for auth state storage.
type RedisConfig struct {
	URL      string
	PoolSize int
}

// SSOConfig holds settings for the SSO service itself.
type SSOConfig struct {
	// BaseURL is the externally visible origin used to derive ACS, metadata
	// and OIDC callback URLs. Required.
	BaseURL string

	// OrganizationName and OrganizationURL appear in published SP metadata.
	OrganizationName string
	OrganizationURL  string

	// StateBackend selects where pending auth states live: "redis",
	// "postgres" or "memory".
	StateBackend string

	// AuditDir, when set, mirrors audit events to rotating JSON lines
	// files in this directory in addition to the database.
	AuditDir string

	// JanitorSchedule is a cron expression for the expired-state sweep.
	JanitorSchedule string

	// PresetsFile, when set, points at a YAML file of operator-defined
	// provider presets. The file is watched and hot-reloaded.
	PresetsFile string

	// AllowManualDomainVerify permits operators to mark a domain verified
	// without a DNS TXT lookup.
	AllowManualDomainVerify bool
}

// ObservabilityConfig holds logging, metrics and tracing settings.
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
	OTelEnabled    bool
	OTelEndpoint   string
	ServiceName    string
}

// LoadConfig reads configuration from environment variables and validates it.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("DOCUSYNTH_HOST", "0.0.0.0"),
			Port:         getEnv("DOCUSYNTH_PORT", "8080"),
			HealthPort:   getEnv("DOCUSYNTH_HEALTH_PORT", "9090"),
			ReadTimeout:  getEnvDuration("DOCUSYNTH_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvDuration("DOCUSYNTH_WRITE_TIMEOUT", 15*time.Second),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DOCUSYNTH_POSTGRES_URL", "postgres://localhost/docusynth?sslmode=disable"),
			MaxConns: getEnvInt("DOCUSYNTH_POSTGRES_MAX_CONNS", 20),
		},
		Redis: RedisConfig{
			URL:      getEnv("DOCUSYNTH_REDIS_URL", "redis://localhost:6379"),
			PoolSize: getEnvInt("DOCUSYNTH_REDIS_POOL_SIZE", 10),
		},
		SSO: SSOConfig{
			BaseURL:                 getEnv("DOCUSYNTH_BASE_URL", ""),
			OrganizationName:        getEnv("DOCUSYNTH_ORG_NAME", "DocuSynth"),
			OrganizationURL:         getEnv("DOCUSYNTH_ORG_URL", "https://docusynth.io"),
			StateBackend:            getEnv("DOCUSYNTH_SSO_STATE_BACKEND", "redis"),
			AuditDir:                getEnv("DOCUSYNTH_SSO_AUDIT_DIR", ""),
			JanitorSchedule:         getEnv("DOCUSYNTH_SSO_JANITOR_SCHEDULE", "@every 5m"),
			PresetsFile:             getEnv("DOCUSYNTH_SSO_PRESETS_FILE", ""),
			AllowManualDomainVerify: getEnvBool("DOCUSYNTH_SSO_ALLOW_MANUAL_DOMAIN_VERIFY", false),
		},
		Observability: ObservabilityConfig{
			LogLevel:       parseLogLevel(getEnv("DOCUSYNTH_LOG_LEVEL", "info")),
			MetricsEnabled: getEnvBool("DOCUSYNTH_METRICS_ENABLED", true),
			OTelEnabled:    getEnvBool("DOCUSYNTH_OTEL_ENABLED", false),
			OTelEndpoint:   getEnv("DOCUSYNTH_OTEL_ENDPOINT", "localhost:4317"),
			ServiceName:    getEnv("DOCUSYNTH_SERVICE_NAME", "docusynth-sso"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks configuration values for consistency.
func (c *Config) Validate() error {
	if c.SSO.BaseURL == "" {
		return fmt.Errorf("DOCUSYNTH_BASE_URL is required")
	}
	if !strings.HasPrefix(c.SSO.BaseURL, "http://") && !strings.HasPrefix(c.SSO.BaseURL, "https://") {
		return fmt.Errorf("DOCUSYNTH_BASE_URL must be an absolute http(s) URL, got %q", c.SSO.BaseURL)
	}
	switch c.SSO.StateBackend {
	case "redis", "postgres", "memory":
	default:
		return fmt.Errorf("DOCUSYNTH_SSO_STATE_BACKEND must be one of redis, postgres, memory; got %q", c.SSO.StateBackend)
	}
	if c.Database.MaxConns <= 0 {
		return fmt.Errorf("DOCUSYNTH_POSTGRES_MAX_CONNS must be positive, got %d", c.Database.MaxConns)
	}
	return nil
}

func parseLogLevel(s string) observability.LogLevel {
	switch strings.ToLower(s) {
	case "debug":
		return observability.DebugLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return fallback
		}
		return parsed
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fallback
		}
		return parsed
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fallback
		}
		return parsed
	}
	return fallback
}
