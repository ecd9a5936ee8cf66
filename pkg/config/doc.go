// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings.
//
// # Configuration Structure
//
// Server settings:
//
//	DOCUSYNTH_HOST="0.0.0.0"
//	DOCUSYNTH_PORT="8080"
//	DOCUSYNTH_HEALTH_PORT="9090"
//	DOCUSYNTH_READ_TIMEOUT="15s"
//	DOCUSYNTH_WRITE_TIMEOUT="15s"
//
// Database settings:
//
//	DOCUSYNTH_POSTGRES_URL="postgres://localhost/docusynth"
//	DOCUSYNTH_POSTGRES_MAX_CONNS="20"
//
// Redis settings (auth state storage):
//
//	DOCUSYNTH_REDIS_URL="redis://localhost:6379"
//	DOCUSYNTH_REDIS_POOL_SIZE="10"
//
// SSO settings:
//
//	DOCUSYNTH_BASE_URL="https://app.docusynth.io"
//	DOCUSYNTH_SSO_STATE_BACKEND="redis"  # redis, postgres, memory
//	DOCUSYNTH_SSO_AUDIT_DIR="/var/log/docusynth/sso-audit"
//	DOCUSYNTH_SSO_JANITOR_SCHEDULE="@every 5m"
//	DOCUSYNTH_SSO_PRESETS_FILE="/etc/docusynth/presets.yaml"
//	DOCUSYNTH_SSO_ALLOW_MANUAL_DOMAIN_VERIFY="false"
//
// Observability settings:
//
//	DOCUSYNTH_LOG_LEVEL="info"  # debug, info, warn, error
//	DOCUSYNTH_METRICS_ENABLED="true"
//	DOCUSYNTH_OTEL_ENABLED="true"
//	DOCUSYNTH_OTEL_ENDPOINT="otel-collector:4317"
//
// # Usage Example
//
// Load configuration:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Printf("Server: %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//	fmt.Printf("Base URL: %s\n", cfg.SSO.BaseURL)
//
// # Related Packages
//
//   - pkg/sso: Uses SSO configuration
//   - pkg/observability: Uses observability configuration
package config
