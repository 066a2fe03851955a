package config

import (
	"os"
	"strconv"
	"strings"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "CODECROW_"

// applyEnvOverrides applies CODECROW_* environment variables on top of the
// file values:
//   - CODECROW_SERVER_HOST, CODECROW_SERVER_PORT, CODECROW_SERVER_DEBUG
//   - CODECROW_DATABASE_DRIVER, CODECROW_DATABASE_DSN
//   - CODECROW_LOG_LEVEL, CODECROW_LOG_FORMAT, CODECROW_LOG_FILE
//   - CODECROW_AI_ENDPOINT, CODECROW_AI_OUTPUT_LANGUAGE
//   - CODECROW_INSTANCE_ID, CODECROW_LOCK_WAIT_MINUTES
//   - CODECROW_JWT_SECRET
//   - CODECROW_TELEMETRY_ENABLED, CODECROW_OTLP_ENDPOINT, CODECROW_PROMETHEUS_ENABLED
//   - CODECROW_<PROVIDER>_TOKEN, CODECROW_<PROVIDER>_WEBHOOK_SECRET for configured providers
func applyEnvOverrides(cfg *Config) {
	setString(&cfg.Server.Host, "SERVER_HOST")
	setInt(&cfg.Server.Port, "SERVER_PORT")
	setBool(&cfg.Server.Debug, "SERVER_DEBUG")

	setString(&cfg.Database.Driver, "DATABASE_DRIVER")
	setString(&cfg.Database.DSN, "DATABASE_DSN")

	setString(&cfg.Logging.Level, "LOG_LEVEL")
	setString(&cfg.Logging.Format, "LOG_FORMAT")
	setString(&cfg.Logging.File, "LOG_FILE")

	setString(&cfg.AI.Endpoint, "AI_ENDPOINT")
	setString(&cfg.AI.OutputLanguage, "AI_OUTPUT_LANGUAGE")

	setString(&cfg.Analysis.InstanceID, "INSTANCE_ID")
	setInt(&cfg.Analysis.LockWaitMinutes, "LOCK_WAIT_MINUTES")

	setString(&cfg.Auth.JWTSecret, "JWT_SECRET")

	setBool(&cfg.Telemetry.Enabled, "TELEMETRY_ENABLED")
	setString(&cfg.Telemetry.OTLP.Endpoint, "OTLP_ENDPOINT")
	setBool(&cfg.Telemetry.Prometheus.Enabled, "PROMETHEUS_ENABLED")

	for i := range cfg.Providers {
		name := strings.ToUpper(cfg.Providers[i].Type)
		setString(&cfg.Providers[i].Token, name+"_TOKEN")
		setString(&cfg.Providers[i].WebhookSecret, name+"_WEBHOOK_SECRET")
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		*dst = parseBool(v)
	}
}

// parseBool parses a boolean string value
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}
