package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "deckhand.yaml"

// Load returns a Config from the default YAML path, using the hierarchy
// defaults < YAML < ENV.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom builds a Config by layering the optional YAML file and then the
// environment over Defaults, validating the result.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML overlays the YAML file onto cfg. A missing file is fine, the
// defaults simply stand.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// loadEnv overlays environment variables onto cfg. Unset variables leave
// the current value alone, as do values that fail to parse.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "DECKHAND_PORT")
	setString(&cfg.Server.CORSOrigin, "DECKHAND_CORS_ORIGIN")
	setString(&cfg.Server.TokenHash, "DECKHAND_TOKEN_HASH")

	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "DECKHAND_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "DECKHAND_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "DECKHAND_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "DECKHAND_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "DECKHAND_PG_HEALTH_CHECK")

	setString(&cfg.NATS.URL, "NATS_URL")

	setInt64(&cfg.Cache.MaxSizeMB, "DECKHAND_CACHE_SIZE_MB")
	setDuration(&cfg.Cache.DefaultTTL, "DECKHAND_CACHE_TTL")

	setString(&cfg.Logging.Level, "DECKHAND_LOG_LEVEL")
	setString(&cfg.Logging.Service, "DECKHAND_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "DECKHAND_LOG_ASYNC")

	setString(&cfg.Otel.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")

	setString(&cfg.Stream.Transport, "DECKHAND_STREAM_TRANSPORT")
	setDuration(&cfg.Stream.MaxBackoff, "DECKHAND_STREAM_MAX_BACKOFF")

	setString(&cfg.Backend.Command, "DECKHAND_BACKEND_COMMAND")
	setDuration(&cfg.Backend.LaunchTimeout, "DECKHAND_BACKEND_LAUNCH_TIMEOUT")
	setInt64(&cfg.Backend.MaxLaunches, "DECKHAND_BACKEND_MAX_LAUNCHES")

	setBool(&cfg.MCP.Enabled, "DECKHAND_MCP_ENABLED")
	setString(&cfg.MCP.Addr, "DECKHAND_MCP_ADDR")
	setString(&cfg.MCP.APIKey, "DECKHAND_MCP_API_KEY")
}

// validate rejects configs the server cannot start with.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Stream.Transport != "sse" && cfg.Stream.Transport != "socket" {
		return fmt.Errorf("stream.transport must be \"sse\" or \"socket\", got %q", cfg.Stream.Transport)
	}
	if cfg.Stream.MaxBackoff <= 0 {
		return errors.New("stream.max_backoff must be positive")
	}
	if cfg.Backend.Command != "" && cfg.Backend.LaunchTimeout <= 0 {
		return errors.New("backend.launch_timeout must be positive when backend.command is set")
	}
	return nil
}

// The set helpers treat an unset variable and an unparsable value the same
// way: the destination keeps what it had. Strings need the explicit
// emptiness check; the parsers below already fail on "".

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt32(dst *int32, key string) {
	if n, err := strconv.ParseInt(os.Getenv(key), 10, 32); err == nil {
		*dst = int32(n)
	}
}

func setInt64(dst *int64, key string) {
	if n, err := strconv.ParseInt(os.Getenv(key), 10, 64); err == nil {
		*dst = n
	}
}

func setBool(dst *bool, key string) {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		*dst = b
	}
}

func setDuration(dst *time.Duration, key string) {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		*dst = d
	}
}
