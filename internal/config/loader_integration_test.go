package config

import (
	"os"
	"testing"
)

// Tests covering the whole LoadFrom pipeline and hot reload through Holder:
// defaults < YAML < environment, validated at the end.

func TestLoadFromLayersEnvOverYAML(t *testing.T) {
	path := writeYAML(t, `
server:
  port: "9090"
logging:
  level: "debug"
`)
	t.Setenv("DECKHAND_PORT", "7070")
	t.Setenv("DECKHAND_LOG_LEVEL", "warn")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Errorf("port = %q, env must beat YAML", cfg.Server.Port)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("level = %q, env must beat YAML", cfg.Logging.Level)
	}
}

func TestLoadFromKeepsUntouchedDefaults(t *testing.T) {
	path := writeYAML(t, `
logging:
  level: "error"
`)

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	if cfg.Logging.Level != "error" {
		t.Errorf("level = %q", cfg.Logging.Level)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("port = %q, want the default", cfg.Server.Port)
	}
	if cfg.Postgres.MaxConns != 15 {
		t.Errorf("max_conns = %d, want the default", cfg.Postgres.MaxConns)
	}
	// NATS_URL may be set by the dev environment, so only require presence.
	if cfg.NATS.URL == "" {
		t.Error("nats url is empty")
	}
}

func TestLoadFromSurvivesGarbageEnv(t *testing.T) {
	path := writeYAML(t, "")

	t.Setenv("DECKHAND_PG_MAX_CONNS", "notanumber")
	t.Setenv("DECKHAND_STREAM_MAX_BACKOFF", "eventually")
	t.Setenv("DECKHAND_BACKEND_MAX_LAUNCHES", "abc")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	if cfg.Postgres.MaxConns != 15 {
		t.Errorf("max_conns = %d, garbage env must be ignored", cfg.Postgres.MaxConns)
	}
	if cfg.Stream.MaxBackoff.String() != "30s" {
		t.Errorf("max backoff = %v, garbage env must be ignored", cfg.Stream.MaxBackoff)
	}
	if cfg.Backend.MaxLaunches != 4 {
		t.Errorf("max launches = %d, garbage env must be ignored", cfg.Backend.MaxLaunches)
	}
}

func TestLoadFromWithoutFile(t *testing.T) {
	cfg, err := LoadFrom("/nonexistent/deckhand.yaml")
	if err != nil {
		t.Fatalf("missing file must not fail the load: %v", err)
	}
	if cfg.Server.Port != "8080" || cfg.Logging.Level != "info" {
		t.Errorf("cfg = %q/%q, want pure defaults", cfg.Server.Port, cfg.Logging.Level)
	}
}

func TestLoadFromRejectsMalformedYAML(t *testing.T) {
	path := writeYAML(t, `{{{not yaml`)
	if _, err := LoadFrom(path); err == nil {
		t.Fatal("malformed YAML loaded without error")
	}
}

func TestLoadFromValidatesTheMergedResult(t *testing.T) {
	// The file itself parses; the merged config is invalid.
	path := writeYAML(t, `
server:
  port: ""
`)
	if _, err := LoadFrom(path); err == nil {
		t.Fatal("empty port passed validation")
	}
}

func TestLoadFromReadsBackendSection(t *testing.T) {
	path := writeYAML(t, `
backend:
  command: "opencode-nightly"
  serve_args: ["serve", "--hostname", "127.0.0.1"]
  max_launches: 2
`)

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	if cfg.Backend.Command != "opencode-nightly" {
		t.Errorf("command = %q", cfg.Backend.Command)
	}
	if len(cfg.Backend.ServeArgs) != 3 || cfg.Backend.ServeArgs[1] != "--hostname" {
		t.Errorf("serve_args = %v", cfg.Backend.ServeArgs)
	}
	if cfg.Backend.MaxLaunches != 2 {
		t.Errorf("max_launches = %d", cfg.Backend.MaxLaunches)
	}
	if cfg.Backend.LaunchTimeout.String() != "20s" {
		t.Errorf("launch_timeout = %v, want the default", cfg.Backend.LaunchTimeout)
	}
}

func TestHolderReloadPicksUpChanges(t *testing.T) {
	path := writeYAML(t, `
logging:
  level: "info"
cache:
  max_size_mb: 32
`)

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	holder := NewHolder(cfg, path)

	if err := os.WriteFile(path, []byte(`
logging:
  level: "debug"
cache:
  max_size_mb: 128
`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := holder.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	got := holder.Get()
	if got.Logging.Level != "debug" {
		t.Errorf("level after reload = %q", got.Logging.Level)
	}
	if got.Cache.MaxSizeMB != 128 {
		t.Errorf("cache size after reload = %d", got.Cache.MaxSizeMB)
	}
}

func TestHolderKeepsOldConfigOnBadReload(t *testing.T) {
	path := writeYAML(t, `
server:
  port: "9090"
`)

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	holder := NewHolder(cfg, path)

	if err := os.WriteFile(path, []byte(`
server:
  port: ""
`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := holder.Reload(); err == nil {
		t.Fatal("reload of an invalid config succeeded")
	}

	if got := holder.Get(); got.Server.Port != "9090" {
		t.Errorf("port = %q, failed reload must keep the old config", got.Server.Port)
	}
}

func TestHolderReloadAppliesEnv(t *testing.T) {
	path := writeYAML(t, `
logging:
  level: "info"
`)

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	holder := NewHolder(cfg, path)

	t.Setenv("DECKHAND_LOG_LEVEL", "error")
	if err := holder.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	if got := holder.Get(); got.Logging.Level != "error" {
		t.Errorf("level = %q, reload must re-apply env", got.Logging.Level)
	}
}
