package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/haasonsaas/inferprice/internal/retry"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	return writeNamed(t, t.TempDir(), "inferprice.yaml", content)
}

func writeNamed(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "version: 1\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Source.URL != DefaultSourceURL || cfg.Source.CacheTTL != time.Hour {
		t.Errorf("source defaults = %+v", cfg.Source)
	}
	if cfg.Source.Retry != retry.DefaultPolicy() {
		t.Errorf("retry defaults = %+v", cfg.Source.Retry)
	}
	if cfg.Storage.Driver != DriverMemory || cfg.Server.Addr() != "0.0.0.0:8080" {
		t.Errorf("storage/server defaults = %+v %+v", cfg.Storage, cfg.Server)
	}
	if len(cfg.Classification.AllowedVendors) != 5 || len(cfg.Classification.HiddenCategoryIDs) != 1 {
		t.Errorf("classification defaults = %+v", cfg.Classification)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("logging defaults = %+v", cfg.Logging)
	}
}

func TestDefaultIsValid(t *testing.T) {
	if err := Validate(Default()); err != nil {
		t.Fatalf("Default() should validate: %v", err)
	}
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
version: 1
source:
  url: https://example.test/models.json
  timeout: 5s
  refresh: "0 * * * *"
  cache_ttl: 10m
  retry:
    max_attempts: 5
    initial_delay: 250ms
storage:
  driver: sqlite
  dsn: file:prices.db
classification:
  allowed_vendors: ["*"]
  hidden_category_ids: []
  anomalies:
    exceptions: [o1-pro]
server:
  port: 9000
  sample_input: hi
backup:
  s3:
    bucket: pricing
    region: us-east-1
logging:
  level: debug
  format: text
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Source.Timeout != 5*time.Second || cfg.Source.CacheTTL != 10*time.Minute {
		t.Errorf("durations = %v / %v", cfg.Source.Timeout, cfg.Source.CacheTTL)
	}
	if cfg.Source.Retry.MaxAttempts != 5 || cfg.Source.Retry.InitialDelay != 250*time.Millisecond {
		t.Errorf("retry = %+v", cfg.Source.Retry)
	}
	if cfg.Storage.Driver != DriverSQLite || cfg.Storage.DSN != "file:prices.db" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if len(cfg.Classification.HiddenCategoryIDs) != 0 {
		t.Errorf("explicit empty hidden ids should be kept, got %v", cfg.Classification.HiddenCategoryIDs)
	}
	if !cfg.Backup.S3.Enabled() || cfg.Server.Port != 9000 {
		t.Errorf("backup/server = %+v %+v", cfg.Backup, cfg.Server)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, `
version: 1
server:
  host: 0.0.0.0
  extra: true
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadRequiresVersion(t *testing.T) {
	_, err := Load(writeConfig(t, "server:\n  port: 8080\n"))
	var ve *VersionError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *VersionError, got %v", err)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		mention string
	}{
		{"bad driver", "storage:\n  driver: mongo\n", "storage.driver"},
		{"file without dir", "storage:\n  driver: file\n", "storage.dir"},
		{"postgres without dsn", "storage:\n  driver: postgres\n", "storage.dsn"},
		{"watch without file driver", "storage:\n  watch: true\n", "storage.watch"},
		{"bad cron", "source:\n  refresh: every hour\n", "source.refresh"},
		{"bad url", "source:\n  url: ftp://x\n", "source.url"},
		{"bad port", "server:\n  port: 70000\n", "server.port"},
		{"bad level", "logging:\n  level: loud\n", "logging.level"},
		{"bad sampling", "tracing:\n  sampling_rate: 2\n", "sampling_rate"},
		{"s3 without region", "backup:\n  s3:\n    bucket: b\n", "backup.s3.region"},
		{"bad hidden id", "classification:\n  hidden_category_ids: [0]\n", "hidden_category_ids"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "version: 1\n"+tt.body))
			var ve *ConfigValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected *ConfigValidationError, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.mention) {
				t.Errorf("error %q should mention %q", err, tt.mention)
			}
		})
	}
}

func TestLoadValidationAggregates(t *testing.T) {
	_, err := Load(writeConfig(t, "version: 1\nserver:\n  port: -1\nlogging:\n  format: xml\n"))
	var ve *ConfigValidationError
	if !errors.As(err, &ve) || len(ve.Issues) != 2 {
		t.Fatalf("expected 2 issues, got %v", err)
	}
}

func TestLoadIncludesAndEnv(t *testing.T) {
	dir := t.TempDir()
	writeNamed(t, dir, "base.yaml", "version: 1\nserver:\n  port: 7000\n  host: 127.0.0.1\n")
	t.Setenv("INFERPRICE_TEST_PORT", "7100")
	path := writeNamed(t, dir, "main.yaml", `
$include: base.yaml
server:
  port: ${INFERPRICE_TEST_PORT}
storage:
  driver: ${INFERPRICE_TEST_DRIVER:-memory}
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 7100 || cfg.Server.Host != "127.0.0.1" {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Storage.Driver != DriverMemory {
		t.Errorf("driver default from env expansion = %q", cfg.Storage.Driver)
	}
}

func TestLoadIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeNamed(t, dir, "a.yaml", "$include: b.yaml\nversion: 1\n")
	writeNamed(t, dir, "b.yaml", "$include: a.yaml\n")
	_, err := Load(filepath.Join(dir, "a.yaml"))
	if err == nil || !strings.Contains(err.Error(), "cycle") {
		t.Fatalf("expected include cycle error, got %v", err)
	}
}

func TestLoadJSON5(t *testing.T) {
	path := writeNamed(t, t.TempDir(), "inferprice.json5", `{
  // comments are allowed
  version: 1,
  storage: {driver: "file", dir: "data"},
}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Storage.Driver != DriverFile || cfg.Storage.Dir != "data" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
}

func TestJSONSchema(t *testing.T) {
	data, err := JSONSchema()
	if err != nil {
		t.Fatalf("JSONSchema() error = %v", err)
	}
	var schema map[string]any
	if err := json.Unmarshal(data, &schema); err != nil {
		t.Fatalf("schema is not JSON: %v", err)
	}
	for _, field := range []string{"source", "storage", "classification", "backup"} {
		if !strings.Contains(string(data), `"`+field+`"`) {
			t.Errorf("schema missing %q", field)
		}
	}
}
