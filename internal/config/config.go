// Package config loads the inferprice configuration file.
package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/haasonsaas/inferprice/internal/ratelimit"
	"github.com/haasonsaas/inferprice/internal/retry"
)

// DefaultSourceURL is the upstream models endpoint.
const DefaultSourceURL = "https://data.silv.app/ai/models.json"

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var storageDrivers = []string{DriverMemory, DriverFile, DriverSQLite, DriverPostgres}

// Config is the main configuration structure for inferprice.
type Config struct {
	Version        int                  `yaml:"version"`
	Source         SourceConfig         `yaml:"source"`
	Storage        StorageConfig        `yaml:"storage"`
	Classification ClassificationConfig `yaml:"classification"`
	Server         ServerConfig         `yaml:"server"`
	Backup         BackupConfig         `yaml:"backup"`
	Logging        LoggingConfig        `yaml:"logging"`
	Tracing        TracingConfig        `yaml:"tracing"`
}

// SourceConfig describes where raw pricing data comes from.
type SourceConfig struct {
	// URL is the upstream JSON endpoint.
	URL string `yaml:"url"`
	// File reads the payload from disk instead of URL when set.
	File      string        `yaml:"file"`
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
	Retry     retry.Policy  `yaml:"retry"`
	// Refresh is a cron expression for scheduled re-fetches. Empty disables.
	Refresh string `yaml:"refresh"`
	// CacheTTL is how long a loaded graph is served before reloading.
	CacheTTL time.Duration `yaml:"cache_ttl"`
	// Fallback serves a minimal graph when the upstream fetch fails.
	Fallback bool `yaml:"fallback"`
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	Driver string `yaml:"driver"` // memory | file | sqlite | postgres
	// Dir holds models.json, categories.json and vendors.json for the file driver.
	Dir string `yaml:"dir"`
	// DSN is the database connection string for sqlite and postgres.
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	// Watch reloads the file store when its files change.
	Watch bool `yaml:"watch"`
}

// ClassificationConfig controls how upstream records are classified and
// filtered during normalization.
type ClassificationConfig struct {
	// RulesFile overrides the built-in vendor/category/tier rules.
	RulesFile string `yaml:"rules_file"`
	// AllowedVendors lists vendor keys kept from upstream; "*" keeps all.
	AllowedVendors []string `yaml:"allowed_vendors"`
	// HiddenCategoryIDs are dropped from canonical payloads.
	HiddenCategoryIDs []int         `yaml:"hidden_category_ids"`
	Anomalies         AnomalyConfig `yaml:"anomalies"`
}

// AnomalyConfig tunes pricing anomaly detection. Zero values keep the
// built-in thresholds.
type AnomalyConfig struct {
	SuspiciousLow float64  `yaml:"suspicious_low"`
	MaxInput      float64  `yaml:"max_input"`
	MaxOutput     float64  `yaml:"max_output"`
	Exceptions    []string `yaml:"exceptions"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// SampleInput and SampleOutput override the default sample conversation.
	SampleInput  string `yaml:"sample_input"`
	SampleOutput string `yaml:"sample_output"`
	// AllowedOrigins enables CORS for browser clients; "*" allows any.
	AllowedOrigins []string `yaml:"allowed_origins"`
	// RateLimit limits /api requests per client address.
	RateLimit ratelimit.Config `yaml:"rate_limit"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// BackupConfig configures pricing backups.
type BackupConfig struct {
	Dir string `yaml:"dir"`
	// Keep is the number of timestamped backups retained in Dir.
	Keep int      `yaml:"keep"`
	S3   S3Config `yaml:"s3"`
}

// S3Config configures optional backup uploads. Without static keys,
// credentials come from the standard AWS environment and shared config files.
type S3Config struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
	Region string `yaml:"region"`
	// Endpoint targets S3-compatible storage such as MinIO.
	Endpoint        string `yaml:"endpoint"`
	UsePathStyle    bool   `yaml:"use_path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// Enabled reports whether uploads are configured.
func (s S3Config) Enabled() bool {
	return strings.TrimSpace(s.Bucket) != ""
}

type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

// TracingConfig controls OpenTelemetry tracing.
type TracingConfig struct {
	Endpoint       string            `yaml:"endpoint"`
	ServiceName    string            `yaml:"service_name"`
	ServiceVersion string            `yaml:"service_version"`
	Environment    string            `yaml:"environment"`
	SamplingRate   float64           `yaml:"sampling_rate"`
	Insecure       bool              `yaml:"insecure"`
	Attributes     map[string]string `yaml:"attributes"`
}

// ConfigValidationError aggregates every problem found in a config.
type ConfigValidationError struct {
	Issues []string
}

func (e *ConfigValidationError) Error() string {
	return "invalid config: " + strings.Join(e.Issues, "; ")
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{Version: CurrentVersion}
	applyDefaults(cfg)
	return cfg
}

// Load reads, merges, decodes and validates the configuration file.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}
	if err := ValidateVersion(cfg.Version); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Source.URL == "" {
		cfg.Source.URL = DefaultSourceURL
	}
	if cfg.Source.Timeout == 0 {
		cfg.Source.Timeout = 30 * time.Second
	}
	if cfg.Source.UserAgent == "" {
		cfg.Source.UserAgent = "inference-pricing-tool"
	}
	if cfg.Source.Retry == (retry.Policy{}) {
		cfg.Source.Retry = retry.DefaultPolicy()
	}
	if cfg.Source.CacheTTL == 0 {
		cfg.Source.CacheTTL = time.Hour
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = DriverMemory
	}
	if cfg.Storage.MaxOpenConns == 0 {
		cfg.Storage.MaxOpenConns = 10
	}
	if cfg.Storage.MaxIdleConns == 0 {
		cfg.Storage.MaxIdleConns = 2
	}
	if cfg.Storage.ConnMaxLifetime == 0 {
		cfg.Storage.ConnMaxLifetime = 5 * time.Minute
	}
	if len(cfg.Classification.AllowedVendors) == 0 {
		cfg.Classification.AllowedVendors = []string{"anthropic", "google", "meta", "deepseek", "inference-net"}
	}
	if cfg.Classification.HiddenCategoryIDs == nil {
		cfg.Classification.HiddenCategoryIDs = []int{6}
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Backup.Dir == "" {
		cfg.Backup.Dir = "backups"
	}
	if cfg.Backup.Keep == 0 {
		cfg.Backup.Keep = 20
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = "inferprice"
	}
}

// Validate checks cross-field constraints and returns a
// *ConfigValidationError listing every issue.
func Validate(cfg *Config) error {
	var issues []string

	if cfg.Source.File == "" && !strings.HasPrefix(cfg.Source.URL, "http://") && !strings.HasPrefix(cfg.Source.URL, "https://") {
		issues = append(issues, fmt.Sprintf("source.url must be an http(s) URL, got %q", cfg.Source.URL))
	}
	if cfg.Source.Timeout < 0 {
		issues = append(issues, "source.timeout must not be negative")
	}
	if cfg.Source.Refresh != "" {
		if _, err := cron.ParseStandard(cfg.Source.Refresh); err != nil {
			issues = append(issues, fmt.Sprintf("source.refresh: %v", err))
		}
	}

	switch cfg.Storage.Driver {
	case DriverFile:
		if strings.TrimSpace(cfg.Storage.Dir) == "" {
			issues = append(issues, "storage.dir is required for the file driver")
		}
	case DriverSQLite, DriverPostgres:
		if strings.TrimSpace(cfg.Storage.DSN) == "" {
			issues = append(issues, fmt.Sprintf("storage.dsn is required for the %s driver", cfg.Storage.Driver))
		}
	}
	if !slices.Contains(storageDrivers, cfg.Storage.Driver) {
		issues = append(issues, fmt.Sprintf("storage.driver must be one of %s, got %q", strings.Join(storageDrivers, ", "), cfg.Storage.Driver))
	}
	if cfg.Storage.Watch && cfg.Storage.Driver != DriverFile {
		issues = append(issues, "storage.watch requires the file driver")
	}

	for _, id := range cfg.Classification.HiddenCategoryIDs {
		if id <= 0 {
			issues = append(issues, fmt.Sprintf("classification.hidden_category_ids: invalid id %d", id))
		}
	}
	a := cfg.Classification.Anomalies
	if a.SuspiciousLow < 0 || a.MaxInput < 0 || a.MaxOutput < 0 {
		issues = append(issues, "classification.anomalies thresholds must not be negative")
	}

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		issues = append(issues, fmt.Sprintf("server.port out of range: %d", cfg.Server.Port))
	}
	if rl := cfg.Server.RateLimit; rl.RequestsPerSecond < 0 || rl.Burst < 0 {
		issues = append(issues, "server.rate_limit values must not be negative")
	}

	if cfg.Backup.Keep < 0 {
		issues = append(issues, "backup.keep must not be negative")
	}
	if cfg.Backup.S3.Enabled() && cfg.Backup.S3.Region == "" && cfg.Backup.S3.Endpoint == "" {
		issues = append(issues, "backup.s3.region is required when backup.s3.bucket is set")
	}

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		issues = append(issues, fmt.Sprintf("logging.level must be debug, info, warn or error, got %q", cfg.Logging.Level))
	}
	if cfg.Logging.Format != "json" && cfg.Logging.Format != "text" {
		issues = append(issues, fmt.Sprintf("logging.format must be json or text, got %q", cfg.Logging.Format))
	}

	if cfg.Tracing.SamplingRate < 0 || cfg.Tracing.SamplingRate > 1 {
		issues = append(issues, "tracing.sampling_rate must be between 0 and 1")
	}

	if len(issues) > 0 {
		return &ConfigValidationError{Issues: issues}
	}
	return nil
}
