// pkg/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the top-level configuration structure.
type Config struct {
	App         AppConfig         `koanf:"app"`
	Collector   CollectorConfig   `koanf:"collector"`
	Processor   ProcessorConfig   `koanf:"processor"`
	Analyzer    AnalyzerConfig    `koanf:"analyzer"`
	AlertManager AlertManagerConfig `koanf:"alert_manager"`
	Log         LogConfig         `koanf:"log"`
	Metrics     MetricsConfig     `koanf:"metrics"`
	Tracing     TracingConfig     `koanf:"tracing"`
	Database    DatabaseConfig    `koanf:"database"`
	Cache       CacheConfig       `koanf:"cache"`
	Retry       RetryConfig       `koanf:"retry"`
	RateLimit   RateLimitConfig   `koanf:"rate_limit"`
	Audit       AuditConfig       `koanf:"audit"`
}

// AppConfig holds process-wide settings.
type AppConfig struct {
	Name        string `koanf:"name"`
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"` // development, staging, production
	Debug       bool   `koanf:"debug"`
}

// CollectorConfig configures the collector agent: its TCP forwarding target,
// queue sizing, batching, and optional file tailing.
type CollectorConfig struct {
	ServerAddr      string        `koanf:"server_addr"`
	QueueCapacity   int           `koanf:"queue_capacity"`
	WorkerCount     int           `koanf:"worker_count"`
	BatchSize       int           `koanf:"batch_size"`
	BatchInterval   time.Duration `koanf:"batch_interval"`
	MaxRetries      int           `koanf:"max_retries"`
	RetryBackoff    time.Duration `koanf:"retry_backoff"`
	CompressionMinBytes int       `koanf:"compression_min_bytes"`
	TailFiles       []TailConfig  `koanf:"tail_files"`
}

// TailConfig describes one file the collector tails and truncates as it
// consumes lines from it.
type TailConfig struct {
	Path         string        `koanf:"path"`
	PollInterval time.Duration `koanf:"poll_interval"`
	Source       string        `koanf:"source"`
}

// ProcessorConfig configures the TCP frame listener and its worker pool.
type ProcessorConfig struct {
	ListenAddr      string        `koanf:"listen_addr"`
	QueueCapacity   int           `koanf:"queue_capacity"`
	WorkerCount     int           `koanf:"worker_count"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	MaxLineBytes    int           `koanf:"max_line_bytes"`
	ProcessInterval time.Duration `koanf:"process_interval"`
	BatchSize       int           `koanf:"batch_size"`
	CompressArchive bool          `koanf:"compress_archive"`
}

// AnalyzerConfig configures the rule-evaluation worker pool.
type AnalyzerConfig struct {
	WorkerCount     int           `koanf:"worker_count"`
	QueueCapacity   int           `koanf:"queue_capacity"`
	RuleMaxRetries  int           `koanf:"rule_max_retries"`
	AnalyzeInterval time.Duration `koanf:"analyze_interval"`
	BatchSize       int           `koanf:"batch_size"`
	StoreResults    bool          `koanf:"store_results"`
}

// AlertManagerConfig configures alert dedup, resend cadence, and grouping.
type AlertManagerConfig struct {
	WorkerCount        int             `koanf:"worker_count"`
	BatchSize          int             `koanf:"batch_size"`
	CheckInterval      time.Duration   `koanf:"check_interval"`
	ResendInterval     time.Duration   `koanf:"resend_interval"`
	GroupInterval      time.Duration   `koanf:"group_interval"`
	SuppressDuplicates bool            `koanf:"suppress_duplicates"`
	Channels           []ChannelConfig `koanf:"channels"`
}

// ChannelConfig describes one configured notification channel.
type ChannelConfig struct {
	Name     string `koanf:"name"`
	Type     string `koanf:"type"` // email, webhook
	Target   string `koanf:"target"`
	Enabled  bool   `koanf:"enabled"`

	// SMTP fields, used when Type == "email". Target holds the recipient
	// address; SMTPAddr is host:port of the relay.
	SMTPAddr     string `koanf:"smtp_addr"`
	SMTPUsername string `koanf:"smtp_username"`
	SMTPPassword string `koanf:"smtp_password"`
	SMTPFrom     string `koanf:"smtp_from"`
}

// RateLimitConfig bounds per-connection submission rate on the processor's
// TCP listener.
type RateLimitConfig struct {
	Enabled         bool          `koanf:"enabled"`
	RequestsPerSec  int           `koanf:"requests_per_sec"`
	Burst           int           `koanf:"burst"`
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
}

// AuditConfig configures the alert manager's audit trail (rule/channel
// changes, alert trigger/resolve/ignore transitions).
type AuditConfig struct {
	Enabled     bool          `koanf:"enabled"`
	Backend     string        `koanf:"backend"` // stdout, file
	FilePath    string        `koanf:"file_path"`
	BufferSize  int           `koanf:"buffer_size"`
	FlushPeriod time.Duration `koanf:"flush_period"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level      string `koanf:"level"`       // debug, info, warn, error
	Format     string `koanf:"format"`      // json, text
	Output     string `koanf:"output"`      // stdout, stderr, file
	FilePath   string `koanf:"file_path"`
	MaxSize    int    `koanf:"max_size"`    // MB
	MaxBackups int    `koanf:"max_backups"`
	MaxAge     int    `koanf:"max_age"` // days
	Compress   bool   `koanf:"compress"`
}

// MetricsConfig configures the Prometheus metrics server.
type MetricsConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Port      int    `koanf:"port"`
	Path      string `koanf:"path"`
	Namespace string `koanf:"namespace"`
	Subsystem string `koanf:"subsystem"`
}

// TracingConfig configures the OpenTelemetry exporter.
type TracingConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint"`
	ServiceName string  `koanf:"service_name"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// DatabaseConfig configures the relational store connection.
type DatabaseConfig struct {
	Driver          string        `koanf:"driver"` // postgres
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Database        string        `koanf:"database"`
	Username        string        `koanf:"username"`
	Password        string        `koanf:"password"`
	SSLMode         string        `koanf:"ssl_mode"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time"`
	MigrationsPath  string        `koanf:"migrations_path"`
	AutoMigrate     bool          `koanf:"auto_migrate"`
}

// DSN builds a libpq-style connection string.
func (d DatabaseConfig) DSN() string {
	switch strings.ToLower(d.Driver) {
	case "postgres", "postgresql":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.Username, d.Password, d.Database, d.SSLMode,
		)
	default:
		return ""
	}
}

// CacheConfig configures the cache backend (strings/hashes/sets per the
// collector/processor/alert-manager key shapes).
type CacheConfig struct {
	Enabled    bool          `koanf:"enabled"`
	Driver     string        `koanf:"driver"` // redis, memory
	Host       string        `koanf:"host"`
	Port       int           `koanf:"port"`
	Password   string        `koanf:"password"`
	DB         int           `koanf:"db"`
	DefaultTTL time.Duration `koanf:"default_ttl"`
	MaxEntries int           `koanf:"max_entries"` // in-memory backend only
}

// Address returns the cache backend's host:port.
func (c CacheConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RetryConfig configures the shared exponential-backoff retry used by the
// collector's batch sink and the analyzer's per-rule retry budget.
type RetryConfig struct {
	MaxAttempts       int           `koanf:"max_attempts"`
	InitialBackoff    time.Duration `koanf:"initial_backoff"`
	MaxBackoff        time.Duration `koanf:"max_backoff"`
	BackoffMultiplier float64       `koanf:"backoff_multiplier"`
}

// Validate checks the configuration for obviously invalid values.
func (c *Config) Validate() error {
	var errs []string

	if c.App.Name == "" {
		errs = append(errs, "app.name is required")
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Sprintf("log.level must be one of: debug, info, warn, error, got %s", c.Log.Level))
	}

	if c.Collector.WorkerCount < 0 {
		errs = append(errs, "collector.worker_count must be non-negative")
	}
	if c.Processor.WorkerCount < 0 {
		errs = append(errs, "processor.worker_count must be non-negative")
	}
	if c.Analyzer.WorkerCount < 0 {
		errs = append(errs, "analyzer.worker_count must be non-negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return nil
}

// IsDevelopment reports whether App.Environment names a development mode.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development" || c.App.Environment == "dev"
}

// IsProduction reports whether App.Environment names production.
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production" || c.App.Environment == "prod"
}
