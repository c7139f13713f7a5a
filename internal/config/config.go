// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Source  SourceConfig  `mapstructure:"source"`
	Crawl   CrawlConfig   `mapstructure:"crawl"`
	Store   StoreConfig   `mapstructure:"store"`
	Publish PublishConfig `mapstructure:"publish"`
	Backup  BackupConfig  `mapstructure:"backup"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// SourceConfig points at the remote item API.
type SourceConfig struct {
	BaseURL           string  `mapstructure:"base_url"`
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
	UserAgent         string  `mapstructure:"user_agent"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// CrawlConfig governs the worker pool and progress reporting.
type CrawlConfig struct {
	Workers           int   `mapstructure:"workers"`
	BatchSize         int   `mapstructure:"batch_size"`
	ReportingInterval int64 `mapstructure:"reporting_interval"`
	ProgressBar       bool  `mapstructure:"progress_bar"`
}

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// StoreConfig selects and configures the item store.
type StoreConfig struct {
	Driver   string `mapstructure:"driver"`
	Path     string `mapstructure:"path"`
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// PublishConfig controls batch-committed notifications.
type PublishConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// BackupConfig controls the post-run store snapshot upload.
type BackupConfig struct {
	Provider string `mapstructure:"provider"`
	Bucket   string `mapstructure:"bucket"`
	Dir      string `mapstructure:"dir"`
	Prefix   string `mapstructure:"prefix"`
}

// ServerConfig controls the optional status HTTP server.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig toggles zap development features and the minimum level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ITEMCRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("source.base_url", "https://hacker-news.firebaseio.com/v0")
	v.SetDefault("source.timeout_seconds", 15)
	v.SetDefault("source.user_agent", "item-crawler/0.1")
	v.SetDefault("source.requests_per_second", 0)
	v.SetDefault("source.burst", 1)
	v.SetDefault("crawl.workers", 50)
	v.SetDefault("crawl.batch_size", 500)
	v.SetDefault("crawl.reporting_interval", 1000)
	v.SetDefault("crawl.progress_bar", false)
	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("store.path", "data/items.db")
	v.SetDefault("store.table", "items")
	v.SetDefault("store.max_conns", 8)
	// Empty defaults register the keys so env-only overrides reach Unmarshal.
	v.SetDefault("store.dsn", "")
	v.SetDefault("publish.provider", "none")
	v.SetDefault("publish.project_id", "")
	v.SetDefault("publish.topic", "")
	v.SetDefault("backup.provider", "none")
	v.SetDefault("backup.bucket", "")
	v.SetDefault("backup.dir", "")
	v.SetDefault("backup.prefix", "backups")
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 9090)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	u, err := url.Parse(c.Source.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("source.base_url must be an absolute URL")
	}
	if c.Source.TimeoutSeconds <= 0 {
		return fmt.Errorf("source.timeout_seconds must be > 0")
	}
	if c.Source.RequestsPerSecond < 0 {
		return fmt.Errorf("source.requests_per_second must be >= 0")
	}
	if c.Crawl.Workers <= 0 {
		return fmt.Errorf("crawl.workers must be > 0")
	}
	if c.Crawl.BatchSize <= 0 {
		return fmt.Errorf("crawl.batch_size must be > 0")
	}
	if c.Crawl.ReportingInterval <= 0 {
		return fmt.Errorf("crawl.reporting_interval must be > 0")
	}
	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for the postgres driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("store.driver %q is not supported", c.Store.Driver)
	}
	switch c.Publish.Provider {
	case "", "none", "memory":
	case "pubsub":
		if c.Publish.ProjectID == "" || c.Publish.Topic == "" {
			return fmt.Errorf("publish.project_id and publish.topic are required for pubsub")
		}
	default:
		return fmt.Errorf("publish.provider %q is not supported", c.Publish.Provider)
	}
	switch c.Backup.Provider {
	case "", "none":
	case "gcs":
		if c.Backup.Bucket == "" {
			return fmt.Errorf("backup.bucket is required for gcs backups")
		}
	case "local":
		if c.Backup.Dir == "" {
			return fmt.Errorf("backup.dir is required for local backups")
		}
	default:
		return fmt.Errorf("backup.provider %q is not supported", c.Backup.Provider)
	}
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0 when the server is enabled")
	}
	return nil
}

// SourceTimeout converts the per-request timeout into a duration.
func (c Config) SourceTimeout() time.Duration {
	return time.Duration(c.Source.TimeoutSeconds) * time.Second
}
