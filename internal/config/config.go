// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Crawler CrawlerConfig `mapstructure:"crawler"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Source  SourceConfig  `mapstructure:"source"`
	Archive ArchiveConfig `mapstructure:"archive"`
	Storage StorageConfig `mapstructure:"storage"`
	DB      DBConfig      `mapstructure:"db"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// CrawlerConfig governs the crawl run loop.
type CrawlerConfig struct {
	UserAgent        string `mapstructure:"user_agent"`
	MaxPages         int    `mapstructure:"max_pages"`
	RequestDelayMs   int    `mapstructure:"request_delay_ms"`
	RecentWindow     int    `mapstructure:"recent_window"`
	KnownStreak      int    `mapstructure:"known_streak"`
	ListFailureLimit int    `mapstructure:"list_failure_limit"`
}

// HTTPConfig configures the page fetcher.
type HTTPConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// SourceConfig locates the listing site.
type SourceConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// ArchiveConfig bounds image archiving.
type ArchiveConfig struct {
	MaxImageBytes int64 `mapstructure:"max_image_bytes"`
}

// StorageConfig selects and parameterizes the blob store.
type StorageConfig struct {
	// Provider is "gcs" or "memory".
	Provider  string `mapstructure:"provider"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	// Provider is "postgres" or "memory".
	Provider string `mapstructure:"provider"`
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// PubSubConfig names the downstream topics.
type PubSubConfig struct {
	// Provider is "pubsub" or "memory".
	Provider     string `mapstructure:"provider"`
	ProjectID    string `mapstructure:"project_id"`
	PendingTopic string `mapstructure:"pending_topic"`
	DLQTopic     string `mapstructure:"dlq_topic"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PETCRAWLER")
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
	v.SetDefault("server.port", 8080)
	v.SetDefault("crawler.user_agent", "petlife-ingest-bot/0.1")
	v.SetDefault("crawler.max_pages", 10)
	v.SetDefault("crawler.request_delay_ms", 500)
	v.SetDefault("crawler.recent_window", 50)
	v.SetDefault("crawler.known_streak", 3)
	v.SetDefault("crawler.list_failure_limit", 3)
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("source.base_url", "https://www.petlife.example.jp")
	v.SetDefault("archive.max_image_bytes", 10*1024*1024)
	v.SetDefault("storage.provider", "memory")
	v.SetDefault("storage.prefix", "pets")
	v.SetDefault("db.provider", "memory")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("pubsub.provider", "memory")
	v.SetDefault("pubsub.pending_topic", "pet-screenshot-pending")
	v.SetDefault("pubsub.dlq_topic", "pet-screenshot-dlq")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.MaxPages <= 0 {
		return fmt.Errorf("crawler.max_pages must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Source.BaseURL == "" {
		return fmt.Errorf("source.base_url must be set")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Storage.Provider {
	case "memory":
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for the gcs provider")
		}
	default:
		return fmt.Errorf("storage.provider must be gcs or memory")
	}
	switch c.DB.Provider {
	case "memory":
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set for the postgres provider")
		}
	default:
		return fmt.Errorf("db.provider must be postgres or memory")
	}
	switch c.PubSub.Provider {
	case "memory":
	case "pubsub":
		if c.PubSub.ProjectID == "" {
			return fmt.Errorf("pubsub.project_id must be set for the pubsub provider")
		}
	default:
		return fmt.Errorf("pubsub.provider must be pubsub or memory")
	}
	return nil
}

// FetchTimeout converts the HTTP timeout into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// RequestDelay converts the inter-request delay into a duration.
func (c Config) RequestDelay() time.Duration {
	return time.Duration(c.Crawler.RequestDelayMs) * time.Millisecond
}
