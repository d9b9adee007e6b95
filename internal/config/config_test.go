package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
crawler:
  user_agent: petlife-agent
  max_pages: 20
  request_delay_ms: 250
  recent_window: 100
  known_streak: 5
  list_failure_limit: 2
http:
  timeout_seconds: 45
source:
  base_url: https://staging.petlife.example.jp
archive:
  max_image_bytes: 5242880
storage:
  provider: gcs
  gcs_bucket: pet-images
  prefix: archive
db:
  provider: postgres
  dsn: postgres://crawler@localhost:5432/pets
pubsub:
  provider: pubsub
  project_id: petlife-prod
  pending_topic: screenshots
  dlq_topic: screenshots-dlq
logging:
  development: false
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.True(t, cfg.Auth.Enabled)
	require.Equal(t, "secret", cfg.Auth.APIKey)
	require.Equal(t, 20, cfg.Crawler.MaxPages)
	require.Equal(t, 100, cfg.Crawler.RecentWindow)
	require.Equal(t, "https://staging.petlife.example.jp", cfg.Source.BaseURL)
	require.Equal(t, int64(5242880), cfg.Archive.MaxImageBytes)
	require.Equal(t, "gcs", cfg.Storage.Provider)
	require.Equal(t, "pet-images", cfg.Storage.GCSBucket)
	require.Equal(t, "postgres", cfg.DB.Provider)
	require.Equal(t, "screenshots-dlq", cfg.PubSub.DLQTopic)
	require.False(t, cfg.Logging.Development)
	require.Equal(t, 45*time.Second, cfg.FetchTimeout())
	require.Equal(t, 250*time.Millisecond, cfg.RequestDelay())
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, 10, cfg.Crawler.MaxPages)
	require.Equal(t, 500*time.Millisecond, cfg.RequestDelay())
	require.Equal(t, "memory", cfg.Storage.Provider)
	require.Equal(t, "memory", cfg.DB.Provider)
	require.Equal(t, "memory", cfg.PubSub.Provider)
	require.Equal(t, int64(10*1024*1024), cfg.Archive.MaxImageBytes)
	require.True(t, cfg.Logging.Development)
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	base := func() Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"zero pages", func(c *Config) { c.Crawler.MaxPages = 0 }, "crawler.max_pages"},
		{"auth without key", func(c *Config) { c.Auth.Enabled = true }, "auth.api_key"},
		{"gcs without bucket", func(c *Config) { c.Storage.Provider = "gcs" }, "storage.gcs_bucket"},
		{"postgres without dsn", func(c *Config) { c.DB.Provider = "postgres" }, "db.dsn"},
		{"unknown queue provider", func(c *Config) { c.PubSub.Provider = "kafka" }, "pubsub.provider"},
		{"missing base url", func(c *Config) { c.Source.BaseURL = "" }, "source.base_url"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := base()
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.True(t, strings.Contains(err.Error(), tc.wantErr), err.Error())
		})
	}
}
