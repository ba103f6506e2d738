package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Ops.Port)
	require.Equal(t, 60, cfg.RateLimit.WindowSeconds)
	require.Equal(t, 100, cfg.RateLimit.DefaultQuota)
	require.Equal(t, time.Minute, cfg.RateLimit.Window())
	require.Equal(t, 2*time.Minute, cfg.RateLimit.MaxWait())
	require.Equal(t, 300, cfg.ProxyPool.CheckIntervalSeconds)
	require.Equal(t, 10, cfg.ProxyPool.CheckConcurrency)
	require.Equal(t, 1000, cfg.CookiePool.MaxUses)
	require.Equal(t, 3, cfg.Executor.MaxAttempts)
	require.Equal(t, 5, cfg.Dispatch.BlockingWorkers)
	require.Equal(t, "memory", cfg.Store.Provider)
	require.Equal(t, "local", cfg.Storage.Provider)
	require.Equal(t, "memory", cfg.Publisher.Provider)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
rate_limit:
  window_seconds: 30
  default_quota: 5
  domain_quotas:
    api.example.com: 50
cookie_pool:
  max_uses: 10
store:
  provider: postgres
  dsn: postgres://localhost/collector
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 30, cfg.RateLimit.WindowSeconds)
	require.Equal(t, 5, cfg.RateLimit.DefaultQuota)
	require.Equal(t, 50, cfg.RateLimit.DomainQuotas["api.example.com"])
	require.Equal(t, 10, cfg.CookiePool.MaxUses)
	require.Equal(t, "postgres", cfg.Store.Provider)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/does/not/exist.yaml")
	require.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	base, err := Load("")
	require.NoError(t, err)

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero window", func(c *Config) { c.RateLimit.WindowSeconds = 0 }},
		{"zero quota", func(c *Config) { c.RateLimit.DefaultQuota = 0 }},
		{"zero max uses", func(c *Config) { c.CookiePool.MaxUses = 0 }},
		{"zero attempts", func(c *Config) { c.Executor.MaxAttempts = 0 }},
		{"zero workers", func(c *Config) { c.Dispatch.BlockingWorkers = 0 }},
		{"postgres without dsn", func(c *Config) { c.Store.Provider = "postgres"; c.Store.DSN = "" }},
		{"gcs without bucket", func(c *Config) { c.Storage.Provider = "gcs"; c.Storage.GCSBucket = "" }},
		{"pubsub without topic", func(c *Config) { c.Publisher.Provider = "pubsub" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
