// Package config loads and validates collector configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Ops        OpsConfig        `mapstructure:"ops"`
	Redis      RedisConfig      `mapstructure:"redis"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	ProxyPool  ProxyPoolConfig  `mapstructure:"proxy_pool"`
	CookiePool CookiePoolConfig `mapstructure:"cookie_pool"`
	Executor   ExecutorConfig   `mapstructure:"executor"`
	Dispatch   DispatchConfig   `mapstructure:"dispatch"`
	Renderer   RendererConfig   `mapstructure:"renderer"`
	Store      StoreConfig      `mapstructure:"store"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Publisher  PublisherConfig  `mapstructure:"publisher"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// OpsConfig controls the operational HTTP surface (metrics, health).
type OpsConfig struct {
	Port int `mapstructure:"port"`
}

// RedisConfig locates the shared key-value store backing the pools and
// rate windows.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// RateLimitConfig governs the per-domain fixed-window limiter.
type RateLimitConfig struct {
	WindowSeconds  int            `mapstructure:"window_seconds"`
	DefaultQuota   int            `mapstructure:"default_quota"`
	DomainQuotas   map[string]int `mapstructure:"domain_quotas"`
	MaxWaitSeconds int            `mapstructure:"max_wait_seconds"`
}

// ProxyPoolConfig governs proxy scoring and background health checks.
type ProxyPoolConfig struct {
	CheckIntervalSeconds int    `mapstructure:"check_interval_seconds"`
	CheckConcurrency     int    `mapstructure:"check_concurrency"`
	ProbeURL             string `mapstructure:"probe_url"`
	ProbeTimeoutSeconds  int    `mapstructure:"probe_timeout_seconds"`
	ReplenishURL         string `mapstructure:"replenish_url"`
}

// CookiePoolConfig bounds cookie reuse.
type CookiePoolConfig struct {
	MaxUses int `mapstructure:"max_uses"`
}

// ExecutorConfig configures the request executor.
type ExecutorConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	MaxAttempts    int `mapstructure:"max_attempts"`
}

// DispatchConfig governs the source dispatcher: the per-instance global
// throttle and the bounded pool for blocking strategies.
type DispatchConfig struct {
	GlobalRatePerMinute int `mapstructure:"global_rate_per_minute"`
	BlockingWorkers     int `mapstructure:"blocking_workers"`
}

// RendererConfig bounds the headless browser pool used for
// JavaScript-heavy web sources. Zero max_concurrency disables rendering.
type RendererConfig struct {
	MaxConcurrency    int `mapstructure:"max_concurrency"`
	NavTimeoutSeconds int `mapstructure:"nav_timeout_seconds"`
}

// StoreConfig selects the dataset handle store.
type StoreConfig struct {
	Provider string `mapstructure:"provider"`
	DSN      string `mapstructure:"dsn"`
}

// StorageConfig selects the dataset payload storage.
type StorageConfig struct {
	Provider  string `mapstructure:"provider"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// PublisherConfig holds metadata for completion notifications.
type PublisherConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("COLLECTOR")
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
	v.SetDefault("ops.port", 8080)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("rate_limit.window_seconds", 60)
	v.SetDefault("rate_limit.default_quota", 100)
	v.SetDefault("rate_limit.max_wait_seconds", 120)
	v.SetDefault("proxy_pool.check_interval_seconds", 300)
	v.SetDefault("proxy_pool.check_concurrency", 10)
	v.SetDefault("proxy_pool.probe_url", "https://www.google.com/generate_204")
	v.SetDefault("proxy_pool.probe_timeout_seconds", 5)
	v.SetDefault("cookie_pool.max_uses", 1000)
	v.SetDefault("executor.timeout_seconds", 30)
	v.SetDefault("executor.max_attempts", 3)
	v.SetDefault("dispatch.global_rate_per_minute", 100)
	v.SetDefault("dispatch.blocking_workers", 5)
	v.SetDefault("renderer.max_concurrency", 0)
	v.SetDefault("renderer.nav_timeout_seconds", 30)
	v.SetDefault("store.provider", "memory")
	v.SetDefault("storage.provider", "local")
	v.SetDefault("storage.base_dir", "datasets")
	v.SetDefault("publisher.provider", "memory")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Ops.Port <= 0 {
		return fmt.Errorf("ops.port must be > 0")
	}
	if c.RateLimit.WindowSeconds <= 0 {
		return fmt.Errorf("rate_limit.window_seconds must be > 0")
	}
	if c.RateLimit.DefaultQuota <= 0 {
		return fmt.Errorf("rate_limit.default_quota must be > 0")
	}
	if c.CookiePool.MaxUses <= 0 {
		return fmt.Errorf("cookie_pool.max_uses must be > 0")
	}
	if c.Executor.MaxAttempts <= 0 {
		return fmt.Errorf("executor.max_attempts must be > 0")
	}
	if c.Dispatch.BlockingWorkers <= 0 {
		return fmt.Errorf("dispatch.blocking_workers must be > 0")
	}
	if c.Store.Provider == "postgres" && c.Store.DSN == "" {
		return fmt.Errorf("store.dsn must be set when store.provider is postgres")
	}
	if c.Storage.Provider == "gcs" && c.Storage.GCSBucket == "" {
		return fmt.Errorf("storage.gcs_bucket must be set when storage.provider is gcs")
	}
	if c.Publisher.Provider == "pubsub" && (c.Publisher.ProjectID == "" || c.Publisher.TopicName == "") {
		return fmt.Errorf("publisher.project_id and publisher.topic_name must be set when publisher.provider is pubsub")
	}
	return nil
}

// Window returns the rate-limit window duration.
func (c RateLimitConfig) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

// MaxWait returns the rate-limit wait ceiling.
func (c RateLimitConfig) MaxWait() time.Duration {
	return time.Duration(c.MaxWaitSeconds) * time.Second
}
