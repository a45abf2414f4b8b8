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
	Server       ServerConfig       `mapstructure:"server"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Fetch        FetchConfig        `mapstructure:"fetch"`
	Remote       RemoteConfig       `mapstructure:"remote"`
	Fallback     FallbackConfig     `mapstructure:"fallback"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Broadcast    BroadcastConfig    `mapstructure:"broadcast"`
	Storage      StorageConfig      `mapstructure:"storage"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// FetchConfig governs the rate-limited outbound fetch primitive.
type FetchConfig struct {
	UserAgent        string `mapstructure:"user_agent"`
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	MaxAttempts      int    `mapstructure:"max_attempts"`
	BackoffInitialMs int    `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int    `mapstructure:"backoff_max_ms"`
	MinIntervalMs    int    `mapstructure:"min_interval_ms"`
}

// RemoteConfig points at the canonical hourly snapshot archive.
type RemoteConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// FallbackConfig points at the origin site endpoints used when the remote
// archive is stale.
type FallbackConfig struct {
	HotSearchURL string `mapstructure:"hot_search_url"`
	SummaryURL   string `mapstructure:"summary_url"`
	SearchURL    string `mapstructure:"search_url"`
	Cookie       string `mapstructure:"cookie"`
	MaxTopics    int    `mapstructure:"max_topics"`
}

// OrchestratorConfig tunes the hourly acquisition state machine.
type OrchestratorConfig struct {
	PollIntervalSeconds     int `mapstructure:"poll_interval_seconds"`
	RetryIntervalSeconds    int `mapstructure:"retry_interval_seconds"`
	FallbackDeadlineMinutes int `mapstructure:"fallback_deadline_minutes"`
	LookbackDays            int `mapstructure:"lookback_days"`
}

// BroadcastConfig tunes the websocket push protocol.
type BroadcastConfig struct {
	DefaultLimit int `mapstructure:"default_limit"`
	MaxLimit     int `mapstructure:"max_limit"`
	SendBuffer   int `mapstructure:"send_buffer"`
}

// StorageConfig selects and configures the snapshot store provider.
type StorageConfig struct {
	Provider string         `mapstructure:"provider"`
	FS       FSConfig       `mapstructure:"fs"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// FSConfig configures the filesystem snapshot store.
type FSConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// PostgresConfig configures the Postgres snapshot store.
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// Load builds a Config from disk and environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HOTSPOT")
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
	v.SetDefault("logging.development", true)
	v.SetDefault("fetch.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 "+
			"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("fetch.timeout_seconds", 10)
	v.SetDefault("fetch.max_attempts", 3)
	v.SetDefault("fetch.backoff_initial_ms", 250)
	v.SetDefault("fetch.backoff_max_ms", 5000)
	v.SetDefault("fetch.min_interval_ms", 1000)
	v.SetDefault("remote.base_url",
		"https://raw.githubusercontent.com/lxw15337674/weibo-trending-hot-history/"+
			"refs/heads/master/api/{date}/{hour}.json")
	v.SetDefault("fallback.hot_search_url", "https://weibo.com/ajax/side/hotSearch")
	v.SetDefault("fallback.summary_url", "https://s.weibo.com/top/summary")
	v.SetDefault("fallback.search_url", "https://s.weibo.com/weibo")
	v.SetDefault("fallback.max_topics", 50)
	v.SetDefault("orchestrator.poll_interval_seconds", 600)
	v.SetDefault("orchestrator.retry_interval_seconds", 60)
	v.SetDefault("orchestrator.fallback_deadline_minutes", 45)
	v.SetDefault("orchestrator.lookback_days", 1)
	v.SetDefault("broadcast.default_limit", 30)
	v.SetDefault("broadcast.max_limit", 60)
	v.SetDefault("broadcast.send_buffer", 256)
	v.SetDefault("storage.provider", "fs")
	v.SetDefault("storage.fs.base_dir", "data/hot_topics/hourly")
	v.SetDefault("storage.postgres.table", "hot_snapshots")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Fetch.MaxAttempts <= 0 {
		return fmt.Errorf("fetch.max_attempts must be > 0")
	}
	if c.Remote.BaseURL == "" {
		return fmt.Errorf("remote.base_url is required")
	}
	if c.Orchestrator.PollIntervalSeconds <= 0 {
		return fmt.Errorf("orchestrator.poll_interval_seconds must be > 0")
	}
	if c.Orchestrator.FallbackDeadlineMinutes <= 0 {
		return fmt.Errorf("orchestrator.fallback_deadline_minutes must be > 0")
	}
	if c.Broadcast.DefaultLimit <= 0 {
		return fmt.Errorf("broadcast.default_limit must be > 0")
	}
	if c.Broadcast.MaxLimit < c.Broadcast.DefaultLimit {
		return fmt.Errorf("broadcast.max_limit must be >= broadcast.default_limit")
	}
	switch c.Storage.Provider {
	case "fs":
		if c.Storage.FS.BaseDir == "" {
			return fmt.Errorf("storage.fs.base_dir is required")
		}
	case "postgres":
		if c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("storage.postgres.dsn is required when provider is postgres")
		}
	default:
		return fmt.Errorf("unknown storage provider: %s", c.Storage.Provider)
	}
	return nil
}

// FetchTimeout converts the fetch timeout config into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}
