// Package config loads worker configuration from file, environment, and
// flags via viper, and engine definitions from engines.yml.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/ellipsesearch/visibility-worker/internal/logger"
	"github.com/ellipsesearch/visibility-worker/internal/pacing"
	"github.com/ellipsesearch/visibility-worker/internal/scheduler"
)

// PlatformConfig points the worker at the job queue API.
type PlatformConfig struct {
	URL    string `mapstructure:"url"`
	Secret string `mapstructure:"secret"`
}

// DedupConfig tunes duplicate detection.
type DedupConfig struct {
	Window              time.Duration `mapstructure:"window"`
	SimilarityThreshold float64       `mapstructure:"similarity_threshold"`
}

// WorkerConfig tunes execution.
type WorkerConfig struct {
	JobTimeout        time.Duration `mapstructure:"job_timeout"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	Sequential        bool          `mapstructure:"sequential"`
	Stealth           bool          `mapstructure:"stealth"`
	RotationSchedule  string        `mapstructure:"rotation_schedule"`
}

// BrowserConfig locates the DevTools endpoint.
type BrowserConfig struct {
	CDPURL string `mapstructure:"cdp_url"`
}

// OutputConfig controls the local results archive.
type OutputConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig controls the local status server.
type ServerConfig struct {
	Address string `mapstructure:"address"`
	Enabled bool   `mapstructure:"enabled"`
}

// Config is the full worker configuration.
type Config struct {
	Platform  PlatformConfig   `mapstructure:"platform"`
	Scheduler scheduler.Config `mapstructure:"scheduler"`
	Pacing    pacing.Config    `mapstructure:"pacing"`
	Dedup     DedupConfig      `mapstructure:"dedup"`
	Worker    WorkerConfig     `mapstructure:"worker"`
	Browser   BrowserConfig    `mapstructure:"browser"`
	Output    OutputConfig     `mapstructure:"output"`
	Server    ServerConfig     `mapstructure:"server"`
	Logger    logger.Config    `mapstructure:"logger"`
}

// SetDefaults registers every default on the viper instance. Flags and
// environment bindings layer on top.
func SetDefaults(v *viper.Viper) {
	defaults := map[string]any{
		"platform.url":    "http://localhost:3000",
		"platform.secret": "",

		"scheduler.poll_interval":          scheduler.DefaultPollInterval,
		"scheduler.fetch_limit":            scheduler.DefaultFetchLimit,
		"scheduler.max_parallel":           scheduler.DefaultMaxParallel,
		"scheduler.max_consecutive_errors": scheduler.DefaultMaxConsecutiveErrors,
		"scheduler.error_backoff":          scheduler.DefaultErrorBackoff,
		"scheduler.engines":                scheduler.DefaultEngineOrder,
		"scheduler.engine_order":           scheduler.DefaultEngineOrder,

		"pacing.min_delay":               pacing.DefaultMinDelay,
		"pacing.max_delay":               pacing.DefaultMaxDelay,
		"pacing.burst_window":            pacing.DefaultBurstWindow,
		"pacing.max_requests_per_window": pacing.DefaultMaxRequestsPerWindow,
		"pacing.backoff_base":            pacing.DefaultBackoffBase,
		"pacing.max_backoff":             pacing.DefaultMaxBackoff,
		"pacing.night_start":             pacing.DefaultNightStartHour,
		"pacing.night_end":               pacing.DefaultNightEndHour,
		"pacing.reduce_night_activity":   true,
		"pacing.thinking_pauses":         true,

		"dedup.window":               60 * time.Minute,
		"dedup.similarity_threshold": 0.85,

		"worker.job_timeout":        300 * time.Second,
		"worker.heartbeat_interval": 10 * time.Second,
		"worker.sequential":         false,
		"worker.stealth":            true,
		"worker.rotation_schedule":  "0 */6 * * *",

		"browser.cdp_url": "http://localhost:9222",

		"output.path": "output",

		"server.address": "127.0.0.1:8844",
		"server.enabled": true,

		"logger.level":    "info",
		"logger.encoding": "console",
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

// Load unmarshals and validates the configuration. Viper's default
// decode hooks already cover duration strings and comma-separated lists.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Platform.URL == "" {
		return errors.New("platform.url is required")
	}
	if c.Platform.Secret == "" {
		return errors.New("platform.secret is required (RPA_WEBHOOK_SECRET)")
	}
	if c.Scheduler.MaxParallel <= 0 {
		return errors.New("scheduler.max_parallel must be positive")
	}
	if c.Scheduler.FetchLimit <= 0 {
		return errors.New("scheduler.fetch_limit must be positive")
	}
	if c.Worker.JobTimeout <= 0 {
		return errors.New("worker.job_timeout must be positive")
	}
	if err := c.Pacing.Validate(); err != nil {
		return fmt.Errorf("pacing: %w", err)
	}
	return nil
}
