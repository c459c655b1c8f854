package pacing

import (
	"errors"
	"time"
)

// Default pacing values, matching the platform's conservative profile.
const (
	DefaultMinDelay             = 15 * time.Second
	DefaultMaxDelay             = 45 * time.Second
	DefaultBurstWindow          = 5 * time.Minute
	DefaultMaxRequestsPerWindow = 8
	DefaultBackoffBase          = 1.5
	DefaultMaxBackoff           = 10 * time.Minute
	DefaultNightStartHour       = 1
	DefaultNightEndHour         = 6
)

// Config holds pacing policy configuration.
type Config struct {
	// MinDelay is the minimum delay between requests.
	MinDelay time.Duration `mapstructure:"min_delay"`
	// MaxDelay is the maximum base delay between requests.
	MaxDelay time.Duration `mapstructure:"max_delay"`
	// BurstWindow is the sliding window for burst protection.
	BurstWindow time.Duration `mapstructure:"burst_window"`
	// MaxRequestsPerWindow is the request ceiling within BurstWindow.
	MaxRequestsPerWindow int `mapstructure:"max_requests_per_window"`
	// BackoffBase is the exponential backoff multiplier base.
	BackoffBase float64 `mapstructure:"backoff_base"`
	// MaxBackoff caps the backoff-scaled delay.
	MaxBackoff time.Duration `mapstructure:"max_backoff"`
	// NightStartHour and NightEndHour bound the slow-down band [start, end).
	NightStartHour int `mapstructure:"night_start"`
	NightEndHour   int `mapstructure:"night_end"`
	// ReduceNightActivity doubles delays during the night band.
	ReduceNightActivity bool `mapstructure:"reduce_night_activity"`
	// ThinkingPauses enables occasional longer "reading" pauses.
	ThinkingPauses bool `mapstructure:"thinking_pauses"`
}

// NewConfig returns a Config with defaults applied.
func NewConfig() *Config {
	return &Config{
		MinDelay:             DefaultMinDelay,
		MaxDelay:             DefaultMaxDelay,
		BurstWindow:          DefaultBurstWindow,
		MaxRequestsPerWindow: DefaultMaxRequestsPerWindow,
		BackoffBase:          DefaultBackoffBase,
		MaxBackoff:           DefaultMaxBackoff,
		NightStartHour:       DefaultNightStartHour,
		NightEndHour:         DefaultNightEndHour,
		ReduceNightActivity:  true,
		ThinkingPauses:       true,
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.MinDelay < 0 || c.MaxDelay < 0 {
		return errors.New("delays cannot be negative")
	}
	if c.MinDelay > c.MaxDelay {
		return errors.New("min_delay cannot exceed max_delay")
	}
	if c.BackoffBase < 1 {
		return errors.New("backoff_base must be at least 1")
	}
	if c.MaxRequestsPerWindow <= 0 {
		return errors.New("max_requests_per_window must be positive")
	}
	if c.NightStartHour < 0 || c.NightStartHour > 23 ||
		c.NightEndHour < 0 || c.NightEndHour > 24 {
		return errors.New("night hours out of range")
	}
	return nil
}
