// Package config loads and validates the YAML configuration for the
// realtime delivery stack. Values go through three stages: raw load with
// ${VAR} expansion, defaults for everything optional, then validation.
package config

import "time"

// AppConfig is the root of the YAML configuration.
type AppConfig struct {
	API      APIConfig      `yaml:"api"`
	Realtime RealtimeConfig `yaml:"realtime"`
	Coalesce CoalesceConfig `yaml:"coalesce"`
	Health   HealthConfig   `yaml:"health"`
	Fallback FallbackConfig `yaml:"fallback"`
}

// APIConfig holds REST backend settings for the polling path.
type APIConfig struct {
	RestURL    string        `yaml:"rest_url"`
	APIKey     string        `yaml:"api_key"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// RealtimeConfig holds the WebSocket transport and subscription settings.
type RealtimeConfig struct {
	WSURL   string `yaml:"ws_url"`
	Channel string `yaml:"channel"` // Channel topic, e.g. "readings:sfo-mission-03"

	// Change filter. Event is INSERT, UPDATE, DELETE or * (default *).
	// Predicate is an optional row filter such as "station_id=eq.sfo-mission-03"
	// and requires Table to be set.
	Event     string `yaml:"event"`
	Schema    string `yaml:"schema"`
	Table     string `yaml:"table"`
	Predicate string `yaml:"predicate"`

	Disabled bool `yaml:"disabled"`

	MaxRetries     int           `yaml:"max_retries"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`
	RetryMaxDelay  time.Duration `yaml:"retry_max_delay"`

	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	HeartbeatTimeout  time.Duration `yaml:"heartbeat_timeout"`
	JoinTimeout       time.Duration `yaml:"join_timeout"`
}

// CoalesceConfig holds message queue settings.
type CoalesceConfig struct {
	// Strategy is one of debounce, idle, frame, microtask.
	Strategy      string        `yaml:"strategy"`
	MaxSize       int           `yaml:"max_size"`
	DedupeKey     string        `yaml:"dedupe_key"` // Empty disables deduplication
	DebounceDelay time.Duration `yaml:"debounce_delay"`
	IdleTimeout   time.Duration `yaml:"idle_timeout"`
}

// HealthConfig holds connection monitor settings.
type HealthConfig struct {
	CheckInterval  time.Duration `yaml:"check_interval"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
}

// FallbackConfig holds graceful degradation settings.
type FallbackConfig struct {
	PollInterval   time.Duration `yaml:"poll_interval"`
	PollTimeout    time.Duration `yaml:"poll_timeout"`
	PollLimit      int           `yaml:"poll_limit"` // Readings fetched per poll
	MaxRetries     int           `yaml:"max_retries"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`
	RetryMaxDelay  time.Duration `yaml:"retry_max_delay"`
}
