package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultRestURL           = "https://api.breathe.io/v1"
	DefaultWSURL             = "wss://realtime.breathe.io/socket"
	DefaultAPITimeout        = 30 * time.Second
	DefaultAPIMaxRetries     = 3
	DefaultEvent             = "*"
	DefaultSchema            = "public"
	DefaultMaxRetries        = 5
	DefaultConnectTimeout    = 10 * time.Second
	DefaultRetryBaseDelay    = 1 * time.Second
	DefaultRetryMaxDelay     = 30 * time.Second
	DefaultHeartbeatInterval = 20 * time.Second
	DefaultHeartbeatTimeout  = 60 * time.Second
	DefaultJoinTimeout       = 10 * time.Second
	DefaultStrategy          = "debounce"
	DefaultQueueMaxSize      = 1000
	DefaultDebounceDelay     = 100 * time.Millisecond
	DefaultIdleTimeout       = 200 * time.Millisecond
	DefaultCheckInterval     = 20 * time.Second
	DefaultReconnectDelay    = 2 * time.Second
	DefaultPollInterval      = 30 * time.Second
	DefaultPollTimeout       = 10 * time.Second
	DefaultPollLimit         = 50
	DefaultPollMaxRetries    = 5
	DefaultPollBaseDelay     = 2 * time.Second
	DefaultPollMaxDelay      = 60 * time.Second
)

func (c *AppConfig) applyDefaults() {
	// API defaults
	if c.API.RestURL == "" {
		c.API.RestURL = DefaultRestURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = DefaultAPIMaxRetries
	}

	// Realtime defaults
	if c.Realtime.WSURL == "" {
		c.Realtime.WSURL = DefaultWSURL
	}
	if c.Realtime.Event == "" {
		c.Realtime.Event = DefaultEvent
	}
	if c.Realtime.Schema == "" {
		c.Realtime.Schema = DefaultSchema
	}
	if c.Realtime.MaxRetries == 0 {
		c.Realtime.MaxRetries = DefaultMaxRetries
	}
	if c.Realtime.ConnectTimeout == 0 {
		c.Realtime.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Realtime.RetryBaseDelay == 0 {
		c.Realtime.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if c.Realtime.RetryMaxDelay == 0 {
		c.Realtime.RetryMaxDelay = DefaultRetryMaxDelay
	}
	if c.Realtime.HeartbeatInterval == 0 {
		c.Realtime.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Realtime.HeartbeatTimeout == 0 {
		c.Realtime.HeartbeatTimeout = DefaultHeartbeatTimeout
	}
	if c.Realtime.JoinTimeout == 0 {
		c.Realtime.JoinTimeout = DefaultJoinTimeout
	}

	// Coalesce defaults
	if c.Coalesce.Strategy == "" {
		c.Coalesce.Strategy = DefaultStrategy
	}
	if c.Coalesce.MaxSize == 0 {
		c.Coalesce.MaxSize = DefaultQueueMaxSize
	}
	if c.Coalesce.DebounceDelay == 0 {
		c.Coalesce.DebounceDelay = DefaultDebounceDelay
	}
	if c.Coalesce.IdleTimeout == 0 {
		c.Coalesce.IdleTimeout = DefaultIdleTimeout
	}

	// Health defaults
	if c.Health.CheckInterval == 0 {
		c.Health.CheckInterval = DefaultCheckInterval
	}
	if c.Health.ReconnectDelay == 0 {
		c.Health.ReconnectDelay = DefaultReconnectDelay
	}

	// Fallback defaults
	if c.Fallback.PollInterval == 0 {
		c.Fallback.PollInterval = DefaultPollInterval
	}
	if c.Fallback.PollTimeout == 0 {
		c.Fallback.PollTimeout = DefaultPollTimeout
	}
	if c.Fallback.PollLimit == 0 {
		c.Fallback.PollLimit = DefaultPollLimit
	}
	if c.Fallback.MaxRetries == 0 {
		c.Fallback.MaxRetries = DefaultPollMaxRetries
	}
	if c.Fallback.RetryBaseDelay == 0 {
		c.Fallback.RetryBaseDelay = DefaultPollBaseDelay
	}
	if c.Fallback.RetryMaxDelay == 0 {
		c.Fallback.RetryMaxDelay = DefaultPollMaxDelay
	}
}
