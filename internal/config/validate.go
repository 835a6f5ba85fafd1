package config

import (
	"errors"
	"fmt"
	"strings"
)

var validStrategies = map[string]bool{
	"debounce":  true,
	"idle":      true,
	"frame":     true,
	"microtask": true,
}

var validEvents = map[string]bool{
	"*":      true,
	"INSERT": true,
	"UPDATE": true,
	"DELETE": true,
}

// Validate checks that all required fields are set and values are valid.
func (c *AppConfig) Validate() error {
	if !strings.HasPrefix(c.API.RestURL, "http://") && !strings.HasPrefix(c.API.RestURL, "https://") {
		return fmt.Errorf("api.rest_url must be an http(s) URL, got %q", c.API.RestURL)
	}
	if c.API.MaxRetries < 0 {
		return errors.New("api.max_retries must be >= 0")
	}

	if !strings.HasPrefix(c.Realtime.WSURL, "ws://") && !strings.HasPrefix(c.Realtime.WSURL, "wss://") {
		return fmt.Errorf("realtime.ws_url must be a ws(s) URL, got %q", c.Realtime.WSURL)
	}
	if c.Realtime.Channel == "" {
		return errors.New("realtime.channel is required")
	}
	if !validEvents[c.Realtime.Event] {
		return fmt.Errorf("realtime.event must be INSERT, UPDATE, DELETE or *, got %q", c.Realtime.Event)
	}
	if c.Realtime.Predicate != "" && c.Realtime.Table == "" {
		return errors.New("realtime.predicate requires realtime.table")
	}
	if c.Realtime.MaxRetries < 1 {
		return errors.New("realtime.max_retries must be >= 1")
	}
	if c.Realtime.RetryBaseDelay > c.Realtime.RetryMaxDelay {
		return fmt.Errorf("realtime.retry_base_delay (%v) cannot exceed retry_max_delay (%v)",
			c.Realtime.RetryBaseDelay, c.Realtime.RetryMaxDelay)
	}

	if !validStrategies[c.Coalesce.Strategy] {
		return fmt.Errorf("coalesce.strategy must be debounce, idle, frame or microtask, got %q", c.Coalesce.Strategy)
	}
	if c.Coalesce.MaxSize < 1 {
		return errors.New("coalesce.max_size must be >= 1")
	}

	if c.Health.CheckInterval < c.Health.ReconnectDelay {
		return fmt.Errorf("health.check_interval (%v) must be >= reconnect_delay (%v)",
			c.Health.CheckInterval, c.Health.ReconnectDelay)
	}

	if c.Fallback.PollInterval < c.Fallback.PollTimeout {
		return fmt.Errorf("fallback.poll_interval (%v) must be >= poll_timeout (%v)",
			c.Fallback.PollInterval, c.Fallback.PollTimeout)
	}
	if c.Fallback.PollLimit < 1 {
		return errors.New("fallback.poll_limit must be >= 1")
	}

	return nil
}
