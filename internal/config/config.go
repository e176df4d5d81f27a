package config

import (
	"strings"
	"time"

	"github.com/Quanghau123/smarttasty-realtime/internal/logging"
)

// Config represents the application configuration
type Config struct {
	Hub     HubConfig      `json:"hub" yaml:"hub"`
	Logging logging.Config `json:"logging" yaml:"logging"`
}

// HubConfig represents realtime hub connection configuration
type HubConfig struct {
	URL               string        `json:"url" yaml:"url"`
	AccessToken       string        `json:"access_token" yaml:"access_token"`
	UserID            string        `json:"user_id" yaml:"user_id"`
	HeartbeatInterval time.Duration `json:"heartbeat_interval" yaml:"heartbeat_interval"`
	BufferCapacity    int           `json:"buffer_capacity" yaml:"buffer_capacity"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Hub: HubConfig{
			URL:               "ws://localhost:5000/hubs/restaurant",
			HeartbeatInterval: 30 * time.Second,
			BufferCapacity:    100,
		},
		Logging: logging.Config{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Hub.URL == "" {
		return NewConfigError("hub.url", "hub URL is required")
	}

	if !strings.HasPrefix(c.Hub.URL, "ws://") && !strings.HasPrefix(c.Hub.URL, "wss://") {
		return NewConfigError("hub.url", "hub URL must use ws or wss scheme")
	}

	if c.Hub.HeartbeatInterval < 0 {
		return NewConfigError("hub.heartbeat_interval", "interval cannot be negative")
	}

	if c.Hub.BufferCapacity <= 0 {
		return NewConfigError("hub.buffer_capacity", "capacity must be positive")
	}

	return nil
}
