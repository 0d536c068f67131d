package config

import (
	"fmt"
	"time"
)

// Config contains all application settings
type Config struct {
	BindPort      int    `mapstructure:"PORT" yaml:"port"`
	BindHost      string `mapstructure:"HOST" yaml:"host"`
	DatabaseURL   string `mapstructure:"DATABASE_URL" yaml:"database_url"`
	NATSServerURL string `mapstructure:"NATS_URL" yaml:"nats_url"`
	NATSSubject   string `mapstructure:"NATS_SUBJECT" yaml:"nats_subject"`
	LogLevel      string `mapstructure:"LOG_LEVEL" yaml:"log_level"`

	// Event broker
	ManagerDomain      string        `mapstructure:"MANAGER_DOMAIN" yaml:"manager_domain"`
	RequireOrigin      bool          `mapstructure:"REQUIRE_ORIGIN" yaml:"require_origin"`
	LegacySDKVersion   string        `mapstructure:"LEGACY_SDK_VERSION" yaml:"legacy_sdk_version"`
	KeepAliveEnabled   bool          `mapstructure:"KEEPALIVE_ENABLED" yaml:"keepalive_enabled"`
	KeepAliveInterval  time.Duration `mapstructure:"KEEPALIVE_INTERVAL" yaml:"keepalive_interval"`
	KeepAliveGrace     int           `mapstructure:"KEEPALIVE_GRACE_CYCLES" yaml:"keepalive_grace_cycles"`
	WebSocketPingEvery time.Duration `mapstructure:"WEBSOCKET_PING_INTERVAL" yaml:"websocket_ping_interval"`

	// Version
	BuildVersion string `yaml:"-"`
	BuildHash    string `yaml:"-"`
	BuildTime    string `yaml:"-"`
}

// ListenAddr returns the address the HTTP server binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.BindHost, c.BindPort)
}
