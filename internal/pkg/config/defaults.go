package config

import "time"

// Default values for configuration.
const (
	// Server defaults
	DefaultServerHost      = "0.0.0.0"
	DefaultServerPort      = 8080
	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 15 * time.Second

	// Telegram defaults
	DefaultBotMode     = "polling"
	DefaultSessionFile = "tg.session"

	// Cache defaults
	DefaultCacheCapacity = 1000

	// Logging defaults
	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultEnvironment = "development"
	DefaultConfigFile  = "config.yml"
)

// Bot modes.
const (
	ModePolling = "polling"
	ModeWebhook = "webhook"
	ModeManual  = "manual"
)

func defaultConfig() *Config {
	return &Config{
		Environment: DefaultEnvironment,
		Server: Server{
			Host:            DefaultServerHost,
			Port:            DefaultServerPort,
			ReadTimeout:     DefaultReadTimeout,
			WriteTimeout:    DefaultWriteTimeout,
			IdleTimeout:     DefaultIdleTimeout,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Telegram: Telegram{
			Mode:        DefaultBotMode,
			SessionFile: DefaultSessionFile,
		},
		Cache: Cache{
			Capacity: DefaultCacheCapacity,
		},
		Logging: Logging{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
