// Package config loads server configuration from a YAML file and the
// environment.
package config

import "time"

// Config holds all server configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	Game    GameConfig    `mapstructure:"game"`
	Replay  ReplayConfig  `mapstructure:"replay"`
}

// ServerConfig contains listener settings.
type ServerConfig struct {
	WebSocket       WebSocketConfig `mapstructure:"websocket"`
	MetricsAddress  string          `mapstructure:"metrics_address"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout"`
}

// WebSocketConfig contains websocket endpoint settings.
type WebSocketConfig struct {
	Address         string        `mapstructure:"address"`
	ReadBufferSize  int           `mapstructure:"read_buffer_size"`
	WriteBufferSize int           `mapstructure:"write_buffer_size"`
	MaxConnections  int           `mapstructure:"max_connections"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
}

// LoggingConfig selects the zap level and encoder.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// GameConfig sizes new boards. A zero seed deals from a time-based source.
type GameConfig struct {
	Rows int   `mapstructure:"rows"`
	Cols int   `mapstructure:"cols"`
	Seed int64 `mapstructure:"seed"`
}

// ReplayConfig controls replay recording of finished games.
type ReplayConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Directory string `mapstructure:"directory"`
}
