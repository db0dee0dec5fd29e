package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. CONCENTRATION_GAME_ROWS.
const EnvPrefix = "CONCENTRATION"

var (
	validLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validFormats = map[string]bool{"json": true, "console": true}
)

// Load reads configuration from path, then applies environment overrides.
// An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.websocket.address", ":8080")
	v.SetDefault("server.websocket.read_buffer_size", 1024)
	v.SetDefault("server.websocket.write_buffer_size", 1024)
	v.SetDefault("server.websocket.max_connections", 1000)
	v.SetDefault("server.websocket.write_timeout", "10s")
	v.SetDefault("server.metrics_address", ":9090")
	v.SetDefault("server.shutdown_timeout", "5s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("game.rows", 4)
	v.SetDefault("game.cols", 4)
	v.SetDefault("game.seed", 0)

	v.SetDefault("replay.enabled", false)
	v.SetDefault("replay.directory", "replays")
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.WebSocket.Address == "" {
		errs = append(errs, errors.New("server.websocket.address is required"))
	}
	if c.Server.WebSocket.ReadBufferSize <= 0 || c.Server.WebSocket.WriteBufferSize <= 0 {
		errs = append(errs, errors.New("server.websocket buffer sizes must be positive"))
	}
	if c.Server.WebSocket.MaxConnections < 0 {
		errs = append(errs, errors.New("server.websocket.max_connections must not be negative"))
	}
	if !validLevels[c.Logging.Level] {
		errs = append(errs, fmt.Errorf("logging.level %q is not one of debug, info, warn or error", c.Logging.Level))
	}
	if !validFormats[c.Logging.Format] {
		errs = append(errs, fmt.Errorf("logging.format %q is not json or console", c.Logging.Format))
	}
	if c.Game.Rows <= 0 || c.Game.Cols <= 0 {
		errs = append(errs, fmt.Errorf("game board %dx%d must have positive dimensions", c.Game.Rows, c.Game.Cols))
	} else if (c.Game.Rows*c.Game.Cols)%2 != 0 {
		errs = append(errs, fmt.Errorf("game board %dx%d must hold an even number of cards", c.Game.Rows, c.Game.Cols))
	}
	if c.Replay.Enabled && c.Replay.Directory == "" {
		errs = append(errs, errors.New("replay.directory is required when replay is enabled"))
	}

	return errors.Join(errs...)
}
