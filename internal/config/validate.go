package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr must be set")
	}
	if c.Conversion.DataDir == "" {
		return errors.New("conversion.data_dir must be set")
	}
	if c.Conversion.RetentionMinutes <= 0 {
		return errors.New("conversion.retention_minutes must be positive")
	}
	if c.Conversion.ServeWindowMinutes < 0 {
		return errors.New("conversion.serve_window_minutes must not be negative")
	}
	if c.Conversion.ServeWindowMinutes > c.Conversion.RetentionMinutes {
		return fmt.Errorf("conversion.serve_window_minutes (%d) exceeds retention (%d)",
			c.Conversion.ServeWindowMinutes, c.Conversion.RetentionMinutes)
	}
	if c.Conversion.FFmpegPath == "" {
		return errors.New("conversion.ffmpeg_path must be set")
	}
	if c.Conversion.ProbeTimeoutSec <= 0 {
		return errors.New("conversion.probe_timeout_seconds must be positive")
	}
	switch c.Store {
	case StoreMemory, StorePostgres:
	default:
		return fmt.Errorf("store must be %q or %q, got %q", StoreMemory, StorePostgres, c.Store)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug|info|warn|error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format %q is not one of json|text", c.Logging.Format)
	}
	return nil
}
