// Package config loads tubeconv settings: built-in defaults, then an
// optional TOML file, then environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/tinoosan/tubeconv/internal/repo"
)

// EnvConfigPath names the variable consulted when no --config flag is given.
const EnvConfigPath = "TUBECONV_CONFIG"

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Server holds the HTTP listener settings.
type Server struct {
	Addr      string   `toml:"addr"`
	APIToken  string   `toml:"api_token"`
	WSOrigins []string `toml:"ws_origins"`
}

// Conversion holds the conversion lifecycle settings.
type Conversion struct {
	DataDir string `toml:"data_dir"`
	// RetentionMinutes is how long a finished conversion stays registered.
	RetentionMinutes int `toml:"retention_minutes"`
	// ServeWindowMinutes is how long a finished file may be downloaded.
	// Zero means the whole retention period.
	ServeWindowMinutes int    `toml:"serve_window_minutes"`
	FFmpegPath         string `toml:"ffmpeg_path"`
	ProbeTimeoutSec    int    `toml:"probe_timeout_seconds"`
}

// Postgres holds the history database settings.
type Postgres struct {
	Host     string `toml:"host"`
	Port     string `toml:"port"`
	DB       string `toml:"db"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	SSLMode  string `toml:"sslmode"`
}

// Logging holds the log handler settings.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	// File enables a rotating log file next to stdout.
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// Config is the full tubeconv configuration.
type Config struct {
	Server     Server     `toml:"server"`
	Conversion Conversion `toml:"conversion"`
	Store      string     `toml:"store"`
	Postgres   Postgres   `toml:"postgres"`
	Logging    Logging    `toml:"logging"`
}

// Load builds a configuration from defaults, the TOML file at path (or
// $TUBECONV_CONFIG when path is empty) and the environment, then
// validates it. Without either path only defaults and environment apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec := toml.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(c); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return fmt.Errorf("line %d column %d: %w", row, col, err)
		}
		return err
	}
	return nil
}

func (c *Config) normalize() {
	c.Store = strings.ToLower(strings.TrimSpace(c.Store))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Conversion.DataDir = strings.TrimSpace(c.Conversion.DataDir)
	if c.Conversion.ServeWindowMinutes == 0 {
		c.Conversion.ServeWindowMinutes = c.Conversion.RetentionMinutes
	}
}

// Retention returns how long finished conversions stay registered.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.Conversion.RetentionMinutes) * time.Minute
}

// ServeWindow returns how long finished files may be downloaded.
func (c *Config) ServeWindow() time.Duration {
	return time.Duration(c.Conversion.ServeWindowMinutes) * time.Minute
}

// ProbeTimeout bounds one yt-dlp probe.
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Conversion.ProbeTimeoutSec) * time.Second
}

// PostgresDSN renders the history database connection string.
func (c *Config) PostgresDSN() string {
	p := c.Postgres
	return repo.DSN(p.Host, p.Port, p.DB, p.User, p.Password, p.SSLMode)
}
