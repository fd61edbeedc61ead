package main

import (
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/tinoosan/tubeconv/internal/config"
	"github.com/tinoosan/tubeconv/internal/logging"
)

type commandContext struct {
	configFlag *string

	once      sync.Once
	config    *config.Config
	logger    *slog.Logger
	logCloser io.Closer
	err       error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

// ensure loads the configuration and builds the logger once per process.
func (c *commandContext) ensure() (*config.Config, *slog.Logger, error) {
	c.once.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, err := config.Load(path)
		if err != nil {
			c.err = err
			return
		}
		l, closer, err := logging.New(logging.Options{
			Level:      cfg.Logging.Level,
			Format:     cfg.Logging.Format,
			File:       cfg.Logging.File,
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAgeDays: cfg.Logging.MaxAgeDays,
		})
		if err != nil {
			c.err = err
			return
		}
		slog.SetDefault(l)
		c.config, c.logger, c.logCloser = cfg, l, closer
	})
	return c.config, c.logger, c.err
}

func (c *commandContext) close() {
	if c.logCloser != nil {
		_ = c.logCloser.Close()
	}
}
