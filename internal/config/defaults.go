package config

import (
	"github.com/tinoosan/tubeconv/internal/transcode"
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: Server{
			Addr: ":8080",
		},
		Conversion: Conversion{
			DataDir:          "data",
			RetentionMinutes: 10,
			FFmpegPath:       transcode.DefaultBinary,
			ProbeTimeoutSec:  60,
		},
		Store: StoreMemory,
		Postgres: Postgres{
			Host:    "postgres",
			Port:    "5432",
			DB:      "tubeconv",
			User:    "tubeconv",
			SSLMode: "disable",
		},
		Logging: Logging{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 14,
		},
	}
}
