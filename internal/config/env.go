package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

func (c *Config) applyEnv() error {
	setString(&c.Server.Addr, "TUBECONV_ADDR")
	if port := os.Getenv("PORT"); port != "" && os.Getenv("TUBECONV_ADDR") == "" {
		c.Server.Addr = ":" + port
	}
	setString(&c.Server.APIToken, "TUBECONV_API_TOKEN")
	if v := os.Getenv("TUBECONV_WS_ORIGINS"); v != "" {
		c.Server.WSOrigins = splitList(v)
	}

	setString(&c.Conversion.DataDir, "TUBECONV_DATA_DIR")
	setString(&c.Conversion.FFmpegPath, "FFMPEG_PATH")
	if err := setInt(&c.Conversion.RetentionMinutes, "YTDL_CLEAR_AFTER_COMPLETE_TIME"); err != nil {
		return err
	}
	if err := setInt(&c.Conversion.ServeWindowMinutes, "TUBECONV_SERVE_WINDOW_MINUTES"); err != nil {
		return err
	}
	if err := setInt(&c.Conversion.ProbeTimeoutSec, "TUBECONV_PROBE_TIMEOUT_SECONDS"); err != nil {
		return err
	}

	setString(&c.Store, "TUBECONV_STORE")
	setString(&c.Postgres.Host, "POSTGRES_HOST")
	setString(&c.Postgres.Port, "POSTGRES_PORT")
	setString(&c.Postgres.DB, "POSTGRES_DB")
	setString(&c.Postgres.User, "POSTGRES_USER")
	setString(&c.Postgres.Password, "POSTGRES_PASSWORD")
	setString(&c.Postgres.SSLMode, "POSTGRES_SSLMODE")

	setString(&c.Logging.Level, "TUBECONV_LOG_LEVEL")
	setString(&c.Logging.Format, "TUBECONV_LOG_FORMAT")
	setString(&c.Logging.File, "TUBECONV_LOG_FILE")
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %q is not an integer", key, v)
	}
	*dst = n
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
