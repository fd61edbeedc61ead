package source

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"
)

// DefaultProbeTimeout bounds a single yt-dlp invocation.
const DefaultProbeTimeout = 60 * time.Second

// YTDLP probes sources with the yt-dlp binary.
type YTDLP struct {
	log     *slog.Logger
	timeout time.Duration
}

// NewYTDLP returns a prober using the yt-dlp found on PATH.
func NewYTDLP(l *slog.Logger) *YTDLP {
	if l == nil {
		l = slog.Default()
	}
	return &YTDLP{log: l, timeout: DefaultProbeTimeout}
}

// SetTimeout sets the timeout for probe operations.
func (y *YTDLP) SetTimeout(d time.Duration) {
	if d > 0 {
		y.timeout = d
	}
}

// Probe dumps the metadata of source without downloading anything.
func (y *YTDLP) Probe(ctx context.Context, source string) (*Info, error) {
	ctx, cancel := context.WithTimeout(ctx, y.timeout)
	defer cancel()

	start := time.Now()
	res, err := ytdlp.New().
		SkipDownload().
		DumpSingleJSON().
		NoPlaylist().
		Run(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("yt-dlp probe %s: %w", source, err)
	}
	info, err := ParseInfo([]byte(strings.TrimSpace(res.Stdout)))
	if err != nil {
		return nil, err
	}
	y.log.Debug("probed source", "source", source, "id", info.ID, "formats", len(info.Formats), "took", time.Since(start))
	return info, nil
}
