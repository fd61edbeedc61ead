// Package transcode runs ffmpeg over downloaded streams.
package transcode

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tinoosan/tubeconv/internal/metrics"
)

// DefaultBinary is looked up on PATH when no ffmpeg path is configured.
const DefaultBinary = "ffmpeg"

const stderrTail = 512

// FFmpeg invokes the ffmpeg binary.
type FFmpeg struct {
	bin string
	log *slog.Logger
}

// New returns an FFmpeg using bin, or DefaultBinary when bin is empty.
func New(bin string, l *slog.Logger) *FFmpeg {
	if bin == "" {
		bin = DefaultBinary
	}
	if l == nil {
		l = slog.Default()
	}
	return &FFmpeg{bin: bin, log: l}
}

// Binary returns the executable this FFmpeg runs.
func (f *FFmpeg) Binary() string { return f.bin }

// ExtractAudio re-encodes the audio track of input to a VBR MP3.
func (f *FFmpeg) ExtractAudio(ctx context.Context, input, output string) error {
	return f.run(ctx, "extract_audio", ExtractAudioArgs(input, output))
}

// Mux combines the first video track of video with the first audio track
// of audio, copying video and encoding audio to AAC.
func (f *FFmpeg) Mux(ctx context.Context, video, audio, output string) error {
	return f.run(ctx, "mux", MuxArgs(video, audio, output))
}

// ExtractAudioArgs builds the ffmpeg arguments for ExtractAudio.
func ExtractAudioArgs(input, output string) []string {
	return []string{
		"-hide_banner", "-nostdin", "-y",
		"-i", input,
		"-vn",
		"-codec:a", "libmp3lame",
		"-q:a", "2",
		output,
	}
}

// MuxArgs builds the ffmpeg arguments for Mux.
func MuxArgs(video, audio, output string) []string {
	return []string{
		"-hide_banner", "-nostdin", "-y",
		"-i", video,
		"-i", audio,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", "copy",
		"-c:a", "aac",
		"-movflags", "+faststart",
		output,
	}
}

func (f *FFmpeg) run(ctx context.Context, op string, args []string) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, f.bin, args...)
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	metrics.TranscodeLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg %s: %w", op, ctx.Err())
		}
		tail := lastBytes(strings.TrimSpace(stderr.String()), stderrTail)
		f.log.Error("ffmpeg failed", "op", op, "err", err, "stderr", tail)
		if tail != "" {
			return fmt.Errorf("ffmpeg %s: %w: %s", op, err, tail)
		}
		return fmt.Errorf("ffmpeg %s: %w", op, err)
	}
	f.log.Debug("ffmpeg done", "op", op, "took", time.Since(start))
	return nil
}

// lastBytes returns at most the final n bytes of s, starting on a rune
// boundary.
func lastBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	i := len(s) - n
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return s[i:]
}
