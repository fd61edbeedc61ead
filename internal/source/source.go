// Package source resolves media sources into downloadable byte streams.
//
// A source is probed once with yt-dlp to list its encodings; trackers then
// pick one encoding each and fetch it over plain HTTP.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ErrNoFormat is returned when no encoding of a source matches a selector.
var ErrNoFormat = errors.New("no matching format")

// Format is one encoding advertised for a source.
type Format struct {
	ID             string            `json:"format_id"`
	URL            string            `json:"url"`
	Ext            string            `json:"ext"`
	Note           string            `json:"format_note"`
	Protocol       string            `json:"protocol"`
	ACodec         string            `json:"acodec"`
	VCodec         string            `json:"vcodec"`
	Height         int               `json:"height"`
	ABR            float64           `json:"abr"`
	TBR            float64           `json:"tbr"`
	Filesize       int64             `json:"filesize"`
	FilesizeApprox int64             `json:"filesize_approx"`
	Headers        map[string]string `json:"http_headers"`
}

// AudioOnly reports whether the encoding carries audio and no video.
func (f Format) AudioOnly() bool {
	return hasCodec(f.ACodec) && !hasCodec(f.VCodec)
}

// HasVideo reports whether the encoding carries a video track.
func (f Format) HasVideo() bool {
	return hasCodec(f.VCodec)
}

// Label is the quality label clients request, e.g. "720p".
func (f Format) Label() string {
	if f.Height > 0 {
		return strconv.Itoa(f.Height) + "p"
	}
	return f.Note
}

// Size is the advertised length in bytes, or 0 when unknown.
func (f Format) Size() int64 {
	if f.Filesize > 0 {
		return f.Filesize
	}
	return f.FilesizeApprox
}

func hasCodec(c string) bool {
	return c != "" && c != "none"
}

// Info is what a probe learns about a source.
type Info struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Thumbnail string   `json:"thumbnail"`
	Duration  float64  `json:"duration"`
	URL       string   `json:"webpage_url"`
	Formats   []Format `json:"formats"`
}

// Prober lists the encodings of a source.
type Prober interface {
	Probe(ctx context.Context, source string) (*Info, error)
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context, source string) (*Info, error)

func (f ProberFunc) Probe(ctx context.Context, source string) (*Info, error) { return f(ctx, source) }

// ParseInfo decodes yt-dlp's single-JSON dump.
func ParseInfo(b []byte) (*Info, error) {
	var info Info
	if err := json.Unmarshal(b, &info); err != nil {
		return nil, fmt.Errorf("decode probe output: %w", err)
	}
	if info.ID == "" {
		return nil, errors.New("probe output has no id")
	}
	return &info, nil
}
