package source

import (
	"fmt"
	"sort"

	"github.com/tinoosan/tubeconv/internal/data"
)

// Select picks the best encoding for sel. Audio selectors take the
// audio-only encoding with the highest bitrate. Video selectors take the
// highest bitrate video encoding whose label and container match; empty
// filters match anything.
func Select(formats []Format, sel data.Selector) (Format, error) {
	var (
		best  Format
		found bool
	)
	for _, f := range formats {
		if !fetchable(f) || !matches(f, sel) {
			continue
		}
		if !found || rate(f, sel.Kind) > rate(best, sel.Kind) {
			best, found = f, true
		}
	}
	if !found {
		return Format{}, fmt.Errorf("%w: %s %s %s", ErrNoFormat, sel.Kind, sel.Quality, sel.Container)
	}
	return best, nil
}

func matches(f Format, sel data.Selector) bool {
	switch sel.Kind {
	case data.KindAudio:
		if !f.AudioOnly() {
			return false
		}
	case data.KindVideo:
		if !f.HasVideo() {
			return false
		}
		if sel.Quality != "" && f.Label() != sel.Quality && f.Note != sel.Quality {
			return false
		}
	default:
		return false
	}
	return sel.Container == "" || f.Ext == sel.Container
}

// fetchable reports whether the encoding is a single resource reachable
// with one GET.
func fetchable(f Format) bool {
	if f.URL == "" {
		return false
	}
	switch f.Protocol {
	case "", "http", "https":
		return true
	}
	return false
}

func rate(f Format, kind data.MediaKind) float64 {
	if kind == data.KindAudio && f.ABR > 0 {
		return f.ABR
	}
	return f.TBR
}

// Qualities lists the distinct mp4 video labels of info, highest first.
func Qualities(info *Info) []string {
	heights := map[string]int{}
	for _, f := range info.Formats {
		if !f.HasVideo() || f.Ext != "mp4" || !fetchable(f) {
			continue
		}
		if l := f.Label(); l != "" {
			heights[l] = f.Height
		}
	}
	out := make([]string, 0, len(heights))
	for l := range heights {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if heights[out[i]] == heights[out[j]] {
			return out[i] < out[j]
		}
		return heights[out[i]] > heights[out[j]]
	})
	return out
}

// Metadata is the client facing view of info.
func Metadata(source string, info *Info) data.Metadata {
	return data.Metadata{
		ID:        info.ID,
		Source:    source,
		Title:     info.Title,
		Thumbnail: info.Thumbnail,
		Duration:  info.Duration,
		Qualities: Qualities(info),
	}
}
