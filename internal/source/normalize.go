package source

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/tinoosan/tubeconv/internal/data"
)

// WatchURL expands a bare video id.
const WatchURL = "https://www.youtube.com/watch?v="

var videoID = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// Normalize validates a client supplied source and returns the form handed
// to the prober: an http(s) URL with a host, or a bare video id expanded
// to its watch URL.
func Normalize(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("%w: empty", data.ErrInvalidSource)
	}
	if videoID.MatchString(s) {
		return WatchURL + s, nil
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", data.ErrInvalidSource, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", data.ErrInvalidSource, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", data.ErrInvalidSource)
	}
	return u.String(), nil
}
