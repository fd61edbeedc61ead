// Package deps reports whether the external tools a conversion needs are
// installed.
package deps

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// YTDLPBinary is the probing tool looked up on PATH.
const YTDLPBinary = "yt-dlp"

// Requirement defines an external binary tubeconv relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description,omitempty"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// Requirements lists the binaries a conversion needs, using ffmpeg as the
// transformation tool.
func Requirements(ffmpeg string) []Requirement {
	return []Requirement{
		{Name: "FFmpeg", Command: ffmpeg, Description: "extracts MP3 audio and muxes MP4 output"},
		{Name: "yt-dlp", Command: YTDLPBinary, Description: "resolves sources to downloadable streams"},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}

// Missing joins the details of unavailable dependencies into one error.
func Missing(statuses []Status) error {
	var missing []string
	for _, s := range statuses {
		if !s.Available {
			missing = append(missing, s.Name+": "+s.Detail)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("missing dependencies: %s", strings.Join(missing, "; "))
}

// Checker returns a readiness check over requirements.
func Checker(requirements []Requirement) func(context.Context) error {
	return func(context.Context) error {
		return Missing(CheckBinaries(requirements))
	}
}
