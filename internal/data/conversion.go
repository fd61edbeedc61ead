package data

import (
	"encoding/json"
	"errors"
	"io"
	"time"
)

// Conversion is the externally visible record of one conversion request.
// Live fields (State, Progress) are refreshed from the running supervisor
// while it exists and from the history store afterwards.
type Conversion struct {
	Token       string     `json:"token"`
	Source      string     `json:"source"`
	Format      Format     `json:"format"`
	Quality     string     `json:"quality,omitempty"`
	State       State      `json:"state"`
	Progress    float64    `json:"progress"`
	Error       string     `json:"error,omitempty"`
	Fingerprint string     `json:"fingerprint,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	FinishedAt  *time.Time `json:"finishedAt,omitempty"`
}

// Request is the body accepted when creating a conversion.
type Request struct {
	Source  string `json:"source"`
	Format  Format `json:"format"`
	Quality string `json:"quality,omitempty"`
}

type Conversions []*Conversion

// Format is the requested output container.
type Format string

const (
	FormatMP3 Format = "mp3"
	FormatMP4 Format = "mp4"
)

// State is a conversion lifecycle state.
type State string

const (
	StateStarting    State = "STARTING"
	StateDownloading State = "DOWNLOADING"
	StateConverting  State = "CONVERTING"
	StateCompleted   State = "COMPLETED"
	StateFailed      State = "FAILED"
)

// Terminal reports whether no further transition can leave s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

var (
	ErrNotFound      = errors.New("conversion not found")
	ErrInvalidSource = errors.New("invalid source")
	ErrBadFormat     = errors.New("invalid format (allowed: mp3|mp4)")
	ErrBadQuality    = errors.New("quality is required for mp4")
	ErrNotReady      = errors.New("conversion output not ready")
	ErrExpired       = errors.New("conversion output expired")
	ErrConflict      = errors.New("conversion already exists")
)

var allowedFormats = map[Format]bool{
	FormatMP3: true,
	FormatMP4: true,
}

// Validate checks the request fields that do not need a network round trip.
func (r *Request) Validate() error {
	if !allowedFormats[r.Format] {
		return ErrBadFormat
	}
	if r.Format == FormatMP4 && r.Quality == "" {
		return ErrBadQuality
	}
	return nil
}

func (c *Conversion) Clone() *Conversion {
	if c == nil {
		return nil
	}
	cp := *c
	if c.FinishedAt != nil {
		t := *c.FinishedAt
		cp.FinishedAt = &t
	}
	return &cp
}

func (cs Conversions) Clone() Conversions {
	out := make(Conversions, len(cs))
	for i, c := range cs {
		out[i] = c.Clone()
	}
	return out
}

func (cs *Conversions) ToJSON(w io.Writer) error { return json.NewEncoder(w).Encode(cs) }

func (c *Conversion) ToJSON(w io.Writer) error { return json.NewEncoder(w).Encode(c) }

func (r *Request) FromJSON(rd io.Reader) error { return json.NewDecoder(rd).Decode(r) }
