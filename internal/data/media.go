package data

// MediaKind is the signal kind a stream carries.
type MediaKind string

const (
	KindAudio MediaKind = "audio"
	KindVideo MediaKind = "video"
)

// Selector describes which encoding of a source a stream should fetch.
// Empty Quality and Container mean "any".
type Selector struct {
	Kind      MediaKind
	Quality   string
	Container string
}

// Metadata describes a source as shown to a client before converting.
type Metadata struct {
	ID        string   `json:"id"`
	Source    string   `json:"source"`
	Title     string   `json:"title"`
	Thumbnail string   `json:"thumbnail,omitempty"`
	Duration  float64  `json:"duration,omitempty"`
	Qualities []string `json:"qualities"`
}
