package conversion

import (
	"time"

	"github.com/tinoosan/tubeconv/internal/data"
)

// Event reports a supervisor state transition.
//
// Progress is the last aggregate percentage (0-100). Message is set for
// failures.
type Event struct {
	Token    string
	Format   data.Format
	State    data.State
	Progress float64
	Message  string
	At       time.Time
}

// Reporter publishes supervisor lifecycle events.
type Reporter interface {
	Report(Event)
}

// ChanReporter writes events to a channel.
type ChanReporter struct {
	ch chan<- Event
}

func NewChanReporter(ch chan<- Event) *ChanReporter { return &ChanReporter{ch: ch} }

func (r *ChanReporter) Report(e Event) {
	if r == nil {
		return
	}
	r.ch <- e
}

// Publisher delivers notifications to the subscribers of a token.
type Publisher interface {
	Publish(token string, n data.Notification)
}
