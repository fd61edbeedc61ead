package downloader

// Reporter publishes tracker events.
type Reporter interface {
	Report(Event)
}

// ChanReporter writes events to a channel. Once done is closed, Report
// drops events instead of blocking.
type ChanReporter struct {
	ch   chan<- Event
	done <-chan struct{}
}

func NewChanReporter(ch chan<- Event, done <-chan struct{}) *ChanReporter {
	return &ChanReporter{ch: ch, done: done}
}

func (r *ChanReporter) Report(e Event) {
	if r == nil {
		return
	}
	select {
	case r.ch <- e:
	case <-r.done:
	}
}
