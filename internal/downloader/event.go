package downloader

// Event represents a state change or progress update from a Tracker.
//
// Index identifies the tracker within its owner. Progress is set for
// progress events, Err for failures.
type Event struct {
	Index    int
	Type     EventType
	Progress *Progress
	Err      error
}

// EventType defines the set of events that trackers may emit.
type EventType string

const (
	EventProgress EventType = "Progress"
	EventComplete EventType = "Complete"
	EventFailed   EventType = "Failed"
	// EventPoll carries no tracker change; owners use it to re-evaluate.
	EventPoll EventType = "Poll"
)

// Progress mirrors the producer's progress callback.
type Progress struct {
	Chunk      int64
	Downloaded int64
	// Total is the expected size, or <= 0 when the producer did not say.
	Total int64
}
