package data

// Signal names published on a conversion's push channel.
const (
	SignalStarting      = "starting"
	SignalDownloading   = "downloading"
	SignalConverting    = "converting"
	SignalFinished      = "finished"
	SignalDownloadError = "download_error"
)

// Signals answering a push-channel client's own requests.
const (
	SignalRegistered    = "registered"
	SignalRegisterError = "register_error"
	SignalUpdateError   = "update_error"
	SignalError         = "error"
)

// Notification is one push-channel message.
type Notification struct {
	Signal string `json:"signal"`
	Data   any    `json:"data"`
}

// Empty is the payload of signals that carry no data. It encodes as {}.
type Empty struct{}

// DownloadingPayload carries aggregate progress as a 0-100 percentage.
type DownloadingPayload struct {
	Progress float64 `json:"progress"`
	ETA      string  `json:"eta"`
}

// ErrorPayload carries a human readable failure message.
type ErrorPayload struct {
	Message string `json:"message"`
}

// Starting is the implicit notification for a conversion that has not
// emitted anything yet.
func Starting() Notification {
	return Notification{Signal: SignalStarting, Data: Empty{}}
}
