package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	ConversionsStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tubeconv",
			Name:      "conversions_started_total",
			Help:      "Conversions accepted, by output format.",
		},
		[]string{"format"},
	)

	ConversionsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tubeconv",
			Name:      "conversions_finished_total",
			Help:      "Conversions that reached a terminal state, by output format and result.",
		},
		[]string{"format", "result"},
	)

	ActiveConversions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tubeconv",
			Name:      "active_conversions",
			Help:      "Number of conversions held in the registry.",
		},
	)

	StreamBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tubeconv",
			Name:      "stream_bytes_total",
			Help:      "Bytes written by stream trackers.",
		},
	)

	TranscodeLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tubeconv",
			Name:      "transcode_duration_seconds",
			Help:      "Duration of ffmpeg invocations.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"op"},
	)

	Notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tubeconv",
			Name:      "notifications_total",
			Help:      "Notifications emitted by conversions, by signal.",
		},
		[]string{"signal"},
	)

	ConversionEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tubeconv",
			Name:      "conversion_events_total",
			Help:      "Lifecycle events persisted by the reconciler, by state.",
		},
		[]string{"state"},
	)

	NotificationsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tubeconv",
			Name:      "notifications_dropped_total",
			Help:      "Notifications not delivered because a subscriber was too slow.",
		},
	)
)

var registerOnce sync.Once

// Register registers the tubeconv metrics into the default registry.
// Repeated calls are no-ops.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			ConversionsStarted,
			ConversionsFinished,
			ActiveConversions,
			StreamBytes,
			TranscodeLatency,
			Notifications,
			ConversionEvents,
			NotificationsDropped,
		)
	})
}
