package conversion

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/tinoosan/tubeconv/internal/data"
	"github.com/tinoosan/tubeconv/internal/downloader"
	"github.com/tinoosan/tubeconv/internal/metrics"
)

// DefaultRetention is how long a finished output stays on disk when no
// retention is configured.
const DefaultRetention = 10 * time.Minute

const eventBuffer = 64

// Options carries a Supervisor's collaborators. Zero values are usable.
type Options struct {
	// Retention delays deletion after a successful conversion.
	Retention time.Duration
	Publisher Publisher
	Reporter  Reporter
	Logger    *slog.Logger
	// OnRemove runs once when the supervisor deletes itself.
	OnRemove func()
	Now      func() time.Time
}

// Snapshot is a consistent copy of a Supervisor's observable state.
type Snapshot struct {
	Token       string
	Source      string
	Format      data.Format
	State       data.State
	Progress    float64
	StartedAt   time.Time
	CompletedAt time.Time
	Last        data.Notification
}

// Supervisor drives one conversion: it owns the stream trackers, folds
// their events into a single progress figure and state, and runs the
// variant's transformation once every stream is on disk.
//
// Tracker events are handled by a single goroutine, so aggregation never
// races. Fields read from other goroutines are guarded by mu.
type Supervisor struct {
	token    string
	source   string
	output   string
	variant  Variant
	trackers []*downloader.Tracker
	pub      Publisher
	rep      Reporter
	log      *slog.Logger
	now      func() time.Time
	keep     time.Duration
	onRemove func()

	ctx      context.Context
	cancel   context.CancelFunc
	events   chan downloader.Event
	loopDone chan struct{}

	startOnce  sync.Once
	deleteOnce sync.Once

	// pubMu orders notifications: the terminal check and the publish happen
	// under it, so nothing is delivered after a terminal notification.
	pubMu sync.Mutex

	mu           sync.Mutex
	state        data.State
	progress     float64
	startedAt    time.Time
	completedAt  time.Time
	last         *data.Notification
	terminalSent bool
	deleted      bool
	timer        *time.Timer
}

// New builds a supervisor with idle trackers in state STARTING. ctx bounds
// every transfer and the transformation; cancelling it aborts them.
func New(ctx context.Context, token, source string, v Variant, output string, f downloader.Fetcher, opts Options) *Supervisor {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	s := &Supervisor{
		token:    token,
		source:   source,
		output:   output,
		variant:  v,
		pub:      opts.Publisher,
		rep:      opts.Reporter,
		log:      opts.Logger.With("token", token),
		now:      opts.Now,
		keep:     opts.Retention,
		onRemove: opts.OnRemove,
		events:   make(chan downloader.Event, eventBuffer),
		loopDone: make(chan struct{}),
		state:    data.StateStarting,
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.startedAt = s.now()

	rep := downloader.NewChanReporter(s.events, s.loopDone)
	for i, ss := range v.Streams {
		t := downloader.NewTracker(i, ss.Path, f)
		t.SetLogger(s.log)
		t.SetReporter(rep)
		s.trackers = append(s.trackers, t)
	}
	return s
}

func (s *Supervisor) Token() string  { return s.token }
func (s *Supervisor) Output() string { return s.output }
func (s *Supervisor) Format() data.Format {
	return s.variant.Format
}

// State returns the current lifecycle state.
func (s *Supervisor) State() data.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastNotification returns the notification a late subscriber should see.
func (s *Supervisor) LastNotification() data.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return data.Starting()
	}
	return *s.last
}

// Snapshot returns a copy of the observable state.
func (s *Supervisor) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	last := data.Starting()
	if s.last != nil {
		last = *s.last
	}
	return Snapshot{
		Token:       s.token,
		Source:      s.source,
		Format:      s.variant.Format,
		State:       s.state,
		Progress:    s.progress * 100,
		StartedAt:   s.startedAt,
		CompletedAt: s.completedAt,
		Last:        last,
	}
}

// Start moves to DOWNLOADING and starts every tracker. It returns once
// each tracker has either begun its transfer or failed to; progress and
// the rest of the lifecycle continue in the background. Only the first
// call has any effect.
func (s *Supervisor) Start() {
	s.startOnce.Do(func() {
		if !s.transition(data.StateDownloading) {
			return
		}
		s.report("")
		go s.loop()

		var wg sync.WaitGroup
		for i, t := range s.trackers {
			wg.Add(1)
			go func(t *downloader.Tracker, sel data.Selector) {
				defer wg.Done()
				t.Start(s.ctx, s.source, sel)
			}(t, s.variant.Streams[i].Selector)
		}
		wg.Wait()

		// Start failures may have been reported before every tracker was
		// marked started; look again now that all of them are.
		select {
		case s.events <- downloader.Event{Index: -1, Type: downloader.EventPoll}:
		case <-s.loopDone:
		}
	})
}

func (s *Supervisor) loop() {
	defer close(s.loopDone)
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.events:
			if s.aggregate() {
				return
			}
		}
	}
}

// aggregate re-evaluates the trackers and reports whether the supervisor
// has nothing further to do.
func (s *Supervisor) aggregate() bool {
	state := s.State()
	if state.Terminal() {
		return true
	}
	if state != data.StateDownloading {
		return false
	}

	statuses := make([]downloader.Status, len(s.trackers))
	for i, t := range s.trackers {
		statuses[i] = t.Status()
	}

	for _, st := range statuses {
		if !st.Started {
			return false
		}
	}

	for _, st := range statuses {
		if st.Errored {
			s.fail(failureMessage(st.Err))
			return true
		}
	}

	allDone := true
	for _, st := range statuses {
		if !st.Completed {
			allDone = false
			break
		}
	}
	if !allDone {
		s.emitProgress(statuses)
		return false
	}

	if !s.transition(data.StateConverting) {
		return true
	}
	s.emit(data.SignalConverting, data.Empty{})
	s.report("")
	s.convert()
	return true
}

func (s *Supervisor) emitProgress(statuses []downloader.Status) {
	p, ok := aggregateProgress(statuses)
	if !ok || p <= 0 {
		return
	}
	s.mu.Lock()
	if p < s.progress {
		p = s.progress
	}
	s.progress = p
	elapsed := s.now().Sub(s.startedAt)
	s.mu.Unlock()

	s.emit(data.SignalDownloading, data.DownloadingPayload{
		Progress: p * 100,
		ETA:      FormatETA(elapsed, p),
	})
}

// aggregateProgress returns Σdownloaded / Σtotal, or false while any
// tracker's total is still unknown. A completed tracker's size is whatever
// it wrote.
func aggregateProgress(statuses []downloader.Status) (float64, bool) {
	var downloaded, total int64
	for _, st := range statuses {
		switch {
		case st.TotalKnown:
			total += st.Total
		case st.Completed:
			total += st.Downloaded
		default:
			return 0, false
		}
		downloaded += st.Downloaded
	}
	if total <= 0 {
		return 0, false
	}
	p := float64(downloaded) / float64(total)
	if p > 1 {
		p = 1
	}
	return p, true
}

func (s *Supervisor) convert() {
	inputs := make([]string, len(s.trackers))
	for i, t := range s.trackers {
		inputs[i] = t.Path()
	}

	var err error
	if s.variant.Transform == nil {
		err = errors.New("no transformation configured")
	} else {
		err = s.variant.Transform(s.ctx, inputs, s.output)
	}
	if err != nil {
		s.log.Error("conversion failed", "err", err)
		s.fail(failureMessage(err))
		return
	}

	if !s.transition(data.StateCompleted) {
		return
	}
	s.mu.Lock()
	s.completedAt = s.now()
	s.mu.Unlock()
	s.emit(data.SignalFinished, data.Empty{})
	s.report("")
	metrics.ConversionsFinished.WithLabelValues(string(s.variant.Format), "completed").Inc()
	s.log.Info("conversion finished", "output", s.output, "retention", s.keep)

	s.mu.Lock()
	if !s.deleted {
		s.timer = time.AfterFunc(s.keep, s.Delete)
	}
	s.mu.Unlock()
}

// fail moves to FAILED, cancels every stream, emits the error and deletes
// the conversion. It does nothing if a terminal state was already reached.
func (s *Supervisor) fail(msg string) {
	if !s.transition(data.StateFailed) {
		return
	}
	for _, t := range s.trackers {
		t.Stop()
	}
	s.emit(data.SignalDownloadError, data.ErrorPayload{Message: msg})
	s.report(msg)
	metrics.ConversionsFinished.WithLabelValues(string(s.variant.Format), "failed").Inc()
	s.log.Warn("conversion failed", "reason", msg)
	s.Delete()
}

// Delete releases everything the conversion owns: trackers and their
// files, the output, scratch files and the registry entry. It is
// idempotent. A conversion deleted before reaching a terminal state is
// failed first so subscribers still get a terminal notification.
func (s *Supervisor) Delete() {
	if !s.State().Terminal() {
		s.fail("conversion cancelled")
		return
	}
	s.deleteOnce.Do(func() {
		s.cancel()
		s.mu.Lock()
		s.deleted = true
		if s.timer != nil {
			s.timer.Stop()
		}
		s.mu.Unlock()

		for _, t := range s.trackers {
			t.Stop()
		}
		s.removeFile(s.output)
		for _, p := range s.variant.Scratch {
			s.removeFile(p)
		}
		if s.onRemove != nil {
			s.onRemove()
		}
		s.log.Debug("conversion deleted")
	})
}

func (s *Supervisor) removeFile(p string) {
	if p == "" {
		return
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.log.Warn("remove file", "path", p, "err", err)
	}
}

// transition applies a state change if it is legal: forward along
// STARTING, DOWNLOADING, CONVERTING, COMPLETED, or to FAILED from any
// non-terminal state.
func (s *Supervisor) transition(to data.State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !canTransition(s.state, to) {
		return false
	}
	s.state = to
	return true
}

var nextState = map[data.State]data.State{
	data.StateStarting:    data.StateDownloading,
	data.StateDownloading: data.StateConverting,
	data.StateConverting:  data.StateCompleted,
}

func canTransition(from, to data.State) bool {
	if from.Terminal() {
		return false
	}
	if to == data.StateFailed {
		return true
	}
	return nextState[from] == to
}

// emit publishes a notification and records it for replay. Nothing is
// emitted once a terminal notification went out.
func (s *Supervisor) emit(signal string, payload any) {
	n := data.Notification{Signal: signal, Data: payload}
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	s.mu.Lock()
	if s.terminalSent {
		s.mu.Unlock()
		return
	}
	if signal == data.SignalFinished || signal == data.SignalDownloadError {
		s.terminalSent = true
	}
	s.last = &n
	s.mu.Unlock()

	metrics.Notifications.WithLabelValues(signal).Inc()
	if s.pub != nil {
		s.pub.Publish(s.token, n)
	}
}

func (s *Supervisor) report(msg string) {
	if s.rep == nil {
		return
	}
	snap := s.Snapshot()
	s.rep.Report(Event{
		Token:    s.token,
		Format:   s.variant.Format,
		State:    snap.State,
		Progress: snap.Progress,
		Message:  msg,
		At:       s.now(),
	})
}

func failureMessage(err error) string {
	if err == nil {
		return "download failed"
	}
	msg := strings.TrimSpace(err.Error())
	if msg == "" {
		return "download failed"
	}
	return msg
}
