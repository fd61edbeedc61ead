package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"sync"

	"github.com/tinoosan/tubeconv/internal/data"
	"github.com/tinoosan/tubeconv/internal/metrics"
)

const copyBufferSize = 32 * 1024

// Status is a point-in-time view of a Tracker.
type Status struct {
	Started    bool
	Completed  bool
	Errored    bool
	Downloaded int64
	// Total is only meaningful when TotalKnown is set.
	Total      int64
	TotalKnown bool
	Err        error
}

// Tracker owns one byte-stream transfer into a destination file.
//
// Completed and Errored are terminal: once either is set the tracker
// reports nothing further. A stopped tracker is silent as well.
type Tracker struct {
	index   int
	path    string
	fetcher Fetcher
	log     *slog.Logger

	mu      sync.Mutex
	rep     Reporter
	status  Status
	stopped bool
	cancel  context.CancelFunc
	body    io.ReadCloser
	file    *os.File
}

// NewTracker creates an idle tracker writing to path.
func NewTracker(index int, path string, f Fetcher) *Tracker {
	return &Tracker{index: index, path: path, fetcher: f, log: slog.Default()}
}

// SetReporter sets the owner notification target.
func (t *Tracker) SetReporter(r Reporter) {
	t.mu.Lock()
	t.rep = r
	t.mu.Unlock()
}

// SetLogger allows wiring a shared application logger into the tracker.
func (t *Tracker) SetLogger(l *slog.Logger) {
	if l != nil {
		t.log = l
	}
}

func (t *Tracker) Index() int   { return t.index }
func (t *Tracker) Path() string { return t.path }

// Status returns a snapshot of the tracker's flags and counters.
func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Start opens the stream and copies it into the destination in the
// background. Failures never return to the caller; they set Errored and
// are reported to the owner. Calling Start twice, or after Stop, is a no-op.
func (t *Tracker) Start(ctx context.Context, sourceID string, sel data.Selector) {
	t.mu.Lock()
	if t.status.Started || t.stopped {
		t.mu.Unlock()
		return
	}
	t.status.Started = true
	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.mu.Unlock()

	stream, err := t.open(ctx, sourceID, sel)
	if err != nil {
		t.fail(err)
		return
	}
	f, err := os.Create(t.path)
	if err != nil {
		_ = stream.Body.Close()
		t.fail(fmt.Errorf("create destination: %w", err))
		return
	}

	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		_ = stream.Body.Close()
		_ = f.Close()
		_ = os.Remove(t.path)
		return
	}
	t.body = stream.Body
	t.file = f
	t.mu.Unlock()

	go t.transfer(stream.Body, f, stream.Size)
}

// Stop cancels any transfer, releases handles and removes the destination
// file. It is idempotent and safe before Start.
func (t *Tracker) Stop() {
	t.mu.Lock()
	t.stopped = true
	cancel, body, f := t.cancel, t.body, t.file
	t.body, t.file = nil, nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if body != nil {
		_ = body.Close()
	}
	if f != nil {
		_ = f.Close()
	}
	if err := os.Remove(t.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		t.log.Warn("remove stream file", "path", t.path, "err", err)
	}
}

func (t *Tracker) open(ctx context.Context, sourceID string, sel data.Selector) (s *Stream, err error) {
	if t.fetcher == nil {
		return nil, ErrNoStream
	}
	// A misbehaving fetcher must not take the caller down with it.
	defer func() {
		if r := recover(); r != nil {
			s, err = nil, fmt.Errorf("open stream: %v", r)
		}
	}()
	s, err = t.fetcher.Open(ctx, sourceID, sel)
	if err != nil {
		return nil, err
	}
	if s == nil || s.Body == nil {
		return nil, ErrNoStream
	}
	return s, nil
}

func (t *Tracker) transfer(body io.ReadCloser, f *os.File, size int64) {
	buf := make([]byte, copyBufferSize)
	var downloaded int64
	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				t.finish(body, f, fmt.Errorf("write destination: %w", werr))
				return
			}
			downloaded += int64(n)
			t.onProgress(int64(n), downloaded, size)
		}
		if errors.Is(rerr, io.EOF) {
			t.finish(body, f, nil)
			return
		}
		if rerr != nil {
			t.finish(body, f, fmt.Errorf("read stream: %w", rerr))
			return
		}
	}
}

func (t *Tracker) onProgress(chunk, downloaded, total int64) {
	metrics.StreamBytes.Add(float64(chunk))

	t.mu.Lock()
	if t.stopped || t.terminal() {
		t.mu.Unlock()
		return
	}
	t.status.Downloaded = downloaded
	if total > 0 {
		t.status.Total = total
		t.status.TotalKnown = true
	}
	if t.status.TotalKnown && t.status.Total < downloaded {
		t.status.Total = downloaded
	}
	rep := t.rep
	t.mu.Unlock()

	if rep != nil {
		rep.Report(Event{Index: t.index, Type: EventProgress, Progress: &Progress{Chunk: chunk, Downloaded: downloaded, Total: total}})
	}
}

func (t *Tracker) finish(body io.ReadCloser, f *os.File, err error) {
	_ = body.Close()
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close destination: %w", cerr)
	}

	t.mu.Lock()
	t.body, t.file = nil, nil
	if t.stopped || t.terminal() {
		t.mu.Unlock()
		return
	}
	typ := EventComplete
	if err != nil {
		t.status.Errored = true
		t.status.Err = err
		typ = EventFailed
	} else {
		t.status.Completed = true
	}
	rep := t.rep
	t.mu.Unlock()

	if err != nil {
		t.log.Warn("stream transfer failed", "path", t.path, "err", err)
	}
	if rep != nil {
		rep.Report(Event{Index: t.index, Type: typ, Err: err})
	}
}

func (t *Tracker) fail(err error) {
	t.mu.Lock()
	if t.stopped || t.terminal() {
		t.mu.Unlock()
		return
	}
	t.status.Errored = true
	t.status.Err = err
	rep := t.rep
	t.mu.Unlock()

	t.log.Warn("stream start failed", "path", t.path, "err", err)
	if rep != nil {
		rep.Report(Event{Index: t.index, Type: EventFailed, Err: err})
	}
}

// terminal must be called with mu held.
func (t *Tracker) terminal() bool {
	return t.status.Completed || t.status.Errored
}
