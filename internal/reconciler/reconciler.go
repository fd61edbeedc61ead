package reconciler

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/tinoosan/tubeconv/internal/conversion"
	"github.com/tinoosan/tubeconv/internal/data"
	"github.com/tinoosan/tubeconv/internal/metrics"
	"github.com/tinoosan/tubeconv/internal/repo"
)

// errStale aborts an update whose event is older than the stored row.
var errStale = errors.New("stale event")

// Reconciler consumes supervisor lifecycle events and persists them to the
// conversion history.
type Reconciler struct {
	repo   repo.ConversionRepo
	events <-chan conversion.Event
	log    *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	stop chan struct{}
	wg   sync.WaitGroup
}

// New creates a Reconciler that processes supervisor events and mutates the
// repository accordingly.
func New(log *slog.Logger, repo repo.ConversionRepo, events <-chan conversion.Event) *Reconciler {
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{repo: repo, events: events, log: log, ctx: context.Background()}
}

// Run starts the reconciliation loop.
func (r *Reconciler) Run() {
	r.stop = make(chan struct{})
	r.ctx, r.cancel = context.WithCancel(r.ctx)
	// Tag this run with a stable operation_id for easier correlation.
	opID := uuid.NewString()
	r.log = r.log.With("operation_id", opID)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			select {
			case <-r.stop:
				r.drain()
				return
			case e, ok := <-r.events:
				if !ok {
					return
				}
				r.handle(e)
			}
		}
	}()
}

// drain persists events already queued when Stop was called.
func (r *Reconciler) drain() {
	for {
		select {
		case e, ok := <-r.events:
			if !ok {
				return
			}
			r.handle(e)
		default:
			return
		}
	}
}

// Stop terminates the reconciliation loop.
func (r *Reconciler) Stop() {
	if r.stop != nil {
		close(r.stop)
		r.wg.Wait()
		if r.cancel != nil {
			r.cancel()
		}
	}
}

func (r *Reconciler) handle(e conversion.Event) {
	metrics.ConversionEvents.WithLabelValues(strings.ToLower(string(e.State))).Inc()

	_, err := r.repo.Update(r.ctx, e.Token, func(c *data.Conversion) error {
		if c.State.Terminal() {
			return errStale
		}
		c.State = e.State
		c.Progress = e.Progress
		if e.State == data.StateFailed {
			c.Error = e.Message
		}
		if e.State.Terminal() {
			at := e.At
			c.FinishedAt = &at
		}
		return nil
	})
	switch {
	case errors.Is(err, errStale):
		r.log.Info("ignoring stale event", "token", e.Token, "state", e.State)
	case err != nil:
		r.log.Error("update", "token", e.Token, "state", e.State, "err", err)
	default:
		r.log.Info("reconciled event", "token", e.Token, "state", e.State)
	}
}
