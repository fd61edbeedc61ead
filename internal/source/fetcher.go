package source

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tinoosan/tubeconv/internal/data"
	"github.com/tinoosan/tubeconv/internal/downloader"
)

// DefaultProbeTTL is how long a probe result is reused.
const DefaultProbeTTL = 2 * time.Minute

type cached struct {
	info *Info
	at   time.Time
}

// Fetcher opens streams for sources by probing them and issuing a GET for
// the selected encoding. Concurrent probes of one source are collapsed and
// the result is cached for a short while, so both streams of a video
// conversion see the same encodings.
type Fetcher struct {
	prober Prober
	client *http.Client
	log    *slog.Logger
	ttl    time.Duration
	now    func() time.Time

	group singleflight.Group
	mu    sync.Mutex
	cache map[string]cached
}

var _ downloader.Fetcher = (*Fetcher)(nil)

// NewFetcher wraps p. A nil client uses a client without an overall
// timeout, since stream bodies may take a long time to read.
func NewFetcher(p Prober, client *http.Client, l *slog.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{}
	}
	if l == nil {
		l = slog.Default()
	}
	return &Fetcher{
		prober: p,
		client: client,
		log:    l,
		ttl:    DefaultProbeTTL,
		now:    time.Now,
		cache:  make(map[string]cached),
	}
}

// SetTTL sets how long probe results are reused. Zero disables caching.
func (f *Fetcher) SetTTL(d time.Duration) { f.ttl = d }

// Info returns the probe result for source, from cache when fresh. The
// shared probe is detached from any one caller's cancellation; each caller
// still stops waiting when its own ctx is done. The prober's own timeout
// bounds the probe.
func (f *Fetcher) Info(ctx context.Context, source string) (*Info, error) {
	now := f.now()
	f.mu.Lock()
	c, ok := f.cache[source]
	if ok && now.Sub(c.at) >= f.ttl {
		delete(f.cache, source)
		ok = false
	}
	f.mu.Unlock()
	if ok {
		return c.info, nil
	}

	probeCtx := context.WithoutCancel(ctx)
	ch := f.group.DoChan(source, func() (any, error) {
		info, err := f.prober.Probe(probeCtx, source)
		if err != nil {
			return nil, err
		}
		if f.ttl > 0 {
			f.store(source, info)
		}
		return info, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Info), nil
	}
}

// store caches info and sweeps entries past their TTL.
func (f *Fetcher) store(source string, info *Info) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.now()
	for k, c := range f.cache {
		if now.Sub(c.at) >= f.ttl {
			delete(f.cache, k)
		}
	}
	f.cache[source] = cached{info: info, at: now}
}

// cacheLen reports how many probe results are held.
func (f *Fetcher) cacheLen() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cache)
}

// Metadata probes source and returns the client facing summary.
func (f *Fetcher) Metadata(ctx context.Context, source string) (data.Metadata, error) {
	info, err := f.Info(ctx, source)
	if err != nil {
		return data.Metadata{}, err
	}
	return Metadata(source, info), nil
}

// Open implements downloader.Fetcher.
func (f *Fetcher) Open(ctx context.Context, source string, sel data.Selector) (*downloader.Stream, error) {
	info, err := f.Info(ctx, source)
	if err != nil {
		return nil, err
	}
	format, err := Select(info.Formats, sel)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, format.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range format.Headers {
		req.Header.Set(k, v)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch format %s: %w", format.ID, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("fetch format %s: unexpected status %s", format.ID, resp.Status)
	}

	size := resp.ContentLength
	if size <= 0 {
		size = format.Size()
	}
	f.log.Debug("stream opened", "source", source, "format", format.ID, "kind", sel.Kind, "size", size)
	return &downloader.Stream{Body: resp.Body, Size: size}, nil
}
