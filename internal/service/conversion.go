package service

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/tinoosan/tubeconv/internal/conversion"
	"github.com/tinoosan/tubeconv/internal/data"
	"github.com/tinoosan/tubeconv/internal/downloader"
	"github.com/tinoosan/tubeconv/internal/fp"
	"github.com/tinoosan/tubeconv/internal/metrics"
	"github.com/tinoosan/tubeconv/internal/repo"
	"github.com/tinoosan/tubeconv/internal/source"
)

// Conversion is the application surface used by the HTTP and websocket
// layers.
type Conversion interface {
	Create(ctx context.Context, req data.Request) (*data.Conversion, error)
	Get(ctx context.Context, token string) (*data.Conversion, error)
	// List returns every known conversion, or only those sharing fingerprint
	// when it is non-empty.
	List(ctx context.Context, fingerprint string) (data.Conversions, error)
	Replay(token string) (data.Notification, error)
	Lookup(token string) bool
	// File returns the output path and a download name for a finished
	// conversion still inside its serve window.
	File(ctx context.Context, token string) (path, name string, err error)
	Probe(ctx context.Context, src string) (data.Metadata, error)
}

// MetadataSource describes sources without converting them.
type MetadataSource interface {
	Metadata(ctx context.Context, source string) (data.Metadata, error)
}

// Options configures a conversion service. Zero values fall back to
// defaults.
type Options struct {
	// BaseContext bounds every supervisor. Request contexts are not used
	// since conversions outlive the request that created them.
	BaseContext context.Context
	DataDir     string
	Retention   time.Duration
	ServeWindow time.Duration
	Publisher   conversion.Publisher
	Reporter    conversion.Reporter
	Logger      *slog.Logger
	Now         func() time.Time
}

type conversionService struct {
	repo    repo.ConversionRepo
	reg     *conversion.Registry
	fetcher downloader.Fetcher
	meta    MetadataSource
	tc      conversion.Transcoder
	opts    Options
	log     *slog.Logger
}

func NewConversion(r repo.ConversionRepo, reg *conversion.Registry, f downloader.Fetcher, meta MetadataSource, tc conversion.Transcoder, opts Options) Conversion {
	if opts.BaseContext == nil {
		opts.BaseContext = context.Background()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Retention <= 0 {
		opts.Retention = conversion.DefaultRetention
	}
	if opts.ServeWindow <= 0 || opts.ServeWindow > opts.Retention {
		opts.ServeWindow = opts.Retention
	}
	return &conversionService{
		repo:    r,
		reg:     reg,
		fetcher: f,
		meta:    meta,
		tc:      tc,
		opts:    opts,
		log:     opts.Logger,
	}
}

func (cs *conversionService) Create(ctx context.Context, req data.Request) (*data.Conversion, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	src, err := source.Normalize(req.Source)
	if err != nil {
		return nil, err
	}
	quality := req.Quality
	if req.Format != data.FormatMP4 {
		quality = ""
	}

	token := uuid.NewString()
	audio := cs.path(token, "audio")
	var v conversion.Variant
	switch req.Format {
	case data.FormatMP3:
		v = conversion.AudioVariant(cs.tc, audio)
	case data.FormatMP4:
		v = conversion.VideoVariant(cs.tc, quality, audio, cs.path(token, "video"))
	}

	saved, err := cs.repo.Add(ctx, &data.Conversion{
		Token:       token,
		Source:      src,
		Format:      req.Format,
		Quality:     quality,
		State:       data.StateStarting,
		Fingerprint: fp.Fingerprint(src, string(req.Format), quality),
		CreatedAt:   cs.opts.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("persist conversion: %w", err)
	}

	sup := conversion.New(cs.opts.BaseContext, token, src, v, cs.path(token, string(req.Format)), cs.fetcher, conversion.Options{
		Retention: cs.opts.Retention,
		Publisher: cs.opts.Publisher,
		Reporter:  cs.opts.Reporter,
		Logger:    cs.log,
		OnRemove:  func() { cs.reg.Remove(token) },
		Now:       cs.opts.Now,
	})
	if err := cs.reg.Register(sup); err != nil {
		return nil, err
	}
	metrics.ConversionsStarted.WithLabelValues(string(req.Format)).Inc()
	cs.log.Info("conversion created", "token", token, "source", src, "format", req.Format, "quality", quality)

	go sup.Start()
	return saved, nil
}

func (cs *conversionService) path(token, ext string) string {
	return filepath.Join(cs.opts.DataDir, token+"."+ext)
}

func (cs *conversionService) Get(ctx context.Context, token string) (*data.Conversion, error) {
	c, err := cs.repo.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	cs.overlay(c)
	return c, nil
}

func (cs *conversionService) List(ctx context.Context, fingerprint string) (data.Conversions, error) {
	var (
		list data.Conversions
		err  error
	)
	if fingerprint != "" {
		list, err = cs.repo.ListByFingerprint(ctx, fingerprint)
	} else {
		list, err = cs.repo.List(ctx)
	}
	if err != nil {
		return nil, err
	}
	for _, c := range list {
		cs.overlay(c)
	}
	return list, nil
}

// overlay refreshes c from its live supervisor, which may be ahead of the
// history store.
func (cs *conversionService) overlay(c *data.Conversion) {
	sup, ok := cs.reg.Lookup(c.Token)
	if !ok {
		return
	}
	snap := sup.Snapshot()
	c.State = snap.State
	if snap.Progress > c.Progress {
		c.Progress = snap.Progress
	}
	if !snap.CompletedAt.IsZero() && c.FinishedAt == nil {
		t := snap.CompletedAt
		c.FinishedAt = &t
	}
}

func (cs *conversionService) Replay(token string) (data.Notification, error) {
	return cs.reg.Replay(token)
}

func (cs *conversionService) Lookup(token string) bool {
	_, ok := cs.reg.Lookup(token)
	return ok
}

func (cs *conversionService) File(ctx context.Context, token string) (string, string, error) {
	sup, ok := cs.reg.Lookup(token)
	if !ok {
		if _, err := cs.repo.Get(ctx, token); err != nil {
			return "", "", err
		}
		return "", "", data.ErrExpired
	}
	snap := sup.Snapshot()
	if snap.State != data.StateCompleted {
		return "", "", data.ErrNotReady
	}
	if cs.opts.Now().After(snap.CompletedAt.Add(cs.opts.ServeWindow)) {
		return "", "", data.ErrExpired
	}
	return sup.Output(), token + "." + string(snap.Format), nil
}

func (cs *conversionService) Probe(ctx context.Context, src string) (data.Metadata, error) {
	normalized, err := source.Normalize(src)
	if err != nil {
		return data.Metadata{}, err
	}
	return cs.meta.Metadata(ctx, normalized)
}
