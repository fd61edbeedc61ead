package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tinoosan/tubeconv/internal/config"
	"github.com/tinoosan/tubeconv/internal/conversion"
	"github.com/tinoosan/tubeconv/internal/deps"
	"github.com/tinoosan/tubeconv/internal/metrics"
	"github.com/tinoosan/tubeconv/internal/notify"
	"github.com/tinoosan/tubeconv/internal/reconciler"
	"github.com/tinoosan/tubeconv/internal/repo"
	"github.com/tinoosan/tubeconv/internal/router"
	"github.com/tinoosan/tubeconv/internal/service"
	"github.com/tinoosan/tubeconv/internal/source"
	"github.com/tinoosan/tubeconv/internal/transcode"
)

const (
	shutdownTimeout = 30 * time.Second
	eventQueue      = 256
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), ctx)
		},
	}
}

func openStore(cfg *config.Config) (repo.ConversionRepo, func(context.Context) error, func() error, error) {
	if cfg.Store != config.StorePostgres {
		return repo.NewInMemoryConversionRepo(), nil, func() error { return nil }, nil
	}
	pg, err := repo.NewPostgresRepo(cfg.PostgresDSN())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	return pg, pg.Ping, pg.Close, nil
}

func runServe(parent context.Context, cc *commandContext) error {
	cfg, l, err := cc.ensure()
	if err != nil {
		return err
	}
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.Conversion.DataDir, 0o755); err != nil {
		return fmt.Errorf("ensure data dir: %w", err)
	}
	metrics.Register()

	store, ping, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			l.Error("close store", "err", err)
		}
	}()

	events := make(chan conversion.Event, eventQueue)
	rec := reconciler.New(l, store, events)
	rec.Run()

	hub := notify.NewHub(l)
	reg := conversion.NewRegistry()

	yt := source.NewYTDLP(l)
	yt.SetTimeout(cfg.ProbeTimeout())
	fetcher := source.NewFetcher(yt, nil, l)
	ff := transcode.New(cfg.Conversion.FFmpegPath, l)

	base, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	svc := service.NewConversion(store, reg, fetcher, fetcher, ff, service.Options{
		BaseContext: base,
		DataDir:     cfg.Conversion.DataDir,
		Retention:   cfg.Retention(),
		ServeWindow: cfg.ServeWindow(),
		Publisher:   hub,
		Reporter:    conversion.NewChanReporter(events),
		Logger:      l,
	})

	binaries := deps.Checker(deps.Requirements(ff.Binary()))
	ready := func(ctx context.Context) error {
		if err := binaries(ctx); err != nil {
			return err
		}
		if ping != nil {
			return ping(ctx)
		}
		return nil
	}
	if err := binaries(ctx); err != nil {
		l.Warn("dependency check failed", "err", err)
	}

	handler := router.New(l, svc, hub, router.Options{
		APIToken:  cfg.Server.APIToken,
		WSOrigins: cfg.Server.WSOrigins,
		Ready:     ready,
	})

	// No write timeout: file downloads and websocket sessions are long lived.
	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		l.Info("starting tubeconv", "addr", server.Addr, "store", cfg.Store, "data_dir", cfg.Conversion.DataDir)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		l.Info("received terminate, graceful shutdown")
	case err := <-serveErr:
		if err != nil {
			l.Error("server error", "err", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		l.Error("http shutdown", "err", err)
	}

	// Supervisors report their final events before the reconciler stops.
	reg.Close()
	rec.Stop()
	cancelBase()
	return nil
}
