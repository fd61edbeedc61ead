package router

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	v1 "github.com/tinoosan/tubeconv/api/v1"
	"github.com/tinoosan/tubeconv/internal/auth"
	"github.com/tinoosan/tubeconv/internal/service"
)

const readyTimeout = 2 * time.Second

// ReadyFunc reports whether the service can take new conversions.
type ReadyFunc func(ctx context.Context) error

// Options carries the optional parts of the route table.
type Options struct {
	// APIToken enables bearer auth on /v1 when set.
	APIToken string
	// WSOrigins lists extra browser origins allowed on /ws.
	WSOrigins []string
	Ready     ReadyFunc
}

// New sets up the application routes and required middleware.
func New(logger *slog.Logger, svc service.Conversion, hub v1.PushHub, opts Options) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			logger.Error("write healthz response", "err", err)
		}
	}).Methods("GET")

	r.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if opts.Ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
			defer cancel()
			if err := opts.Ready(ctx); err != nil {
				logger.Warn("not ready", "err", err)
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	}).Methods("GET")

	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	h := v1.NewConversionHandler(logger, svc, hub)
	h.SetOriginPatterns(opts.WSOrigins)

	r.Use(v1.RequestID)
	r.Use(h.Log)

	// Tokens are unguessable, so file and push routes sit outside auth.
	r.HandleFunc("/files/{token}", h.ServeFile).Methods("GET")
	r.HandleFunc("/ws", h.ServeWS).Methods("GET")

	api := r.PathPrefix("/v1").Subrouter()
	api.Use(auth.Middleware(opts.APIToken))

	// GETs
	get := api.Methods("GET").Subrouter()
	get.HandleFunc("/conversions", h.ListConversions)
	get.HandleFunc("/conversions/{token}", h.GetConversion)
	get.HandleFunc("/sources", h.GetSource)

	// POSTs
	post := api.Methods("POST").Subrouter()
	post.HandleFunc("/conversions", h.CreateConversion)
	post.Use(v1.MiddlewareConversionValidation)

	return r
}
