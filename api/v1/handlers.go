package v1

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/tinoosan/tubeconv/internal/data"
	"github.com/tinoosan/tubeconv/internal/notify"
	"github.com/tinoosan/tubeconv/internal/service"
	"github.com/tinoosan/tubeconv/internal/source"
)

// PushHub is the part of notify.Hub the websocket endpoint needs.
type PushHub interface {
	NewClient() *notify.Client
	Join(token string, c *notify.Client)
	Leave(c *notify.Client)
	Send(c *notify.Client, n data.Notification) bool
}

type ConversionHandler struct {
	l       *slog.Logger
	svc     service.Conversion
	hub     PushHub
	origins []string
}

func NewConversionHandler(l *slog.Logger, svc service.Conversion, hub PushHub) *ConversionHandler {
	if l == nil {
		l = slog.Default()
	}
	return &ConversionHandler{l: l, svc: svc, hub: hub}
}

// SetOriginPatterns sets the hosts allowed to open the push channel from a
// browser, in addition to the serving host.
func (h *ConversionHandler) SetOriginPatterns(p []string) { h.origins = p }

func (h *ConversionHandler) ListConversions(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.List(r.Context(), r.URL.Query().Get("fingerprint"))
	if err != nil {
		h.fail(w, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, list); err != nil {
		markErr(w, err)
	}
}

func (h *ConversionHandler) GetConversion(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.Get(r.Context(), mux.Vars(r)["token"])
	if err != nil {
		h.fail(w, err)
		return
	}
	_ = writeJSON(w, http.StatusOK, c)
}

func (h *ConversionHandler) CreateConversion(w http.ResponseWriter, r *http.Request) {
	req, ok := r.Context().Value(ctxKeyRequest{}).(*data.Request)
	if !ok || req == nil {
		markErr(w, ErrRequestCtx)
		http.Error(w, ErrRequestCtx.Error(), http.StatusInternalServerError)
		return
	}
	c, err := h.svc.Create(r.Context(), *req)
	if err != nil {
		h.fail(w, err)
		return
	}
	w.Header().Set("Location", "/v1/conversions/"+c.Token)
	_ = writeJSON(w, http.StatusAccepted, c)
}

func (h *ConversionHandler) GetSource(w http.ResponseWriter, r *http.Request) {
	src := strings.TrimSpace(r.URL.Query().Get("source"))
	if src == "" {
		markErr(w, ErrSourceParam)
		http.Error(w, ErrSourceParam.Error(), http.StatusBadRequest)
		return
	}
	md, err := h.svc.Probe(r.Context(), src)
	if err != nil {
		if errors.Is(err, data.ErrInvalidSource) {
			h.fail(w, err)
			return
		}
		markErr(w, err)
		http.Error(w, "unable to probe source", http.StatusBadGateway)
		return
	}
	_ = writeJSON(w, http.StatusOK, md)
}

// ServeFile streams the converted output as an attachment.
func (h *ConversionHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	path, name, err := h.svc.File(r.Context(), mux.Vars(r)["token"])
	if err != nil {
		h.fail(w, err)
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeFile(w, r, path)
}

// fail maps service errors to status codes.
func (h *ConversionHandler) fail(w http.ResponseWriter, err error) {
	markErr(w, err)
	switch {
	case errors.Is(err, data.ErrNotFound):
		http.Error(w, "Not found", http.StatusNotFound)
	case errors.Is(err, data.ErrNotReady):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, data.ErrExpired):
		http.Error(w, err.Error(), http.StatusGone)
	case errors.Is(err, data.ErrBadFormat),
		errors.Is(err, data.ErrBadQuality),
		errors.Is(err, data.ErrInvalidSource):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, source.ErrNoFormat):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
