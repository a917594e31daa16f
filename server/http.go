package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/anxuanzi/bua-teacher/browser"
	"github.com/anxuanzi/bua-teacher/dom"
	"github.com/anxuanzi/bua-teacher/guide"
)

// HTTP serves the guide over a small JSON API:
//
//	GET    /health
//	GET    /layout
//	GET    /layout/age
//	GET    /snapshot
//	POST   /highlight/{index}
//	POST   /widgets/{factoryID}/highlight
//	GET    /widgets/{factoryID}/highlight
//	DELETE /widgets/{factoryID}/highlight
type HTTP struct {
	guide *guide.Guide
	log   *zap.Logger
}

// NewHTTP creates the HTTP API.
func NewHTTP(g *guide.Guide, logger *zap.Logger) *HTTP {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTP{guide: g, log: logger}
}

// Handler returns the router.
func (h *HTTP) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/layout", h.handleLayout)
	r.Get("/layout/age", h.handleLayoutAge)
	r.Get("/snapshot", h.handleSnapshot)
	r.Post("/highlight/{index}", h.handleHighlight)
	r.Post("/widgets/{factoryID}/highlight", h.handleWidgetHighlight)
	r.Get("/widgets/{factoryID}/highlight", h.handleWidgetState)
	r.Delete("/widgets/{factoryID}/highlight", h.handleWidgetStop)
	return r
}

// ListenAndServe serves the API on addr until ctx is done.
func (h *HTTP) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	h.log.Info("http server listening", zap.String("addr", addr))

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (h *HTTP) handleLayout(w http.ResponseWriter, r *http.Request) {
	l, err := h.guide.Layout(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	if r.URL.Query().Get("debug") != "" {
		l.WithUniqueAttributes()
	}
	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(l.String()))
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (h *HTTP) handleLayoutAge(w http.ResponseWriter, _ *http.Request) {
	age, err := h.guide.Service().LayoutAge()
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"mutations": age})
}

func (h *HTTP) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	st := h.guide.Service().LastState()
	if st == nil {
		h.writeError(w, dom.ErrNoSnapshot)
		return
	}
	writeJSON(w, http.StatusOK, st.Snapshot)
}

func (h *HTTP) handleHighlight(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid index"})
		return
	}
	res, err := h.guide.HighlightByIndex(r.Context(), index)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// widgetRequest is the optional body of POST /widgets/{factoryID}/highlight.
// A CSS selector targets an element inside the widget instead of its tab.
type widgetRequest struct {
	Options     map[string]any `json:"options"`
	CSSSelector string         `json:"cssSelector"`
}

func (h *HTTP) handleWidgetHighlight(w http.ResponseWriter, r *http.Request) {
	var req widgetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	factoryID := chi.URLParam(r, "factoryID")
	var (
		res *guide.Result
		err error
	)
	if req.CSSSelector != "" {
		res, err = h.guide.HighlightElement(r.Context(), factoryID, req.Options, req.CSSSelector)
	} else {
		res, err = h.guide.HighlightWidget(r.Context(), factoryID, req.Options)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *HTTP) handleWidgetState(w http.ResponseWriter, r *http.Request) {
	on, err := h.guide.WidgetHighlighted(r.Context(), chi.URLParam(r, "factoryID"), queryOptions(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"highlighted": on})
}

func (h *HTTP) handleWidgetStop(w http.ResponseWriter, r *http.Request) {
	if err := h.guide.StopWidget(r.Context(), chi.URLParam(r, "factoryID"), queryOptions(r)); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// queryOptions reads the widget id and name options from the query string.
func queryOptions(r *http.Request) map[string]any {
	opts := make(map[string]any)
	for _, key := range []string{"id", "name"} {
		if v := r.URL.Query().Get(key); v != "" {
			opts[key] = v
		}
	}
	return opts
}

func (h *HTTP) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, dom.ErrNoSnapshot), errors.Is(err, dom.ErrStaleSelector):
		status = http.StatusConflict
	case errors.Is(err, browser.ErrTargetNotFound):
		status = http.StatusNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusRequestTimeout
	}
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
