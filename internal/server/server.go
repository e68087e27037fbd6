// Package server exposes the run ledger, the change log and manual dispatch
// over HTTP while the scheduler is running.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"notion-task-monitor/internal/logging"
	"notion-task-monitor/internal/result"
	"notion-task-monitor/internal/store"
)

// Dispatcher starts a manual run.
type Dispatcher interface {
	Dispatch(ctx context.Context) (store.RunRecord, error)
}

// RunLedger is the read side of the run ledger.
type RunLedger interface {
	result.RunSource
	Run(ctx context.Context, id string) (store.RunRecord, error)
}

type Options struct {
	Changes result.ChangeSource
	// Runs is nil when no SQL store is configured.
	Runs       RunLedger
	Dispatcher Dispatcher
	Logger     *log.Logger
}

type Server struct {
	opts   Options
	logger *log.Logger
}

func New(opts Options) *Server {
	return &Server{opts: opts, logger: logging.OrDiscard(opts.Logger)}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/runs", s.handleRuns)
	r.Get("/runs/{id}", s.handleRun)
	r.Get("/changes", s.handleChanges)
	r.Post("/dispatch", s.handleDispatch)
	r.Get("/export", s.handleExport)
	return r
}

// ListenAndServe serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	s.logger.Info("http server listening", "addr", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.opts.Runs == nil {
		writeErr(w, http.StatusNotFound, result.ErrNoRuns)
		return
	}
	limit, err := limitParam(r, 20)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	runs, err := s.opts.Runs.Runs(r.Context(), limit)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if runs == nil {
		runs = []store.RunRecord{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if s.opts.Runs == nil {
		writeErr(w, http.StatusNotFound, result.ErrNoRuns)
		return
	}
	rec, err := s.opts.Runs.Run(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeErr(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleChanges(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r, 50)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	changes, err := s.opts.Changes.Changes(r.Context(), limit)
	if err != nil {
		writeErr(w, http.StatusBadGateway, err)
		return
	}
	if changes == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, changes)
}

func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	rec, err := s.opts.Dispatcher.Dispatch(r.Context())
	if err != nil {
		writeErr(w, http.StatusServiceUnavailable, err)
		return
	}
	s.logger.Info("manual dispatch", "id", rec.ID, "remote", r.RemoteAddr)
	writeJSON(w, http.StatusAccepted, rec)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	format := q.Get("format")
	limit, err := limitParam(r, 0)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	var runs result.RunSource
	if s.opts.Runs != nil {
		runs = s.opts.Runs
	}
	ex := result.NewExporter(s.opts.Changes, runs)
	ex.Limit = limit
	b, err := ex.Export(r.Context(), q.Get("data"), format)
	if err != nil {
		code := http.StatusBadGateway
		switch {
		case errors.Is(err, result.ErrUnsupported):
			code = http.StatusBadRequest
		case errors.Is(err, result.ErrNoRuns):
			code = http.StatusNotFound
		}
		writeErr(w, code, err)
		return
	}
	w.Header().Set("Content-Type", result.ContentType(format))
	_, _ = w.Write(b)
}

func limitParam(r *http.Request, def int) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errStr("limit must be a non-negative integer")
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

type errStr string

func (e errStr) Error() string { return string(e) }
