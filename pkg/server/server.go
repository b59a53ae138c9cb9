package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/elonfeng/notepulse/internal/collect"
	"github.com/elonfeng/notepulse/internal/store"
	"github.com/elonfeng/notepulse/pkg/gate"
	"github.com/elonfeng/notepulse/pkg/importer"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Options configures the HTTP API.
type Options struct {
	Port int
	// NoteEmail and NotePassword are the fallback note.com login for fetches
	// when accounts are disabled. NoteEmail also names the local owner.
	NoteEmail    string
	NotePassword string
	// MaxUploadBytes caps one import request.
	MaxUploadBytes int64
}

// Server provides the HTTP API.
type Server struct {
	store     store.Store
	importer  *importer.Importer
	collector *collect.Collector
	gate      *gate.Gate
	tokens    *gate.Tokens
	opts      Options
}

// New creates a new HTTP server. With tokens nil, accounts are disabled and
// every request runs as the local owner.
func New(s store.Store, c *collect.Collector, g *gate.Gate, tokens *gate.Tokens, opts Options) *Server {
	if opts.Port == 0 {
		opts.Port = 8080
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 32 << 20
	}
	return &Server{
		store:     s,
		importer:  importer.New(s),
		collector: c,
		gate:      g,
		tokens:    tokens,
		opts:      opts,
	}
}

func (s *Server) accountsEnabled() bool {
	return s.gate != nil && s.tokens != nil
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		if s.accountsEnabled() {
			r.Post("/signup", s.handleSignup)
			r.Post("/login", s.handleLogin)
		}

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)

			r.Get("/summary", s.handleSummary)
			r.Get("/series", s.handleSeries)
			r.Get("/totals", s.handleTotals)
			r.Get("/calendar", s.handleCalendar)
			r.Post("/fetch", s.handleFetch)
			r.Post("/import", s.handleImport)
			r.Get("/import/sample", s.handleSample)
			r.Get("/export", s.handleExport)

			r.Route("/admin", func(r chi.Router) {
				r.Use(requireAdmin)
				r.Get("/users", s.handleListUsers)
				r.Delete("/users/{email}", s.handleDeleteUser)
			})
		})
	})

	return r
}

// ListenAndServe starts the HTTP server and shuts it down when ctx ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.opts.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("notepulse server listening", "addr", srv.Addr, "accounts", s.accountsEnabled())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// writeAuthError maps access refusals to 401 and 402; anything else is a
// server failure.
func writeAuthError(w http.ResponseWriter, err error) {
	var aerr *gate.AuthError
	if !errors.As(err, &aerr) {
		slog.Error("authentication failed", "err", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	switch aerr.Kind {
	case gate.NotEntitled:
		writeJSON(w, http.StatusPaymentRequired, map[string]string{
			"error":        aerr.Error(),
			"payment_link": aerr.PaymentLink,
		})
	default:
		writeError(w, http.StatusUnauthorized, aerr)
	}
}
