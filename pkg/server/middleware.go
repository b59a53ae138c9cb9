package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/elonfeng/notepulse/internal/store"
	"github.com/elonfeng/notepulse/pkg/gate"
	"github.com/go-chi/chi/v5/middleware"
)

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// authenticate puts the caller's session on the request context. Bearer
// tokens are required when accounts are enabled.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.accountsEnabled() {
			ctx := gate.WithSession(r.Context(), gate.LocalSession(s.opts.NoteEmail))
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			writeAuthError(w, &gate.AuthError{Kind: gate.InvalidCredential, Err: errors.New("missing bearer token")})
			return
		}
		sess, err := s.tokens.Parse(token)
		if err != nil {
			writeAuthError(w, err)
			return
		}
		// Tokens outlive deleted accounts; the account must still exist.
		u, err := s.store.GetUserByEmail(r.Context(), sess.Email)
		switch {
		case errors.Is(err, store.ErrNotFound), err == nil && u.OwnerID != sess.OwnerID:
			writeAuthError(w, &gate.AuthError{Kind: gate.InvalidCredential, Err: errors.New("account no longer exists")})
			return
		case err != nil:
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(gate.WithSession(r.Context(), sess)))
	})
}

func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sess, ok := gate.SessionFrom(r.Context()); !ok || !sess.Admin {
			writeError(w, http.StatusForbidden, errors.New("admin only"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
