package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/elonfeng/notepulse/internal/collect"
	"github.com/elonfeng/notepulse/internal/store"
	"github.com/elonfeng/notepulse/pkg/gate"
	"github.com/elonfeng/notepulse/pkg/importer"
	"github.com/elonfeng/notepulse/pkg/source"
	"github.com/elonfeng/notepulse/pkg/trend"
	"github.com/go-chi/chi/v5"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
		return
	}

	u, err := s.gate.Signup(r.Context(), c.Email, c.Password)
	switch {
	case errors.Is(err, gate.ErrEmailTaken):
		writeError(w, http.StatusConflict, err)
		return
	case errors.Is(err, gate.ErrReservedEmail):
		writeError(w, http.StatusForbidden, err)
		return
	case errors.Is(err, gate.ErrWeakPassword), errors.Is(err, gate.ErrInvalidEmail):
		writeError(w, http.StatusBadRequest, err)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"owner_id":     u.OwnerID,
		"email":        u.Email,
		"payment_link": s.gate.PaymentLink(),
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
		return
	}

	sess, err := s.gate.Authenticate(r.Context(), c.Email, c.Password)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	token, err := s.tokens.Issue(sess)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": token, "session": sess})
}

// history loads the caller's observations, writing the error response itself
// when it fails.
func (s *Server) history(w http.ResponseWriter, r *http.Request) ([]source.Observation, bool) {
	sess, _ := gate.SessionFrom(r.Context())
	obs, err := s.store.ListObservations(r.Context(), sess.OwnerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return nil, false
	}
	return obs, true
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	obs, ok := s.history(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, trend.Summarize(obs))
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	obs, ok := s.history(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, trend.BuildSeries(obs))
}

func (s *Server) handleTotals(w http.ResponseWriter, r *http.Request) {
	obs, ok := s.history(w, r)
	if !ok {
		return
	}
	totals := trend.DailyTotals(obs)
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  totals,
		"count": len(totals),
	})
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	months := 6
	if v := r.URL.Query().Get("months"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 24 {
			writeError(w, http.StatusBadRequest, errors.New("months must be between 1 and 24"))
			return
		}
		months = n
	}

	sess, _ := gate.SessionFrom(r.Context())
	dates, err := s.store.ObservedDates(r.Context(), sess.OwnerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":     trend.Calendar(dates, time.Now(), months),
		"observed": len(dates),
	})
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	if s.collector == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("fetching is not configured"))
		return
	}

	var c credentials
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
			return
		}
	}
	if c.Email == "" && !s.accountsEnabled() {
		c.Email, c.Password = s.opts.NoteEmail, s.opts.NotePassword
	}

	sess, _ := gate.SessionFrom(r.Context())
	rep, err := s.collector.Run(r.Context(), sess.OwnerID, c.Email, c.Password)
	switch {
	case errors.Is(err, collect.ErrNoCredentials):
		writeError(w, http.StatusBadRequest, err)
		return
	case errors.Is(err, source.ErrLoginFailed):
		writeError(w, http.StatusBadGateway, err)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("parse upload: %w", err))
		return
	}
	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("no files uploaded"))
		return
	}

	var files []importer.File
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("open %s: %w", fh.Filename, err))
			return
		}
		defer f.Close()
		files = append(files, importer.File{Name: fh.Filename, Reader: f})
	}

	sess, _ := gate.SessionFrom(r.Context())
	res, err := s.importer.Import(r.Context(), files, sess.OwnerID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":  err.Error(),
			"result": res,
		})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSample(w http.ResponseWriter, r *http.Request) {
	data, err := importer.SampleCSV()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=Shift_JIS")
	w.Header().Set("Content-Disposition", `attachment; filename="notepulse-sample.csv"`)
	w.Write(data)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	sess, _ := gate.SessionFrom(r.Context())

	var buf bytes.Buffer
	if err := s.store.ExportOwner(r.Context(), sess.OwnerID, &buf); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.sqlite3")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="notepulse-%s.db"`, sess.OwnerID))
	w.Write(buf.Bytes())
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.ListUsers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  users,
		"count": len(users),
	})
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	email := gate.NormalizeEmail(chi.URLParam(r, "email"))
	u, err := s.store.GetUserByEmail(r.Context(), email)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Errorf("user %s: %w", email, err))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if err := s.store.DeleteOwner(r.Context(), u.OwnerID); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": u.Email, "owner_id": u.OwnerID})
}
