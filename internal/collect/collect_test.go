package collect

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/elonfeng/notepulse/internal/store"
	"github.com/elonfeng/notepulse/pkg/source"
	"github.com/stretchr/testify/require"
)

func newNoteServer(t *testing.T, pages int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/sessions/sign_in", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["password"] != "secret" {
			w.Write([]byte(`{"error":{"message":"invalid"}}`))
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "_note_session_v5", Value: "ok", Path: "/"})
		w.Write([]byte(`{"data":{}}`))
	})
	mux.HandleFunc("GET /api/v1/stats/pv", func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("_note_session_v5"); err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		if page > pages {
			w.Write([]byte(`{"data":{"note_stats":[]}}`))
			return
		}
		id := int64(page)
		w.Write([]byte(`{"data":{"note_stats":[{"id":` + strconv.FormatInt(id, 10) +
			`,"name":"post ` + strconv.Itoa(page) + `","read_count":10,"like_count":1,"comment_count":0}]}}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRunStoresFetch(t *testing.T) {
	srv := newNoteServer(t, 3)
	s, err := store.New(filepath.Join(t.TempDir(), "collect.db"))
	require.NoError(t, err)
	defer s.Close()

	c := New(s, source.NoteOptions{BaseURL: srv.URL})
	ctx := context.Background()

	rep, err := c.Run(ctx, "o1", "me@example.com", "secret")
	require.NoError(t, err)
	require.Equal(t, 3, rep.Pages)
	require.Equal(t, 3, rep.Fetched)
	require.Equal(t, 3, rep.Added)
	require.Empty(t, rep.Stopped)

	rep, err = c.Run(ctx, "o1", "me@example.com", "secret")
	require.NoError(t, err)
	require.Equal(t, 0, rep.Added)
}

func TestRunLoginFailure(t *testing.T) {
	srv := newNoteServer(t, 1)
	s, err := store.New(filepath.Join(t.TempDir(), "collect.db"))
	require.NoError(t, err)
	defer s.Close()

	c := New(s, source.NoteOptions{BaseURL: srv.URL})
	_, err = c.Run(context.Background(), "o1", "me@example.com", "wrong")
	require.ErrorIs(t, err, source.ErrLoginFailed)

	_, err = c.Run(context.Background(), "o1", "", "")
	require.ErrorIs(t, err, ErrNoCredentials)
}
