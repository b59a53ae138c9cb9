package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/elonfeng/notepulse/internal/store"
	"github.com/elonfeng/notepulse/pkg/gate"
	"github.com/elonfeng/notepulse/pkg/source"
	"github.com/elonfeng/notepulse/pkg/trend"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type denyBilling struct{}

func (denyBilling) IsEntitled(context.Context, string) (bool, error) { return false, nil }

func newStore(t *testing.T) *store.SQLStore {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "server.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func do(t *testing.T, h http.Handler, method, path, token string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestLocalModeSummary(t *testing.T) {
	s := newStore(t)
	owner := gate.OwnerID("me@example.com")
	require.NoError(t, s.UpsertObservations(context.Background(), []source.Observation{
		{OwnerID: owner, ObservedOn: "2024-01-01", ItemID: 1, Title: "A", Views: 10, Likes: 1},
		{OwnerID: owner, ObservedOn: "2024-01-02", ItemID: 1, Title: "A", Views: 15, Likes: 2},
	}))

	h := New(s, nil, nil, nil, Options{NoteEmail: "me@example.com"}).Handler()

	rec := do(t, h, http.MethodGet, "/api/v1/summary", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var sum trend.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sum))
	require.Equal(t, "2024-01-02", sum.Latest)
	require.Equal(t, int64(5), sum.ViewsDelta)

	rec = do(t, h, http.MethodGet, "/api/v1/series", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"item_id":1`)

	rec = do(t, h, http.MethodGet, "/api/v1/calendar?months=0", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/export", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.HasPrefix(rec.Body.String(), "SQLite format 3"))

	// Signup is not mounted without accounts.
	rec = do(t, h, http.MethodPost, "/api/v1/signup", "", []byte(`{}`))
	require.Equal(t, http.StatusNotFound, rec.Code)

	// Fetching is not configured.
	rec = do(t, h, http.MethodPost, "/api/v1/fetch", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestImportUpload(t *testing.T) {
	s := newStore(t)
	h := New(s, nil, nil, nil, Options{}).Handler()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("files", "stats.csv")
	require.NoError(t, err)
	fw.Write([]byte("タイトル,日付,ビュー数\n記事A,2024-03-01,12\n記事B,2024-03-01,3\n"))
	fw, err = mw.CreateFormFile("files", "broken.csv")
	require.NoError(t, err)
	fw.Write([]byte("foo,bar\n1,2\n"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var res struct {
		Added int      `json:"added"`
		Dates []string `json:"dates"`
		Files []struct {
			Name  string `json:"name"`
			Error string `json:"error"`
		} `json:"files"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Equal(t, 2, res.Added)
	require.Equal(t, []string{"2024-03-01"}, res.Dates)
	require.Len(t, res.Files, 2)
	require.Empty(t, res.Files[0].Error)
	require.Contains(t, res.Files[1].Error, "missing required columns")

	n, err := s.CountObservations(context.Background(), gate.GuestOwner)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	rec = do(t, h, http.MethodGet, "/api/v1/import/sample", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Disposition"), "sample.csv")
}

func TestAccountsFlow(t *testing.T) {
	s := newStore(t)
	g := gate.New(s, denyBilling{}, gate.Options{AdminEmail: "admin@example.com", PaymentLink: "https://pay.example.com"})
	tokens, err := gate.NewTokens(testSecret, time.Hour)
	require.NoError(t, err)
	h := New(s, nil, g, tokens, Options{}).Handler()

	rec := do(t, h, http.MethodPost, "/api/v1/signup", "", []byte(`{"email":"writer@example.com","password":"pass1234"}`))
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Contains(t, rec.Body.String(), "https://pay.example.com")

	rec = do(t, h, http.MethodPost, "/api/v1/signup", "", []byte(`{"email":"writer@example.com","password":"pass1234"}`))
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/login", "", []byte(`{"email":"writer@example.com","password":"nope"}`))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/login", "", []byte(`{"email":"writer@example.com","password":"pass1234"}`))
	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	require.Contains(t, rec.Body.String(), `"payment_link":"https://pay.example.com"`)

	rec = do(t, h, http.MethodGet, "/api/v1/summary", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/signup", "", []byte(`{"email":"admin@example.com","password":"adminpw"}`))
	require.Equal(t, http.StatusForbidden, rec.Code)
	_, err = g.Provision(context.Background(), "admin@example.com", "adminpw", false)
	require.NoError(t, err)
	rec = do(t, h, http.MethodPost, "/api/v1/login", "", []byte(`{"email":"admin@example.com","password":"adminpw"}`))
	require.Equal(t, http.StatusOK, rec.Code)

	var login struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &login))
	require.NotEmpty(t, login.Token)

	rec = do(t, h, http.MethodGet, "/api/v1/summary", login.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/admin/users", login.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "writer@example.com")
	require.NotContains(t, rec.Body.String(), "password_hash")

	rec = do(t, h, http.MethodDelete, "/api/v1/admin/users/writer@example.com", login.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, h, http.MethodDelete, "/api/v1/admin/users/writer@example.com", login.Token, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	_, err = g.Provision(context.Background(), "reader@example.com", "pass1234", true)
	require.NoError(t, err)
	reader, err := g.Authenticate(context.Background(), "reader@example.com", "pass1234")
	require.NoError(t, err)
	readerToken, err := tokens.Issue(reader)
	require.NoError(t, err)
	rec = do(t, h, http.MethodGet, "/api/v1/admin/users", readerToken, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDeletedAccountTokenRejected(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	g := gate.New(s, nil, gate.Options{})
	tokens, err := gate.NewTokens(testSecret, time.Hour)
	require.NoError(t, err)
	h := New(s, nil, g, tokens, Options{}).Handler()

	u, err := g.Signup(ctx, "writer@example.com", "pass1234")
	require.NoError(t, err)
	sess, err := g.Authenticate(ctx, "writer@example.com", "pass1234")
	require.NoError(t, err)
	token, err := tokens.Issue(sess)
	require.NoError(t, err)

	rec := do(t, h, http.MethodGet, "/api/v1/summary", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, s.DeleteOwner(ctx, u.OwnerID))

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("files", "stats.csv")
	require.NoError(t, err)
	fw.Write([]byte("タイトル,日付,ビュー数\n記事A,2024-03-01,12\n"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	n, err := s.CountObservations(ctx, u.OwnerID)
	require.NoError(t, err)
	require.Zero(t, n)

	// A token whose owner id does not match the stored account is refused too.
	_, err = g.Signup(ctx, "writer@example.com", "pass1234")
	require.NoError(t, err)
	forged, err := tokens.Issue(gate.Session{OwnerID: "someone-else", Email: "writer@example.com"})
	require.NoError(t, err)
	rec = do(t, h, http.MethodGet, "/api/v1/summary", forged, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
