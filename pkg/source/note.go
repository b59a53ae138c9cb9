package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http/cookiejar"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const noteBaseURL = "https://note.com"

// ErrLoginFailed is returned when note.com rejects the sign-in.
var ErrLoginFailed = errors.New("note.com sign-in rejected")

// NoteOptions configures a note.com client.
type NoteOptions struct {
	BaseURL string
	Timeout time.Duration
	// PagesPerSecond caps the listing request rate. Zero means unlimited.
	PagesPerSecond float64
}

// Note reads article statistics from a note.com creator account. The
// session lives in the client's cookie jar, so Login must succeed first.
type Note struct {
	http    *resty.Client
	limiter *rate.Limiter
}

// NewNote creates a note.com client with its own cookie jar.
func NewNote(opts NoteOptions) (*Note, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = noteBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	client := resty.New()
	client.SetBaseURL(opts.BaseURL)
	client.SetCookieJar(jar)
	client.SetTimeout(opts.Timeout)
	client.SetHeader("User-Agent", "notepulse/1.0")
	client.SetHeader("Accept", "application/json")

	limit := rate.Inf
	if opts.PagesPerSecond > 0 {
		limit = rate.Limit(opts.PagesPerSecond)
	}

	return &Note{
		http:    client,
		limiter: rate.NewLimiter(limit, 1),
	}, nil
}

// Login signs in and keeps the session cookies for later page requests.
func (n *Note) Login(ctx context.Context, email, password string) error {
	var body map[string]json.RawMessage
	resp, err := n.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"login": email, "password": password}).
		Post("/api/v1/sessions/sign_in")
	if err != nil {
		return fmt.Errorf("note sign in: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: status %d", ErrLoginFailed, resp.StatusCode())
	}
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return fmt.Errorf("decode note sign in: %w", err)
	}
	if _, ok := body["error"]; ok {
		return ErrLoginFailed
	}
	return nil
}

// FetchAll collects today's statistics for every article of the signed-in
// account. It never fails outright: see Result.Err.
func (n *Note) FetchAll(ctx context.Context, owner string) Result {
	return Paginate(ctx, n, owner, Today())
}

// Page requests one page of the statistics listing.
func (n *Note) Page(ctx context.Context, page int) ([]Entry, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := n.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"filter": "all",
			"page":   strconv.Itoa(page),
			"sort":   "pv",
		}).
		Get("/api/v1/stats/pv")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("note stats status %d", resp.StatusCode())
	}

	var payload notePage
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return nil, fmt.Errorf("decode note stats: %w", err)
	}
	return payload.entries(), nil
}

type notePage struct {
	Data *struct {
		NoteStats []noteStat `json:"note_stats"`
	} `json:"data"`
}

// noteStat mirrors one listing row; every field is optional upstream.
type noteStat struct {
	ID           *int64  `json:"id"`
	Name         *string `json:"name"`
	ReadCount    *int64  `json:"read_count"`
	LikeCount    *int64  `json:"like_count"`
	CommentCount *int64  `json:"comment_count"`
}

func (p notePage) entries() []Entry {
	if p.Data == nil {
		return nil
	}
	entries := make([]Entry, 0, len(p.Data.NoteStats))
	for _, s := range p.Data.NoteStats {
		title := deref(s.Name)
		// Rows without a name are kept here so that a page of nameless rows
		// still counts as non-empty; Paginate drops them.
		id := deref(s.ID)
		if s.ID == nil && title != "" {
			id = TitleID(title)
		}
		entries = append(entries, Entry{
			ID:       id,
			Title:    title,
			Views:    deref(s.ReadCount),
			Likes:    deref(s.LikeCount),
			Comments: deref(s.CommentCount),
		})
	}
	return entries
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
