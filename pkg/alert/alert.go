package alert

import (
	"context"
	"errors"
	"fmt"

	"github.com/elonfeng/notepulse/pkg/source"
	"github.com/elonfeng/notepulse/pkg/trend"
)

// Digest is the daily report sent to alert destinations.
type Digest struct {
	Owner    string `json:"owner"`
	Date     string `json:"date"`
	Previous string `json:"previous,omitempty"`

	Articles      int   `json:"articles"`
	TotalViews    int64 `json:"total_views"`
	TotalLikes    int64 `json:"total_likes"`
	TotalComments int64 `json:"total_comments"`
	ViewsDelta    int64 `json:"views_delta"`
	LikesDelta    int64 `json:"likes_delta"`

	Top      []trend.ItemDelta `json:"top"`
	NewPosts []source.Post     `json:"new_posts"`

	// FetchError is set when the fetch stopped early.
	FetchError string `json:"fetch_error,omitempty"`
}

// NewDigest builds a digest from a summary, listing at most top growers.
func NewDigest(owner string, sum trend.Summary, posts []source.Post, top int) *Digest {
	return &Digest{
		Owner:         owner,
		Date:          sum.Latest,
		Previous:      sum.Previous,
		Articles:      sum.Articles,
		TotalViews:    sum.TotalViews,
		TotalLikes:    sum.TotalLikes,
		TotalComments: sum.TotalComments,
		ViewsDelta:    sum.ViewsDelta,
		LikesDelta:    sum.LikesDelta,
		Top:           trend.Top(sum.Deltas, top),
		NewPosts:      posts,
	}
}

// Headline is the one-line summary shown as a message title.
func (d *Digest) Headline() string {
	if d.Previous == "" {
		return fmt.Sprintf("note stats %s: %d views across %d articles", d.Date, d.TotalViews, d.Articles)
	}
	return fmt.Sprintf("note stats %s: %d views (%+d since %s)", d.Date, d.TotalViews, d.ViewsDelta, d.Previous)
}

// lines renders the growers and new posts, one per line, rendering post
// links with link.
func (d *Digest) lines(link func(title, url string) string) []string {
	var out []string
	for _, t := range d.Top {
		out = append(out, fmt.Sprintf("• %s  %+d views (%.1f%%)", t.Title, t.ViewsDelta, trend.GrowthRate(t)))
	}
	for _, p := range d.NewPosts {
		out = append(out, "• new: "+link(p.Title, p.Link))
	}
	if d.FetchError != "" {
		out = append(out, "⚠ fetch stopped early: "+d.FetchError)
	}
	return out
}

// Notifier delivers digests to a specific destination.
type Notifier interface {
	Name() string
	Send(ctx context.Context, d *Digest) error
}

// Manager broadcasts digests to all registered notifiers.
type Manager struct {
	notifiers []Notifier
}

// NewManager creates a new alert manager.
func NewManager(notifiers []Notifier) *Manager {
	return &Manager{notifiers: notifiers}
}

// HasNotifiers returns true if at least one notifier is configured.
func (m *Manager) HasNotifiers() bool {
	return len(m.notifiers) > 0
}

// Broadcast sends a digest to all registered notifiers. One failing
// destination does not stop the others.
func (m *Manager) Broadcast(ctx context.Context, d *Digest) error {
	var errs []error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(ctx, d); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", notifier.Name(), err))
		}
	}
	return errors.Join(errs...)
}
