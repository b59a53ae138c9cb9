package source

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

// Post is one published article from a creator's feed.
type Post struct {
	Title     string    `json:"title"`
	Link      string    `json:"link"`
	Published time.Time `json:"published"`
}

// Feed reads a note.com creator's RSS feed.
type Feed struct {
	client *http.Client
	parser *gofeed.Parser
	url    string
}

// NewFeed creates a feed reader for the creator urlname (the part after
// note.com/). baseURL may be empty for the public site.
func NewFeed(baseURL, urlname string) *Feed {
	if baseURL == "" {
		baseURL = noteBaseURL
	}
	return &Feed{
		client: &http.Client{Timeout: 30 * time.Second},
		parser: gofeed.NewParser(),
		url:    strings.TrimSuffix(baseURL, "/") + "/" + urlname + "/rss",
	}
}

// Posts returns the feed's posts published at or after since, newest first as
// the feed orders them. A zero since returns everything.
func (f *Feed) Posts(ctx context.Context, since time.Time) ([]Post, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create feed request: %w", err)
	}
	req.Header.Set("User-Agent", "notepulse/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed status %d", resp.StatusCode)
	}

	parsed, err := f.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	var posts []Post
	for _, entry := range parsed.Items {
		var published time.Time
		if entry.PublishedParsed != nil {
			published = *entry.PublishedParsed
		} else if entry.UpdatedParsed != nil {
			published = *entry.UpdatedParsed
		}
		if !since.IsZero() && published.Before(since) {
			continue
		}

		link := entry.Link
		if link == "" && len(entry.Links) > 0 {
			link = entry.Links[0]
		}

		posts = append(posts, Post{
			Title:     strings.TrimSpace(entry.Title),
			Link:      link,
			Published: published,
		})
	}
	return posts, nil
}
