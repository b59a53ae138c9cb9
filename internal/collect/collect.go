// Package collect runs one note.com fetch and stores the result.
package collect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/elonfeng/notepulse/pkg/source"
)

// ErrNoCredentials is returned when no note.com login is available.
var ErrNoCredentials = errors.New("note.com email and password are required")

// Store is the slice of the snapshot store a fetch writes to.
type Store interface {
	UpsertObservations(ctx context.Context, rows []source.Observation) error
	CountObservations(ctx context.Context, owner string) (int, error)
}

// Report describes one fetch.
type Report struct {
	Date    string `json:"date"`
	Pages   int    `json:"pages"`
	Fetched int    `json:"fetched"`
	Added   int    `json:"added"`
	// Stopped is the transport failure that ended pagination early.
	Stopped string `json:"stopped,omitempty"`
}

// Collector signs in to note.com, fetches today's statistics and upserts
// them for an owner.
type Collector struct {
	store Store
	opts  source.NoteOptions
}

// New creates a collector. Every Run uses a fresh client so sessions of
// different accounts never share cookies.
func New(s Store, opts source.NoteOptions) *Collector {
	return &Collector{store: s, opts: opts}
}

// Run fetches and stores today's statistics for owner. A page failure ends
// the fetch early but is not an error; login and storage failures are.
func (c *Collector) Run(ctx context.Context, owner, email, password string) (Report, error) {
	if email == "" || password == "" {
		return Report{}, ErrNoCredentials
	}

	note, err := source.NewNote(c.opts)
	if err != nil {
		return Report{}, err
	}
	if err := note.Login(ctx, email, password); err != nil {
		return Report{}, fmt.Errorf("login: %w", err)
	}

	res := note.FetchAll(ctx, owner)
	rep := Report{
		Date:    source.Today(),
		Pages:   res.Pages,
		Fetched: len(res.Observations),
	}
	if res.Err != nil {
		rep.Stopped = res.Err.Error()
	}

	before, err := c.store.CountObservations(ctx, owner)
	if err != nil {
		return rep, err
	}
	if err := c.store.UpsertObservations(ctx, res.Observations); err != nil {
		return rep, err
	}
	after, err := c.store.CountObservations(ctx, owner)
	if err != nil {
		return rep, err
	}
	rep.Added = after - before

	slog.Info("fetch complete", "owner", owner, "pages", rep.Pages, "fetched", rep.Fetched, "added", rep.Added)
	return rep, nil
}
