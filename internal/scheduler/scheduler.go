package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/elonfeng/notepulse/internal/collect"
	"github.com/elonfeng/notepulse/pkg/alert"
	"github.com/elonfeng/notepulse/pkg/source"
	"github.com/elonfeng/notepulse/pkg/trend"
	"github.com/robfig/cron/v3"
)

// DefaultSpec fetches once a day in the early morning.
const DefaultSpec = "0 6 * * *"

// Store is what the daily job reads and writes.
type Store interface {
	collect.Store
	ListObservations(ctx context.Context, owner string) ([]source.Observation, error)
}

// Posts lists creator posts published since a time.
type Posts interface {
	Posts(ctx context.Context, since time.Time) ([]source.Post, error)
}

// Account is the note.com login the daily job fetches for.
type Account struct {
	Owner    string
	Email    string
	Password string
}

// Options configures a Scheduler.
type Options struct {
	Spec string
	// Top is how many growing articles the digest lists.
	Top int
	// RunOnStart triggers one fetch before the first scheduled tick.
	RunOnStart bool
}

// Scheduler runs the daily fetch and digest.
type Scheduler struct {
	store     Store
	collector *collect.Collector
	feed      Posts
	alertMgr  *alert.Manager
	account   Account
	opts      Options
}

// New creates a new scheduler. feed may be nil.
func New(s Store, c *collect.Collector, feed Posts, alertMgr *alert.Manager, account Account, opts Options) *Scheduler {
	if opts.Spec == "" {
		opts.Spec = DefaultSpec
	}
	if opts.Top <= 0 {
		opts.Top = 5
	}
	return &Scheduler{
		store:     s,
		collector: c,
		feed:      feed,
		alertMgr:  alertMgr,
		account:   account,
		opts:      opts,
	}
}

// Run starts the cron loop. Blocks until ctx is cancelled, then waits for a
// running job to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	c := cron.New(cron.WithChain(
		cron.Recover(cron.DefaultLogger),
		cron.SkipIfStillRunning(cron.DefaultLogger),
	))
	if _, err := c.AddFunc(s.opts.Spec, func() { s.tick(ctx) }); err != nil {
		return fmt.Errorf("parse schedule %q: %w", s.opts.Spec, err)
	}

	if s.opts.RunOnStart {
		slog.Info("scheduler: initial fetch")
		s.tick(ctx)
	}

	c.Start()
	slog.Info("scheduler: running", "spec", s.opts.Spec)

	<-ctx.Done()
	<-c.Stop().Done()
	slog.Info("scheduler: stopped")
	return ctx.Err()
}

func (s *Scheduler) tick(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil {
		slog.Error("scheduled fetch failed", "owner", s.account.Owner, "err", err)
	}
}

// RunOnce fetches, summarizes and broadcasts one digest. Alert failures are
// logged, never returned.
func (s *Scheduler) RunOnce(ctx context.Context) (*alert.Digest, error) {
	rep, err := s.collector.Run(ctx, s.account.Owner, s.account.Email, s.account.Password)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}

	history, err := s.store.ListObservations(ctx, s.account.Owner)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	sum := trend.Summarize(history)

	var posts []source.Post
	if s.feed != nil {
		since := time.Time{}
		if sum.HasPrevious() {
			since, _ = time.ParseInLocation(source.DateLayout, sum.Previous, time.Local)
		}
		posts, err = s.feed.Posts(ctx, since)
		if err != nil {
			slog.Warn("read creator feed", "err", err)
		}
	}

	digest := alert.NewDigest(s.account.Owner, sum, posts, s.opts.Top)
	digest.FetchError = rep.Stopped

	if s.alertMgr != nil && s.alertMgr.HasNotifiers() {
		if err := s.alertMgr.Broadcast(ctx, digest); err != nil {
			slog.Warn("digest delivery failed", "err", err)
		}
	}
	return digest, nil
}
