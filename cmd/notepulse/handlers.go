package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/elonfeng/notepulse/internal/collect"
	"github.com/elonfeng/notepulse/internal/config"
	"github.com/elonfeng/notepulse/internal/scheduler"
	"github.com/elonfeng/notepulse/internal/store"
	"github.com/elonfeng/notepulse/pkg/alert"
	"github.com/elonfeng/notepulse/pkg/gate"
	"github.com/elonfeng/notepulse/pkg/importer"
	"github.com/elonfeng/notepulse/pkg/server"
	"github.com/elonfeng/notepulse/pkg/source"
	"github.com/elonfeng/notepulse/pkg/trend"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"
)

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	setupLogging(cfg.Log.Level)
	return cfg, nil
}

func setupLogging(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	if verbose {
		lvl = slog.LevelDebug
	}
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      lvl,
		TimeFormat: time.TimeOnly,
	})))
}

// open loads the config and the store in one step for commands that need
// both.
func open() (*config.Config, *store.SQLStore, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	db, err := store.Open(cfg.Database.DSN())
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	return cfg, db, nil
}

// localOwner is the owner id CLI commands act on.
func localOwner(cfg *config.Config) string {
	email := ownerEmail
	if email == "" {
		email = cfg.Note.Email
	}
	return gate.LocalSession(email).OwnerID
}

func noteOptions(cfg *config.Config) source.NoteOptions {
	return source.NoteOptions{
		BaseURL:        cfg.Note.BaseURL,
		Timeout:        cfg.Note.ParseTimeout(),
		PagesPerSecond: cfg.Note.PagesPerSecond,
	}
}

func buildGate(cfg *config.Config, db *store.SQLStore) *gate.Gate {
	var billing gate.Billing
	if cfg.Billing.SecretKey != "" {
		billing = gate.NewStripe(cfg.Billing.SecretKey, cfg.Billing.BaseURL)
	}
	return gate.New(db, billing, gate.Options{
		AdminEmail:  cfg.Auth.AdminEmail,
		PaymentLink: cfg.Billing.PaymentLink,
		CacheTTL:    cfg.Billing.ParseCacheTTL(),
	})
}

func buildServer(cfg *config.Config, db *store.SQLStore, port int) (*server.Server, error) {
	if port == 0 {
		port = cfg.Server.Port
	}

	var (
		g      *gate.Gate
		tokens *gate.Tokens
	)
	if cfg.Auth.Enabled {
		var err error
		tokens, err = gate.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.ParseTokenTTL())
		if err != nil {
			return nil, fmt.Errorf("auth: %w", err)
		}
		g = buildGate(cfg, db)
	}

	return server.New(db, collect.New(db, noteOptions(cfg)), g, tokens, server.Options{
		Port:           port,
		NoteEmail:      cfg.Note.Email,
		NotePassword:   cfg.Note.Password,
		MaxUploadBytes: cfg.Server.MaxUploadMB << 20,
	}), nil
}

func buildAlertManager(cfg *config.Config) *alert.Manager {
	var notifiers []alert.Notifier

	if cfg.Alerts.Slack.Enabled && cfg.Alerts.Slack.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewSlack(cfg.Alerts.Slack.WebhookURL))
	}
	if cfg.Alerts.Discord.Enabled && cfg.Alerts.Discord.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewDiscord(cfg.Alerts.Discord.WebhookURL))
	}
	if cfg.Alerts.Webhook.Enabled && cfg.Alerts.Webhook.URL != "" {
		notifiers = append(notifiers, alert.NewWebhook(cfg.Alerts.Webhook.URL, cfg.Alerts.Webhook.Secret))
	}

	return alert.NewManager(notifiers)
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	return t
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runFetch(ctx context.Context) error {
	cfg, db, err := open()
	if err != nil {
		return err
	}
	defer db.Close()

	owner := localOwner(cfg)
	fmt.Fprintf(os.Stderr, "fetching note.com statistics for %s...\n", cfg.Note.Email)

	rep, err := collect.New(db, noteOptions(cfg)).Run(ctx, owner, cfg.Note.Email, cfg.Note.Password)
	if err != nil {
		return err
	}
	if rep.Stopped != "" {
		fmt.Fprintf(os.Stderr, "  stopped early: %s\n", rep.Stopped)
	}
	fmt.Fprintf(os.Stderr, "  %d pages, %d articles, %d new rows for %s\n", rep.Pages, rep.Fetched, rep.Added, rep.Date)
	return nil
}

func runImport(ctx context.Context, paths []string) error {
	cfg, db, err := open()
	if err != nil {
		return err
	}
	defer db.Close()

	var files []importer.File
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return fmt.Errorf("open %s: %w", p, err)
		}
		defer f.Close()
		files = append(files, importer.File{Name: p, Reader: f})
	}

	res, err := importer.New(db).Import(ctx, files, localOwner(cfg))

	t := newTable()
	t.AppendHeader(table.Row{"FILE", "ROWS", "ADDED", "ERROR"})
	for _, f := range res.Files {
		t.AppendRow(table.Row{f.Name, f.Rows, f.Added, f.Error})
	}
	t.AppendFooter(table.Row{"TOTAL", "", res.Added, ""})
	t.Render()

	if err != nil {
		return fmt.Errorf("import aborted: %w", err)
	}
	if len(res.Dates) > 0 {
		fmt.Fprintf(os.Stderr, "dates: %s\n", strings.Join(res.Dates, ", "))
	}
	return nil
}

func runSummary(ctx context.Context, jsonOutput bool, limit int) error {
	cfg, db, err := open()
	if err != nil {
		return err
	}
	defer db.Close()

	obs, err := db.ListObservations(ctx, localOwner(cfg))
	if err != nil {
		return fmt.Errorf("list observations: %w", err)
	}
	sum := trend.Summarize(obs)

	if jsonOutput {
		return printJSON(sum)
	}

	if sum.Latest == "" {
		fmt.Println("no observations yet (try: notepulse fetch, or notepulse import <file>)")
		return nil
	}

	fmt.Printf("latest %s: %d articles, %d views, %d likes, %d comments\n",
		sum.Latest, sum.Articles, sum.TotalViews, sum.TotalLikes, sum.TotalComments)
	if !sum.HasPrevious() {
		fmt.Println("no previous snapshot to compare with")
		return nil
	}
	fmt.Printf("since %s: %+d views, %+d likes, %+d comments\n",
		sum.Previous, sum.ViewsDelta, sum.LikesDelta, sum.CommentsDelta)

	t := newTable()
	t.AppendHeader(table.Row{"TITLE", "VIEWS", "Δ VIEWS", "Δ LIKES", "GROWTH"})
	for i, d := range sum.Deltas {
		if i == limit {
			break
		}
		growth := fmt.Sprintf("%.1f%%", trend.GrowthRate(d))
		if d.New {
			growth = "new"
		}
		t.AppendRow(table.Row{d.Title, d.Views, fmt.Sprintf("%+d", d.ViewsDelta), fmt.Sprintf("%+d", d.LikesDelta), growth})
	}
	t.Render()
	return nil
}

func runSeries(ctx context.Context, jsonOutput, totals bool) error {
	cfg, db, err := open()
	if err != nil {
		return err
	}
	defer db.Close()

	obs, err := db.ListObservations(ctx, localOwner(cfg))
	if err != nil {
		return fmt.Errorf("list observations: %w", err)
	}

	if totals {
		daily := trend.DailyTotals(obs)
		if jsonOutput {
			return printJSON(daily)
		}
		t := newTable()
		t.AppendHeader(table.Row{"DATE", "ARTICLES", "VIEWS", "LIKES", "COMMENTS"})
		for _, d := range daily {
			t.AppendRow(table.Row{d.Date, d.Articles, d.Views, d.Likes, d.Comments})
		}
		t.Render()
		return nil
	}

	pivot := trend.BuildSeries(obs)
	if jsonOutput {
		return printJSON(pivot)
	}
	t := newTable()
	t.AppendHeader(table.Row{"ID", "TITLE", "POINTS", "FIRST", "LAST", "VIEWS"})
	for _, s := range pivot.Series {
		first, last := s.Points[0], s.Points[len(s.Points)-1]
		t.AppendRow(table.Row{s.ItemID, s.Title, len(s.Points), first.Date, last.Date, last.Views})
	}
	t.Render()
	return nil
}

func runCalendar(ctx context.Context, months int) error {
	cfg, db, err := open()
	if err != nil {
		return err
	}
	defer db.Close()

	dates, err := db.ObservedDates(ctx, localOwner(cfg))
	if err != nil {
		return fmt.Errorf("observed dates: %w", err)
	}

	for _, m := range trend.Calendar(dates, time.Now(), months) {
		var b strings.Builder
		for _, d := range m.Days {
			switch d {
			case trend.Observed:
				b.WriteString("■")
			case trend.Missing:
				b.WriteString("□")
			default:
				b.WriteString(" ")
			}
		}
		fmt.Printf("%s %s\n", m.Month, b.String())
	}
	fmt.Printf("%d days observed\n", len(dates))
	return nil
}

func runExport(ctx context.Context, out string) error {
	cfg, db, err := open()
	if err != nil {
		return err
	}
	defer db.Close()

	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("create %s: %w", out, err)
	}
	if err := db.ExportOwner(ctx, localOwner(cfg), f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", out, err)
	}
	fmt.Fprintf(os.Stderr, "exported to %s\n", out)
	return nil
}

func runSample(out string) error {
	data, err := importer.SampleCSV()
	if err != nil {
		return err
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	fmt.Fprintf(os.Stderr, "sample written to %s\n", out)
	return nil
}

func runServe(ctx context.Context, port int) error {
	cfg, db, err := open()
	if err != nil {
		return err
	}
	defer db.Close()

	srv, err := buildServer(cfg, db, port)
	if err != nil {
		return err
	}
	return srv.ListenAndServe(ctx)
}

func runDaemon(ctx context.Context, port int) error {
	cfg, db, err := open()
	if err != nil {
		return err
	}
	defer db.Close()

	srv, err := buildServer(cfg, db, port)
	if err != nil {
		return err
	}

	var feed scheduler.Posts
	if cfg.Note.URLName != "" {
		feed = source.NewFeed(cfg.Note.BaseURL, cfg.Note.URLName)
	}
	sched := scheduler.New(db,
		collect.New(db, noteOptions(cfg)),
		feed,
		buildAlertManager(cfg),
		scheduler.Account{Owner: localOwner(cfg), Email: cfg.Note.Email, Password: cfg.Note.Password},
		scheduler.Options{Spec: cfg.Schedule.Cron, Top: cfg.Alerts.Top, RunOnStart: cfg.Schedule.FetchOnStart},
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Run(ctx) })
	g.Go(func() error { return srv.ListenAndServe(ctx) })

	err = g.Wait()
	fmt.Fprintln(os.Stderr, "shut down")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func runUserAdd(ctx context.Context, email, password string, skipBilling bool) error {
	cfg, db, err := open()
	if err != nil {
		return err
	}
	defer db.Close()

	u, err := buildGate(cfg, db).Provision(ctx, email, password, skipBilling)
	if err != nil {
		return fmt.Errorf("add user: %w", err)
	}
	fmt.Printf("created %s (owner %s)\n", u.Email, u.OwnerID)
	return nil
}

func runUserList(ctx context.Context) error {
	_, db, err := open()
	if err != nil {
		return err
	}
	defer db.Close()

	users, err := db.ListUsers(ctx)
	if err != nil {
		return err
	}

	t := newTable()
	t.AppendHeader(table.Row{"EMAIL", "OWNER", "APPROVED", "SKIP BILLING", "CREATED"})
	for _, u := range users {
		t.AppendRow(table.Row{u.Email, u.OwnerID, u.IsApproved, u.SkipBilling, u.CreatedAt.Format(time.DateOnly)})
	}
	t.Render()
	return nil
}

func runUserDelete(ctx context.Context, email string) error {
	_, db, err := open()
	if err != nil {
		return err
	}
	defer db.Close()

	u, err := db.GetUserByEmail(ctx, gate.NormalizeEmail(email))
	if err != nil {
		return fmt.Errorf("find user %s: %w", email, err)
	}
	if err := db.DeleteOwner(ctx, u.OwnerID); err != nil {
		return err
	}
	fmt.Printf("deleted %s and all observations\n", u.Email)
	return nil
}
