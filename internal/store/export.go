package store

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
)

// ExportOwner writes the owner's observations to w as a standalone SQLite
// database file, whatever backend the store itself runs on.
func (s *SQLStore) ExportOwner(ctx context.Context, owner string, w io.Writer) error {
	rows, err := s.ListObservations(ctx, owner)
	if err != nil {
		return err
	}

	dir, err := os.MkdirTemp("", "notepulse-export-*")
	if err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "export.db")
	out, err := sqlx.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open export db: %w", err)
	}
	defer out.Close()

	if _, err := out.ExecContext(ctx, exportSchema); err != nil {
		return fmt.Errorf("create export schema: %w", err)
	}

	tx, err := out.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin export: %w", err)
	}
	defer tx.Rollback()

	for _, r := range rows {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO article_stats (owner_id, observed_on, item_id, title, views, likes, comments)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.OwnerID, r.ObservedOn, r.ItemID, r.Title, r.Views, r.Likes, r.Comments)
		if err != nil {
			return fmt.Errorf("insert export row: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit export: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close export db: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("read export db: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	return nil
}
