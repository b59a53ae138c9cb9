package importer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/elonfeng/notepulse/pkg/source"
	"github.com/samber/lo"
)

// Store is the slice of the snapshot store the importer needs.
type Store interface {
	UpsertObservations(ctx context.Context, rows []source.Observation) error
	CountObservations(ctx context.Context, owner string) (int, error)
	TitleIndex(ctx context.Context, owner string) (map[string]int64, error)
}

// File is one uploaded tabular file.
type File struct {
	Name   string
	Reader io.Reader
}

// ParseError reports a file that could not be imported. Row is the 1-based
// data row (header excluded), zero for problems with the file as a whole.
type ParseError struct {
	File   string
	Row    int
	Column string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Row == 0 {
		return fmt.Sprintf("import %s: %v", e.File, e.Err)
	}
	return fmt.Sprintf("import %s: row %d: %s: %v", e.File, e.Row, e.Column, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// FileResult is the outcome for one file.
type FileResult struct {
	Name  string `json:"name"`
	Rows  int    `json:"rows"`
	Added int    `json:"added"`
	Error string `json:"error,omitempty"`
	Err   error  `json:"-"`
}

// Result summarizes an import call.
type Result struct {
	Added int          `json:"added"`
	Dates []string     `json:"dates"`
	Files []FileResult `json:"files"`
}

// Importer turns exported statistics files into observations.
type Importer struct {
	store Store
}

// New creates an importer backed by s.
func New(s Store) *Importer {
	return &Importer{store: s}
}

// Import parses and stores each file for owner. A file that fails to parse is
// reported in its FileResult and skipped; a storage failure aborts the call
// and is returned together with the results gathered so far.
func (im *Importer) Import(ctx context.Context, files []File, owner string) (Result, error) {
	var res Result

	index, err := im.store.TitleIndex(ctx, owner)
	if err != nil {
		return res, fmt.Errorf("load title index: %w", err)
	}

	dates := make(map[string]struct{})
	for _, f := range files {
		fr := FileResult{Name: f.Name}

		rows, err := parseFile(f, owner, index)
		if err != nil {
			fr.Err = err
			fr.Error = err.Error()
			res.Files = append(res.Files, fr)
			slog.Warn("import file rejected", "file", f.Name, "err", err)
			continue
		}
		fr.Rows = len(rows)

		before, err := im.store.CountObservations(ctx, owner)
		if err != nil {
			return res, err
		}
		if err := im.store.UpsertObservations(ctx, rows); err != nil {
			return res, err
		}
		after, err := im.store.CountObservations(ctx, owner)
		if err != nil {
			return res, err
		}

		fr.Added = after - before
		res.Added += fr.Added
		res.Files = append(res.Files, fr)
		for _, r := range rows {
			dates[r.ObservedOn] = struct{}{}
		}
	}

	res.Dates = lo.Keys(dates)
	slices.Sort(res.Dates)
	return res, nil
}

func parseFile(f File, owner string, index map[string]int64) ([]source.Observation, error) {
	data, err := io.ReadAll(f.Reader)
	if err != nil {
		return nil, &ParseError{File: f.Name, Err: err}
	}

	tbl, err := readTable(f.Name, data)
	if err != nil {
		return nil, &ParseError{File: f.Name, Err: err}
	}

	cols := mapHeader(tbl.header)
	if missing := cols.missing(); len(missing) > 0 {
		return nil, &ParseError{
			File: f.Name,
			Err:  fmt.Errorf("missing required columns: %s", strings.Join(missing, ", ")),
		}
	}

	rows := make([]source.Observation, 0, len(tbl.rows))
	for i, row := range tbl.rows {
		obs, skip, err := parseRow(row, cols, tbl.spreadsheet)
		if err != nil {
			err.File = f.Name
			err.Row = i + 1
			return nil, err
		}
		if skip {
			continue
		}
		obs.OwnerID = owner
		obs.ItemID = resolveID(index, obs.Title)
		rows = append(rows, obs)
	}
	return rows, nil
}

// parseRow reads one data row. Rows without a title are skipped since they
// cannot be attributed to an article.
func parseRow(row []string, cols columnMap, spreadsheet bool) (source.Observation, bool, *ParseError) {
	var obs source.Observation

	obs.Title = cols.cell(row, fieldTitle)
	if obs.Title == "" {
		return obs, true, nil
	}

	day, err := parseDate(cols.cell(row, fieldDate), spreadsheet)
	if err != nil {
		return obs, false, &ParseError{Column: fieldDate.String(), Err: err}
	}
	obs.ObservedOn = day

	counts := []struct {
		f   field
		dst *int64
	}{
		{fieldViews, &obs.Views},
		{fieldLikes, &obs.Likes},
		{fieldComments, &obs.Comments},
	}
	for _, c := range counts {
		n, err := parseCount(cols.cell(row, c.f))
		if err != nil {
			return obs, false, &ParseError{Column: c.f.String(), Err: err}
		}
		*c.dst = n
	}
	return obs, false, nil
}

// resolveID reuses the id a title is already stored under, falling back to
// the title hash.
func resolveID(index map[string]int64, title string) int64 {
	if id, ok := index[title]; ok {
		return id
	}
	return source.TitleID(title)
}
