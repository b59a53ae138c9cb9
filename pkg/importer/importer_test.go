package importer

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/elonfeng/notepulse/internal/store"
	"github.com/elonfeng/notepulse/pkg/source"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func newTestImporter(t *testing.T) (*Importer, *store.SQLStore) {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "import.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return New(s), s
}

func csvFile(name, body string) File {
	return File{Name: name, Reader: strings.NewReader(body)}
}

func TestImportJapaneseHeadersAnyOrder(t *testing.T) {
	im, s := newTestImporter(t)
	ctx := context.Background()

	res, err := im.Import(ctx, []File{
		csvFile("stats.csv", "ビュー数,タイトル,日付\n150,記事A,2024-01-01\n"),
	}, "o1")
	require.NoError(t, err)
	require.Equal(t, 1, res.Added)
	require.Equal(t, []string{"2024-01-01"}, res.Dates)

	rows, err := s.ListObservations(ctx, "o1")
	require.NoError(t, err)
	require.Equal(t, []source.Observation{{
		OwnerID:    "o1",
		ObservedOn: "2024-01-01",
		ItemID:     source.TitleID("記事A"),
		Title:      "記事A",
		Views:      150,
	}}, rows)
}

func TestImportEnglishHeadersWithOptionalColumns(t *testing.T) {
	im, s := newTestImporter(t)
	ctx := context.Background()

	res, err := im.Import(ctx, []File{
		csvFile("en.csv", "date,title,views,likes,comments\n2024/1/2,Post,12,3,1\n"),
	}, "o1")
	require.NoError(t, err)
	require.Equal(t, 1, res.Added)

	rows, err := s.ListObservations(ctx, "o1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "2024-01-02", rows[0].ObservedOn)
	require.Equal(t, int64(3), rows[0].Likes)
	require.Equal(t, int64(1), rows[0].Comments)
}

func TestImportHeaderMatchIsCaseSensitive(t *testing.T) {
	im, _ := newTestImporter(t)

	res, err := im.Import(context.Background(), []File{
		csvFile("upper.csv", "Date,Title,Views\n2024-01-01,A,1\n"),
	}, "o1")
	require.NoError(t, err)
	require.Zero(t, res.Added)
	require.Len(t, res.Files, 1)

	var perr *ParseError
	require.ErrorAs(t, res.Files[0].Err, &perr)
	require.Equal(t, "upper.csv", perr.File)
	require.Contains(t, perr.Error(), "date, title, views")
}

func TestImportPartialSuccessAcrossFiles(t *testing.T) {
	im, s := newTestImporter(t)
	ctx := context.Background()

	res, err := im.Import(ctx, []File{
		csvFile("good.csv", "日付,タイトル,ビュー数\n2024-01-01,A,10\n2024-01-01,B,5\n"),
		csvFile("bad-date.csv", "日付,タイトル,ビュー数\nyesterday,C,10\n"),
		csvFile("bad-views.csv", "日付,タイトル,ビュー数\n2024-01-02,D,many\n"),
		csvFile("missing.csv", "タイトル,ビュー数\nE,1\n"),
	}, "o1")
	require.NoError(t, err)
	require.Equal(t, 2, res.Added)
	require.Equal(t, []string{"2024-01-01"}, res.Dates)
	require.Len(t, res.Files, 4)

	require.NoError(t, res.Files[0].Err)
	for _, fr := range res.Files[1:] {
		var perr *ParseError
		require.ErrorAs(t, fr.Err, &perr)
		require.Equal(t, fr.Name, perr.File)
		require.NotEmpty(t, fr.Error)
	}

	var perr *ParseError
	require.ErrorAs(t, res.Files[2].Err, &perr)
	require.Equal(t, 1, perr.Row)
	require.Equal(t, "views", perr.Column)

	n, err := s.CountObservations(ctx, "o1")
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestImportTitleHashIsStable(t *testing.T) {
	im, s := newTestImporter(t)
	ctx := context.Background()

	_, err := im.Import(ctx, []File{csvFile("a.csv", "日付,タイトル,ビュー数\n2024-01-01,同じ記事,10\n")}, "o1")
	require.NoError(t, err)
	_, err = im.Import(ctx, []File{csvFile("b.csv", "日付,タイトル,ビュー数\n2024-01-02,同じ記事,20\n")}, "o1")
	require.NoError(t, err)

	rows, err := s.ListObservations(ctx, "o1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, rows[0].ItemID, rows[1].ItemID)
	require.Less(t, rows[0].ItemID, int64(0))
}

func TestImportReusesStoredID(t *testing.T) {
	im, s := newTestImporter(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertObservations(ctx, []source.Observation{
		{OwnerID: "o1", ObservedOn: "2024-01-05", ItemID: 4242, Title: "Fetched", Views: 100},
	}))

	_, err := im.Import(ctx, []File{csvFile("old.csv", "日付,タイトル,ビュー数\n2024-01-01,Fetched,40\n")}, "o1")
	require.NoError(t, err)

	rows, err := s.ListObservations(ctx, "o1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, r := range rows {
		require.Equal(t, int64(4242), r.ItemID)
	}
}

func TestImportCountsOnlyNewRows(t *testing.T) {
	im, _ := newTestImporter(t)
	ctx := context.Background()
	body := "日付,タイトル,ビュー数\n2024-01-01,A,10\n2024-01-01,B,5\n"

	first, err := im.Import(ctx, []File{csvFile("a.csv", body)}, "o1")
	require.NoError(t, err)
	second, err := im.Import(ctx, []File{csvFile("a.csv", body)}, "o1")
	require.NoError(t, err)

	require.Equal(t, 2, first.Added)
	require.Zero(t, second.Added)
	require.Equal(t, 2, second.Files[0].Rows)
}

func TestImportShiftJISSample(t *testing.T) {
	im, _ := newTestImporter(t)

	sample, err := SampleCSV()
	require.NoError(t, err)
	require.False(t, bytes.Contains(sample, []byte("タイトル")), "sample should not be UTF-8")

	res, err := im.Import(context.Background(), []File{{Name: "sample.csv", Reader: bytes.NewReader(sample)}}, "o1")
	require.NoError(t, err)
	require.Equal(t, 2, res.Added)
	require.Equal(t, []string{"2023-12-01"}, res.Dates)
}

func TestImportTabSeparatedWithBOM(t *testing.T) {
	im, _ := newTestImporter(t)

	body := "\xef\xbb\xbf日付\tタイトル\tビュー数\tスキ\n2024-02-01\tA\t7\t\n"
	res, err := im.Import(context.Background(), []File{csvFile("stats.tsv", body)}, "o1")
	require.NoError(t, err)
	require.Equal(t, 1, res.Added)
}

func TestImportSpreadsheet(t *testing.T) {
	im, s := newTestImporter(t)
	ctx := context.Background()

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"タイトル", "日付", "ビュー数", "スキ数"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"A", "2024-03-01", 30, 2}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]any{"B", time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), 12, 0}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	res, err := im.Import(ctx, []File{{Name: "stats.xlsx", Reader: buf}}, "o1")
	require.NoError(t, err)
	require.Equal(t, 2, res.Added)
	require.Equal(t, []string{"2024-03-01", "2024-03-02"}, res.Dates)

	rows, err := s.ListObservations(ctx, "o1")
	require.NoError(t, err)
	require.Equal(t, int64(30), rows[0].Views)
	require.Equal(t, int64(2), rows[0].Likes)
}

type failingStore struct{ countErr error }

func (f failingStore) UpsertObservations(context.Context, []source.Observation) error { return nil }
func (f failingStore) CountObservations(context.Context, string) (int, error)       { return 0, f.countErr }
func (f failingStore) TitleIndex(context.Context, string) (map[string]int64, error) {
	return map[string]int64{}, nil
}

func TestImportStorageFailureAborts(t *testing.T) {
	boom := &store.StorageError{Op: "count observations", Err: errors.New("disk full")}
	im := New(failingStore{countErr: boom})

	_, err := im.Import(context.Background(), []File{
		csvFile("a.csv", "日付,タイトル,ビュー数\n2024-01-01,A,1\n"),
		csvFile("b.csv", "日付,タイトル,ビュー数\n2024-01-01,B,1\n"),
	}, "o1")

	var serr *store.StorageError
	require.ErrorAs(t, err, &serr)
}

func TestParseCount(t *testing.T) {
	for in, want := range map[string]int64{"": 0, "0": 0, "42": 42, "150.0": 150} {
		got, err := parseCount(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
	for _, in := range []string{"abc", "1.5", "-3", "NaN"} {
		_, err := parseCount(in)
		require.Error(t, err, in)
	}
	for _, in := range []string{"1e30", "9.3e18", "99999999999999999999", "-1e30"} {
		_, err := parseCount(in)
		require.ErrorContains(t, err, "out of range", in)
	}
}

func TestParseDate(t *testing.T) {
	for _, in := range []string{"2024-01-02", "2024/01/02", "2024/1/2", "2024-01-02 10:30:00", "2024年1月2日", "20240102", "2024-01-02T09:00:00+09:00"} {
		got, err := parseDate(in, false)
		require.NoError(t, err, in)
		require.Equal(t, "2024-01-02", got, in)
	}

	got, err := parseDate("45293", true)
	require.NoError(t, err)
	require.Equal(t, "2024-01-02", got)

	_, err = parseDate("45293", false)
	require.Error(t, err)
}
