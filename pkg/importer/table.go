package importer

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/japanese"
)

var (
	zipMagic = []byte("PK\x03\x04")
	utf8BOM  = []byte("\xef\xbb\xbf")
)

// table is a parsed file: a header row plus data rows.
type table struct {
	header      []string
	rows        [][]string
	spreadsheet bool
}

func readTable(name string, data []byte) (*table, error) {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == ".xlsx" || ext == ".xlsm" || bytes.HasPrefix(data, zipMagic) {
		return readSpreadsheet(data)
	}
	return readDelimited(data)
}

func readSpreadsheet(data []byte) (*table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open spreadsheet: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("spreadsheet has no sheets")
	}
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	return splitHeader(rows, true)
}

func readDelimited(data []byte) (*table, error) {
	text, err := decodeText(data)
	if err != nil {
		return nil, err
	}

	r := csv.NewReader(strings.NewReader(text))
	r.Comma = sniffDelimiter(text)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read delimited text: %w", err)
	}
	return splitHeader(rows, false)
}

// decodeText returns data as UTF-8. Anything that is not already valid UTF-8
// is taken to be Shift_JIS, the encoding Excel writes Japanese CSV in.
func decodeText(data []byte) (string, error) {
	if utf8.Valid(data) {
		return string(bytes.TrimPrefix(data, utf8BOM)), nil
	}
	out, err := japanese.ShiftJIS.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("decode shift_jis: %w", err)
	}
	return string(out), nil
}

// sniffDelimiter picks the most frequent of comma, tab and semicolon in the
// first line, defaulting to comma.
func sniffDelimiter(text string) rune {
	line, _, _ := strings.Cut(text, "\n")
	best, bestCount := ',', 0
	for _, d := range []rune{',', '\t', ';'} {
		if n := strings.Count(line, string(d)); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

func splitHeader(rows [][]string, spreadsheet bool) (*table, error) {
	var data [][]string
	var header []string
	for _, row := range rows {
		if isBlank(row) {
			continue
		}
		if header == nil {
			header = row
			continue
		}
		data = append(data, row)
	}
	if header == nil {
		return nil, errors.New("file is empty")
	}
	return &table{header: header, rows: data, spreadsheet: spreadsheet}, nil
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
