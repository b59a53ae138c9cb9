package importer

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/elonfeng/notepulse/pkg/source"
	"github.com/xuri/excelize/v2"
)

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2006-1-2",
	"2006/1/2",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
	"2006/1/2 15:04:05",
	"2006/1/2 15:04",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006年1月2日",
	"20060102",
}

// parseDate reads a calendar date. Spreadsheets may also hold Excel serial
// day numbers.
func parseDate(s string, spreadsheet bool) (string, error) {
	if s == "" {
		return "", errors.New("empty date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return source.DateOf(t), nil
		}
	}
	if spreadsheet {
		if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 0 {
			t, err := excelize.ExcelDateToTime(serial, false)
			if err == nil {
				return source.DateOf(t), nil
			}
		}
	}
	return "", fmt.Errorf("unrecognized date %q", s)
}

// parseCount reads a non-negative metric. An empty cell counts as zero;
// anything else must be an integer, possibly written as 150.0.
func parseCount(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if ferr != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
			return 0, fmt.Errorf("not an integer: %q", s)
		}
		if f > math.MaxInt64 || f < math.MinInt64 {
			return 0, fmt.Errorf("count out of range: %q", s)
		}
		n = int64(f)
	}
	if n < 0 {
		return 0, fmt.Errorf("negative count %d", n)
	}
	return n, nil
}
