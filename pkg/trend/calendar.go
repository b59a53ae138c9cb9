package trend

import (
	"time"

	"github.com/elonfeng/notepulse/pkg/source"
)

// DayStatus marks a calendar cell.
type DayStatus int

const (
	// NoDay pads months shorter than 31 days.
	NoDay DayStatus = -1
	// Missing is a day with no observation.
	Missing DayStatus = 0
	// Observed is a day with at least one observation.
	Observed DayStatus = 1
)

// Month is one row of the acquisition calendar. Days[i] is day i+1.
type Month struct {
	Month string        `json:"month"`
	Days  [31]DayStatus `json:"days"`
}

// Calendar lays out which days have observations, one row per month, from
// the first day of the month months-1 before end through end. Days after end
// count as NoDay.
func Calendar(dates []string, end time.Time, months int) []Month {
	if months < 1 {
		months = 1
	}
	have := make(map[string]bool, len(dates))
	for _, d := range dates {
		have[d] = true
	}

	end = time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	start := time.Date(end.Year(), end.Month()-time.Month(months-1), 1, 0, 0, 0, 0, time.UTC)

	var out []Month
	for m := start; !m.After(end); m = m.AddDate(0, 1, 0) {
		row := Month{Month: m.Format("2006-01")}
		for i := range row.Days {
			day := m.AddDate(0, 0, i)
			switch {
			case day.Month() != m.Month() || day.After(end):
				row.Days[i] = NoDay
			case have[source.DateOf(day)]:
				row.Days[i] = Observed
			default:
				row.Days[i] = Missing
			}
		}
		out = append(out, row)
	}
	return out
}
