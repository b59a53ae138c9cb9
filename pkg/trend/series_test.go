package trend

import (
	"testing"
	"time"

	"github.com/elonfeng/notepulse/pkg/source"
	"github.com/stretchr/testify/require"
)

func TestBuildSeriesIsSparse(t *testing.T) {
	pivot := BuildSeries([]source.Observation{
		row("2024-01-03", 1, "A (renamed)", 30, 0, 0),
		row("2024-01-01", 1, "A", 10, 0, 0),
		row("2024-01-02", 2, "B", 5, 0, 0),
	})

	require.Equal(t, []string{"2024-01-01", "2024-01-02", "2024-01-03"}, pivot.Dates)
	require.Len(t, pivot.Series, 2)

	a := pivot.Series[0]
	require.Equal(t, int64(1), a.ItemID)
	require.Equal(t, "A (renamed)", a.Title)
	require.Equal(t, []Point{{Date: "2024-01-01", Views: 10}, {Date: "2024-01-03", Views: 30}}, a.Points)

	b := pivot.Series[1]
	require.Equal(t, []Point{{Date: "2024-01-02", Views: 5}}, b.Points)
}

func TestDailyTotals(t *testing.T) {
	totals := DailyTotals([]source.Observation{
		row("2024-01-02", 1, "A", 15, 2, 0),
		row("2024-01-01", 1, "A", 10, 1, 0),
		row("2024-01-02", 2, "B", 5, 0, 1),
	})

	require.Equal(t, []DailyTotal{
		{Date: "2024-01-01", Articles: 1, Views: 10, Likes: 1},
		{Date: "2024-01-02", Articles: 2, Views: 20, Likes: 2, Comments: 1},
	}, totals)
}

func TestCalendar(t *testing.T) {
	end := time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)
	months := Calendar([]string{"2024-02-29", "2024-03-01", "2024-03-10", "2023-12-31"}, end, 2)

	require.Len(t, months, 2)
	require.Equal(t, "2024-02", months[0].Month)
	require.Equal(t, "2024-03", months[1].Month)

	feb := months[0].Days
	require.Equal(t, Observed, feb[28])
	require.Equal(t, Missing, feb[0])
	require.Equal(t, NoDay, feb[29])
	require.Equal(t, NoDay, feb[30])

	mar := months[1].Days
	require.Equal(t, Observed, mar[0])
	require.Equal(t, Observed, mar[9])
	require.Equal(t, NoDay, mar[10])
}

func TestCalendarCrossesYear(t *testing.T) {
	end := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	months := Calendar(nil, end, 3)
	require.Len(t, months, 3)
	require.Equal(t, "2023-12", months[0].Month)
	require.Equal(t, "2024-02", months[2].Month)
}
