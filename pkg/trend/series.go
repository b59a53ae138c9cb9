package trend

import (
	"slices"

	"github.com/elonfeng/notepulse/pkg/source"
	"github.com/samber/lo"
)

// Point is one observed value in a series.
type Point struct {
	Date     string `json:"date"`
	Views    int64  `json:"views"`
	Likes    int64  `json:"likes"`
	Comments int64  `json:"comments"`
}

// Series is the history of one article. Points exist only for the dates the
// article was observed; gaps are left for the consumer to bridge.
type Series struct {
	ItemID int64   `json:"item_id"`
	Title  string  `json:"title"`
	Points []Point `json:"points"`
}

// Pivot is every article's series over the shared date axis.
type Pivot struct {
	Dates  []string `json:"dates"`
	Series []Series `json:"series"`
}

// BuildSeries reshapes a history into one sparse series per item, in order
// of first appearance. Each series is labelled with its most recent title.
func BuildSeries(obs []source.Observation) Pivot {
	sorted := slices.Clone(obs)
	slices.SortStableFunc(sorted, func(a, b source.Observation) int {
		return compareDate(a.ObservedOn, b.ObservedOn)
	})

	var order []int64
	byItem := make(map[int64]*Series)
	for _, o := range sorted {
		s, ok := byItem[o.ItemID]
		if !ok {
			s = &Series{ItemID: o.ItemID}
			byItem[o.ItemID] = s
			order = append(order, o.ItemID)
		}
		s.Title = o.Title
		s.Points = append(s.Points, Point{Date: o.ObservedOn, Views: o.Views, Likes: o.Likes, Comments: o.Comments})
	}

	return Pivot{
		Dates: distinctDates(obs),
		Series: lo.Map(order, func(id int64, _ int) Series {
			return *byItem[id]
		}),
	}
}

// DailyTotal is the sum over all articles on one date.
type DailyTotal struct {
	Date     string `json:"date"`
	Articles int    `json:"articles"`
	Views    int64  `json:"views"`
	Likes    int64  `json:"likes"`
	Comments int64  `json:"comments"`
}

// DailyTotals sums every date's rows, oldest first.
func DailyTotals(obs []source.Observation) []DailyTotal {
	groups := lo.GroupBy(obs, func(o source.Observation) string { return o.ObservedOn })
	return lo.Map(distinctDates(obs), func(day string, _ int) DailyTotal {
		rows := groups[day]
		return DailyTotal{
			Date:     day,
			Articles: len(rows),
			Views:    lo.SumBy(rows, func(o source.Observation) int64 { return o.Views }),
			Likes:    lo.SumBy(rows, func(o source.Observation) int64 { return o.Likes }),
			Comments: lo.SumBy(rows, func(o source.Observation) int64 { return o.Comments }),
		}
	})
}

func compareDate(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
