package trend

import (
	"slices"

	"github.com/elonfeng/notepulse/pkg/source"
	"github.com/samber/lo"
)

// ItemDelta is one article's change between the previous and latest dates.
type ItemDelta struct {
	ItemID        int64  `json:"item_id"`
	Title         string `json:"title"`
	Views         int64  `json:"views"`
	ViewsDelta    int64  `json:"views_delta"`
	LikesDelta    int64  `json:"likes_delta"`
	CommentsDelta int64  `json:"comments_delta"`
	// New is set when the article has no row on the previous date.
	New bool `json:"new"`
}

// Summary describes an owner's latest snapshot and how it moved since the
// date before it.
type Summary struct {
	Latest   string `json:"latest,omitempty"`
	Previous string `json:"previous,omitempty"`

	// Snapshot holds every row of the latest date, most viewed first.
	Snapshot []source.Observation `json:"snapshot"`
	// Deltas holds one entry per latest-date article, biggest view gain
	// first. Empty when there is no previous date.
	Deltas []ItemDelta `json:"deltas"`

	Articles      int   `json:"articles"`
	TotalViews    int64 `json:"total_views"`
	TotalLikes    int64 `json:"total_likes"`
	TotalComments int64 `json:"total_comments"`

	ViewsDelta    int64 `json:"views_delta"`
	LikesDelta    int64 `json:"likes_delta"`
	CommentsDelta int64 `json:"comments_delta"`
}

// HasPrevious reports whether a comparison date exists.
func (s Summary) HasPrevious() bool { return s.Previous != "" }

// Summarize computes the latest snapshot and its deltas against the previous
// distinct date. Rows that tie on views or delta keep their input order.
func Summarize(obs []source.Observation) Summary {
	var sum Summary
	if len(obs) == 0 {
		return sum
	}

	dates := distinctDates(obs)
	sum.Latest = dates[len(dates)-1]
	if len(dates) > 1 {
		sum.Previous = dates[len(dates)-2]
	}

	sum.Snapshot = lo.Filter(obs, func(o source.Observation, _ int) bool {
		return o.ObservedOn == sum.Latest
	})
	slices.SortStableFunc(sum.Snapshot, func(a, b source.Observation) int {
		return compareDesc(a.Views, b.Views)
	})

	sum.Articles = len(sum.Snapshot)
	sum.TotalViews = lo.SumBy(sum.Snapshot, func(o source.Observation) int64 { return o.Views })
	sum.TotalLikes = lo.SumBy(sum.Snapshot, func(o source.Observation) int64 { return o.Likes })
	sum.TotalComments = lo.SumBy(sum.Snapshot, func(o source.Observation) int64 { return o.Comments })

	if !sum.HasPrevious() {
		return sum
	}

	prev := lo.KeyBy(
		lo.Filter(obs, func(o source.Observation, _ int) bool { return o.ObservedOn == sum.Previous }),
		func(o source.Observation) int64 { return o.ItemID },
	)

	sum.Deltas = make([]ItemDelta, 0, len(sum.Snapshot))
	for _, cur := range sum.Snapshot {
		p, seen := prev[cur.ItemID]
		d := ItemDelta{
			ItemID:        cur.ItemID,
			Title:         cur.Title,
			Views:         cur.Views,
			ViewsDelta:    cur.Views - p.Views,
			LikesDelta:    cur.Likes - p.Likes,
			CommentsDelta: cur.Comments - p.Comments,
			New:           !seen,
		}
		sum.ViewsDelta += d.ViewsDelta
		sum.LikesDelta += d.LikesDelta
		sum.CommentsDelta += d.CommentsDelta
		sum.Deltas = append(sum.Deltas, d)
	}
	slices.SortStableFunc(sum.Deltas, func(a, b ItemDelta) int {
		return compareDesc(a.ViewsDelta, b.ViewsDelta)
	})

	return sum
}

// distinctDates returns the observation dates in ascending order.
func distinctDates(obs []source.Observation) []string {
	dates := lo.Uniq(lo.Map(obs, func(o source.Observation, _ int) string { return o.ObservedOn }))
	slices.Sort(dates)
	return dates
}

func compareDesc(a, b int64) int {
	switch {
	case a > b:
		return -1
	case a < b:
		return 1
	}
	return 0
}
