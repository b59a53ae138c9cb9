package trend

// GrowthRate is the view gain as a percentage of the previous total. New
// articles and articles that had no views before report 0.
func GrowthRate(d ItemDelta) float64 {
	before := d.Views - d.ViewsDelta
	if d.New || before <= 0 {
		return 0
	}
	return float64(d.ViewsDelta) / float64(before) * 100
}

// Top returns at most n deltas with a positive view gain, keeping their order.
func Top(deltas []ItemDelta, n int) []ItemDelta {
	var out []ItemDelta
	for _, d := range deltas {
		if len(out) == n {
			break
		}
		if d.ViewsDelta > 0 {
			out = append(out, d)
		}
	}
	return out
}
