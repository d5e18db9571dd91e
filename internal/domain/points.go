package domain

import (
	"sort"
	"time"
)

// DayLabelLayout labels heatmap frames, e.g. "2015-01-01 Thursday".
const DayLabelLayout = "2006-01-02 Monday"

// TimeBucket is one frame of a heatmap over time.
type TimeBucket struct {
	Label  string
	Start  time.Time
	Points []Point
}

// BucketPointsByDay groups points by calendar day (UTC) in chronological order.
func BucketPointsByDay(points []Point) []TimeBucket {
	byDay := make(map[time.Time][]Point)
	for _, p := range points {
		day := p.Time.UTC().Truncate(24 * time.Hour)
		byDay[day] = append(byDay[day], p)
	}
	days := make([]time.Time, 0, len(byDay))
	for d := range byDay {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	out := make([]TimeBucket, 0, len(days))
	for _, d := range days {
		out = append(out, TimeBucket{Label: d.Format(DayLabelLayout), Start: d, Points: byDay[d]})
	}
	return out
}

// FilterPoints keeps points whose time lies in [from, to).
func FilterPoints(points []Point, from, to time.Time) []Point {
	out := make([]Point, 0, len(points))
	for _, p := range points {
		if !p.Time.Before(from) && p.Time.Before(to) {
			out = append(out, p)
		}
	}
	return out
}
