// Package streak computes activity streaks in whole UTC days.
package streak

import "time"

const day = 24 * time.Hour

// Days counts consecutive UTC days with at least one event, walking back
// from today and stopping at the first day without one. A user with no
// event today has a streak of 0.
func Days(events []time.Time, now time.Time) int {
	active := make(map[time.Time]bool, len(events))
	for _, e := range events {
		active[e.UTC().Truncate(day)] = true
	}

	streak := 0
	for d := now.UTC().Truncate(day); active[d]; d = d.Add(-day) {
		streak++
	}
	return streak
}

// Since returns the earliest instant worth loading to compute a streak of
// up to maxDays days.
func Since(now time.Time, maxDays int) time.Time {
	return now.UTC().Truncate(day).Add(-time.Duration(maxDays) * day)
}
