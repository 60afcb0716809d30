// Package exercise tracks eye exercise completions and derives streaks from them.
package exercise

import (
	"slices"
	"time"

	"github.com/dukerupert/merelax/internal/model"
)

// ConsecutiveDays returns the length of the run of consecutive days ending
// at the most recent exercise date. The run only counts while it reaches
// today or yesterday; an older latest date means the streak is broken.
func ConsecutiveDays(dates []time.Time, today time.Time) int {
	today = startOfDay(today)
	days := normalize(dates, today.Location())
	if len(days) == 0 {
		return 0
	}
	if latest := days[0]; !latest.Equal(today) && !latest.Equal(today.AddDate(0, 0, -1)) {
		return 0
	}

	count := 1
	for i := 1; i < len(days); i++ {
		if !days[i].Equal(days[i-1].AddDate(0, 0, -1)) {
			break
		}
		count++
	}
	return count
}

// WeeklyCount returns the number of distinct exercise days within the
// Monday to Sunday week containing today.
func WeeklyCount(dates []time.Time, today time.Time) int {
	today = startOfDay(today)
	monday := startOfWeek(today)
	sunday := monday.AddDate(0, 0, 6)

	count := 0
	for _, d := range normalize(dates, today.Location()) {
		if !d.Before(monday) && !d.After(sunday) {
			count++
		}
	}
	return count
}

// TodayStatus splits the catalogue into completed and pending exercise
// types. Both lists keep the catalogue order.
func TodayStatus(all []model.Exercise, completed map[int64]bool) (done, pending []string) {
	done = make([]string, 0, len(all))
	pending = make([]string, 0, len(all))
	for _, e := range all {
		if completed[e.ID] {
			done = append(done, e.Type)
		} else {
			pending = append(pending, e.Type)
		}
	}
	return done, pending
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func startOfWeek(day time.Time) time.Time {
	offset := (int(day.Weekday()) + 6) % 7 // Monday = 0
	return day.AddDate(0, 0, -offset)
}

// normalize maps each date to its calendar day in loc, drops repeats and
// sorts newest first.
func normalize(dates []time.Time, loc *time.Location) []time.Time {
	days := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		y, m, dd := d.Date()
		days = append(days, time.Date(y, m, dd, 0, 0, 0, 0, loc))
	}
	slices.SortFunc(days, func(a, b time.Time) int { return b.Compare(a) })
	return slices.CompactFunc(days, func(a, b time.Time) bool { return a.Equal(b) })
}
