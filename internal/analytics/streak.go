package analytics

import (
	"sort"
	"time"

	"blinky/internal/model"
)

// Day arithmetic runs on UTC midnights so DST never skews a step.

func civilDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func dayKey(d time.Time) string { return d.Format(model.DayLayout) }

// currentStreak counts consecutive days ending today that met goal. Today
// not meeting it yet does not break the streak; it just is not counted.
func currentStreak(days map[string]model.DailyStats, today time.Time, goal int) int {
	d := today
	if !days[dayKey(d)].Qualifies(goal) {
		d = d.AddDate(0, 0, -1)
	}
	n := 0
	for days[dayKey(d)].Qualifies(goal) {
		n++
		d = d.AddDate(0, 0, -1)
	}
	return n
}

// longestRun is the longest run of consecutive days that met goal.
func longestRun(days map[string]model.DailyStats, goal int) int {
	keys := make([]string, 0, len(days))
	for k, d := range days {
		if d.Qualifies(goal) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	best, run := 0, 0
	var prev time.Time
	for i, k := range keys {
		d, err := time.Parse(model.DayLayout, k)
		if err != nil {
			continue
		}
		if i > 0 && prev.AddDate(0, 0, 1).Equal(d) {
			run++
		} else {
			run = 1
		}
		if run > best {
			best = run
		}
		prev = d
	}
	return best
}
