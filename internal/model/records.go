package model

import (
	"fmt"
	"time"
)

const DayLayout = "2006-01-02"

// BreakRecord is one resolved break. Exactly one of Completed and Skipped is set.
type BreakRecord struct {
	ID                   int64     `json:"id" yaml:"id"`
	StartedAt            time.Time `json:"started_at" yaml:"started_at"`
	DurationSeconds      int       `json:"duration_seconds" yaml:"duration_seconds"`
	Completed            bool      `json:"completed" yaml:"completed"`
	Skipped              bool      `json:"skipped" yaml:"skipped"`
	PrecedingWorkSeconds int       `json:"preceding_work_seconds" yaml:"preceding_work_seconds"`
}

func CompletedBreak(startedAt time.Time, durationSeconds, precedingWorkSeconds int) BreakRecord {
	return BreakRecord{
		StartedAt:            startedAt,
		DurationSeconds:      durationSeconds,
		Completed:            true,
		PrecedingWorkSeconds: precedingWorkSeconds,
	}
}

func SkippedBreak(startedAt time.Time, elapsedSeconds, precedingWorkSeconds int) BreakRecord {
	return BreakRecord{
		StartedAt:            startedAt,
		DurationSeconds:      elapsedSeconds,
		Skipped:              true,
		PrecedingWorkSeconds: precedingWorkSeconds,
	}
}

func (r BreakRecord) Validate() error {
	if r.Completed == r.Skipped {
		return &ValidationError{Field: "completed", Reason: "a break is either completed or skipped"}
	}
	if r.DurationSeconds < 0 {
		return &ValidationError{Field: "duration_seconds", Reason: "must not be negative"}
	}
	return nil
}

// DailyStats is the rollup of one local calendar day.
type DailyStats struct {
	Date             string  `json:"date" yaml:"date"`
	BreaksCompleted  int     `json:"breaks_completed" yaml:"breaks_completed"`
	BreaksSkipped    int     `json:"breaks_skipped" yaml:"breaks_skipped"`
	TotalRestSeconds int     `json:"total_rest_seconds" yaml:"total_rest_seconds"`
	ComplianceRate   float64 `json:"compliance_rate" yaml:"compliance_rate"`
	// LongestStreak is the longest run of consecutive completed breaks that day.
	LongestStreak int  `json:"longest_streak" yaml:"longest_streak"`
	GoalMet       bool `json:"goal_met" yaml:"goal_met"`
}

// Qualifies reports whether the day counts toward a day streak under goal.
func (d DailyStats) Qualifies(goal int) bool { return goal > 0 && d.BreaksCompleted >= goal }

// SummarizeDay folds one day's records, in chronological order, into DailyStats.
func SummarizeDay(date string, records []BreakRecord, dailyGoal int) DailyStats {
	d := DailyStats{Date: date}
	run := 0
	for _, r := range records {
		if r.Completed {
			d.BreaksCompleted++
			d.TotalRestSeconds += r.DurationSeconds
			run++
			if run > d.LongestStreak {
				d.LongestStreak = run
			}
			continue
		}
		d.BreaksSkipped++
		run = 0
	}
	if total := d.BreaksCompleted + d.BreaksSkipped; total > 0 {
		d.ComplianceRate = float64(d.BreaksCompleted) / float64(total)
	}
	d.GoalMet = d.Qualifies(dailyGoal)
	return d
}

// AnalyticsSummary is the read-only dashboard view.
type AnalyticsSummary struct {
	Today               DailyStats   `json:"today" yaml:"today"`
	Last7Days           []DailyStats `json:"last_7_days" yaml:"last_7_days"`
	Last30Days          []DailyStats `json:"last_30_days" yaml:"last_30_days"`
	CurrentDayStreak    int          `json:"current_day_streak" yaml:"current_day_streak"`
	BestDayStreak       int          `json:"best_day_streak" yaml:"best_day_streak"`
	LifetimeBreaks      int          `json:"lifetime_breaks" yaml:"lifetime_breaks"`
	LifetimeRestSeconds int          `json:"lifetime_rest_seconds" yaml:"lifetime_rest_seconds"`
}

// DayKey formats t as a calendar date in loc.
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DayLayout)
}

// StartOfDay returns local midnight of the day containing t.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

func ParseDay(field, s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DayLayout, s, loc)
	if err != nil {
		return time.Time{}, &ValidationError{Field: field, Reason: fmt.Sprintf("expected YYYY-MM-DD, got %q", s)}
	}
	return t, nil
}
