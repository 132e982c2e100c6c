package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"blinky/internal/model"
)

func (s *SQLiteStore) SaveDailyStats(ctx context.Context, d model.DailyStats) error {
	query := `INSERT INTO daily_stats_cache
	              (date, breaks_completed, breaks_skipped, total_rest_seconds, compliance_rate, longest_streak, goal_met)
	          VALUES (?, ?, ?, ?, ?, ?, ?)
	          ON CONFLICT(date) DO UPDATE SET
	              breaks_completed = excluded.breaks_completed,
	              breaks_skipped = excluded.breaks_skipped,
	              total_rest_seconds = excluded.total_rest_seconds,
	              compliance_rate = excluded.compliance_rate,
	              longest_streak = excluded.longest_streak,
	              goal_met = excluded.goal_met`
	_, err := s.dbGetter(ctx).ExecContext(ctx, query,
		d.Date, d.BreaksCompleted, d.BreaksSkipped, d.TotalRestSeconds, d.ComplianceRate, d.LongestStreak, d.GoalMet)
	if err != nil {
		return fmt.Errorf("failed to upsert daily stats for %s: %w", d.Date, err)
	}
	return nil
}

func (s *SQLiteStore) AllDailyStats(ctx context.Context) ([]model.DailyStats, error) {
	query := `SELECT date, breaks_completed, breaks_skipped, total_rest_seconds, compliance_rate, longest_streak, goal_met
	          FROM daily_stats_cache ORDER BY date ASC`
	rows, err := s.dbGetter(ctx).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily stats: %w", err)
	}
	defer rows.Close()

	var days []model.DailyStats
	for rows.Next() {
		var d model.DailyStats
		if err := rows.Scan(&d.Date, &d.BreaksCompleted, &d.BreaksSkipped, &d.TotalRestSeconds,
			&d.ComplianceRate, &d.LongestStreak, &d.GoalMet); err != nil {
			return nil, fmt.Errorf("failed to scan daily stats row: %w", err)
		}
		days = append(days, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily stats rows: %w", err)
	}
	return days, nil
}

func (s *SQLiteStore) LoadSettings(ctx context.Context) (model.UserSettings, bool, error) {
	query := `SELECT work_interval_minutes, break_duration_seconds, sound_enabled, sound_volume,
	                 notification_enabled, overlay_enabled, launch_at_login, daily_goal,
	                 idle_pause_minutes, theme
	          FROM settings WHERE id = 1`
	var st model.UserSettings
	var theme string
	err := s.dbGetter(ctx).QueryRowContext(ctx, query).Scan(
		&st.WorkIntervalMinutes, &st.BreakDurationSeconds, &st.SoundEnabled, &st.SoundVolume,
		&st.NotificationEnabled, &st.OverlayEnabled, &st.LaunchAtLogin, &st.DailyGoal,
		&st.IdlePauseMinutes, &theme)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DefaultSettings(), false, nil
	}
	if err != nil {
		return model.UserSettings{}, false, fmt.Errorf("failed to load settings: %w", err)
	}
	st.Theme = model.Theme(theme)
	return st.Clamp(), true, nil
}

func (s *SQLiteStore) SaveSettings(ctx context.Context, st model.UserSettings) error {
	query := `INSERT INTO settings (id, work_interval_minutes, break_duration_seconds, sound_enabled, sound_volume,
	              notification_enabled, overlay_enabled, launch_at_login, daily_goal, idle_pause_minutes, theme, updated_at)
	          VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	          ON CONFLICT(id) DO UPDATE SET
	              work_interval_minutes = excluded.work_interval_minutes,
	              break_duration_seconds = excluded.break_duration_seconds,
	              sound_enabled = excluded.sound_enabled,
	              sound_volume = excluded.sound_volume,
	              notification_enabled = excluded.notification_enabled,
	              overlay_enabled = excluded.overlay_enabled,
	              launch_at_login = excluded.launch_at_login,
	              daily_goal = excluded.daily_goal,
	              idle_pause_minutes = excluded.idle_pause_minutes,
	              theme = excluded.theme,
	              updated_at = excluded.updated_at`
	_, err := s.dbGetter(ctx).ExecContext(ctx, query,
		st.WorkIntervalMinutes, st.BreakDurationSeconds, st.SoundEnabled, st.SoundVolume,
		st.NotificationEnabled, st.OverlayEnabled, st.LaunchAtLogin, st.DailyGoal,
		st.IdlePauseMinutes, string(st.Theme), toMillis(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LoadOnboarding(ctx context.Context) (model.OnboardingState, error) {
	query := `SELECT completed, completed_at, tooltips_seen, first_break_completed FROM onboarding WHERE id = 1`
	var o model.OnboardingState
	var completedAt sql.NullInt64
	var tooltips string
	err := s.dbGetter(ctx).QueryRowContext(ctx, query).Scan(&o.Completed, &completedAt, &tooltips, &o.FirstBreakCompleted)
	if errors.Is(err, sql.ErrNoRows) {
		return model.OnboardingState{TooltipsSeen: []string{}}, nil
	}
	if err != nil {
		return model.OnboardingState{}, fmt.Errorf("failed to load onboarding state: %w", err)
	}
	if completedAt.Valid {
		t := fromMillis(completedAt.Int64)
		o.CompletedAt = &t
	}
	if err := json.Unmarshal([]byte(tooltips), &o.TooltipsSeen); err != nil {
		s.log.Warn().Err(err).Msg("unreadable tooltips_seen column, resetting")
		o.TooltipsSeen = []string{}
	}
	return o, nil
}

func (s *SQLiteStore) SaveOnboarding(ctx context.Context, o model.OnboardingState) error {
	tooltips := o.TooltipsSeen
	if tooltips == nil {
		tooltips = []string{}
	}
	encoded, err := json.Marshal(tooltips)
	if err != nil {
		return fmt.Errorf("failed to encode tooltips: %w", err)
	}
	var completedAt sql.NullInt64
	if o.CompletedAt != nil {
		completedAt = sql.NullInt64{Int64: toMillis(*o.CompletedAt), Valid: true}
	}

	query := `INSERT INTO onboarding (id, completed, completed_at, tooltips_seen, first_break_completed)
	          VALUES (1, ?, ?, ?, ?)
	          ON CONFLICT(id) DO UPDATE SET
	              completed = excluded.completed,
	              completed_at = excluded.completed_at,
	              tooltips_seen = excluded.tooltips_seen,
	              first_break_completed = excluded.first_break_completed`
	if _, err := s.dbGetter(ctx).ExecContext(ctx, query, o.Completed, completedAt, string(encoded), o.FirstBreakCompleted); err != nil {
		return fmt.Errorf("failed to save onboarding state: %w", err)
	}
	return nil
}
