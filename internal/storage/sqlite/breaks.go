package sqlite

import (
	"context"
	"fmt"
	"time"

	"blinky/internal/model"
)

type scannable interface {
	Scan(dest ...any) error
}

const breakColumns = `id, started_at, duration_seconds, completed, skipped, preceding_work_seconds`

func scanBreak(row scannable) (model.BreakRecord, error) {
	var r model.BreakRecord
	var startedAt int64
	if err := row.Scan(&r.ID, &startedAt, &r.DurationSeconds, &r.Completed, &r.Skipped, &r.PrecedingWorkSeconds); err != nil {
		return model.BreakRecord{}, err
	}
	r.StartedAt = fromMillis(startedAt)
	return r, nil
}

func (s *SQLiteStore) SaveBreak(ctx context.Context, r model.BreakRecord) (int64, error) {
	if err := r.Validate(); err != nil {
		return 0, err
	}
	query := `INSERT INTO break_records (started_at, duration_seconds, completed, skipped, preceding_work_seconds)
	          VALUES (?, ?, ?, ?, ?)`
	args := []any{toMillis(r.StartedAt), r.DurationSeconds, r.Completed, r.Skipped, r.PrecedingWorkSeconds}
	s.log.Debug().Str("query", query).Interface("args", args).Msg("inserting break record")

	res, err := s.dbGetter(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert break record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) ListBreaks(ctx context.Context, limit, offset int) ([]model.BreakRecord, error) {
	query := `SELECT ` + breakColumns + ` FROM break_records
	          ORDER BY started_at DESC, id DESC
	          LIMIT ? OFFSET ?`
	return s.queryBreaks(ctx, query, limit, offset)
}

func (s *SQLiteStore) BreaksBetween(ctx context.Context, start, end time.Time) ([]model.BreakRecord, error) {
	query := `SELECT ` + breakColumns + ` FROM break_records
	          WHERE started_at >= ? AND started_at < ?
	          ORDER BY started_at ASC, id ASC`
	return s.queryBreaks(ctx, query, toMillis(start), toMillis(end))
}

func (s *SQLiteStore) queryBreaks(ctx context.Context, query string, args ...any) ([]model.BreakRecord, error) {
	rows, err := s.dbGetter(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query break records: %w", err)
	}
	defer rows.Close()

	records := []model.BreakRecord{}
	for rows.Next() {
		r, err := scanBreak(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan break record: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating break records: %w", err)
	}
	return records, nil
}

func (s *SQLiteStore) IterateBreaks(ctx context.Context, fn func(model.BreakRecord) error) error {
	query := `SELECT ` + breakColumns + ` FROM break_records ORDER BY started_at ASC, id ASC`
	rows, err := s.dbGetter(ctx).QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to query break records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		r, err := scanBreak(rows)
		if err != nil {
			return fmt.Errorf("failed to scan break record: %w", err)
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating break records: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LifetimeTotals(ctx context.Context) (int, int, error) {
	query := `SELECT COUNT(*), COALESCE(SUM(duration_seconds), 0) FROM break_records WHERE completed = 1`
	var breaks, rest int
	if err := s.dbGetter(ctx).QueryRowContext(ctx, query).Scan(&breaks, &rest); err != nil {
		return 0, 0, fmt.Errorf("failed to query lifetime totals: %w", err)
	}
	return breaks, rest, nil
}

func (s *SQLiteStore) ClearHistory(ctx context.Context) error {
	return s.WithinTransaction(ctx, func(ctx context.Context) error {
		db := s.dbGetter(ctx)
		if _, err := db.ExecContext(ctx, `DELETE FROM break_records`); err != nil {
			return fmt.Errorf("failed to delete break records: %w", err)
		}
		if _, err := db.ExecContext(ctx, `DELETE FROM daily_stats_cache`); err != nil {
			return fmt.Errorf("failed to delete daily stats: %w", err)
		}
		return nil
	})
}
