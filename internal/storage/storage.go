package storage

import (
	"context"
	"time"

	"blinky/internal/model"
)

// Storage persists break history, the daily rollup cache, settings and
// onboarding state. Methods called with a context returned inside
// WithinTransaction take part in that transaction.
type Storage interface {
	Init(ctx context.Context) error
	Close() error
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	SaveBreak(ctx context.Context, r model.BreakRecord) (int64, error)
	// ListBreaks returns newest first.
	ListBreaks(ctx context.Context, limit, offset int) ([]model.BreakRecord, error)
	// BreaksBetween returns records with start <= started_at < end, oldest first.
	BreaksBetween(ctx context.Context, start, end time.Time) ([]model.BreakRecord, error)
	// IterateBreaks calls fn for every record, oldest first, stopping at the first error.
	IterateBreaks(ctx context.Context, fn func(model.BreakRecord) error) error
	LifetimeTotals(ctx context.Context) (breaks int, restSeconds int, err error)

	SaveDailyStats(ctx context.Context, d model.DailyStats) error
	AllDailyStats(ctx context.Context) ([]model.DailyStats, error)

	// LoadSettings reports found=false when no row was written yet.
	LoadSettings(ctx context.Context) (s model.UserSettings, found bool, err error)
	SaveSettings(ctx context.Context, s model.UserSettings) error
	LoadOnboarding(ctx context.Context) (model.OnboardingState, error)
	SaveOnboarding(ctx context.Context, o model.OnboardingState) error

	// ClearHistory deletes all break records and cached rollups.
	ClearHistory(ctx context.Context) error
}
