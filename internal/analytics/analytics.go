package analytics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"golang.org/x/time/rate"

	"blinky/internal/model"
	"blinky/internal/storage"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 1000
	// MaxRangeDays bounds a single range query.
	MaxRangeDays = 3660
)

type Options struct {
	Location  *time.Location
	ExportDir string
	// Fs is where exports are written. Defaults to the OS filesystem.
	Fs afero.Fs
	Now func() time.Time
	// DailyGoal is read whenever a day row is recomputed or streaks are counted.
	DailyGoal func() int
}

// Engine records break outcomes and keeps the derived aggregates in memory.
// Writes are serialized by mu; readers share a consistent snapshot.
type Engine struct {
	store     storage.Storage
	loc       *time.Location
	exportDir string
	fs        afero.Fs
	now       func() time.Time
	dailyGoal func() int
	log       zerolog.Logger
	warn      *rate.Limiter

	mu             sync.RWMutex
	days           map[string]model.DailyStats
	lifetimeBreaks int
	lifetimeRest   int
	pending        []model.BreakRecord
}

func New(store storage.Storage, opts Options, log zerolog.Logger) *Engine {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.DailyGoal == nil {
		opts.DailyGoal = func() int { return model.DefaultSettings().DailyGoal }
	}
	if opts.ExportDir == "" {
		opts.ExportDir = "."
	}
	return &Engine{
		store:     store,
		loc:       opts.Location,
		exportDir: opts.ExportDir,
		fs:        opts.Fs,
		now:       opts.Now,
		dailyGoal: opts.DailyGoal,
		log:       log.With().Str("component", "analytics").Logger(),
		warn:      rate.NewLimiter(rate.Every(time.Minute), 1),
		days:      map[string]model.DailyStats{},
	}
}

// Load builds the in-memory aggregates from storage. A missing rollup cache is
// rebuilt from the break records, and today's row is always recomputed.
func (e *Engine) Load(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	rows, err := e.store.AllDailyStats(ctx)
	if err != nil {
		return &model.PersistenceError{Op: "load daily stats", Err: err}
	}
	if len(rows) == 0 {
		rows, err = e.rebuildCache(ctx)
		if err != nil {
			return &model.PersistenceError{Op: "rebuild daily stats", Err: err}
		}
	}

	e.days = make(map[string]model.DailyStats, len(rows))
	for _, d := range rows {
		e.days[d.Date] = d
	}

	e.lifetimeBreaks, e.lifetimeRest, err = e.store.LifetimeTotals(ctx)
	if err != nil {
		return &model.PersistenceError{Op: "load lifetime totals", Err: err}
	}

	today := model.DayKey(e.now(), e.loc)
	if _, err := e.recomputeDayLocked(ctx, today); err != nil {
		return &model.PersistenceError{Op: "recompute today", Err: err}
	}

	e.log.Info().
		Int("days", len(e.days)).
		Int("lifetime_breaks", e.lifetimeBreaks).
		Msg("analytics loaded")
	return nil
}

func (e *Engine) rebuildCache(ctx context.Context) ([]model.DailyStats, error) {
	byDay := map[string][]model.BreakRecord{}
	var order []string
	err := e.store.IterateBreaks(ctx, func(r model.BreakRecord) error {
		key := model.DayKey(r.StartedAt, e.loc)
		if _, ok := byDay[key]; !ok {
			order = append(order, key)
		}
		byDay[key] = append(byDay[key], r)
		return nil
	})
	if err != nil || len(order) == 0 {
		return nil, err
	}

	goal := e.dailyGoal()
	rows := make([]model.DailyStats, 0, len(order))
	err = e.store.WithinTransaction(ctx, func(ctx context.Context) error {
		for _, key := range order {
			d := model.SummarizeDay(key, byDay[key], goal)
			if err := e.store.SaveDailyStats(ctx, d); err != nil {
				return err
			}
			rows = append(rows, d)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.log.Info().Int("days", len(rows)).Msg("rebuilt daily stats cache from break records")
	return rows, nil
}

// RecordBreak appends one resolved break and updates the day row and the
// aggregates. Records that could not be written earlier are retried first, in
// order. On failure the record stays queued and a PersistenceError is returned.
func (e *Engine) RecordBreak(ctx context.Context, r model.BreakRecord) (model.BreakRecord, error) {
	if err := r.Validate(); err != nil {
		return r, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.pending = append(e.pending, r)
	saved, err := e.flushLocked(ctx)
	if err != nil {
		return r, err
	}
	return saved[len(saved)-1], nil
}

// Flush retries queued writes.
func (e *Engine) Flush(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, err := e.flushLocked(ctx)
	return err
}

// Pending reports how many records are waiting to be written.
func (e *Engine) Pending() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.pending)
}

func (e *Engine) flushLocked(ctx context.Context) ([]model.BreakRecord, error) {
	var saved []model.BreakRecord
	for len(e.pending) > 0 {
		r := e.pending[0]
		var day model.DailyStats
		err := e.store.WithinTransaction(ctx, func(ctx context.Context) error {
			id, err := e.store.SaveBreak(ctx, r)
			if err != nil {
				return err
			}
			r.ID = id
			day, err = e.summarizeStoredDay(ctx, model.DayKey(r.StartedAt, e.loc))
			if err != nil {
				return err
			}
			return e.store.SaveDailyStats(ctx, day)
		})
		if err != nil {
			if e.warn.Allow() {
				e.log.Warn().Err(err).Int("pending", len(e.pending)).Msg("failed to persist break record, will retry")
			}
			return saved, &model.PersistenceError{Op: "record break", Err: err}
		}

		e.pending = e.pending[1:]
		e.days[day.Date] = day
		if r.Completed {
			e.lifetimeBreaks++
			e.lifetimeRest += r.DurationSeconds
		}
		saved = append(saved, r)
		e.log.Debug().Int64("id", r.ID).Bool("completed", r.Completed).Int("duration", r.DurationSeconds).Msg("break recorded")
	}
	return saved, nil
}

func (e *Engine) summarizeStoredDay(ctx context.Context, key string) (model.DailyStats, error) {
	start, err := time.ParseInLocation(model.DayLayout, key, e.loc)
	if err != nil {
		return model.DailyStats{}, err
	}
	records, err := e.store.BreaksBetween(ctx, start, start.AddDate(0, 0, 1))
	if err != nil {
		return model.DailyStats{}, err
	}
	return model.SummarizeDay(key, records, e.dailyGoal()), nil
}

func (e *Engine) recomputeDayLocked(ctx context.Context, key string) (model.DailyStats, error) {
	day, err := e.summarizeStoredDay(ctx, key)
	if err != nil {
		return day, err
	}
	if day.BreaksCompleted+day.BreaksSkipped == 0 {
		if _, cached := e.days[key]; !cached {
			return day, nil
		}
	}
	if err := e.store.SaveDailyStats(ctx, day); err != nil {
		return day, err
	}
	e.days[key] = day
	return day, nil
}

// SealDay recomputes and stores the final row for a finished day. It is run
// once at the local day boundary.
func (e *Engine) SealDay(ctx context.Context, date string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.flushLocked(ctx); err != nil {
		return err
	}
	if _, err := e.recomputeDayLocked(ctx, date); err != nil {
		return &model.PersistenceError{Op: "seal day " + date, Err: err}
	}
	e.log.Info().Str("date", date).Int("completed", e.days[date].BreaksCompleted).Msg("day sealed")
	return nil
}

// CompletedToday returns today's completed break count.
func (e *Engine) CompletedToday() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.days[model.DayKey(e.now(), e.loc)].BreaksCompleted
}

// ClearAll deletes every record and rollup and resets the aggregates. extra
// runs inside the same transaction, so related state can be reset with it.
func (e *Engine) ClearAll(ctx context.Context, extra ...func(context.Context) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	err := e.store.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := e.store.ClearHistory(ctx); err != nil {
			return err
		}
		for _, fn := range extra {
			if err := fn(ctx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return &model.PersistenceError{Op: "clear all data", Err: err}
	}

	e.days = map[string]model.DailyStats{}
	e.lifetimeBreaks = 0
	e.lifetimeRest = 0
	e.pending = nil
	e.log.Warn().Msg("all break history cleared")
	return nil
}

// BreakHistory returns records newest first.
func (e *Engine) BreakHistory(ctx context.Context, limit, offset int) ([]model.BreakRecord, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	records, err := e.store.ListBreaks(ctx, limit, offset)
	if err != nil {
		return nil, &model.PersistenceError{Op: "list breaks", Err: err}
	}
	return records, nil
}

// DailyStatsRange returns one row per calendar day in [from, to], zero-filled.
// goal_met reflects the daily goal in force now.
func (e *Engine) DailyStatsRange(from, to string) ([]model.DailyStats, error) {
	start, err := model.ParseDay("from", from, time.UTC)
	if err != nil {
		return nil, err
	}
	end, err := model.ParseDay("to", to, time.UTC)
	if err != nil {
		return nil, err
	}
	if start.After(end) {
		return []model.DailyStats{}, nil
	}
	if span := int(end.Sub(start).Hours()/24) + 1; span > MaxRangeDays {
		return nil, &model.ValidationError{Field: "to", Reason: fmt.Sprintf("range spans %d days, at most %d allowed", span, MaxRangeDays)}
	}

	goal := e.dailyGoal()
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.rangeLocked(start, end, goal), nil
}

func (e *Engine) rangeLocked(start, end time.Time, goal int) []model.DailyStats {
	out := make([]model.DailyStats, 0, int(end.Sub(start).Hours()/24)+1)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		key := d.Format(model.DayLayout)
		row, ok := e.days[key]
		if !ok {
			row = model.DailyStats{Date: key}
		}
		row.GoalMet = row.Qualifies(goal)
		out = append(out, row)
	}
	return out
}

// Summary composes today's row, the 7 and 30 day series, streaks and lifetime
// totals. A day counts toward a streak when it met the current daily goal.
func (e *Engine) Summary() model.AnalyticsSummary {
	today := civilDay(e.now(), e.loc)
	goal := e.dailyGoal()

	e.mu.RLock()
	defer e.mu.RUnlock()

	last30 := e.rangeLocked(today.AddDate(0, 0, -29), today, goal)
	return model.AnalyticsSummary{
		Today:               last30[len(last30)-1],
		Last7Days:           append([]model.DailyStats(nil), last30[len(last30)-7:]...),
		Last30Days:          last30,
		CurrentDayStreak:    currentStreak(e.days, today, goal),
		BestDayStreak:       longestRun(e.days, goal),
		LifetimeBreaks:      e.lifetimeBreaks,
		LifetimeRestSeconds: e.lifetimeRest,
	}
}
