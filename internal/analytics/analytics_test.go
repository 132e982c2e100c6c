package analytics

import (
	"context"
	"encoding/csv"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blinky/internal/model"
	"blinky/internal/storage"
	sqlitestore "blinky/internal/storage/sqlite"
)

type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time { return c.t }

func day(n int) time.Time {
	return time.Date(2024, 1, n, 10, 0, 0, 0, time.UTC)
}

func setupStore(t *testing.T) storage.Storage {
	t.Helper()
	store := sqlitestore.NewSQLiteStore(filepath.Join(t.TempDir(), "analytics.db"), zerolog.Nop())
	require.NoError(t, store.Init(context.Background()))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

const testGoal = 2

func setupEngine(t *testing.T, store storage.Storage, clock *testClock) (*Engine, afero.Fs) {
	t.Helper()
	return setupEngineWithGoal(t, store, clock, func() int { return testGoal })
}

func setupEngineWithGoal(t *testing.T, store storage.Storage, clock *testClock, goal func() int) (*Engine, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	e := New(store, Options{
		Location:  time.UTC,
		ExportDir: "/exports",
		Fs:        fs,
		Now:       clock.Now,
		DailyGoal: goal,
	}, zerolog.Nop())
	require.NoError(t, e.Load(context.Background()))
	return e, fs
}

func record(t *testing.T, e *Engine, r model.BreakRecord) model.BreakRecord {
	t.Helper()
	saved, err := e.RecordBreak(context.Background(), r)
	require.NoError(t, err)
	return saved
}

// meetGoal records testGoal completed breaks on day n.
func meetGoal(t *testing.T, e *Engine, n int) {
	t.Helper()
	for i := 0; i < testGoal; i++ {
		record(t, e, model.CompletedBreak(day(n).Add(time.Duration(i)*30*time.Minute), 20, 1200))
	}
}

func TestDayStreaksWithAHole(t *testing.T) {
	clock := &testClock{t: day(6).Add(2 * time.Hour)}
	store := setupStore(t)
	e, _ := setupEngine(t, store, clock)

	for _, n := range []int{1, 2, 3, 5, 6} {
		meetGoal(t, e, n)
	}

	s := e.Summary()
	assert.Equal(t, 2, s.CurrentDayStreak)
	assert.Equal(t, 3, s.BestDayStreak)

	// a new day with nothing yet keeps the streak alive
	clock.t = day(7)
	assert.Equal(t, 2, e.Summary().CurrentDayStreak)

	// a full empty day breaks it
	clock.t = day(8)
	assert.Equal(t, 0, e.Summary().CurrentDayStreak)
	assert.Equal(t, 3, e.Summary().BestDayStreak)

	// reloading from storage recomputes the same best streak
	clock.t = day(6)
	reloaded, _ := setupEngine(t, store, clock)
	assert.Equal(t, 3, reloaded.Summary().BestDayStreak)
	assert.Equal(t, 2, reloaded.Summary().CurrentDayStreak)
}

func TestSkippedOnlyDayDoesNotQualify(t *testing.T) {
	clock := &testClock{t: day(3)}
	e, _ := setupEngine(t, setupStore(t), clock)

	meetGoal(t, e, 1)
	record(t, e, model.SkippedBreak(day(2), 3, 0))
	record(t, e, model.SkippedBreak(day(2).Add(time.Hour), 3, 0))
	meetGoal(t, e, 3)

	s := e.Summary()
	assert.Equal(t, 1, s.CurrentDayStreak)
	assert.Equal(t, 1, s.BestDayStreak)
}

func TestBestStreakJoinsRunsOnBothSides(t *testing.T) {
	clock := &testClock{t: day(10)}
	e, _ := setupEngine(t, setupStore(t), clock)

	meetGoal(t, e, 1)
	meetGoal(t, e, 3)
	meetGoal(t, e, 4)
	assert.Equal(t, 2, e.Summary().BestDayStreak)

	// filling the gap merges both neighbours into one run
	meetGoal(t, e, 2)
	assert.Equal(t, 4, e.Summary().BestDayStreak)
}

func TestDayBelowGoalDoesNotQualify(t *testing.T) {
	goal := 24
	clock := &testClock{t: day(7).Add(time.Hour)}
	e, _ := setupEngineWithGoal(t, setupStore(t), clock, func() int { return goal })

	for _, n := range []int{5, 6, 7} {
		record(t, e, model.CompletedBreak(day(n), 20, 1200))
	}

	s := e.Summary()
	assert.False(t, s.Today.GoalMet)
	assert.Zero(t, s.CurrentDayStreak)
	assert.Zero(t, s.BestDayStreak)

	// the goal in force when the summary is built decides
	goal = 1
	s = e.Summary()
	assert.True(t, s.Today.GoalMet)
	assert.Equal(t, 3, s.CurrentDayStreak)
	assert.Equal(t, 3, s.BestDayStreak)

	rows, err := e.DailyStatsRange("2024-01-05", "2024-01-07")
	require.NoError(t, err)
	for _, row := range rows {
		assert.True(t, row.GoalMet, row.Date)
	}
}

func TestSummaryTotalsAndSeries(t *testing.T) {
	clock := &testClock{t: day(6).Add(5 * time.Hour)}
	e, _ := setupEngine(t, setupStore(t), clock)

	record(t, e, model.CompletedBreak(day(6), 20, 1200))
	record(t, e, model.CompletedBreak(day(6).Add(20*time.Minute), 25, 1200))
	record(t, e, model.SkippedBreak(day(6).Add(40*time.Minute), 4, 1200))
	record(t, e, model.CompletedBreak(day(1), 30, 1200))

	s := e.Summary()
	assert.Equal(t, "2024-01-06", s.Today.Date)
	assert.Equal(t, 2, s.Today.BreaksCompleted)
	assert.Equal(t, 1, s.Today.BreaksSkipped)
	assert.Equal(t, 45, s.Today.TotalRestSeconds)
	assert.InDelta(t, 2.0/3.0, s.Today.ComplianceRate, 1e-9)
	assert.True(t, s.Today.GoalMet)

	require.Len(t, s.Last7Days, 7)
	require.Len(t, s.Last30Days, 30)
	assert.Equal(t, "2023-12-31", s.Last7Days[0].Date)
	assert.Equal(t, "2024-01-06", s.Last7Days[6].Date)
	assert.Equal(t, "2023-12-08", s.Last30Days[0].Date)
	assert.Equal(t, 1, s.Last7Days[1].BreaksCompleted)

	assert.Equal(t, 3, s.LifetimeBreaks)
	assert.Equal(t, 75, s.LifetimeRestSeconds)
	assert.Equal(t, 2, e.CompletedToday())
}

func TestDailyStatsRangeHasNoGaps(t *testing.T) {
	e, _ := setupEngine(t, setupStore(t), &testClock{t: day(10)})

	rows, err := e.DailyStatsRange("2024-01-01", "2024-01-07")
	require.NoError(t, err)
	require.Len(t, rows, 7)
	for i, row := range rows {
		assert.Equal(t, day(i+1).Format(model.DayLayout), row.Date)
		assert.Zero(t, row.BreaksCompleted)
		assert.Zero(t, row.ComplianceRate)
	}

	record(t, e, model.CompletedBreak(day(3), 20, 0))
	rows, err = e.DailyStatsRange("2024-01-01", "2024-01-07")
	require.NoError(t, err)
	require.Len(t, rows, 7)
	assert.Equal(t, 1, rows[2].BreaksCompleted)
}

func TestDailyStatsRangeEdges(t *testing.T) {
	e, _ := setupEngine(t, setupStore(t), &testClock{t: day(10)})

	rows, err := e.DailyStatsRange("2024-01-07", "2024-01-01")
	require.NoError(t, err)
	assert.Empty(t, rows)

	rows, err = e.DailyStatsRange("2024-02-28", "2024-03-01")
	require.NoError(t, err)
	assert.Len(t, rows, 3, "leap day included")

	_, err = e.DailyStatsRange("yesterday", "2024-01-01")
	assert.True(t, model.IsValidation(err))

	_, err = e.DailyStatsRange("1990-01-01", "2024-01-01")
	assert.True(t, model.IsValidation(err))
}

func TestBreakHistoryPaging(t *testing.T) {
	e, _ := setupEngine(t, setupStore(t), &testClock{t: day(10)})
	for i := 0; i < 5; i++ {
		record(t, e, model.CompletedBreak(day(1).Add(time.Duration(i)*time.Minute), 20+i, 0))
	}

	all, err := e.BreakHistory(context.Background(), 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, 24, all[0].DurationSeconds, "newest first")

	page, err := e.BreakHistory(context.Background(), 2, -3)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, 24, page[0].DurationSeconds)

	tail, err := e.BreakHistory(context.Background(), 2, 4)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, 20, tail[0].DurationSeconds)
}

func TestExportThenClearLeavesNothing(t *testing.T) {
	clock := &testClock{t: time.Date(2024, 1, 6, 14, 30, 5, 0, time.UTC)}
	e, fs := setupEngine(t, setupStore(t), clock)

	first := record(t, e, model.CompletedBreak(day(5), 20, 1200))
	second := record(t, e, model.SkippedBreak(day(6), 6, 1200))

	path, err := e.ExportCSV(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/exports/blinky_export_20240106_143005.csv", path)

	f, err := fs.Open(path)
	require.NoError(t, err)
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, f.Close())
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"id", "started_at", "duration_seconds", "completed", "skipped", "preceding_work_seconds"}, rows[0])
	assert.Equal(t, []string{"1", "2024-01-05T10:00:00Z", "20", "true", "false", "1200"}, rows[1])
	assert.Equal(t, "2", rows[2][0])
	assert.Equal(t, "true", rows[2][4])
	assert.Equal(t, first.ID+1, second.ID)

	// same second: a second export must not overwrite the first
	again, err := e.ExportCSV(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, path, again)

	require.NoError(t, e.ClearAll(context.Background()))

	s := e.Summary()
	assert.Zero(t, s.LifetimeBreaks)
	assert.Zero(t, s.LifetimeRestSeconds)
	assert.Zero(t, s.CurrentDayStreak)
	assert.Zero(t, s.BestDayStreak)
	assert.Equal(t, model.DailyStats{Date: "2024-01-06"}, s.Today)
	for _, d := range s.Last30Days {
		assert.Zero(t, d.BreaksCompleted+d.BreaksSkipped)
	}
	history, err := e.BreakHistory(context.Background(), 10, 0)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestClearAllRollsBackWhenExtraStepFails(t *testing.T) {
	e, _ := setupEngine(t, setupStore(t), &testClock{t: day(2)})
	record(t, e, model.CompletedBreak(day(2), 20, 0))

	boom := errors.New("boom")
	err := e.ClearAll(context.Background(), func(context.Context) error { return boom })
	require.Error(t, err)
	assert.True(t, model.IsPersistence(err))
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, 1, e.Summary().LifetimeBreaks)
	history, err := e.BreakHistory(context.Background(), 10, 0)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

// flakyStore fails break inserts while down is set.
type flakyStore struct {
	storage.Storage
	down bool
}

func (s *flakyStore) SaveBreak(ctx context.Context, r model.BreakRecord) (int64, error) {
	if s.down {
		return 0, errors.New("disk I/O error")
	}
	return s.Storage.SaveBreak(ctx, r)
}

func TestFailedWriteIsRetriedOnNextRecord(t *testing.T) {
	store := &flakyStore{Storage: setupStore(t)}
	e, _ := setupEngine(t, store, &testClock{t: day(2)})

	store.down = true
	_, err := e.RecordBreak(context.Background(), model.CompletedBreak(day(2), 20, 0))
	require.Error(t, err)
	assert.True(t, model.IsPersistence(err))
	assert.Equal(t, 1, e.Pending())
	assert.Zero(t, e.Summary().LifetimeBreaks)

	store.down = false
	saved := record(t, e, model.CompletedBreak(day(2).Add(time.Minute), 30, 0))
	assert.Equal(t, int64(2), saved.ID)
	assert.Zero(t, e.Pending())
	assert.Equal(t, 2, e.Summary().LifetimeBreaks)
	assert.Equal(t, 50, e.Summary().LifetimeRestSeconds)

	history, err := e.BreakHistory(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 20, history[1].DurationSeconds, "queued record keeps its place")
}

func TestFlushDrainsQueue(t *testing.T) {
	store := &flakyStore{Storage: setupStore(t)}
	e, _ := setupEngine(t, store, &testClock{t: day(2)})

	store.down = true
	_, err := e.RecordBreak(context.Background(), model.SkippedBreak(day(2), 2, 0))
	require.Error(t, err)

	store.down = false
	require.NoError(t, e.Flush(context.Background()))
	assert.Zero(t, e.Pending())
	assert.Equal(t, 1, e.Summary().Today.BreaksSkipped)
}

func TestRecordBreakRejectsInvalidRecord(t *testing.T) {
	e, _ := setupEngine(t, setupStore(t), &testClock{t: day(2)})
	_, err := e.RecordBreak(context.Background(), model.BreakRecord{StartedAt: day(2)})
	assert.True(t, model.IsValidation(err))
	assert.Zero(t, e.Pending())
}

func TestLoadRebuildsMissingCache(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	for _, n := range []int{1, 2, 4} {
		for i := 0; i < testGoal; i++ {
			_, err := store.SaveBreak(ctx, model.CompletedBreak(day(n).Add(time.Duration(i)*time.Minute), 20, 0))
			require.NoError(t, err)
		}
	}

	e, _ := setupEngine(t, store, &testClock{t: day(4)})
	s := e.Summary()
	assert.Equal(t, 6, s.LifetimeBreaks)
	assert.Equal(t, 2, s.BestDayStreak)
	assert.Equal(t, 1, s.CurrentDayStreak)

	rows, err := store.AllDailyStats(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestSealDay(t *testing.T) {
	store := setupStore(t)
	clock := &testClock{t: day(3)}
	e, _ := setupEngine(t, store, clock)
	record(t, e, model.CompletedBreak(day(3), 20, 0))

	clock.t = day(4)
	require.NoError(t, e.SealDay(context.Background(), "2024-01-03"))

	rows, err := store.AllDailyStats(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "2024-01-03", rows[0].Date)
	assert.Equal(t, 1, rows[0].BreaksCompleted)
	assert.Zero(t, e.CompletedToday())
}
