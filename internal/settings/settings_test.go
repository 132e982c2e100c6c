package settings

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blinky/internal/event"
	"blinky/internal/model"
	"blinky/internal/storage"
	sqlitestore "blinky/internal/storage/sqlite"
)

var fixedNow = time.Date(2024, 4, 2, 9, 30, 0, 0, time.UTC)

func setupStore(t *testing.T) storage.Storage {
	t.Helper()
	store := sqlitestore.NewSQLiteStore(filepath.Join(t.TempDir(), "settings.db"), zerolog.Nop())
	require.NoError(t, store.Init(context.Background()))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newStore(t *testing.T, backing storage.Storage, autostart func(bool) error) (*Store, <-chan event.Event) {
	t.Helper()
	bus := event.NewBus(zerolog.Nop())
	events, unsub := bus.Subscribe(32)
	t.Cleanup(unsub)

	s := New(backing, bus, Options{
		Location:  time.UTC,
		Now:       func() time.Time { return fixedNow },
		Autostart: autostart,
	}, zerolog.Nop())
	require.NoError(t, s.Load(context.Background()))
	return s, events
}

func TestLoadWritesDefaultsOnFreshDatabase(t *testing.T) {
	backing := setupStore(t)
	s, _ := newStore(t, backing, nil)

	assert.Equal(t, model.DefaultSettings(), s.Get())
	_, found, err := backing.LoadSettings(context.Background())
	require.NoError(t, err)
	assert.True(t, found)
}

func TestUpdateClampsPersistsAndAnnounces(t *testing.T) {
	backing := setupStore(t)
	var autostartCalls []bool
	s, events := newStore(t, backing, func(enabled bool) error {
		autostartCalls = append(autostartCalls, enabled)
		return nil
	})

	patch, err := model.DecodeSettingsPatch(map[string]any{
		"work_interval_minutes": 600,
		"launch_at_login":       true,
	})
	require.NoError(t, err)

	got, err := s.Update(context.Background(), patch)
	require.NoError(t, err)
	assert.Equal(t, model.MaxWorkIntervalMinutes, got.WorkIntervalMinutes)
	assert.True(t, got.LaunchAtLogin)
	assert.Equal(t, got, s.Get())

	e := <-events
	assert.Equal(t, event.TypeSettingsChanged, e.Type)
	require.NotNil(t, e.Settings)
	assert.Equal(t, got, *e.Settings)

	stored, _, err := backing.LoadSettings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, got, stored)

	// unchanged login flag does not touch the login item again
	volume := 0.1
	_, err = s.Update(context.Background(), model.SettingsPatch{SoundVolume: &volume})
	require.NoError(t, err)
	assert.Equal(t, []bool{true}, autostartCalls)
}

func TestAutostartFailureDoesNotFailUpdate(t *testing.T) {
	s, _ := newStore(t, setupStore(t), func(bool) error { return errors.New("no desktop session") })
	enable := true
	got, err := s.Update(context.Background(), model.SettingsPatch{LaunchAtLogin: &enable})
	require.NoError(t, err)
	assert.True(t, got.LaunchAtLogin)
}

type brokenStore struct {
	storage.Storage
	down bool
}

func (b *brokenStore) SaveSettings(ctx context.Context, st model.UserSettings) error {
	if b.down {
		return errors.New("database is locked")
	}
	return b.Storage.SaveSettings(ctx, st)
}

func TestUpdateKeepsValueInMemoryAndRetriesWrite(t *testing.T) {
	backing := &brokenStore{Storage: setupStore(t)}
	s, _ := newStore(t, backing, nil)

	backing.down = true
	goal := 10
	got, err := s.Update(context.Background(), model.SettingsPatch{DailyGoal: &goal})
	require.Error(t, err)
	assert.True(t, model.IsPersistence(err))
	assert.Equal(t, 10, got.DailyGoal)
	assert.Equal(t, 10, s.Get().DailyGoal)

	// next mutation of any row flushes the pending settings write
	backing.down = false
	_, err = s.MarkTooltipSeen(context.Background(), "tray")
	require.NoError(t, err)

	stored, _, err := backing.LoadSettings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, stored.DailyGoal)
}

func TestOnboardingLifecycle(t *testing.T) {
	backing := setupStore(t)
	s, events := newStore(t, backing, nil)
	ctx := context.Background()

	assert.False(t, s.Onboarding().Completed)
	assert.False(t, s.Onboarding().IsFirstDay)

	state, changed, err := s.CompleteOnboarding(ctx)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, state.Completed)
	assert.True(t, state.IsFirstDay)
	require.NotNil(t, state.CompletedAt)
	assert.True(t, fixedNow.Equal(*state.CompletedAt))

	e := <-events
	assert.Equal(t, event.TypeOnboardingCompleted, e.Type)

	_, changed, err = s.CompleteOnboarding(ctx)
	require.NoError(t, err)
	assert.False(t, changed)

	seen, err := s.MarkTooltipSeen(ctx, "stats")
	require.NoError(t, err)
	seen, err = s.MarkTooltipSeen(ctx, "stats")
	require.NoError(t, err)
	seen, err = s.MarkTooltipSeen(ctx, "tray")
	require.NoError(t, err)
	assert.Equal(t, []string{"stats", "tray"}, seen)

	_, err = s.MarkTooltipSeen(ctx, "")
	assert.True(t, model.IsValidation(err))

	first, err := s.MarkFirstBreakCompleted(ctx)
	require.NoError(t, err)
	assert.True(t, first)
	first, err = s.MarkFirstBreakCompleted(ctx)
	require.NoError(t, err)
	assert.False(t, first)

	// a second store over the same database sees everything
	reloaded, _ := newStore(t, backing, nil)
	ob := reloaded.Onboarding()
	assert.True(t, ob.Completed)
	assert.True(t, ob.FirstBreakCompleted)
	assert.Equal(t, []string{"stats", "tray"}, ob.TooltipsSeen)

	require.NoError(t, s.ResetOnboarding(ctx))
	ob = s.Onboarding()
	assert.False(t, ob.Completed)
	assert.Nil(t, ob.CompletedAt)
	assert.Empty(t, ob.TooltipsSeen)
	assert.False(t, ob.FirstBreakCompleted)
}

func TestSettingsUpdateNeverTouchesOnboarding(t *testing.T) {
	s, _ := newStore(t, setupStore(t), nil)
	ctx := context.Background()
	_, _, err := s.CompleteOnboarding(ctx)
	require.NoError(t, err)

	_, err = s.Update(ctx, model.FullPatch(model.DefaultSettings()))
	require.NoError(t, err)
	assert.True(t, s.Onboarding().Completed)
}

type countingStore struct {
	storage.Storage
	onboardingWrites int
}

func (c *countingStore) SaveOnboarding(ctx context.Context, st model.OnboardingState) error {
	c.onboardingWrites++
	return c.Storage.SaveOnboarding(ctx, st)
}

func TestAdoptOnboardingDoesNotWrite(t *testing.T) {
	backing := &countingStore{Storage: setupStore(t)}
	s, _ := newStore(t, backing, nil)
	ctx := context.Background()

	_, _, err := s.CompleteOnboarding(ctx)
	require.NoError(t, err)
	writes := backing.onboardingWrites

	s.AdoptOnboarding(model.OnboardingState{})
	assert.Equal(t, writes, backing.onboardingWrites)
	ob := s.Onboarding()
	assert.False(t, ob.Completed)
	assert.NotNil(t, ob.TooltipsSeen)

	// the stored row is the caller's business
	stored, err := backing.LoadOnboarding(ctx)
	require.NoError(t, err)
	assert.True(t, stored.Completed)
}
