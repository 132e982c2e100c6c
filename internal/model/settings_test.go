package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClampBoundsEveryField(t *testing.T) {
	s := UserSettings{
		WorkIntervalMinutes:  500,
		BreakDurationSeconds: 1,
		SoundVolume:          3.5,
		DailyGoal:            0,
		IdlePauseMinutes:     -4,
		Theme:                "neon",
	}.Clamp()

	assert.Equal(t, MaxWorkIntervalMinutes, s.WorkIntervalMinutes)
	assert.Equal(t, MinBreakDurationSeconds, s.BreakDurationSeconds)
	assert.Equal(t, 1.0, s.SoundVolume)
	assert.Equal(t, MinDailyGoal, s.DailyGoal)
	assert.Equal(t, 0, s.IdlePauseMinutes)
	assert.Equal(t, ThemeSystem, s.Theme)
}

func TestClampNaNVolumeFallsBackToDefault(t *testing.T) {
	s := DefaultSettings()
	s.SoundVolume = math.NaN()
	assert.Equal(t, DefaultSettings().SoundVolume, s.Clamp().SoundVolume)
}

func TestDefaultsAreAlreadyClamped(t *testing.T) {
	assert.Equal(t, DefaultSettings(), DefaultSettings().Clamp())
}

func TestDecodeSettingsPatchCoercesValues(t *testing.T) {
	p, err := DecodeSettingsPatch(map[string]any{
		"work_interval_minutes": float64(25),
		"break_duration_seconds": "30",
		"sound_enabled":         "false",
		"sound_volume":          "0.25",
		"theme":                 " Dark ",
	})
	require.NoError(t, err)

	got := p.Apply(DefaultSettings())
	assert.Equal(t, 25, got.WorkIntervalMinutes)
	assert.Equal(t, 30, got.BreakDurationSeconds)
	assert.False(t, got.SoundEnabled)
	assert.InDelta(t, 0.25, got.SoundVolume, 1e-9)
	assert.Equal(t, ThemeDark, got.Theme)
	// untouched fields keep their value
	assert.Equal(t, DefaultSettings().DailyGoal, got.DailyGoal)
}

func TestDecodeSettingsPatchRejectsMalformedInput(t *testing.T) {
	cases := map[string]map[string]any{
		"fractional int":  {"daily_goal": 2.5},
		"word for int":    {"work_interval_minutes": "twenty"},
		"word for bool":   {"overlay_enabled": "maybe"},
		"number as theme": {"theme": 3},
		"unknown key":     {"snooze": true},
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeSettingsPatch(raw)
			require.Error(t, err)
			assert.True(t, IsValidation(err))
		})
	}
}

func TestApplyClampsOutOfRangePatch(t *testing.T) {
	interval := 0
	goal := 1000
	got := SettingsPatch{WorkIntervalMinutes: &interval, DailyGoal: &goal}.Apply(DefaultSettings())
	assert.Equal(t, MinWorkIntervalMinutes, got.WorkIntervalMinutes)
	assert.Equal(t, MaxDailyGoal, got.DailyGoal)
}

func TestHugeNumbersClampToTheNearestBound(t *testing.T) {
	p, err := DecodeSettingsPatch(map[string]any{
		"work_interval_minutes":  1e20,
		"break_duration_seconds": -1e20,
		"daily_goal":             float64(math.MaxInt64),
	})
	require.NoError(t, err)

	got := p.Apply(DefaultSettings())
	assert.Equal(t, MaxWorkIntervalMinutes, got.WorkIntervalMinutes)
	assert.Equal(t, MinBreakDurationSeconds, got.BreakDurationSeconds)
	assert.Equal(t, MaxDailyGoal, got.DailyGoal)
}

func TestEmptyPatch(t *testing.T) {
	assert.True(t, SettingsPatch{}.Empty())
	assert.False(t, FullPatch(DefaultSettings()).Empty())
	assert.Equal(t, DefaultSettings(), FullPatch(DefaultSettings()).Apply(UserSettings{}))
}
