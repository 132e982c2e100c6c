package model

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/spf13/cast"
)

type Theme string

const (
	ThemeSystem Theme = "system"
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
)

// Clamp bounds for UserSettings.
const (
	MinWorkIntervalMinutes  = 1
	MaxWorkIntervalMinutes  = 120
	MinBreakDurationSeconds = 5
	MaxBreakDurationSeconds = 300
	MinDailyGoal            = 1
	MaxDailyGoal            = 100
	MaxIdlePauseMinutes     = 120
)

// UserSettings is the single durable settings row.
type UserSettings struct {
	WorkIntervalMinutes  int     `json:"work_interval_minutes" yaml:"work_interval_minutes"`
	BreakDurationSeconds int     `json:"break_duration_seconds" yaml:"break_duration_seconds"`
	SoundEnabled         bool    `json:"sound_enabled" yaml:"sound_enabled"`
	SoundVolume          float64 `json:"sound_volume" yaml:"sound_volume"`
	NotificationEnabled  bool    `json:"notification_enabled" yaml:"notification_enabled"`
	OverlayEnabled       bool    `json:"overlay_enabled" yaml:"overlay_enabled"`
	LaunchAtLogin        bool    `json:"launch_at_login" yaml:"launch_at_login"`
	DailyGoal            int     `json:"daily_goal" yaml:"daily_goal"`
	IdlePauseMinutes     int     `json:"idle_pause_minutes" yaml:"idle_pause_minutes"`
	Theme                Theme   `json:"theme" yaml:"theme"`
}

func DefaultSettings() UserSettings {
	return UserSettings{
		WorkIntervalMinutes:  20,
		BreakDurationSeconds: 20,
		SoundEnabled:         true,
		SoundVolume:          0.7,
		NotificationEnabled:  true,
		OverlayEnabled:       true,
		LaunchAtLogin:        false,
		DailyGoal:            24,
		IdlePauseMinutes:     5,
		Theme:                ThemeSystem,
	}
}

// WorkSeconds is the length of a fresh Working phase.
func (s UserSettings) WorkSeconds() int { return s.WorkIntervalMinutes * 60 }

// IdleThresholdSeconds is 0 when idle suspension is disabled.
func (s UserSettings) IdleThresholdSeconds() int { return s.IdlePauseMinutes * 60 }

// Clamp returns a copy with every numeric field inside its range and an
// unknown theme replaced by ThemeSystem.
func (s UserSettings) Clamp() UserSettings {
	s.WorkIntervalMinutes = clampInt(s.WorkIntervalMinutes, MinWorkIntervalMinutes, MaxWorkIntervalMinutes)
	s.BreakDurationSeconds = clampInt(s.BreakDurationSeconds, MinBreakDurationSeconds, MaxBreakDurationSeconds)
	s.DailyGoal = clampInt(s.DailyGoal, MinDailyGoal, MaxDailyGoal)
	s.IdlePauseMinutes = clampInt(s.IdlePauseMinutes, 0, MaxIdlePauseMinutes)
	if math.IsNaN(s.SoundVolume) {
		s.SoundVolume = DefaultSettings().SoundVolume
	}
	s.SoundVolume = math.Min(1, math.Max(0, s.SoundVolume))
	switch s.Theme {
	case ThemeSystem, ThemeLight, ThemeDark:
	default:
		s.Theme = ThemeSystem
	}
	return s
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// SettingsPatch is a partial update. Nil fields are left untouched.
type SettingsPatch struct {
	WorkIntervalMinutes  *int
	BreakDurationSeconds *int
	SoundEnabled         *bool
	SoundVolume          *float64
	NotificationEnabled  *bool
	OverlayEnabled       *bool
	LaunchAtLogin        *bool
	DailyGoal            *int
	IdlePauseMinutes     *int
	Theme                *Theme
}

func (p SettingsPatch) Empty() bool {
	return p == SettingsPatch{}
}

// Apply merges the patch over s and clamps the result.
func (p SettingsPatch) Apply(s UserSettings) UserSettings {
	if p.WorkIntervalMinutes != nil {
		s.WorkIntervalMinutes = *p.WorkIntervalMinutes
	}
	if p.BreakDurationSeconds != nil {
		s.BreakDurationSeconds = *p.BreakDurationSeconds
	}
	if p.SoundEnabled != nil {
		s.SoundEnabled = *p.SoundEnabled
	}
	if p.SoundVolume != nil {
		s.SoundVolume = *p.SoundVolume
	}
	if p.NotificationEnabled != nil {
		s.NotificationEnabled = *p.NotificationEnabled
	}
	if p.OverlayEnabled != nil {
		s.OverlayEnabled = *p.OverlayEnabled
	}
	if p.LaunchAtLogin != nil {
		s.LaunchAtLogin = *p.LaunchAtLogin
	}
	if p.DailyGoal != nil {
		s.DailyGoal = *p.DailyGoal
	}
	if p.IdlePauseMinutes != nil {
		s.IdlePauseMinutes = *p.IdlePauseMinutes
	}
	if p.Theme != nil {
		s.Theme = *p.Theme
	}
	return s.Clamp()
}

// FullPatch turns a complete settings value into a patch that sets every field.
func FullPatch(s UserSettings) SettingsPatch {
	return SettingsPatch{
		WorkIntervalMinutes:  &s.WorkIntervalMinutes,
		BreakDurationSeconds: &s.BreakDurationSeconds,
		SoundEnabled:         &s.SoundEnabled,
		SoundVolume:          &s.SoundVolume,
		NotificationEnabled:  &s.NotificationEnabled,
		OverlayEnabled:       &s.OverlayEnabled,
		LaunchAtLogin:        &s.LaunchAtLogin,
		DailyGoal:            &s.DailyGoal,
		IdlePauseMinutes:     &s.IdlePauseMinutes,
		Theme:                &s.Theme,
	}
}

// DecodeSettingsPatch builds a patch from a loosely typed map such as a decoded
// JSON object or CLI key=value pairs. Values are coerced per field; a value of
// the wrong kind or an unknown key is a ValidationError.
func DecodeSettingsPatch(raw map[string]any) (SettingsPatch, error) {
	var p SettingsPatch

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		v := raw[key]
		switch key {
		case "work_interval_minutes":
			n, err := toInt(key, v)
			if err != nil {
				return p, err
			}
			p.WorkIntervalMinutes = &n
		case "break_duration_seconds":
			n, err := toInt(key, v)
			if err != nil {
				return p, err
			}
			p.BreakDurationSeconds = &n
		case "daily_goal":
			n, err := toInt(key, v)
			if err != nil {
				return p, err
			}
			p.DailyGoal = &n
		case "idle_pause_minutes":
			n, err := toInt(key, v)
			if err != nil {
				return p, err
			}
			p.IdlePauseMinutes = &n
		case "sound_volume":
			f, err := cast.ToFloat64E(v)
			if err != nil {
				return p, &ValidationError{Field: key, Reason: "expected a number"}
			}
			p.SoundVolume = &f
		case "sound_enabled":
			b, err := toBool(key, v)
			if err != nil {
				return p, err
			}
			p.SoundEnabled = &b
		case "notification_enabled":
			b, err := toBool(key, v)
			if err != nil {
				return p, err
			}
			p.NotificationEnabled = &b
		case "overlay_enabled":
			b, err := toBool(key, v)
			if err != nil {
				return p, err
			}
			p.OverlayEnabled = &b
		case "launch_at_login":
			b, err := toBool(key, v)
			if err != nil {
				return p, err
			}
			p.LaunchAtLogin = &b
		case "theme":
			s, ok := v.(string)
			if !ok {
				return p, &ValidationError{Field: key, Reason: "expected a string"}
			}
			t := Theme(strings.ToLower(strings.TrimSpace(s)))
			p.Theme = &t
		default:
			return p, &ValidationError{Field: key, Reason: "unknown setting"}
		}
	}
	return p, nil
}

func toInt(key string, v any) (int, error) {
	if f, ok := v.(float64); ok {
		// JSON numbers arrive as float64; reject fractions rather than truncating.
		if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
			return 0, &ValidationError{Field: key, Reason: fmt.Sprintf("expected an integer, got %v", f)}
		}
		// out of range is clamped later; keep the value representable until then
		v = math.Max(math.MinInt32, math.Min(math.MaxInt32, f))
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		return 0, &ValidationError{Field: key, Reason: "expected an integer"}
	}
	return n, nil
}

func toBool(key string, v any) (bool, error) {
	b, err := cast.ToBoolE(v)
	if err != nil {
		return false, &ValidationError{Field: key, Reason: "expected a boolean"}
	}
	return b, nil
}
