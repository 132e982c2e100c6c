package event

import (
	"time"

	"blinky/internal/model"
)

type Type string

const (
	TypeTimerTick            Type = "timer-tick"
	TypeBreakStarted         Type = "break-started"
	TypeBreakCompleted       Type = "break-completed"
	TypeBreakSkipped         Type = "break-skipped"
	TypeTimerPaused          Type = "timer-paused"
	TypeTimerResumed         Type = "timer-resumed"
	TypeSettingsChanged      Type = "settings-changed"
	TypeOnboardingCompleted  Type = "onboarding-completed"
	TypeFirstBreakCelebrated Type = "first-break-celebrated"
)

// AllTypes lists every event the daemon emits.
var AllTypes = []Type{
	TypeTimerTick,
	TypeBreakStarted,
	TypeBreakCompleted,
	TypeBreakSkipped,
	TypeTimerPaused,
	TypeTimerResumed,
	TypeSettingsChanged,
	TypeOnboardingCompleted,
	TypeFirstBreakCelebrated,
}

func (t Type) Valid() bool {
	for _, known := range AllTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Event is pushed to every subscriber. Only the payload relevant to Type is set.
type Event struct {
	Type       Type                   `json:"type"`
	Time       time.Time              `json:"time"`
	Timer      *model.TimerState      `json:"timer,omitempty"`
	Settings   *model.UserSettings    `json:"settings,omitempty"`
	Onboarding *model.OnboardingState `json:"onboarding,omitempty"`
	Demo       bool                   `json:"demo,omitempty"`
}

func TimerEvent(t Type, state model.TimerState, now time.Time) Event {
	return Event{Type: t, Time: now, Timer: &state, Demo: state.Demo}
}
