package scheduler

import (
	"context"
	"time"

	"blinky/internal/model"
)

// Clock supplies wall time. Tests drive the scheduler with a fake.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the real wall clock.
var SystemClock Clock = systemClock{}

// IdleReader reports how long the user has been away from the keyboard and mouse.
type IdleReader interface {
	IdleSeconds() (int, error)
}

// Recorder persists resolved breaks.
type Recorder interface {
	RecordBreak(ctx context.Context, r model.BreakRecord) (model.BreakRecord, error)
}

// Preferences is the slice of the configuration store the scheduler reads.
type Preferences interface {
	Get() model.UserSettings
	Onboarding() model.OnboardingState
	MarkFirstBreakCompleted(ctx context.Context) (bool, error)
}
