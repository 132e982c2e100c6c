package model

import "time"

type Phase string

const (
	PhaseWorking   Phase = "working"
	PhaseBreaking  Phase = "breaking"
	PhasePaused    Phase = "paused"
	PhaseSuspended Phase = "suspended"
)

// Frozen reports whether the countdown is stopped in this phase.
func (p Phase) Frozen() bool {
	return p == PhasePaused || p == PhaseSuspended
}

// TimerState is a snapshot of the break scheduler.
type TimerState struct {
	Phase                Phase     `json:"phase" yaml:"phase"`
	SecondsRemaining     int       `json:"seconds_remaining" yaml:"seconds_remaining"`
	PhaseDuration        int       `json:"phase_duration" yaml:"phase_duration"`
	PhaseStartedAt       time.Time `json:"phase_started_at" yaml:"phase_started_at"`
	BreaksCompletedToday int       `json:"breaks_completed_today" yaml:"breaks_completed_today"`
	// ResumePhase is the phase a paused or suspended timer returns to.
	ResumePhase Phase `json:"resume_phase,omitempty" yaml:"resume_phase,omitempty"`
	Demo        bool  `json:"demo,omitempty" yaml:"demo,omitempty"`
}
