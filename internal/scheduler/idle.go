package scheduler

import (
	"time"

	"blinky/internal/event"
	"blinky/internal/model"
)

func (s *Scheduler) idleCheckDueLocked(now time.Time) bool {
	if s.lastIdleCheck.IsZero() || now.Sub(s.lastIdleCheck) >= s.idleCheckInterval {
		return true
	}
	return now.Before(s.lastIdleCheck)
}

// userIdleLocked reports whether idle time has reached the configured
// threshold. A disabled threshold or a failed read counts as present.
func (s *Scheduler) userIdleLocked(now time.Time) bool {
	s.lastIdleCheck = now

	threshold := s.prefs.Get().IdleThresholdSeconds()
	if threshold <= 0 || s.idle == nil {
		return false
	}
	idle, err := s.idle.IdleSeconds()
	if err != nil {
		if s.warn.Allow() {
			s.log.Warn().Err(err).Msg("failed to read idle time, assuming user is present")
		}
		return false
	}
	return idle >= threshold
}

func (s *Scheduler) suspendLocked() {
	s.state.ResumePhase = model.PhaseWorking
	s.state.Phase = model.PhaseSuspended
	s.carry = 0
	s.log.Info().Int("remaining", s.state.SecondsRemaining).Msg("user idle, work timer suspended")
}

func (s *Scheduler) unsuspendLocked() {
	s.state.Phase = model.PhaseWorking
	s.state.ResumePhase = ""
	s.carry = 0
	s.log.Info().Int("remaining", s.state.SecondsRemaining).Msg("user back, work timer resumed")
}

// TriggerDemoBreak runs a short sample break for a user who has not finished
// onboarding. It records nothing and puts the timer back exactly as it was.
// It reports false when onboarding is done or a break is already running.
func (s *Scheduler) TriggerDemoBreak() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.prefs.Onboarding().Completed || s.state.Phase == model.PhaseBreaking || s.preDemo != nil {
		return false
	}

	now := s.clock.Now()
	saved := s.state
	s.preDemo = &saved

	secs := int(s.demoDuration / time.Second)
	if secs < 1 {
		secs = 1
	}
	s.state = model.TimerState{
		Phase:                model.PhaseBreaking,
		SecondsRemaining:     secs,
		PhaseDuration:        secs,
		PhaseStartedAt:       now,
		BreaksCompletedToday: saved.BreaksCompletedToday,
		Demo:                 true,
	}
	s.lastTick = now
	s.carry = 0
	s.publishLocked(event.TypeBreakStarted, now)
	return true
}

func (s *Scheduler) finishDemoLocked(now time.Time, t event.Type) {
	restored := model.TimerState{}
	if s.preDemo != nil {
		restored = *s.preDemo
	}
	restored.BreaksCompletedToday = s.state.BreaksCompletedToday
	// onboarding finished while the demo ran: the held timer starts for real
	resume := restored.Phase == model.PhasePaused && restored.ResumePhase == model.PhaseWorking &&
		s.prefs.Onboarding().Completed
	if resume {
		restored.Phase = model.PhaseWorking
		restored.ResumePhase = ""
	}
	s.preDemo = nil
	s.state = restored
	s.carry = 0

	e := event.TimerEvent(t, s.state, now)
	e.Demo = true
	s.bus.Publish(e)
	if resume {
		s.lastTick = now
		s.publishLocked(event.TypeTimerResumed, now)
	}
}
