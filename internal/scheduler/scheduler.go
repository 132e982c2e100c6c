// Package scheduler runs the work/break cycle. One mutex guards the timer
// state; the tick loop and every command go through it, and events are
// published while it is held so subscribers see them in order. Resolved
// breaks are queued under that mutex and written after it is released.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"
	"golang.org/x/time/rate"

	"blinky/internal/event"
	"blinky/internal/model"
)

const (
	DefaultTickInterval      = time.Second
	DefaultIdleCheckInterval = 30 * time.Second
	DefaultDemoDuration      = 5 * time.Second

	recordTimeout = 5 * time.Second
)

type Options struct {
	Clock       Clock
	Idle        IdleReader
	Recorder    Recorder
	Preferences Preferences
	Bus         event.Publisher
	Location    *time.Location

	TickInterval      time.Duration
	IdleCheckInterval time.Duration
	DemoDuration      time.Duration
}

type Scheduler struct {
	clock    Clock
	idle     IdleReader
	recorder Recorder
	prefs    Preferences
	bus      event.Publisher
	loc      *time.Location
	log      zerolog.Logger
	warn     *rate.Limiter

	tickInterval      time.Duration
	idleCheckInterval time.Duration
	demoDuration      time.Duration

	mu            sync.Mutex
	state         model.TimerState
	day           string
	lastTick      time.Time
	lastIdleCheck time.Time
	// carry holds the sub-second part of elapsed time not yet applied.
	carry         time.Duration
	precedingWork int
	preDemo       *model.TimerState
	resolved      []model.BreakRecord

	// recMu keeps resolved breaks reaching the recorder in order.
	recMu sync.Mutex

	cancel context.CancelFunc
	done   chan struct{}
}

func New(opts Options, log zerolog.Logger) *Scheduler {
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}
	if opts.Bus == nil {
		opts.Bus = event.Discard{}
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.IdleCheckInterval <= 0 {
		opts.IdleCheckInterval = DefaultIdleCheckInterval
	}
	if opts.DemoDuration <= 0 {
		opts.DemoDuration = DefaultDemoDuration
	}

	s := &Scheduler{
		clock:             opts.Clock,
		idle:              opts.Idle,
		recorder:          opts.Recorder,
		prefs:             opts.Preferences,
		bus:               opts.Bus,
		loc:               opts.Location,
		log:               log.With().Str("component", "scheduler").Logger(),
		warn:              rate.NewLimiter(rate.Every(time.Minute), 1),
		tickInterval:      opts.TickInterval,
		idleCheckInterval: opts.IdleCheckInterval,
		demoDuration:      opts.DemoDuration,
	}

	now := s.clock.Now()
	s.day = model.DayKey(now, s.loc)
	s.lastTick = now
	s.enterWorkLocked(now)
	if !s.prefs.Onboarding().Completed {
		s.state.ResumePhase = model.PhaseWorking
		s.state.Phase = model.PhasePaused
	}
	return s
}

// Start drives Tick from a ticker until ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.log.Info().Dur("interval", s.tickInterval).Str("phase", string(s.State().Phase)).Msg("starting scheduler")
	go s.runLoop(ctx)
}

func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
}

func (s *Scheduler) runLoop(ctx context.Context) {
	defer close(s.done)
	defer s.log.Info().Msg("scheduler loop stopped")

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(s.clock.Now())
		}
	}
}

func (s *Scheduler) State() model.TimerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Tick advances the countdown by the wall time since the previous tick and
// emits a timer-tick snapshot. A break completed by this tick is written
// before Tick returns, without holding the state lock.
func (s *Scheduler) Tick(now time.Time) model.TimerState {
	s.mu.Lock()
	st := s.tickLocked(now)
	s.mu.Unlock()

	_ = s.recordResolved(now)
	return st
}

func (s *Scheduler) tickLocked(now time.Time) model.TimerState {
	delta := now.Sub(s.lastTick)
	if delta < 0 {
		delta = 0
	}
	s.lastTick = now
	s.rolloverLocked(now)

	switch s.state.Phase {
	case model.PhaseWorking:
		if s.idleCheckDueLocked(now) && s.userIdleLocked(now) {
			s.suspendLocked()
			break
		}
		s.advanceLocked(now, delta)
	case model.PhaseBreaking:
		s.advanceLocked(now, delta)
	case model.PhaseSuspended:
		if !s.userIdleLocked(now) {
			s.unsuspendLocked()
		}
	}

	s.publishLocked(event.TypeTimerTick, now)
	return s.state
}

func (s *Scheduler) advanceLocked(now time.Time, delta time.Duration) {
	s.carry += delta
	secs := int(s.carry / time.Second)
	if secs == 0 {
		return
	}
	s.carry -= time.Duration(secs) * time.Second

	s.state.SecondsRemaining -= secs
	if s.state.SecondsRemaining > 0 {
		return
	}
	s.state.SecondsRemaining = 0
	s.carry = 0

	switch s.state.Phase {
	case model.PhaseWorking:
		s.startBreakLocked(now)
	case model.PhaseBreaking:
		if s.state.Demo {
			s.finishDemoLocked(now, event.TypeBreakCompleted)
			return
		}
		s.completeBreakLocked(now)
	}
}

func (s *Scheduler) enterWorkLocked(now time.Time) {
	work := s.prefs.Get().WorkSeconds()
	s.state = model.TimerState{
		Phase:                model.PhaseWorking,
		SecondsRemaining:     work,
		PhaseDuration:        work,
		PhaseStartedAt:       now,
		BreaksCompletedToday: s.state.BreaksCompletedToday,
	}
	s.carry = 0
}

func (s *Scheduler) startBreakLocked(now time.Time) {
	s.precedingWork = s.state.PhaseDuration
	dur := s.prefs.Get().BreakDurationSeconds
	s.state = model.TimerState{
		Phase:                model.PhaseBreaking,
		SecondsRemaining:     dur,
		PhaseDuration:        dur,
		PhaseStartedAt:       now,
		BreaksCompletedToday: s.state.BreaksCompletedToday,
	}
	s.carry = 0
	s.log.Debug().Int("seconds", dur).Msg("break started")
	s.publishLocked(event.TypeBreakStarted, now)
}

func (s *Scheduler) completeBreakLocked(now time.Time) {
	rec := model.CompletedBreak(s.resolvedStartLocked(now), s.state.PhaseDuration, s.precedingWork)
	s.state.BreaksCompletedToday++
	s.enterWorkLocked(now)
	s.publishLocked(event.TypeBreakCompleted, now)
	s.resolved = append(s.resolved, rec)
}

// resolvedStartLocked dates the break being resolved. A break that began
// before local midnight is filed under the day it ended in, so a finished
// day's row is never rewritten and the daily counter matches today's row.
func (s *Scheduler) resolvedStartLocked(now time.Time) time.Time {
	started := s.state.PhaseStartedAt
	if midnight := model.StartOfDay(now, s.loc); started.Before(midnight) {
		return midnight
	}
	return started
}

// recordResolved writes queued breaks in order. The tick has nobody to
// report a failed write to; the recorder keeps it queued for a retry.
func (s *Scheduler) recordResolved(now time.Time) error {
	s.recMu.Lock()
	defer s.recMu.Unlock()

	s.mu.Lock()
	batch := s.resolved
	s.resolved = nil
	s.mu.Unlock()

	var errs error
	for _, rec := range batch {
		errs = multierr.Append(errs, s.record(rec))
		if rec.Completed {
			s.celebrateFirstBreak(now)
		}
	}
	return errs
}

func (s *Scheduler) record(rec model.BreakRecord) error {
	if s.recorder == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if _, err := s.recorder.RecordBreak(ctx, rec); err != nil {
		s.log.Warn().Err(err).Bool("completed", rec.Completed).Msg("failed to record break, will retry")
		return err
	}
	return nil
}

func (s *Scheduler) celebrateFirstBreak(now time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	first, err := s.prefs.MarkFirstBreakCompleted(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to save first break flag")
	}
	if first {
		s.mu.Lock()
		s.publishLocked(event.TypeFirstBreakCelebrated, now)
		s.mu.Unlock()
	}
}

// Pause freezes a running countdown. It does nothing when already frozen.
func (s *Scheduler) Pause() model.TimerState {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Phase.Frozen() {
		return s.state
	}
	s.state.ResumePhase = s.state.Phase
	s.state.Phase = model.PhasePaused
	s.publishLocked(event.TypeTimerPaused, s.clock.Now())
	return s.state
}

// Hold parks the timer in Paused for a user who is no longer onboarded.
// Unlike Pause it also freezes a Suspended timer and abandons a running demo.
func (s *Scheduler) Hold() model.TimerState {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.preDemo != nil {
		restored := *s.preDemo
		restored.BreaksCompletedToday = s.state.BreaksCompletedToday
		s.preDemo = nil
		s.state = restored
	}
	switch s.state.Phase {
	case model.PhasePaused:
	case model.PhaseSuspended:
		s.state.Phase = model.PhasePaused
	default:
		s.state.ResumePhase = s.state.Phase
		s.state.Phase = model.PhasePaused
	}
	s.carry = 0
	s.publishLocked(event.TypeTimerPaused, s.clock.Now())
	return s.state
}

// Resume continues a paused countdown with the time it had left.
func (s *Scheduler) Resume() model.TimerState {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Phase != model.PhasePaused {
		return s.state
	}
	now := s.clock.Now()
	s.state.Phase = s.state.ResumePhase
	s.state.ResumePhase = ""
	s.lastTick = now
	s.carry = 0
	s.publishLocked(event.TypeTimerResumed, now)
	return s.state
}

// Skip ends the current break early and records it as skipped. Outside a
// break it does nothing. A failed write is returned alongside the new state.
func (s *Scheduler) Skip() (model.TimerState, error) {
	s.mu.Lock()
	if s.state.Phase != model.PhaseBreaking {
		defer s.mu.Unlock()
		return s.state, nil
	}
	now := s.clock.Now()
	if s.state.Demo {
		defer s.mu.Unlock()
		s.finishDemoLocked(now, event.TypeBreakSkipped)
		return s.state, nil
	}

	elapsed := s.state.PhaseDuration - s.state.SecondsRemaining
	rec := model.SkippedBreak(s.resolvedStartLocked(now), elapsed, s.precedingWork)
	s.enterWorkLocked(now)
	s.publishLocked(event.TypeBreakSkipped, now)
	s.resolved = append(s.resolved, rec)
	st := s.state
	s.mu.Unlock()

	return st, s.recordResolved(now)
}

// Reset starts a fresh work interval from any phase. Nothing is recorded and
// a running demo is abandoned.
func (s *Scheduler) Reset() model.TimerState {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	s.preDemo = nil
	s.lastTick = now
	s.enterWorkLocked(now)
	s.publishLocked(event.TypeTimerTick, now)
	return s.state
}

// RolloverDay zeroes the daily counter if now falls on a new local date.
func (s *Scheduler) RolloverDay(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rolloverLocked(now)
}

// SetCompletedToday seeds the daily counter from stored history at startup.
func (s *Scheduler) SetCompletedToday(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.BreaksCompletedToday = n
}

func (s *Scheduler) rolloverLocked(now time.Time) {
	key := model.DayKey(now, s.loc)
	if key == s.day {
		return
	}
	s.log.Info().Str("from", s.day).Str("to", key).Msg("new day")
	s.day = key
	s.state.BreaksCompletedToday = 0
	if s.preDemo != nil {
		s.preDemo.BreaksCompletedToday = 0
	}
}

func (s *Scheduler) publishLocked(t event.Type, now time.Time) {
	s.bus.Publish(event.TimerEvent(t, s.state, now))
}
