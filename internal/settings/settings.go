// Package settings owns the user's preferences and onboarding progress. Both
// are single durable rows; the in-memory copy is authoritative and failed
// writes are retried on the next mutation.
package settings

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"blinky/internal/event"
	"blinky/internal/model"
	"blinky/internal/storage"
)

type Options struct {
	Location *time.Location
	Now      func() time.Time
	// Autostart is called after launch_at_login changes.
	Autostart func(enabled bool) error
}

type Store struct {
	store     storage.Storage
	bus       event.Publisher
	loc       *time.Location
	now       func() time.Time
	autostart func(enabled bool) error
	log       zerolog.Logger

	mu              sync.RWMutex
	settings        model.UserSettings
	onboarding      model.OnboardingState
	settingsDirty   bool
	onboardingDirty bool
}

func New(store storage.Storage, bus event.Publisher, opts Options, log zerolog.Logger) *Store {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if bus == nil {
		bus = event.Discard{}
	}
	return &Store{
		store:      store,
		bus:        bus,
		loc:        opts.Location,
		now:        opts.Now,
		autostart:  opts.Autostart,
		log:        log.With().Str("component", "settings").Logger(),
		settings:   model.DefaultSettings(),
		onboarding: model.OnboardingState{TooltipsSeen: []string{}},
	}
}

// Load reads both rows. A fresh database gets the defaults written back.
func (s *Store) Load(ctx context.Context) error {
	st, found, err := s.store.LoadSettings(ctx)
	if err != nil {
		return &model.PersistenceError{Op: "load settings", Err: err}
	}
	ob, err := s.store.LoadOnboarding(ctx)
	if err != nil {
		return &model.PersistenceError{Op: "load onboarding", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = st
	s.onboarding = ob
	if !found {
		s.settingsDirty = true
		if err := s.persistLocked(ctx); err != nil {
			s.log.Warn().Err(err).Msg("failed to write default settings")
		}
	}
	return nil
}

func (s *Store) Get() model.UserSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Update merges patch, clamps, persists and announces the result.
func (s *Store) Update(ctx context.Context, patch model.SettingsPatch) (model.UserSettings, error) {
	s.mu.Lock()
	prev := s.settings
	next := patch.Apply(prev)
	s.settings = next
	s.settingsDirty = true
	err := s.persistLocked(ctx)
	s.bus.Publish(event.Event{Type: event.TypeSettingsChanged, Time: s.now(), Settings: &next})
	s.mu.Unlock()

	s.log.Info().Interface("settings", next).Msg("settings updated")

	if next.LaunchAtLogin != prev.LaunchAtLogin && s.autostart != nil {
		if aerr := s.autostart(next.LaunchAtLogin); aerr != nil {
			s.log.Warn().Err(aerr).Bool("enabled", next.LaunchAtLogin).Msg("failed to update login item")
		}
	}
	return next, err
}

// Onboarding returns the current state with is_first_day filled in.
func (s *Store) Onboarding() model.OnboardingState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.onboarding.WithDerived(s.now(), s.loc)
}

// CompleteOnboarding marks onboarding done once. changed is false when it was
// already completed; the first timestamp is kept.
func (s *Store) CompleteOnboarding(ctx context.Context) (state model.OnboardingState, changed bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if !s.onboarding.Completed {
		s.onboarding.Completed = true
		s.onboarding.CompletedAt = &now
		s.onboardingDirty = true
		changed = true
		err = s.persistLocked(ctx)
	}
	state = s.onboarding.WithDerived(now, s.loc)
	if changed {
		s.bus.Publish(event.Event{Type: event.TypeOnboardingCompleted, Time: now, Onboarding: &state})
		s.log.Info().Msg("onboarding completed")
	}
	return state, changed, err
}

// MarkTooltipSeen records id and returns every seen id in first-seen order.
func (s *Store) MarkTooltipSeen(ctx context.Context, id string) ([]string, error) {
	if id == "" {
		return nil, &model.ValidationError{Field: "id", Reason: "tooltip id must not be empty"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if !s.onboarding.HasSeen(id) {
		s.onboarding.TooltipsSeen = append(s.onboarding.TooltipsSeen, id)
		s.onboardingDirty = true
		err = s.persistLocked(ctx)
	}
	return append([]string{}, s.onboarding.TooltipsSeen...), err
}

// MarkFirstBreakCompleted reports true only for the call that flips the flag.
func (s *Store) MarkFirstBreakCompleted(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.onboarding.FirstBreakCompleted {
		return false, nil
	}
	s.onboarding.FirstBreakCompleted = true
	s.onboardingDirty = true
	return true, s.persistLocked(ctx)
}

// ResetOnboarding returns onboarding to its initial state.
func (s *Store) ResetOnboarding(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.onboarding = model.OnboardingState{TooltipsSeen: []string{}}
	s.onboardingDirty = true
	return s.persistLocked(ctx)
}

// AdoptOnboarding replaces the in-memory onboarding state with one the caller
// has already stored, for instance inside a wider transaction. Nothing is
// written.
func (s *Store) AdoptOnboarding(state model.OnboardingState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if state.TooltipsSeen == nil {
		state.TooltipsSeen = []string{}
	}
	s.onboarding = state
	s.onboardingDirty = false
}

// persistLocked writes every dirty row. Rows stay dirty on failure.
func (s *Store) persistLocked(ctx context.Context) error {
	if s.settingsDirty {
		if err := s.store.SaveSettings(ctx, s.settings); err != nil {
			return &model.PersistenceError{Op: "save settings", Err: err}
		}
		s.settingsDirty = false
	}
	if s.onboardingDirty {
		if err := s.store.SaveOnboarding(ctx, s.onboarding); err != nil {
			return &model.PersistenceError{Op: "save onboarding", Err: err}
		}
		s.onboardingDirty = false
	}
	return nil
}
