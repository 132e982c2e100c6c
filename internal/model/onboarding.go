package model

import (
	"slices"
	"time"
)

type OnboardingState struct {
	Completed           bool       `json:"completed" yaml:"completed"`
	CompletedAt         *time.Time `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
	TooltipsSeen        []string   `json:"tooltips_seen" yaml:"tooltips_seen"`
	FirstBreakCompleted bool       `json:"first_break_completed" yaml:"first_break_completed"`
	IsFirstDay          bool       `json:"is_first_day" yaml:"is_first_day"`
}

// WithDerived fills IsFirstDay for the given moment.
func (o OnboardingState) WithDerived(now time.Time, loc *time.Location) OnboardingState {
	o.IsFirstDay = o.Completed && o.CompletedAt != nil && DayKey(*o.CompletedAt, loc) == DayKey(now, loc)
	o.TooltipsSeen = slices.Clone(o.TooltipsSeen)
	if o.TooltipsSeen == nil {
		o.TooltipsSeen = []string{}
	}
	return o
}

// HasSeen reports whether tooltip id was already marked.
func (o OnboardingState) HasSeen(id string) bool {
	return slices.Contains(o.TooltipsSeen, id)
}
