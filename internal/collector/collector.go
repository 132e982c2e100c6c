// Package collector reads how long the user has been away from the input
// devices. Each platform has its own source; unknown platforms report
// ErrIdleUnsupported and the scheduler treats that as "present".
package collector

import (
	"errors"
	"time"

	"github.com/rs/zerolog"
)

var ErrIdleUnsupported = errors.New("idle detection unsupported on this platform")

// IdleCollector defines the interface for idle time sources
type IdleCollector interface {
	IdleSeconds() (int, error)
	Close() error
}

// NewIdleCollector returns the best idle source for this machine. It never
// fails; without a usable source the returned collector always errors.
func NewIdleCollector(log zerolog.Logger) IdleCollector {
	log = log.With().Str("component", "idle").Logger()
	c, err := newPlatformCollector()
	if err != nil {
		log.Warn().Err(err).Msg("idle detection disabled")
		return unsupported{}
	}
	log.Info().Msg("idle detection enabled")
	return c
}

type unsupported struct{}

func (unsupported) IdleSeconds() (int, error) { return 0, ErrIdleUnsupported }
func (unsupported) Close() error              { return nil }

func toSeconds(d time.Duration) int {
	if d < 0 {
		return 0
	}
	return int(d / time.Second)
}
