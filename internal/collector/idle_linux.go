//go:build linux

package collector

import (
	"fmt"
	"os"

	"blinky/internal/collector/x11"
)

func newPlatformCollector() (IdleCollector, error) {
	if os.Getenv("DISPLAY") == "" {
		return nil, fmt.Errorf("%w: DISPLAY is not set", ErrIdleUnsupported)
	}
	c, err := x11.NewIdleCollector()
	if err != nil {
		return nil, err
	}
	return secondsAdapter{c}, nil
}

type secondsAdapter struct {
	c *x11.IdleCollector
}

func (a secondsAdapter) IdleSeconds() (int, error) {
	d, err := a.c.IdleDuration()
	if err != nil {
		return 0, err
	}
	return toSeconds(d), nil
}

func (a secondsAdapter) Close() error { return a.c.Close() }
