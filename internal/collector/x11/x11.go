// Package x11 reads user idle time from the X server's MIT-SCREEN-SAVER
// extension.
package x11

import (
	"fmt"
	"sync"
	"time"

	"github.com/BurntSushi/xgb/screensaver"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
)

type IdleCollector struct {
	mu sync.Mutex
	X  *xgbutil.XUtil
}

func NewIdleCollector() (*IdleCollector, error) {
	X, err := xgbutil.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}
	if err := screensaver.Init(X.Conn()); err != nil {
		X.Conn().Close()
		return nil, fmt.Errorf("screen saver extension not available: %w", err)
	}
	return &IdleCollector{X: X}, nil
}

// IdleDuration is the time since the last keyboard or pointer event.
func (c *IdleCollector) IdleDuration() (time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.X == nil {
		return 0, fmt.Errorf("x11 connection closed")
	}
	root := xproto.Drawable(c.X.RootWin())
	reply, err := screensaver.QueryInfo(c.X.Conn(), root).Reply()
	if err != nil {
		return 0, fmt.Errorf("failed to query screen saver info: %w", err)
	}
	return time.Duration(reply.MsSinceUserInput) * time.Millisecond, nil
}

func (c *IdleCollector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.X != nil {
		c.X.Conn().Close()
		c.X = nil
	}
	return nil
}
