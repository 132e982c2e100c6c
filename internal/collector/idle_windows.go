//go:build windows

package collector

import (
	"fmt"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

type lastInputInfo struct {
	cbSize uint32
	dwTime uint32
}

type windowsCollector struct {
	getLastInputInfo *windows.LazyProc
	getTickCount     *windows.LazyProc
}

func newPlatformCollector() (IdleCollector, error) {
	c := &windowsCollector{
		getLastInputInfo: windows.NewLazySystemDLL("user32.dll").NewProc("GetLastInputInfo"),
		getTickCount:     windows.NewLazySystemDLL("kernel32.dll").NewProc("GetTickCount"),
	}
	if err := c.getLastInputInfo.Find(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIdleUnsupported, err)
	}
	return c, nil
}

func (c *windowsCollector) IdleSeconds() (int, error) {
	info := lastInputInfo{cbSize: uint32(unsafe.Sizeof(lastInputInfo{}))}
	ok, _, err := c.getLastInputInfo.Call(uintptr(unsafe.Pointer(&info)))
	if ok == 0 {
		return 0, fmt.Errorf("failed to get last input info: %w", err)
	}
	// both values are 32-bit millisecond counters and wrap together
	now, _, _ := c.getTickCount.Call()
	idle := uint32(now) - info.dwTime
	return toSeconds(time.Duration(idle) * time.Millisecond), nil
}

func (c *windowsCollector) Close() error { return nil }
