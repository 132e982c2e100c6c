//go:build !linux && !darwin && !windows

package platform

import "errors"

var errUnsupported = errors.New("autostart unsupported on this platform")

func (a *Autostart) enable(string) error { return errUnsupported }
func (a *Autostart) disable() error      { return errUnsupported }
