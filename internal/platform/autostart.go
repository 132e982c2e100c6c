// Package platform registers the daemon as a login item.
package platform

import (
	"fmt"
	"strings"

	"github.com/kardianos/osext"
)

const AppName = "blinky"

// Autostart toggles the login item for the running executable.
type Autostart struct {
	appName  string
	execPath func() (string, error)
	// base overrides the directory the entry is written to; empty means the OS default.
	base string
}

func NewAutostart() *Autostart {
	return &Autostart{appName: AppName, execPath: osext.Executable}
}

// Set enables or disables the login item.
func (a *Autostart) Set(enabled bool) error {
	if !enabled {
		return a.disable()
	}
	path, err := a.execPath()
	if err != nil {
		return fmt.Errorf("enable autostart: resolve executable: %w", err)
	}
	return a.enable(path)
}

func entryName(appName string) string {
	name := strings.ToLower(strings.TrimSpace(appName))
	if name == "" {
		name = AppName
	}
	return strings.ReplaceAll(name, " ", "-")
}
