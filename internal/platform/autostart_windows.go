//go:build windows

package platform

import (
	"fmt"
	"os/exec"
	"strings"
)

const registryRunKey = `HKCU\Software\Microsoft\Windows\CurrentVersion\Run`

func (a *Autostart) enable(execPath string) error {
	quoted := `"` + strings.Trim(execPath, `"`) + `"`
	out, err := exec.Command("reg", "add", registryRunKey, "/v", a.appName, "/t", "REG_SZ", "/d", quoted, "/f").CombinedOutput()
	if err != nil {
		return fmt.Errorf("enable autostart: reg add failed: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (a *Autostart) disable() error {
	out, err := exec.Command("reg", "delete", registryRunKey, "/v", a.appName, "/f").CombinedOutput()
	if err != nil {
		return fmt.Errorf("disable autostart: reg delete failed: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}
