//go:build !windows

package main

import (
	"fmt"
	"os"
	"path/filepath"

	godaemon "github.com/sevlyar/go-daemon"
)

// detach re-executes the daemon in the background. parent is true in the
// original process, which should exit.
func detach(pidFile, logFile string) (parent bool, release func() error, err error) {
	if err := os.MkdirAll(filepath.Dir(pidFile), 0750); err != nil {
		return false, nil, fmt.Errorf("failed to create pid dir: %w", err)
	}
	dctx := &godaemon.Context{
		PidFileName: pidFile,
		PidFilePerm: 0644,
		LogFileName: logFile,
		LogFilePerm: 0640,
		WorkDir:     "/",
		Umask:       027,
	}
	child, err := dctx.Reborn()
	if err != nil {
		return false, nil, fmt.Errorf("failed to fork: %w", err)
	}
	if child != nil {
		return true, nil, nil
	}
	return false, dctx.Release, nil
}
