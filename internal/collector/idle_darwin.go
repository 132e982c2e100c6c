//go:build darwin

package collector

import (
	"bufio"
	"bytes"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

type ioregCollector struct {
	path string
}

func newPlatformCollector() (IdleCollector, error) {
	path, err := exec.LookPath("ioreg")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIdleUnsupported, err)
	}
	return &ioregCollector{path: path}, nil
}

func (c *ioregCollector) IdleSeconds() (int, error) {
	out, err := exec.Command(c.path, "-c", "IOHIDSystem", "-d", "4").Output()
	if err != nil {
		return 0, fmt.Errorf("failed to run ioreg: %w", err)
	}
	ns, err := parseHIDIdleTime(out)
	if err != nil {
		return 0, err
	}
	return toSeconds(time.Duration(ns)), nil
}

func (c *ioregCollector) Close() error { return nil }

// parseHIDIdleTime extracts the nanosecond HIDIdleTime value from ioreg output.
func parseHIDIdleTime(out []byte) (int64, error) {
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := sc.Text()
		if !strings.Contains(line, `"HIDIdleTime"`) {
			continue
		}
		_, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		ns, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("failed to parse HIDIdleTime %q: %w", value, err)
		}
		return ns, nil
	}
	return 0, fmt.Errorf("HIDIdleTime not found in ioreg output")
}
