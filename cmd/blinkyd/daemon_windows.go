//go:build windows

package main

import "errors"

func detach(string, string) (bool, func() error, error) {
	return false, nil, errors.New("--detach is not supported on windows; use the login item instead")
}
