//go:build !linux && !windows && !darwin

package collector

func newPlatformCollector() (IdleCollector, error) {
	return nil, ErrIdleUnsupported
}
