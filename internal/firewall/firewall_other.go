//go:build !windows

package firewall

import "errors"

// ErrUnsupportedPlatform is returned by New on any non-Windows build: the
// Windows Filtering Platform and the legacy firewall COM API both only
// exist on Windows.
var ErrUnsupportedPlatform = errors.New("firewall: requires windows")

// New always fails on non-Windows builds.
func New() (Engine, error) {
	return nil, ErrUnsupportedPlatform
}
