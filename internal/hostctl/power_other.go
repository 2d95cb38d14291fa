//go:build !windows

package hostctl

import "errors"

// ErrUnsupportedPlatform is returned by Shutdown and Reboot on any
// non-Windows build.
var ErrUnsupportedPlatform = errors.New("hostctl: requires windows")

func Shutdown() error { return ErrUnsupportedPlatform }

func Reboot() error { return ErrUnsupportedPlatform }
