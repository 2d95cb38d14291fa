//go:build !windows

package hostctl

// PrimaryTokenForSession is unavailable on non-Windows builds.
func PrimaryTokenForSession(sessionID uint32) (uintptr, error) {
	return 0, ErrUnsupportedPlatform
}
