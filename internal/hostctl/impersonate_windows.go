//go:build windows

package hostctl

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	modwtsapi32           = windows.NewLazySystemDLL("wtsapi32.dll")
	procWTSQueryUserToken = modwtsapi32.NewProc("WTSQueryUserToken")
)

// PrimaryTokenForSession duplicates the logged-on user's token for
// sessionID into a primary token suitable for CreateProcessAsUser. It is
// not called from anywhere in the RPC command table today; it exists so
// a future "run as the interactive user" execution mode has a ready
// building block.
func PrimaryTokenForSession(sessionID uint32) (windows.Token, error) {
	var userToken windows.Token
	r1, _, callErr := procWTSQueryUserToken.Call(
		uintptr(sessionID),
		uintptr(unsafe.Pointer(&userToken)),
	)
	if r1 == 0 {
		return 0, fmt.Errorf("WTSQueryUserToken(session %d): %w", sessionID, callErr)
	}
	defer userToken.Close()

	var primary windows.Token
	err := windows.DuplicateTokenEx(
		userToken,
		windows.MAXIMUM_ALLOWED,
		nil,
		windows.SecurityImpersonation,
		windows.TokenPrimary,
		&primary,
	)
	if err != nil {
		return 0, fmt.Errorf("DuplicateTokenEx(session %d): %w", sessionID, err)
	}
	return primary, nil
}
