//go:build windows

package hostctl

import (
	"fmt"

	"golang.org/x/sys/windows"
)

var (
	modadvapi32              = windows.NewLazySystemDLL("advapi32.dll")
	procInitiateShutdownW    = modadvapi32.NewProc("InitiateShutdownW")
)

const (
	shutdownForceOthers   = 0x00000001
	shutdownReboot        = 0x00000004 // SHUTDOWN_RESTART
	shutdownGracePeriod   = 30 // seconds
	shutdownReasonMinor   = 0x00000001 // SHTDN_REASON_MINOR_MAINTENANCE
	shutdownReasonFlagP   = 0x80000000 // SHTDN_REASON_FLAG_PLANNED
)

// Shutdown shuts the host down after shutdownGracePeriod seconds,
// forcibly closing other applications that don't respond.
func Shutdown() error {
	return initiateShutdown(shutdownForceOthers)
}

// Reboot restarts the host after shutdownGracePeriod seconds.
func Reboot() error {
	return initiateShutdown(shutdownForceOthers | shutdownReboot)
}

func initiateShutdown(flags uint32) error {
	r1, _, callErr := procInitiateShutdownW.Call(
		0,
		0,
		uintptr(shutdownGracePeriod),
		uintptr(flags),
		uintptr(shutdownReasonMinor|shutdownReasonFlagP),
	)
	if r1 != 0 {
		return fmt.Errorf("InitiateShutdownW: %w (0x%x)", callErr, r1)
	}
	return nil
}
