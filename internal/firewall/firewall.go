// Package firewall installs and tears down the inbound allow rules a
// supervised service needs for the ports it declares, plus the one-time
// legacy-firewall relaxation some services require to be reachable at all.
// On Windows this is implemented against the Windows Filtering Platform
// (WFP) engine for per-service rules, and against the legacy
// INetFwPolicy2 COM API for the one-shot profile reset.
package firewall

// Engine is the live collaborator internal/spawner and internal/manager
// hold. PermitPorts is idempotent per name: calling it again with the
// same ports after a restart must not accumulate duplicate filters.
type Engine interface {
	// PermitPorts ensures inbound traffic on each port is allowed, under
	// a filter set identified by name so it can later be revoked as a
	// group.
	PermitPorts(name string, ports []uint16) error

	// RevokePorts removes every filter previously installed for name.
	// Removing a name with no filters installed is not an error.
	RevokePorts(name string) error

	// DisableLegacyFirewalls resets the legacy Windows Firewall profiles
	// to their permissive defaults and ensures the two catch-all
	// allow-any-program COM rules exist. It is meant to run once at
	// daemon startup, not per-service.
	DisableLegacyFirewalls() error

	// Close releases any engine handle the implementation is holding.
	Close() error
}
