// Package hostctl holds host-lifecycle and session-token primitives that
// exist in the daemon's process model but are not exposed over RPC:
// shutdown/reboot and per-session primary token acquisition. Both are
// kept as direct ports of the daemon's power and impersonation helpers so
// a future command table entry can wire them in, without either being
// reachable from the RPC surface today.
package hostctl
