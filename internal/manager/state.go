// Package manager owns the supervised-service registry, the liveness
// monitor that restarts services that die, and the oneshot bookkeeping
// backing the oneshotSpawn/oneshotStatus RPC commands.
package manager

import (
	"sync"
	"time"

	"github.com/littlehydra/daemon/internal/config"
	"github.com/littlehydra/daemon/internal/outputmux"
	"github.com/littlehydra/daemon/internal/spawner"
)

// RunState is the lifecycle state of a supervised service.
type RunState string

const (
	StateStopped  RunState = "Stopped"
	StateStarting RunState = "Starting"
	StateRunning  RunState = "Running"
	StateFailed   RunState = "Failed"
)

// ServiceStatus is the snapshot returned by listStates and embedded in
// other status-bearing responses.
type ServiceStatus struct {
	Name          string   `json:"name"`
	State         RunState `json:"state"`
	Pid           int      `json:"pid,omitempty"`
	RestartCount  uint32   `json:"restart_count"`
	LastExitCode  *int32   `json:"last_exit_code,omitempty"`
	LastStartedAt *time.Time `json:"last_started_at,omitempty"`
}

// serviceState is the registry's live, mutable record for one supervised
// service. Lock order throughout this package is registry.mu before any
// individual serviceState.mu, never the reverse, and a serviceState's own
// mu is never held across a Spawn/Kill call — those do real I/O and must
// not block a concurrent listStates.
type serviceState struct {
	mu sync.Mutex

	def config.ServiceDefinition

	status        RunState
	child         spawner.Child
	restartCount  uint32
	lastExitCode  *int32
	lastStartedAt *time.Time

	// stopRequested distinguishes an operator-initiated stop (no restart)
	// from the process dying on its own (restart if RestartOnError).
	stopRequested bool
}

func newServiceState(def config.ServiceDefinition) *serviceState {
	return &serviceState{def: def, status: StateStopped}
}

func (s *serviceState) snapshot(name string) ServiceStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := ServiceStatus{
		Name:         name,
		State:        s.status,
		RestartCount: s.restartCount,
		LastExitCode: s.lastExitCode,
	}
	if s.child != nil {
		st.Pid = s.child.Pid()
	}
	if s.lastStartedAt != nil {
		t := *s.lastStartedAt
		st.LastStartedAt = &t
	}
	return st
}

// oneshotRecord is the registry's record for a fire-and-forget spawn,
// keyed by the child's pid: there is no restart policy, just a handle, an
// output capture and the terminal exit code once it's known.
type oneshotRecord struct {
	mu sync.Mutex

	pid      int
	child    spawner.Child
	capture  *outputmux.OneshotCapture
	exitCode *int32
	running  bool
}

// OneshotStatus is the snapshot returned by oneshotStatus. Once Running is
// false and the snapshot has been handed back once, the record is removed
// from the registry — the next oneshotStatus(pid) call returns not-found.
type OneshotStatus struct {
	Pid       int    `json:"pid"`
	Running   bool   `json:"running"`
	ExitCode  *int32 `json:"exit_code,omitempty"`
	Output    string `json:"output"`
	Truncated bool   `json:"truncated"`
}
