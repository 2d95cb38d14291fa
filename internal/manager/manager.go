package manager

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/littlehydra/daemon/internal/config"
	"github.com/littlehydra/daemon/internal/lherr"
	"github.com/littlehydra/daemon/internal/outputmux"
	"github.com/littlehydra/daemon/internal/spawner"
)

// Spawner is the launch collaborator ProcessManager depends on. It is
// satisfied by *spawner.Spawner; kept as an interface here so tests can
// substitute a fake without starting real processes.
type Spawner interface {
	Spawn(ctx context.Context, name string, kind config.ExecKind, path string, args []string, workingDir string, ports []uint16) (*spawner.Result, error)
}

// FirewallManager is the firewall collaborator the openFirewallPorts and
// deleteFirewallRule RPC commands drive directly, independent of the
// per-spawn firewall pre-flight the spawner performs on its own. It is
// satisfied by firewall.Engine; kept narrow here so tests can substitute a
// fake without a real WFP engine.
type FirewallManager interface {
	PermitPorts(name string, ports []uint16) error
	RevokePorts(name string) error
}

// ProcessManager is the daemon's single supervising authority: it owns
// every service's lifecycle state, the oneshot registry, and the
// background liveness monitor. All of it is safe for concurrent use from
// the RPC server's per-connection goroutines.
type ProcessManager struct {
	configPath string
	spawner    Spawner
	firewall   FirewallManager

	// mu guards registry, oneshots and firewallRules (the "registry" in
	// the documented lock order). It is never held while a spawn/kill/IO
	// call is in flight; callers lock mu only long enough to look up or
	// mutate a map, then release it before doing I/O. buildConfig is the
	// one caller that takes a serviceState's mu while holding mu, in the
	// registry-before-service order.
	mu            sync.Mutex
	registry      map[string]*serviceState
	order         []string // service names in config order, for startService-all / listStates ordering
	oneshots      map[int]*oneshotRecord
	firewallRules map[string]struct{} // names with an active openFirewallPorts grant

	stopMonitor chan struct{}
}

// New constructs a ProcessManager over the given config, spawner and
// firewall engine. It does not start any services; call StartAll for that.
func New(configPath string, cfg *config.Config, sp Spawner, fw FirewallManager) *ProcessManager {
	m := &ProcessManager{
		configPath:    configPath,
		spawner:       sp,
		firewall:      fw,
		registry:      make(map[string]*serviceState),
		oneshots:      make(map[int]*oneshotRecord),
		firewallRules: make(map[string]struct{}),
		stopMonitor:   make(chan struct{}),
	}
	for _, def := range cfg.Services {
		m.registry[def.Name] = newServiceState(def)
		m.order = append(m.order, def.Name)
	}
	return m
}

// StartMonitor launches the 1Hz liveness monitor in the background. It
// runs until ctx is canceled.
func (m *ProcessManager) StartMonitor(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopMonitor:
				return
			case <-ticker.C:
				m.tick()
			}
		}
	}()
}

// tick polls every service's Done channel without blocking and restarts
// any that exited on their own with a non-zero code and are marked
// restart_on_error. Restarts
// happen outside of any serviceState lock to avoid a spawn call (which
// can block on firewall/process-creation I/O) ever being made while
// holding a lock another goroutine needs to report status.
func (m *ProcessManager) tick() {
	m.mu.Lock()
	states := make([]*serviceState, 0, len(m.registry))
	for _, st := range m.registry {
		states = append(states, st)
	}
	m.mu.Unlock()

	for _, st := range states {
		m.checkOne(st)
	}
}

func (m *ProcessManager) checkOne(st *serviceState) {
	st.mu.Lock()
	child := st.child
	stopRequested := st.stopRequested
	name := st.def.Name
	restartOnError := st.def.RestartOnError
	st.mu.Unlock()

	if child == nil {
		return
	}

	select {
	case result := <-child.Done():
		st.mu.Lock()
		st.child = nil
		code := result.ExitCode
		st.lastExitCode = &code
		if stopRequested {
			st.status = StateStopped
			st.mu.Unlock()
			return
		}
		st.status = StateFailed
		st.mu.Unlock()

		log.Printf("[manager] service %q exited (code=%d)", name, code)

		if restartOnError && code != 0 {
			if err := m.startService(st); err != nil {
				log.Printf("[manager] restart of %q failed: %v", name, err)
			} else {
				log.Printf("[manager] service %q restarted", name)
			}
		}
	default:
		// still running
	}
}

// StartAll starts every configured service in ascending start_priority
// order, breaking ties by the order services appear in the config file.
func (m *ProcessManager) StartAll() {
	m.mu.Lock()
	names := append([]string(nil), m.order...)
	m.mu.Unlock()

	sort.SliceStable(names, func(i, j int) bool {
		a, aok := m.lookup(names[i])
		b, bok := m.lookup(names[j])
		if !aok || !bok {
			return false
		}
		return a.def.StartPriority < b.def.StartPriority
	})

	for _, name := range names {
		if err := m.StartService(name); err != nil {
			log.Printf("[manager] startup of %q failed: %v", name, err)
		}
	}
}

func (m *ProcessManager) lookup(name string) (*serviceState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.registry[name]
	return st, ok
}

// StartService starts name if it is not already running. Starting an
// already-running service is a no-op, not an error.
func (m *ProcessManager) StartService(name string) error {
	st, ok := m.lookup(name)
	if !ok {
		return lherr.Newf(lherr.ProcessCreation, "manager.StartService", "unknown service %q", name)
	}
	return m.startService(st)
}

func (m *ProcessManager) startService(st *serviceState) error {
	st.mu.Lock()
	if st.status == StateRunning || st.status == StateStarting {
		st.mu.Unlock()
		return nil
	}
	st.status = StateStarting
	st.stopRequested = false
	def := st.def
	st.mu.Unlock()

	result, err := m.spawner.Spawn(context.Background(), def.Name, def.ExecKind, def.Path, def.Args, def.WorkingDir, def.Ports)
	if err != nil {
		st.mu.Lock()
		st.status = StateFailed
		st.mu.Unlock()
		return err
	}

	go outputmux.StreamToLog(def.Name, result.Output)

	now := time.Now()
	st.mu.Lock()
	st.child = result.Child
	st.status = StateRunning
	st.lastStartedAt = &now
	if st.restartCount > 0 || st.lastExitCode != nil {
		st.restartCount++
	}
	st.mu.Unlock()

	return nil
}

// Status returns a single service's current snapshot, for RPC responses
// that need to report the state a command just produced.
func (m *ProcessManager) Status(name string) (ServiceStatus, bool) {
	st, ok := m.lookup(name)
	if !ok {
		return ServiceStatus{}, false
	}
	return st.snapshot(name), true
}

// StopService kills name's process, if running, waits for it to exit, and
// marks it stopped with the observed exit code so the liveness monitor
// does not restart it. Stopping a service that isn't running is not an
// error. The child is detached from the registry before it is killed so
// the liveness monitor's concurrent poll never races this call for the
// same exit notification.
func (m *ProcessManager) StopService(name string) error {
	st, ok := m.lookup(name)
	if !ok {
		return lherr.Newf(lherr.ProcessCreation, "manager.StopService", "unknown service %q", name)
	}

	st.mu.Lock()
	child := st.child
	st.child = nil
	st.stopRequested = true
	st.mu.Unlock()

	if child == nil {
		st.mu.Lock()
		st.status = StateStopped
		st.mu.Unlock()
		return nil
	}

	if err := child.Kill(); err != nil {
		return err
	}

	result := <-child.Done()
	code := result.ExitCode
	st.mu.Lock()
	st.status = StateStopped
	st.lastExitCode = &code
	st.mu.Unlock()
	return nil
}

// ListStates returns a stable-ordered snapshot of every registered
// service's status.
func (m *ProcessManager) ListStates() []ServiceStatus {
	m.mu.Lock()
	names := append([]string(nil), m.order...)
	states := make(map[string]*serviceState, len(m.registry))
	for k, v := range m.registry {
		states[k] = v
	}
	m.mu.Unlock()

	out := make([]ServiceStatus, 0, len(names))
	for _, name := range names {
		if st, ok := states[name]; ok {
			out = append(out, st.snapshot(name))
		}
	}
	return out
}

// AddService registers a new service definition. It does not start it;
// the caller is expected to follow up with startService if desired. The
// definition is not persisted until saveConfig is called.
func (m *ProcessManager) AddService(def config.ServiceDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.registry[def.Name]; exists {
		return lherr.Newf(lherr.ProcessCreation, "manager.AddService", "service %q already exists", def.Name)
	}
	m.registry[def.Name] = newServiceState(def)
	m.order = append(m.order, def.Name)
	return nil
}

// DeleteService removes name from the registry, killing it first if it
// is running. Deleting a service that is currently running is allowed:
// the kill happens synchronously before the registry entry disappears.
func (m *ProcessManager) DeleteService(name string) error {
	st, ok := m.lookup(name)
	if !ok {
		return lherr.Newf(lherr.ProcessCreation, "manager.DeleteService", "unknown service %q", name)
	}

	st.mu.Lock()
	child := st.child
	st.child = nil
	st.stopRequested = true
	st.mu.Unlock()

	if child != nil {
		if err := child.Kill(); err != nil {
			log.Printf("[manager] kill of %q during delete failed: %v", name, err)
		}
	}

	m.mu.Lock()
	delete(m.registry, name)
	for i, n := range m.order {
		if n == name {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.mu.Unlock()
	return nil
}

// buildConfig assembles the config document the registry currently
// represents, under general, without touching disk.
func (m *ProcessManager) buildConfig(general config.GeneralSettings) *config.Config {
	m.mu.Lock()
	defs := make([]config.ServiceDefinition, 0, len(m.order))
	for _, name := range m.order {
		if st, ok := m.registry[name]; ok {
			st.mu.Lock()
			defs = append(defs, st.def)
			st.mu.Unlock()
		}
	}
	m.mu.Unlock()

	return &config.Config{General: general, Services: defs}
}

// GetConfig returns the registry's current set of service definitions
// alongside general, without touching disk — the getConfig RPC command.
func (m *ProcessManager) GetConfig(general config.GeneralSettings) *config.Config {
	return m.buildConfig(general)
}

// SaveConfig writes the registry's current set of service definitions
// back to the on-disk config file, preserving general settings from cfg.
func (m *ProcessManager) SaveConfig(general config.GeneralSettings) error {
	return config.Save(m.configPath, m.buildConfig(general))
}

// OpenFirewallPorts installs an inbound allow rule set for name, tracked
// so a later DeleteFirewallRule call can report "not found" once it's
// been revoked. Calling it twice for the same name is not an error — the
// underlying engine's PermitPorts is itself idempotent.
func (m *ProcessManager) OpenFirewallPorts(name string, ports []uint16) error {
	if err := m.firewall.PermitPorts(name, ports); err != nil {
		return err
	}
	m.mu.Lock()
	m.firewallRules[name] = struct{}{}
	m.mu.Unlock()
	return nil
}

// DeleteFirewallRule revokes the filters installed under name by a prior
// OpenFirewallPorts call. Calling it for a name with no active grant (or
// a second time for the same name) fails with a "not found" error.
func (m *ProcessManager) DeleteFirewallRule(name string) error {
	m.mu.Lock()
	_, ok := m.firewallRules[name]
	if ok {
		delete(m.firewallRules, name)
	}
	m.mu.Unlock()

	if !ok {
		return lherr.Newf(lherr.Firewall, "manager.DeleteFirewallRule", "firewall rule %q not found", name)
	}
	return m.firewall.RevokePorts(name)
}

// OneshotSpawn launches a fire-and-forget process and records it in the
// OneshotRegistry under its pid, returning that pid for later
// oneshotStatus lookups. The spawner still needs some name to tag any
// firewall filter set the oneshot requests under — that internal name is
// unrelated to the pid-keyed registry the RPC client sees.
func (m *ProcessManager) OneshotSpawn(kind config.ExecKind, path string, args []string, workingDir string, ports []uint16) (int, error) {
	spawnName := "oneshot-" + uuid.NewString()

	result, err := m.spawner.Spawn(context.Background(), spawnName, kind, path, args, workingDir, ports)
	if err != nil {
		return 0, err
	}

	pid := result.Child.Pid()
	capture := outputmux.NewOneshotCapture(result.Output)
	rec := &oneshotRecord{pid: pid, child: result.Child, capture: capture, running: true}

	m.mu.Lock()
	m.oneshots[pid] = rec
	m.mu.Unlock()

	go func() {
		exit := <-result.Child.Done()
		rec.mu.Lock()
		code := exit.ExitCode
		rec.exitCode = &code
		rec.running = false
		rec.mu.Unlock()
	}()

	return pid, nil
}

// OneshotStatus returns the current status and captured output for a pid
// returned by a previous OneshotSpawn call. Once this call observes the
// child has exited, the record is removed from the registry — the next
// call for the same pid returns a "not found" error.
func (m *ProcessManager) OneshotStatus(pid int) (OneshotStatus, error) {
	m.mu.Lock()
	rec, ok := m.oneshots[pid]
	m.mu.Unlock()
	if !ok {
		return OneshotStatus{}, lherr.Newf(lherr.ProcessCreation, "manager.OneshotStatus", "oneshot %d not found", pid)
	}

	rec.mu.Lock()
	running := rec.running
	var exitCode *int32
	if rec.exitCode != nil {
		c := *rec.exitCode
		exitCode = &c
	}
	rec.mu.Unlock()

	output, truncated := rec.capture.Snapshot()

	if !running {
		m.mu.Lock()
		delete(m.oneshots, pid)
		m.mu.Unlock()
	}

	return OneshotStatus{
		Pid:       pid,
		Running:   running,
		ExitCode:  exitCode,
		Output:    output,
		Truncated: truncated,
	}, nil
}

// Shutdown stops every running supervised service and oneshot, used when
// the daemon itself is exiting.
func (m *ProcessManager) Shutdown() {
	close(m.stopMonitor)

	m.mu.Lock()
	names := append([]string(nil), m.order...)
	pids := make([]int, 0, len(m.oneshots))
	for pid := range m.oneshots {
		pids = append(pids, pid)
	}
	m.mu.Unlock()

	for _, name := range names {
		if err := m.StopService(name); err != nil {
			log.Printf("[manager] shutdown: stop %q failed: %v", name, err)
		}
	}
	for _, pid := range pids {
		m.mu.Lock()
		rec := m.oneshots[pid]
		m.mu.Unlock()
		if rec != nil && rec.child != nil {
			rec.child.Kill()
		}
	}
}

