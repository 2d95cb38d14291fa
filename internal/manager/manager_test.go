package manager

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/littlehydra/daemon/internal/config"
	"github.com/littlehydra/daemon/internal/procchild"
	"github.com/littlehydra/daemon/internal/spawner"
)

// fakeChild is a procchild.Child a test can kill and complete by hand.
type fakeChild struct {
	pid    int
	done   chan procchild.ExitResult
	killed bool
}

func newFakeChild(pid int) *fakeChild {
	return &fakeChild{pid: pid, done: make(chan procchild.ExitResult, 1)}
}

func (c *fakeChild) Pid() int { return c.pid }
func (c *fakeChild) Kill() error {
	c.killed = true
	select {
	case c.done <- procchild.ExitResult{ExitCode: -1}:
	default:
	}
	return nil
}
func (c *fakeChild) Done() <-chan procchild.ExitResult { return c.done }

// fakeSpawner hands out a new fakeChild per Spawn call and records every
// call it received, so tests can assert on what the manager asked for.
type fakeSpawner struct {
	nextPid int
	calls   []string
	children []*fakeChild
}

func (f *fakeSpawner) Spawn(ctx context.Context, name string, kind config.ExecKind, path string, args []string, workingDir string, ports []uint16) (*spawner.Result, error) {
	f.nextPid++
	f.calls = append(f.calls, name)
	child := newFakeChild(f.nextPid)
	f.children = append(f.children, child)
	return &spawner.Result{Child: child, Output: io.NopCloser(strings.NewReader(""))}, nil
}

// fakeFirewall is a no-op FirewallManager that records every call it
// receives, so tests can assert on what the manager asked for.
type fakeFirewall struct {
	permitted []string
	revoked   []string
}

func (f *fakeFirewall) PermitPorts(name string, ports []uint16) error {
	f.permitted = append(f.permitted, name)
	return nil
}

func (f *fakeFirewall) RevokePorts(name string) error {
	f.revoked = append(f.revoked, name)
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Services: []config.ServiceDefinition{
			{Name: "low", ExecKind: config.ExecCmd, Path: "low.bat", StartPriority: 10},
			{Name: "high", ExecKind: config.ExecCmd, Path: "high.bat", StartPriority: 1},
		},
	}
}

func TestStartAllRespectsPriorityOrder(t *testing.T) {
	fs := &fakeSpawner{}
	m := New("config.toml", testConfig(), fs, &fakeFirewall{})

	m.StartAll()

	if len(fs.calls) != 2 {
		t.Fatalf("calls = %v, want 2 entries", fs.calls)
	}
	if fs.calls[0] != "high" || fs.calls[1] != "low" {
		t.Errorf("start order = %v, want [high low] (ascending start_priority)", fs.calls)
	}
}

func TestStartServiceIsIdempotent(t *testing.T) {
	fs := &fakeSpawner{}
	m := New("config.toml", testConfig(), fs, &fakeFirewall{})

	if err := m.StartService("low"); err != nil {
		t.Fatalf("StartService() error = %v", err)
	}
	if err := m.StartService("low"); err != nil {
		t.Fatalf("second StartService() error = %v", err)
	}
	if len(fs.calls) != 1 {
		t.Errorf("Spawn called %d times, want 1 for an already-running service", len(fs.calls))
	}
}

func TestStopServiceKillsChildAndPreventsRestart(t *testing.T) {
	fs := &fakeSpawner{}
	m := New("config.toml", testConfig(), fs, &fakeFirewall{})

	if err := m.StartService("low"); err != nil {
		t.Fatalf("StartService() error = %v", err)
	}
	if err := m.StopService("low"); err != nil {
		t.Fatalf("StopService() error = %v", err)
	}
	if !fs.children[0].killed {
		t.Error("expected StopService to kill the child process")
	}

	m.tick()

	states := m.ListStates()
	for _, st := range states {
		if st.Name == "low" && st.State != StateStopped {
			t.Errorf("state after operator stop = %q, want %q", st.State, StateStopped)
		}
	}
}

func TestLivenessMonitorRestartsOnUnexpectedExit(t *testing.T) {
	fs := &fakeSpawner{}
	cfg := &config.Config{
		Services: []config.ServiceDefinition{
			{Name: "flaky", ExecKind: config.ExecCmd, Path: "flaky.bat", RestartOnError: true},
		},
	}
	m := New("config.toml", cfg, fs, &fakeFirewall{})

	if err := m.StartService("flaky"); err != nil {
		t.Fatalf("StartService() error = %v", err)
	}

	fs.children[0].done <- procchild.ExitResult{ExitCode: 1}
	m.tick()

	if len(fs.calls) != 2 {
		t.Fatalf("expected a restart spawn, got %d total spawns", len(fs.calls))
	}

	states := m.ListStates()
	var found bool
	for _, st := range states {
		if st.Name == "flaky" {
			found = true
			if st.State != StateRunning {
				t.Errorf("state after restart = %q, want %q", st.State, StateRunning)
			}
			if st.RestartCount != 1 {
				t.Errorf("RestartCount = %d, want 1", st.RestartCount)
			}
		}
	}
	if !found {
		t.Fatal("flaky service missing from ListStates")
	}
}

func TestAddAndDeleteService(t *testing.T) {
	fs := &fakeSpawner{}
	m := New("config.toml", &config.Config{}, fs, &fakeFirewall{})

	def := config.ServiceDefinition{Name: "new-svc", ExecKind: config.ExecCmd, Path: "x.bat"}
	if err := m.AddService(def); err != nil {
		t.Fatalf("AddService() error = %v", err)
	}
	if err := m.AddService(def); err == nil {
		t.Error("expected an error re-adding the same service name")
	}

	if err := m.StartService("new-svc"); err != nil {
		t.Fatalf("StartService() error = %v", err)
	}
	if err := m.DeleteService("new-svc"); err != nil {
		t.Fatalf("DeleteService() error = %v", err)
	}
	if !fs.children[0].killed {
		t.Error("expected DeleteService to kill a running service first")
	}

	for _, st := range m.ListStates() {
		if st.Name == "new-svc" {
			t.Error("deleted service still present in ListStates")
		}
	}
}

func TestOneshotSpawnAndStatus(t *testing.T) {
	fs := &fakeSpawner{}
	m := New("config.toml", &config.Config{}, fs, &fakeFirewall{})

	pid, err := m.OneshotSpawn(config.ExecCmd, "probe.bat", nil, "", nil)
	if err != nil {
		t.Fatalf("OneshotSpawn() error = %v", err)
	}

	status, err := m.OneshotStatus(pid)
	if err != nil {
		t.Fatalf("OneshotStatus() error = %v", err)
	}
	if !status.Running {
		t.Error("expected oneshot to be reported running immediately after spawn")
	}

	fs.children[0].done <- procchild.ExitResult{ExitCode: 0}
	// Give the background completion goroutine a moment to observe it.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		status, _ = m.OneshotStatus(pid)
		if !status.Running {
			break
		}
	}
	if status.Running {
		t.Error("expected oneshot to be reported finished after exit")
	}
	if status.ExitCode == nil || *status.ExitCode != 0 {
		t.Errorf("ExitCode = %v, want 0", status.ExitCode)
	}

	// The previous call observed the exit and must have evicted the
	// record: the next poll for the same pid is "not found".
	if _, err := m.OneshotStatus(pid); err == nil {
		t.Error("expected oneshotStatus to report not-found after the first post-exit poll")
	}
}

func TestOneshotStatusUnknownPid(t *testing.T) {
	fs := &fakeSpawner{}
	m := New("config.toml", &config.Config{}, fs, &fakeFirewall{})

	if _, err := m.OneshotStatus(99999); err == nil {
		t.Error("expected an error for an unknown oneshot pid")
	}
}

func TestOpenAndDeleteFirewallRule(t *testing.T) {
	fs := &fakeSpawner{}
	fw := &fakeFirewall{}
	m := New("config.toml", &config.Config{}, fs, fw)

	if err := m.OpenFirewallPorts("svc1", []uint16{9000}); err != nil {
		t.Fatalf("OpenFirewallPorts() error = %v", err)
	}
	// Idempotent: a second grant for the same name must not error.
	if err := m.OpenFirewallPorts("svc1", []uint16{9000}); err != nil {
		t.Fatalf("second OpenFirewallPorts() error = %v", err)
	}

	if err := m.DeleteFirewallRule("svc1"); err != nil {
		t.Fatalf("DeleteFirewallRule() error = %v", err)
	}
	if err := m.DeleteFirewallRule("svc1"); err == nil {
		t.Error("expected an error deleting an already-removed firewall rule")
	}
	if len(fw.revoked) != 1 {
		t.Errorf("RevokePorts called %d times, want 1", len(fw.revoked))
	}
}
