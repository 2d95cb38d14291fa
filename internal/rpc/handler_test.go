package rpc

import (
	"errors"
	"testing"

	"github.com/littlehydra/daemon/internal/config"
	"github.com/littlehydra/daemon/internal/manager"
)

type fakeManager struct {
	states        []manager.ServiceStatus
	statusByName  map[string]manager.ServiceStatus
	startErr      error
	startedName   string
	addedDef      config.ServiceDefinition
	oneshotPid    int
	openedName    string
	openedPorts   []uint16
	deletedRule   string
	deleteRuleErr error
}

func (f *fakeManager) ListStates() []manager.ServiceStatus { return f.states }
func (f *fakeManager) Status(name string) (manager.ServiceStatus, bool) {
	st, ok := f.statusByName[name]
	return st, ok
}
func (f *fakeManager) StartService(name string) error {
	f.startedName = name
	return f.startErr
}
func (f *fakeManager) StopService(name string) error { return nil }
func (f *fakeManager) AddService(def config.ServiceDefinition) error {
	f.addedDef = def
	return nil
}
func (f *fakeManager) DeleteService(name string) error { return nil }
func (f *fakeManager) GetConfig(general config.GeneralSettings) *config.Config {
	return &config.Config{General: general}
}
func (f *fakeManager) SaveConfig(general config.GeneralSettings) error { return nil }
func (f *fakeManager) OpenFirewallPorts(name string, ports []uint16) error {
	f.openedName = name
	f.openedPorts = ports
	return nil
}
func (f *fakeManager) DeleteFirewallRule(name string) error {
	f.deletedRule = name
	return f.deleteRuleErr
}
func (f *fakeManager) OneshotSpawn(kind config.ExecKind, path string, args []string, workingDir string, ports []uint16) (int, error) {
	return f.oneshotPid, nil
}
func (f *fakeManager) OneshotStatus(pid int) (manager.OneshotStatus, error) {
	if pid != f.oneshotPid {
		return manager.OneshotStatus{}, errors.New("unknown pid")
	}
	return manager.OneshotStatus{Pid: pid, Running: true}, nil
}

type fakeReloader struct{ reloadErr error }

func (f *fakeReloader) ReloadConfig() error                     { return f.reloadErr }
func (f *fakeReloader) GeneralSettings() config.GeneralSettings { return config.GeneralSettings{} }

func TestHandlePing(t *testing.T) {
	d := &Dispatcher{Mgr: &fakeManager{}, Reloader: &fakeReloader{}}
	resp := d.Handle(Request{Cmd: CmdPing})
	if resp.Status != StatusSuccess || resp.Data != "pong" {
		t.Errorf("ping response = %+v, want success/pong", resp)
	}
}

func TestHandleInfo(t *testing.T) {
	d := &Dispatcher{Mgr: &fakeManager{}, Reloader: &fakeReloader{}}
	resp := d.Handle(Request{Cmd: CmdInfo})
	if resp.Status != StatusSuccess {
		t.Fatalf("info response = %+v", resp)
	}
	data, ok := resp.Data.(map[string]any)
	if !ok {
		t.Fatalf("info data = %#v, want map[string]any", resp.Data)
	}
	if data["protocol_version"] != ProtocolVersion {
		t.Errorf("protocol_version = %v, want %d", data["protocol_version"], ProtocolVersion)
	}
}

func TestHandleStartServiceRequiresName(t *testing.T) {
	d := &Dispatcher{Mgr: &fakeManager{}, Reloader: &fakeReloader{}}
	resp := d.Handle(Request{Cmd: CmdStartService})
	if resp.Status != StatusError {
		t.Error("expected an error response for startService without a name")
	}
}

func TestHandleStartServicePropagatesError(t *testing.T) {
	mgr := &fakeManager{startErr: errors.New("boom")}
	d := &Dispatcher{Mgr: mgr, Reloader: &fakeReloader{}}

	resp := d.Handle(Request{Cmd: CmdStartService, Name: "svc"})
	if resp.Status != StatusError || resp.Message != "boom" {
		t.Errorf("resp = %+v, want error \"boom\"", resp)
	}
	if mgr.startedName != "svc" {
		t.Errorf("startedName = %q, want \"svc\"", mgr.startedName)
	}
}

func TestHandleStartServiceReportsState(t *testing.T) {
	mgr := &fakeManager{
		statusByName: map[string]manager.ServiceStatus{
			"svc": {Name: "svc", State: manager.StateRunning},
		},
	}
	d := &Dispatcher{Mgr: mgr, Reloader: &fakeReloader{}}

	resp := d.Handle(Request{Cmd: CmdStartService, Name: "svc"})
	if resp.Status != StatusSuccess {
		t.Fatalf("resp = %+v", resp)
	}
	data, ok := resp.Data.(map[string]any)
	if !ok || data["state"] != manager.StateRunning {
		t.Errorf("data = %#v, want state=%q", resp.Data, manager.StateRunning)
	}
}

func TestHandleAddServiceRequiresDefinition(t *testing.T) {
	d := &Dispatcher{Mgr: &fakeManager{}, Reloader: &fakeReloader{}}
	resp := d.Handle(Request{Cmd: CmdAddService})
	if resp.Status != StatusError {
		t.Error("expected an error response for addService without a definition")
	}
}

func TestHandleGetConfig(t *testing.T) {
	d := &Dispatcher{Mgr: &fakeManager{}, Reloader: &fakeReloader{}}
	resp := d.Handle(Request{Cmd: CmdGetConfig})
	if resp.Status != StatusSuccess {
		t.Errorf("resp = %+v, want success", resp)
	}
}

func TestHandleOpenAndDeleteFirewallRule(t *testing.T) {
	mgr := &fakeManager{}
	d := &Dispatcher{Mgr: mgr, Reloader: &fakeReloader{}}

	resp := d.Handle(Request{Cmd: CmdOpenFirewallPorts, Name: "svc1", Ports: []uint16{9000}})
	if resp.Status != StatusSuccess {
		t.Fatalf("openFirewallPorts resp = %+v", resp)
	}
	if mgr.openedName != "svc1" {
		t.Errorf("openedName = %q, want \"svc1\"", mgr.openedName)
	}

	mgr.deleteRuleErr = errors.New(`firewall rule "svc1" not found`)
	resp = d.Handle(Request{Cmd: CmdDeleteFirewallRule, Name: "svc1"})
	if resp.Status != StatusError {
		t.Error("expected deleteFirewallRule to propagate a not-found error")
	}
}

func TestHandleOneshotSpawnAndStatus(t *testing.T) {
	mgr := &fakeManager{oneshotPid: 4242}
	d := &Dispatcher{Mgr: mgr, Reloader: &fakeReloader{}}

	spawnResp := d.Handle(Request{Cmd: CmdOneshotSpawn, Path: "probe.bat"})
	if spawnResp.Status != StatusSuccess {
		t.Fatalf("oneshotSpawn response = %+v", spawnResp)
	}

	statusResp := d.Handle(Request{Cmd: CmdOneshotStatus, Pid: 4242})
	if statusResp.Status != StatusSuccess {
		t.Fatalf("oneshotStatus response = %+v", statusResp)
	}

	if _, err := mgr.OneshotStatus(1); err == nil {
		t.Error("expected an error for a mismatched pid")
	}
}

func TestHandleUnknownCommand(t *testing.T) {
	d := &Dispatcher{Mgr: &fakeManager{}, Reloader: &fakeReloader{}}
	resp := d.Handle(Request{Cmd: Command("bogus")})
	if resp.Status != StatusError {
		t.Error("expected an error response for an unknown command")
	}
}
