package rpc

import (
	"fmt"

	"github.com/littlehydra/daemon/internal/config"
	"github.com/littlehydra/daemon/internal/manager"
)

// Manager is the subset of *manager.ProcessManager the RPC layer drives.
// Declared as an interface so the server can be tested without a real
// process manager behind it.
type Manager interface {
	ListStates() []manager.ServiceStatus
	Status(name string) (manager.ServiceStatus, bool)
	StartService(name string) error
	StopService(name string) error
	AddService(def config.ServiceDefinition) error
	DeleteService(name string) error
	GetConfig(general config.GeneralSettings) *config.Config
	SaveConfig(general config.GeneralSettings) error
	OpenFirewallPorts(name string, ports []uint16) error
	DeleteFirewallRule(name string) error
	OneshotSpawn(kind config.ExecKind, path string, args []string, workingDir string, ports []uint16) (int, error)
	OneshotStatus(pid int) (manager.OneshotStatus, error)
}

// ConfigReloader lets the getConfig/saveConfig/reloadConfig handlers
// reach back into daemon startup state without the rpc package importing
// cmd/littlehydra.
type ConfigReloader interface {
	ReloadConfig() error
	GeneralSettings() config.GeneralSettings
}

// Dispatcher routes Requests to a Manager and a ConfigReloader.
type Dispatcher struct {
	Mgr      Manager
	Reloader ConfigReloader
}

// Handle executes req and always returns a well-formed Response — errors
// from the underlying manager call are converted to a StatusError
// response rather than propagated, since the only thing downstream of
// Handle is wire serialization.
func (d *Dispatcher) Handle(req Request) Response {
	switch req.Cmd {
	case CmdPing:
		return ok("pong")

	case CmdInfo:
		return ok(map[string]any{
			"app_version":      Version,
			"build_date":       BuildDate,
			"protocol_version": ProtocolVersion,
		})

	case CmdListServices:
		return ok(d.Mgr.ListStates())

	case CmdStartService:
		if req.Name == "" {
			return fail(fmt.Errorf("startService requires a name"))
		}
		if err := d.Mgr.StartService(req.Name); err != nil {
			return fail(err)
		}
		status, _ := d.Mgr.Status(req.Name)
		return ok(map[string]any{"name": req.Name, "state": status.State})

	case CmdStopService:
		if req.Name == "" {
			return fail(fmt.Errorf("stopService requires a name"))
		}
		if err := d.Mgr.StopService(req.Name); err != nil {
			return fail(err)
		}
		status, _ := d.Mgr.Status(req.Name)
		return ok(map[string]any{"name": req.Name, "state": status.State, "exit_code": status.LastExitCode})

	case CmdAddService:
		if req.Service == nil {
			return fail(fmt.Errorf("addService requires a service definition"))
		}
		if err := d.Mgr.AddService(*req.Service); err != nil {
			return fail(err)
		}
		return ok(map[string]any{"name": req.Service.Name, "status": "Added"})

	case CmdDeleteService:
		if req.Name == "" {
			return fail(fmt.Errorf("deleteService requires a name"))
		}
		if err := d.Mgr.DeleteService(req.Name); err != nil {
			return fail(err)
		}
		return ok(map[string]any{"name": req.Name, "status": "Deleted"})

	case CmdGetConfig:
		return ok(d.Mgr.GetConfig(d.Reloader.GeneralSettings()))

	case CmdSaveConfig:
		if err := d.Mgr.SaveConfig(d.Reloader.GeneralSettings()); err != nil {
			return fail(err)
		}
		return ok(map[string]string{"status": "ConfigSaved"})

	case CmdOpenFirewallPorts:
		if req.Name == "" {
			return fail(fmt.Errorf("openFirewallPorts requires a name"))
		}
		if err := d.Mgr.OpenFirewallPorts(req.Name, req.Ports); err != nil {
			return fail(err)
		}
		return ok(map[string]any{"name": req.Name, "ports": req.Ports, "status": "PortsOpened"})

	case CmdDeleteFirewallRule:
		if req.Name == "" {
			return fail(fmt.Errorf("deleteFirewallRule requires a name"))
		}
		if err := d.Mgr.DeleteFirewallRule(req.Name); err != nil {
			return fail(err)
		}
		return ok(map[string]any{"name": req.Name, "status": "FirewallRuleDeleted"})

	case CmdOneshotSpawn:
		if req.Path == "" {
			return fail(fmt.Errorf("oneshotSpawn requires a path"))
		}
		pid, err := d.Mgr.OneshotSpawn(req.ExecKind, req.Path, req.Args, req.WorkingDir, req.Ports)
		if err != nil {
			return fail(err)
		}
		return ok(map[string]any{"pid": pid})

	case CmdOneshotStatus:
		if req.Pid == 0 {
			return fail(fmt.Errorf("oneshotStatus requires a pid"))
		}
		status, err := d.Mgr.OneshotStatus(req.Pid)
		if err != nil {
			return fail(err)
		}
		return ok(status)

	case CmdReloadConfig:
		if err := d.Reloader.ReloadConfig(); err != nil {
			return fail(err)
		}
		return ok(nil)

	default:
		return fail(fmt.Errorf("unknown command %q", req.Cmd))
	}
}
