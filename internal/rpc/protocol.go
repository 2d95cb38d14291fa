// Package rpc implements LittleHydra's control-plane wire protocol: a
// tagged-union JSON request/response pair framed one-per-line over any
// io.ReadWriter, served over a single-instance named pipe and an
// optional TCP listener bound on all interfaces.
package rpc

import "github.com/littlehydra/daemon/internal/config"

// Version and BuildDate are overridden at link time (-ldflags) by a real
// release build; the defaults here only show up in a dev build.
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
)

// ProtocolVersion is the wire protocol version reported by the info
// command. It changes only if the command set or envelope shape changes.
const ProtocolVersion = 1

// Command names the operations the daemon exposes over RPC.
type Command string

const (
	CmdInfo               Command = "info"
	CmdListServices       Command = "listServices"
	CmdStartService       Command = "startService"
	CmdStopService        Command = "stopService"
	CmdAddService         Command = "addService"
	CmdDeleteService      Command = "deleteService"
	CmdGetConfig          Command = "getConfig"
	CmdSaveConfig         Command = "saveConfig"
	CmdOpenFirewallPorts  Command = "openFirewallPorts"
	CmdDeleteFirewallRule Command = "deleteFirewallRule"
	CmdOneshotSpawn       Command = "oneshotSpawn"
	CmdOneshotStatus      Command = "oneshotStatus"
	CmdReloadConfig       Command = "reloadConfig"
	CmdPing               Command = "ping"
)

// Request is the tagged-union envelope every line sent to the daemon
// must deserialize into. Cmd selects which of the optional fields below
// are meaningful; unused fields are omitted by well-behaved clients but
// are never required to be absent.
type Request struct {
	Cmd Command `json:"cmd"`

	// startService, stopService, deleteService, openFirewallPorts,
	// deleteFirewallRule
	Name string `json:"name,omitempty"`

	// addService: a full service definition (see config.ServiceDefinition)
	Service *config.ServiceDefinition `json:"service,omitempty"`

	// oneshotSpawn: an ad hoc launch, not added to the persisted registry.
	// openFirewallPorts also reuses Ports.
	ExecKind   config.ExecKind `json:"exec_type,omitempty"`
	Path       string          `json:"path,omitempty"`
	Args       []string        `json:"args,omitempty"`
	WorkingDir string          `json:"working_dir,omitempty"`
	Ports      []uint16        `json:"ports,omitempty"`

	// oneshotStatus: the OneshotRegistry is keyed by the child's pid.
	Pid int `json:"pid,omitempty"`
}

// Status is the outcome tag every Response carries.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Response is the tagged-union envelope returned for every Request. On
// StatusError, Message holds a human-readable message and Data is always
// nil; on StatusSuccess, Data holds whatever payload the command
// produces.
type Response struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func ok(data any) Response {
	return Response{Status: StatusSuccess, Data: data}
}

func fail(err error) Response {
	return Response{Status: StatusError, Message: err.Error()}
}
