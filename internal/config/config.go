// Package config loads and persists LittleHydra's TOML service
// configuration, mirroring the defaulting and validation style of
// osiriscare/agent's internal/config package but against a TOML document
// instead of JSON.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/littlehydra/daemon/internal/lherr"
)

// ExecKind is one of the five polymorphic execution backends a
// ServiceDefinition can launch through.
type ExecKind string

const (
	ExecCmd     ExecKind = "cmd"
	ExecPs1     ExecKind = "ps1"
	ExecDotnet  ExecKind = "dotnet"
	ExecMsbuild ExecKind = "msbuild"
	ExecPELoad  ExecKind = "peload"
)

func (k ExecKind) valid() bool {
	switch k {
	case ExecCmd, ExecPs1, ExecDotnet, ExecMsbuild, ExecPELoad:
		return true
	default:
		return false
	}
}

// ServiceDefinition is the declarative description of one supervised
// service, as loaded from a [[service]] table in config.toml.
type ServiceDefinition struct {
	Name            string   `toml:"name" json:"name"`
	ExecKind        ExecKind `toml:"exec_type" json:"exec_type"`
	Path            string   `toml:"path" json:"path"`
	Args            []string `toml:"args" json:"args"`
	WorkingDir      string   `toml:"working_dir" json:"working_dir"`
	StartPriority   uint32   `toml:"start_priority" json:"start_priority"`
	RestartOnError  bool     `toml:"restart_on_error" json:"restart_on_error"`
	Ports           []uint16 `toml:"ports" json:"ports"`
}

// GeneralSettings holds daemon-wide settings read from the [general] table.
type GeneralSettings struct {
	DotnetPath string `toml:"dotnet_path" json:"dotnet_path"`
	PwshPath   string `toml:"pwsh_path" json:"pwsh_path"`
	RPCPort    uint16 `toml:"rpc_port" json:"rpc_port"`
}

// Config is the full on-disk configuration document.
type Config struct {
	General  GeneralSettings     `toml:"general" json:"general"`
	Services []ServiceDefinition `toml:"service" json:"service"`
}

// Load reads and parses a TOML config file, applying field defaults and
// enforcing service-name uniqueness. Any I/O failure is a ConfigRead
// error; any parse failure is a ConfigParse error — both are intended to
// abort daemon startup per the error-handling design.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, lherr.New(lherr.ConfigRead, "config.Load", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, lherr.New(lherr.ConfigParse, "config.Load", err)
	}

	applyDefaults(&cfg)

	if err := validateUnique(cfg.Services); err != nil {
		return nil, lherr.New(lherr.ConfigParse, "config.Load", err)
	}

	return &cfg, nil
}

// Save serializes cfg to TOML and writes it to path. Serialization happens
// before any write so a marshal failure never truncates the prior file.
func Save(path string, cfg *Config) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("serialize config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func applyDefaults(cfg *Config) {
	for i := range cfg.Services {
		if cfg.Services[i].Args == nil {
			cfg.Services[i].Args = []string{}
		}
		if cfg.Services[i].Ports == nil {
			cfg.Services[i].Ports = []uint16{}
		}
	}
}

func validateUnique(services []ServiceDefinition) error {
	seen := make(map[string]struct{}, len(services))
	for _, svc := range services {
		if _, dup := seen[svc.Name]; dup {
			return fmt.Errorf("duplicate service name %q", svc.Name)
		}
		seen[svc.Name] = struct{}{}
		if !svc.ExecKind.valid() {
			return fmt.Errorf("service %q: unknown exec_type %q", svc.Name, svc.ExecKind)
		}
	}
	return nil
}

// ParseServiceJSON decodes a single service definition from a JSON
// fragment, applying the same Args/Ports defaults as Load and rejecting
// an unknown exec_type. encoding/json is used because the RPC wire format
// is JSON (see internal/rpc), even though the on-disk config is TOML.
// The RPC layer does not call it: addService's definition is decoded as
// part of rpc.Request, without these defaults or the exec_type check.
func ParseServiceJSON(data []byte, out *ServiceDefinition) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("parse service definition: %w", err)
	}
	if out.Args == nil {
		out.Args = []string{}
	}
	if out.Ports == nil {
		out.Ports = []uint16{}
	}
	if !out.ExecKind.valid() {
		return fmt.Errorf("unknown exec_type %q", out.ExecKind)
	}
	return nil
}
