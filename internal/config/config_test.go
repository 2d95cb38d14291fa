package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleTOML = `
[general]
dotnet_path = "C:\\Program Files\\dotnet"
pwsh_path   = "C:\\Program Files\\PowerShell\\7"
rpc_port    = 7777

[[service]]
name            = "B"
exec_type       = "cmd"
path            = "C:\\svc\\b.bat"
working_dir     = "C:\\svc"
start_priority  = 1
restart_on_error = true
ports           = [9000]

[[service]]
name            = "A"
exec_type       = "ps1"
path            = "C:\\svc\\a.ps1"
working_dir     = "C:\\svc"
start_priority  = 10
restart_on_error = false
`

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadParsesServicesAndDefaults(t *testing.T) {
	path := writeTemp(t, sampleTOML)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.General.RPCPort != 7777 {
		t.Errorf("RPCPort = %d, want 7777", cfg.General.RPCPort)
	}
	if len(cfg.Services) != 2 {
		t.Fatalf("len(Services) = %d, want 2", len(cfg.Services))
	}
	if cfg.Services[1].Args == nil {
		t.Error("Args should default to an empty slice, not nil")
	}
	if cfg.Services[1].Ports == nil {
		t.Error("Ports should default to an empty slice, not nil")
	}
}

func TestLoadRejectsDuplicateNames(t *testing.T) {
	path := writeTemp(t, `
[general]
dotnet_path = "x"
pwsh_path = "y"
rpc_port = 1

[[service]]
name = "dup"
exec_type = "cmd"
path = "a"
working_dir = "."
start_priority = 0
restart_on_error = false

[[service]]
name = "dup"
exec_type = "cmd"
path = "b"
working_dir = "."
start_priority = 0
restart_on_error = false
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for duplicate service names")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestSaveRoundTrips(t *testing.T) {
	path := writeTemp(t, sampleTOML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	outPath := filepath.Join(t.TempDir(), "out.toml")
	if err := Save(outPath, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	reloaded, err := Load(outPath)
	if err != nil {
		t.Fatalf("reload after Save() error = %v", err)
	}
	if len(reloaded.Services) != len(cfg.Services) {
		t.Errorf("round-tripped service count = %d, want %d", len(reloaded.Services), len(cfg.Services))
	}
	if reloaded.General.RPCPort != cfg.General.RPCPort {
		t.Errorf("round-tripped RPCPort = %d, want %d", reloaded.General.RPCPort, cfg.General.RPCPort)
	}
}

func TestParseServiceJSONDefaultsAndValidation(t *testing.T) {
	var svc ServiceDefinition
	err := ParseServiceJSON([]byte(`{"exec_type":"cmd","path":"p","working_dir":"."}`), &svc)
	if err != nil {
		t.Fatalf("ParseServiceJSON() error = %v", err)
	}
	if svc.Args == nil || svc.Ports == nil {
		t.Error("ParseServiceJSON should default Args and Ports to empty slices")
	}

	if err := ParseServiceJSON([]byte(`{"exec_type":"bogus","path":"p"}`), &svc); err == nil {
		t.Error("expected an error for an unknown exec_type")
	}
}
