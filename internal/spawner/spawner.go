// Package spawner presents the single polymorphic launch contract the
// process manager uses regardless of execution backend: Cmd, Ps1, Dotnet,
// Msbuild and PELoad all spawn behind the same Spawn method and return a
// Child plus a merged stdout+stderr reader.
package spawner

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/littlehydra/daemon/internal/assets"
	"github.com/littlehydra/daemon/internal/config"
	"github.com/littlehydra/daemon/internal/lherr"
)

// FirewallPermitter is the pre-flight collaborator the spawner calls into
// before launching a service that declares ports. It is satisfied by
// firewall.Engine; kept as an interface here so the spawner package
// doesn't need to import the windows-only firewall implementation.
type FirewallPermitter interface {
	PermitPorts(name string, ports []uint16) error
}

// Result is what Spawn returns: the live child handle plus the readable
// end of its merged output pipe.
type Result struct {
	Child  Child
	Output io.ReadCloser
}

// Spawner holds the settings needed to build backend command lines.
type Spawner struct {
	General  config.GeneralSettings
	Firewall FirewallPermitter
}

// New constructs a Spawner.
func New(general config.GeneralSettings, fw FirewallPermitter) *Spawner {
	return &Spawner{General: general, Firewall: fw}
}

// Spawn launches name using the given backend and returns its handle and
// merged output reader. If ports is non-empty, the firewall pre-flight
// runs first and its failure fails the spawn without ever invoking the
// backend.
func (s *Spawner) Spawn(ctx context.Context, name string, kind config.ExecKind, path string, args []string, workingDir string, ports []uint16) (*Result, error) {
	if len(ports) > 0 {
		if err := s.Firewall.PermitPorts(name, ports); err != nil {
			return nil, lherr.New(lherr.Firewall, "spawner.Spawn", fmt.Errorf("permit ports for %q: %w", name, err))
		}
	}

	switch kind {
	case config.ExecCmd:
		return s.spawnCmd(path, args, workingDir)
	case config.ExecPs1:
		return s.spawnPs1(path, args, workingDir)
	case config.ExecDotnet:
		return s.spawnDotnet(path, args, workingDir)
	case config.ExecMsbuild:
		return s.spawnMsbuild(path, args, workingDir)
	case config.ExecPELoad:
		return s.spawnPELoad(ctx, path, args, workingDir)
	default:
		return nil, lherr.Newf(lherr.ProcessCreation, "spawner.Spawn", "unknown exec kind %q", kind)
	}
}

// mergedPipe creates the single OS pipe shared by a child's stdout and
// stderr, per the output-multiplexer contract: one pipe, both streams on
// the write end, stdin always null.
func mergedPipe() (read *os.File, write *os.File, err error) {
	read, write, err = os.Pipe()
	if err != nil {
		return nil, nil, err
	}
	return read, write, nil
}

func devNull() (*os.File, error) {
	return os.OpenFile(os.DevNull, os.O_RDONLY, 0)
}

// runExecCmd wires stdin/stdout/stderr per the merged-pipe contract, starts
// cmd, and wraps it as a Child + reader pair. The write end is closed in
// the parent once the child has it so the reader observes EOF on exit.
func runExecCmd(cmd *exec.Cmd, kindLabel string) (*Result, error) {
	stdin, err := devNull()
	if err != nil {
		return nil, lherr.New(lherr.ProcessCreation, "spawner."+kindLabel, err)
	}
	defer stdin.Close()

	readEnd, writeEnd, err := mergedPipe()
	if err != nil {
		return nil, lherr.New(lherr.ProcessCreation, "spawner."+kindLabel, err)
	}

	cmd.Stdin = stdin
	cmd.Stdout = writeEnd
	cmd.Stderr = writeEnd

	if err := cmd.Start(); err != nil {
		readEnd.Close()
		writeEnd.Close()
		return nil, lherr.Newf(lherr.ProcessCreation, "spawner."+kindLabel, "failed to start %s: %v", kindLabel, err)
	}
	writeEnd.Close()

	return &Result{Child: newExecChild(cmd), Output: readEnd}, nil
}

func (s *Spawner) spawnCmd(path string, args []string, workingDir string) (*Result, error) {
	cmdArgs := append([]string{"/C", path}, args...)
	cmd := exec.Command("cmd.exe", cmdArgs...)
	cmd.Dir = workingDir
	return runExecCmd(cmd, "cmd")
}

func (s *Spawner) spawnPs1(path string, args []string, workingDir string) (*Result, error) {
	pwshExe := filepath.Join(s.General.PwshPath, "pwsh.exe")
	cmdArgs := append([]string{"-ExecutionPolicy", "Bypass", "-File", path}, args...)
	cmd := exec.Command(pwshExe, cmdArgs...)
	cmd.Dir = workingDir
	return runExecCmd(cmd, "ps1")
}

func (s *Spawner) spawnMsbuild(path string, args []string, workingDir string) (*Result, error) {
	dotnetExe := dotnetExePath(s.General.DotnetPath)
	cmdArgs := append([]string{"msbuild", path}, args...)
	cmd := exec.Command(dotnetExe, cmdArgs...)
	cmd.Dir = workingDir
	return runExecCmd(cmd, "msbuild")
}

// spawnDotnet writes the embedded AssemblyLoadTask.proj template into a
// fresh, intentionally-not-cleaned-up temp directory and invokes it via
// `dotnet msbuild`; the project then runs the assembly at path with
// `dotnet exec`, so no bespoke .NET host is needed.
func (s *Spawner) spawnDotnet(path string, args []string, workingDir string) (*Result, error) {
	tempDir, err := os.MkdirTemp("", "littlehydra-dotnet-")
	if err != nil {
		return nil, lherr.New(lherr.ProcessCreation, "spawner.dotnet", err)
	}

	projPath := filepath.Join(tempDir, "AssemblyLoadTask.proj")
	if err := os.WriteFile(projPath, assets.DotnetLoadProj, 0o644); err != nil {
		return nil, lherr.New(lherr.ProcessCreation, "spawner.dotnet", err)
	}

	dotnetExe := dotnetExePath(s.General.DotnetPath)

	cmdArgs := []string{"msbuild", projPath, "/p:AssemblyPath=" + path}
	if len(args) > 0 {
		cmdArgs = append(cmdArgs, "/p:Arguments="+joinArgs(args))
	}
	if workingDir != "" {
		cmdArgs = append(cmdArgs, "/p:WorkingDirectory="+workingDir)
	}

	cmd := exec.Command(dotnetExe, cmdArgs...)
	cmd.Dir = tempDir
	cmd.Env = append(os.Environ(),
		"DOTNET_CLI_TELEMETRY_OPTOUT=1",
		"DOTNET_EnableWriteXorExecute=0",
		"DOTNET_NOLOGO=1",
		"DOTNET_ROLL_FORWARD=LatestMajor",
	)

	return runExecCmd(cmd, "dotnet")
}

func dotnetExePath(dotnetPath string) string {
	if filepath.Base(dotnetPath) == "dotnet.exe" {
		return dotnetPath
	}
	return filepath.Join(dotnetPath, "dotnet.exe")
}

func joinArgs(args []string) string {
	out := ""
	for i, a := range args {
		if i > 0 {
			out += " "
		}
		out += a
	}
	return out
}
