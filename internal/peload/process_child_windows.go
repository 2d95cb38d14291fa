//go:build windows

package peload

import (
	"sync"

	"golang.org/x/sys/windows"

	"github.com/littlehydra/daemon/internal/procchild"
)

// processChild adapts a raw process handle obtained from CreateProcess to
// the procchild.Child interface. Unlike execChild it has no *exec.Cmd to
// call Wait on, so it waits on the handle directly via
// WaitForSingleObject and reads the exit code itself.
type processChild struct {
	handle windows.Handle
	pid    int
	done   chan procchild.ExitResult

	killOnce sync.Once
}

func newProcessChild(handle windows.Handle, pid int) *processChild {
	c := &processChild{
		handle: handle,
		pid:    pid,
		done:   make(chan procchild.ExitResult, 1),
	}
	go c.wait()
	return c
}

func (c *processChild) wait() {
	defer windows.CloseHandle(c.handle)

	if _, err := windows.WaitForSingleObject(c.handle, windows.INFINITE); err != nil {
		c.done <- procchild.ExitResult{ExitCode: -1, Err: err}
		return
	}

	var code uint32
	if err := windows.GetExitCodeProcess(c.handle, &code); err != nil {
		c.done <- procchild.ExitResult{ExitCode: -1, Err: err}
		return
	}
	c.done <- procchild.ExitResult{ExitCode: int32(code)}
}

func (c *processChild) Pid() int { return c.pid }

func (c *processChild) Kill() error {
	var err error
	c.killOnce.Do(func() {
		err = windows.TerminateProcess(c.handle, 1)
	})
	return err
}

func (c *processChild) Done() <-chan procchild.ExitResult { return c.done }
