package spawner

import (
	"os/exec"
	"sync"

	"github.com/littlehydra/daemon/internal/procchild"
)

// execChild adapts an *exec.Cmd (the Cmd, Ps1, Dotnet and Msbuild backends)
// to the Child interface.
type execChild struct {
	cmd  *exec.Cmd
	done chan procchild.ExitResult

	killOnce sync.Once
}

func newExecChild(cmd *exec.Cmd) *execChild {
	c := &execChild{
		cmd:  cmd,
		done: make(chan procchild.ExitResult, 1),
	}
	go c.wait()
	return c
}

func (c *execChild) wait() {
	err := c.cmd.Wait()
	if err == nil {
		c.done <- procchild.ExitResult{ExitCode: 0}
		return
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		c.done <- procchild.ExitResult{ExitCode: int32(exitErr.ExitCode())}
		return
	}
	// Wait failed for a reason other than a non-zero exit (e.g. the
	// process handle became invalid): treat as exited with unknown code.
	c.done <- procchild.ExitResult{ExitCode: -1, Err: err}
}

func (c *execChild) Pid() int { return c.cmd.Process.Pid }

func (c *execChild) Kill() error {
	var err error
	c.killOnce.Do(func() {
		err = c.cmd.Process.Kill()
	})
	return err
}

func (c *execChild) Done() <-chan procchild.ExitResult { return c.done }
