//go:build !windows

package peload

import (
	"context"
	"io"

	"github.com/littlehydra/daemon/internal/procchild"
)

// Launch always fails on non-Windows builds; the reflective loader is
// meaningless without VirtualAllocEx/WriteProcessMemory/CreateRemoteThread.
func Launch(ctx context.Context, hostPath string, args []string, workingDir string) (procchild.Child, io.ReadCloser, error) {
	return nil, nil, ErrUnsupportedPlatform
}
