//go:build !windows

package rpc

import "errors"

// ErrUnsupportedPlatform is returned by ServePipe on any non-Windows
// build: named pipes of this shape are a Windows-only IPC primitive.
var ErrUnsupportedPlatform = errors.New("rpc: named pipe server requires windows")

// PipeName is the control pipe name ServePipe listens on under Windows.
const PipeName = `\\.\pipe\little_hydra_rpc`

// ServePipe always fails on non-Windows builds.
func (d *Dispatcher) ServePipe(stop <-chan struct{}) error {
	return ErrUnsupportedPlatform
}
