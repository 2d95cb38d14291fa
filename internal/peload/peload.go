// Package peload implements LittleHydra's reflective PE loader backend:
// it starts a host process suspended, writes a loader stub and an image
// descriptor into its address space, and resumes execution at the stub
// instead of the process's own entry point. This lets a single trusted
// host binary (passed as path) act as a carrier for an arbitrary PE
// image named in args[0], without that image ever touching disk as a
// freestanding executable the host process directly runs.
//
// The loader stub itself (internal/assets.PELoaderShellcode) is an
// externally-produced artifact, not generated by this package; see
// internal/assets for why.
package peload

import "errors"

// ErrUnsupportedPlatform is returned by Launch on any non-Windows build.
var ErrUnsupportedPlatform = errors.New("peload: reflective PE loading requires windows")

// descriptor mirrors the two-pointer structure written into the target
// process alongside the loader stub: a pointer to the null-terminated
// UTF-8 image path, and a pointer to a null-terminated UTF-8 argument
// string (nil/0 when there are no extra arguments). The stub reads this
// structure to locate the image it should map and run.
type descriptor struct {
	imageNamePtr uintptr
	imageArgsPtr uintptr
}
