// Package assets embeds build-time constants that are more naturally
// produced as standalone artifacts than generated in Go: an MSBuild
// project used by the dotnet execution backend, and the reflective PE
// loader's shellcode stub used by the peload backend. Both mirror the
// appliance daemon's runbooks_embed.go pattern of embedding an
// externally-produced asset rather than constructing it at runtime.
package assets

import _ "embed"

// DotnetLoadProj is an MSBuild project that runs an arbitrary managed
// assembly with `dotnet exec`, parameterized by the
// AssemblyPath/Arguments/WorkingDirectory properties the dotnet backend
// passes on the command line. The assembly runs as a child process of
// msbuild; it is not loaded into the MSBuild process by reflection. It
// exists so that "run this .NET assembly" does not require hand-rolling
// a bespoke host binary.
//
//go:embed assembly_load_task.proj
var DotnetLoadProj []byte

// PELoaderShellcode is the machine code copied into a suspended host
// process by the reflective PE loader. The real daemon vendors this
// blob from an external build step (a small position-independent
// loader written and assembled outside of this repository); this tree
// embeds a placeholder of the same general shape (a short stub ending
// in a clean return) so the peload backend's memory-layout and
// calling-convention code has a concrete, fixed-size payload to
// allocate and write, without this repository shipping functional
// injection code.
//
//go:embed pe_loader_stub.bin
var PELoaderShellcode []byte
