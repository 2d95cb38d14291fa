// Package lherr defines the error taxonomy shared across LittleHydra's
// components, mirroring the Rust Error enum the daemon was ported from.
package lherr

import (
	"errors"
	"fmt"
)

// Kind classifies an error so callers can decide whether it is fatal to
// the daemon, reportable to an RPC client, or safe to absorb.
type Kind string

const (
	ConfigRead       Kind = "config-read"
	ConfigParse      Kind = "config-parse"
	OSAPI            Kind = "os-api"
	ProcessCreation  Kind = "process-creation"
	MemoryAllocation Kind = "memory-allocation"
	MemoryWrite      Kind = "memory-write"
	ThreadCreation   Kind = "thread-creation"
	Firewall         Kind = "firewall"
	ComInit          Kind = "com-init"
	Impersonation    Kind = "impersonation"
	LoggerInit       Kind = "logger-init"
	Protocol         Kind = "protocol"
)

// Error is a typed, op-tagged error. Op is a short dotted path such as
// "peload.writeShellcode" or "manager.startService" identifying where the
// failure occurred.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an *Error for the given kind/op/cause.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf constructs an *Error from a formatted message instead of a wrapped
// error, for call sites that only have a human-readable failure string
// (the common case when translating a raw Win32 error code).
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error, and reports whether one was found.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
