package lherr

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	err := New(Firewall, "firewall.permitPorts", fmt.Errorf("0x80070005"))
	want := "firewall.permitPorts: firewall: 0x80070005"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestErrorFormattingNilCause(t *testing.T) {
	err := &Error{Kind: ProcessCreation, Op: "spawner.spawn"}
	want := "spawner.spawn: process-creation"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestKindOfUnwraps(t *testing.T) {
	inner := New(MemoryAllocation, "peload.writeShellcode", errors.New("access denied"))
	wrapped := fmt.Errorf("spawn failed: %w", inner)

	kind, ok := KindOf(wrapped)
	if !ok {
		t.Fatal("expected KindOf to find a wrapped *Error")
	}
	if kind != MemoryAllocation {
		t.Errorf("kind = %q, want %q", kind, MemoryAllocation)
	}
}

func TestKindOfMiss(t *testing.T) {
	if _, ok := KindOf(errors.New("plain error")); ok {
		t.Error("expected KindOf to report false for a plain error")
	}
}
