package ksync

import (
	"github.com/llxisdsh/ksync/sched"
)

// Runtime is what the primitives consume from the scheduler and the
// interrupt controller. *sched.Kernel satisfies it.
type Runtime interface {
	// Current returns the calling thread's handle, sched.None for
	// non-thread goroutines.
	Current() sched.Handle
	// Suspend blocks the calling thread (h must be its own handle) until a
	// matching Resume. Requires interrupts masked; returns masked.
	Suspend(h sched.Handle)
	// Resume makes a blocked thread runnable. Never blocks; safe from
	// interrupt context.
	Resume(h sched.Handle)
	// SetLevel sets the interrupt mask level, returning the previous one.
	// Use only via the save/restore pattern.
	SetLevel(nl sched.IntLevel) sched.IntLevel
}

// noCopy may be added to structs which must not be copied
// after the first use.
//
// See https://golang.org/issues/8005#issuecomment-190753527
// for details.
//
// Note that it must not be embedded, due to the Lock and Unlock methods.
type noCopy struct{}

// Lock is a no-op used by -copylocks checker from `go vet`.
func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
