package sched

import (
	"github.com/llxisdsh/ksync/internal/opt"
)

// Handle identifies a kernel thread. Handles are stable arena indices owned
// by the kernel; holders of a Handle never own the thread's lifetime.
type Handle uint32

// None is the zero Handle. Current returns it for goroutines that are not
// kernel threads.
const None Handle = 0

// IntLevel is the interrupt mask level of the execution unit.
type IntLevel uint8

const (
	// IntOn means interrupts are enabled: the running thread can be
	// preempted and interrupt handlers can run.
	IntOn IntLevel = iota
	// IntOff means interrupts are masked: no other state mutation on the
	// execution unit can interleave.
	IntOff
)

type threadState uint8

const (
	stateReady threadState = iota
	stateRunning
	stateBlocked
	stateDone
)

// thread is the kernel-private record behind a Handle.
type thread struct {
	id    Handle
	name  string
	state threadState // guarded by the interrupt mask
	body  func()

	// gid is the goroutine id backing this thread, written by the thread's
	// own goroutine before it first becomes runnable.
	gid int64

	// cpu is the baton: a thread runs only between an Acquire returning and
	// the next hand-off. Exactly one Release is outstanding per dispatch.
	cpu opt.Sema

	// next links the ready queue. Guarded by the interrupt mask.
	next *thread
}
