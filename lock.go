package ksync

import (
	"errors"

	"github.com/llxisdsh/ksync/sched"
)

// ErrNotOwner is the panic value of Release when the caller does not hold
// the lock. Ownership is never silently transferred.
var ErrNotOwner = errors.New("ksync: lock released by a thread that does not hold it")

// Lock is a mutual-exclusion primitive with ownership: between a successful
// Acquire and its matching Release no other Acquire succeeds, and only the
// owner may Release.
//
// Lock is not reentrant. A second Acquire by the owner sleeps forever
// waiting for itself; this is a documented limitation, not detected.
type Lock struct {
	_     noCopy
	rt    Runtime
	held  bool
	owner sched.Handle
	queue ThreadQueue
}

// NewLock creates an unheld Lock.
func NewLock(rt Runtime) *Lock {
	return &Lock{rt: rt, queue: ThreadQueue{rt: rt}}
}

// Acquire blocks until the lock is free, then takes it for the calling
// thread.
func (l *Lock) Acquire() {
	tok := l.rt.SetLevel(sched.IntOff)
	if l.rt.Current() == sched.None {
		l.rt.SetLevel(tok)
		panic("ksync: lock acquired outside a kernel thread")
	}
	l.acquire()
	l.rt.SetLevel(tok)
}

// acquire is the masked body of Acquire, shared with Cond's re-acquire
// after Wait. Interrupts must be masked.
func (l *Lock) acquire() {
	for l.held {
		l.queue.Sleep()
	}
	l.held = true
	l.owner = l.rt.Current()
}

// Release frees the lock and wakes one waiter. Panics with ErrNotOwner —
// leaving the lock untouched — when the caller is not the current owner.
func (l *Lock) Release() {
	tok := l.rt.SetLevel(sched.IntOff)
	if !l.held || l.owner != l.rt.Current() {
		l.rt.SetLevel(tok)
		panic(ErrNotOwner)
	}
	l.release()
	l.rt.SetLevel(tok)
}

// release is the masked body of Release, shared with Cond.Wait (which must
// drop the lock inside its own critical section rather than calling the
// public Release). Interrupts must be masked.
func (l *Lock) release() {
	l.held = false
	l.owner = sched.None
	l.queue.Wake()
}

// HeldByCurrent reports whether the calling thread owns the lock. Intended
// for assertions in monitor code.
func (l *Lock) HeldByCurrent() bool {
	tok := l.rt.SetLevel(sched.IntOff)
	ok := l.held && l.owner == l.rt.Current()
	l.rt.SetLevel(tok)
	return ok
}

// Holder returns a snapshot of the owning thread's handle, sched.None when
// unheld.
func (l *Lock) Holder() sched.Handle {
	tok := l.rt.SetLevel(sched.IntOff)
	h := l.owner
	l.rt.SetLevel(tok)
	return h
}
