package ksync

import (
	"errors"

	"github.com/llxisdsh/ksync/sched"
)

// ErrLockNotHeld is the panic value of Cond operations invoked by a thread
// that does not hold the associated lock.
var ErrLockNotHeld = errors.New("ksync: condition variable used without holding its lock")

// Cond is a Mesa-style condition variable permanently bound to one Lock at
// construction. Wait atomically releases the lock and sleeps; Signal wakes
// at most one waiter; Broadcast wakes every thread waiting at the time of
// the call. Several Conds may share one Lock.
//
// Every operation requires the caller to hold the associated lock. A woken
// waiter re-acquires the lock before Wait returns, but by then the awaited
// predicate may no longer hold — always Wait inside a loop:
//
//	for !predicate() {
//		cond.Wait()
//	}
type Cond struct {
	_     noCopy
	lock  *Lock
	queue ThreadQueue
}

// NewCond creates a Cond bound to lock. The binding is fixed for the life of
// the Cond.
func NewCond(lock *Lock) *Cond {
	if lock == nil {
		panic("ksync: condition variable with nil lock")
	}
	return &Cond{lock: lock, queue: ThreadQueue{rt: lock.rt}}
}

// Wait releases the associated lock, sleeps until signaled, and re-acquires
// the lock before returning.
//
// Release, enqueue and suspend happen inside one masked span, so no signal
// can slip between the lock release and the enqueue: the lost-wakeup race is
// closed by construction. The lock release is folded inline (not the public
// Release) to stay within this span.
func (c *Cond) Wait() {
	rt := c.lock.rt
	tok := rt.SetLevel(sched.IntOff)
	if !c.holdsLock() {
		rt.SetLevel(tok)
		panic(ErrLockNotHeld)
	}
	c.lock.release()
	c.queue.Sleep()
	c.lock.acquire()
	rt.SetLevel(tok)
}

// Signal wakes at most one waiter. The caller keeps holding the lock; the
// woken thread merely becomes runnable and re-checks its predicate later.
// A no-op with no waiters.
func (c *Cond) Signal() {
	rt := c.lock.rt
	tok := rt.SetLevel(sched.IntOff)
	if !c.holdsLock() {
		rt.SetLevel(tok)
		panic(ErrLockNotHeld)
	}
	c.queue.Wake()
	rt.SetLevel(tok)
}

// Broadcast wakes every thread waiting at the time of the call. Threads that
// begin waiting afterwards are unaffected.
func (c *Cond) Broadcast() {
	rt := c.lock.rt
	tok := rt.SetLevel(sched.IntOff)
	if !c.holdsLock() {
		rt.SetLevel(tok)
		panic(ErrLockNotHeld)
	}
	c.queue.WakeAll()
	rt.SetLevel(tok)
}

// holdsLock reports whether the caller owns the associated lock.
// Interrupts must be masked.
func (c *Cond) holdsLock() bool {
	return c.lock.held && c.lock.owner == c.lock.rt.Current()
}
