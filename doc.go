// Package ksync provides the classic kernel synchronization primitives over
// a cooperative scheduler: a thread wait queue, a counting semaphore, a
// mutual-exclusion lock with ownership, and a Mesa-style condition variable
// bound to one lock.
//
// Every primitive makes its state transitions atomic the same single way:
// by masking interrupts on the execution unit through the save/restore
// pattern
//
//	tok := rt.SetLevel(sched.IntOff)
//	...
//	rt.SetLevel(tok)
//
// which is sufficient on one execution unit and generalizes behind the same
// contract (the sched kernel backs it with a global spin lock, so
// interrupt-context goroutines are excluded too).
//
// # Mesa semantics
//
// Waking a thread only makes it runnable; it is not guaranteed to run before
// the signaler or anyone else re-examines the shared state. Any predicate
// checked before sleeping must therefore be re-checked after waking, in a
// loop. Semaphore.P and Lock.Acquire do this internally; users of Cond must
// do it themselves.
//
// # Monitor discipline
//
// A monitor is one Lock plus the Cond variables bound to it. Every monitor
// method must:
//
//  1. Acquire the Lock as its first action.
//  2. Release the Lock on every exit path.
//  3. Call Wait only inside a loop re-checking the awaited predicate.
//  4. Signal or Broadcast whenever a state change could make a waiting
//     predicate true, even without proof that a waiter exists. A spurious
//     signal is always safe; a missed signal is not.
//
// # Interrupt context
//
// Semaphore.V, ThreadQueue.Wake and WakeAll never sleep and are safe to call
// where blocking is impossible, e.g. inside a sched.Kernel.Interrupt handler.
// P, Acquire, Wait and Sleep may suspend the caller and are only legal on a
// kernel thread.
//
// There is no deadlock detection, no timeout and no cancellation: a sleeping
// thread is woken only by a matching wake. Lock is not reentrant; a second
// Acquire by the owner deadlocks. Wake order is FIFO today but deliberately
// unspecified — do not rely on it.
package ksync
