package ksync

import (
	"github.com/llxisdsh/ksync/sched"
)

// ThreadQueue is an ordered holding area for blocked thread handles: the
// building block under Semaphore, Lock and Cond, exposed for the rare case
// an application needs something more basic (e.g. a two-party rendezvous).
//
// Every operation requires the caller to have masked interrupts first; the
// queue never masks on its own. Insertion is FIFO and a handle is queued at
// most once (only the running thread can enqueue itself). Dequeue order is
// FIFO today but unspecified: callers must not depend on wake order beyond
// "wakes one/all waiters present at the call".
type ThreadQueue struct {
	_    noCopy
	rt   Runtime
	head *waiter
	tail *waiter
}

type waiter struct {
	h    sched.Handle
	next *waiter
}

// NewThreadQueue creates an empty queue on rt.
func NewThreadQueue(rt Runtime) *ThreadQueue {
	return &ThreadQueue{rt: rt}
}

// Sleep enqueues the calling thread and suspends it. It returns, still
// masked, only when a later Wake or WakeAll selects this thread. The single
// suspension point of the package.
func (q *ThreadQueue) Sleep() {
	h := q.rt.Current()
	if h == sched.None {
		panic("ksync: sleep outside a kernel thread")
	}
	w := &waiter{h: h}
	if q.tail == nil {
		q.head = w
	} else {
		q.tail.next = w
	}
	q.tail = w
	q.rt.Suspend(h)
}

// Wake dequeues one waiter and makes it runnable. Silent no-op on an empty
// queue. Never sleeps; safe from interrupt context (with interrupts masked,
// which interrupt handlers already are).
func (q *ThreadQueue) Wake() {
	w := q.head
	if w == nil {
		return
	}
	q.head = w.next
	if q.head == nil {
		q.tail = nil
	}
	q.rt.Resume(w.h)
}

// WakeAll wakes every thread waiting at the time of the call.
func (q *ThreadQueue) WakeAll() {
	for q.head != nil {
		q.Wake()
	}
}

// Empty reports whether no thread is waiting. Interrupts must be masked.
func (q *ThreadQueue) Empty() bool {
	return q.head == nil
}
