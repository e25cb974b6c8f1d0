package ksync

import (
	"github.com/llxisdsh/ksync/sched"
)

// Semaphore is a counting semaphore over a ThreadQueue: P consumes a credit,
// sleeping until one is available; V adds a credit and wakes one waiter.
//
// The counter can never go negative. V never sleeps, so it is safe from a
// context that cannot block (an interrupt handler); P suspends the caller
// and is only legal on a kernel thread.
type Semaphore struct {
	_     noCopy
	rt    Runtime
	count uint32
	queue ThreadQueue
}

// NewSemaphore creates a Semaphore with the given number of initial credits.
func NewSemaphore(rt Runtime, count uint32) *Semaphore {
	return &Semaphore{rt: rt, count: count, queue: ThreadQueue{rt: rt}}
}

// P waits for a credit and consumes it.
//
// The count is re-checked in a loop after every resume: being woken only
// means the count was non-zero at wake time, not that it still is when this
// thread finally runs (Mesa semantics — another P may have barged in).
func (s *Semaphore) P() {
	tok := s.rt.SetLevel(sched.IntOff)
	for s.count == 0 {
		s.queue.Sleep()
	}
	s.count--
	s.rt.SetLevel(tok)
}

// V adds a credit and wakes one waiter. The wake is attempted
// unconditionally; waking nobody is a valid, silent outcome.
func (s *Semaphore) V() {
	tok := s.rt.SetLevel(sched.IntOff)
	s.count++
	s.queue.Wake()
	s.rt.SetLevel(tok)
}

// Count returns a snapshot of the available credits.
func (s *Semaphore) Count() uint32 {
	tok := s.rt.SetLevel(sched.IntOff)
	c := s.count
	s.rt.SetLevel(tok)
	return c
}
