// Package sched is a cooperative kernel over goroutines: a thread arena, a
// ready queue, and an interrupt mask modelling one execution unit. Exactly
// one kernel thread runs at a time; the baton between them is a per-thread
// runtime semaphore. The interrupt mask is a single ticket spin-lock whose
// logical ownership transfers across context switches, so masking interrupts
// gives real mutual exclusion even against plain goroutines entering through
// the interrupt-safe operations (Resume, Interrupt).
package sched

import (
	"errors"
	"math/rand/v2"
	"runtime"
	"strings"
	"sync/atomic"

	"github.com/llxisdsh/pb"
	"github.com/petermattis/goid"

	"github.com/llxisdsh/ksync/internal/opt"
)

// ErrStalled is returned (wrapped) by Run when no thread can make progress:
// the ready queue is empty, no interrupts are pending, and live threads
// remain blocked. Classic deadlocks surface this way.
var ErrStalled = errors.New("sched: all threads blocked")

// Kernel is a cooperative scheduler for a single execution unit.
// The zero value is not usable; construct with New.
type Kernel struct {
	_ noCopy

	// cpu is held exactly while interrupts are masked. It is never unlocked
	// during a context switch; the dispatched thread inherits it and its
	// eventual unmask performs the matching unlock.
	cpu ticketLock

	// maskOwner is the goroutine id that masked interrupts, 0 while the
	// mask is unowned or in transfer. Read without the lock on the
	// SetLevel fast path; only the owner clears it.
	maskOwner atomic.Int64

	dead atomic.Bool
	ran  atomic.Bool

	_ opt.CacheLinePad

	// gids maps goroutine ids to threads so Current works from any
	// goroutine without thread-locals.
	gids pb.MapOf[int64, *thread]

	// Fields below are guarded by the interrupt mask.
	arena      []*thread
	readyHead  *thread
	readyTail  *thread
	live       int
	idleT      *thread
	idleParked bool
	idleSema   opt.Sema
	isrq       []func()
	faults     []error
	rng        *rand.Rand
	idleWait   bool
	trace      func(event string)
}

// Option configures a Kernel.
type Option func(*Kernel)

// WithPreemption makes the kernel consult a seeded PCG at every point a
// thread re-enables interrupts and, if it hits and another thread is ready,
// force a yield. The same seed on the same program reproduces the same
// interleaving.
func WithPreemption(seed uint64) Option {
	return func(k *Kernel) {
		k.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// WithIdleWait makes Run park instead of reporting ErrStalled when the
// kernel quiesces. Use it when wakeups arrive from outside the kernel
// (interrupt-context goroutines calling Interrupt or resume-only operations).
func WithIdleWait() Option {
	return func(k *Kernel) { k.idleWait = true }
}

// WithTrace installs a hook receiving one event string per scheduling
// decision ("fork A", "run A", "block A", ...). The hook is called with
// interrupts masked and must not block or re-enter the kernel.
func WithTrace(fn func(event string)) Option {
	return func(k *Kernel) { k.trace = fn }
}

// New creates a stopped kernel. Fork threads onto it, then drive it with Run.
func New(opts ...Option) *Kernel {
	k := &Kernel{idleT: &thread{name: "idle"}}
	for _, o := range opts {
		o(k)
	}
	return k
}

// SetLevel sets the interrupt mask level and returns the previous level as
// seen by the caller. It is the enter/exit primitive of every critical
// section: use the save/restore pattern
//
//	tok := k.SetLevel(sched.IntOff)
//	...
//	k.SetLevel(tok)
//
// which nests correctly; only the outermost pair locks and unlocks the
// execution unit. Callable from any goroutine: a non-thread caller masking
// interrupts excludes the running thread for the duration, which is what
// makes interrupt-context operations safe.
func (k *Kernel) SetLevel(nl IntLevel) IntLevel {
	me := goid.Get()
	if k.maskOwner.Load() == me {
		if nl == IntOff {
			return IntOff
		}
		k.unmask()
		return IntOff
	}
	if nl == IntOff {
		k.cpu.Lock()
		k.maskOwner.Store(me)
		return IntOn
	}
	return IntOn
}

// unmask re-enables interrupts for the current owner: pending interrupt
// handlers run first (still masked), then the mask drops, then a preemption
// hit forces the caller to yield.
func (k *Kernel) unmask() {
	k.runInterrupts()
	preempt := false
	if k.rng != nil && k.readyHead != nil {
		if t := k.self(); t != nil && t != k.idleT {
			preempt = k.rng.Uint64()&1 == 0
		}
	}
	k.maskOwner.Store(0)
	k.cpu.Unlock()
	if preempt {
		k.Yield()
	}
}

// runInterrupts drains the pending interrupt queue. Interrupts masked.
// Handlers may queue further interrupts; those run too.
func (k *Kernel) runInterrupts() {
	for len(k.isrq) > 0 {
		fns := k.isrq
		k.isrq = nil
		for _, fn := range fns {
			k.emit("interrupt", "")
			fn()
		}
	}
}

// Interrupt schedules fn to run as an interrupt handler: masked, on whatever
// goroutine next re-enables interrupts (immediately, when the caller is not
// masked). fn must never block; the interrupt-safe operations (semaphore V,
// queue Wake, Resume, Fork) are the intended body.
func (k *Kernel) Interrupt(fn func()) {
	tok := k.SetLevel(IntOff)
	k.isrq = append(k.isrq, fn)
	k.kickIdle()
	k.SetLevel(tok)
}

// Fork creates a thread and makes it runnable. Safe from kernel threads,
// interrupt handlers, and plain goroutines alike.
func (k *Kernel) Fork(name string, body func()) Handle {
	if body == nil {
		panic("sched: fork with nil body")
	}
	if k.dead.Load() {
		panic("sched: fork on a stopped kernel")
	}
	tok := k.SetLevel(IntOff)
	t := &thread{name: name, body: body, state: stateReady}
	k.arena = append(k.arena, t)
	t.id = Handle(len(k.arena))
	k.live++
	k.enqueue(t)
	k.emit("fork", t.name)
	k.kickIdle()
	k.SetLevel(tok)
	go k.trampoline(t)
	return t.id
}

func (k *Kernel) trampoline(t *thread) {
	t.gid = goid.Get()
	k.gids.Store(t.gid, t)
	t.cpu.Acquire()
	if k.dead.Load() {
		k.gids.Delete(t.gid)
		return
	}
	k.takeCPU(t)
	k.SetLevel(IntOn)
	func() {
		defer func() {
			if r := recover(); r != nil {
				k.fault(t, r)
			}
		}()
		t.body()
	}()
	k.exit(t)
}

// exit retires the calling thread and hands the execution unit on. The mask
// taken here transfers with the hand-off; the next thread's unmask balances
// it.
func (k *Kernel) exit(t *thread) {
	k.SetLevel(IntOff)
	t.state = stateDone
	k.live--
	k.gids.Delete(t.gid)
	k.emit("exit", t.name)
	next := k.pickNext()
	k.maskOwner.Store(0)
	next.cpu.Release()
}

func (k *Kernel) fault(t *thread, r any) {
	tok := k.SetLevel(IntOff)
	if err, ok := r.(error); ok {
		k.faults = append(k.faults, wrapFault(t.name, err))
	} else {
		k.faults = append(k.faults, wrapFaultValue(t.name, r))
	}
	k.emit("fault", t.name)
	k.SetLevel(tok)
}

// Run dispatches threads until none are live. It returns nil on a clean
// finish, the joined panics of faulted threads, and/or an error wrapping
// ErrStalled naming the blocked threads when the kernel quiesces with work
// outstanding (unless WithIdleWait, in which case it parks and waits for
// interrupt-context wakeups instead).
//
// Run may be called once per kernel. After it returns, the only valid
// operations are state inspection and Stop.
func (k *Kernel) Run() error {
	if !k.ran.CompareAndSwap(false, true) {
		panic("sched: Run called twice")
	}
	k.idleT.gid = goid.Get()
	k.gids.Store(k.idleT.gid, k.idleT)
	k.SetLevel(IntOff)
	k.idleT.state = stateRunning

	var stalled []string
	for {
		k.runInterrupts()
		if next := k.dequeue(); next != nil {
			k.switchTo(k.idleT, next)
			continue
		}
		if k.live == 0 {
			break
		}
		if k.idleWait {
			k.idleParked = true
			k.SetLevel(IntOn)
			k.idleSema.Acquire()
			k.SetLevel(IntOff)
			continue
		}
		stalled = k.blockedNames()
		k.emit("stall", strings.Join(stalled, ","))
		break
	}

	errs := make([]error, 0, len(k.faults)+1)
	errs = append(errs, k.faults...)
	if stalled != nil {
		errs = append(errs, wrapStalled(stalled))
	}
	k.SetLevel(IntOn)
	k.gids.Delete(k.idleT.gid)
	return errors.Join(errs...)
}

// Stop tears a kernel down after Run has returned (typically on ErrStalled):
// every parked thread is released and exits through runtime.Goexit at its
// suspension point, running its deferred calls. Idempotent.
func (k *Kernel) Stop() {
	tok := k.SetLevel(IntOff)
	if !k.dead.Load() {
		k.dead.Store(true)
		for _, t := range k.arena {
			if t.state == stateBlocked || t.state == stateReady {
				t.cpu.Release()
			}
		}
	}
	k.SetLevel(tok)
}

// Yield moves the calling thread to the back of the ready queue and runs the
// next ready thread, if any. A no-op from non-thread goroutines and when
// nothing else is ready.
func (k *Kernel) Yield() {
	tok := k.SetLevel(IntOff)
	t := k.self()
	if t == nil || t == k.idleT {
		k.SetLevel(tok)
		return
	}
	if next := k.dequeue(); next != nil {
		t.state = stateReady
		k.enqueue(t)
		k.emit("yield", t.name)
		k.switchTo(t, next)
	}
	k.SetLevel(tok)
}

// Current returns the handle of the calling kernel thread, or None when the
// caller is not a kernel thread (the idle loop and all plain goroutines).
func (k *Kernel) Current() Handle {
	if t := k.self(); t != nil {
		return t.id
	}
	return None
}

// Suspend blocks the calling thread until a matching Resume. h must be the
// caller's own handle and interrupts must be masked; the mask travels with
// the hand-off and Suspend returns masked once the thread is dispatched
// again. This is the kernel's only suspension point.
func (k *Kernel) Suspend(h Handle) {
	t := k.self()
	if t == nil || t == k.idleT || t.id != h {
		panic("sched: suspend of a thread other than the caller")
	}
	if k.maskOwner.Load() != t.gid {
		panic("sched: suspend with interrupts enabled")
	}
	if k.dead.Load() {
		k.maskOwner.Store(0)
		k.cpu.Unlock()
		runtime.Goexit()
	}
	t.state = stateBlocked
	k.emit("block", t.name)
	k.switchTo(t, k.pickNext())
}

// Resume marks a blocked thread runnable. It never blocks and is safe from
// interrupt context. Mesa semantics: the thread is only made ready, not run.
func (k *Kernel) Resume(h Handle) {
	tok := k.SetLevel(IntOff)
	t := k.lookup(h)
	if t == nil || t.state != stateBlocked {
		k.SetLevel(tok)
		panic("sched: resume of a thread that is not blocked")
	}
	t.state = stateReady
	k.enqueue(t)
	k.emit("ready", t.name)
	k.kickIdle()
	k.SetLevel(tok)
}

// Blocked returns the names of currently blocked threads. Snapshot only.
func (k *Kernel) Blocked() []string {
	tok := k.SetLevel(IntOff)
	names := k.blockedNames()
	k.SetLevel(tok)
	return names
}

// switchTo hands the execution unit from t to next and parks t. Interrupts
// must be masked; the outstanding mask transfers to next. Returns masked
// when t is dispatched again.
func (k *Kernel) switchTo(t, next *thread) {
	k.maskOwner.Store(0)
	next.cpu.Release()
	t.cpu.Acquire()
	if k.dead.Load() {
		runtime.Goexit()
	}
	k.takeCPU(t)
}

func (k *Kernel) takeCPU(t *thread) {
	t.state = stateRunning
	k.maskOwner.Store(t.gid)
	k.emit("run", t.name)
}

func (k *Kernel) pickNext() *thread {
	if t := k.dequeue(); t != nil {
		return t
	}
	return k.idleT
}

func (k *Kernel) enqueue(t *thread) {
	t.next = nil
	if k.readyTail == nil {
		k.readyHead = t
	} else {
		k.readyTail.next = t
	}
	k.readyTail = t
}

func (k *Kernel) dequeue() *thread {
	t := k.readyHead
	if t == nil {
		return nil
	}
	k.readyHead = t.next
	if k.readyHead == nil {
		k.readyTail = nil
	}
	t.next = nil
	return t
}

func (k *Kernel) kickIdle() {
	if k.idleParked {
		k.idleParked = false
		k.idleSema.Release()
	}
}

func (k *Kernel) lookup(h Handle) *thread {
	if h == None || int(h) > len(k.arena) {
		return nil
	}
	return k.arena[h-1]
}

func (k *Kernel) self() *thread {
	if t, ok := k.gids.Load(goid.Get()); ok {
		return t
	}
	return nil
}

func (k *Kernel) blockedNames() []string {
	var names []string
	for _, t := range k.arena {
		if t.state == stateBlocked {
			names = append(names, t.name)
		}
	}
	return names
}

func (k *Kernel) emit(event, name string) {
	if k.trace == nil {
		return
	}
	if name == "" {
		k.trace(event)
		return
	}
	k.trace(event + " " + name)
}
