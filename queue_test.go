package ksync

import (
	"testing"

	"github.com/llxisdsh/ksync/sched"
)

func TestThreadQueueTwoPartyRendezvous(t *testing.T) {
	// The raw queue is enough for a two-party rendezvous: the first arrival
	// sleeps, the second wakes it. The surrounding masked span is the
	// caller's job.
	k := sched.New()
	q := NewThreadQueue(k)
	arrived := false
	meetings := 0
	meet := func() {
		tok := k.SetLevel(sched.IntOff)
		if !arrived {
			arrived = true
			q.Sleep()
		} else {
			arrived = false
			q.Wake()
		}
		meetings++
		k.SetLevel(tok)
	}
	k.Fork("A", meet)
	k.Fork("B", meet)
	if err := k.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if meetings != 2 {
		t.Errorf("meetings = %d, want 2", meetings)
	}
}

func TestThreadQueueWakeEmptyIsNoop(t *testing.T) {
	k := sched.New()
	q := NewThreadQueue(k)
	k.Fork("A", func() {
		tok := k.SetLevel(sched.IntOff)
		q.Wake()
		q.WakeAll()
		if !q.Empty() {
			t.Error("queue not empty after no-op wakes")
		}
		k.SetLevel(tok)
	})
	if err := k.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestThreadQueueWakeAllWakesEveryWaiter(t *testing.T) {
	k := sched.New()
	q := NewThreadQueue(k)
	slept := 0
	for range 3 {
		k.Fork("sleeper", func() {
			tok := k.SetLevel(sched.IntOff)
			q.Sleep()
			slept++
			k.SetLevel(tok)
		})
	}
	k.Fork("waker", func() {
		tok := k.SetLevel(sched.IntOff)
		q.WakeAll()
		if !q.Empty() {
			t.Error("queue not empty after WakeAll")
		}
		k.SetLevel(tok)
	})
	if err := k.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if slept != 3 {
		t.Errorf("woken sleepers = %d, want 3", slept)
	}
}

func TestThreadQueueSleepOutsideThreadPanics(t *testing.T) {
	k := sched.New()
	q := NewThreadQueue(k)
	tok := k.SetLevel(sched.IntOff)
	defer k.SetLevel(tok)
	defer func() {
		if recover() == nil {
			t.Error("expected panic sleeping outside a kernel thread")
		}
	}()
	q.Sleep()
}
