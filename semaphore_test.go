package ksync

import (
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/llxisdsh/ksync/sched"
)

func TestSemaphoreInitialCredits(t *testing.T) {
	k := sched.New()
	s := NewSemaphore(k, 2)
	k.Fork("A", func() {
		s.P()
		s.P()
	})
	if err := k.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if c := s.Count(); c != 0 {
		t.Errorf("count = %d, want 0", c)
	}
}

func TestSemaphorePBlocksUntilV(t *testing.T) {
	k := sched.New()
	s := NewSemaphore(k, 0)
	var got []string
	k.Fork("A", func() {
		got = append(got, "P enter")
		s.P()
		got = append(got, "P exit")
	})
	k.Fork("B", func() {
		got = append(got, "V")
		s.V()
	})
	if err := k.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []string{"P enter", "V", "P exit"}
	if !slices.Equal(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
	if c := s.Count(); c != 0 {
		t.Errorf("count = %d, want 0", c)
	}
}

func TestSemaphoreTwoCreditsThreeWaiters(t *testing.T) {
	k := sched.New()
	defer k.Stop()
	s := NewSemaphore(k, 0)
	var done int
	for _, name := range []string{"A", "B", "C"} {
		k.Fork(name, func() {
			s.P()
			done++
		})
	}
	k.Fork("D", func() {
		s.V()
		s.V()
	})
	err := k.Run()
	if !errors.Is(err, sched.ErrStalled) {
		t.Fatalf("Run = %v, want ErrStalled", err)
	}
	if done != 2 {
		t.Errorf("returned P calls = %d, want 2", done)
	}
	if blocked := k.Blocked(); len(blocked) != 1 {
		t.Errorf("blocked = %v, want exactly one", blocked)
	}
	if c := s.Count(); c != 0 {
		t.Errorf("count = %d, want 0", c)
	}
}

func TestSemaphoreVFromInterruptContext(t *testing.T) {
	k := sched.New(sched.WithIdleWait())
	s := NewSemaphore(k, 0)
	var woke bool
	k.Fork("A", func() {
		s.P()
		woke = true
	})

	// V must stay legal from a context that cannot block.
	go func() {
		time.Sleep(10 * time.Millisecond)
		k.Interrupt(func() { s.V() })
	}()

	if err := k.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !woke {
		t.Error("P did not return after interrupt-context V")
	}
}

func TestSemaphoreRendezvous(t *testing.T) {
	for seed := uint64(0); seed < 32; seed++ {
		k := sched.New(sched.WithPreemption(seed))
		s1 := NewSemaphore(k, 0)
		s2 := NewSemaphore(k, 0)
		var aDone, bDone bool
		k.Fork("A", func() {
			s1.V()
			s2.P()
			aDone = true
		})
		k.Fork("B", func() {
			s2.V()
			s1.P()
			bDone = true
		})
		if err := k.Run(); err != nil {
			t.Fatalf("seed %d: Run: %v", seed, err)
		}
		if !aDone || !bDone {
			t.Fatalf("seed %d: rendezvous incomplete: A=%v B=%v", seed, aDone, bDone)
		}
	}
}

func TestSemaphoreCreditAccounting(t *testing.T) {
	const parties = 8
	for seed := uint64(0); seed < 8; seed++ {
		k := sched.New(sched.WithPreemption(seed))
		s := NewSemaphore(k, 0)
		for range parties {
			k.Fork("consumer", func() { s.P() })
		}
		for range parties {
			k.Fork("producer", func() { s.V() })
		}
		if err := k.Run(); err != nil {
			t.Fatalf("seed %d: Run: %v", seed, err)
		}
		if c := s.Count(); c != 0 {
			t.Errorf("seed %d: count = %d, want 0", seed, c)
		}
	}
}
