// ksim runs a YAML-described thread scenario on a ksync kernel and prints
// the schedule trace, one line per scheduling decision. Useful for poking at
// interleavings without writing a test:
//
//	ksim scenario.yaml
//	ksim -seed 42 scenario.yaml
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/llxisdsh/ksync"
	"github.com/llxisdsh/ksync/sched"
)

type scenario struct {
	Seed       uint64            `yaml:"seed"`
	Preempt    bool              `yaml:"preempt"`
	Semaphores map[string]uint32 `yaml:"semaphores"`
	Locks      []string          `yaml:"locks"`
	Threads    []threadSpec      `yaml:"threads"`
}

type threadSpec struct {
	Name string   `yaml:"name"`
	Ops  []string `yaml:"ops"`
}

func main() {
	log.SetFlags(0)
	log.SetPrefix("ksim: ")
	seed := flag.Uint64("seed", 0, "override the scenario's preemption seed")
	flag.Parse()
	if flag.NArg() != 1 {
		log.Fatalf("usage: ksim [-seed n] scenario.yaml")
	}

	raw, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		log.Fatal(err)
	}
	var sc scenario
	if err := yaml.Unmarshal(raw, &sc); err != nil {
		log.Fatalf("parse %s: %v", flag.Arg(0), err)
	}
	if *seed != 0 {
		sc.Seed = *seed
		sc.Preempt = true
	}

	var opts []sched.Option
	if sc.Preempt {
		opts = append(opts, sched.WithPreemption(sc.Seed))
	}
	opts = append(opts, sched.WithTrace(func(ev string) {
		fmt.Println("  " + ev)
	}))
	k := sched.New(opts...)

	sems := make(map[string]*ksync.Semaphore, len(sc.Semaphores))
	for name, count := range sc.Semaphores {
		sems[name] = ksync.NewSemaphore(k, count)
	}
	locks := make(map[string]*ksync.Lock, len(sc.Locks))
	for _, name := range sc.Locks {
		locks[name] = ksync.NewLock(k)
	}

	for _, ts := range sc.Threads {
		body, err := compile(k, ts, sems, locks)
		if err != nil {
			log.Fatalf("thread %s: %v", ts.Name, err)
		}
		k.Fork(ts.Name, body)
	}

	err = k.Run()
	for name, s := range sems {
		fmt.Printf("semaphore %s: count=%d\n", name, s.Count())
	}
	if err != nil {
		k.Stop()
		log.Fatal(err)
	}
}

// compile turns a thread's op list into its body. Ops are "verb operand"
// pairs: p/v on a semaphore, acquire/release on a lock, or a bare yield.
func compile(k *sched.Kernel, ts threadSpec, sems map[string]*ksync.Semaphore, locks map[string]*ksync.Lock) (func(), error) {
	steps := make([]func(), 0, len(ts.Ops))
	for _, op := range ts.Ops {
		fields := strings.Fields(op)
		if len(fields) == 0 {
			continue
		}
		verb := fields[0]
		if verb == "yield" {
			steps = append(steps, k.Yield)
			continue
		}
		if len(fields) != 2 {
			return nil, fmt.Errorf("op %q: want %q", op, verb+" <name>")
		}
		name := fields[1]
		switch verb {
		case "p", "v":
			s, ok := sems[name]
			if !ok {
				return nil, fmt.Errorf("op %q: unknown semaphore %s", op, name)
			}
			if verb == "p" {
				steps = append(steps, s.P)
			} else {
				steps = append(steps, s.V)
			}
		case "acquire", "release":
			l, ok := locks[name]
			if !ok {
				return nil, fmt.Errorf("op %q: unknown lock %s", op, name)
			}
			if verb == "acquire" {
				steps = append(steps, l.Acquire)
			} else {
				steps = append(steps, l.Release)
			}
		default:
			return nil, fmt.Errorf("op %q: unknown verb %s", op, verb)
		}
	}
	return func() {
		for _, step := range steps {
			step()
		}
	}, nil
}
