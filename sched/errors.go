package sched

import (
	"fmt"
	"strings"
)

func wrapFault(name string, err error) error {
	return fmt.Errorf("thread %s: %w", name, err)
}

func wrapFaultValue(name string, r any) error {
	return fmt.Errorf("thread %s: %v", name, r)
}

func wrapStalled(names []string) error {
	return fmt.Errorf("%w: %s", ErrStalled, strings.Join(names, ", "))
}
