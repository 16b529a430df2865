package autopilot

import (
	"context"
	"time"
)

// Clock abstracts timing so crossfades run against a virtual clock in tests.
type Clock interface {
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// fade is a cancellable scheduled task: a fixed number of discrete steps
// spread evenly over a fixed total duration. Step ordering is guaranteed;
// stepFn(1)..stepFn(steps) each fire exactly once unless ctx is cancelled.
type fade struct {
	duration time.Duration
	steps    int
	stepFn   func(step int)
}

func (f fade) run(ctx context.Context, clock Clock) error {
	interval := f.duration / time.Duration(f.steps)
	for step := 1; step <= f.steps; step++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-clock.After(interval):
		}
		f.stepFn(step)
	}
	return nil
}
