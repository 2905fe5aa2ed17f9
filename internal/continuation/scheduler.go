package continuation

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/availlang/avail/internal/types"
)

// RunFunc executes one fiber's top-level frame to completion or suspension
// and reports the fiber's terminal value, mirroring the interpreter's
// entry point (internal/l1 or internal/dispatch provide the real
// implementation; this package only owns scheduling).
type RunFunc func(ctx context.Context, f *Fiber) (types.Value, error)

// Scheduler runs at most maxExecutors fibers concurrently — "the runtime
// runs one fiber per executor thread" (spec.md §4.2, §5) — using a
// semaphore to bound concurrency and an errgroup to join fibers forked
// together and propagate the first unhandled exception, the same
// fork/join shape the teacher gets from goroutines + sync.WaitGroup but
// generalized to a bounded pool (spec.md SPEC_FULL.md domain-stack entry
// for golang.org/x/sync).
type Scheduler struct {
	sem *semaphore.Weighted
	run RunFunc
}

// NewScheduler creates a scheduler with room for maxExecutors fibers
// running in parallel.
func NewScheduler(maxExecutors int64, run RunFunc) *Scheduler {
	if maxExecutors < 1 {
		maxExecutors = 1
	}
	return &Scheduler{sem: semaphore.NewWeighted(maxExecutors), run: run}
}

// Fork schedules f to run as soon as an executor slot is free and returns
// immediately; the fiber's result is available via f.Join().
func (s *Scheduler) Fork(ctx context.Context, f *Fiber) {
	go func() {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			f.SetResult(types.Value{}, err)
			return
		}
		defer s.sem.Release(1)

		v, err := s.run(ctx, f)
		f.SetResult(v, err)
	}()
}

// RunAll forks every fiber in group and waits for all of them, returning
// the first error encountered (if any) the way an errgroup.Group does for
// a batch of fibers forked together and joined as a unit.
func (s *Scheduler) RunAll(ctx context.Context, group []*Fiber) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, f := range group {
		f := f
		g.Go(func() error {
			if err := s.sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer s.sem.Release(1)
			v, err := s.run(gctx, f)
			f.SetResult(v, err)
			return err
		})
	}
	return g.Wait()
}
