package continuation

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/availlang/avail/internal/types"
)

// FiberState enumerates a fiber's lifecycle states (spec.md §3 "Fiber").
type FiberState int32

const (
	FiberRunning FiberState = iota
	FiberSuspended
	FiberTerminated
	FiberWaitingOnJoin
	FiberWaitingOnIO
)

func (s FiberState) String() string {
	switch s {
	case FiberRunning:
		return "running"
	case FiberSuspended:
		return "suspended"
	case FiberTerminated:
		return "terminated"
	case FiberWaitingOnJoin:
		return "waiting-on-join"
	case FiberWaitingOnIO:
		return "waiting-on-io"
	default:
		return "unknown"
	}
}

// SuspendReason records why a fiber was suspended, for diagnostics and for
// the scheduler to pick a resumption strategy.
type SuspendReason string

// Fiber is a cooperatively scheduled task (spec.md §3 "Fiber" and §5
// "Scheduling model"). It holds a current continuation chain, execution
// state, priority, a joiner set, and a result slot.
type Fiber struct {
	ID uuid.UUID

	mu       sync.Mutex
	state    int32 // FiberState, accessed atomically for the cancel/safe-point fast path
	current  *Continuation
	priority int
	reason   SuspendReason

	joiners []chan joinResult
	result  types.Value
	err     error
	done    bool

	cancelRequested int32 // consulted at safe points; spec.md §4.2 "Cancellation"

	resumeCh chan types.Value // delivers the value a suspended primitive resumes with
}

type joinResult struct {
	value types.Value
	err   error
}

// NewFiber forks a fiber with the given priority, starting at root (the
// initial continuation for the forked function). Corresponds to spec.md
// §4.2 "fork(f, args, priority) → fiber": the caller is responsible for
// building root from f and args via continuation.NewConstruction before
// calling NewFiber.
func NewFiber(root *Continuation, priority int) *Fiber {
	return &Fiber{
		ID:       uuid.New(),
		current:  root,
		priority: priority,
		state:    int32(FiberRunning),
	}
}

func (f *Fiber) State() FiberState { return FiberState(atomic.LoadInt32(&f.state)) }

func (f *Fiber) Current() *Continuation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *Fiber) SetCurrent(c *Continuation) {
	f.mu.Lock()
	f.current = c
	f.mu.Unlock()
}

func (f *Fiber) Priority() int { return f.priority }

// RequestCancel sets the cancel flag; the next safe point observes it and
// raises a cancellation exception in the fiber (spec.md §4.2, §5).
func (f *Fiber) RequestCancel() { atomic.StoreInt32(&f.cancelRequested, 1) }

// CancelRequested is polled at every safe point (L1 instruction boundary,
// L2 chunk entry, primitive boundary per spec.md §5).
func (f *Fiber) CancelRequested() bool { return atomic.LoadInt32(&f.cancelRequested) != 0 }

// Suspend transitions the fiber to the suspended state with reason and
// blocks the calling goroutine until ResumeWith delivers a value (spec.md
// §5 "Suspension"). Each fiber occupies its own goroutine (spec.md
// "one fiber per executor thread"), so blocking here parks only that
// fiber, leaving its interpreter call stack intact for the eventual
// resume — no stack capture/replay is needed.
func (f *Fiber) Suspend(reason SuspendReason) types.Value {
	f.mu.Lock()
	f.reason = reason
	if f.resumeCh == nil {
		f.resumeCh = make(chan types.Value, 1)
	}
	ch := f.resumeCh
	f.mu.Unlock()

	atomic.StoreInt32(&f.state, int32(FiberSuspended))
	v := <-ch
	atomic.StoreInt32(&f.state, int32(FiberRunning))
	return v
}

func (f *Fiber) SuspendReason() SuspendReason {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reason
}

// ResumeWith delivers v to a fiber parked in Suspend, transitioning it back
// to running with v on top of its operand stack (spec.md §5, scenario S5
// "resuming F with value v leaves F's top-of-stack equal to v").
func (f *Fiber) ResumeWith(v types.Value) {
	f.mu.Lock()
	ch := f.resumeCh
	f.mu.Unlock()
	if ch == nil {
		return
	}
	ch <- v
}

// SetResult records the fiber's terminal value, wakes any joiners, and
// marks the fiber terminated (spec.md §4.2 "setResult(v)").
func (f *Fiber) SetResult(v types.Value, err error) {
	f.mu.Lock()
	if f.done {
		f.mu.Unlock()
		return
	}
	f.result, f.err, f.done = v, err, true
	joiners := f.joiners
	f.joiners = nil
	f.mu.Unlock()

	atomic.StoreInt32(&f.state, int32(FiberTerminated))
	for _, ch := range joiners {
		ch <- joinResult{value: v, err: err}
		close(ch)
	}
}

// Join blocks the calling goroutine until f terminates, returning its
// result or the exception it terminated with (spec.md §4.2
// "join(fiber) → value"). It does not block an OS thread beyond the
// caller's own goroutine, matching "one fiber per executor thread."
func (f *Fiber) Join() (types.Value, error) {
	f.mu.Lock()
	if f.done {
		v, err := f.result, f.err
		f.mu.Unlock()
		return v, err
	}
	ch := make(chan joinResult, 1)
	f.joiners = append(f.joiners, ch)
	f.mu.Unlock()

	res := <-ch
	return res.value, res.err
}

func (f *Fiber) Kind() types.Kind { return types.KindFiber }
func (f *Fiber) String() string   { return "a fiber (" + f.State().String() + ")" }
func (f *Fiber) Hash() uint32     { return hashUUID(f.ID) }
func (f *Fiber) Immutable() types.Object {
	return f // fibers are inherently mutable/shared; cannot be copied immutably
}
func (f *Fiber) Equals(o types.Object) bool { return o == types.Object(f) }
func (f *Fiber) RuntimeType() types.Type    { return types.Primitive(types.KindFiber) }

func hashUUID(id uuid.UUID) uint32 {
	var h uint32 = 2166136261
	for _, b := range id {
		h ^= uint32(b)
		h *= 16777619
	}
	return h
}
