package continuation

import (
	"errors"
	"testing"
	"time"

	"github.com/availlang/avail/internal/types"
)

// stubCallable is the minimal Callable a Continuation needs; it carries no
// real code, only the slot-sizing metadata NewConstruction consults.
type stubCallable struct {
	args, locals, maxStack int
}

func (s *stubCallable) Kind() types.Kind                { return types.KindFunction }
func (s *stubCallable) Equals(o types.Object) bool      { return o == types.Object(s) }
func (s *stubCallable) Hash() uint32                    { return 0 }
func (s *stubCallable) RuntimeType() types.Type         { return types.Top }
func (s *stubCallable) String() string                  { return "a stub function" }
func (s *stubCallable) Immutable() types.Object         { return s }
func (s *stubCallable) ArgCount() int                   { return s.args }
func (s *stubCallable) LocalCount() int                 { return s.locals }
func (s *stubCallable) MaxStackDepth() int              { return s.maxStack }

func intVal(n int64) types.Value { return types.ObjectValue(types.NewInteger(n)) }

func TestFiberSuspendBlocksUntilResumeWith(t *testing.T) {
	f := NewFiber(nil, 0)
	if f.State() != FiberRunning {
		t.Fatalf("expected a freshly forked fiber to start running, got %v", f.State())
	}

	resumed := make(chan types.Value, 1)
	go func() {
		resumed <- f.Suspend(SuspendReason("waiting-for-test"))
	}()

	for f.State() != FiberSuspended {
		time.Sleep(time.Millisecond)
	}
	if f.SuspendReason() != SuspendReason("waiting-for-test") {
		t.Fatalf("expected the suspend reason to be recorded, got %q", f.SuspendReason())
	}

	f.ResumeWith(intVal(7))

	select {
	case v := <-resumed:
		iv, ok := v.AsObject().(*types.Integer)
		if !ok || iv.Value.Int64() != 7 {
			t.Fatalf("expected Suspend to return the resume value 7, got %v", v)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for Suspend to return")
	}
	if f.State() != FiberRunning {
		t.Fatalf("expected the fiber to be running again after resume, got %v", f.State())
	}
}

func TestFiberJoinObservesSetResult(t *testing.T) {
	f := NewFiber(nil, 0)

	type joinResult struct {
		v   types.Value
		err error
	}
	joined := make(chan joinResult, 1)
	go func() {
		v, err := f.Join()
		joined <- joinResult{v, err}
	}()

	f.SetResult(intVal(99), nil)

	select {
	case r := <-joined:
		if r.err != nil {
			t.Fatalf("unexpected join error: %v", r.err)
		}
		iv, ok := r.v.AsObject().(*types.Integer)
		if !ok || iv.Value.Int64() != 99 {
			t.Fatalf("expected the joined value to be 99, got %v", r.v)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for Join")
	}
	if f.State() != FiberTerminated {
		t.Fatalf("expected the fiber to be terminated, got %v", f.State())
	}
}

func TestFiberJoinAfterTerminationReturnsImmediately(t *testing.T) {
	f := NewFiber(nil, 0)
	wantErr := errors.New("boom")
	f.SetResult(types.NilValue(), wantErr)

	v, err := f.Join()
	if err != wantErr {
		t.Fatalf("expected the recorded error, got %v", err)
	}
	if v.Kind() != types.KindNil {
		t.Fatalf("expected a nil value alongside the error, got %v", v)
	}
}

func TestFiberSetResultIsIdempotent(t *testing.T) {
	f := NewFiber(nil, 0)
	f.SetResult(intVal(1), nil)
	f.SetResult(intVal(2), nil) // second call must be a no-op

	v, err := f.Join()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if iv := v.AsObject().(*types.Integer); iv.Value.Int64() != 1 {
		t.Fatalf("expected the first SetResult to win, got %d", iv.Value.Int64())
	}
}

func TestFiberRequestCancelSetsCancelRequested(t *testing.T) {
	f := NewFiber(nil, 0)
	if f.CancelRequested() {
		t.Fatalf("expected a fresh fiber to not have cancellation requested")
	}
	f.RequestCancel()
	if !f.CancelRequested() {
		t.Fatalf("expected RequestCancel to set the flag observed at safe points")
	}
}

func TestContinuationSlotRoundTripAndFreeze(t *testing.T) {
	fn := &stubCallable{args: 1, locals: 1, maxStack: 2}
	c := NewConstruction(nil, fn)
	if got := c.SlotCount(); got != 4 {
		t.Fatalf("expected args+locals+maxStack = 4 slots, got %d", got)
	}

	c.SlotAtPut(0, intVal(5))
	if got := c.SlotAt(0); got.AsObject().(*types.Integer).Value.Int64() != 5 {
		t.Fatalf("expected slot 0 to round-trip, got %v", got)
	}

	c.Freeze()
	if !c.IsFrozen() {
		t.Fatalf("expected IsFrozen to report true after Freeze")
	}

	defer func() {
		if recover() == nil {
			t.Fatalf("expected SlotAtPut after Freeze to panic")
		}
	}()
	c.SlotAtPut(1, intVal(6))
}

func TestContinuationGrowStack(t *testing.T) {
	fn := &stubCallable{args: 0, locals: 0, maxStack: 1}
	c := NewConstruction(nil, fn)
	before := c.SlotCount()
	c.GrowStack()
	if c.SlotCount() <= before {
		t.Fatalf("expected GrowStack to add slots, had %d now %d", before, c.SlotCount())
	}
}
