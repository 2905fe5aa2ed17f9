package primitive

import (
	"testing"

	"github.com/availlang/avail/internal/types"
)

type stubContext struct {
	stack       []types.Value
	resumeValue types.Value
}

func (s *stubContext) Push(v types.Value) { s.stack = append(s.stack, v) }
func (s *stubContext) Pop() types.Value {
	last := s.stack[len(s.stack)-1]
	s.stack = s.stack[:len(s.stack)-1]
	return last
}
func (s *stubContext) Invoke(fn types.Object, args []types.Value) (Outcome, types.Value, error) {
	return Success, types.NilValue(), nil
}
func (s *stubContext) Suspend(reason string) types.Value { return s.resumeValue }

func intVal(n int64) types.Value { return types.ObjectValue(types.NewInteger(n)) }

func TestValidateRejectsFoldWithoutInline(t *testing.T) {
	p := &Primitive{
		Name:  "Bad",
		Flags: CanFold,
		Attempt: func(ctx Context, args []types.Value, skip bool) (Outcome, types.Value, error) {
			return Success, types.NilValue(), nil
		},
	}
	if err := p.Validate(); err == nil {
		t.Fatalf("expected Validate to reject CanFold without CanInline")
	}
}

func TestValidateRejectsMissingAttempt(t *testing.T) {
	p := &Primitive{Name: "NoBody"}
	if err := p.Validate(); err == nil {
		t.Fatalf("expected Validate to reject a nil Attempt")
	}
}

func TestCoreRegistryLookupByNumberAndName(t *testing.T) {
	r := NewCoreRegistry()

	p, ok := r.Lookup(NumIntegerAdd)
	if !ok {
		t.Fatalf("expected IntegerAdd to be registered")
	}
	if p.Name != "IntegerAdd" {
		t.Fatalf("got name %q", p.Name)
	}

	p2, ok := r.LookupByName("IntegerMultiply")
	if !ok || p2.Number != NumIntegerMultiply {
		t.Fatalf("LookupByName failed: %+v %v", p2, ok)
	}

	if _, ok := r.Lookup(9999); ok {
		t.Fatalf("expected unregistered number to miss")
	}
}

func TestIntegerAddAttempt(t *testing.T) {
	r := NewCoreRegistry()
	p, _ := r.Lookup(NumIntegerAdd)

	outcome, v, err := p.Attempt(&stubContext{}, []types.Value{intVal(2), intVal(3)}, false)
	if err != nil || outcome != Success {
		t.Fatalf("unexpected outcome %v err %v", outcome, err)
	}
	if got := v.AsObject().(*types.Integer).Value.Int64(); got != 5 {
		t.Fatalf("2+3 = %d, want 5", got)
	}
}

func TestIntegerDivideFloorRounding(t *testing.T) {
	r := NewCoreRegistry()
	p, _ := r.Lookup(NumIntegerDivide)

	// Floor division: -7 / 2 == -4 (not -3, which truncation would give).
	outcome, v, err := p.Attempt(&stubContext{}, []types.Value{intVal(-7), intVal(2)}, false)
	if err != nil || outcome != Success {
		t.Fatalf("unexpected outcome %v err %v", outcome, err)
	}
	if got := v.AsObject().(*types.Integer).Value.Int64(); got != -4 {
		t.Fatalf("-7 div 2 = %d, want -4", got)
	}
}

func TestIntegerDivideByZeroFails(t *testing.T) {
	r := NewCoreRegistry()
	p, _ := r.Lookup(NumIntegerDivide)

	outcome, v, err := p.Attempt(&stubContext{}, []types.Value{intVal(1), intVal(0)}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != Failure {
		t.Fatalf("expected Failure outcome dividing by zero, got %v", outcome)
	}
	atom, ok := v.AsObject().(*types.Atom)
	if !ok || atom.Name != "zero-divisor" {
		t.Fatalf("expected zero-divisor atom, got %v", v)
	}
}

func TestTupleAtBoundsChecking(t *testing.T) {
	r := NewCoreRegistry()
	p, _ := r.Lookup(NumTupleAt)
	tup := types.ObjectValue(types.NewTuple([]types.Value{intVal(10), intVal(20), intVal(30)}))

	outcome, v, err := p.Attempt(&stubContext{}, []types.Value{tup, intVal(2)}, false)
	if err != nil || outcome != Success || v.AsObject().(*types.Integer).Value.Int64() != 20 {
		t.Fatalf("TupleAt(2) failed: outcome=%v v=%v err=%v", outcome, v, err)
	}

	outcome, v, err = p.Attempt(&stubContext{}, []types.Value{tup, intVal(99)}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != Failure {
		t.Fatalf("expected out-of-bounds failure, got %v", outcome)
	}
	if atom := v.AsObject().(*types.Atom); atom.Name != "subscript-out-of-bounds" {
		t.Fatalf("got atom %v", atom.Name)
	}
}

func TestFiberYieldReturnsSuspendedOutcomeWithResumeValue(t *testing.T) {
	r := NewCoreRegistry()
	p, ok := r.Lookup(NumFiberYield)
	if !ok {
		t.Fatalf("expected FiberYield to be registered")
	}
	if !p.Flags.Has(SwitchesContinuation) {
		t.Fatalf("expected FiberYield to declare SwitchesContinuation")
	}

	ctx := &stubContext{resumeValue: intVal(42)}
	outcome, v, err := p.Attempt(ctx, nil, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != FiberSuspended {
		t.Fatalf("expected FiberSuspended outcome, got %v", outcome)
	}
	if got := v.AsObject().(*types.Integer).Value.Int64(); got != 42 {
		t.Fatalf("expected the resume value to pass through, got %d", got)
	}
}

func TestRegistryDoubleCheckedLoader(t *testing.T) {
	calls := 0
	loader := func(number int) *Primitive {
		calls++
		return &Primitive{
			Number: number,
			Name:   "Loaded",
			Flags:  CannotFail,
			Attempt: func(ctx Context, args []types.Value, skip bool) (Outcome, types.Value, error) {
				return Success, types.NilValue(), nil
			},
		}
	}
	r := NewRegistry(loader)

	p1, ok := r.Lookup(42)
	if !ok || p1.Name != "Loaded" {
		t.Fatalf("expected lazy load to succeed")
	}
	if _, ok := r.Lookup(42); !ok {
		t.Fatalf("expected cached hit on second lookup")
	}
	if calls != 1 {
		t.Fatalf("expected loader called exactly once, got %d", calls)
	}
}
