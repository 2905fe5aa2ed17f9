package dispatch

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/availlang/avail/internal/continuation"
	"github.com/availlang/avail/internal/l1"
	"github.com/availlang/avail/internal/l2"
	"github.com/availlang/avail/internal/nybble"
	"github.com/availlang/avail/internal/primitive"
	"github.com/availlang/avail/internal/types"
)

func intLit(n int64) types.Value { return types.ObjectValue(types.NewInteger(n)) }
func typeLit(t types.Type) types.Value { return types.ObjectValue(&types.TypeObject{T: t}) }

type encoder struct{ w nybble.Writer }

func (e *encoder) emit(op l1.Op, operands ...int) {
	e.w.WriteNybble(byte(op))
	for _, v := range operands {
		nybble.WriteOperand(&e.w, v)
	}
}
func (e *encoder) bytes() []byte { return e.w.Bytes() }

// newCoreRegistry installs the illustrative arithmetic primitives from
// internal/primitive as directly-dispatchable, primitive-bodied raw
// functions under their bundle names, the way an Avail system's bootstrap
// module defines its built-in methods.
func newCoreRegistry(t *testing.T) (*Registry, *primitive.Registry) {
	t.Helper()
	prims := primitive.NewCoreRegistry()
	reg := NewRegistry(prims)
	define := func(name string, number int) {
		p, ok := prims.Lookup(number)
		if !ok {
			t.Fatalf("missing primitive %d", number)
		}
		rf := &l1.RawFunction{
			Name:       name,
			ParamTypes: []types.Type{types.Integers, types.Integers},
			ResultType: p.ReturnType,
			L1Chunk:    l1.NewChunk(2, 0, 0),
			Primitive:  p,
		}
		reg.Define(name, rf.ParamTypes, l1.NewFunction(rf, nil))
	}
	define("+", primitive.NumIntegerAdd)
	define("*", primitive.NumIntegerMultiply)
	define("/", primitive.NumIntegerDivide)
	return reg, prims
}

// buildArithmeticFunction assembles `f() = 2 + 3 * 4`.
func buildArithmeticFunction(t *testing.T) *l1.RawFunction {
	t.Helper()
	chunk := l1.NewChunk(0, 0, 3)
	e := &encoder{}
	l2Idx := chunk.AddLiteral(intLit(2))
	l3Idx := chunk.AddLiteral(intLit(3))
	l4Idx := chunk.AddLiteral(intLit(4))
	timesIdx := chunk.AddLiteral(types.ObjectValue(&l1.Bundle{Name: "*", NumArgs: 2}))
	plusIdx := chunk.AddLiteral(types.ObjectValue(&l1.Bundle{Name: "+", NumArgs: 2}))
	expectedIdx := chunk.AddLiteral(typeLit(types.Integers))

	e.emit(l1.OpPushLiteral, l2Idx)
	e.emit(l1.OpPushLiteral, l3Idx)
	e.emit(l1.OpPushLiteral, l4Idx)
	e.emit(l1.OpCall, timesIdx, expectedIdx)
	e.emit(l1.OpCall, plusIdx, expectedIdx)
	chunk.Code = e.bytes()

	return &l1.RawFunction{
		Name:       "f",
		ResultType: types.Integers,
		L1Chunk:    chunk,
	}
}

// buildDivideFunction assembles `f(a, b) = a / b`.
func buildDivideFunction(t *testing.T) *l1.RawFunction {
	t.Helper()
	chunk := l1.NewChunk(2, 0, 2)
	e := &encoder{}
	divIdx := chunk.AddLiteral(types.ObjectValue(&l1.Bundle{Name: "/", NumArgs: 2}))
	expectedIdx := chunk.AddLiteral(typeLit(types.Integers))
	e.emit(l1.OpGetLocal, 1)
	e.emit(l1.OpGetLocal, 2)
	e.emit(l1.OpCall, divIdx, expectedIdx)
	chunk.Code = e.bytes()

	return &l1.RawFunction{
		Name:       "divide",
		ParamTypes: []types.Type{types.Integers, types.Integers},
		ResultType: types.Integers,
		L1Chunk:    chunk,
	}
}

func newInvoker(reg *Registry, prims *primitive.Registry) *Invoker {
	interp := &l1.Interpreter{Primitives: prims, Dispatch: reg}
	return &Invoker{Interp: interp, Registry: reg}
}

// TestInvokeReoptimizesAfterThreshold drives scenario S1: a level-0 chunk
// runs to completion, and once its reoptimisation counter reaches zero the
// raw function is re-translated and optimised at level 1, collapsing to a
// single move-constant(14)+return.
func TestInvokeReoptimizesAfterThreshold(t *testing.T) {
	reg, prims := newCoreRegistry(t)
	rawFn := buildArithmeticFunction(t)
	chunk, err := l2.Translate(rawFn, reg, 0)
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	chunk.ReoptimizeAt = 2
	chunk.ReoptimizeCounter = 2
	rawFn.StartingChunk = chunk

	inv := newInvoker(reg, prims)
	fn := l1.NewFunction(rawFn, nil)
	fiber := continuation.NewFiber(nil, 0)

	for i := 0; i < 2; i++ {
		v, err := inv.Invoke(fiber, fn, nil)
		if err != nil {
			t.Fatalf("invoke %d: %v", i, err)
		}
		if iv, ok := v.AsObject().(*types.Integer); !ok || iv.Value.Int64() != 14 {
			t.Fatalf("invoke %d: expected 14, got %v", i, v)
		}
	}

	optimized, ok := rawFn.StartingChunk.(*l2.Chunk)
	if !ok {
		t.Fatalf("expected an l2.Chunk as the starting chunk after reoptimisation")
	}
	if optimized.OptimizationLevel != 1 {
		t.Fatalf("expected optimisation level 1, got %d", optimized.OptimizationLevel)
	}
	if len(optimized.Instructions) != 2 {
		t.Fatalf("expected 2 instructions after reoptimisation, got %d:\n%s", len(optimized.Instructions), l2.Disassemble(optimized, "f"))
	}

	v, err := inv.Invoke(fiber, fn, nil)
	if err != nil {
		t.Fatalf("invoke after reoptimisation: %v", err)
	}
	if iv, ok := v.AsObject().(*types.Integer); !ok || iv.Value.Int64() != 14 {
		t.Fatalf("expected 14 after reoptimisation, got %v", v)
	}
}

// TestInvokeDivideIntByInt drives scenario S3 through the dispatcher's
// executor: a monomorphic call to `/` lowers to divide-int-by-int, and
// floor division rounds toward negative infinity.
func TestInvokeDivideIntByInt(t *testing.T) {
	reg, prims := newCoreRegistry(t)
	rawFn := buildDivideFunction(t)
	chunk, err := l2.Translate(rawFn, reg, 0)
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if !strings.Contains(l2.Disassemble(chunk, "divide"), "divide-int-by-int") {
		t.Fatalf("expected divide-int-by-int in translated chunk:\n%s", l2.Disassemble(chunk, "divide"))
	}
	rawFn.StartingChunk = chunk

	inv := newInvoker(reg, prims)
	fn := l1.NewFunction(rawFn, nil)
	fiber := continuation.NewFiber(nil, 0)

	v, err := inv.Invoke(fiber, fn, []types.Value{intLit(-7), intLit(2)})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	iv, ok := v.AsObject().(*types.Integer)
	if !ok || iv.Value.Int64() != -4 {
		t.Fatalf("expected floor(-7/2) = -4, got %v", v)
	}

	if _, err := inv.Invoke(fiber, fn, []types.Value{intLit(1), intLit(0)}); err == nil {
		t.Fatalf("expected an error dividing by zero with no registered fallback")
	}
}

// TestInvokeDivideIntByIntOutOfRange drives S3's third case: dividend =
// INT_MIN, divisor = -1 branches to the out-of-range label, distinct from
// the zero-divisor label TestInvokeDivideIntByInt already covers.
func TestInvokeDivideIntByIntOutOfRange(t *testing.T) {
	reg, prims := newCoreRegistry(t)
	rawFn := buildDivideFunction(t)
	chunk, err := l2.Translate(rawFn, reg, 0)
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	rawFn.StartingChunk = chunk

	inv := newInvoker(reg, prims)
	fn := l1.NewFunction(rawFn, nil)
	fiber := continuation.NewFiber(nil, 0)

	_, err = inv.Invoke(fiber, fn, []types.Value{intLit(math.MinInt64), intLit(-1)})
	if err == nil {
		t.Fatalf("expected an error dividing INT_MIN by -1 with no registered fallback")
	}
	if !strings.Contains(err.Error(), "out-of-range") {
		t.Fatalf("expected the out-of-range branch, got: %v", err)
	}
}

// TestInvokeFiberYieldSuspendsAndResumes drives scenario S5: a fiber
// forked to call a primitive that returns FiberSuspended parks until
// ResumeWith delivers a value, and the value the fiber's invocation
// eventually completes with is exactly that resume value.
func TestInvokeFiberYieldSuspendsAndResumes(t *testing.T) {
	prims := primitive.NewCoreRegistry()
	reg := NewRegistry(prims)
	p, ok := prims.Lookup(primitive.NumFiberYield)
	if !ok {
		t.Fatalf("missing FiberYield primitive")
	}
	rawFn := &l1.RawFunction{
		Name:       "yield",
		ResultType: types.Top,
		L1Chunk:    l1.NewChunk(0, 0, 0),
		Primitive:  p,
	}

	inv := newInvoker(reg, prims)
	fn := l1.NewFunction(rawFn, nil)
	fiber := continuation.NewFiber(nil, 0)

	type result struct {
		v   types.Value
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := inv.Invoke(fiber, fn, nil)
		done <- result{v, err}
	}()

	for fiber.State() != continuation.FiberSuspended {
		time.Sleep(time.Millisecond)
	}
	fiber.ResumeWith(intLit(99))

	res := <-done
	if res.err != nil {
		t.Fatalf("invoke: %v", res.err)
	}
	iv, ok := res.v.AsObject().(*types.Integer)
	if !ok || iv.Value.Int64() != 99 {
		t.Fatalf("expected the resumed top-of-stack value to be 99, got %v", res.v)
	}
}

// TestChunkInvalidationOnRedefinition drives spec.md §4.5's chunk
// invalidation: redefining a contingent atom invalidates every chunk that
// inlined around it, so the next invocation falls back to Level One.
func TestChunkInvalidationOnRedefinition(t *testing.T) {
	reg, prims := newCoreRegistry(t)
	rawFn := buildArithmeticFunction(t)
	chunk, err := l2.Translate(rawFn, reg, 1)
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	l2.Optimize(chunk)
	for atom := range chunk.ContingentAtoms {
		reg.RegisterContingent(atom, chunk)
	}
	if len(chunk.ContingentAtoms) == 0 {
		t.Fatalf("expected the folded chunk to record contingent atoms")
	}
	rawFn.StartingChunk = chunk
	if !chunk.Valid() {
		t.Fatalf("freshly built chunk should be valid")
	}

	reg.Define("*", []types.Type{types.Integers, types.Integers}, l1.NewFunction(&l1.RawFunction{
		Name:       "*",
		ParamTypes: []types.Type{types.Integers, types.Integers},
		ResultType: types.Integers,
		L1Chunk:    l1.NewChunk(2, 0, 0),
	}, nil))

	if chunk.Valid() {
		t.Fatalf("expected redefining * to invalidate the contingent chunk")
	}

	inv := newInvoker(reg, prims)
	fn := l1.NewFunction(rawFn, nil)
	fiber := continuation.NewFiber(nil, 0)
	if _, err := inv.Invoke(fiber, fn, nil); err != nil {
		t.Fatalf("invoke after invalidation should fall back to level one: %v", err)
	}
	if rawFn.StartingChunk != nil {
		t.Fatalf("invalid chunk should have been cleared")
	}
}
