package l1

import (
	"strings"
	"testing"

	"github.com/availlang/avail/internal/continuation"
	"github.com/availlang/avail/internal/primitive"
	"github.com/availlang/avail/internal/types"
)

func intVal(n int64) types.Value { return types.ObjectValue(types.NewInteger(n)) }

func typeLiteral(t types.Type) types.Value { return types.ObjectValue(&types.TypeObject{T: t}) }

func newInterp() *Interpreter {
	return &Interpreter{Primitives: primitive.NewCoreRegistry()}
}

// mapDispatcher is a minimal stand-in for the out-of-scope "method
// dispatch lookup tables" (spec.md §1): a flat name-keyed map, enough to
// exercise call/super-call without implementing multi-method resolution.
type mapDispatcher struct {
	byName map[string]Callable
}

func (d *mapDispatcher) LookupByValues(b *Bundle, args []types.Value) (Callable, error) {
	c, ok := d.byName[b.Name]
	if !ok {
		return nil, ErrUnresolvedDispatch
	}
	return c, nil
}
func (d *mapDispatcher) LookupByTypes(b *Bundle, argTypes []types.Type) (Callable, error) {
	return d.LookupByValues(b, nil)
}

func TestPrimitiveBodyFunctionNoFallback(t *testing.T) {
	reg := primitive.NewCoreRegistry()
	addPrim, _ := reg.Lookup(primitive.NumIntegerAdd)

	code := &RawFunction{
		Name:       "add",
		ParamTypes: []types.Type{types.Integers, types.Integers},
		ResultType: types.Integers,
		L1Chunk:    NewChunk(2, 0, 0),
		Primitive:  addPrim,
	}
	fn := NewFunction(code, nil)

	in := &Interpreter{Primitives: reg}
	fiber := continuation.NewFiber(nil, 0)
	result, err := in.Run(fiber, fn, []types.Value{intVal(2), intVal(3)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := result.AsObject().(*types.Integer).Value.Int64(); got != 5 {
		t.Fatalf("got %d, want 5", got)
	}
}

func TestCallDispatchesThroughBundle(t *testing.T) {
	// callee() = 42: push-literal 0 ; implicit return.
	calleeChunk := newBuilder(0, 0, 1)
	calleeChunk.emit(OpPushLiteral, 0)
	calleeCode := &RawFunction{
		Name:       "callee",
		ResultType: types.Integers,
		L1Chunk:    calleeChunk.finish(),
	}
	calleeCode.L1Chunk.AddLiteral(intVal(42))
	callee := NewFunction(calleeCode, nil)

	// caller() = callee(): call bundle(0 args), expectedType Integers.
	callerChunk := newBuilder(0, 0, 2)
	bundleIdx := callerChunk.chunk.AddLiteral(types.Value{})
	expectedIdx := callerChunk.chunk.AddLiteral(types.Value{})
	callerChunk.emit(OpCall, bundleIdx, expectedIdx)
	callerCode := &RawFunction{
		Name:       "caller",
		ResultType: types.Integers,
		L1Chunk:    callerChunk.finish(),
	}
	callerCode.L1Chunk.Literals[bundleIdx] = types.ObjectValue(&Bundle{Name: "callee", NumArgs: 0})
	callerCode.L1Chunk.Literals[expectedIdx] = typeLiteral(types.Integers)
	caller := NewFunction(callerCode, nil)

	in := newInterp()
	in.Dispatch = &mapDispatcher{byName: map[string]Callable{"callee": callee}}

	fiber := continuation.NewFiber(nil, 0)
	result, err := in.Run(fiber, caller, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := result.AsObject().(*types.Integer).Value.Int64(); got != 42 {
		t.Fatalf("got %d, want 42", got)
	}
}

func TestMakeTupleAndGetType(t *testing.T) {
	// f() = build <1, 2>, get-type of the duplicate on top of the stack,
	// discard that type, return the tuple itself: push-literal 1;
	// push-literal 2; make-tuple 2; duplicate; get-type 0; pop; (implicit
	// return leaves the tuple).
	b := newBuilder(0, 0, 4)
	l1 := b.chunk.AddLiteral(intVal(1))
	l2 := b.chunk.AddLiteral(intVal(2))
	b.emit(OpPushLiteral, l1)
	b.emit(OpPushLiteral, l2)
	b.emit(OpMakeTuple, 2)
	b.emit(OpDuplicate)
	b.emit(OpGetType, 0)
	b.emit(OpPop)
	code := &RawFunction{
		Name:       "f",
		ResultType: types.Top,
		L1Chunk:    b.finish(),
	}
	fn := NewFunction(code, nil)

	in := newInterp()
	fiber := continuation.NewFiber(nil, 0)
	result, err := in.Run(fiber, fn, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tup, ok := result.AsObject().(*types.Tuple)
	if !ok || tup.Len() != 2 {
		t.Fatalf("expected a 2-tuple result, got %v", result)
	}
}

func TestGetLocalAfterPushLastLocalFails(t *testing.T) {
	// f(x) = push-last-local 1 (clears slot 1); pop; get-local 1 (now
	// reads a cleared, non-variable slot) — must error, not panic.
	b := newBuilder(1, 0, 2)
	b.emit(OpPushLastLocal, 1)
	b.emit(OpPop)
	b.emit(OpGetLocal, 1)
	code := &RawFunction{
		Name:       "f",
		ParamTypes: []types.Type{types.Integers},
		ResultType: types.Top,
		L1Chunk:    b.finish(),
	}
	fn := NewFunction(code, nil)

	in := newInterp()
	fiber := continuation.NewFiber(nil, 0)
	_, err := in.Run(fiber, fn, []types.Value{intVal(7)})
	if err == nil {
		t.Fatalf("expected an error reading a cleared local")
	}
}

func TestPushLabelThenPopLeavesArgumentReadable(t *testing.T) {
	b := newBuilder(1, 0, 2)
	b.emit(OpPushLabel)
	b.emit(OpPop)
	b.emit(OpPushLocal, 1)
	b.emit(OpGetLocal, 1)
	code := &RawFunction{
		Name:       "f",
		ParamTypes: []types.Type{types.Integers},
		ResultType: types.Integers,
		L1Chunk:    b.finish(),
	}
	fn := NewFunction(code, nil)

	in := newInterp()
	fiber := continuation.NewFiber(nil, 0)
	result, err := in.Run(fiber, fn, []types.Value{intVal(9)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := result.AsObject().(*types.Integer).Value.Int64(); got != 9 {
		t.Fatalf("got %d, want 9", got)
	}
}

func TestDisassembleProducesOneLinePerInstruction(t *testing.T) {
	b := newBuilder(0, 0, 1)
	idx := b.chunk.AddLiteral(intVal(5))
	b.emit(OpPushLiteral, idx)
	b.emit(OpPop)
	chunk := b.finish()

	out := Disassemble(chunk, "f")
	if !strings.Contains(out, "push-literal") || !strings.Contains(out, "pop") {
		t.Fatalf("disassembly missing expected mnemonics: %s", out)
	}
}
