package l1

import (
	"errors"
	"fmt"

	"github.com/availlang/avail/internal/continuation"
	"github.com/availlang/avail/internal/nybble"
	"github.com/availlang/avail/internal/primitive"
	"github.com/availlang/avail/internal/types"
)

// ErrUnresolvedDispatch is raised when a call or super-call bundle has no
// unambiguous, concrete, non-forward implementation for the supplied
// values/types (spec.md §7 "Unresolved dispatch").
var ErrUnresolvedDispatch = errors.New("l1: unresolved dispatch")

// ErrInvalidResult is raised when a callee's returned value does not
// conform to the call site's expectedType (spec.md §7 "Invalid return").
var ErrInvalidResult = errors.New("l1: invalid return value")

// Bundle names a generic-dispatch call site's target method, with the
// argument count baked in — spec.md treats "method dispatch lookup
// tables" as an external collaborator (§1), so this package only needs
// enough of a bundle to know how many values to pop and what name to
// hand the dispatcher.
type Bundle struct {
	Name     string
	NumArgs  int
}

func (b *Bundle) Kind() types.Kind           { return types.KindAtom }
func (b *Bundle) String() string             { return "$" + b.Name + "/" + fmt.Sprint(b.NumArgs) }
func (b *Bundle) Hash() uint32               { return hashString(b.Name) }
func (b *Bundle) Immutable() types.Object    { return b }
func (b *Bundle) Equals(o types.Object) bool { return o == types.Object(b) }
func (b *Bundle) RuntimeType() types.Type    { return types.Primitive(types.KindAtom) }

// Callable is the capability internal/l1 needs from an invocation target;
// satisfied by both *Function and *RawFunction.
type Callable interface {
	continuation.Callable
}

// Dispatcher resolves a Bundle to a concrete callable, the collaborator
// spec.md §1 places out of scope beyond this interface: "method dispatch
// lookup tables" are an external concern, but L1's call/super-call
// opcodes still need some seam to invoke through.
type Dispatcher interface {
	// LookupByValues implements plain `call`: dispatch on the runtime
	// types of the supplied argument values.
	LookupByValues(bundle *Bundle, args []types.Value) (Callable, error)
	// LookupByTypes implements `super-call`: dispatch on explicitly
	// supplied static types rather than the argument values' own types.
	LookupByTypes(bundle *Bundle, argTypes []types.Type) (Callable, error)
}

// Interpreter steps Level One chunks (spec.md §4.4).
type Interpreter struct {
	Primitives *primitive.Registry
	Dispatch   Dispatcher

	// InvalidResultHandler is invoked on a return-type conformance
	// failure instead of immediately failing, per spec.md §7 "the
	// runtime invokes the invalid-message-result handler hook with
	// (function, expectedType, actualValue)". A nil handler causes
	// ErrInvalidResult to propagate directly.
	InvalidResultHandler func(fn Callable, expected types.Type, actual types.Value) (types.Value, error)
}

// frame is one activation's mutable execution state: the reader position
// within its chunk's nybble stream and a view onto its continuation's
// stack region. Kept separate from continuation.Continuation because the
// continuation only needs to be reified (reader state captured into PC)
// at a call boundary or explicit push-label — the interpreter's hot loop
// works directly against the Go call stack otherwise (spec.md §9 "force
// reification at every control-escape point").
type frame struct {
	cont    *continuation.Continuation
	fn      *Function
	reader  *nybble.Reader
	stackBase int // index into cont's slots where the operand stack begins
	sp        int // operand-stack height, relative to stackBase
}

func newFrame(caller *continuation.Continuation, fn *Function) *frame {
	cont := continuation.NewConstruction(caller, fn)
	return &frame{
		cont:      cont,
		fn:        fn,
		reader:    nybble.NewReader(fn.Code.L1Chunk.Code),
		stackBase: fn.ArgCount() + fn.LocalCount(),
	}
}

func (fr *frame) push(v types.Value) {
	if fr.stackBase+fr.sp >= fr.cont.SlotCount() {
		fr.cont.GrowStack()
	}
	fr.cont.SlotAtPut(fr.stackBase+fr.sp, v)
	fr.sp++
}

func (fr *frame) pop() types.Value {
	fr.sp--
	v := fr.cont.SlotAt(fr.stackBase + fr.sp)
	fr.cont.SlotAtPut(fr.stackBase+fr.sp, types.NilValue())
	return v
}

func (fr *frame) peek() types.Value {
	return fr.cont.SlotAt(fr.stackBase + fr.sp - 1)
}

// localSlot maps a 1-based local[n] (spec.md §4.4) to a 0-based slot,
// where locals 1..argCount are the arguments and argCount+1..argCount+
// localCount are true locals.
func (fr *frame) localSlot(n int) int { return n - 1 }

func (fr *frame) outerValue(n int) types.Value { return fr.fn.Outers[n-1] }
func (fr *frame) setOuter(n int, v types.Value) { fr.fn.Outers[n-1] = v }

// frameContext adapts a frame to primitive.Context.
type frameContext struct {
	interp *Interpreter
	fr     *frame
	fiber  *continuation.Fiber
}

func (c *frameContext) Push(v types.Value) { c.fr.push(v) }
func (c *frameContext) Pop() types.Value   { return c.fr.pop() }
func (c *frameContext) Invoke(fnObj types.Object, args []types.Value) (primitive.Outcome, types.Value, error) {
	callable, ok := fnObj.(*Function)
	if !ok {
		return primitive.Failure, types.NilValue(), fmt.Errorf("l1: Invoke on non-function %T", fnObj)
	}
	v, err := c.interp.call(c.fr.cont, c.fiber, callable, args)
	if err != nil {
		return primitive.Failure, types.NilValue(), err
	}
	return primitive.Success, v, nil
}
func (c *frameContext) Suspend(reason string) types.Value {
	return c.fiber.Suspend(continuation.SuspendReason(reason))
}

// Run executes fn from scratch as fiber's top-level activation (spec.md
// §4.4, §4.8 "entering a raw function selects its startingChunk").
func (in *Interpreter) Run(fiber *continuation.Fiber, fn *Function, args []types.Value) (types.Value, error) {
	return in.call(nil, fiber, fn, args)
}

// call runs fn to completion (its implicit return), returning the result
// or propagating an exception. Reification onto the Go call stack mirrors
// how a fiber parks mid-primitive in Fiber.Suspend: each nested call is a
// nested Go call, so the caller's state survives for free across a
// suspend/resume pair that happens underneath it.
func (in *Interpreter) call(caller *continuation.Continuation, fiber *continuation.Fiber, fn *Function, args []types.Value) (types.Value, error) {
	fr := newFrame(caller, fn)
	for i, a := range args {
		// Arguments are boxed as Variables so get-local/set-local and
		// push-local can treat every local[n] slot uniformly (spec.md
		// §4.4's local-access rows do not distinguish an argument slot
		// from a declared local).
		v := types.NewVariable(fn.Code.ParamTypes[i])
		v.Set(a)
		fr.cont.SlotAtPut(fr.localSlot(i+1), types.ObjectValue(v))
	}
	for i := fn.ArgCount(); i < fn.ArgCount()+fn.LocalCount(); i++ {
		fr.cont.SlotAtPut(i, types.ObjectValue(types.NewVariable(types.Top)))
	}
	fiber.SetCurrent(fr.cont)

	// A raw function whose body is a primitive attempts it before any
	// nybblecode runs; on success the primitive result is the function's
	// result directly, on failure execution falls through to the
	// function's Avail fallback code (the L1 chunk) with the failure
	// value left on top of the operand stack (spec.md §7 "Primitive
	// failure... the function's Avail fallback code runs").
	if p := fn.Code.Primitive; p != nil {
		ctx := &frameContext{interp: in, fr: fr, fiber: fiber}
		outcome, v, perr := p.Attempt(ctx, args, false)
		if perr != nil {
			return types.NilValue(), perr
		}
		switch outcome {
		case primitive.Success:
			if !types.InstanceOf(v, fn.Code.ResultType) {
				return in.invalidResult(fn, fn.Code.ResultType, v)
			}
			return v, nil
		case primitive.FiberSuspended, primitive.ContinuationChanged:
			return v, nil
		case primitive.Failure:
			if len(fn.Code.L1Chunk.Code) == 0 {
				return types.NilValue(), fmt.Errorf("l1: primitive %s failed with no Avail fallback code: %s", p.Name, v)
			}
			fr.push(v)
		}
	}

	for {
		if fiber.CancelRequested() {
			return types.NilValue(), fmt.Errorf("l1: fiber cancelled")
		}
		if fr.reader.AtEnd() {
			v := fr.pop()
			if !types.InstanceOf(v, fn.Code.ResultType) {
				return in.invalidResult(fn, fn.Code.ResultType, v)
			}
			fr.cont.Freeze()
			return v, nil
		}
		fr.cont.PC = fr.reader.NybbleIndex()
		if err := in.step(fr, fiber); err != nil {
			return types.NilValue(), err
		}
	}
}

func (in *Interpreter) invalidResult(fn Callable, expected types.Type, actual types.Value) (types.Value, error) {
	if in.InvalidResultHandler != nil {
		return in.InvalidResultHandler(fn, expected, actual)
	}
	return types.NilValue(), fmt.Errorf("%w: %s does not conform to %s", ErrInvalidResult, actual.RuntimeType(), expected)
}

func (in *Interpreter) step(fr *frame, fiber *continuation.Fiber) error {
	op := Op(fr.reader.ReadNybble())
	chunk := fr.fn.Code.L1Chunk

	switch op {
	case OpPushLiteral:
		n := nybble.ReadOperand(fr.reader)
		fr.push(chunk.Literals[n])

	case OpPushLocal:
		n := nybble.ReadOperand(fr.reader)
		fr.push(fr.cont.SlotAt(fr.localSlot(n)).Immutable())

	case OpPushLastLocal:
		n := nybble.ReadOperand(fr.reader)
		slot := fr.localSlot(n)
		fr.push(fr.cont.SlotAt(slot))
		fr.cont.SlotAtPut(slot, types.NilValue())

	case OpPushOuter:
		n := nybble.ReadOperand(fr.reader)
		fr.push(fr.outerValue(n).Immutable())

	case OpPushLastOuter:
		n := nybble.ReadOperand(fr.reader)
		fr.push(fr.outerValue(n))
		fr.setOuter(n, types.NilValue())

	case OpGetLocal:
		n := nybble.ReadOperand(fr.reader)
		v, err := derefVariable(fr.cont.SlotAt(fr.localSlot(n)), false)
		if err != nil {
			return err
		}
		fr.push(v)

	case OpGetLocalClearing:
		n := nybble.ReadOperand(fr.reader)
		slot := fr.localSlot(n)
		v, err := derefVariable(fr.cont.SlotAt(slot), true)
		if err != nil {
			return err
		}
		fr.push(v)

	case OpSetLocal:
		n := nybble.ReadOperand(fr.reader)
		v := fr.pop()
		variable := fr.cont.SlotAt(fr.localSlot(n)).AsObject().(*types.Variable)
		variable.Set(v)

	case OpGetOuter:
		n := nybble.ReadOperand(fr.reader)
		v, err := derefVariable(fr.outerValue(n), false)
		if err != nil {
			return err
		}
		fr.push(v)

	case OpSetOuter:
		n := nybble.ReadOperand(fr.reader)
		v := fr.pop()
		variable := fr.outerValue(n).AsObject().(*types.Variable)
		variable.Set(v)

	case OpGetOuterClearing:
		n := nybble.ReadOperand(fr.reader)
		v, err := derefVariable(fr.outerValue(n), true)
		if err != nil {
			return err
		}
		fr.push(v)

	case OpPushLiteralAsVar:
		n := nybble.ReadOperand(fr.reader)
		declared := chunk.Literals[n].AsObject().(*types.TypeObject).T
		fr.push(types.ObjectValue(types.NewVariable(declared)))

	case OpGetLiteral:
		n := nybble.ReadOperand(fr.reader)
		v, err := derefVariable(chunk.Literals[n], false)
		if err != nil {
			return err
		}
		fr.push(v)

	case OpSetLiteral:
		n := nybble.ReadOperand(fr.reader)
		v := fr.pop()
		variable := chunk.Literals[n].AsObject().(*types.Variable)
		variable.Set(v)

	case OpClose:
		c := nybble.ReadOperand(fr.reader)
		numOuters := nybble.ReadOperand(fr.reader)
		outers := make([]types.Value, numOuters)
		for i := numOuters - 1; i >= 0; i-- {
			outers[i] = fr.pop()
		}
		code := chunk.Literals[c].AsObject().(*RawFunction)
		fr.push(types.ObjectValue(NewFunction(code, outers)))

	case OpMakeTuple:
		n := nybble.ReadOperand(fr.reader)
		elems := make([]types.Value, n)
		for i := n - 1; i >= 0; i-- {
			elems[i] = fr.pop()
		}
		fr.push(types.ObjectValue(types.NewTuple(elems)))

	case OpPop:
		fr.pop()

	case OpDuplicate:
		fr.push(fr.peek().Immutable())

	case OpCall:
		return in.doCall(fr, fiber, false)

	case OpSuperCall:
		return in.doCall(fr, fiber, true)

	case OpPushLabel:
		label := continuation.NewConstruction(fr.cont, fr.fn)
		for i := 0; i < fr.fn.ArgCount(); i++ {
			label.SlotAtPut(i, fr.cont.SlotAt(i))
		}
		label.Freeze()
		fr.push(types.ObjectValue(label))

	case OpGetType:
		// n counts downward from the current top of stack (spec.md §4.4
		// "push type of a lower stack slot"); n=0 addresses the top.
		n := nybble.ReadOperand(fr.reader)
		v := fr.cont.SlotAt(fr.stackBase + fr.sp - 1 - n)
		fr.push(types.ObjectValue(&types.TypeObject{T: v.RuntimeType()}))

	default:
		return fmt.Errorf("l1: unknown opcode %d", op)
	}
	return nil
}

func derefVariable(v types.Value, clearing bool) (types.Value, error) {
	variable, ok := v.AsObject().(*types.Variable)
	if !ok {
		return types.Value{}, fmt.Errorf("l1: deref of non-variable %T", v.AsObject())
	}
	var val types.Value
	var assigned bool
	if clearing {
		val, assigned = variable.GetClearing()
	} else {
		val, assigned = variable.Get()
	}
	if !assigned {
		return types.Value{}, fmt.Errorf("l1: read of uninitialised variable")
	}
	return val.Immutable(), nil
}

// doCall implements both `call` (super=false) and `super-call` (super=true)
// per spec.md §4.4's call sequence and §5's Open Question #2 decision:
// super-call pops argument types first (topmost), then argument values,
// preserving stack order for the values, but dispatch consults only the
// popped types while the invoked method receives the popped values.
func (in *Interpreter) doCall(fr *frame, fiber *continuation.Fiber, super bool) error {
	chunk := fr.fn.Code.L1Chunk
	bundleIdx := nybble.ReadOperand(fr.reader)
	expectedIdx := nybble.ReadOperand(fr.reader)
	bundle := chunk.Literals[bundleIdx].AsObject().(*Bundle)
	expected := chunk.Literals[expectedIdx].AsObject().(*types.TypeObject).T

	var argTypes []types.Type
	if super {
		argTypes = make([]types.Type, bundle.NumArgs)
		for i := bundle.NumArgs - 1; i >= 0; i-- {
			argTypes[i] = fr.pop().AsObject().(*types.TypeObject).T
		}
	}
	args := make([]types.Value, bundle.NumArgs)
	for i := bundle.NumArgs - 1; i >= 0; i-- {
		args[i] = fr.pop()
	}

	var callee Callable
	var err error
	if super {
		callee, err = in.Dispatch.LookupByTypes(bundle, argTypes)
	} else {
		callee, err = in.Dispatch.LookupByValues(bundle, args)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnresolvedDispatch, err)
	}

	fn, ok := callee.(*Function)
	if !ok {
		return fmt.Errorf("l1: dispatch target %T is not directly invocable", callee)
	}

	result, err := in.call(fr.cont, fiber, fn, args)
	if err != nil {
		return err
	}
	if !types.InstanceOf(result, expected) {
		fixed, ierr := in.invalidResult(fn, expected, result)
		if ierr != nil {
			return ierr
		}
		result = fixed
	}
	fiber.SetCurrent(fr.cont)
	fr.push(result)
	return nil
}
