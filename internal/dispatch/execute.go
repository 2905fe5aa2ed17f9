package dispatch

import (
	"fmt"

	"github.com/availlang/avail/internal/continuation"
	"github.com/availlang/avail/internal/l1"
	"github.com/availlang/avail/internal/l2"
	"github.com/availlang/avail/internal/primitive"
	"github.com/availlang/avail/internal/types"
)

// Invoker owns chunk entry (spec.md §4.8 "entering a raw function selects
// its startingChunk"), the reoptimisation trigger (§4.6), and chunk
// invalidation fallback (§4.5 "silently replaces the raw function's
// starting chunk with the default"). Grounded on the teacher's
// interpret-vs-compiled dispatch split in vm.go (VM.Run falling back to
// tree-walking when no compiled chunk exists), generalised to Avail's
// two explicit tiers.
type Invoker struct {
	Interp   *l1.Interpreter
	Registry *Registry
}

// Invoke runs fn, choosing between Level One reinterpretation and an
// existing, valid Level Two chunk (spec.md §4.8).
func (inv *Invoker) Invoke(fiber *continuation.Fiber, fn *l1.Function, args []types.Value) (types.Value, error) {
	rf := fn.Code
	chunk, ok := rf.StartingChunk.(*l2.Chunk)
	if !ok || chunk == nil || !chunk.Valid() {
		rf.StartingChunk = nil
		return inv.Interp.Run(fiber, fn, args)
	}
	return inv.runChunk(fiber, fn, chunk, args)
}

// runChunk executes chunk's instruction list directly against a flat
// register file. It reifies no continuation: a primitive that suspends
// the fiber blocks inside its call until the fiber is resumed.
func (inv *Invoker) runChunk(fiber *continuation.Fiber, fn *l1.Function, chunk *l2.Chunk, args []types.Value) (types.Value, error) {
	rf := fn.Code
	regs := make([]types.Value, chunk.NumRegisters)
	for i := range regs {
		regs[i] = types.NilValue()
	}
	regs[l2.RegFunction] = types.ObjectValue(fn)
	for i, a := range args {
		box := types.NewVariable(rf.ParamTypes[i])
		box.Set(a)
		regs[l2.FirstSlotRegister+i] = types.ObjectValue(box)
	}

	pc := 0
	for {
		if fiber.CancelRequested() {
			return types.NilValue(), fmt.Errorf("dispatch: fiber cancelled")
		}
		if pc >= len(chunk.Instructions) {
			return types.NilValue(), fmt.Errorf("dispatch: fell off the end of chunk for %s", rf.Name)
		}
		in := chunk.Instructions[pc]
		next, result, done, err := inv.step(fiber, fn, chunk, regs, in, pc)
		if err != nil {
			if re, ok := err.(reenterErr); ok {
				return inv.runChunk(fiber, fn, re.chunk, args)
			}
			return types.NilValue(), err
		}
		if done {
			if !types.InstanceOf(result, rf.ResultType) {
				return inv.invalidResult(fn, rf.ResultType, result)
			}
			return result, nil
		}
		pc = next
	}
}

// invalidResult mirrors internal/l1.Interpreter's unexported handler of
// the same name (spec.md §7 "the runtime invokes the invalid-message-
// result handler hook"), reusing the same Interpreter.InvalidResultHandler
// field so a caller only has to configure the hook once for both tiers.
func (inv *Invoker) invalidResult(fn l1.Callable, expected types.Type, actual types.Value) (types.Value, error) {
	if inv.Interp.InvalidResultHandler != nil {
		return inv.Interp.InvalidResultHandler(fn, expected, actual)
	}
	return types.NilValue(), fmt.Errorf("%w: %s does not conform to %s", l1.ErrInvalidResult, actual.RuntimeType(), expected)
}

// step executes one instruction, returning the next PC (ignored when
// done), the function's result (valid only when done), and whether
// execution has reached a return.
func (inv *Invoker) step(fiber *continuation.Fiber, fn *l1.Function, chunk *l2.Chunk, regs []types.Value, in l2.Instruction, pc int) (int, types.Value, bool, error) {
	rf := fn.Code
	switch in.Op {
	case l2.OpNop:
		// dead code the optimiser left a placeholder for; unreachable once
		// internal/l2.Optimize's final compact pass has run, but harmless
		// to step over otherwise.

	case l2.OpMove:
		regs[in.Dest] = regs[in.Operands[0].Reg]

	case l2.OpMoveConstant:
		regs[in.Dest] = in.Operands[0].Value.(types.Value)

	case l2.OpClear:
		regs[in.Dest] = types.NilValue()

	case l2.OpMakeImmutable:
		v := regs[in.Operands[0].Reg]
		regs[in.Dest] = v.Immutable()

	case l2.OpMakeSubobjectsImmutable:
		// No runtime object graph in this engine tracks nested mutability
		// independently of its own Immutable() method, so this degrades to
		// make-immutable on the register itself.
		v := regs[in.Operands[0].Reg]
		regs[in.Dest] = v.Immutable()

	case l2.OpCreateVariable:
		declared := in.Operands[0].Value.(types.Type)
		regs[in.Dest] = types.ObjectValue(types.NewVariable(declared))

	case l2.OpGet:
		v, assigned := regs[in.Operands[0].Reg].AsObject().(*types.Variable).Get()
		if !assigned {
			return 0, types.Value{}, false, fmt.Errorf("dispatch: read of uninitialised variable")
		}
		regs[in.Dest] = v.Immutable()

	case l2.OpGetClearing:
		v, assigned := regs[in.Operands[0].Reg].AsObject().(*types.Variable).GetClearing()
		if !assigned {
			return 0, types.Value{}, false, fmt.Errorf("dispatch: read of uninitialised variable")
		}
		regs[in.Dest] = v.Immutable()

	case l2.OpSet:
		regs[in.Operands[0].Reg].AsObject().(*types.Variable).Set(regs[in.Operands[1].Reg])

	case l2.OpCreateFunction:
		code := in.Operands[0].Value.(types.Value).AsObject().(*l1.RawFunction)
		outerRegs := in.Operands[1].Regs
		outers := make([]types.Value, len(outerRegs))
		for i, r := range outerRegs {
			outers[i] = regs[r]
		}
		regs[in.Dest] = types.ObjectValue(l1.NewFunction(code, outers))

	case l2.OpExtractOuter:
		closure := regs[in.Operands[0].Reg].AsObject().(*l1.Function)
		n := in.Operands[1].Imm
		regs[in.Dest] = closure.Outers[n-1]

	case l2.OpFunctionParameterType:
		closure := regs[in.Operands[0].Reg].AsObject().(*l1.Function)
		n := in.Operands[1].Imm
		regs[in.Dest] = types.ObjectValue(&types.TypeObject{T: closure.Code.ParamTypes[n-1]})

	case l2.OpCreateTuple:
		elemRegs := in.Operands[0].Regs
		elems := make([]types.Value, len(elemRegs))
		for i, r := range elemRegs {
			elems[i] = regs[r]
		}
		regs[in.Dest] = types.ObjectValue(types.NewTuple(elems))

	case l2.OpGetRuntimeType:
		regs[in.Dest] = types.ObjectValue(&types.TypeObject{T: regs[in.Operands[0].Reg].RuntimeType()})

	case l2.OpCreateContinuation:
		// push-label's lowering (spec.md §4.4): builds a frozen label
		// continuation capturing the current arguments, used for
		// non-local exit patterns that this engine's goroutine-per-fiber
		// suspension model does not otherwise need (see
		// internal/continuation.Fiber.Suspend's doc comment). Built well
		// enough to hand back a first-class value; resuming through it is
		// not exercised by anything this translator emits.
		label := continuation.NewConstruction(nil, fn)
		for i, r := range in.Operands[4].Regs {
			label.SlotAtPut(i, regs[r])
		}
		label.Freeze()
		regs[in.Dest] = types.ObjectValue(label)

	case l2.OpReturn:
		return 0, regs[in.Operands[1].Reg], true, nil

	case l2.OpDecrementCounterAndReoptimizeOnZero:
		if chunk.DecrementAndCheck() {
			targetLevel := in.Operands[0].Imm
			newChunk, err := l2.Translate(rf, inv.Registry, targetLevel)
			if err == nil {
				l2.Optimize(newChunk)
				for atom := range newChunk.ContingentAtoms {
					inv.Registry.RegisterContingent(atom, newChunk)
				}
				rf.StartingChunk = newChunk
				return 0, types.Value{}, false, reenterErr{newChunk}
			}
		}

	case l2.OpAttemptInlinePrimitive, l2.OpAttemptInlinePrimitiveNoCheck:
		p := in.Operands[0].Value.(*primitive.Primitive)
		args := gatherArgs(regs, in.Operands[1].Regs)
		ctx := &execContext{inv: inv, fiber: fiber, fn: fn}
		outcome, v, err := p.Attempt(ctx, args, in.Op == l2.OpAttemptInlinePrimitiveNoCheck)
		if err != nil {
			return 0, types.Value{}, false, err
		}
		switch outcome {
		case primitive.Success:
			regs[in.Dest] = v
			return in.Operands[2].Imm, types.Value{}, false, nil
		case primitive.Failure:
			regs[in.Dest] = v
			return in.Operands[3].Imm, types.Value{}, false, nil
		case primitive.FiberSuspended, primitive.ContinuationChanged:
			regs[in.Dest] = v
			return pc + 1, types.Value{}, false, nil
		}

	case l2.OpRunInfalliblePrimitive, l2.OpRunInfalliblePrimitiveNoCheck:
		// Declared CannotFail (spec.md §4.3): no failure branch to offer,
		// unlike attempt-inline-primitive's two-PC layout.
		p := in.Operands[0].Value.(*primitive.Primitive)
		args := gatherArgs(regs, in.Operands[1].Regs)
		ctx := &execContext{inv: inv, fiber: fiber, fn: fn}
		_, v, err := p.Attempt(ctx, args, in.Op == l2.OpRunInfalliblePrimitiveNoCheck)
		if err != nil {
			return 0, types.Value{}, false, err
		}
		regs[in.Dest] = v

	case l2.OpNoFailPrimitive:
		p := in.Operands[0].Value.(*primitive.Primitive)
		args := gatherArgs(regs, in.Operands[1].Regs)
		ctx := &execContext{inv: inv, fiber: fiber, fn: fn}
		_, v, err := p.Attempt(ctx, args, true)
		if err != nil {
			return 0, types.Value{}, false, err
		}
		regs[in.Dest] = v

	case l2.OpDivideIntByInt:
		a := regs[in.Operands[0].Reg]
		b := regs[in.Operands[1].Reg]
		prim, ok := inv.Registry.lookupDividePrimitive()
		if !ok {
			return 0, types.Value{}, false, fmt.Errorf("dispatch: divide-int-by-int with no IntegerDivide primitive registered")
		}
		ctx := &execContext{inv: inv, fiber: fiber, fn: fn}
		outcome, v, err := prim.Attempt(ctx, []types.Value{a, b}, false)
		if err != nil {
			return 0, types.Value{}, false, err
		}
		switch outcome {
		case primitive.Success:
			regs[in.Operands[2].Reg] = v
			return in.Operands[6].Imm, types.Value{}, false, nil
		case primitive.Failure:
			atom := v.AsObject().(*types.Atom)
			if atom.Name == "zero-divisor" {
				return in.Operands[5].Imm, types.Value{}, false, nil
			}
			// Any other failure atom is out-of-range (IntegerDivide's
			// only other documented failure, e.g. INT_MIN / -1).
			return in.Operands[4].Imm, types.Value{}, false, nil
		}

	case l2.OpCallAfterFailedPrimitive, l2.OpSuperCall:
		result, err := inv.dispatchCall(fiber, regs, in)
		if err != nil {
			return 0, types.Value{}, false, err
		}
		regs[in.Dest] = result

	case l2.OpInvoke:
		closure := regs[in.Operands[0].Reg].AsObject().(*l1.Function)
		args := gatherArgs(regs, in.Operands[1].Regs)
		result, err := inv.Invoke(fiber, closure, args)
		if err != nil {
			return 0, types.Value{}, false, err
		}
		regs[in.Dest] = result

	case l2.OpJump:
		return in.Operands[0].Imm, types.Value{}, false, nil

	case l2.OpJumpIfKindOfConstant:
		v := regs[in.Operands[0].Reg]
		t := in.Operands[1].Value.(types.Type)
		if types.InstanceOf(v, t) {
			return in.Operands[2].Imm, types.Value{}, false, nil
		}
		return in.Operands[3].Imm, types.Value{}, false, nil

	case l2.OpJumpIfIsNotKindOfConstant:
		v := regs[in.Operands[0].Reg]
		t := in.Operands[1].Value.(types.Type)
		if !types.InstanceOf(v, t) {
			return in.Operands[2].Imm, types.Value{}, false, nil
		}
		return in.Operands[3].Imm, types.Value{}, false, nil

	case l2.OpJumpIfGreaterOrEqual:
		a := regs[in.Operands[0].Reg].AsObject().(*types.Integer)
		b := regs[in.Operands[1].Reg].AsObject().(*types.Integer)
		if a.Value.Cmp(b.Value) >= 0 {
			return in.Operands[2].Imm, types.Value{}, false, nil
		}
		return in.Operands[3].Imm, types.Value{}, false, nil

	case l2.OpEnterL2Chunk, l2.OpReenterL2Chunk, l2.OpReenterL1FromInterrupt:
		// Only ever the sole instruction of internal/l2.DefaultChunk, or a
		// reoptimisation target reached through the reenterErr path below;
		// the translator itself never emits these mid-chunk.
		return 0, types.Value{}, false, fmt.Errorf("dispatch: %s reached mid-execution", in.Op)

	default:
		return 0, types.Value{}, false, fmt.Errorf("dispatch: executor does not know opcode %s", in.Op)
	}
	return pc + 1, types.Value{}, false, nil
}

// reenterErr is not a real error: it signals runChunk's caller to retry
// against a freshly installed chunk after the level-0 reoptimisation
// trigger fires. Modelled as an error return from step purely to keep
// step's signature uniform; runChunk unwraps it.
type reenterErr struct{ chunk *l2.Chunk }

func (reenterErr) Error() string { return "dispatch: reoptimised, retry" }

func gatherArgs(regs []types.Value, rs []int) []types.Value {
	out := make([]types.Value, len(rs))
	for i, r := range rs {
		out[i] = regs[r]
	}
	return out
}

// dispatchCall lowers an l2.OpSuperCall/OpCallAfterFailedPrimitive
// instruction, whose operand layout is [bySuper Imm, bundle Lit,
// argRegs RegList, argTypeRegs RegList, expectedType Lit] (see
// internal/l2/translate.go's emitGenericDispatch).
func (inv *Invoker) dispatchCall(fiber *continuation.Fiber, regs []types.Value, in l2.Instruction) (types.Value, error) {
	bySuper := in.Operands[0].Imm != 0
	bundle := in.Operands[1].Value.(*l1.Bundle)
	args := gatherArgs(regs, in.Operands[2].Regs)
	expected := in.Operands[4].Value.(types.Type)

	var callee l1.Callable
	var err error
	if bySuper {
		argTypes := make([]types.Type, len(in.Operands[3].Regs))
		for i, r := range in.Operands[3].Regs {
			argTypes[i] = regs[r].AsObject().(*types.TypeObject).T
		}
		callee, err = inv.Registry.LookupByTypes(bundle, argTypes)
	} else {
		callee, err = inv.Registry.LookupByValues(bundle, args)
	}
	if err != nil {
		return types.Value{}, err
	}
	target, ok := callee.(*l1.Function)
	if !ok {
		return types.Value{}, fmt.Errorf("dispatch: target %T is not directly invocable", callee)
	}
	result, err := inv.Invoke(fiber, target, args)
	if err != nil {
		return types.Value{}, err
	}
	if !types.InstanceOf(result, expected) {
		return inv.invalidResult(target, expected, result)
	}
	return result, nil
}

// execContext adapts an in-progress L2 activation to primitive.Context.
type execContext struct {
	inv   *Invoker
	fiber *continuation.Fiber
	fn    *l1.Function
}

func (c *execContext) Push(types.Value) {
	panic("dispatch: primitive.Context.Push is an L1 frame operation, not valid from L2")
}
func (c *execContext) Pop() types.Value {
	panic("dispatch: primitive.Context.Pop is an L1 frame operation, not valid from L2")
}
func (c *execContext) Invoke(fnObj types.Object, args []types.Value) (primitive.Outcome, types.Value, error) {
	callable, ok := fnObj.(*l1.Function)
	if !ok {
		return primitive.Failure, types.NilValue(), fmt.Errorf("dispatch: Invoke on non-function %T", fnObj)
	}
	v, err := c.inv.Invoke(c.fiber, callable, args)
	if err != nil {
		return primitive.Failure, types.NilValue(), err
	}
	return primitive.Success, v, nil
}
func (c *execContext) Suspend(reason string) types.Value {
	return c.fiber.Suspend(continuation.SuspendReason(reason))
}

func (r *Registry) lookupDividePrimitive() (*primitive.Primitive, bool) {
	if r.primitives == nil {
		return nil, false
	}
	return r.primitives.Lookup(primitive.NumIntegerDivide)
}
