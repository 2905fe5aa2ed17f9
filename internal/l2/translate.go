package l2

import (
	"fmt"

	"github.com/availlang/avail/internal/l1"
	"github.com/availlang/avail/internal/nybble"
	"github.com/availlang/avail/internal/primitive"
	"github.com/availlang/avail/internal/types"
)

// Architectural, pre-coloured registers (spec.md §4.6
// "architecturalRegisters[1..k]: caller, function, slot-1...slot-n").
// Slot registers for a raw function's arguments and locals start at
// FirstSlotRegister and run contiguously in declaration order; a chunk's
// executor (internal/dispatch) relies on this fixed layout to populate
// incoming arguments before entry.
const (
	RegCaller          = 0
	RegFunction        = 1
	FirstSlotRegister  = 2
)

// MonomorphicResolver is the seam the translator consults to attempt
// primitive inlining (spec.md §4.6 step 1: "collect the implementation
// set reachable by the argument types... if all implementations share a
// primitive number, the call is effectively monomorphic"). Resolving the
// full implementation set is the method registry's job (component C8,
// spec.md §1 places full dispatch tables out of scope for this package);
// Translate accepts a nil resolver and falls back to unconditionally
// dispatching every call/super-call at runtime.
type MonomorphicResolver interface {
	// ResolveMonomorphic reports the single primitive every implementation
	// reachable from bundle (given argTypes) shares, plus the full set of
	// contingent atom names (method-defining identifiers) the resulting
	// chunk must depend on, or ok=false if no such primitive exists.
	ResolveMonomorphic(bundle *l1.Bundle, argTypes []types.Type) (prim *primitive.Primitive, contingentAtoms []string, ok bool)
}

// translation carries one raw function's translation state.
type translation struct {
	rawFn    *l1.RawFunction
	reader   *nybble.Reader
	chunk    *Chunk
	regs     *RegisterSet
	next     int
	stack    []int
	localReg []int
	resolver MonomorphicResolver
}

// Translate lowers rawFn's Level One nybblecode into a Level Two chunk at
// the given optimisation level (spec.md §4.6). Only a level-0 translation
// carries the reoptimisation trigger ("newly translated code at
// optimisation level 0 begins with
// decrement-counter-and-reoptimize-on-zero(level=1)") — once a raw
// function has been promoted past level 0, component C8 retranslates it
// fresh at the target level rather than re-arming the same counter, so
// S1's eventual level-1 chunk never carries the check instruction at all.
func Translate(rawFn *l1.RawFunction, resolver MonomorphicResolver, level int) (*Chunk, error) {
	numSlots := rawFn.ArgCount() + rawFn.L1Chunk.NumLocals
	tr := &translation{
		rawFn:    rawFn,
		reader:   nybble.NewReader(rawFn.L1Chunk.Code),
		chunk:    NewChunk(FirstSlotRegister + numSlots),
		regs:     NewRegisterSet(),
		next:     FirstSlotRegister + numSlots,
		localReg: make([]int, numSlots),
		resolver: resolver,
	}
	for i := 0; i < numSlots; i++ {
		tr.localReg[i] = FirstSlotRegister + i
	}
	tr.chunk.OptimizationLevel = level
	tr.chunk.ReoptimizeAt = DefaultReoptimizeThreshold
	tr.chunk.ReoptimizeCounter = DefaultReoptimizeThreshold

	if level == 0 {
		tr.emit(NewInstruction(OpDecrementCounterAndReoptimizeOnZero, -1, Imm(1)))
	}

	for i := rawFn.ArgCount(); i < numSlots; i++ {
		tr.emit(NewInstruction(OpCreateVariable, tr.localReg[i], Lit(types.Top)))
	}

	for !tr.reader.AtEnd() {
		op := l1.Op(tr.reader.ReadNybble())
		if err := tr.translateOp(op); err != nil {
			return nil, err
		}
	}

	result := tr.pop()
	tr.emit(NewInstruction(OpReturn, -1, Reg(RegCaller), Reg(result)))

	tr.chunk.NumRegisters = tr.next
	return tr.chunk, nil
}

func (tr *translation) newReg() int {
	r := tr.next
	tr.next++
	return r
}

func (tr *translation) emit(in Instruction) {
	tr.chunk.Instructions = append(tr.chunk.Instructions, in)
}

func (tr *translation) push(r int) { tr.stack = append(tr.stack, r) }
func (tr *translation) pop() int {
	r := tr.stack[len(tr.stack)-1]
	tr.stack = tr.stack[:len(tr.stack)-1]
	return r
}
func (tr *translation) peek() int { return tr.stack[len(tr.stack)-1] }

func (tr *translation) move(dest, src int) {
	tr.emit(NewInstruction(OpMove, dest, Reg(src)))
	tr.regs.AddOrigin(dest, src)
}

func (tr *translation) translateOp(op l1.Op) error {
	chunk := tr.rawFn.L1Chunk
	switch op {
	case l1.OpPushLiteral:
		n := nybble.ReadOperand(tr.reader)
		lit := chunk.Literals[n]
		dest := tr.newReg()
		tr.emit(NewInstruction(OpMoveConstant, dest, Lit(lit)))
		tr.regs.SetConstant(dest, lit)
		tr.push(dest)

	case l1.OpPushLocal:
		n := nybble.ReadOperand(tr.reader)
		src := tr.localReg[n-1]
		dest := tr.newReg()
		tr.move(dest, src)
		tr.emit(NewInstruction(OpMakeImmutable, dest, Reg(dest)))
		tr.push(dest)

	case l1.OpPushLastLocal:
		n := nybble.ReadOperand(tr.reader)
		src := tr.localReg[n-1]
		dest := tr.newReg()
		tr.move(dest, src)
		tr.emit(NewInstruction(OpClear, src))
		tr.regs.Sever(src)
		tr.push(dest)

	case l1.OpPushOuter:
		n := nybble.ReadOperand(tr.reader)
		outerBox := tr.newReg()
		tr.emit(NewInstruction(OpExtractOuter, outerBox, Reg(RegFunction), Imm(n)))
		dest := tr.newReg()
		tr.move(dest, outerBox)
		tr.emit(NewInstruction(OpMakeImmutable, dest, Reg(dest)))
		tr.push(dest)

	case l1.OpPushLastOuter:
		// The null-out-on-last-use optimisation (spec.md §4.4 "if function
		// and outer both mutable, nil the outer") is a memory-retention
		// detail with no observable value semantics once the outer slot
		// is provably dead; omitted here the same way fiber suspension
		// is implemented via a blocked goroutine rather than captured
		// continuation state (see internal/continuation.Fiber.Suspend).
		n := nybble.ReadOperand(tr.reader)
		outerBox := tr.newReg()
		tr.emit(NewInstruction(OpExtractOuter, outerBox, Reg(RegFunction), Imm(n)))
		dest := tr.newReg()
		tr.move(dest, outerBox)
		tr.emit(NewInstruction(OpMakeImmutable, dest, Reg(dest)))
		tr.push(dest)

	case l1.OpGetLocal:
		n := nybble.ReadOperand(tr.reader)
		dest := tr.newReg()
		tr.emit(NewInstruction(OpGet, dest, Reg(tr.localReg[n-1])))
		tr.regs.SetType(dest, tr.declaredLocalType(n))
		tr.push(dest)

	case l1.OpGetLocalClearing:
		n := nybble.ReadOperand(tr.reader)
		dest := tr.newReg()
		tr.emit(NewInstruction(OpGetClearing, dest, Reg(tr.localReg[n-1])))
		tr.regs.SetType(dest, tr.declaredLocalType(n))
		tr.push(dest)

	case l1.OpSetLocal:
		n := nybble.ReadOperand(tr.reader)
		v := tr.pop()
		tr.emit(NewInstruction(OpSet, -1, Reg(tr.localReg[n-1]), Reg(v)))

	case l1.OpGetOuter:
		n := nybble.ReadOperand(tr.reader)
		outerBox := tr.newReg()
		tr.emit(NewInstruction(OpExtractOuter, outerBox, Reg(RegFunction), Imm(n)))
		dest := tr.newReg()
		tr.emit(NewInstruction(OpGet, dest, Reg(outerBox)))
		tr.push(dest)

	case l1.OpSetOuter:
		n := nybble.ReadOperand(tr.reader)
		v := tr.pop()
		outerBox := tr.newReg()
		tr.emit(NewInstruction(OpExtractOuter, outerBox, Reg(RegFunction), Imm(n)))
		tr.emit(NewInstruction(OpSet, -1, Reg(outerBox), Reg(v)))

	case l1.OpGetOuterClearing:
		n := nybble.ReadOperand(tr.reader)
		outerBox := tr.newReg()
		tr.emit(NewInstruction(OpExtractOuter, outerBox, Reg(RegFunction), Imm(n)))
		dest := tr.newReg()
		tr.emit(NewInstruction(OpGetClearing, dest, Reg(outerBox)))
		tr.push(dest)

	case l1.OpPushLiteralAsVar:
		n := nybble.ReadOperand(tr.reader)
		declared := chunk.Literals[n].AsObject().(*types.TypeObject).T
		dest := tr.newReg()
		tr.emit(NewInstruction(OpCreateVariable, dest, Lit(declared)))
		tr.push(dest)

	case l1.OpGetLiteral:
		n := nybble.ReadOperand(tr.reader)
		box := tr.newReg()
		tr.emit(NewInstruction(OpMoveConstant, box, Lit(chunk.Literals[n])))
		dest := tr.newReg()
		tr.emit(NewInstruction(OpGet, dest, Reg(box)))
		tr.push(dest)

	case l1.OpSetLiteral:
		n := nybble.ReadOperand(tr.reader)
		v := tr.pop()
		box := tr.newReg()
		tr.emit(NewInstruction(OpMoveConstant, box, Lit(chunk.Literals[n])))
		tr.emit(NewInstruction(OpSet, -1, Reg(box), Reg(v)))

	case l1.OpClose:
		c := nybble.ReadOperand(tr.reader)
		numOuters := nybble.ReadOperand(tr.reader)
		outers := make([]int, numOuters)
		for i := numOuters - 1; i >= 0; i-- {
			outers[i] = tr.pop()
		}
		dest := tr.newReg()
		tr.emit(NewInstruction(OpCreateFunction, dest, Lit(chunk.Literals[c]), RegList(outers)))
		tr.push(dest)

	case l1.OpMakeTuple:
		n := nybble.ReadOperand(tr.reader)
		elems := make([]int, n)
		for i := n - 1; i >= 0; i-- {
			elems[i] = tr.pop()
		}
		dest := tr.newReg()
		tr.emit(NewInstruction(OpCreateTuple, dest, RegList(elems)))
		tr.push(dest)

	case l1.OpPop:
		tr.pop()

	case l1.OpDuplicate:
		r := tr.peek()
		tr.emit(NewInstruction(OpMakeImmutable, r, Reg(r)))
		tr.push(r)

	case l1.OpCall:
		return tr.translateCall(false)

	case l1.OpSuperCall:
		return tr.translateCall(true)

	case l1.OpPushLabel:
		args := append([]int(nil), tr.localReg[:tr.rawFn.ArgCount()]...)
		dest := tr.newReg()
		tr.emit(NewInstruction(OpCreateContinuation, dest,
			Reg(RegCaller), Reg(RegFunction), Imm(0), Imm(0), RegList(args), Imm(-1)))
		tr.push(dest)

	case l1.OpGetType:
		n := nybble.ReadOperand(tr.reader)
		src := tr.stack[len(tr.stack)-1-n]
		dest := tr.newReg()
		tr.emit(NewInstruction(OpGetRuntimeType, dest, Reg(src)))
		tr.push(dest)

	default:
		return fmt.Errorf("l2: translator does not know opcode %s", op)
	}
	return nil
}

func (tr *translation) declaredLocalType(n int) types.Type {
	if n <= tr.rawFn.ArgCount() {
		return tr.rawFn.ParamTypes[n-1]
	}
	return types.Top
}

// translateCall lowers both `call` (super=false) and `super-call`
// (super=true), mirroring internal/l1.Interpreter.doCall's unification of
// the two under one function and preserving Open Question #2's pop order:
// types first (topmost) then values, values in original left-to-right
// order, dispatch consulting only the popped types for a super-call.
func (tr *translation) translateCall(super bool) error {
	bundleIdx := nybble.ReadOperand(tr.reader)
	expectedIdx := nybble.ReadOperand(tr.reader)
	bundle := tr.rawFn.L1Chunk.Literals[bundleIdx].AsObject().(*l1.Bundle)
	expectedType := tr.rawFn.L1Chunk.Literals[expectedIdx].AsObject().(*types.TypeObject).T

	var argTypeRegs []int
	if super {
		argTypeRegs = make([]int, bundle.NumArgs)
		for i := bundle.NumArgs - 1; i >= 0; i-- {
			argTypeRegs[i] = tr.pop()
		}
	}
	argRegs := make([]int, bundle.NumArgs)
	for i := bundle.NumArgs - 1; i >= 0; i-- {
		argRegs[i] = tr.pop()
	}

	argTypes := make([]types.Type, bundle.NumArgs)
	for i, r := range argRegs {
		if super {
			if v, ok := tr.regs.ConstantOf(argTypeRegs[i]); ok {
				argTypes[i] = v.AsObject().(*types.TypeObject).T
				continue
			}
		}
		if t, ok := tr.regs.TypeOf(r); ok {
			argTypes[i] = t
			continue
		}
		argTypes[i] = types.Top
	}

	dest := tr.newReg()

	if tr.resolver != nil {
		if prim, contingent, ok := tr.resolver.ResolveMonomorphic(bundle, argTypes); ok {
			inlined, err := tr.inlinePrimitive(prim, argRegs, dest, expectedType, bundle, argTypeRegs, super)
			if err != nil {
				return err
			}
			if inlined {
				for _, a := range contingent {
					tr.chunk.AddContingentAtom(a)
				}
				tr.push(dest)
				return nil
			}
		}
	}

	tr.emitGenericDispatch(OpSuperCall, bundle, argRegs, argTypeRegs, expectedType, dest, super)
	tr.push(dest)
	return nil
}

// inlinePrimitive implements spec.md §4.6's primitive-inlining steps
// 2-4 for a call site already proven effectively monomorphic. Returns
// false (leaving the call site untouched) only when the resolved
// primitive has neither SpecialReturnConstant, CanFold, nor CanInline —
// at which point the caller falls back to a fully dynamic dispatch.
func (tr *translation) inlinePrimitive(p *primitive.Primitive, argRegs []int, dest int, expectedType types.Type, bundle *l1.Bundle, argTypeRegs []int, super bool) (bool, error) {
	if p.Flags.Has(primitive.SpecialReturnConstant) {
		tr.emit(NewInstruction(OpMoveConstant, dest, Lit(p.FirstLiteral)))
		tr.regs.SetConstant(dest, p.FirstLiteral)
		return true, nil
	}

	if p.Flags.Has(primitive.CanFold) {
		if args, ok := tr.constantArgs(argRegs); ok {
			outcome, v, err := p.Attempt(foldContext{}, args, false)
			if err != nil {
				return false, err
			}
			if outcome == primitive.Success && types.InstanceOf(v, expectedType) {
				tr.emit(NewInstruction(OpMoveConstant, dest, Lit(v)))
				tr.regs.SetConstant(dest, v)
				return true, nil
			}
		}
	}

	if !p.Flags.Has(primitive.CanInline) {
		return false, nil
	}

	if p.Number == primitive.NumIntegerDivide {
		tr.emitDivideIntByInt(p, argRegs, dest, bundle, expectedType)
		return true, nil
	}

	if p.Flags.Has(primitive.CannotFail) {
		tr.emit(NewInstruction(OpNoFailPrimitive, dest, Lit(p), RegList(argRegs)))
		tr.regs.SetType(dest, p.ReturnType)
		return true, nil
	}

	before := len(tr.chunk.Instructions)
	fallbackIdx := before + 1
	successIdx := before + 2
	tr.emit(NewInstruction(OpAttemptInlinePrimitive, dest, Lit(p), RegList(argRegs), PC(successIdx), PC(fallbackIdx)))
	tr.emitGenericDispatch(OpCallAfterFailedPrimitive, bundle, argRegs, argTypeRegs, expectedType, dest, super)
	tr.regs.SetType(dest, expectedType)
	return true, nil
}

// emitDivideIntByInt lowers a monomorphic IntegerDivide call site directly
// to the spec-mandated divide-int-by-int op (spec.md §4.5, §8 scenario S3)
// rather than the generic attempt-inline-primitive path.
func (tr *translation) emitDivideIntByInt(p *primitive.Primitive, argRegs []int, dest int, bundle *l1.Bundle, expectedType types.Type) {
	remainder := tr.newReg()
	before := len(tr.chunk.Instructions)
	oorIdx := before + 1
	zeroDivIdx := before + 2
	okIdx := before + 3
	tr.emit(NewInstruction(OpDivideIntByInt, dest,
		Reg(argRegs[0]), Reg(argRegs[1]), Reg(dest), Reg(remainder),
		PC(oorIdx), PC(zeroDivIdx), PC(okIdx)))
	tr.emitGenericDispatch(OpCallAfterFailedPrimitive, bundle, argRegs, nil, expectedType, dest, false)
	tr.emitGenericDispatch(OpCallAfterFailedPrimitive, bundle, argRegs, nil, expectedType, dest, false)
	tr.regs.SetType(dest, types.Integers)
}

// emitGenericDispatch lowers a call site that could not be proven
// monomorphic (or a failed inline attempt's fallback) to a runtime
// dispatch. op is OpSuperCall for a fresh, un-inlined call site (carrying
// an explicit by-super-types discriminant, generalising the single named
// spec.md §4.5 op to cover plain value-dispatch `call` the same way
// internal/l1.Interpreter.doCall implements both opcodes with one
// function) or OpCallAfterFailedPrimitive when re-dispatching after an
// inlined attempt failed.
func (tr *translation) emitGenericDispatch(op OpCode, bundle *l1.Bundle, argRegs, argTypeRegs []int, expectedType types.Type, dest int, super bool) {
	bySuper := 0
	if super {
		bySuper = 1
	}
	tr.emit(NewInstruction(op, dest, Imm(bySuper), Lit(bundle), RegList(argRegs), RegList(argTypeRegs), Lit(expectedType)))
	tr.regs.SetType(dest, expectedType)
}

func (tr *translation) constantArgs(argRegs []int) ([]types.Value, bool) {
	args := make([]types.Value, len(argRegs))
	for i, r := range argRegs {
		v, ok := tr.regs.ConstantOf(r)
		if !ok {
			return nil, false
		}
		args[i] = v
	}
	return args, true
}

// foldContext is the primitive.Context given to a CanFold primitive's
// Attempt during compile-time constant folding (spec.md §4.6 step 3).
// CanFold primitives are declared side-effect-free and must not touch any
// of these; each panics rather than silently doing nothing, since a
// CanFold primitive that needs them indicates a mis-declared flag.
type foldContext struct{}

func (foldContext) Push(types.Value) {
	panic("l2: CanFold primitive attempted Push during constant folding")
}
func (foldContext) Pop() types.Value {
	panic("l2: CanFold primitive attempted Pop during constant folding")
}
func (foldContext) Invoke(types.Object, []types.Value) (primitive.Outcome, types.Value, error) {
	panic("l2: CanFold primitive attempted Invoke during constant folding")
}
func (foldContext) Suspend(string) types.Value {
	panic("l2: CanFold primitive attempted Suspend during constant folding")
}
