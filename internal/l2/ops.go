// Package l2 implements the Level Two register-based optimising IR
// (spec.md §4.5, component C5), the L1→L2 translator (§4.6, C6), and the
// L2 optimiser passes (§4.7, C7).
//
// Grounded on the teacher's instruction shape
// (_examples/funvibe-funxy/internal/vm/opcodes.go): a flat OpCode enum
// with a side table describing each op's operands, and a single
// Instruction struct carrying an opcode plus a small fixed operand list
// rather than per-opcode struct types. spec.md §4.5's operation list
// replaces the teacher's arithmetic/stack opcodes entirely.
package l2

// OpCode is a single Level Two instruction opcode.
type OpCode int

const (
	OpMove OpCode = iota
	OpMoveConstant
	OpClear
	OpMakeImmutable
	OpMakeSubobjectsImmutable

	OpGet
	OpGetClearing
	OpSet
	OpCreateVariable

	OpCreateFunction
	OpExtractOuter
	OpFunctionParameterType

	OpCreateContinuation
	OpReenterL2Chunk
	OpReenterL1FromInterrupt
	OpReturn

	OpInvoke
	OpSuperCall

	OpRunInfalliblePrimitive
	OpRunInfalliblePrimitiveNoCheck
	OpAttemptInlinePrimitive
	OpAttemptInlinePrimitiveNoCheck
	OpNoFailPrimitive
	OpCallAfterFailedPrimitive

	OpCreateTuple

	OpJump
	OpJumpIfKindOfConstant
	OpJumpIfIsNotKindOfConstant
	OpJumpIfGreaterOrEqual

	OpDivideIntByInt

	OpEnterL2Chunk
	OpDecrementCounterAndReoptimizeOnZero

	// OpGetRuntimeType is not among spec.md §4.5's named core operations,
	// but L1's get-type opcode (spec.md §4.4) has no other lowering target
	// in that list; added so the translator has somewhere to send it.
	OpGetRuntimeType

	// OpNop marks an instruction dead-code removal has eliminated. The
	// optimiser substitutes it in place of a removed instruction rather
	// than shrinking the instruction slice, so branch PC operands staged
	// earlier in the same fixpoint pass stay valid; Optimize compacts
	// nops out (renumbering PCs) only once the fixpoint has converged.
	OpNop
)

var opNames = map[OpCode]string{
	OpMove:                                 "move",
	OpMoveConstant:                         "move-constant",
	OpClear:                                "clear",
	OpMakeImmutable:                        "make-immutable",
	OpMakeSubobjectsImmutable:              "make-subobjects-immutable",
	OpGet:                                  "get",
	OpGetClearing:                          "get-clearing",
	OpSet:                                  "set",
	OpCreateVariable:                       "create-variable",
	OpCreateFunction:                       "create-function",
	OpExtractOuter:                         "extract-outer",
	OpFunctionParameterType:                "function-parameter-type",
	OpCreateContinuation:                   "create-continuation",
	OpReenterL2Chunk:                       "reenter-l2-chunk",
	OpReenterL1FromInterrupt:               "reenter-l1-from-interrupt",
	OpReturn:                               "return",
	OpInvoke:                               "invoke",
	OpSuperCall:                            "super-call",
	OpRunInfalliblePrimitive:               "run-infallible-primitive",
	OpRunInfalliblePrimitiveNoCheck:        "run-infallible-primitive-no-check",
	OpAttemptInlinePrimitive:               "attempt-inline-primitive",
	OpAttemptInlinePrimitiveNoCheck:        "attempt-inline-primitive-no-check",
	OpNoFailPrimitive:                      "no-fail-primitive",
	OpCallAfterFailedPrimitive:             "call-after-failed-primitive",
	OpCreateTuple:                          "create-tuple",
	OpJump:                                 "jump",
	OpJumpIfKindOfConstant:                 "jump-if-kind-of-constant",
	OpJumpIfIsNotKindOfConstant:            "jump-if-is-not-kind-of-constant",
	OpJumpIfGreaterOrEqual:                 "jump-if-greater-or-equal",
	OpDivideIntByInt:                       "divide-int-by-int",
	OpEnterL2Chunk:                         "enter-l2-chunk",
	OpDecrementCounterAndReoptimizeOnZero:  "decrement-counter-and-reoptimize-on-zero",
	OpGetRuntimeType:                       "get-runtime-type",
	OpNop:                                  "nop",
}

func (op OpCode) String() string {
	if s, ok := opNames[op]; ok {
		return s
	}
	return "unknown-l2-op"
}

// branchOps is the set of opcodes that declare one or more successor PCs,
// used by hasSideEffect (spec.md §4.7) and IsBranch. The disassembler
// does not consult it; it renders operands by their Kind.
var branchOps = map[OpCode]bool{
	OpJump:                      true,
	OpJumpIfKindOfConstant:      true,
	OpJumpIfIsNotKindOfConstant: true,
	OpJumpIfGreaterOrEqual:      true,
	OpDivideIntByInt:            true,
	OpInvoke:                    true,
	OpSuperCall:                 true,
	OpEnterL2Chunk:              true,
}

// Operand is a single operand of an Instruction. Kind distinguishes a
// register reference from an immediate value, a literal constant, or a
// branch target, matching spec.md §4.5's "static operand descriptors".
type Operand struct {
	Kind  OperandKind
	Reg   int         // valid when Kind == OperandRegister or OperandRegisterList (see Regs)
	Regs  []int       // valid when Kind == OperandRegisterList
	Imm   int         // valid when Kind == OperandImmediate or OperandPC
	Value interface{} // valid when Kind == OperandLiteral
}

type OperandKind int

const (
	OperandRegister OperandKind = iota
	OperandRegisterList
	OperandImmediate
	OperandLiteral
	OperandPC
)

func Reg(r int) Operand             { return Operand{Kind: OperandRegister, Reg: r} }
func RegList(rs []int) Operand      { return Operand{Kind: OperandRegisterList, Regs: rs} }
func Imm(n int) Operand             { return Operand{Kind: OperandImmediate, Imm: n} }
func Lit(v interface{}) Operand     { return Operand{Kind: OperandLiteral, Value: v} }
func PC(target int) Operand         { return Operand{Kind: OperandPC, Imm: target} }

// Instruction is one L2 instruction: an opcode plus its operand list.
// Dest, when >= 0, names the register this instruction writes — used by
// dead-code removal and by the register set's write-severing rule
// (spec.md §4.6 "writes sever both directions"). Dest is -1 for
// instructions with no register destination (branches, return, set).
type Instruction struct {
	Op       OpCode
	Operands []Operand
	Dest     int
}

func NewInstruction(op OpCode, dest int, operands ...Operand) Instruction {
	return Instruction{Op: op, Operands: operands, Dest: dest}
}

// HasSideEffect implements spec.md §4.7's conservative rule: "true for
// any branch, invoke, primitive attempt, interrupt, or chunk-entry".
func (in Instruction) HasSideEffect() bool {
	switch in.Op {
	case OpInvoke, OpSuperCall,
		OpRunInfalliblePrimitive, OpRunInfalliblePrimitiveNoCheck,
		OpAttemptInlinePrimitive, OpAttemptInlinePrimitiveNoCheck,
		OpNoFailPrimitive, OpCallAfterFailedPrimitive,
		OpReenterL2Chunk, OpReenterL1FromInterrupt, OpReturn,
		OpEnterL2Chunk, OpDecrementCounterAndReoptimizeOnZero,
		OpCreateContinuation, OpSet, OpCreateVariable:
		return true
	default:
		return branchOps[in.Op]
	}
}

// IsBranch reports whether this instruction declares successor PCs.
func (in Instruction) IsBranch() bool { return branchOps[in.Op] }
