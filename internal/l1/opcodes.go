// Package l1 implements the Level One nybblecode interpreter (spec.md
// §4.4, component C4): a stack machine over reifiable continuations.
//
// Grounded on the teacher's bytecode VM shape
// (_examples/funvibe-funxy/internal/vm/opcodes.go, vm_exec.go, chunk.go):
// a byte-oriented instruction stream, a flat constant pool, and a
// switch-dispatched execute-one-instruction loop. The opcode set itself
// is entirely different — spec.md §4.4's fixed table of generic-dispatch
// and variable-access operations, not the teacher's expression-oriented
// opcode set — but the control structure (chunk + pc + operand stack +
// one function per opcode family) follows the teacher closely.
package l1

// Op is a single Level One nybblecode opcode (spec.md §4.4).
type Op byte

const (
	OpPushLiteral Op = iota
	OpPushLocal
	OpPushLastLocal
	OpPushOuter
	OpPushLastOuter
	OpGetLocal
	OpGetLocalClearing
	OpSetLocal
	OpGetOuter
	OpSetOuter
	OpGetOuterClearing
	OpPushLiteralAsVar
	OpGetLiteral
	OpSetLiteral
	OpClose
	OpMakeTuple
	OpPop
	OpDuplicate
	OpCall
	OpSuperCall
	OpPushLabel
	OpGetType
)

var opNames = map[Op]string{
	OpPushLiteral:       "push-literal",
	OpPushLocal:         "push-local",
	OpPushLastLocal:     "push-last-local",
	OpPushOuter:         "push-outer",
	OpPushLastOuter:     "push-last-outer",
	OpGetLocal:          "get-local",
	OpGetLocalClearing:  "get-local-clearing",
	OpSetLocal:          "set-local",
	OpGetOuter:          "get-outer",
	OpSetOuter:          "set-outer",
	OpGetOuterClearing:  "get-outer-clearing",
	OpPushLiteralAsVar:  "push-literal-as-var",
	OpGetLiteral:        "get-literal",
	OpSetLiteral:        "set-literal",
	OpClose:             "close",
	OpMakeTuple:         "make-tuple",
	OpPop:                "pop",
	OpDuplicate:         "duplicate",
	OpCall:              "call",
	OpSuperCall:         "super-call",
	OpPushLabel:         "push-label",
	OpGetType:           "get-type",
}

func (op Op) String() string {
	if s, ok := opNames[op]; ok {
		return s
	}
	return "unknown-op"
}

// OperandCount exposes operandCount to other packages (internal/l2's
// translator walks raw nybblecode the same way the interpreter does, and
// must not duplicate this table).
func OperandCount(op Op) int { return op.operandCount() }

// operandCount gives how many nybble-encoded operands follow each opcode,
// per spec.md §4.4's stack-effect table.
func (op Op) operandCount() int {
	switch op {
	case OpPushLiteral, OpPushLocal, OpPushLastLocal, OpPushOuter, OpPushLastOuter,
		OpGetLocal, OpGetLocalClearing, OpSetLocal, OpGetOuter, OpSetOuter, OpGetOuterClearing,
		OpPushLiteralAsVar, OpGetLiteral, OpSetLiteral, OpMakeTuple, OpGetType:
		return 1
	case OpClose, OpCall, OpSuperCall:
		return 2
	case OpPop, OpDuplicate, OpPushLabel:
		return 0
	default:
		return 0
	}
}
