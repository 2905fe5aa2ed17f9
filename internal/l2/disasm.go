package l2

import (
	"fmt"
	"strings"
)

// Disassemble renders a chunk's instruction list as one line per
// instruction, grounded on the teacher's text disassembler
// (_examples/funvibe-funxy/internal/vm/disasm.go) and internal/l1's own
// Disassemble, generalised for L2's register/PC/literal operand mix
// instead of a nybble stream.
func Disassemble(c *Chunk, name string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "== %s (level %d, %d registers) ==\n", name, c.OptimizationLevel, c.NumRegisters)
	for i, in := range c.Instructions {
		fmt.Fprintf(&b, "%04d %-20s", i, in.Op.String())
		if in.Dest >= 0 {
			fmt.Fprintf(&b, " r%d <-", in.Dest)
		}
		for _, op := range in.Operands {
			b.WriteByte(' ')
			b.WriteString(formatOperand(op))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func formatOperand(op Operand) string {
	switch op.Kind {
	case OperandRegister:
		return fmt.Sprintf("r%d", op.Reg)
	case OperandRegisterList:
		parts := make([]string, len(op.Regs))
		for i, r := range op.Regs {
			parts[i] = fmt.Sprintf("r%d", r)
		}
		return "[" + strings.Join(parts, ",") + "]"
	case OperandImmediate:
		return fmt.Sprintf("#%d", op.Imm)
	case OperandPC:
		return fmt.Sprintf("@%d", op.Imm)
	case OperandLiteral:
		return fmt.Sprintf("<%v>", op.Value)
	default:
		return "?"
	}
}
