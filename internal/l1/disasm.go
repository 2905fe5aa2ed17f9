package l1

import (
	"fmt"
	"strings"

	"github.com/availlang/avail/internal/nybble"
)

// Disassemble renders a chunk's nybblecode stream as one line per
// instruction, grounded on the teacher's text disassembler
// (_examples/funvibe-funxy/internal/vm/disasm.go) but walking a nybble
// stream instead of a byte stream.
func Disassemble(c *Chunk, name string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "== %s ==\n", name)
	r := nybble.NewReader(c.Code)
	for !r.AtEnd() {
		offset := r.NybbleIndex()
		op := Op(r.ReadNybble())
		fmt.Fprintf(&b, "%04d %-20s", offset, op.String())
		for i := 0; i < op.operandCount(); i++ {
			fmt.Fprintf(&b, " %d", nybble.ReadOperand(r))
		}
		b.WriteByte('\n')
	}
	return b.String()
}
