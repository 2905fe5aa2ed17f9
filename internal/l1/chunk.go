package l1

import (
	"github.com/availlang/avail/internal/nybble"
	"github.com/availlang/avail/internal/types"
)

// Chunk is a Level One code body: a nybble-packed instruction stream plus
// its literal pool, mirroring the teacher's Chunk
// (_examples/funvibe-funxy/internal/vm/chunk.go Code+Constants) but with
// bytes addressed in nybbles rather than whole bytes, per spec.md §6's
// nybblecode format.
type Chunk struct {
	Code     []byte
	Literals []types.Value

	// NumArgs, NumLocals and MaxStackDepth size a Continuation's slot
	// vector (spec.md §3 "A continuation's slot count equals args +
	// locals + maxStack").
	NumArgs       int
	NumLocals     int
	MaxStackDepth int
}

// NewChunk creates an empty chunk with the given frame shape.
func NewChunk(numArgs, numLocals, maxStackDepth int) *Chunk {
	return &Chunk{
		NumArgs:       numArgs,
		NumLocals:     numLocals,
		MaxStackDepth: maxStackDepth,
	}
}

// AddLiteral appends v to the literal pool and returns its index; equal
// values already in the pool are not reused.
func (c *Chunk) AddLiteral(v types.Value) int {
	c.Literals = append(c.Literals, v)
	return len(c.Literals) - 1
}

// Len returns the instruction stream length in bytes.
func (c *Chunk) Len() int { return len(c.Code) }

// builder accumulates opcodes and nybble-encoded operands into a Chunk.
// It exists so hand-written tests and a future L1-emitting compiler don't
// have to manipulate nybble packing directly.
type builder struct {
	chunk *Chunk
	w     nybble.Writer
}

func newBuilder(numArgs, numLocals, maxStackDepth int) *builder {
	return &builder{chunk: NewChunk(numArgs, numLocals, maxStackDepth)}
}

func (b *builder) emit(op Op, operands ...int) {
	if len(operands) != op.operandCount() {
		panic("l1: wrong operand count for " + op.String())
	}
	b.w.WriteNybble(byte(op))
	for _, v := range operands {
		nybble.WriteOperand(&b.w, v)
	}
}

func (b *builder) finish() *Chunk {
	b.chunk.Code = b.w.Bytes()
	return b.chunk
}
