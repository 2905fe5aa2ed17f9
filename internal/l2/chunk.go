package l2

import "sync/atomic"

// Chunk is an optimised, register-based translation of a raw function's
// nybblecodes (glossary: "L2 chunk"). Grounded on the teacher's
// chunk.go (_examples/funvibe-funxy/internal/vm/chunk.go) for the
// constant-pool-plus-metadata shape, generalised per spec.md §4.5/§4.6/§4.8.
type Chunk struct {
	Instructions []Instruction
	NumRegisters int

	// ContingentAtoms is the set of method names this chunk inlined
	// implementations from (spec.md §4.6 step 5, glossary "contingent
	// atom"). Redefining any of them invalidates the chunk.
	ContingentAtoms map[string]struct{}

	// valid is cleared by chunk invalidation (spec.md §4.5 "chunk
	// invalidation", §7 "silently replaces the raw function's starting
	// chunk with the default"). Accessed atomically since invalidation
	// races with concurrent fiber dispatch (spec.md §5).
	valid int32

	// OptimizationLevel and ReoptimizeCounter back
	// decrement-counter-and-reoptimize-on-zero (spec.md §4.6
	// "reoptimisation trigger").
	OptimizationLevel int
	ReoptimizeCounter int32
	ReoptimizeAt      int

	// EntryOffsetInDefault is where enter-l2-chunk falls through to in
	// the raw function's default (Level One reinterpretation) chunk, if
	// this chunk is found invalid (spec.md §4.5).
	EntryOffsetInDefault int
}

// DefaultReoptimizeThreshold is the configured counter reset value
// (spec.md §4.6: "the counter is reset to a configured threshold").
const DefaultReoptimizeThreshold = 10

func NewChunk(numRegisters int) *Chunk {
	return &Chunk{
		NumRegisters:    numRegisters,
		ContingentAtoms: make(map[string]struct{}),
		valid:           1,
		ReoptimizeAt:    DefaultReoptimizeThreshold,
	}
}

func (c *Chunk) Valid() bool { return atomic.LoadInt32(&c.valid) != 0 }

// Invalidate clears the valid flag. Called by the method registry when a
// contingent atom is redefined (spec.md §4.5 "Chunk invalidation").
func (c *Chunk) Invalidate() { atomic.StoreInt32(&c.valid, 0) }

// AddContingentAtom records b as an atom this chunk depends on.
func (c *Chunk) AddContingentAtom(name string) { c.ContingentAtoms[name] = struct{}{} }

// DecrementAndCheck decrements the reoptimisation counter and reports
// whether it reached zero, per decrement-counter-and-reoptimize-on-zero.
// Resets the counter immediately so a racing second decrement on another
// executor thread doesn't also fire.
func (c *Chunk) DecrementAndCheck() bool {
	if atomic.AddInt32(&c.ReoptimizeCounter, -1) <= 0 {
		atomic.StoreInt32(&c.ReoptimizeCounter, int32(c.ReoptimizeAt))
		return true
	}
	return false
}

// DefaultChunk builds the degenerate Level One fallback chunk: an
// always-invalid chunk whose sole instruction reenters L1 interpretation,
// matching spec.md §4.8 ("Entering a raw function selects its
// startingChunk") combined with §4.5's invalidation fallthrough.
func DefaultChunk() *Chunk {
	c := &Chunk{
		Instructions:    []Instruction{NewInstruction(OpReenterL1FromInterrupt, -1)},
		ContingentAtoms: make(map[string]struct{}),
		valid:           0,
	}
	return c
}
