// Package continuation implements reifiable call frames and cooperatively
// scheduled fibers (spec.md §3 "Continuation"/"Fiber", component C2).
//
// The split between a live frame and a reified Continuation follows
// spec.md §9's design note: "Live frames exist only as runtime register
// vectors; continuations are first-class values... force reification at
// every control-escape point."
package continuation

import (
	"fmt"

	"github.com/availlang/avail/internal/config"
	"github.com/availlang/avail/internal/types"
)

// Callable is the minimal surface a Continuation needs from the function it
// is executing. Concrete raw-function/closure types live in internal/l1 and
// internal/l2, which import this package — not the reverse — so Callable
// keeps those packages decoupled the way the teacher keeps evaluator.Object
// decoupled from vm.VM (_examples/funvibe-funxy internal/evaluator/object.go
// vs internal/vm/vm.go).
type Callable interface {
	types.Object
	ArgCount() int
	LocalCount() int
	MaxStackDepth() int
}

// Continuation is a reified call frame (spec.md §3 "Continuation"):
// caller (nullable), function, program counter, stack pointer, and an
// ordered slot vector holding arguments, locals, and stack entries.
//
// A Continuation is mutable only during construction (Push/SlotAtPut
// before Freeze); once frozen it is treated as an immutable value, per
// spec.md §3's "mutable only during construction, then frozen."
type Continuation struct {
	Caller   *Continuation
	Function Callable
	PC       int
	StackP   int // points one past the highest occupied stack slot region

	slots  []types.Value
	frozen bool
}

func (c *Continuation) Kind() types.Kind { return types.KindContinuation }

// NewConstruction starts building a continuation for fn. The slot vector is
// sized args+locals+maxStack exactly, matching spec.md §3's invariant "A
// continuation's slot count equals args + locals + maxStack."
func NewConstruction(caller *Continuation, fn Callable) *Continuation {
	total := fn.ArgCount() + fn.LocalCount() + fn.MaxStackDepth()
	return &Continuation{
		Caller:   caller,
		Function: fn,
		slots:    make([]types.Value, total),
	}
}

// SlotAt reads slot i (0-indexed). Valid before and after Freeze.
func (c *Continuation) SlotAt(i int) types.Value {
	return c.slots[i]
}

// SlotAtPut writes slot i. Valid only before Freeze (spec.md §4.2:
// "slotAtPut(i, v) (only before publish)").
func (c *Continuation) SlotAtPut(i int, v types.Value) {
	if c.frozen {
		panic("continuation: SlotAtPut after Freeze")
	}
	c.slots[i] = v
}

// SlotCount returns the fixed slot-vector length.
func (c *Continuation) SlotCount() int { return len(c.slots) }

// Freeze makes the continuation immutable; it is then safe to treat as a
// first-class, shareable value.
func (c *Continuation) Freeze() { c.frozen = true }

func (c *Continuation) IsFrozen() bool { return c.frozen }

func (c *Continuation) String() string {
	return fmt.Sprintf("a continuation (pc=%d)", c.PC)
}
func (c *Continuation) Hash() uint32 { return uint32(c.PC) * 2654435761 }
func (c *Continuation) Immutable() types.Object {
	return c // already frozen by construction discipline
}
func (c *Continuation) Equals(o types.Object) bool { return o == types.Object(c) }
func (c *Continuation) RuntimeType() types.Type {
	return types.Primitive(types.KindContinuation)
}

// GrowStack appends additional empty slots to accommodate deeper operand
// stacks than the function's declared maxStack, mirroring the teacher's
// incremental growth strategy (internal/vm/vm.go StackGrowthIncrement)
// instead of a hard ceiling.
func (c *Continuation) GrowStack() {
	if c.frozen {
		panic("continuation: GrowStack after Freeze")
	}
	extra := make([]types.Value, config.StackGrowthIncrement)
	c.slots = append(c.slots, extra...)
}
