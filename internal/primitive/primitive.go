// Package primitive implements the primitive framework (spec.md §4.3,
// component C3): an open, numbered registry of host-implemented
// operations with declared argument/failure types and a flag set the
// translator consults when deciding whether to inline or fold a call.
//
// Grounded on the teacher's builtin registry shape
// (_examples/funvibe-funxy internal/evaluator/builtins.go registers a
// global Builtins map keyed by name with a TypeInfo invariant checked at
// init time) generalized to numbered primitives with double-checked lazy
// publication per spec.md §5 and §9.
package primitive

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/availlang/avail/internal/types"
)

// Flag is one bit of a primitive's declared behavior (spec.md §4.3).
type Flag uint32

const (
	CanFold Flag = 1 << iota
	CanInline
	HasSideEffect
	Invokes
	SwitchesContinuation
	SpecialReturnConstant
	SpecialReturnSoleArgument
	SpecialReturnGlobalValue
	CannotFail
	Private
	Bootstrap
	CatchException
	PreserveFailureVariable
	PreserveArguments
	Unknown
)

func (f Flag) Has(bit Flag) bool { return f&bit != 0 }

// Fallibility classifies whether a primitive can fail for specific
// argument types (spec.md §4.3 fallibilityForArgumentTypes).
type Fallibility int

const (
	MustFail Fallibility = iota
	CanFail
	CannotFailFor
)

// Outcome is the result of attempting a primitive (spec.md §4.3 attempt).
type Outcome int

const (
	Success Outcome = iota
	Failure
	ContinuationChanged
	FiberSuspended
)

// Context is the minimal surface a primitive body needs from whatever is
// driving it (the L1 interpreter or an L2 chunk). Kept as an interface so
// this package never imports internal/l1 or internal/l2 (they import this
// package instead).
type Context interface {
	// Push/Pop manipulate the caller's operand stack for primitives that
	// return a value via the normal push-on-success convention.
	Push(v types.Value)
	Pop() types.Value

	// Invoke calls an Avail function value with args, used by primitives
	// with the Invokes flag; it may itself report ContinuationChanged.
	Invoke(fn types.Object, args []types.Value) (Outcome, types.Value, error)

	// Suspend yields the current fiber, blocking until something resumes
	// it with a value; primitives with SwitchesContinuation call this and
	// hand its result on as their own FiberSuspended outcome value.
	Suspend(reason string) types.Value
}

// Primitive is a single numbered, named host operation (spec.md §4.3).
type Primitive struct {
	Number int
	Name   string

	ArgCount int
	// ArgTypes and ReturnType form the "block type restriction."
	ArgTypes   []types.Type
	ReturnType types.Type

	// FailureType is the type of value placed in the failure variable on
	// a Failure outcome.
	FailureType types.Type

	Flags Flag

	// FallibilityForArgumentTypes narrows Fallibility given more precise
	// static argument types than ArgTypes (spec.md §4.3).
	FallibilityForArgumentTypes func(argTypes []types.Type) Fallibility

	// Attempt runs the primitive body. skipReturnCheck tells a primitive
	// that its caller has already proven the result will conform, so it
	// may skip redundant validation work.
	Attempt func(ctx Context, args []types.Value, skipReturnCheck bool) (Outcome, types.Value, error)

	// FirstLiteral is consulted when Flags.Has(SpecialReturnConstant).
	FirstLiteral types.Value
}

// Validate enforces the registration-time sanity constraints from
// spec.md §4.3: "CanFold ⇒ CanInline; if CannotFail and no SpecialReturn*,
// the primitive body has no Avail fallback code" (the latter is a
// documentation contract this package cannot check mechanically — callers
// registering CannotFail primitives must not supply fallback code, and
// Validate rejects the one combination it can detect: CannotFail paired
// with a Fallibility function that reports anything but CannotFailFor
// for the primitive's declared ArgTypes).
func (p *Primitive) Validate() error {
	if p.Flags.Has(CanFold) && !p.Flags.Has(CanInline) {
		return fmt.Errorf("primitive %s: CanFold requires CanInline", p.Name)
	}
	if p.Flags.Has(CannotFail) && p.FallibilityForArgumentTypes != nil &&
		p.FallibilityForArgumentTypes(p.ArgTypes) != CannotFailFor {
		return fmt.Errorf("primitive %s: CannotFail but its fallibility is not CannotFailFor", p.Name)
	}
	if p.Attempt == nil {
		return fmt.Errorf("primitive %s: missing Attempt implementation", p.Name)
	}
	return nil
}

// entry is the double-checked-locking publication slot for one primitive
// number (spec.md §5: "a null slot indicates not yet loaded, writes are
// fenced, so readers either see a fully initialised primitive or retry
// under the lock").
type entry struct {
	ptr atomic.Pointer[Primitive]
}

// Registry maps primitive numbers and names bidirectionally and loads
// primitive bodies lazily from a generated manifest (spec.md §4.3).
type Registry struct {
	mu        sync.RWMutex
	byNumber  map[int]*entry
	byName    map[string]int
	loader    func(number int) *Primitive // supplied by the manifest
}

// NewRegistry creates an empty registry. loader, if non-nil, is consulted
// on a cache miss to materialize a primitive body lazily.
func NewRegistry(loader func(number int) *Primitive) *Registry {
	return &Registry{
		byNumber: make(map[int]*entry),
		byName:   make(map[string]int),
		loader:   loader,
	}
}

// Register eagerly installs p, validating its flags first.
func (r *Registry) Register(p *Primitive) error {
	if err := p.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byNumber[p.Number]
	if !ok {
		e = &entry{}
		r.byNumber[p.Number] = e
	}
	e.ptr.Store(p)
	r.byName[p.Name] = p.Number
	return nil
}

// Lookup returns the primitive for number, loading it lazily and
// publishing it under a fence if a loader was configured and the slot was
// empty (spec.md §4.3, §5, §9).
func (r *Registry) Lookup(number int) (*Primitive, bool) {
	r.mu.RLock()
	e, ok := r.byNumber[number]
	r.mu.RUnlock()
	if ok {
		if p := e.ptr.Load(); p != nil {
			return p, true
		}
	}
	if r.loader == nil {
		return nil, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Double check under the write lock in case another goroutine raced us.
	e, ok = r.byNumber[number]
	if !ok {
		e = &entry{}
		r.byNumber[number] = e
	}
	if p := e.ptr.Load(); p != nil {
		return p, true
	}
	p := r.loader(number)
	if p == nil {
		return nil, false
	}
	e.ptr.Store(p)
	r.byName[p.Name] = p.Number
	return p, true
}

// LookupByName resolves a primitive by name.
func (r *Registry) LookupByName(name string) (*Primitive, bool) {
	r.mu.RLock()
	number, ok := r.byName[name]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return r.Lookup(number)
}
