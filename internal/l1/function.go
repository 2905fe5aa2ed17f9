package l1

import (
	"fmt"

	"github.com/availlang/avail/internal/primitive"
	"github.com/availlang/avail/internal/types"
)

// RawFunction is compiled code together with its declared shape: argument
// types, result type, and the Level One chunk that implements it at
// optimisation level 0. It corresponds to spec.md §3's "RawFunction" and
// is the unit the translator (internal/l2) re-lowers and the dispatcher
// (internal/dispatch) re-optimises.
//
// Grounded on the teacher's function/closure split
// (_examples/funvibe-funxy/internal/vm/objects.go CompiledFunction vs
// Closure) generalized to carry an explicit declared block type instead
// of inferring one from the AST.
type RawFunction struct {
	Name       string
	ParamTypes []types.Type
	ResultType types.Type
	NumOuters  int

	L1Chunk *Chunk

	// Primitive, if non-nil, is attempted before any nybblecode runs
	// (spec.md §7 "Primitive failure"). A CannotFail primitive's
	// RawFunction typically has an empty L1Chunk, since there is no
	// fallback path to fall through to.
	Primitive *primitive.Primitive

	// StartingChunk is the chunk currently entered when this raw function
	// is invoked: nil while L1Chunk is interpreted directly, or an L2 chunk
	// once translated (spec.md §4.8). Declared as an opaque Object so
	// internal/l1 does not need to import internal/l2.
	StartingChunk types.Object

	// ReoptimizationCounter is not read or written anywhere in this
	// module; the reoptimisation countdown internal/dispatch decrements is
	// l2.Chunk.ReoptimizeCounter.
	ReoptimizationCounter int32
}

func (f *RawFunction) ArgCount() int      { return len(f.ParamTypes) }
func (f *RawFunction) LocalCount() int    { return f.L1Chunk.NumLocals }
func (f *RawFunction) MaxStackDepth() int { return f.L1Chunk.MaxStackDepth }

func (f *RawFunction) Kind() types.Kind { return types.KindRawFunction }
func (f *RawFunction) String() string   { return fmt.Sprintf("a raw function (%s)", f.Name) }
func (f *RawFunction) Hash() uint32     { return hashString(f.Name) }
func (f *RawFunction) Immutable() types.Object {
	return f // code bodies are immutable once built
}
func (f *RawFunction) Equals(o types.Object) bool { return o == types.Object(f) }
func (f *RawFunction) RuntimeType() types.Type {
	return types.FunctionType{Params: f.ParamTypes, Result: f.ResultType}
}

// Function is a closure: a RawFunction plus its captured outer values
// (spec.md §4.4 "close c,n").
type Function struct {
	Code   *RawFunction
	Outers []types.Value
}

func NewFunction(code *RawFunction, outers []types.Value) *Function {
	return &Function{Code: code, Outers: outers}
}

func (f *Function) ArgCount() int      { return f.Code.ArgCount() }
func (f *Function) LocalCount() int    { return f.Code.LocalCount() }
func (f *Function) MaxStackDepth() int { return f.Code.MaxStackDepth() }

func (f *Function) Kind() types.Kind { return types.KindFunction }
func (f *Function) String() string   { return fmt.Sprintf("a function (%s)", f.Code.Name) }
func (f *Function) Hash() uint32     { return f.Code.Hash() }
func (f *Function) Immutable() types.Object {
	return f // functions are shared, not deep-copied
}
func (f *Function) Equals(o types.Object) bool { return o == types.Object(f) }
func (f *Function) RuntimeType() types.Type    { return f.Code.RuntimeType() }

func hashString(s string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}
