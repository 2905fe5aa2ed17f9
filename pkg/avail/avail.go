// Package avail is the embeddable façade over the engine (SPEC_FULL.md §0
// "pkg/avail/ embeddable façade (New(), Run(), Register*)"), mirroring the
// teacher's pkg/embed.VM: a high-level wrapper that owns the runtime's
// registries and exposes a small, stable API to a host program, instead of
// making a caller assemble internal/l1, internal/l2, internal/dispatch,
// and internal/repository collaborators by hand.
package avail

import (
	"fmt"

	"github.com/availlang/avail/internal/continuation"
	"github.com/availlang/avail/internal/dispatch"
	"github.com/availlang/avail/internal/l1"
	"github.com/availlang/avail/internal/primitive"
	"github.com/availlang/avail/internal/repository"
	"github.com/availlang/avail/internal/types"
)

// Engine bundles the method registry, primitive catalogue, dispatcher,
// and an optional repository into one embeddable runtime.
type Engine struct {
	primitives *primitive.Registry
	registry   *dispatch.Registry
	invoker    *dispatch.Invoker
	repo       *repository.Repository
}

// New builds an Engine with the core arithmetic/tuple primitive
// catalogue (internal/primitive.NewCoreRegistry) already registered,
// mirroring the teacher's pkg/embed.New() pre-loading its standard
// builtins and traits before returning control to the host.
func New() *Engine {
	prims := primitive.NewCoreRegistry()
	registry := dispatch.NewRegistry(prims)
	interp := &l1.Interpreter{Primitives: prims, Dispatch: registry}
	return &Engine{
		primitives: prims,
		registry:   registry,
		invoker:    &dispatch.Invoker{Interp: interp, Registry: registry},
	}
}

// RegisterPrimitive exposes the primitive registry for a host that wants
// to add foreign primitives beyond the core arithmetic/tuple catalogue.
func (e *Engine) RegisterPrimitive(p *primitive.Primitive) error {
	return e.primitives.Register(p)
}

// DefineMethod installs fn as an implementation of name for the given
// parameter types (spec.md glossary "method", "implementation"),
// invalidating any chunk that had inlined around name's prior
// monomorphism.
func (e *Engine) DefineMethod(name string, argTypes []types.Type, fn *l1.RawFunction) {
	e.registry.Define(name, argTypes, l1.NewFunction(fn, nil))
}

// ForgetMethod removes the implementation of name whose parameter types
// match exactly.
func (e *Engine) ForgetMethod(name string, argTypes []types.Type) {
	e.registry.Forget(name, argTypes)
}

// OpenRepository attaches a content-addressed module repository backed by
// the SQLite file at path (internal/repository, component C9).
func (e *Engine) OpenRepository(path string) error {
	repo, err := repository.Open(path)
	if err != nil {
		return err
	}
	e.repo = repo
	return nil
}

// Repository returns the engine's open repository, or nil if
// OpenRepository has not been called.
func (e *Engine) Repository() *repository.Repository {
	return e.repo
}

// Close releases any resources the engine holds open, such as a
// repository file handle.
func (e *Engine) Close() error {
	if e.repo != nil {
		return e.repo.Close()
	}
	return nil
}

// Run invokes fn with args on a fresh fiber, selecting between Level One
// reinterpretation and an existing Level Two chunk the way
// internal/dispatch.Invoker.Invoke does (spec.md §4.8).
func (e *Engine) Run(fn *l1.RawFunction, args []types.Value) (types.Value, error) {
	if len(args) != fn.ArgCount() {
		return types.NilValue(), fmt.Errorf("avail: %s expects %d arguments, got %d", fn.Name, fn.ArgCount(), len(args))
	}
	fiber := continuation.NewFiber(nil, 0)
	closure := l1.NewFunction(fn, nil)
	return e.invoker.Invoke(fiber, closure, args)
}
