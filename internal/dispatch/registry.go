// Package dispatch implements the method registry, chunk entry/return
// logic, and reoptimisation wiring (spec.md §4.5 "Chunk invalidation",
// §4.6 "reoptimisation trigger", §4.8 "Entering a raw function", component
// C8). It is the concrete collaborator internal/l1's Dispatcher interface
// and internal/l2's MonomorphicResolver interface both anticipate —
// spec.md §1 places "method dispatch lookup tables" out of scope in the
// abstract, but a two-tier engine needs some real implementation of that
// seam to be end-to-end runnable, so this package supplies the minimum
// one: a name-keyed table of concrete implementations guarded by a
// RWMutex, grounded on the teacher's lazy-registration pattern in
// internal/evaluator/builtins.go generalised to multiple implementations
// per name (spec.md's "implementation set").
package dispatch

import (
	"fmt"
	"sync"

	"github.com/availlang/avail/internal/l1"
	"github.com/availlang/avail/internal/l2"
	"github.com/availlang/avail/internal/primitive"
	"github.com/availlang/avail/internal/types"
)

// implementation is one method body registered under a bundle name.
type implementation struct {
	argTypes []types.Type
	target   l1.Callable
}

// Registry is a method-dispatch table plus the contingent-chunk tracking
// spec.md §4.5's chunk invalidation needs: when an implementation is
// added or removed under a name, every L2 chunk that inlined around that
// name's former monomorphism is invalidated.
//
// Grounded on internal/primitive.Registry's RWMutex-guarded map shape,
// generalised from a single numbered slot to a name-keyed list of
// implementations plus a reverse contingent-atom index.
type Registry struct {
	mu    sync.RWMutex
	impls map[string][]*implementation

	// contingents maps an atom name to the set of chunks that inlined
	// around it (spec.md glossary "contingent atom").
	contingents map[string]map[*l2.Chunk]struct{}

	// primitives backs divide-int-by-int's direct primitive lookup
	// (internal/dispatch/execute.go), since that op carries no primitive
	// literal operand of its own the way attempt-inline-primitive does.
	primitives *primitive.Registry
}

// NewRegistry builds an empty method registry. primitives is consulted by
// the L2 executor's divide-int-by-int op, which needs the IntegerDivide
// primitive body but (unlike attempt-inline-primitive) carries no
// primitive literal operand of its own.
func NewRegistry(primitives *primitive.Registry) *Registry {
	return &Registry{
		impls:       make(map[string][]*implementation),
		contingents: make(map[string]map[*l2.Chunk]struct{}),
		primitives:  primitives,
	}
}

// Define adds target (a closure over a *l1.RawFunction, per
// internal/l1.Interpreter.doCall's expectation that a Dispatcher resolves
// to something directly invocable) as a new implementation under name,
// invalidating any chunk that had inlined around name's prior
// monomorphism.
func (r *Registry) Define(name string, argTypes []types.Type, target l1.Callable) {
	r.mu.Lock()
	r.impls[name] = append(r.impls[name], &implementation{argTypes: argTypes, target: target})
	r.mu.Unlock()
	r.invalidateContingents(name)
}

// Forget removes the implementation under name whose argTypes match
// exactly, invalidating any dependent chunk the same way Define does.
func (r *Registry) Forget(name string, argTypes []types.Type) {
	r.mu.Lock()
	list := r.impls[name]
	for i, impl := range list {
		if sameTypes(impl.argTypes, argTypes) {
			r.impls[name] = append(list[:i], list[i+1:]...)
			break
		}
	}
	r.mu.Unlock()
	r.invalidateContingents(name)
}

func sameTypes(a, b []types.Type) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !types.SubtypeOf(a[i], b[i]) || !types.SubtypeOf(b[i], a[i]) {
			return false
		}
	}
	return true
}

// RegisterContingent records that chunk was built inlining around atom,
// per spec.md §4.6 step 5. invalidateContingents walks this index when
// atom is redefined.
func (r *Registry) RegisterContingent(atom string, chunk *l2.Chunk) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.contingents[atom]
	if !ok {
		set = make(map[*l2.Chunk]struct{})
		r.contingents[atom] = set
	}
	set[chunk] = struct{}{}
}

func (r *Registry) invalidateContingents(atom string) {
	r.mu.RLock()
	set := r.contingents[atom]
	r.mu.RUnlock()
	for chunk := range set {
		chunk.Invalidate()
	}
	r.mu.Lock()
	delete(r.contingents, atom)
	r.mu.Unlock()
}

// reachable reports whether impl could plausibly apply to a call site
// whose arguments carry argTypes — every parameter position's declared
// type must overlap what the call site could supply.
func reachable(impl *implementation, argTypes []types.Type) bool {
	if len(impl.argTypes) != len(argTypes) {
		return false
	}
	for i, t := range argTypes {
		if types.Intersection(t, impl.argTypes[i]) == types.Bottom {
			return false
		}
	}
	return true
}

func (r *Registry) reachableSet(name string, argTypes []types.Type) []*implementation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*implementation
	for _, impl := range r.impls[name] {
		if reachable(impl, argTypes) {
			out = append(out, impl)
		}
	}
	return out
}

// LookupByValues implements l1.Dispatcher's plain `call`: dispatch on the
// runtime types of the supplied values.
func (r *Registry) LookupByValues(bundle *l1.Bundle, args []types.Value) (l1.Callable, error) {
	argTypes := make([]types.Type, len(args))
	for i, a := range args {
		argTypes[i] = a.RuntimeType()
	}
	return r.resolveOne(bundle, argTypes)
}

// LookupByTypes implements l1.Dispatcher's `super-call`: dispatch on
// explicitly supplied static types.
func (r *Registry) LookupByTypes(bundle *l1.Bundle, argTypes []types.Type) (l1.Callable, error) {
	return r.resolveOne(bundle, argTypes)
}

func (r *Registry) resolveOne(bundle *l1.Bundle, argTypes []types.Type) (l1.Callable, error) {
	candidates := r.reachableSet(bundle.Name, argTypes)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no implementation of %s for %v", l1.ErrUnresolvedDispatch, bundle.Name, argTypes)
	}
	// A full most-specific-implementation search (spec.md §1's "method
	// dispatch lookup tables") is out of scope; the first reachable
	// implementation is picked deterministically by registration order,
	// which is sufficient for the monomorphic call sites this engine is
	// built to exercise end to end.
	return candidates[0].target, nil
}

// ResolveMonomorphic implements internal/l2's MonomorphicResolver: if
// every implementation reachable from argTypes shares one primitive
// number, report it along with bundle.Name as the sole contingent atom.
func (r *Registry) ResolveMonomorphic(bundle *l1.Bundle, argTypes []types.Type) (*primitive.Primitive, []string, bool) {
	candidates := r.reachableSet(bundle.Name, argTypes)
	if len(candidates) == 0 {
		return nil, nil, false
	}
	var shared *primitive.Primitive
	for _, impl := range candidates {
		fn, ok := impl.target.(*l1.Function)
		if !ok || fn.Code.Primitive == nil {
			return nil, nil, false
		}
		if shared == nil {
			shared = fn.Code.Primitive
		} else if shared.Number != fn.Code.Primitive.Number {
			return nil, nil, false
		}
	}
	return shared, []string{bundle.Name}, true
}
