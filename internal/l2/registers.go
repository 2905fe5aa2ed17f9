package l2

import (
	"github.com/dolthub/swiss"

	"github.com/availlang/avail/internal/types"
)

// RegisterSet is the translator's working model of what is known about
// each virtual register at a given program point (spec.md §4.6): its
// best-known static type, a proven constant value if any, and the set of
// other registers that currently hold an equal value ("origins"), kept
// invertible for O(1) disconnection on write.
//
// Backed by github.com/dolthub/swiss (via the mna/swiss fork, the same
// generic hash map mna-nenuphar uses for its own Map value
// — _examples/mna-nenuphar/lang/machine/map.go) rather than a builtin Go
// map: a translator revisits and tears down register associations on
// every move/write, and a chunk can easily have several hundred
// registers once inlining has run, making swiss tables' lower constant
// factor worth it over `map[int]T` at this scale.
type RegisterSet struct {
	types     *swiss.Map[int, types.Type]
	constants *swiss.Map[int, types.Value]
	origins   *swiss.Map[int, []int] // register -> other registers sharing its value
	inverted  *swiss.Map[int, []int] // register -> registers that list it as an origin
}

func NewRegisterSet() *RegisterSet {
	return &RegisterSet{
		types:     swiss.NewMap[int, types.Type](64),
		constants: swiss.NewMap[int, types.Value](64),
		origins:   swiss.NewMap[int, []int](64),
		inverted:  swiss.NewMap[int, []int](64),
	}
}

func (rs *RegisterSet) TypeOf(r int) (types.Type, bool) { return rs.types.Get(r) }
func (rs *RegisterSet) SetType(r int, t types.Type)     { rs.types.Put(r, t) }

func (rs *RegisterSet) ConstantOf(r int) (types.Value, bool) { return rs.constants.Get(r) }

// SetConstant records r as holding the enumeration-of-one-instance type
// for v, per spec.md §4.6 "constants set both type (as an enumeration of
// one instance) and constant."
func (rs *RegisterSet) SetConstant(r int, v types.Value) {
	rs.constants.Put(r, v)
	rs.types.Put(r, singletonType(v))
}

func singletonType(v types.Value) types.Type {
	if i, ok := v.AsObject().(*types.Integer); ok {
		bi := types.FromBigInt(i.Value)
		return types.IntegerRangeType{Min: bi, Max: bi}
	}
	return v.RuntimeType()
}

// AddOrigin records that dest now holds the same value as src, linking
// both directions of the origins/invertedOrigins maps (spec.md §4.6
// "moves add to origins").
func (rs *RegisterSet) AddOrigin(dest, src int) {
	list, _ := rs.origins.Get(dest)
	rs.origins.Put(dest, append(list, src))

	inv, _ := rs.inverted.Get(src)
	rs.inverted.Put(src, append(inv, dest))
}

// Origins returns the registers currently known to hold the same value as
// r, oldest first.
func (rs *RegisterSet) Origins(r int) []int {
	list, _ := rs.origins.Get(r)
	return list
}

// EarliestLiveOrigin returns the oldest register in r's origin chain that
// is still tracked (i.e. has not itself been severed), or r itself if it
// has no recorded origins — the move-elimination rewrite target (spec.md
// §4.7 "rewrite to the earliest still-live equivalent").
func (rs *RegisterSet) EarliestLiveOrigin(r int) int {
	origins := rs.Origins(r)
	if len(origins) == 0 {
		return r
	}
	return origins[0]
}

// Sever disconnects r from every register's origin/inverted-origin chain,
// called on any write to r (spec.md §4.6 "writes sever both directions").
func (rs *RegisterSet) Sever(r int) {
	if deps, ok := rs.inverted.Get(r); ok {
		for _, dep := range deps {
			list, _ := rs.origins.Get(dep)
			rs.origins.Put(dep, removeValue(list, r))
		}
	}
	rs.inverted.Delete(r)
	rs.origins.Delete(r)
	rs.types.Delete(r)
	rs.constants.Delete(r)
}

func removeValue(list []int, v int) []int {
	out := list[:0]
	for _, x := range list {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}
