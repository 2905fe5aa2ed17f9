package types

import (
	"sort"
	"strings"
)

// Type is implemented by every member of the subtype lattice (spec.md §3
// "Type"). Concrete shapes below correspond to the value kinds that carry
// type parameters: integer ranges, tuples, functions, variables, and pojos.
type Type interface {
	String() string
	category() string
}

// ---- Top / Bottom --------------------------------------------------------

type topType struct{}
type bottomType struct{}

// Top is the supertype of every type in the lattice.
var Top Type = topType{}

// Bottom is the subtype of every type in the lattice (the uninhabited type).
var Bottom Type = bottomType{}

func (topType) String() string    { return "⊤" }
func (topType) category() string  { return "top" }
func (bottomType) String() string { return "⊥" }
func (bottomType) category() string { return "bottom" }

func isTop(t Type) bool    { _, ok := t.(topType); return ok }
func isBottom(t Type) bool { _, ok := t.(bottomType); return ok }

// ---- Primitive (unparametrized) kinds -------------------------------------

// primType describes a value kind with no internal type parameters:
// string, character, atom, phrase, token, nil.
type primType struct{ kind Kind }

func Primitive(k Kind) Type            { return primType{kind: k} }
func (p primType) String() string      { return p.kind.String() }
func (primType) category() string      { return "prim" }

// ---- Integer range ---------------------------------------------------------

// IntegerRangeType is the Integer value kind parametrized by an inclusive
// [Min, Max] extended-integer range (spec.md §3 notes integers support ±∞
// sentinels via "extended integer").
type IntegerRangeType struct {
	Min, Max ExtendedInt
}

// Integers is the unrestricted integer range, (-∞, +∞).
var Integers Type = IntegerRangeType{Min: NegativeInfinity, Max: PositiveInfinity}

// IntRange builds a finite closed integer range type.
func IntRange(min, max int64) IntegerRangeType {
	return IntegerRangeType{Min: FromInt64(min), Max: FromInt64(max)}
}

func (r IntegerRangeType) String() string {
	return "[" + r.Min.String() + ".." + r.Max.String() + "]"
}
func (IntegerRangeType) category() string { return "integer" }

func (r IntegerRangeType) isEmpty() bool { return r.Min.Cmp(r.Max) > 0 }

// ---- Tuple ------------------------------------------------------------------

// TupleType is parameterised by a leading fixed sequence, a default type for
// any entries beyond the leading sequence, and an inclusive element-count
// range (spec.md §3 "tuple types are parameterised by a leading fixed
// sequence, a default trailing type, and a size range").
type TupleType struct {
	Leading        []Type
	Default        Type
	SizeMin        int
	SizeMax        int // -1 means unbounded
}

func (t TupleType) String() string {
	parts := make([]string, 0, len(t.Leading)+2)
	for _, e := range t.Leading {
		parts = append(parts, e.String())
	}
	parts = append(parts, t.Default.String()+"...")
	sizeMax := "inf"
	if t.SizeMax >= 0 {
		sizeMax = itoa(t.SizeMax)
	}
	return "<" + strings.Join(parts, ", ") + ">{" + itoa(t.SizeMin) + ".." + sizeMax + "}"
}
func (TupleType) category() string { return "tuple" }

func (t TupleType) entryTypeAt(i int) Type {
	if i < len(t.Leading) {
		return t.Leading[i]
	}
	return t.Default
}

// ---- Function ---------------------------------------------------------------

// FunctionType has contravariant parameter types and a covariant return type
// (spec.md §8 law 6).
type FunctionType struct {
	Params []Type
	Result Type
}

func (f FunctionType) String() string {
	parts := make([]string, len(f.Params))
	for i, p := range f.Params {
		parts[i] = p.String()
	}
	return "(" + strings.Join(parts, ", ") + ")->" + f.Result.String()
}
func (FunctionType) category() string { return "function" }

// ---- Variable ----------------------------------------------------------------

// VariableType is invariant in its element type: both a read and a write of
// a variable of this type must agree exactly (spec.md §8 law 6).
type VariableType struct{ Inner Type }

func (v VariableType) String() string  { return "↑" + v.Inner.String() }
func (VariableType) category() string  { return "variable" }

// ---- Pojo (foreign host object) -----------------------------------------------

// PojoType names a foreign host class, with an optional covariant single
// type parameter and a declared super-class chain (most-derived first,
// excluding the type itself) used to model host inheritance.
type PojoType struct {
	ClassName string
	Supers    []string
	Param     Type // nil if unparametrized
}

func (p PojoType) String() string {
	if p.Param == nil {
		return "pojo:" + p.ClassName
	}
	return "pojo:" + p.ClassName + "<" + p.Param.String() + ">"
}
func (PojoType) category() string { return "pojo" }

func (p PojoType) isOrExtends(name string) bool {
	if p.ClassName == name {
		return true
	}
	for _, s := range p.Supers {
		if s == name {
			return true
		}
	}
	return false
}

// ---- Set / Map (covariant containers) -----------------------------------------

type SetType struct{ Element Type }

func (s SetType) String() string { return "{" + s.Element.String() + "}" }
func (SetType) category() string { return "set" }

type MapType struct{ Key, Value Type }

func (m MapType) String() string { return "{" + m.Key.String() + "->" + m.Value.String() + "}" }
func (MapType) category() string { return "map" }

// ---- helpers ----------------------------------------------------------------

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var b []byte
	for n > 0 {
		b = append([]byte{byte('0' + n%10)}, b...)
		n /= 10
	}
	if neg {
		b = append([]byte{'-'}, b...)
	}
	return string(b)
}

func sortedStrings(ss []string) []string {
	out := append([]string(nil), ss...)
	sort.Strings(out)
	return out
}
