package types

import (
	"fmt"
	"math/big"
	"sort"
	"strings"
)

// Object is the interface every heap-allocated value payload implements, in
// the spirit of the teacher's evaluator.Object (_examples/funvibe-funxy
// internal/evaluator/object.go): a small capability set shared by every
// variant of the discriminated value sum (spec.md §3 "Value").
type Object interface {
	Kind() Kind
	Equals(other Object) bool
	Hash() uint32
	RuntimeType() Type
	String() string
	// Immutable returns a (possibly shared) immutable view of the receiver.
	// Scalars are already immutable and return themselves.
	Immutable() Object
}

// Value is a stack-allocated tagged union mirroring the teacher's Value
// struct (internal/vm/value.go): small scalars are stored inline, anything
// larger is boxed behind Object.
type Value struct {
	kind Kind
	i64  int64 // used when kind == KindCharacter (rune) for the inline case
	obj  Object
}

func NilValue() Value                  { return Value{kind: KindNil} }
func CharValue(r rune) Value           { return Value{kind: KindCharacter, i64: int64(r)} }
func ObjectValue(o Object) Value       { return Value{kind: o.Kind(), obj: o} }

func (v Value) Kind() Kind { return v.kind }

func (v Value) AsRune() rune {
	if v.kind != KindCharacter {
		panic("types: AsRune on non-character value")
	}
	return rune(v.i64)
}

func (v Value) AsObject() Object { return v.obj }

func (v Value) RuntimeType() Type {
	switch v.kind {
	case KindNil:
		return Primitive(KindNil)
	case KindCharacter:
		return Primitive(KindCharacter)
	default:
		if v.obj != nil {
			return v.obj.RuntimeType()
		}
		return Bottom
	}
}

func (v Value) Equals(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNil:
		return true
	case KindCharacter:
		return v.i64 == o.i64
	default:
		if v.obj == nil || o.obj == nil {
			return v.obj == o.obj
		}
		return v.obj.Equals(o.obj)
	}
}

func (v Value) Hash() uint32 {
	switch v.kind {
	case KindNil:
		return 0
	case KindCharacter:
		return uint32(v.i64) * 2654435761
	default:
		if v.obj == nil {
			return 0
		}
		return v.obj.Hash()
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindNil:
		return "nil"
	case KindCharacter:
		return string(rune(v.i64))
	default:
		if v.obj == nil {
			return "<nil-object>"
		}
		return v.obj.String()
	}
}

// Immutable returns an immutable view of v. Scalars are already immutable;
// object-backed values delegate to the object.
func (v Value) Immutable() Value {
	if v.obj == nil {
		return v
	}
	return ObjectValue(v.obj.Immutable())
}

// InstanceOf implements instanceOf(value, type) (spec.md §4.1): total,
// never fails.
func InstanceOf(v Value, t Type) bool {
	return SubtypeOf(v.RuntimeType(), t)
}

// ---- Integer ----------------------------------------------------------------

type Integer struct{ Value *big.Int }

func NewInteger(v int64) *Integer      { return &Integer{Value: big.NewInt(v)} }
func (i *Integer) Kind() Kind          { return KindInteger }
func (i *Integer) String() string      { return i.Value.String() }
func (i *Integer) Hash() uint32        { return uint32(i.Value.Int64()) * 2246822519 }
func (i *Integer) Immutable() Object   { return i }
func (i *Integer) Equals(o Object) bool {
	oi, ok := o.(*Integer)
	return ok && i.Value.Cmp(oi.Value) == 0
}
func (i *Integer) RuntimeType() Type {
	return IntegerRangeType{Min: FromBigInt(i.Value), Max: FromBigInt(i.Value)}
}

// ---- String / Atom ------------------------------------------------------------

type String struct{ Value string }

func NewString(s string) *String       { return &String{Value: s} }
func (s *String) Kind() Kind           { return KindString }
func (s *String) String() string       { return s.Value }
func (s *String) Hash() uint32         { return hashString(s.Value) }
func (s *String) Immutable() Object    { return s }
func (s *String) Equals(o Object) bool { os, ok := o.(*String); return ok && os.Value == s.Value }
func (s *String) RuntimeType() Type    { return Primitive(KindString) }

// Atom is an interned, globally unique identity used for method/trait names
// and enum-like constants (spec.md glossary "contingent atom").
type Atom struct{ Name string }

var atomTable = map[string]*Atom{}

// InternAtom returns the unique Atom for name, creating it on first use.
func InternAtom(name string) *Atom {
	if a, ok := atomTable[name]; ok {
		return a
	}
	a := &Atom{Name: name}
	atomTable[name] = a
	return a
}

func (a *Atom) Kind() Kind           { return KindAtom }
func (a *Atom) String() string       { return "$" + a.Name }
func (a *Atom) Hash() uint32         { return hashString(a.Name) }
func (a *Atom) Immutable() Object    { return a }
func (a *Atom) Equals(o Object) bool { return o == Object(a) } // identity: atoms are interned
func (a *Atom) RuntimeType() Type    { return Primitive(KindAtom) }

func hashString(s string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}

// ---- Tuple ---------------------------------------------------------------------

// Tuple is 1-indexed per spec.md §3 ("Tuples index from 1").
type Tuple struct{ Elements []Value }

func NewTuple(elements []Value) *Tuple { return &Tuple{Elements: elements} }
func (t *Tuple) Kind() Kind            { return KindTuple }
func (t *Tuple) Len() int              { return len(t.Elements) }

// At returns the 1-indexed element. Panics on out-of-range index, matching
// the teacher's tuple accessor contract (bounds are checked by the caller
// via a primitive's fallibility analysis, not here).
func (t *Tuple) At(oneBasedIndex int) Value { return t.Elements[oneBasedIndex-1] }

func (t *Tuple) String() string {
	parts := make([]string, len(t.Elements))
	for i, e := range t.Elements {
		parts[i] = e.String()
	}
	return "<" + strings.Join(parts, ", ") + ">"
}
func (t *Tuple) Hash() uint32 {
	h := uint32(2166136261)
	for _, e := range t.Elements {
		h = (h ^ e.Hash()) * 16777619
	}
	return h
}
func (t *Tuple) Immutable() Object { return t }
func (t *Tuple) Equals(o Object) bool {
	ot, ok := o.(*Tuple)
	if !ok || len(ot.Elements) != len(t.Elements) {
		return false
	}
	for i := range t.Elements {
		if !t.Elements[i].Equals(ot.Elements[i]) {
			return false
		}
	}
	return true
}
func (t *Tuple) RuntimeType() Type {
	leading := make([]Type, len(t.Elements))
	for i, e := range t.Elements {
		leading[i] = e.RuntimeType()
	}
	return TupleType{Leading: leading, Default: Bottom, SizeMin: len(t.Elements), SizeMax: len(t.Elements)}
}

// ---- Set / Map ------------------------------------------------------------------

// Set is an immutable collection of unique values, kept sorted by string
// form for deterministic iteration and hashing.
type Set struct{ elements []Value }

func NewSet(elements []Value) *Set {
	seen := map[string]bool{}
	out := make([]Value, 0, len(elements))
	for _, e := range elements {
		key := fmt.Sprintf("%d:%s", e.Hash(), e.String())
		if !seen[key] {
			seen[key] = true
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return &Set{elements: out}
}
func (s *Set) Kind() Kind       { return KindSet }
func (s *Set) Len() int         { return len(s.elements) }
func (s *Set) Contains(v Value) bool {
	for _, e := range s.elements {
		if e.Equals(v) {
			return true
		}
	}
	return false
}
func (s *Set) String() string {
	parts := make([]string, len(s.elements))
	for i, e := range s.elements {
		parts[i] = e.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
func (s *Set) Hash() uint32 {
	h := uint32(2166136261)
	for _, e := range s.elements {
		h ^= e.Hash()
	}
	return h
}
func (s *Set) Immutable() Object { return s }
func (s *Set) Equals(o Object) bool {
	os, ok := o.(*Set)
	if !ok || len(os.elements) != len(s.elements) {
		return false
	}
	for _, e := range s.elements {
		if !os.Contains(e) {
			return false
		}
	}
	return true
}
func (s *Set) RuntimeType() Type {
	elem := Type(Bottom)
	for _, e := range s.elements {
		elem = Union(elem, e.RuntimeType())
	}
	return SetType{Element: elem}
}

// Map is an immutable association from Value to Value.
type Map struct {
	keys   []Value
	values []Value
}

func NewMap(keys, values []Value) *Map {
	return &Map{keys: append([]Value(nil), keys...), values: append([]Value(nil), values...)}
}
func (m *Map) Kind() Kind { return KindMap }
func (m *Map) Len() int   { return len(m.keys) }
func (m *Map) Get(k Value) (Value, bool) {
	for i, key := range m.keys {
		if key.Equals(k) {
			return m.values[i], true
		}
	}
	return Value{}, false
}
func (m *Map) String() string {
	parts := make([]string, len(m.keys))
	for i := range m.keys {
		parts[i] = m.keys[i].String() + "->" + m.values[i].String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
func (m *Map) Hash() uint32 {
	h := uint32(2166136261)
	for i := range m.keys {
		h ^= m.keys[i].Hash() * 31 + m.values[i].Hash()
	}
	return h
}
func (m *Map) Immutable() Object { return m }
func (m *Map) Equals(o Object) bool {
	om, ok := o.(*Map)
	if !ok || om.Len() != m.Len() {
		return false
	}
	for i, k := range m.keys {
		v2, ok := om.Get(k)
		if !ok || !v2.Equals(m.values[i]) {
			return false
		}
	}
	return true
}
func (m *Map) RuntimeType() Type {
	keyT, valT := Type(Bottom), Type(Bottom)
	for i := range m.keys {
		keyT = Union(keyT, m.keys[i].RuntimeType())
		valT = Union(valT, m.values[i].RuntimeType())
	}
	return MapType{Key: keyT, Value: valT}
}
