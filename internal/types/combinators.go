package types

import "strings"

// UnionType and IntersectionType hold an already-normalized (flattened,
// deduplicated-by-structure) list of member types with more than one
// element; a single-element union/intersection is always simplified away
// to that element by Union/Intersection below, which keeps structural
// equality (via String()) agreeing with semantic equality for the
// idempotence law in spec.md §8.
type UnionType struct{ Members []Type }
type IntersectionType struct{ Members []Type }

func (u UnionType) String() string {
	parts := make([]string, len(u.Members))
	for i, m := range u.Members {
		parts[i] = m.String()
	}
	return "(" + strings.Join(parts, " | ") + ")"
}
func (UnionType) category() string { return "union" }

func (i IntersectionType) String() string {
	parts := make([]string, len(i.Members))
	for j, m := range i.Members {
		parts[j] = m.String()
	}
	return "(" + strings.Join(parts, " & ") + ")"
}
func (IntersectionType) category() string { return "intersection" }

// MetaType represents "the type of" another type — T(x) in spec.md §3/§8.
// Metatypes are covariant, and both ⊔ and ⊓ are metainvariant.
type MetaType struct{ Instance Type }

func (m MetaType) String() string { return "Meta(" + m.Instance.String() + ")" }
func (MetaType) category() string { return "meta" }

// Meta returns the metatype of t.
func Meta(t Type) Type { return MetaType{Instance: t} }

// SubtypeOf implements ⊑ (spec.md §4.1 subtypeOf). It is reflexive,
// transitive, and antisymmetric (spec.md §8 laws 1–3).
func SubtypeOf(a, b Type) bool {
	if isBottom(a) {
		return true
	}
	if isTop(b) {
		return true
	}
	if isTop(a) {
		return isTop(b)
	}
	if isBottom(b) {
		return false // a is not bottom here (handled above)
	}

	if au, ok := a.(UnionType); ok {
		for _, m := range au.Members {
			if !SubtypeOf(m, b) {
				return false
			}
		}
		return true
	}
	if bi, ok := b.(IntersectionType); ok {
		for _, m := range bi.Members {
			if !SubtypeOf(a, m) {
				return false
			}
		}
		return true
	}
	if bu, ok := b.(UnionType); ok {
		for _, m := range bu.Members {
			if SubtypeOf(a, m) {
				return true
			}
		}
		return false
	}
	if ai, ok := a.(IntersectionType); ok {
		for _, m := range ai.Members {
			if SubtypeOf(m, b) {
				return true
			}
		}
		return false
	}

	if am, ok := a.(MetaType); ok {
		bm, ok2 := b.(MetaType)
		return ok2 && SubtypeOf(am.Instance, bm.Instance)
	}
	if _, ok := b.(MetaType); ok {
		return false
	}

	if a.category() != b.category() {
		return false
	}

	switch at := a.(type) {
	case primType:
		return at.kind == b.(primType).kind
	case IntegerRangeType:
		bt := b.(IntegerRangeType)
		if at.isEmpty() {
			return true
		}
		return bt.Min.Cmp(at.Min) <= 0 && at.Max.Cmp(bt.Max) <= 0
	case TupleType:
		bt := b.(TupleType)
		if at.SizeMin < bt.SizeMin {
			return false
		}
		if bt.SizeMax >= 0 && (at.SizeMax < 0 || at.SizeMax > bt.SizeMax) {
			return false
		}
		n := len(at.Leading)
		if len(bt.Leading) > n {
			n = len(bt.Leading)
		}
		for i := 0; i < n; i++ {
			if !SubtypeOf(at.entryTypeAt(i), bt.entryTypeAt(i)) {
				return false
			}
		}
		return SubtypeOf(at.Default, bt.Default)
	case FunctionType:
		bt := b.(FunctionType)
		if len(at.Params) != len(bt.Params) {
			return false
		}
		for i := range at.Params {
			if !SubtypeOf(bt.Params[i], at.Params[i]) { // contravariant
				return false
			}
		}
		return SubtypeOf(at.Result, bt.Result) // covariant
	case VariableType:
		bt := b.(VariableType)
		return typeEqual(at.Inner, bt.Inner) // invariant
	case PojoType:
		bt := b.(PojoType)
		if !at.isOrExtends(bt.ClassName) {
			return false
		}
		if at.Param == nil || bt.Param == nil {
			return at.Param == nil && bt.Param == nil
		}
		return SubtypeOf(at.Param, bt.Param) // covariant
	case SetType:
		return SubtypeOf(at.Element, b.(SetType).Element)
	case MapType:
		bt := b.(MapType)
		return SubtypeOf(at.Key, bt.Key) && SubtypeOf(at.Value, bt.Value)
	default:
		return false
	}
}

func typeEqual(a, b Type) bool {
	return SubtypeOf(a, b) && SubtypeOf(b, a)
}

// flattenUnion collects the atoms of t into a union, recursing through
// nested UnionTypes so Union(Union(a,b),c) normalizes the same as
// Union(a,Union(b,c)) (associativity, spec.md §8 law 4).
func flattenUnion(t Type, out []Type) []Type {
	if u, ok := t.(UnionType); ok {
		for _, m := range u.Members {
			out = flattenUnion(m, out)
		}
		return out
	}
	return append(out, t)
}

func flattenIntersection(t Type, out []Type) []Type {
	if i, ok := t.(IntersectionType); ok {
		for _, m := range i.Members {
			out = flattenIntersection(m, out)
		}
		return out
	}
	return append(out, t)
}

// mergeIntegerRanges coalesces every IntegerRangeType atom in atoms into a
// single enclosing range, producing the union. Keeping the merge operation
// to plain Min/Max selection is what makes Union commutative, associative,
// and idempotent over integer ranges for free.
func mergeIntegerRanges(atoms []Type, union bool) []Type {
	var ranges []IntegerRangeType
	rest := atoms[:0:0]
	for _, a := range atoms {
		if r, ok := a.(IntegerRangeType); ok {
			ranges = append(ranges, r)
		} else {
			rest = append(rest, a)
		}
	}
	if len(ranges) == 0 {
		return atoms
	}
	merged := ranges[0]
	ok := true
	for _, r := range ranges[1:] {
		if union {
			if merged.Min.Cmp(r.Min) > 0 {
				merged.Min = r.Min
			}
			if merged.Max.Cmp(r.Max) < 0 {
				merged.Max = r.Max
			}
		} else {
			if merged.Min.Cmp(r.Min) < 0 {
				merged.Min = r.Min
			}
			if merged.Max.Cmp(r.Max) > 0 {
				merged.Max = r.Max
			}
		}
	}
	if !union && merged.isEmpty() {
		ok = false
	}
	if !ok {
		return append(rest, Bottom)
	}
	return append(rest, merged)
}

// Union implements ⊔ (spec.md §4.1 typeUnion): commutative, associative,
// idempotent (spec.md §8 law 4).
func Union(a, b Type) Type {
	if am, ok := a.(MetaType); ok {
		if bm, ok2 := b.(MetaType); ok2 {
			return Meta(Union(am.Instance, bm.Instance)) // metainvariance
		}
	}
	if isTop(a) || isTop(b) {
		return Top
	}
	if isBottom(a) {
		return b
	}
	if isBottom(b) {
		return a
	}

	atoms := flattenUnion(a, nil)
	atoms = flattenUnion(b, atoms)
	atoms = mergeIntegerRanges(atoms, true)

	// Drop atoms that are subtypes of another atom already kept (keep the
	// maximal elements only) and deduplicate structurally-equal atoms.
	kept := make([]Type, 0, len(atoms))
	for _, candidate := range atoms {
		redundant := false
		for i := 0; i < len(kept); i++ {
			if typeEqual(candidate, kept[i]) {
				redundant = true
				break
			}
			if SubtypeOf(candidate, kept[i]) {
				redundant = true
				break
			}
			if SubtypeOf(kept[i], candidate) {
				kept[i] = candidate
				redundant = true
				break
			}
		}
		if !redundant {
			kept = append(kept, candidate)
		}
	}

	if len(kept) == 1 {
		return kept[0]
	}
	sortTypesByString(kept)
	return UnionType{Members: kept}
}

// Intersection implements ⊓ (spec.md §4.1 typeIntersection): commutative,
// associative, idempotent (spec.md §8 law 5).
func Intersection(a, b Type) Type {
	if am, ok := a.(MetaType); ok {
		if bm, ok2 := b.(MetaType); ok2 {
			return Meta(Intersection(am.Instance, bm.Instance)) // metainvariance
		}
	}
	if isBottom(a) || isBottom(b) {
		return Bottom
	}
	if isTop(a) {
		return b
	}
	if isTop(b) {
		return a
	}

	atoms := flattenIntersection(a, nil)
	atoms = flattenIntersection(b, atoms)
	atoms = mergeIntegerRanges(atoms, false)

	kept := make([]Type, 0, len(atoms))
	for _, candidate := range atoms {
		if isBottom(candidate) {
			return Bottom
		}
		redundant := false
		for i := 0; i < len(kept); i++ {
			if typeEqual(candidate, kept[i]) {
				redundant = true
				break
			}
			if SubtypeOf(kept[i], candidate) {
				redundant = true // kept[i] already implies candidate
				break
			}
			if SubtypeOf(candidate, kept[i]) {
				kept[i] = candidate
				redundant = true
				break
			}
		}
		// Two fully structural atoms of different, mutually exclusive
		// categories describe no common value (e.g. tuple ⊓ integer):
		// the meet is Bottom.
		if !redundant {
			for _, k := range kept {
				if k.category() != candidate.category() && !bothParametric(k, candidate) {
					return Bottom
				}
			}
			kept = append(kept, candidate)
		}
	}

	if len(kept) == 0 {
		return Top
	}
	if len(kept) == 1 {
		return kept[0]
	}
	sortTypesByString(kept)
	return IntersectionType{Members: kept}
}

// bothParametric reports whether a and b are container-ish categories that
// can legitimately coexist in a normalized intersection list without
// collapsing to Bottom (reserved for future shape pairs; none of the
// current concrete shapes are compatible across categories).
func bothParametric(a, b Type) bool { return false }

func sortTypesByString(ts []Type) {
	for i := 1; i < len(ts); i++ {
		for j := i; j > 0 && ts[j-1].String() > ts[j].String(); j-- {
			ts[j-1], ts[j] = ts[j], ts[j-1]
		}
	}
}
