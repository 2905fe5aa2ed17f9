package types

import "testing"

func sampleTypes() []Type {
	return []Type{
		Top,
		Bottom,
		Primitive(KindString),
		Primitive(KindCharacter),
		IntRange(1, 10),
		IntRange(5, 20),
		IntRange(-5, 0),
		TupleType{Leading: []Type{IntRange(0, 10)}, Default: Primitive(KindString), SizeMin: 1, SizeMax: 3},
		FunctionType{Params: []Type{IntRange(0, 10)}, Result: Primitive(KindString)},
		SetType{Element: IntRange(0, 10)},
	}
}

func TestReflexivity(t *testing.T) {
	for _, ty := range sampleTypes() {
		if !SubtypeOf(ty, ty) {
			t.Errorf("%s is not a subtype of itself", ty)
		}
	}
}

func TestTransitivity(t *testing.T) {
	a := IntRange(2, 4)
	b := IntRange(0, 10)
	c := IntRange(-100, 100)
	if !(SubtypeOf(a, b) && SubtypeOf(b, c) && SubtypeOf(a, c)) {
		t.Fatalf("transitivity failed for nested integer ranges")
	}
}

func TestAntisymmetry(t *testing.T) {
	a := IntRange(0, 10)
	b := IntRange(0, 10)
	if !(SubtypeOf(a, b) && SubtypeOf(b, a)) {
		t.Fatalf("equal ranges should be mutual subtypes")
	}
}

func TestUnionLaws(t *testing.T) {
	ts := sampleTypes()
	for _, a := range ts {
		for _, b := range ts {
			u1 := Union(a, b)
			u2 := Union(b, a)
			if !typeEqual(u1, u2) {
				t.Errorf("union not commutative: Union(%s,%s)=%s Union(%s,%s)=%s", a, b, u1, b, a, u2)
			}
		}
	}
	for _, a := range ts {
		if !typeEqual(Union(a, a), a) {
			t.Errorf("union not idempotent for %s: got %s", a, Union(a, a))
		}
	}
	a, b, c := IntRange(0, 5), IntRange(3, 8), IntRange(7, 20)
	left := Union(Union(a, b), c)
	right := Union(a, Union(b, c))
	if !typeEqual(left, right) {
		t.Fatalf("union not associative: %s vs %s", left, right)
	}
}

func TestIntersectionLaws(t *testing.T) {
	ts := sampleTypes()
	for _, a := range ts {
		for _, b := range ts {
			i1 := Intersection(a, b)
			i2 := Intersection(b, a)
			if !typeEqual(i1, i2) {
				t.Errorf("intersection not commutative: %s vs %s", i1, i2)
			}
		}
	}
	for _, a := range ts {
		if !typeEqual(Intersection(a, a), a) {
			t.Errorf("intersection not idempotent for %s: got %s", a, Intersection(a, a))
		}
	}
	a, b, c := IntRange(0, 20), IntRange(3, 15), IntRange(5, 30)
	left := Intersection(Intersection(a, b), c)
	right := Intersection(a, Intersection(b, c))
	if !typeEqual(left, right) {
		t.Fatalf("intersection not associative: %s vs %s", left, right)
	}
}

func TestFunctionVariance(t *testing.T) {
	narrow := FunctionType{Params: []Type{IntRange(0, 10)}, Result: IntRange(-10, 10)}
	wide := FunctionType{Params: []Type{IntRange(-100, 100)}, Result: IntRange(0, 5)}
	// A function accepting a wider parameter range and returning a
	// narrower-or-equal result range is a subtype of one that accepts a
	// narrower parameter and promises a wider result.
	if !SubtypeOf(wide, narrow) {
		t.Fatalf("expected contravariant-param/covariant-result subtype to hold")
	}
	if SubtypeOf(narrow, wide) {
		t.Fatalf("did not expect the reverse subtype to hold")
	}
}

func TestVariableInvariance(t *testing.T) {
	a := VariableType{Inner: IntRange(0, 10)}
	b := VariableType{Inner: IntRange(0, 20)}
	if SubtypeOf(a, b) || SubtypeOf(b, a) {
		t.Fatalf("variable types must be invariant in their element type")
	}
	c := VariableType{Inner: IntRange(0, 10)}
	if !SubtypeOf(a, c) || !SubtypeOf(c, a) {
		t.Fatalf("identical variable types should be mutual subtypes")
	}
}

func TestMetacovarianceAndMetainvariance(t *testing.T) {
	a := IntRange(0, 10)
	b := IntRange(0, 20)
	if !SubtypeOf(a, b) {
		t.Fatalf("setup: expected a subtype of b")
	}
	if !SubtypeOf(Meta(a), Meta(b)) {
		t.Fatalf("metacovariance failed: Meta(a) should be subtype of Meta(b)")
	}
	if !typeEqual(Union(Meta(a), Meta(b)), Meta(Union(a, b))) {
		t.Fatalf("metainvariance failed for union")
	}
	if !typeEqual(Intersection(Meta(a), Meta(b)), Meta(Intersection(a, b))) {
		t.Fatalf("metainvariance failed for intersection")
	}
}

func TestInstanceOf(t *testing.T) {
	v := ObjectValue(NewInteger(7))
	if !InstanceOf(v, IntRange(0, 10)) {
		t.Fatalf("expected 7 to be an instance of [0..10]")
	}
	if InstanceOf(v, IntRange(8, 10)) {
		t.Fatalf("did not expect 7 to be an instance of [8..10]")
	}
	tup := ObjectValue(NewTuple([]Value{v, v}))
	tt := TupleType{Leading: nil, Default: IntRange(0, 10), SizeMin: 2, SizeMax: 2}
	if !InstanceOf(tup, tt) {
		t.Fatalf("expected tuple <7,7> to match tuple type")
	}
}

func TestDisjointIntersectionIsBottom(t *testing.T) {
	r := Intersection(IntRange(0, 10), Primitive(KindString))
	if !isBottom(r) {
		t.Fatalf("expected integer ⊓ string to be Bottom, got %s", r)
	}
}
