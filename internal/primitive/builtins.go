package primitive

import (
	"math"
	"math/big"

	"github.com/availlang/avail/internal/types"
)

// Primitive numbers for the small, illustrative catalogue this module
// ships. spec.md §1 explicitly places "the full primitive catalogue" out
// of scope — only the framework by which primitives plug in is covered —
// so this file exists to give the L1 interpreter, the L2 translator's
// inlining/folding passes, and the dispatcher something concrete to
// exercise (spec.md §8 scenario S1).
const (
	NumIntegerAdd      = 1
	NumIntegerSubtract = 2
	NumIntegerMultiply = 3
	NumIntegerDivide   = 4
	NumTupleAt         = 5
	NumTupleSize       = 6
	NumFiberYield      = 7
)

func intOf(v types.Value) (*big.Int, bool) {
	i, ok := v.AsObject().(*types.Integer)
	if !ok {
		return nil, false
	}
	return i.Value, true
}

// NewCoreRegistry builds a Registry pre-populated with the illustrative
// integer-arithmetic and tuple-access primitives.
func NewCoreRegistry() *Registry {
	r := NewRegistry(nil)

	mustRegister(r, &Primitive{
		Number:      NumIntegerAdd,
		Name:        "IntegerAdd",
		ArgCount:    2,
		ArgTypes:    []types.Type{types.Integers, types.Integers},
		ReturnType:  types.Integers,
		FailureType: types.Bottom,
		Flags:       CanFold | CanInline | CannotFail,
		FallibilityForArgumentTypes: func(argTypes []types.Type) Fallibility {
			return CannotFailFor
		},
		Attempt: func(ctx Context, args []types.Value, skip bool) (Outcome, types.Value, error) {
			a, _ := intOf(args[0])
			b, _ := intOf(args[1])
			sum := new(big.Int).Add(a, b)
			return Success, types.ObjectValue(&types.Integer{Value: sum}), nil
		},
	})

	mustRegister(r, &Primitive{
		Number:      NumIntegerSubtract,
		Name:        "IntegerSubtract",
		ArgCount:    2,
		ArgTypes:    []types.Type{types.Integers, types.Integers},
		ReturnType:  types.Integers,
		FailureType: types.Bottom,
		Flags:       CanFold | CanInline | CannotFail,
		FallibilityForArgumentTypes: func(argTypes []types.Type) Fallibility {
			return CannotFailFor
		},
		Attempt: func(ctx Context, args []types.Value, skip bool) (Outcome, types.Value, error) {
			a, _ := intOf(args[0])
			b, _ := intOf(args[1])
			diff := new(big.Int).Sub(a, b)
			return Success, types.ObjectValue(&types.Integer{Value: diff}), nil
		},
	})

	mustRegister(r, &Primitive{
		Number:      NumIntegerMultiply,
		Name:        "IntegerMultiply",
		ArgCount:    2,
		ArgTypes:    []types.Type{types.Integers, types.Integers},
		ReturnType:  types.Integers,
		FailureType: types.Bottom,
		Flags:       CanFold | CanInline | CannotFail,
		FallibilityForArgumentTypes: func(argTypes []types.Type) Fallibility {
			return CannotFailFor
		},
		Attempt: func(ctx Context, args []types.Value, skip bool) (Outcome, types.Value, error) {
			a, _ := intOf(args[0])
			b, _ := intOf(args[1])
			prod := new(big.Int).Mul(a, b)
			return Success, types.ObjectValue(&types.Integer{Value: prod}), nil
		},
	})

	mustRegister(r, &Primitive{
		Number:      NumIntegerDivide,
		Name:        "IntegerDivide",
		ArgCount:    2,
		ArgTypes:    []types.Type{types.Integers, types.Integers},
		ReturnType:  types.Integers,
		FailureType: types.Primitive(types.KindAtom),
		Flags:       CanInline, // not CanFold: may fail, and folding a failing call has no constant result
		FallibilityForArgumentTypes: func(argTypes []types.Type) Fallibility {
			return CanFail
		},
		Attempt: func(ctx Context, args []types.Value, skip bool) (Outcome, types.Value, error) {
			a, _ := intOf(args[0])
			b, _ := intOf(args[1])
			if b.Sign() == 0 {
				return Failure, types.ObjectValue(types.InternAtom("zero-divisor")), nil
			}
			// divide-int-by-int models a fixed-width machine-word divide
			// instruction, not Integer's own arbitrary-precision Value: the
			// most negative 64-bit word divided by -1 overflows that word
			// even though the mathematical quotient (2^63) fits comfortably
			// in a big.Int, so the out-of-range branch fires here exactly as
			// it would on real two's-complement hardware (spec.md §8
			// scenario S3's third case).
			if a.IsInt64() && b.IsInt64() && a.Int64() == math.MinInt64 && b.Int64() == -1 {
				return Failure, types.ObjectValue(types.InternAtom("out-of-range")), nil
			}
			q, _ := floorDivMod(a, b)
			return Success, types.ObjectValue(&types.Integer{Value: q}), nil
		},
	})

	mustRegister(r, &Primitive{
		Number:      NumTupleAt,
		Name:        "TupleAt",
		ArgCount:    2,
		ArgTypes:    []types.Type{types.TupleType{Default: types.Top, SizeMin: 0, SizeMax: -1}, types.Integers},
		ReturnType:  types.Top,
		FailureType: types.Primitive(types.KindAtom),
		Flags:       CanInline,
		FallibilityForArgumentTypes: func(argTypes []types.Type) Fallibility {
			return CanFail
		},
		Attempt: func(ctx Context, args []types.Value, skip bool) (Outcome, types.Value, error) {
			tup, ok := args[0].AsObject().(*types.Tuple)
			if !ok {
				return Failure, types.ObjectValue(types.InternAtom("not-a-tuple")), nil
			}
			idx, _ := intOf(args[1])
			i := int(idx.Int64())
			if i < 1 || i > tup.Len() {
				return Failure, types.ObjectValue(types.InternAtom("subscript-out-of-bounds")), nil
			}
			return Success, tup.At(i), nil
		},
	})

	mustRegister(r, &Primitive{
		Number:      NumFiberYield,
		Name:        "FiberYield",
		ArgCount:    0,
		ArgTypes:    nil,
		ReturnType:  types.Top,
		FailureType: types.Bottom,
		Flags:       SwitchesContinuation,
		FallibilityForArgumentTypes: func(argTypes []types.Type) Fallibility {
			return CannotFailFor
		},
		// FiberYield parks the current fiber (spec.md §5 "Suspension") and
		// hands back whatever value eventually resumes it, exercising the
		// FiberSuspended outcome spec.md §8 scenario S5 describes: the
		// fiber's top-of-stack after ResumeWith(v) is v itself.
		Attempt: func(ctx Context, args []types.Value, skip bool) (Outcome, types.Value, error) {
			v := ctx.Suspend("fiber-yield")
			return FiberSuspended, v, nil
		},
	})

	mustRegister(r, &Primitive{
		Number:      NumTupleSize,
		Name:        "TupleSize",
		ArgCount:    1,
		ArgTypes:    []types.Type{types.TupleType{Default: types.Top, SizeMin: 0, SizeMax: -1}},
		ReturnType:  types.Integers,
		FailureType: types.Bottom,
		Flags:       CanFold | CanInline | CannotFail,
		FallibilityForArgumentTypes: func(argTypes []types.Type) Fallibility {
			return CannotFailFor
		},
		Attempt: func(ctx Context, args []types.Value, skip bool) (Outcome, types.Value, error) {
			tup := args[0].AsObject().(*types.Tuple)
			return Success, types.ObjectValue(types.NewInteger(int64(tup.Len()))), nil
		},
	})

	return r
}

func mustRegister(r *Registry, p *Primitive) {
	if err := r.Register(p); err != nil {
		panic(err)
	}
}

// floorDivMod implements the floor-division convention spec.md §4.5 and §8
// scenario S3 require: quotient rounds toward -∞. The remainder takes the
// divisor's sign, so it is non-negative for a positive divisor.
func floorDivMod(a, b *big.Int) (q, rem *big.Int) {
	q, rem = new(big.Int), new(big.Int)
	q.QuoRem(a, b, rem)
	if rem.Sign() != 0 && (rem.Sign() < 0) != (b.Sign() < 0) {
		q.Sub(q, big.NewInt(1))
		rem.Add(rem, b)
	}
	return q, rem
}
