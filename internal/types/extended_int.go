package types

import (
	"math/big"
)

// infSign distinguishes a finite extended integer from the two symbolic
// infinities spec.md §3 requires ("extended integer").
type infSign int8

const (
	finite infSign = 0
	negInf infSign = -1
	posInf infSign = 1
)

// ExtendedInt is an arbitrary-precision integer augmented with ±∞
// sentinels, used for integer range types and for the Integer value kind.
type ExtendedInt struct {
	sign infSign
	val  *big.Int // nil when sign != finite
}

// PositiveInfinity and NegativeInfinity are the two symbolic sentinels.
var (
	PositiveInfinity = ExtendedInt{sign: posInf}
	NegativeInfinity = ExtendedInt{sign: negInf}
)

// FromInt64 builds a finite extended integer from an int64.
func FromInt64(v int64) ExtendedInt {
	return ExtendedInt{sign: finite, val: big.NewInt(v)}
}

// FromBigInt builds a finite extended integer from a *big.Int (copied).
func FromBigInt(v *big.Int) ExtendedInt {
	return ExtendedInt{sign: finite, val: new(big.Int).Set(v)}
}

// IsFinite reports whether the value is not one of the ±∞ sentinels.
func (e ExtendedInt) IsFinite() bool { return e.sign == finite }

// BigInt returns the underlying arbitrary-precision value. Panics if
// called on an infinite sentinel; callers must check IsFinite first.
func (e ExtendedInt) BigInt() *big.Int {
	if e.sign != finite {
		panic("types: BigInt called on an infinite ExtendedInt")
	}
	return e.val
}

// Cmp returns -1, 0, or 1 as e is less than, equal to, or greater than o,
// with -∞ < every finite value < +∞.
func (e ExtendedInt) Cmp(o ExtendedInt) int {
	if e.sign != o.sign {
		// Differing signs: whichever has the "more negative" sign sorts
		// first, with finite treated as strictly between the infinities.
		rank := func(s infSign) int {
			switch s {
			case negInf:
				return -2
			case finite:
				return 0
			default:
				return 2
			}
		}
		re, ro := rank(e.sign), rank(o.sign)
		if re < ro {
			return -1
		}
		return 1
	}
	if e.sign != finite {
		return 0 // both +∞ or both -∞
	}
	return e.val.Cmp(o.val)
}

func (e ExtendedInt) Equal(o ExtendedInt) bool { return e.Cmp(o) == 0 }
func (e ExtendedInt) Less(o ExtendedInt) bool  { return e.Cmp(o) < 0 }

// Add returns e+o, saturating at ±∞ the way the runtime's range arithmetic
// does; ∞ + -∞ is treated as +∞ per the host's convention for unresolved
// range endpoints (deliberately conservative: see SPEC_FULL.md Open
// Questions decision #1 — the symbolic-infinity optimiser pass itself is
// deferred, so this saturation rule only has to be sound, not tight).
func (e ExtendedInt) Add(o ExtendedInt) ExtendedInt {
	if e.sign != finite || o.sign != finite {
		if e.sign != finite && o.sign != finite && e.sign != o.sign {
			return PositiveInfinity
		}
		if e.sign != finite {
			return e
		}
		return o
	}
	return ExtendedInt{sign: finite, val: new(big.Int).Add(e.val, o.val)}
}

func (e ExtendedInt) String() string {
	switch e.sign {
	case posInf:
		return "+inf"
	case negInf:
		return "-inf"
	default:
		return e.val.String()
	}
}
