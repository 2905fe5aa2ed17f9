// Package types implements the Avail value and type model (spec.md §3,
// §4.1 / component C1): a tagged immutable value sum and a subtype lattice
// closed under union and intersection.
//
// The struct layout of Value mirrors the teacher's stack-allocated tagged
// union (_examples/funvibe-funxy/internal/vm/value.go): a small discriminant
// plus an inline 64-bit payload for the scalar kinds, falling back to a
// heap object pointer for everything else.
package types

// Kind identifies the runtime discriminant of a Value (spec.md §3 "Value").
type Kind uint8

const (
	KindNil Kind = iota
	KindInteger
	KindTuple
	KindSet
	KindMap
	KindString
	KindCharacter
	KindAtom
	KindFunction
	KindContinuation
	KindFiber
	KindVariable
	KindRawFunction
	KindType
	KindPhrase
	KindToken
	KindPojo
)

var kindNames = map[Kind]string{
	KindNil:          "nil",
	KindInteger:      "integer",
	KindTuple:        "tuple",
	KindSet:          "set",
	KindMap:          "map",
	KindString:       "string",
	KindCharacter:    "character",
	KindAtom:         "atom",
	KindFunction:     "function",
	KindContinuation: "continuation",
	KindFiber:        "fiber",
	KindVariable:     "variable",
	KindRawFunction:  "raw-function",
	KindType:         "type",
	KindPhrase:       "phrase",
	KindToken:        "token",
	KindPojo:         "pojo",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown-kind"
}
