// Value serialization for the repository's comment tuples and any other
// Avail values the builder persists alongside a module version (spec.md
// §4.9, §8 scenario S2 "tuple round-trip"). Grounded on the teacher's
// bundle wire format (internal/vm/bundle.go): a fixed magic, then a tagged
// payload, big-endian throughout per spec.md §6 ("Big-endian binary...
// length-prefixed byte arrays").
package repository

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/availlang/avail/internal/types"
)

var valueMagic = [4]byte{'A', 'V', 'A', 'L'}

const valueFormatVersion = 1

// tag discriminates the on-disk value encoding. It is deliberately narrower
// than types.Kind: only the kinds the repository actually needs to persist
// (comment tuples, literal headers) get a wire tag, matching spec.md §1's
// scope note that full value marshaling for every kind is not required.
type tag byte

const (
	tagNil tag = iota
	tagInteger
	tagString
	tagCharacter
	tagAtom
	tagTuple
)

// MarshalValue encodes v as a self-describing byte sequence.
func MarshalValue(v types.Value) ([]byte, error) {
	buf := make([]byte, 0, 64)
	buf = append(buf, valueMagic[:]...)
	buf = append(buf, valueFormatVersion)
	var err error
	buf, err = appendValue(buf, v)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// UnmarshalValue decodes a byte sequence produced by MarshalValue.
func UnmarshalValue(data []byte) (types.Value, error) {
	if len(data) < 5 || [4]byte{data[0], data[1], data[2], data[3]} != valueMagic {
		return types.Value{}, fmt.Errorf("repository: value blob missing magic")
	}
	if data[4] != valueFormatVersion {
		return types.Value{}, fmt.Errorf("repository: value blob format version %d unsupported", data[4])
	}
	v, rest, err := readValue(data[5:])
	if err != nil {
		return types.Value{}, err
	}
	if len(rest) != 0 {
		return types.Value{}, fmt.Errorf("repository: %d trailing bytes after value", len(rest))
	}
	return v, nil
}

func appendValue(buf []byte, v types.Value) ([]byte, error) {
	switch v.Kind() {
	case types.KindNil:
		return append(buf, byte(tagNil)), nil
	case types.KindCharacter:
		buf = append(buf, byte(tagCharacter))
		return appendUint32(buf, uint32(v.AsRune())), nil
	case types.KindInteger:
		i, ok := v.AsObject().(*types.Integer)
		if !ok {
			return nil, fmt.Errorf("repository: integer value with non-Integer object")
		}
		buf = append(buf, byte(tagInteger))
		return appendBytes(buf, i.Value.Bytes(), i.Value.Sign() < 0), nil
	case types.KindString:
		s, ok := v.AsObject().(*types.String)
		if !ok {
			return nil, fmt.Errorf("repository: string value with non-String object")
		}
		buf = append(buf, byte(tagString))
		return appendBytes(buf, []byte(s.Value), false), nil
	case types.KindAtom:
		a, ok := v.AsObject().(*types.Atom)
		if !ok {
			return nil, fmt.Errorf("repository: atom value with non-Atom object")
		}
		buf = append(buf, byte(tagAtom))
		return appendBytes(buf, []byte(a.Name), false), nil
	case types.KindTuple:
		t, ok := v.AsObject().(*types.Tuple)
		if !ok {
			return nil, fmt.Errorf("repository: tuple value with non-Tuple object")
		}
		buf = append(buf, byte(tagTuple))
		buf = appendUint32(buf, uint32(len(t.Elements)))
		var err error
		for _, e := range t.Elements {
			buf, err = appendValue(buf, e)
			if err != nil {
				return nil, err
			}
		}
		return buf, nil
	default:
		return nil, fmt.Errorf("repository: %s values are not persistable", v.RuntimeType())
	}
}

func readValue(data []byte) (types.Value, []byte, error) {
	if len(data) == 0 {
		return types.Value{}, nil, fmt.Errorf("repository: truncated value blob")
	}
	switch tag(data[0]) {
	case tagNil:
		return types.NilValue(), data[1:], nil
	case tagCharacter:
		n, rest, err := readUint32(data[1:])
		if err != nil {
			return types.Value{}, nil, err
		}
		return types.CharValue(rune(n)), rest, nil
	case tagInteger:
		b, neg, rest, err := readBytes(data[1:])
		if err != nil {
			return types.Value{}, nil, err
		}
		n := new(big.Int).SetBytes(b)
		if neg {
			n.Neg(n)
		}
		return types.ObjectValue(&types.Integer{Value: n}), rest, nil
	case tagString:
		b, _, rest, err := readBytes(data[1:])
		if err != nil {
			return types.Value{}, nil, err
		}
		return types.ObjectValue(types.NewString(string(b))), rest, nil
	case tagAtom:
		b, _, rest, err := readBytes(data[1:])
		if err != nil {
			return types.Value{}, nil, err
		}
		return types.ObjectValue(types.InternAtom(string(b))), rest, nil
	case tagTuple:
		count, rest, err := readUint32(data[1:])
		if err != nil {
			return types.Value{}, nil, err
		}
		elems := make([]types.Value, count)
		for i := range elems {
			var elem types.Value
			elem, rest, err = readValue(rest)
			if err != nil {
				return types.Value{}, nil, err
			}
			elems[i] = elem
		}
		return types.ObjectValue(types.NewTuple(elems)), rest, nil
	default:
		return types.Value{}, nil, fmt.Errorf("repository: unknown value tag %d", data[0])
	}
}

func appendUint32(buf []byte, n uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], n)
	return append(buf, tmp[:]...)
}

func readUint32(data []byte) (uint32, []byte, error) {
	if len(data) < 4 {
		return 0, nil, fmt.Errorf("repository: truncated uint32")
	}
	return binary.BigEndian.Uint32(data[:4]), data[4:], nil
}

// appendBytes writes a length-prefixed byte array (spec.md §6 "Records:
// length-prefixed byte arrays"), with a leading sign byte used only by
// integer encoding.
func appendBytes(buf []byte, b []byte, negative bool) []byte {
	if negative {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = appendUint32(buf, uint32(len(b)))
	return append(buf, b...)
}

func readBytes(data []byte) ([]byte, bool, []byte, error) {
	if len(data) < 1 {
		return nil, false, nil, fmt.Errorf("repository: truncated byte array sign")
	}
	negative := data[0] == 1
	n, rest, err := readUint32(data[1:])
	if err != nil {
		return nil, false, nil, err
	}
	if uint32(len(rest)) < n {
		return nil, false, nil, fmt.Errorf("repository: truncated byte array payload")
	}
	return rest[:n], negative, rest[n:], nil
}
