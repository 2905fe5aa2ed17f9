package avail_test

import (
	"path/filepath"
	"testing"

	"github.com/availlang/avail/internal/l1"
	"github.com/availlang/avail/internal/nybble"
	"github.com/availlang/avail/internal/primitive"
	"github.com/availlang/avail/internal/types"
	"github.com/availlang/avail/pkg/avail"
)

func intLit(n int64) types.Value { return types.ObjectValue(types.NewInteger(n)) }
func typeLit(t types.Type) types.Value { return types.ObjectValue(&types.TypeObject{T: t}) }

// buildAddFunction assembles `f() = 2 + 3`, calling the engine's built-in
// "+" the way a compiled module's entry point would.
func buildAddFunction(t *testing.T) *l1.RawFunction {
	t.Helper()
	chunk := l1.NewChunk(0, 0, 2)
	w := nybble.NewWriter()
	emit := func(op l1.Op, operands ...int) {
		w.WriteNybble(byte(op))
		for _, v := range operands {
			nybble.WriteOperand(w, v)
		}
	}
	twoIdx := chunk.AddLiteral(intLit(2))
	threeIdx := chunk.AddLiteral(intLit(3))
	plusIdx := chunk.AddLiteral(types.ObjectValue(&l1.Bundle{Name: "+", NumArgs: 2}))
	expectedIdx := chunk.AddLiteral(typeLit(types.Integers))

	emit(l1.OpPushLiteral, twoIdx)
	emit(l1.OpPushLiteral, threeIdx)
	emit(l1.OpCall, plusIdx, expectedIdx)
	chunk.Code = w.Bytes()

	return &l1.RawFunction{
		Name:       "f",
		ResultType: types.Integers,
		L1Chunk:    chunk,
	}
}

func TestEngineRunsAgainstBuiltInMethod(t *testing.T) {
	e := avail.New()

	p, ok := primitive.NewCoreRegistry().Lookup(primitive.NumIntegerAdd)
	if !ok {
		t.Fatalf("missing NumIntegerAdd primitive")
	}
	e.DefineMethod("+", []types.Type{types.Integers, types.Integers}, &l1.RawFunction{
		Name:       "+",
		ParamTypes: []types.Type{types.Integers, types.Integers},
		ResultType: types.Integers,
		L1Chunk:    l1.NewChunk(2, 0, 0),
		Primitive:  p,
	})

	result, err := e.Run(buildAddFunction(t), nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	iv, ok := result.AsObject().(*types.Integer)
	if !ok || iv.Value.Int64() != 5 {
		t.Fatalf("expected 5, got %v", result)
	}
}

func TestEngineOpensAndClosesRepository(t *testing.T) {
	e := avail.New()
	path := filepath.Join(t.TempDir(), "repo.sqlite")
	if err := e.OpenRepository(path); err != nil {
		t.Fatalf("open repository: %v", err)
	}
	if e.Repository() == nil {
		t.Fatalf("expected a non-nil repository after OpenRepository")
	}
	if err := e.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
