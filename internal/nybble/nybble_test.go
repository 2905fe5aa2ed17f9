package nybble

import "testing"

func TestOperandRoundTrip(t *testing.T) {
	values := []int{0, 1, 9, 10, 25, 26, 41, 42, 57, 58, 100, 1000, 70000}
	w := NewWriter()
	for _, v := range values {
		WriteOperand(w, v)
	}
	r := NewReader(w.Bytes())
	for _, want := range values {
		got := ReadOperand(r)
		if got != want {
			t.Fatalf("round trip mismatch: want %d got %d", want, got)
		}
	}
	if !r.AtEnd() {
		t.Fatalf("reader did not consume entire stream")
	}
}

func TestSingleNybbleValues(t *testing.T) {
	for _, v := range []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9} {
		w := NewWriter()
		n := WriteOperand(w, v)
		if n != 1 {
			t.Fatalf("value %d: expected 1 nybble, wrote %d", v, n)
		}
		if len(w.Bytes()) != 1 {
			t.Fatalf("value %d: expected single packed byte", v)
		}
	}
}
