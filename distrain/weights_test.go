package distrain

import (
	"math"
	"testing"
)

func makeWeights(values ...float64) WeightSet {
	t := Tensor{Shape: []int{len(values)}, Data: values}
	return WeightSet{t}
}

func weightsEqual(a WeightSet, b WeightSet, tol float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].sameShape(b[i]) {
			return false
		}
		for j := range a[i].Data {
			if math.Abs(a[i].Data[j]-b[i].Data[j]) > tol {
				return false
			}
		}
	}
	return true
}

func TestSubtractAddInverse(t *testing.T) {
	a := WeightSet{
		{Shape: []int{2, 2}, Data: []float64{1, 2, 3, 4}},
		{Shape: []int{3}, Data: []float64{-1, 0.5, 7}},
	}
	b := WeightSet{
		{Shape: []int{2, 2}, Data: []float64{0.25, -2, 10, 4}},
		{Shape: []int{3}, Data: []float64{3, 3, 3}},
	}
	diff, err := SubtractParams(a, b)
	if err != nil {
		t.Fatalf("SubtractParams: %v", err)
	}
	back, err := AddParams(diff, b)
	if err != nil {
		t.Fatalf("AddParams: %v", err)
	}
	if !weightsEqual(back, a, 1e-12) {
		t.Errorf("add(subtract(a,b), b) = %v; want %v", back, a)
	}
}

func TestDivideByOneIsIdentity(t *testing.T) {
	a := makeWeights(1, -2.5, 3e10, 0)
	out := DivideBy(a, 1)
	if !weightsEqual(out, a, 0) {
		t.Errorf("DivideBy(a, 1) = %v; want %v", out, a)
	}
}

func TestDivideBy(t *testing.T) {
	a := makeWeights(2, 4, -8)
	out := DivideBy(a, 2)
	want := makeWeights(1, 2, -4)
	if !weightsEqual(out, want, 1e-12) {
		t.Errorf("DivideBy(a, 2) = %v; want %v", out, want)
	}
}

func TestArithmeticShapeMismatch(t *testing.T) {
	check := func(a WeightSet, b WeightSet) {
		if _, err := SubtractParams(a, b); err == nil {
			t.Errorf("SubtractParams(%v, %v) succeeded; want shape error", a, b)
		} else if _, ok := err.(InputError); !ok {
			t.Errorf("SubtractParams error is %T; want InputError", err)
		}
	}
	check(makeWeights(1, 2), WeightSet{})
	check(makeWeights(1, 2), makeWeights(1, 2, 3))
	check(
		WeightSet{{Shape: []int{2, 2}, Data: make([]float64, 4)}},
		WeightSet{{Shape: []int{4}, Data: make([]float64, 4)}},
	)
}

func TestBinaryCodecRoundTrip(t *testing.T) {
	w := WeightSet{
		{Shape: []int{2, 3}, Data: []float64{1, 2, 3, 4, 5, 6}},
		{Shape: []int{1}, Data: []float64{-0.125}},
		{Shape: []int{2, 1, 2}, Data: []float64{9, 8, 7, 6}},
	}
	decoded, err := DecodeWeights(EncodeWeights(w))
	if err != nil {
		t.Fatalf("DecodeWeights: %v", err)
	}
	if !weightsEqual(decoded, w, 0) {
		t.Errorf("round trip = %v; want %v", decoded, w)
	}
}

func TestBinaryCodecRejectsBadPayloads(t *testing.T) {
	check := func(buf []byte) {
		if _, err := DecodeWeights(buf); err == nil {
			t.Errorf("DecodeWeights(%v) succeeded; want error", buf)
		} else if _, ok := err.(SerializationError); !ok {
			t.Errorf("DecodeWeights error is %T; want SerializationError", err)
		}
	}
	check(nil)
	check([]byte{0, 0})
	// claims one tensor but has no header
	check([]byte{0, 0, 0, 1})
	// truncated data section
	valid := EncodeWeights(makeWeights(1, 2, 3))
	check(valid[:len(valid)-4])
	// trailing junk
	check(append(valid, 0))
	// dims whose product overflows int; must not be trusted into make()
	check([]byte{
		0, 0, 0, 1,
		0, 0, 0, 4,
		0x80, 0, 0, 0,
		0x80, 0, 0, 0,
		0, 0, 0, 2,
		0, 0, 0, 1,
	})
	// absurd dim count without the bytes to back it
	check([]byte{0, 0, 0, 1, 0xff, 0xff, 0xff, 0xff})
	// a single huge dim exceeding the payload
	check([]byte{0, 0, 0, 1, 0, 0, 0, 1, 0xff, 0xff, 0xff, 0xff})
}
