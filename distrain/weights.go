package distrain

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Tensor is one trainable parameter array: a shape plus a flat row-major
// buffer. Shapes are fixed by the model architecture.
type Tensor struct {
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

func NewTensor(shape ...int) Tensor {
	size := 1
	for _, d := range shape {
		size *= d
	}
	return Tensor{
		Shape: shape,
		Data:  make([]float64, size),
	}
}

func (t Tensor) Size() int {
	size := 1
	for _, d := range t.Shape {
		size *= d
	}
	return size
}

func (t Tensor) Copy() Tensor {
	cp := Tensor{
		Shape: make([]int, len(t.Shape)),
		Data:  make([]float64, len(t.Data)),
	}
	copy(cp.Shape, t.Shape)
	copy(cp.Data, t.Data)
	return cp
}

func (t Tensor) sameShape(o Tensor) bool {
	if len(t.Shape) != len(o.Shape) {
		return false
	}
	for i := range t.Shape {
		if t.Shape[i] != o.Shape[i] {
			return false
		}
	}
	return true
}

// WeightSet is the ordered collection of all trainable parameter tensors of
// a model, one Tensor per layer tensor.
type WeightSet []Tensor

func (w WeightSet) Copy() WeightSet {
	cp := make(WeightSet, len(w))
	for i, t := range w {
		cp[i] = t.Copy()
	}
	return cp
}

// checkCompatible verifies the two sets have the same length and matching
// per-index shapes, which all elementwise arithmetic requires.
func checkCompatible(a WeightSet, b WeightSet) error {
	if len(a) != len(b) {
		return InputError{Reason: fmt.Sprintf("weight sets have %d and %d tensors", len(a), len(b))}
	}
	for i := range a {
		if !a[i].sameShape(b[i]) {
			return InputError{Reason: fmt.Sprintf("tensor %d shapes %v and %v differ", i, a[i].Shape, b[i].Shape)}
		}
	}
	return nil
}

// SubtractParams returns a - b elementwise.
func SubtractParams(a WeightSet, b WeightSet) (WeightSet, error) {
	if err := checkCompatible(a, b); err != nil {
		return nil, err
	}
	out := make(WeightSet, len(a))
	for i := range a {
		out[i] = NewTensor(a[i].Shape...)
		floats.SubTo(out[i].Data, a[i].Data, b[i].Data)
	}
	return out, nil
}

// AddParams returns a + b elementwise.
func AddParams(a WeightSet, b WeightSet) (WeightSet, error) {
	if err := checkCompatible(a, b); err != nil {
		return nil, err
	}
	out := make(WeightSet, len(a))
	for i := range a {
		out[i] = NewTensor(a[i].Shape...)
		floats.AddTo(out[i].Data, a[i].Data, b[i].Data)
	}
	return out, nil
}

// DivideBy returns w / n elementwise.
func DivideBy(w WeightSet, n float64) WeightSet {
	out := make(WeightSet, len(w))
	for i := range w {
		out[i] = NewTensor(w[i].Shape...)
		floats.ScaleTo(out[i].Data, 1/n, w[i].Data)
	}
	return out
}
