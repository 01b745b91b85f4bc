// Package tensorutil converts gorgonia tensors into the flat row-major slices the scorers index into.
package tensorutil

import (
	"errors"
	"fmt"

	"golang.org/x/exp/constraints"
	"gorgonia.org/tensor"
)

var ErrUnsupportedDtype = errors.New("unsupported tensor dtype")

// IsNil reports whether t is nil or holds a nil dense pointer.
func IsNil(t tensor.Tensor) bool {
	if t == nil {
		return true
	}
	d, ok := t.(*tensor.Dense)
	return ok && d == nil
}

// contiguous returns a tensor whose Data() is the row-major backing of t.
func contiguous(t tensor.Tensor) tensor.Tensor {
	if v, ok := t.(tensor.View); ok && v.IsMaterializable() {
		return v.Materialize()
	}
	return t
}

// Bools returns a tensor as boolean flags. Numeric tensors are true where non-zero,
// which covers masks stored as 0/1 integers or floats.
func Bools(t tensor.Tensor) ([]bool, error) {
	if IsNil(t) {
		return nil, errors.New("nil tensor")
	}
	switch data := contiguous(t).Data().(type) {
	case []bool:
		return data, nil
	case []int:
		return nonZero(data), nil
	case []int64:
		return nonZero(data), nil
	case []int32:
		return nonZero(data), nil
	case []uint8:
		return nonZero(data), nil
	case []float32:
		return nonZero(data), nil
	case []float64:
		return nonZero(data), nil
	default:
		return nil, fmt.Errorf("%w: %v, expected a bool or numeric mask", ErrUnsupportedDtype, t.Dtype())
	}
}

// Ints returns an integer tensor as int, e.g. the result of tensor.Argmax.
func Ints(t tensor.Tensor) ([]int, error) {
	if IsNil(t) {
		return nil, errors.New("nil tensor")
	}
	switch data := contiguous(t).Data().(type) {
	case []int:
		return data, nil
	case []int64:
		out := make([]int, len(data))
		for i, v := range data {
			out[i] = int(v)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %v, expected an integer tensor", ErrUnsupportedDtype, t.Dtype())
	}
}

func nonZero[T constraints.Integer | constraints.Float](data []T) []bool {
	out := make([]bool, len(data))
	for i, v := range data {
		out[i] = v != 0
	}
	return out
}

// CheckShape returns an error naming the tensor when its shape differs from dims.
func CheckShape(name string, t tensor.Tensor, dims ...int) error {
	if IsNil(t) {
		return fmt.Errorf("%s is missing", name)
	}
	if !t.Shape().Eq(tensor.Shape(dims)) {
		return fmt.Errorf("%s has shape %v, expected %v", name, t.Shape(), tensor.Shape(dims))
	}
	return nil
}

// NewBool builds a bool tensor of the given shape over backing.
func NewBool(backing []bool, dims ...int) *tensor.Dense {
	return tensor.New(tensor.WithShape(dims...), tensor.WithBacking(backing))
}
