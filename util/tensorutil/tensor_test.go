package tensorutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

func TestBools(t *testing.T) {
	tests := []struct {
		name   string
		t      tensor.Tensor
		expect []bool
	}{
		{"bool", NewBool([]bool{true, false}, 2), []bool{true, false}},
		{"int64", tensor.New(tensor.WithShape(3), tensor.WithBacking([]int64{0, 1, 2})), []bool{false, true, true}},
		{"float32", tensor.New(tensor.WithShape(2), tensor.WithBacking([]float32{1, 0})), []bool{true, false}},
		{"uint8", tensor.New(tensor.WithShape(2), tensor.WithBacking([]uint8{0, 1})), []bool{false, true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Bools(tt.t)
			require.NoError(t, err)
			assert.Equal(t, tt.expect, got)
		})
	}

	_, err := Bools(tensor.New(tensor.WithShape(1), tensor.WithBacking([]complex64{1})))
	assert.ErrorIs(t, err, ErrUnsupportedDtype)
	_, err = Bools(nil)
	assert.Error(t, err)
}

func TestInts(t *testing.T) {
	logits := tensor.New(tensor.WithShape(1, 3, 2), tensor.WithBacking([]float32{0, 1, 1, 0, 0.5, 0.5}))
	argmax, err := tensor.Argmax(logits, 2)
	require.NoError(t, err)
	classes, err := Ints(argmax)
	require.NoError(t, err)
	// ties resolve to the first class
	assert.Equal(t, []int{1, 0, 0}, classes)

	classes, err = Ints(tensor.New(tensor.WithShape(2), tensor.WithBacking([]int64{3, 4})))
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4}, classes)
}

func TestCheckShape(t *testing.T) {
	dense := NewBool(make([]bool, 6), 2, 3)
	assert.NoError(t, CheckShape("mask", dense, 2, 3))
	assert.ErrorContains(t, CheckShape("mask", dense, 3, 2), "mask has shape")
	assert.ErrorContains(t, CheckShape("mask", nil, 3, 2), "mask is missing")
	assert.ErrorContains(t, CheckShape("mask", (*tensor.Dense)(nil), 3, 2), "mask is missing")
}

func TestIsNil(t *testing.T) {
	assert.True(t, IsNil(nil))
	assert.True(t, IsNil((*tensor.Dense)(nil)))
	assert.False(t, IsNil(NewBool([]bool{true}, 1)))

	_, err := Bools((*tensor.Dense)(nil))
	assert.Error(t, err)
	_, err = Ints((*tensor.Dense)(nil))
	assert.Error(t, err)
}
