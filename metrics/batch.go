package metrics

import (
	"bytes"
	"errors"
	"fmt"

	"gorgonia.org/tensor"

	"github.com/knights-analytics/spanf1/util/tensorutil"
)

// Batch is the model output and gold labels of one evaluation step.
//
// For a batch of B queries over sequences of length L:
//   - StartLogits, EndLogits: [B, L, 2] float logits, class 1 marks a boundary.
//   - MatchLogits: [B, L, L] float logits, positive where (i, j) is predicted as a span.
//   - LabelMask: [B, L] validity of each position (bool or 0/1 numbers).
//   - MatchLabels: [B, L, L] gold span cells (bool or 0/1 numbers).
type Batch struct {
	StartLogits tensor.Tensor
	EndLogits   tensor.Tensor
	MatchLogits tensor.Tensor
	LabelMask   tensor.Tensor
	MatchLabels tensor.Tensor
}

// Dims returns the batch size and sequence length, taken from LabelMask.
// Both must be positive.
func (b Batch) Dims() (int, int, error) {
	if tensorutil.IsNil(b.LabelMask) {
		return 0, 0, fmt.Errorf("%w: label mask is missing", ErrShapeMismatch)
	}
	shape := b.LabelMask.Shape()
	if len(shape) != 2 {
		return 0, 0, fmt.Errorf("%w: label mask must be two dimensional (batch, sequence), got %v", ErrShapeMismatch, shape)
	}
	if shape[0] == 0 || shape[1] == 0 {
		return 0, 0, fmt.Errorf("%w: label mask has an empty dimension %v", ErrShapeMismatch, shape)
	}
	return shape[0], shape[1], nil
}

// Validate checks that every tensor agrees with the batch dimensions.
func (b Batch) Validate() error {
	bsz, seqLen, err := b.Dims()
	if err != nil {
		return err
	}
	var validationErrors []error
	for _, check := range []struct {
		name string
		t    tensor.Tensor
		dims []int
	}{
		{"start logits", b.StartLogits, []int{bsz, seqLen, 2}},
		{"end logits", b.EndLogits, []int{bsz, seqLen, 2}},
		{"match logits", b.MatchLogits, []int{bsz, seqLen, seqLen}},
		{"match labels", b.MatchLabels, []int{bsz, seqLen, seqLen}},
	} {
		if shapeErr := tensorutil.CheckShape(check.name, check.t, check.dims...); shapeErr != nil {
			validationErrors = append(validationErrors, shapeErr)
		}
	}
	if len(validationErrors) > 0 {
		return fmt.Errorf("%w: %w", ErrShapeMismatch, errors.Join(validationErrors...))
	}
	return nil
}

// Flag is a boolean that also decodes from the numbers 0 and 1,
// the form masks usually take when exported from a training loop.
type Flag bool

func (f *Flag) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch string(data) {
	case "true", "1", "1.0":
		*f = true
	case "false", "0", "0.0", "null":
		*f = false
	default:
		return fmt.Errorf("cannot read %s as a mask flag", data)
	}
	return nil
}

// Record is the JSON form of a Batch.
type Record struct {
	ID          string        `json:"id,omitempty"`
	StartLogits [][][]float32 `json:"start_logits"`
	EndLogits   [][][]float32 `json:"end_logits"`
	MatchLogits [][][]float32 `json:"match_logits"`
	LabelMask   [][]Flag      `json:"label_mask"`
	MatchLabels [][][]Flag    `json:"match_labels"`
}

// Batch converts the nested slices into tensors, rejecting ragged input.
func (r Record) Batch() (Batch, error) {
	bsz := len(r.LabelMask)
	if bsz == 0 {
		return Batch{}, fmt.Errorf("%w: record has an empty label mask", ErrShapeMismatch)
	}
	seqLen := len(r.LabelMask[0])
	if seqLen == 0 {
		return Batch{}, fmt.Errorf("%w: record has an empty sequence", ErrShapeMismatch)
	}

	mask, err := flatten2(r.LabelMask, bsz, seqLen)
	if err != nil {
		return Batch{}, fmt.Errorf("label mask: %w", err)
	}
	start, err := flatten3(r.StartLogits, bsz, seqLen, 2)
	if err != nil {
		return Batch{}, fmt.Errorf("start logits: %w", err)
	}
	end, err := flatten3(r.EndLogits, bsz, seqLen, 2)
	if err != nil {
		return Batch{}, fmt.Errorf("end logits: %w", err)
	}
	match, err := flatten3(r.MatchLogits, bsz, seqLen, seqLen)
	if err != nil {
		return Batch{}, fmt.Errorf("match logits: %w", err)
	}
	labels, err := flatten3(r.MatchLabels, bsz, seqLen, seqLen)
	if err != nil {
		return Batch{}, fmt.Errorf("match labels: %w", err)
	}

	return Batch{
		StartLogits: tensor.New(tensor.WithShape(bsz, seqLen, 2), tensor.WithBacking(start)),
		EndLogits:   tensor.New(tensor.WithShape(bsz, seqLen, 2), tensor.WithBacking(end)),
		MatchLogits: tensor.New(tensor.WithShape(bsz, seqLen, seqLen), tensor.WithBacking(match)),
		LabelMask:   tensorutil.NewBool(flagsToBools(mask), bsz, seqLen),
		MatchLabels: tensorutil.NewBool(flagsToBools(labels), bsz, seqLen, seqLen),
	}, nil
}

func flagsToBools(flags []Flag) []bool {
	out := make([]bool, len(flags))
	for i, f := range flags {
		out[i] = bool(f)
	}
	return out
}

func flatten2[T any](values [][]T, d0, d1 int) ([]T, error) {
	if len(values) != d0 {
		return nil, fmt.Errorf("%w: got %d rows, expected %d", ErrShapeMismatch, len(values), d0)
	}
	out := make([]T, 0, d0*d1)
	for i, row := range values {
		if len(row) != d1 {
			return nil, fmt.Errorf("%w: row %d has length %d, expected %d", ErrShapeMismatch, i, len(row), d1)
		}
		out = append(out, row...)
	}
	return out, nil
}

func flatten3[T any](values [][][]T, d0, d1, d2 int) ([]T, error) {
	if len(values) != d0 {
		return nil, fmt.Errorf("%w: got %d entries, expected %d", ErrShapeMismatch, len(values), d0)
	}
	out := make([]T, 0, d0*d1*d2)
	for i, plane := range values {
		flat, err := flatten2(plane, d1, d2)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		out = append(out, flat...)
	}
	return out, nil
}
