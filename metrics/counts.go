package metrics

import (
	"fmt"

	"gorgonia.org/tensor"

	"github.com/knights-analytics/spanf1/util/tensorutil"
)

// Counts are the span-level confusion counts of one or more batches.
// Pooling Counts across batches before deriving scores gives micro-F1.
type Counts struct {
	TruePositives  int64 `json:"tp"`
	FalsePositives int64 `json:"fp"`
	FalseNegatives int64 `json:"fn"`
}

// Score holds the metrics derived from Counts.
type Score struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

func (c Counts) Add(other Counts) Counts {
	return Counts{
		TruePositives:  c.TruePositives + other.TruePositives,
		FalsePositives: c.FalsePositives + other.FalsePositives,
		FalseNegatives: c.FalseNegatives + other.FalseNegatives,
	}
}

// Predicted is the number of predicted span cells.
func (c Counts) Predicted() int64 {
	return c.TruePositives + c.FalsePositives
}

// Gold is the number of gold span cells.
func (c Counts) Gold() int64 {
	return c.TruePositives + c.FalseNegatives
}

func (c Counts) Precision() float64 {
	if c.Predicted() == 0 {
		return 0
	}
	return float64(c.TruePositives) / float64(c.Predicted())
}

func (c Counts) Recall() float64 {
	if c.Gold() == 0 {
		return 0
	}
	return float64(c.TruePositives) / float64(c.Gold())
}

func (c Counts) F1() float64 {
	p, r := c.Precision(), c.Recall()
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

func (c Counts) Score() Score {
	return Score{
		Precision: c.Precision(),
		Recall:    c.Recall(),
		F1:        c.F1(),
	}
}

func (c Counts) String() string {
	return fmt.Sprintf("tp=%d fp=%d fn=%d", c.TruePositives, c.FalsePositives, c.FalseNegatives)
}

// Tensor returns the counts as an int64 vector [tp, fp, fn].
func (c Counts) Tensor() *tensor.Dense {
	return tensor.New(
		tensor.WithShape(3),
		tensor.WithBacking([]int64{c.TruePositives, c.FalsePositives, c.FalseNegatives}),
	)
}

// CountsFromTensor reads a [tp, fp, fn] vector produced by Counts.Tensor or by a training loop.
func CountsFromTensor(t tensor.Tensor) (Counts, error) {
	if err := tensorutil.CheckShape("counts", t, 3); err != nil {
		return Counts{}, fmt.Errorf("%w: %w", ErrShapeMismatch, err)
	}
	values, err := tensorutil.Ints(t)
	if err != nil {
		return Counts{}, err
	}
	return Counts{
		TruePositives:  int64(values[0]),
		FalsePositives: int64(values[1]),
		FalseNegatives: int64(values[2]),
	}, nil
}
