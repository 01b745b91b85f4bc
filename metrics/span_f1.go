// Package metrics computes span-level F1 counts for query-based span extraction models.
package metrics

import (
	"fmt"

	"gorgonia.org/tensor"

	"github.com/knights-analytics/spanf1/options"
	"github.com/knights-analytics/spanf1/spans"
	"github.com/knights-analytics/spanf1/util/tensorutil"
)

// Scorer turns batch outputs into predicted span matrices and confusion counts.
// A Scorer holds no state between calls and is safe for concurrent use.
type Scorer struct {
	Options *options.Options
}

func NewScorer(opts ...options.WithOption) (*Scorer, error) {
	parsed, err := options.Apply(opts...)
	if err != nil {
		return nil, err
	}
	return &Scorer{Options: parsed}, nil
}

// QuerySpanF1 returns the span-level counts of one batch. With flat set, predictions are
// post-processed with the default flat strategy.
func QuerySpanF1(batch Batch, flat bool) (Counts, error) {
	var opts []options.WithOption
	if flat {
		opts = append(opts, options.WithFlat())
	}
	scorer, err := NewScorer(opts...)
	if err != nil {
		return Counts{}, err
	}
	return scorer.Counts(batch)
}

// predictions are the per-position decisions of a batch in row-major order.
type predictions struct {
	bsz, seqLen int
	start       []bool // [B, L]
	end         []bool // [B, L]
	match       []bool // [B, L, L], match logit > 0
	mask        []bool // [B, L]
}

func (p *predictions) valid(b, i, j int) bool {
	row := b * p.seqLen
	return i <= j && p.mask[row+i] && p.mask[row+j]
}

func (p *predictions) cell(b, i, j int) int {
	return (b*p.seqLen+i)*p.seqLen + j
}

// boundaryPredictions returns, per position, whether class 1 wins the argmax over the last axis.
func boundaryPredictions(logits tensor.Tensor) ([]bool, error) {
	argmax, err := tensor.Argmax(logits, 2)
	if err != nil {
		return nil, err
	}
	classes, err := tensorutil.Ints(argmax)
	if err != nil {
		return nil, err
	}
	out := make([]bool, len(classes))
	for i, c := range classes {
		out[i] = c != 0
	}
	return out, nil
}

func positiveLogits(logits tensor.Tensor) ([]bool, error) {
	var zero any
	switch logits.Dtype() {
	case tensor.Float32:
		zero = float32(0)
	case tensor.Float64:
		zero = float64(0)
	default:
		return nil, fmt.Errorf("%w: match logits are %v, expected a float tensor", ErrUnsupportedDtype, logits.Dtype())
	}
	positive, err := tensor.Gt(logits, zero)
	if err != nil {
		return nil, err
	}
	return tensorutil.Bools(positive)
}

func (s *Scorer) predict(batch Batch) (*predictions, error) {
	if err := batch.Validate(); err != nil {
		return nil, err
	}
	bsz, seqLen, _ := batch.Dims()
	p := &predictions{bsz: bsz, seqLen: seqLen}

	var err error
	if p.start, err = boundaryPredictions(batch.StartLogits); err != nil {
		return nil, fmt.Errorf("start logits: %w", err)
	}
	if p.end, err = boundaryPredictions(batch.EndLogits); err != nil {
		return nil, fmt.Errorf("end logits: %w", err)
	}
	if p.match, err = positiveLogits(batch.MatchLogits); err != nil {
		return nil, fmt.Errorf("match logits: %w", err)
	}
	if p.mask, err = tensorutil.Bools(batch.LabelMask); err != nil {
		return nil, fmt.Errorf("label mask: %w", err)
	}
	return p, nil
}

// constrain keeps the cells whose match, start and end predictions agree
// and that lie on valid positions with start <= end.
func (p *predictions) constrain(matrix []bool) []bool {
	out := make([]bool, len(matrix))
	for b := range p.bsz {
		row := b * p.seqLen
		for i := range p.seqLen {
			if !p.start[row+i] {
				continue
			}
			for j := i; j < p.seqLen; j++ {
				idx := p.cell(b, i, j)
				out[idx] = matrix[idx] && p.end[row+j] && p.valid(b, i, j)
			}
		}
	}
	return out
}

// extractFlat rebuilds each sequence's prediction from flat span extraction.
func (p *predictions) extractFlat() ([]bool, error) {
	out := make([]bool, len(p.match))
	for b := range p.bsz {
		row := b * p.seqLen
		matchRows := make([][]bool, p.seqLen)
		for i := range p.seqLen {
			offset := p.cell(b, i, 0)
			matchRows[i] = p.match[offset : offset+p.seqLen]
		}
		extracted, err := spans.ExtractFlat(
			p.start[row:row+p.seqLen],
			p.end[row:row+p.seqLen],
			matchRows,
			p.mask[row:row+p.seqLen],
		)
		if err != nil {
			return nil, fmt.Errorf("sequence %d: %w", b, err)
		}
		for _, span := range extracted {
			cell := span.Cell()
			out[p.cell(b, cell[0], cell[1])] = true
		}
	}
	return out, nil
}

// removeOverlap keeps predicted cells per sequence in row-major order, dropping overlaps.
func (p *predictions) removeOverlap(matrix []bool) []bool {
	out := make([]bool, len(matrix))
	for b := range p.bsz {
		var candidates []spans.Span
		for i := range p.seqLen {
			for j := i; j < p.seqLen; j++ {
				if matrix[p.cell(b, i, j)] {
					candidates = append(candidates, spans.FromCell(i, j))
				}
			}
		}
		for _, span := range spans.RemoveOverlap(candidates) {
			cell := span.Cell()
			out[p.cell(b, cell[0], cell[1])] = true
		}
	}
	return out
}

func (s *Scorer) predictedCells(p *predictions) ([]bool, error) {
	predicted := p.constrain(p.match)
	switch s.Options.FlatStrategy {
	case options.FlatNone:
		return predicted, nil
	case options.FlatMasked:
		// the constraint set is idempotent, applying it again leaves predicted unchanged
		return p.constrain(predicted), nil
	case options.FlatExtract:
		return p.extractFlat()
	case options.FlatRemoveOverlap:
		return p.removeOverlap(predicted), nil
	default:
		return nil, fmt.Errorf("flat strategy %s not recognized", s.Options.FlatStrategy)
	}
}

// PredictedMatrix returns the [B, L, L] bool tensor of predicted span cells.
func (s *Scorer) PredictedMatrix(batch Batch) (*tensor.Dense, error) {
	p, err := s.predict(batch)
	if err != nil {
		return nil, err
	}
	predicted, err := s.predictedCells(p)
	if err != nil {
		return nil, err
	}
	return tensorutil.NewBool(predicted, p.bsz, p.seqLen, p.seqLen), nil
}

// PredictedSpans returns the predicted spans of every sequence in the batch.
func (s *Scorer) PredictedSpans(batch Batch) ([][]spans.Span, error) {
	p, err := s.predict(batch)
	if err != nil {
		return nil, err
	}
	predicted, err := s.predictedCells(p)
	if err != nil {
		return nil, err
	}
	out := make([][]spans.Span, p.bsz)
	for b := range p.bsz {
		for i := range p.seqLen {
			for j := i; j < p.seqLen; j++ {
				if predicted[p.cell(b, i, j)] {
					out[b] = append(out[b], spans.FromCell(i, j))
				}
			}
		}
	}
	return out, nil
}

// Counts scores one batch: tp = gold & predicted, fp = !gold & predicted, fn = gold & !predicted.
func (s *Scorer) Counts(batch Batch) (Counts, error) {
	p, err := s.predict(batch)
	if err != nil {
		return Counts{}, err
	}
	predicted, err := s.predictedCells(p)
	if err != nil {
		return Counts{}, err
	}
	gold, err := tensorutil.Bools(batch.MatchLabels)
	if err != nil {
		return Counts{}, fmt.Errorf("match labels: %w", err)
	}

	var counts Counts
	for b := range p.bsz {
		for i := range p.seqLen {
			for j := range p.seqLen {
				idx := p.cell(b, i, j)
				isGold := gold[idx] && (!s.Options.MaskLabels || p.valid(b, i, j))
				switch {
				case isGold && predicted[idx]:
					counts.TruePositives++
				case predicted[idx]:
					counts.FalsePositives++
				case isGold:
					counts.FalseNegatives++
				}
			}
		}
	}
	return counts, nil
}
