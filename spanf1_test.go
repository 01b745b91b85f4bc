package spanf1

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"

	"github.com/knights-analytics/spanf1/metrics"
	"github.com/knights-analytics/spanf1/options"
)

// twoTokenBatch predicts span (0, 1) and (1, 1) with gold span (0, 1).
func twoTokenBatch() metrics.Batch {
	return metrics.Batch{
		StartLogits: tensor.New(tensor.WithShape(1, 2, 2), tensor.WithBacking([]float32{-1, 1, -1, 1})),
		EndLogits:   tensor.New(tensor.WithShape(1, 2, 2), tensor.WithBacking([]float32{1, -1, -1, 1})),
		MatchLogits: tensor.New(tensor.WithShape(1, 2, 2), tensor.WithBacking([]float32{-1, 2, 5, 2})),
		LabelMask:   tensor.New(tensor.WithShape(1, 2), tensor.WithBacking([]bool{true, true})),
		MatchLabels: tensor.New(tensor.WithShape(1, 2, 2), tensor.WithBacking([]bool{false, true, false, false})),
	}
}

func TestEvaluator(t *testing.T) {
	evaluator, err := NewEvaluator()
	require.NoError(t, err)

	counts, err := evaluator.Update(twoTokenBatch())
	require.NoError(t, err)
	assert.Equal(t, metrics.Counts{TruePositives: 1, FalsePositives: 1}, counts)

	evaluator.Add(metrics.Counts{FalseNegatives: 1})
	assert.Equal(t, metrics.Counts{TruePositives: 1, FalsePositives: 1, FalseNegatives: 1}, evaluator.Counts())

	score := evaluator.Score()
	assert.InDelta(t, 0.5, score.Precision, 1e-9)
	assert.InDelta(t, 0.5, score.Recall, 1e-9)
	assert.InDelta(t, 0.5, score.F1, 1e-9)

	stats := evaluator.GetStatistics()
	assert.Equal(t, uint64(1), stats.Batches)
	assert.Len(t, evaluator.GetStats(), 5)
	assert.Contains(t, stats.String(), `"batches": 1`)

	evaluator.Reset()
	assert.Equal(t, metrics.Counts{}, evaluator.Counts())
	assert.Equal(t, uint64(0), evaluator.GetStatistics().Batches)
}

func TestEvaluatorErrors(t *testing.T) {
	_, err := NewEvaluator(options.WithFlatStrategy("unknown"))
	assert.Error(t, err)

	evaluator, err := NewEvaluator()
	require.NoError(t, err)
	batch := twoTokenBatch()
	batch.EndLogits = tensor.New(tensor.WithShape(1, 3, 2), tensor.WithBacking(make([]float32, 6)))
	_, err = evaluator.Update(batch)
	assert.ErrorIs(t, err, metrics.ErrShapeMismatch)
	assert.Equal(t, metrics.Counts{}, evaluator.Counts())
}

func TestEvaluatorConcurrentUpdates(t *testing.T) {
	evaluator, err := NewEvaluator(options.WithFlat())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, updateErr := evaluator.Update(twoTokenBatch())
			assert.NoError(t, updateErr)
		}()
	}
	wg.Wait()

	assert.Equal(t, metrics.Counts{TruePositives: 16, FalsePositives: 16}, evaluator.Counts())
	assert.Equal(t, uint64(16), evaluator.GetStatistics().Batches)
}
