package spanf1

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/phuslu/log"

	"github.com/knights-analytics/spanf1/metrics"
	"github.com/knights-analytics/spanf1/options"
	"github.com/knights-analytics/spanf1/util/safeconv"
)

// Evaluator scores batches and pools their counts for micro-F1 over an evaluation set.
// It is safe for concurrent use.
type Evaluator struct {
	scorer  *metrics.Scorer
	logger  *log.Logger
	mutex   sync.Mutex
	counts  metrics.Counts
	timings *timings
}

type timings struct {
	NumCalls uint64
	TotalNS  uint64
}

// Statistics summarises what an Evaluator has seen so far.
type Statistics struct {
	Batches      uint64         `json:"batches"`
	TotalTime    time.Duration  `json:"totalTime"`
	AvgBatchTime time.Duration  `json:"avgBatchTime"`
	Counts       metrics.Counts `json:"counts"`
	Score        metrics.Score  `json:"score"`
}

// NewEvaluator creates an evaluator. Options configure flat decoding and label masking,
// see the options package.
func NewEvaluator(opts ...options.WithOption) (*Evaluator, error) {
	scorer, err := metrics.NewScorer(opts...)
	if err != nil {
		return nil, err
	}
	return &Evaluator{
		scorer:  scorer,
		logger:  scorer.Options.Logger,
		timings: &timings{},
	}, nil
}

// Scorer returns the scorer used for each batch.
func (e *Evaluator) Scorer() *metrics.Scorer {
	return e.scorer
}

// Update scores one batch, adds its counts to the running totals and returns them.
func (e *Evaluator) Update(batch metrics.Batch) (metrics.Counts, error) {
	start := time.Now()
	counts, err := e.scorer.Counts(batch)
	if err != nil {
		return metrics.Counts{}, err
	}
	e.Add(counts)
	atomic.AddUint64(&e.timings.NumCalls, 1)
	atomic.AddUint64(&e.timings.TotalNS, safeconv.DurationToU64(time.Since(start)))
	e.logger.Debug().
		Int64("tp", counts.TruePositives).
		Int64("fp", counts.FalsePositives).
		Int64("fn", counts.FalseNegatives).
		Str("flat", string(e.scorer.Options.FlatStrategy)).
		Msg("scored batch")
	return counts, nil
}

// Add pools externally computed counts, e.g. ones read back from a training loop.
func (e *Evaluator) Add(counts metrics.Counts) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.counts = e.counts.Add(counts)
}

// Counts returns the pooled counts.
func (e *Evaluator) Counts() metrics.Counts {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.counts
}

// Score returns micro precision, recall and F1 over the pooled counts.
func (e *Evaluator) Score() metrics.Score {
	return e.Counts().Score()
}

// Reset clears the pooled counts and timings.
func (e *Evaluator) Reset() {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.counts = metrics.Counts{}
	atomic.StoreUint64(&e.timings.NumCalls, 0)
	atomic.StoreUint64(&e.timings.TotalNS, 0)
}

func (e *Evaluator) GetStatistics() Statistics {
	numCalls := atomic.LoadUint64(&e.timings.NumCalls)
	totalNS := atomic.LoadUint64(&e.timings.TotalNS)
	counts := e.Counts()
	return Statistics{
		Batches:      numCalls,
		TotalTime:    safeconv.U64ToDuration(totalNS),
		AvgBatchTime: time.Duration(float64(totalNS) / math.Max(1, float64(numCalls))),
		Counts:       counts,
		Score:        counts.Score(),
	}
}

// GetStats returns the evaluator statistics as printable lines.
func (e *Evaluator) GetStats() []string {
	s := e.GetStatistics()
	return []string{
		fmt.Sprintf("Batches scored: %d", s.Batches),
		fmt.Sprintf("Total scoring time: %s", s.TotalTime),
		fmt.Sprintf("Average batch time: %s", s.AvgBatchTime),
		fmt.Sprintf("Counts: %s", s.Counts),
		fmt.Sprintf("Precision: %.4f Recall: %.4f F1: %.4f", s.Score.Precision, s.Score.Recall, s.Score.F1),
	}
}

func (s Statistics) String() string {
	jsonData, err := jsoniter.MarshalIndent(s, "", "  ")
	if err != nil {
		return err.Error()
	}
	return string(jsonData)
}
