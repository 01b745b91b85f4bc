// Package spanf1 scores query-based span extraction NER models at the span level.
//
// A model answers a query over a sequence of L tokens with start and end boundary logits
// ([B, L, 2]) and a match logit for every (start, end) pair ([B, L, L]). A cell (i, j) is a
// predicted span when its match logit is positive, i is predicted as a start, j as an end,
// both positions pass the label mask and i <= j. Predicted cells are compared with the gold
// matrix to give true positives, false positives and false negatives.
//
//	evaluator, err := spanf1.NewEvaluator(options.WithFlat())
//	if err != nil {
//	    return err
//	}
//	for _, batch := range batches {
//	    if _, err := evaluator.Update(batch); err != nil {
//	        return err
//	    }
//	}
//	fmt.Println(evaluator.Score().F1)
//
// Package metrics holds the per-batch scoring, package spans the flat span decoding
// and overlap removal.
package spanf1
