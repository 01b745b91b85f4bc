package spans

import (
	"fmt"

	"github.com/knights-analytics/spanf1/spans/bmes"
)

// pseudoLabel is the entity label used when boundary predictions are routed through BMES tags.
const pseudoLabel = "TAG"

func validateInputs(startPred, endPred []bool, matchPred [][]bool, mask []bool) error {
	n := len(startPred)
	if len(endPred) != n || len(mask) != n {
		return fmt.Errorf("start (%d), end (%d) and mask (%d) predictions must have the same length",
			len(startPred), len(endPred), len(mask))
	}
	if len(matchPred) != n {
		return fmt.Errorf("match predictions have %d rows, expected %d", len(matchPred), n)
	}
	for i, row := range matchPred {
		if len(row) != n {
			return fmt.Errorf("match predictions row %d has %d columns, expected %d", i, len(row), n)
		}
	}
	return nil
}

// boundaries returns the positions flagged in pred that pass the mask, in ascending order.
func boundaries(pred, mask []bool) []int {
	var positions []int
	for i, p := range pred {
		if p && mask[i] {
			positions = append(positions, i)
		}
	}
	return positions
}

// ExtractFlat decodes non-overlapping spans from one sequence of predictions.
//
// Every masked start position is paired with the nearest masked end position at or after it.
// The pairing becomes a span only if matchPred confirms it. Starts without a later end are
// dropped. A pairing that would nest inside an already accepted span (it then shares that
// span's end) is dropped too, so the result is flat and sorted by start.
func ExtractFlat(startPred, endPred []bool, matchPred [][]bool, mask []bool) ([]Span, error) {
	if err := validateInputs(startPred, endPred, matchPred, mask); err != nil {
		return nil, err
	}
	starts := boundaries(startPred, mask)
	ends := boundaries(endPred, mask)

	var out []Span
	next := 0
	occupiedUntil := 0
	for _, start := range starts {
		for next < len(ends) && ends[next] < start {
			next++
		}
		if next == len(ends) {
			break
		}
		end := ends[next]
		if !matchPred[start][end] || start < occupiedUntil {
			continue
		}
		out = append(out, FromCell(start, end))
		occupiedUntil = end + 1
	}
	return out, nil
}

// ExtractFlatTagged decodes spans by writing the boundary predictions into a BMES tag
// sequence and decoding it. Every start is tagged B and every end E before matched pairs
// are filled in, so unmatched starts still open entities. Use it when results must agree
// with scores produced through a BMES decoder, otherwise prefer ExtractFlat.
func ExtractFlatTagged(startPred, endPred []bool, matchPred [][]bool, mask []bool) ([]Span, error) {
	if err := validateInputs(startPred, endPred, matchPred, mask); err != nil {
		return nil, err
	}
	starts := boundaries(startPred, mask)
	ends := boundaries(endPred, mask)

	tags := make([]string, len(startPred))
	for i := range tags {
		tags[i] = bmes.Outside
	}
	for _, start := range starts {
		tags[start] = bmes.Begin + pseudoLabel
	}
	for _, end := range ends {
		tags[end] = bmes.End + pseudoLabel
	}

	next := 0
	for _, start := range starts {
		for next < len(ends) && ends[next] < start {
			next++
		}
		if next == len(ends) {
			break
		}
		end := ends[next]
		if !matchPred[start][end] {
			continue
		}
		if start == end {
			tags[end] = bmes.Single + pseudoLabel
			continue
		}
		for i := start + 1; i < end; i++ {
			tags[i] = bmes.Middle + pseudoLabel
		}
	}

	return FromTags(tags)
}

// RemoveOverlap keeps spans greedily in input order, skipping any span that shares a
// token with a span kept before it. Empty or negative spans are dropped.
func RemoveOverlap(spans []Span) []Span {
	limit := 0
	for _, s := range spans {
		limit = max(limit, s.End)
	}
	occupied := make([]bool, limit)

	var out []Span
	for _, s := range spans {
		if !s.Valid() || isOccupied(occupied, s) {
			continue
		}
		for i := s.Start; i < s.End; i++ {
			occupied[i] = true
		}
		out = append(out, s)
	}
	return out
}

func isOccupied(occupied []bool, s Span) bool {
	for i := s.Start; i < s.End; i++ {
		if occupied[i] {
			return true
		}
	}
	return false
}

// ToTags renders flat spans as a BMES sequence of the given length under one label.
func ToTags(spans []Span, length int, label string) ([]string, error) {
	entities := make([]bmes.Tag, len(spans))
	for i, s := range spans {
		entities[i] = bmes.Tag{Label: label, Begin: s.Start, End: s.End}
	}
	return bmes.Encode(entities, length)
}

// FromTags decodes a BMES sequence into spans, discarding labels.
func FromTags(tags []string) ([]Span, error) {
	decoded, err := bmes.Decode(tags)
	if err != nil {
		return nil, err
	}
	out := make([]Span, len(decoded))
	for i, tag := range decoded {
		out[i] = Span{Start: tag.Begin, End: tag.End}
	}
	return out, nil
}
