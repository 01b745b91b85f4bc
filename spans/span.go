// Package spans decodes flat entity spans from boundary and match predictions.
//
// Spans are half-open token ranges: Span{Start: 1, End: 2} covers token 1 only.
// Match matrices address spans by their inclusive (start, last) cell, see Span.Cell.
package spans

import "fmt"

// Span is the half-open token range [Start, End).
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// FromCell converts an inclusive match-matrix cell (i, j) into a span.
func FromCell(i, j int) Span {
	return Span{Start: i, End: j + 1}
}

// FromCells converts inclusive (start, end) cells into spans, preserving order.
func FromCells(cells [][2]int) []Span {
	out := make([]Span, len(cells))
	for i, c := range cells {
		out[i] = FromCell(c[0], c[1])
	}
	return out
}

// Cell is the inclusive match-matrix coordinate of the span.
func (s Span) Cell() [2]int {
	return [2]int{s.Start, s.End - 1}
}

func (s Span) Len() int {
	return s.End - s.Start
}

func (s Span) Valid() bool {
	return s.Start >= 0 && s.End > s.Start
}

// Contains reports whether token i is inside the span.
func (s Span) Contains(i int) bool {
	return i >= s.Start && i < s.End
}

// Overlaps reports whether the two spans share at least one token.
func (s Span) Overlaps(other Span) bool {
	return s.Start < other.End && other.Start < s.End
}

func (s Span) String() string {
	return fmt.Sprintf("(%d, %d)", s.Start, s.End)
}
