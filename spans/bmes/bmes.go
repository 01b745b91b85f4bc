// Package bmes encodes and decodes token-level BMES tag sequences.
//
// Every token carries one of O (outside), B-<label> (begin), M-<label> (middle),
// E-<label> (end) or S-<label> (single token entity).
package bmes

import (
	"errors"
	"fmt"
	"strings"
)

const (
	Outside = "O"
	Begin   = "B-"
	Middle  = "M-"
	End     = "E-"
	Single  = "S-"
)

var ErrInvalidTagSequence = errors.New("invalid BMES tag sequence")

// Tag is a decoded entity over the half-open token range [Begin, End).
type Tag struct {
	Label string `json:"label"`
	Begin int    `json:"begin"`
	End   int    `json:"end"`
}

func role(tag string) byte {
	if tag == "" {
		return 'O'
	}
	return tag[0]
}

func label(tag string) string {
	_, l, found := strings.Cut(tag, "-")
	if !found {
		return ""
	}
	return l
}

// Decode turns a tag sequence into entities.
// A B that ends the sequence is read as S, and a B whose run of M tags is not closed
// by an E yields an entity that stops before the first token that breaks the run.
// An M or E that does not continue a B is rejected.
func Decode(tags []string) ([]Tag, error) {
	var out []Tag
	n := len(tags)
	idx := 0
	for idx < n {
		current := role(tags[idx])
		if idx+1 == n && current == 'B' {
			current = 'S'
		}
		switch current {
		case 'O':
			idx++
		case 'S':
			out = append(out, Tag{Label: label(tags[idx]), Begin: idx, End: idx + 1})
			idx++
		case 'B':
			end := idx + 1
			for end+1 < n && role(tags[end]) == 'M' {
				end++
			}
			if role(tags[end]) == 'E' {
				out = append(out, Tag{Label: label(tags[idx]), Begin: idx, End: end + 1})
				idx = end + 1
			} else {
				out = append(out, Tag{Label: label(tags[idx]), Begin: idx, End: end})
				idx = end
			}
		default:
			return nil, fmt.Errorf("%w: unexpected %q at position %d", ErrInvalidTagSequence, tags[idx], idx)
		}
	}
	return out, nil
}

// Encode writes entities into a tag sequence of the given length.
// Entities must not overlap; later entities overwrite earlier ones where they do.
func Encode(entities []Tag, length int) ([]string, error) {
	tags := make([]string, length)
	for i := range tags {
		tags[i] = Outside
	}
	for _, e := range entities {
		if e.Begin < 0 || e.End > length || e.End <= e.Begin {
			return nil, fmt.Errorf("entity [%d, %d) does not fit a sequence of length %d", e.Begin, e.End, length)
		}
		if e.End-e.Begin == 1 {
			tags[e.Begin] = Single + e.Label
			continue
		}
		tags[e.Begin] = Begin + e.Label
		for i := e.Begin + 1; i < e.End-1; i++ {
			tags[i] = Middle + e.Label
		}
		tags[e.End-1] = End + e.Label
	}
	return tags, nil
}
