package options

import (
	"fmt"
	"slices"
	"strings"

	"github.com/phuslu/log"
)

// FlatStrategy selects how predicted span cells are post-processed for flat NER.
type FlatStrategy string

const (
	// FlatNone scores every masked, upper-triangular predicted cell.
	FlatNone FlatStrategy = "NONE"
	// FlatMasked re-applies the boundary and validity constraints. The predicted
	// matrix already satisfies them, so counts equal FlatNone.
	FlatMasked FlatStrategy = "MASKED"
	// FlatExtract keeps only spans produced by flat span extraction per sequence.
	FlatExtract FlatStrategy = "EXTRACT"
	// FlatRemoveOverlap keeps predicted cells in row-major order, dropping any that
	// overlaps a cell kept before it.
	FlatRemoveOverlap FlatStrategy = "REMOVE_OVERLAP"
)

var flatStrategies = []FlatStrategy{FlatNone, FlatMasked, FlatExtract, FlatRemoveOverlap}

// ParseFlatStrategy parses a strategy name case-insensitively.
func ParseFlatStrategy(name string) (FlatStrategy, error) {
	strategy := FlatStrategy(strings.ToUpper(strings.TrimSpace(name)))
	if !slices.Contains(flatStrategies, strategy) {
		return "", fmt.Errorf("flat strategy %q not recognized, expected one of %v", name, flatStrategies)
	}
	return strategy, nil
}

type Options struct {
	FlatStrategy FlatStrategy
	// MaskLabels applies the validity mask and the start <= end constraint to the gold labels.
	MaskLabels bool
	Logger     *log.Logger
}

func Defaults() *Options {
	return &Options{
		FlatStrategy: FlatNone,
		MaskLabels:   true,
		Logger:       &log.DefaultLogger,
	}
}

// Apply builds Options from the defaults and the given option functions.
func Apply(opts ...WithOption) (*Options, error) {
	parsed := Defaults()
	for _, option := range opts {
		if err := option(parsed); err != nil {
			return nil, err
		}
	}
	return parsed, nil
}

// Flat reports whether a flat strategy other than FlatNone is configured.
func (o *Options) Flat() bool {
	return o.FlatStrategy != FlatNone
}

// WithOption is the interface for all option functions.
type WithOption func(o *Options) error

// WithFlat enables flat NER scoring with the FlatMasked strategy.
func WithFlat() WithOption {
	return func(o *Options) error {
		o.FlatStrategy = FlatMasked
		return nil
	}
}

// WithFlatStrategy sets the flat NER strategy. Unknown strategies are rejected.
func WithFlatStrategy(strategy FlatStrategy) WithOption {
	return func(o *Options) error {
		parsed, err := ParseFlatStrategy(string(strategy))
		if err != nil {
			return err
		}
		o.FlatStrategy = parsed
		return nil
	}
}

// WithRawLabels counts gold labels as given, without masking padded positions
// or cells below the diagonal.
func WithRawLabels() WithOption {
	return func(o *Options) error {
		o.MaskLabels = false
		return nil
	}
}

// WithLogger sets the logger used for debug output. Default is log.DefaultLogger.
func WithLogger(logger *log.Logger) WithOption {
	return func(o *Options) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		o.Logger = logger
		return nil
	}
}
