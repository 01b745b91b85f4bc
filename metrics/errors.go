package metrics

import (
	"errors"

	"github.com/knights-analytics/spanf1/util/tensorutil"
)

var (
	// ErrShapeMismatch indicates batch tensors whose shapes do not agree.
	ErrShapeMismatch = errors.New("metrics: tensor shape mismatch")

	// ErrUnsupportedDtype indicates a tensor whose element type cannot be scored.
	ErrUnsupportedDtype = tensorutil.ErrUnsupportedDtype
)
