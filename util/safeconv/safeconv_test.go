package safeconv

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDurationConversions(t *testing.T) {
	assert.Equal(t, uint64(0), DurationToU64(-time.Second))
	assert.Equal(t, uint64(1500), DurationToU64(1500*time.Nanosecond))
	assert.Equal(t, 2*time.Millisecond, U64ToDuration(DurationToU64(2*time.Millisecond)))
	assert.Equal(t, time.Duration(math.MaxInt64), U64ToDuration(math.MaxUint64))
}
