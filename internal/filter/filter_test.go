package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEMARejectsBadAlpha(t *testing.T) {
	for _, alpha := range []float64{-1, 0, 1.01, 2} {
		_, err := NewEMA(alpha)
		assert.Error(t, err, "alpha=%v", alpha)
	}
	_, err := NewEMA(1)
	assert.NoError(t, err)
}

func TestFirstSampleSeedsEstimate(t *testing.T) {
	f, err := NewEMA(0.1)
	require.NoError(t, err)

	assert.False(t, f.Seeded())
	got := f.Update(742.5)
	assert.Equal(t, 742.5, got)
	assert.True(t, f.Seeded())
}

func TestUpdateSmooths(t *testing.T) {
	f, err := NewEMA(0.5)
	require.NoError(t, err)

	f.Update(100)
	got := f.Update(200)
	assert.InDelta(t, 150, got, 1e-9)
	got = f.Update(200)
	assert.InDelta(t, 175, got, 1e-9)
}

func TestAlphaOneTracksInput(t *testing.T) {
	f, err := NewEMA(1)
	require.NoError(t, err)

	for _, v := range []float64{10, 500, 3, 0} {
		assert.Equal(t, v, f.Update(v))
	}
}

// The estimate never escapes [0, max(samples)] for non-negative inputs.
func TestEstimateStaysWithinSampleBounds(t *testing.T) {
	sequences := [][]float64{
		{0, 0, 0},
		{1000, 0, 1000, 0, 1000},
		{5, 4, 3, 2, 1},
		{0.1, 10000, 0.1, 10000},
	}
	for _, alpha := range []float64{0.05, 0.2, 0.5, 1} {
		for _, seq := range sequences {
			f, err := NewEMA(alpha)
			require.NoError(t, err)

			max := 0.0
			for _, v := range seq {
				if v > max {
					max = v
				}
				got := f.Update(v)
				assert.GreaterOrEqual(t, got, 0.0)
				assert.LessOrEqual(t, got, max)
			}
		}
	}
}

// A dropped sample never calls Update, so the estimate persists untouched.
func TestDroppedSampleLeavesEstimate(t *testing.T) {
	f, err := NewEMA(0.3)
	require.NoError(t, err)

	f.Update(300)
	before := f.Value()
	// no Update call for the dropped tick
	assert.Equal(t, before, f.Value())
}
