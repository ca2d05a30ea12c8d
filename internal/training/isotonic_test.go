package training

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFitIsotonicMonotone(t *testing.T) {
	// Noisy but increasing relationship.
	rng := rand.New(rand.NewSource(7))
	var xs, ys []float64
	for i := 0; i < 500; i++ {
		x := rng.Float64()
		xs = append(xs, x)
		if rng.Float64() < 0.2+0.6*x {
			ys = append(ys, 1)
		} else {
			ys = append(ys, 0)
		}
	}

	curve := FitIsotonic(xs, ys, nil)
	require.NotNil(t, curve)
	require.Equal(t, len(curve.X), len(curve.Y))
	assert.LessOrEqual(t, len(curve.X), maxCurveKnots)

	for i := 1; i < len(curve.X); i++ {
		assert.Greater(t, curve.X[i], curve.X[i-1], "knots sorted")
		assert.GreaterOrEqual(t, curve.Y[i], curve.Y[i-1], "fitted values monotone")
	}
	// Fitted values are probabilities.
	assert.GreaterOrEqual(t, curve.Y[0], 0.0)
	assert.LessOrEqual(t, curve.Y[len(curve.Y)-1], 1.0)
}

func TestFitIsotonicPoolsViolators(t *testing.T) {
	// A single decreasing pair pools into one block.
	curve := FitIsotonic([]float64{0.1, 0.2}, []float64{1, 0}, nil)
	require.NotNil(t, curve)
	require.Len(t, curve.X, 1)
	assert.InDelta(t, 0.5, curve.Y[0], 1e-9)

	// Weighted pooling respects the weights.
	curve = FitIsotonic([]float64{0.1, 0.2}, []float64{1, 0}, []float64{3, 1})
	require.Len(t, curve.X, 1)
	assert.InDelta(t, 0.75, curve.Y[0], 1e-9)
}

func TestFitIsotonicPerfectData(t *testing.T) {
	curve := FitIsotonic([]float64{0.1, 0.2, 0.3}, []float64{0, 0.5, 1}, nil)
	require.NotNil(t, curve)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, curve.X)
	assert.Equal(t, []float64{0, 0.5, 1}, curve.Y)
}

func TestFitIsotonicDegenerateInputs(t *testing.T) {
	assert.Nil(t, FitIsotonic(nil, nil, nil))
	assert.Nil(t, FitIsotonic([]float64{0.1}, []float64{}, nil))
}
