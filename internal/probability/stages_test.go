package probability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tipster-dev/jackpot-sim/internal/drawsignal"
	"github.com/tipster-dev/jackpot-sim/internal/models"
)

func fptr(v float64) *float64 { return &v }

func TestDrawPriorMultiplier(t *testing.T) {
	tests := []struct {
		name string
		rate float64
		want float64
	}{
		{"baseline league is neutral", 0.26, 0},
		{"draw-heavy league capped at 0.2", 0.40, 0.2},
		{"draw-light league floored at -0.1", 0.20, -0.1},
		{"missing rate falls back to baseline", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, DrawPriorMultiplier(tt.rate), 1e-9)
		})
	}
}

func TestApplyDrawPrior(t *testing.T) {
	base := ProbTriple{Home: 0.50, Draw: 0.25, Away: 0.25}

	boosted := ApplyDrawPrior(base, 0.2)
	assert.True(t, boosted.Valid())
	assert.InDelta(t, 0.30, boosted.Draw, 1e-9)
	// Home and Away keep their relative proportions.
	assert.InDelta(t, 2.0, boosted.Home/boosted.Away, 1e-9)

	// Band clamps hold at both ends.
	low := ApplyDrawPrior(ProbTriple{Home: 0.85, Draw: 0.05, Away: 0.10}, -0.1)
	assert.InDelta(t, 0.12, low.Draw, 1e-9)
	high := ApplyDrawPrior(ProbTriple{Home: 0.25, Draw: 0.50, Away: 0.25}, 0.2)
	assert.InDelta(t, 0.38, high.Draw, 1e-9)
}

func TestApplyStructuralCompression(t *testing.T) {
	// Strong draw signal on a lopsided fixture: the H/A gap must shrink
	// by at least 40% while draw mass only moves through reallocation.
	p := ProbTriple{Home: 0.60, Draw: 0.20, Away: 0.20}
	sig := drawsignal.Signal{Value: 0.8}

	out, diag := ApplyStructural(p, 1.9, 1.0, sig, nil)
	require.True(t, out.Valid())
	assert.InDelta(t, 0.66, diag.CompressionK, 1e-9)

	gapBefore := p.Home - p.Away
	gapAfter := out.Home - out.Away
	assert.Less(t, gapAfter, gapBefore*0.7)
	assert.Greater(t, gapAfter, 0.0, "ordering preserved")
}

func TestApplyStructuralSymmetryDampening(t *testing.T) {
	p := ProbTriple{Home: 0.45, Draw: 0.22, Away: 0.33}

	_, diagClose := ApplyStructural(p, 1.40, 1.35, drawsignal.Signal{Value: 0.4}, nil)
	assert.Less(t, diagClose.SymmetryK, 1.0)

	_, diagApart := ApplyStructural(p, 2.2, 1.0, drawsignal.Signal{Value: 0.4}, nil)
	assert.InDelta(t, 1.0, diagApart.SymmetryK, 1e-9)
}

func TestApplyStructuralMarketDivergence(t *testing.T) {
	p := ProbTriple{Home: 0.52, Draw: 0.20, Away: 0.28}
	market := fptr(0.30)

	out, diag := ApplyStructural(p, 2.4, 1.2, drawsignal.Signal{Value: 0.4}, market)
	require.True(t, out.Valid())
	// Half the model-vs-market gap moves from the stronger side.
	assert.InDelta(t, 0.05, diag.DrawReallocation, 1e-9)
	assert.Greater(t, out.Draw, p.Draw)
	assert.Less(t, out.Home, p.Home)
}

func TestApplyStructuralHardDrawBand(t *testing.T) {
	low := ProbTriple{Home: 0.60, Draw: 0.10, Away: 0.30}
	out, _ := ApplyStructural(low, 2.8, 1.5, drawsignal.Signal{Value: 0.3}, nil)
	assert.GreaterOrEqual(t, out.Draw, 0.18-1e-9)

	high := ProbTriple{Home: 0.25, Draw: 0.45, Away: 0.30}
	out, _ = ApplyStructural(high, 2.8, 1.5, drawsignal.Signal{Value: 0.3}, nil)
	assert.LessOrEqual(t, out.Draw, 0.38+1e-9)
}

func TestApplyStructuralTailFlattening(t *testing.T) {
	p := ProbTriple{Home: 0.50, Draw: 0.25, Away: 0.25}
	_, diag := ApplyStructural(p, 0.9, 0.9, drawsignal.Signal{Value: 0.3}, nil)
	assert.InDelta(t, 1.8/2.1, diag.TailFactor, 1e-9)

	_, diag = ApplyStructural(p, 1.5, 1.5, drawsignal.Signal{Value: 0.3}, nil)
	assert.InDelta(t, 1.0, diag.TailFactor, 1e-9)
}

func TestApplyTemperature(t *testing.T) {
	p := ProbTriple{Home: 0.60, Draw: 0.25, Away: 0.15}

	softened := ApplyTemperature(p, 1.5)
	assert.True(t, softened.Valid())
	assert.Less(t, softened.Home, p.Home)
	assert.Greater(t, softened.NormalizedEntropy(), p.NormalizedEntropy())

	// T=1 is the identity (modulo renormalization).
	same := ApplyTemperature(p, 1.0)
	assert.InDelta(t, p.Home, same.Home, 1e-9)

	// Out-of-range temperatures clamp instead of exploding.
	clamped := ApplyTemperature(p, 5.0)
	expected := ApplyTemperature(p, 2.0)
	assert.InDelta(t, expected.Home, clamped.Home, 1e-9)
}

func TestBlendWithMarket(t *testing.T) {
	model := ProbTriple{Home: 0.55, Draw: 0.25, Away: 0.20}
	market := ProbTriple{Home: 0.45, Draw: 0.30, Away: 0.25}

	blended, alphaEff := BlendWithMarket(model, market, 0.5, 0)
	assert.True(t, blended.Valid())
	assert.GreaterOrEqual(t, alphaEff, 0.15)
	assert.LessOrEqual(t, alphaEff, 0.75)
	// The blend lands between model and market on every outcome.
	assert.Less(t, blended.Home, model.Home)
	assert.Greater(t, blended.Home, market.Home)

	// A confident model gets pulled toward the market floor.
	confident := ProbTriple{Home: 0.90, Draw: 0.06, Away: 0.04}
	_, alphaConfident := BlendWithMarket(confident, market, 0.5, 0)
	assert.Less(t, alphaConfident, alphaEff)

	// maxAlpha caps the model share.
	_, alphaCapped := BlendWithMarket(model, market, 0.9, marketAlphaCapC)
	assert.LessOrEqual(t, alphaCapped, marketAlphaCapC)
}

func TestApplyCurve(t *testing.T) {
	curve := &models.CalibrationCurve{
		X: []float64{0.0, 0.2, 0.5},
		Y: []float64{0.1, 0.25, 0.6},
	}
	assert.InDelta(t, 0.1, ApplyCurve(curve, 0.05), 1e-9)
	assert.InDelta(t, 0.25, ApplyCurve(curve, 0.2), 1e-9)
	assert.InDelta(t, 0.25, ApplyCurve(curve, 0.49), 1e-9)
	assert.InDelta(t, 0.6, ApplyCurve(curve, 0.9), 1e-9)

	// Nil and malformed curves are identity.
	assert.InDelta(t, 0.33, ApplyCurve(nil, 0.33), 1e-9)
	assert.InDelta(t, 0.33, ApplyCurve(&models.CalibrationCurve{X: []float64{0.1}}, 0.33), 1e-9)
}

func TestApplyCalibration(t *testing.T) {
	identity := &models.CalibrationCurve{X: []float64{0}, Y: []float64{0.5}}
	cal := &models.CalibrationWeights{Home: identity, Draw: identity, Away: identity}

	out := ApplyCalibration(ProbTriple{Home: 0.6, Draw: 0.25, Away: 0.15}, cal, nil)
	assert.True(t, out.Valid())
	assert.InDelta(t, 1.0/3, out.Home, 1e-9)

	// Draw-only curve reshapes and renormalizes.
	drawCurve := &models.CalibrationCurve{X: []float64{0, 0.3}, Y: []float64{0.2, 0.4}}
	out = ApplyCalibration(ProbTriple{Home: 0.5, Draw: 0.3, Away: 0.2}, nil, drawCurve)
	assert.True(t, out.Valid())
	assert.Greater(t, out.Draw, 0.3)
}
