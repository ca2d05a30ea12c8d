package probability

import (
	"math"

	"github.com/tipster-dev/jackpot-sim/internal/drawsignal"
	"github.com/tipster-dev/jackpot-sim/internal/models"
)

// Draw probability bounds enforced through the middle stages.
const (
	drawFloorPrior = 0.12
	drawCapPrior   = 0.38
	drawFloorHard  = 0.18
	drawCapHard    = 0.38

	globalDrawBaseline = 0.26
)

// StructuralDiag records what the draw-structural stage did to a
// fixture, persisted with the prediction for auditability.
type StructuralDiag struct {
	DrawSignal       float64            `json:"draw_signal"`
	Indicators       map[string]float64 `json:"indicators"`
	CompressionK     float64            `json:"compression_k"`
	SymmetryK        float64            `json:"symmetry_k"`
	TailFactor       float64            `json:"tail_factor"`
	DrawReallocation float64            `json:"draw_reallocation"`
	Components       map[string]float64 `json:"components"`
}

// DrawPriorMultiplier converts a league average draw rate into the
// relative prior applied at stage 2. The result lives in [-0.1, 0.2]
// so the multiplier (1 + prior) stays within [0.9, 1.2].
func DrawPriorMultiplier(leagueAvgDrawRate float64) float64 {
	if leagueAvgDrawRate <= 0 {
		leagueAvgDrawRate = globalDrawBaseline
	}
	return clamp(leagueAvgDrawRate/globalDrawBaseline-1, -0.1, 0.2)
}

// ApplyDrawPrior injects the league draw prior: p_D is scaled, clamped
// to its working band, and the remaining mass is split across H and A
// proportionally.
func ApplyDrawPrior(p ProbTriple, leaguePrior float64) ProbTriple {
	d := clamp(p.Draw*(1+leaguePrior), drawFloorPrior, drawCapPrior)
	rest := p.Home + p.Away
	if rest <= 0 {
		return ProbTriple{Home: (1 - d) / 2, Draw: d, Away: (1 - d) / 2}
	}
	scale := (1 - d) / rest
	return ProbTriple{Home: p.Home * scale, Draw: d, Away: p.Away * scale}
}

// ApplyStructural runs the draw-structural adjustment: Home/Away
// compression under a strong draw signal, lambda-symmetry dampening,
// market-divergence draw reallocation and low-scoring tail flattening.
// Draw mass only ever moves through explicit redistribution.
func ApplyStructural(p ProbTriple, lambdaHome, lambdaAway float64, sig drawsignal.Signal, marketDrawProb *float64) (ProbTriple, StructuralDiag) {
	diag := StructuralDiag{
		DrawSignal:   sig.Value,
		Indicators:   sig.Indicators,
		Components:   sig.Components,
		CompressionK: 1,
		SymmetryK:    1,
		TailFactor:   1,
	}

	// Signal-driven compression of H and A toward their midpoint.
	if sig.Value > 0.6 {
		k := clamp(0.6+(1-sig.Value)*0.3, 0.4, 1.0)
		p = compress(p, k)
		diag.CompressionK = k
	}

	// Lambda-symmetry dampening: near-equal strengths mean the draw
	// carries more of the outcome mass.
	if diff := math.Abs(lambdaHome - lambdaAway); diff < 0.3 {
		k := math.Exp(-2 * diff)
		p = compress(p, k)
		diag.SymmetryK = k
	}

	// Market divergence: when the market prices the draw above the
	// model, move half the gap from the stronger side into the draw.
	if marketDrawProb != nil {
		if delta := *marketDrawProb - p.Draw; delta > 0 {
			transfer := 0.5 * delta
			if p.Home >= p.Away {
				transfer = math.Min(transfer, p.Home)
				p.Home -= transfer
			} else {
				transfer = math.Min(transfer, p.Away)
				p.Away -= transfer
			}
			p.Draw += transfer
			diag.DrawReallocation = transfer
		}
	}
	p = clampDrawBand(p, drawFloorHard, drawCapHard)

	// Low-scoring tail: flat score grids leave little to separate the
	// sides on.
	if total := lambdaHome + lambdaAway; total < 2.1 {
		factor := total / 2.1
		p = compress(p, factor)
		diag.TailFactor = factor
	}

	return p.Normalize(), diag
}

// compress pulls Home and Away toward their midpoint by factor k in
// (0,1]; k=1 is a no-op. Draw is untouched.
func compress(p ProbTriple, k float64) ProbTriple {
	m := (p.Home + p.Away) / 2
	p.Home = m + (p.Home-m)*k
	p.Away = m + (p.Away-m)*k
	return p
}

// clampDrawBand enforces the draw floor and cap, redistributing the
// difference across Home and Away proportionally.
func clampDrawBand(p ProbTriple, floor, cap float64) ProbTriple {
	d := clamp(p.Draw, floor, cap)
	if d == p.Draw {
		return p
	}
	rest := p.Home + p.Away
	remaining := p.Sum() - d
	if rest <= 0 || remaining <= 0 {
		return ProbTriple{Home: (1 - d) / 2, Draw: d, Away: (1 - d) / 2}
	}
	scale := remaining / rest
	return ProbTriple{Home: p.Home * scale, Draw: d, Away: p.Away * scale}
}

// ApplyTemperature rescales the triple by p^(1/T); T above one
// softens, below one sharpens.
func ApplyTemperature(p ProbTriple, temperature float64) ProbTriple {
	t := clamp(temperature, 0.8, 2.0)
	if t == 1 {
		return p.Normalize()
	}
	exp := 1 / t
	return ProbTriple{
		Home: math.Pow(p.Home, exp),
		Draw: math.Pow(p.Draw, exp),
		Away: math.Pow(p.Away, exp),
	}.Normalize()
}

// BlendWithMarket mixes the model with market-implied probabilities.
// The effective weight scales with model entropy: a confident model
// leans on itself, an uncertain one leans on the market. maxAlpha caps
// the model share for market-weighted set variants.
func BlendWithMarket(p ProbTriple, market ProbTriple, alphaModel, maxAlpha float64) (ProbTriple, float64) {
	alphaEff := clamp(alphaModel*p.NormalizedEntropy(), 0.15, 0.75)
	if maxAlpha > 0 && alphaEff > maxAlpha {
		alphaEff = maxAlpha
	}
	blended := ProbTriple{
		Home: alphaEff*p.Home + (1-alphaEff)*market.Home,
		Draw: alphaEff*p.Draw + (1-alphaEff)*market.Draw,
		Away: alphaEff*p.Away + (1-alphaEff)*market.Away,
	}
	return blended.Normalize(), alphaEff
}

// ApplyCurve evaluates a monotone piecewise-constant calibration
// curve.
func ApplyCurve(curve *models.CalibrationCurve, v float64) float64 {
	if curve == nil || len(curve.X) == 0 || len(curve.X) != len(curve.Y) {
		return v
	}
	if v < curve.X[0] {
		return curve.Y[0]
	}
	for i := len(curve.X) - 1; i >= 0; i-- {
		if v >= curve.X[i] {
			return curve.Y[i]
		}
	}
	return curve.Y[0]
}

// ApplyCalibration maps each outcome through its isotonic curve and
// renormalizes. A separate draw-only curve, when present, is applied
// afterwards.
func ApplyCalibration(p ProbTriple, cal *models.CalibrationWeights, drawOnly *models.CalibrationCurve) ProbTriple {
	if cal != nil {
		p = ProbTriple{
			Home: ApplyCurve(cal.Home, p.Home),
			Draw: ApplyCurve(cal.Draw, p.Draw),
			Away: ApplyCurve(cal.Away, p.Away),
		}.Normalize()
	}
	if drawOnly != nil {
		p.Draw = ApplyCurve(drawOnly, p.Draw)
		p = p.Normalize()
	}
	return p
}
