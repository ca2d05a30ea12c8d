package probability

import (
	"github.com/tipster-dev/jackpot-sim/internal/apperrors"
	"github.com/tipster-dev/jackpot-sim/internal/models"
)

// Set keys parametrize ticket construction. A is the calibrated core;
// B boosts the draw; C leans on the market; D-G are behavioral
// variants layered on C. H-J are reserved.
const (
	SetA = "A"
	SetB = "B"
	SetC = "C"
	SetD = "D"
	SetE = "E"
	SetF = "F"
	SetG = "G"
)

// ComputableSets are the set keys the pipeline can emit today.
var ComputableSets = []string{SetA, SetB, SetC, SetD, SetE, SetF, SetG}

// reservedSets exist in the schema but have no computation attached.
var reservedSets = map[string]bool{"H": true, "I": true, "J": true}

// drawBoostB is the additive draw bump applied pre-calibration for
// set B, compensated by renormalization.
const drawBoostB = 0.03

// marketAlphaCapC caps the model share for the market-weighted set.
const marketAlphaCapC = 0.35

// ValidateSetKeys rejects unknown and reserved keys.
func ValidateSetKeys(keys []string) error {
	for _, k := range keys {
		if reservedSets[k] {
			return apperrors.New(apperrors.CodeInputValidation,
				"set %s is reserved; computable sets are %v", k, ComputableSets)
		}
		known := false
		for _, c := range ComputableSets {
			if c == k {
				known = true
				break
			}
		}
		if !known {
			return apperrors.New(apperrors.CodeInputValidation,
				"unknown set %s; computable sets are %v", k, ComputableSets)
		}
	}
	return nil
}

// setInputs carries the shared intermediate state the variants branch
// from: the post-temperature model triple plus market context.
type setInputs struct {
	model      ProbTriple
	market     *ProbTriple
	alphaModel float64
	cal        *models.CalibrationWeights
	drawCurve  *models.CalibrationCurve
}

// computeSet derives one variant. Every returned triple satisfies the
// sum-to-one invariant; a degenerate intermediate collapses to
// uniform.
func computeSet(key string, in setInputs) ProbTriple {
	blend := func(maxAlpha float64) ProbTriple {
		if in.market == nil {
			return in.model
		}
		p, _ := BlendWithMarket(in.model, *in.market, in.alphaModel, maxAlpha)
		return p
	}

	var p ProbTriple
	switch key {
	case SetA:
		p = ApplyCalibration(blend(0), in.cal, in.drawCurve)
	case SetB:
		p = blend(0)
		p.Draw += drawBoostB
		p = ApplyCalibration(p.Normalize(), in.cal, in.drawCurve)
	case SetC:
		p = ApplyCalibration(blend(marketAlphaCapC), in.cal, in.drawCurve)
	case SetD:
		// Higher entropy target: soften the market-weighted core.
		p = ApplyTemperature(ApplyCalibration(blend(marketAlphaCapC), in.cal, in.drawCurve), 1.25)
	case SetE:
		// Underdog tilt: shift mass from the favorite side to the
		// underdog side.
		p = ApplyCalibration(blend(marketAlphaCapC), in.cal, in.drawCurve)
		p = tiltUnderdog(p, 0.04)
	case SetF:
		// Anti-favorite: cap the strongest outcome.
		p = ApplyCalibration(blend(marketAlphaCapC), in.cal, in.drawCurve)
		p = capFavorite(p, 0.60)
	case SetG:
		// Hedge-balanced: mild Home/Away compression on top of C.
		p = ApplyCalibration(blend(marketAlphaCapC), in.cal, in.drawCurve)
		p = compress(p, 0.9).Normalize()
	default:
		p = Uniform()
	}

	if !p.Valid() {
		return Uniform()
	}
	return p
}

func tiltUnderdog(p ProbTriple, shift float64) ProbTriple {
	if p.Home >= p.Away {
		moved := min(shift, p.Home)
		p.Home -= moved
		p.Away += moved
	} else {
		moved := min(shift, p.Away)
		p.Away -= moved
		p.Home += moved
	}
	return p.Normalize()
}

func capFavorite(p ProbTriple, cap float64) ProbTriple {
	best, idx := p.Max()
	if best <= cap {
		return p
	}
	excess := best - cap
	switch idx {
	case 0:
		p.Home = cap
		rest := p.Draw + p.Away
		if rest > 0 {
			p.Draw += excess * p.Draw / rest
			p.Away += excess * p.Away / rest
		}
	case 1:
		p.Draw = cap
		rest := p.Home + p.Away
		if rest > 0 {
			p.Home += excess * p.Home / rest
			p.Away += excess * p.Away / rest
		}
	default:
		p.Away = cap
		rest := p.Home + p.Draw
		if rest > 0 {
			p.Home += excess * p.Home / rest
			p.Draw += excess * p.Draw / rest
		}
	}
	return p.Normalize()
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
