package probability

import "math"

const sumTolerance = 1e-6

// ProbTriple is a Home/Draw/Away probability distribution.
type ProbTriple struct {
	Home float64 `json:"home"`
	Draw float64 `json:"draw"`
	Away float64 `json:"away"`
}

func (p ProbTriple) Sum() float64 {
	return p.Home + p.Draw + p.Away
}

// Normalize rescales the triple to sum to 1. A degenerate input
// (zero or NaN mass) collapses to the uniform distribution.
func (p ProbTriple) Normalize() ProbTriple {
	s := p.Sum()
	if s <= 0 || math.IsNaN(s) || math.IsInf(s, 0) {
		return Uniform()
	}
	return ProbTriple{Home: p.Home / s, Draw: p.Draw / s, Away: p.Away / s}
}

// Valid reports whether the triple is a proper distribution within
// tolerance.
func (p ProbTriple) Valid() bool {
	for _, v := range []float64{p.Home, p.Draw, p.Away} {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return false
		}
	}
	return math.Abs(p.Sum()-1) < sumTolerance
}

// Entropy is the Shannon entropy in nats.
func (p ProbTriple) Entropy() float64 {
	h := 0.0
	for _, v := range []float64{p.Home, p.Draw, p.Away} {
		if v > 0 {
			h -= v * math.Log(v)
		}
	}
	return h
}

// NormalizedEntropy scales entropy into [0,1] by the three-outcome
// maximum ln(3).
func (p ProbTriple) NormalizedEntropy() float64 {
	return p.Entropy() / math.Log(3)
}

// Max returns the largest probability and its outcome index
// (0=home, 1=draw, 2=away).
func (p ProbTriple) Max() (float64, int) {
	best, idx := p.Home, 0
	if p.Draw > best {
		best, idx = p.Draw, 1
	}
	if p.Away > best {
		best, idx = p.Away, 2
	}
	return best, idx
}

func Uniform() ProbTriple {
	return ProbTriple{Home: 1.0 / 3, Draw: 1.0 / 3, Away: 1.0 / 3}
}

// ImpliedFromOdds converts decimal odds to probabilities by inverting
// the bookmaker overround. Returns false when any odds are
// non-positive.
func ImpliedFromOdds(home, draw, away float64) (ProbTriple, bool) {
	if home <= 1 || draw <= 1 || away <= 1 {
		return ProbTriple{}, false
	}
	inv := ProbTriple{Home: 1 / home, Draw: 1 / draw, Away: 1 / away}
	return inv.Normalize(), true
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
