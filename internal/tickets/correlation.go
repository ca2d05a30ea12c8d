package tickets

import (
	"math"
	"time"
)

// CorrelationWeights are the indicator weights summed into one pair
// score.
type CorrelationWeights struct {
	SameLeague  float64
	Kickoff     float64
	OddsShape   float64
	DrawRegime  float64
	LambdaTotal float64
}

// DefaultCorrelationWeights per the portfolio design.
var DefaultCorrelationWeights = CorrelationWeights{
	SameLeague:  0.25,
	Kickoff:     0.20,
	OddsShape:   0.20,
	DrawRegime:  0.20,
	LambdaTotal: 0.15,
}

// leagueWeightOverrides multiply selected weights for leagues whose
// fixtures move together more than the default assumes.
var leagueWeightOverrides = map[string]CorrelationWeights{
	// Premier League: odds shape and draw regime matter more.
	"E0": {SameLeague: 1.0, Kickoff: 1.0, OddsShape: 1.25, DrawRegime: 1.25, LambdaTotal: 1.0},
	// Serie A: draw-prone league, draw regime dominates.
	"I1": {SameLeague: 1.0, Kickoff: 1.0, OddsShape: 1.0, DrawRegime: 1.3, LambdaTotal: 1.0},
}

const (
	kickoffWindow    = 90 * time.Minute
	oddsShapeBand    = 0.25
	drawRegimeBand   = 0.15
	lambdaTotalBand  = 0.5
	breakerThreshold = 0.7
)

// BuildCorrelationMatrix scores every fixture pair into [0,1];
// the diagonal is 1.
func BuildCorrelationMatrix(fixtures []FixtureInput) [][]float64 {
	n := len(fixtures)
	matrix := make([][]float64, n)
	for i := range matrix {
		matrix[i] = make([]float64, n)
		matrix[i][i] = 1
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			c := pairCorrelation(&fixtures[i], &fixtures[j])
			matrix[i][j] = c
			matrix[j][i] = c
		}
	}
	return matrix
}

func pairCorrelation(a, b *FixtureInput) float64 {
	w := DefaultCorrelationWeights
	if a.LeagueCode != "" && a.LeagueCode == b.LeagueCode {
		if mult, ok := leagueWeightOverrides[a.LeagueCode]; ok {
			w.SameLeague *= mult.SameLeague
			w.Kickoff *= mult.Kickoff
			w.OddsShape *= mult.OddsShape
			w.DrawRegime *= mult.DrawRegime
			w.LambdaTotal *= mult.LambdaTotal
		}
	}

	c := 0.0
	if a.LeagueCode != "" && a.LeagueCode == b.LeagueCode {
		c += w.SameLeague
	}
	if a.KickoffTS != nil && b.KickoffTS != nil {
		diff := a.KickoffTS.Sub(*b.KickoffTS)
		if diff < 0 {
			diff = -diff
		}
		if diff <= kickoffWindow {
			c += w.Kickoff
		}
	}
	c += oddsShapeScore(a, b, w.OddsShape)
	if math.Abs(a.DrawSignal-b.DrawSignal) < drawRegimeBand {
		c += w.DrawRegime
	}
	if math.Abs((a.LambdaHome+a.LambdaAway)-(b.LambdaHome+b.LambdaAway)) < lambdaTotalBand {
		c += w.LambdaTotal
	}

	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// oddsShapeScore splits the odds-shape weight between the home-away
// spread similarity and the draw-gap similarity.
func oddsShapeScore(a, b *FixtureInput, weight float64) float64 {
	score := 0.0

	spreadA := a.OddsHome - a.OddsAway
	spreadB := b.OddsHome - b.OddsAway
	if math.Abs(spreadA-spreadB) < oddsShapeBand {
		score += weight / 2
	}

	gapA := a.OddsDraw - math.Min(a.OddsHome, a.OddsAway)
	gapB := b.OddsDraw - math.Min(b.OddsHome, b.OddsAway)
	if math.Abs(gapA-gapB) < oddsShapeBand {
		score += weight / 2
	}
	return score
}
