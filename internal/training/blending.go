package training

import (
	"math"

	"github.com/tipster-dev/jackpot-sim/internal/apperrors"
	"github.com/tipster-dev/jackpot-sim/internal/models"
	"github.com/tipster-dev/jackpot-sim/internal/probability"
)

const minBlendingMatches = 50

// fitBlending grid-searches the model-vs-market mixing weight alpha
// over held-out matches that carry closing odds, minimizing log-loss
// of alpha*p_model + (1-alpha)*p_market.
func fitBlending(holdout []trainingMatch, weights *models.PoissonWeights) (*models.BlendingWeights, int, error) {
	type sample struct {
		model  probability.ProbTriple
		market probability.ProbTriple
		result models.Outcome
	}
	var samples []sample
	for _, m := range holdout {
		if m.OddsHome == nil || m.OddsDraw == nil || m.OddsAway == nil {
			continue
		}
		market, ok := probability.ImpliedFromOdds(*m.OddsHome, *m.OddsDraw, *m.OddsAway)
		if !ok {
			continue
		}
		model, ok := baseProbs(m, weights)
		if !ok {
			continue
		}
		samples = append(samples, sample{model: model, market: market, result: m.Result})
	}
	if len(samples) < minBlendingMatches {
		return nil, len(samples), apperrors.New(apperrors.CodeInsufficientTrainingSamples,
			"blending training needs at least %d odds-bearing matches, got %d", minBlendingMatches, len(samples))
	}

	bestAlpha, bestLoss := 0.5, math.Inf(1)
	for alpha := 0.0; alpha <= 1.0+1e-9; alpha += 0.05 {
		loss := 0.0
		for _, s := range samples {
			blended := probability.ProbTriple{
				Home: alpha*s.model.Home + (1-alpha)*s.market.Home,
				Draw: alpha*s.model.Draw + (1-alpha)*s.market.Draw,
				Away: alpha*s.model.Away + (1-alpha)*s.market.Away,
			}.Normalize()
			loss += outcomeLogLoss(blended, s.result)
		}
		loss /= float64(len(samples))
		if loss < bestLoss {
			bestLoss, bestAlpha = loss, alpha
		}
	}
	return &models.BlendingWeights{Alpha: bestAlpha}, len(samples), nil
}
