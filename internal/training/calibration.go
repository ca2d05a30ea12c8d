package training

import (
	"github.com/tipster-dev/jackpot-sim/internal/apperrors"
	"github.com/tipster-dev/jackpot-sim/internal/models"
	"github.com/tipster-dev/jackpot-sim/internal/probability"
)

const (
	minCalibrationMatches = 200
	// Draw calibration retrains only once enough validation pairs
	// have been exported.
	MinDrawCalibrationSamples = 500
)

// fitCalibration fits one isotonic curve per outcome from blended
// model probabilities against observed results.
func fitCalibration(holdout []trainingMatch, weights *models.PoissonWeights, alpha float64) (*models.CalibrationWeights, int, error) {
	var homeX, homeY, drawX, drawY, awayX, awayY, ws []float64

	for _, m := range holdout {
		model, ok := baseProbs(m, weights)
		if !ok {
			continue
		}
		p := model
		if m.OddsHome != nil && m.OddsDraw != nil && m.OddsAway != nil {
			if market, ok := probability.ImpliedFromOdds(*m.OddsHome, *m.OddsDraw, *m.OddsAway); ok {
				p = probability.ProbTriple{
					Home: alpha*model.Home + (1-alpha)*market.Home,
					Draw: alpha*model.Draw + (1-alpha)*market.Draw,
					Away: alpha*model.Away + (1-alpha)*market.Away,
				}.Normalize()
			}
		}

		homeX = append(homeX, p.Home)
		homeY = append(homeY, indicator(m.Result == models.OutcomeHome))
		drawX = append(drawX, p.Draw)
		drawY = append(drawY, indicator(m.Result == models.OutcomeDraw))
		awayX = append(awayX, p.Away)
		awayY = append(awayY, indicator(m.Result == models.OutcomeAway))
		ws = append(ws, m.Weight)
	}

	if len(homeX) < minCalibrationMatches {
		return nil, len(homeX), apperrors.New(apperrors.CodeInsufficientTrainingSamples,
			"calibration training needs at least %d matches, got %d", minCalibrationMatches, len(homeX))
	}

	cal := &models.CalibrationWeights{
		Home: FitIsotonic(homeX, homeY, ws),
		Draw: FitIsotonic(drawX, drawY, ws),
		Away: FitIsotonic(awayX, awayY, ws),
	}
	return cal, len(homeX), nil
}

// fitDrawCalibration fits the draw-only curve from exported
// validation pairs.
func fitDrawCalibration(pairs []models.ValidationResult) (*models.CalibrationWeights, error) {
	if len(pairs) < MinDrawCalibrationSamples {
		return nil, apperrors.New(apperrors.CodeInsufficientTrainingSamples,
			"draw calibration needs at least %d exported validation pairs, got %d",
			MinDrawCalibrationSamples, len(pairs))
	}
	xs := make([]float64, len(pairs))
	ys := make([]float64, len(pairs))
	for i, p := range pairs {
		xs[i] = p.ProbDraw
		ys[i] = indicator(p.ActualResult == models.OutcomeDraw)
	}
	return &models.CalibrationWeights{DrawOnly: FitIsotonic(xs, ys, nil)}, nil
}

func indicator(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
