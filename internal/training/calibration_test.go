package training

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tipster-dev/jackpot-sim/internal/apperrors"
	"github.com/tipster-dev/jackpot-sim/internal/models"
)

func fptr(v float64) *float64 { return &v }

// withOdds attaches a near-clairvoyant market: the actual result is
// always priced extremely short.
func withOdds(matches []trainingMatch) []trainingMatch {
	out := make([]trainingMatch, len(matches))
	copy(out, matches)
	for i := range out {
		switch out[i].Result {
		case models.OutcomeHome:
			out[i].OddsHome, out[i].OddsDraw, out[i].OddsAway = fptr(1.05), fptr(20.0), fptr(40.0)
		case models.OutcomeAway:
			out[i].OddsHome, out[i].OddsDraw, out[i].OddsAway = fptr(40.0), fptr(20.0), fptr(1.05)
		default:
			out[i].OddsHome, out[i].OddsDraw, out[i].OddsAway = fptr(12.0), fptr(1.05), fptr(12.0)
		}
	}
	return out
}

func TestFitBlendingPrefersInformativeMarket(t *testing.T) {
	matches := syntheticSeason()
	weights, _, err := fitPoisson(context.Background(), matches)
	require.NoError(t, err)

	// The synthetic market nails every result, so the fit leans hard
	// away from the model.
	blend, samples, err := fitBlending(withOdds(matches), weights)
	require.NoError(t, err)
	assert.Equal(t, len(matches), samples)
	assert.LessOrEqual(t, blend.Alpha, 0.25)
	assert.GreaterOrEqual(t, blend.Alpha, 0.0)
}

func TestFitBlendingInsufficientOddsRows(t *testing.T) {
	matches := syntheticSeason()
	weights, _, err := fitPoisson(context.Background(), matches)
	require.NoError(t, err)

	// Odds on too few rows: the sample filter leaves under the minimum.
	sparse := withOdds(matches)[:minBlendingMatches-1]
	_, _, err = fitBlending(sparse, weights)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInsufficientTrainingSamples, apperrors.CodeOf(err))

	// No odds at all.
	_, _, err = fitBlending(matches, weights)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInsufficientTrainingSamples, apperrors.CodeOf(err))
}

func TestFitCalibration(t *testing.T) {
	// Two seasons of synthetic matches clear the 200-sample bar.
	matches := append(syntheticSeason(), syntheticSeason()...)
	weights, _, err := fitPoisson(context.Background(), matches)
	require.NoError(t, err)

	cal, samples, err := fitCalibration(withOdds(matches), weights, 0.5)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, samples, minCalibrationMatches)
	require.NotNil(t, cal.Home)
	require.NotNil(t, cal.Draw)
	require.NotNil(t, cal.Away)
	assert.Nil(t, cal.DrawOnly)

	for _, curve := range []*models.CalibrationCurve{cal.Home, cal.Draw, cal.Away} {
		for i := 1; i < len(curve.Y); i++ {
			assert.GreaterOrEqual(t, curve.Y[i], curve.Y[i-1])
		}
	}
}

func TestFitCalibrationInsufficientData(t *testing.T) {
	matches := syntheticSeason()
	weights, _, err := fitPoisson(context.Background(), matches)
	require.NoError(t, err)

	_, _, err = fitCalibration(matches[:150], weights, 0.5)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInsufficientTrainingSamples, apperrors.CodeOf(err))
}

func TestFitDrawCalibration(t *testing.T) {
	pairs := make([]models.ValidationResult, MinDrawCalibrationSamples)
	for i := range pairs {
		prob := 0.15 + 0.2*float64(i)/float64(len(pairs))
		pairs[i].SetKey = "A"
		pairs[i].ProbDraw = prob
		// Draws happen more often when the model priced them higher.
		if i%4 == 0 || (prob > 0.28 && i%3 == 0) {
			pairs[i].ActualResult = models.OutcomeDraw
		} else {
			pairs[i].ActualResult = models.OutcomeHome
		}
	}

	cal, err := fitDrawCalibration(pairs)
	require.NoError(t, err)
	require.NotNil(t, cal.DrawOnly)
	assert.Nil(t, cal.Home)
	for i := 1; i < len(cal.DrawOnly.Y); i++ {
		assert.GreaterOrEqual(t, cal.DrawOnly.Y[i], cal.DrawOnly.Y[i-1])
	}

	_, err = fitDrawCalibration(pairs[:MinDrawCalibrationSamples-1])
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInsufficientTrainingSamples, apperrors.CodeOf(err))
}
