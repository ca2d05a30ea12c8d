package training

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tipster-dev/jackpot-sim/internal/apperrors"
	"github.com/tipster-dev/jackpot-sim/internal/models"
)

// syntheticSeason builds a deterministic league: A is strong, D is
// weak, B and C sit in between. Ten double round-robins give 120
// matches.
func syntheticSeason() []trainingMatch {
	teams := []string{"A", "B", "C", "D"}
	// scores[home][away] = full-time score for that pairing.
	scores := map[string]map[string][2]int{
		"A": {"B": {2, 1}, "C": {3, 1}, "D": {4, 0}},
		"B": {"A": {1, 2}, "C": {2, 1}, "D": {2, 0}},
		"C": {"A": {0, 2}, "B": {1, 1}, "D": {2, 1}},
		"D": {"A": {0, 3}, "B": {0, 1}, "C": {1, 1}},
	}

	var matches []trainingMatch
	for round := 0; round < 10; round++ {
		for _, home := range teams {
			for _, away := range teams {
				if home == away {
					continue
				}
				s := scores[home][away]
				m := trainingMatch{
					HomeID:        home,
					AwayID:        away,
					HomeGoals:     s[0],
					AwayGoals:     s[1],
					Weight:        1,
					HomeAdvantage: 0.3,
				}
				m.Result = deriveOutcome(s[0], s[1])
				matches = append(matches, m)
			}
		}
	}
	return matches
}

func deriveOutcome(hg, ag int) models.Outcome {
	switch {
	case hg > ag:
		return models.OutcomeHome
	case hg < ag:
		return models.OutcomeAway
	default:
		return models.OutcomeDraw
	}
}

func TestFitPoisson(t *testing.T) {
	matches := syntheticSeason()
	weights, iterations, err := fitPoisson(context.Background(), matches)
	require.NoError(t, err)
	require.NotNil(t, weights)
	assert.Greater(t, iterations, 0)
	assert.LessOrEqual(t, iterations, ipfMaxIterations)

	require.Len(t, weights.Teams, 4)
	// Normalization: multipliers average to one.
	var attackSum, defenseSum float64
	for _, s := range weights.Teams {
		attackSum += s.Attack
		defenseSum += s.Defense
	}
	assert.InDelta(t, 1.0, attackSum/4, 1e-6)
	assert.InDelta(t, 1.0, defenseSum/4, 1e-6)

	// Ordering: the dominant side out-attacks the whipping boy.
	assert.Greater(t, weights.Teams["A"].Attack, weights.Teams["D"].Attack)
	assert.Greater(t, weights.Teams["A"].Attack, weights.Teams["B"].Attack)

	// Rho stays inside the scanned band.
	assert.GreaterOrEqual(t, weights.Rho, -0.3-1e-9)
	assert.LessOrEqual(t, weights.Rho, 0.1+1e-9)
	assert.InDelta(t, 0.3, weights.HomeAdvantage, 1e-9)
	assert.Equal(t, defaultXi, weights.Xi)
}

func TestFitPoissonInsufficientData(t *testing.T) {
	matches := syntheticSeason()[:50]
	_, _, err := fitPoisson(context.Background(), matches)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInsufficientTrainingSamples, apperrors.CodeOf(err))
}

func TestFitPoissonHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := fitPoisson(ctx, syntheticSeason())
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeCancelled, apperrors.CodeOf(err))
}

func TestFitTemperature(t *testing.T) {
	matches := syntheticSeason()
	weights, _, err := fitPoisson(context.Background(), matches)
	require.NoError(t, err)

	temp := fitTemperature(matches[:24], weights)
	assert.GreaterOrEqual(t, temp, 0.8)
	assert.LessOrEqual(t, temp, 2.0+1e-9)

	// No holdout means no evidence to rescale on.
	assert.Equal(t, 1.0, fitTemperature(nil, weights))
}

func TestDecayWeight(t *testing.T) {
	now := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)

	assert.InDelta(t, 1.0, decayWeight(now, now, defaultXi), 1e-9)
	// One year back decays by exp(-xi).
	yearAgo := now.AddDate(-1, 0, 0)
	assert.InDelta(t, 0.4966, decayWeight(yearAgo, now, defaultXi), 1e-3)
	// Older matches always weigh less.
	assert.Less(t, decayWeight(now.AddDate(-3, 0, 0), now, defaultXi), decayWeight(yearAgo, now, defaultXi))
	// Future-dated rows clamp to full weight.
	assert.InDelta(t, 1.0, decayWeight(now.AddDate(0, 0, 7), now, defaultXi), 1e-9)
}
