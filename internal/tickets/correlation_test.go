package tickets

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tipster-dev/jackpot-sim/internal/probability"
)

func fptr(v float64) *float64 { return &v }
func tptr(t time.Time) *time.Time {
	return &t
}

var saturday = time.Date(2026, 8, 22, 15, 0, 0, 0, time.UTC)

// twinFixtures are near-identical Premier League fixtures kicking off
// together: the canonical highly correlated pair.
func twinFixtures() []FixtureInput {
	sets := map[string]probability.ProbTriple{
		probability.SetA: {Home: 0.46, Draw: 0.28, Away: 0.26},
	}
	return []FixtureInput{
		{
			Order: 1, LeagueCode: "E0", KickoffTS: tptr(saturday),
			OddsHome: 2.10, OddsDraw: 3.30, OddsAway: 3.60,
			Sets: sets, LambdaHome: 1.4, LambdaAway: 1.1, DrawSignal: 0.55,
		},
		{
			Order: 2, LeagueCode: "E0", KickoffTS: tptr(saturday.Add(30 * time.Minute)),
			OddsHome: 2.05, OddsDraw: 3.40, OddsAway: 3.70,
			Sets: sets, LambdaHome: 1.5, LambdaAway: 1.0, DrawSignal: 0.60,
		},
	}
}

func TestBuildCorrelationMatrix(t *testing.T) {
	fixtures := twinFixtures()
	fixtures = append(fixtures, FixtureInput{
		Order: 3, LeagueCode: "D1", KickoffTS: tptr(saturday.Add(26 * time.Hour)),
		OddsHome: 1.30, OddsDraw: 5.50, OddsAway: 9.00,
		Sets: map[string]probability.ProbTriple{
			probability.SetA: {Home: 0.74, Draw: 0.16, Away: 0.10},
		},
		LambdaHome: 2.6, LambdaAway: 0.7, DrawSignal: 0.30,
	})

	m := BuildCorrelationMatrix(fixtures)
	require.Len(t, m, 3)
	for i := range m {
		assert.Equal(t, 1.0, m[i][i], "diagonal is identity")
		for j := range m[i] {
			assert.Equal(t, m[i][j], m[j][i], "matrix symmetric")
			assert.GreaterOrEqual(t, m[i][j], 0.0)
			assert.LessOrEqual(t, m[i][j], 1.0)
		}
	}

	// The twins cross the breaker threshold, the outsider does not.
	assert.Greater(t, m[0][1], breakerThreshold)
	assert.Less(t, m[0][2], breakerThreshold)
	assert.Less(t, m[1][2], breakerThreshold)
}

func TestPairCorrelationLeagueOverride(t *testing.T) {
	// Drop the kickoff component so neither score saturates at 1.
	boosted := twinFixtures()
	boosted[0].KickoffTS, boosted[1].KickoffTS = nil, nil
	base := pairCorrelation(&boosted[0], &boosted[1])

	// The same pair in an unlisted league loses the boosted weights.
	plain := twinFixtures()
	plain[0].KickoffTS, plain[1].KickoffTS = nil, nil
	plain[0].LeagueCode, plain[1].LeagueCode = "SP1", "SP1"
	assert.InDelta(t, 0.90, base, 1e-9)
	assert.InDelta(t, 0.80, pairCorrelation(&plain[0], &plain[1]), 1e-9)
}

func TestPairCorrelationComponents(t *testing.T) {
	// An unlisted league keeps the default weights, so component drops
	// are exact.
	twins := twinFixtures()
	twins[0].LeagueCode, twins[1].LeagueCode = "SP1", "SP1"
	full := pairCorrelation(&twins[0], &twins[1])
	assert.InDelta(t, 1.0, full, 1e-9)

	// Moving one kickoff outside the window drops exactly the kickoff
	// weight.
	moved := twinFixtures()
	moved[0].LeagueCode, moved[1].LeagueCode = "SP1", "SP1"
	moved[1].KickoffTS = tptr(saturday.Add(4 * time.Hour))
	assert.InDelta(t, 0.20, full-pairCorrelation(&moved[0], &moved[1]), 1e-9)

	// Different leagues lose the same-league term.
	cross := twinFixtures()
	cross[0].LeagueCode, cross[1].LeagueCode = "SP1", "I1"
	assert.InDelta(t, 0.25, full-pairCorrelation(&cross[0], &cross[1]), 1e-9)

	// Divergent draw signals drop the draw-regime term.
	regime := twinFixtures()
	regime[0].LeagueCode, regime[1].LeagueCode = "SP1", "SP1"
	regime[1].DrawSignal = 0.20
	assert.InDelta(t, 0.20, full-pairCorrelation(&regime[0], &regime[1]), 1e-9)
}
