package tickets

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tipster-dev/jackpot-sim/internal/apperrors"
	"github.com/tipster-dev/jackpot-sim/internal/probability"
)

func testGenerator() *Generator {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return NewGenerator(l)
}

// jackpotFixtures is a 13-leg card with distinct leagues and staggered
// kickoffs, so no pair crosses the correlation breaker on its own. Leg
// 10 carries a repriced market that trips the late-shock detector.
func jackpotFixtures() []FixtureInput {
	type leg struct {
		league     string
		home, draw float64
		oh, od, oa float64
		lh, la     float64
		sig        float64
	}
	legs := []leg{
		{"E0", 0.72, 0.17, 1.35, 5.20, 8.50, 2.1, 0.8, 0.20},
		{"D1", 0.55, 0.25, 1.80, 3.50, 4.40, 1.6, 1.0, 0.35},
		{"SP1", 0.44, 0.28, 2.25, 3.30, 3.20, 1.3, 1.1, 0.45},
		{"I1", 0.38, 0.31, 2.60, 3.20, 3.10, 1.1, 1.0, 0.60},
		{"F1", 0.30, 0.28, 3.30, 3.30, 2.40, 1.0, 1.4, 0.40},
		{"E1", 0.68, 0.19, 1.45, 4.80, 7.50, 2.0, 0.9, 0.25},
		{"N1", 0.25, 0.27, 3.90, 3.40, 2.05, 0.9, 1.6, 0.35},
		{"P1", 0.50, 0.27, 2.00, 3.40, 3.90, 1.5, 1.0, 0.40},
		{"T1", 0.35, 0.30, 2.90, 3.20, 2.90, 1.1, 1.1, 0.55},
		{"B1", 0.60, 0.23, 1.65, 3.90, 5.50, 1.8, 0.9, 0.30},
		{"G1", 0.42, 0.30, 2.40, 3.20, 3.40, 1.2, 1.0, 0.50},
		{"SC0", 0.20, 0.26, 4.50, 3.50, 1.85, 0.8, 1.7, 0.30},
		{"E2", 0.47, 0.29, 2.10, 3.30, 3.80, 1.4, 1.0, 0.45},
	}

	fixtures := make([]FixtureInput, len(legs))
	for i, l := range legs {
		fixtures[i] = FixtureInput{
			Order:      i + 1,
			LeagueCode: l.league,
			KickoffTS:  tptr(saturday.Add(time.Duration(i) * 2 * time.Hour)),
			OddsHome:   l.oh, OddsDraw: l.od, OddsAway: l.oa,
			Sets: map[string]probability.ProbTriple{
				probability.SetA: {Home: l.home, Draw: l.draw, Away: 1 - l.home - l.draw},
			},
			LambdaHome: l.lh, LambdaAway: l.la, DrawSignal: l.sig,
		}
	}
	// Leg 10 opened much closer before the market piled onto the home side.
	fixtures[9].OpenHome, fixtures[9].OpenDraw, fixtures[9].OpenAway = fptr(2.40), fptr(3.20), fptr(3.10)
	return fixtures
}

func TestResolveRoles(t *testing.T) {
	roles, err := ResolveRoles(nil)
	require.NoError(t, err)
	require.Len(t, roles, len(RoleOrder))
	for i, rc := range roles {
		assert.Equal(t, RoleOrder[i], rc.Role)
	}

	roles, err = ResolveRoles([]string{"B", "D"})
	require.NoError(t, err)
	require.Len(t, roles, 2)
	assert.Equal(t, "B", roles[0].Role)
	assert.Equal(t, "D", roles[1].Role)

	_, err = ResolveRoles([]string{"Z"})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInputValidation, apperrors.CodeOf(err))
}

func TestGenerateRejectsEmptyInput(t *testing.T) {
	_, err := testGenerator().Generate(nil, nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInputValidation, apperrors.CodeOf(err))

	_, err = testGenerator().Generate(jackpotFixtures(), []string{"Q"})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInputValidation, apperrors.CodeOf(err))
}

func TestGenerateFullBundle(t *testing.T) {
	fixtures := jackpotFixtures()
	bundle, err := testGenerator().Generate(fixtures, nil)
	require.NoError(t, err)
	require.Len(t, bundle.Tickets, len(RoleOrder))

	for i, ticket := range bundle.Tickets {
		assert.Equal(t, RoleOrder[i], ticket.Role)
		require.Len(t, ticket.Picks, len(fixtures))
		for _, pick := range ticket.Picks {
			assert.Contains(t, []string{PickHome, PickDraw, PickAway}, pick)
		}
		assert.Equal(t, countDraws(ticket.Picks), ticket.DrawCount)
		assert.GreaterOrEqual(t, ticket.Entropy, 0.0)
	}

	// The draw-heavy role keeps its draw budget without relaxing.
	ticketB := bundle.Tickets[1]
	assert.GreaterOrEqual(t, ticketB.DrawCount, Roles["B"].MinDraws)
	assert.LessOrEqual(t, ticketB.DrawCount, Roles["B"].MaxDraws)
	assert.Empty(t, ticketB.RelaxedConstraints)

	// Only leg 10 has a repriced opening line.
	assert.Equal(t, []int{10}, bundle.Diagnostics.ShockedFixtures)

	// The contrarian roles hedge the shocked leg away from the home side.
	for _, ticket := range bundle.Tickets {
		if ticket.Role == "F" || ticket.Role == "G" {
			assert.NotEqual(t, PickHome, ticket.Picks[9], "role %s kept the shocked favorite", ticket.Role)
		}
	}

	// Agreement matrix: square, symmetric, full agreement on the diagonal.
	require.Len(t, bundle.Diagnostics.Agreement, len(RoleOrder))
	for i, row := range bundle.Diagnostics.Agreement {
		require.Len(t, row, len(RoleOrder))
		assert.Equal(t, len(fixtures), row[i])
		for j := range row {
			assert.Equal(t, row[j], bundle.Diagnostics.Agreement[j][i])
		}
	}

	// Every strong favorite is faded by at least one ticket.
	assert.True(t, bundle.Diagnostics.FavoriteHedgeOK)
	for i := range fixtures {
		outcome, ok := fixtures[i].favoriteOutcome()
		if !ok {
			continue
		}
		hedged := false
		for _, ticket := range bundle.Tickets {
			if ticket.Picks[i] != outcome {
				hedged = true
				break
			}
		}
		assert.True(t, hedged, "favorite on leg %d never faded", fixtures[i].Order)
	}

	// Relaxations, when present, follow the fixed order.
	for role, relaxed := range bundle.Diagnostics.Relaxations {
		assert.Contains(t, Roles, role)
		last := -1
		for _, name := range relaxed {
			pos := -1
			for k, ordered := range relaxationOrder {
				if ordered == name {
					pos = k
					break
				}
			}
			require.NotEqual(t, -1, pos, "unknown relaxation %q", name)
			assert.Greater(t, pos, last)
			last = pos
		}
	}
}

func TestGenerateSubsetOfRoles(t *testing.T) {
	bundle, err := testGenerator().Generate(jackpotFixtures(), []string{"B", "D"})
	require.NoError(t, err)
	require.Len(t, bundle.Tickets, 2)
	assert.Equal(t, "B", bundle.Tickets[0].Role)
	assert.Equal(t, "D", bundle.Tickets[1].Role)
}

func TestGenerateBreaksTwinCorrelation(t *testing.T) {
	// Two near-identical fixtures over the breaker threshold: the pair
	// cannot keep the same pick.
	bundle, err := testGenerator().Generate(twinFixtures(), []string{"A"})
	require.NoError(t, err)
	require.Len(t, bundle.Tickets, 1)

	ticket := bundle.Tickets[0]
	assert.Equal(t, 1, ticket.CorrelationBreaks)
	assert.NotEqual(t, ticket.Picks[0], ticket.Picks[1])
	require.Len(t, bundle.Diagnostics.CorrelationBreaks, 1)

	// Two legs cannot satisfy the role's draw floor after the break.
	assert.Equal(t, []string{"draw_min"}, ticket.RelaxedConstraints)
}

func TestEnforceFavoriteHedge(t *testing.T) {
	fixtures := []FixtureInput{
		{Order: 1, Sets: map[string]probability.ProbTriple{
			probability.SetA: {Home: 0.70, Draw: 0.18, Away: 0.12},
		}},
		{Order: 2, Sets: map[string]probability.ProbTriple{
			probability.SetA: {Home: 0.40, Draw: 0.30, Away: 0.30},
		}},
	}
	g := testGenerator()

	// Unanimous on the favorite: the last ticket flips to second best.
	bundle := &Bundle{Tickets: []Ticket{
		{Role: "A", Picks: []string{PickHome, PickHome}},
		{Role: "G", Picks: []string{PickHome, PickDraw}},
	}}
	g.enforceFavoriteHedge(fixtures, bundle)
	assert.True(t, bundle.Diagnostics.FavoriteHedgeOK)
	assert.Equal(t, []int{1}, bundle.Diagnostics.FavoriteHedgeFixes)
	assert.Equal(t, PickDraw, bundle.Tickets[1].Picks[0])
	assert.Equal(t, 2, bundle.Tickets[1].DrawCount)
	// The non-favorite leg is untouched.
	assert.Equal(t, PickHome, bundle.Tickets[0].Picks[1])

	// Already hedged: nothing to fix.
	bundle = &Bundle{Tickets: []Ticket{
		{Role: "A", Picks: []string{PickHome, PickHome}},
		{Role: "G", Picks: []string{PickAway, PickDraw}},
	}}
	g.enforceFavoriteHedge(fixtures, bundle)
	assert.True(t, bundle.Diagnostics.FavoriteHedgeOK)
	assert.Empty(t, bundle.Diagnostics.FavoriteHedgeFixes)
	assert.Equal(t, PickAway, bundle.Tickets[1].Picks[0])
}

func TestSecondBest(t *testing.T) {
	f := FixtureInput{Sets: map[string]probability.ProbTriple{
		probability.SetA: {Home: 0.50, Draw: 0.30, Away: 0.20},
	}}
	assert.Equal(t, PickDraw, secondBest(&f))

	f.Sets[probability.SetA] = probability.ProbTriple{Home: 0.50, Draw: 0.20, Away: 0.30}
	assert.Equal(t, PickAway, secondBest(&f))

	// Draw-favored fixture hedges to the stronger side.
	f.Sets[probability.SetA] = probability.ProbTriple{Home: 0.30, Draw: 0.50, Away: 0.20}
	assert.Equal(t, PickHome, secondBest(&f))
}

func TestTicketEntropy(t *testing.T) {
	fixtures := []FixtureInput{
		{Sets: map[string]probability.ProbTriple{
			probability.SetA: {Home: 0.60, Draw: 0.25, Away: 0.15},
		}},
		{Sets: map[string]probability.ProbTriple{
			probability.SetA: {Home: 0.50, Draw: 0.30, Away: 0.20},
		}},
	}
	// Mean selected probability 0.45.
	h := ticketEntropy(fixtures, []string{PickHome, PickDraw})
	assert.InDelta(t, 0.688139, h, 1e-6)

	assert.Zero(t, ticketEntropy(nil, nil))

	// Degenerate certainty carries no entropy.
	sure := []FixtureInput{{Sets: map[string]probability.ProbTriple{
		probability.SetA: {Home: 1, Draw: 0, Away: 0},
	}}}
	assert.Zero(t, ticketEntropy(sure, []string{PickHome}))
}
