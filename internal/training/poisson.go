package training

import (
	"context"
	"math"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/tipster-dev/jackpot-sim/internal/apperrors"
	"github.com/tipster-dev/jackpot-sim/internal/models"
	"github.com/tipster-dev/jackpot-sim/internal/probability"
)

const (
	// Time-decay constant for match weighting.
	defaultXi = 0.7

	minPoissonMatches = 100
	ipfMaxIterations  = 100
	ipfTolerance      = 1e-4
)

// trainingMatch is one historical match prepared for optimization.
type trainingMatch struct {
	HomeID, AwayID  string
	HomeGoals       int
	AwayGoals       int
	Weight          float64
	HomeAdvantage   float64
	OddsHome        *float64
	OddsDraw        *float64
	OddsAway        *float64
	Result          models.Outcome
}

// fitPoisson runs the iterative-proportional-fitting loop: attack and
// defense multipliers are updated until expected and observed
// goals-for / goals-against agree per team, then normalized to mean
// one. Home advantage is fixed per league; rho is learned afterwards
// by a log-likelihood scan over the low-score cells.
func fitPoisson(ctx context.Context, matches []trainingMatch) (*models.PoissonWeights, int, error) {
	if len(matches) < minPoissonMatches {
		return nil, 0, apperrors.New(apperrors.CodeInsufficientTrainingSamples,
			"poisson training needs at least %d matches, got %d", minPoissonMatches, len(matches))
	}

	attack := map[string]float64{}
	defense := map[string]float64{}
	for _, m := range matches {
		attack[m.HomeID], attack[m.AwayID] = 1.0, 1.0
		defense[m.HomeID], defense[m.AwayID] = 1.0, 1.0
	}

	iterations := 0
	for iter := 0; iter < ipfMaxIterations; iter++ {
		// Optimization loops are pure CPU; yield between iterations so
		// cancellation is honored.
		if err := ctx.Err(); err != nil {
			return nil, iterations, apperrors.Wrap(err, apperrors.CodeCancelled, "poisson training cancelled")
		}
		iterations = iter + 1

		obsFor := map[string]float64{}
		expFor := map[string]float64{}
		obsAgainst := map[string]float64{}
		expAgainst := map[string]float64{}

		for _, m := range matches {
			lambdaHome := attack[m.HomeID] / defense[m.AwayID] * math.Exp(m.HomeAdvantage)
			lambdaAway := attack[m.AwayID] / defense[m.HomeID]

			obsFor[m.HomeID] += m.Weight * float64(m.HomeGoals)
			expFor[m.HomeID] += m.Weight * lambdaHome
			obsAgainst[m.HomeID] += m.Weight * float64(m.AwayGoals)
			expAgainst[m.HomeID] += m.Weight * lambdaAway

			obsFor[m.AwayID] += m.Weight * float64(m.AwayGoals)
			expFor[m.AwayID] += m.Weight * lambdaAway
			obsAgainst[m.AwayID] += m.Weight * float64(m.HomeGoals)
			expAgainst[m.AwayID] += m.Weight * lambdaHome
		}

		maxDelta := 0.0
		for team := range attack {
			if expFor[team] > 0 && obsFor[team] > 0 {
				next := attack[team] * obsFor[team] / expFor[team]
				if d := math.Abs(next - attack[team]); d > maxDelta {
					maxDelta = d
				}
				attack[team] = next
			}
			if expAgainst[team] > 0 && obsAgainst[team] > 0 {
				next := defense[team] * expAgainst[team] / obsAgainst[team]
				if d := math.Abs(next - defense[team]); d > maxDelta {
					maxDelta = d
				}
				defense[team] = next
			}
		}

		normalizeMean(attack)
		normalizeMean(defense)

		if maxDelta < ipfTolerance {
			break
		}
	}

	rho := scanRho(matches, attack, defense)

	weights := &models.PoissonWeights{
		Rho:   rho,
		Xi:    defaultXi,
		Teams: make(map[string]models.TeamStrength, len(attack)),
	}
	// Store the dominant home advantage for diagnostics; per-league
	// values are read from the league rows at inference time.
	weights.HomeAdvantage = meanHomeAdvantage(matches)
	for team := range attack {
		weights.Teams[team] = models.TeamStrength{
			Attack:  attack[team],
			Defense: defense[team],
		}
	}
	return weights, iterations, nil
}

func normalizeMean(ratings map[string]float64) {
	if len(ratings) == 0 {
		return
	}
	sum := 0.0
	for _, v := range ratings {
		sum += v
	}
	mean := sum / float64(len(ratings))
	if mean <= 0 {
		return
	}
	for k := range ratings {
		ratings[k] /= mean
	}
}

func meanHomeAdvantage(matches []trainingMatch) float64 {
	if len(matches) == 0 {
		return 0.35
	}
	sum := 0.0
	for _, m := range matches {
		sum += m.HomeAdvantage
	}
	return sum / float64(len(matches))
}

// scanRho maximizes the weighted Dixon-Coles log-likelihood over the
// low-score cells.
func scanRho(matches []trainingMatch, attack, defense map[string]float64) float64 {
	bestRho, bestLL := 0.0, math.Inf(-1)
	for rho := -0.3; rho <= 0.1+1e-9; rho += 0.01 {
		ll := 0.0
		for _, m := range matches {
			if m.HomeGoals > 1 || m.AwayGoals > 1 {
				continue
			}
			lambdaHome := attack[m.HomeID] / defense[m.AwayID] * math.Exp(m.HomeAdvantage)
			lambdaAway := attack[m.AwayID] / defense[m.HomeID]
			tau := probability.DixonColesTau(m.HomeGoals, m.AwayGoals, lambdaHome, lambdaAway, rho)
			if tau <= 0 {
				ll = math.Inf(-1)
				break
			}
			ph := distuv.Poisson{Lambda: lambdaHome}.Prob(float64(m.HomeGoals))
			pa := distuv.Poisson{Lambda: lambdaAway}.Prob(float64(m.AwayGoals))
			if ph*pa*tau > 0 {
				ll += m.Weight * math.Log(ph*pa*tau)
			}
		}
		if ll > bestLL {
			bestLL, bestRho = ll, rho
		}
	}
	return bestRho
}

// fitTemperature grid-searches T in [0.8, 2.0] minimizing log-loss of
// the temperature-scaled base probabilities on the holdout slice.
func fitTemperature(holdout []trainingMatch, weights *models.PoissonWeights) float64 {
	if len(holdout) == 0 {
		return 1.0
	}
	bestT, bestLoss := 1.0, math.Inf(1)
	for t := 0.8; t <= 2.0+1e-9; t += 0.05 {
		loss := 0.0
		n := 0
		for _, m := range holdout {
			p, ok := baseProbs(m, weights)
			if !ok {
				continue
			}
			p = probability.ApplyTemperature(p, t)
			loss += outcomeLogLoss(p, m.Result)
			n++
		}
		if n == 0 {
			return 1.0
		}
		loss /= float64(n)
		if loss < bestLoss {
			bestLoss, bestT = loss, t
		}
	}
	return bestT
}

func baseProbs(m trainingMatch, weights *models.PoissonWeights) (probability.ProbTriple, bool) {
	home, okH := weights.Teams[m.HomeID]
	away, okA := weights.Teams[m.AwayID]
	if !okH || !okA {
		return probability.ProbTriple{}, false
	}
	lambdaHome := home.Attack / away.Defense * math.Exp(m.HomeAdvantage)
	lambdaAway := away.Attack / home.Defense
	return probability.OutcomeProbs(lambdaHome, lambdaAway, weights.Rho), true
}

func outcomeLogLoss(p probability.ProbTriple, result models.Outcome) float64 {
	const eps = 1e-12
	var v float64
	switch result {
	case models.OutcomeHome:
		v = p.Home
	case models.OutcomeDraw:
		v = p.Draw
	default:
		v = p.Away
	}
	return -math.Log(math.Max(v, eps))
}

// decayWeight computes exp(-xi * daysAgo / 365).
func decayWeight(matchDate, now time.Time, xi float64) float64 {
	daysAgo := now.Sub(matchDate).Hours() / 24
	if daysAgo < 0 {
		daysAgo = 0
	}
	return math.Exp(-xi * daysAgo / 365)
}
