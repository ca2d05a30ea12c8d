package probability

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// maxGoals bounds the score grid; mass beyond 8 goals a side is
// negligible at football lambdas.
const maxGoals = 8

// Lambdas computes expected goals for both sides from team strengths
// and the league home advantage.
func Lambdas(homeAttack, homeDefense, awayAttack, awayDefense, homeAdvantage, homeBias float64) (float64, float64) {
	lambdaHome := math.Exp(math.Log(homeAttack) - math.Log(awayDefense) + homeAdvantage + homeBias)
	lambdaAway := math.Exp(math.Log(awayAttack) - math.Log(homeDefense))
	return lambdaHome, lambdaAway
}

// DixonColesTau is the low-score correction to the independent
// Poisson joint distribution.
func DixonColesTau(i, j int, lambdaHome, lambdaAway, rho float64) float64 {
	switch {
	case i == 0 && j == 0:
		return 1 - lambdaHome*lambdaAway*rho
	case i == 0 && j == 1:
		return 1 + lambdaHome*rho
	case i == 1 && j == 0:
		return 1 + lambdaAway*rho
	case i == 1 && j == 1:
		return 1 - rho
	default:
		return 1
	}
}

// OutcomeProbs sums the Dixon-Coles adjusted score grid into the
// three-way result distribution.
func OutcomeProbs(lambdaHome, lambdaAway, rho float64) ProbTriple {
	home := distuv.Poisson{Lambda: lambdaHome}
	away := distuv.Poisson{Lambda: lambdaAway}

	var p ProbTriple
	for i := 0; i <= maxGoals; i++ {
		pi := home.Prob(float64(i))
		for j := 0; j <= maxGoals; j++ {
			joint := pi * away.Prob(float64(j)) * DixonColesTau(i, j, lambdaHome, lambdaAway, rho)
			if joint < 0 {
				joint = 0
			}
			switch {
			case i > j:
				p.Home += joint
			case i == j:
				p.Draw += joint
			default:
				p.Away += joint
			}
		}
	}
	return p.Normalize()
}
