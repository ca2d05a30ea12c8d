package probability

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLambdas(t *testing.T) {
	// Equal strengths: home advantage alone separates the sides.
	lh, la := Lambdas(1.0, 1.0, 1.0, 1.0, 0.35, 0)
	assert.InDelta(t, 1.419, lh, 1e-3)
	assert.InDelta(t, 1.0, la, 1e-9)

	// Stronger home attack raises lambda home multiplicatively.
	lh2, _ := Lambdas(1.3, 1.0, 1.0, 1.0, 0.35, 0)
	assert.InDelta(t, 1.3, lh2/lh, 1e-9)

	// Home bias stacks on the league advantage.
	lh3, _ := Lambdas(1.0, 1.0, 1.0, 1.0, 0.35, 0.1)
	assert.Greater(t, lh3, lh)
}

func TestDixonColesTau(t *testing.T) {
	rho := -0.1
	// Negative rho lifts the 0-0 and 1-1 draws and trims 1-0/0-1.
	assert.Greater(t, DixonColesTau(0, 0, 1.4, 1.1, rho), 1.0)
	assert.Greater(t, DixonColesTau(1, 1, 1.4, 1.1, rho), 1.0)
	assert.Less(t, DixonColesTau(0, 1, 1.4, 1.1, rho), 1.0)
	assert.Less(t, DixonColesTau(1, 0, 1.4, 1.1, rho), 1.0)
	// Other scores are untouched.
	assert.Equal(t, 1.0, DixonColesTau(2, 1, 1.4, 1.1, rho))
	assert.Equal(t, 1.0, DixonColesTau(0, 2, 1.4, 1.1, rho))
}

func TestOutcomeProbs(t *testing.T) {
	p := OutcomeProbs(1.5, 1.1, 0)
	assert.True(t, p.Valid())
	assert.Greater(t, p.Home, p.Away, "higher lambda wins more")

	// Negative rho moves mass into the draw.
	withRho := OutcomeProbs(1.5, 1.1, -0.1)
	assert.True(t, withRho.Valid())
	assert.Greater(t, withRho.Draw, p.Draw)

	// Symmetric lambdas give symmetric home/away probabilities.
	sym := OutcomeProbs(1.2, 1.2, -0.05)
	assert.InDelta(t, sym.Home, sym.Away, 1e-9)
}
