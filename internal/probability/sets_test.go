package probability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tipster-dev/jackpot-sim/internal/apperrors"
)

func TestValidateSetKeys(t *testing.T) {
	assert.NoError(t, ValidateSetKeys(nil))
	assert.NoError(t, ValidateSetKeys([]string{"A", "D", "G"}))

	err := ValidateSetKeys([]string{"A", "H"})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInputValidation, apperrors.CodeOf(err))

	err = ValidateSetKeys([]string{"Z"})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInputValidation, apperrors.CodeOf(err))
}

func TestComputeSetVariants(t *testing.T) {
	market := ProbTriple{Home: 0.40, Draw: 0.28, Away: 0.32}
	in := setInputs{
		model:      ProbTriple{Home: 0.55, Draw: 0.22, Away: 0.23},
		market:     &market,
		alphaModel: 0.5,
	}

	sets := map[string]ProbTriple{}
	for _, key := range ComputableSets {
		p := computeSet(key, in)
		require.True(t, p.Valid(), "set %s must be a proper distribution", key)
		sets[key] = p
	}

	// B boosts the draw relative to A.
	assert.Greater(t, sets[SetB].Draw, sets[SetA].Draw)

	// C leans harder on the market than A, so it sits closer to the
	// market's home probability.
	assert.LessOrEqual(t, sets[SetC].Home, sets[SetA].Home+1e-9)

	// D softens C: higher entropy.
	assert.Greater(t, sets[SetD].NormalizedEntropy(), sets[SetC].NormalizedEntropy())

	// E tilts mass toward the underdog side.
	assert.Less(t, sets[SetE].Home, sets[SetC].Home)
	assert.Greater(t, sets[SetE].Away, sets[SetC].Away)

	// G compresses home/away relative to C.
	assert.Less(t, sets[SetG].Home-sets[SetG].Away, sets[SetC].Home-sets[SetC].Away)
}

func TestComputeSetWithoutMarket(t *testing.T) {
	in := setInputs{model: ProbTriple{Home: 0.50, Draw: 0.27, Away: 0.23}, alphaModel: 0.5}
	for _, key := range ComputableSets {
		p := computeSet(key, in)
		assert.True(t, p.Valid(), "set %s", key)
	}
	// With no market the A variant is the raw model.
	assert.InDelta(t, 0.50, computeSet(SetA, in).Home, 1e-9)
}

func TestCapFavorite(t *testing.T) {
	p := capFavorite(ProbTriple{Home: 0.75, Draw: 0.15, Away: 0.10}, 0.60)
	assert.True(t, p.Valid())
	assert.InDelta(t, 0.60, p.Home, 1e-9)
	// Excess splits proportionally across the other outcomes.
	assert.InDelta(t, 1.5, p.Draw/p.Away, 1e-9)

	// Below the cap nothing changes.
	same := capFavorite(ProbTriple{Home: 0.55, Draw: 0.25, Away: 0.20}, 0.60)
	assert.InDelta(t, 0.55, same.Home, 1e-9)
}

func TestComputeSetDegenerateCollapsesToUniform(t *testing.T) {
	in := setInputs{model: ProbTriple{}}
	p := computeSet(SetA, in)
	assert.Equal(t, Uniform(), p)
}
