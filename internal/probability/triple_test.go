package probability

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   ProbTriple
		want ProbTriple
	}{
		{
			name: "already normalized",
			in:   ProbTriple{Home: 0.5, Draw: 0.3, Away: 0.2},
			want: ProbTriple{Home: 0.5, Draw: 0.3, Away: 0.2},
		},
		{
			name: "rescales unnormalized mass",
			in:   ProbTriple{Home: 1, Draw: 1, Away: 2},
			want: ProbTriple{Home: 0.25, Draw: 0.25, Away: 0.5},
		},
		{
			name: "zero mass collapses to uniform",
			in:   ProbTriple{},
			want: Uniform(),
		},
		{
			name: "NaN collapses to uniform",
			in:   ProbTriple{Home: math.NaN(), Draw: 0.3, Away: 0.2},
			want: Uniform(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.Normalize()
			assert.InDelta(t, tt.want.Home, got.Home, 1e-9)
			assert.InDelta(t, tt.want.Draw, got.Draw, 1e-9)
			assert.InDelta(t, tt.want.Away, got.Away, 1e-9)
			assert.True(t, got.Valid())
		})
	}
}

func TestEntropy(t *testing.T) {
	assert.InDelta(t, math.Log(3), Uniform().Entropy(), 1e-9)
	assert.InDelta(t, 1.0, Uniform().NormalizedEntropy(), 1e-9)

	confident := ProbTriple{Home: 0.98, Draw: 0.01, Away: 0.01}
	assert.Less(t, confident.NormalizedEntropy(), 0.2)

	// Degenerate point mass has zero entropy.
	assert.Zero(t, ProbTriple{Home: 1}.Entropy())
}

func TestMax(t *testing.T) {
	_, idx := ProbTriple{Home: 0.5, Draw: 0.3, Away: 0.2}.Max()
	assert.Equal(t, 0, idx)
	_, idx = ProbTriple{Home: 0.2, Draw: 0.5, Away: 0.3}.Max()
	assert.Equal(t, 1, idx)
	_, idx = ProbTriple{Home: 0.2, Draw: 0.3, Away: 0.5}.Max()
	assert.Equal(t, 2, idx)
}

func TestImpliedFromOdds(t *testing.T) {
	// Typical book: 2.10 / 3.30 / 3.60 carries ~4% overround.
	p, ok := ImpliedFromOdds(2.10, 3.30, 3.60)
	require.True(t, ok)
	assert.True(t, p.Valid())
	assert.Greater(t, p.Home, p.Draw)
	assert.Greater(t, p.Draw, p.Away)

	// Overround removal keeps relative ordering of raw inverses.
	raw := ProbTriple{Home: 1 / 2.10, Draw: 1 / 3.30, Away: 1 / 3.60}
	assert.Greater(t, raw.Sum(), 1.0)
	assert.InDelta(t, raw.Home/raw.Sum(), p.Home, 1e-9)

	_, ok = ImpliedFromOdds(0, 3.3, 3.6)
	assert.False(t, ok)
	_, ok = ImpliedFromOdds(2.1, 1.0, 3.6)
	assert.False(t, ok)
}
