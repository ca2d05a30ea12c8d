package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases and trims", "  Arsenal  ", "arsenal"},
		{"strips FC suffix", "Liverpool FC", "liverpool"},
		{"strips United", "Newcastle United", "newcastle"},
		{"strips City", "Norwich City", "norwich"},
		{"strips stacked suffixes", "Manchester City FC", "manchester"},
		{"strips full football club", "Sheffield Wednesday Football Club", "sheffield wednesday"},
		{"drops punctuation", "Nott'm Forest", "nottm forest"},
		{"collapses whitespace", "West   Ham", "west ham"},
		{"keeps hyphens", "Borussia M-Gladbach", "borussia m-gladbach"},
		{"suffix-only name survives", "FC", "fc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestJaroWinkler(t *testing.T) {
	assert.Equal(t, 1.0, JaroWinkler("arsenal", "arsenal"))
	assert.Equal(t, 0.0, JaroWinkler("arsenal", ""))

	// Typo stays above the resolver threshold.
	assert.Greater(t, JaroWinkler("tottenham", "totenham"), fuzzyThreshold)
	// Prefix boost: shared prefixes score higher than shared suffixes.
	assert.Greater(t, JaroWinkler("wolves", "wolverhampton"), JaroWinkler("hampton", "wolverhampton"))
	// Unrelated names stay below the threshold.
	assert.Less(t, JaroWinkler("arsenal", "burnley"), fuzzyThreshold)
}

func TestNameSimilarity(t *testing.T) {
	// Reordered tokens score a perfect token-set match even though the
	// character-level comparison is weak.
	assert.Equal(t, 1.0, nameSimilarity("wanderers wolverhampton", "wolverhampton wanderers"))
	assert.Less(t, JaroWinkler("wanderers wolverhampton", "wolverhampton wanderers"), 1.0)

	// A plain typo is scored by the character-level comparison.
	assert.Greater(t, nameSimilarity("tottenham", "totenham"), fuzzyThreshold)
	assert.GreaterOrEqual(t, nameSimilarity("tottenham", "totenham"), TokenSetRatio("tottenham", "totenham"))

	assert.Less(t, nameSimilarity("arsenal", "burnley"), fuzzyThreshold)
}

func TestTokenSetRatio(t *testing.T) {
	// Word order must not matter.
	assert.Equal(t, 1.0, TokenSetRatio("wanderers wolverhampton", "wolverhampton wanderers"))
	// Duplicate tokens collapse.
	assert.Equal(t, 1.0, TokenSetRatio("real madrid real", "madrid real"))
	assert.Less(t, TokenSetRatio("west ham", "aston villa"), fuzzyThreshold)
}
