package drawsignal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fptr(v float64) *float64 { return &v }

func TestAssembleLambdaIndicatorAlwaysPresent(t *testing.T) {
	tests := []struct {
		name       string
		lambdaHome float64
		lambdaAway float64
		want       float64
	}{
		{"very low scoring", 1.0, 1.0, 0.8},
		{"moderately low scoring", 1.2, 1.2, 0.6},
		{"open game", 1.6, 1.4, 0.4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := Assemble(tt.lambdaHome, tt.lambdaAway, Components{})
			require.Len(t, sig.Indicators, 1)
			assert.Equal(t, tt.want, sig.Indicators["low_total_goals"])
			assert.Equal(t, tt.want, sig.Value)
		})
	}
}

func TestAssembleThresholds(t *testing.T) {
	// Sub-threshold components stay silent.
	sig := Assemble(1.6, 1.4, Components{
		MarketDrawProb: fptr(0.25),
		WeatherFactor:  fptr(0.5),
		H2HDrawRate:    fptr(0.20),
	})
	assert.Len(t, sig.Indicators, 1)
	// But every provided component is echoed for diagnostics.
	assert.Len(t, sig.Components, 3)

	// Above-threshold components all fire.
	sig = Assemble(1.0, 1.0, Components{
		MarketDrawProb: fptr(0.31),
		WeatherFactor:  fptr(0.7),
		H2HDrawRate:    fptr(0.40),
	})
	assert.Len(t, sig.Indicators, 4)
	// Mean of 0.8, 0.7, 0.6, 0.5.
	assert.InDelta(t, 0.65, sig.Value, 1e-9)
}

func TestAssembleLowScoringDerbyTriggersStructural(t *testing.T) {
	// A tight low-scoring fixture with a draw-priced market crosses the
	// 0.6 signal bar that arms the compression stage.
	sig := Assemble(1.05, 0.95, Components{
		MarketDrawProb: fptr(0.31),
		H2HDrawRate:    fptr(0.40),
	})
	// Mean of 0.8, 0.7, 0.5.
	assert.InDelta(t, 2.0/3, sig.Value, 1e-9)
	assert.Greater(t, sig.Value, 0.6)
}

func TestAssembleLeagueRateIsDiagnosticOnly(t *testing.T) {
	sig := Assemble(1.6, 1.4, Components{LeagueDrawRate: fptr(0.33)})
	assert.Len(t, sig.Indicators, 1)
	assert.Equal(t, 0.33, sig.Components["league_draw_rate"])
}
