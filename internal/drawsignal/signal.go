package drawsignal

// Components are the per-fixture inputs to the draw signal. Missing
// components never fail the computation; the signal is the mean of
// whatever is available.
type Components struct {
	MarketDrawProb *float64
	WeatherFactor  *float64
	H2HDrawRate    *float64
	LeagueDrawRate *float64
}

// Signal is the assembled draw likelihood in [0,1] plus the individual
// contributions for diagnostics.
type Signal struct {
	Value      float64
	Indicators map[string]float64
	// Raw components echoed for storage with the prediction.
	Components map[string]float64
}

// Assemble combines the low-total-goals indicator with whichever
// market, weather and head-to-head indicators fire. The lambda
// indicator is always present; the others contribute only above their
// thresholds. League draw rate is diagnostic only.
func Assemble(lambdaHome, lambdaAway float64, c Components) Signal {
	indicators := map[string]float64{}

	total := lambdaHome + lambdaAway
	switch {
	case total < 2.1:
		indicators["low_total_goals"] = 0.8
	case total < 2.5:
		indicators["low_total_goals"] = 0.6
	default:
		indicators["low_total_goals"] = 0.4
	}

	if c.MarketDrawProb != nil && *c.MarketDrawProb > 0.28 {
		indicators["market_draw"] = 0.7
	}
	if c.WeatherFactor != nil && *c.WeatherFactor > 0.6 {
		indicators["weather"] = 0.6
	}
	if c.H2HDrawRate != nil && *c.H2HDrawRate > 0.30 {
		indicators["h2h_draws"] = 0.5
	}

	sum := 0.0
	for _, v := range indicators {
		sum += v
	}
	value := sum / float64(len(indicators))

	components := map[string]float64{}
	if c.MarketDrawProb != nil {
		components["market_draw_prob"] = *c.MarketDrawProb
	}
	if c.WeatherFactor != nil {
		components["weather_factor"] = *c.WeatherFactor
	}
	if c.H2HDrawRate != nil {
		components["h2h_draw_rate"] = *c.H2HDrawRate
	}
	if c.LeagueDrawRate != nil {
		components["league_draw_rate"] = *c.LeagueDrawRate
	}

	return Signal{Value: value, Indicators: indicators, Components: components}
}
