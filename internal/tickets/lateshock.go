package tickets

import (
	"math"

	"github.com/tipster-dev/jackpot-sim/internal/probability"
)

const (
	shockEps          = 1e-9
	shockMoveFloor    = 0.10
	drawCollapseFloor = 0.08
	shockTrigger      = 0.5
)

// Shock is the late-shock signal for one fixture: opening-vs-closing
// odds discrepancies weighted against the model's view.
type Shock struct {
	Score     float64            `json:"score"`
	Triggered bool               `json:"triggered"`
	Reasons   map[string]float64 `json:"reasons,omitempty"`
}

// DetectShock scores opening-vs-closing odds movement. A missing
// opening line yields a zero, untriggered signal.
func DetectShock(f *FixtureInput, model probability.ProbTriple) Shock {
	shock := Shock{Reasons: map[string]float64{}}
	if f.OpenHome == nil || f.OpenDraw == nil || f.OpenAway == nil {
		return shock
	}

	open := []float64{*f.OpenHome, *f.OpenDraw, *f.OpenAway}
	closing := []float64{f.OddsHome, f.OddsDraw, f.OddsAway}
	names := []string{"home", "draw", "away"}

	for i := range open {
		move := math.Abs(closing[i]-open[i]) / math.Max(open[i], shockEps)
		if move >= shockMoveFloor {
			shock.Reasons["odds_move_"+names[i]] = move
			shock.Score += 0.35
		}
	}

	if collapse := *f.OpenDraw - f.OddsDraw; collapse >= drawCollapseFloor {
		shock.Reasons["draw_collapse"] = collapse
		shock.Score += 0.35
	}

	// Favorite drift relative to the model's preferred side.
	favIdx := 0
	if model.Away > model.Home {
		favIdx = 2
	}
	drift := math.Abs(closing[favIdx]-open[favIdx]) / math.Max(open[favIdx], shockEps)
	if drift >= shockMoveFloor {
		shock.Reasons["favorite_drift"] = drift
		shock.Score += 0.30
	}

	shock.Score = math.Min(1.0, shock.Score)
	shock.Triggered = shock.Score >= shockTrigger
	return shock
}
