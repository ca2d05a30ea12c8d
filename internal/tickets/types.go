package tickets

import (
	"time"

	"github.com/google/uuid"

	"github.com/tipster-dev/jackpot-sim/internal/probability"
)

// Picks are the tip symbols: home, draw, away.
const (
	PickHome = "1"
	PickDraw = "X"
	PickAway = "2"
)

// Favorite and underdog thresholds, evaluated on set A.
const (
	favoriteThreshold = 0.65
	underdogThreshold = 0.25
)

// FixtureInput is everything the generator needs about one fixture.
type FixtureInput struct {
	FixtureID  uuid.UUID
	Order      int
	LeagueCode string
	KickoffTS  *time.Time

	OddsHome float64
	OddsDraw float64
	OddsAway float64
	OpenHome *float64
	OpenDraw *float64
	OpenAway *float64

	Sets       map[string]probability.ProbTriple
	LambdaHome float64
	LambdaAway float64
	DrawSignal float64
}

// setA returns the reference probability set used for favorite,
// underdog and draw ordering decisions.
func (f *FixtureInput) setA() probability.ProbTriple {
	if p, ok := f.Sets[probability.SetA]; ok {
		return p
	}
	return probability.Uniform()
}

// roleSet returns the probability set the role seeds from, falling
// back to set A.
func (f *FixtureInput) roleSet(key string) probability.ProbTriple {
	if p, ok := f.Sets[key]; ok {
		return p
	}
	return f.setA()
}

// favoriteOutcome returns the pick symbol of the fixture's favorite
// and whether one exists (set A max probability >= 0.65).
func (f *FixtureInput) favoriteOutcome() (string, bool) {
	best, idx := f.setA().Max()
	if best < favoriteThreshold {
		return "", false
	}
	return pickForIndex(idx), true
}

// underdogSide returns the non-draw pick with set A probability <=
// 0.25, preferring the weaker side, and whether one exists.
func (f *FixtureInput) underdogSide() (string, bool) {
	p := f.setA()
	switch {
	case p.Home <= underdogThreshold && p.Away <= underdogThreshold:
		if p.Home <= p.Away {
			return PickHome, true
		}
		return PickAway, true
	case p.Home <= underdogThreshold:
		return PickHome, true
	case p.Away <= underdogThreshold:
		return PickAway, true
	default:
		return "", false
	}
}

func pickForIndex(idx int) string {
	switch idx {
	case 0:
		return PickHome
	case 1:
		return PickDraw
	default:
		return PickAway
	}
}

// probForPick extracts the probability a triple assigns to a pick.
func probForPick(p probability.ProbTriple, pick string) float64 {
	switch pick {
	case PickHome:
		return p.Home
	case PickDraw:
		return p.Draw
	default:
		return p.Away
	}
}

// Ticket is one set of picks plus per-ticket diagnostics.
type Ticket struct {
	Role               string   `json:"role"`
	Picks              []string `json:"picks"`
	DrawCount          int      `json:"draw_count"`
	Entropy            float64  `json:"entropy"`
	RelaxedConstraints []string `json:"relaxed_constraints,omitempty"`
	CorrelationBreaks  int      `json:"correlation_breaks"`
}

// Diagnostics summarize the whole bundle.
type Diagnostics struct {
	Agreement          [][]int             `json:"pairwise_agreement"`
	FavoriteHedgeOK    bool                `json:"favorite_hedge_ok"`
	FavoriteHedgeFixes []int               `json:"favorite_hedge_fixes,omitempty"`
	CorrelationBreaks  []string            `json:"correlation_breaks,omitempty"`
	ShockedFixtures    []int               `json:"shocked_fixtures,omitempty"`
	Relaxations        map[string][]string `json:"relaxations,omitempty"`
}

// Bundle is the generated ticket portfolio.
type Bundle struct {
	Tickets     []Ticket    `json:"tickets"`
	Diagnostics Diagnostics `json:"diagnostics"`
}
