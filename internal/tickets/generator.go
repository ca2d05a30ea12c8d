package tickets

import (
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/tipster-dev/jackpot-sim/internal/apperrors"
)

// Generator builds role-specialized ticket bundles over a jackpot's
// probability sets.
type Generator struct {
	logger *logrus.Entry
}

func NewGenerator(logger *logrus.Logger) *Generator {
	return &Generator{logger: logger.WithField("component", "ticket_generator")}
}

// Generate constructs one ticket per requested role, applies the
// correlation breaker and enforces the portfolio-level favorite-hedge
// invariant.
func (g *Generator) Generate(fixtures []FixtureInput, roleNames []string) (*Bundle, error) {
	if len(fixtures) == 0 {
		return nil, apperrors.New(apperrors.CodeInputValidation, "no fixtures to generate tickets for")
	}
	roles, err := ResolveRoles(roleNames)
	if err != nil {
		return nil, err
	}

	matrix := BuildCorrelationMatrix(fixtures)
	shocks := make([]Shock, len(fixtures))
	var shockedOrders []int
	for i := range fixtures {
		shocks[i] = DetectShock(&fixtures[i], fixtures[i].setA())
		if shocks[i].Triggered {
			shockedOrders = append(shockedOrders, fixtures[i].Order)
		}
	}

	bundle := &Bundle{
		Diagnostics: Diagnostics{
			ShockedFixtures: shockedOrders,
			Relaxations:     map[string][]string{},
		},
	}

	maxBreaks := len(roles)
	for _, rc := range roles {
		ticket := g.buildTicket(fixtures, rc, shocks, matrix, maxBreaks, bundle)
		bundle.Tickets = append(bundle.Tickets, ticket)
	}

	g.enforceFavoriteHedge(fixtures, bundle)
	bundle.Diagnostics.Agreement = agreementMatrix(bundle.Tickets)
	return bundle, nil
}

func (g *Generator) buildTicket(fixtures []FixtureInput, rc RoleConstraints, shocks []Shock, matrix [][]float64, maxBreaks int, bundle *Bundle) Ticket {
	n := len(fixtures)
	picks := make([]string, n)

	// 1. Seed by argmax of the role's probability set.
	for i := range fixtures {
		_, idx := fixtures[i].roleSet(rc.SetKey).Max()
		picks[i] = pickForIndex(idx)
	}

	// 2. Draw floor and cap, ordered by set A draw probability.
	g.enforceDrawBounds(fixtures, picks, rc)

	// 3. Favorite cap and underdog floor.
	g.enforceFavoriteCap(fixtures, picks, rc)
	g.enforceUnderdogFloor(fixtures, picks, rc)

	// 4. Late-shock hedges for the contrarian roles.
	if rc.HedgeShocks {
		for i := range fixtures {
			if !shocks[i].Triggered {
				continue
			}
			if fixtures[i].setA().Draw > 0.25 {
				picks[i] = PickDraw
			} else {
				picks[i] = nonFavoriteSide(&fixtures[i])
			}
		}
	}

	// 5. Correlation breaker.
	breaks := g.breakCorrelations(fixtures, picks, matrix, maxBreaks, rc.Role, bundle)

	// 6. Entropy adjustment, bounded by the fixture count.
	g.adjustEntropy(fixtures, picks, rc)

	relaxed := g.findRelaxations(fixtures, picks, rc)
	if len(relaxed) > 0 {
		bundle.Diagnostics.Relaxations[rc.Role] = relaxed
	}

	return Ticket{
		Role:               rc.Role,
		Picks:              picks,
		DrawCount:          countDraws(picks),
		Entropy:            ticketEntropy(fixtures, picks),
		RelaxedConstraints: relaxed,
		CorrelationBreaks:  breaks,
	}
}

func (g *Generator) enforceDrawBounds(fixtures []FixtureInput, picks []string, rc RoleConstraints) {
	// Fixture indices sorted by set A draw probability, descending.
	byDraw := make([]int, len(fixtures))
	for i := range byDraw {
		byDraw[i] = i
	}
	sort.Slice(byDraw, func(a, b int) bool {
		return fixtures[byDraw[a]].setA().Draw > fixtures[byDraw[b]].setA().Draw
	})

	for _, i := range byDraw {
		if countDraws(picks) >= rc.MinDraws {
			break
		}
		if picks[i] != PickDraw {
			picks[i] = PickDraw
		}
	}

	for k := len(byDraw) - 1; k >= 0; k-- {
		if countDraws(picks) <= rc.MaxDraws {
			break
		}
		i := byDraw[k]
		if picks[i] == PickDraw {
			picks[i] = argmaxNonDraw(&fixtures[i])
		}
	}
}

func (g *Generator) enforceFavoriteCap(fixtures []FixtureInput, picks []string, rc RoleConstraints) {
	type fav struct {
		idx  int
		prob float64
	}
	var held []fav
	for i := range fixtures {
		if outcome, ok := fixtures[i].favoriteOutcome(); ok && picks[i] == outcome {
			p, _ := fixtures[i].setA().Max()
			held = append(held, fav{idx: i, prob: p})
		}
	}
	if len(held) <= rc.MaxFavorites {
		return
	}
	// Drop the weakest favorites first.
	sort.Slice(held, func(a, b int) bool { return held[a].prob < held[b].prob })
	for _, f := range held[:len(held)-rc.MaxFavorites] {
		if fixtures[f.idx].setA().Draw > 0.25 {
			picks[f.idx] = PickDraw
		} else {
			picks[f.idx] = nonFavoriteSide(&fixtures[f.idx])
		}
	}
}

func (g *Generator) enforceUnderdogFloor(fixtures []FixtureInput, picks []string, rc RoleConstraints) {
	count := countUnderdogs(fixtures, picks)
	if count >= rc.MinUnderdogs {
		return
	}

	type dog struct {
		idx  int
		side string
		prob float64
	}
	var candidates []dog
	for i := range fixtures {
		side, ok := fixtures[i].underdogSide()
		if !ok || picks[i] == side {
			continue
		}
		candidates = append(candidates, dog{idx: i, side: side, prob: probForPick(fixtures[i].setA(), side)})
	}
	// Strongest underdogs first: least damage to the ticket.
	sort.Slice(candidates, func(a, b int) bool { return candidates[a].prob > candidates[b].prob })
	for _, c := range candidates {
		if count >= rc.MinUnderdogs {
			break
		}
		picks[c.idx] = c.side
		count++
	}
}

// breakCorrelations processes highly correlated pairs carrying
// identical picks, highest correlation first.
func (g *Generator) breakCorrelations(fixtures []FixtureInput, picks []string, matrix [][]float64, maxBreaks int, role string, bundle *Bundle) int {
	type pair struct {
		i, j int
		c    float64
	}
	var pairs []pair
	for i := 0; i < len(fixtures); i++ {
		for j := i + 1; j < len(fixtures); j++ {
			if matrix[i][j] > breakerThreshold {
				pairs = append(pairs, pair{i: i, j: j, c: matrix[i][j]})
			}
		}
	}
	sort.Slice(pairs, func(a, b int) bool { return pairs[a].c > pairs[b].c })

	breaks := 0
	for _, p := range pairs {
		if breaks >= maxBreaks {
			break
		}
		if picks[p.i] != picks[p.j] {
			continue
		}
		if picks[p.j] != PickDraw {
			picks[p.j] = PickDraw
		} else {
			picks[p.j] = oppositeSide(argmaxNonDraw(&fixtures[p.j]))
		}
		breaks++
		bundle.Diagnostics.CorrelationBreaks = append(bundle.Diagnostics.CorrelationBreaks,
			fmt.Sprintf("role %s: fixtures %d/%d c=%.2f", role, fixtures[p.i].Order, fixtures[p.j].Order, p.c))
	}
	return breaks
}

// adjustEntropy nudges the ticket into the role's entropy band. The
// entropy is binary over the mean selected-outcome probability, so it
// peaks at a mean of 0.5: moving the mean toward 0.5 raises it, away
// lowers it. Draws carry lower probabilities than argmax picks, so
// swapping picks for X lowers the mean and reverting draws raises it.
// Swaps never push the draw count outside the role's bounds.
func (g *Generator) adjustEntropy(fixtures []FixtureInput, picks []string, rc RoleConstraints) {
	for step := 0; step < len(fixtures); step++ {
		h := ticketEntropy(fixtures, picks)
		if h >= rc.EntropyMin && h <= rc.EntropyMax {
			return
		}
		mean := meanPickProb(fixtures, picks)
		addDraw := (h < rc.EntropyMin && mean > 0.5) || (h > rc.EntropyMax && mean < 0.5)

		if addDraw {
			if countDraws(picks) >= rc.MaxDraws {
				return
			}
			best, bestDraw := -1, -1.0
			for i := range fixtures {
				if picks[i] == PickDraw {
					continue
				}
				if d := fixtures[i].setA().Draw; d > bestDraw {
					best, bestDraw = i, d
				}
			}
			if best < 0 {
				return
			}
			picks[best] = PickDraw
			continue
		}

		if countDraws(picks) <= rc.MinDraws {
			return
		}
		best, bestDraw := -1, 2.0
		for i := range fixtures {
			if picks[i] != PickDraw {
				continue
			}
			if d := fixtures[i].setA().Draw; d < bestDraw {
				best, bestDraw = i, d
			}
		}
		if best < 0 {
			return
		}
		picks[best] = argmaxNonDraw(&fixtures[best])
	}
}

// findRelaxations reports which constraints remain violated after
// construction, in the fixed relaxation order.
func (g *Generator) findRelaxations(fixtures []FixtureInput, picks []string, rc RoleConstraints) []string {
	violated := map[string]bool{}

	h := ticketEntropy(fixtures, picks)
	if h < rc.EntropyMin || h > rc.EntropyMax {
		violated["entropy_range"] = true
	}
	if countUnderdogs(fixtures, picks) < rc.MinUnderdogs {
		violated["underdog_min"] = true
	}
	favorites := 0
	for i := range fixtures {
		if outcome, ok := fixtures[i].favoriteOutcome(); ok && picks[i] == outcome {
			favorites++
		}
	}
	if favorites > rc.MaxFavorites {
		violated["favorite_max"] = true
	}
	draws := countDraws(picks)
	if draws > rc.MaxDraws {
		violated["draw_max"] = true
	}
	if draws < rc.MinDraws {
		violated["draw_min"] = true
	}

	var relaxed []string
	for _, name := range relaxationOrder {
		if violated[name] {
			relaxed = append(relaxed, name)
		}
	}
	if len(relaxed) > 0 {
		g.logger.WithFields(logrus.Fields{
			"role":    rc.Role,
			"relaxed": relaxed,
		}).Warn("Ticket constraints relaxed")
	}
	return relaxed
}

// enforceFavoriteHedge guarantees at least one ticket deviates from
// every strong favorite, mutating the last (role G) ticket when the
// bundle is unanimous.
func (g *Generator) enforceFavoriteHedge(fixtures []FixtureInput, bundle *Bundle) {
	bundle.Diagnostics.FavoriteHedgeOK = true
	if len(bundle.Tickets) == 0 {
		return
	}
	for i := range fixtures {
		outcome, ok := fixtures[i].favoriteOutcome()
		if !ok {
			continue
		}
		unanimous := true
		for _, t := range bundle.Tickets {
			if t.Picks[i] != outcome {
				unanimous = false
				break
			}
		}
		if !unanimous {
			continue
		}

		last := &bundle.Tickets[len(bundle.Tickets)-1]
		last.Picks[i] = secondBest(&fixtures[i])
		last.DrawCount = countDraws(last.Picks)
		last.Entropy = ticketEntropy(fixtures, last.Picks)
		bundle.Diagnostics.FavoriteHedgeFixes = append(bundle.Diagnostics.FavoriteHedgeFixes, fixtures[i].Order)
	}
}

func agreementMatrix(tickets []Ticket) [][]int {
	n := len(tickets)
	m := make([][]int, n)
	for i := range m {
		m[i] = make([]int, n)
		for j := range m[i] {
			agree := 0
			for k := range tickets[i].Picks {
				if tickets[i].Picks[k] == tickets[j].Picks[k] {
					agree++
				}
			}
			m[i][j] = agree
		}
	}
	return m
}

// ticketEntropy is the binary Shannon entropy of the mean
// selected-outcome probability, evaluated on set A.
func ticketEntropy(fixtures []FixtureInput, picks []string) float64 {
	if len(fixtures) == 0 {
		return 0
	}
	p := meanPickProb(fixtures, picks)
	if p <= 0 || p >= 1 {
		return 0
	}
	return -p*math.Log(p) - (1-p)*math.Log(1-p)
}

func meanPickProb(fixtures []FixtureInput, picks []string) float64 {
	sum := 0.0
	for i := range fixtures {
		sum += probForPick(fixtures[i].setA(), picks[i])
	}
	return sum / float64(len(fixtures))
}

func countDraws(picks []string) int {
	n := 0
	for _, p := range picks {
		if p == PickDraw {
			n++
		}
	}
	return n
}

func countUnderdogs(fixtures []FixtureInput, picks []string) int {
	n := 0
	for i := range fixtures {
		if side, ok := fixtures[i].underdogSide(); ok && picks[i] == side {
			n++
		}
	}
	return n
}

// secondBest is the second-most-likely outcome on set A, used when a
// hedge must replace the favorite pick.
func secondBest(f *FixtureInput) string {
	p := f.setA()
	_, maxIdx := p.Max()
	best, bestProb := PickDraw, -1.0
	for idx, prob := range []float64{p.Home, p.Draw, p.Away} {
		if idx == maxIdx {
			continue
		}
		if prob > bestProb {
			best, bestProb = pickForIndex(idx), prob
		}
	}
	return best
}

func argmaxNonDraw(f *FixtureInput) string {
	p := f.setA()
	if p.Home >= p.Away {
		return PickHome
	}
	return PickAway
}

func nonFavoriteSide(f *FixtureInput) string {
	return oppositeSide(argmaxNonDraw(f))
}

func oppositeSide(pick string) string {
	if pick == PickHome {
		return PickAway
	}
	return PickHome
}
