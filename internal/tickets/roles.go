package tickets

import (
	"github.com/tipster-dev/jackpot-sim/internal/apperrors"
	"github.com/tipster-dev/jackpot-sim/internal/probability"
)

// RoleConstraints bound one ticket's behavior. Entropy is the binary
// Shannon entropy (nats) of the mean selected-outcome probability, so
// the usable range tops out at ln(2) ~ 0.693.
type RoleConstraints struct {
	Role         string
	SetKey       string
	MinDraws     int
	MaxDraws     int
	MaxFavorites int
	MinUnderdogs int
	EntropyMin   float64
	EntropyMax   float64
	// HedgeShocks forces a hedge on late-shock fixtures.
	HedgeShocks bool
}

// Roles A-G, from banker-leaning to contrarian. Draw bounds assume
// the usual 13-fixture jackpot and are enforced best-effort (with
// recorded relaxation) on other sizes.
var Roles = map[string]RoleConstraints{
	"A": {Role: "A", SetKey: probability.SetA, MinDraws: 2, MaxDraws: 5, MaxFavorites: 13, MinUnderdogs: 0, EntropyMin: 0.25, EntropyMax: 0.67},
	"B": {Role: "B", SetKey: probability.SetB, MinDraws: 5, MaxDraws: 8, MaxFavorites: 10, MinUnderdogs: 0, EntropyMin: 0.30, EntropyMax: 0.69},
	"C": {Role: "C", SetKey: probability.SetC, MinDraws: 3, MaxDraws: 6, MaxFavorites: 11, MinUnderdogs: 0, EntropyMin: 0.28, EntropyMax: 0.68},
	"D": {Role: "D", SetKey: probability.SetD, MinDraws: 3, MaxDraws: 7, MaxFavorites: 8, MinUnderdogs: 1, EntropyMin: 0.40, EntropyMax: 0.69},
	"E": {Role: "E", SetKey: probability.SetE, MinDraws: 2, MaxDraws: 6, MaxFavorites: 7, MinUnderdogs: 2, EntropyMin: 0.38, EntropyMax: 0.69},
	"F": {Role: "F", SetKey: probability.SetF, MinDraws: 3, MaxDraws: 7, MaxFavorites: 5, MinUnderdogs: 1, EntropyMin: 0.35, EntropyMax: 0.69, HedgeShocks: true},
	"G": {Role: "G", SetKey: probability.SetG, MinDraws: 3, MaxDraws: 7, MaxFavorites: 6, MinUnderdogs: 1, EntropyMin: 0.35, EntropyMax: 0.69, HedgeShocks: true},
}

// RoleOrder is the canonical bundle order; role G carries the
// portfolio-level favorite-hedge mutations.
var RoleOrder = []string{"A", "B", "C", "D", "E", "F", "G"}

// relaxationOrder is the sequence constraints give way in when a role
// is infeasible.
var relaxationOrder = []string{"entropy_range", "underdog_min", "favorite_max", "draw_max", "draw_min"}

// ResolveRoles validates the requested role names, defaulting to the
// full bundle.
func ResolveRoles(requested []string) ([]RoleConstraints, error) {
	if len(requested) == 0 {
		requested = RoleOrder
	}
	out := make([]RoleConstraints, 0, len(requested))
	for _, name := range requested {
		rc, ok := Roles[name]
		if !ok {
			return nil, apperrors.New(apperrors.CodeInputValidation,
				"unknown ticket role %q, valid roles are %v", name, RoleOrder)
		}
		out = append(out, rc)
	}
	return out, nil
}
