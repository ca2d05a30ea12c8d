package resolver

import (
	"context"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm/clause"

	"github.com/tipster-dev/jackpot-sim/internal/apperrors"
	"github.com/tipster-dev/jackpot-sim/internal/models"
	"github.com/tipster-dev/jackpot-sim/pkg/database"
)

// fuzzyThreshold is the minimum name similarity accepted when no
// exact canonical match exists.
const fuzzyThreshold = 0.7

var (
	strippedSuffixes = []string{
		"football club", "fc", "sc", "cf", "bc", "ac", "united", "city",
	}
	nonAlnum   = regexp.MustCompile(`[^a-z0-9 \-]`)
	whitespace = regexp.MustCompile(`\s+`)
)

// Resolver maps free-form team names onto stored team entities.
type Resolver struct {
	db     *database.DB
	logger *logrus.Entry
}

func NewResolver(db *database.DB, logger *logrus.Logger) *Resolver {
	return &Resolver{
		db:     db,
		logger: logger.WithField("component", "resolver"),
	}
}

// Normalize lowercases, strips club suffixes, drops punctuation and
// collapses whitespace.
func Normalize(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = nonAlnum.ReplaceAllString(n, "")
	n = whitespace.ReplaceAllString(n, " ")

	for changed := true; changed; {
		changed = false
		for _, suffix := range strippedSuffixes {
			if strings.HasSuffix(n, " "+suffix) {
				n = strings.TrimSuffix(n, " "+suffix)
				n = strings.TrimSpace(n)
				changed = true
			}
		}
	}
	return whitespace.ReplaceAllString(strings.TrimSpace(n), " ")
}

// Resolve finds the team whose canonical or alternative names match
// the normalized input, optionally scoped to a league. Falls back to
// fuzzy matching when no exact candidate exists.
func (r *Resolver) Resolve(ctx context.Context, name string, leagueID *uuid.UUID) (*models.Team, error) {
	canonical := Normalize(name)
	if canonical == "" {
		return nil, apperrors.New(apperrors.CodeInputValidation, "empty team name %q", name)
	}

	q := r.db.WithContext(ctx).
		Where("canonical_name = ? OR ? = ANY(alternative_names)", canonical, canonical)
	if leagueID != nil {
		q = q.Where("league_id = ?", *leagueID)
	}

	var candidates []models.Team
	if err := q.Order("updated_at DESC").Find(&candidates).Error; err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "resolving team %q", name)
	}
	if len(candidates) > 0 {
		// Most recent first; league scoping already applied.
		return &candidates[0], nil
	}

	return r.fuzzyResolve(ctx, name, canonical, leagueID)
}

func (r *Resolver) fuzzyResolve(ctx context.Context, name, canonical string, leagueID *uuid.UUID) (*models.Team, error) {
	q := r.db.WithContext(ctx).Model(&models.Team{})
	if leagueID != nil {
		q = q.Where("league_id = ?", *leagueID)
	}
	var pool []models.Team
	if err := q.Find(&pool).Error; err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "loading fuzzy candidates for %q", name)
	}

	var best *models.Team
	bestScore := 0.0
	for i := range pool {
		score := nameSimilarity(canonical, pool[i].CanonicalName)
		for _, alt := range pool[i].AlternativeNames {
			if s := nameSimilarity(canonical, Normalize(alt)); s > score {
				score = s
			}
		}
		if score > bestScore {
			bestScore = score
			best = &pool[i]
		}
	}

	if best == nil || bestScore < fuzzyThreshold {
		return nil, apperrors.New(apperrors.CodeResolutionMissing, "no team matching %q", name)
	}

	r.logger.WithFields(logrus.Fields{
		"input":   name,
		"matched": best.CanonicalName,
		"score":   bestScore,
	}).Debug("Fuzzy team match")
	return best, nil
}

// CreateIfNotExists upserts a team under the given league. A
// unique-constraint conflict from a concurrent creator is treated as
// success.
func (r *Resolver) CreateIfNotExists(ctx context.Context, name string, leagueID uuid.UUID) (*models.Team, error) {
	canonical := Normalize(name)
	if canonical == "" {
		return nil, apperrors.New(apperrors.CodeInputValidation, "empty team name %q", name)
	}

	team := models.Team{
		LeagueID:      leagueID,
		Name:          strings.TrimSpace(name),
		CanonicalName: canonical,
		AttackRating:  1.0,
		DefenseRating: 1.0,
		HomeBias:      0.0,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "canonical_name"}, {Name: "league_id"}},
			DoNothing: true,
		}).
		Create(&team).Error
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "creating team %q", name)
	}

	// Re-fetch so concurrent creators all observe the same row.
	var stored models.Team
	err = r.db.WithContext(ctx).
		Where("canonical_name = ? AND league_id = ?", canonical, leagueID).
		First(&stored).Error
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "loading team %q after upsert", name)
	}
	return &stored, nil
}
