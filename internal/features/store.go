package features

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/tipster-dev/jackpot-sim/internal/apperrors"
	"github.com/tipster-dev/jackpot-sim/internal/models"
	"github.com/tipster-dev/jackpot-sim/pkg/database"
)

// TeamFeatures is the cached strength vector for one team.
type TeamFeatures struct {
	Attack       float64 `json:"attack"`
	Defense      float64 `json:"defense"`
	HomeBias     float64 `json:"home_bias"`
	ModelVersion string  `json:"model_version"`
}

// Store is a read-through cache of team strength vectors with a
// database fallback. When redis is unavailable every read falls back
// to the database and every write becomes a no-op.
type Store struct {
	rdb    *redis.Client
	db     *database.DB
	ttl    time.Duration
	logger *logrus.Entry
}

func NewStore(rdb *redis.Client, db *database.DB, ttl time.Duration, logger *logrus.Logger) *Store {
	return &Store{
		rdb:    rdb,
		db:     db,
		ttl:    ttl,
		logger: logger.WithField("component", "feature_store"),
	}
}

func key(teamID uuid.UUID) string {
	return fmt.Sprintf("team:strength:%s", teamID)
}

// Get returns the strength vector for a team, preferring the cache.
func (s *Store) Get(ctx context.Context, teamID uuid.UUID) (*TeamFeatures, error) {
	if s.rdb != nil {
		raw, err := s.rdb.Get(ctx, key(teamID)).Bytes()
		if err == nil {
			var tf TeamFeatures
			if jsonErr := json.Unmarshal(raw, &tf); jsonErr == nil {
				return &tf, nil
			}
		} else if err != redis.Nil {
			s.logger.WithError(err).Debug("Cache read failed, falling back to database")
		}
	}

	var team models.Team
	if err := s.db.WithContext(ctx).First(&team, "id = ?", teamID).Error; err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInsufficientTeamData, "loading team %s", teamID)
	}

	tf := &TeamFeatures{
		Attack:   team.AttackRating,
		Defense:  team.DefenseRating,
		HomeBias: team.HomeBias,
	}
	s.set(ctx, teamID, tf)
	return tf, nil
}

// WriteThrough publishes a freshly activated Poisson model's team
// strengths into the cache.
func (s *Store) WriteThrough(ctx context.Context, weights *models.PoissonWeights, version string) {
	if s.rdb == nil || weights == nil {
		return
	}
	for id, strength := range weights.Teams {
		teamID, err := uuid.Parse(id)
		if err != nil {
			continue
		}
		s.set(ctx, teamID, &TeamFeatures{
			Attack:       strength.Attack,
			Defense:      strength.Defense,
			HomeBias:     strength.HomeBias,
			ModelVersion: version,
		})
	}
	s.logger.WithFields(logrus.Fields{
		"teams":   len(weights.Teams),
		"version": version,
	}).Info("Feature cache refreshed from model activation")
}

func (s *Store) set(ctx context.Context, teamID uuid.UUID, tf *TeamFeatures) {
	if s.rdb == nil {
		return
	}
	raw, err := json.Marshal(tf)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, key(teamID), raw, s.ttl).Err(); err != nil {
		s.logger.WithError(err).Debug("Cache write skipped")
	}
}

// Invalidate drops one team's cached vector.
func (s *Store) Invalidate(ctx context.Context, teamID uuid.UUID) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.Del(ctx, key(teamID)).Err(); err != nil {
		s.logger.WithError(err).Debug("Cache invalidation skipped")
	}
}
