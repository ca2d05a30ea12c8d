package training

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/tipster-dev/jackpot-sim/internal/apperrors"
	"github.com/tipster-dev/jackpot-sim/internal/features"
	"github.com/tipster-dev/jackpot-sim/internal/modelstore"
	"github.com/tipster-dev/jackpot-sim/internal/models"
	"github.com/tipster-dev/jackpot-sim/pkg/database"
)

// Metrics is the free-form metric payload returned with a trained
// model.
type Metrics map[string]interface{}

// Options select the training data window.
type Options struct {
	Leagues     []string
	WindowYears int
}

// Service trains and activates models. Training is a global
// singleton: concurrent calls serialize on the service mutex so two
// pipeline tasks can never train simultaneously.
type Service struct {
	db       *database.DB
	store    *modelstore.Store
	features *features.Store
	logger   *logrus.Entry

	mu sync.Mutex
}

func NewService(db *database.DB, store *modelstore.Store, feat *features.Store, logger *logrus.Logger) *Service {
	return &Service{
		db:       db,
		store:    store,
		features: feat,
		logger:   logger.WithField("component", "training"),
	}
}

// TrainPoisson fits team strengths, rho and temperature, then
// activates the resulting model and write-throughs the feature cache.
func (s *Service) TrainPoisson(ctx context.Context, opts Options) (*models.Model, Metrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matches, err := s.loadMatches(ctx, opts)
	if err != nil {
		return nil, nil, err
	}
	train, holdout := splitHoldout(matches)

	weights, iterations, err := fitPoisson(ctx, train)
	if err != nil {
		return nil, nil, err
	}
	temperature := fitTemperature(holdout, weights)

	model := &models.Model{
		Type:                models.ModelTypePoisson,
		Version:             version(models.ModelTypePoisson),
		Status:              models.ModelStatusTraining,
		Weights:             models.ModelWeights{Poisson: weights},
		Temperature:         temperature,
		TrainingLeagues:     pq.StringArray(opts.Leagues),
		TrainingWindowYears: opts.WindowYears,
		TrainingMatches:     len(train),
	}
	if err := s.activate(ctx, model); err != nil {
		return nil, nil, err
	}

	s.features.WriteThrough(ctx, weights, model.Version)
	s.markTeamsTrained(ctx, weights)

	metrics := Metrics{
		"matches":     len(train),
		"holdout":     len(holdout),
		"teams":       len(weights.Teams),
		"rho":         weights.Rho,
		"temperature": temperature,
		"iterations":  iterations,
	}
	s.logger.WithFields(logrus.Fields(metrics)).Info("Poisson model trained")
	return model, metrics, nil
}

// TrainBlending learns the model-vs-market alpha on held-out matches.
func (s *Service) TrainBlending(ctx context.Context, opts Options) (*models.Model, Metrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	poisson, err := s.store.Active(ctx, models.ModelTypePoisson)
	if err != nil {
		return nil, nil, err
	}
	matches, err := s.loadMatches(ctx, opts)
	if err != nil {
		return nil, nil, err
	}
	_, holdout := splitHoldout(matches)

	weights, samples, err := fitBlending(holdout, poisson.Weights.Poisson)
	if err != nil {
		return nil, nil, err
	}

	model := &models.Model{
		Type:                models.ModelTypeBlending,
		Version:             version(models.ModelTypeBlending),
		Status:              models.ModelStatusTraining,
		Weights:             models.ModelWeights{Blending: weights},
		Temperature:         1.0,
		TrainingLeagues:     pq.StringArray(opts.Leagues),
		TrainingWindowYears: opts.WindowYears,
		TrainingMatches:     samples,
	}
	if err := s.activate(ctx, model); err != nil {
		return nil, nil, err
	}

	metrics := Metrics{"alpha": weights.Alpha, "samples": samples}
	s.logger.WithFields(logrus.Fields(metrics)).Info("Blending model trained")
	return model, metrics, nil
}

// TrainCalibration fits per-outcome isotonic curves.
func (s *Service) TrainCalibration(ctx context.Context, opts Options) (*models.Model, Metrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	poisson, err := s.store.Active(ctx, models.ModelTypePoisson)
	if err != nil {
		return nil, nil, err
	}
	alpha := 0.5
	if blending, err := s.store.Active(ctx, models.ModelTypeBlending); err == nil && blending.Weights.Blending != nil {
		alpha = blending.Weights.Blending.Alpha
	}

	matches, err := s.loadMatches(ctx, opts)
	if err != nil {
		return nil, nil, err
	}
	_, holdout := splitHoldout(matches)

	cal, samples, err := fitCalibration(holdout, poisson.Weights.Poisson, alpha)
	if err != nil {
		return nil, nil, err
	}

	model := &models.Model{
		Type:                models.ModelTypeCalibration,
		Version:             version(models.ModelTypeCalibration),
		Status:              models.ModelStatusTraining,
		Weights:             models.ModelWeights{Calibration: cal},
		Temperature:         1.0,
		TrainingLeagues:     pq.StringArray(opts.Leagues),
		TrainingWindowYears: opts.WindowYears,
		TrainingMatches:     samples,
	}
	if err := s.activate(ctx, model); err != nil {
		return nil, nil, err
	}

	metrics := Metrics{"samples": samples, "alpha": alpha}
	s.logger.WithFields(logrus.Fields(metrics)).Info("Calibration model trained")
	return model, metrics, nil
}

// TrainDrawCalibration retrains the draw-only curve from exported
// validation results. Callers treat InsufficientTrainingSamples as a
// soft skip.
func (s *Service) TrainDrawCalibration(ctx context.Context) (*models.Model, Metrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pairs []models.ValidationResult
	err := s.db.WithContext(ctx).
		Where("exported_to_training = ?", true).
		Find(&pairs).Error
	if err != nil {
		return nil, nil, apperrors.Wrap(err, apperrors.CodeInternal, "loading validation results")
	}

	cal, err := fitDrawCalibration(pairs)
	if err != nil {
		return nil, nil, err
	}

	model := &models.Model{
		Type:            models.ModelTypeDrawCalibration,
		Version:         version(models.ModelTypeDrawCalibration),
		Status:          models.ModelStatusTraining,
		Weights:         models.ModelWeights{Calibration: cal},
		Temperature:     1.0,
		TrainingMatches: len(pairs),
	}
	if err := s.activate(ctx, model); err != nil {
		return nil, nil, err
	}

	metrics := Metrics{"samples": len(pairs)}
	s.logger.WithFields(logrus.Fields(metrics)).Info("Draw calibration model trained")
	return model, metrics, nil
}

func (s *Service) activate(ctx context.Context, model *models.Model) error {
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "persisting %s model", model.Type)
	}
	if err := s.store.Activate(ctx, model.ID.String()); err != nil {
		return err
	}
	model.Status = models.ModelStatusActive
	return nil
}

func (s *Service) markTeamsTrained(ctx context.Context, weights *models.PoissonWeights) {
	now := time.Now().UTC()
	for id, strength := range weights.Teams {
		err := s.db.WithContext(ctx).Model(&models.Team{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"attack_rating":   strength.Attack,
				"defense_rating":  strength.Defense,
				"home_bias":       strength.HomeBias,
				"last_trained_at": now,
			}).Error
		if err != nil {
			s.logger.WithError(err).WithField("team_id", id).Warn("Failed to persist team ratings")
		}
	}
}

// loadMatches pulls finished matches inside the window, joined with
// their league's home advantage, weighted by time decay.
func (s *Service) loadMatches(ctx context.Context, opts Options) ([]trainingMatch, error) {
	if opts.WindowYears == 0 {
		opts.WindowYears = 3
	}
	cutoff := time.Now().AddDate(-opts.WindowYears, 0, 0)

	q := s.db.WithContext(ctx).Model(&models.Match{}).
		Where("match_date >= ? AND result IS NOT NULL", cutoff)
	if len(opts.Leagues) > 0 {
		q = q.Joins("JOIN leagues ON leagues.id = matches.league_id").
			Where("leagues.code IN ?", opts.Leagues)
	}

	var rows []models.Match
	if err := q.Find(&rows).Error; err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "loading training matches")
	}

	advantages, err := s.leagueAdvantages(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	out := make([]trainingMatch, 0, len(rows))
	for _, r := range rows {
		if r.HomeGoals == nil || r.AwayGoals == nil || r.Result == nil {
			continue
		}
		adv, ok := advantages[r.LeagueID.String()]
		if !ok {
			adv = 0.35
		}
		out = append(out, trainingMatch{
			HomeID:        r.HomeTeamID.String(),
			AwayID:        r.AwayTeamID.String(),
			HomeGoals:     *r.HomeGoals,
			AwayGoals:     *r.AwayGoals,
			Weight:        decayWeight(r.MatchDate, now, defaultXi),
			HomeAdvantage: adv,
			OddsHome:      r.OddsHome,
			OddsDraw:      r.OddsDraw,
			OddsAway:      r.OddsAway,
			Result:        *r.Result,
		})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Weight < out[b].Weight })
	return out, nil
}

func (s *Service) leagueAdvantages(ctx context.Context) (map[string]float64, error) {
	var leagues []models.League
	if err := s.db.WithContext(ctx).Find(&leagues).Error; err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "loading leagues")
	}
	out := make(map[string]float64, len(leagues))
	for _, l := range leagues {
		out[l.ID.String()] = l.HomeAdvantage
	}
	return out, nil
}

// splitHoldout reserves the most recent fifth of matches for
// blending, calibration and temperature fitting. Matches arrive
// sorted oldest first (lowest decay weight first).
func splitHoldout(matches []trainingMatch) (train, holdout []trainingMatch) {
	if len(matches) < 10 {
		return matches, nil
	}
	cut := len(matches) * 4 / 5
	return matches[:cut], matches[cut:]
}

func version(modelType string) string {
	return fmt.Sprintf("%s-%s", modelType, time.Now().UTC().Format("20060102-150405"))
}
