package probability

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tipster-dev/jackpot-sim/internal/apperrors"
	"github.com/tipster-dev/jackpot-sim/internal/drawsignal"
	"github.com/tipster-dev/jackpot-sim/internal/features"
	"github.com/tipster-dev/jackpot-sim/internal/modelstore"
	"github.com/tipster-dev/jackpot-sim/internal/models"
	"github.com/tipster-dev/jackpot-sim/pkg/database"
)

// WeatherProvider surfaces a [0,1] adverse-weather index for a
// fixture. Optional; the draw signal copes without it.
type WeatherProvider interface {
	WeatherFactor(ctx context.Context, fx *models.JackpotFixture) *float64
}

// FixtureResult is the pipeline output for one fixture.
type FixtureResult struct {
	FixtureID    uuid.UUID             `json:"fixture_id"`
	MatchOrder   int                   `json:"match_order"`
	Sets         map[string]ProbTriple `json:"sets"`
	LambdaHome   float64               `json:"lambda_home"`
	LambdaAway   float64               `json:"lambda_away"`
	DrawSignal   float64               `json:"draw_signal"`
	Structural   StructuralDiag        `json:"draw_structural_components"`
	FallbackUsed bool                  `json:"fallback_used"`
	Warnings     []string              `json:"warnings,omitempty"`
}

// Pipeline is the staged probability transformer: Poisson/Dixon-Coles
// base, draw prior, draw-structural adjustment, temperature scaling,
// market blending and isotonic calibration.
type Pipeline struct {
	db             *database.DB
	features       *features.Store
	store          *modelstore.Store
	weather        WeatherProvider
	fixtureTimeout time.Duration
	logger         *logrus.Entry
}

func NewPipeline(db *database.DB, feat *features.Store, store *modelstore.Store, weather WeatherProvider, fixtureTimeout time.Duration, logger *logrus.Logger) *Pipeline {
	return &Pipeline{
		db:             db,
		features:       feat,
		store:          store,
		weather:        weather,
		fixtureTimeout: fixtureTimeout,
		logger:         logger.WithField("component", "probability_pipeline"),
	}
}

// ComputeJackpot runs the pipeline over every fixture of a jackpot.
// Fixtures are independent and computed in parallel; the result slice
// follows match_order.
func (pl *Pipeline) ComputeJackpot(ctx context.Context, jackpotID uuid.UUID, setKeys []string) ([]FixtureResult, error) {
	if len(setKeys) == 0 {
		setKeys = ComputableSets
	}
	if err := ValidateSetKeys(setKeys); err != nil {
		return nil, err
	}

	// Fail fast before fanning out when no Poisson model is active.
	if _, err := pl.store.Active(ctx, models.ModelTypePoisson); err != nil {
		return nil, err
	}

	var fixtures []models.JackpotFixture
	err := pl.db.WithContext(ctx).
		Where("jackpot_id = ?", jackpotID).
		Order("match_order ASC").
		Find(&fixtures).Error
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "loading fixtures for jackpot %s", jackpotID)
	}
	if len(fixtures) == 0 {
		return nil, apperrors.New(apperrors.CodeNotFound, "jackpot %s has no fixtures", jackpotID)
	}

	results := make([]FixtureResult, len(fixtures))
	var wg sync.WaitGroup
	for i := range fixtures {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			fctx, cancel := context.WithTimeout(ctx, pl.fixtureTimeout)
			defer cancel()
			res, err := pl.ComputeFixture(fctx, &fixtures[i], setKeys)
			if err != nil {
				// Per-fixture degradation: uniform sets with a warning.
				res = pl.uniformResult(&fixtures[i], setKeys, err)
			}
			results[i] = *res
		}(i)
	}
	wg.Wait()

	sort.Slice(results, func(a, b int) bool {
		return results[a].MatchOrder < results[b].MatchOrder
	})

	pl.persistPredictions(ctx, results)
	return results, nil
}

// ComputeFixture runs all six stages for one fixture and derives the
// requested set variants.
func (pl *Pipeline) ComputeFixture(ctx context.Context, fx *models.JackpotFixture, setKeys []string) (*FixtureResult, error) {
	poisson, err := pl.store.Active(ctx, models.ModelTypePoisson)
	if err != nil {
		return nil, err
	}

	res := &FixtureResult{
		FixtureID:  fx.ID,
		MatchOrder: fx.MatchOrder,
		Sets:       make(map[string]ProbTriple, len(setKeys)),
	}

	// Stage 1: base Poisson / Dixon-Coles.
	homeStrength := pl.strength(ctx, poisson.Weights.Poisson, fx.HomeTeamID, res)
	awayStrength := pl.strength(ctx, poisson.Weights.Poisson, fx.AwayTeamID, res)
	league := pl.league(ctx, fx.LeagueID)

	homeAdvantage := league.HomeAdvantage
	rho := 0.0
	if poisson.Weights.Poisson != nil {
		rho = poisson.Weights.Poisson.Rho
	}
	lambdaHome, lambdaAway := Lambdas(
		homeStrength.Attack, homeStrength.Defense,
		awayStrength.Attack, awayStrength.Defense,
		homeAdvantage, homeStrength.HomeBias,
	)
	res.LambdaHome, res.LambdaAway = lambdaHome, lambdaAway

	p := OutcomeProbs(lambdaHome, lambdaAway, rho)

	// Stage 2: draw prior.
	avgDrawRate := league.AvgDrawRate
	if league.Code == models.InternationalLeagueCode {
		// Fixed prior for the synthetic international league.
		avgDrawRate = 0.25
	}
	p = ApplyDrawPrior(p, DrawPriorMultiplier(avgDrawRate))

	// Stage 3: draw-structural adjustment.
	var marketDraw *float64
	market, marketOK := ImpliedFromOdds(fx.OddsHome, fx.OddsDraw, fx.OddsAway)
	if marketOK {
		d := market.Draw
		marketDraw = &d
	}
	var weatherFactor *float64
	if pl.weather != nil {
		weatherFactor = pl.weather.WeatherFactor(ctx, fx)
	}
	leagueRate := league.AvgDrawRate
	sig := drawsignal.Assemble(lambdaHome, lambdaAway, drawsignal.Components{
		MarketDrawProb: marketDraw,
		WeatherFactor:  weatherFactor,
		H2HDrawRate:    pl.h2hDrawRate(ctx, fx),
		LeagueDrawRate: &leagueRate,
	})
	p, diag := ApplyStructural(p, lambdaHome, lambdaAway, sig, marketDraw)
	res.DrawSignal = sig.Value
	res.Structural = diag

	// Stage 4: temperature scaling.
	p = ApplyTemperature(p, poisson.Temperature)

	// Stages 5 and 6 run per set variant.
	in := setInputs{model: p, alphaModel: pl.blendingAlpha(ctx, res)}
	if marketOK {
		in.market = &market
	}
	in.cal, in.drawCurve = pl.calibration(ctx, res)

	for _, key := range setKeys {
		variant := computeSet(key, in)
		if !variant.Valid() {
			variant = Uniform()
			res.Warnings = append(res.Warnings, "degenerate probability recovered with uniform fallback for set "+key)
			pl.logger.WithFields(logrus.Fields{
				"fixture_id": fx.ID,
				"set":        key,
				"code":       apperrors.CodeDegenerateProbability,
			}).Warn("Degenerate probability, forcing uniform")
		}
		res.Sets[key] = variant
	}
	return res, nil
}

// strength resolves team strengths with the documented fallback chain:
// model weights, then stored team ratings, then (1.0, 1.0) defaults.
func (pl *Pipeline) strength(ctx context.Context, w *models.PoissonWeights, teamID *uuid.UUID, res *FixtureResult) features.TeamFeatures {
	if teamID == nil {
		res.FallbackUsed = true
		res.Warnings = append(res.Warnings, "unresolved team used default strengths")
		return features.TeamFeatures{Attack: 1.0, Defense: 1.0}
	}
	if w != nil {
		if ts, ok := w.Teams[teamID.String()]; ok {
			return features.TeamFeatures{Attack: ts.Attack, Defense: ts.Defense, HomeBias: ts.HomeBias}
		}
	}

	res.FallbackUsed = true
	tf, err := pl.features.Get(ctx, *teamID)
	if err == nil {
		res.Warnings = append(res.Warnings, "team "+teamID.String()+" missing from model, used stored ratings")
		return *tf
	}
	res.Warnings = append(res.Warnings, "team "+teamID.String()+" used default strengths")
	pl.logger.WithFields(logrus.Fields{
		"team_id": teamID,
		"code":    apperrors.CodeInsufficientTeamData,
	}).Warn("Falling back to default team strengths")
	return features.TeamFeatures{Attack: 1.0, Defense: 1.0}
}

func (pl *Pipeline) league(ctx context.Context, leagueID *uuid.UUID) *models.League {
	fallback := &models.League{AvgDrawRate: 0.26, HomeAdvantage: 0.35}
	if leagueID == nil {
		return fallback
	}
	var league models.League
	if err := pl.db.WithContext(ctx).First(&league, "id = ?", *leagueID).Error; err != nil {
		return fallback
	}
	return &league
}

// h2hDrawRate needs at least three prior meetings to say anything.
func (pl *Pipeline) h2hDrawRate(ctx context.Context, fx *models.JackpotFixture) *float64 {
	if fx.HomeTeamID == nil || fx.AwayTeamID == nil {
		return nil
	}
	var total, draws int64
	q := pl.db.WithContext(ctx).Model(&models.Match{}).
		Where("(home_team_id = ? AND away_team_id = ?) OR (home_team_id = ? AND away_team_id = ?)",
			*fx.HomeTeamID, *fx.AwayTeamID, *fx.AwayTeamID, *fx.HomeTeamID).
		Where("result IS NOT NULL")
	if err := q.Count(&total).Error; err != nil || total < 3 {
		return nil
	}
	if err := q.Where("result = ?", models.OutcomeDraw).Count(&draws).Error; err != nil {
		return nil
	}
	rate := float64(draws) / float64(total)
	return &rate
}

func (pl *Pipeline) blendingAlpha(ctx context.Context, res *FixtureResult) float64 {
	m, err := pl.store.Active(ctx, models.ModelTypeBlending)
	if err != nil || m.Weights.Blending == nil {
		res.Warnings = append(res.Warnings, "no active blending model, using alpha 0.5")
		return 0.5
	}
	return m.Weights.Blending.Alpha
}

func (pl *Pipeline) calibration(ctx context.Context, res *FixtureResult) (*models.CalibrationWeights, *models.CalibrationCurve) {
	var cal *models.CalibrationWeights
	if m, err := pl.store.Active(ctx, models.ModelTypeCalibration); err == nil {
		cal = m.Weights.Calibration
	} else {
		res.Warnings = append(res.Warnings, "no active calibration model, skipping calibration stage")
	}
	var drawCurve *models.CalibrationCurve
	if m, err := pl.store.Active(ctx, models.ModelTypeDrawCalibration); err == nil && m.Weights.Calibration != nil {
		drawCurve = m.Weights.Calibration.DrawOnly
	}
	return cal, drawCurve
}

func (pl *Pipeline) uniformResult(fx *models.JackpotFixture, setKeys []string, cause error) *FixtureResult {
	pl.logger.WithFields(logrus.Fields{
		"fixture_id": fx.ID,
		"code":       apperrors.CodeOf(cause),
	}).WithError(cause).Warn("Fixture computation degraded to uniform probabilities")

	res := &FixtureResult{
		FixtureID:  fx.ID,
		MatchOrder: fx.MatchOrder,
		Sets:       make(map[string]ProbTriple, len(setKeys)),
		Warnings:   []string{"fixture degraded: " + cause.Error()},
	}
	for _, key := range setKeys {
		res.Sets[key] = Uniform()
	}
	return res
}

func (pl *Pipeline) persistPredictions(ctx context.Context, results []FixtureResult) {
	poisson, err := pl.store.Active(ctx, models.ModelTypePoisson)
	if err != nil {
		return
	}
	for _, res := range results {
		for key, p := range res.Sets {
			pred := models.Prediction{
				FixtureID:  res.FixtureID,
				ModelID:    poisson.ID,
				SetKey:     key,
				ProbHome:   p.Home,
				ProbDraw:   p.Draw,
				ProbAway:   p.Away,
				LambdaHome: res.LambdaHome,
				LambdaAway: res.LambdaAway,
				DrawStructural: models.JSONMap{
					"draw_signal":       res.Structural.DrawSignal,
					"indicators":        res.Structural.Indicators,
					"compression_k":     res.Structural.CompressionK,
					"symmetry_k":        res.Structural.SymmetryK,
					"tail_factor":       res.Structural.TailFactor,
					"draw_reallocation": res.Structural.DrawReallocation,
					"components":        res.Structural.Components,
				},
			}
			if err := pl.db.WithContext(ctx).Create(&pred).Error; err != nil {
				pl.logger.WithError(err).Warn("Failed to persist prediction")
			}
		}
	}
}
