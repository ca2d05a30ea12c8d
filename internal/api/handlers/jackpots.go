package handlers

import (
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/tipster-dev/jackpot-sim/internal/apperrors"
	"github.com/tipster-dev/jackpot-sim/internal/cache"
	"github.com/tipster-dev/jackpot-sim/internal/models"
	"github.com/tipster-dev/jackpot-sim/internal/probability"
	"github.com/tipster-dev/jackpot-sim/internal/resolver"
	"github.com/tipster-dev/jackpot-sim/pkg/database"
)

// JackpotHandler manages jackpot lifecycle: creation, lookup and
// settlement.
type JackpotHandler struct {
	db        *database.DB
	resolver  *resolver.Resolver
	probCache *cache.ProbabilityCache
	logger    *logrus.Entry
}

func NewJackpotHandler(db *database.DB, res *resolver.Resolver, probCache *cache.ProbabilityCache, logger *logrus.Logger) *JackpotHandler {
	return &JackpotHandler{
		db:        db,
		resolver:  res,
		probCache: probCache,
		logger:    logger.WithField("component", "jackpot_handler"),
	}
}

type fixtureRequest struct {
	MatchOrder int        `json:"match_order" binding:"required"`
	HomeTeam   string     `json:"home_team" binding:"required"`
	AwayTeam   string     `json:"away_team" binding:"required"`
	LeagueCode string     `json:"league_code"`
	OddsHome   float64    `json:"odds_home" binding:"required,gt=1"`
	OddsDraw   float64    `json:"odds_draw" binding:"required,gt=1"`
	OddsAway   float64    `json:"odds_away" binding:"required,gt=1"`
	OpenHome   *float64   `json:"open_home"`
	OpenDraw   *float64   `json:"open_draw"`
	OpenAway   *float64   `json:"open_away"`
	KickoffTS  *time.Time `json:"kickoff_ts"`
}

type createJackpotRequest struct {
	KickoffDate time.Time        `json:"kickoff_date" binding:"required"`
	Fixtures    []fixtureRequest `json:"fixtures" binding:"required,min=1,dive"`
}

// CreateJackpot stores a jackpot with its fixtures and opening odds.
// Team resolution is best-effort: unresolved names stay pending for
// the pipeline to reconcile.
func (h *JackpotHandler) CreateJackpot(c *gin.Context) {
	var req createJackpotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	ctx := c.Request.Context()
	jackpot := models.Jackpot{KickoffDate: req.KickoffDate}

	err := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&jackpot).Error; err != nil {
			return err
		}
		for _, fr := range req.Fixtures {
			fx := models.JackpotFixture{
				JackpotID:    jackpot.ID,
				MatchOrder:   fr.MatchOrder,
				HomeTeamName: fr.HomeTeam,
				AwayTeamName: fr.AwayTeam,
				OddsHome:     fr.OddsHome,
				OddsDraw:     fr.OddsDraw,
				OddsAway:     fr.OddsAway,
				OpenHome:     fr.OpenHome,
				OpenDraw:     fr.OpenDraw,
				OpenAway:     fr.OpenAway,
				KickoffTS:    fr.KickoffTS,
			}

			var leagueID *uuid.UUID
			if fr.LeagueCode != "" {
				var league models.League
				if err := tx.Where("code = ?", fr.LeagueCode).First(&league).Error; err == nil {
					leagueID = &league.ID
					fx.LeagueID = leagueID
				}
			}
			if home, err := h.resolver.Resolve(ctx, fr.HomeTeam, leagueID); err == nil {
				fx.HomeTeamID = &home.ID
			}
			if away, err := h.resolver.Resolve(ctx, fr.AwayTeam, leagueID); err == nil {
				fx.AwayTeamID = &away.ID
			}

			if err := tx.Create(&fx).Error; err != nil {
				return err
			}

			if fr.OpenHome != nil && fr.OpenDraw != nil && fr.OpenAway != nil {
				movement := models.OddsMovement{
					FixtureID: fx.ID,
					OpenHome:  *fr.OpenHome,
					OpenDraw:  *fr.OpenDraw,
					OpenAway:  *fr.OpenAway,
					CloseHome: fr.OddsHome,
					CloseDraw: fr.OddsDraw,
					CloseAway: fr.OddsAway,
					DeltaDraw: *fr.OpenDraw - fr.OddsDraw,
				}
				if err := tx.Create(&movement).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		respondError(c, h.logger, apperrors.Wrap(err, apperrors.CodeInternal, "jackpot creation failed"))
		return
	}

	h.db.WithContext(ctx).Preload("Fixtures").First(&jackpot, "id = ?", jackpot.ID)
	c.JSON(http.StatusCreated, jackpot)
}

// GetJackpot returns a jackpot with fixtures, ordered by match order.
func (h *JackpotHandler) GetJackpot(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, h.logger, apperrors.New(apperrors.CodeInputValidation, "invalid jackpot id %q", c.Param("id")))
		return
	}
	var jackpot models.Jackpot
	err = h.db.WithContext(c.Request.Context()).
		Preload("Fixtures", func(tx *gorm.DB) *gorm.DB { return tx.Order("match_order") }).
		First(&jackpot, "id = ?", id).Error
	if err != nil {
		respondError(c, h.logger, apperrors.Wrap(err, apperrors.CodeNotFound, "jackpot %s not found", id))
		return
	}
	c.JSON(http.StatusOK, jackpot)
}

type settleRequest struct {
	Results map[int]models.Outcome `json:"results" binding:"required"`
}

// SettleJackpot records actual results keyed by match order, turns
// stored predictions into validation pairs and drops the probability
// cache.
func (h *JackpotHandler) SettleJackpot(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, h.logger, apperrors.New(apperrors.CodeInputValidation, "invalid jackpot id %q", c.Param("id")))
		return
	}
	var req settleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	for order, outcome := range req.Results {
		switch outcome {
		case models.OutcomeHome, models.OutcomeDraw, models.OutcomeAway:
		default:
			respondError(c, h.logger, apperrors.New(apperrors.CodeInputValidation,
				"result for match %d must be H, D or A, got %q", order, outcome))
			return
		}
	}

	ctx := c.Request.Context()
	var jackpot models.Jackpot
	if err := h.db.WithContext(ctx).Preload("Fixtures").First(&jackpot, "id = ?", id).Error; err != nil {
		respondError(c, h.logger, apperrors.Wrap(err, apperrors.CodeNotFound, "jackpot %s not found", id))
		return
	}

	settled, pairs := 0, 0
	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range jackpot.Fixtures {
			fx := &jackpot.Fixtures[i]
			outcome, ok := req.Results[fx.MatchOrder]
			if !ok {
				continue
			}
			if err := tx.Model(&models.JackpotFixture{}).
				Where("id = ?", fx.ID).
				Update("actual_result", outcome).Error; err != nil {
				return err
			}
			settled++

			n, err := h.recordValidation(tx, fx.ID, outcome)
			if err != nil {
				return err
			}
			pairs += n
		}
		return nil
	})
	if err != nil {
		respondError(c, h.logger, apperrors.Wrap(err, apperrors.CodeInternal, "settlement failed"))
		return
	}

	h.probCache.Invalidate(ctx, id)
	h.logger.WithFields(logrus.Fields{
		"jackpot_id":       id.String(),
		"settled":          settled,
		"validation_pairs": pairs,
	}).Info("Jackpot settled")

	c.JSON(http.StatusOK, gin.H{
		"jackpot_id":       id,
		"settled":          settled,
		"validation_pairs": pairs,
	})
}

// recordValidation converts the fixture's stored predictions into
// validation pairs, scoring each against the actual outcome.
func (h *JackpotHandler) recordValidation(tx *gorm.DB, fixtureID uuid.UUID, outcome models.Outcome) (int, error) {
	var predictions []models.Prediction
	if err := tx.Where("fixture_id = ?", fixtureID).Find(&predictions).Error; err != nil {
		return 0, err
	}
	created := 0
	for i := range predictions {
		p := &predictions[i]
		triple := probability.ProbTriple{Home: p.ProbHome, Draw: p.ProbDraw, Away: p.ProbAway}
		vr := models.ValidationResult{
			FixtureID:    fixtureID,
			SetKey:       p.SetKey,
			ProbHome:     p.ProbHome,
			ProbDraw:     p.ProbDraw,
			ProbAway:     p.ProbAway,
			ActualResult: outcome,
			BrierScore:   brierScore(triple, outcome),
			LogLoss:      logLoss(triple, outcome),
		}
		if err := tx.Create(&vr).Error; err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}

func brierScore(p probability.ProbTriple, outcome models.Outcome) float64 {
	actual := [3]float64{}
	switch outcome {
	case models.OutcomeHome:
		actual[0] = 1
	case models.OutcomeDraw:
		actual[1] = 1
	case models.OutcomeAway:
		actual[2] = 1
	}
	probs := [3]float64{p.Home, p.Draw, p.Away}
	sum := 0.0
	for i := range probs {
		d := probs[i] - actual[i]
		sum += d * d
	}
	return sum
}

func logLoss(p probability.ProbTriple, outcome models.Outcome) float64 {
	var prob float64
	switch outcome {
	case models.OutcomeHome:
		prob = p.Home
	case models.OutcomeDraw:
		prob = p.Draw
	default:
		prob = p.Away
	}
	return -math.Log(math.Max(prob, 1e-12))
}
