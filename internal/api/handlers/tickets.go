package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/tipster-dev/jackpot-sim/internal/apperrors"
	"github.com/tipster-dev/jackpot-sim/internal/cache"
	"github.com/tipster-dev/jackpot-sim/internal/models"
	"github.com/tipster-dev/jackpot-sim/internal/probability"
	"github.com/tipster-dev/jackpot-sim/internal/tickets"
	"github.com/tipster-dev/jackpot-sim/pkg/database"
)

// TicketHandler generates role-specialized ticket bundles.
type TicketHandler struct {
	db        *database.DB
	pipeline  *probability.Pipeline
	generator *tickets.Generator
	probCache *cache.ProbabilityCache
	logger    *logrus.Entry
}

func NewTicketHandler(db *database.DB, pl *probability.Pipeline, gen *tickets.Generator, probCache *cache.ProbabilityCache, logger *logrus.Logger) *TicketHandler {
	return &TicketHandler{
		db:        db,
		pipeline:  pl,
		generator: gen,
		probCache: probCache,
		logger:    logger.WithField("component", "ticket_handler"),
	}
}

type generateRequest struct {
	JackpotID uuid.UUID `json:"jackpot_id" binding:"required"`
	Roles     []string  `json:"roles"`
}

// Generate computes (or reuses) the jackpot's probability sets and
// builds one ticket per requested role.
func (h *TicketHandler) Generate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	ctx := c.Request.Context()
	var jackpot models.Jackpot
	err := h.db.WithContext(ctx).
		Preload("Fixtures", func(tx *gorm.DB) *gorm.DB { return tx.Order("match_order") }).
		First(&jackpot, "id = ?", req.JackpotID).Error
	if err != nil {
		respondError(c, h.logger, apperrors.Wrap(err, apperrors.CodeNotFound, "jackpot %s not found", req.JackpotID))
		return
	}

	results, ok := h.probCache.Get(ctx, req.JackpotID, nil)
	if !ok {
		results, err = h.pipeline.ComputeJackpot(ctx, req.JackpotID, nil)
		if err != nil {
			respondError(c, h.logger, err)
			return
		}
		h.probCache.Set(ctx, req.JackpotID, nil, results)
	}

	inputs, err := h.buildInputs(ctx, jackpot.Fixtures, results)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	bundle, err := h.generator.Generate(inputs, req.Roles)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"jackpot_id": req.JackpotID,
		"bundle":     bundle,
	})
}

// buildInputs joins the fixture rows with their computed probability
// sets, in match order.
func (h *TicketHandler) buildInputs(ctx context.Context, fixtures []models.JackpotFixture, results []probability.FixtureResult) ([]tickets.FixtureInput, error) {
	byFixture := make(map[uuid.UUID]*probability.FixtureResult, len(results))
	for i := range results {
		byFixture[results[i].FixtureID] = &results[i]
	}

	leagueCodes := map[uuid.UUID]string{}
	inputs := make([]tickets.FixtureInput, 0, len(fixtures))
	for i := range fixtures {
		fx := &fixtures[i]
		res, ok := byFixture[fx.ID]
		if !ok {
			return nil, apperrors.New(apperrors.CodeInternal,
				"no computed probabilities for fixture %d", fx.MatchOrder)
		}

		leagueCode := ""
		if fx.LeagueID != nil {
			if code, ok := leagueCodes[*fx.LeagueID]; ok {
				leagueCode = code
			} else {
				var league models.League
				if err := h.db.WithContext(ctx).First(&league, "id = ?", *fx.LeagueID).Error; err == nil {
					leagueCode = league.Code
				}
				leagueCodes[*fx.LeagueID] = leagueCode
			}
		}

		inputs = append(inputs, tickets.FixtureInput{
			FixtureID:  fx.ID,
			Order:      fx.MatchOrder,
			LeagueCode: leagueCode,
			KickoffTS:  fx.KickoffTS,
			OddsHome:   fx.OddsHome,
			OddsDraw:   fx.OddsDraw,
			OddsAway:   fx.OddsAway,
			OpenHome:   fx.OpenHome,
			OpenDraw:   fx.OpenDraw,
			OpenAway:   fx.OpenAway,
			Sets:       res.Sets,
			LambdaHome: res.LambdaHome,
			LambdaAway: res.LambdaAway,
			DrawSignal: res.DrawSignal,
		})
	}
	return inputs, nil
}
