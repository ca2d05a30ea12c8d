package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/tipster-dev/jackpot-sim/internal/apperrors"
	"github.com/tipster-dev/jackpot-sim/internal/ingest"
	"github.com/tipster-dev/jackpot-sim/internal/leagues"
)

// AdminHandler covers operational endpoints: league statistics refresh
// and manual ingestion.
type AdminHandler struct {
	leagues  *leagues.Service
	ingestor *ingest.Ingestor
	logger   *logrus.Entry
}

func NewAdminHandler(leagueSvc *leagues.Service, ing *ingest.Ingestor, logger *logrus.Logger) *AdminHandler {
	return &AdminHandler{
		leagues:  leagueSvc,
		ingestor: ing,
		logger:   logger.WithField("component", "admin_handler"),
	}
}

// UpdateLeagueStatistics recomputes draw rates and home advantage for
// every active league.
func (h *AdminHandler) UpdateLeagueStatistics(c *gin.Context) {
	stats, err := h.leagues.UpdateStatistics(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, apperrors.Wrap(err, apperrors.CodeInternal, "league statistics update failed"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"leagues": stats})
}

type ingestRequest struct {
	LeagueCode  string   `json:"league_code" binding:"required"`
	Seasons     []string `json:"seasons" binding:"required,min=1"`
	CreateTeams bool     `json:"create_teams"`
}

// IngestLeague downloads and upserts the named league-season files
// synchronously. The pipeline is the usual caller; this endpoint is
// for backfills.
func (h *AdminHandler) IngestLeague(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	report, err := h.ingestor.Ingest(c.Request.Context(), req.LeagueCode, req.Seasons, req.CreateTeams)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
