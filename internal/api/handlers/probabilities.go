package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tipster-dev/jackpot-sim/internal/cache"
	"github.com/tipster-dev/jackpot-sim/internal/probability"
)

// ProbabilityHandler computes the probability sets for a jackpot.
type ProbabilityHandler struct {
	pipeline  *probability.Pipeline
	probCache *cache.ProbabilityCache
	logger    *logrus.Entry
}

func NewProbabilityHandler(pl *probability.Pipeline, probCache *cache.ProbabilityCache, logger *logrus.Logger) *ProbabilityHandler {
	return &ProbabilityHandler{
		pipeline:  pl,
		probCache: probCache,
		logger:    logger.WithField("component", "probability_handler"),
	}
}

type computeRequest struct {
	JackpotID uuid.UUID `json:"jackpot_id" binding:"required"`
	Sets      []string  `json:"sets"`
	Fresh     bool      `json:"fresh"`
}

// Compute runs the staged pipeline for every fixture of the jackpot,
// serving from cache unless the client asks for a fresh computation.
func (h *ProbabilityHandler) Compute(c *gin.Context) {
	var req computeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := probability.ValidateSetKeys(req.Sets); err != nil {
		respondError(c, h.logger, err)
		return
	}

	ctx := c.Request.Context()
	if !req.Fresh {
		if results, ok := h.probCache.Get(ctx, req.JackpotID, req.Sets); ok {
			c.JSON(http.StatusOK, gin.H{
				"jackpot_id": req.JackpotID,
				"fixtures":   results,
				"cached":     true,
			})
			return
		}
	}

	results, err := h.pipeline.ComputeJackpot(ctx, req.JackpotID, req.Sets)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.probCache.Set(ctx, req.JackpotID, req.Sets, results)

	c.JSON(http.StatusOK, gin.H{
		"jackpot_id": req.JackpotID,
		"fixtures":   results,
		"cached":     false,
	})
}
