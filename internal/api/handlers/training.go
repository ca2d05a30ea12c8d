package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/tipster-dev/jackpot-sim/internal/apperrors"
	"github.com/tipster-dev/jackpot-sim/internal/cache"
	"github.com/tipster-dev/jackpot-sim/internal/models"
	"github.com/tipster-dev/jackpot-sim/internal/modelstore"
	"github.com/tipster-dev/jackpot-sim/internal/training"
	"github.com/tipster-dev/jackpot-sim/pkg/database"
)

// TrainingHandler triggers individual model training runs outside the
// pipeline, and exposes model lookups.
type TrainingHandler struct {
	db        *database.DB
	trainer   *training.Service
	store     *modelstore.Store
	probCache *cache.ProbabilityCache
	logger    *logrus.Entry
}

func NewTrainingHandler(db *database.DB, trainer *training.Service, store *modelstore.Store, probCache *cache.ProbabilityCache, logger *logrus.Logger) *TrainingHandler {
	return &TrainingHandler{
		db:        db,
		trainer:   trainer,
		store:     store,
		probCache: probCache,
		logger:    logger.WithField("component", "training_handler"),
	}
}

type trainRequest struct {
	Leagues     []string `json:"leagues"`
	WindowYears int      `json:"window_years"`
}

// Train runs one training type synchronously. Long-running; the
// pipeline endpoint is the async alternative.
func (h *TrainingHandler) Train(c *gin.Context) {
	modelType := c.Param("type")
	var req trainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	opts := training.Options{Leagues: req.Leagues, WindowYears: req.WindowYears}

	ctx := c.Request.Context()
	var (
		model   *models.Model
		metrics training.Metrics
		err     error
	)
	switch modelType {
	case models.ModelTypePoisson:
		model, metrics, err = h.trainer.TrainPoisson(ctx, opts)
	case models.ModelTypeBlending:
		model, metrics, err = h.trainer.TrainBlending(ctx, opts)
	case models.ModelTypeCalibration:
		model, metrics, err = h.trainer.TrainCalibration(ctx, opts)
	case models.ModelTypeDrawCalibration:
		model, metrics, err = h.trainer.TrainDrawCalibration(ctx)
	default:
		respondError(c, h.logger, apperrors.New(apperrors.CodeInputValidation,
			"unknown model type %q", modelType))
		return
	}
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	// The new model is active: cached probabilities are stale.
	h.probCache.InvalidateAll(ctx)
	c.JSON(http.StatusOK, gin.H{
		"model":   model,
		"metrics": metrics,
	})
}

// ListModels returns the model registry, newest first.
func (h *TrainingHandler) ListModels(c *gin.Context) {
	var list []models.Model
	query := h.db.WithContext(c.Request.Context()).Order("created_at desc")
	if t := c.Query("type"); t != "" {
		query = query.Where("type = ?", t)
	}
	if err := query.Limit(100).Find(&list).Error; err != nil {
		respondError(c, h.logger, apperrors.Wrap(err, apperrors.CodeInternal, "model listing failed"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"models": list})
}

// GetActiveModel returns the active model of the given type.
func (h *TrainingHandler) GetActiveModel(c *gin.Context) {
	model, err := h.store.Active(c.Request.Context(), c.Param("type"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, model)
}
