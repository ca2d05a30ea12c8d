package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/tipster-dev/jackpot-sim/internal/apperrors"
	"github.com/tipster-dev/jackpot-sim/internal/models"
	"github.com/tipster-dev/jackpot-sim/internal/training"
	"github.com/tipster-dev/jackpot-sim/pkg/database"
)

// ValidationHandler exports settled prediction-vs-actual pairs to the
// training corpus and retrains draw calibration once enough pairs
// accumulate.
type ValidationHandler struct {
	db      *database.DB
	trainer *training.Service
	logger  *logrus.Entry
}

func NewValidationHandler(db *database.DB, trainer *training.Service, logger *logrus.Logger) *ValidationHandler {
	return &ValidationHandler{
		db:      db,
		trainer: trainer,
		logger:  logger.WithField("component", "validation_handler"),
	}
}

// Export marks pending validation pairs as exported. When the exported
// corpus crosses the draw-calibration minimum, a retrain kicks off in
// the background.
func (h *ValidationHandler) Export(c *gin.Context) {
	ctx := c.Request.Context()

	result := h.db.WithContext(ctx).
		Model(&models.ValidationResult{}).
		Where("exported_to_training = ?", false).
		Update("exported_to_training", true)
	if result.Error != nil {
		respondError(c, h.logger, apperrors.Wrap(result.Error, apperrors.CodeInternal, "validation export failed"))
		return
	}

	var total int64
	if err := h.db.WithContext(ctx).
		Model(&models.ValidationResult{}).
		Where("exported_to_training = ?", true).
		Count(&total).Error; err != nil {
		respondError(c, h.logger, apperrors.Wrap(err, apperrors.CodeInternal, "validation export failed"))
		return
	}

	retraining := false
	if total >= training.MinDrawCalibrationSamples {
		retraining = true
		go h.retrainDrawCalibration()
	}

	c.JSON(http.StatusOK, gin.H{
		"exported":                result.RowsAffected,
		"total_exported":          total,
		"draw_calibration_queued": retraining,
	})
}

func (h *ValidationHandler) retrainDrawCalibration() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	model, metrics, err := h.trainer.TrainDrawCalibration(ctx)
	if err != nil {
		h.logger.WithError(err).Warn("Automatic draw calibration retrain failed")
		return
	}
	h.logger.WithFields(logrus.Fields{
		"model_id": model.ID.String(),
		"metrics":  metrics,
	}).Info("Draw calibration retrained from exported validation pairs")
}

// Summary reports validation accuracy per probability set.
func (h *ValidationHandler) Summary(c *gin.Context) {
	type row struct {
		SetKey    string  `json:"set_key"`
		Pairs     int     `json:"pairs"`
		AvgBrier  float64 `json:"avg_brier"`
		AvgLoss   float64 `json:"avg_log_loss"`
		DrawShare float64 `json:"draw_share"`
	}
	var rows []row
	err := h.db.WithContext(c.Request.Context()).
		Model(&models.ValidationResult{}).
		Select("set_key, count(*) as pairs, avg(brier_score) as avg_brier, avg(log_loss) as avg_loss, " +
			"avg(case when actual_result = 'D' then 1.0 else 0.0 end) as draw_share").
		Group("set_key").
		Order("set_key").
		Scan(&rows).Error
	if err != nil {
		respondError(c, h.logger, apperrors.Wrap(err, apperrors.CodeInternal, "validation summary failed"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"sets": rows})
}
