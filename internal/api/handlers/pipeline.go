package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tipster-dev/jackpot-sim/internal/apperrors"
	"github.com/tipster-dev/jackpot-sim/internal/pipeline"
)

// PipelineHandler fronts the async reconcile/ingest/train pipeline.
type PipelineHandler struct {
	runner   *pipeline.Runner
	registry *pipeline.Registry
	logger   *logrus.Entry
}

func NewPipelineHandler(runner *pipeline.Runner, registry *pipeline.Registry, logger *logrus.Logger) *PipelineHandler {
	return &PipelineHandler{
		runner:   runner,
		registry: registry,
		logger:   logger.WithField("component", "pipeline_handler"),
	}
}

// CheckStatus classifies the request's teams without side effects.
func (h *PipelineHandler) CheckStatus(c *gin.Context) {
	var req pipeline.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	class, err := h.runner.CheckStatus(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"classification": class,
		"needs_work":     class.NeedsWork(),
	})
}

// Run enqueues a pipeline task and returns its id immediately.
func (h *PipelineHandler) Run(c *gin.Context) {
	var req pipeline.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	task, err := h.runner.Run(req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"task_id": task.ID,
		"status":  pipeline.StatusQueued,
	})
}

// GetStatus returns the task snapshot for polling clients.
func (h *PipelineHandler) GetStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("task_id"))
	if err != nil {
		respondError(c, h.logger, apperrors.New(apperrors.CodeInputValidation, "invalid task id %q", c.Param("task_id")))
		return
	}
	task, ok := h.registry.Get(id)
	if !ok {
		respondError(c, h.logger, apperrors.New(apperrors.CodeNotFound, "pipeline task %s not found", id))
		return
	}
	c.JSON(http.StatusOK, task.Snapshot())
}

// Cancel requests a clean stop; the task finishes its current stage
// and lands on partial.
func (h *PipelineHandler) Cancel(c *gin.Context) {
	id, err := uuid.Parse(c.Param("task_id"))
	if err != nil {
		respondError(c, h.logger, apperrors.New(apperrors.CodeInputValidation, "invalid task id %q", c.Param("task_id")))
		return
	}
	task, ok := h.registry.Get(id)
	if !ok {
		respondError(c, h.logger, apperrors.New(apperrors.CodeNotFound, "pipeline task %s not found", id))
		return
	}
	task.Cancel()
	c.JSON(http.StatusAccepted, gin.H{"task_id": id, "cancelling": true})
}
