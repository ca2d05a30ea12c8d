package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/tipster-dev/jackpot-sim/pkg/database"
)

// HealthHandler reports service liveness and dependency health.
type HealthHandler struct {
	db     *database.DB
	redis  *redis.Client
	logger *logrus.Logger
}

func NewHealthHandler(db *database.DB, rdb *redis.Client, logger *logrus.Logger) *HealthHandler {
	return &HealthHandler{db: db, redis: rdb, logger: logger}
}

type healthStatus struct {
	Status    string            `json:"status"`
	Service   string            `json:"service"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

// GetHealth checks the database (critical) and redis (degraded-only;
// every cache read has a database fallback).
func (h *HealthHandler) GetHealth(c *gin.Context) {
	response := healthStatus{
		Status:    "ok",
		Service:   "jackpot-sim",
		Timestamp: time.Now(),
		Checks:    make(map[string]string),
	}

	if err := h.db.HealthCheck(); err != nil {
		response.Status = "unhealthy"
		response.Checks["database"] = "failed: " + err.Error()
	} else {
		response.Checks["database"] = "ok"
	}

	if h.redis != nil {
		if err := h.redis.Ping(c.Request.Context()).Err(); err != nil {
			if response.Status == "ok" {
				response.Status = "degraded"
			}
			response.Checks["redis"] = "failed: " + err.Error()
		} else {
			response.Checks["redis"] = "ok"
		}
	} else {
		response.Checks["redis"] = "not_configured"
	}

	statusCode := http.StatusOK
	if response.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}
	c.JSON(statusCode, response)
}

// GetReady reports readiness: the database must answer.
func (h *HealthHandler) GetReady(c *gin.Context) {
	if err := h.db.HealthCheck(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
