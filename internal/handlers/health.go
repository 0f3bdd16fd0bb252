package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/huangang/reviewbuddy/backend/internal/models"
	"github.com/huangang/reviewbuddy/backend/internal/services"
	"github.com/huangang/reviewbuddy/backend/pkg/response"
	"gorm.io/gorm"
)

// HealthHandler serves the liveness probe and the pipeline health rollups.
type HealthHandler struct {
	db     *gorm.DB
	health *services.HealthService
}

func NewHealthHandler(db *gorm.DB) *HealthHandler {
	return &HealthHandler{db: db, health: services.NewHealthService(db)}
}

// CheckHealth returns the health status of all subsystems.
// GET /health
func (h *HealthHandler) CheckHealth(c *gin.Context) {
	overall := "healthy"
	status := http.StatusOK

	dbStatus := "ok"
	sqlDB, err := h.db.DB()
	if err != nil {
		dbStatus = "error: " + err.Error()
		overall = "unhealthy"
	} else if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		dbStatus = "error: " + err.Error()
		overall = "unhealthy"
	}
	if overall != "healthy" {
		status = http.StatusServiceUnavailable
	}

	taskQueue := services.GetTaskQueue()
	queueMode := "sync"
	if taskQueue != nil && taskQueue.IsAsync() {
		queueMode = "async (Redis)"
	}

	var newReviews int64
	h.db.Model(&models.Review{}).Where("status = ?", models.ReviewStatusNew).Count(&newReviews)

	c.JSON(status, gin.H{
		"status":  overall,
		"service": "reviewbuddy",
		"components": gin.H{
			"database":    dbStatus,
			"queue_mode":  queueMode,
			"sse_clients": services.GetSSEHub().ClientCount(),
			"new_reviews": newReviews,
		},
	})
}

// Today returns the current day's SystemHealth record, or null.
// GET /api/health/today
func (h *HealthHandler) Today(c *gin.Context) {
	health, err := h.health.Today()
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, health)
}

// History returns one record per day, newest first.
// GET /api/health/history?days=7
func (h *HealthHandler) History(c *gin.Context) {
	days, _ := strconv.Atoi(c.DefaultQuery("days", "7"))
	if days > 90 {
		days = 90
	}
	records, err := h.health.History(days)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, records)
}
