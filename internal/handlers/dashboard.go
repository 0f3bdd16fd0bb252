package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/reviewbuddy/backend/internal/services"
	"github.com/huangang/reviewbuddy/backend/internal/services/kiyoh"
	"github.com/huangang/reviewbuddy/backend/pkg/response"
	"gorm.io/gorm"
)

type DashboardHandler struct {
	dashboardService *services.DashboardService
}

func NewDashboardHandler(db *gorm.DB, client *kiyoh.Client) *DashboardHandler {
	return &DashboardHandler{
		dashboardService: services.NewDashboardService(db, client),
	}
}

// GetStats returns dashboard statistics
// GET /api/dashboard/stats
func (h *DashboardHandler) GetStats(c *gin.Context) {
	var req services.DashboardStatsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.dashboardService.GetStats(c.Request.Context(), &req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, resp)
}
