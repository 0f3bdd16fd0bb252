package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/reviewbuddy/backend/internal/services"
	"github.com/huangang/reviewbuddy/backend/pkg/response"
	"gorm.io/gorm"
)

type SystemConfigHandler struct {
	configService *services.SystemConfigService
	scheduler     *services.Scheduler
}

func NewSystemConfigHandler(db *gorm.DB, scheduler *services.Scheduler) *SystemConfigHandler {
	return &SystemConfigHandler{
		configService: services.NewSystemConfigService(db),
		scheduler:     scheduler,
	}
}

// GetOperationsConfig returns retention, health alert and digest settings
// GET /api/system-config/operations
func (h *SystemConfigHandler) GetOperationsConfig(c *gin.Context) {
	response.Success(c, h.configService.GetOperationsConfig())
}

// UpdateOperationsConfig
// PUT /api/system-config/operations
func (h *SystemConfigHandler) UpdateOperationsConfig(c *gin.Context) {
	var req services.UpdateOperationsConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.configService.UpdateOperationsConfig(&req); err != nil {
		response.Error(c, err)
		return
	}
	if h.scheduler != nil {
		h.scheduler.RefreshDigest()
	}

	response.Success(c, h.configService.GetOperationsConfig())
}
