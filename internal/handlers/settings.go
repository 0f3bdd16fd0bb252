package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/reviewbuddy/backend/internal/services"
	"github.com/huangang/reviewbuddy/backend/pkg/response"
	"gorm.io/gorm"
)

// SettingsHandler exposes the brand configuration. Secrets are always
// returned masked.
type SettingsHandler struct {
	settingsService *services.SettingsService
}

func NewSettingsHandler(db *gorm.DB) *SettingsHandler {
	return &SettingsHandler{
		settingsService: services.NewSettingsService(db),
	}
}

func (h *SettingsHandler) Get(c *gin.Context) {
	brand, err := h.settingsService.Get()
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, brand.Masked())
}

func (h *SettingsHandler) Update(c *gin.Context) {
	var req services.UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	userID := currentUserID(c)
	brand, fields, err := h.settingsService.Update(&req, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if len(fields) > 0 {
		services.LogInfo("settings", "update", "Brand settings updated", userID, c.ClientIP(), c.Request.UserAgent(), gin.H{"fields": fields})
	}
	response.Success(c, brand.Masked())
}
