package handlers

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/huangang/reviewbuddy/backend/internal/models"
	"github.com/huangang/reviewbuddy/backend/internal/services"
	"github.com/huangang/reviewbuddy/backend/pkg/response"
	"gorm.io/gorm"
)

// currentUserID returns the authenticated operator, or nil on anonymous routes.
func currentUserID(c *gin.Context) *uint {
	v, ok := c.Get("user_id")
	if !ok {
		return nil
	}
	id, ok := v.(uint)
	if !ok || id == 0 {
		return nil
	}
	return &id
}

func parseID(c *gin.Context, what string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		response.BadRequest(c, "invalid "+what+" id")
		return 0, false
	}
	return uint(id), true
}

// activeBrand loads the brand configuration every Kiyoh or notification
// call needs.
func activeBrand(c *gin.Context, db *gorm.DB) (*models.BrandConfig, bool) {
	brand, err := services.ActiveBrandConfig(db)
	if err != nil {
		response.Error(c, brandError(err))
		return nil, false
	}
	return brand, true
}

func brandError(err error) error {
	if errors.Is(err, services.ErrBrandConfigMissing) {
		return response.NewBadRequest("Brand configuration not found")
	}
	return err
}
