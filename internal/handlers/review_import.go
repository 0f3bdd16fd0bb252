package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/reviewbuddy/backend/internal/services"
	"github.com/huangang/reviewbuddy/backend/pkg/response"
	"gorm.io/gorm"
)

type ImportHandler struct {
	db       *gorm.DB
	importer *services.ImportService
}

func NewImportHandler(db *gorm.DB, importer *services.ImportService) *ImportHandler {
	return &ImportHandler{db: db, importer: importer}
}

// Fetch handles POST /api/reviews/fetch.
func (h *ImportHandler) Fetch(c *gin.Context) {
	var opts services.ImportOptions
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&opts); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}
	if opts.Limit < 0 {
		response.BadRequest(c, "limit must not be negative")
		return
	}

	brand, ok := activeBrand(c, h.db)
	if !ok {
		return
	}

	opts.Trigger = services.TriggerManual
	opts.UserID = currentUserID(c)
	result, err := h.importer.FetchReviews(c.Request.Context(), brand, opts)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}
