package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/reviewbuddy/backend/internal/services"
	"github.com/huangang/reviewbuddy/backend/pkg/response"
	"gorm.io/gorm"
)

type InviteHandler struct {
	db      *gorm.DB
	invites *services.InviteService
}

func NewInviteHandler(db *gorm.DB, invites *services.InviteService) *InviteHandler {
	return &InviteHandler{db: db, invites: invites}
}

// Send handles POST /api/invites.
func (h *InviteHandler) Send(c *gin.Context) {
	var req services.InviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	brand, ok := activeBrand(c, h.db)
	if !ok {
		return
	}

	if err := h.invites.Send(c.Request.Context(), brand, &req, currentUserID(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"message": "Invite sent"})
}
