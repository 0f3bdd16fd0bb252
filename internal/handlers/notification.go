package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/reviewbuddy/backend/internal/services"
	"github.com/huangang/reviewbuddy/backend/pkg/response"
	"gorm.io/gorm"
)

// NotificationHandler covers notifications an operator sends by hand.
type NotificationHandler struct {
	db     *gorm.DB
	manual *services.ManualNotificationService
}

func NewNotificationHandler(db *gorm.DB, manual *services.ManualNotificationService) *NotificationHandler {
	return &NotificationHandler{db: db, manual: manual}
}

// SendSlack handles POST /api/notifications/slack.
func (h *NotificationHandler) SendSlack(c *gin.Context) {
	var req services.SlackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	brand, ok := activeBrand(c, h.db)
	if !ok {
		return
	}

	if err := h.manual.SendSlack(brand, &req, currentUserID(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"message": "Slack notification sent"})
}

// TestWhatsApp handles POST /api/notifications/whatsapp/test.
func (h *NotificationHandler) TestWhatsApp(c *gin.Context) {
	brand, ok := activeBrand(c, h.db)
	if !ok {
		return
	}

	result, err := h.manual.TestWhatsApp(c.Request.Context(), brand, currentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}
