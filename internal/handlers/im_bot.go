package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/huangang/reviewbuddy/backend/internal/services"
	"github.com/huangang/reviewbuddy/backend/pkg/response"
	"gorm.io/gorm"
)

type IMBotHandler struct {
	imBotService *services.IMBotService
	notifier     *services.NotificationService
}

func NewIMBotHandler(db *gorm.DB, notifier *services.NotificationService) *IMBotHandler {
	return &IMBotHandler{
		imBotService: services.NewIMBotService(db),
		notifier:     notifier,
	}
}

func (h *IMBotHandler) List(c *gin.Context) {
	var req services.IMBotListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.imBotService.List(&req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, resp)
}

func (h *IMBotHandler) GetByID(c *gin.Context) {
	id, ok := parseID(c, "bot")
	if !ok {
		return
	}

	bot, err := h.imBotService.GetByID(id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, bot)
}

func (h *IMBotHandler) Create(c *gin.Context) {
	var req services.CreateIMBotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	bot, err := h.imBotService.Create(&req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, bot)
}

func (h *IMBotHandler) Update(c *gin.Context) {
	id, ok := parseID(c, "bot")
	if !ok {
		return
	}

	var req services.UpdateIMBotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	bot, err := h.imBotService.Update(id, &req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, bot)
}

func (h *IMBotHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "bot")
	if !ok {
		return
	}

	if err := h.imBotService.Delete(id); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, gin.H{"message": "bot deleted successfully"})
}

func (h *IMBotHandler) GetAllActive(c *gin.Context) {
	bots, err := h.imBotService.GetAllActive()
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, bots)
}

// SendTest handles POST /api/im-bots/:id/test.
func (h *IMBotHandler) SendTest(c *gin.Context) {
	id, ok := parseID(c, "bot")
	if !ok {
		return
	}

	if err := h.imBotService.SendTest(id, h.notifier); err != nil {
		var appErr *response.AppError
		if errors.As(err, &appErr) {
			response.Error(c, err)
			return
		}
		response.Error(c, response.NewBadGateway("test message failed: "+err.Error()))
		return
	}

	response.Success(c, gin.H{"message": "test message sent"})
}
