package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/reviewbuddy/backend/internal/services"
	"github.com/huangang/reviewbuddy/backend/pkg/response"
	"gorm.io/gorm"
)

type LLMConfigHandler struct {
	llmConfigService *services.LLMConfigService
	aiService        *services.AIService
}

func NewLLMConfigHandler(db *gorm.DB, ai *services.AIService) *LLMConfigHandler {
	return &LLMConfigHandler{
		llmConfigService: services.NewLLMConfigService(db),
		aiService:        ai,
	}
}

func (h *LLMConfigHandler) List(c *gin.Context) {
	var req services.LLMConfigListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.llmConfigService.List(&req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, resp)
}

func (h *LLMConfigHandler) GetByID(c *gin.Context) {
	id, ok := parseID(c, "LLM config")
	if !ok {
		return
	}

	config, err := h.llmConfigService.GetByID(id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, config)
}

func (h *LLMConfigHandler) Create(c *gin.Context) {
	var req services.CreateLLMConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	config, err := h.llmConfigService.Create(&req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, config)
}

func (h *LLMConfigHandler) Update(c *gin.Context) {
	id, ok := parseID(c, "LLM config")
	if !ok {
		return
	}

	var req services.UpdateLLMConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	config, err := h.llmConfigService.Update(id, &req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, config)
}

func (h *LLMConfigHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "LLM config")
	if !ok {
		return
	}

	if err := h.llmConfigService.Delete(id); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, gin.H{"message": "deleted"})
}

func (h *LLMConfigHandler) GetActive(c *gin.Context) {
	configs, err := h.llmConfigService.GetActive()
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, configs)
}

// TestConnection sends a short prompt through one config.
func (h *LLMConfigHandler) TestConnection(c *gin.Context) {
	id, ok := parseID(c, "LLM config")
	if !ok {
		return
	}

	reply, err := h.aiService.TestConnection(c.Request.Context(), id)
	if err != nil {
		response.Error(c, response.NewBadGateway("LLM test failed: "+err.Error()))
		return
	}

	response.Success(c, gin.H{"reply": reply})
}
