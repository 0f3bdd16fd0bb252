package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/reviewbuddy/backend/internal/services"
	"github.com/huangang/reviewbuddy/backend/pkg/response"
	"gorm.io/gorm"
)

// AIUsageHandler provides endpoints for AI usage statistics.
type AIUsageHandler struct {
	usageService *services.AIUsageService
}

func NewAIUsageHandler(db *gorm.DB) *AIUsageHandler {
	return &AIUsageHandler{
		usageService: services.NewAIUsageService(db),
	}
}

// GetStats returns aggregated AI usage statistics. purpose narrows to
// risk_assessment or response_generation.
func (h *AIUsageHandler) GetStats(c *gin.Context) {
	stats, err := h.usageService.GetStats(c.Query("start_date"), c.Query("end_date"), c.Query("purpose"))
	if err != nil {
		response.ServerError(c, "failed to get AI usage stats: "+err.Error())
		return
	}

	response.Success(c, stats)
}

// GetDailyTrend returns daily AI usage data for charting.
func (h *AIUsageHandler) GetDailyTrend(c *gin.Context) {
	trend, err := h.usageService.GetDailyTrend(c.Query("start_date"), c.Query("end_date"), c.Query("purpose"))
	if err != nil {
		response.ServerError(c, "failed to get AI usage trend: "+err.Error())
		return
	}

	response.Success(c, trend)
}

// GetProviderBreakdown returns AI usage grouped by provider/model.
func (h *AIUsageHandler) GetProviderBreakdown(c *gin.Context) {
	providers, err := h.usageService.GetProviderBreakdown(c.Query("start_date"), c.Query("end_date"))
	if err != nil {
		response.ServerError(c, "failed to get provider breakdown: "+err.Error())
		return
	}

	response.Success(c, providers)
}

// GetReviewCost sums the tokens spent processing one review.
func (h *AIUsageHandler) GetReviewCost(c *gin.Context) {
	id, ok := parseID(c, "review")
	if !ok {
		return
	}
	stats, err := h.usageService.ReviewCost(id)
	if err != nil {
		response.ServerError(c, "failed to get review cost: "+err.Error())
		return
	}
	response.Success(c, stats)
}
