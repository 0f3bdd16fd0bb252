package models

import "time"

// LLM call purposes recorded in AIUsageLog.
const (
	PurposeRiskAssessment     = "risk_assessment"
	PurposeResponseGeneration = "response_generation"
	PurposeConnectionTest     = "connection_test"
)

// AIUsageLog records each LLM API call for cost and usage tracking.
type AIUsageLog struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	ReviewID         *uint     `gorm:"index" json:"review_id"`
	LLMConfigID      *uint     `gorm:"index" json:"llm_config_id"` // nil when the brand key or config file was used
	Purpose          string    `gorm:"size:50;index" json:"purpose"`
	Provider         string    `gorm:"size:50" json:"provider"`
	Model            string    `gorm:"size:100" json:"model"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	LatencyMs        int64     `json:"latency_ms"`
	Success          bool      `json:"success"`
	ErrorMessage     string    `gorm:"size:500" json:"error_message,omitempty"`
	CreatedAt        time.Time `gorm:"index" json:"created_at"`
}

func (AIUsageLog) TableName() string { return "ai_usage_logs" }
