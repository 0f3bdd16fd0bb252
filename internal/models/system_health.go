package models

import "time"

// SystemHealth is the running rollup for one local calendar day.
type SystemHealth struct {
	ID                   uint      `gorm:"primaryKey" json:"id"`
	TotalReviews         int       `gorm:"default:0" json:"total_reviews"`
	AutoHandledCount     int       `gorm:"default:0" json:"auto_handled_count"`
	HoldForApprovalCount int       `gorm:"default:0" json:"hold_for_approval_count"`
	EscalatedCount       int       `gorm:"default:0" json:"escalated_count"`
	EscalationRate       float64   `gorm:"default:0" json:"escalation_rate"`
	OverrideCount        int       `gorm:"default:0" json:"override_count"`
	OverrideFrequency    float64   `gorm:"default:0" json:"override_frequency"`
	AvgConfidenceScore   float64   `gorm:"default:0" json:"avg_confidence_score"`
	Timestamp            time.Time `gorm:"index;not null" json:"timestamp"`
	AlertTriggered       bool      `gorm:"default:false" json:"alert_triggered"`
	AlertMessage         string    `gorm:"type:text" json:"alert_message,omitempty"`
	UpdatedAt            time.Time `json:"updated_at"`
}

func (SystemHealth) TableName() string { return "system_health" }

// LocalMidnight returns the start of t's day in t's location.
func LocalMidnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
