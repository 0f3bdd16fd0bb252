package models

import (
	"errors"
	"time"
)

var ErrRespondedWithoutResponse = errors.New("a responded review needs a generated response and an external id")

// Review is one customer review imported from a review platform.
type Review struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	ExternalID      *string    `gorm:"uniqueIndex;size:191" json:"external_id"`
	Platform        string     `gorm:"size:50;default:kiyoh;index" json:"platform"`
	ReviewText      string     `gorm:"type:text;not null" json:"review_text"`
	OneLiner        string     `gorm:"size:500" json:"one_liner"`
	Rating          int        `gorm:"default:0" json:"rating"` // 0-10
	ReviewerName    string     `gorm:"size:200;default:Anonymous" json:"reviewer_name"`
	ReviewerCity    string     `gorm:"size:200" json:"reviewer_city"`
	ReviewTimestamp *time.Time `json:"review_timestamp"`

	// Risk fields stay null until the review is processed.
	ContentRisk       *RiskLevel      `gorm:"size:20" json:"content_risk"`
	ReputationalRisk  *RiskLevel      `gorm:"size:20" json:"reputational_risk"`
	ContextualRisk    *RiskLevel      `gorm:"size:20" json:"contextual_risk"`
	PIIDetected       bool            `gorm:"column:pii_detected;default:false" json:"pii_detected"`
	LegalRiskDetected bool            `gorm:"default:false" json:"legal_risk_detected"`
	RiskAssessment    *RiskAssessment `gorm:"type:text;serializer:json" json:"risk_assessment"`
	Sentiment         *Sentiment      `gorm:"size:20" json:"sentiment"`
	Topics            []string        `gorm:"type:text;serializer:json" json:"topics"`

	Decision          *Decision `gorm:"size:30;index" json:"decision"`
	ConfidenceScore   int       `gorm:"default:0" json:"confidence_score"`
	DecisionRationale string    `gorm:"type:text" json:"decision_rationale"`

	GeneratedResponse   *string        `gorm:"type:text" json:"generated_response"`
	ResponseStatus      ResponseStatus `gorm:"size:20;default:pending" json:"response_status"`
	ResponsePublishedAt *time.Time     `json:"response_published_at"`

	Status ReviewStatus `gorm:"size:30;default:new;index" json:"status"`

	AssignedToID     *uint  `gorm:"index" json:"assigned_to_id"`
	AssignedTo       *User  `gorm:"foreignKey:AssignedToID" json:"assigned_to,omitempty"`
	HumanNotes       string `gorm:"type:text" json:"human_notes"`
	HumanActionTaken string `gorm:"size:200" json:"human_action_taken"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Review) TableName() string { return "reviews" }

// CheckRespondedInvariant verifies a review marked responded has something
// that was actually published.
func (r *Review) CheckRespondedInvariant() error {
	if r.Status != ReviewStatusResponded {
		return nil
	}
	if r.GeneratedResponse == nil || *r.GeneratedResponse == "" || r.ExternalID == nil || *r.ExternalID == "" {
		return ErrRespondedWithoutResponse
	}
	return nil
}

// ResponseText returns the generated response or an empty string.
func (r *Review) ResponseText() string {
	if r.GeneratedResponse == nil {
		return ""
	}
	return *r.GeneratedResponse
}
