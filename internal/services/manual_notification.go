package services

import (
	"context"
	"errors"
	"strings"

	"github.com/huangang/reviewbuddy/backend/internal/models"
	"github.com/huangang/reviewbuddy/backend/pkg/logger"
	"github.com/huangang/reviewbuddy/backend/pkg/response"
	"gorm.io/gorm"
)

const (
	escalatedAction    = "Immediate review and response needed"
	heldAction         = "Review AI-generated response before publishing"
	manualAlertReason  = "Complex situation requiring human judgment"
	whatsAppTestBody   = "This is a test WhatsApp message from ReviewBuddy. Your integration is working!"
	whatsAppTestAction = "No action needed - just confirming the connection!"
)

// ManualNotificationService sends notifications an operator asked for,
// outside the processing pipeline.
type ManualNotificationService struct {
	db        *gorm.DB
	slack     *NotificationService
	whatsapp  *WhatsAppService
	publicURL string
}

func NewManualNotificationService(db *gorm.DB, slack *NotificationService, whatsapp *WhatsAppService, publicURL string) *ManualNotificationService {
	return &ManualNotificationService{db: db, slack: slack, whatsapp: whatsapp, publicURL: publicURL}
}

type SlackRequest struct {
	ReviewID      uint   `json:"review_id"`
	CustomMessage string `json:"custom_message"`
}

// StoredReviewAlert builds an alert from what is already persisted on a review.
func StoredReviewAlert(review *models.Review, publicURL string) *ReviewAlert {
	var assessment models.RiskAssessment
	if review.RiskAssessment != nil {
		assessment = *review.RiskAssessment
	} else {
		for _, pair := range []struct {
			dst *models.RiskLevel
			src *models.RiskLevel
		}{
			{&assessment.ContentRisk, review.ContentRisk},
			{&assessment.ReputationalRisk, review.ReputationalRisk},
			{&assessment.ContextualRisk, review.ContextualRisk},
		} {
			if pair.src != nil {
				*pair.dst = *pair.src
			}
		}
	}

	result := DecisionResult{ConfidenceScore: review.ConfidenceScore, Rationale: review.DecisionRationale}
	if result.Rationale == "" {
		result.Rationale = manualAlertReason
	}
	alert := NewReviewAlert(review, assessment, result, publicURL)
	alert.ActionRequired = heldAction
	if review.Decision != nil && *review.Decision == models.DecisionEscalate {
		alert.ActionRequired = escalatedAction
	}
	return alert
}

// SendSlack posts either a review alert or a custom message to the brand's
// Slack channel and audits it.
func (s *ManualNotificationService) SendSlack(brand *models.BrandConfig, req *SlackRequest, userID *uint) error {
	if !SlackReady(brand) {
		return response.NewBadRequest("Slack integration not configured or disabled")
	}
	custom := strings.TrimSpace(req.CustomMessage)
	if req.ReviewID == 0 && custom == "" {
		return response.NewBadRequest("Either reviewId or customMessage is required")
	}

	var reviewID *uint
	var err error
	if req.ReviewID != 0 {
		var review models.Review
		if err := s.db.First(&review, req.ReviewID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return response.NewNotFound("Review not found").WithCause(ErrReviewNotFound)
			}
			return err
		}
		reviewID = &review.ID
		err = s.slack.SendReviewAlert(brand, StoredReviewAlert(&review, s.publicURL))
	} else {
		err = s.slack.SendSlackText(brand, custom)
	}
	if err != nil {
		return response.NewBadGateway("Failed to send Slack notification: " + err.Error()).WithCause(err)
	}

	err = s.db.Create(&models.AuditLog{
		ActionType: models.ActionSlackNotificationSent,
		ReviewID:   reviewID,
		UserID:     userID,
		Metadata:   models.SlackNotificationMeta{Channel: brand.SlackChannelName, Manual: true},
	}).Error
	if err != nil {
		logger.Errorf("[Notification] Slack message sent but audit failed: %v", err)
	}
	return nil
}

type WhatsAppTestResult struct {
	Message string `json:"message"`
	SID     string `json:"sid"`
	Note    string `json:"note"`
}

// TestWhatsApp sends a fixed test alert to the admin number.
func (s *ManualNotificationService) TestWhatsApp(ctx context.Context, brand *models.BrandConfig, userID *uint) (*WhatsAppTestResult, error) {
	if !WhatsAppReady(brand) {
		return nil, response.NewBadRequest("WhatsApp not configured. Please fill in all Twilio fields.")
	}

	alert := &ReviewAlert{
		ReviewerName:    "Test User",
		Rating:          9,
		ReviewText:      whatsAppTestBody,
		RiskLevel:       "None (Test)",
		ConfidenceScore: 100,
		Reason:          "Manual connection test",
		ActionRequired:  whatsAppTestAction,
	}
	sid, err := s.whatsapp.SendReviewAlert(ctx, brand, alert)
	if err != nil {
		return nil, response.NewBadGateway(err.Error()).WithCause(err)
	}

	err = s.db.Create(&models.AuditLog{
		ActionType: models.ActionWhatsAppNotificationSent,
		UserID:     userID,
		Metadata:   models.WhatsAppNotificationMeta{MessageID: sid, Test: true},
	}).Error
	if err != nil {
		logger.Errorf("[Notification] WhatsApp test sent but audit failed: %v", err)
	}
	return &WhatsAppTestResult{
		Message: "Test message sent",
		SID:     sid,
		Note:    "When using the Twilio sandbox, the admin number must have joined the sandbox first.",
	}, nil
}
