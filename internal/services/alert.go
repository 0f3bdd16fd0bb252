package services

import (
	"fmt"
	"strings"

	"github.com/huangang/reviewbuddy/backend/internal/models"
)

const (
	alertTextLimit    = 200
	whatsAppTextLimit = 100

	defaultAlertReason = "High risk or complex situation detected"
	defaultAction      = "Manual review required - check dashboard."
)

// ReviewAlert is the denormalized payload handed to every notification sink.
type ReviewAlert struct {
	ReviewID        uint
	ReviewerName    string
	Rating          int
	ReviewText      string
	RiskLevel       models.RiskLevel
	ConfidenceScore int
	Reason          string
	ActionRequired  string
	Link            string
}

// NewReviewAlert builds the alert for a processed review. publicURL may be
// empty, in which case the alert carries no deep link.
func NewReviewAlert(review *models.Review, assessment models.RiskAssessment, result DecisionResult, publicURL string) *ReviewAlert {
	name := review.ReviewerName
	if name == "" {
		name = DefaultReviewerName
	}
	reason := result.Rationale
	if reason == "" {
		reason = defaultAlertReason
	}
	alert := &ReviewAlert{
		ReviewID:        review.ID,
		ReviewerName:    name,
		Rating:          review.Rating,
		ReviewText:      review.ReviewText,
		RiskLevel:       assessment.HighestRisk(),
		ConfidenceScore: result.ConfidenceScore,
		Reason:          reason,
		ActionRequired:  defaultAction,
	}
	if publicURL != "" && review.ID != 0 {
		alert.Link = ReviewLink(publicURL, review.ID)
	}
	return alert
}

// ReviewLink is the dashboard deep link for a review.
func ReviewLink(publicURL string, reviewID uint) string {
	return fmt.Sprintf("%s/dashboard/reviews/%d", strings.TrimRight(publicURL, "/"), reviewID)
}

// Excerpt returns the review text cut to limit characters with an ellipsis.
func (a *ReviewAlert) Excerpt(limit int) string {
	return truncateText(a.ReviewText, limit)
}

// Summary is the flat fallback text shown by clients that cannot render blocks.
func (a *ReviewAlert) Summary() string {
	name := a.ReviewerName
	if name == "" || name == DefaultReviewerName {
		name = "A customer"
	}
	return fmt.Sprintf("ReviewBuddy Alert: %s left a %d/10 review that needs attention.", name, a.Rating)
}

// truncateText cuts s to limit runes and appends "..." when it was longer.
func truncateText(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}
