package models

// RiskLevel is the severity bucket for one risk category.
type RiskLevel string

const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

func (r RiskLevel) Valid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh:
		return true
	}
	return false
}

// Rank orders risk levels so the highest can be picked; unknown values rank lowest.
func (r RiskLevel) Rank() int {
	switch r {
	case RiskHigh:
		return 3
	case RiskMedium:
		return 2
	case RiskLow:
		return 1
	}
	return 0
}

type Sentiment string

const (
	SentimentPositive Sentiment = "Positive"
	SentimentNeutral  Sentiment = "Neutral"
	SentimentNegative Sentiment = "Negative"
)

func (s Sentiment) Valid() bool {
	switch s {
	case SentimentPositive, SentimentNeutral, SentimentNegative:
		return true
	}
	return false
}

// Decision is the AI's disposition recommendation for a review.
type Decision string

const (
	DecisionAutoHandle      Decision = "AUTO_HANDLE"
	DecisionHoldForApproval Decision = "HOLD_FOR_APPROVAL"
	DecisionEscalate        Decision = "ESCALATE_TO_HUMAN"
)

func (d Decision) Valid() bool {
	switch d {
	case DecisionAutoHandle, DecisionHoldForApproval, DecisionEscalate:
		return true
	}
	return false
}

// WorkflowStatus maps a fresh decision to the queue the review lands in.
func (d Decision) WorkflowStatus() ReviewStatus {
	switch d {
	case DecisionAutoHandle:
		return ReviewStatusApproved
	case DecisionHoldForApproval:
		return ReviewStatusPendingApproval
	case DecisionEscalate:
		return ReviewStatusEscalated
	}
	return ReviewStatusPendingApproval
}

// InitialResponseStatus is the response status written alongside a fresh decision.
func (d Decision) InitialResponseStatus() ResponseStatus {
	switch d {
	case DecisionAutoHandle:
		return ResponseStatusGenerated
	case DecisionHoldForApproval, DecisionEscalate:
		return ResponseStatusPending
	}
	return ResponseStatusPending
}

// NeedsResponse reports whether a draft reply is generated for the decision.
func (d Decision) NeedsResponse() bool {
	switch d {
	case DecisionAutoHandle, DecisionHoldForApproval:
		return true
	case DecisionEscalate:
		return false
	}
	return false
}

type AutomationLevel string

const (
	AutomationAuto     AutomationLevel = "AUTO"
	AutomationSemiAuto AutomationLevel = "SEMI_AUTO"
	AutomationManual   AutomationLevel = "MANUAL"
)

func (a AutomationLevel) Valid() bool {
	switch a {
	case AutomationAuto, AutomationSemiAuto, AutomationManual:
		return true
	}
	return false
}

type BrandTone string

const (
	ToneProfessional BrandTone = "Professional"
	ToneEmpathetic   BrandTone = "Empathetic"
	ToneFriendly     BrandTone = "Friendly"
	ToneNeutral      BrandTone = "Neutral"
)

func (t BrandTone) Valid() bool {
	switch t {
	case ToneProfessional, ToneEmpathetic, ToneFriendly, ToneNeutral:
		return true
	}
	return false
}

// ReviewStatus is the workflow state of a review, independent of Decision.
type ReviewStatus string

const (
	ReviewStatusNew             ReviewStatus = "new"
	ReviewStatusProcessing      ReviewStatus = "processing"
	ReviewStatusPendingApproval ReviewStatus = "pending_approval"
	ReviewStatusApproved        ReviewStatus = "approved"
	ReviewStatusResponded       ReviewStatus = "responded"
	ReviewStatusEscalated       ReviewStatus = "escalated"
	ReviewStatusArchived        ReviewStatus = "archived"
)

func (s ReviewStatus) Valid() bool {
	switch s {
	case ReviewStatusNew, ReviewStatusProcessing, ReviewStatusPendingApproval,
		ReviewStatusApproved, ReviewStatusResponded, ReviewStatusEscalated, ReviewStatusArchived:
		return true
	}
	return false
}

type ResponseStatus string

const (
	ResponseStatusPending   ResponseStatus = "pending"
	ResponseStatusGenerated ResponseStatus = "generated"
	ResponseStatusApproved  ResponseStatus = "approved"
	ResponseStatusPublished ResponseStatus = "published"
	ResponseStatusRejected  ResponseStatus = "rejected"
)

func (s ResponseStatus) Valid() bool {
	switch s {
	case ResponseStatusPending, ResponseStatusGenerated, ResponseStatusApproved,
		ResponseStatusPublished, ResponseStatusRejected:
		return true
	}
	return false
}

// AuditAction tags an audit log entry and selects its metadata shape.
type AuditAction string

const (
	ActionReviewProcessed          AuditAction = "REVIEW_PROCESSED"
	ActionReviewUpdated            AuditAction = "REVIEW_UPDATED"
	ActionResponsePublished        AuditAction = "RESPONSE_PUBLISHED"
	ActionReviewsFetched           AuditAction = "REVIEWS_FETCHED"
	ActionSettingsUpdated          AuditAction = "SETTINGS_UPDATED"
	ActionInviteSent               AuditAction = "INVITE_SENT"
	ActionSlackNotificationSent    AuditAction = "SLACK_NOTIFICATION_SENT"
	ActionWhatsAppNotificationSent AuditAction = "WHATSAPP_NOTIFICATION_SENT"
)

func (a AuditAction) Valid() bool {
	switch a {
	case ActionReviewProcessed, ActionReviewUpdated, ActionResponsePublished, ActionReviewsFetched,
		ActionSettingsUpdated, ActionInviteSent, ActionSlackNotificationSent, ActionWhatsAppNotificationSent:
		return true
	}
	return false
}
