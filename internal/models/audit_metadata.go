package models

import (
	"encoding/json"
	"fmt"
)

// AuditMetadata is the per-action payload of an audit entry. Each action
// type has exactly one implementation.
type AuditMetadata interface {
	AuditAction() AuditAction
}

type ReviewProcessedMeta struct {
	AutomationLevel AutomationLevel `json:"automationLevel"`
	FallbackUsed    bool            `json:"fallbackUsed"`
	LLMProvider     string          `json:"llmProvider,omitempty"`
}

type ReviewUpdatedMeta struct {
	Updates          map[string]interface{} `json:"updates"`
	HumanNotes       string                 `json:"humanNotes,omitempty"`
	HumanActionTaken string                 `json:"humanActionTaken,omitempty"`
}

type ResponsePublishedMeta struct {
	ResponseType string `json:"responseType"`
	SendEmail    bool   `json:"sendEmail"`
	Platform     string `json:"platform"`
}

type ReviewsFetchedMeta struct {
	Source         string `json:"source"`
	TotalFetched   int    `json:"totalFetched"`
	NewReviews     int    `json:"newReviews"`
	UpdatedReviews int    `json:"updatedReviews"`
	Trigger        string `json:"trigger,omitempty"` // manual, scheduler
}

type SettingsUpdatedMeta struct {
	UpdatedFields []string `json:"updatedFields"`
}

type InviteSentMeta struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Delay     int    `json:"delay"`
	Language  string `json:"language"`
}

type SlackNotificationMeta struct {
	Channel string `json:"channel,omitempty"`
	Manual  bool   `json:"manual,omitempty"`
}

type WhatsAppNotificationMeta struct {
	MessageID string `json:"messageId"`
	Test      bool   `json:"test,omitempty"`
}

func (ReviewProcessedMeta) AuditAction() AuditAction      { return ActionReviewProcessed }
func (ReviewUpdatedMeta) AuditAction() AuditAction        { return ActionReviewUpdated }
func (ResponsePublishedMeta) AuditAction() AuditAction    { return ActionResponsePublished }
func (ReviewsFetchedMeta) AuditAction() AuditAction       { return ActionReviewsFetched }
func (SettingsUpdatedMeta) AuditAction() AuditAction      { return ActionSettingsUpdated }
func (InviteSentMeta) AuditAction() AuditAction           { return ActionInviteSent }
func (SlackNotificationMeta) AuditAction() AuditAction    { return ActionSlackNotificationSent }
func (WhatsAppNotificationMeta) AuditAction() AuditAction { return ActionWhatsAppNotificationSent }

// DecodeAuditMetadata decodes a stored payload into the type owned by action.
func DecodeAuditMetadata(action AuditAction, data []byte) (AuditMetadata, error) {
	switch action {
	case ActionReviewProcessed:
		return decodeMeta[ReviewProcessedMeta](data)
	case ActionReviewUpdated:
		return decodeMeta[ReviewUpdatedMeta](data)
	case ActionResponsePublished:
		return decodeMeta[ResponsePublishedMeta](data)
	case ActionReviewsFetched:
		return decodeMeta[ReviewsFetchedMeta](data)
	case ActionSettingsUpdated:
		return decodeMeta[SettingsUpdatedMeta](data)
	case ActionInviteSent:
		return decodeMeta[InviteSentMeta](data)
	case ActionSlackNotificationSent:
		return decodeMeta[SlackNotificationMeta](data)
	case ActionWhatsAppNotificationSent:
		return decodeMeta[WhatsAppNotificationMeta](data)
	}
	return nil, fmt.Errorf("unknown audit action %q", action)
}

func decodeMeta[T AuditMetadata](data []byte) (AuditMetadata, error) {
	var m T
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}
