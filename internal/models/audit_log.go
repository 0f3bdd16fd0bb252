package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// AuditLog is an append-only record of a significant action. Metadata is
// typed per action and serialized into the metadata column on create.
type AuditLog struct {
	ID         uint        `gorm:"primaryKey" json:"id"`
	ActionType AuditAction `gorm:"size:50;index;not null" json:"action_type"`
	ReviewID   *uint       `gorm:"index" json:"review_id"`
	Review     *Review     `gorm:"foreignKey:ReviewID" json:"review,omitempty"`
	UserID     *uint       `gorm:"index" json:"user_id"`

	RiskAssessment    *RiskAssessment `gorm:"type:text;serializer:json" json:"risk_assessment,omitempty"`
	Decision          *Decision       `gorm:"size:30" json:"decision,omitempty"`
	DecisionRationale string          `gorm:"type:text" json:"decision_rationale,omitempty"`
	ConfidenceScore   *int            `json:"confidence_score,omitempty"`
	GeneratedResponse *string         `gorm:"type:text" json:"generated_response,omitempty"`
	PreviousDecision  *Decision       `gorm:"size:30" json:"previous_decision,omitempty"`
	NewDecision       *Decision       `gorm:"size:30" json:"new_decision,omitempty"`

	MetadataJSON string        `gorm:"column:metadata;type:text" json:"-"`
	Metadata     AuditMetadata `gorm:"-" json:"metadata,omitempty"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }

// BeforeCreate encodes the typed metadata and refuses a mismatched action tag.
func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if !a.ActionType.Valid() {
		return fmt.Errorf("unknown audit action %q", a.ActionType)
	}
	if a.Metadata == nil {
		return nil
	}
	if a.Metadata.AuditAction() != a.ActionType {
		return fmt.Errorf("metadata for %s attached to %s entry", a.Metadata.AuditAction(), a.ActionType)
	}
	data, err := json.Marshal(a.Metadata)
	if err != nil {
		return fmt.Errorf("encode audit metadata: %w", err)
	}
	a.MetadataJSON = string(data)
	return nil
}

// BeforeUpdate keeps the log append-only.
func (a *AuditLog) BeforeUpdate(tx *gorm.DB) error {
	return fmt.Errorf("audit log entries are immutable")
}

// BeforeDelete keeps the log append-only.
func (a *AuditLog) BeforeDelete(tx *gorm.DB) error {
	return fmt.Errorf("audit log entries cannot be deleted")
}

// UnmarshalJSON restores the typed metadata from the entry's action type.
func (a *AuditLog) UnmarshalJSON(data []byte) error {
	type plain AuditLog
	aux := struct {
		*plain
		Metadata json.RawMessage `json:"metadata,omitempty"`
	}{plain: (*plain)(a)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	a.Metadata = nil
	if len(aux.Metadata) == 0 || string(aux.Metadata) == "null" {
		return nil
	}
	meta, err := DecodeAuditMetadata(a.ActionType, aux.Metadata)
	if err != nil {
		return fmt.Errorf("decode %s metadata: %w", a.ActionType, err)
	}
	a.Metadata = meta
	return nil
}

func (a *AuditLog) AfterFind(tx *gorm.DB) error {
	if a.MetadataJSON == "" {
		return nil
	}
	meta, err := DecodeAuditMetadata(a.ActionType, []byte(a.MetadataJSON))
	if err != nil {
		// Rows written before a schema change stay readable without metadata.
		a.Metadata = nil
		return nil
	}
	a.Metadata = meta
	return nil
}
