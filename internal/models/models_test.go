package models

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:models_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(AllModels()...))
	return db
}

func TestDecisionMappings(t *testing.T) {
	tests := []struct {
		decision       Decision
		status         ReviewStatus
		responseStatus ResponseStatus
		needsResponse  bool
	}{
		{DecisionAutoHandle, ReviewStatusApproved, ResponseStatusGenerated, true},
		{DecisionHoldForApproval, ReviewStatusPendingApproval, ResponseStatusPending, true},
		{DecisionEscalate, ReviewStatusEscalated, ResponseStatusPending, false},
	}
	for _, tt := range tests {
		if got := tt.decision.WorkflowStatus(); got != tt.status {
			t.Errorf("%s.WorkflowStatus() = %s, want %s", tt.decision, got, tt.status)
		}
		if got := tt.decision.InitialResponseStatus(); got != tt.responseStatus {
			t.Errorf("%s.InitialResponseStatus() = %s, want %s", tt.decision, got, tt.responseStatus)
		}
		if got := tt.decision.NeedsResponse(); got != tt.needsResponse {
			t.Errorf("%s.NeedsResponse() = %v", tt.decision, got)
		}
	}
}

func TestRiskAssessment_HighestRisk(t *testing.T) {
	tests := []struct {
		levels [3]RiskLevel
		want   RiskLevel
	}{
		{[3]RiskLevel{RiskLow, RiskLow, RiskLow}, RiskLow},
		{[3]RiskLevel{RiskLow, RiskMedium, RiskLow}, RiskMedium},
		{[3]RiskLevel{RiskMedium, RiskLow, RiskHigh}, RiskHigh},
	}
	for _, tt := range tests {
		a := RiskAssessment{ContentRisk: tt.levels[0], ReputationalRisk: tt.levels[1], ContextualRisk: tt.levels[2]}
		if got := a.HighestRisk(); got != tt.want {
			t.Errorf("HighestRisk(%v) = %s, want %s", tt.levels, got, tt.want)
		}
	}
}

func TestRiskAssessment_Conforms(t *testing.T) {
	ok := RiskAssessment{ContentRisk: RiskLow, ReputationalRisk: RiskLow, ContextualRisk: RiskLow}
	assert.True(t, ok.Conforms(), "missing sentiment is tolerated")

	bad := ok
	bad.ContextualRisk = "Severe"
	assert.False(t, bad.Conforms())

	badSentiment := ok
	badSentiment.Sentiment = "Angry"
	assert.False(t, badSentiment.Conforms())
}

func TestFallbackRiskAssessment(t *testing.T) {
	fb := FallbackRiskAssessment()
	assert.Equal(t, RiskMedium, fb.ContentRisk)
	assert.Equal(t, RiskMedium, fb.ReputationalRisk)
	assert.Equal(t, RiskLow, fb.ContextualRisk)
	assert.False(t, fb.PIIDetected)
	assert.False(t, fb.LegalRiskDetected)
	assert.Equal(t, []string{"Unable to parse risk assessment"}, fb.Details.ContentRiskFactors)
}

func TestReview_CheckRespondedInvariant(t *testing.T) {
	resp := "Thanks!"
	ext := "k-1"
	tests := []struct {
		name    string
		review  Review
		wantErr bool
	}{
		{"not responded", Review{Status: ReviewStatusApproved}, false},
		{"responded complete", Review{Status: ReviewStatusResponded, GeneratedResponse: &resp, ExternalID: &ext}, false},
		{"responded without response", Review{Status: ReviewStatusResponded, ExternalID: &ext}, true},
		{"responded without external id", Review{Status: ReviewStatusResponded, GeneratedResponse: &resp}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.review.CheckRespondedInvariant()
			if (err != nil) != tt.wantErr {
				t.Errorf("CheckRespondedInvariant() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBrandConfig_Masked(t *testing.T) {
	b := BrandConfig{KiyohAPIKey: "secret", GeminiAPIKey: "", SlackWebhookURL: "https://hooks.slack.com/x"}
	m := b.Masked()
	assert.Equal(t, MaskedSecret, m.KiyohAPIKey)
	assert.Equal(t, "", m.GeminiAPIKey)
	assert.Equal(t, MaskedSecret, m.SlackWebhookURL)
	assert.Equal(t, "98", m.KiyohTenantID)
	assert.Equal(t, "secret", b.KiyohAPIKey, "original must be untouched")
}

func TestLocalMidnight(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	got := LocalMidnight(time.Date(2026, 3, 4, 23, 59, 0, 0, loc))
	want := time.Date(2026, 3, 4, 0, 0, 0, 0, loc)
	assert.True(t, got.Equal(want), "got %v", got)
}

func TestAuditLog_MetadataRoundTrip(t *testing.T) {
	db := setupTestDB(t)

	entry := AuditLog{
		ActionType: ActionReviewsFetched,
		Metadata:   ReviewsFetchedMeta{Source: "kiyoh", TotalFetched: 3, NewReviews: 2, UpdatedReviews: 1},
	}
	require.NoError(t, db.Create(&entry).Error)

	var loaded AuditLog
	require.NoError(t, db.First(&loaded, entry.ID).Error)
	meta, ok := loaded.Metadata.(ReviewsFetchedMeta)
	require.True(t, ok, "metadata type = %T", loaded.Metadata)
	assert.Equal(t, 2, meta.NewReviews)
}

func TestAuditLog_JSONRoundTrip(t *testing.T) {
	reviewID := uint(7)
	entries := []AuditLog{
		{ID: 1, ActionType: ActionReviewUpdated, ReviewID: &reviewID,
			Metadata: ReviewUpdatedMeta{Updates: map[string]interface{}{"status": "archived"}, HumanNotes: "duplicate"}},
		{ID: 2, ActionType: ActionWhatsAppNotificationSent, Metadata: WhatsAppNotificationMeta{MessageID: "SM1"}},
		{ID: 3, ActionType: ActionReviewProcessed},
	}
	data, err := json.Marshal(entries)
	require.NoError(t, err)

	var decoded []AuditLog
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded, 3)

	updated, ok := decoded[0].Metadata.(ReviewUpdatedMeta)
	require.True(t, ok, "metadata type = %T", decoded[0].Metadata)
	assert.Equal(t, "duplicate", updated.HumanNotes)
	assert.Equal(t, "archived", updated.Updates["status"])
	require.NotNil(t, decoded[0].ReviewID)
	assert.Equal(t, reviewID, *decoded[0].ReviewID)

	assert.Equal(t, WhatsAppNotificationMeta{MessageID: "SM1"}, decoded[1].Metadata)
	assert.Nil(t, decoded[2].Metadata)

	var bad AuditLog
	assert.Error(t, json.Unmarshal([]byte(`{"action_type":"NOPE","metadata":{"x":1}}`), &bad))
}

func TestAuditLog_RejectsMismatchedMetadata(t *testing.T) {
	db := setupTestDB(t)
	entry := AuditLog{ActionType: ActionInviteSent, Metadata: SlackNotificationMeta{Channel: "#x"}}
	assert.Error(t, db.Create(&entry).Error)

	unknown := AuditLog{ActionType: "SOMETHING_ELSE"}
	assert.Error(t, db.Create(&unknown).Error)
}

func TestAuditLog_Immutable(t *testing.T) {
	db := setupTestDB(t)
	entry := AuditLog{ActionType: ActionSettingsUpdated, Metadata: SettingsUpdatedMeta{UpdatedFields: []string{"company_name"}}}
	require.NoError(t, db.Create(&entry).Error)

	assert.Error(t, db.Model(&entry).Update("decision_rationale", "edited").Error)
	assert.Error(t, db.Delete(&entry).Error)
}

func TestDecodeAuditMetadata_AllActions(t *testing.T) {
	actions := []AuditAction{
		ActionReviewProcessed, ActionReviewUpdated, ActionResponsePublished, ActionReviewsFetched,
		ActionSettingsUpdated, ActionInviteSent, ActionSlackNotificationSent, ActionWhatsAppNotificationSent,
	}
	for _, a := range actions {
		meta, err := DecodeAuditMetadata(a, []byte(`{}`))
		require.NoError(t, err, a)
		assert.Equal(t, a, meta.AuditAction())
	}
	_, err := DecodeAuditMetadata("NOPE", []byte(`{}`))
	assert.Error(t, err)
}

func TestSeedDefaultData(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, SeedDefaultDataWith(db, true))
	require.NoError(t, SeedDefaultDataWith(db, true), "seeding twice must be idempotent")

	var brands int64
	db.Model(&BrandConfig{}).Count(&brands)
	assert.Equal(t, int64(1), brands)

	var reviews []Review
	require.NoError(t, db.Order("id").Find(&reviews).Error)
	require.Len(t, reviews, 5)
	assert.Equal(t, ReviewStatusNew, reviews[0].Status)
	assert.Equal(t, "Angry Customer", reviews[3].ReviewerName)
}

func TestReview_SerializedColumns(t *testing.T) {
	db := setupTestDB(t)
	assessment := RiskAssessment{
		ContentRisk: RiskLow, ReputationalRisk: RiskMedium, ContextualRisk: RiskLow,
		Sentiment: SentimentNeutral, Topics: []string{"delivery"},
	}
	decision := DecisionHoldForApproval
	r := Review{ReviewText: "ok", RiskAssessment: &assessment, Topics: assessment.Topics, Decision: &decision}
	require.NoError(t, db.Create(&r).Error)

	var loaded Review
	require.NoError(t, db.First(&loaded, r.ID).Error)
	require.NotNil(t, loaded.RiskAssessment)
	assert.Equal(t, RiskMedium, loaded.RiskAssessment.ReputationalRisk)
	assert.Equal(t, []string{"delivery"}, loaded.Topics)
	assert.Equal(t, DecisionHoldForApproval, *loaded.Decision)
	assert.Equal(t, "Anonymous", loaded.ReviewerName)
}
