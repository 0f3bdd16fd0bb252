package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/huangang/reviewbuddy/backend/internal/models"
	"github.com/huangang/reviewbuddy/backend/internal/services/kiyoh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoredReviewAlert(t *testing.T) {
	medium := models.RiskMedium
	high := models.RiskHigh
	decision := models.DecisionEscalate
	review := &models.Review{
		ID:               12,
		ReviewerName:     "Ann",
		Rating:           2,
		ReviewText:       "Terrible",
		ContentRisk:      &medium,
		ReputationalRisk: &high,
		Decision:         &decision,
		ConfidenceScore:  95,
	}

	alert := StoredReviewAlert(review, "https://rb.example.com/")
	assert.Equal(t, models.RiskHigh, alert.RiskLevel)
	assert.Equal(t, "Immediate review and response needed", alert.ActionRequired)
	assert.Equal(t, "Complex situation requiring human judgment", alert.Reason)
	assert.Equal(t, "https://rb.example.com/dashboard/reviews/12", alert.Link)

	hold := models.DecisionHoldForApproval
	review.Decision = &hold
	review.DecisionRationale = "PII detected - human review required before responding"
	review.RiskAssessment = &models.RiskAssessment{ContentRisk: models.RiskLow, ReputationalRisk: models.RiskLow, ContextualRisk: models.RiskLow}
	alert = StoredReviewAlert(review, "")
	assert.Equal(t, models.RiskLow, alert.RiskLevel)
	assert.Equal(t, "Review AI-generated response before publishing", alert.ActionRequired)
	assert.Equal(t, review.DecisionRationale, alert.Reason)
	assert.Empty(t, alert.Link)
}

func TestManualNotificationService_SendSlack(t *testing.T) {
	var payloads []map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		payloads = append(payloads, p)
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	db := setupTestDB(t)
	brand := seedBrand(t, db, func(b *models.BrandConfig) {
		b.SlackEnabled = true
		b.SlackWebhookURL = srv.URL
		b.SlackChannelName = "#alerts"
	})
	svc := NewManualNotificationService(db, NewNotificationService(db), nil, "https://rb.example.com")
	review := seedReview(t, db, "Where is my order?", 3)
	userID := uint(5)

	require.NoError(t, svc.SendSlack(brand, &SlackRequest{ReviewID: review.ID}, &userID))
	require.NoError(t, svc.SendSlack(brand, &SlackRequest{CustomMessage: "Heads up"}, &userID))
	require.Len(t, payloads, 2)
	assert.Contains(t, payloads[0], "blocks")
	assert.Equal(t, "Heads up", payloads[1]["text"])

	var audits []models.AuditLog
	require.NoError(t, db.Where("action_type = ?", models.ActionSlackNotificationSent).Order("id ASC").Find(&audits).Error)
	require.Len(t, audits, 2)
	require.NotNil(t, audits[0].ReviewID)
	assert.Equal(t, review.ID, *audits[0].ReviewID)
	assert.Nil(t, audits[1].ReviewID)
	assert.Equal(t, models.SlackNotificationMeta{Channel: "#alerts", Manual: true}, audits[0].Metadata)
}

func TestManualNotificationService_SendSlackErrors(t *testing.T) {
	db := setupTestDB(t)
	svc := NewManualNotificationService(db, NewNotificationService(db), nil, "")

	disabled := seedBrand(t, db, nil)
	err := svc.SendSlack(disabled, &SlackRequest{CustomMessage: "x"}, nil)
	requireAppError(t, err, http.StatusBadRequest, "Slack integration not configured or disabled")

	enabled := *disabled
	enabled.SlackEnabled = true
	enabled.SlackWebhookURL = "http://127.0.0.1:0"
	err = svc.SendSlack(&enabled, &SlackRequest{CustomMessage: "  "}, nil)
	requireAppError(t, err, http.StatusBadRequest, "Either reviewId or customMessage is required")

	err = svc.SendSlack(&enabled, &SlackRequest{ReviewID: 999}, nil)
	requireAppError(t, err, http.StatusNotFound, "Review not found")

	err = svc.SendSlack(&enabled, &SlackRequest{CustomMessage: "hello"}, nil)
	requireAppError(t, err, http.StatusBadGateway, "")

	var count int64
	db.Model(&models.AuditLog{}).Count(&count)
	assert.Zero(t, count)
}

func TestManualNotificationService_TestWhatsApp(t *testing.T) {
	var form url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"sid":"SM123"}`))
	}))
	defer srv.Close()

	db := setupTestDB(t)
	brand := seedBrand(t, db, func(b *models.BrandConfig) {
		b.TwilioAccountSID = "AC1"
		b.TwilioAuthToken = "secret"
		b.TwilioPhoneNumber = "+14155238886"
		b.WhatsAppAdminNumber = "+31600000000"
	})
	svc := NewManualNotificationService(db, NewNotificationService(db), NewWhatsAppService(srv.URL, time.Second), "")

	result, err := svc.TestWhatsApp(context.Background(), brand, nil)
	require.NoError(t, err)
	assert.Equal(t, "SM123", result.SID)
	assert.Equal(t, "Test message sent", result.Message)
	assert.Equal(t, "whatsapp:+31600000000", form.Get("To"))
	assert.True(t, strings.Contains(form.Get("Body"), "Test User"))
	assert.True(t, strings.Contains(form.Get("Body"), "None (Test)"))

	var audit models.AuditLog
	require.NoError(t, db.Where("action_type = ?", models.ActionWhatsAppNotificationSent).First(&audit).Error)
	assert.Equal(t, models.WhatsAppNotificationMeta{MessageID: "SM123", Test: true}, audit.Metadata)

	incomplete := *brand
	incomplete.WhatsAppAdminNumber = ""
	_, err = svc.TestWhatsApp(context.Background(), &incomplete, nil)
	requireAppError(t, err, http.StatusBadRequest, "")
}

func TestInviteService_Send(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	db := setupTestDB(t)
	brand := seedBrand(t, db, func(b *models.BrandConfig) {
		b.KiyohAPIKey = "token"
		b.KiyohLocationID = "1001"
	})
	svc := NewInviteService(db, kiyoh.NewClient(srv.URL, time.Second, 0))

	err := svc.Send(context.Background(), brand, &InviteRequest{Email: " jan@example.com ", FirstName: "Jan", Delay: 3}, nil)
	require.NoError(t, err)
	assert.Equal(t, "jan@example.com", got["invite_email"])
	assert.Equal(t, "en", got["language"])

	var audit models.AuditLog
	require.NoError(t, db.Where("action_type = ?", models.ActionInviteSent).First(&audit).Error)
	assert.Equal(t, models.InviteSentMeta{Email: "jan@example.com", FirstName: "Jan", Delay: 3, Language: "en"}, audit.Metadata)

	err = svc.Send(context.Background(), brand, &InviteRequest{}, nil)
	requireAppError(t, err, http.StatusBadRequest, "Email is required")

	noCreds := *brand
	noCreds.KiyohAPIKey = ""
	err = svc.Send(context.Background(), &noCreds, &InviteRequest{Email: "a@b.c"}, nil)
	requireAppError(t, err, http.StatusBadRequest, "Kiyoh API credentials not configured")
}

func TestAuditLogService_List(t *testing.T) {
	db := setupTestDB(t)
	svc := NewAuditLogService(db)
	review := seedReview(t, db, "x", 5)

	for i := 0; i < 3; i++ {
		require.NoError(t, db.Create(&models.AuditLog{ActionType: models.ActionReviewUpdated, ReviewID: &review.ID}).Error)
	}
	require.NoError(t, db.Create(&models.AuditLog{ActionType: models.ActionSettingsUpdated}).Error)

	page, err := svc.List(&AuditLogListRequest{})
	require.NoError(t, err)
	assert.EqualValues(t, 4, page.Total)
	assert.Equal(t, models.ActionSettingsUpdated, page.Items[0].ActionType, "newest first")

	page, err = svc.List(&AuditLogListRequest{ReviewID: review.ID, PageSize: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 3, page.Total)
	assert.Len(t, page.Items, 2)
	require.NotNil(t, page.Items[0].Review)
	assert.Equal(t, review.ID, page.Items[0].Review.ID)

	page, err = svc.List(&AuditLogListRequest{ActionType: string(models.ActionSettingsUpdated)})
	require.NoError(t, err)
	assert.EqualValues(t, 1, page.Total)

	_, err = svc.List(&AuditLogListRequest{ActionType: "DELETED"})
	requireAppError(t, err, http.StatusBadRequest, "invalid action type DELETED")
}
