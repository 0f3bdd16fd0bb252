package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/huangang/reviewbuddy/backend/internal/models"
	"github.com/huangang/reviewbuddy/backend/pkg/logger"
	"github.com/huangang/reviewbuddy/backend/pkg/response"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// fakeLLM answers risk prompts with riskText and response prompts with replyText.
type fakeLLM struct {
	mu        sync.Mutex
	ready     bool
	riskText  string
	riskErr   error
	replyText string
	replyErr  error
	calls     []CompletionRequest
}

func (f *fakeLLM) Ready(*models.BrandConfig) bool { return f.ready }

func (f *fakeLLM) Generate(_ context.Context, req CompletionRequest) (*Completion, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if req.JSON {
		if f.riskErr != nil {
			return nil, f.riskErr
		}
		return &Completion{Text: f.riskText, Provider: "fake"}, nil
	}
	if f.replyErr != nil {
		return nil, f.replyErr
	}
	return &Completion{Text: f.replyText, Provider: "fake"}, nil
}

type fakeChat struct {
	err    error
	alerts []*ReviewAlert
}

func (f *fakeChat) SendReviewAlert(_ *models.BrandConfig, a *ReviewAlert) error {
	f.alerts = append(f.alerts, a)
	return f.err
}

type fakeMessaging struct {
	id     string
	err    error
	alerts []*ReviewAlert
}

func (f *fakeMessaging) SendReviewAlert(_ context.Context, _ *models.BrandConfig, a *ReviewAlert) (string, error) {
	f.alerts = append(f.alerts, a)
	return f.id, f.err
}

const allLowPositive = `{"contentRisk":"Low","reputationalRisk":"Low","contextualRisk":"Low",
"piiDetected":false,"legalRiskDetected":false,"sentiment":"Positive","topics":["Service"],
"details":{"contentRiskFactors":[],"reputationalRiskFactors":[],"contextualRiskFactors":[]},"confidence":92}`

const legalThreat = `{"contentRisk":"Medium","reputationalRisk":"High","contextualRisk":"Low",
"piiDetected":false,"legalRiskDetected":true,"sentiment":"Negative","topics":["Refund"],
"details":{"legalFlags":["threatens to sue"]},"confidence":90}`

type processorFixture struct {
	db        *gorm.DB
	llm       *fakeLLM
	chat      *fakeChat
	messaging *fakeMessaging
	proc      *ReviewProcessor
	now       time.Time
}

func newProcessorFixture(t *testing.T) *processorFixture {
	t.Helper()
	db := setupTestDB(t)
	f := &processorFixture{
		db:        db,
		llm:       &fakeLLM{ready: true, replyText: "  Thank you for your kind words!  "},
		chat:      &fakeChat{},
		messaging: &fakeMessaging{id: "SM123"},
		now:       time.Date(2026, 3, 4, 10, 0, 0, 0, time.Local),
	}
	f.proc = NewReviewProcessor(db, f.llm, f.chat, f.messaging, "https://rb.example.com")
	f.proc.now = func() time.Time { return f.now }
	return f
}

func collect(ch <-chan ProcessEvent) []ProcessEvent {
	var events []ProcessEvent
	for e := range ch {
		events = append(events, e)
	}
	return events
}

func runProcessor(t *testing.T, f *processorFixture, reviewID uint) []ProcessEvent {
	t.Helper()
	run, err := f.proc.Prepare(reviewID, nil)
	require.NoError(t, err)
	return collect(f.proc.Run(context.Background(), run))
}

type stepKey struct {
	step   int
	status StepStatus
}

func stepKeys(events []ProcessEvent) []stepKey {
	var out []stepKey
	for _, e := range events {
		if e.Step > 0 {
			out = append(out, stepKey{e.Step, e.Status})
		}
	}
	return out
}

func TestProcessor_ScenarioA_PositiveSemiAuto(t *testing.T) {
	f := newProcessorFixture(t)
	seedBrand(t, f.db, func(b *models.BrandConfig) {
		b.SlackEnabled = true
		b.SlackWebhookURL = "https://hooks.slack.test/x"
	})
	review := seedReview(t, f.db, "Great service, highly recommend!", 9)
	f.llm.riskText = allLowPositive

	events := runProcessor(t, f, review.ID)

	assert.Equal(t, []stepKey{
		{1, StepProcessing}, {1, StepCompleted},
		{2, StepProcessing}, {2, StepCompleted},
		{3, StepProcessing}, {3, StepCompleted},
		{4, StepProcessing}, {4, StepCompleted},
		{5, StepProcessing}, {5, StepCompleted},
	}, stepKeys(events))

	last := events[len(events)-1]
	require.True(t, last.Final)
	assert.Equal(t, models.DecisionAutoHandle, last.Result.Decision.Decision)
	assert.Equal(t, 90, last.Result.Decision.ConfidenceScore)
	assert.Equal(t, "Thank you for your kind words!", last.Result.GeneratedResponse)

	var saved models.Review
	require.NoError(t, f.db.First(&saved, review.ID).Error)
	assert.Equal(t, models.ReviewStatusApproved, saved.Status)
	assert.Equal(t, models.ResponseStatusGenerated, saved.ResponseStatus)
	require.NotNil(t, saved.Sentiment)
	assert.Equal(t, models.SentimentPositive, *saved.Sentiment)
	assert.Equal(t, []string{"Service"}, saved.Topics)
	require.NotNil(t, saved.RiskAssessment)
	assert.Equal(t, 92, saved.RiskAssessment.Confidence)

	assert.Empty(t, f.chat.alerts, "no chat alert for a non-escalated review")
	assert.Empty(t, f.messaging.alerts)

	var audits []models.AuditLog
	require.NoError(t, f.db.Where("review_id = ?", review.ID).Find(&audits).Error)
	require.Len(t, audits, 1)
	assert.Equal(t, models.ActionReviewProcessed, audits[0].ActionType)
	meta, ok := audits[0].Metadata.(models.ReviewProcessedMeta)
	require.True(t, ok)
	assert.False(t, meta.FallbackUsed)
	assert.Equal(t, "fake", meta.LLMProvider)
}

func TestProcessor_ScenarioB_LegalThreatEscalates(t *testing.T) {
	f := newProcessorFixture(t)
	seedBrand(t, f.db, func(b *models.BrandConfig) {
		b.SlackEnabled = true
		b.SlackWebhookURL = "https://hooks.slack.test/x"
		b.SlackChannelName = "#reviews"
		b.WhatsAppEnabled = true
		b.TwilioAccountSID = "AC1"
		b.TwilioAuthToken = "tok"
		b.TwilioPhoneNumber = "+100"
		b.WhatsAppAdminNumber = "+200"
	})
	review := seedReview(t, f.db, "I will sue you, refund me now!", 1)
	f.llm.riskText = legalThreat

	events := runProcessor(t, f, review.ID)

	assert.Equal(t, []stepKey{
		{1, StepProcessing}, {1, StepCompleted},
		{2, StepProcessing}, {2, StepCompleted},
		{3, StepSkipped},
		{4, StepProcessing}, {4, StepCompleted},
		{5, StepProcessing}, {5, StepCompleted},
		{6, StepProcessing}, {6, StepCompleted},
		{7, StepProcessing}, {7, StepCompleted},
	}, stepKeys(events))

	last := events[len(events)-1]
	require.True(t, last.Final)
	assert.Equal(t, models.DecisionEscalate, last.Result.Decision.Decision)
	assert.Equal(t, 95, last.Result.Decision.ConfidenceScore)
	assert.Empty(t, last.Result.GeneratedResponse)

	for _, c := range f.llm.calls {
		assert.True(t, c.JSON, "escalated reviews must not request a response draft")
	}

	var saved models.Review
	require.NoError(t, f.db.First(&saved, review.ID).Error)
	assert.Equal(t, models.ReviewStatusEscalated, saved.Status)
	assert.Equal(t, models.ResponseStatusPending, saved.ResponseStatus)
	assert.Nil(t, saved.GeneratedResponse)

	require.Len(t, f.chat.alerts, 1)
	alert := f.chat.alerts[0]
	assert.Equal(t, models.RiskHigh, alert.RiskLevel)
	assert.Equal(t, fmt.Sprintf("https://rb.example.com/dashboard/reviews/%d", review.ID), alert.Link)
	require.Len(t, f.messaging.alerts, 1)

	var actions []models.AuditAction
	require.NoError(t, f.db.Model(&models.AuditLog{}).Where("review_id = ?", review.ID).
		Order("id ASC").Pluck("action_type", &actions).Error)
	assert.Equal(t, []models.AuditAction{
		models.ActionReviewProcessed,
		models.ActionSlackNotificationSent,
		models.ActionWhatsAppNotificationSent,
	}, actions)
}

func TestProcessor_ScenarioC_UnparsableRiskUsesFallback(t *testing.T) {
	f := newProcessorFixture(t)
	seedBrand(t, f.db, nil)
	review := seedReview(t, f.db, "Meh.", 5)
	f.llm.riskText = "Sorry, I cannot help with that."

	events := runProcessor(t, f, review.ID)

	require.GreaterOrEqual(t, len(events), 2)
	assert.Equal(t, StepCompleted, events[1].Status, "fallback is not a failure")
	got, ok := events[1].Data.(models.RiskAssessment)
	require.True(t, ok)
	assert.Equal(t, models.RiskMedium, got.ContentRisk)
	assert.Equal(t, models.RiskMedium, got.ReputationalRisk)
	assert.Equal(t, models.RiskLow, got.ContextualRisk)

	last := events[len(events)-1]
	require.True(t, last.Final)
	assert.Equal(t, models.DecisionHoldForApproval, last.Result.Decision.Decision)
	assert.Equal(t, 75, last.Result.Decision.ConfidenceScore)

	var entry models.AuditLog
	require.NoError(t, f.db.Where("review_id = ?", review.ID).First(&entry).Error)
	meta := entry.Metadata.(models.ReviewProcessedMeta)
	assert.True(t, meta.FallbackUsed)
}

func TestProcessor_ResponseFailureLeavesReviewUntouched(t *testing.T) {
	f := newProcessorFixture(t)
	seedBrand(t, f.db, nil)
	review := seedReview(t, f.db, "Lovely", 10)
	f.llm.riskText = allLowPositive
	f.llm.replyErr = errors.New("quota exceeded")

	events := runProcessor(t, f, review.ID)

	last := events[len(events)-1]
	assert.Equal(t, StepError, last.Status)
	assert.Equal(t, "quota exceeded", last.Message)
	for _, e := range events {
		assert.False(t, e.Final)
		assert.NotEqual(t, StepPersist, e.Step)
	}

	var saved models.Review
	require.NoError(t, f.db.First(&saved, review.ID).Error)
	assert.Equal(t, models.ReviewStatusNew, saved.Status)
	assert.Nil(t, saved.Decision)

	var count int64
	f.db.Model(&models.SystemHealth{}).Count(&count)
	assert.Zero(t, count)
}

func TestProcessor_RiskCallFailureAborts(t *testing.T) {
	f := newProcessorFixture(t)
	seedBrand(t, f.db, nil)
	review := seedReview(t, f.db, "Fine", 7)
	f.llm.riskErr = errors.New("connection refused")

	events := runProcessor(t, f, review.ID)
	require.Len(t, events, 2)
	assert.Equal(t, stepKey{1, StepProcessing}, stepKey{events[0].Step, events[0].Status})
	assert.Equal(t, StepError, events[1].Status)
}

func TestProcessor_NotificationFailuresAreIsolated(t *testing.T) {
	f := newProcessorFixture(t)
	seedBrand(t, f.db, func(b *models.BrandConfig) {
		b.SlackEnabled = true
		b.SlackWebhookURL = "https://hooks.slack.test/x"
		b.WhatsAppEnabled = true
		b.TwilioAccountSID = "AC1"
		b.TwilioAuthToken = "tok"
		b.TwilioPhoneNumber = "+100"
		b.WhatsAppAdminNumber = "+200"
	})
	review := seedReview(t, f.db, "I will sue you, refund me now!", 1)
	f.llm.riskText = legalThreat
	f.chat.err = errors.New("webhook returned status 500")
	f.messaging.err = errors.New("The 'To' number is not a valid phone number.")

	events := runProcessor(t, f, review.ID)

	byStep := map[int]ProcessEvent{}
	for _, e := range events {
		if e.Step > 0 {
			byStep[e.Step] = e
		}
	}
	assert.Equal(t, StepFailed, byStep[6].Status)
	assert.Equal(t, "Slack notification failed", byStep[6].Message)
	assert.Equal(t, StepFailed, byStep[7].Status)
	assert.Equal(t, "WhatsApp failed: The 'To' number is not a valid phone number.", byStep[7].Message)
	assert.True(t, events[len(events)-1].Final)

	var count int64
	f.db.Model(&models.AuditLog{}).Where("review_id = ?", review.ID).Count(&count)
	assert.Equal(t, int64(1), count, "failed sends are not audited")
}

func TestProcessor_ChannelsSkippedWhenDisabled(t *testing.T) {
	f := newProcessorFixture(t)
	seedBrand(t, f.db, func(b *models.BrandConfig) {
		b.WhatsAppEnabled = true
	})
	review := seedReview(t, f.db, "I will sue you", 1)
	f.llm.riskText = legalThreat

	events := runProcessor(t, f, review.ID)

	var msgs []string
	for _, e := range events {
		if e.Status == StepSkipped && (e.Step == StepChat || e.Step == StepMessaging) {
			msgs = append(msgs, e.Message)
		}
	}
	assert.Equal(t, []string{"Slack not configured", "WhatsApp not configured"}, msgs)
	assert.Empty(t, f.chat.alerts)
	assert.Empty(t, f.messaging.alerts)
}

func TestProcessor_Preconditions(t *testing.T) {
	f := newProcessorFixture(t)

	_, err := f.proc.Prepare(0, nil)
	assertAppError(t, err, http.StatusBadRequest, "Review ID required")

	_, err = f.proc.Prepare(999, nil)
	assertAppError(t, err, http.StatusNotFound, "Review not found")

	review := seedReview(t, f.db, "text", 5)
	_, err = f.proc.Prepare(review.ID, nil)
	assertAppError(t, err, http.StatusBadRequest, "Brand configuration not found")

	seedBrand(t, f.db, nil)
	f.llm.ready = false
	_, err = f.proc.Prepare(review.ID, nil)
	assertAppError(t, err, http.StatusInternalServerError, "Gemini API Key not configured")
}

func TestProcessor_ReprocessingKeepsDecisionButCountsHealthTwice(t *testing.T) {
	f := newProcessorFixture(t)
	seedBrand(t, f.db, nil)
	review := seedReview(t, f.db, "Great service, highly recommend!", 9)
	f.llm.riskText = allLowPositive

	first, err := f.proc.Process(context.Background(), review.ID, nil)
	require.NoError(t, err)
	second, err := f.proc.Process(context.Background(), review.ID, nil)
	require.NoError(t, err)

	assert.Equal(t, first.Decision, second.Decision)

	var health models.SystemHealth
	require.NoError(t, f.db.First(&health).Error)
	assert.Equal(t, 2, health.TotalReviews)
	assert.Equal(t, 2, health.AutoHandledCount)
}

type fakeBots struct {
	sent   int
	err    error
	alerts []*ReviewAlert
}

func (f *fakeBots) BroadcastReviewAlert(a *ReviewAlert) (int, error) {
	f.alerts = append(f.alerts, a)
	return f.sent, f.err
}

func TestProcessor_EscalationsReachIMBots(t *testing.T) {
	f := newProcessorFixture(t)
	bots := &fakeBots{err: errors.New("ops: webhook returned status 502")}
	f.proc.Bots = bots
	seedBrand(t, f.db, nil)

	calm := seedReview(t, f.db, "Great service", 9)
	f.llm.riskText = allLowPositive
	runProcessor(t, f, calm.ID)
	assert.Empty(t, bots.alerts, "only escalations are broadcast")

	angry := seedReview(t, f.db, "I will sue you", 1)
	f.llm.riskText = legalThreat
	events := runProcessor(t, f, angry.ID)

	require.Len(t, bots.alerts, 1)
	assert.Equal(t, angry.ID, bots.alerts[0].ReviewID)
	assert.Equal(t, models.RiskHigh, bots.alerts[0].RiskLevel)
	last := events[len(events)-1]
	assert.True(t, last.Final, "bot failures never abort the run")
	for _, e := range events {
		assert.LessOrEqual(t, e.Step, StepMessaging)
	}
}

func TestProcessor_ProcessLogsFailedSteps(t *testing.T) {
	var buf bytes.Buffer
	logger.InitWithWriter("debug", &buf)
	t.Cleanup(func() { logger.Init("info") })

	f := newProcessorFixture(t)
	seedBrand(t, f.db, func(b *models.BrandConfig) {
		b.SlackEnabled = true
		b.SlackWebhookURL = "https://hooks.slack.test/x"
	})
	review := seedReview(t, f.db, "I will sue you", 1)
	f.llm.riskText = legalThreat
	f.chat.err = errors.New("webhook returned status 500")

	result, err := f.proc.Process(context.Background(), review.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.DecisionEscalate, result.Decision.Decision)

	out := buf.String()
	assert.Contains(t, out, `"step":6`)
	assert.Contains(t, out, "Slack notification failed")
	assert.Contains(t, out, "WhatsApp not enabled")
	assert.NotContains(t, out, "Determining decision", "in-progress events are not logged")
}

func TestProcessor_HealthFailureIsReportedOnAuditStep(t *testing.T) {
	f := newProcessorFixture(t)
	seedBrand(t, f.db, nil)
	review := seedReview(t, f.db, "Great service", 9)
	f.llm.riskText = allLowPositive
	require.NoError(t, f.db.Migrator().DropTable(&models.SystemHealth{}))

	events := runProcessor(t, f, review.ID)

	var audit *ProcessEvent
	for i := range events {
		if events[i].Step == StepAudit && events[i].Status != StepProcessing {
			audit = &events[i]
		}
	}
	require.NotNil(t, audit)
	assert.Equal(t, StepCompleted, audit.Status)
	assert.Equal(t, map[string]string{"health": "failed"}, audit.Data)
	assert.True(t, events[len(events)-1].Final)

	var saved models.Review
	require.NoError(t, f.db.First(&saved, review.ID).Error)
	assert.Equal(t, models.ReviewStatusApproved, saved.Status)
}

func TestProcessor_HealthSuccessLeavesAuditStepPlain(t *testing.T) {
	f := newProcessorFixture(t)
	seedBrand(t, f.db, nil)
	review := seedReview(t, f.db, "Great service", 9)
	f.llm.riskText = allLowPositive

	for _, e := range runProcessor(t, f, review.ID) {
		if e.Step == StepAudit && e.Status == StepCompleted {
			assert.Nil(t, e.Data)
		}
	}
}

func assertAppError(t *testing.T, err error, status int, msg string) {
	t.Helper()
	var appErr *response.AppError
	require.True(t, errors.As(err, &appErr), "expected *response.AppError, got %v", err)
	assert.Equal(t, status, appErr.HTTPStatus)
	assert.Equal(t, msg, appErr.Message)
}
