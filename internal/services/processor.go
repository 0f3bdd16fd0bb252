package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/huangang/reviewbuddy/backend/internal/models"
	"github.com/huangang/reviewbuddy/backend/pkg/logger"
	"github.com/huangang/reviewbuddy/backend/pkg/response"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

type StepStatus string

const (
	StepProcessing StepStatus = "processing"
	StepCompleted  StepStatus = "completed"
	StepSkipped    StepStatus = "skipped"
	StepFailed     StepStatus = "failed"
	// StepError marks the event that aborts a run.
	StepError StepStatus = "error"
)

// Pipeline steps as numbered on the progress stream. Health bookkeeping runs
// inside StepAudit and has no number of its own.
const (
	StepRiskAssessment = 1
	StepDecision       = 2
	StepResponse       = 3
	StepPersist        = 4
	StepAudit          = 5
	StepChat           = 6
	StepMessaging      = 7
)

// eventBuffer holds every event a single run can emit, so a run never blocks
// on a reader that went away.
const eventBuffer = 32

// ProcessResult bundles what a successful run produced.
type ProcessResult struct {
	RiskAssessment    models.RiskAssessment `json:"riskAssessment"`
	Decision          DecisionResult        `json:"decision"`
	GeneratedResponse string                `json:"generatedResponse"`
}

// ProcessEvent is one frame of the progress stream. A run emits step events
// in order, then either one Final event or one StepError event.
type ProcessEvent struct {
	Step    int            `json:"step,omitempty"`
	Status  StepStatus     `json:"status,omitempty"`
	Message string         `json:"message,omitempty"`
	Data    interface{}    `json:"data,omitempty"`
	Final   bool           `json:"final,omitempty"`
	Result  *ProcessResult `json:"result,omitempty"`

	Err error `json:"-"`
}

// ChatNotifier posts escalation alerts to the brand's team chat.
type ChatNotifier interface {
	SendReviewAlert(brand *models.BrandConfig, alert *ReviewAlert) error
}

// MessagingNotifier sends escalation alerts to the admin's phone and returns
// the gateway's message id.
type MessagingNotifier interface {
	SendReviewAlert(ctx context.Context, brand *models.BrandConfig, alert *ReviewAlert) (string, error)
}

// BotBroadcaster relays escalation alerts to the admin-managed IM bots.
type BotBroadcaster interface {
	BroadcastReviewAlert(alert *ReviewAlert) (int, error)
}

// ProcessRun is a validated request to process one review. The brand
// configuration is resolved once here and used for the whole run.
type ProcessRun struct {
	Review *models.Review
	Brand  *models.BrandConfig
	UserID *uint
}

type ReviewProcessor struct {
	db        *gorm.DB
	llm       TextGenerator
	health    *HealthService
	chat      ChatNotifier
	messaging MessagingNotifier
	publicURL string
	now       func() time.Time

	// Bots, when set, also receives every escalation alert. Its outcome is
	// logged only and never reaches the progress stream.
	Bots BotBroadcaster

	// OnProcessed is called after a run persisted its outcome.
	OnProcessed func(review *models.Review, result *ProcessResult)
}

func NewReviewProcessor(db *gorm.DB, llm TextGenerator, chat ChatNotifier, messaging MessagingNotifier, publicURL string) *ReviewProcessor {
	return &ReviewProcessor{
		db:        db,
		llm:       llm,
		health:    NewHealthService(db),
		chat:      chat,
		messaging: messaging,
		publicURL: publicURL,
		now:       time.Now,
	}
}

// Prepare checks everything a run needs before the stream opens. Failures are
// *response.AppError values carrying the HTTP status to answer with.
func (p *ReviewProcessor) Prepare(reviewID uint, userID *uint) (*ProcessRun, error) {
	if reviewID == 0 {
		return nil, response.NewBadRequest("Review ID required")
	}

	var review models.Review
	if err := p.db.First(&review, reviewID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, response.NewNotFound("Review not found").WithCause(ErrReviewNotFound)
		}
		return nil, response.NewServerError("Failed to load review").WithCause(err)
	}

	brand, err := ActiveBrandConfig(p.db)
	if err != nil {
		if errors.Is(err, ErrBrandConfigMissing) {
			return nil, response.NewBadRequest("Brand configuration not found")
		}
		return nil, response.NewServerError("Failed to load brand configuration").WithCause(err)
	}

	if !p.llm.Ready(brand) {
		return nil, response.NewServerError(ErrLLMNotConfigured.Error())
	}

	return &ProcessRun{Review: &review, Brand: brand, UserID: userID}, nil
}

// Run executes the pipeline in its own goroutine and streams its events. The
// run is detached from ctx's cancellation: a caller that stops reading loses
// the events, but the review is still processed and persisted.
func (p *ReviewProcessor) Run(ctx context.Context, run *ProcessRun) <-chan ProcessEvent {
	events := make(chan ProcessEvent, eventBuffer)
	runCtx := context.WithoutCancel(ctx)
	go func() {
		defer close(events)
		p.Execute(runCtx, run, func(e ProcessEvent) { events <- e })
	}()
	return events
}

// Process runs the pipeline synchronously and returns its result. Failed and
// skipped steps are logged since nobody reads the stream.
func (p *ReviewProcessor) Process(ctx context.Context, reviewID uint, userID *uint) (*ProcessResult, error) {
	run, err := p.Prepare(reviewID, userID)
	if err != nil {
		return nil, err
	}

	var (
		result *ProcessResult
		runErr error
	)
	log := logger.Review("Processor", reviewID)
	p.Execute(ctx, run, func(e ProcessEvent) {
		switch {
		case e.Final:
			result = e.Result
		case e.Status == StepError:
			runErr = e.Err
		case e.Status == StepFailed:
			log.Warn().Int("step", e.Step).Interface("data", e.Data).Msg("[Processor] " + e.Message)
		case e.Status == StepSkipped:
			log.Debug().Int("step", e.Step).Msg("[Processor] " + e.Message)
		}
	})
	return result, runErr
}

// Execute is the processing state machine. Every stage runs once, in order,
// and reports through emit.
func (p *ReviewProcessor) Execute(ctx context.Context, run *ProcessRun, emit func(ProcessEvent)) {
	start := p.now()
	review, brand := run.Review, run.Brand
	log := logger.Review("Processor", review.ID)

	step := func(n int, status StepStatus, msg string, data interface{}) {
		emit(ProcessEvent{Step: n, Status: status, Message: msg, Data: data})
	}
	fail := func(stage string, err error) {
		pipelineFailures.WithLabelValues(stage).Inc()
		log.Error().Err(err).Str("stage", stage).Msg("[Processor] Processing failed")
		emit(ProcessEvent{Status: StepError, Message: err.Error(), Err: err})
	}

	// 1. Risk assessment
	step(StepRiskAssessment, StepProcessing, "Analyzing risk with Gemini...", nil)
	riskPrompt := BuildRiskAssessmentPrompt(RiskPromptInput{
		ReviewText:   review.ReviewText,
		Rating:       review.Rating,
		Platform:     review.Platform,
		ReviewerName: review.ReviewerName,
	})
	riskCompletion, err := p.llm.Generate(ctx, CompletionRequest{
		Prompt:   riskPrompt,
		JSON:     true,
		Purpose:  models.PurposeRiskAssessment,
		ReviewID: &review.ID,
		Brand:    brand,
	})
	if err != nil {
		fail("risk_assessment", err)
		return
	}
	outcome := ParseRiskAssessment(riskCompletion.Text)
	if outcome.FallbackUsed {
		fallbackAssessments.Inc()
		log.Warn().Str("reason", outcome.ParseError).Msg("[Processor] Risk assessment unparsable, using fallback")
	}
	assessment := outcome.Assessment
	step(StepRiskAssessment, StepCompleted, "Risk assessment complete", assessment)

	// 2. Decision
	step(StepDecision, StepProcessing, "Determining decision...", nil)
	level := brand.AutomationLevel
	if level == "" {
		level = models.AutomationSemiAuto
	}
	decision := Decide(assessment, level)
	step(StepDecision, StepCompleted, "Decision determined", decision)

	// 3. Response draft
	var generated string
	if decision.Decision.NeedsResponse() {
		step(StepResponse, StepProcessing, "Generating response with Gemini...", nil)
		completion, err := p.llm.Generate(ctx, CompletionRequest{
			Prompt: BuildResponsePrompt(ResponsePromptInput{
				ReviewText:  review.ReviewText,
				Rating:      review.Rating,
				CompanyName: brand.CompanyName,
				BrandTone:   brand.BrandTone,
			}),
			Purpose:  models.PurposeResponseGeneration,
			ReviewID: &review.ID,
			Brand:    brand,
		})
		if err != nil {
			fail("response_generation", err)
			return
		}
		generated = strings.TrimSpace(completion.Text)
		step(StepResponse, StepCompleted, "Response generated", map[string]string{"response": generated})
	} else {
		step(StepResponse, StepSkipped, "Response generation skipped - escalation required", nil)
	}

	// 4. Persist
	step(StepPersist, StepProcessing, "Updating review...", nil)
	if err := p.persist(review, assessment, decision, generated); err != nil {
		fail("persist", err)
		return
	}
	step(StepPersist, StepCompleted, "Review updated", nil)

	// 5. Audit and health
	step(StepAudit, StepProcessing, "Creating audit log...", nil)
	auditErr := p.writeAudit(run, assessment, decision, generated, outcome.FallbackUsed, riskCompletion.Provider)
	var auditData interface{}
	if !p.updateHealth(decision, log) {
		auditData = map[string]string{"health": string(StepFailed)}
	}
	if auditErr != nil {
		pipelineFailures.WithLabelValues("audit").Inc()
		log.Error().Err(auditErr).Msg("[Processor] Audit log write failed")
		step(StepAudit, StepFailed, "Audit log failed", auditData)
	} else {
		step(StepAudit, StepCompleted, "Audit log created", auditData)
	}

	// 6 and 7. Escalation notifications
	if decision.Decision == models.DecisionEscalate || assessment.LegalRiskDetected {
		alert := NewReviewAlert(review, assessment, decision, p.publicURL)
		p.notifyChat(run, alert, step, log)
		p.notifyMessaging(ctx, run, alert, step, log)
		p.notifyBots(alert, log)
	}

	result := &ProcessResult{RiskAssessment: assessment, Decision: decision, GeneratedResponse: generated}
	reviewsProcessed.WithLabelValues(string(decision.Decision)).Inc()
	processingDuration.Observe(p.now().Sub(start).Seconds())
	log.Info().Str("decision", string(decision.Decision)).Int("confidence", decision.ConfidenceScore).
		Msg("[Processor] Review processed")

	if p.OnProcessed != nil {
		p.OnProcessed(review, result)
	}
	emit(ProcessEvent{Final: true, Result: result})
}

// persist writes every outcome field in one UPDATE so a failure leaves the
// review exactly as it was.
func (p *ReviewProcessor) persist(review *models.Review, a models.RiskAssessment, d DecisionResult, generated string) error {
	content, reputational, contextual := a.ContentRisk, a.ReputationalRisk, a.ContextualRisk
	dec := d.Decision
	assessment := a

	updated := models.Review{
		ContentRisk:       &content,
		ReputationalRisk:  &reputational,
		ContextualRisk:    &contextual,
		PIIDetected:       a.PIIDetected,
		LegalRiskDetected: a.LegalRiskDetected,
		RiskAssessment:    &assessment,
		Topics:            a.Topics,
		Decision:          &dec,
		ConfidenceScore:   d.ConfidenceScore,
		DecisionRationale: d.Rationale,
		ResponseStatus:    dec.InitialResponseStatus(),
		Status:            dec.WorkflowStatus(),
	}
	if a.Sentiment != "" {
		sentiment := a.Sentiment
		updated.Sentiment = &sentiment
	}
	if generated != "" {
		updated.GeneratedResponse = &generated
	}

	err := p.db.Model(&models.Review{ID: review.ID}).
		Select("content_risk", "reputational_risk", "contextual_risk", "pii_detected", "legal_risk_detected",
			"risk_assessment", "sentiment", "topics", "decision", "confidence_score", "decision_rationale",
			"generated_response", "response_status", "status").
		Updates(&updated).Error
	if err != nil {
		return fmt.Errorf("update review: %w", err)
	}

	review.ContentRisk, review.ReputationalRisk, review.ContextualRisk = updated.ContentRisk, updated.ReputationalRisk, updated.ContextualRisk
	review.PIIDetected, review.LegalRiskDetected = updated.PIIDetected, updated.LegalRiskDetected
	review.RiskAssessment, review.Sentiment, review.Topics = updated.RiskAssessment, updated.Sentiment, updated.Topics
	review.Decision, review.ConfidenceScore, review.DecisionRationale = updated.Decision, updated.ConfidenceScore, updated.DecisionRationale
	review.GeneratedResponse, review.ResponseStatus, review.Status = updated.GeneratedResponse, updated.ResponseStatus, updated.Status
	return nil
}

func (p *ReviewProcessor) writeAudit(run *ProcessRun, a models.RiskAssessment, d DecisionResult, generated string, fallback bool, provider string) error {
	dec := d.Decision
	confidence := d.ConfidenceScore
	entry := &models.AuditLog{
		ActionType:        models.ActionReviewProcessed,
		ReviewID:          &run.Review.ID,
		UserID:            run.UserID,
		RiskAssessment:    &a,
		Decision:          &dec,
		DecisionRationale: d.Rationale,
		ConfidenceScore:   &confidence,
		Metadata: models.ReviewProcessedMeta{
			AutomationLevel: run.Brand.AutomationLevel,
			FallbackUsed:    fallback,
			LLMProvider:     provider,
		},
	}
	if generated != "" {
		entry.GeneratedResponse = &generated
	}
	return p.db.Create(entry).Error
}

// updateHealth never fails the run; it reports whether the rollup was saved.
func (p *ReviewProcessor) updateHealth(d DecisionResult, log zerolog.Logger) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			pipelineFailures.WithLabelValues("health").Inc()
			log.Error().Interface("panic", r).Msg("[Processor] Health update panicked")
			ok = false
		}
	}()
	if _, err := p.health.RecordOutcome(d.Decision, d.ConfidenceScore, p.now()); err != nil {
		pipelineFailures.WithLabelValues("health").Inc()
		log.Error().Err(err).Msg("[Processor] Failed to update system health")
		return false
	}
	return true
}

func (p *ReviewProcessor) notifyBots(alert *ReviewAlert, log zerolog.Logger) {
	if p.Bots == nil {
		return
	}
	sent, err := p.Bots.BroadcastReviewAlert(alert)
	if err != nil {
		log.Warn().Err(err).Int("sent", sent).Msg("[Processor] IM bot alert incomplete")
		return
	}
	if sent > 0 {
		log.Info().Int("bots", sent).Msg("[Processor] IM bots alerted")
	}
}

func (p *ReviewProcessor) notifyChat(run *ProcessRun, alert *ReviewAlert, step func(int, StepStatus, string, interface{}), log zerolog.Logger) {
	step(StepChat, StepProcessing, "Sending Slack notification...", nil)
	if p.chat == nil || !SlackReady(run.Brand) {
		step(StepChat, StepSkipped, "Slack not configured", nil)
		return
	}
	if err := p.chat.SendReviewAlert(run.Brand, alert); err != nil {
		log.Error().Err(err).Msg("[Processor] Slack notification error")
		step(StepChat, StepFailed, "Slack notification failed", nil)
		return
	}

	if err := p.db.Create(&models.AuditLog{
		ActionType: models.ActionSlackNotificationSent,
		ReviewID:   &run.Review.ID,
		UserID:     run.UserID,
		Metadata:   models.SlackNotificationMeta{Channel: run.Brand.SlackChannelName},
	}).Error; err != nil {
		log.Error().Err(err).Msg("[Processor] Failed to audit Slack notification")
	}
	step(StepChat, StepCompleted, "Slack notification sent", nil)
}

func (p *ReviewProcessor) notifyMessaging(ctx context.Context, run *ProcessRun, alert *ReviewAlert, step func(int, StepStatus, string, interface{}), log zerolog.Logger) {
	step(StepMessaging, StepProcessing, "Sending WhatsApp notification...", nil)
	if p.messaging == nil || !run.Brand.WhatsAppEnabled {
		step(StepMessaging, StepSkipped, "WhatsApp not enabled", nil)
		return
	}
	if !WhatsAppReady(run.Brand) {
		step(StepMessaging, StepSkipped, ErrWhatsAppNotConfigured.Error(), nil)
		return
	}

	messageID, err := p.messaging.SendReviewAlert(ctx, run.Brand, alert)
	if err != nil {
		log.Error().Err(err).Msg("[Processor] WhatsApp notification failed")
		step(StepMessaging, StepFailed, "WhatsApp failed: "+err.Error(), nil)
		return
	}

	if err := p.db.Create(&models.AuditLog{
		ActionType: models.ActionWhatsAppNotificationSent,
		ReviewID:   &run.Review.ID,
		UserID:     run.UserID,
		Metadata:   models.WhatsAppNotificationMeta{MessageID: messageID},
	}).Error; err != nil {
		log.Error().Err(err).Msg("[Processor] Failed to audit WhatsApp notification")
	}
	step(StepMessaging, StepCompleted, "WhatsApp notification sent", nil)
}
