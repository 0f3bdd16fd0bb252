package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/huangang/reviewbuddy/backend/internal/models"
	"github.com/huangang/reviewbuddy/backend/internal/services/kiyoh"
	"github.com/huangang/reviewbuddy/backend/pkg/logger"
	"github.com/huangang/reviewbuddy/backend/pkg/response"
	"gorm.io/gorm"
)

var (
	ErrReviewNotFound   = errors.New("review not found")
	ErrNothingToPublish = errors.New("no response to publish")
	ErrNoExternalID     = errors.New("no external review ID - cannot publish to platform")
)

const recentAuditEntries = 20

type ReviewService struct {
	db     *gorm.DB
	kiyoh  *kiyoh.Client
	health *HealthService
	now    func() time.Time
}

func NewReviewService(db *gorm.DB, client *kiyoh.Client) *ReviewService {
	return &ReviewService{db: db, kiyoh: client, health: NewHealthService(db), now: time.Now}
}

type ReviewListRequest struct {
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"limit" binding:"omitempty,min=1,max=100"`
	Status   string `form:"status"`
	Decision string `form:"decision"`
	Platform string `form:"platform"`
	Search   string `form:"search"`
}

func (s *ReviewService) List(req *ReviewListRequest) (*response.Page[models.Review], error) {
	if req.Page == 0 {
		req.Page = 1
	}
	if req.PageSize == 0 {
		req.PageSize = 20
	}

	query := s.db.Model(&models.Review{})
	if req.Status != "" {
		query = query.Where("status = ?", req.Status)
	}
	if req.Decision != "" {
		query = query.Where("decision = ?", req.Decision)
	}
	if req.Platform != "" {
		query = query.Where("platform = ?", req.Platform)
	}
	if req.Search != "" {
		like := "%" + req.Search + "%"
		query = query.Where("review_text LIKE ? OR reviewer_name LIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}

	var reviews []models.Review
	offset := (req.Page - 1) * req.PageSize
	err := query.Preload("AssignedTo").
		Offset(offset).Limit(req.PageSize).Order("created_at DESC").
		Find(&reviews).Error
	if err != nil {
		return nil, err
	}
	return response.NewPage(reviews, total, req.Page, req.PageSize), nil
}

// ReviewDetail is a review with its most recent audit trail.
type ReviewDetail struct {
	models.Review
	AuditLogs []models.AuditLog `json:"audit_logs"`
}

func (s *ReviewService) Get(id uint) (*ReviewDetail, error) {
	review, err := s.find(id)
	if err != nil {
		return nil, err
	}
	detail := &ReviewDetail{Review: *review, AuditLogs: []models.AuditLog{}}
	err = s.db.Where("review_id = ?", id).
		Order("created_at DESC").Order("id DESC").
		Limit(recentAuditEntries).
		Find(&detail.AuditLogs).Error
	if err != nil {
		return nil, err
	}
	return detail, nil
}

func (s *ReviewService) find(id uint) (*models.Review, error) {
	var review models.Review
	err := s.db.Preload("AssignedTo").First(&review, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, response.NewNotFound("Review not found").WithCause(ErrReviewNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &review, nil
}

// UpdateReviewRequest is a human edit. Nil fields are left unchanged.
type UpdateReviewRequest struct {
	Status            *models.ReviewStatus   `json:"status"`
	Decision          *models.Decision       `json:"decision"`
	HumanNotes        *string                `json:"human_notes"`
	HumanActionTaken  *string                `json:"human_action_taken"`
	GeneratedResponse *string                `json:"generated_response"`
	ResponseStatus    *models.ResponseStatus `json:"response_status"`
	AssignedToID      *uint                  `json:"assigned_to_id"`
}

func (r *UpdateReviewRequest) validate() error {
	if r.Status != nil && !r.Status.Valid() {
		return response.NewBadRequest(fmt.Sprintf("invalid status %q", *r.Status))
	}
	if r.Decision != nil && !r.Decision.Valid() {
		return response.NewBadRequest(fmt.Sprintf("invalid decision %q", *r.Decision))
	}
	if r.ResponseStatus != nil && !r.ResponseStatus.Valid() {
		return response.NewBadRequest(fmt.Sprintf("invalid response status %q", *r.ResponseStatus))
	}
	return nil
}

// apply copies the set fields onto review and returns them keyed by column.
func (r *UpdateReviewRequest) apply(review *models.Review) map[string]interface{} {
	updates := map[string]interface{}{}
	if r.Status != nil {
		review.Status = *r.Status
		updates["status"] = *r.Status
	}
	if r.Decision != nil {
		review.Decision = r.Decision
		updates["decision"] = *r.Decision
	}
	if r.HumanNotes != nil {
		review.HumanNotes = *r.HumanNotes
		updates["human_notes"] = *r.HumanNotes
	}
	if r.HumanActionTaken != nil {
		review.HumanActionTaken = *r.HumanActionTaken
		updates["human_action_taken"] = *r.HumanActionTaken
	}
	if r.GeneratedResponse != nil {
		review.GeneratedResponse = r.GeneratedResponse
		updates["generated_response"] = *r.GeneratedResponse
	}
	if r.ResponseStatus != nil {
		review.ResponseStatus = *r.ResponseStatus
		updates["response_status"] = *r.ResponseStatus
	}
	if r.AssignedToID != nil {
		review.AssignedToID = r.AssignedToID
		updates["assigned_to_id"] = *r.AssignedToID
	}
	return updates
}

// Update applies a human edit and audits it. Changing the decision counts as
// an override in today's health record.
func (s *ReviewService) Update(id uint, req *UpdateReviewRequest, userID *uint) (*models.Review, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	review, err := s.find(id)
	if err != nil {
		return nil, err
	}

	previous := review.Decision
	updates := req.apply(review)
	if err := review.CheckRespondedInvariant(); err != nil {
		return nil, response.NewBadRequest("A review can only be marked responded once a response was published").WithCause(err)
	}

	newDecision := review.Decision
	overridden := req.Decision != nil && (previous == nil || *previous != *req.Decision)

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if len(updates) > 0 {
			if err := tx.Model(&models.Review{ID: id}).Updates(updates).Error; err != nil {
				return err
			}
		}
		return tx.Create(&models.AuditLog{
			ActionType:       models.ActionReviewUpdated,
			ReviewID:         &id,
			UserID:           userID,
			PreviousDecision: previous,
			NewDecision:      newDecision,
			Metadata: models.ReviewUpdatedMeta{
				Updates:          updates,
				HumanNotes:       derefString(req.HumanNotes),
				HumanActionTaken: derefString(req.HumanActionTaken),
			},
		}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("update review %d: %w", id, err)
	}

	if overridden {
		if _, err := s.health.RecordOverride(s.now()); err != nil {
			logger.Warnf("[Review] Failed to record decision override for review %d: %v", id, err)
		}
	}

	updated, err := s.find(id)
	if err != nil {
		return nil, err
	}
	PublishReviewEvent(updated, "")
	return updated, nil
}

type PublishRequest struct {
	ResponseType kiyoh.ResponseType `json:"response_type"`
	SendEmail    bool               `json:"send_email"`
}

// Publish posts the generated response to the review platform and marks the
// review responded.
func (s *ReviewService) Publish(ctx context.Context, id uint, brand *models.BrandConfig, req *PublishRequest, userID *uint) (*models.Review, error) {
	if req.ResponseType == "" {
		req.ResponseType = kiyoh.ResponsePublic
	}
	if !req.ResponseType.Valid() {
		return nil, response.NewBadRequest(fmt.Sprintf("invalid response type %q", req.ResponseType))
	}

	review, err := s.find(id)
	if err != nil {
		return nil, err
	}
	text := review.ResponseText()
	if text == "" {
		return nil, response.NewBadRequest("No response to publish").WithCause(ErrNothingToPublish)
	}
	if review.ExternalID == nil || *review.ExternalID == "" {
		return nil, response.NewBadRequest("No external review ID - cannot publish to platform").WithCause(ErrNoExternalID)
	}
	if !brand.HasKiyohCredentials() {
		return nil, response.NewBadRequest(errKiyohNotReadyMsg)
	}

	if err := s.kiyoh.PostResponse(ctx, credentialsOf(brand), *review.ExternalID, text, req.ResponseType, req.SendEmail); err != nil {
		LogError("Review", "publish", fmt.Sprintf("Publishing response for review %d failed: %v", id, err), userID, "", "", nil)
		return nil, kiyohError(err)
	}

	now := s.now()
	err = s.db.Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&models.Review{ID: id}).Updates(map[string]interface{}{
			"response_status":       models.ResponseStatusPublished,
			"response_published_at": now,
			"status":                models.ReviewStatusResponded,
		}).Error
		if err != nil {
			return err
		}
		return tx.Create(&models.AuditLog{
			ActionType:        models.ActionResponsePublished,
			ReviewID:          &id,
			UserID:            userID,
			GeneratedResponse: &text,
			Metadata: models.ResponsePublishedMeta{
				ResponseType: string(req.ResponseType),
				SendEmail:    req.SendEmail,
				Platform:     importSource,
			},
		}).Error
	})
	if err != nil {
		// The platform already has the reply; only our bookkeeping failed.
		logger.Errorf("[Review] Response for review %d published but not recorded: %v", id, err)
		return nil, fmt.Errorf("record published response: %w", err)
	}

	logger.Infof("[Review] Published %s response for review %d", req.ResponseType, id)
	updated, err := s.find(id)
	if err != nil {
		return nil, err
	}
	PublishReviewEvent(updated, "")
	return updated, nil
}

// QueueNew enqueues every review still waiting in status new.
func (s *ReviewService) QueueNew(queue TaskQueue, userID *uint) (int, error) {
	var ids []uint
	err := s.db.Model(&models.Review{}).
		Where("status = ?", models.ReviewStatusNew).
		Order("created_at ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return 0, err
	}

	queued := 0
	for _, id := range ids {
		if err := queue.Enqueue(&ReviewTask{ReviewID: id, Trigger: TriggerManual, UserID: userID}); err != nil {
			logger.Warnf("[Review] Failed to queue review %d: %v", id, err)
			continue
		}
		queued++
	}
	logger.Infof("[Review] Queued %d of %d new reviews for processing", queued, len(ids))
	return queued, nil
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
