package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/huangang/reviewbuddy/backend/internal/models"
	"github.com/huangang/reviewbuddy/backend/internal/services/kiyoh"
	"github.com/huangang/reviewbuddy/backend/pkg/logger"
	"github.com/huangang/reviewbuddy/backend/pkg/response"
	"gorm.io/gorm"
)

const (
	importSource        = "kiyoh"
	noReviewText        = "No review text"
	anonymousReviewer   = "Anonymous"
	errKiyohNotReadyMsg = "Kiyoh API credentials not configured"
)

type ImportService struct {
	db          *gorm.DB
	kiyoh       *kiyoh.Client
	queue       TaskQueue
	autoProcess bool
}

func NewImportService(db *gorm.DB, client *kiyoh.Client) *ImportService {
	return &ImportService{db: db, kiyoh: client}
}

// EnableAutoProcess queues every newly imported review on q.
func (s *ImportService) EnableAutoProcess(q TaskQueue) {
	s.queue = q
	s.autoProcess = q != nil
}

type ImportOptions struct {
	Limit        int        `json:"limit"`
	DateSince    *time.Time `json:"date_since"`
	UpdatedSince *time.Time `json:"updated_since"`
	Trigger      string     `json:"-"`
	UserID       *uint      `json:"-"`
}

type ImportCounts struct {
	New     int `json:"new"`
	Updated int `json:"updated"`
}

type ImportResult struct {
	Fetched       int          `json:"fetched"`
	Imported      ImportCounts `json:"imported"`
	NewReviewIDs  []uint       `json:"new_review_ids"`
	Queued        int          `json:"queued"`
	LocationName  string       `json:"location_name"`
	AverageRating float64      `json:"average_rating"`
	TotalReviews  int          `json:"total_reviews"`
}

func credentialsOf(brand *models.BrandConfig) kiyoh.Credentials {
	return kiyoh.Credentials{
		APIKey:     brand.KiyohAPIKey,
		LocationID: brand.KiyohLocationID,
		TenantID:   brand.TenantID(),
	}
}

// FetchReviews pulls reviews from Kiyoh and upserts them by external id.
func (s *ImportService) FetchReviews(ctx context.Context, brand *models.BrandConfig, opts ImportOptions) (*ImportResult, error) {
	if !brand.HasKiyohCredentials() {
		return nil, response.NewBadRequest(errKiyohNotReadyMsg)
	}
	if opts.Trigger == "" {
		opts.Trigger = TriggerManual
	}

	PublishImportEvent(ImportProgress{Stage: "started", Source: importSource, Trigger: opts.Trigger})

	data, err := s.kiyoh.FetchReviews(ctx, credentialsOf(brand), kiyoh.FetchOptions{
		Limit:        opts.Limit,
		DateSince:    opts.DateSince,
		UpdatedSince: opts.UpdatedSince,
	})
	if err != nil {
		PublishImportEvent(ImportProgress{Stage: "failed", Source: importSource, Trigger: opts.Trigger, Error: err.Error()})
		LogError("Import", "fetch_reviews", "Kiyoh fetch failed: "+err.Error(), opts.UserID, "", "", nil)
		return nil, kiyohError(err)
	}

	result := &ImportResult{
		Fetched:       len(data.Reviews),
		NewReviewIDs:  []uint{},
		LocationName:  data.LocationName,
		AverageRating: data.AverageRating,
		TotalReviews:  data.NumberReviews,
	}

	for i := range data.Reviews {
		id, created, err := s.upsert(&data.Reviews[i])
		if err != nil {
			logger.Errorf("[Import] Failed to store review %s: %v", data.Reviews[i].ReviewID, err)
			reviewsImported.WithLabelValues("error").Inc()
			continue
		}
		if created {
			result.Imported.New++
			result.NewReviewIDs = append(result.NewReviewIDs, id)
			reviewsImported.WithLabelValues("new").Inc()
		} else {
			result.Imported.Updated++
			reviewsImported.WithLabelValues("updated").Inc()
		}
	}

	err = s.db.Create(&models.AuditLog{
		ActionType: models.ActionReviewsFetched,
		UserID:     opts.UserID,
		Metadata: models.ReviewsFetchedMeta{
			Source:         importSource,
			TotalFetched:   result.Fetched,
			NewReviews:     result.Imported.New,
			UpdatedReviews: result.Imported.Updated,
			Trigger:        opts.Trigger,
		},
	}).Error
	if err != nil {
		logger.Errorf("[Import] Failed to write audit log: %v", err)
	}

	if s.autoProcess {
		result.Queued = s.enqueue(result.NewReviewIDs, opts.UserID)
	}

	logger.Infof("[Import] %s import from %s: fetched=%d new=%d updated=%d queued=%d",
		opts.Trigger, data.LocationName, result.Fetched, result.Imported.New, result.Imported.Updated, result.Queued)
	PublishImportEvent(ImportProgress{
		Stage:    "completed",
		Source:   importSource,
		Trigger:  opts.Trigger,
		Fetched:  result.Fetched,
		New:      result.Imported.New,
		Updated:  result.Imported.Updated,
		Location: data.LocationName,
	})
	return result, nil
}

// upsert stores one Kiyoh review, returning its id and whether it was new.
func (s *ImportService) upsert(r *kiyoh.Review) (uint, bool, error) {
	text := r.Content(kiyoh.QuestionOpinion)
	oneLiner := r.Content(kiyoh.QuestionOneLiner)
	if text == "" {
		text = oneLiner
	}
	if text == "" {
		text = noReviewText
	}
	rating := int(math.Round(r.Rating))

	var existing models.Review
	err := s.db.Where("external_id = ?", r.ReviewID).First(&existing).Error
	if err == nil {
		err = s.db.Model(&existing).Updates(map[string]interface{}{
			"rating":      rating,
			"review_text": text,
			"one_liner":   oneLiner,
		}).Error
		return existing.ID, false, err
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, err
	}

	name := r.ReviewAuthor
	if name == "" {
		name = anonymousReviewer
	}
	externalID := r.ReviewID
	review := models.Review{
		ExternalID:      &externalID,
		Platform:        importSource,
		ReviewText:      text,
		OneLiner:        oneLiner,
		Rating:          rating,
		ReviewerName:    name,
		ReviewerCity:    r.City,
		ReviewTimestamp: r.Timestamp(),
		Status:          models.ReviewStatusNew,
		ResponseStatus:  models.ResponseStatusPending,
	}
	if err := s.db.Create(&review).Error; err != nil {
		return 0, false, err
	}
	return review.ID, true, nil
}

func (s *ImportService) enqueue(ids []uint, userID *uint) int {
	queued := 0
	for _, id := range ids {
		if err := s.queue.Enqueue(&ReviewTask{ReviewID: id, Trigger: TriggerImport, UserID: userID}); err != nil {
			logger.Warnf("[Import] Failed to queue review %d: %v", id, err)
			continue
		}
		queued++
	}
	return queued
}

// kiyohError maps a platform failure to an API error.
func kiyohError(err error) error {
	if errors.Is(err, kiyoh.ErrMissingCredentials) {
		return response.NewBadRequest(errKiyohNotReadyMsg)
	}
	var apiErr *kiyoh.APIError
	if errors.As(err, &apiErr) {
		return response.NewBadGateway(apiErr.Message).WithCause(err)
	}
	return response.NewBadGateway(fmt.Sprintf("Kiyoh request failed: %v", err)).WithCause(err)
}
