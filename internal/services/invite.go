package services

import (
	"context"
	"strings"

	"github.com/huangang/reviewbuddy/backend/internal/models"
	"github.com/huangang/reviewbuddy/backend/internal/services/kiyoh"
	"github.com/huangang/reviewbuddy/backend/pkg/logger"
	"github.com/huangang/reviewbuddy/backend/pkg/response"
	"gorm.io/gorm"
)

type InviteService struct {
	db    *gorm.DB
	kiyoh *kiyoh.Client
}

func NewInviteService(db *gorm.DB, client *kiyoh.Client) *InviteService {
	return &InviteService{db: db, kiyoh: client}
}

type InviteRequest struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	RefCode   string `json:"ref_code"`
	Delay     int    `json:"delay"`
	Language  string `json:"language"`
}

// Send asks Kiyoh to invite a customer to leave a review.
func (s *InviteService) Send(ctx context.Context, brand *models.BrandConfig, req *InviteRequest, userID *uint) error {
	email := strings.TrimSpace(req.Email)
	if email == "" {
		return response.NewBadRequest("Email is required")
	}
	if req.Delay < 0 {
		return response.NewBadRequest("delay must not be negative")
	}
	if !brand.HasKiyohCredentials() {
		return response.NewBadRequest(errKiyohNotReadyMsg)
	}
	language := req.Language
	if language == "" {
		language = kiyoh.DefaultLanguage
	}

	err := s.kiyoh.SendInvite(ctx, credentialsOf(brand), kiyoh.Invite{
		Email:     email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		RefCode:   req.RefCode,
		Delay:     req.Delay,
		Language:  language,
	})
	if err != nil {
		return kiyohError(err)
	}

	err = s.db.Create(&models.AuditLog{
		ActionType: models.ActionInviteSent,
		UserID:     userID,
		Metadata: models.InviteSentMeta{
			Email:     email,
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Delay:     req.Delay,
			Language:  language,
		},
	}).Error
	if err != nil {
		logger.Errorf("[Invite] Invite sent to %s but audit failed: %v", email, err)
	}
	logger.Infof("[Invite] Review invite sent (delay %d days)", req.Delay)
	return nil
}
