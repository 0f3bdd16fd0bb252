package services

import (
	"time"

	"github.com/huangang/reviewbuddy/backend/internal/models"
	"github.com/huangang/reviewbuddy/backend/pkg/response"
	"gorm.io/gorm"
)

type AuditLogService struct {
	db *gorm.DB
}

func NewAuditLogService(db *gorm.DB) *AuditLogService {
	return &AuditLogService{db: db}
}

type AuditLogListRequest struct {
	Page       int       `form:"page" binding:"omitempty,min=1"`
	PageSize   int       `form:"limit" binding:"omitempty,min=1,max=200"`
	ActionType string    `form:"action_type"`
	ReviewID   uint      `form:"review_id"`
	UserID     uint      `form:"user_id"`
	StartDate  time.Time `form:"start_date"`
	EndDate    time.Time `form:"end_date"`
}

// List returns audit entries newest first, with the review each refers to.
func (s *AuditLogService) List(req *AuditLogListRequest) (*response.Page[models.AuditLog], error) {
	if req.Page == 0 {
		req.Page = 1
	}
	if req.PageSize == 0 {
		req.PageSize = 50
	}
	if req.ActionType != "" && !models.AuditAction(req.ActionType).Valid() {
		return nil, response.NewBadRequest("invalid action type " + req.ActionType)
	}

	query := s.db.Model(&models.AuditLog{})
	if req.ActionType != "" {
		query = query.Where("action_type = ?", req.ActionType)
	}
	if req.ReviewID > 0 {
		query = query.Where("review_id = ?", req.ReviewID)
	}
	if req.UserID > 0 {
		query = query.Where("user_id = ?", req.UserID)
	}
	if !req.StartDate.IsZero() {
		query = query.Where("created_at >= ?", req.StartDate)
	}
	if !req.EndDate.IsZero() {
		query = query.Where("created_at <= ?", req.EndDate)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}

	var logs []models.AuditLog
	offset := (req.Page - 1) * req.PageSize
	err := query.Preload("Review").
		Offset(offset).Limit(req.PageSize).
		Order("created_at DESC").Order("id DESC").
		Find(&logs).Error
	if err != nil {
		return nil, err
	}
	return response.NewPage(logs, total, req.Page, req.PageSize), nil
}
