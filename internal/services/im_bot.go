package services

import (
	"errors"
	"fmt"

	"github.com/huangang/reviewbuddy/backend/internal/models"
	"github.com/huangang/reviewbuddy/backend/pkg/response"
	"gorm.io/gorm"
)

type IMBotService struct {
	db *gorm.DB
}

func NewIMBotService(db *gorm.DB) *IMBotService {
	return &IMBotService{db: db}
}

type IMBotListRequest struct {
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	Name     string `form:"name"`
	Type     string `form:"type"`
	IsActive *bool  `form:"is_active"`
}

type CreateIMBotRequest struct {
	Name        string `json:"name" binding:"required"`
	Type        string `json:"type" binding:"required,oneof=wechat_work dingtalk feishu slack discord teams telegram generic"`
	Webhook     string `json:"webhook" binding:"required"`
	Secret      string `json:"secret"`
	Extra       string `json:"extra"`
	IsActive    bool   `json:"is_active"`
	HealthAlert bool   `json:"health_alert"`
	DailyDigest bool   `json:"daily_digest"`
}

type UpdateIMBotRequest struct {
	Name        string `json:"name"`
	Type        string `json:"type" binding:"omitempty,oneof=wechat_work dingtalk feishu slack discord teams telegram generic"`
	Webhook     string `json:"webhook"`
	Secret      string `json:"secret"`
	Extra       string `json:"extra"`
	IsActive    *bool  `json:"is_active"`
	HealthAlert *bool  `json:"health_alert"`
	DailyDigest *bool  `json:"daily_digest"`
}

// List returns paginated IM bots
func (s *IMBotService) List(req *IMBotListRequest) (*response.Page[models.IMBot], error) {
	if req.Page == 0 {
		req.Page = 1
	}
	if req.PageSize == 0 {
		req.PageSize = 10
	}

	var bots []models.IMBot
	var total int64

	query := s.db.Model(&models.IMBot{})

	if req.Name != "" {
		query = query.Where("name LIKE ?", "%"+req.Name+"%")
	}
	if req.Type != "" {
		query = query.Where("type = ?", req.Type)
	}
	if req.IsActive != nil {
		query = query.Where("is_active = ?", *req.IsActive)
	}

	query.Count(&total)

	offset := (req.Page - 1) * req.PageSize
	if err := query.Offset(offset).Limit(req.PageSize).Order("created_at DESC").Find(&bots).Error; err != nil {
		return nil, err
	}

	return response.NewPage(bots, total, req.Page, req.PageSize), nil
}

// GetByID returns an IM bot by ID
func (s *IMBotService) GetByID(id uint) (*models.IMBot, error) {
	var bot models.IMBot
	if err := s.db.First(&bot, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, response.NewNotFound("bot not found")
		}
		return nil, err
	}
	return &bot, nil
}

// Create creates a new IM bot
func (s *IMBotService) Create(req *CreateIMBotRequest) (*models.IMBot, error) {
	bot := models.IMBot{
		Name:        req.Name,
		Type:        req.Type,
		Webhook:     req.Webhook,
		Secret:      req.Secret,
		Extra:       req.Extra,
		IsActive:    req.IsActive,
		HealthAlert: req.HealthAlert,
		DailyDigest: req.DailyDigest,
	}

	if err := s.db.Create(&bot).Error; err != nil {
		return nil, err
	}
	// Create skips false booleans, letting the column defaults win.
	if err := s.db.Model(&bot).Updates(map[string]interface{}{
		"is_active":    req.IsActive,
		"health_alert": req.HealthAlert,
		"daily_digest": req.DailyDigest,
	}).Error; err != nil {
		return nil, err
	}

	return &bot, nil
}

// Update updates an IM bot
func (s *IMBotService) Update(id uint, req *UpdateIMBotRequest) (*models.IMBot, error) {
	var bot models.IMBot
	if err := s.db.First(&bot, id).Error; err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})

	if req.Name != "" {
		updates["name"] = req.Name
	}
	if req.Type != "" {
		updates["type"] = req.Type
	}
	if req.Webhook != "" {
		updates["webhook"] = req.Webhook
	}
	if req.Secret != "" {
		updates["secret"] = req.Secret
	}
	if req.Extra != "" {
		updates["extra"] = req.Extra
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if req.HealthAlert != nil {
		updates["health_alert"] = *req.HealthAlert
	}
	if req.DailyDigest != nil {
		updates["daily_digest"] = *req.DailyDigest
	}

	if err := s.db.Model(&bot).Updates(updates).Error; err != nil {
		return nil, err
	}

	// Reload
	s.db.First(&bot, id)
	return &bot, nil
}

// Delete deletes an IM bot
func (s *IMBotService) Delete(id uint) error {
	result := s.db.Delete(&models.IMBot{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return response.NewNotFound("bot not found")
	}
	return nil
}

// GetAllActive returns all active IM bots
func (s *IMBotService) GetAllActive() ([]models.IMBot, error) {
	var bots []models.IMBot
	if err := s.db.Where("is_active = ?", true).Find(&bots).Error; err != nil {
		return nil, err
	}
	return bots, nil
}

// SendTest posts a short message through the bot so admins can check the webhook.
func (s *IMBotService) SendTest(id uint, notifier *NotificationService) error {
	bot, err := s.GetByID(id)
	if err != nil {
		return err
	}
	return notifier.SendToBot(bot, fmt.Sprintf("✅ ReviewBuddy test message for bot %q", bot.Name))
}
