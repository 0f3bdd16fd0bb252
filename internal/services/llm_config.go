package services

import (
	"errors"
	"fmt"

	"github.com/huangang/reviewbuddy/backend/internal/models"
	"github.com/huangang/reviewbuddy/backend/pkg/response"
	"gorm.io/gorm"
)

var llmProviders = map[string]bool{
	"gemini":    true,
	"openai":    true,
	"azure":     true,
	"anthropic": true,
	"ollama":    true,
}

type LLMConfigService struct {
	db *gorm.DB
}

func NewLLMConfigService(db *gorm.DB) *LLMConfigService {
	return &LLMConfigService{db: db}
}

type LLMConfigListRequest struct {
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
	Name     string `form:"name"`
	Provider string `form:"provider"`
	IsActive *bool  `form:"is_active"`
}

type CreateLLMConfigRequest struct {
	Name        string  `json:"name" binding:"required"`
	Provider    string  `json:"provider"`
	BaseURL     string  `json:"base_url"`
	APIKey      string  `json:"api_key"`
	Model       string  `json:"model" binding:"required"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	IsDefault   bool    `json:"is_default"`
	IsActive    *bool   `json:"is_active"`
}

type UpdateLLMConfigRequest struct {
	Name        string   `json:"name"`
	Provider    string   `json:"provider"`
	BaseURL     *string  `json:"base_url"`
	APIKey      string   `json:"api_key"`
	Model       string   `json:"model"`
	MaxTokens   *int     `json:"max_tokens"`
	Temperature *float64 `json:"temperature"`
	IsDefault   *bool    `json:"is_default"`
	IsActive    *bool    `json:"is_active"`
}

func checkProvider(provider string) error {
	if !llmProviders[provider] {
		return response.NewBadRequest(fmt.Sprintf("unsupported provider %q", provider))
	}
	return nil
}

func checkTemperature(t float64) error {
	if t < 0 || t > 2 {
		return response.NewBadRequest("temperature must be between 0 and 2")
	}
	return nil
}

// List returns LLM configs newest first with masked keys.
func (s *LLMConfigService) List(req *LLMConfigListRequest) (*response.Page[models.LLMConfig], error) {
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.PageSize <= 0 || req.PageSize > 100 {
		req.PageSize = 10
	}

	var configs []models.LLMConfig
	var total int64

	query := s.db.Model(&models.LLMConfig{})

	if req.Name != "" {
		query = query.Where("name LIKE ? OR model LIKE ?", "%"+req.Name+"%", "%"+req.Name+"%")
	}
	if req.Provider != "" {
		query = query.Where("provider = ?", req.Provider)
	}
	if req.IsActive != nil {
		query = query.Where("is_active = ?", *req.IsActive)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}

	offset := (req.Page - 1) * req.PageSize
	if err := query.Offset(offset).Limit(req.PageSize).Order("created_at DESC, id DESC").Find(&configs).Error; err != nil {
		return nil, err
	}

	for i := range configs {
		configs[i].APIKeyMask = configs[i].MaskAPIKey()
	}

	return response.NewPage(configs, total, req.Page, req.PageSize), nil
}

func (s *LLMConfigService) find(id uint) (*models.LLMConfig, error) {
	var config models.LLMConfig
	err := s.db.First(&config, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, response.NewNotFound("LLM config not found")
	}
	if err != nil {
		return nil, err
	}
	return &config, nil
}

func (s *LLMConfigService) GetByID(id uint) (*models.LLMConfig, error) {
	config, err := s.find(id)
	if err != nil {
		return nil, err
	}
	config.APIKeyMask = config.MaskAPIKey()
	return config, nil
}

// GetDefault returns the default active config, or any active one.
func (s *LLMConfigService) GetDefault() (*models.LLMConfig, error) {
	var config models.LLMConfig
	err := s.db.Where("is_default = ? AND is_active = ?", true, true).First(&config).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = s.db.Where("is_active = ?", true).Order("id ASC").First(&config).Error
	}
	if err != nil {
		return nil, err
	}
	return &config, nil
}

func (s *LLMConfigService) Create(req *CreateLLMConfigRequest) (*models.LLMConfig, error) {
	if req.Provider == "" {
		req.Provider = "gemini"
	}
	if err := checkProvider(req.Provider); err != nil {
		return nil, err
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = 4096
	}
	if req.Temperature == 0 {
		req.Temperature = 0.2
	}
	if err := checkTemperature(req.Temperature); err != nil {
		return nil, err
	}

	config := models.LLMConfig{
		Name:        req.Name,
		Provider:    req.Provider,
		BaseURL:     req.BaseURL,
		APIKey:      req.APIKey,
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		IsDefault:   req.IsDefault,
		IsActive:    true,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if req.IsDefault {
			if err := tx.Model(&models.LLMConfig{}).Where("is_default = ?", true).Update("is_default", false).Error; err != nil {
				return err
			}
		}
		if err := tx.Create(&config).Error; err != nil {
			return err
		}
		// is_active defaults to true in the schema, so false is written separately.
		if req.IsActive != nil && !*req.IsActive {
			config.IsActive = false
			return tx.Model(&config).Update("is_active", false).Error
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	config.APIKeyMask = config.MaskAPIKey()
	return &config, nil
}

// Update changes the given fields. An empty api_key keeps the stored key.
func (s *LLMConfigService) Update(id uint, req *UpdateLLMConfigRequest) (*models.LLMConfig, error) {
	config, err := s.find(id)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})

	if req.Name != "" {
		updates["name"] = req.Name
	}
	if req.Provider != "" {
		if err := checkProvider(req.Provider); err != nil {
			return nil, err
		}
		updates["provider"] = req.Provider
	}
	if req.BaseURL != nil {
		updates["base_url"] = *req.BaseURL
	}
	if req.APIKey != "" {
		updates["api_key"] = req.APIKey
	}
	if req.Model != "" {
		updates["model"] = req.Model
	}
	if req.MaxTokens != nil {
		updates["max_tokens"] = *req.MaxTokens
	}
	if req.Temperature != nil {
		if err := checkTemperature(*req.Temperature); err != nil {
			return nil, err
		}
		updates["temperature"] = *req.Temperature
	}
	if req.IsDefault != nil {
		updates["is_default"] = *req.IsDefault
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if req.IsDefault != nil && *req.IsDefault {
			if err := tx.Model(&models.LLMConfig{}).Where("is_default = ? AND id <> ?", true, id).Update("is_default", false).Error; err != nil {
				return err
			}
		}
		if len(updates) == 0 {
			return nil
		}
		return tx.Model(config).Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}

	return s.GetByID(id)
}

func (s *LLMConfigService) Delete(id uint) error {
	result := s.db.Delete(&models.LLMConfig{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return response.NewNotFound("LLM config not found")
	}
	return nil
}

// GetActive lists active configs in the order the AI service tries them.
func (s *LLMConfigService) GetActive() ([]models.LLMConfig, error) {
	var configs []models.LLMConfig
	if err := s.db.Where("is_active = ?", true).Order("is_default DESC, created_at DESC").Find(&configs).Error; err != nil {
		return nil, err
	}
	for i := range configs {
		configs[i].APIKeyMask = configs[i].MaskAPIKey()
	}
	return configs, nil
}
