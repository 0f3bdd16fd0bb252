package services

import (
	"errors"
	"strconv"

	"github.com/huangang/reviewbuddy/backend/internal/models"
	"github.com/huangang/reviewbuddy/backend/pkg/response"
	"gorm.io/gorm"
)

// Runtime-tunable keys.
const (
	ConfigLogRetentionDays     = "system_log_retention_days"
	ConfigHealthAlertEnabled   = "health_alert_enabled"
	ConfigHealthAlertMinReview = "health_alert_min_reviews"
	ConfigDailyDigestEnabled   = "daily_digest_enabled"
	ConfigDailyDigestCron      = "daily_digest_cron"
	ConfigAIUsageRetentionDays = "ai_usage_retention_days"
)

type SystemConfigService struct {
	db *gorm.DB
}

func NewSystemConfigService(db *gorm.DB) *SystemConfigService {
	return &SystemConfigService{db: db}
}

// Column names are passed through a map so each dialect quotes "key" itself.
func (s *SystemConfigService) Get(key string) (string, error) {
	var cfg models.SystemConfig
	if err := s.db.Where(map[string]interface{}{"key": key}).First(&cfg).Error; err != nil {
		return "", err
	}
	return cfg.Value, nil
}

func (s *SystemConfigService) GetWithDefault(key, defaultValue string) string {
	value, err := s.Get(key)
	if err != nil {
		return defaultValue
	}
	return value
}

func (s *SystemConfigService) GetInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(s.GetWithDefault(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}

func (s *SystemConfigService) GetBool(key string, defaultValue bool) bool {
	v, err := strconv.ParseBool(s.GetWithDefault(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}

func (s *SystemConfigService) Set(key, value string) error {
	var cfg models.SystemConfig
	err := s.db.Where(map[string]interface{}{"key": key}).First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		cfg = models.SystemConfig{
			Key:   key,
			Value: value,
		}
		return s.db.Create(&cfg).Error
	}
	if err != nil {
		return err
	}
	return s.db.Model(&cfg).Update("value", value).Error
}

func (s *SystemConfigService) GetByGroup(group string) ([]models.SystemConfig, error) {
	var configs []models.SystemConfig
	if err := s.db.Where(map[string]interface{}{"group": group}).Order("id ASC").Find(&configs).Error; err != nil {
		return nil, err
	}
	return configs, nil
}

// OperationsConfig groups the settings the scheduler reads.
type OperationsConfig struct {
	LogRetentionDays     int    `json:"log_retention_days"`
	AIUsageRetentionDays int    `json:"ai_usage_retention_days"`
	HealthAlertEnabled   bool   `json:"health_alert_enabled"`
	HealthAlertMinReview int    `json:"health_alert_min_reviews"`
	DailyDigestEnabled   bool   `json:"daily_digest_enabled"`
	DailyDigestCron      string `json:"daily_digest_cron"`
}

const defaultDigestCron = "0 0 18 * * *"

func (s *SystemConfigService) GetOperationsConfig() *OperationsConfig {
	return &OperationsConfig{
		LogRetentionDays:     s.GetInt(ConfigLogRetentionDays, 30),
		AIUsageRetentionDays: s.GetInt(ConfigAIUsageRetentionDays, 90),
		HealthAlertEnabled:   s.GetBool(ConfigHealthAlertEnabled, true),
		HealthAlertMinReview: s.GetInt(ConfigHealthAlertMinReview, defaultAlertMinReviews),
		DailyDigestEnabled:   s.GetBool(ConfigDailyDigestEnabled, false),
		DailyDigestCron:      s.GetWithDefault(ConfigDailyDigestCron, defaultDigestCron),
	}
}

type UpdateOperationsConfigRequest struct {
	LogRetentionDays     *int    `json:"log_retention_days"`
	AIUsageRetentionDays *int    `json:"ai_usage_retention_days"`
	HealthAlertEnabled   *bool   `json:"health_alert_enabled"`
	HealthAlertMinReview *int    `json:"health_alert_min_reviews"`
	DailyDigestEnabled   *bool   `json:"daily_digest_enabled"`
	DailyDigestCron      *string `json:"daily_digest_cron"`
}

func (s *SystemConfigService) UpdateOperationsConfig(req *UpdateOperationsConfigRequest) error {
	if req.LogRetentionDays != nil {
		if *req.LogRetentionDays < 1 {
			return response.NewBadRequest("log retention must be at least 1 day")
		}
		if err := s.Set(ConfigLogRetentionDays, strconv.Itoa(*req.LogRetentionDays)); err != nil {
			return err
		}
	}
	if req.AIUsageRetentionDays != nil {
		if *req.AIUsageRetentionDays < 1 {
			return response.NewBadRequest("AI usage retention must be at least 1 day")
		}
		if err := s.Set(ConfigAIUsageRetentionDays, strconv.Itoa(*req.AIUsageRetentionDays)); err != nil {
			return err
		}
	}
	if req.HealthAlertEnabled != nil {
		if err := s.Set(ConfigHealthAlertEnabled, strconv.FormatBool(*req.HealthAlertEnabled)); err != nil {
			return err
		}
	}
	if req.HealthAlertMinReview != nil {
		if *req.HealthAlertMinReview < 1 {
			return response.NewBadRequest("minimum reviews must be at least 1")
		}
		if err := s.Set(ConfigHealthAlertMinReview, strconv.Itoa(*req.HealthAlertMinReview)); err != nil {
			return err
		}
	}
	if req.DailyDigestEnabled != nil {
		if err := s.Set(ConfigDailyDigestEnabled, strconv.FormatBool(*req.DailyDigestEnabled)); err != nil {
			return err
		}
	}
	if req.DailyDigestCron != nil {
		if _, err := cronParser.Parse(*req.DailyDigestCron); err != nil {
			return response.NewBadRequest("invalid cron expression: " + err.Error())
		}
		if err := s.Set(ConfigDailyDigestCron, *req.DailyDigestCron); err != nil {
			return err
		}
	}
	return nil
}
