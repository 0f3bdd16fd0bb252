package services

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/huangang/reviewbuddy/backend/internal/models"
	"github.com/huangang/reviewbuddy/backend/pkg/logger"
	"github.com/huangang/reviewbuddy/backend/pkg/response"
	"gorm.io/gorm"
)

var globalDB *gorm.DB

func InitSystemLogger(db *gorm.DB) {
	globalDB = db
}

func LogInfo(module, action, message string, userID *uint, ip, userAgent string, extra interface{}) {
	writeLog("info", module, action, message, userID, ip, userAgent, extra)
}

func LogWarning(module, action, message string, userID *uint, ip, userAgent string, extra interface{}) {
	writeLog("warning", module, action, message, userID, ip, userAgent, extra)
}

func LogError(module, action, message string, userID *uint, ip, userAgent string, extra interface{}) {
	writeLog("error", module, action, message, userID, ip, userAgent, extra)
}

func writeLog(level, module, action, message string, userID *uint, ip, userAgent string, extra interface{}) {
	if globalDB == nil {
		return
	}

	var extraStr string
	if extra != nil {
		if b, err := json.Marshal(extra); err == nil {
			extraStr = string(b)
		}
	}

	entry := &models.SystemLog{
		Level:     level,
		Module:    module,
		Action:    action,
		Message:   message,
		UserID:    userID,
		IP:        ip,
		UserAgent: userAgent,
		Extra:     extraStr,
		CreatedAt: time.Now(),
	}
	if err := globalDB.Create(entry).Error; err != nil {
		logger.Warn().Err(err).Str("module", module).Msg("[SystemLog] Failed to persist log")
	}
}

type SystemLogService struct {
	db      *gorm.DB
	configs *SystemConfigService
}

func NewSystemLogService(db *gorm.DB) *SystemLogService {
	return &SystemLogService{db: db, configs: NewSystemConfigService(db)}
}

type SystemLogListRequest struct {
	Page      int    `form:"page"`
	PageSize  int    `form:"page_size"`
	Level     string `form:"level"`
	Module    string `form:"module"`
	Action    string `form:"action"`
	StartDate string `form:"start_date"`
	EndDate   string `form:"end_date"`
	Search    string `form:"search"`
}

func (s *SystemLogService) List(req *SystemLogListRequest) (*response.Page[models.SystemLog], error) {
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.PageSize <= 0 || req.PageSize > 100 {
		req.PageSize = 20
	}

	var logs []models.SystemLog
	var total int64

	query := s.db.Model(&models.SystemLog{})

	if req.Level != "" {
		query = query.Where("level = ?", req.Level)
	}
	if req.Module != "" {
		query = query.Where("module = ?", req.Module)
	}
	if req.Action != "" {
		query = query.Where("action LIKE ?", "%"+req.Action+"%")
	}
	if req.StartDate != "" {
		query = query.Where("created_at >= ?", req.StartDate)
	}
	if req.EndDate != "" {
		query = query.Where("created_at <= ?", req.EndDate+" 23:59:59")
	}
	if req.Search != "" {
		query = query.Where("message LIKE ?", "%"+req.Search+"%")
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}

	offset := (req.Page - 1) * req.PageSize
	if err := query.Offset(offset).Limit(req.PageSize).Order("created_at DESC, id DESC").Find(&logs).Error; err != nil {
		return nil, err
	}

	return response.NewPage(logs, total, req.Page, req.PageSize), nil
}

func (s *SystemLogService) GetModules() ([]string, error) {
	var modules []string
	if err := s.db.Model(&models.SystemLog{}).Distinct("module").Pluck("module", &modules).Error; err != nil {
		return nil, err
	}
	return modules, nil
}

// CleanupOldLogs deletes logs older than retentionDays and returns how many
// rows went.
func (s *SystemLogService) CleanupOldLogs(retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}

	cutoffTime := time.Now().AddDate(0, 0, -retentionDays)
	result := s.db.Where("created_at < ?", cutoffTime).Delete(&models.SystemLog{})
	if result.Error != nil {
		return 0, result.Error
	}

	return result.RowsAffected, nil
}

func (s *SystemLogService) GetRetentionDays() int {
	return s.configs.GetInt(ConfigLogRetentionDays, 30)
}

func (s *SystemLogService) SetRetentionDays(days int) error {
	if days < 1 {
		return response.NewBadRequest("log retention must be at least 1 day")
	}
	return s.configs.Set(ConfigLogRetentionDays, strconv.Itoa(days))
}

func (s *SystemLogService) runCleanup() {
	retentionDays := s.GetRetentionDays()
	if retentionDays <= 0 {
		logger.Infof("[SystemLog] Log cleanup disabled (retention_days <= 0)")
		return
	}

	deleted, err := s.CleanupOldLogs(retentionDays)
	if err != nil {
		logger.Errorf("[SystemLog] Failed to cleanup old logs: %v", err)
		return
	}

	if deleted > 0 {
		logger.Infof("[SystemLog] Cleaned up %d logs older than %d days", deleted, retentionDays)
	}
}
