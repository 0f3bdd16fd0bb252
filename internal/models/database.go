package models

import (
	"errors"
	"fmt"
	"time"

	puresqlite "github.com/glebarez/sqlite"
	"github.com/huangang/reviewbuddy/backend/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// OpenDialector picks the gorm dialector for a configured driver. sqlite-pure
// is the CGO-free driver, used for static builds and in tests.
func OpenDialector(cfg *config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "sqlite":
		return sqlite.Open(cfg.DSN), nil
	case "sqlite-pure":
		return puresqlite.Open(cfg.DSN), nil
	case "mysql":
		return mysql.Open(cfg.DSN), nil
	case "postgres":
		return postgres.Open(cfg.DSN), nil
	}
	return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
}

func InitDB(cfg *config.DatabaseConfig, debug bool) error {
	dialector, err := OpenDialector(cfg)
	if err != nil {
		return err
	}

	level := logger.Warn
	if debug {
		level = logger.Info
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(level),
	})
	if err != nil {
		return fmt.Errorf("failed to connect database: %w", err)
	}

	DB = db
	return nil
}

// AllModels lists every table owned by the service, in migration order.
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&RefreshToken{},
		&BrandConfig{},
		&Review{},
		&AuditLog{},
		&SystemHealth{},
		&LLMConfig{},
		&AIUsageLog{},
		&IMBot{},
		&SystemConfig{},
		&SystemLog{},
		&SchedulerLock{},
	}
}

func AutoMigrate() error {
	return DB.AutoMigrate(AllModels()...)
}

func GetDB() *gorm.DB {
	return DB
}

// DefaultSystemConfigs are seeded once and edited through the admin API.
var DefaultSystemConfigs = []SystemConfig{
	{Key: "log_retention_days", Value: "30", Type: "int", Group: "system", Label: "System Log Retention Days"},
	{Key: "access_token_expire_hours", Value: "24", Type: "int", Group: "auth", Label: "Access Token Lifetime (hours)"},
	{Key: "refresh_token_expire_hours", Value: "168", Type: "int", Group: "auth", Label: "Refresh Token Lifetime (hours)"},
	{Key: "health_alert_min_reviews", Value: "5", Type: "int", Group: "health", Label: "Minimum Daily Reviews Before Alerting"},
	{Key: "health_alert_enabled", Value: "true", Type: "bool", Group: "health", Label: "Enable Escalation Rate Alerts"},
	{Key: "daily_digest_cron", Value: "0 0 8 * * *", Type: "string", Group: "health", Label: "Daily Digest Schedule"},
}

var demoReviews = []Review{
	{
		ExternalID: strPtr("demo-review-1"), Platform: "kiyoh", Rating: 9,
		ReviewText:   "Great service! The team was very professional and helped me solve my issue quickly. Highly recommend.",
		OneLiner:     "Great experience!",
		ReviewerName: "John D.", ReviewerCity: "Amsterdam", ReviewTimestamp: datePtr(2026, 2, 8),
	},
	{
		ExternalID: strPtr("demo-review-2"), Platform: "kiyoh", Rating: 3,
		ReviewText:   "The product arrived late and the customer service was unhelpful. Very disappointed with the experience.",
		OneLiner:     "Disappointed",
		ReviewerName: "Sarah M.", ReviewerCity: "Rotterdam", ReviewTimestamp: datePtr(2026, 2, 7),
	},
	{
		ExternalID: strPtr("demo-review-3"), Platform: "kiyoh", Rating: 6,
		ReviewText:   "Average experience. Product was okay but delivery took longer than expected.",
		OneLiner:     "Okay service",
		ReviewerName: "Mike B.", ReviewerCity: "Utrecht", ReviewTimestamp: datePtr(2026, 2, 6),
	},
	{
		ExternalID: strPtr("demo-review-4"), Platform: "kiyoh", Rating: 1,
		ReviewText:   "This is unacceptable! I want a full refund immediately. My lawyer will be in contact if this is not resolved. You have ruined my event!",
		OneLiner:     "Terrible!",
		ReviewerName: "Angry Customer", ReviewerCity: "The Hague", ReviewTimestamp: datePtr(2026, 2, 5),
	},
	{
		ExternalID: strPtr("demo-review-5"), Platform: "kiyoh", Rating: 10,
		ReviewText:   "Excellent! Will definitely order again. The team went above and beyond to help me.",
		OneLiner:     "Excellent!",
		ReviewerName: "Emma V.", ReviewerCity: "Eindhoven", ReviewTimestamp: datePtr(2026, 2, 4),
	},
}

// SeedDefaultData creates default data if not exists
func SeedDefaultData(withDemo bool) error {
	return SeedDefaultDataWith(DB, withDemo)
}

func SeedDefaultDataWith(db *gorm.DB, withDemo bool) error {
	var brandCount int64
	db.Model(&BrandConfig{}).Where("is_active = ?", true).Count(&brandCount)
	if brandCount == 0 {
		brand := BrandConfig{
			CompanyName:         "Demo Company",
			BrandTone:           ToneProfessional,
			AutomationLevel:     AutomationSemiAuto,
			EscalationThreshold: 30,
			KiyohTenantID:       "98",
			IsActive:            true,
		}
		if err := db.Create(&brand).Error; err != nil {
			return err
		}
	}

	for _, cfg := range DefaultSystemConfigs {
		var count int64
		db.Model(&SystemConfig{}).Where("key = ?", cfg.Key).Count(&count)
		if count == 0 {
			cfg := cfg
			if err := db.Create(&cfg).Error; err != nil {
				return err
			}
		}
	}

	if !withDemo {
		return nil
	}
	for _, r := range demoReviews {
		var existing Review
		err := db.Where("external_id = ?", *r.ExternalID).First(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		review := r
		review.Status = ReviewStatusNew
		review.ResponseStatus = ResponseStatusPending
		if err := db.Create(&review).Error; err != nil {
			return err
		}
	}
	return nil
}

func strPtr(s string) *string { return &s }

func datePtr(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}
