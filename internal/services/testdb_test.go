package services

import (
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/huangang/reviewbuddy/backend/internal/models"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:services_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.AllModels()...))
	return db
}

func seedBrand(t *testing.T, db *gorm.DB, mutate func(*models.BrandConfig)) *models.BrandConfig {
	t.Helper()
	brand := &models.BrandConfig{
		CompanyName:     "Acme",
		BrandTone:       models.ToneProfessional,
		AutomationLevel: models.AutomationSemiAuto,
		GeminiAPIKey:    "brand-key",
		IsActive:        true,
	}
	if mutate != nil {
		mutate(brand)
	}
	require.NoError(t, db.Create(brand).Error)
	return brand
}

func seedReview(t *testing.T, db *gorm.DB, text string, rating int) *models.Review {
	t.Helper()
	extID := "ext-" + uuid.NewString()
	review := &models.Review{
		ExternalID:   &extID,
		Platform:     "kiyoh",
		ReviewText:   text,
		Rating:       rating,
		ReviewerName: "Jan",
		Status:       models.ReviewStatusNew,
	}
	require.NoError(t, db.Create(review).Error)
	return review
}
