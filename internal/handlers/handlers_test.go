package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/huangang/reviewbuddy/backend/internal/models"
	"github.com/huangang/reviewbuddy/backend/internal/services"
	"github.com/huangang/reviewbuddy/backend/internal/utils"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
	utils.SetJWTSecret("handlers-test-secret")
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:handlers_%s?mode=memory&cache=shared", uuid.NewString())
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

// asUser stands in for the auth middleware.
func asUser(id uint, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("user_id", id)
		c.Set("role", role)
		c.Next()
	}
}

func doJSON(t *testing.T, r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder, data interface{}) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	if data != nil {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env
}

// stubLLM returns the same JSON assessment and reply (or reply error) for every review.
type stubLLM struct {
	ready    bool
	risk     string
	reply    string
	replyErr error
}

func (s *stubLLM) Ready(*models.BrandConfig) bool { return s.ready }

func (s *stubLLM) Generate(_ context.Context, req services.CompletionRequest) (*services.Completion, error) {
	if req.JSON {
		return &services.Completion{Text: s.risk, Provider: "stub"}, nil
	}
	if s.replyErr != nil {
		return nil, s.replyErr
	}
	return &services.Completion{Text: s.reply, Provider: "stub"}, nil
}

type noopChat struct{}

func (noopChat) SendReviewAlert(*models.BrandConfig, *services.ReviewAlert) error { return nil }

type noopMessaging struct{}

func (noopMessaging) SendReviewAlert(context.Context, *models.BrandConfig, *services.ReviewAlert) (string, error) {
	return "", nil
}

func itoa(id uint) string { return strconv.FormatUint(uint64(id), 10) }
