package handlers

import (
	"bufio"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/huangang/reviewbuddy/backend/internal/models"
	"github.com/huangang/reviewbuddy/backend/internal/services"
	"github.com/huangang/reviewbuddy/backend/pkg/response"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const lowRisk = `{"contentRisk":"Low","reputationalRisk":"Low","contextualRisk":"Low",
"piiDetected":false,"legalRiskDetected":false,"sentiment":"Positive","topics":["Service"],
"details":{},"confidence":92}`

func newReviewRouter(t *testing.T, db *gorm.DB, llm services.TextGenerator) *gin.Engine {
	t.Helper()
	processor := services.NewReviewProcessor(db, llm, noopChat{}, noopMessaging{}, "https://rb.example.com")
	queue := services.NewSyncQueue()
	queue.SetProcessor(services.ProcessTaskHandler(processor))
	h := NewReviewHandler(db, services.NewReviewService(db, nil), processor, queue)

	r := gin.New()
	r.Use(asUser(1, models.RoleReviewer))
	r.GET("/api/reviews", h.List)
	r.GET("/api/reviews/:id", h.Get)
	r.PATCH("/api/reviews/:id", h.Update)
	r.POST("/api/reviews/:id/process", h.Process)
	r.POST("/api/reviews/process-new", h.ProcessNew)
	return r
}

// sseFrames splits an event stream body into its data payloads.
func sseFrames(t *testing.T, body string) []string {
	t.Helper()
	var frames []string
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		if line := sc.Text(); strings.HasPrefix(line, "data: ") {
			frames = append(frames, strings.TrimPrefix(line, "data: "))
		}
	}
	require.NoError(t, sc.Err())
	return frames
}

func TestReviewHandler_ListGetUpdate(t *testing.T) {
	db := setupTestDB(t)
	seedBrand(t, db, nil)
	first := seedReview(t, db, "Great service", 5)
	seedReview(t, db, "Slow delivery", 2)
	r := newReviewRouter(t, db, &stubLLM{ready: true})

	var page response.Page[models.Review]
	w := doJSON(t, r, http.MethodGet, "/api/reviews?status=new", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &page)
	assert.EqualValues(t, 2, page.Total)

	w = doJSON(t, r, http.MethodPatch, "/api/reviews/"+itoa(first.ID), gin.H{
		"status":      "archived",
		"human_notes": "duplicate",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var detail services.ReviewDetail
	w = doJSON(t, r, http.MethodGet, "/api/reviews/"+itoa(first.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &detail)
	assert.Equal(t, models.ReviewStatusArchived, detail.Status)
	require.NotEmpty(t, detail.AuditLogs)
	assert.Equal(t, models.ActionReviewUpdated, detail.AuditLogs[0].ActionType)

	w = doJSON(t, r, http.MethodPatch, "/api/reviews/"+itoa(first.ID), gin.H{"status": "shredded"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodGet, "/api/reviews/999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, r, http.MethodGet, "/api/reviews/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReviewHandler_ProcessStreamsProgress(t *testing.T) {
	db := setupTestDB(t)
	seedBrand(t, db, nil)
	review := seedReview(t, db, "Lovely staff, quick help", 5)
	r := newReviewRouter(t, db, &stubLLM{ready: true, risk: lowRisk, reply: "Thank you, Jan!"})

	w := doJSON(t, r, http.MethodPost, "/api/reviews/"+itoa(review.ID)+"/process", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	frames := sseFrames(t, w.Body.String())
	require.GreaterOrEqual(t, len(frames), 3)
	assert.Equal(t, "[DONE]", frames[len(frames)-1])

	var first services.ProcessEvent
	require.NoError(t, json.Unmarshal([]byte(frames[0]), &first))
	assert.Equal(t, services.StepRiskAssessment, first.Step)
	assert.Equal(t, services.StepProcessing, first.Status)

	var final services.ProcessEvent
	require.NoError(t, json.Unmarshal([]byte(frames[len(frames)-2]), &final))
	require.True(t, final.Final)
	require.NotNil(t, final.Result)
	assert.Equal(t, "Thank you, Jan!", final.Result.GeneratedResponse)

	var stored models.Review
	require.NoError(t, db.First(&stored, review.ID).Error)
	assert.NotEqual(t, models.ReviewStatusNew, stored.Status)
	require.NotNil(t, stored.Decision)
}

func TestReviewHandler_ProcessErrorEndsStream(t *testing.T) {
	db := setupTestDB(t)
	seedBrand(t, db, nil)
	review := seedReview(t, db, "Lovely staff", 5)
	r := newReviewRouter(t, db, &stubLLM{ready: true, risk: lowRisk, replyErr: errors.New("model down")})

	w := doJSON(t, r, http.MethodPost, "/api/reviews/"+itoa(review.ID)+"/process", nil)
	require.Equal(t, http.StatusOK, w.Code)

	frames := sseFrames(t, w.Body.String())
	require.NotEmpty(t, frames)
	assert.NotContains(t, frames, "[DONE]")

	var last services.ProcessEvent
	require.NoError(t, json.Unmarshal([]byte(frames[len(frames)-1]), &last))
	assert.Equal(t, services.StepError, last.Status)
	assert.Equal(t, "model down", last.Message)
	assert.False(t, last.Final)

	var stored models.Review
	require.NoError(t, db.First(&stored, review.ID).Error)
	assert.Equal(t, models.ReviewStatusNew, stored.Status)
}

func TestReviewHandler_ProcessRejectsBeforeStreaming(t *testing.T) {
	db := setupTestDB(t)
	review := seedReview(t, db, "Fine", 4)

	r := newReviewRouter(t, db, &stubLLM{ready: true})
	w := doJSON(t, r, http.MethodPost, "/api/reviews/999/process", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")

	w = doJSON(t, r, http.MethodPost, "/api/reviews/"+itoa(review.ID)+"/process", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Brand configuration not found", decode(t, w, nil).Message)

	seedBrand(t, db, nil)
	r = newReviewRouter(t, db, &stubLLM{ready: false})
	w = doJSON(t, r, http.MethodPost, "/api/reviews/"+itoa(review.ID)+"/process", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestReviewHandler_ProcessNew(t *testing.T) {
	db := setupTestDB(t)
	seedBrand(t, db, nil)
	seedReview(t, db, "Good", 5)
	r := newReviewRouter(t, db, &stubLLM{ready: true, risk: lowRisk, reply: "Thanks!"})

	var out struct {
		Queued int  `json:"queued"`
		Async  bool `json:"async"`
	}
	w := doJSON(t, r, http.MethodPost, "/api/reviews/process-new", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &out)
	assert.Equal(t, 1, out.Queued)
	assert.False(t, out.Async)

	// The sync queue processes in the background.
	assert.Eventually(t, func() bool {
		var remaining int64
		db.Model(&models.Review{}).Where("status = ?", models.ReviewStatusNew).Count(&remaining)
		return remaining == 0
	}, 5*time.Second, 20*time.Millisecond)
}
