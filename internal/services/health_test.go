package services

import (
	"testing"
	"time"

	"github.com/huangang/reviewbuddy/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthService_RecordOutcome_FirstOfDay(t *testing.T) {
	svc := NewHealthService(setupTestDB(t))
	now := time.Date(2026, 5, 1, 9, 30, 0, 0, time.Local)

	h, err := svc.RecordOutcome(models.DecisionEscalate, 95, now)
	require.NoError(t, err)
	assert.Equal(t, 1, h.TotalReviews)
	assert.Equal(t, 1, h.EscalatedCount)
	assert.Equal(t, 0, h.AutoHandledCount)
	assert.Equal(t, 100.0, h.EscalationRate)
	assert.Equal(t, 95.0, h.AvgConfidenceScore)
}

func TestHealthService_RecordOutcome_IncrementalMean(t *testing.T) {
	svc := NewHealthService(setupTestDB(t))
	day := time.Date(2026, 5, 1, 8, 0, 0, 0, time.Local)

	outcomes := []struct {
		decision   models.Decision
		confidence int
	}{
		{models.DecisionAutoHandle, 90},
		{models.DecisionHoldForApproval, 75},
		{models.DecisionEscalate, 95},
		{models.DecisionHoldForApproval, 80},
	}

	var (
		avg   float64
		total int
		h     *models.SystemHealth
		err   error
	)
	for i, o := range outcomes {
		h, err = svc.RecordOutcome(o.decision, o.confidence, day.Add(time.Duration(i)*time.Hour))
		require.NoError(t, err)
		if total == 0 {
			avg = float64(o.confidence)
		} else {
			avg = (avg*float64(total) + float64(o.confidence)) / float64(total+1)
		}
		total++
	}

	var stored models.SystemHealth
	require.NoError(t, svc.db.First(&stored, h.ID).Error)
	assert.Equal(t, 4, stored.TotalReviews)
	assert.Equal(t, 1, stored.AutoHandledCount)
	assert.Equal(t, 2, stored.HoldForApprovalCount)
	assert.Equal(t, 1, stored.EscalatedCount)
	assert.InDelta(t, 25.0, stored.EscalationRate, 1e-9)
	assert.InDelta(t, avg, stored.AvgConfidenceScore, 1e-9)

	var count int64
	svc.db.Model(&models.SystemHealth{}).Count(&count)
	assert.Equal(t, int64(1), count, "one record per day")
}

func TestHealthService_NewDayStartsFresh(t *testing.T) {
	svc := NewHealthService(setupTestDB(t))
	d1 := time.Date(2026, 5, 1, 23, 0, 0, 0, time.Local)
	d2 := time.Date(2026, 5, 2, 0, 30, 0, 0, time.Local)

	_, err := svc.RecordOutcome(models.DecisionEscalate, 95, d1)
	require.NoError(t, err)
	h, err := svc.RecordOutcome(models.DecisionAutoHandle, 85, d2)
	require.NoError(t, err)

	assert.Equal(t, 1, h.TotalReviews)
	assert.Equal(t, 0.0, h.EscalationRate)
}

func TestHealthService_RecordOverride(t *testing.T) {
	svc := NewHealthService(setupTestDB(t))
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.Local)

	for i := 0; i < 4; i++ {
		_, err := svc.RecordOutcome(models.DecisionHoldForApproval, 75, now)
		require.NoError(t, err)
	}
	h, err := svc.RecordOverride(now)
	require.NoError(t, err)
	assert.Equal(t, 1, h.OverrideCount)
	assert.InDelta(t, 25.0, h.OverrideFrequency, 1e-9)
}

func TestAlertPolicy_Breached(t *testing.T) {
	policy := AlertPolicy{}
	tests := []struct {
		name string
		h    *models.SystemHealth
		want bool
	}{
		{"nil", nil, false},
		{"too few reviews", &models.SystemHealth{TotalReviews: 4, EscalatedCount: 4, EscalationRate: 100}, false},
		{"at threshold", &models.SystemHealth{TotalReviews: 10, EscalatedCount: 3, EscalationRate: 30}, false},
		{"above threshold", &models.SystemHealth{TotalReviews: 10, EscalatedCount: 4, EscalationRate: 40}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, msg := policy.Breached(tt.h)
			assert.Equal(t, tt.want, got)
			if got {
				assert.Contains(t, msg, "40.0%")
			}
		})
	}
}

func TestHealthService_EvaluateAlertFiresOnce(t *testing.T) {
	svc := NewHealthService(setupTestDB(t))
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.Local)
	svc.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		d := models.DecisionAutoHandle
		if i < 2 {
			d = models.DecisionEscalate
		}
		_, err := svc.RecordOutcome(d, 90, now)
		require.NoError(t, err)
	}

	h, newly, err := svc.EvaluateAlert(AlertPolicy{Threshold: 30, MinReviews: 5})
	require.NoError(t, err)
	assert.True(t, newly)
	assert.True(t, h.AlertTriggered)
	assert.NotEmpty(t, h.AlertMessage)

	_, newly, err = svc.EvaluateAlert(AlertPolicy{Threshold: 30, MinReviews: 5})
	require.NoError(t, err)
	assert.False(t, newly)
}
