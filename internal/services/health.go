package services

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/huangang/reviewbuddy/backend/internal/models"
	"github.com/huangang/reviewbuddy/backend/pkg/logger"
	"gorm.io/gorm"
)

const (
	defaultEscalationThreshold = 30.0
	defaultAlertMinReviews     = 5
)

// HealthService maintains the per-day SystemHealth rollup.
//
// RecordOutcome is a plain read-modify-write: two reviews finishing at the
// same moment on the same day can lose one increment.
type HealthService struct {
	db  *gorm.DB
	now func() time.Time
}

func NewHealthService(db *gorm.DB) *HealthService {
	return &HealthService{db: db, now: time.Now}
}

// today returns the record for the local day containing now, or nil.
func (s *HealthService) today(now time.Time) (*models.SystemHealth, error) {
	var health models.SystemHealth
	err := s.db.Where("timestamp >= ?", models.LocalMidnight(now)).
		Order("timestamp ASC").First(&health).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &health, nil
}

// Today returns the current day's record, or nil when nothing was processed yet.
func (s *HealthService) Today() (*models.SystemHealth, error) {
	return s.today(s.now())
}

// RecordOutcome folds one decision into the day's rollup. The average is an
// incremental mean weighted by the total before this outcome.
func (s *HealthService) RecordOutcome(decision models.Decision, confidence int, now time.Time) (*models.SystemHealth, error) {
	health, err := s.today(now)
	if err != nil {
		return nil, fmt.Errorf("load health record: %w", err)
	}

	if health == nil {
		health = &models.SystemHealth{
			TotalReviews:       1,
			AvgConfidenceScore: float64(confidence),
			Timestamp:          now,
		}
		bumpDecision(health, decision)
		if decision == models.DecisionEscalate {
			health.EscalationRate = 100
		}
		if err := s.db.Create(health).Error; err != nil {
			return nil, fmt.Errorf("create health record: %w", err)
		}
		return health, nil
	}

	oldTotal := health.TotalReviews
	oldAvg := health.AvgConfidenceScore

	health.TotalReviews = oldTotal + 1
	bumpDecision(health, decision)
	health.EscalationRate = float64(health.EscalatedCount) / float64(health.TotalReviews) * 100
	health.AvgConfidenceScore = (oldAvg*float64(oldTotal) + float64(confidence)) / float64(health.TotalReviews)
	if health.OverrideCount > 0 {
		health.OverrideFrequency = float64(health.OverrideCount) / float64(health.TotalReviews) * 100
	}

	if err := s.db.Model(health).Updates(map[string]interface{}{
		"total_reviews":           health.TotalReviews,
		"auto_handled_count":      health.AutoHandledCount,
		"hold_for_approval_count": health.HoldForApprovalCount,
		"escalated_count":         health.EscalatedCount,
		"escalation_rate":         health.EscalationRate,
		"avg_confidence_score":    health.AvgConfidenceScore,
		"override_frequency":      health.OverrideFrequency,
	}).Error; err != nil {
		return nil, fmt.Errorf("update health record: %w", err)
	}
	return health, nil
}

func bumpDecision(h *models.SystemHealth, d models.Decision) {
	switch d {
	case models.DecisionAutoHandle:
		h.AutoHandledCount++
	case models.DecisionHoldForApproval:
		h.HoldForApprovalCount++
	case models.DecisionEscalate:
		h.EscalatedCount++
	}
}

// RecordOverride counts a human changing an AI decision on the given day.
// Days without processed reviews get a record with zero totals.
func (s *HealthService) RecordOverride(now time.Time) (*models.SystemHealth, error) {
	health, err := s.today(now)
	if err != nil {
		return nil, err
	}
	if health == nil {
		health = &models.SystemHealth{Timestamp: now, OverrideCount: 1}
		if err := s.db.Create(health).Error; err != nil {
			return nil, err
		}
		return health, nil
	}

	health.OverrideCount++
	if health.TotalReviews > 0 {
		health.OverrideFrequency = float64(health.OverrideCount) / float64(health.TotalReviews) * 100
	}
	if err := s.db.Model(health).Updates(map[string]interface{}{
		"override_count":     health.OverrideCount,
		"override_frequency": health.OverrideFrequency,
	}).Error; err != nil {
		return nil, err
	}
	return health, nil
}

// History returns daily records for the last days days, newest first.
func (s *HealthService) History(days int) ([]models.SystemHealth, error) {
	if days <= 0 {
		days = 7
	}
	since := models.LocalMidnight(s.now()).AddDate(0, 0, -(days - 1))
	var records []models.SystemHealth
	err := s.db.Where("timestamp >= ?", since).Order("timestamp DESC").Find(&records).Error
	return records, err
}

// AlertPolicy decides when the day's escalation rate is worth an alert.
type AlertPolicy struct {
	Threshold  float64
	MinReviews int
}

func (p AlertPolicy) withDefaults() AlertPolicy {
	if p.Threshold <= 0 {
		p.Threshold = defaultEscalationThreshold
	}
	if p.MinReviews <= 0 {
		p.MinReviews = defaultAlertMinReviews
	}
	return p
}

// Breached reports whether h crosses the policy and the message to send.
func (p AlertPolicy) Breached(h *models.SystemHealth) (bool, string) {
	p = p.withDefaults()
	if h == nil || h.TotalReviews < p.MinReviews || h.EscalationRate <= p.Threshold {
		return false, ""
	}
	return true, fmt.Sprintf("Escalation rate %.1f%% exceeds threshold %.0f%% (%d of %d reviews escalated today)",
		h.EscalationRate, p.Threshold, h.EscalatedCount, h.TotalReviews)
}

// EvaluateAlert marks today's record when the policy is breached. newly is
// true only the first time the alert fires for the day.
func (s *HealthService) EvaluateAlert(policy AlertPolicy) (health *models.SystemHealth, newly bool, err error) {
	health, err = s.Today()
	if err != nil || health == nil {
		return health, false, err
	}

	breached, message := policy.Breached(health)
	if !breached || health.AlertTriggered {
		return health, false, nil
	}

	health.AlertTriggered = true
	health.AlertMessage = message
	if err := s.db.Model(health).Updates(map[string]interface{}{
		"alert_triggered": true,
		"alert_message":   message,
	}).Error; err != nil {
		return nil, false, err
	}
	logger.Warnf("[Health] %s", message)
	return health, true, nil
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
