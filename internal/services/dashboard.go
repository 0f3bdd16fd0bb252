package services

import (
	"context"
	"math"
	"time"

	"github.com/huangang/reviewbuddy/backend/internal/models"
	"github.com/huangang/reviewbuddy/backend/internal/services/kiyoh"
	"github.com/huangang/reviewbuddy/backend/pkg/logger"
	"gorm.io/gorm"
)

const (
	defaultChartDays = 7
	maxChartDays     = 90
)

type DashboardService struct {
	db     *gorm.DB
	kiyoh  *kiyoh.Client
	health *HealthService
	now    func() time.Time
}

func NewDashboardService(db *gorm.DB, client *kiyoh.Client) *DashboardService {
	return &DashboardService{db: db, kiyoh: client, health: NewHealthService(db), now: time.Now}
}

type DashboardStatsRequest struct {
	Days int `form:"days" binding:"omitempty,min=1"`
}

type DashboardOverview struct {
	TotalReviews       int64   `json:"total_reviews"`
	AutoHandled        int64   `json:"auto_handled"`
	HoldForApproval    int64   `json:"hold_for_approval"`
	Escalated          int64   `json:"escalated"`
	Responded          int64   `json:"responded"`
	AvgConfidenceScore int     `json:"avg_confidence_score"`
	AvgRating          float64 `json:"avg_rating"`
}

type DashboardQueues struct {
	NewReviews      int64 `json:"new_reviews"`
	PendingApproval int64 `json:"pending_approval"`
	Escalated       int64 `json:"escalated"`
}

type DecisionCount struct {
	Name  string `json:"name"`
	Value int64  `json:"value"`
}

type RatingCount struct {
	Rating int   `json:"rating"`
	Count  int64 `json:"count"`
}

type DashboardCharts struct {
	DecisionDistribution []DecisionCount       `json:"decision_distribution"`
	RatingDistribution   []RatingCount         `json:"rating_distribution"`
	HealthHistory        []models.SystemHealth `json:"health_history"`
}

type DashboardResponse struct {
	Overview     DashboardOverview    `json:"overview"`
	Queues       DashboardQueues      `json:"queues"`
	SystemHealth *models.SystemHealth `json:"system_health"`
	Charts       DashboardCharts      `json:"charts"`
	Location     *kiyoh.Statistics    `json:"location,omitempty"`
}

func (s *DashboardService) GetStats(ctx context.Context, req *DashboardStatsRequest) (*DashboardResponse, error) {
	days := req.Days
	if days <= 0 {
		days = defaultChartDays
	}
	if days > maxChartDays {
		days = maxChartDays
	}

	resp := &DashboardResponse{}
	reviews := func() *gorm.DB { return s.db.Model(&models.Review{}) }

	if err := reviews().Count(&resp.Overview.TotalReviews).Error; err != nil {
		return nil, err
	}
	reviews().Where("decision = ?", models.DecisionAutoHandle).Count(&resp.Overview.AutoHandled)
	reviews().Where("decision = ?", models.DecisionHoldForApproval).Count(&resp.Overview.HoldForApproval)
	reviews().Where("decision = ?", models.DecisionEscalate).Count(&resp.Overview.Escalated)
	reviews().Where("status = ?", models.ReviewStatusResponded).Count(&resp.Overview.Responded)

	reviews().Where("status = ?", models.ReviewStatusNew).Count(&resp.Queues.NewReviews)
	reviews().Where("status = ?", models.ReviewStatusPendingApproval).Count(&resp.Queues.PendingApproval)
	reviews().Where("status = ?", models.ReviewStatusEscalated).Count(&resp.Queues.Escalated)

	var avgConfidence, avgRating float64
	reviews().Where("confidence_score > 0").Select("COALESCE(AVG(confidence_score), 0)").Scan(&avgConfidence)
	reviews().Select("COALESCE(AVG(rating), 0)").Scan(&avgRating)
	resp.Overview.AvgConfidenceScore = int(math.Round(avgConfidence))
	resp.Overview.AvgRating = round1(avgRating)

	var latest models.SystemHealth
	err := s.db.Order("timestamp DESC").Limit(1).Find(&latest).Error
	if err != nil {
		return nil, err
	}
	if latest.ID != 0 {
		resp.SystemHealth = &latest
	}

	since := s.now().AddDate(0, 0, -days)
	var decisions []struct {
		Decision *string
		Count    int64
	}
	reviews().Select("decision, COUNT(*) as count").
		Where("created_at >= ?", since).
		Group("decision").
		Scan(&decisions)
	resp.Charts.DecisionDistribution = make([]DecisionCount, 0, len(decisions))
	for _, d := range decisions {
		name := "Unknown"
		if d.Decision != nil {
			name = *d.Decision
		}
		resp.Charts.DecisionDistribution = append(resp.Charts.DecisionDistribution, DecisionCount{Name: name, Value: d.Count})
	}

	resp.Charts.RatingDistribution = []RatingCount{}
	reviews().Select("rating, COUNT(*) as count").
		Group("rating").
		Order("rating ASC").
		Scan(&resp.Charts.RatingDistribution)

	history, err := s.health.History(days)
	if err != nil {
		return nil, err
	}
	resp.Charts.HealthHistory = history

	resp.Location = s.locationStats(ctx)
	return resp, nil
}

// locationStats is best effort: the dashboard renders without it.
func (s *DashboardService) locationStats(ctx context.Context) *kiyoh.Statistics {
	if s.kiyoh == nil {
		return nil
	}
	brand, err := ActiveBrandConfig(s.db)
	if err != nil || !brand.HasKiyohCredentials() {
		return nil
	}
	stats, err := s.kiyoh.LocationStatistics(ctx, credentialsOf(brand))
	if err != nil {
		logger.Debugf("[Dashboard] Location statistics unavailable: %v", err)
		return nil
	}
	return stats
}
