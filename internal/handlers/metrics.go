package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/huangang/reviewbuddy/backend/internal/models"
	"github.com/huangang/reviewbuddy/backend/internal/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

var (
	reviewsByStatusDesc = prometheus.NewDesc("reviewbuddy_reviews", "Stored reviews by workflow status.", []string{"status"}, nil)
	usersActiveDesc     = prometheus.NewDesc("reviewbuddy_users_active", "Number of active users.", nil, nil)
	aiCalls24hDesc      = prometheus.NewDesc("reviewbuddy_ai_calls_24h", "AI API calls in the last 24 hours.", nil, nil)
	sseClientsDesc      = prometheus.NewDesc("reviewbuddy_sse_active_clients", "Number of active SSE connections.", nil, nil)
	queueAsyncDesc      = prometheus.NewDesc("reviewbuddy_queue_async_enabled", "Whether the async queue (Redis) is enabled (1=yes, 0=no).", nil, nil)
	escalationRateDesc  = prometheus.NewDesc("reviewbuddy_escalation_rate_today", "Today's escalation rate in percent.", nil, nil)
)

// dbCollector reads gauges from the database at scrape time.
type dbCollector struct {
	db *gorm.DB
}

func (dbCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- reviewsByStatusDesc
	ch <- usersActiveDesc
	ch <- aiCalls24hDesc
	ch <- sseClientsDesc
	ch <- queueAsyncDesc
	ch <- escalationRateDesc
}

func (d dbCollector) Collect(ch chan<- prometheus.Metric) {
	type statusCount struct {
		Status string
		Count  int64
	}
	var counts []statusCount
	if err := d.db.Model(&models.Review{}).Select("status, COUNT(*) as count").Group("status").Scan(&counts).Error; err == nil {
		for _, sc := range counts {
			ch <- prometheus.MustNewConstMetric(reviewsByStatusDesc, prometheus.GaugeValue, float64(sc.Count), sc.Status)
		}
	}

	var users int64
	d.db.Model(&models.User{}).Where("is_active = ?", true).Count(&users)
	ch <- prometheus.MustNewConstMetric(usersActiveDesc, prometheus.GaugeValue, float64(users))

	var aiCalls int64
	d.db.Model(&models.AIUsageLog{}).Where("created_at >= ?", time.Now().Add(-24*time.Hour)).Count(&aiCalls)
	ch <- prometheus.MustNewConstMetric(aiCalls24hDesc, prometheus.GaugeValue, float64(aiCalls))

	ch <- prometheus.MustNewConstMetric(sseClientsDesc, prometheus.GaugeValue, float64(services.GetSSEHub().ClientCount()))

	queueAsync := 0.0
	if q := services.GetTaskQueue(); q != nil && q.IsAsync() {
		queueAsync = 1
	}
	ch <- prometheus.MustNewConstMetric(queueAsyncDesc, prometheus.GaugeValue, queueAsync)

	rate := 0.0
	if h, err := services.NewHealthService(d.db).Today(); err == nil && h != nil {
		rate = h.EscalationRate
	}
	ch <- prometheus.MustNewConstMetric(escalationRateDesc, prometheus.GaugeValue, rate)
}

// RegisterDBMetrics adds the database-backed gauges to the default registry.
func RegisterDBMetrics(db *gorm.DB) error {
	return prometheus.Register(dbCollector{db: db})
}

// Metrics exposes the default registry in Prometheus text format.
func Metrics() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
