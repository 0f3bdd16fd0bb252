package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/huangang/reviewbuddy/backend/internal/config"
	"github.com/huangang/reviewbuddy/backend/internal/models"
	"github.com/huangang/reviewbuddy/backend/pkg/logger"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Schedules carry a seconds field, e.g. "0 */30 * * * *".
var cronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

const (
	jobKiyohSync   = "kiyoh_sync"
	jobCleanup     = "cleanup"
	jobHealthAlert = "health_alert"
	jobDailyDigest = "daily_digest"

	cleanupSpec     = "0 30 3 * * *"
	healthAlertSpec = "0 */5 * * * *"
	syncTimeout     = 5 * time.Minute
)

// Scheduler runs the periodic jobs: Kiyoh sync, retention cleanup, the
// escalation-rate alert and the daily digest. Each run claims a
// SchedulerLock row first, so only one replica executes a given slot.
type Scheduler struct {
	db            *gorm.DB
	cron          *cron.Cron
	importer      *ImportService
	notifications *NotificationService
	health        *HealthService
	configs       *SystemConfigService
	logs          *SystemLogService
	usage         *AIUsageService
	kiyoh         config.KiyohConfig
	owner         string
	now           func() time.Time

	mu          sync.Mutex
	digestEntry cron.EntryID
	digestSpec  string
}

func NewScheduler(db *gorm.DB, importer *ImportService, notifications *NotificationService, kiyohCfg config.KiyohConfig) *Scheduler {
	host, _ := os.Hostname()
	return &Scheduler{
		db:            db,
		importer:      importer,
		notifications: notifications,
		health:        NewHealthService(db),
		configs:       NewSystemConfigService(db),
		logs:          NewSystemLogService(db),
		usage:         NewAIUsageService(db),
		kiyoh:         kiyohCfg,
		owner:         host + "-" + uuid.NewString()[:8],
		now:           time.Now,
	}
}

func (s *Scheduler) Start() error {
	s.cron = cron.New(
		cron.WithParser(cronParser),
		cron.WithChain(cron.Recover(cronLogger{})),
	)

	if s.kiyoh.SyncEnabled {
		if _, err := s.cron.AddFunc(s.kiyoh.SyncCron, s.runKiyohSync); err != nil {
			return fmt.Errorf("kiyoh sync schedule %q: %w", s.kiyoh.SyncCron, err)
		}
		logger.Infof("[Scheduler] Kiyoh sync scheduled (cron: %s)", s.kiyoh.SyncCron)
	}
	if _, err := s.cron.AddFunc(cleanupSpec, s.runCleanup); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(healthAlertSpec, s.runHealthAlert); err != nil {
		return err
	}
	s.RefreshDigest()

	s.cron.Start()
	logger.Infof("[Scheduler] Scheduler started (owner: %s)", s.owner)
	return nil
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// RefreshDigest re-reads the digest settings and reschedules the job when
// they changed.
func (s *Scheduler) RefreshDigest() {
	if s.cron == nil {
		return
	}
	ops := s.configs.GetOperationsConfig()
	spec := ""
	if ops.DailyDigestEnabled {
		spec = ops.DailyDigestCron
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if spec == s.digestSpec {
		return
	}
	if s.digestEntry != 0 {
		s.cron.Remove(s.digestEntry)
		s.digestEntry = 0
	}
	s.digestSpec = ""
	if spec == "" {
		logger.Infof("[Scheduler] Daily digest disabled")
		return
	}

	entryID, err := s.cron.AddFunc(spec, s.runDailyDigest)
	if err != nil {
		logger.Errorf("[Scheduler] Failed to add daily digest job: %v", err)
		return
	}
	s.digestEntry = entryID
	s.digestSpec = spec
	logger.Infof("[Scheduler] Daily digest scheduled (cron: %s)", spec)
}

// claim records (job, slot) for this replica. It returns false when another
// run already holds the slot.
func (s *Scheduler) claim(job, slot string, ttl time.Duration) bool {
	now := s.now()
	lock := models.SchedulerLock{
		Job:       job,
		Slot:      slot,
		Owner:     s.owner,
		ClaimedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	result := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&lock)
	if result.Error != nil {
		logger.Warn().Err(result.Error).Str("job", job).Msg("[Scheduler] Failed to claim slot")
		return false
	}
	return result.RowsAffected == 1
}

func minuteSlot(t time.Time) string { return t.Format("2006-01-02T15:04") }
func daySlot(t time.Time) string    { return t.Format("2006-01-02") }

func (s *Scheduler) runKiyohSync() {
	if !s.claim(jobKiyohSync, minuteSlot(s.now()), time.Hour) {
		return
	}
	brand, err := ActiveBrandConfig(s.db)
	if err != nil {
		logger.Warnf("[Scheduler] Kiyoh sync skipped: %v", err)
		return
	}
	if !brand.HasKiyohCredentials() {
		logger.Debugf("[Scheduler] Kiyoh sync skipped: credentials not configured")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
	defer cancel()
	result, err := s.importer.FetchReviews(ctx, brand, ImportOptions{
		Limit:   s.kiyoh.SyncLimit,
		Trigger: TriggerScheduler,
	})
	if err != nil {
		LogError("scheduler", jobKiyohSync, err.Error(), nil, "", "", nil)
		return
	}
	logger.Infof("[Scheduler] Kiyoh sync fetched %d reviews (%d new, %d updated, %d queued)",
		result.Fetched, result.Imported.New, result.Imported.Updated, result.Queued)
}

func (s *Scheduler) runCleanup() {
	now := s.now()
	if !s.claim(jobCleanup, daySlot(now), 24*time.Hour) {
		return
	}
	ops := s.configs.GetOperationsConfig()

	s.logs.runCleanup()

	deleted, err := s.usage.CleanupBefore(now.AddDate(0, 0, -ops.AIUsageRetentionDays))
	if err != nil {
		logger.Errorf("[Scheduler] Failed to cleanup AI usage logs: %v", err)
	} else if deleted > 0 {
		logger.Infof("[Scheduler] Cleaned up %d AI usage logs older than %d days", deleted, ops.AIUsageRetentionDays)
	}

	if err := s.db.Where("expires_at < ?", now).Delete(&models.SchedulerLock{}).Error; err != nil {
		logger.Warnf("[Scheduler] Failed to purge expired locks: %v", err)
	}
}

func (s *Scheduler) runHealthAlert() {
	ops := s.configs.GetOperationsConfig()
	if !ops.HealthAlertEnabled {
		return
	}
	if !s.claim(jobHealthAlert, minuteSlot(s.now()), time.Hour) {
		return
	}
	if _, err := s.checkHealth(ops); err != nil {
		logger.Errorf("[Scheduler] Health alert check failed: %v", err)
	}
}

// checkHealth evaluates today's escalation rate and broadcasts the alert the
// first time it fires. It reports whether an alert went out.
func (s *Scheduler) checkHealth(ops *OperationsConfig) (bool, error) {
	policy := AlertPolicy{MinReviews: ops.HealthAlertMinReview}
	brand, err := ActiveBrandConfig(s.db)
	if err == nil {
		policy.Threshold = brand.EscalationThreshold
	} else if !errors.Is(err, ErrBrandConfigMissing) {
		return false, err
	}

	health, newly, err := s.health.EvaluateAlert(policy)
	if err != nil || !newly {
		return false, err
	}

	message := "ReviewBuddy health alert: " + health.AlertMessage
	sent, err := s.notifications.BroadcastHealthAlert(message)
	if err != nil {
		logger.Warnf("[Scheduler] Health alert delivered to %d bots, errors: %v", sent, err)
	}
	if brand != nil && SlackReady(brand) {
		if err := s.notifications.SendSlackText(brand, message); err != nil {
			logger.Warnf("[Scheduler] Failed to send health alert to Slack: %v", err)
		}
	}
	LogWarning("scheduler", jobHealthAlert, health.AlertMessage, nil, "", "", nil)
	return true, nil
}

func (s *Scheduler) runDailyDigest() {
	if !s.claim(jobDailyDigest, daySlot(s.now()), 24*time.Hour) {
		return
	}
	message, err := s.BuildDigest()
	if err != nil {
		logger.Errorf("[Scheduler] Failed to build daily digest: %v", err)
		return
	}
	sent, err := s.notifications.BroadcastDailyDigest(message)
	if err != nil {
		logger.Warnf("[Scheduler] Daily digest delivered to %d bots, errors: %v", sent, err)
		return
	}
	logger.Infof("[Scheduler] Daily digest sent to %d bots", sent)
}

// BuildDigest summarises today's decisions and the open queues.
func (s *Scheduler) BuildDigest() (string, error) {
	health, err := s.health.Today()
	if err != nil {
		return "", err
	}
	if health == nil {
		health = &models.SystemHealth{}
	}

	var pending, escalated int64
	if err := s.db.Model(&models.Review{}).Where("status = ?", models.ReviewStatusPendingApproval).Count(&pending).Error; err != nil {
		return "", err
	}
	if err := s.db.Model(&models.Review{}).Where("status = ?", models.ReviewStatusEscalated).Count(&escalated).Error; err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "ReviewBuddy daily digest %s\n", daySlot(s.now()))
	fmt.Fprintf(&b, "Processed: %d (auto %d, held %d, escalated %d)\n",
		health.TotalReviews, health.AutoHandledCount, health.HoldForApprovalCount, health.EscalatedCount)
	fmt.Fprintf(&b, "Escalation rate: %.1f%%, overrides: %d, avg confidence: %.1f\n",
		health.EscalationRate, health.OverrideCount, health.AvgConfidenceScore)
	fmt.Fprintf(&b, "Open queues: %d awaiting approval, %d escalated", pending, escalated)
	return b.String(), nil
}

// cronLogger routes cron's own messages through zerolog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.Debug().Fields(keysAndValues).Msg("[Scheduler] " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.Error().Err(err).Fields(keysAndValues).Msg("[Scheduler] " + msg)
}
