package services

import (
	"errors"
	"fmt"

	"github.com/huangang/reviewbuddy/backend/internal/models"
	"github.com/huangang/reviewbuddy/backend/pkg/logger"
	"gorm.io/gorm"
)

// ErrSlackNotConfigured is returned when the brand has no enabled Slack webhook.
var ErrSlackNotConfigured = errors.New("Slack not configured")

type NotificationService struct {
	db    *gorm.DB
	slack NotificationAdapter
}

func NewNotificationService(db *gorm.DB) *NotificationService {
	return &NotificationService{db: db, slack: &slackAdapter{}}
}

// SlackReady reports whether the brand's escalation channel can be used.
func SlackReady(brand *models.BrandConfig) bool {
	return brand != nil && brand.SlackEnabled && brand.SlackWebhookURL != ""
}

// SendReviewAlert posts a review alert to the brand's Slack webhook.
func (s *NotificationService) SendReviewAlert(brand *models.BrandConfig, alert *ReviewAlert) error {
	if !SlackReady(brand) {
		return ErrSlackNotConfigured
	}
	err := s.slack.SendRichMessage(brand.SlackWebhookURL, nil, alert)
	recordNotification("slack", err)
	if err != nil {
		logger.Warn().Err(err).Uint("review_id", alert.ReviewID).Msg("[Notification] Slack alert failed")
		return err
	}
	logger.Infof("[Notification] Slack alert sent for review %d", alert.ReviewID)
	return nil
}

// SendSlackText posts a free-form message to the brand's Slack webhook.
func (s *NotificationService) SendSlackText(brand *models.BrandConfig, message string) error {
	if !SlackReady(brand) {
		return ErrSlackNotConfigured
	}
	err := s.slack.SendTextMessage(brand.SlackWebhookURL, nil, message)
	recordNotification("slack", err)
	return err
}

// BroadcastHealthAlert sends message to every active bot subscribed to
// health alerts. It returns how many bots accepted it.
func (s *NotificationService) BroadcastHealthAlert(message string) (int, error) {
	return s.broadcast("health_alert = ?", func(bot *models.IMBot) error {
		return s.SendToBot(bot, message)
	})
}

// BroadcastDailyDigest sends message to every active bot subscribed to the digest.
func (s *NotificationService) BroadcastDailyDigest(message string) (int, error) {
	return s.broadcast("daily_digest = ?", func(bot *models.IMBot) error {
		return s.SendToBot(bot, message)
	})
}

// BroadcastReviewAlert sends an escalated review to every active bot
// subscribed to health alerts, formatted for each platform.
func (s *NotificationService) BroadcastReviewAlert(alert *ReviewAlert) (int, error) {
	return s.broadcast("health_alert = ?", func(bot *models.IMBot) error {
		return s.SendAlertToBot(bot, alert)
	})
}

func (s *NotificationService) broadcast(filter string, send func(*models.IMBot) error) (int, error) {
	var bots []models.IMBot
	if err := s.db.Where("is_active = ?", true).Where(filter, true).Find(&bots).Error; err != nil {
		return 0, err
	}

	sent := 0
	var errs []error
	for i := range bots {
		if err := send(&bots[i]); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", bots[i].Name, err))
			continue
		}
		sent++
	}
	return sent, errors.Join(errs...)
}

// SendToBot sends a plain message to one IM bot.
func (s *NotificationService) SendToBot(bot *models.IMBot, message string) error {
	if !bot.IsActive {
		logger.Infof("[Notification] IM bot %d is not active", bot.ID)
		return nil
	}

	logger.Infof("[Notification] Sending notification to bot %s (type: %s)", bot.Name, bot.Type)
	err := getAdapter(bot.Type).SendTextMessage(bot.Webhook, bot, message)
	recordNotification("im_"+bot.Type, err)
	if err != nil {
		logger.Warn().Err(err).Str("bot", bot.Name).Msg("[Notification] Failed to send notification")
		return err
	}
	return nil
}

// SendAlertToBot sends a formatted review alert to one IM bot.
func (s *NotificationService) SendAlertToBot(bot *models.IMBot, alert *ReviewAlert) error {
	err := getAdapter(bot.Type).SendRichMessage(bot.Webhook, bot, alert)
	recordNotification("im_"+bot.Type, err)
	if err != nil {
		logger.Warn().Err(err).Str("bot", bot.Name).Uint("review_id", alert.ReviewID).Msg("[Notification] Review alert to bot failed")
	}
	return err
}

func recordNotification(channel string, err error) {
	status := "sent"
	if err != nil {
		status = "failed"
	}
	notificationsSent.WithLabelValues(channel, status).Inc()
}
