package services

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/huangang/reviewbuddy/backend/internal/models"
	"github.com/huangang/reviewbuddy/backend/pkg/logger"
)

// NotificationAdapter sends alerts to one IM platform, handling its payload
// format and signing rules.
type NotificationAdapter interface {
	SendRichMessage(webhook string, bot *models.IMBot, alert *ReviewAlert) error
	SendTextMessage(webhook string, bot *models.IMBot, message string) error
}

// getAdapter returns the appropriate notification adapter for the given bot type
func getAdapter(botType string) NotificationAdapter {
	switch botType {
	case "wechat_work":
		return &wecomAdapter{}
	case "dingtalk":
		return &dingtalkAdapter{}
	case "feishu":
		return &feishuAdapter{}
	case "slack":
		return &slackAdapter{}
	case "discord":
		return &discordAdapter{}
	case "teams":
		return &teamsAdapter{}
	case "telegram":
		return &telegramAdapter{}
	default:
		return &genericAdapter{}
	}
}

// --- Helper functions shared by adapters ---

func postJSONWithClient(client *http.Client, webhookURL string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	logger.Debugf("[Notification] POST %s, payload length: %d", redactURL(webhookURL), len(body))

	req, err := http.NewRequest("POST", webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	logger.Debugf("[Notification] Response: %d - %s", resp.StatusCode, string(respBody))

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// redactURL keeps webhook tokens out of the logs.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	return u.Scheme + "://" + u.Host
}

var notificationHTTPClient = &http.Client{Timeout: 10 * time.Second}

// SetNotificationTimeout applies the configured webhook timeout.
func SetNotificationTimeout(seconds int) {
	if seconds > 0 {
		notificationHTTPClient.Timeout = time.Duration(seconds) * time.Second
	}
}

func riskEmoji(level models.RiskLevel) string {
	switch level {
	case models.RiskHigh:
		return "🔴"
	case models.RiskMedium:
		return "🟡"
	case models.RiskLow:
		return "🟢"
	}
	return "⚪"
}

func buildMessage(a *ReviewAlert) string {
	msg := fmt.Sprintf(`🛡️ **ReviewBuddy Alert**

**Reviewer**: %s
**Rating**: %d/10
%s **Risk Level**: %s
**Confidence**: %d%%

**Review**: %s

**Why this needs attention**: %s
**Action Required**: %s`, a.ReviewerName, a.Rating, riskEmoji(a.RiskLevel), a.RiskLevel,
		a.ConfidenceScore, a.Excerpt(alertTextLimit), a.Reason, a.ActionRequired)

	if a.Link != "" {
		msg += fmt.Sprintf("\n\n🔗 [Open review](%s)", a.Link)
	}

	return msg
}

func dingTalkSign(timestamp int64, secret string) string {
	stringToSign := fmt.Sprintf("%d\n%s", timestamp, secret)
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(stringToSign))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func feishuSign(timestamp int64, secret string) string {
	stringToSign := fmt.Sprintf("%d\n%s", timestamp, secret)
	h := hmac.New(sha256.New, []byte(stringToSign))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func dingTalkWebhookURL(webhook, secret string) string {
	if secret == "" {
		return webhook
	}
	timestamp := time.Now().UnixMilli()
	sign := dingTalkSign(timestamp, secret)
	return fmt.Sprintf("%s&timestamp=%d&sign=%s", webhook, timestamp, url.QueryEscape(sign))
}

// --- Adapter implementations ---

// wecomAdapter handles WeCom (Enterprise WeChat) bot notifications
type wecomAdapter struct{}

func (a *wecomAdapter) SendRichMessage(webhook string, bot *models.IMBot, alert *ReviewAlert) error {
	return a.SendTextMessage(webhook, bot, buildMessage(alert))
}

func (a *wecomAdapter) SendTextMessage(webhook string, bot *models.IMBot, message string) error {
	payload := map[string]interface{}{
		"msgtype": "markdown_v2",
		"markdown_v2": map[string]string{
			"content": message,
		},
	}
	return postJSONWithClient(notificationHTTPClient, webhook, payload)
}

// dingtalkAdapter handles DingTalk bot notifications
type dingtalkAdapter struct{}

func (a *dingtalkAdapter) send(bot *models.IMBot, title, text string) error {
	payload := map[string]interface{}{
		"msgtype": "markdown",
		"markdown": map[string]string{
			"title": title,
			"text":  text,
		},
	}
	return postJSONWithClient(notificationHTTPClient, dingTalkWebhookURL(bot.Webhook, bot.Secret), payload)
}

func (a *dingtalkAdapter) SendRichMessage(webhook string, bot *models.IMBot, alert *ReviewAlert) error {
	return a.send(bot, fmt.Sprintf("ReviewBuddy Alert: %s", alert.ReviewerName), buildMessage(alert))
}

func (a *dingtalkAdapter) SendTextMessage(webhook string, bot *models.IMBot, message string) error {
	return a.send(bot, "ReviewBuddy", message)
}

// feishuAdapter handles Feishu (Lark) bot notifications
type feishuAdapter struct{}

func (a *feishuAdapter) sendFeishu(webhook, secret, content string) error {
	payload := map[string]interface{}{
		"msg_type": "text",
		"content": map[string]string{
			"text": content,
		},
	}
	if secret != "" {
		timestamp := time.Now().Unix()
		payload["timestamp"] = fmt.Sprintf("%d", timestamp)
		payload["sign"] = feishuSign(timestamp, secret)
	}
	return postJSONWithClient(notificationHTTPClient, webhook, payload)
}

func (a *feishuAdapter) SendRichMessage(webhook string, bot *models.IMBot, alert *ReviewAlert) error {
	return a.sendFeishu(webhook, bot.Secret, buildMessage(alert))
}

func (a *feishuAdapter) SendTextMessage(webhook string, bot *models.IMBot, message string) error {
	return a.sendFeishu(webhook, bot.Secret, message)
}

// slackAdapter handles Slack incoming webhooks. It is shared by admin IM bots
// and the brand's escalation webhook, so bot may be nil.
type slackAdapter struct{}

func slackMrkdwn(text string) map[string]interface{} {
	return map[string]interface{}{
		"type": "section",
		"text": map[string]string{"type": "mrkdwn", "text": text},
	}
}

// slackAlertBlocks lays out a review alert as Slack blocks.
func slackAlertBlocks(alert *ReviewAlert) []map[string]interface{} {
	blocks := []map[string]interface{}{
		{
			"type": "header",
			"text": map[string]interface{}{"type": "plain_text", "text": "🛡️ ReviewBuddy Alert", "emoji": true},
		},
		slackMrkdwn("*A review requires your attention*"),
		{"type": "divider"},
		{
			"type": "section",
			"fields": []map[string]string{
				{"type": "mrkdwn", "text": fmt.Sprintf("*Reviewer:*\n%s", alert.ReviewerName)},
				{"type": "mrkdwn", "text": fmt.Sprintf("*Rating:*\n⭐ %d/10", alert.Rating)},
				{"type": "mrkdwn", "text": fmt.Sprintf("*Risk Level:*\n%s", alert.RiskLevel)},
				{"type": "mrkdwn", "text": fmt.Sprintf("*Confidence:*\n%d%%", alert.ConfidenceScore)},
			},
		},
		slackMrkdwn(fmt.Sprintf("*Review:*\n> %s", alert.Excerpt(alertTextLimit))),
		slackMrkdwn(fmt.Sprintf("*Why this needs attention:*\n%s", alert.Reason)),
		slackMrkdwn(fmt.Sprintf("*Recommended Action:*\n%s", alert.ActionRequired)),
	}
	if alert.Link != "" {
		blocks = append(blocks, slackMrkdwn(fmt.Sprintf("<%s|View Review in ReviewBuddy>", alert.Link)))
	}
	return blocks
}

func (a *slackAdapter) SendRichMessage(webhook string, bot *models.IMBot, alert *ReviewAlert) error {
	payload := map[string]interface{}{
		"blocks": slackAlertBlocks(alert),
		"text":   alert.Summary(),
	}
	return postJSONWithClient(notificationHTTPClient, webhook, payload)
}

func (a *slackAdapter) SendTextMessage(webhook string, bot *models.IMBot, message string) error {
	payload := map[string]interface{}{
		"text": message,
	}
	return postJSONWithClient(notificationHTTPClient, webhook, payload)
}

// discordAdapter handles Discord webhook notifications
type discordAdapter struct{}

func (a *discordAdapter) SendRichMessage(webhook string, bot *models.IMBot, alert *ReviewAlert) error {
	return a.SendTextMessage(webhook, bot, buildMessage(alert))
}

func (a *discordAdapter) SendTextMessage(webhook string, bot *models.IMBot, message string) error {
	payload := map[string]interface{}{
		"content": message,
	}
	return postJSONWithClient(notificationHTTPClient, webhook, payload)
}

// teamsAdapter handles Microsoft Teams webhook notifications
type teamsAdapter struct{}

func buildAdaptiveCard(text string) map[string]interface{} {
	return map[string]interface{}{
		"type": "message",
		"attachments": []map[string]interface{}{
			{
				"contentType": "application/vnd.microsoft.card.adaptive",
				"content": map[string]interface{}{
					"type":    "AdaptiveCard",
					"$schema": "http://adaptivecards.io/schemas/adaptive-card.json",
					"version": "1.5",
					"body": []map[string]interface{}{
						{
							"type": "TextBlock",
							"text": text,
							"wrap": true,
						},
					},
				},
			},
		},
	}
}

func (a *teamsAdapter) SendRichMessage(webhook string, bot *models.IMBot, alert *ReviewAlert) error {
	return postJSONWithClient(notificationHTTPClient, webhook, buildAdaptiveCard(buildMessage(alert)))
}

func (a *teamsAdapter) SendTextMessage(webhook string, bot *models.IMBot, message string) error {
	return postJSONWithClient(notificationHTTPClient, webhook, buildAdaptiveCard(message))
}

// telegramAdapter handles Telegram bot notifications
type telegramAdapter struct{}

func (a *telegramAdapter) sendTelegram(webhook, chatID, text string) error {
	if chatID == "" {
		return fmt.Errorf("telegram chat_id is required in extra field")
	}
	payload := map[string]interface{}{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "Markdown",
	}
	return postJSONWithClient(notificationHTTPClient, webhook, payload)
}

func (a *telegramAdapter) SendRichMessage(webhook string, bot *models.IMBot, alert *ReviewAlert) error {
	return a.sendTelegram(webhook, bot.Extra, buildMessage(alert))
}

func (a *telegramAdapter) SendTextMessage(webhook string, bot *models.IMBot, message string) error {
	return a.sendTelegram(webhook, bot.Extra, message)
}

// genericAdapter posts the alert as flat JSON
type genericAdapter struct{}

func (a *genericAdapter) SendRichMessage(webhook string, bot *models.IMBot, alert *ReviewAlert) error {
	payload := map[string]interface{}{
		"type":             "review_alert",
		"review_id":        alert.ReviewID,
		"reviewer_name":    alert.ReviewerName,
		"rating":           alert.Rating,
		"review_text":      alert.Excerpt(alertTextLimit),
		"risk_level":       alert.RiskLevel,
		"confidence_score": alert.ConfidenceScore,
		"reason":           alert.Reason,
		"action_required":  alert.ActionRequired,
		"link":             alert.Link,
	}
	return postJSONWithClient(notificationHTTPClient, webhook, payload)
}

func (a *genericAdapter) SendTextMessage(webhook string, bot *models.IMBot, message string) error {
	payload := map[string]interface{}{
		"type":    "message",
		"message": message,
	}
	return postJSONWithClient(notificationHTTPClient, webhook, payload)
}
