package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/huangang/reviewbuddy/backend/internal/models"
	"github.com/huangang/reviewbuddy/backend/pkg/logger"
)

// ErrWhatsAppNotConfigured is returned when Twilio credentials or numbers are missing.
var ErrWhatsAppNotConfigured = errors.New("WhatsApp not configured")

const defaultTwilioBaseURL = "https://api.twilio.com"

// WhatsAppService sends WhatsApp messages through the Twilio Messages API.
type WhatsAppService struct {
	baseURL string
	client  *http.Client
}

func NewWhatsAppService(baseURL string, timeout time.Duration) *WhatsAppService {
	if baseURL == "" {
		baseURL = defaultTwilioBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WhatsAppService{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// WhatsAppReady reports whether every Twilio field needed to send is present.
func WhatsAppReady(brand *models.BrandConfig) bool {
	return brand != nil && brand.TwilioAccountSID != "" && brand.TwilioAuthToken != "" &&
		brand.TwilioPhoneNumber != "" && brand.WhatsAppAdminNumber != ""
}

func whatsAppAddress(number string) string {
	if strings.HasPrefix(number, "whatsapp:") {
		return number
	}
	return "whatsapp:" + number
}

// BuildWhatsAppAlert renders the admin message for an escalated review.
func BuildWhatsAppAlert(a *ReviewAlert) string {
	var b strings.Builder
	b.WriteString("🚨 *New High Risk Review Notification* 🚨\n\n")
	fmt.Fprintf(&b, "*Reviewer:* %s\n", a.ReviewerName)
	fmt.Fprintf(&b, "*Rating:* %d/10\n", a.Rating)
	fmt.Fprintf(&b, "*Risk Level:* %s\n", a.RiskLevel)
	fmt.Fprintf(&b, "*Confidence:* %d%%\n\n", a.ConfidenceScore)
	fmt.Fprintf(&b, "*Reason:* %s\n\n", a.Reason)
	fmt.Fprintf(&b, "*Action Required:* %s\n\n", a.ActionRequired)
	fmt.Fprintf(&b, "*Review Text:* \"%s\"", a.Excerpt(whatsAppTextLimit))
	if a.Link != "" {
		fmt.Fprintf(&b, "\n\n%s", a.Link)
	}
	return b.String()
}

// SendReviewAlert sends the alert to the brand's admin number and returns the
// Twilio message SID.
func (s *WhatsAppService) SendReviewAlert(ctx context.Context, brand *models.BrandConfig, alert *ReviewAlert) (string, error) {
	return s.Send(ctx, brand, BuildWhatsAppAlert(alert))
}

type twilioMessage struct {
	SID     string `json:"sid"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Send delivers body to the brand's admin number.
func (s *WhatsAppService) Send(ctx context.Context, brand *models.BrandConfig, body string) (string, error) {
	if !WhatsAppReady(brand) {
		return "", ErrWhatsAppNotConfigured
	}

	form := url.Values{}
	form.Set("From", whatsAppAddress(brand.TwilioPhoneNumber))
	form.Set("To", whatsAppAddress(brand.WhatsAppAdminNumber))
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", s.baseURL, url.PathEscape(brand.TwilioAccountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(brand.TwilioAccountSID, brand.TwilioAuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		recordNotification("whatsapp", err)
		return "", err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var msg twilioMessage
	_ = json.Unmarshal(raw, &msg)

	if resp.StatusCode >= 300 {
		err := fmt.Errorf("Twilio error %d", resp.StatusCode)
		if msg.Message != "" {
			err = errors.New(msg.Message)
		}
		recordNotification("whatsapp", err)
		return "", err
	}

	recordNotification("whatsapp", nil)
	logger.Infof("[WhatsApp] Notification sent: %s", msg.SID)
	return msg.SID, nil
}
