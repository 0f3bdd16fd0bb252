package models

import "time"

// MaskedSecret is what the settings API shows instead of a stored credential.
const MaskedSecret = "••••••••"

// BrandConfig holds brand voice, automation policy and channel credentials.
// Exactly one row is active at a time.
type BrandConfig struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	CompanyName     string          `gorm:"size:200;not null" json:"company_name"`
	BrandTone       BrandTone       `gorm:"size:30;default:Professional" json:"brand_tone"`
	AutomationLevel AutomationLevel `gorm:"size:30;default:SEMI_AUTO" json:"automation_level"`
	// EscalationThreshold is the daily escalation rate (%) above which a health alert fires.
	EscalationThreshold float64 `gorm:"default:30" json:"escalation_threshold"`

	KiyohAPIKey     string `gorm:"size:500" json:"kiyoh_api_key"`
	KiyohLocationID string `gorm:"size:100" json:"kiyoh_location_id"`
	KiyohTenantID   string `gorm:"size:50;default:98" json:"kiyoh_tenant_id"`

	GoogleAPIKey         string `gorm:"size:500" json:"google_api_key"`
	GooglePlaceID        string `gorm:"size:200" json:"google_place_id"`
	FacebookAPIKey       string `gorm:"size:500" json:"facebook_api_key"`
	FacebookPageID       string `gorm:"size:200" json:"facebook_page_id"`
	TrustpilotAPIKey     string `gorm:"size:500" json:"trustpilot_api_key"`
	TrustpilotBusinessID string `gorm:"size:200" json:"trustpilot_business_id"`

	GeminiAPIKey string `gorm:"size:500" json:"gemini_api_key"`

	SlackEnabled     bool   `gorm:"default:false" json:"slack_enabled"`
	SlackWebhookURL  string `gorm:"size:500" json:"slack_webhook_url"`
	SlackChannelName string `gorm:"size:200" json:"slack_channel_name"`

	WhatsAppEnabled     bool   `gorm:"column:whatsapp_enabled;default:false" json:"whatsapp_enabled"`
	TwilioAccountSID    string `gorm:"size:100" json:"twilio_account_sid"`
	TwilioAuthToken     string `gorm:"size:200" json:"twilio_auth_token"`
	TwilioPhoneNumber   string `gorm:"size:50" json:"twilio_phone_number"`
	WhatsAppAdminNumber string `gorm:"column:whatsapp_admin_number;size:50" json:"whatsapp_admin_number"`

	IsActive  bool      `gorm:"default:true;index" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (BrandConfig) TableName() string { return "brand_configs" }

// HasKiyohCredentials reports whether the review platform can be called.
func (b *BrandConfig) HasKiyohCredentials() bool {
	return b.KiyohAPIKey != "" && b.KiyohLocationID != ""
}

// TenantID returns the Kiyoh tenant, defaulting to 98.
func (b *BrandConfig) TenantID() string {
	if b.KiyohTenantID == "" {
		return "98"
	}
	return b.KiyohTenantID
}

// Masked returns a copy safe to send to clients: stored secrets are replaced
// by MaskedSecret and absent ones stay empty.
func (b BrandConfig) Masked() BrandConfig {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return MaskedSecret
	}
	b.KiyohAPIKey = mask(b.KiyohAPIKey)
	b.GoogleAPIKey = mask(b.GoogleAPIKey)
	b.FacebookAPIKey = mask(b.FacebookAPIKey)
	b.TrustpilotAPIKey = mask(b.TrustpilotAPIKey)
	b.GeminiAPIKey = mask(b.GeminiAPIKey)
	b.SlackWebhookURL = mask(b.SlackWebhookURL)
	b.TwilioAuthToken = mask(b.TwilioAuthToken)
	b.KiyohTenantID = b.TenantID()
	return b
}
