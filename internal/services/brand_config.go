package services

import (
	"errors"
	"fmt"

	"github.com/huangang/reviewbuddy/backend/internal/models"
	"github.com/huangang/reviewbuddy/backend/pkg/response"
	"gorm.io/gorm"
)

var ErrBrandConfigMissing = errors.New("brand configuration not found")

const defaultSettingsCompany = "My Company"

// ActiveBrandConfig loads the single active brand configuration.
func ActiveBrandConfig(db *gorm.DB) (*models.BrandConfig, error) {
	var brand models.BrandConfig
	err := db.Where("is_active = ?", true).Order("id ASC").First(&brand).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBrandConfigMissing
	}
	if err != nil {
		return nil, err
	}
	return &brand, nil
}

type SettingsService struct {
	db *gorm.DB
}

func NewSettingsService(db *gorm.DB) *SettingsService {
	return &SettingsService{db: db}
}

// UpdateSettingsRequest is a partial update. Nil fields are left alone; secret
// fields are also ignored when empty or still masked.
type UpdateSettingsRequest struct {
	CompanyName         *string                 `json:"company_name"`
	BrandTone           *models.BrandTone       `json:"brand_tone"`
	AutomationLevel     *models.AutomationLevel `json:"automation_level"`
	EscalationThreshold *float64                `json:"escalation_threshold"`

	KiyohAPIKey     *string `json:"kiyoh_api_key"`
	KiyohLocationID *string `json:"kiyoh_location_id"`
	KiyohTenantID   *string `json:"kiyoh_tenant_id"`

	GoogleAPIKey         *string `json:"google_api_key"`
	GooglePlaceID        *string `json:"google_place_id"`
	FacebookAPIKey       *string `json:"facebook_api_key"`
	FacebookPageID       *string `json:"facebook_page_id"`
	TrustpilotAPIKey     *string `json:"trustpilot_api_key"`
	TrustpilotBusinessID *string `json:"trustpilot_business_id"`

	GeminiAPIKey *string `json:"gemini_api_key"`

	SlackEnabled     *bool   `json:"slack_enabled"`
	SlackWebhookURL  *string `json:"slack_webhook_url"`
	SlackChannelName *string `json:"slack_channel_name"`

	WhatsAppEnabled     *bool   `json:"whatsapp_enabled"`
	TwilioAccountSID    *string `json:"twilio_account_sid"`
	TwilioAuthToken     *string `json:"twilio_auth_token"`
	TwilioPhoneNumber   *string `json:"twilio_phone_number"`
	WhatsAppAdminNumber *string `json:"whatsapp_admin_number"`
}

// Get returns the active configuration, creating a default one on first use.
func (s *SettingsService) Get() (*models.BrandConfig, error) {
	brand, err := ActiveBrandConfig(s.db)
	if errors.Is(err, ErrBrandConfigMissing) {
		brand = &models.BrandConfig{
			CompanyName:     defaultSettingsCompany,
			BrandTone:       models.ToneProfessional,
			AutomationLevel: models.AutomationSemiAuto,
			IsActive:        true,
		}
		if err := s.db.Create(brand).Error; err != nil {
			return nil, fmt.Errorf("create default brand config: %w", err)
		}
		return brand, nil
	}
	return brand, err
}

// fieldUpdate pairs the API field name with its column and new value.
type fieldUpdate struct {
	field  string
	column string
	value  interface{}
}

func (r *UpdateSettingsRequest) changes() ([]fieldUpdate, error) {
	var out []fieldUpdate
	plain := func(field, column string, v interface{}) {
		out = append(out, fieldUpdate{field, column, v})
	}
	str := func(field, column string, v *string) {
		if v != nil {
			out = append(out, fieldUpdate{field, column, *v})
		}
	}
	secret := func(field, column string, v *string) {
		if v != nil && *v != "" && *v != models.MaskedSecret {
			out = append(out, fieldUpdate{field, column, *v})
		}
	}

	str("company_name", "company_name", r.CompanyName)
	if r.BrandTone != nil {
		if !r.BrandTone.Valid() {
			return nil, response.NewBadRequest(fmt.Sprintf("invalid brand tone %q", *r.BrandTone))
		}
		plain("brand_tone", "brand_tone", *r.BrandTone)
	}
	if r.AutomationLevel != nil {
		if !r.AutomationLevel.Valid() {
			return nil, response.NewBadRequest(fmt.Sprintf("invalid automation level %q", *r.AutomationLevel))
		}
		plain("automation_level", "automation_level", *r.AutomationLevel)
	}
	if r.EscalationThreshold != nil {
		if *r.EscalationThreshold < 0 || *r.EscalationThreshold > 100 {
			return nil, response.NewBadRequest("escalation threshold must be between 0 and 100")
		}
		plain("escalation_threshold", "escalation_threshold", *r.EscalationThreshold)
	}

	secret("kiyoh_api_key", "kiyoh_api_key", r.KiyohAPIKey)
	str("kiyoh_location_id", "kiyoh_location_id", r.KiyohLocationID)
	str("kiyoh_tenant_id", "kiyoh_tenant_id", r.KiyohTenantID)
	secret("google_api_key", "google_api_key", r.GoogleAPIKey)
	str("google_place_id", "google_place_id", r.GooglePlaceID)
	secret("facebook_api_key", "facebook_api_key", r.FacebookAPIKey)
	str("facebook_page_id", "facebook_page_id", r.FacebookPageID)
	secret("trustpilot_api_key", "trustpilot_api_key", r.TrustpilotAPIKey)
	str("trustpilot_business_id", "trustpilot_business_id", r.TrustpilotBusinessID)
	secret("gemini_api_key", "gemini_api_key", r.GeminiAPIKey)

	if r.SlackEnabled != nil {
		plain("slack_enabled", "slack_enabled", *r.SlackEnabled)
	}
	secret("slack_webhook_url", "slack_webhook_url", r.SlackWebhookURL)
	str("slack_channel_name", "slack_channel_name", r.SlackChannelName)

	if r.WhatsAppEnabled != nil {
		plain("whatsapp_enabled", "whatsapp_enabled", *r.WhatsAppEnabled)
	}
	str("twilio_account_sid", "twilio_account_sid", r.TwilioAccountSID)
	secret("twilio_auth_token", "twilio_auth_token", r.TwilioAuthToken)
	str("twilio_phone_number", "twilio_phone_number", r.TwilioPhoneNumber)
	str("whatsapp_admin_number", "whatsapp_admin_number", r.WhatsAppAdminNumber)

	return out, nil
}

// Update applies req to the active configuration and audits which fields changed.
func (s *SettingsService) Update(req *UpdateSettingsRequest, userID *uint) (*models.BrandConfig, []string, error) {
	changes, err := req.changes()
	if err != nil {
		return nil, nil, err
	}

	brand, err := s.Get()
	if err != nil {
		return nil, nil, err
	}

	updates := make(map[string]interface{}, len(changes))
	fields := make([]string, 0, len(changes))
	for _, c := range changes {
		updates[c.column] = c.value
		fields = append(fields, c.field)
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if len(updates) > 0 {
			if err := tx.Model(brand).Updates(updates).Error; err != nil {
				return err
			}
		}
		return tx.Create(&models.AuditLog{
			ActionType: models.ActionSettingsUpdated,
			UserID:     userID,
			Metadata:   models.SettingsUpdatedMeta{UpdatedFields: fields},
		}).Error
	})
	if err != nil {
		return nil, nil, fmt.Errorf("update settings: %w", err)
	}

	if err := s.db.First(brand, brand.ID).Error; err != nil {
		return nil, nil, err
	}
	return brand, fields, nil
}
