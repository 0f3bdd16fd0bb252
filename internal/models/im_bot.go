package models

import (
	"time"

	"gorm.io/gorm"
)

// IMBot is an outbound chat bot used for operational alerts.
type IMBot struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Name        string         `gorm:"size:100;not null" json:"name"`
	Type        string         `gorm:"size:50;not null" json:"type"` // slack, discord, teams, telegram, dingtalk, feishu, wechat_work, generic
	Webhook     string         `gorm:"size:500;not null" json:"webhook"`
	Secret      string         `gorm:"size:255" json:"-"`
	Extra       string         `gorm:"size:500" json:"extra"` // Telegram chat_id
	IsActive    bool           `gorm:"default:true" json:"is_active"`
	HealthAlert bool           `gorm:"default:true" json:"health_alert"` // receives escalation-rate alerts
	DailyDigest bool           `gorm:"default:false" json:"daily_digest"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

func (IMBot) TableName() string { return "im_bots" }
