package models

import "time"

// SchedulerLock marks one scheduled run as claimed so replicas sharing a
// database do not sync Kiyoh or send digests twice. The unique
// (job, slot) pair is the lock.
type SchedulerLock struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Job       string    `gorm:"uniqueIndex:idx_job_slot;size:100;not null" json:"job"`
	Slot      string    `gorm:"uniqueIndex:idx_job_slot;size:100;not null" json:"slot"`
	Owner     string    `gorm:"size:100" json:"owner"`
	ClaimedAt time.Time `json:"claimed_at"`
	ExpiresAt time.Time `gorm:"index" json:"expires_at"`
}

func (SchedulerLock) TableName() string { return "scheduler_locks" }
