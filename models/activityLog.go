package models

import (
	"context"
	"time"

	"github.com/auditecx/audit_backend/config"
)

type ActivityLog struct {
	ID        int       `gorm:"primary_key" json:"id"`
	UserId    int       `gorm:"index" json:"user_id"`
	RunId     string    `gorm:"size:64;index" json:"run_id"`
	Action    string    `gorm:"size:128;not null" json:"action"`
	Detail    string    `gorm:"type:text" json:"detail"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// RecordActivity is best-effort: a failed activity write must never break
// the request that triggered it.
func RecordActivity(ctx context.Context, userId int, runId string, action string, detail string) {
	db := config.GetDB()
	if db == nil {
		return
	}
	entry := ActivityLog{
		UserId: userId,
		RunId:  runId,
		Action: action,
		Detail: detail,
	}
	if err := db.WithContext(ctx).Create(&entry).Error; err != nil {
		config.LogError(config.GetLogger(), "activityLog.go", "RecordActivity", "insert activity log", entry, err)
	}
}
