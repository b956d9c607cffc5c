package models

import (
	"context"
	"errors"
	"time"

	"github.com/auditecx/audit_backend/config"
	"github.com/auditecx/audit_backend/utils"
	"gorm.io/gorm"
)

const (
	RunStatusPending   = "pending"
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// AuditRun is the relational record of one orchestration run. The durable
// manifest on disk stays the source of truth for the full context; this row
// exists for listing, status lookups and dashboard queries.
type AuditRun struct {
	ID           int        `gorm:"primary_key" json:"id"`
	RunId        string     `gorm:"size:64;uniqueIndex;not null" json:"run_id"`
	UserId       int        `gorm:"index" json:"user_id"`
	Query        string     `gorm:"type:text" json:"query"`
	Intent       string     `gorm:"size:64" json:"intent"`
	Status       string     `gorm:"size:32;not null;default:pending" json:"status"`
	ManifestPath string     `gorm:"size:512" json:"manifest_path"`
	PackagePath  string     `gorm:"size:512" json:"package_path"`
	ErrorMessage string     `gorm:"type:text" json:"error_message"`
	StartedAt    *time.Time `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func CreateAuditRun(ctx context.Context, runId string, userId int, query string, intent string) (*AuditRun, error) {
	db := config.GetDB()
	if db == nil {
		return nil, nil
	}
	run := AuditRun{
		RunId:  runId,
		UserId: userId,
		Query:  query,
		Intent: intent,
		Status: RunStatusPending,
	}
	if err := db.WithContext(ctx).Create(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

// UpdateAuditRunStatus moves a run row through its lifecycle. A nil DB is
// tolerated so the pipeline still works database-less (CLI, tests).
func UpdateAuditRunStatus(ctx context.Context, runId string, status string, fields map[string]interface{}) error {
	db := config.GetDB()
	if db == nil {
		return nil
	}
	updates := map[string]interface{}{"status": status}
	now := time.Now().UTC()
	switch status {
	case RunStatusRunning:
		updates["started_at"] = &now
	case RunStatusCompleted, RunStatusFailed:
		updates["finished_at"] = &now
	}
	for k, v := range fields {
		updates[k] = v
	}
	return db.WithContext(ctx).Model(&AuditRun{}).Where("run_id = ?", runId).Updates(updates).Error
}

func GetAuditRun(ctx context.Context, runId string) (*AuditRun, error) {
	db := config.GetDB()
	if db == nil {
		return nil, utils.ErrorRecordNotFound
	}
	var run AuditRun
	err := db.WithContext(ctx).Where("run_id = ?", runId).First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrorRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func ListAuditRuns(ctx context.Context, limit int) ([]AuditRun, error) {
	db := config.GetDB()
	if db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	var runs []AuditRun
	err := db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&runs).Error
	return runs, err
}
