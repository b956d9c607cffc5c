package models

import (
	"github.com/auditecx/audit_backend/config"
)

// MigrateDatabase runs the schema migrations for every relational model.
func MigrateDatabase() error {
	db := config.GetDB()
	if db == nil {
		return nil
	}
	return db.AutoMigrate(
		&User{},
		&AuditRun{},
		&ActivityLog{},
	)
}
