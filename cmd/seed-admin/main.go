// seed-admin creates or updates the admin console user.
//
// Usage:
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-admin
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/auditecx/audit_backend/config"
	"github.com/auditecx/audit_backend/models"
	"github.com/auditecx/audit_backend/utils"
	"gorm.io/gorm"
)

const (
	defaultAdminEmail    = "admin@auditecx.local"
	defaultAdminPassword = "Aud1tecX-Admin!"
	adminName            = "Audit Admin"
)

func main() {
	email := flag.String("email", defaultAdminEmail, "Admin email address")
	password := flag.String("password", defaultAdminPassword, "Admin password")
	flag.Parse()

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	if err := models.MigrateDatabase(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to migrate schema: %v\n", err)
		os.Exit(1)
	}

	hashed, err := utils.HashPassword(*password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to hash password: %v\n", err)
		os.Exit(1)
	}

	var existing models.User
	err = db.WithContext(ctx).Where("email = ?", *email).First(&existing).Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			fmt.Fprintf(os.Stderr, "failed to lookup user: %v\n", err)
			os.Exit(1)
		}
		u := models.User{
			Name:         adminName,
			Email:        *email,
			PasswordHash: string(hashed),
			Role:         "admin",
		}
		if err := db.WithContext(ctx).Create(&u).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to create admin user: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Created admin user: email=%q (role=admin)\n", *email)
		return
	}

	if err := db.WithContext(ctx).Model(&models.User{}).Where("email = ?", *email).Updates(map[string]any{
		"password_hash": string(hashed),
		"name":          adminName,
		"role":          "admin",
	}).Error; err != nil {
		fmt.Fprintf(os.Stderr, "failed to update admin user: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Updated admin user: email=%q (role=admin)\n", *email)
}
