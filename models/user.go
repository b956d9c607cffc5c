package models

import (
	"context"
	"errors"
	"time"

	"github.com/auditecx/audit_backend/config"
	"github.com/auditecx/audit_backend/utils"
	"gorm.io/gorm"
)

type User struct {
	ID           int       `gorm:"primary_key" json:"id"`
	Name         string    `gorm:"size:255;not null" json:"name" binding:"required"`
	Email        string    `gorm:"size:255;uniqueIndex;not null" json:"email" binding:"required,email"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	Role         string    `gorm:"size:64;not null;default:auditor" json:"role"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewUser struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Role     string `json:"role"`
}

type Login struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func CreateUser(ctx context.Context, input NewUser) (*User, error) {
	db := config.GetDB()
	if db == nil {
		return nil, utils.ErrorDatabaseUnavailable
	}

	hashed, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	role := input.Role
	if role == "" {
		role = "auditor"
	}

	user := User{
		Name:         input.Name,
		Email:        input.Email,
		PasswordHash: string(hashed),
		Role:         role,
	}
	if err := db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func AuthenticateUser(ctx context.Context, input Login) (*User, error) {
	db := config.GetDB()
	if db == nil {
		return nil, utils.ErrorDatabaseUnavailable
	}

	var user User
	err := db.WithContext(ctx).Where("email = ?", input.Email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrorRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := utils.ComparePassword(user.PasswordHash, input.Password); err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &user, nil
}
