package db

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/pysugar/workspace-mirror/internal/db/models"
	"gorm.io/gorm"
)

// ErrUserNotFound is returned when no user matches an id or email.
var ErrUserNotFound = errors.New("user not found")

// ErrResourceNotFound is returned when a resource id is unknown.
var ErrResourceNotFound = errors.New("resource not found")

// CreateUser inserts a local user. Emails are stored lower-cased.
func CreateUser(db *gorm.DB, email, name string) (*models.User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}
	user := models.User{
		ID:    uuid.New().String(),
		Email: email,
		Name:  strings.TrimSpace(name),
	}
	if err := db.Create(&user).Error; err != nil {
		return nil, fmt.Errorf("create user %s: %w", email, err)
	}
	return &user, nil
}

// FindUser looks a user up by id first, then by email.
func FindUser(db *gorm.DB, identifier string) (*models.User, error) {
	var user models.User
	err := db.Where("id = ?", identifier).First(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return FindUserByEmail(db, identifier)
}

// FindUserByEmail returns ErrUserNotFound when the email is unknown.
func FindUserByEmail(db *gorm.DB, email string) (*models.User, error) {
	var user models.User
	err := db.Where("email = ?", normalizeEmail(email)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ListUsers returns all users with their credentials (tokens are never serialized).
func ListUsers(db *gorm.DB) ([]models.User, error) {
	var users []models.User
	err := db.Preload("Credentials").Order("created_at ASC").Find(&users).Error
	return users, err
}

// ListUserResources returns the resources granted to a user, newest first.
func ListUserResources(db *gorm.DB, userID string) ([]models.Resource, error) {
	var resources []models.Resource
	err := db.Preload("Record").
		Joins("JOIN resource_access ON resource_access.resource_id = resources.id").
		Where("resource_access.user_id = ?", userID).
		Order("resources.updated_at DESC").
		Find(&resources).Error
	return resources, err
}

// ListThreads returns top-level thread items of a resource with their replies.
func ListThreads(db *gorm.DB, resourceID string) ([]models.ThreadItem, error) {
	var count int64
	if err := db.Model(&models.Resource{}).Where("id = ?", resourceID).Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, ErrResourceNotFound
	}

	var items []models.ThreadItem
	err := db.Preload("Author").
		Preload("Replies", func(tx *gorm.DB) *gorm.DB { return tx.Order("created_at ASC") }).
		Preload("Replies.Author").
		Where("resource_id = ? AND parent_id IS NULL", resourceID).
		Order("created_at ASC").
		Find(&items).Error
	return items, err
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
