package db

import (
	"crypto/rand"
	"encoding/hex"
	"errors"

	"github.com/charmbracelet/log"
	"github.com/pysugar/workspace-mirror/internal/db/models"
	"gorm.io/gorm"
)

// EnsureAPIKey makes sure an API key row exists. A non-empty override
// (MIRROR_API_KEY) always wins over the stored value.
func EnsureAPIKey(db *gorm.DB, override string) (string, error) {
	if override != "" {
		return override, saveAPIKey(db, override)
	}

	var config models.Config
	err := db.Where("key = ?", models.ConfigKeyAPIKey).First(&config).Error
	if err == nil {
		return config.Value, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", err
	}

	apiKey := newAPIKey()
	if err := db.Create(&models.Config{Key: models.ConfigKeyAPIKey, Value: apiKey}).Error; err != nil {
		return "", err
	}
	log.Info("🔑 Generated new API key", "key", apiKey)
	return apiKey, nil
}

// GetAPIKey retrieves the API key from database
func GetAPIKey(db *gorm.DB) string {
	var config models.Config
	db.Where("key = ?", models.ConfigKeyAPIKey).First(&config)
	return config.Value
}

// RegenerateAPIKey creates a new API key
func RegenerateAPIKey(db *gorm.DB) (string, error) {
	apiKey := newAPIKey()
	if err := saveAPIKey(db, apiKey); err != nil {
		return "", err
	}
	log.Info("🔑 Regenerated API key")
	return apiKey, nil
}

func saveAPIKey(db *gorm.DB, apiKey string) error {
	return db.Save(&models.Config{Key: models.ConfigKeyAPIKey, Value: apiKey}).Error
}

// newAPIKey returns "sk-" followed by 32 hex chars.
func newAPIKey() string {
	keyBytes := make([]byte, 16)
	rand.Read(keyBytes)
	return "sk-" + hex.EncodeToString(keyBytes)
}
