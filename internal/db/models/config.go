package models

import "time"

// Config is a key/value row for settings that live in the database (the API key).
type Config struct {
	Key       string `gorm:"primaryKey"`
	Value     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ConfigKeyAPIKey names the row holding the API key for /api routes.
const ConfigKeyAPIKey = "api_key"
