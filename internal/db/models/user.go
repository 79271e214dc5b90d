package models

import "time"

// User is a local identity. Credentials and resource grants hang off it.
type User struct {
	ID        string    `gorm:"primaryKey" json:"id"` // UUID
	Email     string    `gorm:"uniqueIndex;not null" json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Credentials []Credential `gorm:"foreignKey:UserID" json:"credentials,omitempty"`
	Resources   []Resource   `gorm:"many2many:resource_access;" json:"-"`
}
