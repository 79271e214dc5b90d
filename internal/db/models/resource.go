package models

import "time"

// ResourceKind is the provider-agnostic type of a mirrored resource.
type ResourceKind string

const (
	KindDocument     ResourceKind = "DOCUMENT"
	KindSpreadsheet  ResourceKind = "SPREADSHEET"
	KindPresentation ResourceKind = "PRESENTATION"
	KindTask         ResourceKind = "TASK"
)

// Resource mirrors a remote document or task. (Provider, ExternalID) is the
// reconciliation key. CreatedAt/UpdatedAt carry remote timestamps, so gorm's
// automatic time tracking is disabled on them.
type Resource struct {
	ID         string       `gorm:"primaryKey" json:"id"` // UUID
	Provider   string       `gorm:"uniqueIndex:idx_resource_provider_external;not null" json:"provider"`
	ExternalID string       `gorm:"uniqueIndex:idx_resource_provider_external;not null" json:"external_id"`
	Name       string       `json:"name"`
	Kind       ResourceKind `gorm:"not null" json:"kind"`
	CreatedAt  time.Time    `gorm:"autoCreateTime:false" json:"created_at"`
	UpdatedAt  time.Time    `gorm:"autoUpdateTime:false" json:"updated_at"`
	SyncedAt   time.Time    `json:"synced_at"`

	Record ProviderRecord `gorm:"foreignKey:ResourceID" json:"record"`
	Users  []User         `gorm:"many2many:resource_access;" json:"-"`
}

// ProviderRecord holds provider-specific fields of a Resource so they can be
// diffed independently of the generic ones.
type ProviderRecord struct {
	ID         string `gorm:"primaryKey" json:"-"`
	ResourceID string `gorm:"uniqueIndex;not null" json:"-"`
	MimeType   string `json:"mime_type"` // Drive mimeType or Asana resource_subtype
	Link       string `json:"link"`
}

// ResourceAccess is the join row granting a user visibility of a resource.
type ResourceAccess struct {
	ResourceID string `gorm:"primaryKey"`
	UserID     string `gorm:"primaryKey"`
	CreatedAt  time.Time
}

// TableName keeps the join table name in line with the many2many tags.
func (ResourceAccess) TableName() string {
	return "resource_access"
}
