package models

import "time"

// AuthorKind discriminates the Author variant.
type AuthorKind string

const (
	AuthorUser     AuthorKind = "user"
	AuthorExternal AuthorKind = "external"
)

// Author is either a link to a local user or an external placeholder keyed by
// display name. The check constraint keeps exactly one variant populated; the
// partial unique indexes allow one row per (provider, user) and per
// (provider, display name).
type Author struct {
	ID          string     `gorm:"primaryKey" json:"id"`
	Provider    string     `gorm:"index:idx_author_lookup;uniqueIndex:idx_author_external,where:kind = 'external';uniqueIndex:idx_author_user,where:kind = 'user';not null" json:"provider"`
	Kind        AuthorKind `gorm:"index:idx_author_lookup;not null;check:chk_author_variant,(kind = 'user' AND user_id IS NOT NULL) OR (kind = 'external' AND user_id IS NULL AND display_name <> '')" json:"kind"`
	UserID      *string    `gorm:"index;uniqueIndex:idx_author_user,where:kind = 'user'" json:"user_id,omitempty"`
	DisplayName string     `gorm:"index:idx_author_lookup;uniqueIndex:idx_author_external,where:kind = 'external'" json:"display_name,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`

	User *User `gorm:"foreignKey:UserID" json:"-"`
}

// ThreadItem is a comment (ParentID nil) or a reply to one.
type ThreadItem struct {
	ID         string    `gorm:"primaryKey" json:"id"`
	Provider   string    `gorm:"uniqueIndex:idx_thread_provider_external;not null" json:"provider"`
	ExternalID string    `gorm:"uniqueIndex:idx_thread_provider_external;not null" json:"external_id"`
	ResourceID string    `gorm:"index;not null" json:"resource_id"`
	ParentID   *string   `gorm:"index" json:"parent_id,omitempty"`
	AuthorID   string    `gorm:"not null" json:"author_id"`
	Content    string    `gorm:"type:text" json:"content"`
	Resolved   bool      `json:"resolved"`
	CreatedAt  time.Time `gorm:"autoCreateTime:false" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime:false" json:"updated_at"`

	Author  Author       `gorm:"foreignKey:AuthorID" json:"author"`
	Replies []ThreadItem `gorm:"foreignKey:ParentID" json:"replies,omitempty"`
}
