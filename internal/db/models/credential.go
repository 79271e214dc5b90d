package models

import "time"

// Credential stores the OAuth token pair a local user granted for one provider.
// Only the token manager rewrites AccessToken/RefreshToken/Expiry after issuance.
type Credential struct {
	ID           string    `gorm:"primaryKey" json:"id"` // UUID
	UserID       string    `gorm:"uniqueIndex:idx_credential_user_provider;not null" json:"user_id"`
	Provider     string    `gorm:"uniqueIndex:idx_credential_user_provider;not null" json:"provider"` // e.g., "google", "asana"
	RemoteID     string    `json:"remote_id"`                                                         // provider's id for the account
	Handle       string    `json:"handle"`                                                            // remote email at issuance time
	AccessToken  string    `gorm:"type:text" json:"-"`
	RefreshToken string    `gorm:"type:text" json:"-"`
	Scope        string    `json:"scope"`
	TokenType    string    `json:"token_type"`
	Expiry       time.Time `json:"expiry"`
	RefreshedAt  time.Time `json:"refreshed_at"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}
