package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/pysugar/workspace-mirror/internal/db/models"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

// Issued is a freshly exchanged token plus the remote identity it belongs to.
type Issued struct {
	Token       *oauth2.Token
	RemoteID    string
	RemoteEmail string
}

// Persist stores an issued credential against the local user whose email
// matches the remote identity. It returns (nil, nil) when no such user exists;
// the credential is discarded.
func Persist(db *gorm.DB, provider string, issued Issued) (*models.Credential, error) {
	if issued.Token == nil || issued.Token.AccessToken == "" {
		return nil, errors.New("issued credential has no access token")
	}
	email := strings.ToLower(strings.TrimSpace(issued.RemoteEmail))

	var user models.User
	err := db.Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		log.Warn("🚫 Discarding credential for unknown user", "provider", provider, "email", email)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}

	var cred models.Credential
	err = db.Where("user_id = ? AND provider = ?", user.ID, provider).First(&cred).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		cred = models.Credential{
			ID:       uuid.New().String(),
			UserID:   user.ID,
			Provider: provider,
		}
	case err != nil:
		return nil, fmt.Errorf("find credential: %w", err)
	}

	cred.RemoteID = issued.RemoteID
	cred.Handle = email
	applyToken(&cred, issued.Token)
	cred.RefreshedAt = time.Now()

	if err := db.Save(&cred).Error; err != nil {
		return nil, fmt.Errorf("save credential: %w", err)
	}
	log.Info("🔑 Stored credential", "provider", provider, "user", user.ID, "email", email)
	return &cred, nil
}
