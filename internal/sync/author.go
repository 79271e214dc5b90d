package sync

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/pysugar/workspace-mirror/internal/db/models"
	"github.com/pysugar/workspace-mirror/internal/remote"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// authorResolver maps remote author info onto Author rows for one provider.
// ownerID is the local user whose credential reads the thread.
type authorResolver struct {
	provider string
	ownerID  string
}

// resolve returns the author for a remote item, creating the row if needed.
// ok is false when the item carries neither a "me" flag nor a display name.
// Two remote accounts with the same display name share one placeholder.
func (a authorResolver) resolve(tx *gorm.DB, info *remote.Author) (author *models.Author, ok bool, err error) {
	if info == nil || (!info.Me && info.DisplayName == "") {
		return nil, false, nil
	}

	lookup := func() (*models.Author, error) {
		var found models.Author
		query := tx.Where("provider = ? AND kind = ? AND display_name = ?", a.provider, models.AuthorExternal, info.DisplayName)
		if info.Me {
			query = tx.Where("provider = ? AND kind = ? AND user_id = ?", a.provider, models.AuthorUser, a.ownerID)
		}
		if err := query.First(&found).Error; err != nil {
			return nil, err
		}
		return &found, nil
	}

	found, err := lookup()
	if err == nil {
		return found, true, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("lookup author: %w", err)
	}

	created := models.Author{
		ID:          uuid.New().String(),
		Provider:    a.provider,
		Kind:        models.AuthorExternal,
		DisplayName: info.DisplayName,
	}
	if info.Me {
		ownerID := a.ownerID
		created.Kind = models.AuthorUser
		created.UserID = &ownerID
	}
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&created)
	if res.Error != nil {
		return nil, false, fmt.Errorf("create author: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		// Another writer inserted the same author first.
		if found, err = lookup(); err != nil {
			return nil, false, fmt.Errorf("lookup author after conflict: %w", err)
		}
		return found, true, nil
	}
	return &created, true, nil
}
