package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pysugar/workspace-mirror/internal/db/models"
	"github.com/pysugar/workspace-mirror/internal/remote"
	"gorm.io/gorm"
)

// PageResult counts what one reconciled page changed.
type PageResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Granted int `json:"granted"`
	Skipped int `json:"skipped"`
}

func (r *PageResult) add(o PageResult) {
	r.Created += o.Created
	r.Updated += o.Updated
	r.Granted += o.Granted
	r.Skipped += o.Skipped
}

// Reconciler applies listing pages to the store.
type Reconciler struct {
	db     *gorm.DB
	policy ChangePolicy
	now    func() time.Time
}

// NewReconciler creates a reconciler. A nil policy means DayGranularity.
func NewReconciler(db *gorm.DB, policy ChangePolicy) *Reconciler {
	if policy == nil {
		policy = DayGranularity{}
	}
	return &Reconciler{db: db, policy: policy, now: time.Now}
}

// op is one staged mutation. index is the record's position in the page.
type op struct {
	index      int
	externalID string
	apply      func(tx *gorm.DB) error
}

// Reconcile stages creates, updates and access grants for every record of a
// page owned by userID and applies them in one transaction. The lookup runs in
// the same transaction, so users syncing a shared resource concurrently are
// serialized and the later one is granted access instead of creating it again.
// A failed batch leaves the store untouched and is reported as
// *ReconciliationFailedError; the caller fills in Page and Cursor.
func (r *Reconciler) Reconcile(ctx context.Context, userID, provider string, records []remote.Record) (PageResult, error) {
	var result PageResult
	if len(records) == 0 {
		return result, nil
	}

	var lookupErr error
	var failed *ReconciliationFailedError
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ops, staged, err := r.stage(tx, userID, provider, records)
		if err != nil {
			lookupErr = err
			return err
		}
		result = staged

		for _, o := range ops {
			if err := o.apply(tx); err != nil {
				failed = &ReconciliationFailedError{
					Provider:   provider,
					Index:      o.index,
					ExternalID: o.externalID,
					Err:        err,
				}
				return failed
			}
		}
		return nil
	})
	if err != nil {
		if lookupErr != nil {
			return PageResult{}, lookupErr
		}
		if errors.As(err, &failed) {
			return PageResult{}, failed
		}
		return PageResult{}, &ReconciliationFailedError{Provider: provider, Index: -1, Err: err}
	}
	return result, nil
}

// stage reads the page's existing resources and the user's grants through tx
// and decides the mutation for each record.
func (r *Reconciler) stage(tx *gorm.DB, userID, provider string, records []remote.Record) ([]op, PageResult, error) {
	var result PageResult
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.ExternalID)
	}

	var existing []models.Resource
	if err := tx.
		Preload("Record").
		Where("provider = ? AND external_id IN ?", provider, ids).
		Find(&existing).Error; err != nil {
		return nil, result, fmt.Errorf("lookup resources: %w", err)
	}
	byExternal := make(map[string]*models.Resource, len(existing))
	resourceIDs := make([]string, 0, len(existing))
	for i := range existing {
		byExternal[existing[i].ExternalID] = &existing[i]
		resourceIDs = append(resourceIDs, existing[i].ID)
	}

	granted := make(map[string]bool)
	if len(resourceIDs) > 0 {
		var grantedIDs []string
		if err := tx.
			Model(&models.ResourceAccess{}).
			Where("user_id = ? AND resource_id IN ?", userID, resourceIDs).
			Pluck("resource_id", &grantedIDs).Error; err != nil {
			return nil, result, fmt.Errorf("lookup access grants: %w", err)
		}
		for _, id := range grantedIDs {
			granted[id] = true
		}
	}

	now := r.now().UTC()
	var ops []op
	staged := make(map[string]bool, len(records))
	for i, rec := range records {
		if rec.ExternalID == "" || rec.Kind == "" || staged[rec.ExternalID] {
			result.Skipped++
			continue
		}
		staged[rec.ExternalID] = true

		local, ok := byExternal[rec.ExternalID]
		if !ok {
			ops = append(ops, op{index: i, externalID: rec.ExternalID, apply: createResource(provider, userID, rec, now)})
			result.Created++
			continue
		}

		if r.policy.Changed(local.UpdatedAt, rec.ModifiedAt) {
			ops = append(ops, op{index: i, externalID: rec.ExternalID, apply: updateResource(local, rec, now)})
			result.Updated++
		} else {
			result.Skipped++
		}
		if !granted[local.ID] {
			ops = append(ops, op{index: i, externalID: rec.ExternalID, apply: grantAccess(local.ID, userID, now)})
			result.Granted++
		}
	}
	return ops, result, nil
}

func createResource(provider, userID string, rec remote.Record, now time.Time) func(tx *gorm.DB) error {
	return func(tx *gorm.DB) error {
		createdAt := rec.CreatedAt
		if createdAt.IsZero() {
			createdAt = rec.ModifiedAt
		}
		resourceID := uuid.New().String()
		resource := models.Resource{
			ID:         resourceID,
			Provider:   provider,
			ExternalID: rec.ExternalID,
			Name:       rec.Name,
			Kind:       rec.Kind,
			CreatedAt:  createdAt,
			UpdatedAt:  rec.ModifiedAt,
			SyncedAt:   now,
			Record: models.ProviderRecord{
				ID:         uuid.New().String(),
				ResourceID: resourceID,
				MimeType:   rec.MimeType,
				Link:       rec.Link,
			},
		}
		if err := tx.Omit("Users").Create(&resource).Error; err != nil {
			return fmt.Errorf("create resource: %w", err)
		}
		return grantAccess(resourceID, userID, now)(tx)
	}
}

// updateResource rewrites the generic fields and touches the provider record
// only when one of its fields differs.
func updateResource(local *models.Resource, rec remote.Record, now time.Time) func(tx *gorm.DB) error {
	return func(tx *gorm.DB) error {
		if err := tx.Model(&models.Resource{}).Where("id = ?", local.ID).Updates(map[string]any{
			"name":       rec.Name,
			"kind":       rec.Kind,
			"updated_at": rec.ModifiedAt,
			"synced_at":  now,
		}).Error; err != nil {
			return fmt.Errorf("update resource: %w", err)
		}

		switch {
		case local.Record.ID == "":
			record := models.ProviderRecord{
				ID:         uuid.New().String(),
				ResourceID: local.ID,
				MimeType:   rec.MimeType,
				Link:       rec.Link,
			}
			if err := tx.Create(&record).Error; err != nil {
				return fmt.Errorf("create provider record: %w", err)
			}
		case local.Record.MimeType != rec.MimeType || local.Record.Link != rec.Link:
			if err := tx.Model(&models.ProviderRecord{}).Where("id = ?", local.Record.ID).Updates(map[string]any{
				"mime_type": rec.MimeType,
				"link":      rec.Link,
			}).Error; err != nil {
				return fmt.Errorf("update provider record: %w", err)
			}
		}
		return nil
	}
}

func grantAccess(resourceID, userID string, now time.Time) func(tx *gorm.DB) error {
	return func(tx *gorm.DB) error {
		grant := models.ResourceAccess{ResourceID: resourceID, UserID: userID, CreatedAt: now}
		if err := tx.Create(&grant).Error; err != nil {
			return fmt.Errorf("grant access: %w", err)
		}
		return nil
	}
}
