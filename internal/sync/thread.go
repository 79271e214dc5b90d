package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/pysugar/workspace-mirror/internal/auth/token"
	mirrordb "github.com/pysugar/workspace-mirror/internal/db"
	"github.com/pysugar/workspace-mirror/internal/db/models"
	"github.com/pysugar/workspace-mirror/internal/logging"
	"github.com/pysugar/workspace-mirror/internal/remote"
	"github.com/pysugar/workspace-mirror/internal/util"
	"gorm.io/gorm"
)

// ThreadResult counts what one thread ingestion changed.
type ThreadResult struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Skipped   int `json:"skipped"`
}

func (r *ThreadResult) add(o ThreadResult) {
	r.Created += o.Created
	r.Updated += o.Updated
	r.Unchanged += o.Unchanged
	r.Skipped += o.Skipped
}

type itemOutcome int

const (
	itemCreated itemOutcome = iota
	itemUpdated
	itemUnchanged
	itemSkipped
)

func (r *ThreadResult) count(o itemOutcome) {
	switch o {
	case itemCreated:
		r.Created++
	case itemUpdated:
		r.Updated++
	case itemUnchanged:
		r.Unchanged++
	case itemSkipped:
		r.Skipped++
	}
}

// IngestThread mirrors the comments and replies of a resource. The session is
// opened with the credential of the first user granted the resource that has
// one for the provider.
func (e *Engine) IngestThread(ctx context.Context, resourceID string) (result ThreadResult, err error) {
	ctx = logging.EnsureTaskID(ctx)
	logger := logging.FromContext(ctx)
	run := e.startRun(ctx, models.RunKindComments)
	run.ResourceID = resourceID
	var pages int
	defer func() { e.finishThreadRun(run, pages, result, err) }()

	var resource models.Resource
	if err := e.db.WithContext(ctx).First(&resource, "id = ?", resourceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return result, fmt.Errorf("resource %s: %w", resourceID, mirrordb.ErrResourceNotFound)
		}
		return result, fmt.Errorf("load resource: %w", err)
	}

	run.Provider = resource.Provider
	session, err := e.openForResource(ctx, &resource)
	if err != nil {
		return result, err
	}
	run.UserID = session.UserID()
	resolver := authorResolver{provider: resource.Provider, ownerID: session.UserID()}
	logger.Info("💬 thread: ingest started", "resource", resource.ID, "provider", resource.Provider, "user", session.UserID())

	fetch := func(ctx context.Context, cursor string) (string, error) {
		var page *remote.ItemPage
		err := session.Do(ctx, "threads.list", func(ctx context.Context, c remote.Client) error {
			var err error
			page, err = c.ListThreadItems(ctx, resource.ExternalID, cursor, e.opts.ThreadPageSize)
			return err
		})
		if err != nil {
			return "", e.remoteFailure(ctx, resource.Provider, "threads.list", cursor, err)
		}
		if page == nil {
			return "", nil
		}

		for _, item := range page.Items {
			if err := ctx.Err(); err != nil {
				return "", err
			}
			tally, err := e.ingestItem(ctx, resolver, &resource, item)
			if err != nil {
				return "", err
			}
			result.add(tally)
		}
		return page.NextCursor, nil
	}

	pages, _, err = Drain(ctx, "", fetch)
	if err != nil {
		logger.Error("❌ thread: ingest failed", "resource", resource.ID, "pages", pages, "err", err)
		return result, err
	}
	logger.Info("✅ thread: ingest finished", "resource", resource.ID, "pages", pages,
		"created", result.Created, "updated", result.Updated, "unchanged", result.Unchanged, "skipped", result.Skipped)
	return result, nil
}

// openForResource walks the resource's grants in grant order and opens a
// session for the first user holding a credential.
func (e *Engine) openForResource(ctx context.Context, resource *models.Resource) (remote.Session, error) {
	var userIDs []string
	if err := e.db.WithContext(ctx).
		Model(&models.ResourceAccess{}).
		Where("resource_id = ?", resource.ID).
		Order("created_at ASC, user_id ASC").
		Pluck("user_id", &userIDs).Error; err != nil {
		return nil, fmt.Errorf("lookup access grants: %w", err)
	}
	if len(userIDs) == 0 {
		return nil, fmt.Errorf("resource %s: %w", resource.ID, ErrNoAccessGrant)
	}

	var lastErr error
	for _, userID := range userIDs {
		session, err := e.opener.Open(ctx, userID, resource.Provider)
		if err == nil {
			return session, nil
		}
		if !errors.Is(err, token.ErrNoCredential) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// ingestItem writes a top-level item and its replies in one transaction.
// Replies of a skipped item are skipped too, so a reply never exists without
// its parent.
func (e *Engine) ingestItem(ctx context.Context, resolver authorResolver, resource *models.Resource, item remote.Item) (ThreadResult, error) {
	var tally ThreadResult
	if item.Deleted {
		tally.Skipped += 1 + len(item.Replies)
		return tally, nil
	}

	err := e.db.WithContext(context.WithoutCancel(ctx)).Transaction(func(tx *gorm.DB) error {
		tally = ThreadResult{}
		parent, outcome, err := upsertItem(tx, resolver, resource, nil, item)
		if err != nil {
			return err
		}
		tally.count(outcome)
		if outcome == itemSkipped {
			tally.Skipped += len(item.Replies)
			logging.FromContext(ctx).Debug("💬 thread: skipped item without author", "external_id", item.ExternalID, "content", util.Snippet(item.Content))
			return nil
		}

		for _, reply := range item.Replies {
			if err := ctx.Err(); err != nil {
				return err
			}
			if reply.Deleted {
				tally.Skipped++
				continue
			}
			_, outcome, err := upsertItem(tx, resolver, resource, &parent.ID, reply)
			if err != nil {
				return err
			}
			tally.count(outcome)
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return ThreadResult{}, ctx.Err()
		}
		return ThreadResult{}, fmt.Errorf("ingest thread item %s: %w", item.ExternalID, err)
	}
	return tally, nil
}

// upsertItem creates the item or updates it when its content or resolved flag
// changed.
func upsertItem(tx *gorm.DB, resolver authorResolver, resource *models.Resource, parentID *string, item remote.Item) (*models.ThreadItem, itemOutcome, error) {
	author, ok, err := resolver.resolve(tx, item.Author)
	if err != nil {
		return nil, 0, err
	}
	if !ok {
		return nil, itemSkipped, nil
	}

	var existing models.ThreadItem
	err = tx.Where("provider = ? AND external_id = ?", resource.Provider, item.ExternalID).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		createdAt := item.CreatedAt
		updatedAt := item.ModifiedAt
		if updatedAt.IsZero() {
			updatedAt = createdAt
		}
		created := models.ThreadItem{
			ID:         uuid.New().String(),
			Provider:   resource.Provider,
			ExternalID: item.ExternalID,
			ResourceID: resource.ID,
			ParentID:   parentID,
			AuthorID:   author.ID,
			Content:    item.Content,
			Resolved:   item.Resolved,
			CreatedAt:  createdAt,
			UpdatedAt:  updatedAt,
		}
		if err := tx.Omit("Author", "Replies").Create(&created).Error; err != nil {
			return nil, 0, fmt.Errorf("create thread item: %w", err)
		}
		return &created, itemCreated, nil
	case err != nil:
		return nil, 0, fmt.Errorf("lookup thread item: %w", err)
	}

	if existing.Content == item.Content && existing.Resolved == item.Resolved {
		return &existing, itemUnchanged, nil
	}
	updates := map[string]any{
		"content":  item.Content,
		"resolved": item.Resolved,
	}
	if !item.ModifiedAt.IsZero() {
		updates["updated_at"] = item.ModifiedAt
	}
	if err := tx.Model(&models.ThreadItem{}).Where("id = ?", existing.ID).Updates(updates).Error; err != nil {
		return nil, 0, fmt.Errorf("update thread item: %w", err)
	}
	existing.Content, existing.Resolved = item.Content, item.Resolved
	return &existing, itemUpdated, nil
}
