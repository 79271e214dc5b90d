// Package sync mirrors remote resources and their comment threads into the
// local store.
package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"github.com/pysugar/workspace-mirror/internal/auth/token"
	mirrordb "github.com/pysugar/workspace-mirror/internal/db"
	"github.com/pysugar/workspace-mirror/internal/db/models"
	"github.com/pysugar/workspace-mirror/internal/logging"
	"github.com/pysugar/workspace-mirror/internal/remote"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// Options tune an Engine. Zero values take the defaults below.
type Options struct {
	// Window bounds recent-only syncs to resources modified this far back.
	Window         time.Duration
	PageSize       int
	ThreadPageSize int
	// Workers caps parallel tasks in SyncAllFiles and IngestAllThreads.
	Workers int
	Policy  ChangePolicy
	Now     func() time.Time
	// Recorder, when set, receives every finished SyncFiles and IngestThread run.
	Recorder RunRecorder
}

const (
	DefaultWindow         = 14 * 24 * time.Hour
	DefaultPageSize       = 1000
	DefaultThreadPageSize = 100
	DefaultWorkers        = 4
)

func (o Options) withDefaults() Options {
	if o.Window <= 0 {
		o.Window = DefaultWindow
	}
	if o.PageSize <= 0 {
		o.PageSize = DefaultPageSize
	}
	if o.ThreadPageSize <= 0 {
		o.ThreadPageSize = DefaultThreadPageSize
	}
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if o.Policy == nil {
		o.Policy = DayGranularity{}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Engine runs file syncs and thread ingestion.
type Engine struct {
	db         *gorm.DB
	opener     remote.Opener
	opts       Options
	reconciler *Reconciler
}

// NewEngine creates a sync engine over a store and a session opener.
func NewEngine(db *gorm.DB, opener remote.Opener, opts Options) *Engine {
	opts = opts.withDefaults()
	reconciler := NewReconciler(db, opts.Policy)
	reconciler.now = opts.Now
	return &Engine{db: db, opener: opener, opts: opts, reconciler: reconciler}
}

// FileSyncRequest selects what SyncFiles lists.
type FileSyncRequest struct {
	UserID   string
	Provider string
	// RecentOnly bounds the listing to the configured window.
	RecentOnly bool
	// Cursor resumes a previous sync at that page.
	Cursor string
}

// FileSyncResult summarizes a completed file sync.
type FileSyncResult struct {
	PageResult
	Pages      int    `json:"pages"`
	LastCursor string `json:"last_cursor"`
}

// SyncFiles lists the user's resources on a provider and reconciles each page
// before requesting the next.
func (e *Engine) SyncFiles(ctx context.Context, req FileSyncRequest) (result FileSyncResult, err error) {
	ctx = logging.EnsureTaskID(ctx)
	logger := logging.FromContext(ctx)
	run := e.startRun(ctx, models.RunKindFiles)
	run.UserID, run.Provider = req.UserID, req.Provider
	defer func() { e.finishFileRun(run, result, err) }()

	user, err := mirrordb.FindUser(e.db.WithContext(ctx), req.UserID)
	if err != nil {
		return result, err
	}
	run.UserID = user.ID
	session, err := e.opener.Open(ctx, user.ID, req.Provider)
	if err != nil {
		return result, err
	}

	var filter remote.Filter
	if req.RecentOnly {
		since := e.opts.Now().Add(-e.opts.Window).UTC()
		filter.ModifiedSince = &since
	}
	logger.Info("📄 sync: started", "user", user.ID, "provider", session.Provider(), "recent", req.RecentOnly, "cursor", req.Cursor)

	fetch := func(ctx context.Context, cursor string) (string, error) {
		var page *remote.Page
		err := session.Do(ctx, "files.list", func(ctx context.Context, c remote.Client) error {
			var err error
			page, err = c.ListResources(ctx, filter, cursor, e.opts.PageSize)
			return err
		})
		if err != nil {
			return "", e.remoteFailure(ctx, session.Provider(), "files.list", cursor, err)
		}
		if page == nil {
			return "", nil
		}

		// A fetched page is applied even if ctx is cancelled meanwhile;
		// cancellation takes effect before the next fetch.
		applied, err := e.reconciler.Reconcile(context.WithoutCancel(ctx), user.ID, session.Provider(), page.Records)
		if err != nil {
			var failed *ReconciliationFailedError
			if errors.As(err, &failed) {
				failed.Page = result.Pages + 1
				failed.Cursor = cursor
			}
			return "", err
		}
		result.Pages++
		result.add(applied)
		logger.Debug("📄 sync: page reconciled", "provider", session.Provider(), "cursor", cursor,
			"records", len(page.Records), "created", applied.Created, "updated", applied.Updated)
		return page.NextCursor, nil
	}

	_, last, err := Drain(ctx, req.Cursor, fetch)
	result.LastCursor = last
	if err != nil {
		logger.Error("❌ sync: failed", "user", user.ID, "provider", session.Provider(), "cursor", last, "err", err)
		return result, err
	}
	logger.Info("✅ sync: finished", "user", user.ID, "provider", session.Provider(), "pages", result.Pages,
		"created", result.Created, "updated", result.Updated, "granted", result.Granted, "skipped", result.Skipped)
	return result, nil
}

// remoteFailure logs a failed remote call with enough context to resume and
// classifies it. Expired credentials and cancellation pass through unchanged.
func (e *Engine) remoteFailure(ctx context.Context, provider, operation, cursor string, err error) error {
	logging.FromContext(ctx).Error("⚠️ remote call failed", "provider", provider, "operation", operation, "cursor", cursor, "err", err)
	if errors.Is(err, token.ErrCredentialsExpired) || errors.Is(err, context.Canceled) {
		return err
	}
	return &RemoteFailureError{Provider: provider, Operation: operation, Cursor: cursor, Err: err}
}

// TaskReport is the outcome of one task in a fan-out run.
type TaskReport struct {
	UserID     string
	Provider   string
	ResourceID string
	Files      FileSyncResult
	Threads    ThreadResult
	Err        error
}

// SyncAllFiles syncs every stored credential in parallel. A failing task does
// not stop the others; all failures are joined into the returned error.
func (e *Engine) SyncAllFiles(ctx context.Context, recentOnly bool) ([]TaskReport, error) {
	var creds []models.Credential
	if err := e.db.WithContext(ctx).
		Select("user_id", "provider").
		Order("user_id, provider").
		Find(&creds).Error; err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}

	reports := make([]TaskReport, len(creds))
	g := new(errgroup.Group)
	g.SetLimit(e.opts.Workers)
	for i, cred := range creds {
		g.Go(func() error {
			taskCtx := logging.WithTaskID(ctx, logging.GenerateTaskID())
			res, err := e.SyncFiles(taskCtx, FileSyncRequest{UserID: cred.UserID, Provider: cred.Provider, RecentOnly: recentOnly})
			reports[i] = TaskReport{UserID: cred.UserID, Provider: cred.Provider, Files: res, Err: err}
			return nil
		})
	}
	g.Wait()
	return reports, joinReports(reports)
}

// IngestAllThreads ingests the threads of every resource granted to a user.
func (e *Engine) IngestAllThreads(ctx context.Context, userID string) (ThreadResult, error) {
	var total ThreadResult
	user, err := mirrordb.FindUser(e.db.WithContext(ctx), userID)
	if err != nil {
		return total, err
	}

	var resourceIDs []string
	if err := e.db.WithContext(ctx).
		Model(&models.ResourceAccess{}).
		Where("user_id = ?", user.ID).
		Order("resource_id").
		Pluck("resource_id", &resourceIDs).Error; err != nil {
		return total, fmt.Errorf("list granted resources: %w", err)
	}

	reports := make([]TaskReport, len(resourceIDs))
	g := new(errgroup.Group)
	g.SetLimit(e.opts.Workers)
	var mu gosync.Mutex
	for i, id := range resourceIDs {
		g.Go(func() error {
			taskCtx := logging.WithTaskID(ctx, logging.GenerateTaskID())
			res, err := e.IngestThread(taskCtx, id)
			reports[i] = TaskReport{UserID: user.ID, ResourceID: id, Threads: res, Err: err}
			mu.Lock()
			total.add(res)
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
	return total, joinReports(reports)
}

func joinReports(reports []TaskReport) error {
	var errs []error
	for _, r := range reports {
		if r.Err == nil {
			continue
		}
		switch {
		case r.ResourceID != "":
			errs = append(errs, fmt.Errorf("resource %s: %w", r.ResourceID, r.Err))
		default:
			errs = append(errs, fmt.Errorf("user %s provider %s: %w", r.UserID, r.Provider, r.Err))
		}
	}
	return errors.Join(errs...)
}
