package sync

import (
	"context"
	"errors"

	"github.com/pysugar/workspace-mirror/internal/db/models"
	"github.com/pysugar/workspace-mirror/internal/logging"
)

// RunRecorder receives a record of every finished sync run.
type RunRecorder interface {
	Record(run models.SyncRun)
}

func (e *Engine) startRun(ctx context.Context, kind string) *models.SyncRun {
	return &models.SyncRun{
		StartedAt: e.opts.Now().UnixMilli(),
		Kind:      kind,
		TaskID:    logging.GetTaskID(ctx),
	}
}

func (e *Engine) finishFileRun(run *models.SyncRun, result FileSyncResult, err error) {
	if e.opts.Recorder == nil {
		return
	}
	run.Pages = result.Pages
	run.Created = result.Created
	run.Updated = result.Updated
	run.Granted = result.Granted
	run.Skipped = result.Skipped
	run.Cursor = result.LastCursor
	e.finishRun(run, err)
}

func (e *Engine) finishThreadRun(run *models.SyncRun, pages int, result ThreadResult, err error) {
	if e.opts.Recorder == nil {
		return
	}
	run.Pages = pages
	run.Created = result.Created
	run.Updated = result.Updated
	run.Unchanged = result.Unchanged
	run.Skipped = result.Skipped
	e.finishRun(run, err)
}

// finishRun stamps outcome and duration. Failed runs carry the cursor to
// resume from.
func (e *Engine) finishRun(run *models.SyncRun, err error) {
	run.Duration = e.opts.Now().UnixMilli() - run.StartedAt
	run.Status = models.RunStatusOK
	if err != nil {
		run.Status = models.RunStatusFailed
		run.Error = err.Error()

		var reconcileErr *ReconciliationFailedError
		var remoteErr *RemoteFailureError
		switch {
		case errors.As(err, &reconcileErr):
			run.Cursor = reconcileErr.Cursor
		case errors.As(err, &remoteErr):
			run.Cursor = remoteErr.Cursor
		}
	}
	e.opts.Recorder.Record(*run)
}
