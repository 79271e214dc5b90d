package sync

import (
	"errors"
	"fmt"
)

// ErrNoAccessGrant means a resource has no granted user, so no credential can
// be chosen to read its threads.
var ErrNoAccessGrant = errors.New("resource has no access grant")

// ReconciliationFailedError is a page whose batch could not be applied. Page
// and Cursor locate the page so the sync can resume from Cursor.
type ReconciliationFailedError struct {
	Provider   string
	Page       int
	Cursor     string
	Index      int
	ExternalID string
	Err        error
}

func (e *ReconciliationFailedError) Error() string {
	return fmt.Sprintf("reconcile %s page %d (cursor %q): operation %d (%s): %v",
		e.Provider, e.Page, e.Cursor, e.Index, e.ExternalID, e.Err)
}

func (e *ReconciliationFailedError) Unwrap() error { return e.Err }

// RemoteFailureError is a remote call that failed after the session's single
// retry.
type RemoteFailureError struct {
	Provider  string
	Operation string
	Cursor    string
	Err       error
}

func (e *RemoteFailureError) Error() string {
	return fmt.Sprintf("%s %s (cursor %q): %v", e.Provider, e.Operation, e.Cursor, e.Err)
}

func (e *RemoteFailureError) Unwrap() error { return e.Err }
