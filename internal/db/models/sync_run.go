package models

// Sync run kinds.
const (
	RunKindFiles    = "files"
	RunKindComments = "comments"
)

// Sync run outcomes.
const (
	RunStatusOK     = "ok"
	RunStatusFailed = "failed"
)

// SyncRun records one SyncFiles or IngestThread invocation.
type SyncRun struct {
	ID         string `gorm:"primaryKey" json:"id"`
	StartedAt  int64  `gorm:"index" json:"started_at"` // unix millis
	Duration   int64  `json:"duration"`                // milliseconds
	Kind       string `gorm:"index" json:"kind"`
	TaskID     string `json:"task_id,omitempty"`
	UserID     string `gorm:"index" json:"user_id,omitempty"`
	Provider   string `gorm:"index" json:"provider,omitempty"`
	ResourceID string `json:"resource_id,omitempty"`
	Status     string `json:"status"`
	Pages      int    `json:"pages"`
	Created    int    `json:"created"`
	Updated    int    `json:"updated"`
	Granted    int    `json:"granted,omitempty"`
	Unchanged  int    `json:"unchanged,omitempty"`
	Skipped    int    `json:"skipped"`
	// Cursor is the last page reached, or the failing page's cursor.
	Cursor string `json:"cursor,omitempty"`
	Error  string `gorm:"type:text" json:"error,omitempty"`
}

// RunStats aggregates sync runs.
type RunStats struct {
	TotalRuns    int64 `json:"total_runs"`
	SuccessCount int64 `json:"success_count"`
	ErrorCount   int64 `json:"error_count"`
}
