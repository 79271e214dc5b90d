// Package logging configures the process logger and carries task IDs through
// context so a sync task's log lines can be correlated.
package logging

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

type contextKey string

const taskIDKey contextKey = "taskId"

// Setup configures the default logger. Unknown levels fall back to info.
func Setup(level string, w io.Writer) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	logger := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
		Level:           ParseLevel(level),
	})
	log.SetDefault(logger)
	return logger
}

// ParseLevel maps a config level name onto a log level.
func ParseLevel(level string) log.Level {
	lvl, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

// GenerateTaskID creates an 8-character hex task ID.
func GenerateTaskID() string {
	b := make([]byte, 4)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// WithTaskID injects a task ID into the context.
func WithTaskID(ctx context.Context, taskID string) context.Context {
	return context.WithValue(ctx, taskIDKey, taskID)
}

// GetTaskID returns the task ID from the context, or "".
func GetTaskID(ctx context.Context) string {
	if id, ok := ctx.Value(taskIDKey).(string); ok {
		return id
	}
	return ""
}

// EnsureTaskID returns ctx unchanged when it already carries a task ID.
func EnsureTaskID(ctx context.Context) context.Context {
	if GetTaskID(ctx) != "" {
		return ctx
	}
	return WithTaskID(ctx, GenerateTaskID())
}

// FromContext returns the default logger tagged with the context's task ID.
func FromContext(ctx context.Context) *log.Logger {
	if id := GetTaskID(ctx); id != "" {
		return log.With("task", id)
	}
	return log.Default()
}
