// Package monitor keeps a history of sync runs with running totals.
package monitor

import (
	"fmt"
	gosync "sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/pysugar/workspace-mirror/internal/db/models"
	"github.com/pysugar/workspace-mirror/internal/util"
	"gorm.io/gorm"
)

const (
	// MaxMemoryRuns bounds the in-memory cache of recent runs.
	MaxMemoryRuns = 100
	// maxErrorLen bounds the stored error text.
	maxErrorLen = 2048
)

// Monitor records sync runs to the database and keeps the latest in memory.
type Monitor struct {
	db *gorm.DB

	recent []models.SyncRun
	mu     gosync.RWMutex

	totalRuns    atomic.Int64
	successCount atomic.Int64
	errorCount   atomic.Int64
}

// NewMonitor loads totals from previously recorded runs.
func NewMonitor(db *gorm.DB) *Monitor {
	m := &Monitor{
		db:     db,
		recent: make([]models.SyncRun, 0, MaxMemoryRuns),
	}
	m.loadStats()
	return m
}

// Record stores a finished run. Storage failures are logged, not returned, so
// they never fail the sync itself.
func (m *Monitor) Record(run models.SyncRun) {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.StartedAt == 0 {
		run.StartedAt = time.Now().UnixMilli()
	}
	run.Error = util.TruncateLog(run.Error, maxErrorLen)

	m.totalRuns.Add(1)
	if run.Status == models.RunStatusOK {
		m.successCount.Add(1)
	} else {
		m.errorCount.Add(1)
	}

	m.mu.Lock()
	m.recent = append([]models.SyncRun{run}, m.recent...)
	if len(m.recent) > MaxMemoryRuns {
		m.recent = m.recent[:MaxMemoryRuns]
	}
	m.mu.Unlock()

	if err := m.db.Create(&run).Error; err != nil {
		log.Warn("⚠️ Failed to save sync run", "id", run.ID, "err", err)
	}
}

// Recent returns up to limit runs, newest first, optionally only those that
// started within the last sinceMinutes.
func (m *Monitor) Recent(limit, sinceMinutes int) []models.SyncRun {
	if limit <= 0 {
		limit = MaxMemoryRuns
	}

	var runs []models.SyncRun
	query := m.db.Order("started_at DESC").Limit(limit)
	if sinceMinutes > 0 {
		since := time.Now().Add(-time.Duration(sinceMinutes) * time.Minute).UnixMilli()
		query = query.Where("started_at >= ?", since)
	}
	if err := query.Find(&runs).Error; err != nil {
		log.Warn("⚠️ Failed to load sync runs, serving from memory", "err", err)
		m.mu.RLock()
		defer m.mu.RUnlock()
		if limit > len(m.recent) {
			limit = len(m.recent)
		}
		return append([]models.SyncRun(nil), m.recent[:limit]...)
	}
	return runs
}

// Page returns one page of runs matching search, newest first, plus the total
// number of matches.
func (m *Monitor) Page(page, pageSize int, search string) ([]models.SyncRun, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = MaxMemoryRuns
	}

	query := m.db.Model(&models.SyncRun{})
	if search != "" {
		pattern := "%" + search + "%"
		query = query.Where("user_id LIKE ? OR provider LIKE ? OR resource_id LIKE ? OR error LIKE ?",
			pattern, pattern, pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count sync runs: %w", err)
	}
	var runs []models.SyncRun
	if err := query.Order("started_at DESC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&runs).Error; err != nil {
		return nil, 0, fmt.Errorf("list sync runs: %w", err)
	}
	return runs, total, nil
}

// Stats returns the running totals.
func (m *Monitor) Stats() models.RunStats {
	return models.RunStats{
		TotalRuns:    m.totalRuns.Load(),
		SuccessCount: m.successCount.Load(),
		ErrorCount:   m.errorCount.Load(),
	}
}

// Clear deletes the run history and resets the totals.
func (m *Monitor) Clear() error {
	m.mu.Lock()
	m.recent = m.recent[:0]
	m.mu.Unlock()

	m.totalRuns.Store(0)
	m.successCount.Store(0)
	m.errorCount.Store(0)

	if err := m.db.Where("1 = 1").Delete(&models.SyncRun{}).Error; err != nil {
		return fmt.Errorf("clear sync runs: %w", err)
	}
	log.Info("🧹 Sync run history cleared")
	return nil
}

func (m *Monitor) loadStats() {
	var total, success int64
	m.db.Model(&models.SyncRun{}).Count(&total)
	m.db.Model(&models.SyncRun{}).Where("status = ?", models.RunStatusOK).Count(&success)

	m.totalRuns.Store(total)
	m.successCount.Store(success)
	m.errorCount.Store(total - success)
	log.Debug("📈 Loaded sync run stats", "total", total, "success", success)
}
