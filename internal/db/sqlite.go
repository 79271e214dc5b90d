package db

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/glebarez/sqlite"
	"github.com/pysugar/workspace-mirror/internal/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// sqlitePragmas are appended to every DSN. busy_timeout lets concurrent sync
// tasks queue on the write lock instead of failing with SQLITE_BUSY.
const sqlitePragmas = "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"

// InitDB opens the SQLite database at dbPath and runs migrations.
// logLevel follows the application log level; "debug" turns on SQL logging.
func InitDB(dbPath string, logLevel string) (*gorm.DB, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	gormLevel := logger.Warn
	if strings.EqualFold(logLevel, "debug") {
		gormLevel = logger.Info
	}

	db, err := gorm.Open(sqlite.Open(dsn(dbPath)), &gorm.Config{
		Logger: logger.Default.LogMode(gormLevel),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite has a single writer; one connection avoids lock thrash between
	// the reconciliation transaction and concurrent readers.
	sqlDB.SetMaxOpenConns(1)

	if err := Migrate(db); err != nil {
		return nil, err
	}

	log.Debug("🗄️ database ready", "path", dbPath)
	return db, nil
}

// Migrate registers the access join table and auto-migrates all models.
func Migrate(db *gorm.DB) error {
	if err := db.SetupJoinTable(&models.Resource{}, "Users", &models.ResourceAccess{}); err != nil {
		return fmt.Errorf("setup resource join table: %w", err)
	}
	if err := db.SetupJoinTable(&models.User{}, "Resources", &models.ResourceAccess{}); err != nil {
		return fmt.Errorf("setup user join table: %w", err)
	}
	return db.AutoMigrate(
		&models.User{},
		&models.Credential{},
		&models.Resource{},
		&models.ProviderRecord{},
		&models.ResourceAccess{},
		&models.Author{},
		&models.ThreadItem{},
		&models.Config{},
		&models.SyncRun{},
	)
}

func dsn(dbPath string) string {
	if strings.Contains(dbPath, "?") {
		return dbPath + "&" + sqlitePragmas
	}
	return dbPath + "?" + sqlitePragmas
}
