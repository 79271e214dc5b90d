// Package main provides the mirror CLI: an HTTP server plus one-shot commands
// for managing users, credentials and syncs.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/pysugar/workspace-mirror/internal/auth/token"
	"github.com/pysugar/workspace-mirror/internal/config"
	"github.com/pysugar/workspace-mirror/internal/db"
	"github.com/pysugar/workspace-mirror/internal/logging"
	"github.com/pysugar/workspace-mirror/internal/monitor"
	"github.com/pysugar/workspace-mirror/internal/providers"
	"github.com/pysugar/workspace-mirror/internal/sync"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var (
	jsonOutput bool
	logLevel   string
)

// app holds the components every command needs.
type app struct {
	cfg      *config.Config
	db       *gorm.DB
	apiKey   string
	registry *providers.Registry
	tokens   *token.Manager
	engine   *sync.Engine
	monitor  *monitor.Monitor
}

var rootCmd = &cobra.Command{
	Use:   "mirror",
	Short: "Mirror Google Drive and Asana resources into a local database",
	Long: `mirror keeps a local SQLite copy of the documents, tasks and comment
threads each user can see on Google Drive and Asana.

Examples:
  mirror serve                                   # Run the HTTP API
  mirror user add --email ada@example.com        # Register a local user
  mirror auth login --provider google            # Link a Google account
  mirror sync files --user ada@example.com --provider google
  mirror sync comments --resource <id>`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(versionCmd)
}

// newApp loads .env and configuration, opens the database and wires the
// token manager and sync engine.
func newApp() (*app, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn("⚠️ Failed to load .env", "err", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	logging.Setup(cfg.Log.Level, os.Stderr)

	database, err := db.InitDB(cfg.Database.Path, cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("initialize database: %w", err)
	}
	apiKey, err := db.EnsureAPIKey(database, cfg.Server.APIKey)
	if err != nil {
		return nil, fmt.Errorf("ensure api key: %w", err)
	}

	policy, err := sync.PolicyByName(cfg.Sync.ChangeDetection)
	if err != nil {
		return nil, err
	}

	registry := providers.NewRegistry(cfg)
	tokens := token.NewManager(database, registry, cfg.Sync.RemoteTimeout.Std())
	mon := monitor.NewMonitor(database)
	engine := sync.NewEngine(database, tokens, sync.Options{
		Window:         cfg.Sync.Window.Std(),
		PageSize:       cfg.Sync.PageSize,
		ThreadPageSize: cfg.Sync.ThreadPageSize,
		Workers:        cfg.Sync.Workers,
		Policy:         policy,
		Now:            time.Now,
		Recorder:       mon,
	})

	return &app{
		cfg:      cfg,
		db:       database,
		apiKey:   apiKey,
		registry: registry,
		tokens:   tokens,
		engine:   engine,
		monitor:  mon,
	}, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error("❌ " + err.Error())
		os.Exit(1)
	}
}
