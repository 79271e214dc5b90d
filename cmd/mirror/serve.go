package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pysugar/workspace-mirror/internal/api"
	"github.com/pysugar/workspace-mirror/internal/logging"
	"github.com/spf13/cobra"
)

const (
	tokenRefreshInterval = 5 * time.Minute
	shutdownTimeout      = 10 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and background workers",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.tokens.StartRefreshLoop(ctx, tokenRefreshInterval)
	if interval := a.cfg.Sync.Interval.Std(); interval > 0 {
		go a.periodicSync(ctx, interval)
	}

	srv := &http.Server{
		Addr: a.cfg.Addr(),
		Handler: api.NewRouter(api.Deps{
			DB:            a.db,
			Registry:      a.registry,
			Engine:        a.engine,
			Monitor:       a.monitor,
			RemoteTimeout: a.cfg.Sync.RemoteTimeout.Std(),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info("🚀 Workspace mirror starting", "addr", srv.Addr)
	log.Info("📊 Database", "path", a.cfg.Database.Path)
	log.Info("🔌 Providers", "enabled", a.registry.IDs())
	for _, id := range a.registry.IDs() {
		log.Info("🔐 OAuth login", "url", "http://"+srv.Addr+"/auth/"+id+"/login")
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("🛑 Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// periodicSync runs a recent-only file sync for every linked user and
// provider each interval.
func (a *app) periodicSync(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	log.Info("⏱️ Periodic sync enabled", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runCtx := logging.WithTaskID(ctx, logging.GenerateTaskID())
			reports, err := a.engine.SyncAllFiles(runCtx, true)
			if err != nil {
				logging.FromContext(runCtx).Warn("⚠️ Periodic sync finished with errors", "tasks", len(reports), "err", err)
				continue
			}
			logging.FromContext(runCtx).Info("✅ Periodic sync finished", "tasks", len(reports))
		}
	}
}
