package main

import (
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pysugar/workspace-mirror/internal/sync"
	"github.com/pysugar/workspace-mirror/internal/util"
	"github.com/spf13/cobra"
)

var (
	syncUser     string
	syncProvider string
	syncFull     bool
	syncCursor   string
	syncAll      bool
	syncResource string
	historyLimit int
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run a sync to completion",
}

var syncFilesCmd = &cobra.Command{
	Use:   "files",
	Short: "Mirror the documents or tasks a user can see",
	Long: `Mirror the documents or tasks a user can see on a provider.

By default only resources modified within the sync window are listed.
A failed sync reports the cursor of the failing page; pass it back with
--cursor to resume.

Examples:
  mirror sync files --user ada@example.com --provider google
  mirror sync files --user ada@example.com --provider asana --full
  mirror sync files --all`,
	RunE: runSyncFiles,
}

var syncCommentsCmd = &cobra.Command{
	Use:   "comments",
	Short: "Ingest comment threads of one resource or of every resource a user can see",
	RunE:  runSyncComments,
}

func init() {
	syncFilesCmd.Flags().StringVar(&syncUser, "user", "", "User id or email")
	syncFilesCmd.Flags().StringVar(&syncProvider, "provider", "", "Provider id (google, asana)")
	syncFilesCmd.Flags().BoolVar(&syncFull, "full", false, "List every resource instead of the recent window")
	syncFilesCmd.Flags().StringVar(&syncCursor, "cursor", "", "Resume from a page cursor")
	syncFilesCmd.Flags().BoolVar(&syncAll, "all", false, "Sync every user and linked provider")

	syncCommentsCmd.Flags().StringVar(&syncResource, "resource", "", "Resource id")
	syncCommentsCmd.Flags().StringVar(&syncUser, "user", "", "User id or email")

	syncHistoryCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of runs to show")

	syncCmd.AddCommand(syncFilesCmd)
	syncCmd.AddCommand(syncCommentsCmd)
	syncCmd.AddCommand(syncHistoryCmd)
}

var syncHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent sync runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		runs := a.monitor.Recent(historyLimit, 0)

		var b strings.Builder
		for _, r := range runs {
			target := r.Provider
			if r.ResourceID != "" {
				target = r.ResourceID
			}
			fmt.Fprintf(&b, "%s  %-8s  %-6s  %-36s  pages=%d created=%d updated=%d",
				time.UnixMilli(r.StartedAt).Format(time.DateTime), r.Kind, r.Status, target, r.Pages, r.Created, r.Updated)
			if r.Error != "" {
				fmt.Fprintf(&b, "  cursor=%q err=%s", r.Cursor, util.Snippet(r.Error))
			}
			b.WriteString("\n")
		}
		stats := a.monitor.Stats()
		fmt.Fprintf(&b, "%d runs, %d ok, %d failed", stats.TotalRuns, stats.SuccessCount, stats.ErrorCount)
		return printResult(map[string]any{"runs": runs, "stats": stats}, b.String())
	},
}

func runSyncFiles(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if syncAll {
		reports, err := a.engine.SyncAllFiles(ctx, !syncFull)
		if perr := printResult(reports, fmt.Sprintf("Synced %d user/provider pairs", len(reports))); perr != nil {
			return perr
		}
		return err
	}

	if syncUser == "" || syncProvider == "" {
		return errors.New("--user and --provider are required unless --all is set")
	}
	p, ok := a.registry.Get(syncProvider)
	if !ok {
		return fmt.Errorf("unknown provider %q", syncProvider)
	}

	result, err := a.engine.SyncFiles(ctx, sync.FileSyncRequest{
		UserID:     syncUser,
		Provider:   p.ID,
		RecentOnly: !syncFull,
		Cursor:     syncCursor,
	})
	if err != nil {
		var failed *sync.ReconciliationFailedError
		if errors.As(err, &failed) {
			return fmt.Errorf("%w (resume with --cursor=%q)", err, failed.Cursor)
		}
		var remoteErr *sync.RemoteFailureError
		if errors.As(err, &remoteErr) {
			return fmt.Errorf("%w (resume with --cursor=%q)", err, remoteErr.Cursor)
		}
		return err
	}
	return printResult(result, fmt.Sprintf("%d pages: %d created, %d updated, %d granted, %d skipped",
		result.Pages, result.Created, result.Updated, result.Granted, result.Skipped))
}

func runSyncComments(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var result sync.ThreadResult
	switch {
	case syncResource != "":
		result, err = a.engine.IngestThread(ctx, syncResource)
	case syncUser != "":
		result, err = a.engine.IngestAllThreads(ctx, syncUser)
	default:
		return errors.New("--resource or --user is required")
	}
	if err != nil {
		return err
	}
	return printResult(result, fmt.Sprintf("%d created, %d updated, %d unchanged, %d skipped",
		result.Created, result.Updated, result.Unchanged, result.Skipped))
}
