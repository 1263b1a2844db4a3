package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fenceline/fenceline/transport"
)

var (
	cleanupMaxAge      time.Duration
	cleanupRequestDir  string
	cleanupResponseDir string
)

// cleanupCmd represents the cleanup command
var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove old request and response files",
	Long: `Remove exchange files older than the retention window from the
shared request and response directories.

Retention is strictly out of band: neither the coordinator nor the
watcher ever deletes exchange files in the fencing path. Run this from
cron or a systemd timer. The event log is never touched.`,
	Example: `  fenceline cleanup                 # Remove files older than 7 days
  fenceline cleanup --max-age 24h   # Tighter retention`,
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)

	cleanupCmd.Flags().DurationVar(&cleanupMaxAge, "max-age", 7*24*time.Hour, "Remove exchange files older than this")
	cleanupCmd.Flags().StringVar(&cleanupRequestDir, "request-dir", "", "Request directory override")
	cleanupCmd.Flags().StringVar(&cleanupResponseDir, "response-dir", "", "Response directory override")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig("", cleanupRequestDir, cleanupResponseDir)
	if err != nil {
		return err
	}

	store, err := transport.NewStore(cfg.Paths.RequestDir, cfg.Paths.ResponseDir)
	if err != nil {
		return fmt.Errorf("open transport: %w", err)
	}

	stats, err := store.Cleanup(cleanupMaxAge)
	if err != nil {
		return fmt.Errorf("cleanup: %w", err)
	}

	fmt.Printf("Removed %d files (%d bytes)\n", stats.FilesRemoved, stats.BytesFreed)
	if stats.FilesRemoved > 0 {
		fmt.Printf("Oldest removed: %s\n", stats.OldestRemoved.Format(time.RFC3339))
		fmt.Printf("Newest removed: %s\n", stats.NewestRemoved.Format(time.RFC3339))
	}
	return nil
}
