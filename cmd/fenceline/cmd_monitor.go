package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fenceline/fenceline/audit"
	"github.com/fenceline/fenceline/coordinator"
)

var monitorLogDir string

// monitorCmd represents the monitor command
var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Health check for the cluster resource manager",
	Long: `Check that the agent can do its job: the event log directory must
exist and be writable. Discovery tooling is probed but only reported,
never fatal.

Exit code 0 means healthy. The check leaves no audit records; the
cluster manager runs it on an interval.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)

	monitorCmd.Flags().StringVar(&monitorLogDir, "log-dir", "", "Event log directory override")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(monitorLogDir, "", "")
	if err != nil {
		return err
	}

	log, err := audit.Open(cfg.Paths.LogDir)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	defer func() { _ = log.Close() }()

	coord := coordinator.New(nil, nil, log, coordinator.Config{
		DiscoveryEnabled: cfg.Fence.DiscoveryEnabled,
	})
	if err := coord.Monitor(cfg.Fence.KubectlCmd); err != nil {
		return fmt.Errorf("monitor: %w", err)
	}
	return nil
}
