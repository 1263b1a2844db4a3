package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fenceline/fenceline/audit"
	"github.com/fenceline/fenceline/coordinator"
	"github.com/fenceline/fenceline/discover"
	"github.com/fenceline/fenceline/transport"
	"github.com/fenceline/fenceline/types"
)

var (
	fenceAction      string
	fenceTarget      string
	fenceTimeout     time.Duration
	fenceNoDiscovery bool
	fenceLogDir      string
	fenceRequestDir  string
	fenceResponseDir string
)

// fenceCmd represents the fence command
var fenceCmd = &cobra.Command{
	Use:   "fence",
	Short: "Request fencing of a cluster node",
	Long: `Submit a fence request for a node and wait for the watcher daemon
to confirm it.

The request is written atomically to the shared request directory, the
implicated filesystems are discovered first (kubectl storage resources,
then cluster status, then cluster config), and the command blocks until
a matching response appears or the timeout expires.

Exit code 0 means fencing was confirmed. Anything else means the
cluster manager must retry or escalate.`,
	Example: `  fenceline fence --action reboot --target node-02
  fenceline fence --action off --target node-02 --timeout 90s
  fenceline fence --action status --target node-02 --no-discovery`,
	RunE: runFence,
}

func init() {
	rootCmd.AddCommand(fenceCmd)

	fenceCmd.Flags().StringVar(&fenceAction, "action", types.ActionReboot, "Fence action (on, off, reboot, status)")
	fenceCmd.Flags().StringVar(&fenceTarget, "target", "", "Node to fence (required)")
	fenceCmd.Flags().DurationVar(&fenceTimeout, "timeout", 0, "Response timeout (default from config)")
	fenceCmd.Flags().BoolVar(&fenceNoDiscovery, "no-discovery", false, "Skip filesystem discovery")
	fenceCmd.Flags().StringVar(&fenceLogDir, "log-dir", "", "Event log directory override")
	fenceCmd.Flags().StringVar(&fenceRequestDir, "request-dir", "", "Request directory override")
	fenceCmd.Flags().StringVar(&fenceResponseDir, "response-dir", "", "Response directory override")
	_ = fenceCmd.MarkFlagRequired("target")
}

func runFence(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(fenceLogDir, fenceRequestDir, fenceResponseDir)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log.Level)

	log, err := audit.Open(cfg.Paths.LogDir)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	defer func() { _ = log.Close() }()

	store, err := transport.NewStore(cfg.Paths.RequestDir, cfg.Paths.ResponseDir)
	if err != nil {
		return fmt.Errorf("open transport: %w", err)
	}
	store.SetPollInterval(cfg.Fence.PollInterval)

	runner := &discover.ExecRunner{}
	chain := discover.NewChain(logger,
		discover.NewKubeStorage(runner, cfg.Fence.KubectlCmd),
		discover.NewClusterStatus(runner, cfg.Fence.PCSCmd),
		discover.NewClusterConfig(runner, cfg.Fence.PCSCmd),
	)

	timeout := cfg.Fence.Timeout
	if fenceTimeout > 0 {
		timeout = fenceTimeout
	}

	coord := coordinator.New(chain, store, log, coordinator.Config{
		ResponseTimeout:  timeout,
		DiscoveryEnabled: cfg.Fence.DiscoveryEnabled && !fenceNoDiscovery,
	})

	result := coord.Run(cmd.Context(), fenceAction, fenceTarget)

	logger.Info().
		Str("state", string(result.State)).
		Str("request_id", result.RequestID).
		Strs("filesystems", result.Filesystems).
		Msg(result.Message)

	if result.ExitCode() != 0 {
		return fmt.Errorf("fence %s of %s: %s", fenceAction, fenceTarget, result.Message)
	}
	return nil
}
