package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/spf13/cobra"

	"github.com/fenceline/fenceline/internal/config"
	"github.com/fenceline/fenceline/internal/telemetry"
	"github.com/fenceline/fenceline/transport"
	"github.com/fenceline/fenceline/watcher"
)

var (
	watchFencer       string
	watchFenceCommand string
	watchAWSRegion    string
	watchIndexPath    string
	watchMetricsAddr  string
	watchRequestDir   string
	watchResponseDir  string
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the fence executor daemon",
	Long: `Run the watcher daemon that executes fence requests.

The watcher observes the shared request directory (inotify plus a
polling rescan for network filesystems), performs each request through
the configured fencing backend, and writes the response file the
coordinator is waiting on. Requests are processed sequentially and
exactly once per request ID, surviving restarts.

Backends:
  simulate   succeed without touching anything (testing)
  exec       invoke an external fence agent binary
  aws-ec2    stop/reboot the target's EC2 instance by Name tag`,
	Example: `  fenceline watch --fencer exec --fence-command /usr/sbin/fence_ipmilan
  fenceline watch --fencer aws-ec2 --aws-region us-east-1
  fenceline watch --fencer simulate --request-dir /tmp/req --response-dir /tmp/resp`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVar(&watchFencer, "fencer", "", "Fencing backend (simulate, exec, aws-ec2)")
	watchCmd.Flags().StringVar(&watchFenceCommand, "fence-command", "", "External fence agent for the exec backend")
	watchCmd.Flags().StringVar(&watchAWSRegion, "aws-region", "", "Region for the aws-ec2 backend")
	watchCmd.Flags().StringVar(&watchIndexPath, "index", "", "Processed-request index database path")
	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics", "", "Metrics server address")
	watchCmd.Flags().StringVar(&watchRequestDir, "request-dir", "", "Request directory override")
	watchCmd.Flags().StringVar(&watchResponseDir, "response-dir", "", "Response directory override")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig("", watchRequestDir, watchResponseDir)
	if err != nil {
		return err
	}
	applyWatchFlags(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	logger := newLogger(cfg.Log.Level)

	ctx := cmd.Context()

	provider, err := telemetry.NewProvider(ctx, cfg.OTEL)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = provider.Shutdown(shutdownCtx)
	}()

	metrics, err := watcher.NewMetrics()
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	fencer, err := buildFencer(ctx, cfg)
	if err != nil {
		return err
	}

	store, err := transport.NewStore(cfg.Paths.RequestDir, cfg.Paths.ResponseDir)
	if err != nil {
		return fmt.Errorf("open transport: %w", err)
	}

	w, err := watcher.New(store, fencer, logger, metrics, watcher.Config{
		IndexPath:      cfg.Watcher.IndexPath,
		RescanInterval: cfg.Watcher.RescanInterval,
		ActionTimeout:  cfg.Watcher.ActionTimeout,
	})
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = w.Close() }()

	logger.Info().
		Str("fencer", cfg.Watcher.Fencer).
		Str("request_dir", cfg.Paths.RequestDir).
		Str("response_dir", cfg.Paths.ResponseDir).
		Str("metrics_addr", cfg.Watcher.MetricsAddr).
		Msg("watcher starting")

	var g run.Group

	watchCtx, watchCancel := context.WithCancel(ctx)
	g.Add(func() error {
		return w.Run(watchCtx)
	}, func(error) {
		watchCancel()
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", provider.MetricsHandler())
	mux.HandleFunc("/health", func(rw http.ResponseWriter, _ *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok\n"))
	})
	srv := &http.Server{Addr: cfg.Watcher.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	g.Add(func() error {
		err := srv.ListenAndServe()
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}, func(error) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	})

	g.Add(run.SignalHandler(ctx, syscall.SIGINT, syscall.SIGTERM))

	err = g.Run()
	var sigErr run.SignalError
	if errors.As(err, &sigErr) || errors.Is(err, context.Canceled) {
		logger.Info().Msg("watcher stopped")
		return nil
	}
	return err
}

func applyWatchFlags(cfg *config.Config) {
	if watchFencer != "" {
		cfg.Watcher.Fencer = watchFencer
	}
	if watchFenceCommand != "" {
		cfg.Watcher.FenceCommand = watchFenceCommand
	}
	if watchAWSRegion != "" {
		cfg.Watcher.AWSRegion = watchAWSRegion
	}
	if watchIndexPath != "" {
		cfg.Watcher.IndexPath = watchIndexPath
	}
	if watchMetricsAddr != "" {
		cfg.Watcher.MetricsAddr = watchMetricsAddr
	}
}

func buildFencer(ctx context.Context, cfg *config.Config) (watcher.Fencer, error) {
	switch cfg.Watcher.Fencer {
	case config.FencerSimulate:
		return &watcher.SimulateFencer{}, nil
	case config.FencerExec:
		return &watcher.ExecFencer{Command: cfg.Watcher.FenceCommand}, nil
	case config.FencerAWSEC2:
		return watcher.NewEC2Fencer(ctx, cfg.Watcher.AWSRegion)
	default:
		return nil, fmt.Errorf("unknown fencer %q", cfg.Watcher.Fencer)
	}
}
