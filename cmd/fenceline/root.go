package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/fenceline/fenceline/internal/config"
)

var (
	version = "0.1.0"

	configPath string
	debugMode  bool

	rootCmd = &cobra.Command{
		Use:   "fenceline",
		Short: "Shared-filesystem fence coordination",
		Long: `Fenceline - fence coordination over a shared filesystem

Fenceline coordinates cluster node fencing without a network control
plane. The coordinator (invoked by the cluster resource manager) writes
a fence request file to a shared directory; a watcher daemon on a
surviving node picks it up, drives the actual power or cloud API
fencing, and writes back a response file. Every step lands in an
append-only event log kept in three forms.`,
		Version: version,
	}
)

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// init sets up the root command
func init() {
	rootCmd.SetVersionTemplate(`Fenceline {{.Version}} - shared-filesystem fence coordination
`)
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (YAML)")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
}

// loadConfig loads the config file (or built-in defaults) and applies the
// shared directory override flags a command may carry.
func loadConfig(logDir, requestDir, responseDir string) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logDir != "" {
		cfg.Paths.LogDir = logDir
	}
	if requestDir != "" {
		cfg.Paths.RequestDir = requestDir
	}
	if responseDir != "" {
		cfg.Paths.ResponseDir = responseDir
	}
	return cfg, nil
}

// newLogger builds the process logger. The per-operation audit trail is
// separate; this is operator-facing output on stderr.
func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	if debugMode {
		lvl = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(lvl).
		With().Timestamp().Logger()
}
