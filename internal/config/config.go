// Package config handles YAML configuration for fenceline.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Paths   PathsConfig   `yaml:"paths"`
	Fence   FenceConfig   `yaml:"fence"`
	Watcher WatcherConfig `yaml:"watcher"`
	OTEL    OTELConfig    `yaml:"otel"`
	Log     LogConfig     `yaml:"log"`
}

// PathsConfig holds the shared filesystem locations. The request and
// response directories must be on storage visible to both the coordinator
// and the watcher.
type PathsConfig struct {
	LogDir      string `yaml:"log_dir"`
	RequestDir  string `yaml:"request_dir"`
	ResponseDir string `yaml:"response_dir"`
}

// FenceConfig holds coordinator-side settings.
type FenceConfig struct {
	TimeoutStr      string        `yaml:"timeout"`
	Timeout         time.Duration `yaml:"-"`
	PollIntervalStr string        `yaml:"poll_interval"`
	PollInterval    time.Duration `yaml:"-"`

	// DiscoveryEnabledRaw distinguishes "unset" from an explicit false;
	// discovery defaults to on.
	DiscoveryEnabledRaw *bool `yaml:"discovery_enabled"`
	DiscoveryEnabled    bool  `yaml:"-"`

	KubectlCmd string `yaml:"kubectl_cmd"`
	PCSCmd     string `yaml:"pcs_cmd"`
}

// WatcherConfig holds executor daemon settings.
type WatcherConfig struct {
	Fencer            string `yaml:"fencer"`
	FenceCommand      string `yaml:"fence_command"`
	AWSRegion         string `yaml:"aws_region"`
	IndexPath         string        `yaml:"index_path"`
	RescanIntervalStr string        `yaml:"rescan_interval"`
	RescanInterval    time.Duration `yaml:"-"`
	ActionTimeoutStr  string        `yaml:"action_timeout"`
	ActionTimeout     time.Duration `yaml:"-"`
	MetricsAddr       string        `yaml:"metrics_addr"`
}

// OTELConfig holds OpenTelemetry settings.
type OTELConfig struct {
	Endpoint    string `yaml:"endpoint"`
	Insecure    bool   `yaml:"insecure"`
	ServiceName string `yaml:"service_name"`
	Enabled     bool   `yaml:"enabled"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Fencer backends the watcher can run with.
const (
	FencerSimulate = "simulate"
	FencerExec     = "exec"
	FencerAWSEC2   = "aws-ec2"
)

// Load reads a YAML config file, applies defaults and environment
// overrides, and validates the result. An empty path yields the built-in
// defaults (still subject to environment overrides).
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 -- path is intentional user input
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	if err := parseDurations(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Paths.LogDir == "" {
		cfg.Paths.LogDir = "/var/log/fenceline"
	}
	if cfg.Paths.RequestDir == "" {
		cfg.Paths.RequestDir = "/var/lib/fenceline/requests"
	}
	if cfg.Paths.ResponseDir == "" {
		cfg.Paths.ResponseDir = "/var/lib/fenceline/responses"
	}
	if cfg.Fence.TimeoutStr == "" {
		cfg.Fence.TimeoutStr = "60s"
	}
	if cfg.Fence.PollIntervalStr == "" {
		cfg.Fence.PollIntervalStr = "500ms"
	}
	cfg.Fence.DiscoveryEnabled = true
	if cfg.Fence.DiscoveryEnabledRaw != nil {
		cfg.Fence.DiscoveryEnabled = *cfg.Fence.DiscoveryEnabledRaw
	}
	if cfg.Fence.KubectlCmd == "" {
		cfg.Fence.KubectlCmd = "kubectl"
	}
	if cfg.Fence.PCSCmd == "" {
		cfg.Fence.PCSCmd = "pcs"
	}
	if cfg.Watcher.Fencer == "" {
		cfg.Watcher.Fencer = FencerSimulate
	}
	if cfg.Watcher.IndexPath == "" {
		cfg.Watcher.IndexPath = "/var/lib/fenceline/processed.db"
	}
	if cfg.Watcher.RescanIntervalStr == "" {
		cfg.Watcher.RescanIntervalStr = "2s"
	}
	if cfg.Watcher.ActionTimeoutStr == "" {
		cfg.Watcher.ActionTimeoutStr = "30s"
	}
	if cfg.Watcher.MetricsAddr == "" {
		cfg.Watcher.MetricsAddr = ":9464"
	}
	if cfg.OTEL.ServiceName == "" {
		cfg.OTEL.ServiceName = "fenceline"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// applyEnvOverrides lets operators override file settings without editing
// the config, which is how the resource agent passes per-cluster paths.
func applyEnvOverrides(cfg *Config) {
	setIfEnv("FENCE_LOG_DIR", &cfg.Paths.LogDir)
	setIfEnv("FENCE_REQUEST_DIR", &cfg.Paths.RequestDir)
	setIfEnv("FENCE_RESPONSE_DIR", &cfg.Paths.ResponseDir)
	setIfEnv("FENCE_TIMEOUT", &cfg.Fence.TimeoutStr)
	setIfEnv("FENCE_POLL_INTERVAL", &cfg.Fence.PollIntervalStr)
	setIfEnv("KUBECTL_CMD", &cfg.Fence.KubectlCmd)
	setIfEnv("PCS_CMD", &cfg.Fence.PCSCmd)

	if v, ok := os.LookupEnv("FENCE_DISCOVERY_ENABLED"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Fence.DiscoveryEnabled = b
		}
	}
}

func setIfEnv(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func parseDurations(cfg *Config) error {
	pairs := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"fence.timeout", cfg.Fence.TimeoutStr, &cfg.Fence.Timeout},
		{"fence.poll_interval", cfg.Fence.PollIntervalStr, &cfg.Fence.PollInterval},
		{"watcher.rescan_interval", cfg.Watcher.RescanIntervalStr, &cfg.Watcher.RescanInterval},
		{"watcher.action_timeout", cfg.Watcher.ActionTimeoutStr, &cfg.Watcher.ActionTimeout},
	}
	for _, p := range pairs {
		d, err := time.ParseDuration(p.raw)
		if err != nil {
			return fmt.Errorf("parse %s %q: %w", p.name, p.raw, err)
		}
		*p.dst = d
	}
	return nil
}

// Validate checks the configuration is valid.
func (c *Config) Validate() error {
	if c.Paths.RequestDir == c.Paths.ResponseDir {
		return fmt.Errorf("paths: request_dir and response_dir must differ")
	}
	if c.Fence.Timeout <= 0 {
		return fmt.Errorf("fence: timeout must be positive (got %v)", c.Fence.Timeout)
	}
	if c.Fence.PollInterval <= 0 {
		return fmt.Errorf("fence: poll_interval must be positive (got %v)", c.Fence.PollInterval)
	}
	switch c.Watcher.Fencer {
	case FencerSimulate, FencerExec, FencerAWSEC2:
	default:
		return fmt.Errorf("watcher: unknown fencer %q", c.Watcher.Fencer)
	}
	if c.Watcher.Fencer == FencerExec && c.Watcher.FenceCommand == "" {
		return fmt.Errorf("watcher: fence_command required for exec fencer")
	}
	if c.Watcher.Fencer == FencerAWSEC2 && c.Watcher.AWSRegion == "" {
		return fmt.Errorf("watcher: aws_region required for aws-ec2 fencer")
	}
	return nil
}
