// Package config loads the merged runtime configuration — defaults,
// then a YAML file, then AURA_* environment variables, then CLI flags —
// following the Parameters/DefaultParams/MainnetParams preset
// shape.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aura-id/aura/internal/errs"
)

// Config holds every tunable the runtime needs outside code.
type Config struct {
	StorageDir string        `yaml:"storage_dir"`
	ListenAddr string        `yaml:"listen_addr"`
	LogLevel   string        `yaml:"log_level"`

	FlowBudgetLimit   uint64        `yaml:"flow_budget_limit"`
	LeakageExternal   uint64        `yaml:"leakage_external"`
	LeakageNeighbor   uint64        `yaml:"leakage_neighbor"`
	LeakageInGroup    uint64        `yaml:"leakage_in_group"`

	FastPathValidityWindow time.Duration `yaml:"fast_path_validity_window"`
	FallbackTimeout        time.Duration `yaml:"fallback_timeout"`

	RecoveryDisputeWindow          time.Duration `yaml:"recovery_dispute_window"`
	RecoveryEmergencyDisputeWindow time.Duration `yaml:"recovery_emergency_dispute_window"`

	ChannelIdleTimeout time.Duration `yaml:"channel_idle_timeout"`

	MetricsAddr string `yaml:"metrics_addr"`
}

// Default returns sensible defaults for local/dev use.
func Default() *Config {
	return &Config{
		StorageDir:                     "./data",
		ListenAddr:                     "127.0.0.1:9700",
		LogLevel:                       "info",
		FlowBudgetLimit:                10_000,
		LeakageExternal:                1_000,
		LeakageNeighbor:                5_000,
		LeakageInGroup:                 20_000,
		FastPathValidityWindow:         30 * time.Second,
		FallbackTimeout:                2 * time.Minute,
		RecoveryDisputeWindow:          72 * time.Hour,
		RecoveryEmergencyDisputeWindow: 6 * time.Hour,
		ChannelIdleTimeout:             10 * time.Minute,
		MetricsAddr:                    "127.0.0.1:9701",
	}
}

// Production raises the flow budget limit, shortens the fallback timeout
// and logs at warn level for a production deployment.
func Production() *Config {
	c := Default()
	c.LogLevel = "warn"
	c.FlowBudgetLimit = 100_000
	c.FallbackTimeout = 30 * time.Second
	return c
}

// Development loosens timeouts for interactive local use.
func Development() *Config {
	c := Default()
	c.LogLevel = "debug"
	c.FallbackTimeout = 5 * time.Minute
	return c
}

// LoadFile merges a YAML file over the receiver's current values.
func (c *Config) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(b, c)
}

// LoadEnv merges AURA_* environment variables over the receiver.
func (c *Config) LoadEnv() error {
	if v, ok := os.LookupEnv("AURA_STORAGE_DIR"); ok {
		c.StorageDir = v
	}
	if v, ok := os.LookupEnv("AURA_LISTEN_ADDR"); ok {
		c.ListenAddr = v
	}
	if v, ok := os.LookupEnv("AURA_LOG_LEVEL"); ok {
		c.LogLevel = v
	}
	if v, ok := os.LookupEnv("AURA_FLOW_BUDGET_LIMIT"); ok {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: AURA_FLOW_BUDGET_LIMIT: %v", errs.ErrConfiguration, err)
		}
		c.FlowBudgetLimit = n
	}
	if v, ok := os.LookupEnv("AURA_FALLBACK_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: AURA_FALLBACK_TIMEOUT: %v", errs.ErrConfiguration, err)
		}
		c.FallbackTimeout = d
	}
	if v, ok := os.LookupEnv("AURA_METRICS_ADDR"); ok {
		c.MetricsAddr = v
	}
	return nil
}

// Flags are the CLI-flag overrides, the last and highest-priority layer
// in the defaults < file < env < CLI merge order.
type Flags struct {
	StorageDir *string
	ListenAddr *string
	LogLevel   *string
}

// ApplyFlags merges any non-nil flag values over the receiver.
func (c *Config) ApplyFlags(f Flags) {
	if f.StorageDir != nil {
		c.StorageDir = *f.StorageDir
	}
	if f.ListenAddr != nil {
		c.ListenAddr = *f.ListenAddr
	}
	if f.LogLevel != nil {
		c.LogLevel = *f.LogLevel
	}
}

// Validate checks invariants a Config must satisfy before use.
func (c *Config) Validate() error {
	if c.StorageDir == "" {
		return fmt.Errorf("%w: storage_dir must not be empty", errs.ErrConfiguration)
	}
	if c.FlowBudgetLimit == 0 {
		return fmt.Errorf("%w: flow_budget_limit must be positive", errs.ErrConfiguration)
	}
	if c.FallbackTimeout <= 0 {
		return fmt.Errorf("%w: fallback_timeout must be positive", errs.ErrConfiguration)
	}
	if c.RecoveryEmergencyDisputeWindow > c.RecoveryDisputeWindow {
		return fmt.Errorf("%w: emergency dispute window must not exceed the normal window", errs.ErrConfiguration)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unknown log_level %q", errs.ErrConfiguration, c.LogLevel)
	}
	return nil
}

// Load performs the full defaults < file < env < CLI merge and
// validates the result.
func Load(preset *Config, yamlPath string, flags Flags) (*Config, error) {
	c := preset
	if c == nil {
		c = Default()
	}
	clone := *c
	if yamlPath != "" {
		if err := clone.LoadFile(yamlPath); err != nil {
			return nil, err
		}
	}
	if err := clone.LoadEnv(); err != nil {
		return nil, err
	}
	clone.ApplyFlags(flags)
	if err := clone.Validate(); err != nil {
		return nil, err
	}
	return &clone, nil
}
