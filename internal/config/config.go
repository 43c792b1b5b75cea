// Package config loads and layers TITAN's runtime configuration.
//
// Configuration lives at ~/.titan/config.toml by default (overridable via
// TITAN_CONFIG_PATH) and is layered: built-in defaults, then the TOML file
// if present, then environment variable overrides applied last so a
// long-running process can have secrets injected without touching disk.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/Djtony707/TITAN/internal/logging"
)

// Config holds all of TITAN's runtime configuration.
type Config struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`

	Workspace  WorkspaceConfig  `toml:"workspace"`
	Autonomy   AutonomyConfig   `toml:"autonomy"`
	LLM        LLMConfig        `toml:"llm"`
	Approval   ApprovalConfig   `toml:"approval"`
	Broker     BrokerConfig     `toml:"broker"`
	Scheduler  SchedulerConfig  `toml:"scheduler"`
	Skills     SkillsConfig     `toml:"skills"`
	Store      StoreConfig      `toml:"store"`
	HTTP       HTTPConfig       `toml:"http"`
	Logging    LoggingConfig    `toml:"logging"`
	CoreLimits CoreLimits       `toml:"core_limits"`
	Secrets    SecretsConfig    `toml:"secrets"`
}

// SecretsConfig locates the optional local encrypted secrets envelope
// (spec §4.10). The master key never lives here; it arrives via the
// TITAN_SECRETS_MASTER_KEY environment variable at process start.
type SecretsConfig struct {
	EnvelopePath string `toml:"envelope_path"`
}

// WorkspaceConfig locates the canonical workspace root the Path Guard
// enforces every filesystem-touching tool against.
type WorkspaceConfig struct {
	// Root is the canonical workspace directory. Empty means "current
	// working directory at process start", resolved once at boot.
	Root string `toml:"root"`
}

// AutonomyConfig selects the operator policy tier and the risk-mode
// override described in spec §4.3.
type AutonomyConfig struct {
	// Mode is one of "supervised", "collaborative", "autonomous".
	Mode string `toml:"mode"`
	// RiskMode is one of "secure", "yolo".
	RiskMode string `toml:"risk_mode"`
	// YoloDefaultDuration is how long `yolo arm` lasts when no explicit
	// duration is given on the local terminal surface.
	YoloDefaultDuration string `toml:"yolo_default_duration"`
}

// ApprovalConfig controls the Approval Queue's default TTL.
type ApprovalConfig struct {
	DefaultTTL string `toml:"default_ttl"`
}

// BrokerConfig bounds every Tool Broker invocation (spec §4.5 point 4).
type BrokerConfig struct {
	DefaultTimeout           string `toml:"default_timeout"`
	MaxOutputBytes           int    `toml:"max_output_bytes"`
	MaxConcurrentPerCapClass int    `toml:"max_concurrent_per_capability_class"`
	AllowedExecBinaries      []string `toml:"allowed_exec_binaries"`
	AllowedNetHosts          []string `toml:"allowed_net_hosts"`
}

// SchedulerConfig bounds the in-process job scheduler (spec §4.9).
type SchedulerConfig struct {
	TickInterval     string `toml:"tick_interval"`
	MaxConcurrency   int    `toml:"max_concurrency"`
}

// SkillsConfig controls where skill bundles are resolved from.
type SkillsConfig struct {
	Sources        []string `toml:"sources"`
	TrustStorePath string   `toml:"trust_store_path"`
}

// StoreConfig locates the embedded relational store.
type StoreConfig struct {
	Path string `toml:"path"`
}

// HTTPConfig binds the loopback-only HTTP surface (spec §6, Non-goals).
type HTTPConfig struct {
	Addr string `toml:"addr"`
}

// LoggingConfig controls the zap logger construction.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
	File   string `toml:"file"`
}

// CoreLimits are process-wide resource ceilings enforced independent of any
// single step's bounds.
type CoreLimits struct {
	MaxConcurrentGoals int `toml:"max_concurrent_goals"`
	MaxReplanBudget    int `toml:"max_replan_budget"`
	MaxRetryBudget     int `toml:"max_retry_budget"`
}

// DefaultConfig returns TITAN's built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "titan",
		Version: "0.1.0",

		Workspace: WorkspaceConfig{
			Root: "",
		},

		Autonomy: AutonomyConfig{
			Mode:                "supervised",
			RiskMode:            "secure",
			YoloDefaultDuration: "60s",
		},

		LLM: LLMConfig{
			Provider: "fake",
			Model:    "titan-deterministic-fake",
			Timeout:  "60s",
		},

		Approval: ApprovalConfig{
			DefaultTTL: "5m",
		},

		Broker: BrokerConfig{
			DefaultTimeout:           "30s",
			MaxOutputBytes:           1 << 20, // 1 MiB
			MaxConcurrentPerCapClass: 4,
			AllowedExecBinaries:      []string{"go", "git", "grep", "ls", "cat"},
			AllowedNetHosts:          []string{},
		},

		Scheduler: SchedulerConfig{
			TickInterval:   "1s",
			MaxConcurrency: 2,
		},

		Skills: SkillsConfig{
			Sources:        []string{},
			TrustStorePath: "",
		},

		Store: StoreConfig{
			Path: "", // resolved to ~/.titan/titan.db if empty
		},

		HTTP: HTTPConfig{
			Addr: "127.0.0.1:8733",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			File:   "",
		},

		CoreLimits: CoreLimits{
			MaxConcurrentGoals: 8,
			MaxReplanBudget:    2,
			MaxRetryBudget:     3,
		},

		Secrets: SecretsConfig{
			EnvelopePath: "",
		},
	}
}

// DefaultConfigPath returns ~/.titan/config.toml, honoring TITAN_CONFIG_PATH.
func DefaultConfigPath() string {
	if p := os.Getenv("TITAN_CONFIG_PATH"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".titan", "config.toml")
}

// Load reads configuration from a TOML file, falling back to defaults when
// the file does not exist, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logging.Boot("config file not found, using defaults: %s", path)
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	logging.Boot("config loaded: mode=%s risk=%s provider=%s", cfg.Autonomy.Mode, cfg.Autonomy.RiskMode, cfg.LLM.Provider)
	return cfg, nil
}

// Save writes configuration back to a TOML file, creating parent
// directories as needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create config file: %w", err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(c); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return nil
}

// applyEnvOverrides layers environment variables over the loaded config.
// Secrets never live in the file path; they arrive this way for
// long-running processes (spec §6, "secrets passphrase" env var).
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("TITAN_WORKSPACE"); v != "" {
		c.Workspace.Root = v
	}
	if v := os.Getenv("TITAN_AUTONOMY_MODE"); v != "" {
		c.Autonomy.Mode = v
	}
	if v := os.Getenv("TITAN_RISK_MODE"); v != "" {
		c.Autonomy.RiskMode = v
	}
	if v := os.Getenv("TITAN_DB_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("TITAN_LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("TITAN_LLM_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv("TITAN_HTTP_ADDR"); v != "" {
		c.HTTP.Addr = v
	}
}
