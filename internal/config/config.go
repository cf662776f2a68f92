package config

import "context"

// Package config provides configuration management for toolrun-ai.
//
// Responsibilities:
//   - Load configuration from YAML files, environment variables, and CLI flags
//   - Validate configuration on startup
//   - Provide runtime access to all configuration
//   - Support hot reload for the alias tables and a handful of tunable thresholds
//   - Establish reasonable defaults so the runtime cold-starts safely
//
// Configuration Sources (priority order, high to low):
//   1. CLI flags (highest priority)
//   2. Environment variables (TOOLRUN_* prefix)
//   3. YAML config file (default: ./config.yaml)
//   4. Built-in defaults (lowest priority)
//
// Main Configuration Sections:
//
//   1. Server
//      - port: health endpoint listen port (default 8088)
//
//   2. Registry (C1)
//      - manifest_roots: local search roots for service.json discovery
//      - refresh_interval: seconds between unforced registry refreshes
//      - tool_host_address: base URL used to fetch version fingerprints
//
//   3. Alias (C2)
//      - config_path: path to the alias/mapping YAML file
//      - hot_reload: watch config_path for changes
//
//   4. Ledger (C4)
//      - global_window_size / per_tool_window_size: rolling ErrorEvent windows
//      - failure_window: time-based eviction horizon for per-tool counts
//      - offline_threshold: consecutive failures before is_available() = false
//      - decay_factor / recovery_step: reliability update rule
//
//   5. Dispatcher (C5)
//      - weight_historical/performance/context/reliability: scoring weights
//      - adapt_step: multiplicative nudge applied after each outcome
//
//   6. Executor (C6)
//      - max_consecutive_failures: strategy auto-disable threshold
//      - cooldown_seconds: re-enable window after auto-disable
//      - min_success_rate_floor: floor applied instead of disabling the last
//        fallback-or-emergency strategy for a capability
//
//   7. Critic (C10)
//      - repeat_trigger: same-signature repeat count that invokes the critic
//      - window_size: number of recent ErrorEvents considered
//
//   8. Prober (C11) / SelfHeal (C9) — background loop cadences and thresholds
//
//   9. LLM — external LLM client provider and credentials
//
//  10. MCP — tool-host transport selection and addresses
//
//  11. Store — SQLite path for persisted learning state and trajectory archive
//
//  12. Logging — level and format for the audit/trajectory logger
//
// Config struct contains all configuration fields.
type Config struct {
	Server struct {
		Port int
	}

	Registry struct {
		ManifestRoots   []string
		RefreshInterval int // seconds
		ToolHostAddress string
	}

	Alias struct {
		ConfigPath string
		HotReload  bool
	}

	Ledger struct {
		GlobalWindowSize  int
		PerToolWindowSize int
		FailureWindowSecs int
		OfflineThreshold  int
		DecayFactor       float64
		RecoveryStep      float64
	}

	Dispatcher struct {
		WeightHistorical  float64
		WeightPerformance float64
		WeightContext     float64
		WeightReliability float64
		AdaptStep         float64
	}

	Executor struct {
		MaxConsecutiveFailures int
		CooldownSeconds        int
		MinSuccessRateFloor    float64
	}

	Critic struct {
		RepeatTrigger      int
		WindowSize         int
		AutoApplyThreshold float64
	}

	Prober struct {
		IntervalSeconds int
	}

	SelfHeal struct {
		IntervalSeconds       int
		FailuresPerHourLimit  int
		OfflineMinutes        int
		ConsecutiveForRestart int
		LoadThreshold         float64
	}

	LLM struct {
		Provider  string // "openai" | "null"
		APIKey    string
		Model     string
		TimeoutMS int
	}

	MCP struct {
		Transport    string // "http" | "grpc" | "stdio"
		HTTPBase     string
		GRPCTarget   string
		StdioCommand string
		StdioArgs    []string
	}

	Store struct {
		SQLitePath string
	}

	Logging struct {
		Level  string
		Format string
	}
}

// ConfigManager defines the interface for configuration access.
type ConfigManager interface {
	// Load loads configuration from all sources.
	Load(ctx context.Context) error

	// Get returns the current configuration.
	Get(ctx context.Context) *Config

	// Validate validates configuration is correct and complete.
	Validate(ctx context.Context) error

	// Watch watches for configuration changes and reloads (if supported).
	Watch(ctx context.Context) <-chan Config

	// Reload reloads configuration from sources (selective settings).
	Reload(ctx context.Context) error
}

// NewConfigManager creates a new configuration manager.
func NewConfigManager(configPath string) (ConfigManager, error) {
	mgr := &viperConfigManager{
		configPath: configPath,
		config:     DefaultConfig(),
		watchChan:  make(chan Config, 1),
	}
	return mgr, nil
}

// NewConfigManagerWithDefaults creates a config manager with the default path.
func NewConfigManagerWithDefaults() (ConfigManager, error) {
	return NewConfigManager("./config.yaml")
}
