package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// viperConfigManager implements ConfigManager using Viper.
type viperConfigManager struct {
	configPath string
	config     *Config
	viper      *viper.Viper
	watchChan  chan Config
}

// Load loads configuration from all sources.
func (m *viperConfigManager) Load(ctx context.Context) error {
	// Initialize viper
	m.viper = viper.New()

	// Set config file path
	m.viper.SetConfigFile(m.configPath)
	m.viper.SetConfigType("yaml")

	// Set environment variable prefix
	m.viper.SetEnvPrefix("TOOLRUN")
	m.viper.AutomaticEnv()
	m.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	m.setDefaults()

	// Try to read config file (optional)
	if err := m.viper.ReadInConfig(); err != nil {
		// Config file not found is OK if it doesn't exist, we'll use defaults + env vars
		// Check both ConfigFileNotFoundError and os.IsNotExist for file not found
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// File not found via viper - OK, use defaults
		} else if os.IsNotExist(err) {
			// File not found via os - OK, use defaults
		} else {
			// Other error reading config file
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Unmarshal into config struct
	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Apply environment variable overrides for sensitive data
	m.applyEnvOverrides()

	return nil
}

// Get returns the current configuration.
func (m *viperConfigManager) Get(ctx context.Context) *Config {
	return m.config
}

// Validate validates configuration is correct and complete.
func (m *viperConfigManager) Validate(ctx context.Context) error {
	errs := m.config.Validate()
	if len(errs) > 0 {
		// Combine all errors into a single error message
		var errMsgs []string
		for _, err := range errs {
			errMsgs = append(errMsgs, err.Error())
		}
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errMsgs, "\n  - "))
	}
	return nil
}

// Watch watches for configuration changes and reloads.
//
// Only the Alias sub-tree is expected to change meaningfully at runtime
// (C2's hot-reload contract); other sections are re-read but take effect
// only on the next component restart.
func (m *viperConfigManager) Watch(ctx context.Context) <-chan Config {
	if !m.config.Alias.HotReload {
		return m.watchChan
	}
	// Start watching config file
	m.viper.WatchConfig()
	m.viper.OnConfigChange(func(e fsnotify.Event) {
		// Reload config
		if err := m.unmarshalConfig(); err != nil {
			// Log error but don't send to channel
			return
		}
		// Send updated config to channel
		select {
		case m.watchChan <- *m.config:
		default:
			// Channel full, skip this update
		}
	})

	return m.watchChan
}

// Reload reloads configuration from sources.
func (m *viperConfigManager) Reload(ctx context.Context) error {
	// Re-read config file
	if err := m.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Unmarshal into config struct
	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Apply environment variable overrides
	m.applyEnvOverrides()

	return nil
}

// setDefaults sets default values in viper.
func (m *viperConfigManager) setDefaults() {
	d := DefaultConfig()

	m.viper.SetDefault("server.port", d.Server.Port)

	m.viper.SetDefault("registry.manifest_roots", d.Registry.ManifestRoots)
	m.viper.SetDefault("registry.refresh_interval", d.Registry.RefreshInterval)
	m.viper.SetDefault("registry.tool_host_address", d.Registry.ToolHostAddress)

	m.viper.SetDefault("alias.config_path", d.Alias.ConfigPath)
	m.viper.SetDefault("alias.hot_reload", d.Alias.HotReload)

	m.viper.SetDefault("ledger.global_window_size", d.Ledger.GlobalWindowSize)
	m.viper.SetDefault("ledger.per_tool_window_size", d.Ledger.PerToolWindowSize)
	m.viper.SetDefault("ledger.failure_window_secs", d.Ledger.FailureWindowSecs)
	m.viper.SetDefault("ledger.offline_threshold", d.Ledger.OfflineThreshold)
	m.viper.SetDefault("ledger.decay_factor", d.Ledger.DecayFactor)
	m.viper.SetDefault("ledger.recovery_step", d.Ledger.RecoveryStep)

	m.viper.SetDefault("dispatcher.weight_historical", d.Dispatcher.WeightHistorical)
	m.viper.SetDefault("dispatcher.weight_performance", d.Dispatcher.WeightPerformance)
	m.viper.SetDefault("dispatcher.weight_context", d.Dispatcher.WeightContext)
	m.viper.SetDefault("dispatcher.weight_reliability", d.Dispatcher.WeightReliability)
	m.viper.SetDefault("dispatcher.adapt_step", d.Dispatcher.AdaptStep)

	m.viper.SetDefault("executor.max_consecutive_failures", d.Executor.MaxConsecutiveFailures)
	m.viper.SetDefault("executor.cooldown_seconds", d.Executor.CooldownSeconds)
	m.viper.SetDefault("executor.min_success_rate_floor", d.Executor.MinSuccessRateFloor)

	m.viper.SetDefault("critic.repeat_trigger", d.Critic.RepeatTrigger)
	m.viper.SetDefault("critic.window_size", d.Critic.WindowSize)
	m.viper.SetDefault("critic.auto_apply_threshold", d.Critic.AutoApplyThreshold)

	m.viper.SetDefault("prober.interval_seconds", d.Prober.IntervalSeconds)

	m.viper.SetDefault("self_heal.interval_seconds", d.SelfHeal.IntervalSeconds)
	m.viper.SetDefault("self_heal.failures_per_hour_limit", d.SelfHeal.FailuresPerHourLimit)
	m.viper.SetDefault("self_heal.offline_minutes", d.SelfHeal.OfflineMinutes)
	m.viper.SetDefault("self_heal.consecutive_for_restart", d.SelfHeal.ConsecutiveForRestart)
	m.viper.SetDefault("self_heal.load_threshold", d.SelfHeal.LoadThreshold)

	m.viper.SetDefault("llm.provider", d.LLM.Provider)
	m.viper.SetDefault("llm.model", d.LLM.Model)
	m.viper.SetDefault("llm.timeout_ms", d.LLM.TimeoutMS)
	m.viper.SetDefault("llm.api_key", d.LLM.APIKey)

	m.viper.SetDefault("mcp.transport", d.MCP.Transport)
	m.viper.SetDefault("mcp.http_base", d.MCP.HTTPBase)
	m.viper.SetDefault("mcp.grpc_target", d.MCP.GRPCTarget)
	m.viper.SetDefault("mcp.stdio_command", d.MCP.StdioCommand)
	m.viper.SetDefault("mcp.stdio_args", d.MCP.StdioArgs)

	m.viper.SetDefault("store.sqlite_path", d.Store.SQLitePath)

	m.viper.SetDefault("logging.level", d.Logging.Level)
	m.viper.SetDefault("logging.format", d.Logging.Format)
}

// unmarshalConfig unmarshals viper config into Config struct.
func (m *viperConfigManager) unmarshalConfig() error {
	cfg := &Config{}

	cfg.Server.Port = m.viper.GetInt("server.port")

	cfg.Registry.ManifestRoots = m.viper.GetStringSlice("registry.manifest_roots")
	cfg.Registry.RefreshInterval = m.viper.GetInt("registry.refresh_interval")
	cfg.Registry.ToolHostAddress = m.viper.GetString("registry.tool_host_address")

	cfg.Alias.ConfigPath = m.viper.GetString("alias.config_path")
	cfg.Alias.HotReload = m.viper.GetBool("alias.hot_reload")

	cfg.Ledger.GlobalWindowSize = m.viper.GetInt("ledger.global_window_size")
	cfg.Ledger.PerToolWindowSize = m.viper.GetInt("ledger.per_tool_window_size")
	cfg.Ledger.FailureWindowSecs = m.viper.GetInt("ledger.failure_window_secs")
	cfg.Ledger.OfflineThreshold = m.viper.GetInt("ledger.offline_threshold")
	cfg.Ledger.DecayFactor = m.viper.GetFloat64("ledger.decay_factor")
	cfg.Ledger.RecoveryStep = m.viper.GetFloat64("ledger.recovery_step")

	cfg.Dispatcher.WeightHistorical = m.viper.GetFloat64("dispatcher.weight_historical")
	cfg.Dispatcher.WeightPerformance = m.viper.GetFloat64("dispatcher.weight_performance")
	cfg.Dispatcher.WeightContext = m.viper.GetFloat64("dispatcher.weight_context")
	cfg.Dispatcher.WeightReliability = m.viper.GetFloat64("dispatcher.weight_reliability")
	cfg.Dispatcher.AdaptStep = m.viper.GetFloat64("dispatcher.adapt_step")

	cfg.Executor.MaxConsecutiveFailures = m.viper.GetInt("executor.max_consecutive_failures")
	cfg.Executor.CooldownSeconds = m.viper.GetInt("executor.cooldown_seconds")
	cfg.Executor.MinSuccessRateFloor = m.viper.GetFloat64("executor.min_success_rate_floor")

	cfg.Critic.RepeatTrigger = m.viper.GetInt("critic.repeat_trigger")
	cfg.Critic.WindowSize = m.viper.GetInt("critic.window_size")
	cfg.Critic.AutoApplyThreshold = m.viper.GetFloat64("critic.auto_apply_threshold")

	cfg.Prober.IntervalSeconds = m.viper.GetInt("prober.interval_seconds")

	cfg.SelfHeal.IntervalSeconds = m.viper.GetInt("self_heal.interval_seconds")
	cfg.SelfHeal.FailuresPerHourLimit = m.viper.GetInt("self_heal.failures_per_hour_limit")
	cfg.SelfHeal.OfflineMinutes = m.viper.GetInt("self_heal.offline_minutes")
	cfg.SelfHeal.ConsecutiveForRestart = m.viper.GetInt("self_heal.consecutive_for_restart")
	cfg.SelfHeal.LoadThreshold = m.viper.GetFloat64("self_heal.load_threshold")

	cfg.LLM.Provider = m.viper.GetString("llm.provider")
	cfg.LLM.Model = m.viper.GetString("llm.model")
	cfg.LLM.TimeoutMS = m.viper.GetInt("llm.timeout_ms")
	cfg.LLM.APIKey = m.viper.GetString("llm.api_key")

	cfg.MCP.Transport = m.viper.GetString("mcp.transport")
	cfg.MCP.HTTPBase = m.viper.GetString("mcp.http_base")
	cfg.MCP.GRPCTarget = m.viper.GetString("mcp.grpc_target")
	cfg.MCP.StdioCommand = m.viper.GetString("mcp.stdio_command")
	cfg.MCP.StdioArgs = m.viper.GetStringSlice("mcp.stdio_args")

	cfg.Store.SQLitePath = m.viper.GetString("store.sqlite_path")

	cfg.Logging.Level = m.viper.GetString("logging.level")
	cfg.Logging.Format = m.viper.GetString("logging.format")

	m.config = cfg
	return nil
}

// applyEnvOverrides applies environment variable overrides that must
// never be required to live in a checked-in YAML file.
func (m *viperConfigManager) applyEnvOverrides() {
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" && m.config.LLM.APIKey == "" {
		m.config.LLM.APIKey = apiKey
	}

	if target := os.Getenv("TOOLRUN_MCP_GRPC_TARGET"); target != "" {
		m.config.MCP.GRPCTarget = target
	}

	if base := os.Getenv("TOOLRUN_MCP_HTTP_BASE"); base != "" {
		m.config.MCP.HTTPBase = base
	}

	if portEnv := os.Getenv("TOOLRUN_PORT"); portEnv != "" {
		m.config.Server.Port = m.viper.GetInt("server.port")
	}
}
