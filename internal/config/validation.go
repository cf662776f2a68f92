package config

import (
	"fmt"
	"os"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// Validate validates the configuration and returns validation errors.
func (c *Config) Validate() []error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", c.Server.Port),
		})
	}

	if len(c.Registry.ManifestRoots) == 0 {
		errs = append(errs, &ValidationError{
			Field:   "registry.manifest_roots",
			Message: "at least one manifest root is required",
		})
	}
	if c.Registry.RefreshInterval < 1 {
		errs = append(errs, &ValidationError{
			Field:   "registry.refresh_interval",
			Message: fmt.Sprintf("refresh_interval must be at least 1 second, got %d", c.Registry.RefreshInterval),
		})
	}

	if c.Alias.ConfigPath == "" {
		errs = append(errs, &ValidationError{
			Field:   "alias.config_path",
			Message: "alias config_path is required",
		})
	}

	if c.Ledger.GlobalWindowSize < 1 {
		errs = append(errs, &ValidationError{
			Field:   "ledger.global_window_size",
			Message: fmt.Sprintf("global_window_size must be at least 1, got %d", c.Ledger.GlobalWindowSize),
		})
	}
	if c.Ledger.PerToolWindowSize < 1 {
		errs = append(errs, &ValidationError{
			Field:   "ledger.per_tool_window_size",
			Message: fmt.Sprintf("per_tool_window_size must be at least 1, got %d", c.Ledger.PerToolWindowSize),
		})
	}
	if c.Ledger.FailureWindowSecs < 1 {
		errs = append(errs, &ValidationError{
			Field:   "ledger.failure_window_secs",
			Message: fmt.Sprintf("failure_window_secs must be at least 1, got %d", c.Ledger.FailureWindowSecs),
		})
	}
	if c.Ledger.OfflineThreshold < 1 {
		errs = append(errs, &ValidationError{
			Field:   "ledger.offline_threshold",
			Message: fmt.Sprintf("offline_threshold must be at least 1, got %d", c.Ledger.OfflineThreshold),
		})
	}
	if c.Ledger.DecayFactor <= 0 || c.Ledger.DecayFactor >= 1 {
		errs = append(errs, &ValidationError{
			Field:   "ledger.decay_factor",
			Message: fmt.Sprintf("decay_factor must be in (0, 1), got %f", c.Ledger.DecayFactor),
		})
	}
	if c.Ledger.RecoveryStep <= 0 || c.Ledger.RecoveryStep >= 1 {
		errs = append(errs, &ValidationError{
			Field:   "ledger.recovery_step",
			Message: fmt.Sprintf("recovery_step must be in (0, 1), got %f", c.Ledger.RecoveryStep),
		})
	}

	weightSum := c.Dispatcher.WeightHistorical + c.Dispatcher.WeightPerformance +
		c.Dispatcher.WeightContext + c.Dispatcher.WeightReliability
	if weightSum < 0.99 || weightSum > 1.01 {
		errs = append(errs, &ValidationError{
			Field:   "dispatcher.weight_*",
			Message: fmt.Sprintf("dispatcher weights must sum to ~1.0, got %f", weightSum),
		})
	}
	if c.Dispatcher.AdaptStep < 0 || c.Dispatcher.AdaptStep >= 1 {
		errs = append(errs, &ValidationError{
			Field:   "dispatcher.adapt_step",
			Message: fmt.Sprintf("adapt_step must be in [0, 1), got %f", c.Dispatcher.AdaptStep),
		})
	}

	if c.Executor.MaxConsecutiveFailures < 1 {
		errs = append(errs, &ValidationError{
			Field:   "executor.max_consecutive_failures",
			Message: fmt.Sprintf("max_consecutive_failures must be at least 1, got %d", c.Executor.MaxConsecutiveFailures),
		})
	}
	if c.Executor.CooldownSeconds < 0 {
		errs = append(errs, &ValidationError{
			Field:   "executor.cooldown_seconds",
			Message: fmt.Sprintf("cooldown_seconds cannot be negative, got %d", c.Executor.CooldownSeconds),
		})
	}
	if c.Executor.MinSuccessRateFloor < 0 || c.Executor.MinSuccessRateFloor > 1 {
		errs = append(errs, &ValidationError{
			Field:   "executor.min_success_rate_floor",
			Message: fmt.Sprintf("min_success_rate_floor must be in [0, 1], got %f", c.Executor.MinSuccessRateFloor),
		})
	}

	if c.Critic.RepeatTrigger < 1 {
		errs = append(errs, &ValidationError{
			Field:   "critic.repeat_trigger",
			Message: fmt.Sprintf("repeat_trigger must be at least 1, got %d", c.Critic.RepeatTrigger),
		})
	}
	if c.Critic.WindowSize < 1 {
		errs = append(errs, &ValidationError{
			Field:   "critic.window_size",
			Message: fmt.Sprintf("window_size must be at least 1, got %d", c.Critic.WindowSize),
		})
	}

	if c.Prober.IntervalSeconds < 1 {
		errs = append(errs, &ValidationError{
			Field:   "prober.interval_seconds",
			Message: fmt.Sprintf("interval_seconds must be at least 1, got %d", c.Prober.IntervalSeconds),
		})
	}

	if c.SelfHeal.IntervalSeconds < 1 {
		errs = append(errs, &ValidationError{
			Field:   "self_heal.interval_seconds",
			Message: fmt.Sprintf("interval_seconds must be at least 1, got %d", c.SelfHeal.IntervalSeconds),
		})
	}
	if c.SelfHeal.FailuresPerHourLimit < 1 {
		errs = append(errs, &ValidationError{
			Field:   "self_heal.failures_per_hour_limit",
			Message: fmt.Sprintf("failures_per_hour_limit must be at least 1, got %d", c.SelfHeal.FailuresPerHourLimit),
		})
	}
	if c.SelfHeal.OfflineMinutes < 1 {
		errs = append(errs, &ValidationError{
			Field:   "self_heal.offline_minutes",
			Message: fmt.Sprintf("offline_minutes must be at least 1, got %d", c.SelfHeal.OfflineMinutes),
		})
	}
	if c.SelfHeal.ConsecutiveForRestart < 1 {
		errs = append(errs, &ValidationError{
			Field:   "self_heal.consecutive_for_restart",
			Message: fmt.Sprintf("consecutive_for_restart must be at least 1, got %d", c.SelfHeal.ConsecutiveForRestart),
		})
	}
	if c.SelfHeal.LoadThreshold <= 0 || c.SelfHeal.LoadThreshold > 1 {
		errs = append(errs, &ValidationError{
			Field:   "self_heal.load_threshold",
			Message: fmt.Sprintf("load_threshold must be in (0, 1], got %f", c.SelfHeal.LoadThreshold),
		})
	}

	validProviders := map[string]bool{"openai": true, "null": true}
	if !validProviders[c.LLM.Provider] {
		errs = append(errs, &ValidationError{
			Field:   "llm.provider",
			Message: fmt.Sprintf("invalid provider '%s', must be one of: openai, null", c.LLM.Provider),
		})
	}
	if c.LLM.Provider == "openai" {
		if c.LLM.APIKey == "" && os.Getenv("OPENAI_API_KEY") == "" {
			errs = append(errs, &ValidationError{
				Field:   "llm.api_key",
				Message: "OpenAI API key is required (config llm.api_key or OPENAI_API_KEY env var)",
			})
		}
		if c.LLM.Model == "" {
			errs = append(errs, &ValidationError{
				Field:   "llm.model",
				Message: "llm.model is required when provider is openai",
			})
		}
	}
	if c.LLM.TimeoutMS < 1 {
		errs = append(errs, &ValidationError{
			Field:   "llm.timeout_ms",
			Message: fmt.Sprintf("timeout_ms must be at least 1, got %d", c.LLM.TimeoutMS),
		})
	}

	validTransports := map[string]bool{"http": true, "grpc": true, "stdio": true}
	if !validTransports[c.MCP.Transport] {
		errs = append(errs, &ValidationError{
			Field:   "mcp.transport",
			Message: fmt.Sprintf("invalid transport '%s', must be one of: http, grpc, stdio", c.MCP.Transport),
		})
	}
	switch c.MCP.Transport {
	case "http":
		if c.MCP.HTTPBase == "" {
			errs = append(errs, &ValidationError{
				Field:   "mcp.http_base",
				Message: "http_base is required when transport is http",
			})
		}
	case "grpc":
		if c.MCP.GRPCTarget == "" {
			errs = append(errs, &ValidationError{
				Field:   "mcp.grpc_target",
				Message: "grpc_target is required when transport is grpc",
			})
		}
	case "stdio":
		if c.MCP.StdioCommand == "" {
			errs = append(errs, &ValidationError{
				Field:   "mcp.stdio_command",
				Message: "stdio_command is required when transport is stdio",
			})
		}
	}

	if c.Store.SQLitePath == "" {
		errs = append(errs, &ValidationError{
			Field:   "store.sqlite_path",
			Message: "store.sqlite_path is required",
		})
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, &ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level '%s', must be one of: debug, info, warn, error", c.Logging.Level),
		})
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, &ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format '%s', must be one of: json, text", c.Logging.Format),
		})
	}

	return errs
}
