package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 8088, cfg.Server.Port)

	assert.Equal(t, []string{"./tools.d"}, cfg.Registry.ManifestRoots)
	assert.Equal(t, 60, cfg.Registry.RefreshInterval)
	assert.Equal(t, "http://localhost:8090", cfg.Registry.ToolHostAddress)

	assert.Equal(t, "./aliases.yaml", cfg.Alias.ConfigPath)
	assert.True(t, cfg.Alias.HotReload)

	assert.Equal(t, 1000, cfg.Ledger.GlobalWindowSize)
	assert.Equal(t, 100, cfg.Ledger.PerToolWindowSize)
	assert.Equal(t, 24*3600, cfg.Ledger.FailureWindowSecs)
	assert.Equal(t, 3, cfg.Ledger.OfflineThreshold)
	assert.InDelta(t, 0.9, cfg.Ledger.DecayFactor, 1e-9)
	assert.InDelta(t, 0.01, cfg.Ledger.RecoveryStep, 1e-9)

	assert.InDelta(t, 0.4, cfg.Dispatcher.WeightHistorical, 1e-9)
	assert.InDelta(t, 0.3, cfg.Dispatcher.WeightPerformance, 1e-9)
	assert.InDelta(t, 0.2, cfg.Dispatcher.WeightContext, 1e-9)
	assert.InDelta(t, 0.1, cfg.Dispatcher.WeightReliability, 1e-9)
	assert.InDelta(t, 0.01, cfg.Dispatcher.AdaptStep, 1e-9)

	assert.Equal(t, 5, cfg.Executor.MaxConsecutiveFailures)
	assert.Equal(t, 300, cfg.Executor.CooldownSeconds)
	assert.InDelta(t, 0.05, cfg.Executor.MinSuccessRateFloor, 1e-9)

	assert.Equal(t, 3, cfg.Critic.RepeatTrigger)
	assert.Equal(t, 5, cfg.Critic.WindowSize)
	assert.Equal(t, 0.75, cfg.Critic.AutoApplyThreshold)

	assert.Equal(t, 30, cfg.Prober.IntervalSeconds)

	assert.Equal(t, 60, cfg.SelfHeal.IntervalSeconds)
	assert.Equal(t, 10, cfg.SelfHeal.FailuresPerHourLimit)
	assert.Equal(t, 5, cfg.SelfHeal.OfflineMinutes)
	assert.Equal(t, 5, cfg.SelfHeal.ConsecutiveForRestart)
	assert.Equal(t, 0.85, cfg.SelfHeal.LoadThreshold)

	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, 30000, cfg.LLM.TimeoutMS)

	assert.Equal(t, "http", cfg.MCP.Transport)
	assert.Equal(t, "http://localhost:8091", cfg.MCP.HTTPBase)
	assert.Equal(t, "localhost:8092", cfg.MCP.GRPCTarget)

	assert.Equal(t, "./toolrun.db", cfg.Store.SQLitePath)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestConfigValidate_DefaultIsValid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LLM.APIKey = "sk-test"
	errs := cfg.Validate()
	assert.Empty(t, errs)
}

func TestConfigValidate_CatchesBadValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LLM.APIKey = "sk-test"
	cfg.Server.Port = 0
	cfg.Registry.ManifestRoots = nil
	cfg.Ledger.DecayFactor = 1.5
	cfg.Dispatcher.WeightHistorical = 0.9
	cfg.Executor.MinSuccessRateFloor = -1
	cfg.LLM.Provider = "not-a-provider"
	cfg.MCP.Transport = "carrier-pigeon"
	cfg.Logging.Level = "verbose"

	errs := cfg.Validate()
	require.NotEmpty(t, errs)

	fields := make(map[string]bool)
	for _, err := range errs {
		if ve, ok := err.(*ValidationError); ok {
			fields[ve.Field] = true
		}
	}

	assert.True(t, fields["server.port"])
	assert.True(t, fields["registry.manifest_roots"])
	assert.True(t, fields["ledger.decay_factor"])
	assert.True(t, fields["dispatcher.weight_*"])
	assert.True(t, fields["executor.min_success_rate_floor"])
	assert.True(t, fields["llm.provider"])
	assert.True(t, fields["mcp.transport"])
	assert.True(t, fields["logging.level"])
}

func TestConfigValidate_RequiresAPIKeyForOpenAI(t *testing.T) {
	cfg := DefaultConfig()
	os.Unsetenv("OPENAI_API_KEY")
	cfg.LLM.Provider = "openai"
	cfg.LLM.APIKey = ""

	errs := cfg.Validate()
	found := false
	for _, err := range errs {
		if ve, ok := err.(*ValidationError); ok && ve.Field == "llm.api_key" {
			found = true
		}
	}
	assert.True(t, found, "expected a validation error for missing llm.api_key")
}

func TestNewConfigManager_LoadsDefaultsWithoutFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "does-not-exist.yaml")

	mgr, err := NewConfigManager(path)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, mgr.Load(ctx))

	cfg := mgr.Get(ctx)
	require.NotNil(t, cfg)
	assert.Equal(t, 8088, cfg.Server.Port)
	assert.Equal(t, "./aliases.yaml", cfg.Alias.ConfigPath)
}

func TestNewConfigManager_LoadsFromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  port: 9999
ledger:
  offline_threshold: 7
dispatcher:
  weight_historical: 0.5
  weight_performance: 0.2
  weight_context: 0.2
  weight_reliability: 0.1
llm:
  provider: openai
  model: gpt-4o
  api_key: sk-from-file
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	mgr, err := NewConfigManager(path)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, mgr.Load(ctx))

	cfg := mgr.Get(ctx)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 7, cfg.Ledger.OfflineThreshold)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, "sk-from-file", cfg.LLM.APIKey)

	require.NoError(t, mgr.Validate(ctx))
}

func TestNewConfigManager_EnvOverridesAPIKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm:\n  provider: openai\n  model: gpt-4o-mini\n"), 0o644))

	t.Setenv("OPENAI_API_KEY", "sk-from-env")

	mgr, err := NewConfigManager(path)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, mgr.Load(ctx))

	cfg := mgr.Get(ctx)
	assert.Equal(t, "sk-from-env", cfg.LLM.APIKey)
}

func TestViperConfigManager_WatchRespectsHotReloadFlag(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("alias:\n  hot_reload: false\n"), 0o644))

	mgr, err := NewConfigManager(path)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, mgr.Load(ctx))

	ch := mgr.Watch(ctx)
	select {
	case <-ch:
		t.Fatal("did not expect a config update with hot_reload disabled")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNewConfigManagerWithDefaults(t *testing.T) {
	mgr, err := NewConfigManagerWithDefaults()
	require.NoError(t, err)
	assert.NotNil(t, mgr)
}
