package config

// DefaultConfig returns a configuration with all default values, matching
// the defaults named throughout the component design (§4 of the spec).
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Port = 8088

	cfg.Registry.ManifestRoots = []string{"./tools.d"}
	cfg.Registry.RefreshInterval = 60
	cfg.Registry.ToolHostAddress = "http://localhost:8090"

	cfg.Alias.ConfigPath = "./aliases.yaml"
	cfg.Alias.HotReload = true

	cfg.Ledger.GlobalWindowSize = 1000
	cfg.Ledger.PerToolWindowSize = 100
	cfg.Ledger.FailureWindowSecs = 24 * 3600
	cfg.Ledger.OfflineThreshold = 3
	cfg.Ledger.DecayFactor = 0.9
	cfg.Ledger.RecoveryStep = 0.01

	cfg.Dispatcher.WeightHistorical = 0.4
	cfg.Dispatcher.WeightPerformance = 0.3
	cfg.Dispatcher.WeightContext = 0.2
	cfg.Dispatcher.WeightReliability = 0.1
	cfg.Dispatcher.AdaptStep = 0.01

	cfg.Executor.MaxConsecutiveFailures = 5
	cfg.Executor.CooldownSeconds = 300
	cfg.Executor.MinSuccessRateFloor = 0.05

	cfg.Critic.RepeatTrigger = 3
	cfg.Critic.WindowSize = 5
	cfg.Critic.AutoApplyThreshold = 0.75

	cfg.Prober.IntervalSeconds = 30

	cfg.SelfHeal.IntervalSeconds = 60
	cfg.SelfHeal.FailuresPerHourLimit = 10
	cfg.SelfHeal.OfflineMinutes = 5
	cfg.SelfHeal.ConsecutiveForRestart = 5
	cfg.SelfHeal.LoadThreshold = 0.85

	cfg.LLM.Provider = "openai"
	cfg.LLM.Model = "gpt-4o-mini"
	cfg.LLM.TimeoutMS = 30000

	cfg.MCP.Transport = "http"
	cfg.MCP.HTTPBase = "http://localhost:8091"
	cfg.MCP.GRPCTarget = "localhost:8092"
	cfg.MCP.StdioCommand = ""

	cfg.Store.SQLitePath = "./toolrun.db"

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	return cfg
}
