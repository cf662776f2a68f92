package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/toolrun-ai/toolrund/internal/alias"
	"github.com/toolrun-ai/toolrund/internal/audit"
	"github.com/toolrun-ai/toolrund/internal/classifier"
	"github.com/toolrun-ai/toolrund/internal/config"
	"github.com/toolrun-ai/toolrund/internal/critic"
	"github.com/toolrun-ai/toolrund/internal/dispatch"
	"github.com/toolrun-ai/toolrund/internal/engine"
	"github.com/toolrun-ai/toolrund/internal/executor"
	"github.com/toolrun-ai/toolrund/internal/ledger"
	"github.com/toolrun-ai/toolrund/internal/llmclient"
	"github.com/toolrun-ai/toolrund/internal/llmclient/openai"
	"github.com/toolrun-ai/toolrund/internal/mcpclient"
	mcpgrpc "github.com/toolrun-ai/toolrund/internal/mcpclient/grpc"
	mcphttp "github.com/toolrun-ai/toolrund/internal/mcpclient/http"
	"github.com/toolrun-ai/toolrund/internal/mcpclient/stdio"
	"github.com/toolrun-ai/toolrund/internal/prober"
	"github.com/toolrun-ai/toolrund/internal/recovery"
	"github.com/toolrun-ai/toolrund/internal/registry"
	"github.com/toolrun-ai/toolrund/internal/selfheal"
	"github.com/toolrun-ai/toolrund/internal/store"
	"github.com/toolrun-ai/toolrund/internal/toolhost/wsupdate"
	"github.com/toolrun-ai/toolrund/internal/trajectory"
	"github.com/toolrun-ai/toolrund/internal/validator"
	"github.com/toolrun-ai/toolrund/pkg/types"
)

const (
	version = "0.1.0"
	banner  = `
  _              _                     _
 | |_ ___   ___ | |_ __ _   _ _ __   __| |
 | __/ _ \ / _ \| | '__| | | | '_ \ / _` + "`" + ` |
 | || (_) | (_) | | |  | |_| | | | | (_| |
  \__\___/ \___/|_|_|   \__,_|_| |_|\__,_|

  adaptive tool-dispatch runtime  v%s
`
)

var (
	configPath = flag.String("config", "config.yaml", "Path to configuration file")
	port       = flag.Int("port", 0, "Health/metrics port (overrides config)")
	debugMode  = flag.Bool("debug", false, "Enable debug-level logging")
)

func main() {
	flag.Parse()
	fmt.Printf(banner, version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := loadConfiguration(ctx, *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	zapLogger, err := newZapLogger(*debugMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer zapLogger.Sync()

	auditCfg := audit.DefaultConfig()
	auditCfg.LogLevel = cfg.Logging.Level
	auditLogger, err := audit.NewLogger(auditCfg)
	if err != nil {
		zapLogger.Fatal("failed to build audit logger", zap.Error(err))
	}
	defer auditLogger.Close()

	st, err := store.New(cfg.Store.SQLitePath)
	if err != nil {
		zapLogger.Fatal("failed to open store", zap.Error(err))
	}
	defer st.Close()

	reg := registry.New(registry.Config{
		ManifestRoots:   cfg.Registry.ManifestRoots,
		ToolHostAddress: cfg.Registry.ToolHostAddress,
		RefreshInterval: time.Duration(cfg.Registry.RefreshInterval) * time.Second,
		Logger:          zapLogger,
	})
	if err := reg.Refresh(ctx, true); err != nil {
		zapLogger.Warn("initial registry discovery failed, starting with an empty catalog", zap.Error(err))
	}

	aliases := alias.NewManager(cfg.Alias.ConfigPath, cfg.Alias.HotReload)
	if err := aliases.Load(ctx); err != nil {
		zapLogger.Warn("failed to load alias/mapping table, starting with an empty one", zap.Error(err))
	}

	val := validator.New(reg)

	led := ledger.New(ledger.Config{
		GlobalWindowSize:  cfg.Ledger.GlobalWindowSize,
		PerToolWindowSize: cfg.Ledger.PerToolWindowSize,
		FailureWindow:     time.Duration(cfg.Ledger.FailureWindowSecs) * time.Second,
		OfflineThreshold:  cfg.Ledger.OfflineThreshold,
		DecayFactor:       cfg.Ledger.DecayFactor,
		RecoveryStep:      cfg.Ledger.RecoveryStep,
	})
	restoreHealth(ctx, st, led, zapLogger)

	initialWeights := dispatch.Weights{
		Historical:  cfg.Dispatcher.WeightHistorical,
		Performance: cfg.Dispatcher.WeightPerformance,
		Context:     cfg.Dispatcher.WeightContext,
		Reliability: cfg.Dispatcher.WeightReliability,
	}
	if persisted, ok, err := st.LoadWeights(ctx); err != nil {
		zapLogger.Warn("failed to load persisted dispatcher weights, using configured defaults", zap.Error(err))
	} else if ok {
		initialWeights = dispatch.Weights{
			Historical:  persisted.Historical,
			Performance: persisted.Performance,
			Context:     persisted.Context,
			Reliability: persisted.Reliability,
		}
	}
	disp := dispatch.New(led, initialWeights, cfg.Dispatcher.AdaptStep)

	exec := executor.New(executor.Config{
		MaxConsecutiveFailures: cfg.Executor.MaxConsecutiveFailures,
		CooldownSeconds:        cfg.Executor.CooldownSeconds,
		MinSuccessRateFloor:    cfg.Executor.MinSuccessRateFloor,
	})

	cls := classifier.New()

	mcpClient, err := newMCPClient(ctx, cfg)
	if err != nil {
		zapLogger.Fatal("failed to construct MCP client", zap.Error(err))
	}

	rec := recovery.New(recovery.Config{
		DecayFactor:  cfg.Ledger.DecayFactor,
		RecoveryStep: cfg.Ledger.RecoveryStep,
	})
	registerRecoveryActions(rec, led, reg, mcpClient)

	llmClient, err := newLLMClient(cfg)
	if err != nil {
		zapLogger.Fatal("failed to construct LLM client", zap.Error(err))
	}

	crit := critic.New(critic.Config{
		RepeatTrigger:      cfg.Critic.RepeatTrigger,
		WindowSize:         cfg.Critic.WindowSize,
		AutoApplyThreshold: cfg.Critic.AutoApplyThreshold,
	}, func() alias.ErrorCorrections { return aliases.Current().ErrorCorrections }, val, llmClient)

	traj := trajectory.New(auditLogger)

	eng := engine.New(engine.Config{
		Registry:   reg,
		Aliases:    aliases,
		Validator:  val,
		Ledger:     led,
		Dispatcher: disp,
		Executor:   exec,
		Classifier: cls,
		Recovery:   rec,
		Critic:     crit,
		Trajectory: traj,
		Store:      st,
		LLM:        llmClient,
		MCP:        mcpClient,
		CallTimeout: time.Duration(cfg.LLM.TimeoutMS) * time.Millisecond,
		LoadBucket:  loadBucketReporter(),
	})

	bgCtx, bgCancel := context.WithCancel(ctx)
	defer bgCancel()
	startBackgroundLoops(bgCtx, cfg, reg, led, cls, zapLogger)

	srv := newHTTPServer(cfg, eng, zapLogger)
	serverErrors := make(chan error, 1)
	go func() {
		zapLogger.Info("http server starting", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	shutdownSig := make(chan os.Signal, 1)
	signal.Notify(shutdownSig, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		zapLogger.Error("http server failed", zap.Error(err))
	case sig := <-shutdownSig:
		zapLogger.Info("received shutdown signal", zap.String("signal", sig.String()))
	}

	bgCancel()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Warn("http graceful shutdown failed, forcing close", zap.Error(err))
		_ = srv.Close()
	}
	if err := eng.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("failed to persist learning state on shutdown", zap.Error(err))
	}
	zapLogger.Info("shutdown complete")
}

func loadConfiguration(ctx context.Context, path string) (*config.Config, error) {
	mgr, err := config.NewConfigManager(path)
	if err != nil {
		return nil, fmt.Errorf("create config manager: %w", err)
	}
	if err := mgr.Load(ctx); err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if err := mgr.Validate(ctx); err != nil {
		return nil, fmt.Errorf("validate configuration: %w", err)
	}
	return mgr.Get(ctx), nil
}

func newZapLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func newLLMClient(cfg *config.Config) (llmclient.Client, error) {
	switch cfg.LLM.Provider {
	case "openai":
		return openai.New(openai.Config{
			APIKey:     cfg.LLM.APIKey,
			Model:      cfg.LLM.Model,
			MaxRetries: 3,
		})
	case "null", "":
		return llmclient.NewNullClient(), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
}

func newMCPClient(ctx context.Context, cfg *config.Config) (mcpclient.Client, error) {
	switch cfg.MCP.Transport {
	case "http", "":
		return mcphttp.New(cfg.MCP.HTTPBase), nil
	case "grpc":
		return mcpgrpc.New(cfg.MCP.GRPCTarget, mcpgrpc.TLSConfig{})
	case "stdio":
		cli := stdio.New(stdio.Config{Command: cfg.MCP.StdioCommand, Args: cfg.MCP.StdioArgs})
		if err := cli.Connect(ctx); err != nil {
			return nil, fmt.Errorf("stdio transport: %w", err)
		}
		return cli, nil
	default:
		return nil, fmt.Errorf("unknown mcp transport %q", cfg.MCP.Transport)
	}
}

// registerRecoveryActions wires the small built-in action pool every
// Category can draw from: a same-tool retry, a tool-substitution nudge,
// and the critical-severity emergency actions recovery.Plan prepends.
func registerRecoveryActions(rec recovery.Engine, led ledger.Ledger, reg registry.Registry, mcp mcpclient.Client) {
	rec.RegisterAction(recovery.Action{
		Name:        "retry",
		Categories:  []types.Category{types.CategoryNetwork, types.CategoryTimeout, types.CategoryTool},
		MaxAttempts: 2,
		SuccessRate: 0.5,
		Run: func(ctx context.Context, ev types.ErrorEvent) error {
			deadline := time.Now().Add(10 * time.Second)
			res, err := mcp.Call(ctx, ev.Context.ToolID, ev.Context.Action, ev.Context.Parameters, deadline)
			if err != nil {
				return err
			}
			if res.Success {
				led.RecordSuccess(ev.Context.ToolID, time.Now())
			}
			return nil
		},
	})

	rec.RegisterAction(recovery.Action{
		Name:        "mark-offline-briefly",
		Categories:  []types.Category{types.CategoryResource, types.CategoryDependency, types.CategoryConfiguration, types.CategoryData, types.CategorySystem},
		SuccessRate: 0.3,
		Run: func(ctx context.Context, ev types.ErrorEvent) error {
			led.MarkOffline(ev.Context.ToolID, time.Now().Add(5*time.Minute))
			return nil
		},
	})

	rec.RegisterAction(recovery.Action{
		Name:       "emergency-restart",
		Categories: nil,
		SuccessRate: 1.0,
		Run: func(ctx context.Context, ev types.ErrorEvent) error {
			led.MarkOffline(ev.Context.ToolID, time.Now().Add(time.Minute))
			return reg.Refresh(ctx, true)
		},
	})

	rec.RegisterAction(recovery.Action{
		Name:       "emergency-cleanup",
		Categories: nil,
		SuccessRate: 1.0,
		Run: func(ctx context.Context, ev types.ErrorEvent) error {
			led.MarkOffline(ev.Context.ToolID, time.Now().Add(30*time.Second))
			return nil
		},
	})
}

// startBackgroundLoops launches the Self-Healing Rules (C9), Connectivity
// Prober (C11), and WebSocket Tool-Update Listener (C12) loops against the
// shared Ledger/Registry instances. They run independently of any single
// task's lifecycle and are stopped via ctx cancellation at shutdown.
func startBackgroundLoops(ctx context.Context, cfg *config.Config, reg registry.Registry, led ledger.Ledger, cls classifier.Classifier, logger *zap.Logger) {
	listToolIDs := func() []string {
		snap := reg.Snapshot(ctx)
		ids := make([]string, 0, len(snap.Tools))
		for id := range snap.Tools {
			ids = append(ids, id)
		}
		return ids
	}

	healer := selfheal.New(selfheal.Config{
		Interval:              time.Duration(cfg.SelfHeal.IntervalSeconds) * time.Second,
		FailuresPerHourLimit:  cfg.SelfHeal.FailuresPerHourLimit,
		OfflineMinutes:        cfg.SelfHeal.OfflineMinutes,
		ConsecutiveForRestart: cfg.SelfHeal.ConsecutiveForRestart,
		LoadThreshold:         cfg.SelfHeal.LoadThreshold,
	}, led, selfHealInvoker(led, reg, time.Duration(cfg.SelfHeal.OfflineMinutes)*time.Minute, logger), listToolIDs, func() float64 { return 0 })
	go healer.Run(ctx)

	probe := prober.New(prober.Config{
		IntervalSeconds: cfg.Prober.IntervalSeconds,
	}, led, cls, func() string { return fmt.Sprintf("probe-%d", time.Now().UnixNano()) })
	go probe.Run(ctx, proberTargets(reg, cfg))

	if cfg.Registry.ToolHostAddress != "" {
		wsURL := toWebSocketURL(cfg.Registry.ToolHostAddress)
		listener := wsupdate.New(wsupdate.Config{URL: wsURL}, led, cls, func() string {
			return fmt.Sprintf("wsupdate-%d", time.Now().UnixNano())
		})
		go listener.Run(ctx, func(ctx context.Context, toolID string) error {
			return reg.Refresh(ctx, true)
		})
	}
}

// selfHealInvoker performs the effect behind each self-healing rule name
// directly against the Ledger/Registry rather than routing through the
// Recovery Engine's category-scored action pool, since that pool selects
// by category and past success rate, not by the specific named effect a
// rule already decided on.
func selfHealInvoker(led ledger.Ledger, reg registry.Registry, offlineFor time.Duration, logger *zap.Logger) selfheal.ActionInvoker {
	return func(ctx context.Context, actionName, toolID string) error {
		switch actionName {
		case "isolate":
			led.MarkOffline(toolID, time.Now().Add(offlineFor))
			return nil
		case "restart":
			led.MarkOffline(toolID, time.Now().Add(time.Minute))
			return reg.Refresh(ctx, true)
		case "optimize":
			logger.Info("self-heal: load threshold exceeded, requesting optimize")
			return nil
		default:
			return fmt.Errorf("selfheal: unknown action %q", actionName)
		}
	}
}

func proberTargets(reg registry.Registry, cfg *config.Config) prober.TargetLister {
	base := cfg.MCP.HTTPBase
	authority := base
	if u, err := url.Parse(base); err == nil && u.Host != "" {
		authority = u.Host
	}
	return func() []prober.Target {
		snap := reg.Snapshot(context.Background())
		targets := make([]prober.Target, 0, len(snap.Tools))
		for id := range snap.Tools {
			targets = append(targets, prober.Target{
				ToolID:    id,
				Address:   authority,
				HealthURL: strings.TrimSuffix(base, "/") + "/health",
			})
		}
		return targets
	}
}

func toWebSocketURL(httpAddr string) string {
	if strings.HasPrefix(httpAddr, "https://") {
		return "wss://" + strings.TrimPrefix(httpAddr, "https://")
	}
	return "ws://" + strings.TrimPrefix(strings.TrimPrefix(httpAddr, "http://"), "ws://")
}

func loadBucketReporter() func() string {
	return func() string { return "low" }
}

// restoreHealth replays each persisted tool's recorded success/offline
// state into the freshly constructed Ledger at startup. This is a
// best-effort reconstruction: Ledger exposes no direct record setter, so
// the reliability score is rebuilt by replaying successes (RecordSuccess
// only adds its recovery step, capped at 1.0) rather than being restored
// to its exact last-saved value.
func restoreHealth(ctx context.Context, st store.Store, led ledger.Ledger, logger *zap.Logger) {
	records, err := st.ListHealth(ctx)
	if err != nil {
		logger.Warn("failed to load persisted tool health", zap.Error(err))
		return
	}
	now := time.Now()
	for _, rec := range records {
		for i := int64(0); i < rec.Successes; i++ {
			led.RecordSuccess(rec.ToolID, rec.LastSuccess)
		}
		if rec.OfflineUntil.After(now) {
			led.MarkOffline(rec.ToolID, rec.OfflineUntil)
		}
	}
}

func newHTTPServer(cfg *config.Config, eng engine.Engine, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/healthz", healthHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/tasks/", func(w http.ResponseWriter, r *http.Request) {
		taskID := strings.TrimPrefix(r.URL.Path, "/tasks/")
		traj, ok := eng.GetTrajectory(taskID)
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := writeJSON(w, traj); err != nil {
			logger.Warn("failed to encode trajectory response", zap.Error(err))
		}
	})

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = writeJSON(w, map[string]string{"status": "healthy", "version": version})
}

func writeJSON(w http.ResponseWriter, v interface{}) error {
	return json.NewEncoder(w).Encode(v)
}
