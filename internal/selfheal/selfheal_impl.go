package selfheal

import (
	"context"
	"time"
)

const (
	actionIsolate = "isolate"
	actionOptimize = "optimize"
	actionRestart  = "restart"
)

type loopRunner struct {
	cfg    Config
	health ToolHealthView
	invoke ActionInvoker

	// listTools returns the current set of tool_ids to evaluate.
	listTools func() []string
	// currentLoad returns the current coarse system load in [0,1].
	currentLoad func() float64
}

// New constructs a self-healing Runner.
func New(cfg Config, health ToolHealthView, invoke ActionInvoker, listTools func() []string, currentLoad func() float64) Runner {
	return &loopRunner{cfg: cfg, health: health, invoke: invoke, listTools: listTools, currentLoad: currentLoad}
}

func (r *loopRunner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			load := 0.0
			if r.currentLoad != nil {
				load = r.currentLoad()
			}
			r.EvaluateOnce(ctx, r.listTools(), load)
		}
	}
}

func (r *loopRunner) EvaluateOnce(ctx context.Context, toolIDs []string, loadBucket float64) {
	now := time.Now()

	if loadBucket > r.cfg.LoadThreshold {
		_ = r.invoke(ctx, actionOptimize, "")
	}

	for _, toolID := range toolIDs {
		if r.health.FailuresInLastHour(toolID, now) > r.cfg.FailuresPerHourLimit {
			_ = r.invoke(ctx, actionIsolate, toolID)
		}

		health := r.health.Health(toolID)
		if health.ConsecutiveFailures >= r.cfg.ConsecutiveForRestart {
			_ = r.invoke(ctx, actionRestart, toolID)
		}
	}
}
