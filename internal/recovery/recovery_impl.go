package recovery

import (
	"context"
	"sort"
	"sync"

	"github.com/toolrun-ai/toolrund/pkg/types"
)

const (
	actionEmergencyRestart = "emergency-restart"
	actionEmergencyCleanup = "emergency-cleanup"
)

type engine struct {
	cfg Config

	mu      sync.Mutex
	actions map[string]*Action
}

// New constructs a recovery Engine with no registered actions.
func New(cfg Config) Engine {
	return &engine{cfg: cfg, actions: map[string]*Action{}}
}

func (e *engine) RegisterAction(a Action) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := a
	e.actions[a.Name] = &cp
}

func (e *engine) poolFor(category types.Category) []Action {
	e.mu.Lock()
	defer e.mu.Unlock()

	var pool []Action
	for _, a := range e.actions {
		for _, c := range a.Categories {
			if c == category {
				pool = append(pool, *a)
				break
			}
		}
	}
	sort.SliceStable(pool, func(i, j int) bool { return pool[i].SuccessRate > pool[j].SuccessRate })
	return pool
}

func (e *engine) emergencyAction(category types.Category) (Action, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	name := actionEmergencyRestart
	if category == types.CategoryResource {
		name = actionEmergencyCleanup
	}
	a, ok := e.actions[name]
	if !ok {
		return Action{}, false
	}
	return *a, true
}

func (e *engine) Plan(ev types.ErrorEvent) []Action {
	plan := e.poolFor(ev.Category)
	if ev.Severity == types.SeverityCritical {
		if emergency, ok := e.emergencyAction(ev.Category); ok {
			plan = append([]Action{emergency}, plan...)
		}
	}
	return plan
}

func (e *engine) Execute(ctx context.Context, ev types.ErrorEvent) (bool, string, []Attempt) {
	plan := e.Plan(ev)

	var log []Attempt
	for _, a := range plan {
		attemptCtx := ctx
		var cancel context.CancelFunc
		if a.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, a.Timeout)
		}

		maxAttempts := a.MaxAttempts
		if maxAttempts < 1 {
			maxAttempts = 1
		}

		succeeded := false
		var lastErr error
		for i := 0; i < maxAttempts; i++ {
			lastErr = a.Run(attemptCtx, ev)
			if lastErr == nil {
				succeeded = true
				break
			}
		}
		if cancel != nil {
			cancel()
		}

		errMsg := ""
		if lastErr != nil {
			errMsg = lastErr.Error()
		}
		log = append(log, Attempt{ActionName: a.Name, Success: succeeded, Err: errMsg})
		e.updateSuccessRate(a.Name, succeeded)

		if succeeded {
			return true, a.Name, log
		}
	}

	return false, "", log
}

func (e *engine) updateSuccessRate(name string, success bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	a, ok := e.actions[name]
	if !ok {
		return
	}
	if success {
		a.SuccessRate = minF(1.0, a.SuccessRate+e.cfg.RecoveryStep)
		return
	}
	a.SuccessRate *= e.cfg.DecayFactor
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
