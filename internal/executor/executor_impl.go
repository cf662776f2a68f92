package executor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/toolrun-ai/toolrund/pkg/types"
)

// successRateAlpha is the exponential-moving-average weight applied to
// each new outcome when updating a strategy's success rate.
const successRateAlpha = 0.2

type tieredExecutor struct {
	cfg Config

	mu         sync.Mutex
	strategies map[string][]types.Strategy
}

// New constructs an Executor.
func New(cfg Config) Executor {
	return &tieredExecutor{
		cfg:        cfg,
		strategies: map[string][]types.Strategy{},
	}
}

func (e *tieredExecutor) Strategies(capability string) []types.Strategy {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]types.Strategy, len(e.strategies[capability]))
	copy(out, e.strategies[capability])
	return out
}

func (e *tieredExecutor) SetStrategies(capability string, strategies []types.Strategy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := make([]types.Strategy, len(strategies))
	copy(cp, strategies)
	e.strategies[capability] = cp
}

var tierOrder = []types.Tier{types.TierPrimary, types.TierSecondary, types.TierFallback, types.TierEmergency}

func (e *tieredExecutor) orderedStrategies(capability string, now time.Time) []types.Strategy {
	e.mu.Lock()
	defer e.mu.Unlock()

	list := e.strategies[capability]
	for i := range list {
		if !list[i].Enabled && !list[i].DisabledUntil.IsZero() && !now.Before(list[i].DisabledUntil) {
			list[i].Enabled = true
			list[i].ConsecutiveFailures = 0
			list[i].DisabledUntil = time.Time{}
		}
	}
	e.strategies[capability] = list

	ordered := make([]types.Strategy, 0, len(list))
	for _, tier := range tierOrder {
		var inTier []types.Strategy
		for _, s := range list {
			if s.Tier == tier && s.Enabled {
				inTier = append(inTier, s)
			}
		}
		sort.SliceStable(inTier, func(i, j int) bool {
			if inTier[i].SuccessRate != inTier[j].SuccessRate {
				return inTier[i].SuccessRate > inTier[j].SuccessRate
			}
			return inTier[i].ConsecutiveFailures < inTier[j].ConsecutiveFailures
		})
		ordered = append(ordered, inTier...)
	}
	return ordered
}

// recordOutcome updates the stored strategy's stats in place, applying
// the auto-disable-with-floor-exception rule on repeated failure.
func (e *tieredExecutor) recordOutcome(capability string, name string, success bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	list := e.strategies[capability]
	for i := range list {
		if list[i].Name != name {
			continue
		}
		s := &list[i]

		observed := 0.0
		if success {
			observed = 1.0
		}
		s.SuccessRate = s.SuccessRate*(1-successRateAlpha) + observed*successRateAlpha

		if success {
			s.ConsecutiveFailures = 0
			return
		}

		s.ConsecutiveFailures++
		if s.ConsecutiveFailures < e.cfg.MaxConsecutiveFailures {
			return
		}

		if e.isLastEnabledFallbackOrEmergency(list, i) {
			s.SuccessRate = e.cfg.MinSuccessRateFloor
			s.ConsecutiveFailures = 0
			return
		}

		s.Enabled = false
		s.DisabledUntil = time.Now().Add(time.Duration(e.cfg.CooldownSeconds) * time.Second)
		return
	}
}

// isLastEnabledFallbackOrEmergency reports whether strategy index idx is
// the only remaining enabled fallback-or-emergency strategy in list.
func (e *tieredExecutor) isLastEnabledFallbackOrEmergency(list []types.Strategy, idx int) bool {
	s := list[idx]
	if s.Tier != types.TierFallback && s.Tier != types.TierEmergency {
		return false
	}
	for i, other := range list {
		if i == idx {
			continue
		}
		if (other.Tier == types.TierFallback || other.Tier == types.TierEmergency) && other.Enabled {
			return false
		}
	}
	return true
}

func classifyOutcome(ctx context.Context, err error) (types.Outcome, string) {
	if err == nil {
		return types.OutcomeSuccess, ""
	}
	if ctx.Err() == context.DeadlineExceeded {
		return types.OutcomeTimeout, err.Error()
	}
	return types.OutcomeFailure, err.Error()
}

func (e *tieredExecutor) Execute(ctx context.Context, capability string, invoke Invoker) (types.ToolCallResult, []Attempt) {
	ordered := e.orderedStrategies(capability, time.Now())

	var log []Attempt
	var last Attempt

	for _, s := range ordered {
		attemptCtx := ctx
		var cancel context.CancelFunc
		if s.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, s.Timeout)
		}

		start := time.Now()
		payload, err := invoke(attemptCtx, s)
		duration := time.Since(start)
		if cancel != nil {
			cancel()
		}

		outcome, errMsg := classifyOutcome(attemptCtx, err)
		attempt := Attempt{Strategy: s, Outcome: outcome, Duration: duration, Err: errMsg}
		log = append(log, attempt)
		last = attempt

		e.recordOutcome(capability, s.Name, outcome == types.OutcomeSuccess)

		if outcome == types.OutcomeSuccess {
			return types.ToolCallResult{
				Outcome:      types.OutcomeSuccess,
				Payload:      payload,
				Duration:     duration,
				Tier:         s.Tier,
				StrategyUsed: s.Name,
			}, log
		}
	}

	if len(ordered) == 0 {
		return types.ToolCallResult{
			Outcome:    types.OutcomeError,
			ErrorCause: fmt.Sprintf("no enabled strategy for capability %q", capability),
		}, log
	}

	return types.ToolCallResult{
		Outcome:      last.Outcome,
		ErrorCause:   last.Err,
		Duration:     last.Duration,
		Tier:         last.Strategy.Tier,
		StrategyUsed: last.Strategy.Name,
	}, log
}
