package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/toolrun-ai/toolrund/pkg/types"
)

func testConfig() Config {
	return Config{MaxConsecutiveFailures: 5, CooldownSeconds: 30, MinSuccessRateFloor: 0.05}
}

func strategy(name string, tier types.Tier) types.Strategy {
	return types.Strategy{Name: name, Tier: tier, Enabled: true, Timeout: time.Second, SuccessRate: 0.5}
}

func TestExecute_FirstSuccessShortCircuits(t *testing.T) {
	e := New(testConfig())
	e.SetStrategies("web_search", []types.Strategy{
		strategy("primary", types.TierPrimary),
		strategy("secondary", types.TierSecondary),
	})

	calls := 0
	result, log := e.Execute(context.Background(), "web_search", func(ctx context.Context, s types.Strategy) (interface{}, error) {
		calls++
		if s.Name == "primary" {
			return nil, errors.New("boom")
		}
		return "ok", nil
	})

	assert.Equal(t, types.OutcomeSuccess, result.Outcome)
	assert.Equal(t, "secondary", result.StrategyUsed)
	assert.Equal(t, types.TierSecondary, result.Tier)
	assert.Len(t, log, 2)
	assert.Equal(t, 2, calls)
}

func TestExecute_TriesTiersInOrder(t *testing.T) {
	e := New(testConfig())
	e.SetStrategies("deep_research", []types.Strategy{
		strategy("emergency", types.TierEmergency),
		strategy("primary", types.TierPrimary),
		strategy("fallback", types.TierFallback),
	})

	var order []string
	_, _ = e.Execute(context.Background(), "deep_research", func(ctx context.Context, s types.Strategy) (interface{}, error) {
		order = append(order, s.Name)
		return nil, errors.New("fail")
	})

	assert.Equal(t, []string{"primary", "fallback", "emergency"}, order)
}

func TestExecute_TimeoutClassifiesAsTimeoutOutcome(t *testing.T) {
	e := New(testConfig())
	s := strategy("primary", types.TierPrimary)
	s.Timeout = 10 * time.Millisecond
	e.SetStrategies("cap", []types.Strategy{s})

	_, log := e.Execute(context.Background(), "cap", func(ctx context.Context, s types.Strategy) (interface{}, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	assert.Len(t, log, 1)
	assert.Equal(t, types.OutcomeTimeout, log[0].Outcome)
}

func TestExecute_AutoDisablesAfterMaxConsecutiveFailures(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConsecutiveFailures = 2
	e := New(cfg)
	e.SetStrategies("cap", []types.Strategy{
		strategy("primary", types.TierPrimary),
		strategy("fallback", types.TierFallback),
	})

	for i := 0; i < 2; i++ {
		e.Execute(context.Background(), "cap", func(ctx context.Context, s types.Strategy) (interface{}, error) {
			if s.Name == "primary" {
				return nil, errors.New("fail")
			}
			return nil, errors.New("fail too")
		})
	}

	strategies := e.Strategies("cap")
	for _, s := range strategies {
		if s.Name == "primary" {
			assert.False(t, s.Enabled, "primary should auto-disable after repeated failures")
		}
	}
}

func TestExecute_NeverDisablesLastFallbackOrEmergencyStrategy(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConsecutiveFailures = 1
	e := New(cfg)
	e.SetStrategies("cap", []types.Strategy{
		strategy("only-fallback", types.TierFallback),
	})

	e.Execute(context.Background(), "cap", func(ctx context.Context, s types.Strategy) (interface{}, error) {
		return nil, errors.New("fail")
	})

	strategies := e.Strategies("cap")
	assert.True(t, strategies[0].Enabled, "last fallback-or-emergency strategy must never auto-disable")
	assert.Equal(t, cfg.MinSuccessRateFloor, strategies[0].SuccessRate)
}
