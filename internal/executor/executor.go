// Package executor implements the Tiered Fallback Executor (C6): per
// capability, it holds an ordered CapabilityStrategyList and runs
// strategies in tier order (primary → secondary → fallback → emergency),
// sub-sorted within a tier by (success rate desc, consecutive failures
// asc), until one succeeds or the list is exhausted.
//
// Each attempt is bounded by the strategy's own timeout. A strategy that
// accumulates a configured number of consecutive failures auto-disables
// for a cooldown window — except the last remaining enabled
// fallback-or-emergency strategy for a capability, which is never
// disabled; its success rate is floored at a small positive value
// instead so it stays selectable as a last resort.
package executor

import (
	"context"
	"time"

	"github.com/toolrun-ai/toolrund/pkg/types"
)

// Invoker actually performs one strategy's attempt — dialing the tool
// through whatever transport the capability's strategy targets — and
// reports the resulting payload or error. The executor interprets
// ctx.Err() == context.DeadlineExceeded as a timeout outcome.
type Invoker func(ctx context.Context, s types.Strategy) (payload interface{}, err error)

// Attempt is one entry in a capability's execution log.
type Attempt struct {
	Strategy types.Strategy
	Outcome  types.Outcome
	Duration time.Duration
	Err      string
}

// Config carries the tunables from the Executor configuration section.
type Config struct {
	MaxConsecutiveFailures int
	CooldownSeconds        int
	MinSuccessRateFloor    float64
}

// Executor is the Tiered Fallback Executor interface.
type Executor interface {
	// Execute runs capability's strategy list in tier order using invoke
	// for each attempt, short-circuiting on the first success. Returns the
	// terminal ToolCallResult plus the full execution log.
	Execute(ctx context.Context, capability string, invoke Invoker) (types.ToolCallResult, []Attempt)

	// Strategies returns a snapshot of capability's current strategy list,
	// for observability/tests.
	Strategies(capability string) []types.Strategy

	// SetStrategies replaces capability's strategy list wholesale (used at
	// startup and whenever the capability catalog changes).
	SetStrategies(capability string, strategies []types.Strategy)
}
