// Package selfheal implements the Self-Healing Rules (C9): a background
// loop, grounded on the teacher's immutable-rule-list evaluation style
// (internal/safety/policy's []struct{name, check, risk} table), that
// periodically evaluates a fixed rule list against live data from the
// Health/Failure Ledger (C4) and a caller-supplied load signal, and
// invokes one named action per firing rule through a caller-supplied
// ActionInvoker. The package itself only reads ledger state; the effect of
// each named action is the invoker's. The invoker cmd/toolrund wires acts
// on the ledger and registry directly; it does not go through the C8
// Recovery Engine.
//
// Rules, per spec:
//   - a tool with more than FailuresPerHourLimit failures in the last
//     hour is marked offline for OfflineMinutes;
//   - system load exceeding LoadThreshold triggers an "optimize" action;
//   - a tool with at least ConsecutiveForRestart consecutive failures
//     has a restart requested.
package selfheal

import (
	"context"
	"time"

	"github.com/toolrun-ai/toolrund/pkg/types"
)

// Config carries the tunables from the SelfHeal configuration section.
type Config struct {
	Interval              time.Duration
	FailuresPerHourLimit  int
	OfflineMinutes        int
	ConsecutiveForRestart int
	LoadThreshold         float64
}

// ToolHealthView is the subset of ledger.Ledger the rule loop reads.
// The rule loop never writes to the ledger itself — it only reads, and
// triggers change by invoking named actions through its ActionInvoker.
type ToolHealthView interface {
	FailuresInLastHour(toolID string, now time.Time) int
	Health(toolID string) types.ToolHealthRecord
}

// ActionInvoker performs the named self-healing action against toolID
// ("" for system-wide actions such as optimize).
type ActionInvoker func(ctx context.Context, actionName, toolID string) error

// Runner is the Self-Healing Rules background loop.
type Runner interface {
	// Run blocks, evaluating the rule list every Config.Interval, until ctx
	// is canceled.
	Run(ctx context.Context)

	// EvaluateOnce runs a single pass over toolIDs, for tests and for
	// callers that want to trigger an off-cycle check.
	EvaluateOnce(ctx context.Context, toolIDs []string, loadBucket float64)
}
