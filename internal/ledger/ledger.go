// Package ledger implements the Health/Failure Ledger (C4): the single
// owner of per-tool reliability state and the rolling windows of recent
// ErrorEvents that the rest of the system reasons about.
//
// It tracks, per tool_id, a ToolHealthRecord (successes, failures,
// consecutive failures, reliability) and maintains two ErrorEvent windows:
// a global count-based window of the most recent N events across every
// tool, and a per-tool time-based window bounded by a failure horizon. A
// tool is marked offline after a configurable number of consecutive
// failures and recovers on its next observed success.
package ledger

import (
	"time"

	"github.com/toolrun-ai/toolrund/pkg/types"
)

// Ledger is the Health/Failure Ledger interface.
type Ledger interface {
	// RecordSuccess records a successful call against toolID, resetting
	// its consecutive-failure count, clearing any offline mark, and
	// nudging reliability up by the configured recovery step.
	RecordSuccess(toolID string, at time.Time)

	// RecordFailure records a failed call, appends ev to both the global
	// and per-tool windows, decays toolID's reliability, and marks it
	// offline once the configured consecutive-failure threshold is met.
	RecordFailure(ev types.ErrorEvent)

	// MarkOffline force-marks toolID offline until the given time,
	// independent of the consecutive-failure counter (used by C11/C9).
	MarkOffline(toolID string, until time.Time)

	// IsAvailable reports whether toolID may currently be dispatched to.
	IsAvailable(toolID string, now time.Time) bool

	// Reliability returns toolID's current reliability score in [0, 1].
	// Tools with no history default to 1.0 (optimistic prior).
	Reliability(toolID string) float64

	// Health returns a copy of toolID's current health record.
	Health(toolID string) types.ToolHealthRecord

	// RecentFailures returns the per-tool failure window for toolID,
	// evicting entries older than the configured failure horizon.
	RecentFailures(toolID string, now time.Time) []types.ErrorEvent

	// GlobalWindow returns the most recent global ErrorEvents, newest last.
	GlobalWindow() []types.ErrorEvent

	// FailuresInLastHour returns the count of toolID's failures observed
	// within the last hour, used by C9's self-healing rules.
	FailuresInLastHour(toolID string, now time.Time) int
}
