// Package prober implements the Live Tool Connectivity Prober (C11): a
// background loop that independently verifies each registered tool is
// actually reachable, rather than waiting for a real task to surface a
// network failure. On failure it feeds a network-category ErrorEvent into
// the Health Ledger (C4); on recovery it clears the offline flag without
// retroactively restoring reliability, since that's C4's own decay/recovery
// rule's job.
package prober

import (
	"context"
	"time"
)

// Target is one tool worth probing.
type Target struct {
	ToolID string

	// Address is a "host:port" pair probed with a TCP dial. Required.
	Address string

	// HealthURL, if non-empty, is additionally probed with an HTTP GET
	// expecting a 2xx response.
	HealthURL string
}

// Config tunes the prober's cadence and per-check timeouts.
type Config struct {
	IntervalSeconds int
	DialTimeout     time.Duration
	HTTPTimeout     time.Duration
}

// Result is the outcome of probing one Target once.
type Result struct {
	ToolID    string
	Reachable bool
	Err       error
}

// TargetLister supplies the current set of tools to probe, read fresh on
// every tick so newly installed/removed tools are picked up without
// restarting the prober.
type TargetLister func() []Target

// IDFunc mints the ID used for an ErrorEvent emitted on probe failure.
type IDFunc func() string

// Prober is the Live Tool Connectivity Prober interface.
type Prober interface {
	// Run starts the ticking probe loop; it blocks until ctx is canceled.
	Run(ctx context.Context, targets TargetLister)

	// ProbeOnce probes a single target immediately, outside the ticker
	// cadence — used by Run internally and exposed for tests/on-demand
	// health checks.
	ProbeOnce(ctx context.Context, target Target) Result
}
