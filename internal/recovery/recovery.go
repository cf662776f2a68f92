// Package recovery implements the Recovery Engine (C8): given a
// classified ErrorEvent it assembles an ordered recovery plan from the
// category's eligible action pool, sorted by descending prior success
// rate, executes actions sequentially until one succeeds, and updates
// each attempted action's success rate the same way the Health/Failure
// Ledger (C4) updates tool reliability — multiplicative decay on
// failure, additive recovery on success.
//
// Critical-severity events prepend an emergency action ahead of the
// category pool. Actions are registered by name; their actual effect
// (reconnecting an MCP client, marking a tool offline via C4, delegating
// to C6, releasing caches, ...) is supplied by the caller as an
// ActionFunc, keeping this package free of transport/ledger/executor
// dependencies beyond the types it orders and scores.
package recovery

import (
	"context"
	"time"

	"github.com/toolrun-ai/toolrund/pkg/types"
)

// ActionFunc performs one recovery action's effect for ev. A non-nil
// error means the attempt failed.
type ActionFunc func(ctx context.Context, ev types.ErrorEvent) error

// Action is one entry in a category's recovery action pool.
type Action struct {
	Name        string
	Categories  []types.Category
	Timeout     time.Duration
	MaxAttempts int
	SuccessRate float64
	Run         ActionFunc
}

// Attempt is one executed step of a recovery plan.
type Attempt struct {
	ActionName string
	Success    bool
	Err        string
	Duration   time.Duration
}

// Config carries the success-rate update tunables, reusing the ledger's
// decay/recovery vocabulary.
type Config struct {
	DecayFactor  float64
	RecoveryStep float64
}

// Engine is the Recovery Engine interface.
type Engine interface {
	// RegisterAction adds or replaces a named action in the engine's pool.
	RegisterAction(a Action)

	// Plan returns the ordered list of actions eligible for ev's category,
	// sorted by descending success rate, with an emergency action
	// prepended when ev.Severity is critical.
	Plan(ev types.ErrorEvent) []Action

	// Execute runs ev's plan sequentially, stopping at the first success,
	// and returns the outcome plus the full attempt log.
	Execute(ctx context.Context, ev types.ErrorEvent) (succeeded bool, actionName string, log []Attempt)
}
