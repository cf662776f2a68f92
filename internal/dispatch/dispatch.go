// Package dispatch implements the Adaptive Dispatcher (C5): given a
// required capability tag, it ranks the candidate (tool_id, action) pairs
// that can satisfy it, filtered by the Health/Failure Ledger's
// availability, using a weighted blend of four signals —
//
//	score = w_h * historical_success_rate(candidate, context_hash)
//	      + w_p * performance_score(candidate)
//	      + w_c * context_match(candidate, task)
//	      + w_r * reliability(candidate)
//
// Weights start at the configured defaults and are nudged after every
// observed outcome: on a high-confidence success the weight whose term
// contributed most to the winning score is nudged up by the configured
// adapt step; on a high-confidence failure it is nudged down by the same
// step. Weights are renormalized to sum to 1 after every nudge.
package dispatch

import (
	"time"

	"github.com/toolrun-ai/toolrund/pkg/types"
)

// Candidate is one (tool_id, action) pair eligible to satisfy a capability.
// AvgDuration is the observed average latency for this candidate, fed by
// the Tiered Fallback Executor's strategy stats; lower is better.
type Candidate struct {
	ToolID      string
	Action      string
	AvgDuration time.Duration
}

// TaskContext carries the task-derived signal the dispatcher's context-match
// term consumes, plus the coarse system load bucket used by the context hash.
type TaskContext struct {
	Task       types.Task
	LoadBucket string // "low" | "medium" | "high"
}

// ContextHash is a stable digest of (task type, detected keywords,
// complexity estimate, load bucket), used to key historical success rate.
type ContextHash string

// Weights is the four-term scoring weight vector. Fields always sum to 1.
type Weights struct {
	Historical  float64
	Performance float64
	Context     float64
	Reliability float64
}

// Dispatcher is the Adaptive Dispatcher interface.
type Dispatcher interface {
	// Select ranks candidates for capability under taskCtx, best-first.
	// Candidates the Health/Failure Ledger reports unavailable are dropped.
	// Ties break by reliability desc, then avg duration asc, then tool_id
	// lexicographically.
	Select(capability string, candidates []Candidate, taskCtx TaskContext) []types.CandidateScore

	// RecordOutcome nudges the scoring weights based on the observed
	// outcome of dispatching to winner under taskCtx, and updates the
	// historical success-rate table keyed by the task's context hash.
	RecordOutcome(winner Candidate, taskCtx TaskContext, success bool)

	// ContextHash computes the stable digest for taskCtx.
	ContextHash(taskCtx TaskContext) ContextHash

	// Weights returns the current weight vector, for observability/tests.
	Weights() Weights
}
