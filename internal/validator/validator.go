// Package validator implements the Structured-Call Validator (C3): the
// pipeline a ToolCall passes through after alias normalization and before
// dispatch. It resolves the call against the current tool catalog,
// verifies required parameters are present and well-typed (coercing where
// safe), applies a handful of auto-complete heuristics for commonly
// omitted parameters, and checks a small set of cross-parameter
// consistency rules.
package validator

import (
	"context"

	"github.com/toolrun-ai/toolrund/pkg/types"
)

// Outcome classifies how validation resolved a call.
type Outcome string

const (
	OutcomeAccepted       Outcome = "accepted"
	OutcomeAutoCorrected  Outcome = "auto_corrected"
	OutcomeRejected       Outcome = "rejected"
)

// Result is the outcome of validating one ToolCall.
type Result struct {
	Outcome    Outcome
	Call       types.ToolCall // normalized/corrected call, valid when Outcome != Rejected
	Reasons    []string       // human-readable rejection reasons, or applied-fix notes
	Suggestion string         // nearest-match suggestion when Outcome == Rejected
}

// TaskContext is the subset of task state the validator's auto-complete
// heuristics may consult (e.g. to fill a missing "query" parameter from the
// task description).
type TaskContext struct {
	TaskDescription string
	Keywords        []string
}

// Validator is the Structured-Call Validator interface.
type Validator interface {
	// Validate runs the full pipeline: alias normalization is assumed to
	// have already happened upstream (C2); this stage resolves the call
	// against the tool catalog and validates/completes its parameters.
	Validate(ctx context.Context, call types.ToolCall, taskCtx TaskContext) Result
}
