// Package critic implements the Validation Critic (C10): the last-resort
// repair stage invoked when the Recovery Engine (C8) exhausts its action
// pool, or the same FailureSignature keeps recurring. It proposes
// CorrectionPatches against the failing ToolCall, validates each one
// through the Structured-Call Validator (C3) before surfacing it, and
// tracks which correction strategy actually pans out once the caller
// reports back.
package critic

import (
	"context"
	"time"

	"github.com/toolrun-ai/toolrund/internal/validator"
	"github.com/toolrun-ai/toolrund/pkg/types"
)

// Strategy names one of the six correction strategies a CorrectionPatch may
// have come from. Kept distinct from types.PatchType because a single
// PatchType (PatchFixParameters) is produced by two different strategies
// with different learned-success-rate tracks.
type Strategy string

const (
	StrategyToolMismatch         Strategy = "tool_mismatch"
	StrategyActionCorrection     Strategy = "action_correction"
	StrategyParameterCorrection  Strategy = "parameter_correction"
	StrategyAlternativeApproach  Strategy = "alternative_approach"
	StrategyContextReframe       Strategy = "context_reframe"
	StrategySkillGap             Strategy = "skill_gap"
)

// baseConfidence is the fixed confidence every strategy starts a candidate
// patch at, per spec.
var baseConfidence = map[Strategy]float64{
	StrategyToolMismatch:        0.8,
	StrategyActionCorrection:    0.75,
	StrategyParameterCorrection: 0.7,
	StrategyAlternativeApproach: 0.6,
	StrategyContextReframe:      0.5,
	StrategySkillGap:            0.7,
}

// Config tunes the critic's trigger and auto-apply behavior.
type Config struct {
	// RepeatTrigger is the minimum same-signature occurrence count within
	// the recent window that invokes the critic even without a C8 failure.
	RepeatTrigger int

	// WindowSize is how many of the most recent ErrorEvents are
	// considered when counting signature repeats and building the
	// dedupe/rank list.
	WindowSize int

	// AutoApplyThreshold is the per-patch confidence at or above which a patch
	// is marked AutoApply (the caller may apply it without a human/LLM
	// confirmation step).
	AutoApplyThreshold float64
}

// CriticAnalysis is C10's output for one invocation: a root-cause summary,
// the patches that survived C3 re-validation, and an overall confidence.
type CriticAnalysis struct {
	RootCause  string
	Patches    []types.CorrectionPatch
	Confidence float64
}

// Request bundles everything the critic needs to analyze a failure.
type Request struct {
	// FailingCall is the ToolCall that most recently failed.
	FailingCall types.ToolCall

	// RecentEvents are the last M ErrorEvents (including the triggering
	// one), newest last. Typically ledger.GlobalWindow(), tail-windowed
	// to Config.WindowSize by the caller or by the critic itself.
	RecentEvents []types.ErrorEvent

	// TaskCtx is the current task context, consulted by the
	// action-correction and skill-gap strategies for keyword signals.
	TaskCtx validator.TaskContext

	// Whitelist is the current set of live tool_ids, for the
	// tool-mismatch strategy's edit-distance search.
	Whitelist []string

	// Schema is the failing tool's schema, if tool_id is still known
	// (used by action-correction to enumerate supported actions).
	Schema types.ToolSchema

	// SchemaKnown reports whether Schema is valid; false models the
	// "tool_id unknown" branch of tool-mismatch.
	SchemaKnown bool

	// Catalog is the full current tool catalog (tool_id -> schema),
	// consulted by the tool-mismatch strategy's "wrong tool" branch to
	// find a different live tool that supports the failing call's action.
	Catalog map[string]types.ToolSchema
}

// Critic is the Validation Critic interface.
type Critic interface {
	// ShouldTrigger reports whether the critic should run, given whether
	// C8's recovery plan ended in success and the recent event window.
	ShouldTrigger(recoverySucceeded bool, signature types.FailureSignature, recentEvents []types.ErrorEvent) bool

	// Analyze runs the full pipeline (dedupe/rank, generate candidates,
	// validate via C3, assemble CriticAnalysis).
	Analyze(ctx context.Context, req Request) CriticAnalysis

	// RecordOutcome feeds back whether a previously-returned patch (by
	// its PatchID) succeeded once applied, updating that patch's
	// strategy's learned success rate for future ranking.
	RecordOutcome(patchID string, success bool)
}

// nowFunc is a package variable so tests can override it; production uses
// time.Now.
var nowFunc = time.Now
