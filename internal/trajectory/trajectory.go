// Package trajectory assembles the append-only per-task trajectory record
// (spec §6 "trajectory output") from the stream of ToolCalls,
// ToolCallResults, ErrorEvents, and CorrectionPatches observed while a
// task runs, and can serialize or replay the finished record.
//
// This is a structured, per-task complement to internal/audit's flat
// line-per-event log: audit.Logger fires one JSON line per event for the
// durable trail; Recorder accumulates those same events into one ordered
// Trajectory a caller can fetch and serialize as a single document once
// the task concludes.
package trajectory

import (
	"context"
	"time"

	"github.com/toolrun-ai/toolrund/pkg/types"
)

// Status tracks a trajectory's position in its lifecycle.
type Status string

const (
	StatusOpen      Status = "open"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// StepKind discriminates which observation a Step carries.
type StepKind string

const (
	StepToolCall StepKind = "tool_call"
	StepResult   StepKind = "tool_result"
	StepError    StepKind = "error"
	StepPatch    StepKind = "patch"
)

// Step is one atomic, ordered observation in a Trajectory.
type Step struct {
	Seq  int       `json:"seq"`
	At   time.Time `json:"at"`
	Kind StepKind  `json:"kind"`

	Call   *types.ToolCall         `json:"call,omitempty"`
	Result *types.ToolCallResult   `json:"result,omitempty"`
	Error  *types.ErrorEvent       `json:"error,omitempty"`
	Patch  *types.CorrectionPatch  `json:"patch,omitempty"`
}

// Trajectory is the complete, ordered record of one task's run.
type Trajectory struct {
	TaskID      string    `json:"task_id"`
	Description string    `json:"description"`
	Status      Status    `json:"status"`
	StartedAt   time.Time `json:"started_at"`
	EndedAt     time.Time `json:"ended_at,omitempty"`
	Steps       []Step    `json:"steps"`
}

// Recorder is the Trajectory Step Extractor interface.
type Recorder interface {
	// Start begins a new trajectory for taskID. Calling Start twice for the
	// same taskID without an intervening Complete returns an error.
	Start(ctx context.Context, taskID, description string) error

	// RecordToolCall, RecordToolCallResult, RecordErrorEvent, and
	// RecordCorrectionPatch append one observation each, in call order.
	RecordToolCall(ctx context.Context, taskID string, call types.ToolCall) error
	RecordToolCallResult(ctx context.Context, taskID string, result types.ToolCallResult) error
	RecordErrorEvent(ctx context.Context, taskID string, ev types.ErrorEvent) error
	RecordCorrectionPatch(ctx context.Context, taskID string, patch types.CorrectionPatch) error

	// Complete closes out taskID's trajectory with a terminal status.
	Complete(ctx context.Context, taskID string, status Status) error

	// Get returns a snapshot of taskID's trajectory, open or completed.
	Get(taskID string) (Trajectory, bool)

	// Serialize returns taskID's trajectory as a single JSON document —
	// the "replay" form: a complete record a caller can persist or
	// re-ingest independent of the live in-memory state.
	Serialize(taskID string) ([]byte, error)
}
