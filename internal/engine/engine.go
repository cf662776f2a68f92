// Package engine is the composition root: it wires the Tool-Schema
// Registry, Alias & Mapping Layer, Structured-Call Validator, Health/
// Failure Ledger, Adaptive Dispatcher, Tiered Fallback Executor, Error
// Classifier, Recovery Engine, Validation Critic, and the external LLM/MCP
// clients into the single task-execution lifecycle: drive an LLM
// reasoning loop, turn its decisions into validated ToolCalls, dispatch
// and execute them with tiered fallback, classify and recover from
// failures, invoke the Validation Critic on repeated failure signatures,
// and emit a completed Trajectory.
//
// The background loops for Self-Healing Rules (C9), the Connectivity
// Prober (C11), and the WebSocket Tool-Update Listener (C12) are started
// separately by cmd/toolrund against the same shared Ledger/Registry
// instances; they are not part of the per-task RunTask lifecycle.
//
// Mirrors the teacher's internal/reasoning/engine.ReasoningEngine shape
// (Investigate/GetInvestigation/CancelInvestigation/ListInvestigations),
// adapted from a Kubernetes-investigation lifecycle to a tool-dispatch
// task lifecycle.
package engine

import (
	"context"

	"github.com/toolrun-ai/toolrund/internal/trajectory"
	"github.com/toolrun-ai/toolrund/pkg/types"
)

// Result is the terminal outcome of one RunTask call.
type Result struct {
	TaskID     string
	Status     trajectory.Status
	Summary    string
	Trajectory trajectory.Trajectory
}

// Engine is the task-execution composition root.
type Engine interface {
	// RunTask drives task to completion or failure, synchronously, and
	// returns once the model concludes, the step budget is exhausted, or
	// ctx is cancelled.
	RunTask(ctx context.Context, task types.Task) (Result, error)

	// GetTrajectory returns the structured trajectory for a task, whether
	// still running, completed, or failed.
	GetTrajectory(taskID string) (trajectory.Trajectory, bool)

	// Shutdown persists in-memory learning state (dispatcher weights, tool
	// health) to the store. Callers should invoke it once, during
	// graceful shutdown.
	Shutdown(ctx context.Context) error
}
