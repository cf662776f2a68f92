package trajectory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/toolrun-ai/toolrund/internal/audit"
	"github.com/toolrun-ai/toolrund/pkg/types"
)

type recorderImpl struct {
	auditLog audit.Logger
	nowFunc  func() time.Time

	mu           sync.RWMutex
	trajectories map[string]*Trajectory
}

// New creates a Recorder that mirrors every recorded observation into
// auditLog (the append-only line-per-event trail) while also assembling
// the per-task structured Trajectory this package owns.
func New(auditLog audit.Logger) Recorder {
	return &recorderImpl{
		auditLog:     auditLog,
		nowFunc:      time.Now,
		trajectories: make(map[string]*Trajectory),
	}
}

func (r *recorderImpl) Start(ctx context.Context, taskID, description string) error {
	if taskID == "" {
		return fmt.Errorf("trajectory: task_id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.trajectories[taskID]; ok && existing.Status == StatusOpen {
		return fmt.Errorf("trajectory: task %q already has an open trajectory", taskID)
	}

	r.trajectories[taskID] = &Trajectory{
		TaskID:      taskID,
		Description: description,
		Status:      StatusOpen,
		StartedAt:   r.nowFunc(),
	}
	return nil
}

func (r *recorderImpl) append(taskID string, step Step) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.trajectories[taskID]
	if !ok {
		return fmt.Errorf("trajectory: no open trajectory for task %q", taskID)
	}
	step.Seq = len(t.Steps) + 1
	step.At = r.nowFunc()
	t.Steps = append(t.Steps, step)
	return nil
}

func (r *recorderImpl) RecordToolCall(ctx context.Context, taskID string, call types.ToolCall) error {
	if err := r.append(taskID, Step{Kind: StepToolCall, Call: &call}); err != nil {
		return err
	}
	if r.auditLog != nil {
		_ = r.auditLog.LogToolCall(ctx, call)
	}
	return nil
}

func (r *recorderImpl) RecordToolCallResult(ctx context.Context, taskID string, result types.ToolCallResult) error {
	if err := r.append(taskID, Step{Kind: StepResult, Result: &result}); err != nil {
		return err
	}
	if r.auditLog != nil {
		_ = r.auditLog.LogToolCallResult(ctx, types.ToolCall{CallID: result.CallID}, result)
	}
	return nil
}

func (r *recorderImpl) RecordErrorEvent(ctx context.Context, taskID string, ev types.ErrorEvent) error {
	if err := r.append(taskID, Step{Kind: StepError, Error: &ev}); err != nil {
		return err
	}
	if r.auditLog != nil {
		_ = r.auditLog.LogErrorEvent(ctx, ev)
	}
	return nil
}

func (r *recorderImpl) RecordCorrectionPatch(ctx context.Context, taskID string, patch types.CorrectionPatch) error {
	if err := r.append(taskID, Step{Kind: StepPatch, Patch: &patch}); err != nil {
		return err
	}
	if r.auditLog != nil {
		_ = r.auditLog.LogCorrectionPatch(ctx, patch, patch.AutoApply)
	}
	return nil
}

func (r *recorderImpl) Complete(ctx context.Context, taskID string, status Status) error {
	if status != StatusCompleted && status != StatusFailed {
		return fmt.Errorf("trajectory: invalid terminal status %q", status)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.trajectories[taskID]
	if !ok {
		return fmt.Errorf("trajectory: no open trajectory for task %q", taskID)
	}
	t.Status = status
	t.EndedAt = r.nowFunc()
	return nil
}

func (r *recorderImpl) Get(taskID string) (Trajectory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.trajectories[taskID]
	if !ok {
		return Trajectory{}, false
	}
	return cloneTrajectory(*t), true
}

func (r *recorderImpl) Serialize(taskID string) ([]byte, error) {
	t, ok := r.Get(taskID)
	if !ok {
		return nil, fmt.Errorf("trajectory: no trajectory for task %q", taskID)
	}
	return json.Marshal(t)
}

func cloneTrajectory(t Trajectory) Trajectory {
	clone := t
	clone.Steps = make([]Step, len(t.Steps))
	copy(clone.Steps, t.Steps)
	return clone
}
