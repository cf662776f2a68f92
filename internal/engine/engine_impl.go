package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/toolrun-ai/toolrund/internal/alias"
	"github.com/toolrun-ai/toolrund/internal/classifier"
	"github.com/toolrun-ai/toolrund/internal/critic"
	"github.com/toolrun-ai/toolrund/internal/dispatch"
	"github.com/toolrun-ai/toolrund/internal/executor"
	"github.com/toolrun-ai/toolrund/internal/jsonrepair"
	"github.com/toolrun-ai/toolrund/internal/ledger"
	"github.com/toolrun-ai/toolrund/internal/llmclient"
	"github.com/toolrun-ai/toolrund/internal/mcpclient"
	"github.com/toolrun-ai/toolrund/internal/metrics"
	"github.com/toolrun-ai/toolrund/internal/prompt"
	"github.com/toolrun-ai/toolrund/internal/recovery"
	"github.com/toolrun-ai/toolrund/internal/registry"
	"github.com/toolrun-ai/toolrund/internal/store"
	"github.com/toolrun-ai/toolrund/internal/trajectory"
	"github.com/toolrun-ai/toolrund/internal/validator"
	"github.com/toolrun-ai/toolrund/pkg/types"
)

// Config carries every dependency the composition root wires together.
type Config struct {
	Registry   registry.Registry
	Aliases    alias.Manager
	Validator  validator.Validator
	Ledger     ledger.Ledger
	Dispatcher dispatch.Dispatcher
	Executor   executor.Executor
	Classifier classifier.Classifier
	Recovery   recovery.Engine
	Critic     critic.Critic
	Trajectory trajectory.Recorder
	Store      store.Store
	LLM        llmclient.Client
	MCP        mcpclient.Client

	// MaxSteps bounds the LLM reasoning loop per task.
	MaxSteps int
	// CallTimeout bounds every individual MCP tool call and LLM generation.
	CallTimeout time.Duration
	// LoadBucket reports the current coarse system load ("low"|"medium"|"high")
	// fed into the dispatcher's context hash.
	LoadBucket func() string
}

type taskEngine struct {
	cfg     Config
	nowFunc func() time.Time
	callSeq atomic.Int64
}

// New constructs the task-execution Engine from cfg.
func New(cfg Config) Engine {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = 12
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	if cfg.LoadBucket == nil {
		cfg.LoadBucket = func() string { return "low" }
	}
	return &taskEngine{cfg: cfg, nowFunc: time.Now}
}

func (e *taskEngine) nextCallID() int64 { return e.callSeq.Add(1) }

// decision is the parsed shape of one LLM turn.
type decision struct {
	Conclude   bool
	Summary    string
	Capability string
	Parameters map[string]interface{}
	Thinking   string
}

func parseDecision(raw string) (decision, error) {
	parsed, _, err := jsonrepair.Repair(raw)
	if err != nil {
		return decision{}, fmt.Errorf("repair: %w", err)
	}
	obj, ok := parsed.(map[string]interface{})
	if !ok {
		return decision{}, fmt.Errorf("decision is not a JSON object")
	}

	if conclude, _ := obj["conclude"].(bool); conclude {
		summary, _ := obj["summary"].(string)
		return decision{Conclude: true, Summary: summary}, nil
	}

	capability, _ := obj["capability"].(string)
	if capability == "" {
		return decision{}, fmt.Errorf("missing \"capability\"")
	}
	params, _ := obj["parameters"].(map[string]interface{})
	if params == nil {
		params = map[string]interface{}{}
	}
	thinking, _ := obj["thinking"].(string)
	return decision{Capability: capability, Parameters: params, Thinking: thinking}, nil
}

func (e *taskEngine) RunTask(ctx context.Context, task types.Task) (Result, error) {
	if err := e.cfg.Trajectory.Start(ctx, task.TaskID, task.Description); err != nil {
		return Result{}, fmt.Errorf("engine: start trajectory: %w", err)
	}

	messages := prompt.Initial(task)

	for step := 0; step < e.cfg.MaxSteps; step++ {
		select {
		case <-ctx.Done():
			_ = e.cfg.Trajectory.Complete(ctx, task.TaskID, trajectory.StatusFailed)
			return e.outcome(task.TaskID, trajectory.StatusFailed, "cancelled"), ctx.Err()
		default:
		}

		deadline := e.nowFunc().Add(e.cfg.CallTimeout)
		reply, err := e.cfg.LLM.Generate(ctx, messages, deadline)
		if err != nil {
			_ = e.cfg.Trajectory.Complete(ctx, task.TaskID, trajectory.StatusFailed)
			return e.outcome(task.TaskID, trajectory.StatusFailed, "LLM generation failed: "+err.Error()), err
		}

		dec, err := parseDecision(reply)
		if err != nil {
			messages = prompt.AppendRetryNudge(messages, reply, err.Error())
			continue
		}

		if dec.Conclude {
			_ = e.cfg.Trajectory.Complete(ctx, task.TaskID, trajectory.StatusCompleted)
			return e.outcome(task.TaskID, trajectory.StatusCompleted, dec.Summary), nil
		}

		call := types.ToolCall{
			CallID:     e.nextCallID(),
			Action:     dec.Capability,
			Parameters: dec.Parameters,
			Thinking:   dec.Thinking,
			TaskID:     task.TaskID,
			CreatedAt:  e.nowFunc(),
		}

		result := e.dispatchAndExecute(ctx, task, call)

		messages = prompt.AppendObservation(messages, reply, prompt.Observation{
			Capability: call.Action,
			Outcome:    result.Outcome,
			Payload:    result.Payload,
			ErrorCause: result.ErrorCause,
		})
	}

	_ = e.cfg.Trajectory.Complete(ctx, task.TaskID, trajectory.StatusFailed)
	return e.outcome(task.TaskID, trajectory.StatusFailed, "step budget exhausted"), nil
}

func (e *taskEngine) outcome(taskID string, status trajectory.Status, summary string) Result {
	traj, _ := e.cfg.Trajectory.Get(taskID)
	return Result{TaskID: taskID, Status: status, Summary: summary, Trajectory: traj}
}

// candidatesFor collects the available tools whose schema declares an
// action matching capability into unranked dispatch.Candidates for C5 to
// score.
func (e *taskEngine) candidatesFor(ctx context.Context, capability string) ([]dispatch.Candidate, map[string]types.ToolSchema) {
	snap := e.cfg.Registry.Snapshot(ctx)

	var candidates []dispatch.Candidate
	for toolID, schema := range snap.Tools {
		if !schema.HasAction(capability) {
			continue
		}
		if !e.cfg.Ledger.IsAvailable(toolID, e.nowFunc()) {
			continue
		}
		candidates = append(candidates, dispatch.Candidate{ToolID: toolID, Action: capability})
	}
	return candidates, snap.Tools
}

// dispatchAndExecute runs the full normalize -> validate -> dispatch ->
// execute happy path, falling back to classify -> recover -> critic on
// failure, for a single LLM-proposed capability call.
func (e *taskEngine) dispatchAndExecute(ctx context.Context, task types.Task, call types.ToolCall) types.ToolCallResult {
	taskCtx := dispatch.TaskContext{Task: task, LoadBucket: e.cfg.LoadBucket()}
	valCtx := validator.TaskContext{TaskDescription: task.Description}

	candidates, schemas := e.candidatesFor(ctx, call.Action)
	scored := e.cfg.Dispatcher.Select(call.Action, candidates, taskCtx)
	if len(scored) == 0 {
		return e.recordUnrecoverable(ctx, task, call, "dispatch", fmt.Sprintf("no available tool offers capability %q", call.Action))
	}

	winner := scored[0]
	call.ToolID = winner.ToolID

	normToolID, normAction, normParams, _ := e.cfg.Aliases.Normalize(call.ToolID, call.Action, call.Parameters)
	call.ToolID, call.Action, call.Parameters = normToolID, normAction, normParams

	validation := e.cfg.Validator.Validate(ctx, call, valCtx)
	if validation.Outcome == validator.OutcomeRejected {
		schema, known := schemas[call.ToolID]
		recovered, ok := e.tryCritic(ctx, task, call, valCtx, schema, known, validation.Reasons)
		if !ok {
			return e.recordUnrecoverable(ctx, task, call, "validator", joinReasons(validation.Reasons))
		}
		call = recovered
	} else {
		call = validation.Call
	}

	strategies := buildStrategies(call.Action, scored, e.cfg.CallTimeout)
	e.cfg.Executor.SetStrategies(call.Action, strategies)

	invoker := e.invoker(call)
	result, attempts := e.cfg.Executor.Execute(ctx, call.Action, invoker)

	for _, a := range attempts {
		metrics.ExecutorCallsTotal.WithLabelValues(string(a.Strategy.Tier), string(a.Outcome)).Inc()
		metrics.ExecutorCallDuration.WithLabelValues(string(a.Strategy.Tier)).Observe(a.Duration.Seconds())

		if a.Outcome == types.OutcomeSuccess {
			e.cfg.Ledger.RecordSuccess(a.Strategy.ToolID, e.nowFunc())
			continue
		}
		e.handleAttemptFailure(ctx, task, call, a)
	}

	metrics.DispatcherSelections.WithLabelValues(call.Action, winner.ToolID).Inc()
	metrics.DispatcherScore.WithLabelValues(call.Action).Observe(winner.Score)
	weights := e.cfg.Dispatcher.Weights()
	metrics.DispatcherWeight.WithLabelValues("historical").Set(weights.Historical)
	metrics.DispatcherWeight.WithLabelValues("performance").Set(weights.Performance)
	metrics.DispatcherWeight.WithLabelValues("context").Set(weights.Context)
	metrics.DispatcherWeight.WithLabelValues("reliability").Set(weights.Reliability)

	e.cfg.Dispatcher.RecordOutcome(dispatch.Candidate{ToolID: winner.ToolID, Action: winner.Action}, taskCtx, result.Outcome == types.OutcomeSuccess)

	result.CallID = call.CallID
	_ = e.cfg.Trajectory.RecordToolCall(ctx, task.TaskID, call)
	_ = e.cfg.Trajectory.RecordToolCallResult(ctx, task.TaskID, result)

	return result
}

// handleAttemptFailure classifies one failed executor attempt, records it
// against the Health/Failure Ledger and trajectory, and gives the
// Recovery Engine a chance to act on it.
func (e *taskEngine) handleAttemptFailure(ctx context.Context, task types.Task, call types.ToolCall, a executor.Attempt) {
	ev := e.classifyFailure(a.Strategy.ToolID, a.Strategy.Action, string(a.Outcome), a.Err, call.Parameters, false)
	e.cfg.Ledger.RecordFailure(ev)
	_ = e.cfg.Trajectory.RecordErrorEvent(ctx, task.TaskID, ev)

	succeeded, actionName, recLog := e.cfg.Recovery.Execute(ctx, ev)
	for _, r := range recLog {
		outcome := "failure"
		if r.Success {
			outcome = "success"
		}
		metrics.RecoveryActionsTotal.WithLabelValues(r.ActionName, outcome).Inc()
	}
	_ = succeeded
	_ = actionName
}

// recordUnrecoverable classifies a dispatch- or validation-stage failure
// (one with no executor attempt behind it) and records it as the call's
// terminal result. With no tool_id chosen (dispatch found no candidate),
// the Health/Failure Ledger has nothing to blame and is left untouched.
func (e *taskEngine) recordUnrecoverable(ctx context.Context, task types.Task, call types.ToolCall, component, message string) types.ToolCallResult {
	ev := e.classifyFailure(call.ToolID, call.Action, "ValidationError", message, call.Parameters, false)
	ev.Component = component
	if call.ToolID != "" {
		e.cfg.Ledger.RecordFailure(ev)
	}
	_ = e.cfg.Trajectory.RecordErrorEvent(ctx, task.TaskID, ev)

	result := types.ToolCallResult{CallID: call.CallID, Outcome: types.OutcomeError, ErrorCause: message}
	_ = e.cfg.Trajectory.RecordToolCall(ctx, task.TaskID, call)
	_ = e.cfg.Trajectory.RecordToolCallResult(ctx, task.TaskID, result)
	return result
}

func (e *taskEngine) classifyFailure(toolID, action, kind, message string, params map[string]interface{}, isCore bool) types.ErrorEvent {
	now := e.nowFunc()
	in := classifier.Input{
		Error:           classifier.RawError{Kind: kind, Message: message},
		Component:       "mcpclient",
		Call:            types.CallContext{ToolID: toolID, Action: action, Parameters: params},
		IsCoreComponent: isCore,
		FailuresLastHour: e.cfg.Ledger.FailuresInLastHour(toolID, now),
	}
	ev := e.cfg.Classifier.ToErrorEvent(in, fmt.Sprintf("ev-%d", e.nextCallID()), now)
	metrics.ClassifierEventsTotal.WithLabelValues(string(ev.Category), string(ev.Severity)).Inc()
	return ev
}

// tryCritic asks the Validation Critic for a correction patch when a call
// fails structured-call validation, applies the first auto-applicable
// patch, and re-validates. Returns the corrected call and true on success.
func (e *taskEngine) tryCritic(ctx context.Context, task types.Task, call types.ToolCall, valCtx validator.TaskContext, schema types.ToolSchema, schemaKnown bool, reasons []string) (types.ToolCall, bool) {
	ev := e.classifyFailure(call.ToolID, call.Action, "ValidationError", joinReasons(reasons), call.Parameters, false)
	e.cfg.Ledger.RecordFailure(ev)
	_ = e.cfg.Trajectory.RecordErrorEvent(ctx, task.TaskID, ev)

	sig := ev.Signature()
	window := e.cfg.Ledger.GlobalWindow()
	// A validation rejection never reaches a C8 recovery plan, so only the
	// signature-repeat rule decides whether the critic runs.
	if !e.cfg.Critic.ShouldTrigger(true, sig, window) {
		return call, false
	}

	snap := e.cfg.Registry.Snapshot(ctx)
	analysis := e.cfg.Critic.Analyze(ctx, critic.Request{
		FailingCall:  call,
		RecentEvents: window,
		TaskCtx:      valCtx,
		Whitelist:    snap.Whitelist(),
		Schema:       schema,
		SchemaKnown:  schemaKnown,
		Catalog:      snap.Tools,
	})

	for _, patch := range analysis.Patches {
		if !patch.AutoApply {
			continue
		}
		candidate := applyPatch(call, patch)
		result := e.cfg.Validator.Validate(ctx, candidate, valCtx)
		_ = e.cfg.Trajectory.RecordCorrectionPatch(ctx, task.TaskID, patch)
		metrics.CriticPatchesTotal.WithLabelValues(string(patch.Type), boolLabel(patch.AutoApply)).Inc()

		if result.Outcome != validator.OutcomeRejected {
			e.cfg.Critic.RecordOutcome(patch.PatchID, true)
			metrics.CriticPatchOutcome.WithLabelValues(string(patch.Type), "success").Inc()
			return result.Call, true
		}
		e.cfg.Critic.RecordOutcome(patch.PatchID, false)
		metrics.CriticPatchOutcome.WithLabelValues(string(patch.Type), "failure").Inc()
	}

	return call, false
}

// applyPatch rewrites call's targeted field(s) with the patch's corrected
// value, mirroring the critic's own revalidates() hypothetical-call logic.
func applyPatch(call types.ToolCall, patch types.CorrectionPatch) types.ToolCall {
	out := call.Clone()
	switch patch.TargetField {
	case "tool_id":
		if s, ok := patch.CorrectedValue.(string); ok {
			out.ToolID = s
		}
	case "action":
		if s, ok := patch.CorrectedValue.(string); ok {
			out.Action = s
		}
	case "tool_id,action":
		if m, ok := patch.CorrectedValue.(map[string]string); ok {
			out.ToolID = m["tool_id"]
			out.Action = m["action"]
		}
	case "parameters":
		if m, ok := patch.CorrectedValue.(map[string]interface{}); ok {
			out.Parameters = m
		}
	}
	return out
}

// buildStrategies turns C5's ranked candidates into a CapabilityStrategyList
// for C6, assigning tiers by rank: best candidate primary, next secondary,
// next fallback, the rest emergency.
func buildStrategies(capability string, scored []types.CandidateScore, timeout time.Duration) []types.Strategy {
	tiers := []types.Tier{types.TierPrimary, types.TierSecondary, types.TierFallback}
	strategies := make([]types.Strategy, 0, len(scored))
	for i, c := range scored {
		tier := types.TierEmergency
		if i < len(tiers) {
			tier = tiers[i]
		}
		strategies = append(strategies, types.Strategy{
			Name:        fmt.Sprintf("%s/%s", c.ToolID, c.Action),
			Capability:  capability,
			Tier:        tier,
			ToolID:      c.ToolID,
			Action:      c.Action,
			Timeout:     timeout,
			MaxRetries:  1,
			SuccessRate: c.Reliability,
			Enabled:     true,
		})
	}
	return strategies
}

// invoker builds the executor.Invoker that dispatches one strategy attempt
// through the configured MCP transport.
func (e *taskEngine) invoker(call types.ToolCall) executor.Invoker {
	return func(ctx context.Context, s types.Strategy) (interface{}, error) {
		deadline := e.nowFunc().Add(s.Timeout)
		res, err := e.cfg.MCP.Call(ctx, s.ToolID, s.Action, call.Parameters, deadline)
		if err != nil {
			return nil, err
		}
		return res.Payload, nil
	}
}

func (e *taskEngine) GetTrajectory(taskID string) (trajectory.Trajectory, bool) {
	return e.cfg.Trajectory.Get(taskID)
}

func (e *taskEngine) Shutdown(ctx context.Context) error {
	w := e.cfg.Dispatcher.Weights()
	err := e.cfg.Store.SaveWeights(ctx, store.WeightsRecord{
		Historical:  w.Historical,
		Performance: w.Performance,
		Context:     w.Context,
		Reliability: w.Reliability,
		UpdatedAt:   e.nowFunc(),
	})
	if err != nil {
		return fmt.Errorf("engine: save weights: %w", err)
	}

	snap := e.cfg.Registry.Snapshot(ctx)
	for toolID := range snap.Tools {
		h := e.cfg.Ledger.Health(toolID)
		rec := store.HealthRecord{
			ToolID:              toolID,
			Successes:           h.Successes,
			Failures:            h.Failures,
			ConsecutiveFailures: h.ConsecutiveFailures,
			LastSuccess:         h.LastSuccess,
			OfflineUntil:        h.OfflineUntil,
			Reliability:         h.Reliability,
			UpdatedAt:           e.nowFunc(),
		}
		if err := e.cfg.Store.SaveHealth(ctx, rec); err != nil {
			return fmt.Errorf("engine: save health %q: %w", toolID, err)
		}
	}
	return nil
}

func joinReasons(reasons []string) string {
	if len(reasons) == 0 {
		return "validation rejected the call"
	}
	out := reasons[0]
	for _, r := range reasons[1:] {
		out += "; " + r
	}
	return out
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
