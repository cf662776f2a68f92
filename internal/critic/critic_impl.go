package critic

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/toolrun-ai/toolrund/internal/alias"
	"github.com/toolrun-ai/toolrund/internal/jsonrepair"
	"github.com/toolrun-ai/toolrund/internal/llmclient"
	"github.com/toolrun-ai/toolrund/internal/validator"
	"github.com/toolrun-ai/toolrund/pkg/types"
)

// successAlpha is the exponential-moving-average rate used to update a
// strategy's learned success rate, matching the fixed-alpha approach
// already used by internal/executor for the same kind of feedback signal.
const successAlpha = 0.2

// confidenceSensitivity controls how far a strategy's learned success rate
// (relative to the neutral 0.5 prior) can swing its base confidence.
const confidenceSensitivity = 0.4

type ruleCritic struct {
	cfg        Config
	corrections func() alias.ErrorCorrections
	val        validator.Validator
	llm        llmclient.Client // nil disables parameter-correction

	mu           sync.Mutex
	learnedRate  map[Strategy]float64
	patchStrategy map[string]Strategy
	nextPatchID  int
}

// New constructs a Critic. corrections supplies the current
// alias.ErrorCorrections (read live so hot-reloaded mapping changes take
// effect); llm may be nil, which simply disables the parameter-correction
// strategy.
func New(cfg Config, corrections func() alias.ErrorCorrections, val validator.Validator, llm llmclient.Client) Critic {
	return &ruleCritic{
		cfg:           cfg,
		corrections:   corrections,
		val:           val,
		llm:           llm,
		learnedRate:   map[Strategy]float64{},
		patchStrategy: map[string]Strategy{},
	}
}

func (c *ruleCritic) ShouldTrigger(recoverySucceeded bool, signature types.FailureSignature, recentEvents []types.ErrorEvent) bool {
	if !recoverySucceeded {
		return true
	}
	window := windowed(recentEvents, c.cfg.WindowSize)
	count := 0
	for _, ev := range window {
		if ev.Signature() == signature {
			count++
		}
	}
	return count >= c.cfg.RepeatTrigger
}

func windowed(events []types.ErrorEvent, size int) []types.ErrorEvent {
	if size <= 0 || len(events) <= size {
		return events
	}
	return events[len(events)-size:]
}

// signatureCount pairs a FailureSignature with its frequency in the window.
type signatureCount struct {
	sig   types.FailureSignature
	count int
}

func rankSignatures(events []types.ErrorEvent) []signatureCount {
	counts := map[types.FailureSignature]int{}
	order := []types.FailureSignature{}
	for _, ev := range events {
		sig := ev.Signature()
		if _, seen := counts[sig]; !seen {
			order = append(order, sig)
		}
		counts[sig]++
	}
	ranked := make([]signatureCount, 0, len(order))
	for _, sig := range order {
		ranked = append(ranked, signatureCount{sig: sig, count: counts[sig]})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].count > ranked[j].count })
	return ranked
}

func (c *ruleCritic) Analyze(ctx context.Context, req Request) CriticAnalysis {
	window := windowed(req.RecentEvents, c.cfg.WindowSize)
	ranked := rankSignatures(window)

	rootCause := "no recent failure signature observed"
	if len(ranked) > 0 {
		top := ranked[0]
		rootCause = fmt.Sprintf("%s.%s repeatedly failed with %s (%d occurrence(s) in the recent window)",
			top.sig.ToolID, top.sig.Action, top.sig.ErrorType, top.count)
	}

	var candidates []types.CorrectionPatch

	if p, ok := c.toolMismatch(req); ok {
		candidates = append(candidates, p)
	}
	if p, ok := c.actionCorrection(req); ok {
		candidates = append(candidates, p)
	}
	if p, ok := c.parameterCorrection(ctx, req); ok {
		candidates = append(candidates, p)
	}
	if p, ok := c.alternativeApproach(req); ok {
		candidates = append(candidates, p)
	}
	if p, ok := c.skillGap(req); ok {
		candidates = append(candidates, p)
	}

	var surviving []types.CorrectionPatch
	for _, p := range candidates {
		if c.revalidates(ctx, req, p) {
			surviving = append(surviving, p)
		}
	}

	// Context-reframe only fires when nothing structural survived and the
	// repeat count supports it, per spec ("no structural correction fits").
	if len(surviving) == 0 {
		if p, ok := c.contextReframe(ranked); ok {
			surviving = append(surviving, p)
		}
	}

	var confidenceSum float64
	for _, p := range surviving {
		confidenceSum += p.Confidence
	}
	overall := 0.0
	if len(surviving) > 0 {
		overall = confidenceSum / float64(len(surviving))
	}

	return CriticAnalysis{RootCause: rootCause, Patches: surviving, Confidence: overall}
}

func (c *ruleCritic) revalidates(ctx context.Context, req Request, patch types.CorrectionPatch) bool {
	if patch.IsAdvisory() {
		return true
	}
	hypothetical := req.FailingCall.Clone()
	switch patch.TargetField {
	case "tool_id":
		if s, ok := patch.CorrectedValue.(string); ok {
			hypothetical.ToolID = s
		}
	case "action":
		if s, ok := patch.CorrectedValue.(string); ok {
			hypothetical.Action = s
		}
	case "tool_id,action":
		if m, ok := patch.CorrectedValue.(map[string]string); ok {
			hypothetical.ToolID = m["tool_id"]
			hypothetical.Action = m["action"]
		}
	case "parameters":
		if m, ok := patch.CorrectedValue.(map[string]interface{}); ok {
			hypothetical.Parameters = m
		}
	case "tools":
		// install_tools patches don't rewrite the call itself; they
		// advise provisioning a missing capability, so there is no
		// hypothetical call to re-validate.
		return true
	}

	result := c.val.Validate(ctx, hypothetical, req.TaskCtx)
	return result.Outcome != validator.OutcomeRejected
}

// toolMismatch covers both halves of the spec's "unknown or wrong" tool
// case: an unknown tool_id is substituted with the nearest live tool_id by
// edit distance; a known tool_id whose action it doesn't support, but that
// some other live tool does support, is substituted with that other tool
// (keeping the same action) — the LLM named the right action on the wrong
// tool.
func (c *ruleCritic) toolMismatch(req Request) (types.CorrectionPatch, bool) {
	if !req.SchemaKnown {
		nearest, ok := validator.NearestToolID(req.FailingCall.ToolID, req.Whitelist)
		if !ok {
			return types.CorrectionPatch{}, false
		}
		return c.newPatch(StrategyToolMismatch, types.PatchSubstituteTool, "tool_id",
			req.FailingCall.ToolID, nearest,
			fmt.Sprintf("substitute unknown tool_id %q with nearest live tool_id %q", req.FailingCall.ToolID, nearest)), true
	}

	if req.Schema.HasAction(req.FailingCall.Action) {
		return types.CorrectionPatch{}, false
	}

	var supporting []string
	for toolID, schema := range req.Catalog {
		if toolID == req.FailingCall.ToolID {
			continue
		}
		if schema.HasAction(req.FailingCall.Action) {
			supporting = append(supporting, toolID)
		}
	}
	if len(supporting) == 0 {
		return types.CorrectionPatch{}, false
	}
	sort.Strings(supporting)

	nearest, ok := validator.Nearest(req.FailingCall.ToolID, supporting, len(req.FailingCall.ToolID)+maxToolIDLen(supporting))
	if !ok {
		return types.CorrectionPatch{}, false
	}
	return c.newPatch(StrategyToolMismatch, types.PatchSubstituteTool, "tool_id",
		req.FailingCall.ToolID, nearest,
		fmt.Sprintf("substitute wrong tool_id %q with %q, which supports action %q", req.FailingCall.ToolID, nearest, req.FailingCall.Action)), true
}

// maxToolIDLen bounds the edit-distance search below so any candidate in
// candidates is reachable regardless of how dissimilar its name is from
// the failing tool_id — the filter on supporting the action already did
// the real narrowing.
func maxToolIDLen(candidates []string) int {
	max := 0
	for _, c := range candidates {
		if len(c) > max {
			max = len(c)
		}
	}
	return max
}

func (c *ruleCritic) actionCorrection(req Request) (types.CorrectionPatch, bool) {
	if !req.SchemaKnown || req.Schema.HasAction(req.FailingCall.Action) {
		return types.CorrectionPatch{}, false
	}

	actions := make([]string, 0, len(req.Schema.Actions))
	for a := range req.Schema.Actions {
		actions = append(actions, a)
	}
	if nearest, ok := validator.Nearest(req.FailingCall.Action, actions, 3); ok {
		return c.newPatch(StrategyActionCorrection, types.PatchReplaceAction, "action",
			req.FailingCall.Action, nearest,
			fmt.Sprintf("substitute unsupported action %q with nearest supported action %q", req.FailingCall.Action, nearest)), true
	}

	corrections := c.corrections()
	text := strings.ToLower(req.TaskCtx.TaskDescription)
	for keyword, action := range corrections.ActionDefaults {
		if strings.Contains(text, keyword) && req.Schema.HasAction(action) {
			return c.newPatch(StrategyActionCorrection, types.PatchReplaceAction, "action",
				req.FailingCall.Action, action,
				fmt.Sprintf("keyword %q in task description selected default action %q", keyword, action)), true
		}
	}
	return types.CorrectionPatch{}, false
}

// parameterCorrectionPromptTemplate asks the LLM for a strict JSON
// response shape — a flat parameter map, nothing else.
const parameterCorrectionPromptTemplate = `The following tool call failed parameter validation.

tool_id: %s
action: %s
original_parameters: %s
validation_errors: %s

Return ONLY a JSON object containing the corrected parameter map, no prose,
no markdown fences. Keep every parameter the original call needs; fix only
the values or keys that are wrong.`

func (c *ruleCritic) parameterCorrection(ctx context.Context, req Request) (types.CorrectionPatch, bool) {
	if c.llm == nil {
		return types.CorrectionPatch{}, false
	}

	original, _ := json.Marshal(req.FailingCall.Parameters)
	errs := "unknown"
	prompt := fmt.Sprintf(parameterCorrectionPromptTemplate, req.FailingCall.ToolID, req.FailingCall.Action, string(original), errs)

	deadline := nowFunc().Add(10 * time.Second) // bounded call
	reply, err := c.llm.Generate(ctx, []llmclient.Message{
		{Role: llmclient.RoleSystem, Content: "You repair malformed tool-call parameters. Respond with JSON only."},
		{Role: llmclient.RoleUser, Content: prompt},
	}, deadline)
	if err != nil {
		return types.CorrectionPatch{}, false
	}

	parsed, _, err := jsonrepair.Repair(reply)
	if err != nil {
		return types.CorrectionPatch{}, false
	}
	repaired, ok := parsed.(map[string]interface{})
	if !ok {
		return types.CorrectionPatch{}, false
	}

	return c.newPatch(StrategyParameterCorrection, types.PatchFixParameters, "parameters",
		req.FailingCall.Parameters, repaired,
		"LLM-repaired parameter map, re-validated under C3 before acceptance"), true
}

func (c *ruleCritic) alternativeApproach(req Request) (types.CorrectionPatch, bool) {
	corrections := c.corrections()
	key := req.FailingCall.ToolID + "/" + req.FailingCall.Action
	alt, ok := corrections.AlternativeTools[key]
	if !ok {
		return types.CorrectionPatch{}, false
	}
	parts := strings.SplitN(alt, "/", 2)
	if len(parts) != 2 {
		return types.CorrectionPatch{}, false
	}
	corrected := map[string]string{"tool_id": parts[0], "action": parts[1]}
	return c.newPatch(StrategyAlternativeApproach, types.PatchSubstituteTool, "tool_id,action",
		key, corrected,
		fmt.Sprintf("routed to preconfigured alternative %q for the same capability", alt)), true
}

func (c *ruleCritic) skillGap(req Request) (types.CorrectionPatch, bool) {
	corrections := c.corrections()
	haystack := strings.ToLower(req.FailingCall.ToolID + " " + req.FailingCall.Action)
	for _, ev := range req.RecentEvents {
		haystack += " " + strings.ToLower(ev.Message)
	}
	for keyword, toolClass := range corrections.SkillGapTools {
		if strings.Contains(haystack, keyword) {
			return c.newPatch(StrategySkillGap, types.PatchInstallTools, "tools",
				nil, []string{toolClass},
				fmt.Sprintf("error text mentions %q, requesting installation of the %q tool class", keyword, toolClass)), true
		}
	}
	return types.CorrectionPatch{}, false
}

func (c *ruleCritic) contextReframe(ranked []signatureCount) (types.CorrectionPatch, bool) {
	if len(ranked) == 0 || ranked[0].count < 2 {
		return types.CorrectionPatch{}, false
	}
	top := ranked[0]
	return c.newPatch(StrategyContextReframe, types.PatchContextReframe, "task",
		nil, "restart reasoning with a simplified task statement",
		fmt.Sprintf("%s.%s failed %d times with no structural correction available", top.sig.ToolID, top.sig.Action, top.count)), true
}

func (c *ruleCritic) newPatch(strategy Strategy, patchType types.PatchType, target string, original, corrected interface{}, rollback string) types.CorrectionPatch {
	c.mu.Lock()
	c.nextPatchID++
	id := fmt.Sprintf("critic-%d", c.nextPatchID)
	rate, ok := c.learnedRate[strategy]
	if !ok {
		rate = 0.5
	}
	c.patchStrategy[id] = strategy
	c.mu.Unlock()

	confidence := effectiveConfidence(baseConfidence[strategy], rate)

	return types.CorrectionPatch{
		PatchID:               id,
		Type:                  patchType,
		TargetField:           target,
		OriginalValue:         original,
		CorrectedValue:        corrected,
		ValidationSteps:       []string{"re-validated against the Structured-Call Validator"},
		RollbackInstructions:  rollback,
		Confidence:            confidence,
		AutoApply:             patchType != types.PatchContextReframe && confidence >= c.cfg.AutoApplyThreshold,
	}
}

func effectiveConfidence(base, learnedRate float64) float64 {
	adjusted := base * (1 + confidenceSensitivity*(learnedRate-0.5))
	if adjusted < 0 {
		return 0
	}
	if adjusted > 1 {
		return 1
	}
	return adjusted
}

func (c *ruleCritic) RecordOutcome(patchID string, success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	strategy, ok := c.patchStrategy[patchID]
	if !ok {
		return
	}
	rate, ok := c.learnedRate[strategy]
	if !ok {
		rate = 0.5
	}
	target := 0.0
	if success {
		target = 1.0
	}
	c.learnedRate[strategy] = rate + successAlpha*(target-rate)
}
