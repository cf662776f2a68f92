package critic

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/toolrun-ai/toolrund/internal/alias"
	"github.com/toolrun-ai/toolrund/internal/validator"
	"github.com/toolrun-ai/toolrund/pkg/types"
)

// acceptingValidator accepts every call except those whose tool_id is in
// the reject set, letting tests simulate C3 rejecting a hypothetical call.
type acceptingValidator struct {
	rejectToolIDs map[string]bool
}

func (v acceptingValidator) Validate(ctx context.Context, call types.ToolCall, taskCtx validator.TaskContext) validator.Result {
	if v.rejectToolIDs[call.ToolID] {
		return validator.Result{Outcome: validator.OutcomeRejected}
	}
	return validator.Result{Outcome: validator.OutcomeAccepted, Call: call}
}

func testConfig() Config {
	return Config{RepeatTrigger: 3, WindowSize: 5, AutoApplyThreshold: 0.75}
}

func noCorrections() alias.ErrorCorrections {
	return alias.ErrorCorrections{
		ActionDefaults:   map[string]string{},
		ParameterHints:   map[string]interface{}{},
		AlternativeTools: map[string]string{},
		SkillGapTools:    map[string]string{},
	}
}

func TestShouldTrigger_RecoveryFailedAlwaysTriggers(t *testing.T) {
	c := New(testConfig(), noCorrections, acceptingValidator{}, nil)
	sig := types.FailureSignature{ToolID: "search_tool", Action: "search", ErrorType: "NetworkError"}
	assert.True(t, c.ShouldTrigger(false, sig, nil))
}

func TestShouldTrigger_RepeatedSignatureTriggersEvenOnRecoverySuccess(t *testing.T) {
	c := New(testConfig(), noCorrections, acceptingValidator{}, nil)
	sig := types.FailureSignature{ToolID: "search_tool", Action: "search", ErrorType: "NetworkError"}
	events := []types.ErrorEvent{
		{Context: types.CallContext{ToolID: "search_tool", Action: "search"}, ErrorType: "NetworkError"},
		{Context: types.CallContext{ToolID: "search_tool", Action: "search"}, ErrorType: "NetworkError"},
		{Context: types.CallContext{ToolID: "search_tool", Action: "search"}, ErrorType: "NetworkError"},
	}

	assert.True(t, c.ShouldTrigger(true, sig, events))
	assert.False(t, c.ShouldTrigger(true, sig, events[:1]))
}

func TestAnalyze_ToolMismatchSubstitutesNearestLiveToolID(t *testing.T) {
	c := New(testConfig(), noCorrections, acceptingValidator{}, nil)

	req := Request{
		FailingCall: types.ToolCall{ToolID: "serch_tool", Action: "search", Parameters: map[string]interface{}{"query": "x"}},
		Whitelist:   []string{"search_tool", "fetch_tool"},
		SchemaKnown: false,
		RecentEvents: []types.ErrorEvent{
			{Context: types.CallContext{ToolID: "serch_tool", Action: "search"}, ErrorType: "UnknownTool"},
		},
	}

	analysis := c.Analyze(context.Background(), req)
	assert.NotEmpty(t, analysis.Patches)

	var found bool
	for _, p := range analysis.Patches {
		if p.Type == types.PatchSubstituteTool && p.TargetField == "tool_id" {
			found = true
			assert.Equal(t, "search_tool", p.CorrectedValue)
			assert.InDelta(t, 0.8, p.Confidence, 1e-9, "neutral learned rate leaves base confidence unchanged")
		}
	}
	assert.True(t, found, "expected a tool-mismatch patch")
}

func TestAnalyze_ToolMismatchSubstitutesWrongToolForSupportedAction(t *testing.T) {
	c := New(testConfig(), noCorrections, acceptingValidator{}, nil)

	deepsearchSchema := types.ToolSchema{
		ToolID:  "mcp-deepsearch",
		Actions: map[string]types.ActionSpec{"research": {}},
	}
	searchToolSchema := types.ToolSchema{
		ToolID:  "mcp-search-tool",
		Actions: map[string]types.ActionSpec{"search_and_install_tools": {}},
	}

	req := Request{
		FailingCall: types.ToolCall{ToolID: "mcp-deepsearch", Action: "search_and_install_tools", Parameters: map[string]interface{}{}},
		Whitelist:   []string{"mcp-deepsearch", "mcp-search-tool"},
		Schema:      deepsearchSchema,
		SchemaKnown: true,
		Catalog: map[string]types.ToolSchema{
			"mcp-deepsearch":  deepsearchSchema,
			"mcp-search-tool": searchToolSchema,
		},
		RecentEvents: []types.ErrorEvent{
			{Context: types.CallContext{ToolID: "mcp-deepsearch", Action: "search_and_install_tools"}, ErrorType: "UnsupportedAction"},
			{Context: types.CallContext{ToolID: "mcp-deepsearch", Action: "search_and_install_tools"}, ErrorType: "UnsupportedAction"},
			{Context: types.CallContext{ToolID: "mcp-deepsearch", Action: "search_and_install_tools"}, ErrorType: "UnsupportedAction"},
		},
	}

	analysis := c.Analyze(context.Background(), req)

	var found *types.CorrectionPatch
	for i, p := range analysis.Patches {
		if p.Type == types.PatchSubstituteTool && p.TargetField == "tool_id" {
			found = &analysis.Patches[i]
		}
	}
	if assert.NotNil(t, found, "expected a tool-mismatch patch substituting the tool for the same action") {
		assert.Equal(t, "mcp-search-tool", found.CorrectedValue)
		assert.GreaterOrEqual(t, found.Confidence, 0.7)
	}
}

func TestAnalyze_ActionCorrectionPicksNearestSupportedAction(t *testing.T) {
	c := New(testConfig(), noCorrections, acceptingValidator{}, nil)

	schema := types.ToolSchema{
		ToolID: "search_tool",
		Actions: map[string]types.ActionSpec{
			"research": {},
			"fetch":    {},
		},
	}

	req := Request{
		FailingCall: types.ToolCall{ToolID: "search_tool", Action: "reserch", Parameters: map[string]interface{}{}},
		Schema:      schema,
		SchemaKnown: true,
		RecentEvents: []types.ErrorEvent{
			{Context: types.CallContext{ToolID: "search_tool", Action: "reserch"}, ErrorType: "UnsupportedAction"},
		},
	}

	analysis := c.Analyze(context.Background(), req)

	var found bool
	for _, p := range analysis.Patches {
		if p.Type == types.PatchReplaceAction {
			found = true
			assert.Equal(t, "research", p.CorrectedValue)
		}
	}
	assert.True(t, found, "expected an action-correction patch")
}

func TestAnalyze_DropsPatchesThatFailRevalidation(t *testing.T) {
	c := New(testConfig(), noCorrections, acceptingValidator{rejectToolIDs: map[string]bool{"search_tool": true}}, nil)

	req := Request{
		FailingCall: types.ToolCall{ToolID: "serch_tool", Action: "search", Parameters: map[string]interface{}{}},
		Whitelist:   []string{"search_tool"},
		SchemaKnown: false,
	}

	analysis := c.Analyze(context.Background(), req)
	for _, p := range analysis.Patches {
		assert.NotEqual(t, types.PatchSubstituteTool, p.Type, "the only candidate patch should have been dropped by revalidation")
	}
}

func TestAnalyze_SkillGapKeywordProducesInstallToolsPatch(t *testing.T) {
	corrections := func() alias.ErrorCorrections {
		return alias.ErrorCorrections{SkillGapTools: map[string]string{"pdf": "pdf-toolkit"}}
	}
	c := New(testConfig(), corrections, acceptingValidator{}, nil)

	req := Request{
		FailingCall: types.ToolCall{ToolID: "doc_tool", Action: "extract", Parameters: map[string]interface{}{}},
		RecentEvents: []types.ErrorEvent{
			{Message: "no handler registered for pdf documents", Context: types.CallContext{ToolID: "doc_tool", Action: "extract"}},
		},
	}

	analysis := c.Analyze(context.Background(), req)

	var found bool
	for _, p := range analysis.Patches {
		if p.Type == types.PatchInstallTools {
			found = true
			assert.Equal(t, []string{"pdf-toolkit"}, p.CorrectedValue)
		}
	}
	assert.True(t, found)
}

func TestAnalyze_ContextReframeOnlyWhenNothingStructuralSurvives(t *testing.T) {
	c := New(testConfig(), noCorrections, acceptingValidator{}, nil)

	req := Request{
		FailingCall: types.ToolCall{ToolID: "search_tool", Action: "search", Parameters: map[string]interface{}{}},
		SchemaKnown: true,
		Schema:      types.ToolSchema{ToolID: "search_tool", Actions: map[string]types.ActionSpec{"search": {}}},
		RecentEvents: []types.ErrorEvent{
			{Context: types.CallContext{ToolID: "search_tool", Action: "search"}, ErrorType: "ToolError"},
			{Context: types.CallContext{ToolID: "search_tool", Action: "search"}, ErrorType: "ToolError"},
		},
	}

	analysis := c.Analyze(context.Background(), req)
	assert.Len(t, analysis.Patches, 1)
	assert.Equal(t, types.PatchContextReframe, analysis.Patches[0].Type)
	assert.True(t, analysis.Patches[0].IsAdvisory())
	assert.False(t, analysis.Patches[0].AutoApply, "advisory patches are never auto-applied")
}

func TestRecordOutcome_RaisesConfidenceOnRepeatedSuccess(t *testing.T) {
	c := New(testConfig(), noCorrections, acceptingValidator{}, nil)

	req := Request{
		FailingCall:  types.ToolCall{ToolID: "serch_tool", Action: "search"},
		Whitelist:    []string{"search_tool"},
		SchemaKnown:  false,
		RecentEvents: nil,
	}

	first := c.Analyze(context.Background(), req)
	assert.NotEmpty(t, first.Patches)
	baseline := first.Patches[0].Confidence

	for i := 0; i < 5; i++ {
		c.RecordOutcome(first.Patches[0].PatchID, true)
	}

	second := c.Analyze(context.Background(), req)
	assert.Greater(t, second.Patches[0].Confidence, baseline)
}
