package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/toolrun-ai/toolrund/internal/ledger"
	"github.com/toolrun-ai/toolrund/pkg/types"
)

func testLedger() ledger.Ledger {
	return ledger.New(ledger.Config{
		GlobalWindowSize:  100,
		PerToolWindowSize: 50,
		FailureWindow:     time.Hour,
		OfflineThreshold:  3,
		DecayFactor:       0.9,
		RecoveryStep:      0.01,
	})
}

func defaultWeights() Weights {
	return Weights{Historical: 0.4, Performance: 0.3, Context: 0.2, Reliability: 0.1}
}

func TestSelect_FiltersOfflineCandidates(t *testing.T) {
	led := testLedger()
	now := time.Now()
	led.MarkOffline("browser", now.Add(time.Hour))

	d := New(led, defaultWeights(), 0.01)
	candidates := []Candidate{
		{ToolID: "browser", Action: "fetch"},
		{ToolID: "deep_search", Action: "query"},
	}

	ranked := d.Select("web_search", candidates, TaskContext{Task: types.Task{Description: "search the web"}})
	assert.Len(t, ranked, 1)
	assert.Equal(t, "deep_search", ranked[0].ToolID)
}

func TestSelect_TieBreaksByReliabilityThenDurationThenToolID(t *testing.T) {
	led := testLedger()
	now := time.Now()
	// Decay "b"'s reliability below "a" and "c" so it tie-breaks last on reliability.
	led.RecordFailure(types.ErrorEvent{
		Timestamp: now,
		Context:   types.CallContext{ToolID: "b", Action: "run"},
	})

	d := New(led, Weights{Historical: 0, Performance: 0, Context: 0, Reliability: 1}, 0.01)
	candidates := []Candidate{
		{ToolID: "c", Action: "run", AvgDuration: 2 * time.Second},
		{ToolID: "a", Action: "run", AvgDuration: 1 * time.Second},
		{ToolID: "b", Action: "run", AvgDuration: 1 * time.Second},
	}

	ranked := d.Select("capability", candidates, TaskContext{})
	assert.Equal(t, []string{"a", "c", "b"}, []string{ranked[0].ToolID, ranked[1].ToolID, ranked[2].ToolID})
}

func TestContextHash_StableAndSensitiveToInputs(t *testing.T) {
	d := New(testLedger(), defaultWeights(), 0.01)

	ctxA := TaskContext{Task: types.Task{Type: "research", Description: "search for recent papers"}, LoadBucket: "low"}
	ctxB := TaskContext{Task: types.Task{Type: "research", Description: "search for recent papers"}, LoadBucket: "low"}
	ctxC := TaskContext{Task: types.Task{Type: "install", Description: "install a package"}, LoadBucket: "high"}

	assert.Equal(t, d.ContextHash(ctxA), d.ContextHash(ctxB))
	assert.NotEqual(t, d.ContextHash(ctxA), d.ContextHash(ctxC))
}

func TestRecordOutcome_NudgesDominantWeightUpOnConfidentSuccess(t *testing.T) {
	led := testLedger()
	d := New(led, Weights{Historical: 0.1, Performance: 0.1, Context: 0.1, Reliability: 0.7}, 0.01)

	before := d.Weights().Reliability
	taskCtx := TaskContext{Task: types.Task{Description: "search something"}}
	// reliability dominates this weight vector, and default ledger reliability
	// of 1.0 keeps the combined score above the confidence threshold.
	d.RecordOutcome(Candidate{ToolID: "deep_search", Action: "query"}, taskCtx, true)

	after := d.Weights().Reliability
	assert.Greater(t, after, before)

	sum := d.Weights().Historical + d.Weights().Performance + d.Weights().Context + d.Weights().Reliability
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestRecordOutcome_BuildsHistoricalSuccessRate(t *testing.T) {
	led := testLedger()
	d := New(led, defaultWeights(), 0.01)
	taskCtx := TaskContext{Task: types.Task{Description: "search the web"}}
	cand := Candidate{ToolID: "deep_search", Action: "query"}

	d.RecordOutcome(cand, taskCtx, true)
	d.RecordOutcome(cand, taskCtx, true)
	d.RecordOutcome(cand, taskCtx, false)

	impl := d.(*adaptiveDispatcher)
	rate := impl.historicalSuccessRate(cand, impl.ContextHash(taskCtx))
	assert.InDelta(t, 2.0/3.0, rate, 1e-9)
}
