package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/toolrun-ai/toolrund/pkg/types"
)

func testConfig() Config {
	return Config{
		GlobalWindowSize:  1000,
		PerToolWindowSize: 100,
		FailureWindow:     24 * time.Hour,
		OfflineThreshold:  3,
		DecayFactor:       0.9,
		RecoveryStep:      0.01,
	}
}

func failureEvent(toolID string, at time.Time) types.ErrorEvent {
	return types.ErrorEvent{
		ID:        "e1",
		Timestamp: at,
		Component: "executor",
		ErrorType: "timeout",
		Severity:  types.SeverityMedium,
		Category:  types.CategoryTimeout,
		Context:   types.CallContext{ToolID: toolID, Action: "run"},
	}
}

func TestRecordFailure_DecaysReliability(t *testing.T) {
	l := New(testConfig())
	now := time.Now()

	assert.InDelta(t, 1.0, l.Reliability("code_sandbox"), 1e-9)

	l.RecordFailure(failureEvent("code_sandbox", now))
	assert.InDelta(t, 0.9, l.Reliability("code_sandbox"), 1e-9)

	l.RecordFailure(failureEvent("code_sandbox", now))
	assert.InDelta(t, 0.81, l.Reliability("code_sandbox"), 1e-9)
}

func TestRecordSuccess_ResetsConsecutiveFailuresAndRecovers(t *testing.T) {
	l := New(testConfig())
	now := time.Now()

	l.RecordFailure(failureEvent("browser", now))
	l.RecordFailure(failureEvent("browser", now))
	l.RecordSuccess("browser", now)

	health := l.Health("browser")
	assert.Equal(t, 0, health.ConsecutiveFailures)
	assert.InDelta(t, 0.82, health.Reliability, 1e-6)
}

func TestOfflineThreshold_MarksOfflineAfterConsecutiveFailures(t *testing.T) {
	l := New(testConfig())
	now := time.Now()

	for i := 0; i < 3; i++ {
		l.RecordFailure(failureEvent("deep_search", now))
	}

	assert.False(t, l.IsAvailable("deep_search", now))
}

func TestMarkOffline_AndRecoveryViaSuccess(t *testing.T) {
	l := New(testConfig())
	now := time.Now()

	l.MarkOffline("browser", now.Add(10*time.Minute))
	assert.False(t, l.IsAvailable("browser", now))

	l.RecordSuccess("browser", now)
	assert.True(t, l.IsAvailable("browser", now))
}

func TestRecentFailures_EvictsOutsideWindow(t *testing.T) {
	cfg := testConfig()
	cfg.FailureWindow = time.Hour
	l := New(cfg)

	now := time.Now()
	l.RecordFailure(failureEvent("file_search", now.Add(-2*time.Hour)))
	l.RecordFailure(failureEvent("file_search", now))

	recent := l.RecentFailures("file_search", now)
	assert.Len(t, recent, 1)
}

func TestGlobalWindow_BoundedBySize(t *testing.T) {
	cfg := testConfig()
	cfg.GlobalWindowSize = 2
	l := New(cfg)

	now := time.Now()
	l.RecordFailure(failureEvent("a", now))
	l.RecordFailure(failureEvent("b", now))
	l.RecordFailure(failureEvent("c", now))

	assert.Len(t, l.GlobalWindow(), 2)
}

func TestFailuresInLastHour(t *testing.T) {
	l := New(testConfig())
	now := time.Now()

	l.RecordFailure(failureEvent("browser", now.Add(-2*time.Hour)))
	l.RecordFailure(failureEvent("browser", now.Add(-10*time.Minute)))
	l.RecordFailure(failureEvent("browser", now))

	assert.Equal(t, 2, l.FailuresInLastHour("browser", now))
}
