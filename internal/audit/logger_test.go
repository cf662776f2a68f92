package audit

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolrun-ai/toolrund/pkg/types"
)

func newTestLogger(t *testing.T) (Logger, *Config) {
	t.Helper()
	tmpDir := t.TempDir()
	config := &Config{
		AuditLogPath: filepath.Join(tmpDir, "trajectory.log"),
		AppLogPath:   filepath.Join(tmpDir, "app.log"),
		MaxSize:      10,
		MaxBackups:   3,
		MaxAge:       7,
		Compress:     false,
		LogLevel:     "info",
	}
	logger, err := NewLogger(config)
	require.NoError(t, err)
	t.Cleanup(func() { _ = logger.Close() })
	return logger, config
}

func TestNewLogger(t *testing.T) {
	logger, _ := newTestLogger(t)
	assert.NotNil(t, logger)
}

func TestNewLoggerWithInvalidLevel(t *testing.T) {
	tmpDir := t.TempDir()
	config := &Config{
		AuditLogPath: filepath.Join(tmpDir, "trajectory.log"),
		AppLogPath:   filepath.Join(tmpDir, "app.log"),
		LogLevel:     "invalid",
	}

	_, err := NewLogger(config)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	assert.Equal(t, "logs/trajectory.log", config.AuditLogPath)
	assert.Equal(t, "logs/app.log", config.AppLogPath)
	assert.Equal(t, 100, config.MaxSize)
	assert.Equal(t, 10, config.MaxBackups)
	assert.Equal(t, "info", config.LogLevel)
}

func TestLogToolCallAndResult(t *testing.T) {
	logger, config := newTestLogger(t)
	ctx := context.Background()

	call := types.ToolCall{
		CallID:     42,
		ToolID:     "code_sandbox",
		Action:     "run",
		Parameters: map[string]interface{}{"code": "print(1)"},
		TaskID:     "task-1",
		CreatedAt:  time.Now(),
	}

	require.NoError(t, logger.LogToolCall(ctx, call))

	result := types.ToolCallResult{
		CallID:       42,
		Outcome:      types.OutcomeSuccess,
		Duration:     250 * time.Millisecond,
		Tier:         types.TierPrimary,
		StrategyUsed: "sandbox-primary",
	}
	require.NoError(t, logger.LogToolCallResult(ctx, call, result))

	require.NoError(t, logger.Sync())

	content, err := os.ReadFile(config.AuditLogPath)
	require.NoError(t, err)
	logContent := string(content)

	assert.Contains(t, logContent, "task-1")
	assert.Contains(t, logContent, "tool_call.issued")
	assert.Contains(t, logContent, "tool_call.result")
	assert.Contains(t, logContent, "code_sandbox")
}

func TestLogErrorEventAndCorrectionPatch(t *testing.T) {
	logger, config := newTestLogger(t)
	ctx := context.Background()

	ev := types.ErrorEvent{
		ID:        "err-1",
		Timestamp: time.Now(),
		Component: "executor",
		ErrorType: "timeout",
		Message:   "call timed out after 30s",
		Severity:  types.SeverityHigh,
		Category:  types.CategoryTimeout,
		Context:   types.CallContext{ToolID: "browser", Action: "navigate"},
	}
	require.NoError(t, logger.LogErrorEvent(ctx, ev))

	patch := types.CorrectionPatch{
		PatchID:     "patch-1",
		Type:        types.PatchFixParameters,
		TargetField: "parameters.url",
		Confidence:  0.8,
		AutoApply:   true,
	}
	require.NoError(t, logger.LogCorrectionPatch(ctx, patch, true))

	require.NoError(t, logger.Sync())

	content, err := os.ReadFile(config.AuditLogPath)
	require.NoError(t, err)
	logContent := string(content)

	assert.Contains(t, logContent, "error.raised")
	assert.Contains(t, logContent, "err-1")
	assert.Contains(t, logContent, "correction.applied")
	assert.Contains(t, logContent, "patch-1")
}

func TestLogStrategyAndToolAvailabilityEvents(t *testing.T) {
	logger, config := newTestLogger(t)
	ctx := context.Background()

	require.NoError(t, logger.LogStrategyDisabled(ctx, "code_execution", "sandbox-primary"))
	require.NoError(t, logger.LogStrategyReenabled(ctx, "code_execution", "sandbox-primary"))
	require.NoError(t, logger.LogToolOffline(ctx, "browser", time.Now().Add(5*time.Minute)))
	require.NoError(t, logger.LogToolRecovered(ctx, "browser"))

	require.NoError(t, logger.Sync())

	content, err := os.ReadFile(config.AuditLogPath)
	require.NoError(t, err)
	logContent := string(content)

	assert.Contains(t, logContent, "strategy.disabled")
	assert.Contains(t, logContent, "strategy.reenabled")
	assert.Contains(t, logContent, "tool.marked_offline")
	assert.Contains(t, logContent, "tool.recovered")
}

func TestBufferAutoFlush(t *testing.T) {
	logger, config := newTestLogger(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		event := NewEvent(EventHealthCheck).WithCorrelationID("test").WithResult(ResultSuccess)
		require.NoError(t, logger.Log(ctx, event))
	}

	time.Sleep(1500 * time.Millisecond)

	content, err := os.ReadFile(config.AuditLogPath)
	require.NoError(t, err)
	assert.NotEmpty(t, content)
}

func TestBufferFullFlush(t *testing.T) {
	logger, config := newTestLogger(t)
	ctx := context.Background()

	for i := 0; i < 105; i++ {
		event := NewEvent(EventHealthCheck).WithCorrelationID("test").WithResult(ResultSuccess)
		require.NoError(t, logger.Log(ctx, event))
	}

	require.NoError(t, logger.Sync())

	content, err := os.ReadFile(config.AuditLogPath)
	require.NoError(t, err)

	lines := strings.Split(string(content), "\n")
	eventCount := 0
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			eventCount++
		}
	}
	assert.GreaterOrEqual(t, eventCount, 105)
}

func TestCorrelationID(t *testing.T) {
	id1 := GenerateCorrelationID()
	id2 := GenerateCorrelationID()
	assert.NotEqual(t, id1, id2)

	ctx := context.Background()
	assert.Equal(t, "", GetCorrelationID(ctx))

	ctx = WithCorrelationID(ctx, "test-correlation-id")
	assert.Equal(t, "test-correlation-id", GetCorrelationID(ctx))
}

func TestEventBuilderChain(t *testing.T) {
	event := NewEvent(EventToolCallResult).
		WithCorrelationID("corr-123").
		WithTool("browser", "navigate").
		WithDescription("navigated to page").
		WithResult(ResultSuccess).
		WithDuration(3 * time.Second).
		WithMetadata("reason", "retry succeeded")

	assert.Equal(t, "corr-123", event.CorrelationID)
	assert.Equal(t, "corr-123", event.TaskID)
	assert.Equal(t, "browser", event.ToolID)
	assert.Equal(t, "navigate", event.Action)
	assert.Equal(t, ResultSuccess, event.Result)
	assert.EqualValues(t, 3000, event.DurationMs)
	assert.Equal(t, "retry succeeded", event.Metadata["reason"])
}

func TestEventJSONSerialization(t *testing.T) {
	event := NewEvent(EventToolCallIssued).
		WithCorrelationID("task-789").
		WithTool("deep_search", "query").
		WithResult(ResultSuccess)

	data, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded Event
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, "task-789", decoded.CorrelationID)
	assert.Equal(t, "deep_search", decoded.ToolID)
	assert.Equal(t, EventToolCallIssued, decoded.EventType)
	assert.Equal(t, ResultSuccess, decoded.Result)
}
