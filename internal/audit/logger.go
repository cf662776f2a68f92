package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/toolrun-ai/toolrund/pkg/types"
)

// Logger defines the interface for trajectory/audit logging. One JSON line
// is appended per ToolCall, ToolCallResult, ErrorEvent, and CorrectionPatch
// observed while running a task, forming the append-only trajectory output
// described under external interfaces.
type Logger interface {
	// Log logs a raw audit event.
	Log(ctx context.Context, event *Event) error

	// LogToolCall records a call entering the Structured-Call Validator.
	LogToolCall(ctx context.Context, call types.ToolCall) error

	// LogToolCallResult records the terminal outcome of a dispatched call.
	LogToolCallResult(ctx context.Context, call types.ToolCall, result types.ToolCallResult) error

	// LogErrorEvent records a classified failure.
	LogErrorEvent(ctx context.Context, ev types.ErrorEvent) error

	// LogCorrectionPatch records a patch proposed or applied by the critic.
	LogCorrectionPatch(ctx context.Context, patch types.CorrectionPatch, applied bool) error

	// LogStrategyDisabled/Reenabled record tiered-executor auto-disable events.
	LogStrategyDisabled(ctx context.Context, capability, strategyName string) error
	LogStrategyReenabled(ctx context.Context, capability, strategyName string) error

	// LogToolOffline/Recovered record ledger/prober-driven availability changes.
	LogToolOffline(ctx context.Context, toolID string, until time.Time) error
	LogToolRecovered(ctx context.Context, toolID string) error

	// Sync flushes buffered log entries.
	Sync() error

	// Close closes the audit logger.
	Close() error
}

// Config represents audit logger configuration.
type Config struct {
	// AuditLogPath is the path to the append-only trajectory log file.
	AuditLogPath string

	// AppLogPath is the path to the application log file.
	AppLogPath string

	MaxSize    int // megabytes before rotation
	MaxBackups int
	MaxAge     int // days
	Compress   bool

	LogLevel string // debug, info, warn, error
}

// DefaultConfig returns default audit logger configuration.
func DefaultConfig() *Config {
	return &Config{
		AuditLogPath: "logs/trajectory.log",
		AppLogPath:   "logs/app.log",
		MaxSize:      100,
		MaxBackups:   10,
		MaxAge:       30,
		Compress:     true,
		LogLevel:     "info",
	}
}

// auditLogger implements the Logger interface.
type auditLogger struct {
	appLogger   *zap.Logger
	auditLogger *zap.Logger
	config      *Config
	mu          sync.Mutex
	buffer      []*Event
	flushTicker *time.Ticker
	stopCh      chan struct{}
}

// NewLogger creates a new audit logger with two rotated log streams.
func NewLogger(config *Config) (Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}

	level, err := zapcore.ParseLevel(config.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", config.LogLevel, err)
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	appRotator := &lumberjack.Logger{
		Filename:   config.AppLogPath,
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
	}
	appCore := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(appRotator), level)
	appLogger := zap.New(appCore, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	auditRotator := &lumberjack.Logger{
		Filename:   config.AuditLogPath,
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
	}
	auditCore := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(auditRotator), zapcore.InfoLevel)
	auditZapLogger := zap.New(auditCore)

	logger := &auditLogger{
		appLogger:   appLogger,
		auditLogger: auditZapLogger,
		config:      config,
		buffer:      make([]*Event, 0, 100),
		flushTicker: time.NewTicker(1 * time.Second),
		stopCh:      make(chan struct{}),
	}

	go logger.autoFlush()

	return logger, nil
}

// Log appends an event to the buffer, flushing the trajectory log when full.
func (l *auditLogger) Log(ctx context.Context, event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buffer = append(l.buffer, event)

	if len(l.buffer) >= 100 {
		return l.flushLocked()
	}

	return nil
}

// flushLocked flushes the buffer. Caller must hold l.mu.
func (l *auditLogger) flushLocked() error {
	if len(l.buffer) == 0 {
		return nil
	}

	for _, event := range l.buffer {
		eventJSON, err := json.Marshal(event)
		if err != nil {
			l.appLogger.Error("failed to marshal trajectory event",
				zap.Error(err),
				zap.String("event_type", string(event.EventType)),
			)
			continue
		}

		l.auditLogger.Info(string(eventJSON),
			zap.String("correlation_id", event.CorrelationID),
			zap.String("event_type", string(event.EventType)),
			zap.String("result", string(event.Result)),
		)
	}

	l.buffer = l.buffer[:0]

	return nil
}

// autoFlush periodically flushes the buffer so a crash loses at most 1s of
// trajectory data.
func (l *auditLogger) autoFlush() {
	for {
		select {
		case <-l.flushTicker.C:
			l.mu.Lock()
			_ = l.flushLocked()
			l.mu.Unlock()
		case <-l.stopCh:
			return
		}
	}
}

func (l *auditLogger) LogToolCall(ctx context.Context, call types.ToolCall) error {
	event := NewEvent(EventToolCallIssued).
		FromToolCall(call).
		WithResult(ResultPending).
		WithDescription(fmt.Sprintf("call %d issued: %s.%s", call.CallID, call.ToolID, call.Action)).
		WithMetadata("call_id", call.CallID)

	return l.Log(ctx, event)
}

func (l *auditLogger) LogToolCallResult(ctx context.Context, call types.ToolCall, result types.ToolCallResult) error {
	res := ResultSuccess
	if result.Outcome != types.OutcomeSuccess {
		res = ResultFailure
	}

	event := NewEvent(EventToolCallResult).
		FromToolCall(call).
		WithResult(res).
		WithDuration(result.Duration).
		WithMetadata("call_id", result.CallID).
		WithMetadata("outcome", string(result.Outcome)).
		WithMetadata("tier", string(result.Tier)).
		WithMetadata("strategy_used", result.StrategyUsed).
		WithMetadata("corrections_applied", result.CorrectionsApplied).
		WithDescription(fmt.Sprintf("call %d finished: %s", result.CallID, result.Outcome))

	if result.ErrorCause != "" {
		event.Error = result.ErrorCause
	}

	return l.Log(ctx, event)
}

func (l *auditLogger) LogErrorEvent(ctx context.Context, ev types.ErrorEvent) error {
	event := NewEvent(EventErrorRaised).
		WithTool(ev.Context.ToolID, ev.Context.Action).
		WithResult(ResultFailure).
		WithError(fmt.Errorf("%s", ev.Message), ev.ErrorType).
		WithMetadata("error_id", ev.ID).
		WithMetadata("component", ev.Component).
		WithMetadata("severity", string(ev.Severity)).
		WithMetadata("category", string(ev.Category)).
		WithDescription(fmt.Sprintf("%s error in %s: %s", ev.Severity, ev.Component, ev.Message))

	return l.Log(ctx, event)
}

func (l *auditLogger) LogCorrectionPatch(ctx context.Context, patch types.CorrectionPatch, applied bool) error {
	eventType := EventCorrectionProposed
	result := ResultPending
	if applied {
		eventType = EventCorrectionApplied
		result = ResultSuccess
	}

	event := NewEvent(eventType).
		WithResult(result).
		WithMetadata("patch_id", patch.PatchID).
		WithMetadata("type", string(patch.Type)).
		WithMetadata("target_field", patch.TargetField).
		WithMetadata("confidence", patch.Confidence).
		WithMetadata("auto_apply", patch.AutoApply).
		WithDescription(fmt.Sprintf("correction patch %s (%s)", patch.PatchID, patch.Type))

	return l.Log(ctx, event)
}

func (l *auditLogger) LogStrategyDisabled(ctx context.Context, capability, strategyName string) error {
	event := NewEvent(EventStrategyDisabled).
		WithResult(ResultDenied).
		WithMetadata("capability", capability).
		WithMetadata("strategy", strategyName).
		WithDescription(fmt.Sprintf("strategy %s for %s auto-disabled", strategyName, capability))

	return l.Log(ctx, event)
}

func (l *auditLogger) LogStrategyReenabled(ctx context.Context, capability, strategyName string) error {
	event := NewEvent(EventStrategyReenabled).
		WithResult(ResultSuccess).
		WithMetadata("capability", capability).
		WithMetadata("strategy", strategyName).
		WithDescription(fmt.Sprintf("strategy %s for %s re-enabled after cooldown", strategyName, capability))

	return l.Log(ctx, event)
}

func (l *auditLogger) LogToolOffline(ctx context.Context, toolID string, until time.Time) error {
	event := NewEvent(EventToolMarkedOffline).
		WithTool(toolID, "").
		WithResult(ResultDenied).
		WithMetadata("offline_until", until).
		WithDescription(fmt.Sprintf("tool %s marked offline until %s", toolID, until.Format(time.RFC3339)))

	return l.Log(ctx, event)
}

func (l *auditLogger) LogToolRecovered(ctx context.Context, toolID string) error {
	event := NewEvent(EventToolRecovered).
		WithTool(toolID, "").
		WithResult(ResultSuccess).
		WithDescription(fmt.Sprintf("tool %s recovered", toolID))

	return l.Log(ctx, event)
}

// Sync flushes buffered log entries.
func (l *auditLogger) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.flushLocked(); err != nil {
		return err
	}

	if err := l.auditLogger.Sync(); err != nil {
		return err
	}

	return l.appLogger.Sync()
}

// Close closes the audit logger.
func (l *auditLogger) Close() error {
	close(l.stopCh)
	l.flushTicker.Stop()

	return l.Sync()
}

type correlationIDKey struct{}

// GetCorrelationID extracts the task/correlation ID from context.
func GetCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey{}).(string); ok {
		return id
	}
	return ""
}

// WithCorrelationID adds a task/correlation ID to context.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, id)
}

// GenerateCorrelationID generates a new correlation ID.
func GenerateCorrelationID() string {
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), os.Getpid())
}
