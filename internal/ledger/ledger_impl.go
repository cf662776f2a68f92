package ledger

import (
	"sync"
	"time"

	"github.com/toolrun-ai/toolrund/pkg/types"
)

// Config carries the tunables from the Ledger configuration section.
type Config struct {
	GlobalWindowSize  int
	PerToolWindowSize int
	FailureWindow     time.Duration
	OfflineThreshold  int
	DecayFactor       float64
	RecoveryStep      float64
}

type toolState struct {
	record   types.ToolHealthRecord
	failures []types.ErrorEvent // time-ordered, oldest first
}

type memLedger struct {
	cfg Config

	mu     sync.Mutex
	tools  map[string]*toolState
	global []types.ErrorEvent // count-based ring, oldest first
}

// New constructs an in-memory Ledger.
func New(cfg Config) Ledger {
	return &memLedger{
		cfg:   cfg,
		tools: map[string]*toolState{},
	}
}

func (l *memLedger) getOrCreate(toolID string) *toolState {
	st, ok := l.tools[toolID]
	if !ok {
		st = &toolState{record: types.ToolHealthRecord{ToolID: toolID, Reliability: 1.0}}
		l.tools[toolID] = st
	}
	return st
}

func (l *memLedger) RecordSuccess(toolID string, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := l.getOrCreate(toolID)
	st.record.Successes++
	st.record.ConsecutiveFailures = 0
	st.record.LastSuccess = at
	st.record.OfflineUntil = time.Time{}
	st.record.Reliability = minF(1.0, st.record.Reliability+l.cfg.RecoveryStep)
}

func (l *memLedger) RecordFailure(ev types.ErrorEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()

	toolID := ev.Context.ToolID
	st := l.getOrCreate(toolID)

	st.record.Failures++
	st.record.ConsecutiveFailures++
	st.record.Reliability *= l.cfg.DecayFactor

	if st.record.ConsecutiveFailures >= l.cfg.OfflineThreshold {
		st.record.OfflineUntil = ev.Timestamp.Add(l.offlineDuration())
	}

	st.failures = appendBounded(st.failures, ev, l.cfg.PerToolWindowSize)
	st.failures = evictOlderThan(st.failures, ev.Timestamp.Add(-l.cfg.FailureWindow))

	l.global = appendBounded(l.global, ev, l.cfg.GlobalWindowSize)
}

// offlineDuration is a short, fixed cooldown applied when the
// consecutive-failure threshold trips; C9/C11 extend or clear it based on
// their own observations.
func (l *memLedger) offlineDuration() time.Duration {
	return 1 * time.Minute
}

func appendBounded(window []types.ErrorEvent, ev types.ErrorEvent, max int) []types.ErrorEvent {
	window = append(window, ev)
	if len(window) > max {
		window = window[len(window)-max:]
	}
	return window
}

func evictOlderThan(window []types.ErrorEvent, cutoff time.Time) []types.ErrorEvent {
	i := 0
	for i < len(window) && window[i].Timestamp.Before(cutoff) {
		i++
	}
	return window[i:]
}

func (l *memLedger) MarkOffline(toolID string, until time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := l.getOrCreate(toolID)
	st.record.OfflineUntil = until
}

func (l *memLedger) IsAvailable(toolID string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.tools[toolID]
	if !ok {
		return true
	}
	return !st.record.IsOffline(now)
}

func (l *memLedger) Reliability(toolID string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.tools[toolID]
	if !ok {
		return 1.0
	}
	return st.record.Reliability
}

func (l *memLedger) Health(toolID string) types.ToolHealthRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.tools[toolID]
	if !ok {
		return types.ToolHealthRecord{ToolID: toolID, Reliability: 1.0}
	}
	return st.record
}

func (l *memLedger) RecentFailures(toolID string, now time.Time) []types.ErrorEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.tools[toolID]
	if !ok {
		return nil
	}
	st.failures = evictOlderThan(st.failures, now.Add(-l.cfg.FailureWindow))

	out := make([]types.ErrorEvent, len(st.failures))
	copy(out, st.failures)
	return out
}

func (l *memLedger) GlobalWindow() []types.ErrorEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]types.ErrorEvent, len(l.global))
	copy(out, l.global)
	return out
}

func (l *memLedger) FailuresInLastHour(toolID string, now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.tools[toolID]
	if !ok {
		return 0
	}

	cutoff := now.Add(-1 * time.Hour)
	count := 0
	for _, ev := range st.failures {
		if !ev.Timestamp.Before(cutoff) {
			count++
		}
	}
	return count
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
