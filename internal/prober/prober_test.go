package prober

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolrun-ai/toolrund/internal/classifier"
	"github.com/toolrun-ai/toolrund/internal/ledger"
)

func testLedger() ledger.Ledger {
	return ledger.New(ledger.Config{
		GlobalWindowSize: 100, PerToolWindowSize: 10, FailureWindow: time.Hour,
		OfflineThreshold: 3, DecayFactor: 0.9, RecoveryStep: 0.01,
	})
}

func fixedID(s string) IDFunc { return func() string { return s } }

func TestProbeOnce_ReachableWhenDialSucceeds(t *testing.T) {
	p := New(Config{}, testLedger(), classifier.New(), fixedID("ev-1")).(*tcpProber)
	p.dialTCP = func(ctx context.Context, address string, timeout time.Duration) error { return nil }

	result := p.ProbeOnce(context.Background(), Target{ToolID: "search_tool", Address: "localhost:9"})
	assert.True(t, result.Reachable)
}

func TestProbeOnce_UnreachableWhenDialFails(t *testing.T) {
	p := New(Config{}, testLedger(), classifier.New(), fixedID("ev-1")).(*tcpProber)
	p.dialTCP = func(ctx context.Context, address string, timeout time.Duration) error { return errors.New("connection refused") }

	result := p.ProbeOnce(context.Background(), Target{ToolID: "search_tool", Address: "localhost:9"})
	assert.False(t, result.Reachable)
	require.Error(t, result.Err)
}

func TestProbeOnce_HealthURLFailureOverridesSuccessfulDial(t *testing.T) {
	p := New(Config{}, testLedger(), classifier.New(), fixedID("ev-1")).(*tcpProber)
	p.dialTCP = func(ctx context.Context, address string, timeout time.Duration) error { return nil }
	p.httpGet = func(ctx context.Context, url string, timeout time.Duration) error { return errors.New("HTTP 503") }

	result := p.ProbeOnce(context.Background(), Target{ToolID: "search_tool", Address: "localhost:9", HealthURL: "http://localhost:9/health"})
	assert.False(t, result.Reachable)
}

func TestRecordResult_FailureRecordsNetworkErrorEventInLedger(t *testing.T) {
	led := testLedger()
	p := New(Config{}, led, classifier.New(), fixedID("ev-1")).(*tcpProber)

	target := Target{ToolID: "search_tool", Address: "localhost:9"}
	p.recordResult(Result{ToolID: "search_tool", Reachable: false, Err: errors.New("connection refused")}, target)

	window := led.GlobalWindow()
	require.Len(t, window, 1)
	assert.Equal(t, "search_tool", window[0].Context.ToolID)
}

func TestRecordResult_RecoveryClearsOfflineWithoutTouchingReliability(t *testing.T) {
	led := testLedger()
	p := New(Config{}, led, classifier.New(), fixedID("ev-1")).(*tcpProber)

	target := Target{ToolID: "search_tool", Address: "localhost:9"}
	for i := 0; i < 3; i++ {
		p.recordResult(Result{ToolID: "search_tool", Reachable: false, Err: errors.New("connection refused")}, target)
	}
	require.False(t, led.IsAvailable("search_tool", time.Now()))
	reliabilityBeforeRecovery := led.Reliability("search_tool")

	p.recordResult(Result{ToolID: "search_tool", Reachable: true}, target)

	assert.True(t, led.IsAvailable("search_tool", time.Now()))
	assert.InDelta(t, reliabilityBeforeRecovery, led.Reliability("search_tool"), 1e-9, "recovery must not retroactively restore reliability")
}

func TestRun_StopsWhenContextCanceled(t *testing.T) {
	p := New(Config{IntervalSeconds: 1}, testLedger(), classifier.New(), fixedID("ev-1")).(*tcpProber)
	p.dialTCP = func(ctx context.Context, address string, timeout time.Duration) error { return nil }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx, func() []Target { return nil })
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not exit after context cancellation")
	}
}
