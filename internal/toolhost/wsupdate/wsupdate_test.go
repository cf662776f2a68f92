package wsupdate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolrun-ai/toolrund/internal/classifier"
	"github.com/toolrun-ai/toolrund/internal/ledger"
	"github.com/toolrun-ai/toolrund/pkg/types"
)

func testLedger() ledger.Ledger {
	return ledger.New(ledger.Config{
		GlobalWindowSize: 100, PerToolWindowSize: 10, FailureWindow: time.Hour,
		OfflineThreshold: 3, DecayFactor: 0.9, RecoveryStep: 0.01,
	})
}

func fixedID(s string) idFunc { return func() string { return s } }

// fakeConn replays a fixed sequence of frames, then returns err forever.
type fakeConn struct {
	mu     sync.Mutex
	frames []Frame
	idx    int
	err    error
	closed bool
}

func (c *fakeConn) ReadJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.idx >= len(c.frames) {
		if c.err != nil {
			return c.err
		}
		return errors.New("eof")
	}
	f := c.frames[c.idx]
	c.idx++
	ptr := v.(*Frame)
	*ptr = f
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// fakeDialer hands out a fixed conn per dial, or an error if dialErr is set.
type fakeDialer struct {
	mu       sync.Mutex
	dialErr  error
	conns    []*fakeConn
	dialIdx  int
	dialSeen int
}

func (d *fakeDialer) DialContext(ctx context.Context, url string) (wsConn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dialSeen++
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	if d.dialIdx >= len(d.conns) {
		return nil, errors.New("no more conns")
	}
	c := d.conns[d.dialIdx]
	d.dialIdx++
	return c, nil
}

func newTestListener(dial dialer, led ledger.Ledger, cl classifier.Classifier) *wsListener {
	l := New(Config{InitialBackoff: 0.01, MaxBackoff: 0.02, MaxAttempts: 3}, led, cl, fixedID("ev-1")).(*wsListener)
	l.dial = dial
	return l
}

func TestRun_RefreshesOnEachRecognizedFrame(t *testing.T) {
	conn := &fakeConn{frames: []Frame{
		{Type: FrameToolInstalled, ToolID: "search_tool"},
		{Type: FrameToolUpdated, ToolID: "calc_tool"},
	}}
	d := &fakeDialer{conns: []*fakeConn{conn}}
	l := newTestListener(d, testLedger(), classifier.New())

	var mu sync.Mutex
	var refreshed []string
	refresh := func(ctx context.Context, toolID string) error {
		mu.Lock()
		defer mu.Unlock()
		refreshed = append(refreshed, toolID)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	l.Run(ctx, refresh)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, refreshed, "search_tool")
	assert.Contains(t, refreshed, "calc_tool")
}

func TestNextBackoff_DoublesAndCaps(t *testing.T) {
	assert.Equal(t, Seconds(10), nextBackoff(5, 60))
	assert.Equal(t, Seconds(60), nextBackoff(40, 60))
	assert.Equal(t, Seconds(60), nextBackoff(60, 60))
}

func TestRun_GivesUpAndRaisesErrorEventAfterMaxAttempts(t *testing.T) {
	d := &fakeDialer{dialErr: errors.New("connection refused")}
	led := testLedger()
	l := newTestListener(d, led, classifier.New())
	l.cfg.MaxAttempts = 2

	done := make(chan struct{})
	go func() {
		l.Run(context.Background(), func(ctx context.Context, toolID string) error { return nil })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not give up after exhausting MaxAttempts")
	}

	require.GreaterOrEqual(t, d.dialSeen, 2)
	window := led.GlobalWindow()
	require.Len(t, window, 1)
	assert.Equal(t, types.SeverityHigh, window[0].Severity)
}

func TestRun_StopsWhenContextCanceled(t *testing.T) {
	d := &fakeDialer{dialErr: errors.New("refused")}
	l := newTestListener(d, testLedger(), classifier.New())
	l.cfg.MaxAttempts = 1000

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx, func(ctx context.Context, toolID string) error { return nil })
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not exit after context cancellation")
	}
}

func TestRun_ReconnectsAfterDroppedConnection(t *testing.T) {
	firstConn := &fakeConn{frames: []Frame{{Type: FrameToolUpdated, ToolID: "a"}}}
	secondConn := &fakeConn{frames: []Frame{{Type: FrameToolUpdated, ToolID: "b"}}}
	d := &fakeDialer{conns: []*fakeConn{firstConn, secondConn}}
	l := newTestListener(d, testLedger(), classifier.New())

	var mu sync.Mutex
	var refreshed []string
	refresh := func(ctx context.Context, toolID string) error {
		mu.Lock()
		defer mu.Unlock()
		refreshed = append(refreshed, toolID)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	l.Run(ctx, refresh)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, refreshed, "a")
	assert.Contains(t, refreshed, "b")
}
