package wsupdate

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/toolrun-ai/toolrund/internal/classifier"
	"github.com/toolrun-ai/toolrund/internal/ledger"
	"github.com/toolrun-ai/toolrund/pkg/types"
)

// dialer abstracts websocket.DefaultDialer.Dial for testability.
type dialer interface {
	DialContext(ctx context.Context, url string) (wsConn, error)
}

// wsConn abstracts the subset of *websocket.Conn the listener uses.
type wsConn interface {
	ReadJSON(v interface{}) error
	Close() error
}

type gorillaDialer struct{}

func (gorillaDialer) DialContext(ctx context.Context, url string) (wsConn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

type idFunc func() string

type wsListener struct {
	cfg   Config
	dial  dialer
	led   ledger.Ledger
	cl    classifier.Classifier
	newID idFunc
	sleep func(time.Duration)
}

// New constructs a Listener. led/cl are used only to surface the
// persistent-failure ErrorEvent; every successful frame is handled purely
// via refresh, with no ledger interaction.
func New(cfg Config, led ledger.Ledger, cl classifier.Classifier, newID idFunc) Listener {
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 5
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 60
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	return &wsListener{
		cfg:   cfg,
		dial:  gorillaDialer{},
		led:   led,
		cl:    cl,
		newID: newID,
		sleep: time.Sleep,
	}
}

func (l *wsListener) Run(ctx context.Context, refresh RefreshFunc) {
	backoff := l.cfg.InitialBackoff
	attempts := 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn, err := l.dial.DialContext(ctx, l.cfg.URL)
		if err != nil {
			attempts++
			if attempts >= l.cfg.MaxAttempts {
				l.raisePersistentFailure(err)
				return
			}
			if !l.wait(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff, l.cfg.MaxBackoff)
			continue
		}

		attempts = 0
		backoff = l.cfg.InitialBackoff
		l.readLoop(ctx, conn, refresh)
		conn.Close()

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (l *wsListener) readLoop(ctx context.Context, conn wsConn, refresh RefreshFunc) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}

		switch frame.Type {
		case FrameToolInstalled, FrameToolUninstalled, FrameToolUpdated:
			_ = refresh(ctx, frame.ToolID)
		}
	}
}

func (l *wsListener) wait(ctx context.Context, seconds Seconds) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(time.Duration(seconds * float64(time.Second))):
		return true
	}
}

func nextBackoff(current, max Seconds) Seconds {
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func (l *wsListener) raisePersistentFailure(cause error) {
	if l.led == nil || l.cl == nil {
		return
	}
	in := classifier.Input{
		Error:           classifier.RawError{Kind: "NetworkError", Message: fmt.Sprintf("tool-host update stream unreachable: %v", cause)},
		Component:       "wsupdate",
		Call:            types.CallContext{},
		IsCoreComponent: true,
	}
	ev := l.cl.ToErrorEvent(in, l.newID(), time.Now())
	ev.Severity = types.SeverityHigh
	l.led.RecordFailure(ev)
}
