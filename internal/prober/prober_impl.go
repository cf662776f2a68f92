package prober

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/toolrun-ai/toolrund/internal/classifier"
	"github.com/toolrun-ai/toolrund/internal/ledger"
	"github.com/toolrun-ai/toolrund/pkg/types"
)

// sharedHTTPClient is reused across every tool's health check, pooling
// connections the same way the MCP transports do for their own calls.
var sharedHTTPClient = &http.Client{
	Timeout: 10 * time.Second,
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
	},
}

type tcpProber struct {
	cfg     Config
	led     ledger.Ledger
	cl      classifier.Classifier
	newID   IDFunc
	httpGet func(ctx context.Context, url string, timeout time.Duration) error
	dialTCP func(ctx context.Context, address string, timeout time.Duration) error

	mu           sync.Mutex
	wasReachable map[string]bool
}

// New constructs a Prober backed by led (for recording outcomes) and cl
// (for classifying probe failures into network-category ErrorEvents).
func New(cfg Config, led ledger.Ledger, cl classifier.Classifier, newID IDFunc) Prober {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 3 * time.Second
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 5 * time.Second
	}
	return &tcpProber{
		cfg:          cfg,
		led:          led,
		cl:           cl,
		newID:        newID,
		httpGet:      httpHealthCheck,
		dialTCP:      tcpDial,
		wasReachable: map[string]bool{},
	}
}

func tcpDial(ctx context.Context, address string, timeout time.Duration) error {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return err
	}
	return conn.Close()
}

func httpHealthCheck(ctx context.Context, url string, timeout time.Duration) error {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := sharedHTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("health check %s: HTTP %d", url, resp.StatusCode)
	}
	return nil
}

func (p *tcpProber) ProbeOnce(ctx context.Context, target Target) Result {
	if err := p.dialTCP(ctx, target.Address, p.cfg.DialTimeout); err != nil {
		return Result{ToolID: target.ToolID, Reachable: false, Err: fmt.Errorf("tcp dial %s: %w", target.Address, err)}
	}
	if target.HealthURL != "" {
		if err := p.httpGet(ctx, target.HealthURL, p.cfg.HTTPTimeout); err != nil {
			return Result{ToolID: target.ToolID, Reachable: false, Err: err}
		}
	}
	return Result{ToolID: target.ToolID, Reachable: true}
}

func (p *tcpProber) Run(ctx context.Context, targets TargetLister) {
	interval := time.Duration(p.cfg.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.probeAll(ctx, targets())
		}
	}
}

func (p *tcpProber) probeAll(ctx context.Context, list []Target) {
	for _, target := range list {
		result := p.ProbeOnce(ctx, target)
		p.recordResult(result, target)
	}
}

func (p *tcpProber) recordResult(result Result, target Target) {
	p.mu.Lock()
	wasReachable, known := p.wasReachable[target.ToolID]
	p.wasReachable[target.ToolID] = result.Reachable
	p.mu.Unlock()

	if result.Reachable {
		if known && !wasReachable {
			// Recovery: clear the offline flag without touching
			// reliability, which C4's own success/failure bookkeeping owns.
			p.led.MarkOffline(target.ToolID, time.Time{})
		}
		return
	}

	in := classifier.Input{
		Error:           classifier.RawError{Kind: "NetworkError", Message: result.Err.Error()},
		Component:       "prober",
		Call:            types.CallContext{ToolID: target.ToolID},
		IsCoreComponent: false,
	}
	ev := p.cl.ToErrorEvent(in, p.newID(), time.Now())
	p.led.RecordFailure(ev)
}
