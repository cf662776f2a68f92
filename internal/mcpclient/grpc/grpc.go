// Package grpc implements an mcpclient.Client over gRPC for tool servers
// that expose a `call()` RPC, grounded on the teacher's
// internal/integration/grpc connection-management style (TLS/insecure
// credential selection, dial timeout, keepalive) but trimmed to a single
// bounded unary call per spec's MCP contract rather than the teacher's
// persistent cluster-state stream.
package grpc

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/keepalive"

	"github.com/toolrun-ai/toolrund/internal/mcpclient"
)

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// TLSConfig optionally secures the connection to the tool-server's gRPC
// endpoint.
type TLSConfig struct {
	Enabled  bool
	CertPath string
	KeyPath  string
	CAPath   string
}

// Client calls MCP tool servers over gRPC using the registered JSON codec.
type Client struct {
	conn *grpc.ClientConn
}

// New dials target (host:port) and returns a ready Client. The dial
// itself is non-blocking; connection establishment happens lazily on the
// first Call, matching grpc-go's default connection model.
func New(target string, tlsCfg TLSConfig) (*Client, error) {
	creds, err := buildTransportCredentials(tlsCfg)
	if err != nil {
		return nil, fmt.Errorf("mcpclient/grpc: %w", err)
	}

	conn, err := grpc.NewClient(target,
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                60 * time.Second,
			Timeout:             20 * time.Second,
			PermitWithoutStream: true,
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("mcpclient/grpc: dial %s: %w", target, err)
	}
	return &Client{conn: conn}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

type callRequest struct {
	ToolID     string                 `json:"tool_id"`
	Action     string                 `json:"action"`
	Parameters map[string]interface{} `json:"parameters"`
}

type callResponse struct {
	Success bool        `json:"success"`
	Payload interface{} `json:"payload,omitempty"`
	Error   *wireError  `json:"error,omitempty"`
}

type wireError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Call implements mcpclient.Client.
func (c *Client) Call(ctx context.Context, toolID, action string, parameters map[string]interface{}, deadline time.Time) (mcpclient.Result, error) {
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	req := &callRequest{ToolID: toolID, Action: action, Parameters: parameters}
	var resp callResponse

	if err := c.conn.Invoke(ctx, "/mcp.ToolExecutor/Call", req, &resp); err != nil {
		return mcpclient.Result{}, &mcpclient.CallError{Message: err.Error(), Code: "transport_error"}
	}

	if !resp.Success {
		if resp.Error != nil {
			return mcpclient.Result{}, &mcpclient.CallError{Message: resp.Error.Message, Code: resp.Error.Code}
		}
		return mcpclient.Result{}, &mcpclient.CallError{Message: "tool reported failure with no error detail", Code: "unknown"}
	}

	return mcpclient.Result{Success: true, Payload: resp.Payload}, nil
}

func buildTransportCredentials(cfg TLSConfig) (credentials.TransportCredentials, error) {
	if !cfg.Enabled {
		return insecure.NewCredentials(), nil
	}

	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}

	if cfg.CertPath != "" && cfg.KeyPath != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertPath, cfg.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}

	if cfg.CAPath != "" {
		caPEM, err := os.ReadFile(cfg.CAPath)
		if err != nil {
			return nil, fmt.Errorf("read CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("parse CA certificate")
		}
		tlsCfg.RootCAs = pool
	}

	return credentials.NewTLS(tlsCfg), nil
}
