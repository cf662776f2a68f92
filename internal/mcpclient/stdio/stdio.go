// Package stdio implements an mcpclient.Client over the MCP stdio
// transport, grounded directly on Jint8888-Pocket-Omega's
// internal/mcp/client.go: a subprocess speaking the MCP protocol over its
// stdin/stdout, driven through github.com/mark3labs/mcp-go's client SDK.
// Used for capabilities whose tool server is a local subprocess (code
// sandbox, file/code search) rather than a network service.
package stdio

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	sdkclient "github.com/mark3labs/mcp-go/client"
	sdkmcp "github.com/mark3labs/mcp-go/mcp"

	"github.com/toolrun-ai/toolrund/internal/mcpclient"
)

// Config names the subprocess to launch for one tool server.
type Config struct {
	Command string
	Args    []string
	Env     []string
}

// Client wraps one stdio-transport MCP server connection. Safe for
// concurrent use; the mcp-go SDK serializes requests over the single
// stdio pipe internally.
type Client struct {
	cfg Config

	mu    sync.RWMutex
	inner sdkclient.MCPClient
}

// New creates an unconnected Client. Call Connect before the first Call.
func New(cfg Config) *Client {
	return &Client{cfg: cfg}
}

// Connect launches the subprocess and performs the MCP initialize
// handshake.
func (c *Client) Connect(ctx context.Context) error {
	cli, err := sdkclient.NewStdioMCPClient(c.cfg.Command, c.cfg.Env, c.cfg.Args...)
	if err != nil {
		return fmt.Errorf("mcpclient/stdio: start %q: %w", c.cfg.Command, err)
	}

	_, err = cli.Initialize(ctx, sdkmcp.InitializeRequest{
		Params: sdkmcp.InitializeParams{
			ProtocolVersion: sdkmcp.LATEST_PROTOCOL_VERSION,
			ClientInfo: sdkmcp.Implementation{
				Name:    "toolrund",
				Version: "0.1.0",
			},
		},
	})
	if err != nil {
		_ = cli.Close()
		return fmt.Errorf("mcpclient/stdio: initialize %q: %w", c.cfg.Command, err)
	}

	c.mu.Lock()
	c.inner = cli
	c.mu.Unlock()
	return nil
}

// Close terminates the subprocess.
func (c *Client) Close() error {
	c.mu.Lock()
	inner := c.inner
	c.inner = nil
	c.mu.Unlock()

	if inner == nil {
		return nil
	}
	return inner.Close()
}

// Call implements mcpclient.Client. The action parameter identifies the
// MCP tool name (stdio servers do not separate tool_id from action the
// way the HTTP/gRPC transports do — one subprocess is one tool, so
// toolID is used only for error messages).
func (c *Client) Call(ctx context.Context, toolID, action string, parameters map[string]interface{}, deadline time.Time) (mcpclient.Result, error) {
	c.mu.RLock()
	inner := c.inner
	c.mu.RUnlock()

	if inner == nil {
		return mcpclient.Result{}, &mcpclient.CallError{Message: fmt.Sprintf("stdio server %q not connected", toolID), Code: "not_connected"}
	}

	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	req := sdkmcp.CallToolRequest{}
	req.Params.Name = action
	req.Params.Arguments = parameters

	result, err := inner.CallTool(ctx, req)
	if err != nil {
		return mcpclient.Result{}, &mcpclient.CallError{Message: err.Error(), Code: "transport_error"}
	}

	var parts []string
	for _, content := range result.Content {
		if tc, ok := content.(sdkmcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	text := strings.Join(parts, "\n")

	if result.IsError {
		return mcpclient.Result{}, &mcpclient.CallError{Message: text, Code: "tool_error"}
	}
	return mcpclient.Result{Success: true, Payload: text}, nil
}
