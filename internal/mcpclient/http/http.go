// Package http implements an mcpclient.Client over plain HTTP POST,
// grounded on the teacher's pooled-client REST pattern
// (internal/mcp/server/backend_http.go): one shared *http.Client across
// every tool call to avoid file-descriptor exhaustion under concurrent
// load, JSON request/response bodies, and a single helper owning error
// handling and base-URL resolution.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/toolrun-ai/toolrund/internal/mcpclient"
)

// sharedHTTPClient is reused across every call, the same pooling strategy
// the teacher's backend_http.go documents.
var sharedHTTPClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
	},
}

// Client calls MCP tool servers that expose a JSON-over-HTTP endpoint:
// POST {BaseURL}/tools/{tool_id}/{action} with the parameters as the JSON
// body, expecting {"success": bool, "payload": ..., "error": {"message",
// "code"}} back.
type Client struct {
	baseURL string
	http    *http.Client
}

// New constructs a Client pointed at baseURL (e.g. "http://localhost:8900").
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    sharedHTTPClient,
	}
}

type wireResponse struct {
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

	body, err := json.Marshal(parameters)
	if err != nil {
		return mcpclient.Result{}, fmt.Errorf("mcpclient/http: encode parameters: %w", err)
	}

	url := fmt.Sprintf("%s/tools/%s/%s", c.baseURL, toolID, action)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return mcpclient.Result{}, fmt.Errorf("mcpclient/http: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return mcpclient.Result{}, &mcpclient.CallError{Message: err.Error(), Code: "transport_error"}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 500 {
		return mcpclient.Result{}, &mcpclient.CallError{Message: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, truncate(string(raw), 200)), Code: "server_error"}
	}

	var wr wireResponse
	if err := json.Unmarshal(raw, &wr); err != nil {
		return mcpclient.Result{}, &mcpclient.CallError{Message: fmt.Sprintf("decode response: %v", err), Code: "decode_error"}
	}
	if !wr.Success {
		if wr.Error != nil {
			return mcpclient.Result{}, &mcpclient.CallError{Message: wr.Error.Message, Code: wr.Error.Code}
		}
		return mcpclient.Result{}, &mcpclient.CallError{Message: "tool reported failure with no error detail", Code: "unknown"}
	}

	return mcpclient.Result{Success: true, Payload: wr.Payload}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
