// Package mcpclient defines the external MCP tool-server call interface
// the core consumes (spec §6 "MCP tool-server call (consumed)"):
// call(tool_id, action, parameters, deadline) -> {success, payload?, error?}.
// The core treats Payload as opaque; concrete transports (http, grpc,
// stdio) live in subpackages and are wired into executor.Invoker closures
// by the composition root, one per capability's target transport.
package mcpclient

import (
	"context"
	"fmt"
	"time"
)

// Result is the outcome of one MCP tool-server call.
type Result struct {
	Success bool
	Payload interface{}
}

// CallError is the exception-equivalent value a transport returns when a
// call fails, carrying the optional machine-readable code alongside the
// message (spec §6: "errors surface as exception-equivalent values with a
// message and optional code").
type CallError struct {
	Message string
	Code    string
}

func (e *CallError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

// Client is the MCP tool-server call interface.
type Client interface {
	// Call dispatches one tool invocation, bounded by deadline. A non-nil
	// error is always a *CallError or a context error; a returned
	// Result.Success == false without an error never happens — transports
	// must translate an in-band {success:false, error:...} wire response
	// into a *CallError.
	Call(ctx context.Context, toolID, action string, parameters map[string]interface{}, deadline time.Time) (Result, error)
}
