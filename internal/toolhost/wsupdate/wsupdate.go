// Package wsupdate implements the WebSocket Tool-Update Listener (C12): a
// persistent client connection to the tool-host's update stream that keeps
// the Tool-Schema Registry (C1) fresh between its own poll cycles.
//
// On each frame (tool installed/updated/uninstalled) it triggers a forced
// C1 refresh for the affected tool_id. If the connection drops it
// reconnects with an exponential backoff capped at 60s; if it never
// recovers within a configured attempt budget it raises a high-severity
// ErrorEvent and gives up — the registry falls back to its own poll
// cadence rather than the process going down.
package wsupdate

import "context"

// FrameType enumerates the tool-host update frame kinds.
type FrameType string

const (
	FrameToolInstalled   FrameType = "tool_installed"
	FrameToolUninstalled FrameType = "tool_uninstalled"
	FrameToolUpdated     FrameType = "tool_updated"
)

// Frame is one JSON message received over the update stream.
type Frame struct {
	Type   FrameType `json:"type"`
	ToolID string    `json:"tool_id"`
}

// Config tunes the listener's reconnect policy.
type Config struct {
	URL string

	// InitialBackoff is the delay before the first reconnect attempt.
	// Successive attempts double it, capped at MaxBackoff.
	InitialBackoff Seconds
	MaxBackoff     Seconds

	// MaxAttempts bounds consecutive reconnect attempts before the
	// listener gives up and raises a high-severity ErrorEvent.
	MaxAttempts int
}

// Seconds is a small duration alias kept distinct from time.Duration so
// Config stays trivially loadable from plain integers in YAML/flags.
type Seconds = float64

// RefreshFunc forces C1 to re-resolve the given tool_id (or the whole
// catalog, if toolID is empty) immediately rather than waiting for its
// next poll interval.
type RefreshFunc func(ctx context.Context, toolID string) error

// Listener is the WebSocket Tool-Update Listener interface.
type Listener interface {
	// Run connects and processes frames until ctx is canceled or the
	// reconnect attempt budget is exhausted.
	Run(ctx context.Context, refresh RefreshFunc)
}
