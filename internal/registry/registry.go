// Package registry implements the Tool-Schema Registry (C1): the canonical,
// versioned source of truth for which MCP tools exist and what actions and
// parameters they expose.
//
// It discovers tool schemas from service.json manifests under one or more
// configured search roots, validates their structure (auto-fixing and
// logging minor issues rather than rejecting the whole manifest), and
// exposes a point-in-time Snapshot to the rest of the system. Refresh is
// serialized behind a single lock and swaps in a new snapshot atomically;
// a refresh that fails structural validation entirely leaves the previous
// snapshot in place (shadow-map rollback).
package registry

import (
	"context"
	"sort"

	"github.com/toolrun-ai/toolrund/pkg/types"
)

// Snapshot is a point-in-time, read-only view of the tool catalog.
type Snapshot struct {
	Tools   map[string]types.ToolSchema
	Version int64
}

// Lookup returns the schema for toolID, if present in this snapshot.
func (s Snapshot) Lookup(toolID string) (types.ToolSchema, bool) {
	t, ok := s.Tools[toolID]
	return t, ok
}

// Whitelist returns the sorted set of every tool_id present.
func (s Snapshot) Whitelist() []string {
	ids := make([]string, 0, len(s.Tools))
	for id := range s.Tools {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Registry is the Tool-Schema Registry interface.
type Registry interface {
	// Snapshot returns the current tool catalog view. Safe for concurrent use.
	Snapshot(ctx context.Context) Snapshot

	// Refresh re-scans the configured manifest roots (and, if
	// ToolHostAddress is set, fetches version fingerprints from the tool
	// host) and atomically swaps in a new Snapshot. If force is false and
	// the configured refresh interval hasn't elapsed, Refresh is a no-op.
	Refresh(ctx context.Context, force bool) error

	// ActionWhitelistHash returns a stable hash over every (tool_id,
	// action) pair in the current snapshot, used by callers to cheaply
	// detect whether the catalog shape changed since their last read.
	ActionWhitelistHash(ctx context.Context) string
}
