package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWorkspace(t *testing.T) *Workspace {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src", ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "main.go"), []byte("package main\n\nfunc main() {\n\t// TODO: wire\n}\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", ".git", "HEAD"), []byte("TODO hidden\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("# Demo\nTODO: docs\n"), 0o644))
	ws, err := NewWorkspace(dir)
	require.NoError(t, err)
	return ws
}

func TestWorkspaceResolve(t *testing.T) {
	ws := newWorkspace(t)

	root, err := ws.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, ws.Root(), root)

	root, err = ws.Resolve("None")
	require.NoError(t, err)
	assert.Equal(t, ws.Root(), root)

	p, err := ws.Resolve("src/main.go")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(ws.Root(), "src", "main.go"), p)

	_, err = ws.Resolve("../outside")
	assert.ErrorIs(t, err, ErrOutsideWorkspace)

	_, err = ws.Resolve("src/../../etc/passwd")
	assert.ErrorIs(t, err, ErrOutsideWorkspace)

	_, err = ws.Resolve("/etc/passwd")
	assert.ErrorIs(t, err, ErrOutsideWorkspace)
}

func TestWorkspaceResolveSymlinks(t *testing.T) {
	ws := newWorkspace(t)
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret.txt"), []byte("TODO secret\n"), 0o644))

	require.NoError(t, os.Symlink(outside, filepath.Join(ws.Root(), "escape")))
	require.NoError(t, os.Symlink(filepath.Join(outside, "secret.txt"), filepath.Join(ws.Root(), "secret.txt")))
	require.NoError(t, os.Symlink(filepath.Join(outside, "later.txt"), filepath.Join(ws.Root(), "dangling")))
	require.NoError(t, os.Symlink("src", filepath.Join(ws.Root(), "code")))

	for _, input := range []string{"escape", "escape/secret.txt", "escape/new.txt", "secret.txt", "dangling"} {
		_, err := ws.Resolve(input)
		assert.ErrorIs(t, err, ErrOutsideWorkspace, input)
	}

	p, err := ws.Resolve("code/main.go")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(ws.Root(), "code", "main.go"), p)

	p, err = ws.Resolve("src/new.go")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(ws.Root(), "src", "new.go"), p)

	out, err := NewCatTool(ws).Call(context.Background(), "escape/secret.txt")
	require.NoError(t, err)
	assert.NotContains(t, out, "secret")

	out, err = NewGrepTool(ws).Call(context.Background(), "TODO")
	require.NoError(t, err)
	assert.NotContains(t, out, "secret")
}

func TestRegistryResolve(t *testing.T) {
	logger, _ := test.NewNullLogger()
	r := NewRegistry(newWorkspace(t), logger)

	assert.Equal(t, []string{"cat", "datetime", "grep", "ls", "stat"}, r.Names())

	found, missing := r.Resolve([]string{"GREP", "lint", "grep", " cat ", ""})
	require.Len(t, found, 2)
	assert.Equal(t, "grep", found[0].Name())
	assert.Equal(t, "cat", found[1].Name())
	assert.Equal(t, []string{"lint"}, missing)
}

func TestLsTool(t *testing.T) {
	ls := NewLsTool(newWorkspace(t))

	out, err := ls.Call(context.Background(), "")
	require.NoError(t, err)
	assert.Contains(t, out, "README.md")
	assert.Contains(t, out, "src/")

	out, err = ls.Call(context.Background(), "../")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Error:"))
}

func TestCatTool(t *testing.T) {
	cat := NewCatTool(newWorkspace(t))

	out, err := cat.Call(context.Background(), "README.md")
	require.NoError(t, err)
	assert.Equal(t, "# Demo\nTODO: docs\n", out)

	out, err = cat.Call(context.Background(), "  ")
	require.NoError(t, err)
	assert.Equal(t, "Error: Please provide a file path", out)

	out, err = cat.Call(context.Background(), "missing.txt")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Error:"))
}

func TestGrepTool(t *testing.T) {
	grep := NewGrepTool(newWorkspace(t))

	out, err := grep.Call(context.Background(), "TODO")
	require.NoError(t, err)
	assert.Contains(t, out, "README.md:2: TODO: docs")
	assert.Contains(t, out, "src/main.go:4: \t// TODO: wire")
	assert.NotContains(t, out, "hidden")

	out, err = grep.Call(context.Background(), "TODO src")
	require.NoError(t, err)
	assert.NotContains(t, out, "README.md")

	out, err = grep.Call(context.Background(), "nomatchanywhere")
	require.NoError(t, err)
	assert.Equal(t, "No matches found", out)

	out, err = grep.Call(context.Background(), "([")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Error: invalid pattern"))
}

func TestStatTool(t *testing.T) {
	stat := NewStatTool(newWorkspace(t))

	out, err := stat.Call(context.Background(), "src")
	require.NoError(t, err)
	assert.Contains(t, out, "Type: directory")
}

func TestDateTimeTool(t *testing.T) {
	fixed := time.Date(2026, 10, 16, 12, 30, 0, 0, time.FixedZone("CEST", 2*60*60))
	dt := &DateTimeTool{now: func() time.Time { return fixed }}

	out, err := dt.Call(context.Background(), "utc")
	require.NoError(t, err)
	assert.Equal(t, "Friday, 16 October 2026 10:30:00 UTC", out)
}
