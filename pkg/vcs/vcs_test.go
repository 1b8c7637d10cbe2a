package vcs

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
}

func TestGitCommitAndLog(t *testing.T) {
	requireGit(t)
	ctx := context.Background()
	dir := t.TempDir()
	g := NewGit(dir, "Tester", "tester@example.org", nil)

	path := filepath.Join(dir, "ns", "doc.folia.xml")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("one"), 0o644))

	require.NoError(t, g.Commit(ctx, path, "first"))
	assert.DirExists(t, filepath.Join(dir, ".git"))

	// Unchanged file.
	require.NoError(t, g.Commit(ctx, path, "nothing"))

	require.NoError(t, os.WriteFile(path, []byte("two"), 0o644))
	require.NoError(t, g.Commit(ctx, path, "second\nwith detail"))

	revs, err := g.Log(ctx, path, 10)
	require.NoError(t, err)
	require.Len(t, revs, 2)
	assert.Equal(t, "second\nwith detail", revs[0].Message)
	assert.Equal(t, "first", revs[1].Message)
	assert.Equal(t, "Tester", revs[0].Author)
	assert.Len(t, revs[0].Hash, 40)
	assert.False(t, revs[0].Date.IsZero())
}

func TestGitLogWithoutRepository(t *testing.T) {
	g := NewGit(t.TempDir(), "", "", nil)
	_, err := g.Log(context.Background(), "x", 1)
	assert.ErrorIs(t, err, ErrNotRepository)
}

func TestGitRejectsOutsidePath(t *testing.T) {
	requireGit(t)
	dir := t.TempDir()
	g := NewGit(filepath.Join(dir, "repo"), "", "", nil)

	err := g.Commit(context.Background(), filepath.Join(dir, "elsewhere.xml"), "x")
	assert.Error(t, err)
}

func TestParseLog(t *testing.T) {
	out := "abc\x1fAnn\x1f2024-01-02T03:04:05+00:00\x1fmsg\n\x1e\ndef\x1fBob\x1fbad\x1fother\x1e\n"
	revs := parseLog(out)
	require.Len(t, revs, 2)
	assert.Equal(t, "abc", revs[0].Hash)
	assert.Equal(t, "msg", revs[0].Message)
	assert.Equal(t, 2024, revs[0].Date.Year())
	assert.True(t, revs[1].Date.IsZero())
}
