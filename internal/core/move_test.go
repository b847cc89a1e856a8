package core

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ryotapoi/sitereorg/internal/testutil"
)

func openLegacyTree(t *testing.T) (string, *gitTree) {
	t.Helper()
	dir, _ := legacyRepo(t)
	g, err := openGitTree(dir)
	require.NoError(t, err)
	return dir, g
}

func indexNames(t *testing.T, g *gitTree) map[string]bool {
	t.Helper()
	snap, err := g.indexSnapshot()
	require.NoError(t, err)
	out := make(map[string]bool, len(snap))
	for n := range snap {
		out[n] = true
	}
	return out
}

// --- missing source: skipped, destination untouched ---
func TestMoveTracked_MissingSource(t *testing.T) {
	dir, g := openLegacyTree(t)

	out, err := MoveTracked(g, "CNAME", "docs/CNAME", zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, MoveSkipped, out.Status)
	assert.Equal(t, "missing", out.Reason)
	assert.NoDirExists(t, filepath.Join(dir, "docs"))
}

// --- untracked source: skipped, destination untouched ---
func TestMoveTracked_UntrackedSource(t *testing.T) {
	dir, g := openLegacyTree(t)
	writeFile(t, dir, "draft.html", "<html></html>")

	out, err := MoveTracked(g, "draft.html", "docs/draft.html", nil)
	require.NoError(t, err)
	assert.Equal(t, MoveSkipped, out.Status)
	assert.Equal(t, "untracked", out.Reason)
	assert.FileExists(t, filepath.Join(dir, "draft.html"))
	assert.NoFileExists(t, filepath.Join(dir, "docs", "draft.html"))
}

// --- tracked file: working tree and index move together ---
func TestMoveTracked_File(t *testing.T) {
	dir, g := openLegacyTree(t)

	out, err := MoveTracked(g, "index.html", "docs/index.html", nil)
	require.NoError(t, err)
	assert.Equal(t, MoveOutcome{From: "index.html", To: "docs/index.html", Status: MoveMoved, Files: 1}, out)

	assert.NoFileExists(t, filepath.Join(dir, "index.html"))
	assert.FileExists(t, filepath.Join(dir, "docs", "index.html"))
	names := indexNames(t, g)
	assert.True(t, names["docs/index.html"])
	assert.False(t, names["index.html"])
}

// --- tracked directory: every file moves, source directory is removed ---
func TestMoveTracked_Directory(t *testing.T) {
	dir, g := openLegacyTree(t)

	out, err := MoveTracked(g, "js", "docs/js", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, out.Files)

	assert.NoDirExists(t, filepath.Join(dir, "js"))
	assert.FileExists(t, filepath.Join(dir, "docs", "js", "nav.js"))
	assert.FileExists(t, filepath.Join(dir, "docs", "js", "theme.js"))
	names := indexNames(t, g)
	assert.True(t, names["docs/js/nav.js"])
	assert.True(t, names["docs/js/theme.js"])
	assert.False(t, names["js/nav.js"])
}

// --- destination exists: fatal ---
func TestMoveTracked_DestinationExists(t *testing.T) {
	dir, g := openLegacyTree(t)
	writeFile(t, dir, "docs/index.html", "other")

	_, err := MoveTracked(g, "index.html", "docs/index.html", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDestinationExists), "err = %v", err)
	assert.FileExists(t, filepath.Join(dir, "index.html"))
	assert.Equal(t, "other", readFile(t, dir, "docs/index.html"))
}

// --- empty destination directory is not a collision ---
func TestMoveTracked_EmptyDestinationDir(t *testing.T) {
	dir, g := openLegacyTree(t)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "docs", "css"), 0o755))

	out, err := MoveTracked(g, "css", "docs/css", nil)
	require.NoError(t, err)
	assert.Equal(t, MoveMoved, out.Status)
	assert.FileExists(t, filepath.Join(dir, "docs", "css", "site.css"))
}

func TestMoveTracked_IntoItself(t *testing.T) {
	_, g := openLegacyTree(t)

	_, err := MoveTracked(g, "css", "css/old", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "into itself")
}

func TestMoveTracked_SamePath(t *testing.T) {
	_, g := openLegacyTree(t)

	out, err := MoveTracked(g, "css", "./css", nil)
	require.NoError(t, err)
	assert.Equal(t, MoveSkipped, out.Status)
}

// --- asset fan-out merges two legacy directories ---
func TestMoveFiles_Merge(t *testing.T) {
	dir, g := openLegacyTree(t)

	_, err := MoveFiles(g, "images", "assets/img", nil)
	require.NoError(t, err)
	out, err := MoveFiles(g, "img", "assets/img", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Files)

	assert.FileExists(t, filepath.Join(dir, "assets", "img", "diagram.png"))
	assert.FileExists(t, filepath.Join(dir, "assets", "img", "logo.png"))
	assert.NoDirExists(t, filepath.Join(dir, "images"))
	assert.NoDirExists(t, filepath.Join(dir, "img"))
}

func TestMoveFiles_Collision(t *testing.T) {
	dir, repo := legacyRepo(t)
	writeFile(t, dir, "images/logo.png", "second logo")
	require.NoError(t, testutil.CommitAll(repo, "add second logo"))
	g, err := openGitTree(dir)
	require.NoError(t, err)

	_, err = MoveFiles(g, "img", "assets/img", nil)
	require.NoError(t, err)
	_, err = MoveFiles(g, "images", "assets/img", nil)
	assert.True(t, errors.Is(err, ErrDestinationExists), "err = %v", err)
}

// --- planned moves leave the disk alone but are visible to later moves ---
func TestPlanTree(t *testing.T) {
	dir, g := openLegacyTree(t)
	before := snapshot(t, dir)
	pt, err := newPlanTree(g)
	require.NoError(t, err)

	out, err := MoveTracked(pt, "css", "docs/css", nil)
	require.NoError(t, err)
	assert.Equal(t, MovePlanned, out.Status)

	assert.False(t, pt.Exists("css"))
	assert.True(t, pt.Exists("docs/css/site.css"))
	assert.True(t, pt.Exists("docs"))
	tracked, err := pt.Tracked("docs/css")
	require.NoError(t, err)
	assert.True(t, tracked)

	out, err = MoveFiles(pt, "docs/css", "docs/assets/css", nil)
	require.NoError(t, err)
	assert.Equal(t, MovePlanned, out.Status)
	files, err := pt.TrackedFiles("docs")
	require.NoError(t, err)
	assert.Equal(t, []string{"docs/assets/css/site.css"}, files)

	out, err = MoveTracked(pt, "css", "docs/css", nil)
	require.NoError(t, err)
	assert.Equal(t, MoveSkipped, out.Status)

	assert.Equal(t, before, snapshot(t, dir))
}

func TestOpenGitTree_NotRepository(t *testing.T) {
	_, err := openGitTree(t.TempDir())
	assert.True(t, errors.Is(err, ErrNotRepository), "err = %v", err)
}

func TestDirtyPaths(t *testing.T) {
	dir, g := openLegacyTree(t)
	dirty, err := g.dirtyPaths()
	require.NoError(t, err)
	assert.Empty(t, dirty)

	writeFile(t, dir, "index.html", "changed")
	writeFile(t, dir, "new.html", "new")
	dirty, err = g.dirtyPaths()
	require.NoError(t, err)
	assert.Equal(t, []string{"index.html", "new.html"}, dirty)
}
