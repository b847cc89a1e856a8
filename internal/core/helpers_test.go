package core

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/stretchr/testify/require"

	"github.com/ryotapoi/sitereorg/internal/testutil"
)

// copySite copies a testdata fixture into a fresh temporary directory.
func copySite(t *testing.T, name string) string {
	t.Helper()
	root := filepath.Join("..", "..", "testdata", name)
	dst := filepath.Join(t.TempDir(), "site")
	if err := testutil.CopyDir(root, dst); err != nil {
		t.Fatalf("copy site: %v", err)
	}
	return dst
}

// legacyRepo returns a committed git repository holding the legacy site fixture.
func legacyRepo(t *testing.T) (string, *git.Repository) {
	t.Helper()
	dir := copySite(t, "site_legacy")
	repo, err := testutil.InitRepo(dir)
	require.NoError(t, err)
	return dir, repo
}

// testConfig returns the default configuration with backups and the journal
// redirected into temporary directories.
func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.BackupDir = filepath.Join(t.TempDir(), "backups")
	cfg.Journal = filepath.Join(t.TempDir(), "journal.sqlite")
	return cfg
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func readFile(t *testing.T, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

// listFiles returns every regular file below root as sorted slash paths, skipping .git.
func listFiles(t *testing.T, root string) []string {
	t.Helper()
	var out []string
	err := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && d.Name() == ".git" {
			return filepath.SkipDir
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	require.NoError(t, err)
	sort.Strings(out)
	return out
}

// snapshot maps every file below root (excluding .git) to its content.
func snapshot(t *testing.T, root string) map[string]string {
	t.Helper()
	out := make(map[string]string)
	for _, f := range listFiles(t, root) {
		out[f] = readFile(t, root, f)
	}
	return out
}
