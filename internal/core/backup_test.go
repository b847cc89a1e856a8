package core

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var backupTime = time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)

// archiveFiles returns the regular file entries and their contents of a tar.gz archive.
func archiveFiles(t *testing.T, p string) map[string]string {
	t.Helper()
	f, err := os.Open(p)
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	tr := tar.NewReader(gz)

	out := make(map[string]string)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		data, err := io.ReadAll(tr)
		require.NoError(t, err)
		out[hdr.Name] = string(data)
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var legacyFiles = []string{
	"README.md",
	"css/site.css",
	"images/diagram.png",
	"img/logo.png",
	"index.html",
	"jc_guide.html",
	"js/nav.js",
	"js/theme.js",
	"session_2024_03.html",
	"summary_2024.html",
}

func TestWriteBackup(t *testing.T) {
	repo := copySite(t, "site_legacy")
	writeFile(t, repo, ".git/config", "[core]")
	writeFile(t, repo, "node_modules/lib/index.js", "module.exports = 1")
	writeFile(t, repo, "docs/.jekyll-cache/x", "cache")
	dir := t.TempDir()

	res, err := WriteBackup(repo, BackupOptions{Dir: dir, Exclude: DefaultConfig().BackupExclude, Now: backupTime})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "site-20240401-120000.tar.gz"), res.Path)
	assert.Equal(t, len(legacyFiles), res.Files)
	info, err := os.Stat(res.Path)
	require.NoError(t, err)
	assert.Equal(t, info.Size(), res.Size)

	files := archiveFiles(t, res.Path)
	assert.Equal(t, legacyFiles, sortedKeys(files))
	assert.Equal(t, readFile(t, repo, "index.html"), files["index.html"])
}

func TestWriteBackup_ExclusiveCreate(t *testing.T) {
	repo := copySite(t, "site_legacy")
	opts := BackupOptions{Dir: t.TempDir(), Now: backupTime}

	first, err := WriteBackup(repo, opts)
	require.NoError(t, err)
	before, err := os.ReadFile(first.Path)
	require.NoError(t, err)

	_, err = WriteBackup(repo, opts)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBackup), "err = %v", err)

	after, err := os.ReadFile(first.Path)
	require.NoError(t, err)
	assert.Equal(t, before, after, "existing archive must not be touched")
}

func TestWriteBackup_DirInsideRepository(t *testing.T) {
	repo := copySite(t, "site_legacy")

	res, err := WriteBackup(repo, BackupOptions{Dir: filepath.Join(repo, "backups"), Now: backupTime})
	require.NoError(t, err)

	files := archiveFiles(t, res.Path)
	for name := range files {
		assert.False(t, strings.HasSuffix(name, ".tar.gz"), "archive contains itself: %s", name)
	}
	assert.Equal(t, len(legacyFiles), res.Files)
}

func TestWriteBackup_UnwritableDir(t *testing.T) {
	repo := copySite(t, "site_legacy")
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("file"), 0o644))

	_, err := WriteBackup(repo, BackupOptions{Dir: filepath.Join(blocker, "sub"), Now: backupTime})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBackup), "err = %v", err)
}

func TestBackupPath_Default(t *testing.T) {
	p, err := BackupPath("/srv/club-site", BackupOptions{Now: backupTime})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(DefaultBackupDir(), "club-site-20240401-120000.tar.gz"), p)
}
