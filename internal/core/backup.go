package core

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
)

// BackupOptions controls WriteBackup.
type BackupOptions struct {
	Dir     string   // destination directory; "" means DefaultBackupDir()
	Exclude []string // directory or file names skipped at any depth
	Now     time.Time
}

// BackupResult describes a written (or planned) backup archive.
type BackupResult struct {
	Path  string
	Files int
	Size  int64
}

// DefaultBackupDir is the directory used when no backup directory is configured.
func DefaultBackupDir() string {
	return filepath.Join(xdg.StateHome, "sitereorg", "backups")
}

// BackupPath returns the archive path for a repository at the given time.
func BackupPath(repoPath string, opts BackupOptions) (string, error) {
	dir := opts.Dir
	if dir == "" {
		dir = DefaultBackupDir()
	}
	absRepo, err := filepath.Abs(repoPath)
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("%s-%s.tar.gz", filepath.Base(absRepo), opts.Now.UTC().Format("20060102-150405"))
	return filepath.Abs(filepath.Join(dir, name))
}

// WriteBackup writes a gzip-compressed tar snapshot of the working tree.
// The archive is created exclusively: an existing file at the target path is an error.
// Any failure wraps ErrBackup and removes the partial archive.
func WriteBackup(repoPath string, opts BackupOptions) (*BackupResult, error) {
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	target, err := BackupPath(repoPath, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackup, err)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackup, err)
	}
	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackup, err)
	}

	absRepo, err := filepath.Abs(repoPath)
	if err != nil {
		f.Close()
		os.Remove(target)
		return nil, fmt.Errorf("%w: %v", ErrBackup, err)
	}
	skip := ""
	if rel, err := filepath.Rel(absRepo, target); err == nil && !escapesRoot(filepath.ToSlash(rel)) {
		skip = filepath.ToSlash(rel)
	}

	files, werr := writeArchive(f, osfs.New(absRepo), opts.Exclude, skip)
	cerr := f.Close()
	if werr == nil {
		werr = cerr
	}
	if werr != nil {
		os.Remove(target)
		return nil, fmt.Errorf("%w: %v", ErrBackup, werr)
	}
	info, err := os.Stat(target)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackup, err)
	}
	return &BackupResult{Path: target, Files: files, Size: info.Size()}, nil
}

// writeArchive streams every entry of fs into a tar.gz on w and returns the number of files.
func writeArchive(w io.Writer, fs billy.Filesystem, exclude []string, skip string) (int, error) {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	excluded := make(map[string]bool, len(exclude))
	for _, e := range exclude {
		excluded[e] = true
	}

	files := 0
	err := util.Walk(fs, ".", func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		name := filepath.ToSlash(p)
		if name == "." || name == "" {
			return nil
		}
		if excluded[info.Name()] {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if name == skip {
			return nil
		}

		var link string
		if info.Mode()&os.ModeSymlink != 0 {
			if link, err = fs.Readlink(p); err != nil {
				return err
			}
		}
		hdr, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return err
		}
		hdr.Name = name
		if info.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		src, err := fs.Open(p)
		if err != nil {
			return err
		}
		_, err = io.Copy(tw, src)
		src.Close()
		if err != nil {
			return err
		}
		files++
		return nil
	})
	if err != nil {
		return files, err
	}
	if err := tw.Close(); err != nil {
		return files, err
	}
	return files, gz.Close()
}
