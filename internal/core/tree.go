package core

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/format/index"
)

// Tree is the view of the working tree the move executor operates on.
// All paths are repository-relative with forward slashes.
type Tree interface {
	// Exists reports whether p is present (file or directory).
	Exists(p string) bool
	// EmptyDir reports whether p is a directory without entries.
	EmptyDir(p string) bool
	// Tracked reports whether p is a tracked file or a directory holding tracked files.
	Tracked(p string) (bool, error)
	// TrackedFiles lists tracked files at or below p, sorted.
	TrackedFiles(p string) ([]string, error)
	// MoveFile relocates one tracked file, updating the index.
	MoveFile(from, to string) error
	// Planned reports whether moves are only recorded, not performed.
	Planned() bool
}

// gitTree performs moves through the go-git worktree so the index records renames.
type gitTree struct {
	root string
	repo *git.Repository
	wt   *git.Worktree
}

func openGitTree(root string) (*gitTree, error) {
	repo, err := git.PlainOpen(root)
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("%w: %s", ErrNotRepository, root)
		}
		return nil, err
	}
	wt, err := repo.Worktree()
	if err != nil {
		if errors.Is(err, git.ErrIsBareRepository) {
			return nil, fmt.Errorf("%w: %s is bare", ErrNotRepository, root)
		}
		return nil, err
	}
	return &gitTree{root: root, repo: repo, wt: wt}, nil
}

// dirtyPaths returns the paths git reports as changed or untracked, sorted.
func (g *gitTree) dirtyPaths() ([]string, error) {
	st, err := g.wt.Status()
	if err != nil {
		return nil, err
	}
	if st.IsClean() {
		return nil, nil
	}
	var out []string
	for p, fs := range st {
		if fs.Staging == git.Unmodified && fs.Worktree == git.Unmodified {
			continue
		}
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

func (g *gitTree) index() (*index.Index, error) {
	return g.repo.Storer.Index()
}

func (g *gitTree) abs(p string) string {
	return filepath.Join(g.root, filepath.FromSlash(p))
}

func (g *gitTree) Exists(p string) bool   { return fileExists(g.abs(p)) }
func (g *gitTree) EmptyDir(p string) bool { return isEmptyDir(g.abs(p)) }
func (g *gitTree) Planned() bool          { return false }

func (g *gitTree) Tracked(p string) (bool, error) {
	files, err := g.TrackedFiles(p)
	return len(files) > 0, err
}

func (g *gitTree) TrackedFiles(p string) ([]string, error) {
	idx, err := g.index()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(idx.Entries))
	for _, e := range idx.Entries {
		names = append(names, e.Name)
	}
	return filterUnder(names, NormalizePath(p)), nil
}

func (g *gitTree) MoveFile(from, to string) error {
	if err := os.MkdirAll(filepath.Dir(g.abs(to)), 0o755); err != nil {
		return err
	}
	if _, err := g.wt.Move(from, to); err != nil {
		if errors.Is(err, git.ErrDestinationExists) {
			return fmt.Errorf("%w: %s", ErrDestinationExists, to)
		}
		return err
	}
	return CleanupEmptyDirs(g.root, []string{from})
}

// indexSnapshot returns name to blob hash for every index entry.
func (g *gitTree) indexSnapshot() (map[string]string, error) {
	idx, err := g.index()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(idx.Entries))
	for _, e := range idx.Entries {
		out[e.Name] = e.Hash.String()
	}
	return out, nil
}

// filterUnder returns the names equal to p or below it, sorted. "." matches everything.
func filterUnder(names []string, p string) []string {
	var out []string
	for _, n := range names {
		if p == "." || n == p || strings.HasPrefix(n, p+"/") {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

// planTree replays moves against an in-memory copy of the index. Nothing on disk changes.
type planTree struct {
	root    string
	tracked map[string]bool
	vacated map[string]bool
}

func newPlanTree(g *gitTree) (*planTree, error) {
	snap, err := g.indexSnapshot()
	if err != nil {
		return nil, err
	}
	pt := &planTree{root: g.root, tracked: make(map[string]bool, len(snap)), vacated: make(map[string]bool)}
	for name := range snap {
		pt.tracked[name] = true
	}
	return pt, nil
}

func (p *planTree) names() []string {
	out := make([]string, 0, len(p.tracked))
	for n := range p.tracked {
		out = append(out, n)
	}
	return out
}

func (p *planTree) hasTracked(rel string) bool {
	return len(filterUnder(p.names(), rel)) > 0
}

func (p *planTree) isVacated(rel string) bool {
	if p.vacated[rel] {
		return true
	}
	for v := range p.vacated {
		if strings.HasPrefix(v, rel+"/") {
			return true
		}
	}
	return false
}

func (p *planTree) Exists(rel string) bool {
	rel = NormalizePath(rel)
	if p.hasTracked(rel) {
		return true
	}
	if p.isVacated(rel) {
		return false
	}
	return fileExists(filepath.Join(p.root, filepath.FromSlash(rel)))
}

func (p *planTree) EmptyDir(rel string) bool {
	rel = NormalizePath(rel)
	if p.hasTracked(rel) {
		return false
	}
	return p.isVacated(rel) || isEmptyDir(filepath.Join(p.root, filepath.FromSlash(rel)))
}

func (p *planTree) Tracked(rel string) (bool, error) {
	return p.hasTracked(NormalizePath(rel)), nil
}

func (p *planTree) TrackedFiles(rel string) ([]string, error) {
	return filterUnder(p.names(), NormalizePath(rel)), nil
}

func (p *planTree) MoveFile(from, to string) error {
	if p.Exists(to) {
		return fmt.Errorf("%w: %s", ErrDestinationExists, to)
	}
	delete(p.tracked, from)
	p.vacated[from] = true
	delete(p.vacated, to)
	p.tracked[to] = true
	return nil
}

func (p *planTree) Planned() bool { return true }
