package core

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// State is a step of the reorganization pipeline.
type State int

const (
	StateIdle State = iota
	StatePreflightChecked
	StateBackedUp
	StateFlattened
	StateRestructured
	StateRewritten
	StateValidated
	StateDone
	StateFailed
)

var stateNames = [...]string{
	StateIdle:             "idle",
	StatePreflightChecked: "preflight-checked",
	StateBackedUp:         "backed-up",
	StateFlattened:        "flattened",
	StateRestructured:     "restructured",
	StateRewritten:        "rewritten",
	StateValidated:        "validated",
	StateDone:             "done",
	StateFailed:           "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText renders the state by name in JSON output.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ReorgOptions controls Reorganize.
type ReorgOptions struct {
	Config Config
	DryRun bool
	Logger *zap.Logger
	Now    func() time.Time
}

// PhaseReport lists what one phase did (or would do in a dry run).
type PhaseReport struct {
	State   State
	Actions []string
}

// ReorgResult reports a pipeline run.
type ReorgResult struct {
	RunID      string
	Repo       string
	Dest       string
	DryRun     bool
	State      State // StateDone or StateFailed
	Reached    State // last state entered before the run ended
	Phases     []PhaseReport
	Moves      []MoveOutcome
	Mappings   []Mapping
	Stubs      []string // repository-relative stub files
	Rewrites   []RewrittenFile
	Violations []Violation
	Backup     *BackupResult
	Layout     []string // publish-root-relative files after the run
	FollowUps  []string
	Journal    string // journal database the run was recorded in
}

// runState is threaded through every phase. Each phase returns the updated copy,
// also when it fails, so the result records what happened before the failure.
type runState struct {
	repo   string
	cfg    Config
	dryRun bool
	log    *zap.Logger
	now    time.Time
	tree   Tree

	state      State
	actions    []string
	moves      []MoveOutcome
	mappings   []Mapping
	stubs      []string
	rewrites   []RewrittenFile
	violations []Violation
	backup     *BackupResult
	layout     []string
	followUps  []string
}

func (s *runState) notef(format string, args ...any) {
	if s.dryRun {
		format = "[dry-run] " + format
	}
	s.actions = append(s.actions, fmt.Sprintf(format, args...))
}

func (s *runState) destAbs() string {
	return filepath.Join(s.repo, filepath.FromSlash(s.cfg.Dest))
}

func (s *runState) abs(rel string) string {
	return filepath.Join(s.repo, filepath.FromSlash(rel))
}

type phase struct {
	to  State
	run func(runState) (runState, error)
}

var pipeline = []phase{
	{StatePreflightChecked, preflight},
	{StateBackedUp, backup},
	{StateFlattened, flatten},
	{StateRestructured, restructure},
	{StateRewritten, rewrite},
	{StateValidated, validate},
	{StateDone, finish},
}

// Reorganize moves a legacy flat site into the configured publish root layout.
// The returned result is non-nil whenever the configuration is valid, including
// when a phase fails; it then carries StateFailed and the state reached.
func Reorganize(repoPath string, opts ReorgOptions) (*ReorgResult, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	repo, err := filepath.Abs(repoPath)
	if err != nil {
		return nil, err
	}

	started := now()
	runID := uuid.NewString()
	log = log.With(zap.String("run", runID))
	st := runState{repo: repo, cfg: cfg, dryRun: opts.DryRun, log: log, now: started, state: StateIdle}

	var phases []PhaseReport
	var runErr error
	for _, ph := range pipeline {
		st.actions = nil
		next, err := ph.run(st)
		if err != nil {
			runErr = err
			next.notef("%v", err)
			phases = append(phases, PhaseReport{State: StateFailed, Actions: next.actions})
			log.Error("phase failed", zap.Stringer("phase", ph.to), zap.Stringer("reached", st.state), zap.Error(err))
			st = next
			break
		}
		st = next
		st.state = ph.to
		phases = append(phases, PhaseReport{State: ph.to, Actions: st.actions})
		log.Info("phase complete", zap.Stringer("state", ph.to), zap.Bool("dry_run", st.dryRun))
	}

	res := &ReorgResult{
		RunID:      runID,
		Repo:       repo,
		Dest:       cfg.Dest,
		DryRun:     opts.DryRun,
		State:      StateDone,
		Reached:    st.state,
		Phases:     phases,
		Moves:      st.moves,
		Mappings:   st.mappings,
		Stubs:      st.stubs,
		Rewrites:   st.rewrites,
		Violations: st.violations,
		Backup:     st.backup,
		Layout:     st.layout,
		FollowUps:  st.followUps,
	}
	if runErr != nil {
		res.State = StateFailed
	}

	if !opts.DryRun {
		res.Journal = cfg.Journal
		if res.Journal == "" {
			res.Journal = DefaultJournalPath()
		}
		rec := RunRecord{
			ID:       runID,
			Repo:     repo,
			Dest:     cfg.Dest,
			Started:  started,
			Finished: now(),
			State:    res.State.String(),
		}
		if runErr != nil {
			rec.Error = runErr.Error()
		}
		if st.backup != nil {
			rec.Backup = st.backup.Path
		}
		if err := recordRun(res.Journal, rec, res); err != nil {
			log.Warn("journal write failed", zap.String("journal", res.Journal), zap.Error(err))
			res.Journal = ""
		}
	}
	return res, runErr
}

func preflight(st runState) (runState, error) {
	g, err := openGitTree(st.repo)
	if err != nil {
		return st, err
	}
	dirty, err := g.dirtyPaths()
	if err != nil {
		return st, fmt.Errorf("git status: %w", err)
	}
	if len(dirty) > 0 {
		return st, fmt.Errorf("%w: %s", ErrDirtyTree, strings.Join(dirty, ", "))
	}
	st.tree = g
	if st.dryRun {
		pt, err := newPlanTree(g)
		if err != nil {
			return st, err
		}
		st.tree = pt
	}
	st.notef("repository %s is clean", st.repo)
	return st, nil
}

func backup(st runState) (runState, error) {
	opts := BackupOptions{Dir: st.cfg.BackupDir, Exclude: st.cfg.BackupExclude, Now: st.now}
	if st.dryRun {
		p, err := BackupPath(st.repo, opts)
		if err != nil {
			return st, fmt.Errorf("%w: %v", ErrBackup, err)
		}
		st.backup = &BackupResult{Path: p}
		st.notef("write backup %s", p)
		return st, nil
	}
	b, err := WriteBackup(st.repo, opts)
	if err != nil {
		return st, err
	}
	st.backup = b
	st.notef("wrote backup %s (%d files)", b.Path, b.Files)
	st.log.Info("backup written", zap.String("path", b.Path), zap.Int64("size", b.Size))
	return st, nil
}

func flatten(st runState) (runState, error) {
	dest := st.cfg.Dest
	if dest == "." {
		st.notef("publish root is the repository root; nothing to flatten")
		return st, nil
	}
	if !st.tree.Exists(dest) {
		if !st.dryRun {
			if err := os.MkdirAll(st.destAbs(), 0o755); err != nil {
				return st, err
			}
		}
		st.notef("create %s/", dest)
	}

	names, err := flattenCandidates(st)
	if err != nil {
		return st, err
	}
	for _, name := range names {
		out, err := MoveTracked(st.tree, name, joinRel(dest, name), st.log)
		if err != nil {
			return st, err
		}
		st = recordMove(st, out)
	}
	return st, nil
}

// flattenCandidates returns the sorted top-level names matching a flatten glob.
// Tracked and on-disk entries are both considered, as are literal glob names,
// so that missing and untracked legacy entries are reported as skipped.
func flattenCandidates(st runState) ([]string, error) {
	seen := make(map[string]bool)
	tracked, err := st.tree.TrackedFiles(".")
	if err != nil {
		return nil, err
	}
	for _, f := range tracked {
		seen[strings.SplitN(f, "/", 2)[0]] = true
	}
	entries, err := os.ReadDir(st.repo)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		seen[e.Name()] = true
	}
	for _, g := range st.cfg.Flatten {
		if !strings.ContainsAny(g, "*?") && !strings.Contains(g, "/") {
			seen[g] = true
		}
	}

	top := strings.SplitN(st.cfg.Dest, "/", 2)[0]
	var out []string
	for name := range seen {
		if name == top || name == ".git" || name == ConfigFileName {
			continue
		}
		for _, g := range st.cfg.Flatten {
			if globMatch(g, name) {
				out = append(out, name)
				break
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func restructure(st runState) (runState, error) {
	dest := st.cfg.Dest

	legacyDirs := make([]string, 0, len(st.cfg.Assets))
	for k := range st.cfg.Assets {
		legacyDirs = append(legacyDirs, k)
	}
	sort.Strings(legacyDirs)
	for _, legacy := range legacyDirs {
		out, err := MoveFiles(st.tree, joinRel(dest, legacy), joinRel(dest, "assets", st.cfg.Assets[legacy]), st.log)
		if err != nil {
			return st, err
		}
		st = recordMove(st, out)
	}

	claimed := make(map[string]bool)
	for _, r := range st.cfg.Relocate {
		var err error
		st, err = relocate(st, r, claimed)
		if err != nil {
			return st, err
		}
	}

	patterns, err := st.cfg.compilePatterns()
	if err != nil {
		return st, err
	}
	files, err := st.tree.TrackedFiles(dest)
	if err != nil {
		return st, err
	}
	for _, f := range files {
		name := f
		if dest != "." {
			name = strings.TrimPrefix(f, dest+"/")
		}
		if strings.Contains(name, "/") || !isHTMLFile(name) || claimed[name] {
			continue
		}
		for _, p := range patterns {
			canonical := p.expand(name)
			if canonical == "" {
				continue
			}
			if relocated(st, name, canonical) {
				st.notef("%s already relocated to %s", joinRel(dest, name), joinRel(dest, canonical))
				break
			}
			out, err := MoveTracked(st.tree, f, joinRel(dest, canonical), st.log)
			if err != nil {
				return st, err
			}
			st = recordMove(st, out)
			if out.Status != MoveSkipped {
				st = addMapping(st, name, canonical)
			}
			break
		}
	}

	for _, m := range st.mappings {
		rel := joinRel(dest, m.Legacy)
		if !st.dryRun {
			if err := WriteStub(st.abs(rel), m.Legacy, m.Target); err != nil {
				return st, fmt.Errorf("write stub %s: %w", rel, err)
			}
		}
		st.stubs = append(st.stubs, rel)
		st.notef("stub %s -> %s", rel, m.Target)
	}
	return st, nil
}

// relocate applies one explicit relocation. The first tracked source is moved;
// every listed source present afterwards, and the vacated one, gets a mapping.
func relocate(st runState, r Relocation, claimed map[string]bool) (runState, error) {
	dest := st.cfg.Dest
	canonical := NormalizePath(r.To)
	to := joinRel(dest, canonical)

	moved := ""
	for _, src := range r.From {
		name := NormalizePath(src)
		claimed[name] = true
		if moved != "" {
			continue
		}
		from := joinRel(dest, name)
		tracked, err := st.tree.Tracked(from)
		if err != nil {
			return st, err
		}
		if !tracked {
			continue
		}
		if relocated(st, name, canonical) {
			st.notef("%s already relocated to %s", from, to)
			return st, nil
		}
		out, err := MoveTracked(st.tree, from, to, st.log)
		if err != nil {
			return st, err
		}
		st = recordMove(st, out)
		moved = name
	}
	if moved == "" {
		out, err := MoveTracked(st.tree, joinRel(dest, NormalizePath(r.From[0])), to, st.log)
		if err != nil {
			return st, err
		}
		return recordMove(st, out), nil
	}

	for _, src := range r.From {
		name := NormalizePath(src)
		if name == moved || st.tree.Exists(joinRel(dest, name)) {
			st = addMapping(st, name, canonical)
		}
	}
	return st, nil
}

// relocated reports whether a legacy document was moved by an earlier run:
// the canonical file exists and the legacy file is a redirect stub.
func relocated(st runState, legacy, canonical string) bool {
	dest := st.cfg.Dest
	return st.tree.Exists(joinRel(dest, canonical)) && IsStub(st.abs(joinRel(dest, legacy)))
}

func recordMove(st runState, out MoveOutcome) runState {
	st.moves = append(st.moves, out)
	switch out.Status {
	case MoveSkipped:
		st.notef("skip %s (%s)", out.From, out.Reason)
	default:
		st.notef("move %s -> %s", out.From, out.To)
	}
	return st
}

func addMapping(st runState, legacy, canonical string) runState {
	st.mappings = append(st.mappings, Mapping{
		Legacy:    legacy,
		Canonical: canonical,
		Target:    targetURL(canonical, st.cfg.Index),
	})
	return st
}

func rewrite(st runState) (runState, error) {
	if st.dryRun {
		st.notef("normalize asset references under %s", st.cfg.Dest)
		if len(st.mappings) > 0 {
			st.notef("rebase links for %d relocated documents", len(st.mappings))
		}
		return st, nil
	}
	rw, err := NormalizeAssetPaths(st.destAbs(), RewriteOptions{Assets: st.cfg.Assets, Logger: st.log})
	if err != nil {
		return st, err
	}
	st.notef("normalized %d asset references in %d files", rw.Changed(), len(rw.Rewritten))
	rb, err := RebaseLinks(st.destAbs(), RebaseOptions{Mappings: st.mappings, Logger: st.log})
	if err != nil {
		return st, err
	}
	if len(st.mappings) > 0 {
		st.notef("rebased %d references in %d files", rb.Changed(), len(rb.Rewritten))
	}
	st.rewrites = mergeRewrites(rw.Rewritten, rb.Rewritten)
	return st, nil
}

// mergeRewrites sums per-file counts of several passes, sorted by file.
func mergeRewrites(passes ...[]RewrittenFile) []RewrittenFile {
	counts := make(map[string]int)
	for _, pass := range passes {
		for _, f := range pass {
			counts[f.File] += f.References
		}
	}
	out := make([]RewrittenFile, 0, len(counts))
	for f, n := range counts {
		out = append(out, RewrittenFile{File: f, References: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].File < out[j].File })
	return out
}

func validate(st runState) (runState, error) {
	if st.dryRun {
		st.notef("link check skipped: nothing was moved")
		return st, nil
	}
	res, err := CheckLinks(st.destAbs(), CheckOptions{Index: st.cfg.Index, Exclude: st.cfg.Check.Exclude, Logger: st.log})
	if err != nil {
		return st, err
	}
	st.violations = res.Violations
	if !res.OK() {
		return st, &LinkCheckError{Violations: res.Violations}
	}
	st.notef("checked %d references in %d files", res.References, res.Files)
	return st, nil
}

func finish(st runState) (runState, error) {
	layout, err := publishLayout(st)
	if err != nil {
		return st, err
	}
	st.layout = layout
	if st.dryRun {
		st.followUps = []string{"run again without --dry-run to apply"}
		st.notef("planned %d files under %s", len(layout), st.cfg.Dest)
		return st, nil
	}
	st.followUps = []string{
		"review the changes with git status",
		"commit the reorganization",
		fmt.Sprintf("configure hosting to publish from %s/", st.cfg.Dest),
	}
	if st.backup != nil {
		st.followUps = append(st.followUps, fmt.Sprintf("keep or delete the backup at %s", st.backup.Path))
	}
	st.notef("reorganized %d files under %s", len(layout), st.cfg.Dest)
	return st, nil
}

// publishLayout lists the tracked files and stubs under the publish root.
func publishLayout(st runState) ([]string, error) {
	files, err := st.tree.TrackedFiles(st.cfg.Dest)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []string
	add := func(f string) {
		if st.cfg.Dest != "." {
			f = strings.TrimPrefix(f, st.cfg.Dest+"/")
		}
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	for _, f := range files {
		add(f)
	}
	for _, s := range st.stubs {
		add(s)
	}
	sort.Strings(out)
	return out, nil
}
