package main

import (
	"encoding/json"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/disiqueira/gotree/v3"
	"github.com/dustin/go-humanize"

	"github.com/ryotapoi/sitereorg/internal/core"
)

// validateFormat checks that format is "json" or "text".
func validateFormat(format string) error {
	if format != "json" && format != "text" {
		return fmt.Errorf("invalid format: %q (must be json or text)", format)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// nonNil returns s, or an empty slice so JSON shows [] instead of null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// layoutTree renders publish-root-relative files as a directory tree.
func layoutTree(rootLabel string, files []string) string {
	tree := gotree.New(rootLabel)
	dirs := make(map[string]gotree.Tree)
	var getDir func(string) gotree.Tree
	getDir = func(dir string) gotree.Tree {
		if dir == "." {
			return tree
		}
		if d, ok := dirs[dir]; ok {
			return d
		}
		d := getDir(path.Dir(dir)).Add(path.Base(dir) + "/")
		dirs[dir] = d
		return d
	}
	for _, f := range files {
		getDir(path.Dir(f)).Add(path.Base(f))
	}
	return tree.Print()
}

// --- Run output ---

type phaseJSON struct {
	State   core.State `json:"state"`
	Actions []string   `json:"actions"`
}

type moveJSON struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
	Files  int    `json:"files"`
}

type mappingJSON struct {
	Legacy    string `json:"legacy"`
	Canonical string `json:"canonical"`
	Target    string `json:"target"`
}

type rewriteJSON struct {
	File       string `json:"file"`
	References int    `json:"references"`
}

type violationJSON struct {
	File     string `json:"file"`
	Ref      string `json:"ref"`
	Resolved string `json:"resolved"`
}

type backupJSON struct {
	Path  string `json:"path"`
	Files int    `json:"files"`
	Size  int64  `json:"size"`
}

type runJSON struct {
	RunID      string          `json:"run_id"`
	Repo       string          `json:"repo"`
	Dest       string          `json:"dest"`
	DryRun     bool            `json:"dry_run"`
	State      core.State      `json:"state"`
	Reached    core.State      `json:"reached"`
	Phases     []phaseJSON     `json:"phases"`
	Moves      []moveJSON      `json:"moves"`
	Mappings   []mappingJSON   `json:"mappings"`
	Stubs      []string        `json:"stubs"`
	Rewrites   []rewriteJSON   `json:"rewrites"`
	Violations []violationJSON `json:"violations"`
	Backup     *backupJSON     `json:"backup,omitempty"`
	Layout     []string        `json:"layout"`
	FollowUps  []string        `json:"follow_ups"`
	Journal    string          `json:"journal,omitempty"`
}

func toMappingsJSON(ms []core.Mapping) []mappingJSON {
	out := make([]mappingJSON, len(ms))
	for i, m := range ms {
		out[i] = mappingJSON{Legacy: m.Legacy, Canonical: m.Canonical, Target: m.Target}
	}
	return out
}

func toViolationsJSON(vs []core.Violation) []violationJSON {
	out := make([]violationJSON, len(vs))
	for i, v := range vs {
		out[i] = violationJSON{File: v.File, Ref: v.Ref, Resolved: v.Resolved}
	}
	return out
}

func toRewritesJSON(rs []core.RewrittenFile) []rewriteJSON {
	out := make([]rewriteJSON, len(rs))
	for i, r := range rs {
		out[i] = rewriteJSON{File: r.File, References: r.References}
	}
	return out
}

func printRunJSON(w io.Writer, r *core.ReorgResult) error {
	out := runJSON{
		RunID:      r.RunID,
		Repo:       r.Repo,
		Dest:       r.Dest,
		DryRun:     r.DryRun,
		State:      r.State,
		Reached:    r.Reached,
		Phases:     make([]phaseJSON, len(r.Phases)),
		Moves:      make([]moveJSON, len(r.Moves)),
		Mappings:   toMappingsJSON(r.Mappings),
		Stubs:      nonNil(r.Stubs),
		Rewrites:   toRewritesJSON(r.Rewrites),
		Violations: toViolationsJSON(r.Violations),
		Layout:     nonNil(r.Layout),
		FollowUps:  nonNil(r.FollowUps),
		Journal:    r.Journal,
	}
	for i, p := range r.Phases {
		out.Phases[i] = phaseJSON{State: p.State, Actions: nonNil(p.Actions)}
	}
	for i, m := range r.Moves {
		out.Moves[i] = moveJSON{From: m.From, To: m.To, Status: string(m.Status), Reason: m.Reason, Files: m.Files}
	}
	if r.Backup != nil {
		out.Backup = &backupJSON{Path: r.Backup.Path, Files: r.Backup.Files, Size: r.Backup.Size}
	}
	return writeJSON(w, out)
}

func printRunText(w io.Writer, r *core.ReorgResult) {
	fmt.Fprintf(w, "run: %s\n", r.RunID)
	fmt.Fprintf(w, "dest: %s\n", r.Dest)
	fmt.Fprintf(w, "dry_run: %t\n", r.DryRun)
	fmt.Fprintf(w, "state: %s\n", r.State)
	if r.State == core.StateFailed {
		fmt.Fprintf(w, "reached: %s\n", r.Reached)
	}
	fmt.Fprintln(w, "phases:")
	for _, p := range r.Phases {
		fmt.Fprintf(w, "- %s\n", p.State)
		for _, a := range p.Actions {
			fmt.Fprintf(w, "  - %s\n", a)
		}
	}
	if len(r.Mappings) > 0 {
		fmt.Fprintln(w, "mappings:")
		for _, m := range r.Mappings {
			fmt.Fprintf(w, "- %s -> %s\n", m.Legacy, m.Target)
		}
	}
	if len(r.Rewrites) > 0 {
		fmt.Fprintln(w, "rewrites:")
		for _, f := range r.Rewrites {
			fmt.Fprintf(w, "- %s: %d\n", f.File, f.References)
		}
	}
	if len(r.Violations) > 0 {
		printViolationsText(w, r.Violations)
	}
	if r.Backup != nil {
		if r.DryRun {
			fmt.Fprintf(w, "backup: %s\n", r.Backup.Path)
		} else {
			fmt.Fprintf(w, "backup: %s (%s, %d files)\n", r.Backup.Path, humanize.Bytes(uint64(r.Backup.Size)), r.Backup.Files)
		}
	}
	if len(r.Layout) > 0 {
		fmt.Fprintln(w, "layout:")
		fmt.Fprint(w, layoutTree(r.Dest+"/", r.Layout))
	}
	if len(r.FollowUps) > 0 {
		fmt.Fprintln(w, "follow_ups:")
		for _, f := range r.FollowUps {
			fmt.Fprintf(w, "- %s\n", f)
		}
	}
}

// --- Check output ---

func printViolationsText(w io.Writer, vs []core.Violation) {
	fmt.Fprintln(w, "violations:")
	for _, v := range vs {
		fmt.Fprintf(w, "- file: %s\n", v.File)
		fmt.Fprintf(w, "  ref: %s\n", v.Ref)
		fmt.Fprintf(w, "  resolved: %s\n", v.Resolved)
	}
}

func printCheckJSON(w io.Writer, r *core.CheckResult) error {
	return writeJSON(w, map[string]any{
		"files":      r.Files,
		"references": r.References,
		"ok":         r.OK(),
		"violations": toViolationsJSON(r.Violations),
	})
}

func printCheckText(w io.Writer, r *core.CheckResult) {
	fmt.Fprintf(w, "files: %d\n", r.Files)
	fmt.Fprintf(w, "references: %d\n", r.References)
	fmt.Fprintf(w, "ok: %t\n", r.OK())
	if !r.OK() {
		printViolationsText(w, r.Violations)
	}
}

// --- Rewrite output ---

func printRewriteJSON(w io.Writer, r *core.RewriteResult, dryRun bool) error {
	return writeJSON(w, map[string]any{
		"dry_run":   dryRun,
		"scanned":   r.Scanned,
		"changed":   r.Changed(),
		"rewritten": toRewritesJSON(r.Rewritten),
	})
}

func printRewriteText(w io.Writer, r *core.RewriteResult, dryRun bool) {
	fmt.Fprintf(w, "dry_run: %t\n", dryRun)
	fmt.Fprintf(w, "scanned: %d\n", r.Scanned)
	fmt.Fprintf(w, "changed: %d\n", r.Changed())
	if len(r.Rewritten) > 0 {
		fmt.Fprintln(w, "rewritten:")
		for _, f := range r.Rewritten {
			fmt.Fprintf(w, "- %s: %d\n", f.File, f.References)
		}
	}
}

// --- Stub output ---

func printStubJSON(w io.Writer, file, target string) error {
	return writeJSON(w, map[string]string{"path": file, "target": target})
}

func printStubText(w io.Writer, file, target string) {
	fmt.Fprintf(w, "path: %s\n", file)
	fmt.Fprintf(w, "target: %s\n", target)
}

// --- Journal output ---

type historyJSON struct {
	ID         string `json:"id"`
	Repo       string `json:"repo"`
	Dest       string `json:"dest"`
	Started    string `json:"started"`
	Finished   string `json:"finished"`
	State      string `json:"state"`
	Error      string `json:"error,omitempty"`
	Backup     string `json:"backup,omitempty"`
	Moves      int    `json:"moves"`
	Mappings   int    `json:"mappings"`
	Violations int    `json:"violations"`
}

func printHistoryJSON(w io.Writer, runs []core.RunRecord) error {
	out := make([]historyJSON, len(runs))
	for i, r := range runs {
		out[i] = historyJSON{
			ID:         r.ID,
			Repo:       r.Repo,
			Dest:       r.Dest,
			Started:    r.Started.Format(time.RFC3339),
			Finished:   r.Finished.Format(time.RFC3339),
			State:      r.State,
			Error:      r.Error,
			Backup:     r.Backup,
			Moves:      r.Moves,
			Mappings:   r.Mappings,
			Violations: r.Violations,
		}
	}
	return writeJSON(w, out)
}

func printHistoryText(w io.Writer, runs []core.RunRecord) {
	fmt.Fprintln(w, "runs:")
	for _, r := range runs {
		fmt.Fprintf(w, "- id: %s\n", r.ID)
		fmt.Fprintf(w, "  started: %s (%s)\n", r.Started.Format(time.RFC3339), humanize.Time(r.Started))
		fmt.Fprintf(w, "  repo: %s\n", r.Repo)
		fmt.Fprintf(w, "  dest: %s\n", r.Dest)
		fmt.Fprintf(w, "  state: %s\n", r.State)
		if r.Error != "" {
			fmt.Fprintf(w, "  error: %s\n", r.Error)
		}
		fmt.Fprintf(w, "  moves: %d\n", r.Moves)
		fmt.Fprintf(w, "  mappings: %d\n", r.Mappings)
		fmt.Fprintf(w, "  violations: %d\n", r.Violations)
		if r.Backup != "" {
			fmt.Fprintf(w, "  backup: %s\n", r.Backup)
		}
	}
}

func printMappingsJSON(w io.Writer, runID string, ms []core.Mapping) error {
	return writeJSON(w, map[string]any{
		"run":      runID,
		"mappings": toMappingsJSON(ms),
	})
}

func printMappingsText(w io.Writer, runID string, ms []core.Mapping) {
	fmt.Fprintf(w, "run: %s\n", runID)
	fmt.Fprintln(w, "mappings:")
	for _, m := range ms {
		fmt.Fprintf(w, "- %s -> %s\n", m.Legacy, m.Target)
	}
}
