package core

import (
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// CheckOptions controls CheckLinks.
type CheckOptions struct {
	Index   string   // implicit directory index document; "" means DefaultIndex
	Exclude []string // root-relative globs of documents not scanned
	Logger  *zap.Logger
}

// Violation is a local reference that does not resolve to an existing file.
type Violation struct {
	File     string // root-relative path of the referencing document
	Ref      string // raw attribute value
	Resolved string // root-relative candidate that was looked up
}

// CheckResult reports the outcome of a link check.
type CheckResult struct {
	Files      int
	References int
	Violations []Violation // sorted by file, then reference
}

// OK reports whether every local reference resolved.
func (r *CheckResult) OK() bool {
	return len(r.Violations) == 0
}

// CheckLinks validates that every local href/src in the HTML documents under root
// resolves to an existing file. Site-rooted references resolve against root, relative
// ones against the referencing document's directory; directories resolve through the
// index document. Every violation is returned, not only the first.
func CheckLinks(root string, opts CheckOptions) (*CheckResult, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	index := opts.Index
	if index == "" {
		index = DefaultIndex
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	files, err := collectHTMLFiles(absRoot, opts.Exclude)
	if err != nil {
		return nil, err
	}

	result := &CheckResult{Files: len(files)}
	for _, rel := range files {
		refs, err := readRefs(filepath.Join(absRoot, filepath.FromSlash(rel)))
		if err != nil {
			return nil, err
		}
		for _, ref := range refs {
			if isIgnorableRef(ref) {
				continue
			}
			p, _ := splitRef(strings.TrimSpace(ref))
			if p == "" {
				continue // query-only reference to the document itself
			}
			result.References++
			resolved, ok := resolveRef(absRoot, rel, p, index)
			if !ok {
				result.Violations = append(result.Violations, Violation{File: rel, Ref: ref, Resolved: resolved})
				log.Debug("broken reference", zap.String("file", rel), zap.String("ref", ref), zap.String("resolved", resolved))
			}
		}
	}

	sort.SliceStable(result.Violations, func(i, j int) bool {
		a, b := result.Violations[i], result.Violations[j]
		if a.File != b.File {
			return a.File < b.File
		}
		return a.Ref < b.Ref
	})
	return result, nil
}

func readRefs(p string) ([]string, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return extractRefs(f)
}

// resolveRef maps a reference path to a candidate file and reports whether it exists.
// The returned candidate is root-relative.
func resolveRef(absRoot, fromRel, p, index string) (string, bool) {
	if dec, err := url.PathUnescape(p); err == nil {
		p = dec
	}
	var cand string
	if strings.HasPrefix(p, "/") {
		cand = filepath.Join(absRoot, filepath.FromSlash(p))
	} else {
		cand = filepath.Join(absRoot, filepath.FromSlash(path.Dir(fromRel)), filepath.FromSlash(p))
	}
	if strings.HasSuffix(p, "/") || isDir(cand) {
		cand = filepath.Join(cand, index)
	}
	rel, err := filepath.Rel(absRoot, cand)
	if err != nil {
		return cand, false
	}
	rel = filepath.ToSlash(rel)
	if escapesRoot(rel) {
		return rel, false
	}
	info, err := os.Stat(cand)
	if err != nil || info.IsDir() {
		return rel, false
	}
	return rel, true
}
