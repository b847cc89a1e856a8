package core

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// RewriteOptions controls NormalizeAssetPaths.
type RewriteOptions struct {
	Assets map[string]string // legacy directory -> directory under /assets/; nil means defaults
	DryRun bool
	Logger *zap.Logger
}

// RewrittenFile reports one document whose references were rewritten.
type RewrittenFile struct {
	File       string // root-relative path
	References int    // number of rewritten attribute values
}

// RewriteResult reports the outcome of a rewrite pass.
type RewriteResult struct {
	Scanned   int
	Rewritten []RewrittenFile // sorted by file
}

// Changed returns the total number of rewritten references.
func (r *RewriteResult) Changed() int {
	n := 0
	for _, f := range r.Rewritten {
		n += f.References
	}
	return n
}

// rewriteBackup holds original file content for rollback on failure.
type rewriteBackup struct {
	path    string
	content []byte
	perm    os.FileMode
}

// pendingRewrite is a computed replacement waiting to be written.
type pendingRewrite struct {
	path    string
	content []byte
	perm    os.FileMode
	count   int
}

// assetAttrRe builds the pattern matching href/src values that begin with a legacy asset prefix.
// Group 1 is the attribute up to and including the opening quote, if any, group 2 the
// legacy directory. Unquoted values are matched too.
func assetAttrRe(keys []string) *regexp.Regexp {
	quoted := make([]string, len(keys))
	for i, k := range keys {
		quoted[i] = regexp.QuoteMeta(k)
	}
	return regexp.MustCompile(`(\s(?i:href|src)\s*=\s*["']?)(?:\./)?(` + strings.Join(quoted, "|") + `)/`)
}

// NormalizeAssetPaths rewrites legacy relative asset references (css/, js/, img/, images/,
// optionally prefixed by ./) in every HTML document under root to /assets/<dir>/.
// References not starting with a known legacy prefix are left untouched, so a second
// pass changes nothing.
func NormalizeAssetPaths(root string, opts RewriteOptions) (*RewriteResult, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	assets := opts.Assets
	if assets == nil {
		assets = DefaultConfig().Assets
	}
	if len(assets) == 0 {
		return &RewriteResult{}, nil
	}
	re := assetAttrRe(Config{Assets: assets}.assetKeys())

	files, err := collectHTMLFiles(root, nil)
	if err != nil {
		return nil, err
	}
	result := &RewriteResult{Scanned: len(files)}

	var pending []pendingRewrite
	for _, rel := range files {
		full := filepath.Join(root, filepath.FromSlash(rel))
		info, err := os.Stat(full)
		if err != nil {
			return nil, err
		}
		content, err := os.ReadFile(full)
		if err != nil {
			return nil, err
		}
		count := 0
		out := re.ReplaceAllStringFunc(string(content), func(m string) string {
			sub := re.FindStringSubmatch(m)
			count++
			return sub[1] + "/assets/" + assets[sub[2]] + "/"
		})
		if count == 0 {
			continue
		}
		pending = append(pending, pendingRewrite{path: full, content: []byte(out), perm: info.Mode().Perm(), count: count})
		result.Rewritten = append(result.Rewritten, RewrittenFile{File: rel, References: count})
		log.Debug("normalize asset paths", zap.String("file", rel), zap.Int("references", count))
	}

	if opts.DryRun || len(pending) == 0 {
		return result, nil
	}
	if err := applyRewrites(pending); err != nil {
		return nil, fmt.Errorf("rewrite asset paths: %w", err)
	}
	return result, nil
}

// applyRewrites writes every pending rewrite. On a write error, files already
// written are restored to their original content (best-effort).
func applyRewrites(pending []pendingRewrite) error {
	var written []rewriteBackup
	for _, p := range pending {
		original, err := os.ReadFile(p.path)
		if err != nil {
			restoreBackups(written)
			return err
		}
		if err := writeFilePreservePerm(p.path, p.content, p.perm); err != nil {
			restoreBackups(written)
			return err
		}
		written = append(written, rewriteBackup{path: p.path, content: original, perm: p.perm})
	}
	return nil
}

// restoreBackups restores files to their original content (best-effort).
func restoreBackups(backups []rewriteBackup) {
	for _, fb := range backups {
		_ = writeFilePreservePerm(fb.path, fb.content, fb.perm)
	}
}
