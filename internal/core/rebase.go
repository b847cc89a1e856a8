package core

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// RebaseOptions controls RebaseLinks.
type RebaseOptions struct {
	Mappings []Mapping
	DryRun   bool
	Logger   *zap.Logger
}

// attrValueRe matches an href/src assignment with a double-quoted, single-quoted or
// unquoted value.
var attrValueRe = regexp.MustCompile(`(\s(?i:href|src)\s*=\s*)(?:"([^"]*)"|'([^']*)'|([^\s"'>][^\s>]*))`)

// unquotedUnsafe lists the characters an unquoted attribute value cannot hold.
const unquotedUnsafe = " \t\n\f\r\"'=<>`"

// RebaseLinks keeps references working after documents were relocated.
// In a relocated document, every relative local reference is resolved from the
// document's legacy location and rewritten to a site-rooted path. In every document,
// a reference that resolves to a legacy path is rewritten to that mapping's target.
// Rewritten references are site-rooted and no longer legacy, so a second pass changes nothing.
func RebaseLinks(root string, opts RebaseOptions) (*RewriteResult, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	legacy := make(map[string]string, len(opts.Mappings))
	origin := make(map[string]string, len(opts.Mappings))
	for _, m := range opts.Mappings {
		legacy[NormalizePath(m.Legacy)] = m.Target
		canonical := NormalizePath(m.Canonical)
		if _, ok := origin[canonical]; !ok {
			origin[canonical] = NormalizePath(m.Legacy)
		}
	}
	if len(legacy) == 0 {
		return &RewriteResult{}, nil
	}

	files, err := collectHTMLFiles(root, nil)
	if err != nil {
		return nil, err
	}
	result := &RewriteResult{Scanned: len(files)}

	var pending []pendingRewrite
	for _, rel := range files {
		from, relocated := origin[rel]
		if !relocated {
			from = rel
		}
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
		out := attrValueRe.ReplaceAllStringFunc(string(content), func(m string) string {
			sub := attrValueRe.FindStringSubmatch(m)
			var quote, val string
			switch rest := m[len(sub[1]):]; {
			case strings.HasPrefix(rest, `"`):
				quote, val = `"`, sub[2]
			case strings.HasPrefix(rest, "'"):
				quote, val = "'", sub[3]
			default:
				val = sub[4]
			}
			next, ok := rebaseRef(val, from, relocated, legacy)
			if !ok || next == val {
				return m
			}
			if quote == "" && strings.ContainsAny(next, unquotedUnsafe) {
				quote = `"`
			}
			count++
			return sub[1] + quote + next + quote
		})
		if count == 0 {
			continue
		}
		pending = append(pending, pendingRewrite{path: full, content: []byte(out), perm: info.Mode().Perm(), count: count})
		result.Rewritten = append(result.Rewritten, RewrittenFile{File: rel, References: count})
		log.Debug("rebase links", zap.String("file", rel), zap.Int("references", count))
	}

	if opts.DryRun || len(pending) == 0 {
		return result, nil
	}
	if err := applyRewrites(pending); err != nil {
		return nil, fmt.Errorf("rebase links: %w", err)
	}
	return result, nil
}

// rebaseRef computes the replacement for one reference found in a document whose
// legacy location is from. It returns false when the reference must stay as it is.
func rebaseRef(ref, from string, relocated bool, legacy map[string]string) (string, bool) {
	if isIgnorableRef(ref) {
		return "", false
	}
	p, suffix := splitRef(ref)
	if p == "" {
		return "", false
	}
	absolute := strings.HasPrefix(p, "/")
	var resolved string
	if absolute {
		resolved = strings.TrimPrefix(path.Clean(p), "/")
		if resolved == "" {
			resolved = "."
		}
	} else {
		resolved = path.Clean(path.Join(path.Dir(from), p))
		if escapesRoot(resolved) {
			return "", false
		}
	}
	if target, ok := legacy[resolved]; ok {
		return target + suffix, true
	}
	if absolute || !relocated {
		return "", false
	}
	site := "/"
	if resolved != "." {
		site += resolved
		if strings.HasSuffix(p, "/") {
			site += "/"
		}
	}
	return site + suffix, true
}
