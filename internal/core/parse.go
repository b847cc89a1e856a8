package core

import (
	"io"
	"strings"

	"golang.org/x/net/html"
)

// ignoredSchemes are reference prefixes that never name a file in the publish root.
var ignoredSchemes = []string{"http:", "https:", "mailto:", "tel:", "javascript:", "data:", "//"}

// isIgnorableRef reports whether a reference is external, anchor-only, or empty.
func isIgnorableRef(ref string) bool {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") {
		return true
	}
	lower := strings.ToLower(ref)
	for _, s := range ignoredSchemes {
		if strings.HasPrefix(lower, s) {
			return true
		}
	}
	return false
}

// splitRef separates the path part of a reference from its query and fragment suffix.
func splitRef(ref string) (string, string) {
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		return ref[:i], ref[i:]
	}
	return ref, ""
}

// extractRefs returns every href and src attribute value in document order.
// Attribute values are entity-decoded by the tokenizer.
func extractRefs(r io.Reader) ([]string, error) {
	var refs []string
	z := html.NewTokenizer(r)
	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return refs, err
			}
			return refs, nil
		case html.StartTagToken, html.SelfClosingTagToken:
			_, hasAttr := z.TagName()
			for hasAttr {
				var key, val []byte
				key, val, hasAttr = z.TagAttr()
				switch string(key) {
				case "href", "src":
					refs = append(refs, string(val))
				}
			}
		}
	}
}
