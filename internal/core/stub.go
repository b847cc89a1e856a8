package core

import (
	"encoding/json"
	"fmt"
	"html"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Mapping associates a legacy publish-root path with its canonical replacement.
type Mapping struct {
	Legacy    string // publish-root-relative legacy path, e.g. "jc_guide.html"
	Canonical string // publish-root-relative canonical file, e.g. "guide/index.html"
	Target    string // site-rooted URL written into the stub, e.g. "/guide/"
}

const stubMarker = "<!-- moved: "

// targetURL returns the site-rooted URL of a publish-root-relative file.
// Index documents are addressed by their directory with a trailing slash.
func targetURL(canonical, index string) string {
	canonical = NormalizePath(canonical)
	if path.Base(canonical) == index {
		dir := path.Dir(canonical)
		if dir == "." {
			return "/"
		}
		return "/" + dir + "/"
	}
	return "/" + canonical
}

func validateTarget(target string) error {
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") {
		return fmt.Errorf("%w: %q", ErrInvalidTarget, target)
	}
	if strings.ContainsAny(target, "\n\r<>") {
		return fmt.Errorf("%w: %q", ErrInvalidTarget, target)
	}
	return nil
}

// RenderStub returns a redirect document sending clients from legacyPath to target.
// The output depends only on its arguments.
func RenderStub(legacyPath, target string) (string, error) {
	if err := validateTarget(target); err != nil {
		return "", err
	}
	attr := html.EscapeString(target)
	js, err := json.Marshal(target)
	if err != nil {
		return "", err
	}
	// json.Marshal escapes <, > and & so the literal is safe inside <script>.
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n")
	b.WriteString("<html lang=\"en\">\n")
	fmt.Fprintf(&b, stubMarker+"%s -->\n", strings.ReplaceAll(legacyPath, "--", "- -"))
	b.WriteString("<head>\n")
	b.WriteString("<meta charset=\"utf-8\">\n")
	b.WriteString("<title>Redirecting&hellip;</title>\n")
	fmt.Fprintf(&b, "<link rel=\"canonical\" href=\"%s\">\n", attr)
	fmt.Fprintf(&b, "<meta http-equiv=\"refresh\" content=\"0; url=%s\">\n", attr)
	b.WriteString("<meta name=\"robots\" content=\"noindex\">\n")
	fmt.Fprintf(&b, "<script>location.replace(%s);</script>\n", js)
	b.WriteString("</head>\n")
	b.WriteString("<body>\n")
	fmt.Fprintf(&b, "<p>This page has moved to <a href=\"%s\">%s</a>.</p>\n", attr, attr)
	b.WriteString("</body>\n")
	b.WriteString("</html>\n")
	return b.String(), nil
}

// WriteStub writes the redirect document for legacyPath at file, replacing any prior content.
// The target is not checked for existence here; the link check does that.
func WriteStub(file, legacyPath, target string) error {
	doc, err := RenderStub(legacyPath, target)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return err
	}
	return os.WriteFile(file, []byte(doc), 0o644)
}

// IsStub reports whether file holds a redirect document written by WriteStub.
func IsStub(file string) bool {
	f, err := os.Open(file)
	if err != nil {
		return false
	}
	defer f.Close()
	head := make([]byte, 256)
	n, _ := io.ReadFull(f, head)
	return strings.Contains(string(head[:n]), "\n"+stubMarker)
}
