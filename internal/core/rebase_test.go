package core

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var guideMappings = []Mapping{
	{Legacy: "jc_guide.html", Canonical: "guide/index.html", Target: "/guide/"},
	{Legacy: "session_2024_03.html", Canonical: "sessions/2024/03/index.html", Target: "/sessions/2024/03/"},
}

func TestRebaseRef(t *testing.T) {
	legacy := map[string]string{
		"jc_guide.html":        "/guide/",
		"session_2024_03.html": "/sessions/2024/03/",
	}
	tests := []struct {
		name      string
		ref       string
		from      string
		relocated bool
		want      string
		ok        bool
	}{
		{"legacy relative", "jc_guide.html", "index.html", false, "/guide/", true},
		{"legacy site rooted", "/jc_guide.html", "sub/page.html", false, "/guide/", true},
		{"legacy with fragment", "session_2024_03.html#papers", "index.html", false, "/sessions/2024/03/#papers", true},
		{"legacy from subdirectory", "../jc_guide.html", "sub/page.html", false, "/guide/", true},
		{"other relative in plain document", "about.html", "index.html", false, "", false},
		{"relocated relative", "index.html", "jc_guide.html", true, "/index.html", true},
		{"relocated directory", "notes/", "jc_guide.html", true, "/notes/", true},
		{"relocated dot", "./", "jc_guide.html", true, "/", true},
		{"relocated query", "search.html?q=x", "jc_guide.html", true, "/search.html?q=x", true},
		{"relocated absolute untouched", "/assets/css/site.css", "jc_guide.html", true, "", false},
		{"external", "https://example.org/jc_guide.html", "index.html", false, "", false},
		{"anchor", "#top", "jc_guide.html", true, "", false},
		{"query only", "?page=2", "jc_guide.html", true, "", false},
		{"escapes root", "../x.html", "jc_guide.html", true, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := rebaseRef(tt.ref, tt.from, tt.relocated, legacy)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestRebaseLinks(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "index.html", `<a href="jc_guide.html">Guide</a> <a href='session_2024_03.html#papers'>S</a> <a href="about.html">About</a>`)
	writeFile(t, root, "about.html", `<a href="/jc_guide.html">Guide</a>`)
	writeFile(t, root, "guide/index.html", `<a href="index.html">Home</a> <a href="session_2024_03.html">S</a> <img src="/assets/img/a.png">`)
	writeFile(t, root, "sessions/2024/03/index.html", `<a href="jc_guide.html">Guide</a> <a href="#papers">P</a>`)

	res, err := RebaseLinks(root, RebaseOptions{Mappings: guideMappings})
	require.NoError(t, err)

	assert.Equal(t, `<a href="/guide/">Guide</a> <a href='/sessions/2024/03/#papers'>S</a> <a href="about.html">About</a>`, readFile(t, root, "index.html"))
	assert.Equal(t, `<a href="/guide/">Guide</a>`, readFile(t, root, "about.html"))
	assert.Equal(t, `<a href="/index.html">Home</a> <a href="/sessions/2024/03/">S</a> <img src="/assets/img/a.png">`, readFile(t, root, "guide/index.html"))
	assert.Equal(t, `<a href="/guide/">Guide</a> <a href="#papers">P</a>`, readFile(t, root, "sessions/2024/03/index.html"))

	want := []RewrittenFile{
		{File: "about.html", References: 1},
		{File: "guide/index.html", References: 2},
		{File: "index.html", References: 2},
		{File: "sessions/2024/03/index.html", References: 1},
	}
	if diff := cmp.Diff(want, res.Rewritten); diff != "" {
		t.Errorf("rewritten mismatch (-want +got):\n%s", diff)
	}
}

func TestRebaseLinks_Convergent(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "index.html", `<a href="jc_guide.html">Guide</a>`)
	writeFile(t, root, "guide/index.html", `<a href="index.html">Home</a>`)

	_, err := RebaseLinks(root, RebaseOptions{Mappings: guideMappings})
	require.NoError(t, err)
	first := snapshot(t, root)

	res, err := RebaseLinks(root, RebaseOptions{Mappings: guideMappings})
	require.NoError(t, err)
	assert.Zero(t, res.Changed())
	assert.Equal(t, first, snapshot(t, root))
}

func TestRebaseLinks_DryRunAndNoMappings(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "index.html", `<a href="jc_guide.html">Guide</a>`)

	res, err := RebaseLinks(root, RebaseOptions{Mappings: guideMappings, DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Changed())
	assert.Equal(t, `<a href="jc_guide.html">Guide</a>`, readFile(t, root, "index.html"))

	res, err = RebaseLinks(root, RebaseOptions{})
	require.NoError(t, err)
	assert.Zero(t, res.Scanned)
}

func TestRebaseLinks_Unquoted(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "index.html", `<a href=jc_guide.html>Guide</a> <a href=about.html>About</a>`)
	writeFile(t, root, "guide/index.html", `<a href=index.html>Home</a> <a class=x href=session_2024_03.html#papers>S</a>`)

	res, err := RebaseLinks(root, RebaseOptions{Mappings: guideMappings})
	require.NoError(t, err)

	assert.Equal(t, `<a href=/guide/>Guide</a> <a href=about.html>About</a>`, readFile(t, root, "index.html"))
	assert.Equal(t, `<a href=/index.html>Home</a> <a class=x href=/sessions/2024/03/#papers>S</a>`, readFile(t, root, "guide/index.html"))
	assert.Equal(t, 3, res.Changed())

	again, err := RebaseLinks(root, RebaseOptions{Mappings: guideMappings})
	require.NoError(t, err)
	assert.Zero(t, again.Changed())
}

func TestRebaseLinks_UnquotedGetsQuotedWhenNeeded(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "index.html", `<a href=old.html>Old</a>`)
	writeFile(t, root, "my notes/index.html", `<a href=search.html?q=x>Search</a>`)
	mappings := []Mapping{{Legacy: "old.html", Canonical: "my notes/index.html", Target: "/my notes/"}}

	_, err := RebaseLinks(root, RebaseOptions{Mappings: mappings})
	require.NoError(t, err)

	assert.Equal(t, `<a href="/my notes/">Old</a>`, readFile(t, root, "index.html"))
	assert.Equal(t, `<a href="/search.html?q=x">Search</a>`, readFile(t, root, "my notes/index.html"))
}
