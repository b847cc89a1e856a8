package core

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// ConfigFileName is the optional configuration file at the repository root.
	ConfigFileName = "sitereorg.yaml"

	// DefaultDest is the publish root used when nothing overrides it.
	DefaultDest = "docs"

	// DefaultIndex is the implicit index document of a directory.
	DefaultIndex = "index.html"
)

// Config represents the sitereorg.yaml configuration file.
type Config struct {
	Dest          string            `yaml:"dest"`
	Index         string            `yaml:"index"`
	BackupDir     string            `yaml:"backup_dir"`
	BackupExclude []string          `yaml:"backup_exclude"`
	Journal       string            `yaml:"journal"`
	Flatten       []string          `yaml:"flatten"`
	Assets        map[string]string `yaml:"assets"`
	Relocate      []Relocation      `yaml:"relocate"`
	Patterns      []PatternRule     `yaml:"patterns"`
	Check         CheckConfig       `yaml:"check"`
}

// Relocation moves one logical page to a canonical destination.
// From lists legacy names in priority order: the first tracked one is moved,
// every listed name that is present afterwards receives a redirect stub.
type Relocation struct {
	From StringList `yaml:"from"`
	To   string     `yaml:"to"`
}

// PatternRule relocates every top-level document whose name matches Match.
// To is expanded with the named groups of Match (for example ${year}).
type PatternRule struct {
	Match string `yaml:"match"`
	To    string `yaml:"to"`
}

// CheckConfig holds link-check settings.
type CheckConfig struct {
	Exclude []string `yaml:"exclude"`
}

// StringList accepts either a single YAML string or a sequence of strings.
type StringList []string

func (s *StringList) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		*s = StringList{value.Value}
		return nil
	}
	var list []string
	if err := value.Decode(&list); err != nil {
		return err
	}
	*s = list
	return nil
}

// DefaultConfig returns the layout of the journal club site.
func DefaultConfig() Config {
	return Config{
		Dest:          DefaultDest,
		Index:         DefaultIndex,
		BackupExclude: []string{".git", "node_modules", ".jekyll-cache", ".sass-cache", ".bundle"},
		Flatten: []string{
			"*.html", "*.htm",
			"css", "js", "img", "images",
			"favicon.ico", "robots.txt", "CNAME", ".nojekyll",
		},
		Assets: map[string]string{
			"css":    "css",
			"js":     "js",
			"img":    "img",
			"images": "img",
		},
		Relocate: []Relocation{
			{From: StringList{"jc_guide.html", "guide.html"}, To: "guide/index.html"},
		},
		Patterns: []PatternRule{
			{
				Match: `^(?:jc_)?session[_-](?P<year>\d{4})[_-](?P<month>\d{2})(?:[_-]\d{2})?\.html$`,
				To:    "sessions/${year}/${month}/index.html",
			},
			{
				Match: `^(?:jc_)?summary[_-](?P<year>\d{4})\.html$`,
				To:    "summaries/${year}/index.html",
			},
		},
	}
}

// LoadConfig reads sitereorg.yaml from the repository root on top of DefaultConfig.
// Returns the defaults and nil error if the file does not exist.
func LoadConfig(repoPath string) (Config, error) {
	cfg, err := LoadConfigFile(filepath.Join(repoPath, ConfigFileName))
	if os.IsNotExist(err) {
		return DefaultConfig(), nil
	}
	return cfg, err
}

// LoadConfigFile reads the given configuration file on top of DefaultConfig.
// Keys absent from the file keep their default values.
func LoadConfigFile(p string) (Config, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return Config{}, err
	}
	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Config{}, fmt.Errorf("%s: %w", filepath.Base(p), err)
	}
	cfg := DefaultConfig()
	if file.Dest != "" {
		cfg.Dest = file.Dest
	}
	if file.Index != "" {
		cfg.Index = file.Index
	}
	if file.BackupDir != "" {
		cfg.BackupDir = file.BackupDir
	}
	if file.BackupExclude != nil {
		cfg.BackupExclude = file.BackupExclude
	}
	if file.Journal != "" {
		cfg.Journal = file.Journal
	}
	if file.Flatten != nil {
		cfg.Flatten = file.Flatten
	}
	if file.Assets != nil {
		cfg.Assets = file.Assets
	}
	if file.Relocate != nil {
		cfg.Relocate = file.Relocate
	}
	if file.Patterns != nil {
		cfg.Patterns = file.Patterns
	}
	if file.Check.Exclude != nil {
		cfg.Check.Exclude = file.Check.Exclude
	}
	return cfg, nil
}

// Validate normalizes path settings and rejects settings the pipeline cannot honour.
func (c *Config) Validate() error {
	if c.Dest == "" {
		c.Dest = DefaultDest
	}
	if filepath.IsAbs(c.Dest) {
		return fmt.Errorf("dest must be relative to the repository: %s", c.Dest)
	}
	c.Dest = NormalizePath(c.Dest)
	if escapesRoot(c.Dest) || c.Dest == ".git" {
		return fmt.Errorf("dest escapes the repository: %s", c.Dest)
	}
	if c.Index == "" {
		c.Index = DefaultIndex
	}
	if strings.Contains(c.Index, "/") {
		return fmt.Errorf("index must be a file name: %s", c.Index)
	}
	if err := validateGlobPatterns(c.Flatten); err != nil {
		return err
	}
	if err := validateGlobPatterns(c.Check.Exclude); err != nil {
		return err
	}
	for legacy, dir := range c.Assets {
		if legacy == "" || dir == "" || strings.Contains(dir, "/") || strings.Contains(legacy, "/") {
			return fmt.Errorf("invalid asset mapping: %q -> %q", legacy, dir)
		}
	}
	for i, r := range c.Relocate {
		if len(r.From) == 0 || r.To == "" {
			return fmt.Errorf("relocate[%d]: from and to are required", i)
		}
		if escapesRoot(NormalizePath(r.To)) {
			return fmt.Errorf("relocate[%d]: destination escapes the publish root: %s", i, r.To)
		}
	}
	if _, err := c.compilePatterns(); err != nil {
		return err
	}
	return nil
}

type compiledPattern struct {
	re *regexp.Regexp
	to string
}

// compilePatterns compiles every pattern rule and checks that the template only
// refers to named groups the expression defines.
func (c Config) compilePatterns() ([]compiledPattern, error) {
	out := make([]compiledPattern, 0, len(c.Patterns))
	for i, p := range c.Patterns {
		re, err := regexp.Compile(p.Match)
		if err != nil {
			return nil, fmt.Errorf("patterns[%d]: %w", i, err)
		}
		if p.To == "" {
			return nil, fmt.Errorf("patterns[%d]: to is required", i)
		}
		names := make(map[string]bool)
		for _, n := range re.SubexpNames() {
			if n != "" {
				names[n] = true
			}
		}
		for _, m := range templateRefRe.FindAllStringSubmatch(p.To, -1) {
			if !names[m[1]] {
				return nil, fmt.Errorf("patterns[%d]: template refers to unknown group %q", i, m[1])
			}
		}
		out = append(out, compiledPattern{re: re, to: p.To})
	}
	return out, nil
}

var templateRefRe = regexp.MustCompile(`\$\{(\w+)\}`)

// expand returns the destination for name, or "" when the rule does not match.
func (p compiledPattern) expand(name string) string {
	m := p.re.FindStringSubmatchIndex(name)
	if m == nil {
		return ""
	}
	return path.Clean(string(p.re.ExpandString(nil, p.to, name, m)))
}

// assetKeys returns the legacy asset directory names, longest first.
func (c Config) assetKeys() []string {
	keys := make([]string, 0, len(c.Assets))
	for k := range c.Assets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}

// Env holds environment-style overrides. Empty fields mean "not set".
type Env struct {
	Dest      string
	DryRun    bool
	BackupDir string
	Journal   string
}

// Environment variable names read by ReadEnv.
const (
	EnvDest      = "DEST"
	EnvDryRun    = "DRY_RUN"
	EnvBackupDir = "BACKUP_DIR"
	EnvJournal   = "SITEREORG_JOURNAL"
)

// ReadEnv reads overrides through lookup (os.LookupEnv in production).
func ReadEnv(lookup func(string) (string, bool)) (Env, error) {
	var env Env
	get := func(k string) string {
		v, _ := lookup(k)
		return strings.TrimSpace(v)
	}
	env.Dest = get(EnvDest)
	env.BackupDir = get(EnvBackupDir)
	env.Journal = get(EnvJournal)
	dry, err := parseBoolish(get(EnvDryRun))
	if err != nil {
		return Env{}, fmt.Errorf("%s: %w", EnvDryRun, err)
	}
	env.DryRun = dry
	return env, nil
}

// Apply copies the set overrides onto cfg.
func (e Env) Apply(cfg *Config) {
	if e.Dest != "" {
		cfg.Dest = e.Dest
	}
	if e.BackupDir != "" {
		cfg.BackupDir = e.BackupDir
	}
	if e.Journal != "" {
		cfg.Journal = e.Journal
	}
}

func parseBoolish(v string) (bool, error) {
	switch strings.ToLower(v) {
	case "":
		return false, nil
	case "yes", "y", "on":
		return true, nil
	case "no", "n", "off":
		return false, nil
	}
	return strconv.ParseBool(v)
}

// validateGlobPatterns checks that none of the patterns use unsupported character classes.
func validateGlobPatterns(patterns []string) error {
	for _, p := range patterns {
		if strings.Contains(p, "[") {
			return fmt.Errorf("unsupported glob pattern (character class): %s", p)
		}
	}
	return nil
}

// globMatch implements simple glob semantics.
// '*' matches any sequence of characters (including '/').
// '?' matches exactly one character.
// '[' is treated as a literal character (character classes not supported).
func globMatch(pattern, s string) bool {
	return globMatchImpl([]rune(pattern), []rune(s))
}

func globMatchImpl(pattern, s []rune) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case '*':
			for len(pattern) > 0 && pattern[0] == '*' {
				pattern = pattern[1:]
			}
			if len(pattern) == 0 {
				return true
			}
			for i := 0; i <= len(s); i++ {
				if globMatchImpl(pattern, s[i:]) {
					return true
				}
			}
			return false
		case '?':
			if len(s) == 0 {
				return false
			}
			pattern = pattern[1:]
			s = s[1:]
		default:
			if len(s) == 0 || pattern[0] != s[0] {
				return false
			}
			pattern = pattern[1:]
			s = s[1:]
		}
	}
	return len(s) == 0
}
