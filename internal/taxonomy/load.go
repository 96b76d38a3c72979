package taxonomy

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"math/bits"
	"os"
	"strings"
	"sync"

	"fortio.org/safecast"
	"github.com/BurntSushi/toml"
)

//go:embed taxonomy.toml
var defaultTaxonomy []byte

// ErrInvalidTaxonomy is wrapped by every validation failure of Load.
var ErrInvalidTaxonomy = errors.New("invalid taxonomy")

type taxonomyFile struct {
	Domains    []domainEntry   `toml:"domain"`
	Categories []categoryEntry `toml:"category"`
	Severities []severityEntry `toml:"severity"`
	Sources    []sourceEntry   `toml:"source"`
}

type domainEntry struct {
	Name            string   `toml:"name"`
	Code            int      `toml:"code"`
	Label           string   `toml:"label"`
	Description     string   `toml:"description"`
	Categories      []string `toml:"categories"`
	RequiredContext []string `toml:"required_context"`
	OptionalContext []string `toml:"optional_context"`
	ShouldThrow     bool     `toml:"should_throw"`
	CanRetry        bool     `toml:"can_retry"`
	Recoverable     bool     `toml:"recoverable"`
	Priority        int      `toml:"priority"`
}

type categoryEntry struct {
	Name            string   `toml:"name"`
	Code            int      `toml:"code"`
	Label           string   `toml:"label"`
	Description     string   `toml:"description"`
	DefaultSeverity string   `toml:"default_severity"`
	Parent          string   `toml:"parent"`
	Causes          []string `toml:"causes"`
	Fixes           []string `toml:"fixes"`
}

type severityEntry struct {
	Name        string `toml:"name"`
	Code        int    `toml:"code"`
	Label       string `toml:"label"`
	ShouldThrow bool   `toml:"should_throw"`
	ShouldLog   bool   `toml:"should_log"`
	ExitCode    int    `toml:"exit_code"`
	LogPath     string `toml:"log_path"`
	Priority    int    `toml:"priority"`
}

type sourceEntry struct {
	Name          string `toml:"name"`
	Code          int    `toml:"code"`
	Label         string `toml:"label"`
	Accountable   string `toml:"accountable"`
	LogLevel      string `toml:"log_level"`
	RequiresStack bool   `toml:"requires_stack"`
	Alert         bool   `toml:"alert"`
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
)

// Default returns the registry built from the embedded taxonomy.toml.
// The embedded table is validated by tests, so a failure here is a build defect.
func Default() *Registry {
	defaultOnce.Do(func() {
		reg, err := Load(bytes.NewReader(defaultTaxonomy))
		if err != nil {
			panic(fmt.Errorf("embedded taxonomy: %w", err))
		}
		defaultReg = reg
	})
	return defaultReg
}

// LoadFile reads a taxonomy from a TOML file.
func LoadFile(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open taxonomy: %w", err)
	}
	defer f.Close()
	reg, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return reg, nil
}

// Load decodes and validates a taxonomy.
func Load(r io.Reader) (*Registry, error) {
	var tf taxonomyFile
	meta, err := toml.NewDecoder(r).Decode(&tf)
	if err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return nil, fmt.Errorf("%w: unknown keys %s", ErrInvalidTaxonomy, strings.Join(keys, ", "))
	}
	for _, section := range []string{"domain", "category", "severity", "source"} {
		if !meta.IsDefined(section) {
			return nil, fmt.Errorf("%w: missing [[%s]]", ErrInvalidTaxonomy, section)
		}
	}
	return build(&tf)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidTaxonomy, fmt.Sprintf(format, args...))
}

func build(tf *taxonomyFile) (*Registry, error) {
	r := &Registry{
		domains:       make(map[Domain]*DomainInfo, len(tf.Domains)),
		domainNames:   make(map[string]Domain, len(tf.Domains)),
		categories:    make(map[Category]*CategoryInfo, len(tf.Categories)),
		categoryNames: make(map[string]Category, len(tf.Categories)),
		severityNames: make(map[string]Severity, len(tf.Severities)),
		sourceNames:   make(map[string]Source, len(tf.Sources)),
		allowed:       make(map[Domain]map[Category]struct{}, len(tf.Domains)),
	}

	// severities first: categories and sources refer to them by name
	priorities := make(map[int]string, len(tf.Severities))
	for _, e := range tf.Severities {
		name := normName(e.Name)
		if name == "" {
			return nil, invalid("severity with empty name")
		}
		code, err := safecast.Conv[uint8](e.Code)
		if err != nil {
			return nil, invalid("severity %s: code %d: %v", name, e.Code, err)
		}
		if bits.OnesCount8(code) != 1 {
			return nil, invalid("severity %s: code %d must be a single bit", name, e.Code)
		}
		sev := Severity(code)
		if r.severities[sev] != nil {
			return nil, invalid("severity %s: duplicate code %d", name, e.Code)
		}
		if _, dup := r.severityNames[name]; dup {
			return nil, invalid("duplicate severity name %s", name)
		}
		if other, dup := priorities[e.Priority]; dup {
			return nil, invalid("severity %s: priority %d already used by %s", name, e.Priority, other)
		}
		if e.ShouldLog && strings.TrimSpace(e.LogPath) == "" {
			return nil, invalid("severity %s: should_log requires log_path", name)
		}
		priorities[e.Priority] = name
		r.severities[sev] = &SeverityInfo{
			Code:        sev,
			Name:        name,
			Label:       e.Label,
			ShouldThrow: e.ShouldThrow,
			ShouldLog:   e.ShouldLog,
			ExitCode:    e.ExitCode,
			LogPath:     e.LogPath,
			Priority:    e.Priority,
		}
		r.severityNames[name] = sev
		r.severityOrder = append(r.severityOrder, sev)
	}

	for _, e := range tf.Categories {
		name := normName(e.Name)
		if name == "" {
			return nil, invalid("category with empty name")
		}
		code, err := safecast.Conv[uint16](e.Code)
		if err != nil {
			return nil, invalid("category %s: code %d: %v", name, e.Code, err)
		}
		cat := Category(code)
		if cat == CategoryUnknown {
			return nil, invalid("category %s: code 0 is reserved", name)
		}
		if _, dup := r.categories[cat]; dup {
			return nil, invalid("category %s: duplicate code %d", name, e.Code)
		}
		if _, dup := r.categoryNames[name]; dup {
			return nil, invalid("duplicate category name %s", name)
		}
		sev, ok := r.severityNames[normName(e.DefaultSeverity)]
		if !ok {
			return nil, invalid("category %s: unknown default severity %q", name, e.DefaultSeverity)
		}
		r.categories[cat] = &CategoryInfo{
			Code:            cat,
			Name:            name,
			Label:           e.Label,
			Description:     e.Description,
			DefaultSeverity: sev,
			Causes:          e.Causes,
			Fixes:           e.Fixes,
		}
		r.categoryNames[name] = cat
		r.categoryOrder = append(r.categoryOrder, cat)
	}
	for _, e := range tf.Categories {
		if e.Parent == "" {
			continue
		}
		parent, ok := r.categoryNames[normName(e.Parent)]
		if !ok {
			return nil, invalid("category %s: unknown parent %q", normName(e.Name), e.Parent)
		}
		r.categories[r.categoryNames[normName(e.Name)]].Parent = parent
	}

	for _, e := range tf.Domains {
		name := normName(e.Name)
		if name == "" {
			return nil, invalid("domain with empty name")
		}
		code, err := safecast.Conv[uint16](e.Code)
		if err != nil {
			return nil, invalid("domain %s: code %d: %v", name, e.Code, err)
		}
		dom := Domain(code)
		if dom == DomainUnknown {
			return nil, invalid("domain %s: code 0 is reserved", name)
		}
		if _, dup := r.domains[dom]; dup {
			return nil, invalid("domain %s: duplicate code %d", name, e.Code)
		}
		if _, dup := r.domainNames[name]; dup {
			return nil, invalid("duplicate domain name %s", name)
		}
		info := &DomainInfo{
			Code:            dom,
			Name:            name,
			Label:           e.Label,
			Description:     e.Description,
			RequiredContext: e.RequiredContext,
			OptionalContext: e.OptionalContext,
			ShouldThrow:     e.ShouldThrow,
			CanRetry:        e.CanRetry,
			Recoverable:     e.Recoverable,
			Priority:        e.Priority,
		}
		allowed := make(map[Category]struct{}, len(e.Categories))
		for _, cn := range e.Categories {
			cat, ok := r.categoryNames[normName(cn)]
			if !ok {
				return nil, invalid("domain %s: unknown category %q", name, cn)
			}
			info.Categories = append(info.Categories, cat)
			allowed[cat] = struct{}{}
		}
		r.domains[dom] = info
		r.domainNames[name] = dom
		r.allowed[dom] = allowed
		r.domainOrder = append(r.domainOrder, dom)
	}

	for _, e := range tf.Sources {
		name := normName(e.Name)
		if name == "" {
			return nil, invalid("source with empty name")
		}
		code, err := safecast.Conv[uint8](e.Code)
		if err != nil {
			return nil, invalid("source %s: code %d: %v", name, e.Code, err)
		}
		src := Source(code)
		if src == 0 {
			return nil, invalid("source %s: code 0 is reserved", name)
		}
		if r.sources[src] != nil {
			return nil, invalid("source %s: duplicate code %d", name, e.Code)
		}
		if _, dup := r.sourceNames[name]; dup {
			return nil, invalid("duplicate source name %s", name)
		}
		level, ok := r.severityNames[normName(e.LogLevel)]
		if !ok {
			return nil, invalid("source %s: unknown log level %q", name, e.LogLevel)
		}
		r.sources[src] = &SourceInfo{
			Code:          src,
			Name:          name,
			Label:         e.Label,
			Accountable:   e.Accountable,
			LogLevel:      level,
			RequiresStack: e.RequiresStack,
			Alert:         e.Alert,
		}
		r.sourceNames[name] = src
		r.sourceOrder = append(r.sourceOrder, src)
	}

	r.sortOrders()
	return r, nil
}
