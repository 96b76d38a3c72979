package taxonomy

import (
	"sort"
	"strings"
)

// DomainInfo describes one Domain.
type DomainInfo struct {
	Code            Domain
	Name            string
	Label           string
	Description     string
	Categories      []Category
	RequiredContext []string
	OptionalContext []string
	ShouldThrow     bool
	CanRetry        bool
	Recoverable     bool
	Priority        int
}

// CategoryInfo describes one Category.
type CategoryInfo struct {
	Code            Category
	Name            string
	Label           string
	Description     string
	DefaultSeverity Severity
	Parent          Category // zero unless the category refines another one
	Causes          []string
	Fixes           []string
}

// SeverityInfo describes one Severity.
type SeverityInfo struct {
	Code        Severity
	Name        string
	Label       string
	ShouldThrow bool
	ShouldLog   bool
	ExitCode    int
	LogPath     string // slash separated, relative to the log base directory
	Priority    int    // ordinal, TRACE is lowest
}

// SourceInfo describes one Source.
type SourceInfo struct {
	Code          Source
	Name          string
	Label         string
	Accountable   string
	LogLevel      Severity
	RequiresStack bool
	Alert         bool
}

// Registry is the immutable lookup table for all four axes.
type Registry struct {
	domains       map[Domain]*DomainInfo
	domainNames   map[string]Domain
	categories    map[Category]*CategoryInfo
	categoryNames map[string]Category
	severities    [256]*SeverityInfo
	severityNames map[string]Severity
	sources       [256]*SourceInfo
	sourceNames   map[string]Source
	allowed       map[Domain]map[Category]struct{}

	domainOrder   []Domain
	categoryOrder []Category
	severityOrder []Severity
	sourceOrder   []Source
}

func normName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// Domain returns metadata for d.
func (r *Registry) Domain(d Domain) (DomainInfo, bool) {
	info, ok := r.domains[d]
	if !ok {
		return DomainInfo{}, false
	}
	return *info, true
}

// DomainByName resolves a domain name.
func (r *Registry) DomainByName(name string) (Domain, bool) {
	d, ok := r.domainNames[normName(name)]
	return d, ok
}

// Category returns metadata for c.
func (r *Registry) Category(c Category) (CategoryInfo, bool) {
	info, ok := r.categories[c]
	if !ok {
		return CategoryInfo{}, false
	}
	return *info, true
}

// CategoryByName resolves a category name.
func (r *Registry) CategoryByName(name string) (Category, bool) {
	c, ok := r.categoryNames[normName(name)]
	return c, ok
}

// Severity returns metadata for s.
func (r *Registry) Severity(s Severity) (SeverityInfo, bool) {
	info := r.severities[s]
	if info == nil {
		return SeverityInfo{}, false
	}
	return *info, true
}

// SeverityByName resolves a severity name.
func (r *Registry) SeverityByName(name string) (Severity, bool) {
	s, ok := r.severityNames[normName(name)]
	return s, ok
}

// Source returns metadata for s.
func (r *Registry) Source(s Source) (SourceInfo, bool) {
	info := r.sources[s]
	if info == nil {
		return SourceInfo{}, false
	}
	return *info, true
}

// SourceByName resolves a source name.
func (r *Registry) SourceByName(name string) (Source, bool) {
	s, ok := r.sourceNames[normName(name)]
	return s, ok
}

// Allows reports whether c is listed among the categories of d.
func (r *Registry) Allows(d Domain, c Category) bool {
	_, ok := r.allowed[d][c]
	return ok
}

// Domains returns all domains ordered by code.
func (r *Registry) Domains() []DomainInfo {
	out := make([]DomainInfo, 0, len(r.domainOrder))
	for _, d := range r.domainOrder {
		out = append(out, *r.domains[d])
	}
	return out
}

// Categories returns all categories ordered by code.
func (r *Registry) Categories() []CategoryInfo {
	out := make([]CategoryInfo, 0, len(r.categoryOrder))
	for _, c := range r.categoryOrder {
		out = append(out, *r.categories[c])
	}
	return out
}

// Severities returns all severities ordered by priority, lowest first.
func (r *Registry) Severities() []SeverityInfo {
	out := make([]SeverityInfo, 0, len(r.severityOrder))
	for _, s := range r.severityOrder {
		out = append(out, *r.severities[s])
	}
	return out
}

// Sources returns all sources ordered by code.
func (r *Registry) Sources() []SourceInfo {
	out := make([]SourceInfo, 0, len(r.sourceOrder))
	for _, s := range r.sourceOrder {
		out = append(out, *r.sources[s])
	}
	return out
}

// Priority returns the ordinal priority of s, or -1 when s is unknown.
func (r *Registry) Priority(s Severity) int {
	if info := r.severities[s]; info != nil {
		return info.Priority
	}
	return -1
}

// AtLeast reports whether s ranks at or above threshold.
// Unknown severities never qualify.
func (r *Registry) AtLeast(s, threshold Severity) bool {
	ps, pt := r.Priority(s), r.Priority(threshold)
	if ps < 0 || pt < 0 {
		return false
	}
	return ps >= pt
}

// MaskAtLeast returns a mask with every registered severity ranking at or
// above threshold.
func (r *Registry) MaskAtLeast(threshold Severity) Mask {
	var m Mask
	for _, s := range r.severityOrder {
		if r.AtLeast(s, threshold) {
			m |= Mask(s)
		}
	}
	return m
}

func (r *Registry) sortOrders() {
	sort.Slice(r.domainOrder, func(i, j int) bool { return r.domainOrder[i] < r.domainOrder[j] })
	sort.Slice(r.categoryOrder, func(i, j int) bool { return r.categoryOrder[i] < r.categoryOrder[j] })
	sort.Slice(r.severityOrder, func(i, j int) bool {
		return r.severities[r.severityOrder[i]].Priority < r.severities[r.severityOrder[j]].Priority
	})
	sort.Slice(r.sourceOrder, func(i, j int) bool { return r.sourceOrder[i] < r.sourceOrder[j] })
}
