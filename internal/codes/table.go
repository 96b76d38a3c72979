// Package codes precomputes one code builder per (domain, category) pair.
//
// A builder resolves severity and source names through the taxonomy registry
// and packs the result with bincode. Unknown names are rejected; a builder
// never falls back to a zero field.
package codes

import (
	"errors"
	"fmt"

	"faultline/internal/bincode"
	"faultline/internal/taxonomy"
)

// ErrUnknownName is wrapped by UnknownNameError.
var ErrUnknownName = errors.New("unknown taxonomy name")

// UnknownNameError names the axis and the name that failed to resolve.
type UnknownNameError struct {
	Axis string
	Name string
}

func (e *UnknownNameError) Error() string {
	return fmt.Sprintf("unknown %s %q", e.Axis, e.Name)
}

func (e *UnknownNameError) Unwrap() error { return ErrUnknownName }

// Builder composes a code for a fixed (domain, category) pair.
type Builder func(severity, source string, offset int) (bincode.Code, error)

// Rejection describes a refused build, passed to the OnReject hook.
type Rejection struct {
	Domain   string
	Category string
	Severity string
	Source   string
	Offset   int
	Err      error
}

// Option configures a Table.
type Option func(*Table)

// OnReject installs a hook called for every refused build.
func OnReject(fn func(Rejection)) Option {
	return func(t *Table) { t.onReject = fn }
}

// Table maps domain name -> category name -> Builder.
type Table struct {
	reg      *taxonomy.Registry
	builders map[string]map[string]Builder
	onReject func(Rejection)
}

// New binds a builder for every pair of the Domain x Category cross product.
func New(reg *taxonomy.Registry, opts ...Option) *Table {
	t := &Table{reg: reg, builders: make(map[string]map[string]Builder)}
	for _, opt := range opts {
		opt(t)
	}
	for _, d := range reg.Domains() {
		row := make(map[string]Builder, len(reg.Categories()))
		for _, c := range reg.Categories() {
			row[c.Name] = t.bind(d, c)
		}
		t.builders[d.Name] = row
	}
	return t
}

func (t *Table) bind(d taxonomy.DomainInfo, c taxonomy.CategoryInfo) Builder {
	return func(severity, source string, offset int) (bincode.Code, error) {
		code, err := t.compose(d, c, severity, source, offset)
		if err != nil && t.onReject != nil {
			t.onReject(Rejection{
				Domain:   d.Name,
				Category: c.Name,
				Severity: severity,
				Source:   source,
				Offset:   offset,
				Err:      err,
			})
		}
		return code, err
	}
}

func (t *Table) compose(d taxonomy.DomainInfo, c taxonomy.CategoryInfo, severity, source string, offset int) (bincode.Code, error) {
	sev, ok := t.reg.SeverityByName(severity)
	if !ok {
		return 0, &UnknownNameError{Axis: "severity", Name: severity}
	}
	src, ok := t.reg.SourceByName(source)
	if !ok {
		return 0, &UnknownNameError{Axis: "source", Name: source}
	}
	code, err := bincode.Compose(int(d.Code), int(c.Code), int(sev), int(src), offset)
	if err != nil {
		return 0, fmt.Errorf("%s.%s: %w", d.Name, c.Name, err)
	}
	return code, nil
}

// Get returns the builder for a pair. Names are matched case-insensitively.
func (t *Table) Get(domain, category string) (Builder, error) {
	d, ok := t.reg.DomainByName(domain)
	if !ok {
		return nil, &UnknownNameError{Axis: "domain", Name: domain}
	}
	c, ok := t.reg.CategoryByName(category)
	if !ok {
		return nil, &UnknownNameError{Axis: "category", Name: category}
	}
	di, _ := t.reg.Domain(d)
	ci, _ := t.reg.Category(c)
	return t.builders[di.Name][ci.Name], nil
}

// Must is Get for pairs known at compile time; it panics on unknown names.
func (t *Table) Must(domain, category string) Builder {
	b, err := t.Get(domain, category)
	if err != nil {
		panic(err)
	}
	return b
}

// Build resolves the pair and builds in one step.
func (t *Table) Build(domain, category, severity, source string, offset int) (bincode.Code, error) {
	b, err := t.Get(domain, category)
	if err != nil {
		if t.onReject != nil {
			t.onReject(Rejection{
				Domain:   domain,
				Category: category,
				Severity: severity,
				Source:   source,
				Offset:   offset,
				Err:      err,
			})
		}
		return 0, err
	}
	return b(severity, source, offset)
}

// Map exposes the nested table, keyed by canonical upper-case names.
func (t *Table) Map() map[string]map[string]Builder {
	out := make(map[string]map[string]Builder, len(t.builders))
	for d, row := range t.builders {
		cp := make(map[string]Builder, len(row))
		for c, b := range row {
			cp[c] = b
		}
		out[d] = cp
	}
	return out
}

// Pair is one (domain, category) entry of the table.
type Pair struct {
	Domain   string
	Category string
	// Allowed reports whether the domain lists the category as typical.
	Allowed bool
}

// Pairs lists every bound pair in registry order.
func (t *Table) Pairs() []Pair {
	var out []Pair
	for _, d := range t.reg.Domains() {
		for _, c := range t.reg.Categories() {
			out = append(out, Pair{Domain: d.Name, Category: c.Name, Allowed: t.reg.Allows(d.Code, c.Code)})
		}
	}
	return out
}
