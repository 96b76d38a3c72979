package taxonomy

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestDefaultRegistryLoads(t *testing.T) {
	reg := Default()
	if got := len(reg.Domains()); got != 9 {
		t.Fatalf("domains = %d, want 9", got)
	}
	if got := len(reg.Categories()); got != 13 {
		t.Fatalf("categories = %d, want 13", got)
	}
	if got := len(reg.Severities()); got != 8 {
		t.Fatalf("severities = %d, want 8", got)
	}
	if got := len(reg.Sources()); got != 8 {
		t.Fatalf("sources = %d, want 8", got)
	}
}

func TestDefaultRegistryMatchesConstants(t *testing.T) {
	reg := Default()
	for _, d := range reg.Domains() {
		if d.Name != d.Code.String() {
			t.Errorf("domain %d: name %q, constant says %q", d.Code, d.Name, d.Code.String())
		}
	}
	for _, c := range reg.Categories() {
		if c.Name != c.Code.String() {
			t.Errorf("category %d: name %q, constant says %q", c.Code, c.Name, c.Code.String())
		}
	}
	for _, s := range reg.Severities() {
		if s.Name != s.Code.String() {
			t.Errorf("severity %d: name %q, constant says %q", s.Code, s.Name, s.Code.String())
		}
	}
	for _, s := range reg.Sources() {
		if s.Name != s.Code.String() {
			t.Errorf("source %d: name %q, constant says %q", s.Code, s.Name, s.Code.String())
		}
	}
}

func TestSeverityOrdering(t *testing.T) {
	reg := Default()
	want := []Severity{SevTrace, SevDebug, SevInfo, SevWarning, SevError, SevCritical, SevFatal, SevEmergency}
	got := reg.Severities()
	for i, s := range want {
		if got[i].Code != s {
			t.Fatalf("severity[%d] = %s, want %s", i, got[i].Code, s)
		}
	}
	if !reg.AtLeast(SevCritical, SevWarning) {
		t.Fatalf("CRITICAL should rank at least WARNING")
	}
	if reg.AtLeast(SevDebug, SevWarning) {
		t.Fatalf("DEBUG should not rank at least WARNING")
	}
	if reg.AtLeast(Severity(3), SevTrace) {
		t.Fatalf("unknown severity must never qualify")
	}
}

func TestShouldThrowOnlyForFatalAndEmergency(t *testing.T) {
	reg := Default()
	for _, s := range reg.Severities() {
		want := s.Code == SevFatal || s.Code == SevEmergency
		if s.ShouldThrow != want {
			t.Errorf("%s: ShouldThrow = %v, want %v", s.Name, s.ShouldThrow, want)
		}
	}
}

func TestLogPaths(t *testing.T) {
	reg := Default()
	cases := map[Severity]string{
		SevTrace:     "telemetry/trace.log",
		SevDebug:     "telemetry/debug.log",
		SevInfo:      "telemetry/info.log",
		SevWarning:   "errors/warnings.log",
		SevError:     "errors/syntax-errors.log",
		SevCritical:  "errors/critical.log",
		SevFatal:     "errors/fatal.log",
		SevEmergency: "errors/security.log",
	}
	for sev, want := range cases {
		info, ok := reg.Severity(sev)
		if !ok {
			t.Fatalf("%s missing", sev)
		}
		if info.LogPath != want {
			t.Errorf("%s: LogPath = %q, want %q", sev, info.LogPath, want)
		}
	}
}

func TestLookupsByName(t *testing.T) {
	reg := Default()
	if d, ok := reg.DomainByName("parser"); !ok || d != DomainParser {
		t.Fatalf("DomainByName(parser) = %v, %v", d, ok)
	}
	if c, ok := reg.CategoryByName(" resource_not_found "); !ok || c != CategoryResourceNotFound {
		t.Fatalf("CategoryByName = %v, %v", c, ok)
	}
	if _, ok := reg.SeverityByName("NOT_A_SEVERITY"); ok {
		t.Fatalf("unknown severity resolved")
	}
	if s, ok := reg.SourceByName("Plugin"); !ok || s != SourcePlugin {
		t.Fatalf("SourceByName(Plugin) = %v, %v", s, ok)
	}
	info, _ := reg.Category(CategoryResourceExhausted)
	if info.Parent != CategoryResource {
		t.Fatalf("RESOURCE_EXHAUSTED parent = %s", info.Parent)
	}
	if !reg.Allows(DomainParser, CategorySyntax) || reg.Allows(DomainNetwork, CategorySyntax) {
		t.Fatalf("Allows does not follow domain category lists")
	}
}

func TestMask(t *testing.T) {
	m := MaskOf(SevWarning, SevError)
	if !m.Has(SevWarning) || !m.Has(SevError) || m.Has(SevInfo) {
		t.Fatalf("mask membership wrong: %s", m)
	}
	if got := m.String(); got != "WARNING|ERROR" {
		t.Fatalf("mask string = %q", got)
	}
	high := Default().MaskAtLeast(SevCritical)
	if high != MaskOf(SevCritical, SevFatal, SevEmergency) {
		t.Fatalf("MaskAtLeast(CRITICAL) = %s", high)
	}
}

func TestLoadRejectsInvalidTables(t *testing.T) {
	base := `
[[severity]]
name = "ERROR"
code = %s
priority = 0

[[category]]
name = "SYNTAX"
code = 1
default_severity = "ERROR"

[[domain]]
name = "PARSER"
code = %s
categories = [%s]

[[source]]
name = "USER"
code = 2
log_level = "ERROR"
`
	cases := []struct {
		name       string
		sev, dom   string
		categories string
		wantSubstr string
	}{
		{"severity not a bit", "3", "2", `"SYNTAX"`, "single bit"},
		{"severity too wide", "256", "2", `"SYNTAX"`, "code 256"},
		{"domain too wide", "16", "65536", `"SYNTAX"`, "code 65536"},
		{"unknown category", "16", "2", `"NOPE"`, "unknown category"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			src := fmt.Sprintf(base, tc.sev, tc.dom, tc.categories)
			_, err := Load(strings.NewReader(src))
			if err == nil {
				t.Fatalf("expected error")
			}
			if !errors.Is(err, ErrInvalidTaxonomy) {
				t.Fatalf("error %v does not wrap ErrInvalidTaxonomy", err)
			}
			if !strings.Contains(err.Error(), tc.wantSubstr) {
				t.Fatalf("error %q does not mention %q", err, tc.wantSubstr)
			}
		})
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	src := `
[[severity]]
name = "ERROR"
code = 16
colour = "red"
`
	if _, err := Load(strings.NewReader(src)); err == nil || !strings.Contains(err.Error(), "unknown keys") {
		t.Fatalf("expected unknown keys error, got %v", err)
	}
}

func TestLoadRequiresAllSections(t *testing.T) {
	src := `
[[severity]]
name = "ERROR"
code = 16
`
	if _, err := Load(strings.NewReader(src)); err == nil || !strings.Contains(err.Error(), "missing [[domain]]") {
		t.Fatalf("expected missing section error, got %v", err)
	}
}
