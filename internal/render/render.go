// Package render formats collector records as human-readable text.
package render

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"faultline/internal/collector"
	"faultline/internal/taxonomy"
)

const defaultWidth = 100

// Options controls presentation.
type Options struct {
	Color bool
	// Width bounds context values; zero means 100 columns.
	Width int
}

// Renderer is safe for concurrent use.
type Renderer struct {
	reg   *taxonomy.Registry
	cat   *Catalog
	width int

	heading *color.Color
	label   *color.Color
	sev     map[taxonomy.Severity]*color.Color
}

// New returns a renderer. A nil catalog renders without explanations.
func New(reg *taxonomy.Registry, cat *Catalog, opts Options) *Renderer {
	width := opts.Width
	if width <= 0 {
		width = defaultWidth
	}
	r := &Renderer{
		reg:     reg,
		cat:     cat,
		width:   width,
		heading: color.New(color.Bold, color.Underline),
		label:   color.New(color.FgCyan),
		sev: map[taxonomy.Severity]*color.Color{
			taxonomy.SevTrace:     color.New(color.FgHiBlack),
			taxonomy.SevDebug:     color.New(color.FgHiBlack),
			taxonomy.SevInfo:      color.New(color.FgBlue),
			taxonomy.SevWarning:   color.New(color.FgYellow),
			taxonomy.SevError:     color.New(color.FgRed),
			taxonomy.SevCritical:  color.New(color.FgRed, color.Bold),
			taxonomy.SevFatal:     color.New(color.FgMagenta, color.Bold),
			taxonomy.SevEmergency: color.New(color.BgRed, color.FgWhite, color.Bold),
		},
	}
	all := []*color.Color{r.heading, r.label}
	for _, c := range r.sev {
		all = append(all, c)
	}
	for _, c := range all {
		if opts.Color {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return r
}

// caseName turns "RESOURCE_NOT_FOUND" into "Resource Not Found".
func (r *Renderer) caseName(name string) string {
	// a Caser holds state, so it is not shared between goroutines
	return cases.Title(language.English).String(strings.ToLower(strings.ReplaceAll(name, "_", " ")))
}

func (r *Renderer) sevColor(s taxonomy.Severity) *color.Color {
	if c, ok := r.sev[s]; ok {
		return c
	}
	return r.label
}

// Line is the one-line form written to log streams.
func (r *Renderer) Line(rec collector.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s/%s source=%s offset=%d code=%s",
		rec.Metadata.Severity, rec.Metadata.Domain, rec.Metadata.Category,
		rec.Metadata.Source, rec.Components.Offset, rec.Code)
	if file, ok := rec.Context["file"].(string); ok && file != "" {
		b.WriteString(" at ")
		b.WriteString(file)
		if line := scalar(rec.Context["line"]); line != "" && line != "0" {
			b.WriteString(":")
			b.WriteString(line)
		}
	}
	if msg := scalar(rec.Context["message"]); msg != "" {
		b.WriteString(": ")
		b.WriteString(oneLine(msg))
	}
	return b.String()
}

// Render produces the full multi-section report. Sections whose catalog
// entry is missing are left out.
func (r *Renderer) Render(rec collector.Record) string {
	var b strings.Builder
	sev := taxonomy.Severity(rec.Components.Severity)

	fmt.Fprintf(&b, "%s %s\n", r.sevColor(sev).Sprint(rec.Metadata.Severity), r.heading.Sprint("report "+rec.Code.String()))
	r.field(&b, "Timestamp", rec.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00"))

	if e, ok := r.cat.Domain(rec.Metadata.Domain); ok {
		r.explain(&b, "Domain: "+titleOr(e, r.caseName(rec.Metadata.Domain)), e)
	}
	if e, ok := r.cat.Category(rec.Metadata.Category); ok {
		r.explain(&b, "Category: "+titleOr(e, r.caseName(rec.Metadata.Category)), e)
	}

	r.section(&b, "Components")
	c := rec.Components
	r.component(&b, "Domain", uint64(c.Domain), 4, rec.Metadata.Domain)
	r.component(&b, "Category", uint64(c.Category), 4, rec.Metadata.Category)
	r.component(&b, "Severity", uint64(c.Severity), 2, rec.Metadata.Severity)
	r.component(&b, "Source", uint64(c.Source), 2, rec.Metadata.Source)
	r.component(&b, "Offset", uint64(c.Offset), 4, "")
	r.field(&b, "Hex", rec.Code.Hex())
	r.field(&b, "Decimal", rec.Code.String())

	r.details(&b, rec)
	r.contextBlock(&b, rec.Context)
	return b.String()
}

func titleOr(e Entry, fallback string) string {
	if e.Title != "" {
		return e.Title
	}
	return fallback
}

func (r *Renderer) section(b *strings.Builder, name string) {
	fmt.Fprintf(b, "\n%s\n", r.heading.Sprint(name))
}

const labelWidth = 12

func (r *Renderer) field(b *strings.Builder, name, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, "  %s %s\n", r.label.Sprint(runewidth.FillRight(name+":", labelWidth)), value)
}

func (r *Renderer) list(b *strings.Builder, name string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "  %s\n", r.label.Sprint(name+":"))
	for _, it := range items {
		fmt.Fprintf(b, "    - %s\n", it)
	}
}

func (r *Renderer) explain(b *strings.Builder, heading string, e Entry) {
	r.section(b, heading)
	r.field(b, "When", e.When)
	r.field(b, "What", e.What)
	r.field(b, "Why", e.Why)
	r.field(b, "Impact", e.Impact)
	r.list(b, "Examples", e.Examples)
	r.list(b, "Fix", e.Fix)
}

func (r *Renderer) component(b *strings.Builder, name string, v uint64, digits int, symbol string) {
	value := fmt.Sprintf("0x%0*X  %-6d", digits, v, v)
	if symbol != "" {
		value += " " + symbol
	}
	r.field(b, name, strings.TrimRight(value, " "))
}

func (r *Renderer) details(b *strings.Builder, rec collector.Record) {
	c := rec.Components
	if d, ok := r.reg.Domain(taxonomy.Domain(c.Domain)); ok {
		r.section(b, "Domain details")
		r.field(b, "Label", d.Label)
		r.field(b, "Retry", yesNo(d.CanRetry))
		r.field(b, "Recoverable", yesNo(d.Recoverable))
		r.field(b, "Requires", strings.Join(d.RequiredContext, ", "))
	}
	if cat, ok := r.reg.Category(taxonomy.Category(c.Category)); ok {
		r.section(b, "Category details")
		r.field(b, "Label", cat.Label)
		r.field(b, "Default", cat.DefaultSeverity.String())
		if cat.Parent != 0 {
			r.field(b, "Refines", cat.Parent.String())
		}
		r.list(b, "Causes", cat.Causes)
		r.list(b, "Fixes", cat.Fixes)
	}
	if s, ok := r.reg.Severity(taxonomy.Severity(c.Severity)); ok {
		r.section(b, "Severity details")
		r.field(b, "Label", s.Label)
		r.field(b, "Throws", yesNo(s.ShouldThrow))
		r.field(b, "Exit code", fmt.Sprint(s.ExitCode))
		r.field(b, "Log", s.LogPath)
	}
	if s, ok := r.reg.Source(taxonomy.Source(c.Source)); ok {
		r.section(b, "Source details")
		r.field(b, "Label", s.Label)
		r.field(b, "Accountable", s.Accountable)
		r.field(b, "Log level", s.LogLevel.String())
		r.field(b, "Stack", yesNo(s.RequiresStack))
		r.field(b, "Alert", yesNo(s.Alert))
	}
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func (r *Renderer) contextBlock(b *strings.Builder, ctx map[string]any) {
	if len(ctx) == 0 {
		return
	}
	r.section(b, "Context")
	keys := make([]string, 0, len(ctx))
	keyWidth := 0
	for k := range ctx {
		keys = append(keys, k)
		if w := runewidth.StringWidth(k); w > keyWidth {
			keyWidth = w
		}
	}
	sort.Strings(keys)
	valueWidth := r.width - keyWidth - 4
	if valueWidth < 10 {
		valueWidth = 10
	}
	for _, k := range keys {
		v := oneLine(Stringify(ctx[k]))
		if runewidth.StringWidth(v) > valueWidth {
			v = runewidth.Truncate(v, valueWidth, "...")
		}
		fmt.Fprintf(b, "  %s %s\n", r.label.Sprint(runewidth.FillRight(k, keyWidth)), v)
	}
}

// Stringify coerces a serialized value to display text. It never panics.
func Stringify(v any) (out string) {
	defer func() {
		if p := recover(); p != nil {
			out = fmt.Sprintf("[unprintable: %v]", p)
		}
	}()
	if s := scalar(v); s != "" || v == nil {
		return norm.NFC.String(s)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return norm.NFC.String(fmt.Sprintf("%v", v))
	}
	return norm.NFC.String(string(raw))
}

// scalar renders strings, numbers and booleans; anything else yields "".
func scalar(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return fmt.Sprint(x)
	}
	return ""
}

func oneLine(s string) string {
	return strings.NewReplacer("\r\n", `\n`, "\n", `\n`, "\r", `\r`).Replace(s)
}
