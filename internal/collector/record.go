package collector

import (
	"time"

	"faultline/internal/bincode"
	"faultline/internal/taxonomy"
)

// Metadata carries the resolved names of the four axes.
type Metadata struct {
	Domain   string `json:"domain" msgpack:"domain"`
	Category string `json:"category" msgpack:"category"`
	Severity string `json:"severity" msgpack:"severity"`
	Source   string `json:"source" msgpack:"source"`
}

// Record is one classified report. It is not modified after NewRecord.
type Record struct {
	Code       bincode.Code       `json:"binaryCode" msgpack:"code"`
	Timestamp  time.Time          `json:"timestamp" msgpack:"ts"`
	Components bincode.Components `json:"components" msgpack:"components"`
	Metadata   Metadata           `json:"metadata" msgpack:"metadata"`
	Context    map[string]any     `json:"context" msgpack:"context"`
}

// NewRecord classifies code against reg and takes a shallow copy of ctx.
// Unknown axis values keep their numeric rendering, e.g. "DOMAIN(42)".
func NewRecord(reg *taxonomy.Registry, code bincode.Code, ctx map[string]any, now time.Time) Record {
	comp := bincode.Decompose(code)
	meta := Metadata{
		Domain:   taxonomy.Domain(comp.Domain).String(),
		Category: taxonomy.Category(comp.Category).String(),
		Severity: taxonomy.Severity(comp.Severity).String(),
		Source:   taxonomy.Source(comp.Source).String(),
	}
	if reg != nil {
		if d, ok := reg.Domain(taxonomy.Domain(comp.Domain)); ok {
			meta.Domain = d.Name
		}
		if c, ok := reg.Category(taxonomy.Category(comp.Category)); ok {
			meta.Category = c.Name
		}
		if s, ok := reg.Severity(taxonomy.Severity(comp.Severity)); ok {
			meta.Severity = s.Name
		}
		if s, ok := reg.Source(taxonomy.Source(comp.Source)); ok {
			meta.Source = s.Name
		}
	}
	// the record owns its context; later edits to ctx must not reach it
	own := make(map[string]any, len(ctx))
	for k, v := range ctx {
		own[k] = v
	}
	return Record{
		Code:       code,
		Timestamp:  now.UTC(),
		Components: comp,
		Metadata:   meta,
		Context:    own,
	}
}

// File returns the "file" context key, or "<unknown>".
func (r Record) File() string {
	if f, ok := r.Context["file"].(string); ok && f != "" {
		return f
	}
	return unknownFile
}

const unknownFile = "<unknown>"
