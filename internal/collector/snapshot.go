package collector

import "time"

// Summary is the header of a Report.
type Summary struct {
	ID      string        `json:"id" msgpack:"id"`
	Name    string        `json:"name,omitempty" msgpack:"name"`
	Counts  Counts        `json:"counts" msgpack:"counts"`
	Start   time.Time     `json:"start" msgpack:"start"`
	End     time.Time     `json:"end" msgpack:"end"`
	Elapsed time.Duration `json:"elapsed" msgpack:"elapsed"`
	Limited bool          `json:"limited,omitempty" msgpack:"limited"`
}

// Report is a point-in-time copy of a collector.
type Report struct {
	Summary    Summary        `json:"summary" msgpack:"summary"`
	BySeverity map[string]int `json:"bySeverity" msgpack:"by_severity"`
	ByFile     map[string]int `json:"byFile" msgpack:"by_file"`
	Errors     []Record       `json:"errors" msgpack:"errors"`
	Warnings   []Record       `json:"warnings" msgpack:"warnings"`
	Info       []Record       `json:"info" msgpack:"info"`
}

// Report snapshots the collector. The returned slices are copies.
func (c *Collector) Report() Report {
	c.mu.Lock()
	defer c.mu.Unlock()

	end := c.now()
	counts := c.countsLocked()
	byFile := make(map[string]int)
	for _, r := range c.allLocked() {
		byFile[r.File()]++
	}
	return Report{
		Summary: Summary{
			ID:      c.id.String(),
			Name:    c.opts.Name,
			Counts:  counts,
			Start:   c.start,
			End:     end,
			Elapsed: end.Sub(c.start),
			Limited: c.opts.MaxRecords > 0 && counts.Errors+counts.Warnings >= c.opts.MaxRecords,
		},
		BySeverity: c.bySeverityLocked(),
		ByFile:     byFile,
		Errors:     append([]Record(nil), c.errors...),
		Warnings:   append([]Record(nil), c.warnings...),
		Info:       append([]Record(nil), c.info...),
	}
}
