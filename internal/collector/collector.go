// Package collector buffers classified reports for a run or session and
// answers aggregate queries over them.
package collector

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"faultline/internal/bincode"
	"faultline/internal/taxonomy"
)

var (
	// ErrLimitReached is returned once the error and warning buckets hold
	// MaxRecords records. Callers use it to stop long scans.
	ErrLimitReached = errors.New("collector record limit reached")
	// ErrEscalated is wrapped by EscalationError.
	ErrEscalated = errors.New("critical report escalated")
)

// EscalationError is returned for records at CRITICAL or above when the
// collector escalates. The record has already been stored.
type EscalationError struct {
	Record Record
}

func (e *EscalationError) Error() string {
	return fmt.Sprintf("%s report %s escalated (%s/%s)",
		e.Record.Metadata.Severity, e.Record.Code, e.Record.Metadata.Domain, e.Record.Metadata.Category)
}

func (e *EscalationError) Unwrap() error { return ErrEscalated }

// Sink receives the raw code and context of a streamed record.
type Sink func(code bincode.Code, ctx map[string]any) error

// Options configures a Collector.
type Options struct {
	Name               string
	StreamMode         bool
	EscalateOnCritical bool

	// MaxRecords bounds the error and warning buckets together; zero means
	// unbounded.
	MaxRecords int

	Logger *zap.Logger
	Now    func() time.Time
}

// DefaultOptions streams every record and keeps up to 1000 problems.
func DefaultOptions() Options {
	return Options{StreamMode: true, MaxRecords: 1000}
}

// CollectOptions tunes one Collect call.
type CollectOptions struct {
	SuppressEscalation bool
}

// Collector is safe for concurrent use.
type Collector struct {
	reg  *taxonomy.Registry
	opts Options
	sink Sink
	log  *zap.Logger
	now  func() time.Time

	mu       sync.Mutex
	id       uuid.UUID
	start    time.Time
	errors   []Record
	warnings []Record
	info     []Record
}

// New returns an empty collector. sink may be nil, in which case streaming
// is a no-op.
func New(reg *taxonomy.Registry, opts Options, sink Sink) *Collector {
	c := &Collector{
		reg:  reg,
		opts: opts,
		sink: sink,
		log:  opts.Logger,
		now:  opts.Now,
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	if c.now == nil {
		c.now = time.Now
	}
	c.id = uuid.New()
	c.start = c.now()
	return c
}

// ID identifies the current collection period; Clear starts a new one.
func (c *Collector) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id.String()
}

// Name returns the registry name given in Options.
func (c *Collector) Name() string { return c.opts.Name }

// Options returns the configuration the collector was built with.
func (c *Collector) Options() Options { return c.opts }

type band int

const (
	bandInfo band = iota
	bandWarning
	bandError
)

// classify maps a severity to its bucket and reports whether it is at
// CRITICAL or above. Unknown severities count as errors.
func (c *Collector) classify(sev taxonomy.Severity) (band, bool) {
	if c.reg == nil || c.reg.Priority(sev) < 0 {
		return bandError, false
	}
	switch {
	case c.reg.AtLeast(sev, taxonomy.SevCritical):
		return bandError, true
	case c.reg.AtLeast(sev, taxonomy.SevError):
		return bandError, false
	case c.reg.AtLeast(sev, taxonomy.SevWarning):
		return bandWarning, false
	}
	return bandInfo, false
}

// Collect stores a record for code. In stream mode the raw code and context
// go to the sink once; the record is not classified a second time there.
// Once MaxRecords is reached Collect returns ErrLimitReached without storing,
// and in stream mode the record is still handed to the sink.
func (c *Collector) Collect(code bincode.Code, ctx map[string]any, co CollectOptions) (Record, error) {
	c.mu.Lock()
	if c.opts.MaxRecords > 0 && len(c.errors)+len(c.warnings) >= c.opts.MaxRecords {
		c.mu.Unlock()
		c.log.Debug("collector limit reached", zap.String("collector", c.opts.Name), zap.Int("max", c.opts.MaxRecords))
		// over the limit nothing is stored, but a streaming collector still
		// forwards the record to the logs
		if c.opts.StreamMode && c.sink != nil {
			if err := c.sink(code, ctx); err != nil {
				return Record{}, errors.Join(ErrLimitReached, fmt.Errorf("stream record %s: %w", code, err))
			}
		}
		return Record{}, ErrLimitReached
	}
	rec := NewRecord(c.reg, code, ctx, c.now())
	b, critical := c.classify(taxonomy.Severity(rec.Components.Severity))
	switch b {
	case bandError:
		c.errors = append(c.errors, rec)
	case bandWarning:
		c.warnings = append(c.warnings, rec)
	default:
		c.info = append(c.info, rec)
	}
	c.mu.Unlock()

	if c.opts.StreamMode && c.sink != nil {
		if err := c.sink(code, ctx); err != nil {
			return rec, fmt.Errorf("stream record %s: %w", code, err)
		}
	}
	if critical && c.opts.EscalateOnCritical && !co.SuppressEscalation {
		return rec, &EscalationError{Record: rec}
	}
	return rec, nil
}

// HasErrors reports whether any record at ERROR or above was collected.
func (c *Collector) HasErrors() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.errors) > 0
}

// HasWarnings reports whether any WARNING record was collected.
func (c *Collector) HasWarnings() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.warnings) > 0
}

// Counts is the number of records per band.
type Counts struct {
	Errors   int `json:"errors" msgpack:"errors"`
	Warnings int `json:"warnings" msgpack:"warnings"`
	Info     int `json:"info" msgpack:"info"`
	Total    int `json:"total" msgpack:"total"`
}

// Counts returns the per-band counts.
func (c *Collector) Counts() Counts {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.countsLocked()
}

func (c *Collector) countsLocked() Counts {
	return Counts{
		Errors:   len(c.errors),
		Warnings: len(c.warnings),
		Info:     len(c.info),
		Total:    len(c.errors) + len(c.warnings) + len(c.info),
	}
}

// BySeverity counts records per severity name.
func (c *Collector) BySeverity() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bySeverityLocked()
}

func (c *Collector) bySeverityLocked() map[string]int {
	out := make(map[string]int)
	for _, bucket := range [][]Record{c.errors, c.warnings, c.info} {
		for _, r := range bucket {
			out[r.Metadata.Severity]++
		}
	}
	return out
}

// ByFile groups records by their "file" context key.
func (c *Collector) ByFile() map[string][]Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string][]Record)
	for _, r := range c.allLocked() {
		out[r.File()] = append(out[r.File()], r)
	}
	return out
}

// allLocked returns every record ordered by timestamp.
func (c *Collector) allLocked() []Record {
	all := make([]Record, 0, len(c.errors)+len(c.warnings)+len(c.info))
	all = append(all, c.errors...)
	all = append(all, c.warnings...)
	all = append(all, c.info...)
	sort.SliceStable(all, func(i, j int) bool { return all[i].Timestamp.Before(all[j].Timestamp) })
	return all
}

// Clear drops every record and restarts the collection period.
func (c *Collector) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked()
}

func (c *Collector) clearLocked() {
	c.errors, c.warnings, c.info = nil, nil, nil
	c.id = uuid.New()
	c.start = c.now()
}

// Drain hands every buffered record to sink in timestamp order and clears
// the collector. Non-stream collectors use it to flush at the end of a run.
func (c *Collector) Drain(sink Sink) error {
	c.mu.Lock()
	all := c.allLocked()
	c.clearLocked()
	c.mu.Unlock()

	var errs []error
	for _, r := range all {
		if err := sink(r.Code, r.Context); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
