package report

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"faultline/internal/bincode"
	"faultline/internal/callsite"
)

type queued struct {
	code     bincode.Code
	ctx      map[string]any
	site     callsite.Info
	queuedAt time.Time
}

// Batch accumulates reports and flushes them together. Each entry keeps the
// call site captured when it was added.
type Batch struct {
	r  *Reporter
	id string

	mu    sync.Mutex
	items []queued
}

// NewBatch returns an empty batch bound to r.
func (r *Reporter) NewBatch() *Batch {
	return &Batch{r: r, id: uuid.NewString()}
}

// ID identifies the batch in the "batch" context key of flushed reports.
func (b *Batch) ID() string { return b.id }

// Add queues one report.
func (b *Batch) Add(code bincode.Code, ctx map[string]any) {
	site := callsite.Unknown
	now := time.Now()
	if b.r != nil {
		site = b.r.capturer.Capture(1)
		now = b.r.now()
	}
	cp := make(map[string]any, len(ctx))
	for k, v := range ctx {
		cp[k] = v
	}
	b.mu.Lock()
	b.items = append(b.items, queued{code: code, ctx: cp, site: site, queuedAt: now})
	b.mu.Unlock()
}

// Len returns the number of queued reports.
func (b *Batch) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Flush reports every queued entry in order and empties the batch. opts
// apply to each report; capture is always skipped in favour of the site
// recorded by Add.
func (b *Batch) Flush(opts ...Option) []Result {
	b.mu.Lock()
	items := b.items
	b.items = nil
	b.mu.Unlock()

	opts = append(opts[:len(opts):len(opts)], SkipCapture())
	out := make([]Result, 0, len(items))
	for _, it := range items {
		ctx := it.site.Map()
		for k, v := range it.ctx {
			ctx[k] = v
		}
		ctx["queuedAt"] = it.queuedAt.UTC().Format(time.RFC3339Nano)
		ctx["batch"] = b.id
		out = append(out, b.r.Report(it.code, ctx, opts...))
	}
	return out
}
