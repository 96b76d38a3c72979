package collector

import (
	"sort"
	"sync"

	"faultline/internal/taxonomy"
)

// DefaultName is the collector used when a caller names none.
const DefaultName = "global"

// Registry hands out named collectors so unrelated callers can share or
// isolate their buffers.
type Registry struct {
	reg      *taxonomy.Registry
	defaults Options
	sink     Sink

	mu         sync.Mutex
	collectors map[string]*Collector
}

// NewRegistry returns a registry whose auto-created collectors use defaults
// and stream into sink.
func NewRegistry(reg *taxonomy.Registry, defaults Options, sink Sink) *Registry {
	return &Registry{
		reg:        reg,
		defaults:   defaults,
		sink:       sink,
		collectors: make(map[string]*Collector),
	}
}

// Get returns the named collector, creating it on first use.
func (r *Registry) Get(name string) *Collector {
	if name == "" {
		name = DefaultName
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.collectors[name]; ok {
		return c
	}
	opts := r.defaults
	opts.Name = name
	c := New(r.reg, opts, r.sink)
	r.collectors[name] = c
	return c
}

// Lookup returns the named collector without creating it.
func (r *Registry) Lookup(name string) (*Collector, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.collectors[name]
	return c, ok
}

// Put registers c under name, replacing any previous collector.
func (r *Registry) Put(name string, c *Collector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.collectors[name] = c
}

// Remove forgets the named collector.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.collectors, name)
}

// Names lists registered collectors in sorted order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.collectors))
	for n := range r.collectors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
